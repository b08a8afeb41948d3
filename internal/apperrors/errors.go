// Package apperrors provides structured application errors with HTTP status mapping.
package apperrors

import (
	"errors"
	"fmt"
)

// Sentinel errors for classification via errors.Is().
var (
	ErrValidation     = errors.New("validation error")
	ErrNotFound       = errors.New("not found")
	ErrAlreadyRunning = errors.New("already running")
	ErrMismatch       = errors.New("session mismatch")
	ErrInternal       = errors.New("internal error")
)

// Error provides structured error with context.
type Error struct {
	Sentinel error  // Wrapped sentinel for errors.Is() classification
	Message  string // Human-readable message
	Field    string // For validation errors (e.g., "id", "kind")
	Session  string // Session ID the error refers to, if any
	Op       string // Operation that failed (e.g., "proc.spawn")
	Cause    error  // Underlying error
}

// Error returns the human-readable error message.
func (e *Error) Error() string {
	return e.Message
}

// Unwrap returns the sentinel error for errors.Is() classification.
func (e *Error) Unwrap() error {
	return e.Sentinel
}

// Validation creates a validation error for a specific field.
func Validation(field, message string) error {
	return &Error{
		Sentinel: ErrValidation,
		Message:  message,
		Field:    field,
	}
}

// NotFound creates a not found error for a session.
func NotFound(sessionID string) error {
	return &Error{
		Sentinel: ErrNotFound,
		Message:  fmt.Sprintf("session %s not found", sessionID),
		Session:  sessionID,
	}
}

// AlreadyRunning creates an admission-conflict error.
func AlreadyRunning(runningID string) error {
	return &Error{
		Sentinel: ErrAlreadyRunning,
		Message:  "another session is already running",
		Session:  runningID,
	}
}

// Mismatch creates an error for a stop request naming a session whose
// recorded kind or state does not match what is actually running.
func Mismatch(sessionID, reason string) error {
	return &Error{
		Sentinel: ErrMismatch,
		Message:  reason,
		Session:  sessionID,
	}
}

// Internal creates an internal error wrapping an underlying cause.
func Internal(op string, cause error) error {
	return &Error{
		Sentinel: ErrInternal,
		Message:  fmt.Sprintf("%s: %v", op, cause),
		Op:       op,
		Cause:    cause,
	}
}
