// Package notify delivers session lifecycle events to a configured webhook
// with buffering, retries, backoff, and a circuit breaker.
package notify

import (
	"time"

	"github.com/google/uuid"
)

// Event types published on finalization.
const (
	EventSessionCompleted = "session.completed"
	EventSessionFailed    = "session.failed"
	EventSessionStopped   = "session.stopped"
)

// Event is one session lifecycle notification.
type Event struct {
	ID        string         `json:"id"`
	Type      string         `json:"type"`
	SessionID string         `json:"sessionId"`
	Kind      string         `json:"kind"`
	Message   string         `json:"message,omitempty"`
	Error     string         `json:"error,omitempty"`
	Data      map[string]any `json:"data,omitempty"`
	Time      time.Time      `json:"time"`
}

// NewEvent builds a lifecycle event with a fresh ID and timestamp.
func NewEvent(eventType, sessionID, kind, message, errText string, data map[string]any) *Event {
	return &Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		SessionID: sessionID,
		Kind:      kind,
		Message:   message,
		Error:     errText,
		Data:      data,
		Time:      time.Now().UTC(),
	}
}
