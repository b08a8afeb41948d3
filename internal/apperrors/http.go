package apperrors

import (
	"errors"
	"net/http"
)

// HTTPStatus maps an error to the appropriate HTTP status code.
// Admission conflicts and stop mismatches both surface as 409: the caller
// asked for something the single-flight state machine cannot do right now.
func HTTPStatus(err error) int {
	switch {
	case errors.Is(err, ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrAlreadyRunning), errors.Is(err, ErrMismatch):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
