// Package api provides the HTTP API handlers and routing for the session service.
package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"path/filepath"
	"regexp"

	"github.com/google/uuid"

	"sessiond/internal/apperrors"
	"sessiond/internal/config"
	"sessiond/internal/health"
	"sessiond/internal/proc"
	"sessiond/internal/runner"
)

// maxRequestBodySize limits request body to 1MB to prevent memory exhaustion
const maxRequestBodySize = 1 << 20 // 1 MB

// Validation limits
const (
	maxSessionIDLength = 128
	maxKindLength      = 64
)

// sessionIDPattern allows alphanumeric, hyphens, and underscores
var sessionIDPattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9_-]*$`)

// kindPattern constrains kinds to safe script names: <script_dir>/<kind>.py
var kindPattern = regexp.MustCompile(`^[a-z][a-z0-9_-]*$`)

// StartRequest is the body of POST /v1/sessions.
type StartRequest struct {
	ID     string         `json:"uuid"`
	Kind   string         `json:"task_name"`
	Params map[string]any `json:"request"`
}

// StartResponse acknowledges an admitted session.
type StartResponse struct {
	ID     string `json:"uuid"`
	Kind   string `json:"task_name"`
	Status string `json:"status"`
}

// Handler contains HTTP handlers for the session API
type Handler struct {
	runner  *runner.Runner
	workers *config.WorkerConfig
	health  *health.Checker
}

// NewHandler creates a new API handler
func NewHandler(r *runner.Runner, workers *config.WorkerConfig, healthChecker *health.Checker) *Handler {
	return &Handler{
		runner:  r,
		workers: workers,
		health:  healthChecker,
	}
}

// StartSession handles POST /v1/sessions
func (h *Handler) StartSession(w http.ResponseWriter, r *http.Request) {
	// Limit request body size to prevent memory exhaustion
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)

	var req StartRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	if err := validateStart(&req); err != nil {
		h.handleError(w, r, err)
		return
	}

	spec := proc.Spec{
		Path: h.workers.Interpreter,
		Args: []string{filepath.Join(h.workers.ScriptDir, req.Kind+".py")},
		Dir:  h.workers.WorkDir,
	}
	if err := h.runner.RunProcess(r.Context(), req.ID, req.Kind, req.Params, spec); err != nil {
		h.handleError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusAccepted, StartResponse{
		ID:     req.ID,
		Kind:   req.Kind,
		Status: "Running",
	})
}

// StopSession handles DELETE /v1/sessions/{sessionId}?kind=<kind>
func (h *Handler) StopSession(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("sessionId")
	if sessionID == "" {
		h.writeError(w, http.StatusBadRequest, "Session ID is required")
		return
	}
	kind := r.URL.Query().Get("kind")
	if kind == "" {
		h.writeError(w, http.StatusBadRequest, "kind parameter is required")
		return
	}

	if err := h.runner.RequestStop(r.Context(), sessionID, kind); err != nil {
		h.handleError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// ListSessions handles GET /v1/sessions
func (h *Handler) ListSessions(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.runner.SnapshotAll(r.Context()))
}

// CurrentSession handles GET /v1/sessions/current
func (h *Handler) CurrentSession(w http.ResponseWriter, r *http.Request) {
	current, ok := h.runner.SnapshotCurrent(r.Context())
	if !ok {
		h.writeError(w, http.StatusNotFound, "no session has run yet")
		return
	}
	h.writeJSON(w, http.StatusOK, current)
}

// Livez handles GET /livez - liveness probe.
// Returns 200 if the process is alive. Does not check dependencies.
func (h *Handler) Livez(w http.ResponseWriter, r *http.Request) {
	response := h.health.Liveness(r.Context())
	h.writeJSON(w, http.StatusOK, response)
}

// Readyz handles GET /readyz - readiness probe.
// Returns 200 if the service is ready to accept traffic.
// Returns 503 if the worker environment is unavailable.
func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	response := h.health.Readiness(r.Context())

	status := http.StatusOK
	if !response.IsHealthy() {
		status = http.StatusServiceUnavailable
	}

	h.writeJSON(w, status, response)
}

// validateStart validates a start request. Does not modify the request.
func validateStart(req *StartRequest) error {
	if len(req.ID) > maxSessionIDLength {
		return apperrors.Validation("uuid", "session id too long")
	}
	if !sessionIDPattern.MatchString(req.ID) {
		return apperrors.Validation("uuid", "session id must be alphanumeric with hyphens or underscores")
	}
	if req.Kind == "" {
		return apperrors.Validation("task_name", "task name is required")
	}
	if len(req.Kind) > maxKindLength {
		return apperrors.Validation("task_name", "task name too long")
	}
	if !kindPattern.MatchString(req.Kind) {
		return apperrors.Validation("task_name", "task name must be lowercase alphanumeric with hyphens or underscores")
	}
	return nil
}

// writeJSON writes a JSON response
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

// writeError writes an error response
func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}

// handleError handles errors from the runner with appropriate HTTP status codes.
func (h *Handler) handleError(w http.ResponseWriter, r *http.Request, err error) {
	status := apperrors.HTTPStatus(err)
	if status >= 500 {
		slog.Error("Internal error", "error", err, "path", r.URL.Path)
	} else {
		slog.Warn("Client error", "error", err, "path", r.URL.Path, "status", status)
	}
	h.writeError(w, status, err.Error())
}
