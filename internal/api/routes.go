package api

import (
	"net/http"

	"sessiond/internal/config"
	"sessiond/internal/health"
	"sessiond/internal/observability"
	"sessiond/internal/runner"
)

// RouterConfig holds dependencies for the router.
type RouterConfig struct {
	Runner        *runner.Runner
	Workers       *config.WorkerConfig
	Metrics       *observability.Metrics
	HealthChecker *health.Checker
	APIKey        string
}

// NewRouter creates a new HTTP router with all routes configured.
func NewRouter(cfg RouterConfig) http.Handler {
	handler := NewHandler(cfg.Runner, cfg.Workers, cfg.HealthChecker)

	mux := http.NewServeMux()

	// Health check endpoints (liveness/readiness probes) - no auth required
	mux.HandleFunc("GET /livez", handler.Livez)
	mux.HandleFunc("GET /readyz", handler.Readyz)

	// Session endpoints - auth required
	authMiddleware := AuthMiddleware(cfg.APIKey)
	mux.Handle("POST /v1/sessions", authMiddleware(http.HandlerFunc(handler.StartSession)))
	mux.Handle("GET /v1/sessions", authMiddleware(http.HandlerFunc(handler.ListSessions)))
	mux.Handle("GET /v1/sessions/current", authMiddleware(http.HandlerFunc(handler.CurrentSession)))
	mux.Handle("DELETE /v1/sessions/{sessionId}", authMiddleware(http.HandlerFunc(handler.StopSession)))

	// Apply middleware chain (order matters: outermost first)
	var h http.Handler = mux
	h = ContentTypeMiddleware()(h)
	h = CORSMiddleware()(h)
	if cfg.Metrics != nil {
		h = MetricsMiddleware(cfg.Metrics)(h)
	}
	h = LoggingMiddleware()(h)
	h = RecoveryMiddleware()(h)

	return h
}
