package api

import (
	"net/http"

	"coordinator/internal/health"
	"coordinator/internal/observability"
	"coordinator/internal/repository"
)

// RouterConfig holds dependencies for the router.
type RouterConfig struct {
	Repository    repository.Repository
	Metrics       *observability.Metrics
	HealthChecker *health.Checker
}

// NewRouter creates a new HTTP router exposing the coordinator's read-only
// status and health surface. There are no job-mutation endpoints: job
// lifecycle is driven exclusively by the reconciler, never by a caller of
// this API.
func NewRouter(cfg RouterConfig) http.Handler {
	handler := NewHandler(cfg.Repository, cfg.HealthChecker)

	mux := http.NewServeMux()

	// Health check endpoints (liveness/readiness probes) - no auth required.
	mux.HandleFunc("GET /livez", handler.Livez)
	mux.HandleFunc("GET /readyz", handler.Readyz)

	// Read-only status snapshots.
	mux.HandleFunc("GET /v1/featuresets", handler.ListFeatureSets)
	mux.HandleFunc("GET /v1/jobs", handler.ListJobs)

	// Apply middleware chain (order matters: innermost first, so Recovery,
	// applied last, is outermost).
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
