// Package api provides the HTTP API handlers and routing for the
// coordinator's read-only status and health surface.
package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"coordinator/internal/apperrors"
	"coordinator/internal/health"
	"coordinator/internal/model"
	"coordinator/internal/repository"
)

// Handler contains HTTP handlers for the coordinator's status API.
type Handler struct {
	repo   repository.Repository
	health *health.Checker
}

// NewHandler creates a new API handler.
func NewHandler(repo repository.Repository, healthChecker *health.Checker) *Handler {
	return &Handler{
		repo:   repo,
		health: healthChecker,
	}
}

// allJobStatuses enumerates every status a job can be in, used to compose
// a full job listing out of the repository's FindJobsByStatus predicate -
// the only per-status job query the repository exposes.
var allJobStatuses = []model.JobStatus{
	model.JobPending, model.JobRunning, model.JobAborting,
	model.JobAborted, model.JobError, model.JobCompleted,
}

// allFeatureSetStatuses enumerates every status a feature set can be in.
var allFeatureSetStatuses = []model.FeatureSetStatus{
	model.FeatureSetPending, model.FeatureSetReady,
}

// ListJobs handles GET /v1/jobs: a read-only snapshot of every job the
// repository currently holds, across all statuses.
func (h *Handler) ListJobs(w http.ResponseWriter, r *http.Request) {
	var out []model.Job
	for _, status := range allJobStatuses {
		jobs, err := h.repo.FindJobsByStatus(r.Context(), status)
		if err != nil {
			h.handleError(w, r, err)
			return
		}
		out = append(out, jobs...)
	}
	h.writeJSON(w, http.StatusOK, out)
}

// ListFeatureSets handles GET /v1/featuresets: a read-only snapshot of
// every feature set the repository currently holds, across both statuses.
func (h *Handler) ListFeatureSets(w http.ResponseWriter, r *http.Request) {
	var out []model.FeatureSet
	for _, status := range allFeatureSetStatuses {
		sets, err := h.repo.FindFeatureSetsByStatus(r.Context(), status)
		if err != nil {
			h.handleError(w, r, err)
			return
		}
		out = append(out, sets...)
	}
	h.writeJSON(w, http.StatusOK, out)
}

// Livez handles GET /livez - liveness probe.
// Returns 200 if the process is alive. Does not check dependencies.
func (h *Handler) Livez(w http.ResponseWriter, r *http.Request) {
	response := h.health.Liveness(r.Context())
	h.writeJSON(w, http.StatusOK, response)
}

// Readyz handles GET /readyz - readiness probe.
// Returns 200 if the service is ready to accept traffic.
// Returns 503 if a dependency (repository, runner, registry, bus) is unavailable.
func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	response := h.health.Readiness(r.Context())

	status := http.StatusOK
	if !response.IsHealthy() {
		status = http.StatusServiceUnavailable
	}

	h.writeJSON(w, status, response)
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

// handleError handles errors from the repository with appropriate HTTP status codes.
func (h *Handler) handleError(w http.ResponseWriter, r *http.Request, err error) {
	status := apperrors.HTTPStatus(err)
	if status >= 500 {
		slog.Error("Internal error", "error", err, "path", r.URL.Path)
	} else {
		slog.Warn("Client error", "error", err, "path", r.URL.Path, "status", status)
	}
	h.writeError(w, status, err.Error())
}
