package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/hszk-dev/countrytube/internal/catalog"
)

// HealthCheck reports whether a dependency is reachable.
type HealthCheck func(ctx context.Context) error

type HealthResponse struct {
	Status    string            `json:"status"`
	Countries int               `json:"countries"`
	Videos    int               `json:"videos"`
	Checks    map[string]string `json:"checks,omitempty"`
}

// HealthHandler reports liveness together with the state of the catalog and
// of the configured backing services.
type HealthHandler struct {
	store   *catalog.Store
	checks  map[string]HealthCheck
	timeout time.Duration
}

// NewHealthHandler creates a new HealthHandler. checks may be empty.
func NewHealthHandler(store *catalog.Store, checks map[string]HealthCheck) *HealthHandler {
	return &HealthHandler{
		store:   store,
		checks:  checks,
		timeout: 2 * time.Second,
	}
}

// Health handles GET /health
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	snap := h.store.Snapshot()
	resp := HealthResponse{
		Status:    "ok",
		Countries: snap.Len(),
		Videos:    snap.VideoCount(),
	}

	status := http.StatusOK
	if len(h.checks) > 0 {
		ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
		defer cancel()

		resp.Checks = make(map[string]string, len(h.checks))
		for name, check := range h.checks {
			if err := check(ctx); err != nil {
				resp.Checks[name] = err.Error()
				resp.Status = "degraded"
				status = http.StatusServiceUnavailable
				continue
			}
			resp.Checks[name] = "ok"
		}
	}

	JSON(w, status, resp)
}
