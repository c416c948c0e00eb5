package api

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/okian/harvester/pkg/metrics"
)

// HealthHandler serves the introspection snapshot and Prometheus metrics.
type HealthHandler struct {
	svc Service
}

// NewHealthHandler creates a new health handler.
func NewHealthHandler(svc Service) *HealthHandler {
	return &HealthHandler{svc: svc}
}

// HandleHealth handles GET /health. It never triggers upstream calls.
func (h *HealthHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	const op = "api.health"
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	health, err := h.svc.Health(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal", WrapKind(op, ErrInternal, err))
		return
	}
	writeJSON(w, http.StatusOK, health)
}

// HandleMetrics handles GET /metrics from the service registry.
func (h *HealthHandler) HandleMetrics(w http.ResponseWriter, r *http.Request) {
	promhttp.HandlerFor(metrics.GetRegistry(), promhttp.HandlerOpts{}).ServeHTTP(w, r)
}
