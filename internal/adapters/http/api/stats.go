package api

import (
	"net/http"
)

// StatsProvider exposes the operational counters served on /stats.
type StatsProvider interface {
	GetStats() map[string]interface{}
}

// StatsHandler serves a point-in-time snapshot of harvester internals:
// queue depth, run state, stored totals and process figures.
type StatsHandler struct {
	provider StatsProvider
}

// NewStatsHandler wraps provider.
func NewStatsHandler(provider StatsProvider) *StatsHandler {
	return &StatsHandler{provider: provider}
}

// HandleStats answers GET /stats.
func (h *StatsHandler) HandleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", nil)
		return
	}
	writeJSON(w, http.StatusOK, h.provider.GetStats())
}
