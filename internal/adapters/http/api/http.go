// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"net/http"

	jsoniter "github.com/json-iterator/go"

	"github.com/okian/harvester/internal/domain/model"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Service is what the handlers need from the harvest application.
type Service interface {
	// Harvest runs synchronously and returns the report, partial on error.
	Harvest(ctx context.Context, req model.HarvestRequest) (model.HarvestReport, error)

	// Submit queues a run for the worker.
	Submit(ctx context.Context, req model.HarvestRequest, trigger model.Trigger) (model.HarvestJob, error)

	// Defaults fills parameters a trigger leaves out.
	Defaults() model.HarvestRequest

	// Health is the read-only introspection snapshot.
	Health(ctx context.Context) (model.Health, error)

	// Matches lists stored matches newest first; season 0 means all.
	Matches(ctx context.Context, season, limit int) ([]model.Match, error)
}

// Server wires HTTP routes for the business API.
type Server struct {
	healthHandler  *HealthHandler
	statsHandler   *StatsHandler
	harvestHandler *HarvestHandler
	matchesHandler *MatchesHandler
}

// NewServer creates a new API server with all handlers.
func NewServer(svc Service, statsProvider StatsProvider, opts ...Option) *Server {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return &Server{
		healthHandler:  NewHealthHandler(svc),
		statsHandler:   NewStatsHandler(statsProvider),
		harvestHandler: NewHarvestHandler(svc),
		matchesHandler: NewMatchesHandler(svc, o.defaultLimit, o.maxLimit),
	}
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(_ context.Context, mux *http.ServeMux) {
	mux.HandleFunc("/health", MetricsMiddleware(s.healthHandler.HandleHealth, "health"))
	mux.HandleFunc("/metrics", s.healthHandler.HandleMetrics)
	mux.HandleFunc("/stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))
	mux.HandleFunc("/harvest", MetricsMiddleware(s.harvestHandler.HandleHarvest, "harvest"))
	mux.HandleFunc("/data/matches", MetricsMiddleware(s.matchesHandler.HandleListMatches, "matches"))
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}
