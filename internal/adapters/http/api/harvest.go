package api

import (
	"context"
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/okian/harvester/internal/adapters/mq/queue"
	"github.com/okian/harvester/internal/domain/harvest"
	"github.com/okian/harvester/internal/domain/model"
)

const maxBodyBytes = 1 << 16

// harvestRequest mirrors the OpenAPI schema for POST /harvest.
// Pointers distinguish omitted fields from zero values.
type harvestRequest struct {
	StartSeason        *int  `json:"start_season"`
	EndSeason          *int  `json:"end_season"`
	IncludePlayerStats *bool `json:"include_player_stats"`
}

type queuedResponse struct {
	Status  string               `json:"status"`
	JobID   string               `json:"job_id"`
	Request model.HarvestRequest `json:"request"`
}

// harvestFailure is the 500 body; the partial report shows what was persisted.
type harvestFailure struct {
	errorResponse
	Report model.HarvestReport `json:"report"`
}

// HarvestHandler triggers runs.
type HarvestHandler struct {
	svc Service
}

// NewHarvestHandler creates a new harvest handler.
func NewHarvestHandler(svc Service) *HarvestHandler {
	return &HarvestHandler{svc: svc}
}

// HandleHarvest handles POST /harvest. The JSON body wins over query
// parameters; with ?async=true the run is queued and 202 returned.
func (h *HarvestHandler) HandleHarvest(w http.ResponseWriter, r *http.Request) {
	const op = "api.harvest"
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}

	req, err := h.parse(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", WrapKind(op, ErrBadRequest, err))
		return
	}

	if async, _ := strconv.ParseBool(r.URL.Query().Get("async")); async {
		h.submit(w, r, req)
		return
	}

	// A client that goes away does not abandon the run; it finishes and is recorded.
	rep, err := h.svc.Harvest(context.WithoutCancel(r.Context()), req)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, rep)
	case errors.Is(err, harvest.ErrBusy):
		writeError(w, http.StatusConflict, "busy", Wrap(op, err))
	case errors.Is(err, model.ErrInvalidRequest):
		writeError(w, http.StatusBadRequest, "invalid_request", WrapKind(op, ErrBadRequest, err))
	default:
		writeJSON(w, http.StatusInternalServerError, harvestFailure{
			errorResponse: errorResponse{Code: "harvest_failed", Message: Wrap(op, err).Error()},
			Report:        rep,
		})
	}
}

func (h *HarvestHandler) submit(w http.ResponseWriter, r *http.Request, req model.HarvestRequest) {
	const op = "api.harvest.submit"
	job, err := h.svc.Submit(r.Context(), req, model.TriggerHTTP)
	switch {
	case err == nil:
		writeJSON(w, http.StatusAccepted, queuedResponse{Status: "queued", JobID: job.ID, Request: job.Request})
	case errors.Is(err, queue.ErrFull):
		writeError(w, http.StatusTooManyRequests, "backpressure", WrapKind(op, ErrBackpressure, err))
	case errors.Is(err, queue.ErrClosed):
		writeError(w, http.StatusServiceUnavailable, "unavailable", WrapKind(op, ErrUnavailable, err))
	default:
		writeError(w, http.StatusInternalServerError, "internal", WrapKind(op, ErrInternal, err))
	}
}

// parse merges body, query and service defaults. An explicit start season
// without an end season harvests that single season.
func (h *HarvestHandler) parse(r *http.Request) (model.HarvestRequest, error) {
	var body harvestRequest
	raw, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		return model.HarvestRequest{}, fmt.Errorf("read body: %w", err)
	}
	if raw = bytes.TrimSpace(raw); len(raw) > 0 {
		if err := json.Unmarshal(raw, &body); err != nil {
			return model.HarvestRequest{}, fmt.Errorf("decode body: %w", err)
		}
	}

	q := r.URL.Query()
	if body.StartSeason == nil {
		if body.StartSeason, err = queryInt(q.Get("start_season")); err != nil {
			return model.HarvestRequest{}, fmt.Errorf("start_season: %w", err)
		}
	}
	if body.EndSeason == nil {
		if body.EndSeason, err = queryInt(q.Get("end_season")); err != nil {
			return model.HarvestRequest{}, fmt.Errorf("end_season: %w", err)
		}
	}
	if body.IncludePlayerStats == nil {
		if v := q.Get("include_player_stats"); v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return model.HarvestRequest{}, fmt.Errorf("include_player_stats: %w", err)
			}
			body.IncludePlayerStats = &b
		}
	}

	req := h.svc.Defaults()
	if body.StartSeason != nil {
		req.StartSeason = *body.StartSeason
		req.EndSeason = *body.StartSeason
	}
	if body.EndSeason != nil {
		req.EndSeason = *body.EndSeason
	}
	if body.IncludePlayerStats != nil {
		req.IncludePlayerStats = *body.IncludePlayerStats
	}
	return req, nil
}

func queryInt(v string) (*int, error) {
	if v == "" {
		return nil, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return nil, err
	}
	return &n, nil
}
