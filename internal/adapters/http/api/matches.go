package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/okian/harvester/internal/domain/model"
)

type matchesResponse struct {
	Count   int           `json:"count"`
	Matches []model.Match `json:"matches"`
}

// MatchesHandler lists stored matches.
type MatchesHandler struct {
	svc          Service
	defaultLimit int
	maxLimit     int
}

// NewMatchesHandler creates a new matches handler.
func NewMatchesHandler(svc Service, defaultLimit, maxLimit int) *MatchesHandler {
	return &MatchesHandler{svc: svc, defaultLimit: defaultLimit, maxLimit: maxLimit}
}

// HandleListMatches handles GET /data/matches?season=&limit=.
func (h *MatchesHandler) HandleListMatches(w http.ResponseWriter, r *http.Request) {
	const op = "api.list_matches"
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}

	q := r.URL.Query()
	limit := h.defaultLimit
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, errors.New("limit must be a positive integer")))
			return
		}
		limit = n
	}
	if limit > h.maxLimit {
		limit = h.maxLimit
	}

	var season int
	if v := q.Get("season"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, errors.New("season must be a positive integer")))
			return
		}
		season = n
	}

	matches, err := h.svc.Matches(r.Context(), season, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal", WrapKind(op, ErrInternal, err))
		return
	}
	if matches == nil {
		matches = []model.Match{}
	}
	writeJSON(w, http.StatusOK, matchesResponse{Count: len(matches), Matches: matches})
}
