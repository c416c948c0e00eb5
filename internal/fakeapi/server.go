// Package fakeapi serves a deterministic imitation of the API-Football v3
// endpoints the harvester uses, for local runs and tests.
package fakeapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	jsoniter "github.com/json-iterator/go"

	"github.com/okian/harvester/internal/adapters/apifootball"
	"github.com/okian/harvester/pkg/logger"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary //nolint:gochecknoglobals // shared codec

const shutdownTimeout = 5 * time.Second

// Server is the fake upstream.
type Server struct {
	opts options

	mu        sync.Mutex
	requests  int
	schedules map[[2]int][]fixture
}

// New creates a Server.
func New(opts ...Option) *Server {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return &Server{opts: o, schedules: map[[2]int][]fixture{}}
}

// Handler returns the HTTP routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/fixtures", s.guard(s.handleFixtures))
	mux.HandleFunc("/fixtures/players", s.guard(s.handlePlayers))
	mux.HandleFunc("/status", s.handleStatus)
	return mux
}

// Requests returns how many API requests were answered.
func (s *Server) Requests() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requests
}

// ListenAndServe serves on addr until ctx is done.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s.Handler(), ReadHeaderTimeout: 5 * time.Second}
	errCh := make(chan error, 1)
	go func() {
		s.opts.log.Info(ctx, "fake upstream listening", logger.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// guard applies key checks, the daily limit and injected failures, in the
// order the real service reports them.
func (s *Server) guard(next func(http.ResponseWriter, *http.Request)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.NotFound(w, r)
			return
		}
		if s.opts.apiKey != "" && r.Header.Get("x-rapidapi-key") != s.opts.apiKey {
			writeEnvelope(w, r, map[string]string{"token": "Error/Missing application key. Go to https://www.api-football.com/documentation-v3 to learn how to get your API application key."}, apifootball.Paging{}, []any{})
			return
		}

		s.mu.Lock()
		s.requests++
		n := s.requests
		s.mu.Unlock()

		if s.opts.dailyLimit > 0 && n > s.opts.dailyLimit {
			writeEnvelope(w, r, map[string]string{"requests": "You have reached the request limit for the day, Go to https://dashboard.api-football.com to upgrade your plan."}, apifootball.Paging{}, []any{})
			return
		}
		if s.opts.failEvery > 0 && n%s.opts.failEvery == 0 {
			http.Error(w, "service unavailable", http.StatusServiceUnavailable)
			return
		}
		next(w, r)
	}
}

func (s *Server) schedule(league, season int) []fixture {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := [2]int{league, season}
	if f, ok := s.schedules[key]; ok {
		return f
	}
	f := schedule(league, season)
	s.schedules[key] = f
	return f
}

func (s *Server) handleFixtures(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	league, errL := strconv.Atoi(q.Get("league"))
	season, errS := strconv.Atoi(q.Get("season"))
	if errL != nil || errS != nil {
		writeEnvelope(w, r, map[string]string{"required": "league and season are required"}, apifootball.Paging{}, []any{})
		return
	}
	page := 1
	if p := q.Get("page"); p != "" {
		v, err := strconv.Atoi(p)
		if err != nil || v < 1 {
			writeEnvelope(w, r, map[string]string{"page": "The Page field must be a positive integer."}, apifootball.Paging{}, []any{})
			return
		}
		page = v
	}

	all := s.schedule(league, season)
	size := s.opts.pageSize
	total := (len(all) + size - 1) / size
	if total == 0 {
		total = 1
	}
	from := (page - 1) * size
	to := from + size
	if from > len(all) {
		from = len(all)
	}
	if to > len(all) {
		to = len(all)
	}

	now := s.opts.now()
	out := make([]apifootball.Fixture, 0, to-from)
	for _, f := range all[from:to] {
		out = append(out, f.wire(now))
	}
	writeEnvelope(w, r, nil, apifootball.Paging{Current: page, Total: total}, out)
}

func (s *Server) handlePlayers(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.URL.Query().Get("fixture"), 10, 64)
	if err != nil || id <= 0 {
		writeEnvelope(w, r, map[string]string{"fixture": "The Fixture field must contain an integer."}, apifootball.Paging{}, []any{})
		return
	}
	season, league, idx := decodeFixtureID(id)
	all := s.schedule(league, season)
	if idx < 0 || idx >= len(all) || all[idx].id != id || !all[idx].kickAt.Before(s.opts.now()) {
		writeEnvelope(w, r, nil, apifootball.Paging{Current: 1, Total: 1}, []any{})
		return
	}
	writeEnvelope(w, r, nil, apifootball.Paging{Current: 1, Total: 1}, all[idx].players())
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]int{"requests": s.Requests(), "limit_day": s.opts.dailyLimit})
}

func writeEnvelope[T any](w http.ResponseWriter, r *http.Request, errs map[string]string, paging apifootball.Paging, response []T) {
	params := map[string]any{}
	for k, v := range r.URL.Query() {
		params[k] = v[0]
	}
	rawErrs := jsoniter.RawMessage("[]")
	if len(errs) > 0 {
		b, err := json.Marshal(errs)
		if err != nil {
			http.Error(w, fmt.Sprintf("encode errors: %v", err), http.StatusInternalServerError)
			return
		}
		rawErrs = b
	}
	env := apifootball.Envelope[T]{
		Get:        r.URL.Path[1:],
		Parameters: params,
		Errors:     rawErrs,
		Results:    len(response),
		Paging:     paging,
		Response:   response,
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(env)
}
