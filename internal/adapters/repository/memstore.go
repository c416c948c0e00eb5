package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/okian/harvester/internal/domain/model"
)

type statKey struct {
	match  int64
	player int64
}

type cursorKey struct {
	harvester   string
	competition int
}

type pendingKey struct {
	harvester   string
	kind        model.UnitKind
	competition int
	season      int
	page        int
	match       int64
}

type lease struct {
	owner   string
	expires time.Time
}

// MemStore is an in-memory Store. It is safe for concurrent use.
type MemStore struct {
	mu   sync.RWMutex
	opts options

	matches map[int64]model.Match
	stats   map[statKey]model.PlayerStat
	quota   map[string]int
	cursors map[cursorKey]model.HarvestCursor
	pending map[pendingKey]model.PendingUnit
	runs    []model.HarvestRun
	locks   map[string]lease
	nextID  int64
	closed  bool
}

// NewMemStore creates an empty MemStore.
func NewMemStore(opts ...Option) *MemStore {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return &MemStore{
		opts:    o,
		matches: make(map[int64]model.Match),
		stats:   make(map[statKey]model.PlayerStat),
		quota:   make(map[string]int),
		cursors: make(map[cursorKey]model.HarvestCursor),
		pending: make(map[pendingKey]model.PendingUnit),
		locks:   make(map[string]lease),
	}
}

func (s *MemStore) MatchExists(_ context.Context, id int64) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return false, ErrClosed
	}
	_, ok := s.matches[id]
	return ok, nil
}

func (s *MemStore) GetMatch(_ context.Context, id int64) (model.Match, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return model.Match{}, false, ErrClosed
	}
	m, ok := s.matches[id]
	return m, ok, nil
}

func (s *MemStore) InsertMatch(_ context.Context, m model.Match) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false, ErrClosed
	}
	if _, ok := s.matches[m.ExternalID]; ok {
		return false, nil
	}
	s.matches[m.ExternalID] = m
	return true, nil
}

func (s *MemStore) PlayerStatsExist(_ context.Context, matchID int64) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return false, ErrClosed
	}
	for k := range s.stats {
		if k.match == matchID {
			return true, nil
		}
	}
	return false, nil
}

func (s *MemStore) InsertPlayerStats(_ context.Context, stats []model.PlayerStat) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, ErrClosed
	}
	// All-or-nothing, like the SQLite transaction.
	for _, p := range stats {
		if _, ok := s.matches[p.MatchExternalID]; !ok {
			return 0, ErrNotFound
		}
	}
	inserted := 0
	for _, p := range stats {
		k := statKey{match: p.MatchExternalID, player: p.PlayerID}
		if _, ok := s.stats[k]; ok {
			continue
		}
		s.stats[k] = p
		inserted++
	}
	return inserted, nil
}

func (s *MemStore) ListMatches(_ context.Context, f MatchFilter) ([]model.Match, error) {
	if f.Limit < 0 {
		return nil, ErrInvalidLimit
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}

	out := make([]model.Match, 0, len(s.matches))
	for _, m := range s.matches {
		if f.Season != 0 && m.Season != f.Season {
			continue
		}
		if f.CompetitionID != 0 && m.CompetitionID != f.CompetitionID {
			continue
		}
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.After(out[j].Date)
		}
		return out[i].ExternalID > out[j].ExternalID
	})

	limit := f.Limit
	if limit == 0 || limit > s.opts.maxLimit {
		limit = s.opts.maxLimit
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemStore) SeasonTeams(_ context.Context, competitionID, season int) ([]model.Team, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}

	seen := make(map[model.Team]struct{})
	for _, m := range s.matches {
		if m.CompetitionID != competitionID || m.Season != season {
			continue
		}
		seen[model.Team{ID: m.HomeTeamID, Name: m.HomeTeamName}] = struct{}{}
		seen[model.Team{ID: m.AwayTeamID, Name: m.AwayTeamName}] = struct{}{}
	}
	teams := make([]model.Team, 0, len(seen))
	for t := range seen {
		teams = append(teams, t)
	}
	sort.Slice(teams, func(i, j int) bool { return teams[i].Name < teams[j].Name })
	return teams, nil
}

func (s *MemStore) GetQuota(_ context.Context, date string, limit int) (model.QuotaState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return model.QuotaState{}, ErrClosed
	}
	return model.QuotaState{Date: date, RequestsUsed: s.quota[date], DailyLimit: limit}, nil
}

func (s *MemStore) ConsumeQuota(_ context.Context, date string, n, limit int) (model.QuotaState, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return model.QuotaState{}, false, ErrClosed
	}
	used := s.quota[date]
	if used+n > limit {
		return model.QuotaState{Date: date, RequestsUsed: used, DailyLimit: limit}, false, nil
	}
	s.quota[date] = used + n
	return model.QuotaState{Date: date, RequestsUsed: used + n, DailyLimit: limit}, true, nil
}

func (s *MemStore) ResetQuota(_ context.Context, date string, _ int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	s.quota[date] = 0
	return nil
}

func (s *MemStore) GetCursor(_ context.Context, harvesterID string, competitionID int) (model.HarvestCursor, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return model.HarvestCursor{}, false, ErrClosed
	}
	c, ok := s.cursors[cursorKey{harvesterID, competitionID}]
	return c, ok, nil
}

func (s *MemStore) SaveCursor(_ context.Context, c model.HarvestCursor) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if c.UpdatedAt.IsZero() {
		c.UpdatedAt = s.opts.now()
	}
	s.cursors[cursorKey{c.HarvesterID, c.CompetitionID}] = c
	return nil
}

func (s *MemStore) ListCursors(_ context.Context, harvesterID string) ([]model.HarvestCursor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}
	var out []model.HarvestCursor
	for k, c := range s.cursors {
		if k.harvester == harvesterID {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CompetitionID < out[j].CompetitionID })
	return out, nil
}

func (s *MemStore) DeleteCursors(_ context.Context, harvesterID string, competitionID int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, ErrClosed
	}
	n := 0
	for k := range s.cursors {
		if k.harvester == harvesterID && (competitionID == 0 || k.competition == competitionID) {
			delete(s.cursors, k)
			n++
		}
	}
	return n, nil
}

func (s *MemStore) AddPending(_ context.Context, u model.PendingUnit) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	k := pendingKey{u.HarvesterID, u.Kind, u.CompetitionID, u.Season, u.Page, u.MatchExternalID}
	if cur, ok := s.pending[k]; ok {
		cur.Attempts++
		cur.Reason = u.Reason
		cur.LastError = u.LastError
		s.pending[k] = cur
		return nil
	}
	s.nextID++
	u.ID = s.nextID
	u.Attempts = 1
	if u.CreatedAt.IsZero() {
		u.CreatedAt = s.opts.now()
	}
	s.pending[k] = u
	return nil
}

func (s *MemStore) ListPending(_ context.Context, harvesterID string, maxAttempts int) ([]model.PendingUnit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}
	var out []model.PendingUnit
	for _, u := range s.pending {
		if u.HarvesterID != harvesterID {
			continue
		}
		if maxAttempts > 0 && u.Attempts >= maxAttempts {
			continue
		}
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemStore) DeletePending(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	for k, u := range s.pending {
		if u.ID == id {
			delete(s.pending, k)
		}
	}
	return nil
}

func (s *MemStore) SaveRun(_ context.Context, run model.HarvestRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	for i := range s.runs {
		if s.runs[i].ID == run.ID {
			s.runs[i] = run
			return nil
		}
	}
	s.runs = append(s.runs, run)
	return nil
}

func (s *MemStore) LastRun(_ context.Context, harvesterID string) (model.HarvestRun, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return model.HarvestRun{}, false, ErrClosed
	}
	var (
		last  model.HarvestRun
		found bool
	)
	for _, r := range s.runs {
		if r.HarvesterID != harvesterID {
			continue
		}
		if !found || !r.FinishedAt.Before(last.FinishedAt) {
			last, found = r, true
		}
	}
	return last, found, nil
}

func (s *MemStore) AcquireLock(_ context.Context, name, owner string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false, ErrClosed
	}
	now := s.opts.now()
	if cur, ok := s.locks[name]; ok && cur.owner != owner && now.Before(cur.expires) {
		return false, nil
	}
	s.locks[name] = lease{owner: owner, expires: now.Add(ttl)}
	return true, nil
}

func (s *MemStore) ReleaseLock(_ context.Context, name, owner string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if cur, ok := s.locks[name]; ok && cur.owner == owner {
		delete(s.locks, name)
	}
	return nil
}

func (s *MemStore) Counts(_ context.Context, harvesterID string) (Counts, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return Counts{}, ErrClosed
	}
	c := Counts{Matches: len(s.matches), PlayerStats: len(s.stats)}
	for _, u := range s.pending {
		if u.HarvesterID == harvesterID {
			c.PendingUnits++
		}
	}
	for _, r := range s.runs {
		if r.HarvesterID == harvesterID {
			c.Runs++
		}
	}
	return c, nil
}

// Close marks the store closed; later calls return ErrClosed.
func (s *MemStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

var _ Store = (*MemStore)(nil)
