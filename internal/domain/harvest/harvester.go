// Package harvest composes quota, walker, filter and dedup gate into harvest runs.
package harvest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/okian/harvester/internal/domain/filter"
	"github.com/okian/harvester/internal/domain/model"
	"github.com/okian/harvester/internal/domain/walker"
	"github.com/okian/harvester/pkg/logger"
	"github.com/okian/harvester/pkg/metrics"
)

// MatchSource fetches fixtures and player statistics from the upstream API.
type MatchSource interface {
	FetchMatches(ctx context.Context, competitionID, season, page int) ([]model.RawMatch, bool, error)
	FetchPlayerStats(ctx context.Context, matchID int64) ([]model.RawPlayerStat, error)
}

// Quota grants upstream requests.
type Quota interface {
	TryConsume(ctx context.Context, n int) (bool, int, error)
	Remaining(ctx context.Context) (int, error)
}

// Gate persists matches and statistics at most once.
type Gate interface {
	PersistMatch(ctx context.Context, m model.Match) (bool, error)
	PersistPlayerStats(ctx context.Context, stats []model.PlayerStat) (int, error)
	HasPlayerStats(ctx context.Context, matchID int64) (bool, error)
}

// Store holds cursors, pending units and the reference rosters.
type Store interface {
	walker.CursorStore
	SeasonTeams(ctx context.Context, competitionID, season int) ([]model.Team, error)
	GetMatch(ctx context.Context, id int64) (model.Match, bool, error)
	AddPending(ctx context.Context, u model.PendingUnit) error
	ListPending(ctx context.Context, harvesterID string, maxAttempts int) ([]model.PendingUnit, error)
	DeletePending(ctx context.Context, id int64) error
}

// Harvester runs harvests. Runs must not overlap; the caller serializes them.
type Harvester struct {
	source MatchSource
	quota  Quota
	gate   Gate
	store  Store
	filter filter.Filter

	comps              []model.CompetitionConfig
	byID               map[int]model.CompetitionConfig
	id                 string
	aliases            map[string]string
	retry              RetryPolicy
	maxPendingAttempts int

	now   func() time.Time
	sleep func(context.Context, time.Duration) error
	newID func() string
	log   logger.Logger
}

// New creates a Harvester walking comps in order.
func New(source MatchSource, quota Quota, gate Gate, store Store, comps []model.CompetitionConfig, opts ...Option) (*Harvester, error) {
	if source == nil || quota == nil || gate == nil || store == nil {
		return nil, errors.New("harvest: source, quota, gate and store are required")
	}
	if len(comps) == 0 {
		return nil, errors.New("harvest: no competitions configured")
	}
	h := &Harvester{
		source:             source,
		quota:              quota,
		gate:               gate,
		store:              store,
		comps:              comps,
		byID:               make(map[int]model.CompetitionConfig, len(comps)),
		id:                 "default",
		retry:              DefaultRetryPolicy(),
		maxPendingAttempts: 5,
		now:                time.Now,
		sleep:              sleepContext,
		newID:              uuid.NewString,
		log:                logger.Nop(),
	}
	for _, c := range comps {
		h.byID[c.ID] = c
	}
	for _, opt := range opts {
		opt(h)
	}
	return h, nil
}

// ID returns the harvester id that keys cursors and pending units.
func (h *Harvester) ID() string { return h.id }

// Competitions returns the configured competitions in walk order.
func (h *Harvester) Competitions() []model.CompetitionConfig { return h.comps }

// Run harvests req's season range until the walk is exhausted, the quota runs
// out, or a persistence error aborts it. The report is returned in every case;
// the error is non-nil only for aborted runs.
//
// Cancelling ctx stops the run between units of work: a unit that has started
// fetching always finishes persisting, so granted quota is never wasted.
func (h *Harvester) Run(ctx context.Context, req model.HarvestRequest) (model.HarvestReport, error) {
	parent := ctx
	ctx = context.WithoutCancel(ctx)
	r := &run{
		h:      h,
		parent: parent,
		req:    req,
		report: model.HarvestReport{
			RunID:        h.newID(),
			StartedAt:    h.now().UTC(),
			Failures:     []model.UnitFailure{},
			Competitions: []model.CompetitionSeasonReport{},
		},
	}
	r.log = h.log.With(logger.String("run_id", r.report.RunID))

	err := req.Validate()
	if err == nil {
		metrics.SetRunActive(true)
		r.log.Info(ctx, "harvest started",
			logger.Int("start_season", req.StartSeason),
			logger.Int("end_season", req.EndSeason),
			logger.Bool("include_player_stats", req.IncludePlayerStats))
		err = r.execute(ctx)
		metrics.SetRunActive(false)
	}
	return r.finish(ctx, err)
}

func (r *run) execute(ctx context.Context) error {
	w, err := walker.New(r.h.store, r.h.id, r.h.comps, r.req.StartSeason, r.req.EndSeason,
		walker.WithClock(r.h.now), walker.WithLogger(r.log))
	if err != nil {
		return err
	}
	r.walker = w

	if err := r.replayPending(ctx); err != nil {
		return err
	}
	if r.report.QuotaExhausted {
		return nil
	}
	return r.walk(ctx)
}

func (r *run) finish(ctx context.Context, err error) (model.HarvestReport, error) {
	rep := &r.report
	rep.FinishedAt = r.h.now().UTC()
	rep.Completed = err == nil && r.walker != nil && r.walker.State() == walker.Exhausted

	if remaining, qerr := r.h.quota.Remaining(ctx); qerr == nil {
		rep.QuotaRemaining = remaining
	}

	switch {
	case err != nil:
		rep.Status = model.StatusError
		rep.Error = err.Error()
		metrics.RecordErrorByComponent("harvest", errorType(err))
		r.log.Error(ctx, "harvest aborted", logger.Error(err),
			logger.Int("matches_inserted", rep.MatchesInserted),
			logger.Int("requests_used", rep.RequestsUsed))
	case rep.QuotaExhausted:
		rep.Status = model.StatusQuotaExhausted
		r.log.Info(ctx, "harvest paused, quota exhausted",
			logger.Int("matches_inserted", rep.MatchesInserted),
			logger.Int("stats_inserted", rep.StatsInserted),
			logger.Int("requests_used", rep.RequestsUsed))
	default:
		rep.Status = model.StatusCompleted
		r.log.Info(ctx, "harvest finished",
			logger.Bool("completed", rep.Completed),
			logger.Int("matches_inserted", rep.MatchesInserted),
			logger.Int("stats_inserted", rep.StatsInserted),
			logger.Int("requests_used", rep.RequestsUsed))
	}
	metrics.RecordRun(string(rep.Status), rep.FinishedAt.Sub(rep.StartedAt))
	return *rep, err
}

func errorType(err error) string {
	switch {
	case errors.Is(err, ErrPersistenceWrite), errors.Is(err, walker.ErrCursorStorage):
		return "persistence"
	case errors.Is(err, ErrQuotaStorage):
		return "quota_storage"
	case errors.Is(err, model.ErrInvalidRequest):
		return "invalid_request"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	default:
		return "unknown"
	}
}

// persistErr marks storage failures outside the gate as persistence errors.
func persistErr(op string, err error) error {
	if errors.Is(err, ErrPersistenceWrite) {
		return err
	}
	return fmt.Errorf("%w: %s: %v", ErrPersistenceWrite, op, err)
}
