package harvest

import (
	"context"
	"errors"
	"strconv"

	"github.com/okian/harvester/internal/domain/filter"
	"github.com/okian/harvester/internal/domain/model"
	"github.com/okian/harvester/internal/domain/walker"
	"github.com/okian/harvester/pkg/logger"
	"github.com/okian/harvester/pkg/metrics"
)

const (
	endpointFixtures = "fixtures"
	endpointPlayers  = "fixtures/players"
)

// run is the state of one Run call.
type run struct {
	h *Harvester
	// parent is the caller's context, consulted only between units.
	parent context.Context
	req    model.HarvestRequest
	report model.HarvestReport
	walker *walker.Walker
	log    logger.Logger

	// lastRetryable tells whether the latest recorded failure was kept as a pending unit.
	lastRetryable bool

	// parked holds matches whose statistics already wait as not_finished units.
	parked map[int64]bool
}

type page struct {
	matches []model.RawMatch
	hasMore bool
}

// abort reports whether err ends the run instead of the current unit.
func abort(err error) bool {
	return errors.Is(err, ErrQuotaStorage) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}

func (r *run) walk(ctx context.Context) error {
	for {
		if err := r.parent.Err(); err != nil {
			return err
		}
		u, ok, err := r.walker.Next(ctx)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}

		p, attempts, err := r.fetchPage(ctx, u.Competition, u.Season, u.Page)
		if err != nil {
			if errors.Is(err, ErrQuotaExhausted) {
				r.report.QuotaExhausted = true
				return nil
			}
			if abort(err) {
				return err
			}
			if err := r.pageFailed(ctx, u.Competition, u.Season, u.Page, attempts, err); err != nil {
				return err
			}
			if err := r.walker.SkipSeason(ctx); err != nil {
				return err
			}
			continue
		}

		stop, err := r.processPage(ctx, u.Competition, u.Season, u.Page, p.matches)
		if err != nil {
			return err
		}
		if stop {
			// The page is fetched again next run; stored matches and stats are skipped.
			return nil
		}
		if err := r.walker.Advance(ctx, p.hasMore); err != nil {
			return err
		}
	}
}

func (r *run) fetchPage(ctx context.Context, comp model.CompetitionConfig, season, pageNo int) (page, int, error) {
	return fetch(ctx, r, endpointFixtures, func(ctx context.Context) (page, error) {
		matches, hasMore, err := r.h.source.FetchMatches(ctx, comp.ID, season, pageNo)
		return page{matches: matches, hasMore: hasMore}, err
	})
}

// processPage filters and persists one page of fixtures, then their player
// statistics when requested. It returns true when the quota ran out midway.
func (r *run) processPage(ctx context.Context, comp model.CompetitionConfig, season, pageNo int, raws []model.RawMatch) (bool, error) {
	roster, err := r.roster(ctx, comp, season)
	if err != nil {
		return false, err
	}

	var (
		fetched, admittedN, inserted, deferred int
		admitted                               []model.Match
		compLabel                              = strconv.Itoa(comp.ID)
	)
	for _, raw := range raws {
		fetched++
		m, err := raw.ToMatch(comp, season, r.h.now())
		if err != nil {
			r.report.Malformed++
			metrics.RecordMalformed()
			r.log.Warn(ctx, "dropping malformed fixture", logger.Int("competition_id", comp.ID), logger.Error(err))
			continue
		}
		m.Phase = filter.PhaseOf(m.Round)

		decision := r.h.filter.Evaluate(comp, filter.Candidate{Phase: m.Phase, Home: raw.Home(), Away: raw.Away()}, roster)
		switch decision {
		case filter.Reject:
			r.report.SkippedFiltered++
			metrics.RecordMatchFiltered(compLabel, decision.String())
			continue
		case filter.Defer:
			deferred++
			r.report.Deferred++
			metrics.RecordMatchFiltered(compLabel, decision.String())
			continue
		}

		admittedN++
		ok, err := r.h.gate.PersistMatch(ctx, m)
		if err != nil {
			return false, err
		}
		if ok {
			inserted++
			r.report.MatchesInserted++
			metrics.RecordMatchInserted()
		} else {
			r.report.MatchesExisting++
			metrics.RecordMatchExisting()
		}
		admitted = append(admitted, m)
	}

	bd := r.report.Breakdown(comp, season)
	bd.Fetched += fetched
	bd.Admitted += admittedN
	bd.Inserted += inserted

	r.log.Debug(ctx, "page processed",
		logger.Int("competition_id", comp.ID),
		logger.Int("season", season),
		logger.Int("page", pageNo),
		logger.Int("fetched", fetched),
		logger.Int("admitted", admittedN),
		logger.Int("inserted", inserted),
		logger.Int("deferred", deferred))

	if deferred > 0 {
		// Reference roster not harvested yet; the page is re-evaluated by a later run.
		err := r.addPending(ctx, model.PendingUnit{
			Kind:          model.UnitMatches,
			CompetitionID: comp.ID,
			Season:        season,
			Page:          pageNo,
			Reason:        model.ReasonDeferred,
		})
		if err != nil {
			return false, err
		}
	}

	if !r.req.IncludePlayerStats {
		return false, nil
	}
	for _, m := range admitted {
		stop, err := r.harvestStats(ctx, comp, m)
		if err != nil || stop {
			return stop, err
		}
	}
	return false, nil
}

// roster returns the reference league's teams for season, or nil when comp
// has no reference league.
func (r *run) roster(ctx context.Context, comp model.CompetitionConfig, season int) (*filter.Roster, error) {
	if comp.ReferenceLeague == 0 {
		return nil, nil
	}
	teams, err := r.h.store.SeasonTeams(ctx, comp.ReferenceLeague, season)
	if err != nil {
		return nil, persistErr("load roster", err)
	}
	return filter.NewRoster(r.h.byID[comp.ReferenceLeague].Country, teams, r.h.aliases), nil
}

// finished reports whether a fixture status can carry final player statistics.
// An empty status is treated as finished.
func finished(status string) bool {
	switch status {
	case "", "FT", "AET", "PEN":
		return true
	default:
		return false
	}
}

// harvestStats fetches and stores the statistics of m unless already stored.
// Matches that have not ended are parked as pending units instead.
// It returns true when the quota ran out.
func (r *run) harvestStats(ctx context.Context, comp model.CompetitionConfig, m model.Match) (bool, error) {
	if !finished(m.Status) {
		return false, r.parkStats(ctx, comp, m)
	}
	_, stop, err := r.fetchStats(ctx, comp, m)
	return stop, err
}

func (r *run) parkStats(ctx context.Context, comp model.CompetitionConfig, m model.Match) error {
	if r.parked[m.ExternalID] {
		return nil
	}
	err := r.addPending(ctx, model.PendingUnit{
		Kind:            model.UnitPlayerStats,
		CompetitionID:   comp.ID,
		Season:          m.Season,
		MatchExternalID: m.ExternalID,
		Reason:          model.ReasonNotFinished,
		LastError:       "status " + m.Status,
	})
	if err != nil {
		return err
	}
	if r.parked == nil {
		r.parked = map[int64]bool{}
	}
	r.parked[m.ExternalID] = true
	r.report.StatsPending++
	r.log.Debug(ctx, "statistics parked until the match ends",
		logger.Int64("match_id", m.ExternalID),
		logger.String("status", m.Status))
	return nil
}

// fetchStats reports stored=true when statistics for m exist after the call.
func (r *run) fetchStats(ctx context.Context, comp model.CompetitionConfig, m model.Match) (stored, stop bool, err error) {
	has, err := r.h.gate.HasPlayerStats(ctx, m.ExternalID)
	if err != nil {
		return false, false, err
	}
	if has {
		return true, false, nil
	}

	raws, attempts, err := fetch(ctx, r, endpointPlayers, func(ctx context.Context) ([]model.RawPlayerStat, error) {
		return r.h.source.FetchPlayerStats(ctx, m.ExternalID)
	})
	if err != nil {
		switch {
		case errors.Is(err, ErrQuotaExhausted):
			r.report.QuotaExhausted = true
			return false, true, nil
		case abort(err):
			return false, false, err
		}
		return false, false, r.statsFailed(ctx, comp, m, attempts, err)
	}

	stats := make([]model.PlayerStat, 0, len(raws))
	for _, raw := range raws {
		s, err := raw.ToPlayerStat(m.ExternalID)
		if err != nil {
			r.report.Malformed++
			metrics.RecordMalformed()
			continue
		}
		stats = append(stats, s)
	}

	n, err := r.h.gate.PersistPlayerStats(ctx, stats)
	if err != nil {
		if errors.Is(err, ErrOrphanStat) {
			return false, false, r.recordFailure(ctx, model.UnitFailure{
				Kind:            model.UnitPlayerStats,
				CompetitionID:   comp.ID,
				Season:          m.Season,
				MatchExternalID: m.ExternalID,
				Attempts:        attempts,
				Error:           err.Error(),
			}, false)
		}
		return false, false, err
	}
	r.report.StatsInserted += n
	metrics.RecordStatsInserted(n)
	return len(stats) > 0, false, nil
}

func (r *run) pageFailed(ctx context.Context, comp model.CompetitionConfig, season, pageNo, attempts int, err error) error {
	return r.recordFailure(ctx, model.UnitFailure{
		Kind:          model.UnitMatches,
		CompetitionID: comp.ID,
		Season:        season,
		Page:          pageNo,
		Attempts:      attempts,
		Error:         err.Error(),
	}, errors.Is(err, ErrTransientFetch))
}

func (r *run) statsFailed(ctx context.Context, comp model.CompetitionConfig, m model.Match, attempts int, err error) error {
	return r.recordFailure(ctx, model.UnitFailure{
		Kind:            model.UnitPlayerStats,
		CompetitionID:   comp.ID,
		Season:          m.Season,
		MatchExternalID: m.ExternalID,
		Attempts:        attempts,
		Error:           err.Error(),
	}, errors.Is(err, ErrTransientFetch))
}

// recordFailure adds f to the report. Retryable failures are kept as pending
// units for a later run.
func (r *run) recordFailure(ctx context.Context, f model.UnitFailure, retryable bool) error {
	r.report.Errors++
	r.lastRetryable = retryable
	r.report.Failures = append(r.report.Failures, f)
	metrics.RecordUnitFailed()
	r.log.Warn(ctx, "unit failed",
		logger.String("kind", string(f.Kind)),
		logger.Int("competition_id", f.CompetitionID),
		logger.Int("season", f.Season),
		logger.Int("page", f.Page),
		logger.Int64("match_id", f.MatchExternalID),
		logger.Int("attempts", f.Attempts),
		logger.Bool("retryable", retryable),
		logger.String("error", f.Error))
	if !retryable {
		return nil
	}
	return r.addPending(ctx, model.PendingUnit{
		Kind:            f.Kind,
		CompetitionID:   f.CompetitionID,
		Season:          f.Season,
		Page:            f.Page,
		MatchExternalID: f.MatchExternalID,
		Reason:          model.ReasonFetchFailed,
		LastError:       f.Error,
	})
}

func (r *run) addPending(ctx context.Context, u model.PendingUnit) error {
	u.HarvesterID = r.h.id
	u.CreatedAt = r.h.now().UTC()
	if err := r.h.store.AddPending(ctx, u); err != nil {
		return persistErr("add pending unit", err)
	}
	return nil
}
