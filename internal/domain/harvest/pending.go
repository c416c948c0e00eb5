package harvest

import (
	"context"
	"errors"

	"github.com/okian/harvester/internal/domain/model"
	"github.com/okian/harvester/pkg/logger"
	"github.com/okian/harvester/pkg/metrics"
)

// replayPending retries units earlier runs failed or deferred, before the walk.
// Units outside the requested season range stay pending.
func (r *run) replayPending(ctx context.Context) error {
	units, err := r.h.store.ListPending(ctx, r.h.id, r.h.maxPendingAttempts)
	if err != nil {
		return persistErr("list pending units", err)
	}
	metrics.UpdatePendingUnits(len(units))
	if len(units) > 0 {
		r.log.Info(ctx, "replaying pending units", logger.Int("count", len(units)))
	}

	for _, u := range units {
		if u.Reason == model.ReasonNotFinished {
			if r.parked == nil {
				r.parked = map[int64]bool{}
			}
			r.parked[u.MatchExternalID] = true
		}
	}

	for _, u := range units {
		if err := r.parent.Err(); err != nil {
			return err
		}
		if u.Season < r.req.StartSeason || u.Season > r.req.EndSeason {
			continue
		}
		comp, ok := r.h.byID[u.CompetitionID]
		if !ok {
			continue
		}

		var stop bool
		switch u.Kind {
		case model.UnitMatches:
			stop, err = r.replayMatches(ctx, comp, u)
		case model.UnitPlayerStats:
			if !r.req.IncludePlayerStats {
				continue
			}
			stop, err = r.replayStats(ctx, comp, u)
		default:
			continue
		}
		if err != nil {
			return err
		}
		if stop {
			return nil
		}
	}
	return nil
}

// replayMatches fetches the unit's page and, for failed fetches, the rest of
// the season that the walk skipped.
func (r *run) replayMatches(ctx context.Context, comp model.CompetitionConfig, u model.PendingUnit) (bool, error) {
	for pageNo := u.Page; ; pageNo++ {
		original := pageNo == u.Page
		if err := r.parent.Err(); err != nil && !original {
			// The rest of the season waits for the next run.
			return false, errors.Join(err, r.addPending(ctx, model.PendingUnit{
				Kind:          model.UnitMatches,
				CompetitionID: comp.ID,
				Season:        u.Season,
				Page:          pageNo,
				Reason:        model.ReasonFetchFailed,
			}))
		}

		p, attempts, err := r.fetchPage(ctx, comp, u.Season, pageNo)
		if err != nil {
			switch {
			case errors.Is(err, ErrQuotaExhausted):
				r.report.QuotaExhausted = true
				if original {
					return true, nil
				}
				return true, r.addPending(ctx, model.PendingUnit{
					Kind:          model.UnitMatches,
					CompetitionID: comp.ID,
					Season:        u.Season,
					Page:          pageNo,
					Reason:        model.ReasonFetchFailed,
				})
			case abort(err):
				return false, err
			}
			// Re-adding the original unit bumps its attempt count.
			if err := r.pageFailed(ctx, comp, u.Season, pageNo, attempts, err); err != nil {
				return false, err
			}
			if original && !r.lastRetryable {
				return false, r.deletePending(ctx, u)
			}
			return false, nil
		}

		deferredBefore := r.report.Deferred
		stop, err := r.processPage(ctx, comp, u.Season, pageNo, p.matches)
		if err != nil {
			return false, err
		}
		if stop {
			if !original {
				err = r.addPending(ctx, model.PendingUnit{
					Kind:          model.UnitMatches,
					CompetitionID: comp.ID,
					Season:        u.Season,
					Page:          pageNo,
					Reason:        model.ReasonFetchFailed,
				})
			}
			return true, err
		}
		if original && r.report.Deferred == deferredBefore {
			if err := r.deletePending(ctx, u); err != nil {
				return false, err
			}
		}
		if !p.hasMore || u.Reason == model.ReasonDeferred {
			return false, nil
		}
	}
}

func (r *run) replayStats(ctx context.Context, comp model.CompetitionConfig, u model.PendingUnit) (bool, error) {
	m := model.Match{ExternalID: u.MatchExternalID, Season: u.Season}
	if u.Reason == model.ReasonNotFinished {
		stored, ok, err := r.h.store.GetMatch(ctx, u.MatchExternalID)
		if err != nil {
			return false, persistErr("load parked match", err)
		}
		if !ok {
			return false, r.deletePending(ctx, u)
		}
		if stored.Date.After(r.h.now()) {
			// Not kicked off yet; costs nothing and keeps its attempts.
			return false, nil
		}
		m = stored
	}

	before := r.report.Errors
	stored, stop, err := r.fetchStats(ctx, comp, m)
	if err != nil || stop {
		return stop, err
	}
	if r.report.Errors != before && r.lastRetryable {
		return false, nil
	}
	if !stored && u.Reason == model.ReasonNotFinished && r.report.Errors == before {
		// Upstream has no lines yet; re-adding bumps attempts so this stays bounded.
		return false, r.addPending(ctx, u)
	}
	return false, r.deletePending(ctx, u)
}

func (r *run) deletePending(ctx context.Context, u model.PendingUnit) error {
	if err := r.h.store.DeletePending(ctx, u.ID); err != nil {
		return persistErr("delete pending unit", err)
	}
	return nil
}
