// Package walker drives the traversal over competitions, seasons and pages.
//
// Each competition keeps its own persisted cursor naming the next season and
// page to fetch. The cursor moves only through Advance and SkipSeason, and it
// is written before the in-memory position changes, so a crash between units
// resumes exactly at the first unit that was not completed.
package walker

import (
	"context"
	"fmt"
	"time"

	"github.com/okian/harvester/internal/domain/model"
	"github.com/okian/harvester/pkg/logger"
)

// State of the traversal.
type State int

// Walker states.
const (
	Idle State = iota
	FetchingPage
	AdvancingPage
	AdvancingSeason
	AdvancingCompetition
	Exhausted
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case FetchingPage:
		return "fetching_page"
	case AdvancingPage:
		return "advancing_page"
	case AdvancingSeason:
		return "advancing_season"
	case AdvancingCompetition:
		return "advancing_competition"
	case Exhausted:
		return "exhausted"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// CursorStore persists one cursor per competition.
type CursorStore interface {
	GetCursor(ctx context.Context, harvesterID string, competitionID int) (model.HarvestCursor, bool, error)
	SaveCursor(ctx context.Context, c model.HarvestCursor) error
}

// Unit is one page of one competition season.
type Unit struct {
	Competition model.CompetitionConfig
	Season      int
	Page        int
}

// Position is a snapshot of where the walker stands.
type Position struct {
	State         State  `json:"-"`
	StateName     string `json:"state"`
	CompetitionID int    `json:"competition_id"`
	Season        int    `json:"season"`
	Page          int    `json:"page"`
}

// Walker is not safe for concurrent use; a run owns it.
type Walker struct {
	store       CursorStore
	harvesterID string
	comps       []model.CompetitionConfig
	start, end  int
	now         func() time.Time
	log         logger.Logger

	idx    int
	season int
	page   int
	loaded bool
	state  State
}

// New creates a Walker over comps, in order, for seasons [start, end].
func New(store CursorStore, harvesterID string, comps []model.CompetitionConfig, start, end int, opts ...Option) (*Walker, error) {
	if store == nil {
		return nil, ErrNilStore
	}
	if start <= 0 || start > end {
		return nil, fmt.Errorf("%w: [%d, %d]", ErrInvalidRange, start, end)
	}
	w := &Walker{
		store:       store,
		harvesterID: harvesterID,
		comps:       comps,
		start:       start,
		end:         end,
		now:         time.Now,
		log:         logger.Nop(),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// Next returns the current unit, loading the competition's cursor when needed.
// It returns false once every competition is exhausted for this range.
// Calling Next again before Advance returns the same unit.
func (w *Walker) Next(ctx context.Context) (Unit, bool, error) {
	for {
		switch w.state {
		case Exhausted:
			return Unit{}, false, nil
		case FetchingPage:
			return w.unit(), true, nil
		}

		if w.idx >= len(w.comps) {
			w.state = Exhausted
			w.log.Info(ctx, "traversal exhausted", logger.Int("start", w.start), logger.Int("end", w.end))
			return Unit{}, false, nil
		}
		if w.loaded {
			w.state = FetchingPage
			return w.unit(), true, nil
		}

		ok, err := w.load(ctx)
		if err != nil {
			return Unit{}, false, err
		}
		if !ok {
			// Cursor already past the range, or no listed season inside it.
			w.idx++
		}
	}
}

// load positions the walker on the current competition's cursor.
func (w *Walker) load(ctx context.Context) (bool, error) {
	comp := w.comps[w.idx]
	c, found, err := w.store.GetCursor(ctx, w.harvesterID, comp.ID)
	if err != nil {
		return false, fmt.Errorf("%w: load competition %d: %v", ErrCursorStorage, comp.ID, err)
	}

	season, page := w.start, 1
	if found && c.Season >= w.start {
		season, page = c.Season, c.Page
	}
	if page < 1 {
		page = 1
	}

	next, ok := comp.NextSeason(season, w.end)
	if !ok {
		w.log.Debug(ctx, "competition has nothing left in range",
			logger.Int("competition_id", comp.ID), logger.Int("cursor_season", season))
		return false, nil
	}
	if next != season {
		page = 1
	}

	if !found {
		if err := w.save(ctx, comp.ID, next, page); err != nil {
			return false, err
		}
	}
	w.season, w.page, w.loaded = next, page, true
	return true, nil
}

func (w *Walker) save(ctx context.Context, competitionID, season, page int) error {
	err := w.store.SaveCursor(ctx, model.HarvestCursor{
		HarvesterID:   w.harvesterID,
		CompetitionID: competitionID,
		Season:        season,
		Page:          page,
		UpdatedAt:     w.now(),
	})
	if err != nil {
		return fmt.Errorf("%w: save competition %d: %v", ErrCursorStorage, competitionID, err)
	}
	return nil
}

func (w *Walker) unit() Unit {
	return Unit{Competition: w.comps[w.idx], Season: w.season, Page: w.page}
}

// Advance completes the current unit. hasMore moves to the next page of the
// season; otherwise the walker moves to the next season or competition.
func (w *Walker) Advance(ctx context.Context, hasMore bool) error {
	if w.state != FetchingPage {
		return fmt.Errorf("%w: state %s", ErrNoUnit, w.state)
	}
	if hasMore {
		w.state = AdvancingPage
		if err := w.save(ctx, w.comps[w.idx].ID, w.season, w.page+1); err != nil {
			w.state = FetchingPage
			return err
		}
		w.page++
		w.state = Idle
		return nil
	}
	return w.nextSeason(ctx)
}

// SkipSeason abandons the rest of the current season.
func (w *Walker) SkipSeason(ctx context.Context) error {
	if w.state != FetchingPage {
		return fmt.Errorf("%w: state %s", ErrNoUnit, w.state)
	}
	w.log.Warn(ctx, "skipping rest of season",
		logger.Int("competition_id", w.comps[w.idx].ID),
		logger.Int("season", w.season),
		logger.Int("page", w.page))
	return w.nextSeason(ctx)
}

func (w *Walker) nextSeason(ctx context.Context) error {
	comp := w.comps[w.idx]
	w.state = AdvancingSeason

	next, ok := comp.NextSeason(w.season+1, w.end)
	if ok {
		if err := w.save(ctx, comp.ID, next, 1); err != nil {
			w.state = FetchingPage
			return err
		}
		w.season, w.page = next, 1
		w.state = Idle
		return nil
	}

	// The cursor keeps pointing at the first unvisited season so a wider range resumes there.
	w.state = AdvancingCompetition
	if err := w.save(ctx, comp.ID, w.season+1, 1); err != nil {
		w.state = FetchingPage
		return err
	}
	w.idx++
	w.loaded = false
	if w.idx >= len(w.comps) {
		w.state = Exhausted
		return nil
	}
	w.state = Idle
	return nil
}

// State returns the current state.
func (w *Walker) State() State { return w.state }

// Position returns the current competition, season and page.
func (w *Walker) Position() Position {
	p := Position{State: w.state, StateName: w.state.String()}
	if w.idx < len(w.comps) && w.loaded {
		p.CompetitionID = w.comps[w.idx].ID
		p.Season = w.season
		p.Page = w.page
	}
	return p
}
