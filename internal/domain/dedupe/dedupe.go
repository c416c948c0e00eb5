// Package dedupe is the insert-only persistence gate for matches and player statistics.
//
// Every write goes through an existence check first, so re-fetching a page
// after a crash never duplicates rows or overwrites stored ones.
package dedupe

import (
	"context"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/okian/harvester/internal/domain/model"
	"github.com/okian/harvester/pkg/logger"
)

// Store holds the storage primitives the gate is built on.
type Store interface {
	MatchExists(ctx context.Context, id int64) (bool, error)
	InsertMatch(ctx context.Context, m model.Match) (bool, error)
	PlayerStatsExist(ctx context.Context, matchID int64) (bool, error)
	InsertPlayerStats(ctx context.Context, stats []model.PlayerStat) (int, error)
}

// Gate writes matches and player statistics at most once.
type Gate struct {
	store     Store
	cacheSize int
	// seen holds ids of matches known to be stored; nil when caching is off.
	seen *lru.Cache[int64, struct{}]
	log  logger.Logger
}

// New creates a Gate over store.
func New(store Store, opts ...Option) (*Gate, error) {
	if store == nil {
		return nil, ErrNilStore
	}
	g := &Gate{
		store:     store,
		cacheSize: 50_000,
		log:       logger.Nop(),
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.cacheSize > 0 {
		c, err := lru.New[int64, struct{}](g.cacheSize)
		if err != nil {
			return nil, fmt.Errorf("seen cache: %w", err)
		}
		g.seen = c
	}
	return g, nil
}

// matchStored consults the cache, then the store.
func (g *Gate) matchStored(ctx context.Context, id int64) (bool, error) {
	if g.seen != nil && g.seen.Contains(id) {
		return true, nil
	}
	ok, err := g.store.MatchExists(ctx, id)
	if err != nil {
		return false, fmt.Errorf("%w: match %d exists: %v", ErrPersistenceWrite, id, err)
	}
	if ok {
		g.remember(id)
	}
	return ok, nil
}

func (g *Gate) remember(id int64) {
	if g.seen != nil {
		g.seen.Add(id, struct{}{})
	}
}

// PersistMatch inserts m unless a match with the same ExternalID is stored.
// It returns false, nil for an existing match.
func (g *Gate) PersistMatch(ctx context.Context, m model.Match) (bool, error) {
	if m.ExternalID <= 0 {
		return false, fmt.Errorf("%w: match without external id", model.ErrMalformedRecord)
	}
	stored, err := g.matchStored(ctx, m.ExternalID)
	if err != nil {
		return false, err
	}
	if stored {
		return false, nil
	}

	inserted, err := g.store.InsertMatch(ctx, m)
	if err != nil {
		return false, fmt.Errorf("%w: insert match %d: %v", ErrPersistenceWrite, m.ExternalID, err)
	}
	g.remember(m.ExternalID)
	if inserted {
		g.log.Debug(ctx, "match stored",
			logger.Int64("match_id", m.ExternalID),
			logger.Int("competition_id", m.CompetitionID),
			logger.Int("season", m.Season))
	}
	return inserted, nil
}

// PersistPlayerStat inserts p unless (match, player) is stored.
// It fails with ErrOrphanStat when the match is not stored.
func (g *Gate) PersistPlayerStat(ctx context.Context, p model.PlayerStat) (bool, error) {
	n, err := g.PersistPlayerStats(ctx, []model.PlayerStat{p})
	return n == 1, err
}

// PersistPlayerStats inserts the new rows of stats and returns how many were new.
// If any row references a match that is not stored, nothing is written.
func (g *Gate) PersistPlayerStats(ctx context.Context, stats []model.PlayerStat) (int, error) {
	if len(stats) == 0 {
		return 0, nil
	}

	checked := make(map[int64]struct{}, 1)
	for _, p := range stats {
		if p.PlayerID <= 0 {
			return 0, fmt.Errorf("%w: player stat without player id", model.ErrMalformedRecord)
		}
		if _, ok := checked[p.MatchExternalID]; ok {
			continue
		}
		stored, err := g.matchStored(ctx, p.MatchExternalID)
		if err != nil {
			return 0, err
		}
		if !stored {
			return 0, fmt.Errorf("%w: match %d", ErrOrphanStat, p.MatchExternalID)
		}
		checked[p.MatchExternalID] = struct{}{}
	}

	n, err := g.store.InsertPlayerStats(ctx, stats)
	if err != nil {
		return 0, fmt.Errorf("%w: insert player stats: %v", ErrPersistenceWrite, err)
	}
	return n, nil
}

// PersistMatchWithStats stores m and then its statistics in one call, so the
// stats cannot be orphaned. Stats with a zero MatchExternalID are bound to m;
// a stat for any other match fails with ErrOrphanStat before anything is written.
func (g *Gate) PersistMatchWithStats(ctx context.Context, m model.Match, stats []model.PlayerStat) (bool, int, error) {
	bound := make([]model.PlayerStat, len(stats))
	for i, p := range stats {
		if p.MatchExternalID == 0 {
			p.MatchExternalID = m.ExternalID
		}
		if p.MatchExternalID != m.ExternalID {
			return false, 0, fmt.Errorf("%w: stat for match %d stored with match %d", ErrOrphanStat, p.MatchExternalID, m.ExternalID)
		}
		if p.PlayerID <= 0 {
			return false, 0, fmt.Errorf("%w: player stat without player id", model.ErrMalformedRecord)
		}
		bound[i] = p
	}

	inserted, err := g.PersistMatch(ctx, m)
	if err != nil {
		return false, 0, err
	}
	n, err := g.PersistPlayerStats(ctx, bound)
	return inserted, n, err
}

// HasPlayerStats reports whether statistics for matchID are already stored.
func (g *Gate) HasPlayerStats(ctx context.Context, matchID int64) (bool, error) {
	ok, err := g.store.PlayerStatsExist(ctx, matchID)
	if err != nil {
		return false, fmt.Errorf("%w: player stats exist %d: %v", ErrPersistenceWrite, matchID, err)
	}
	return ok, nil
}

// CacheLen returns the number of match ids held in the seen-cache.
func (g *Gate) CacheLen() int {
	if g.seen == nil {
		return 0
	}
	return g.seen.Len()
}
