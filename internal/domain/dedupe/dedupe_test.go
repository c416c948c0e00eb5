package dedupe_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/okian/harvester/internal/adapters/repository"
	"github.com/okian/harvester/internal/domain/dedupe"
	"github.com/okian/harvester/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

// countingStore counts existence checks and can fail inserts.
type countingStore struct {
	*repository.MemStore
	existsCalls int
	failInsert  bool
}

func (s *countingStore) MatchExists(ctx context.Context, id int64) (bool, error) {
	s.existsCalls++
	return s.MemStore.MatchExists(ctx, id)
}

func (s *countingStore) InsertMatch(ctx context.Context, m model.Match) (bool, error) {
	if s.failInsert {
		return false, errors.New("database is locked")
	}
	return s.MemStore.InsertMatch(ctx, m)
}

func match(id int64) model.Match {
	return model.Match{
		ExternalID:    id,
		CompetitionID: 71,
		Season:        2023,
		HomeTeamName:  "Flamengo",
		AwayTeamName:  "Santos",
		Date:          time.Date(2023, 4, 15, 21, 0, 0, 0, time.UTC),
	}
}

func TestGate(t *testing.T) {
	Convey("Given a gate over an empty store", t, func() {
		ctx := context.Background()
		store := &countingStore{MemStore: repository.NewMemStore()}
		g, err := dedupe.New(store, dedupe.WithCacheSize(16))
		So(err, ShouldBeNil)

		Convey("When the same match is persisted twice", func() {
			first, err1 := g.PersistMatch(ctx, match(1))
			second, err2 := g.PersistMatch(ctx, match(1))

			Convey("Then exactly one row exists and the second call is a no-op", func() {
				So(err1, ShouldBeNil)
				So(err2, ShouldBeNil)
				So(first, ShouldBeTrue)
				So(second, ShouldBeFalse)
				counts, _ := store.Counts(ctx, "")
				So(counts.Matches, ShouldEqual, 1)
			})

			Convey("Then the second check is answered by the cache", func() {
				So(store.existsCalls, ShouldEqual, 1)
				So(g.CacheLen(), ShouldEqual, 1)
			})
		})

		Convey("When a match has no external id", func() {
			_, err := g.PersistMatch(ctx, match(0))
			So(errors.Is(err, model.ErrMalformedRecord), ShouldBeTrue)
		})

		Convey("When a stat references a match that is not stored", func() {
			inserted, err := g.PersistPlayerStat(ctx, model.PlayerStat{MatchExternalID: 42, PlayerID: 7})

			Convey("Then it fails with ErrOrphanStat and writes nothing", func() {
				So(inserted, ShouldBeFalse)
				So(errors.Is(err, dedupe.ErrOrphanStat), ShouldBeTrue)
				has, _ := g.HasPlayerStats(ctx, 42)
				So(has, ShouldBeFalse)
			})
		})

		Convey("When a batch mixes a stored and an unknown match", func() {
			_, _ = g.PersistMatch(ctx, match(1))
			n, err := g.PersistPlayerStats(ctx, []model.PlayerStat{
				{MatchExternalID: 1, PlayerID: 7},
				{MatchExternalID: 2, PlayerID: 8},
			})

			Convey("Then nothing from the batch is written", func() {
				So(n, ShouldEqual, 0)
				So(errors.Is(err, dedupe.ErrOrphanStat), ShouldBeTrue)
				has, _ := g.HasPlayerStats(ctx, 1)
				So(has, ShouldBeFalse)
			})
		})

		Convey("When stats for a stored match are persisted twice", func() {
			_, _ = g.PersistMatch(ctx, match(1))
			batch := []model.PlayerStat{
				{MatchExternalID: 1, PlayerID: 7, Goals: 1},
				{MatchExternalID: 1, PlayerID: 8, Assists: 1},
			}
			n1, err1 := g.PersistPlayerStats(ctx, batch)
			n2, err2 := g.PersistPlayerStats(ctx, batch)
			single, err3 := g.PersistPlayerStat(ctx, batch[0])

			Convey("Then the rows are stored once", func() {
				So(err1, ShouldBeNil)
				So(err2, ShouldBeNil)
				So(err3, ShouldBeNil)
				So(n1, ShouldEqual, 2)
				So(n2, ShouldEqual, 0)
				So(single, ShouldBeFalse)
				counts, _ := store.Counts(ctx, "")
				So(counts.PlayerStats, ShouldEqual, 2)
				has, _ := g.HasPlayerStats(ctx, 1)
				So(has, ShouldBeTrue)
			})
		})

		Convey("When a match and its stats are persisted together", func() {
			stats := []model.PlayerStat{{PlayerID: 7, PlayerName: "Pedro"}, {MatchExternalID: 5, PlayerID: 8}}
			inserted, n, err := g.PersistMatchWithStats(ctx, match(5), stats)

			Convey("Then the match is created before its stats", func() {
				So(err, ShouldBeNil)
				So(inserted, ShouldBeTrue)
				So(n, ShouldEqual, 2)
				has, _ := g.HasPlayerStats(ctx, 5)
				So(has, ShouldBeTrue)
			})

			Convey("And repeating the call writes nothing new", func() {
				inserted, n, err := g.PersistMatchWithStats(ctx, match(5), stats)
				So(err, ShouldBeNil)
				So(inserted, ShouldBeFalse)
				So(n, ShouldEqual, 0)
			})
		})

		Convey("When a stat in a combined call belongs to another match", func() {
			_, _, err := g.PersistMatchWithStats(ctx, match(6), []model.PlayerStat{{MatchExternalID: 99, PlayerID: 1}})

			Convey("Then it fails with ErrOrphanStat and not even the match is written", func() {
				So(errors.Is(err, dedupe.ErrOrphanStat), ShouldBeTrue)
				exists, _ := store.MatchExists(ctx, 6)
				So(exists, ShouldBeFalse)
			})
		})

		Convey("When the store fails to insert", func() {
			store.failInsert = true
			_, err := g.PersistMatch(ctx, match(3))

			Convey("Then the error is a persistence write failure", func() {
				So(errors.Is(err, dedupe.ErrPersistenceWrite), ShouldBeTrue)
			})
		})

		Convey("When the store is closed", func() {
			_ = store.Close()
			_, err := g.PersistMatch(ctx, match(4))
			So(errors.Is(err, dedupe.ErrPersistenceWrite), ShouldBeTrue)
		})
	})

	Convey("Given a gate without a cache", t, func() {
		ctx := context.Background()
		store := &countingStore{MemStore: repository.NewMemStore()}
		g, err := dedupe.New(store, dedupe.WithCacheSize(0))
		So(err, ShouldBeNil)

		_, _ = g.PersistMatch(ctx, match(1))
		_, _ = g.PersistMatch(ctx, match(1))

		So(store.existsCalls, ShouldEqual, 2)
		So(g.CacheLen(), ShouldEqual, 0)
	})

	Convey("Given no store", t, func() {
		_, err := dedupe.New(nil)
		So(err, ShouldEqual, dedupe.ErrNilStore)
	})
}
