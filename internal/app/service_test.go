package service_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/harvester/internal/adapters/mq/queue"
	"github.com/okian/harvester/internal/adapters/repository"
	service "github.com/okian/harvester/internal/app"
	"github.com/okian/harvester/internal/config"
	"github.com/okian/harvester/internal/domain/harvest"
	"github.com/okian/harvester/internal/domain/model"
	"github.com/okian/harvester/pkg/logger"
)

func init() {
	if err := logger.Init(); err != nil {
		panic(err)
	}
}

// stubSource serves one page of two finished fixtures per season.
// When gate is set, FetchMatches signals entered and waits on gate.
type stubSource struct {
	mu      sync.Mutex
	calls   int
	gate    chan struct{}
	entered chan struct{}
}

func (s *stubSource) FetchMatches(ctx context.Context, comp, season, page int) ([]model.RawMatch, bool, error) {
	s.mu.Lock()
	s.calls++
	gate, entered := s.gate, s.entered
	s.mu.Unlock()
	if gate != nil {
		select {
		case entered <- struct{}{}:
		default:
		}
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, false, ctx.Err()
		}
	}
	base := int64(season*100 + comp)
	return []model.RawMatch{
		{ExternalID: base*10 + 1, Date: "2023-05-01T19:00:00+00:00", Round: "Regular Season - 1",
			HomeTeamID: 1, HomeTeamName: "Palmeiras", AwayTeamID: 2, AwayTeamName: "Santos", Status: "FT"},
		{ExternalID: base*10 + 2, Date: "2023-05-02T19:00:00+00:00", Round: "Regular Season - 1",
			HomeTeamID: 3, HomeTeamName: "Flamengo", AwayTeamID: 4, AwayTeamName: "Botafogo", Status: "FT"},
	}, false, nil
}

func (s *stubSource) FetchPlayerStats(context.Context, int64) ([]model.RawPlayerStat, error) {
	return nil, nil
}

func (s *stubSource) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func testConfig() *config.Config {
	cfg := config.New()
	cfg.Competitions = []model.CompetitionConfig{{ID: 71, Name: "Série A", Kind: model.KindLeagueAll, Country: "Brazil"}}
	cfg.DefaultStartSeason = 2022
	cfg.DefaultEndSeason = 2023
	cfg.IncludePlayerStats = false
	cfg.DailyLimit = 10
	cfg.QueueSize = 1
	return cfg
}

func newService(cfg *config.Config, store *repository.MemStore, src *stubSource) *service.Service {
	svc, err := service.New(context.Background(), cfg,
		service.WithStore(store),
		service.WithSource(src),
		service.WithLogger(logger.Nop()))
	So(err, ShouldBeNil)
	return svc
}

func TestService_New(t *testing.T) {
	Convey("Given an invalid config", t, func() {
		cfg := testConfig()
		cfg.DailyLimit = 0

		Convey("Then New fails with ErrInvalidConfig", func() {
			_, err := service.New(context.Background(), cfg, service.WithStore(repository.NewMemStore()))
			So(errors.Is(err, config.ErrInvalidConfig), ShouldBeTrue)
		})
	})

	Convey("Given a config with a bad schedule", t, func() {
		cfg := testConfig()
		cfg.Schedule = "every day"

		Convey("Then New fails", func() {
			_, err := service.New(context.Background(), cfg,
				service.WithStore(repository.NewMemStore()), service.WithSource(&stubSource{}))
			So(err, ShouldNotBeNil)
		})
	})
}

func TestService_Harvest(t *testing.T) {
	Convey("Given a service over an in-memory store", t, func() {
		ctx := context.Background()
		store := repository.NewMemStore()
		src := &stubSource{}
		svc := newService(testConfig(), store, src)

		Convey("A synchronous harvest completes and is recorded", func() {
			rep, err := svc.Harvest(ctx, svc.Defaults())
			So(err, ShouldBeNil)
			So(rep.Status, ShouldEqual, model.StatusCompleted)
			So(rep.Completed, ShouldBeTrue)
			So(rep.MatchesInserted, ShouldEqual, 4)
			So(rep.RequestsUsed, ShouldEqual, 2)

			h, err := svc.Health(ctx)
			So(err, ShouldBeNil)
			So(h.Status, ShouldEqual, "ok")
			So(h.QuotaUsed, ShouldEqual, 2)
			So(h.QuotaRemaining, ShouldEqual, 8)
			So(h.DailyLimit, ShouldEqual, 10)
			So(h.LastRunCompletedAt, ShouldNotBeNil)
			So(h.LastRunStatus, ShouldEqual, model.StatusCompleted)
			So(h.Running, ShouldBeFalse)
			So(h.CursorPosition, ShouldHaveLength, 1)

			matches, err := svc.Matches(ctx, 2023, 10)
			So(err, ShouldBeNil)
			So(matches, ShouldHaveLength, 2)

			stats := svc.GetStats()
			So(stats["matches"], ShouldEqual, 4)
			So(stats["runs"], ShouldEqual, 1)
		})

		Convey("Health makes no upstream calls", func() {
			_, err := svc.Health(ctx)
			So(err, ShouldBeNil)
			So(src.Calls(), ShouldEqual, 0)
		})

		Convey("An invalid request is rejected before locking", func() {
			_, err := svc.Harvest(ctx, model.HarvestRequest{StartSeason: 2024, EndSeason: 2020})
			So(errors.Is(err, model.ErrInvalidRequest), ShouldBeTrue)
			h, _ := svc.Health(ctx)
			So(h.LastRunCompletedAt, ShouldBeNil)
		})

		Convey("Cursor and quota resets", func() {
			_, err := svc.Harvest(ctx, svc.Defaults())
			So(err, ShouldBeNil)

			n, err := svc.ResetCursors(ctx, 0)
			So(err, ShouldBeNil)
			So(n, ShouldEqual, 1)
			cursors, err := svc.Cursors(ctx)
			So(err, ShouldBeNil)
			So(cursors, ShouldBeEmpty)

			So(svc.ResetQuota(ctx), ShouldBeNil)
			q, err := svc.Quota(ctx)
			So(err, ShouldBeNil)
			So(q.RequestsUsed, ShouldEqual, 0)

			// A fresh walk re-fetches but stores nothing twice.
			rep, err := svc.Harvest(ctx, svc.Defaults())
			So(err, ShouldBeNil)
			So(rep.MatchesInserted, ShouldEqual, 0)
			So(rep.MatchesExisting, ShouldEqual, 4)
		})
	})
}

func TestService_Serialization(t *testing.T) {
	Convey("Given a run blocked inside the upstream", t, func() {
		ctx := context.Background()
		store := repository.NewMemStore()
		src := &stubSource{gate: make(chan struct{}), entered: make(chan struct{}, 1)}
		svc := newService(testConfig(), store, src)

		done := make(chan error, 1)
		go func() {
			_, err := svc.Harvest(ctx, svc.Defaults())
			done <- err
		}()
		<-src.entered

		Convey("A second run in the same process is busy", func() {
			_, err := svc.Harvest(ctx, svc.Defaults())
			So(errors.Is(err, harvest.ErrBusy), ShouldBeTrue)

			h, err := svc.Health(ctx)
			So(err, ShouldBeNil)
			So(h.Running, ShouldBeTrue)

			_, err = svc.ResetCursors(ctx, 71)
			So(errors.Is(err, harvest.ErrBusy), ShouldBeTrue)
		})

		Convey("A second process sharing the store is busy", func() {
			other := newService(testConfig(), store, &stubSource{})
			_, err := other.Harvest(ctx, other.Defaults())
			So(errors.Is(err, harvest.ErrBusy), ShouldBeTrue)
		})

		Reset(func() {
			close(src.gate)
			So(<-done, ShouldBeNil)
		})
	})
}

func TestService_Queue(t *testing.T) {
	Convey("Given a service that is not started", t, func() {
		ctx := context.Background()
		svc := newService(testConfig(), repository.NewMemStore(), &stubSource{})

		Convey("Submissions beyond the queue size are rejected", func() {
			_, err := svc.Submit(ctx, svc.Defaults(), model.TriggerHTTP)
			So(err, ShouldBeNil)
			_, err = svc.Submit(ctx, svc.Defaults(), model.TriggerHTTP)
			So(errors.Is(err, queue.ErrFull), ShouldBeTrue)
		})

		Convey("Invalid submissions are rejected", func() {
			_, err := svc.Submit(ctx, model.HarvestRequest{}, model.TriggerHTTP)
			So(errors.Is(err, model.ErrInvalidRequest), ShouldBeTrue)
		})

		Convey("After Stop the queue is closed", func() {
			So(svc.Stop(ctx), ShouldBeNil)
			_, err := svc.Submit(ctx, svc.Defaults(), model.TriggerHTTP)
			So(errors.Is(err, queue.ErrClosed), ShouldBeTrue)
		})
	})

	Convey("Given a started service", t, func() {
		ctx := context.Background()
		svc := newService(testConfig(), repository.NewMemStore(), &stubSource{})
		So(svc.Start(ctx), ShouldBeNil)
		So(svc.Start(ctx), ShouldBeNil)

		Convey("A queued run is executed by the worker", func() {
			job, err := svc.Submit(ctx, svc.Defaults(), model.TriggerSchedule)
			So(err, ShouldBeNil)
			So(job.ID, ShouldNotBeEmpty)
			So(job.Trigger, ShouldEqual, model.TriggerSchedule)

			var h model.Health
			deadline := time.Now().Add(5 * time.Second)
			for time.Now().Before(deadline) {
				h, err = svc.Health(ctx)
				So(err, ShouldBeNil)
				if h.LastRunCompletedAt != nil {
					break
				}
				time.Sleep(10 * time.Millisecond)
			}
			So(h.LastRunStatus, ShouldEqual, model.StatusCompleted)
			So(svc.GetStats()["started"], ShouldEqual, true)
		})

		Reset(func() {
			So(svc.Stop(ctx), ShouldBeNil)
			So(svc.GetStats()["started"], ShouldEqual, false)
		})
	})
}
