// Package service composes the harvester, its storage and its triggers into
// the application the HTTP API and CLI drive.
package service

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/okian/harvester/internal/adapters/apifootball"
	"github.com/okian/harvester/internal/adapters/mq/queue"
	"github.com/okian/harvester/internal/adapters/mq/worker"
	"github.com/okian/harvester/internal/adapters/repository"
	"github.com/okian/harvester/internal/adapters/scheduler"
	"github.com/okian/harvester/internal/config"
	"github.com/okian/harvester/internal/domain/dedupe"
	"github.com/okian/harvester/internal/domain/harvest"
	"github.com/okian/harvester/internal/domain/model"
	"github.com/okian/harvester/internal/domain/quota"
	"github.com/okian/harvester/pkg/logger"
	"github.com/okian/harvester/pkg/metrics"
)

const shutdownTimeout = 30 * time.Second

// Service runs harvests one at a time and answers read-only queries.
type Service struct {
	mu sync.RWMutex

	cfg *config.Config

	// Core components
	store     repository.Store
	source    harvest.MatchSource
	quota     *quota.Tracker
	gate      *dedupe.Gate
	harvester *harvest.Harvester
	queue     *queue.InMemoryQueue
	worker    *worker.InMemoryWorker
	scheduler *scheduler.Scheduler

	// runMu serializes runs in this process; the store lease covers other processes.
	runMu   sync.Mutex
	running atomic.Bool
	owner   string

	now   func() time.Time
	sleep func(context.Context, time.Duration) error

	// State
	started    bool
	startedAt  time.Time
	cancelWork context.CancelFunc

	// Logging
	logger logger.Logger
}

// New opens storage and builds every component. Nothing runs in the
// background until Start.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*Service, error) {
	if cfg == nil {
		cfg = config.New()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	s := &Service{
		cfg:    cfg,
		owner:  uuid.NewString(),
		now:    time.Now,
		logger: logger.Get().Named("service"),
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.store == nil {
		store, err := repository.NewSQLiteStore(ctx, cfg.DBPath,
			repository.WithClock(s.now),
			repository.WithMaxListLimit(cfg.MaxMatchesLimit),
			repository.WithLogger(s.logger.Named("store")))
		if err != nil {
			return nil, err
		}
		s.store = store
	}
	if err := s.build(); err != nil {
		_ = s.store.Close()
		return nil, err
	}
	return s, nil
}

func (s *Service) build() error {
	loc, err := s.cfg.Location()
	if err != nil {
		return err
	}

	s.quota, err = quota.New(s.store, s.cfg.DailyLimit,
		quota.WithLocation(loc),
		quota.WithClock(s.now),
		quota.WithLogger(s.logger.Named("quota")))
	if err != nil {
		return fmt.Errorf("quota: %w", err)
	}

	s.gate, err = dedupe.New(s.store,
		dedupe.WithCacheSize(s.cfg.DedupeCacheSize),
		dedupe.WithLogger(s.logger.Named("dedupe")))
	if err != nil {
		return fmt.Errorf("dedupe: %w", err)
	}

	if s.source == nil {
		s.source = apifootball.New(s.cfg.APIBaseURL,
			apifootball.WithAPIKey(s.cfg.APIKey),
			apifootball.WithHost(s.cfg.APIHost),
			apifootball.WithTimeout(s.cfg.HTTPTimeout()),
			apifootball.WithRequestsPerMinute(s.cfg.RequestsPerMinute),
			apifootball.WithLogger(s.logger.Named("apifootball")))
	}

	hopts := []harvest.Option{
		harvest.WithHarvesterID(s.cfg.HarvesterID),
		harvest.WithTeamAliases(s.cfg.TeamAliases),
		harvest.WithRetryPolicy(harvest.RetryPolicy{
			MaxAttempts: s.cfg.RetryMaxAttempts,
			BaseDelay:   time.Duration(s.cfg.RetryBaseDelayMS) * time.Millisecond,
			MaxDelay:    time.Duration(s.cfg.RetryMaxDelayMS) * time.Millisecond,
		}),
		harvest.WithMaxPendingAttempts(s.cfg.MaxPendingAttempts),
		harvest.WithClock(s.now),
		harvest.WithLogger(s.logger.Named("harvest")),
	}
	if s.sleep != nil {
		hopts = append(hopts, harvest.WithSleep(s.sleep))
	}
	s.harvester, err = harvest.New(s.source, s.quota, s.gate, s.store, s.cfg.Competitions, hopts...)
	if err != nil {
		return err
	}

	s.queue = queue.NewInMemoryQueue(queue.WithCapacity(s.cfg.QueueSize))
	s.worker = worker.NewInMemoryWorker(s.queue, s,
		worker.WithName("harvest-worker"),
		worker.WithLogger(s.logger))

	if s.cfg.Schedule != "" {
		s.scheduler, err = scheduler.New(s.cfg.Schedule, s, s.Defaults,
			scheduler.WithLocation(loc),
			scheduler.WithLogger(s.logger.Named("scheduler")))
		if err != nil {
			return err
		}
	}
	return nil
}

// Start launches the worker and, when configured, the scheduler.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	s.logger.Info(ctx, "starting harvester service...")

	workCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.cancelWork = cancel
	go s.worker.Run(workCtx)
	if s.scheduler != nil {
		s.scheduler.Start()
	}

	s.started = true
	s.startedAt = s.now()
	s.logger.Info(ctx, "harvester service started",
		logger.String("harvester_id", s.cfg.HarvesterID),
		logger.Int("daily_limit", s.cfg.DailyLimit),
		logger.Int("competitions", len(s.cfg.Competitions)),
		logger.String("schedule", s.cfg.Schedule))
	return nil
}

// Stop closes the queue, lets the worker finish its job, and closes storage.
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var errs []error
	if s.started {
		s.logger.Info(ctx, "stopping harvester service...")
		ctx, cancel := context.WithTimeout(ctx, shutdownTimeout)
		defer cancel()

		if s.scheduler != nil {
			errs = append(errs, s.scheduler.Stop(ctx))
		}
		errs = append(errs, s.queue.Close())
		if err := s.worker.Shutdown(ctx); err != nil {
			// Cancel the run in progress; its partial report is still saved.
			s.cancelWork()
			errs = append(errs, err)
		}
		s.cancelWork()
		s.started = false
	} else {
		errs = append(errs, s.queue.Close())
	}
	errs = append(errs, s.store.Close())
	s.logger.Info(ctx, "harvester service stopped")
	return errors.Join(errs...)
}

// Defaults is the request scheduled and parameterless runs use.
func (s *Service) Defaults() model.HarvestRequest {
	return model.HarvestRequest{
		StartSeason:        s.cfg.DefaultStartSeason,
		EndSeason:          s.cfg.DefaultEndSeason,
		IncludePlayerStats: s.cfg.IncludePlayerStats,
	}
}

// Harvest runs req now. It fails with harvest.ErrBusy while another run holds the lock.
func (s *Service) Harvest(ctx context.Context, req model.HarvestRequest) (model.HarvestReport, error) {
	return s.RunJob(ctx, model.HarvestJob{
		ID:         uuid.NewString(),
		Request:    req,
		Trigger:    model.TriggerHTTP,
		EnqueuedAt: s.now(),
	})
}

// Submit queues req for the worker.
func (s *Service) Submit(ctx context.Context, req model.HarvestRequest, trigger model.Trigger) (model.HarvestJob, error) {
	if err := req.Validate(); err != nil {
		return model.HarvestJob{}, err
	}
	job := model.HarvestJob{
		ID:         uuid.NewString(),
		Request:    req,
		Trigger:    trigger,
		EnqueuedAt: s.now(),
	}
	if err := s.queue.Enqueue(ctx, job); err != nil {
		return model.HarvestJob{}, err
	}
	s.logger.Info(ctx, "harvest queued",
		logger.String("job_id", job.ID),
		logger.String("trigger", string(trigger)),
		logger.Int("queued", s.queue.Len(ctx)))
	return job, nil
}

// RunJob executes job under the run lock and records the run.
func (s *Service) RunJob(ctx context.Context, job model.HarvestJob) (model.HarvestReport, error) {
	if err := job.Request.Validate(); err != nil {
		return model.HarvestReport{}, err
	}
	if !s.runMu.TryLock() {
		return model.HarvestReport{}, harvest.ErrBusy
	}
	defer s.runMu.Unlock()

	release, err := s.acquireLease(ctx)
	if err != nil {
		return model.HarvestReport{}, err
	}
	defer release()

	s.running.Store(true)
	defer s.running.Store(false)

	rep, runErr := s.harvester.Run(ctx, job.Request)
	if err := s.store.SaveRun(context.WithoutCancel(ctx), rep.Run(s.cfg.HarvesterID)); err != nil {
		s.logger.Error(ctx, "failed to record run", logger.String("run_id", rep.RunID), logger.Error(err))
	}
	return rep, runErr
}

func (s *Service) lockName() string {
	return "harvest:" + s.cfg.HarvesterID
}

// acquireLease takes the durable run lock and renews it until released.
func (s *Service) acquireLease(ctx context.Context) (func(), error) {
	ttl := s.cfg.LockTTL()
	if ttl <= 0 {
		ttl = time.Hour
	}
	ok, err := s.store.AcquireLock(ctx, s.lockName(), s.owner, ttl)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLock, err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: lease held by another process", harvest.ErrBusy)
	}

	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		t := time.NewTicker(ttl / 2)
		defer t.Stop()
		for {
			select {
			case <-stop:
				return
			case <-t.C:
				if _, err := s.store.AcquireLock(context.WithoutCancel(ctx), s.lockName(), s.owner, ttl); err != nil {
					s.logger.Warn(ctx, "failed to renew run lock", logger.Error(err))
				}
			}
		}
	}()

	return func() {
		close(stop)
		<-done
		if err := s.store.ReleaseLock(context.WithoutCancel(ctx), s.lockName(), s.owner); err != nil {
			s.logger.Warn(ctx, "failed to release run lock", logger.Error(err))
		}
	}, nil
}

// Health reads quota, last run, pending units and cursors. It makes no upstream calls.
func (s *Service) Health(ctx context.Context) (model.Health, error) {
	q, err := s.quota.State(ctx)
	if err != nil {
		return model.Health{}, err
	}
	h := model.Health{
		Status:         "ok",
		QuotaRemaining: q.Remaining(),
		QuotaUsed:      q.RequestsUsed,
		DailyLimit:     q.DailyLimit,
		Running:        s.running.Load(),
	}

	last, ok, err := s.store.LastRun(ctx, s.cfg.HarvesterID)
	if err != nil {
		return model.Health{}, err
	}
	if ok {
		finished := last.FinishedAt
		h.LastRunCompletedAt = &finished
		h.LastRunStatus = last.Status
	}

	pending, err := s.store.ListPending(ctx, s.cfg.HarvesterID, s.cfg.MaxPendingAttempts)
	if err != nil {
		return model.Health{}, err
	}
	h.PendingUnits = len(pending)

	if h.CursorPosition, err = s.store.ListCursors(ctx, s.cfg.HarvesterID); err != nil {
		return model.Health{}, err
	}
	if h.CursorPosition == nil {
		h.CursorPosition = []model.HarvestCursor{}
	}
	return h, nil
}

// Matches lists stored matches newest first.
func (s *Service) Matches(ctx context.Context, season, limit int) ([]model.Match, error) {
	if limit > s.cfg.MaxMatchesLimit {
		limit = s.cfg.MaxMatchesLimit
	}
	return s.store.ListMatches(ctx, repository.MatchFilter{Season: season, Limit: limit})
}

// Quota returns today's budget.
func (s *Service) Quota(ctx context.Context) (model.QuotaState, error) {
	return s.quota.State(ctx)
}

// ResetQuota zeroes today's usage.
func (s *Service) ResetQuota(ctx context.Context) error {
	return s.quota.Reset(ctx)
}

// Cursors returns the stored resume positions.
func (s *Service) Cursors(ctx context.Context) ([]model.HarvestCursor, error) {
	return s.store.ListCursors(ctx, s.cfg.HarvesterID)
}

// ResetCursors forgets one competition's position, or all when competitionID
// is 0, so the next run starts from the requested start season.
func (s *Service) ResetCursors(ctx context.Context, competitionID int) (int, error) {
	if s.running.Load() {
		return 0, harvest.ErrBusy
	}
	return s.store.DeleteCursors(ctx, s.cfg.HarvesterID, competitionID)
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx := context.Background()
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)
	goroutines := runtime.NumGoroutine()
	metrics.UpdateSystemMemoryUsage(mem.Alloc)
	metrics.UpdateSystemGoroutineCount(goroutines)

	stats := map[string]interface{}{
		"started":      s.started,
		"harvesterId":  s.cfg.HarvesterID,
		"running":      s.running.Load(),
		"queueLength":  s.queue.Len(ctx),
		"queueSize":    s.cfg.QueueSize,
		"dedupeCached": s.gate.CacheLen(),
		"goroutines":   goroutines,
		"heapBytes":    mem.Alloc,
	}
	if s.started {
		stats["uptimeSeconds"] = int64(s.now().Sub(s.startedAt).Seconds())
	}
	if s.scheduler != nil {
		fired, last := s.scheduler.Fired()
		stats["schedule"] = s.cfg.Schedule
		stats["scheduleNext"] = s.scheduler.Next()
		stats["scheduleFired"] = fired
		if !last.IsZero() {
			stats["scheduleLastFired"] = last
		}
	}
	if counts, err := s.store.Counts(ctx, s.cfg.HarvesterID); err == nil {
		stats["matches"] = counts.Matches
		stats["playerStats"] = counts.PlayerStats
		stats["pendingUnits"] = counts.PendingUnits
		stats["runs"] = counts.Runs
	}
	return stats
}

var (
	_ worker.Runner       = (*Service)(nil)
	_ scheduler.Submitter = (*Service)(nil)
)
