// Package scheduler enqueues unattended harvest runs on a cron schedule.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/okian/harvester/internal/domain/model"
	"github.com/okian/harvester/pkg/logger"
	"github.com/okian/harvester/pkg/metrics"
)

// Submitter accepts a run request for asynchronous execution.
type Submitter interface {
	Submit(ctx context.Context, req model.HarvestRequest, trigger model.Trigger) (model.HarvestJob, error)
}

// Scheduler fires a harvest request on every tick of a cron expression.
// Ticks only enqueue; a tick that finds the queue full is dropped.
type Scheduler struct {
	spec      string
	submitter Submitter
	request   func() model.HarvestRequest

	cron          *cron.Cron
	entry         cron.EntryID
	loc           *time.Location
	submitTimeout time.Duration
	log           logger.Logger

	mu       sync.Mutex
	lastFire time.Time
	fired    int
}

// New parses spec (standard five fields or a descriptor such as @daily).
// request is evaluated on every tick.
func New(spec string, submitter Submitter, request func() model.HarvestRequest, opts ...Option) (*Scheduler, error) {
	if submitter == nil || request == nil {
		return nil, ErrNoSubmitter
	}
	s := &Scheduler{
		spec:          spec,
		submitter:     submitter,
		request:       request,
		loc:           time.UTC,
		submitTimeout: 5 * time.Second,
		log:           logger.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}

	if _, err := cron.ParseStandard(spec); err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrInvalidSpec, spec, err)
	}
	s.cron = cron.New(
		cron.WithLocation(s.loc),
		cron.WithLogger(cronLogger{log: s.log}),
		cron.WithChain(cron.SkipIfStillRunning(cronLogger{log: s.log})),
	)
	id, err := s.cron.AddFunc(spec, s.tick)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrInvalidSpec, spec, err)
	}
	s.entry = id
	return s, nil
}

// Start begins firing in the background.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.log.Info(context.Background(), "scheduler started",
		logger.String("spec", s.spec),
		logger.String("location", s.loc.String()),
		logger.Any("next", s.Next()))
}

// Stop halts the schedule and waits for a tick in progress, or ctx.
func (s *Scheduler) Stop(ctx context.Context) error {
	done := s.cron.Stop().Done()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("scheduler stop: %w", ctx.Err())
	}
}

// Next returns the next fire time, or the zero time before Start.
func (s *Scheduler) Next() time.Time {
	return s.cron.Entry(s.entry).Next
}

// Fired returns how many ticks ran and when the last one did.
func (s *Scheduler) Fired() (int, time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fired, s.lastFire
}

// Fire runs one tick immediately.
func (s *Scheduler) Fire(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.submitTimeout)
	defer cancel()

	s.mu.Lock()
	s.fired++
	s.lastFire = time.Now()
	s.mu.Unlock()

	job, err := s.submitter.Submit(ctx, s.request(), model.TriggerSchedule)
	if err != nil {
		metrics.RecordErrorByComponent("scheduler", "submit")
		s.log.Warn(ctx, "scheduled harvest not enqueued", logger.Error(err))
		return err
	}
	s.log.Info(ctx, "scheduled harvest enqueued", logger.String("job_id", job.ID))
	return nil
}

func (s *Scheduler) tick() {
	_ = s.Fire(context.Background())
}

// cronLogger adapts logger.Logger to cron.Logger.
type cronLogger struct {
	log logger.Logger
}

func (l cronLogger) fields(keysAndValues []any) []logger.Field {
	fields := make([]logger.Field, 0, len(keysAndValues)/2)
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		fields = append(fields, logger.Any(fmt.Sprint(keysAndValues[i]), keysAndValues[i+1]))
	}
	return fields
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.log.Debug(context.Background(), "cron: "+msg, l.fields(keysAndValues)...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.log.Error(context.Background(), "cron: "+msg, append(l.fields(keysAndValues), logger.Error(err))...)
}
