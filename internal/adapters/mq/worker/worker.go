// Package worker runs queued harvest jobs one at a time.
package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/okian/harvester/internal/adapters/mq/queue"
	"github.com/okian/harvester/internal/domain/model"
	"github.com/okian/harvester/pkg/logger"
	"github.com/okian/harvester/pkg/metrics"
)

// Job abstracts what the worker reads off the queue.
type Job = queue.Job

// Runner executes a harvest job.
type Runner interface {
	RunJob(ctx context.Context, job Job) (model.HarvestReport, error)
}

// Queue defines how the worker receives jobs.
type Queue interface {
	Dequeue(ctx context.Context) <-chan Job
}

// Worker consumes jobs until stopped.
type Worker interface {
	// Run starts the worker loop until ctx is canceled.
	Run(ctx context.Context)

	// Shutdown stops the worker after the job in progress, if any.
	Shutdown(ctx context.Context) error
}

// InMemoryWorker is the single consumer of the harvest queue. Running one
// job at a time keeps harvests from overlapping.
type InMemoryWorker struct {
	queue      Queue
	runner     Runner
	name       string
	jobTimeout time.Duration

	shutdown chan struct{}
	done     chan struct{}

	logger logger.Logger
}

// NewInMemoryWorker creates a new worker with configuration options.
func NewInMemoryWorker(q Queue, runner Runner, opts ...Option) *InMemoryWorker {
	w := &InMemoryWorker{
		queue:    q,
		runner:   runner,
		name:     "worker",
		shutdown: make(chan struct{}),
		done:     make(chan struct{}),
		logger:   logger.Get().Named("worker"),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.name != "worker" {
		w.logger = w.logger.Named(w.name)
	}
	return w
}

// Run starts the worker loop.
func (w *InMemoryWorker) Run(ctx context.Context) {
	defer close(w.done)

	jobs := w.queue.Dequeue(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.shutdown:
			return
		case job, ok := <-jobs:
			if !ok {
				return
			}
			if err := w.process(ctx, job); err != nil {
				w.logger.Error(ctx, "harvest job failed",
					logger.String("job_id", job.ID),
					logger.Error(err))
			}
		}
	}
}

// Shutdown gracefully stops the worker.
func (w *InMemoryWorker) Shutdown(ctx context.Context) error {
	select {
	case <-w.shutdown:
	default:
		close(w.shutdown)
	}

	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		w.logger.Warn(ctx, "shutdown timed out")
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}

func (w *InMemoryWorker) process(ctx context.Context, job Job) error { //nolint:gocritic // hugeParam: Job is passed by value for channel semantics
	if w.jobTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.jobTimeout)
		defer cancel()
	}

	w.logger.Info(ctx, "harvest job started",
		logger.String("job_id", job.ID),
		logger.String("trigger", string(job.Trigger)),
		logger.Duration("queued_for", time.Since(job.EnqueuedAt)))

	rep, err := w.runner.RunJob(ctx, job)
	if err != nil {
		kind := "run_error"
		if errors.Is(err, context.DeadlineExceeded) {
			kind = "timeout"
		}
		metrics.RecordErrorByComponent("worker", kind)
		return fmt.Errorf("run %s: %w", rep.RunID, err)
	}

	w.logger.Info(ctx, "harvest job done",
		logger.String("job_id", job.ID),
		logger.String("run_id", rep.RunID),
		logger.String("status", string(rep.Status)),
		logger.Int("matches_inserted", rep.MatchesInserted))
	return nil
}
