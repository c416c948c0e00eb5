package worker_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	queue "github.com/okian/harvester/internal/adapters/mq/queue"
	worker "github.com/okian/harvester/internal/adapters/mq/worker"
	model "github.com/okian/harvester/internal/domain/model"
	logging "github.com/okian/harvester/pkg/logger"
	"github.com/smartystreets/goconvey/convey"
)

type mockRunner struct {
	mu       sync.Mutex
	ran      []string
	errs     map[string]error
	delay    time.Duration
	active   int
	maxSeen  int
	deadline bool
}

func newMockRunner() *mockRunner {
	return &mockRunner{errs: map[string]error{}}
}

func (m *mockRunner) RunJob(ctx context.Context, job queue.Job) (model.HarvestReport, error) { //nolint:gocritic // mirrors Runner
	m.mu.Lock()
	m.active++
	if m.active > m.maxSeen {
		m.maxSeen = m.active
	}
	_, m.deadline = ctx.Deadline()
	m.mu.Unlock()

	if m.delay > 0 {
		time.Sleep(m.delay)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.active--
	m.ran = append(m.ran, job.ID)
	rep := model.HarvestReport{RunID: "run-" + job.ID, Status: model.StatusCompleted}
	if err := m.errs[job.ID]; err != nil {
		rep.Status = model.StatusError
		return rep, err
	}
	return rep, nil
}

func (m *mockRunner) snapshot() ([]string, int, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.ran...), m.maxSeen, m.deadline
}

func job(id string) queue.Job {
	return queue.Job{ID: id, Trigger: model.TriggerSchedule, EnqueuedAt: time.Now()}
}

func waitFor(n int, r *mockRunner) []string {
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		ran, _, _ := r.snapshot()
		if len(ran) >= n {
			return ran
		}
		time.Sleep(5 * time.Millisecond)
	}
	ran, _, _ := r.snapshot()
	return ran
}

func TestInMemoryWorker(t *testing.T) {
	convey.Convey("Given a worker reading from a queue", t, func() {
		_ = logging.Init()

		q := queue.NewInMemoryQueue(queue.WithCapacity(4))
		runner := newMockRunner()

		convey.Convey("When creating a worker with options", func() {
			w := worker.NewInMemoryWorker(q, runner, worker.WithName("harvest"), worker.WithJobTimeout(time.Minute))

			convey.Convey("Then it should be created successfully", func() {
				convey.So(w, convey.ShouldNotBeNil)
			})
		})

		convey.Convey("When jobs are queued", func() {
			runner.delay = 10 * time.Millisecond
			w := worker.NewInMemoryWorker(q, runner)
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			go w.Run(ctx)

			for _, id := range []string{"a", "b", "c"} {
				convey.So(q.Enqueue(ctx, job(id)), convey.ShouldBeNil)
			}
			ran := waitFor(3, runner)

			convey.Convey("Then they run in order, one at a time", func() {
				convey.So(ran, convey.ShouldResemble, []string{"a", "b", "c"})
				_, maxSeen, deadline := runner.snapshot()
				convey.So(maxSeen, convey.ShouldEqual, 1)
				convey.So(deadline, convey.ShouldBeFalse)
			})

			convey.Convey("And shutdown is graceful", func() {
				shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), time.Second)
				defer shutdownCancel()
				convey.So(w.Shutdown(shutdownCtx), convey.ShouldBeNil)
				convey.So(w.Shutdown(shutdownCtx), convey.ShouldBeNil)
			})
		})

		convey.Convey("When a job fails", func() {
			runner.errs["bad"] = errors.New("persistence write failed")
			w := worker.NewInMemoryWorker(q, runner)
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			go w.Run(ctx)

			convey.So(q.Enqueue(ctx, job("bad")), convey.ShouldBeNil)
			convey.So(q.Enqueue(ctx, job("good")), convey.ShouldBeNil)

			convey.Convey("Then the worker keeps consuming", func() {
				convey.So(waitFor(2, runner), convey.ShouldResemble, []string{"bad", "good"})
			})
		})

		convey.Convey("When a job timeout is set", func() {
			w := worker.NewInMemoryWorker(q, runner, worker.WithJobTimeout(time.Minute))
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			go w.Run(ctx)

			convey.So(q.Enqueue(ctx, job("a")), convey.ShouldBeNil)
			waitFor(1, runner)

			convey.Convey("Then the run context carries a deadline", func() {
				_, _, deadline := runner.snapshot()
				convey.So(deadline, convey.ShouldBeTrue)
			})
		})

		convey.Convey("When the queue is closed", func() {
			w := worker.NewInMemoryWorker(q, runner)
			done := make(chan struct{})
			go func() {
				w.Run(context.Background())
				close(done)
			}()
			convey.So(q.Close(), convey.ShouldBeNil)

			convey.Convey("Then Run returns", func() {
				select {
				case <-done:
					convey.So(true, convey.ShouldBeTrue)
				case <-time.After(time.Second):
					convey.So("worker still running", convey.ShouldBeEmpty)
				}
			})
		})

		convey.Convey("When shutdown times out", func() {
			w := worker.NewInMemoryWorker(q, runner)
			ctx, cancel := context.WithCancel(context.Background())
			cancel()

			convey.Convey("Then Shutdown reports the timeout", func() {
				err := w.Shutdown(ctx)
				convey.So(errors.Is(err, context.Canceled), convey.ShouldBeTrue)
			})
		})
	})
}
