package queue

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/okian/harvester/internal/domain/model"
)

func job(id string) Job {
	return Job{
		ID:         id,
		Request:    model.HarvestRequest{StartSeason: 2023, EndSeason: 2024},
		Trigger:    model.TriggerHTTP,
		EnqueuedAt: time.Now(),
	}
}

func TestInMemoryQueue_EnqueueDequeue(t *testing.T) {
	q := NewInMemoryQueue(WithCapacity(2))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := q.Enqueue(ctx, job("a")); err != nil {
		t.Fatalf("expected enqueue to succeed, got %v", err)
	}
	if err := q.Enqueue(ctx, job("b")); err != nil {
		t.Fatalf("expected enqueue to succeed, got %v", err)
	}
	if l := q.Len(ctx); l != 2 {
		t.Errorf("expected length 2, got %d", l)
	}

	jobs := q.Dequeue(ctx)
	for _, want := range []string{"a", "b"} {
		select {
		case j := <-jobs:
			if j.ID != want {
				t.Errorf("expected job %s, got %s", want, j.ID)
			}
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for job %s", want)
		}
	}
}

func TestInMemoryQueue_Full(t *testing.T) {
	q := NewInMemoryQueue(WithCapacity(1))
	ctx := context.Background()

	if err := q.Enqueue(ctx, job("a")); err != nil {
		t.Fatalf("expected enqueue to succeed, got %v", err)
	}
	if err := q.Enqueue(ctx, job("b")); !errors.Is(err, ErrFull) {
		t.Errorf("expected ErrFull, got %v", err)
	}
}

func TestInMemoryQueue_DefaultCapacity(t *testing.T) {
	q := NewInMemoryQueue(WithCapacity(0))
	ctx := context.Background()

	for i := 0; i < defaultQueueCapacity; i++ {
		if err := q.Enqueue(ctx, job(fmt.Sprintf("job%d", i))); err != nil {
			t.Fatalf("enqueue %d: %v", i, err)
		}
	}
	if err := q.Enqueue(ctx, job("overflow")); !errors.Is(err, ErrFull) {
		t.Errorf("expected ErrFull past default capacity, got %v", err)
	}
}

func TestInMemoryQueue_CancelledContext(t *testing.T) {
	q := NewInMemoryQueue(WithCapacity(1))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// A cancelled context may still win the select when there is room; either
	// outcome leaves the queue consistent.
	err := q.Enqueue(ctx, job("a"))
	if err != nil && !errors.Is(err, context.Canceled) {
		t.Errorf("expected nil or context.Canceled, got %v", err)
	}
}

func TestInMemoryQueue_GracefulShutdown(t *testing.T) {
	q := NewInMemoryQueue(WithCapacity(10))
	ctx := context.Background()

	if err := q.Enqueue(ctx, job("a")); err != nil {
		t.Fatalf("expected enqueue to succeed, got %v", err)
	}

	if q.IsClosed() {
		t.Error("expected queue to be open initially")
	}
	if err := q.Close(); err != nil {
		t.Errorf("expected close to succeed, got error: %v", err)
	}
	if !q.IsClosed() {
		t.Error("expected queue to be closed after Close()")
	}
	if err := q.Enqueue(ctx, job("b")); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed after closing, got %v", err)
	}

	// Queued jobs drain before the channel closes.
	jobs := q.Dequeue(ctx)
	var got []string
	timeout := time.After(time.Second)
	for {
		select {
		case j, ok := <-jobs:
			if !ok {
				if len(got) != 1 || got[0] != "a" {
					t.Errorf("expected to drain [a], got %v", got)
				}
				if err := q.Close(); err != nil {
					t.Errorf("expected second close to succeed, got error: %v", err)
				}
				return
			}
			got = append(got, j.ID)
		case <-timeout:
			t.Fatal("expected dequeue channel to be closed within timeout")
		}
	}
}
