package harvest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/okian/harvester/pkg/logger"
	"github.com/okian/harvester/pkg/metrics"
)

// RetryPolicy bounds retries of transient fetch failures.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// DefaultRetryPolicy tries three times with delays from 500ms up to 10s.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 3, BaseDelay: 500 * time.Millisecond, MaxDelay: 10 * time.Second}
}

func (p RetryPolicy) backOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.BaseDelay
	b.MaxInterval = p.MaxDelay
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// fetch runs call under the quota and retry policy. Every attempt consumes
// one request. It returns the number of attempts made.
func fetch[T any](ctx context.Context, r *run, endpoint string, call func(context.Context) (T, error)) (T, int, error) {
	var zero T
	bo := r.h.retry.backOff()

	for attempt := 1; ; attempt++ {
		granted, _, err := r.h.quota.TryConsume(ctx, 1)
		if err != nil {
			return zero, attempt - 1, fmt.Errorf("%w: %v", ErrQuotaStorage, err)
		}
		if !granted {
			return zero, attempt - 1, ErrQuotaExhausted
		}
		r.report.RequestsUsed++

		start := r.h.now()
		v, err := call(ctx)
		latency := float64(r.h.now().Sub(start).Milliseconds())
		if err == nil {
			metrics.RecordUpstreamRequest(endpoint, "ok", latency)
			return v, attempt, nil
		}

		switch {
		case errors.Is(err, ErrQuotaExhausted):
			metrics.RecordUpstreamRequest(endpoint, "quota", latency)
			return zero, attempt, err
		case errors.Is(err, ErrPermanentFetch):
			metrics.RecordUpstreamRequest(endpoint, "permanent", latency)
			return zero, attempt, err
		case ctx.Err() != nil:
			return zero, attempt, ctx.Err()
		}
		metrics.RecordUpstreamRequest(endpoint, "transient", latency)

		if attempt >= r.h.retry.MaxAttempts {
			if !errors.Is(err, ErrTransientFetch) {
				err = fmt.Errorf("%w: %v", ErrTransientFetch, err)
			}
			return zero, attempt, err
		}

		delay := bo.NextBackOff()
		if delay == backoff.Stop {
			delay = r.h.retry.MaxDelay
		}
		metrics.RecordUpstreamRetry()
		r.log.Warn(ctx, "upstream request failed, retrying",
			logger.String("endpoint", endpoint),
			logger.Int("attempt", attempt),
			logger.Duration("delay", delay),
			logger.Error(err))
		if err := r.h.sleep(ctx, delay); err != nil {
			return zero, attempt, err
		}
	}
}
