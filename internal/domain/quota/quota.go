// Package quota tracks the daily upstream request budget.
//
// The budget is persisted per calendar day, so a new day starts from zero
// without an explicit reset and a restart never forgets what was spent.
package quota

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/okian/harvester/internal/domain/model"
	"github.com/okian/harvester/pkg/logger"
	"github.com/okian/harvester/pkg/metrics"
)

// DateLayout formats the calendar day a QuotaState belongs to.
const DateLayout = "2006-01-02"

// Store persists one QuotaState per day.
type Store interface {
	// GetQuota returns the state for date; an unknown date has zero usage.
	GetQuota(ctx context.Context, date string, limit int) (model.QuotaState, error)

	// ConsumeQuota adds n to date's usage iff the result stays within limit.
	// The check and the write are atomic.
	ConsumeQuota(ctx context.Context, date string, n, limit int) (model.QuotaState, bool, error)

	// ResetQuota sets date's usage to zero.
	ResetQuota(ctx context.Context, date string, limit int) error
}

// Tracker grants requests against the daily limit.
type Tracker struct {
	mu    sync.Mutex
	store Store
	limit int
	loc   *time.Location
	now   func() time.Time
	log   logger.Logger

	// last is the most recently persisted state.
	last model.QuotaState
}

// New creates a Tracker for dailyLimit requests per day.
func New(store Store, dailyLimit int, opts ...Option) (*Tracker, error) {
	if store == nil {
		return nil, ErrNilStore
	}
	if dailyLimit <= 0 {
		return nil, fmt.Errorf("%w: daily limit %d", ErrInvalidAmount, dailyLimit)
	}
	t := &Tracker{
		store: store,
		limit: dailyLimit,
		loc:   time.UTC,
		now:   time.Now,
		log:   logger.Nop(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t, nil
}

// today is the calendar day in the tracker's zone; a changed day is the rollover.
func (t *Tracker) today() string {
	return t.now().In(t.loc).Format(DateLayout)
}

// TryConsume asks for n requests. It grants all of them or none.
// A storage failure returns an error and never grants.
func (t *Tracker) TryConsume(ctx context.Context, n int) (bool, int, error) {
	if n <= 0 {
		return false, 0, fmt.Errorf("%w: %d", ErrInvalidAmount, n)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	date := t.today()
	if t.last.Date != "" && t.last.Date != date {
		t.log.Info(ctx, "quota day rolled over", logger.String("from", t.last.Date), logger.String("to", date))
	}

	st, granted, err := t.store.ConsumeQuota(ctx, date, n, t.limit)
	if err != nil {
		metrics.RecordErrorByComponent("quota", "storage")
		return false, t.last.Remaining(), fmt.Errorf("%w: %v", ErrStorage, err)
	}
	t.last = st
	metrics.UpdateQuota(st.RequestsUsed, st.Remaining())

	if !granted {
		metrics.RecordQuotaDenied()
		t.log.Debug(ctx, "quota denied",
			logger.String("date", date),
			logger.Int("requested", n),
			logger.Int("used", st.RequestsUsed),
			logger.Int("limit", st.DailyLimit))
	}
	return granted, st.Remaining(), nil
}

// Remaining returns today's unspent requests.
func (t *Tracker) Remaining(ctx context.Context) (int, error) {
	st, err := t.State(ctx)
	if err != nil {
		return 0, err
	}
	return st.Remaining(), nil
}

// State returns today's persisted state.
func (t *Tracker) State(ctx context.Context) (model.QuotaState, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	st, err := t.store.GetQuota(ctx, t.today(), t.limit)
	if err != nil {
		return model.QuotaState{}, fmt.Errorf("%w: %v", ErrStorage, err)
	}
	t.last = st
	metrics.UpdateQuota(st.RequestsUsed, st.Remaining())
	return st, nil
}

// Reset sets today's usage back to zero.
func (t *Tracker) Reset(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	date := t.today()
	if err := t.store.ResetQuota(ctx, date, t.limit); err != nil {
		return fmt.Errorf("%w: %v", ErrStorage, err)
	}
	t.last = model.QuotaState{Date: date, DailyLimit: t.limit}
	metrics.UpdateQuota(0, t.limit)
	t.log.Warn(ctx, "quota reset by operator", logger.String("date", date))
	return nil
}

// Limit returns the configured daily limit.
func (t *Tracker) Limit() int { return t.limit }
