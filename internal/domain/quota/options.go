package quota

import (
	"time"

	"github.com/okian/harvester/pkg/logger"
)

// Option configures a Tracker.
type Option func(*Tracker)

// WithLocation sets the zone whose midnight starts a new budget day.
func WithLocation(loc *time.Location) Option {
	return func(t *Tracker) {
		if loc != nil {
			t.loc = loc
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) {
		if now != nil {
			t.now = now
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(t *Tracker) {
		if l != nil {
			t.log = l
		}
	}
}
