package scheduler

import (
	"time"

	"github.com/okian/harvester/pkg/logger"
)

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithLocation sets the zone cron expressions are evaluated in.
func WithLocation(loc *time.Location) Option {
	return func(s *Scheduler) {
		if loc != nil {
			s.loc = loc
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(l logger.Logger) Option {
	return func(s *Scheduler) {
		if l != nil {
			s.log = l
		}
	}
}

// WithSubmitTimeout bounds how long a tick may wait to enqueue.
func WithSubmitTimeout(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.submitTimeout = d
		}
	}
}
