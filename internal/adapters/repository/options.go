package repository

import (
	"time"

	"github.com/okian/harvester/pkg/logger"
)

// Option configures a store.
type Option func(*options)

type options struct {
	now      func() time.Time
	log      logger.Logger
	maxLimit int
}

func defaultOptions() options {
	return options{
		now:      time.Now,
		log:      logger.Nop(),
		maxLimit: 500,
	}
}

// WithClock sets the clock used for lock leases and timestamps.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.log = l
		}
	}
}

// WithMaxListLimit caps how many matches ListMatches returns at once.
func WithMaxListLimit(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.maxLimit = n
		}
	}
}
