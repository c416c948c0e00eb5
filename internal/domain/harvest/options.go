package harvest

import (
	"context"
	"time"

	"github.com/okian/harvester/pkg/logger"
)

// Option configures a Harvester.
type Option func(*Harvester)

// WithHarvesterID keys cursors and pending units.
func WithHarvesterID(id string) Option {
	return func(h *Harvester) {
		if id != "" {
			h.id = id
		}
	}
}

// WithTeamAliases sets the name aliases used for roster membership.
func WithTeamAliases(aliases map[string]string) Option {
	return func(h *Harvester) {
		h.aliases = aliases
	}
}

// WithRetryPolicy sets the transient failure retry policy.
func WithRetryPolicy(p RetryPolicy) Option {
	return func(h *Harvester) {
		if p.MaxAttempts > 0 {
			h.retry = p
		}
	}
}

// WithMaxPendingAttempts caps how often a pending unit is replayed.
func WithMaxPendingAttempts(n int) Option {
	return func(h *Harvester) {
		h.maxPendingAttempts = n
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(h *Harvester) {
		if now != nil {
			h.now = now
		}
	}
}

// WithSleep replaces the context-aware sleep used between retries.
func WithSleep(sleep func(context.Context, time.Duration) error) Option {
	return func(h *Harvester) {
		if sleep != nil {
			h.sleep = sleep
		}
	}
}

// WithIDGenerator replaces the run id generator.
func WithIDGenerator(gen func() string) Option {
	return func(h *Harvester) {
		if gen != nil {
			h.newID = gen
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(h *Harvester) {
		if l != nil {
			h.log = l
		}
	}
}
