package walker

import (
	"time"

	"github.com/okian/harvester/pkg/logger"
)

// Option configures a Walker.
type Option func(*Walker)

// WithClock sets the clock stamped on saved cursors.
func WithClock(now func() time.Time) Option {
	return func(w *Walker) {
		if now != nil {
			w.now = now
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(w *Walker) {
		if l != nil {
			w.log = l
		}
	}
}
