package dedupe

import "github.com/okian/harvester/pkg/logger"

// Option applies a configuration option to the Gate.
type Option func(*Gate)

// WithCacheSize sets how many stored match ids are remembered.
// If size <= 0 every check goes to the store.
func WithCacheSize(size int) Option {
	return func(g *Gate) {
		g.cacheSize = size
	}
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(g *Gate) {
		if l != nil {
			g.log = l
		}
	}
}
