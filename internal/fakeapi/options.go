package fakeapi

import (
	"time"

	"github.com/okian/harvester/pkg/logger"
)

type options struct {
	pageSize   int
	dailyLimit int
	apiKey     string
	failEvery  int
	now        func() time.Time
	log        logger.Logger
}

func defaultOptions() options {
	return options{
		pageSize: 20,
		now:      time.Now,
		log:      logger.Nop(),
	}
}

// Option configures a Server.
type Option func(*options)

// WithPageSize sets fixtures per page.
func WithPageSize(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.pageSize = n
		}
	}
}

// WithDailyLimit answers with the upstream's daily-limit error after n requests; zero is unlimited.
func WithDailyLimit(n int) Option {
	return func(o *options) { o.dailyLimit = n }
}

// WithAPIKey requires the x-rapidapi-key header to equal key.
func WithAPIKey(key string) Option {
	return func(o *options) { o.apiKey = key }
}

// WithFailEvery answers every nth request with 503.
func WithFailEvery(n int) Option {
	return func(o *options) { o.failEvery = n }
}

// WithClock sets the clock deciding which fixtures are finished.
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
