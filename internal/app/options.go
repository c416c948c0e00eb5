package service

import (
	"context"
	"time"

	"github.com/okian/harvester/internal/adapters/repository"
	"github.com/okian/harvester/internal/domain/harvest"
	"github.com/okian/harvester/pkg/logger"
)

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithStore uses store instead of opening the configured SQLite file.
// The service closes it on Stop.
func WithStore(store repository.Store) Option {
	return func(s *Service) {
		if store != nil {
			s.store = store
		}
	}
}

// WithSource replaces the API-Football client.
func WithSource(src harvest.MatchSource) Option {
	return func(s *Service) {
		if src != nil {
			s.source = src
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithClock replaces time.Now for quota days, runs and leases.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithSleep replaces the retry delay, mostly for tests.
func WithSleep(sleep func(context.Context, time.Duration) error) Option {
	return func(s *Service) {
		if sleep != nil {
			s.sleep = sleep
		}
	}
}
