// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - Provide New() to build a Config with defaults.
// - Load layers defaults, an optional YAML file and HARVESTER_* env vars.
// - Validation failures wrap ErrInvalidConfig.
package config

import (
	"fmt"
	"time"

	"github.com/okian/harvester/internal/domain/model"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// LogFormat selects text or json log lines.
	LogFormat string `koanf:"log_format"`

	// Addr configures the HTTP listen address, e.g. ":8080".
	Addr string `koanf:"addr"`

	// DBPath is the SQLite file holding matches, stats, quota and cursors.
	DBPath string `koanf:"db_path"`

	// HarvesterID keys the cursor, lock and quota records of this instance.
	HarvesterID string `koanf:"harvester_id"`

	// Upstream API-Football settings.
	APIBaseURL        string `koanf:"api_base_url"`
	APIHost           string `koanf:"api_host"`
	APIKey            string `koanf:"api_key"`
	RequestsPerMinute int    `koanf:"requests_per_minute"`
	HTTPTimeoutMS     int    `koanf:"http_timeout_ms"`

	// DailyLimit is the upstream request budget per calendar day.
	DailyLimit int `koanf:"daily_limit"`

	// QuotaTimezone names the zone whose midnight resets the budget.
	QuotaTimezone string `koanf:"quota_timezone"`

	// Retry policy for transient upstream failures.
	RetryMaxAttempts int `koanf:"retry_max_attempts"`
	RetryBaseDelayMS int `koanf:"retry_base_delay_ms"`
	RetryMaxDelayMS  int `koanf:"retry_max_delay_ms"`

	// Defaults for runs triggered without explicit parameters.
	DefaultStartSeason int  `koanf:"default_start_season"`
	DefaultEndSeason   int  `koanf:"default_end_season"`
	IncludePlayerStats bool `koanf:"include_player_stats"`

	// Schedule is a cron expression for unattended runs; empty disables it.
	Schedule string `koanf:"schedule"`

	// LockTTLSeconds bounds how long a crashed run can hold the advisory lock.
	LockTTLSeconds int `koanf:"lock_ttl_seconds"`

	// QueueSize bounds queued (async) harvest requests.
	QueueSize int `koanf:"queue_size"`

	// DedupeCacheSize sets the size of the seen-match cache in front of the store.
	DedupeCacheSize int `koanf:"dedupe_cache_size"`

	// MaxPendingAttempts caps how often a failed or deferred unit is replayed.
	MaxPendingAttempts int `koanf:"max_pending_attempts"`

	// MaxMatchesLimit caps GET /data/matches?limit.
	MaxMatchesLimit int `koanf:"max_matches_limit"`

	// Competitions are walked in the listed order.
	Competitions []model.CompetitionConfig `koanf:"competitions"`

	// TeamAliases maps normalized upstream names to roster names.
	TeamAliases map[string]string `koanf:"team_aliases"`
}

// New creates a Config populated with defaults.
func New() *Config {
	return &Config{
		LogLevel:           "info",
		LogFormat:          "text",
		Addr:               ":9080",
		DBPath:             "futebol_data.db",
		HarvesterID:        "default",
		APIBaseURL:         "https://v3.football.api-sports.io",
		APIHost:            "v3.football.api-sports.io",
		RequestsPerMinute:  10,
		HTTPTimeoutMS:      30_000,
		DailyLimit:         100,
		QuotaTimezone:      "UTC",
		RetryMaxAttempts:   3,
		RetryBaseDelayMS:   500,
		RetryMaxDelayMS:    10_000,
		DefaultStartSeason: 2018,
		DefaultEndSeason:   2025,
		IncludePlayerStats: true,
		LockTTLSeconds:     3600,
		QueueSize:          4,
		DedupeCacheSize:    50_000,
		MaxPendingAttempts: 5,
		MaxMatchesLimit:    500,
		Competitions:       DefaultCompetitions(),
		TeamAliases: map[string]string{
			"atleticopr":         "athletico pr",
			"atleticoparanaense": "athletico pr",
			"atleticomg":         "atletico mg",
			"americamg":          "america mg",
			"bragantino":         "red bull bragantino",
		},
	}
}

// DefaultCompetitions returns Série A, Copa do Brasil and Libertadores.
func DefaultCompetitions() []model.CompetitionConfig {
	return []model.CompetitionConfig{
		{ID: 71, Name: "Série A", Kind: model.KindLeagueAll, Country: "Brazil"},
		{ID: 75, Name: "Copa do Brasil", Kind: model.KindCupFromPhase, MinPhase: 3, ReferenceLeague: 71},
		{ID: 13, Name: "Libertadores", Kind: model.KindContinentalBrazilianOnly, Country: "Brazil", ReferenceLeague: 71},
	}
}

// HTTPTimeout returns the upstream timeout as a duration.
func (c *Config) HTTPTimeout() time.Duration {
	return time.Duration(c.HTTPTimeoutMS) * time.Millisecond
}

// LockTTL returns the advisory lock lease as a duration.
func (c *Config) LockTTL() time.Duration {
	return time.Duration(c.LockTTLSeconds) * time.Second
}

// Location resolves QuotaTimezone.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.QuotaTimezone)
	if err != nil {
		return nil, fmt.Errorf("%w: quota_timezone %q: %v", ErrInvalidConfig, c.QuotaTimezone, err)
	}
	return loc, nil
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	switch {
	case c.Addr == "":
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	case c.DBPath == "":
		return fmt.Errorf("%w: db_path must not be empty", ErrInvalidConfig)
	case c.HarvesterID == "":
		return fmt.Errorf("%w: harvester_id must not be empty", ErrInvalidConfig)
	case c.DailyLimit <= 0:
		return fmt.Errorf("%w: daily_limit must be positive", ErrInvalidConfig)
	case c.RetryMaxAttempts <= 0:
		return fmt.Errorf("%w: retry_max_attempts must be positive", ErrInvalidConfig)
	case c.DefaultStartSeason > c.DefaultEndSeason:
		return fmt.Errorf("%w: default_start_season after default_end_season", ErrInvalidConfig)
	case len(c.Competitions) == 0:
		return fmt.Errorf("%w: at least one competition is required", ErrInvalidConfig)
	}
	if _, err := c.Location(); err != nil {
		return err
	}

	seen := make(map[int]struct{}, len(c.Competitions))
	for _, comp := range c.Competitions {
		if err := comp.Validate(); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
		}
		if _, dup := seen[comp.ID]; dup {
			return fmt.Errorf("%w: competition %d listed twice", ErrInvalidConfig, comp.ID)
		}
		seen[comp.ID] = struct{}{}
	}
	for _, comp := range c.Competitions {
		if comp.ReferenceLeague == 0 {
			continue
		}
		if _, ok := seen[comp.ReferenceLeague]; !ok {
			return fmt.Errorf("%w: competition %d references unknown league %d", ErrInvalidConfig, comp.ID, comp.ReferenceLeague)
		}
	}
	return nil
}
