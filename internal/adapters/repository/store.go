// Package repository persists matches, player statistics and harvester state.
//
// Two implementations share the Store contract: SQLiteStore for the service
// and MemStore for tests and throwaway runs.
package repository

import (
	"context"
	"time"

	"github.com/okian/harvester/internal/domain/model"
)

// MatchFilter narrows ListMatches. Zero fields match everything.
type MatchFilter struct {
	Season        int
	CompetitionID int
	Limit         int
}

// Counts summarises stored rows.
type Counts struct {
	Matches      int `json:"matches"`
	PlayerStats  int `json:"player_stats"`
	PendingUnits int `json:"pending_units"`
	Runs         int `json:"runs"`
}

// Store is the full persistence surface used by the service.
type Store interface {
	// MatchExists reports whether a match with id is stored.
	MatchExists(ctx context.Context, id int64) (bool, error)
	// GetMatch returns the stored match with id.
	GetMatch(ctx context.Context, id int64) (model.Match, bool, error)
	// InsertMatch stores m unless its id exists; existing rows are never touched.
	InsertMatch(ctx context.Context, m model.Match) (bool, error)
	// PlayerStatsExist reports whether any statistics are stored for matchID.
	PlayerStatsExist(ctx context.Context, matchID int64) (bool, error)
	// InsertPlayerStats stores rows whose (match, player) key is new, in one transaction.
	InsertPlayerStats(ctx context.Context, stats []model.PlayerStat) (int, error)
	// ListMatches returns matches newest first.
	ListMatches(ctx context.Context, f MatchFilter) ([]model.Match, error)
	// SeasonTeams returns the distinct teams of a competition's stored season.
	SeasonTeams(ctx context.Context, competitionID, season int) ([]model.Team, error)

	GetQuota(ctx context.Context, date string, limit int) (model.QuotaState, error)
	ConsumeQuota(ctx context.Context, date string, n, limit int) (model.QuotaState, bool, error)
	ResetQuota(ctx context.Context, date string, limit int) error

	GetCursor(ctx context.Context, harvesterID string, competitionID int) (model.HarvestCursor, bool, error)
	SaveCursor(ctx context.Context, c model.HarvestCursor) error
	ListCursors(ctx context.Context, harvesterID string) ([]model.HarvestCursor, error)
	// DeleteCursors removes one competition's cursor, or all when competitionID is 0.
	DeleteCursors(ctx context.Context, harvesterID string, competitionID int) (int, error)

	// AddPending records u, or bumps Attempts when the same unit is already pending.
	AddPending(ctx context.Context, u model.PendingUnit) error
	// ListPending returns units with fewer than maxAttempts attempts, oldest first.
	ListPending(ctx context.Context, harvesterID string, maxAttempts int) ([]model.PendingUnit, error)
	DeletePending(ctx context.Context, id int64) error

	SaveRun(ctx context.Context, run model.HarvestRun) error
	LastRun(ctx context.Context, harvesterID string) (model.HarvestRun, bool, error)

	// AcquireLock takes or renews a lease on name for owner.
	// It fails (false) while another owner holds an unexpired lease.
	AcquireLock(ctx context.Context, name, owner string, ttl time.Duration) (bool, error)
	ReleaseLock(ctx context.Context, name, owner string) error

	Counts(ctx context.Context, harvesterID string) (Counts, error)
	Close() error
}
