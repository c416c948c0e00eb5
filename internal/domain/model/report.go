package model

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidRequest marks a harvest request with an unusable season range.
var ErrInvalidRequest = errors.New("invalid harvest request")

// HarvestRequest parameterizes one run.
type HarvestRequest struct {
	StartSeason        int  `json:"start_season"`
	EndSeason          int  `json:"end_season"`
	IncludePlayerStats bool `json:"include_player_stats"`
}

// Validate checks the season range.
func (r HarvestRequest) Validate() error {
	if r.StartSeason <= 0 || r.EndSeason <= 0 {
		return fmt.Errorf("%w: seasons must be positive", ErrInvalidRequest)
	}
	if r.StartSeason > r.EndSeason {
		return fmt.Errorf("%w: start_season %d after end_season %d", ErrInvalidRequest, r.StartSeason, r.EndSeason)
	}
	return nil
}

// RunStatus tells why a run stopped.
type RunStatus string

// Run statuses.
const (
	StatusCompleted      RunStatus = "completed"
	StatusQuotaExhausted RunStatus = "quota_exhausted"
	StatusError          RunStatus = "error"
)

// UnitFailure describes a unit skipped after its fetch failed.
type UnitFailure struct {
	Kind            UnitKind `json:"kind"`
	CompetitionID   int      `json:"competition_id"`
	Season          int      `json:"season"`
	Page            int      `json:"page,omitempty"`
	MatchExternalID int64    `json:"match_external_id,omitempty"`
	Attempts        int      `json:"attempts"`
	Error           string   `json:"error"`
}

// CompetitionSeasonReport counts one competition season within a run.
type CompetitionSeasonReport struct {
	CompetitionID int    `json:"competition_id"`
	Competition   string `json:"competition"`
	Season        int    `json:"season"`
	Fetched       int    `json:"fetched"`
	Admitted      int    `json:"kept_after_filter"`
	Inserted      int    `json:"inserted"`
}

// HarvestReport is returned by every run, including failed ones.
type HarvestReport struct {
	RunID           string                    `json:"run_id"`
	Status          RunStatus                 `json:"status"`
	StartedAt       time.Time                 `json:"started_at"`
	FinishedAt      time.Time                 `json:"finished_at"`
	MatchesInserted int                       `json:"matches_inserted"`
	MatchesExisting int                       `json:"matches_existing"`
	StatsInserted   int                       `json:"stats_inserted"`
	StatsPending    int                       `json:"stats_pending"`
	SkippedFiltered int                       `json:"skipped_filtered"`
	Deferred        int                       `json:"deferred"`
	Malformed       int                       `json:"malformed"`
	Errors          int                       `json:"errors"`
	RequestsUsed    int                       `json:"requests_used"`
	QuotaRemaining  int                       `json:"quota_remaining"`
	QuotaExhausted  bool                      `json:"quota_exhausted"`
	Completed       bool                      `json:"completed"`
	Error           string                    `json:"error,omitempty"`
	Failures        []UnitFailure             `json:"failures"`
	Competitions    []CompetitionSeasonReport `json:"competitions"`
}

// Breakdown returns the entry for (competition, season), creating it on first use.
func (r *HarvestReport) Breakdown(comp CompetitionConfig, season int) *CompetitionSeasonReport {
	for i := range r.Competitions {
		c := &r.Competitions[i]
		if c.CompetitionID == comp.ID && c.Season == season {
			return c
		}
	}
	r.Competitions = append(r.Competitions, CompetitionSeasonReport{
		CompetitionID: comp.ID,
		Competition:   comp.Name,
		Season:        season,
	})
	return &r.Competitions[len(r.Competitions)-1]
}

// Run converts the report into its persisted summary.
func (r HarvestReport) Run(harvesterID string) HarvestRun {
	return HarvestRun{
		ID:              r.RunID,
		HarvesterID:     harvesterID,
		Status:          r.Status,
		StartedAt:       r.StartedAt,
		FinishedAt:      r.FinishedAt,
		MatchesInserted: r.MatchesInserted,
		StatsInserted:   r.StatsInserted,
		RequestsUsed:    r.RequestsUsed,
		Errors:          r.Errors,
	}
}

// Health is the read-only introspection snapshot.
type Health struct {
	Status             string          `json:"status"`
	QuotaRemaining     int             `json:"quota_remaining"`
	QuotaUsed          int             `json:"quota_used"`
	DailyLimit         int             `json:"daily_limit"`
	LastRunCompletedAt *time.Time      `json:"last_run_completed_at"`
	LastRunStatus      RunStatus       `json:"last_run_status,omitempty"`
	Running            bool            `json:"running"`
	PendingUnits       int             `json:"pending_units"`
	CursorPosition     []HarvestCursor `json:"cursor_position"`
}

// Trigger names what started a run.
type Trigger string

// Triggers.
const (
	TriggerHTTP     Trigger = "http"
	TriggerSchedule Trigger = "schedule"
	TriggerCLI      Trigger = "cli"
)

// HarvestJob is a queued run request.
type HarvestJob struct {
	ID         string         `json:"id"`
	Request    HarvestRequest `json:"request"`
	Trigger    Trigger        `json:"trigger"`
	EnqueuedAt time.Time      `json:"enqueued_at"`
}
