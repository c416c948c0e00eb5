package model

import "time"

// QuotaState is the persisted request budget for one calendar day.
type QuotaState struct {
	Date         string `json:"date"`
	RequestsUsed int    `json:"requests_used"`
	DailyLimit   int    `json:"daily_limit"`
}

// Remaining never goes below zero.
func (q QuotaState) Remaining() int {
	if r := q.DailyLimit - q.RequestsUsed; r > 0 {
		return r
	}
	return 0
}

// HarvestCursor is the resume position of one competition.
// Season and Page name the next unit to fetch.
type HarvestCursor struct {
	HarvesterID   string    `json:"harvester_id"`
	CompetitionID int       `json:"competition_id"`
	Season        int       `json:"season"`
	Page          int       `json:"page"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// UnitKind distinguishes page fetches from per-match stat fetches.
type UnitKind string

// Unit kinds.
const (
	UnitMatches     UnitKind = "matches"
	UnitPlayerStats UnitKind = "player_stats"
)

// PendingReason explains why a unit is waiting for replay.
type PendingReason string

// Pending reasons.
const (
	ReasonFetchFailed PendingReason = "fetch_failed"
	ReasonDeferred    PendingReason = "deferred"
	// ReasonNotFinished parks the statistics of a match that had not ended
	// when it was stored.
	ReasonNotFinished PendingReason = "not_finished"
)

// PendingUnit is work a run could not finish and a later run should replay.
type PendingUnit struct {
	ID              int64         `json:"id"`
	HarvesterID     string        `json:"harvester_id"`
	Kind            UnitKind      `json:"kind"`
	CompetitionID   int           `json:"competition_id"`
	Season          int           `json:"season"`
	Page            int           `json:"page,omitempty"`
	MatchExternalID int64         `json:"match_external_id,omitempty"`
	Reason          PendingReason `json:"reason"`
	Attempts        int           `json:"attempts"`
	LastError       string        `json:"last_error,omitempty"`
	CreatedAt       time.Time     `json:"created_at"`
}

// HarvestRun is the persisted summary of a finished run.
type HarvestRun struct {
	ID              string    `json:"id"`
	HarvesterID     string    `json:"harvester_id"`
	Status          RunStatus `json:"status"`
	StartedAt       time.Time `json:"started_at"`
	FinishedAt      time.Time `json:"finished_at"`
	MatchesInserted int       `json:"matches_inserted"`
	StatsInserted   int       `json:"stats_inserted"`
	RequestsUsed    int       `json:"requests_used"`
	Errors          int       `json:"errors"`
}
