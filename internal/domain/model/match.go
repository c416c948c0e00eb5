// Package model contains domain models passed between layers.
package model

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ErrMalformedRecord marks upstream data missing a required field.
var ErrMalformedRecord = errors.New("malformed upstream record")

// Match is a stored fixture. Rows are keyed by ExternalID and never updated.
type Match struct {
	ExternalID    int64     `json:"external_id"`
	CompetitionID int       `json:"competition_id"`
	Competition   string    `json:"competition"`
	Season        int       `json:"season"`
	Round         string    `json:"round"`
	Phase         int       `json:"phase"`
	HomeTeamID    int64     `json:"home_team_id"`
	HomeTeamName  string    `json:"home_team"`
	AwayTeamID    int64     `json:"away_team_id"`
	AwayTeamName  string    `json:"away_team"`
	Date          time.Time `json:"date"`
	Venue         string    `json:"venue,omitempty"`
	VenueCity     string    `json:"venue_city,omitempty"`
	HomeGoals     *int      `json:"home_goals"`
	AwayGoals     *int      `json:"away_goals"`
	HomeXG        *float64  `json:"home_xg,omitempty"`
	AwayXG        *float64  `json:"away_xg,omitempty"`
	Status        string    `json:"status"`
	HarvestedAt   time.Time `json:"harvested_at"`
}

// PlayerStat is one player's line for one match, keyed by (MatchExternalID, PlayerID).
type PlayerStat struct {
	MatchExternalID int64    `json:"match_external_id"`
	PlayerID        int64    `json:"player_id"`
	PlayerName      string   `json:"player_name"`
	TeamID          int64    `json:"team_id"`
	TeamName        string   `json:"team_name"`
	MinutesPlayed   int      `json:"minutes_played"`
	Goals           int      `json:"goals"`
	Assists         int      `json:"assists"`
	YellowCards     int      `json:"yellow_cards"`
	RedCards        int      `json:"red_cards"`
	Rating          *float64 `json:"rating"`
}

// Team identifies a club as the upstream reports it.
type Team struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// RawMatch is a fixture as decoded from the upstream, before validation.
type RawMatch struct {
	ExternalID   int64
	Date         string
	Round        string
	Venue        string
	VenueCity    string
	HomeTeamID   int64
	HomeTeamName string
	AwayTeamID   int64
	AwayTeamName string
	HomeGoals    *int
	AwayGoals    *int
	HomeXG       *float64
	AwayXG       *float64
	Status       string
}

// Home returns the home side.
func (r RawMatch) Home() Team { return Team{ID: r.HomeTeamID, Name: r.HomeTeamName} }

// Away returns the away side.
func (r RawMatch) Away() Team { return Team{ID: r.AwayTeamID, Name: r.AwayTeamName} }

// ToMatch validates the record and builds a Match for the given competition and season.
// Phase is left to the caller, which knows the competition's phase table.
func (r RawMatch) ToMatch(comp CompetitionConfig, season int, harvestedAt time.Time) (Match, error) {
	if r.ExternalID <= 0 {
		return Match{}, fmt.Errorf("%w: fixture id missing", ErrMalformedRecord)
	}
	if r.HomeTeamID <= 0 && r.HomeTeamName == "" {
		return Match{}, fmt.Errorf("%w: fixture %d has no home team", ErrMalformedRecord, r.ExternalID)
	}
	if r.AwayTeamID <= 0 && r.AwayTeamName == "" {
		return Match{}, fmt.Errorf("%w: fixture %d has no away team", ErrMalformedRecord, r.ExternalID)
	}
	date, err := time.Parse(time.RFC3339, r.Date)
	if err != nil {
		return Match{}, fmt.Errorf("%w: fixture %d date %q", ErrMalformedRecord, r.ExternalID, r.Date)
	}

	return Match{
		ExternalID:    r.ExternalID,
		CompetitionID: comp.ID,
		Competition:   comp.Name,
		Season:        season,
		Round:         r.Round,
		HomeTeamID:    r.HomeTeamID,
		HomeTeamName:  r.HomeTeamName,
		AwayTeamID:    r.AwayTeamID,
		AwayTeamName:  r.AwayTeamName,
		Date:          date.UTC(),
		Venue:         r.Venue,
		VenueCity:     r.VenueCity,
		HomeGoals:     r.HomeGoals,
		AwayGoals:     r.AwayGoals,
		HomeXG:        r.HomeXG,
		AwayXG:        r.AwayXG,
		Status:        r.Status,
		HarvestedAt:   harvestedAt.UTC(),
	}, nil
}

// RawPlayerStat is a player's statistics block as decoded from the upstream.
type RawPlayerStat struct {
	PlayerID    int64
	PlayerName  string
	TeamID      int64
	TeamName    string
	Minutes     *int
	Goals       *int
	Assists     *int
	YellowCards *int
	RedCards    *int
	Rating      string
}

// ToPlayerStat validates the record and attaches it to matchID.
func (r RawPlayerStat) ToPlayerStat(matchID int64) (PlayerStat, error) {
	if r.PlayerID <= 0 {
		return PlayerStat{}, fmt.Errorf("%w: player id missing in fixture %d", ErrMalformedRecord, matchID)
	}
	if r.TeamID <= 0 && r.TeamName == "" {
		return PlayerStat{}, fmt.Errorf("%w: player %d has no team", ErrMalformedRecord, r.PlayerID)
	}

	p := PlayerStat{
		MatchExternalID: matchID,
		PlayerID:        r.PlayerID,
		PlayerName:      r.PlayerName,
		TeamID:          r.TeamID,
		TeamName:        r.TeamName,
		MinutesPlayed:   deref(r.Minutes),
		Goals:           deref(r.Goals),
		Assists:         deref(r.Assists),
		YellowCards:     deref(r.YellowCards),
		RedCards:        deref(r.RedCards),
	}
	if s := strings.TrimSpace(r.Rating); s != "" {
		if v, err := strconv.ParseFloat(s, 64); err == nil {
			p.Rating = &v
		}
	}
	return p, nil
}

func deref(v *int) int {
	if v == nil {
		return 0
	}
	return *v
}
