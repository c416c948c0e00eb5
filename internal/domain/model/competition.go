package model

import (
	"errors"
	"fmt"
)

// CompetitionKind selects the admission rule applied to a competition's matches.
type CompetitionKind string

// Competition kinds.
const (
	KindLeagueAll                CompetitionKind = "league_all"
	KindCupFromPhase             CompetitionKind = "cup_from_phase"
	KindContinentalBrazilianOnly CompetitionKind = "continental_brazilian_only"
)

var errInvalidCompetition = errors.New("invalid competition")

// CompetitionConfig is static per-competition configuration, immutable during a run.
type CompetitionConfig struct {
	ID   int             `koanf:"id" json:"id"`
	Name string          `koanf:"name" json:"name"`
	Kind CompetitionKind `koanf:"kind" json:"kind"`

	// MinPhase is the first admitted cup phase (1-based).
	MinPhase int `koanf:"min_phase" json:"min_phase,omitempty"`

	// Country of the reference league roster; continental matches need a club from it.
	Country string `koanf:"country" json:"country,omitempty"`

	// ReferenceLeague is the league whose harvested teams form the roster.
	ReferenceLeague int `koanf:"reference_league" json:"reference_league,omitempty"`

	// Seasons optionally restricts which seasons of a requested range are visited.
	Seasons []int `koanf:"seasons" json:"seasons,omitempty"`
}

// Validate checks the kind-specific fields.
func (c CompetitionConfig) Validate() error {
	if c.ID <= 0 {
		return fmt.Errorf("%w: id must be positive", errInvalidCompetition)
	}
	switch c.Kind {
	case KindLeagueAll:
		return nil
	case KindCupFromPhase:
		if c.MinPhase <= 0 {
			return fmt.Errorf("%w: %d: min_phase must be positive", errInvalidCompetition, c.ID)
		}
	case KindContinentalBrazilianOnly:
		if c.Country == "" {
			return fmt.Errorf("%w: %d: country is required", errInvalidCompetition, c.ID)
		}
	default:
		return fmt.Errorf("%w: %d: unknown kind %q", errInvalidCompetition, c.ID, c.Kind)
	}
	if c.ReferenceLeague == 0 {
		return fmt.Errorf("%w: %d: reference_league is required", errInvalidCompetition, c.ID)
	}
	if c.ReferenceLeague == c.ID {
		return fmt.Errorf("%w: %d: cannot reference itself", errInvalidCompetition, c.ID)
	}
	return nil
}

// Includes reports whether season is visited; an empty Seasons list allows all.
func (c CompetitionConfig) Includes(season int) bool {
	if len(c.Seasons) == 0 {
		return true
	}
	for _, s := range c.Seasons {
		if s == season {
			return true
		}
	}
	return false
}

// NextSeason returns the first visited season in [from, end], or false.
func (c CompetitionConfig) NextSeason(from, end int) (int, bool) {
	for s := from; s <= end; s++ {
		if c.Includes(s) {
			return s, true
		}
	}
	return 0, false
}
