// Package filter decides which fetched matches a competition keeps.
package filter

import (
	"strings"

	"github.com/okian/harvester/internal/domain/model"
)

// Decision is the outcome of evaluating one candidate match.
type Decision int

const (
	// Reject drops the match.
	Reject Decision = iota
	// Admit keeps the match.
	Admit
	// Defer postpones the decision until the reference roster is known.
	Defer
)

func (d Decision) String() string {
	switch d {
	case Admit:
		return "admit"
	case Defer:
		return "defer"
	default:
		return "reject"
	}
}

// Candidate is the part of a match the rules look at.
type Candidate struct {
	Phase int
	Home  model.Team
	Away  model.Team
}

// CandidateOf builds a Candidate from a raw fixture using the default phase table.
func CandidateOf(m model.RawMatch) Candidate {
	return Candidate{Phase: PhaseOf(m.Round), Home: m.Home(), Away: m.Away()}
}

// Filter applies the admission rule of a competition's kind. The zero value is ready to use.
type Filter struct{}

// Evaluate returns Admit, Reject or Defer for c under comp's rule.
// Cup and continental rules need roster; a nil or empty roster defers them.
func (Filter) Evaluate(comp model.CompetitionConfig, c Candidate, roster *Roster) Decision {
	switch comp.Kind {
	case model.KindLeagueAll:
		return Admit

	case model.KindCupFromPhase:
		if c.Phase < comp.MinPhase {
			return Reject
		}
		if roster.Empty() {
			return Defer
		}
		if roster.ContainsAny(c.Home, c.Away) {
			return Admit
		}
		return Reject

	case model.KindContinentalBrazilianOnly:
		if roster.Empty() {
			return Defer
		}
		if !strings.EqualFold(roster.Country(), comp.Country) {
			return Reject
		}
		if roster.ContainsAny(c.Home, c.Away) {
			return Admit
		}
		return Reject

	default:
		return Reject
	}
}

// Admit reports whether Evaluate admits c.
func (f Filter) Admit(comp model.CompetitionConfig, c Candidate, roster *Roster) bool {
	return f.Evaluate(comp, c, roster) == Admit
}
