package filter

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/okian/harvester/internal/domain/model"
)

// Roster is the set of teams of a reference league for one season.
type Roster struct {
	country string
	ids     map[int64]struct{}
	names   map[string]struct{}
	aliases map[string]string
}

// NewRoster builds a roster from stored teams. Aliases map a normalized
// upstream name to the name the reference league uses.
func NewRoster(country string, teams []model.Team, aliases map[string]string) *Roster {
	r := &Roster{
		country: country,
		ids:     make(map[int64]struct{}, len(teams)),
		names:   make(map[string]struct{}, len(teams)),
		aliases: make(map[string]string, len(aliases)),
	}
	for _, t := range teams {
		if t.ID > 0 {
			r.ids[t.ID] = struct{}{}
		}
		if n := NormalizeName(t.Name); n != "" {
			r.names[n] = struct{}{}
		}
	}
	for k, v := range aliases {
		r.aliases[NormalizeName(k)] = NormalizeName(v)
	}
	return r
}

// Empty is true for a nil roster or one without teams.
func (r *Roster) Empty() bool {
	return r == nil || (len(r.ids) == 0 && len(r.names) == 0)
}

// Country of the reference league.
func (r *Roster) Country() string {
	if r == nil {
		return ""
	}
	return r.country
}

// Len returns the number of distinct team names.
func (r *Roster) Len() int {
	if r == nil {
		return 0
	}
	return len(r.names)
}

// Contains matches by id first, then by normalized name or alias.
func (r *Roster) Contains(t model.Team) bool {
	if r.Empty() {
		return false
	}
	if t.ID > 0 {
		if _, ok := r.ids[t.ID]; ok {
			return true
		}
	}
	n := NormalizeName(t.Name)
	if n == "" {
		return false
	}
	if _, ok := r.names[n]; ok {
		return true
	}
	if alias, ok := r.aliases[n]; ok {
		_, ok = r.names[alias]
		return ok
	}
	return false
}

// ContainsAny reports whether either team belongs to the roster.
func (r *Roster) ContainsAny(teams ...model.Team) bool {
	for _, t := range teams {
		if r.Contains(t) {
			return true
		}
	}
	return false
}

// NormalizeName strips accents, lower-cases and drops spaces and hyphens,
// so "Atlético-MG" and "atletico mg" compare equal.
func NormalizeName(name string) string {
	if name == "" {
		return ""
	}
	t := transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)))
	stripped, _, err := transform.String(t, name)
	if err != nil {
		stripped = name
	}
	stripped = strings.ToLower(stripped)
	return strings.NewReplacer("-", "", " ", "").Replace(stripped)
}
