package apifootball

import (
	"strconv"
	"strings"

	jsoniter "github.com/json-iterator/go"

	"github.com/okian/harvester/internal/domain/model"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary //nolint:gochecknoglobals // shared codec

// Envelope is the wrapper every API-Football v3 response uses.
type Envelope[T any] struct {
	Get        string              `json:"get"`
	Parameters map[string]any      `json:"parameters"`
	Errors     jsoniter.RawMessage `json:"errors"`
	Results    int                 `json:"results"`
	Paging     Paging              `json:"paging"`
	Response   []T                 `json:"response"`
}

// Paging reports the current and last page.
type Paging struct {
	Current int `json:"current"`
	Total   int `json:"total"`
}

// HasMore reports whether pages after Current exist.
func (p Paging) HasMore() bool { return p.Current > 0 && p.Current < p.Total }

// errorMap decodes the errors field, which is an empty list on success and
// an object keyed by error kind otherwise.
func errorMap(raw jsoniter.RawMessage) map[string]string {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" || strings.HasPrefix(trimmed, "[") {
		var list []string
		if json.Unmarshal(raw, &list) == nil && len(list) > 0 {
			return map[string]string{"error": strings.Join(list, "; ")}
		}
		return nil
	}
	out := map[string]string{}
	var generic map[string]any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return map[string]string{"error": trimmed}
	}
	for k, v := range generic {
		switch t := v.(type) {
		case string:
			out[k] = t
		default:
			b, _ := json.Marshal(t)
			out[k] = string(b)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// Fixture is one element of GET /fixtures.
type Fixture struct {
	Fixture FixtureInfo `json:"fixture"`
	League  LeagueInfo  `json:"league"`
	Teams   Teams       `json:"teams"`
	Goals   Goals       `json:"goals"`
}

// FixtureInfo identifies and schedules a fixture.
type FixtureInfo struct {
	ID     int64  `json:"id"`
	Date   string `json:"date"`
	Venue  Venue  `json:"venue"`
	Status Status `json:"status"`
}

// Status of a fixture, e.g. NS, FT, AET, PEN.
type Status struct {
	Long  string `json:"long,omitempty"`
	Short string `json:"short"`
}

// Venue of a fixture.
type Venue struct {
	Name string `json:"name"`
	City string `json:"city"`
}

// LeagueInfo places a fixture in a league season.
type LeagueInfo struct {
	ID     int    `json:"id"`
	Name   string `json:"name,omitempty"`
	Season int    `json:"season"`
	Round  string `json:"round"`
}

// Teams of a fixture.
type Teams struct {
	Home Side `json:"home"`
	Away Side `json:"away"`
}

// Goals scored; nil until the fixture has started.
type Goals struct {
	Home *int `json:"home"`
	Away *int `json:"away"`
}

// Side is a team inside a fixture. Statistics is present only on some plans.
type Side struct {
	ID         int64               `json:"id"`
	Name       string              `json:"name"`
	Statistics jsoniter.RawMessage `json:"statistics,omitempty"`
}

// xG reads expected goals from the side's statistics object, when present.
func (s Side) xG() *float64 {
	if len(s.Statistics) == 0 {
		return nil
	}
	var stats map[string]any
	if json.Unmarshal(s.Statistics, &stats) != nil {
		return nil
	}
	return toFloat(stats["xG"])
}

func toFloat(v any) *float64 {
	switch t := v.(type) {
	case float64:
		return &t
	case string:
		f, err := strconv.ParseFloat(t, 64)
		if err != nil {
			return nil
		}
		return &f
	default:
		return nil
	}
}

// Raw converts the fixture into the domain's unvalidated form.
func (f Fixture) Raw() model.RawMatch {
	return model.RawMatch{
		ExternalID:   f.Fixture.ID,
		Date:         f.Fixture.Date,
		Round:        f.League.Round,
		Venue:        f.Fixture.Venue.Name,
		VenueCity:    f.Fixture.Venue.City,
		HomeTeamID:   f.Teams.Home.ID,
		HomeTeamName: f.Teams.Home.Name,
		AwayTeamID:   f.Teams.Away.ID,
		AwayTeamName: f.Teams.Away.Name,
		HomeGoals:    f.Goals.Home,
		AwayGoals:    f.Goals.Away,
		HomeXG:       f.Teams.Home.xG(),
		AwayXG:       f.Teams.Away.xG(),
		Status:       f.Fixture.Status.Short,
	}
}

// TeamPlayers is one element of GET /fixtures/players.
type TeamPlayers struct {
	Team    TeamRef       `json:"team"`
	Players []PlayerEntry `json:"players"`
}

// TeamRef names a team.
type TeamRef struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// PlayerEntry is one player's block within a team.
type PlayerEntry struct {
	Player     TeamRef            `json:"player"`
	Statistics []PlayerStatistics `json:"statistics"`
}

// PlayerStatistics is a player's line; only the first entry is used.
type PlayerStatistics struct {
	Games GameStats `json:"games"`
	Goals GoalStats `json:"goals"`
	Cards CardStats `json:"cards"`
}

// GameStats holds minutes and the rating, which upstream sends as a string.
type GameStats struct {
	Minutes *int   `json:"minutes"`
	Rating  string `json:"rating"`
}

// GoalStats holds goals and assists.
type GoalStats struct {
	Total   *int `json:"total"`
	Assists *int `json:"assists"`
}

// CardStats holds bookings.
type CardStats struct {
	Yellow *int `json:"yellow"`
	Red    *int `json:"red"`
}

// Raw flattens the team block into per-player records.
func (t TeamPlayers) Raw() []model.RawPlayerStat {
	out := make([]model.RawPlayerStat, 0, len(t.Players))
	for _, p := range t.Players {
		var s PlayerStatistics
		if len(p.Statistics) > 0 {
			s = p.Statistics[0]
		}
		out = append(out, model.RawPlayerStat{
			PlayerID:    p.Player.ID,
			PlayerName:  p.Player.Name,
			TeamID:      t.Team.ID,
			TeamName:    t.Team.Name,
			Minutes:     s.Games.Minutes,
			Goals:       s.Goals.Total,
			Assists:     s.Goals.Assists,
			YellowCards: s.Cards.Yellow,
			RedCards:    s.Cards.Red,
			Rating:      s.Games.Rating,
		})
	}
	return out
}
