package fakeapi

import (
	"fmt"
	"math/rand/v2"
	"strconv"
	"time"

	"github.com/okian/harvester/internal/adapters/apifootball"
)

type team struct {
	id   int64
	name string
	city string
}

// Série A clubs with their API-Football ids.
var serieA = []team{ //nolint:gochecknoglobals // fixture data
	{127, "Flamengo", "Rio de Janeiro"},
	{121, "Palmeiras", "São Paulo"},
	{126, "Sao Paulo", "São Paulo"},
	{131, "Corinthians", "São Paulo"},
	{128, "Santos", "Santos"},
	{124, "Fluminense", "Rio de Janeiro"},
	{120, "Botafogo", "Rio de Janeiro"},
	{133, "Vasco DA Gama", "Rio de Janeiro"},
	{1062, "Atletico-MG", "Belo Horizonte"},
	{135, "Cruzeiro", "Belo Horizonte"},
	{130, "Gremio", "Porto Alegre"},
	{119, "Internacional", "Porto Alegre"},
	{134, "Atletico Paranaense", "Curitiba"},
	{118, "Bahia", "Salvador"},
	{154, "Fortaleza EC", "Fortaleza"},
	{794, "RB Bragantino", "Bragança Paulista"},
	{1193, "Cuiaba", "Cuiabá"},
	{151, "Goias", "Goiânia"},
	{147, "Coritiba", "Curitiba"},
	{140, "America Mineiro", "Belo Horizonte"},
}

// Lower-division Brazilian clubs that enter the cup early.
var lowerTier = []team{ //nolint:gochecknoglobals // fixture data
	{2001, "Brasil de Pelotas", "Pelotas"},
	{2002, "Paysandu", "Belém"},
	{2003, "Remo", "Belém"},
	{2004, "Ferroviário", "Fortaleza"},
	{2005, "Maringá", "Maringá"},
	{2006, "Sampaio Corrêa", "São Luís"},
	{2007, "Botafogo PB", "João Pessoa"},
	{2008, "ABC", "Natal"},
	{2009, "Náutico", "Recife"},
	{2010, "CSA", "Maceió"},
	{2011, "Tombense", "Tombos"},
	{2012, "Ypiranga-RS", "Erechim"},
	{2013, "Caxias", "Caxias do Sul"},
	{2014, "São Bernardo", "São Bernardo do Campo"},
	{2015, "Volta Redonda", "Volta Redonda"},
	{2016, "Aparecidense", "Aparecida de Goiânia"},
}

// Continental opponents.
var foreign = []team{ //nolint:gochecknoglobals // fixture data
	{435, "River Plate", "Buenos Aires"},
	{451, "Boca Juniors", "Buenos Aires"},
	{1127, "Racing Club", "Avellaneda"},
	{438, "Velez Sarsfield", "Buenos Aires"},
	{2323, "Nacional", "Montevideo"},
	{2348, "Penarol", "Montevideo"},
	{1142, "Colo Colo", "Santiago"},
	{1137, "Independiente del Valle", "Sangolquí"},
	{1135, "LDU de Quito", "Quito"},
	{1138, "Olimpia", "Asunción"},
	{1165, "Atletico Nacional", "Medellín"},
	{2318, "Bolivar", "La Paz"},
}

// League ids with dedicated generators.
const (
	leagueSerieA       = 71
	leagueCopaDoBrasil = 75
	leagueLibertadores = 13
)

type fixture struct {
	id     int64
	league int
	season int
	round  string
	home   team
	away   team
	kickAt time.Time
}

// fixtureID encodes season, league and position so player stats can find the fixture.
func fixtureID(season, league, idx int) int64 {
	return int64(season)*10_000_000 + int64(league)*10_000 + int64(idx) + 1
}

func decodeFixtureID(id int64) (season, league, idx int) {
	season = int(id / 10_000_000)
	rest := id % 10_000_000
	return season, int(rest / 10_000), int(rest%10_000) - 1
}

func seasonStart(season int) time.Time {
	return time.Date(season, time.April, 15, 19, 0, 0, 0, time.UTC)
}

// schedule builds the deterministic fixture list of a league season.
func schedule(league, season int) []fixture {
	switch league {
	case leagueSerieA:
		return roundRobin(league, season, serieA)
	case leagueCopaDoBrasil:
		return cup(league, season)
	case leagueLibertadores:
		return continental(league, season)
	default:
		synthetic := make([]team, 10)
		for i := range synthetic {
			synthetic[i] = team{id: int64(league*100 + i + 1), name: fmt.Sprintf("Club %d-%d", league, i+1), city: "Unknown"}
		}
		return roundRobin(league, season, synthetic)
	}
}

// roundRobin uses the circle method: every pair meets home and away.
func roundRobin(league, season int, teams []team) []fixture {
	n := len(teams)
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	rounds := 2 * (n - 1)
	out := make([]fixture, 0, rounds*n/2)
	for r := 0; r < rounds; r++ {
		for k := 0; k < n/2; k++ {
			h, a := teams[idx[k]], teams[idx[n-1-k]]
			if r >= n-1 {
				h, a = a, h
			}
			out = append(out, fixture{
				id:     fixtureID(season, league, len(out)),
				league: league,
				season: season,
				round:  "Regular Season - " + strconv.Itoa(r+1),
				home:   h,
				away:   a,
				kickAt: seasonStart(season).AddDate(0, 0, 7*r),
			})
		}
		// Rotate all but the first position.
		last := idx[n-1]
		copy(idx[2:], idx[1:n-1])
		idx[1] = last
	}
	return out
}

type phase struct {
	round string
	pairs int
}

var cupPhases = []phase{ //nolint:gochecknoglobals // fixture data
	{"1st Round", 8},
	{"2nd Round", 8},
	{"3rd Round", 8},
	{"Round of 16", 8},
	{"Quarter-finals", 4},
	{"Semi-finals", 2},
	{"Final", 1},
}

// cup pairs lower-tier clubs in the early rounds and mixes Série A clubs in from the 3rd round.
func cup(league, season int) []fixture {
	rng := rand.New(rand.NewPCG(uint64(season), uint64(league)))
	var out []fixture
	for p, ph := range cupPhases {
		pool := lowerTier
		if p >= 2 {
			pool = append(append([]team{}, serieA[:10]...), lowerTier[:6]...)
		}
		order := rng.Perm(len(pool))
		for k := 0; k < ph.pairs; k++ {
			out = append(out, fixture{
				id:     fixtureID(season, league, len(out)),
				league: league,
				season: season,
				round:  ph.round,
				home:   pool[order[(2*k)%len(order)]],
				away:   pool[order[(2*k+1)%len(order)]],
				kickAt: seasonStart(season).AddDate(0, 0, 14*p+3),
			})
		}
	}
	return out
}

// continental pairs four Brazilian clubs with foreign opponents and adds foreign-only fixtures.
func continental(league, season int) []fixture {
	var out []fixture
	add := func(round string, h, a team, day int) {
		out = append(out, fixture{
			id:     fixtureID(season, league, len(out)),
			league: league,
			season: season,
			round:  round,
			home:   h,
			away:   a,
			kickAt: seasonStart(season).AddDate(0, 0, day),
		})
	}
	for g := 0; g < 6; g++ {
		round := "Group Stage - " + strconv.Itoa(g+1)
		for k := 0; k < 4; k++ {
			add(round, serieA[k], foreign[(k+g)%len(foreign)], 7*g+2)
		}
		add(round, foreign[4+g%4], foreign[8+g%4], 7*g+2)
	}
	knockout := []string{"Round of 16", "Quarter-finals", "Semi-finals", "Final"}
	for i, round := range knockout {
		add(round, serieA[i], foreign[i], 60+14*i)
	}
	return out
}

func rngFor(id int64) *rand.Rand {
	return rand.New(rand.NewPCG(uint64(id), uint64(id>>7)))
}

func intp(v int) *int { return &v }

// wire renders f as of now: kicked-off fixtures carry a score and status FT.
func (f fixture) wire(now time.Time) apifootball.Fixture {
	out := apifootball.Fixture{
		Fixture: apifootball.FixtureInfo{
			ID:     f.id,
			Date:   f.kickAt.Format("2006-01-02T15:04:05-07:00"),
			Venue:  apifootball.Venue{Name: "Estádio " + f.home.name, City: f.home.city},
			Status: apifootball.Status{Long: "Not Started", Short: "NS"},
		},
		League: apifootball.LeagueInfo{ID: f.league, Season: f.season, Round: f.round},
		Teams: apifootball.Teams{
			Home: apifootball.Side{ID: f.home.id, Name: f.home.name},
			Away: apifootball.Side{ID: f.away.id, Name: f.away.name},
		},
	}
	if f.kickAt.Before(now) {
		rng := rngFor(f.id)
		out.Fixture.Status = apifootball.Status{Long: "Match Finished", Short: "FT"}
		out.Goals = apifootball.Goals{Home: intp(rng.IntN(4)), Away: intp(rng.IntN(3))}
	}
	return out
}

// players renders 11 starters per side with deterministic lines.
func (f fixture) players() []apifootball.TeamPlayers {
	rng := rngFor(f.id)
	out := make([]apifootball.TeamPlayers, 0, 2)
	for _, t := range []team{f.home, f.away} {
		block := apifootball.TeamPlayers{Team: apifootball.TeamRef{ID: t.id, Name: t.name}}
		for k := 1; k <= 11; k++ {
			goals := 0
			if rng.IntN(10) == 0 {
				goals = 1
			}
			block.Players = append(block.Players, apifootball.PlayerEntry{
				Player: apifootball.TeamRef{ID: t.id*100 + int64(k), Name: fmt.Sprintf("%s Player %d", t.name, k)},
				Statistics: []apifootball.PlayerStatistics{{
					Games: apifootball.GameStats{Minutes: intp(90), Rating: fmt.Sprintf("%.1f", 5.5+rng.Float64()*3)},
					Goals: apifootball.GoalStats{Total: intp(goals), Assists: intp(rng.IntN(2))},
					Cards: apifootball.CardStats{Yellow: intp(rng.IntN(2)), Red: intp(0)},
				}},
			})
		}
		out = append(out, block)
	}
	return out
}
