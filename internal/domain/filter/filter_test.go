package filter_test

import (
	"testing"

	"github.com/okian/harvester/internal/domain/filter"
	"github.com/okian/harvester/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

var (
	serieA = model.CompetitionConfig{ID: 71, Name: "Série A", Kind: model.KindLeagueAll, Country: "Brazil"}
	copa   = model.CompetitionConfig{ID: 75, Name: "Copa do Brasil", Kind: model.KindCupFromPhase, MinPhase: 3, ReferenceLeague: 71}
	liber  = model.CompetitionConfig{ID: 13, Name: "Libertadores", Kind: model.KindContinentalBrazilianOnly, Country: "Brazil", ReferenceLeague: 71}
)

func serieARoster() *filter.Roster {
	return filter.NewRoster("Brazil", []model.Team{
		{ID: 127, Name: "Flamengo"},
		{ID: 126, Name: "São Paulo"},
		{ID: 134, Name: "Athletico Paranaense"},
		{ID: 1062, Name: "Atlético-MG"},
	}, map[string]string{
		"atleticoparanaense": "athletico pr",
		"athleticopr":        "athletico paranaense",
	})
}

func TestFilterEvaluate(t *testing.T) {
	var f filter.Filter
	roster := serieARoster()

	Convey("Given the Série A league", t, func() {
		c := filter.Candidate{Home: model.Team{ID: 9999, Name: "Unknown"}, Away: model.Team{}}

		Convey("Then every match is admitted, roster or not", func() {
			So(f.Evaluate(serieA, c, nil), ShouldEqual, filter.Admit)
			So(f.Admit(serieA, c, roster), ShouldBeTrue)
		})
	})

	Convey("Given the Copa do Brasil", t, func() {
		Convey("When the match is in phase 2 with a Série A club", func() {
			c := filter.Candidate{Phase: 2, Home: model.Team{ID: 127, Name: "Flamengo"}, Away: model.Team{ID: 7000, Name: "Maringá"}}

			Convey("Then it is rejected regardless of participants", func() {
				So(f.Evaluate(copa, c, roster), ShouldEqual, filter.Reject)
				So(f.Evaluate(copa, c, nil), ShouldEqual, filter.Reject)
			})
		})

		Convey("When the match is in phase 3 with a Série A club", func() {
			c := filter.Candidate{Phase: 3, Home: model.Team{ID: 7000, Name: "Maringá"}, Away: model.Team{ID: 127, Name: "Flamengo"}}
			So(f.Evaluate(copa, c, roster), ShouldEqual, filter.Admit)
		})

		Convey("When the match is in phase 3 between lower-tier clubs", func() {
			c := filter.Candidate{Phase: 3, Home: model.Team{ID: 7000, Name: "Maringá"}, Away: model.Team{ID: 7001, Name: "Brusque"}}
			So(f.Evaluate(copa, c, roster), ShouldEqual, filter.Reject)
		})

		Convey("When a team is known only by name", func() {
			c := filter.Candidate{Phase: 5, Home: model.Team{Name: "Sao Paulo"}, Away: model.Team{Name: "Brusque"}}
			So(f.Evaluate(copa, c, roster), ShouldEqual, filter.Admit)
		})

		Convey("When affiliation is missing entirely", func() {
			c := filter.Candidate{Phase: 5}
			So(f.Evaluate(copa, c, roster), ShouldEqual, filter.Reject)
		})

		Convey("When the reference roster has not been harvested yet", func() {
			c := filter.Candidate{Phase: 4, Home: model.Team{ID: 127, Name: "Flamengo"}}
			So(f.Evaluate(copa, c, filter.NewRoster("Brazil", nil, nil)), ShouldEqual, filter.Defer)
			So(f.Admit(copa, c, nil), ShouldBeFalse)
		})
	})

	Convey("Given the Libertadores", t, func() {
		Convey("When a Brazilian roster club plays", func() {
			c := filter.Candidate{Home: model.Team{ID: 435, Name: "River Plate"}, Away: model.Team{ID: 1062, Name: "Atletico MG"}}
			So(f.Evaluate(liber, c, roster), ShouldEqual, filter.Admit)
		})

		Convey("When no roster club plays", func() {
			c := filter.Candidate{Home: model.Team{ID: 435, Name: "River Plate"}, Away: model.Team{ID: 451, Name: "Boca Juniors"}}
			So(f.Evaluate(liber, c, roster), ShouldEqual, filter.Reject)
		})

		Convey("When the roster belongs to another country", func() {
			arg := filter.NewRoster("Argentina", []model.Team{{ID: 435, Name: "River Plate"}}, nil)
			c := filter.Candidate{Home: model.Team{ID: 435, Name: "River Plate"}}
			So(f.Evaluate(liber, c, arg), ShouldEqual, filter.Reject)
		})

		Convey("When the roster is empty", func() {
			c := filter.Candidate{Home: model.Team{ID: 127, Name: "Flamengo"}}
			So(f.Evaluate(liber, c, nil), ShouldEqual, filter.Defer)
		})
	})

	Convey("Given an unknown competition kind", t, func() {
		comp := model.CompetitionConfig{ID: 1, Kind: "friendly"}
		So(f.Evaluate(comp, filter.Candidate{Phase: 8}, roster), ShouldEqual, filter.Reject)
	})

	Convey("Given decisions", t, func() {
		So(filter.Admit.String(), ShouldEqual, "admit")
		So(filter.Reject.String(), ShouldEqual, "reject")
		So(filter.Defer.String(), ShouldEqual, "defer")
	})
}

func TestPhaseOf(t *testing.T) {
	Convey("Given upstream round labels", t, func() {
		cases := map[string]int{
			"1st Round":       1,
			"2nd Round":       2,
			"3rd Round":       3,
			"Round of 32":     4,
			"Round of 16":     5,
			"Quarter-finals":  6,
			"Semi-finals":     7,
			"Final":           8,
			"Group Stage - 3": 0,
			"":                0,
		}
		for label, want := range cases {
			So(filter.PhaseOf(label), ShouldEqual, want)
		}
	})

	Convey("Given a raw fixture", t, func() {
		raw := model.RawMatch{Round: "Round of 16", HomeTeamID: 1, HomeTeamName: "A", AwayTeamID: 2, AwayTeamName: "B"}
		c := filter.CandidateOf(raw)
		So(c.Phase, ShouldEqual, 5)
		So(c.Home.ID, ShouldEqual, 1)
		So(c.Away.Name, ShouldEqual, "B")
	})
}

func TestRoster(t *testing.T) {
	Convey("Given team names with accents and punctuation", t, func() {
		So(filter.NormalizeName("Atlético-MG"), ShouldEqual, "atleticomg")
		So(filter.NormalizeName("São Paulo"), ShouldEqual, "saopaulo")
		So(filter.NormalizeName("Grêmio"), ShouldEqual, "gremio")
		So(filter.NormalizeName(""), ShouldEqual, "")
	})

	Convey("Given a roster with aliases", t, func() {
		r := serieARoster()

		Convey("Then an aliased upstream spelling is a member", func() {
			So(r.Contains(model.Team{Name: "Athletico-PR"}), ShouldBeTrue)
			So(r.Contains(model.Team{Name: "Atlético Paranaense"}), ShouldBeFalse)
		})

		Convey("Then ids win over names", func() {
			So(r.Contains(model.Team{ID: 127, Name: "Renamed"}), ShouldBeTrue)
		})

		Convey("Then size and country are exposed", func() {
			So(r.Len(), ShouldEqual, 4)
			So(r.Country(), ShouldEqual, "Brazil")
			So(r.Empty(), ShouldBeFalse)
		})
	})

	Convey("Given a nil roster", t, func() {
		var r *filter.Roster
		So(r.Empty(), ShouldBeTrue)
		So(r.Contains(model.Team{ID: 1}), ShouldBeFalse)
		So(r.Len(), ShouldEqual, 0)
	})
}
