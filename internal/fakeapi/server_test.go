package fakeapi

import (
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/okian/harvester/internal/adapters/apifootball"
	. "github.com/smartystreets/goconvey/convey"
)

func get(h http.Handler, target string, header map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, target, nil)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestSchedules(t *testing.T) {
	Convey("Given the generated schedules", t, func() {
		Convey("Série A is a double round robin of 20 clubs", func() {
			all := schedule(leagueSerieA, 2023)
			So(all, ShouldHaveLength, 380)

			pairs := map[[2]int64]int{}
			for _, f := range all {
				So(f.home.id, ShouldNotEqual, f.away.id)
				pairs[[2]int64{f.home.id, f.away.id}]++
			}
			So(pairs, ShouldHaveLength, 380)
		})

		Convey("Fixture ids decode back to their position", func() {
			all := schedule(leagueCopaDoBrasil, 2022)
			f := all[17]
			season, league, idx := decodeFixtureID(f.id)
			So(season, ShouldEqual, 2022)
			So(league, ShouldEqual, leagueCopaDoBrasil)
			So(idx, ShouldEqual, 17)
		})

		Convey("Schedules are deterministic", func() {
			So(schedule(leagueCopaDoBrasil, 2021), ShouldResemble, schedule(leagueCopaDoBrasil, 2021))
		})
	})
}

func TestServer(t *testing.T) {
	Convey("Given a fake upstream with a page size of 50", t, func() {
		now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
		s := New(WithPageSize(50), WithClock(func() time.Time { return now }))
		h := s.Handler()

		Convey("When the last page of Série A 2023 is requested", func() {
			rec := get(h, "/fixtures?league=71&season=2023&page=8", nil)
			var env apifootball.Envelope[apifootball.Fixture]
			So(json.Unmarshal(rec.Body.Bytes(), &env), ShouldBeNil)

			Convey("Then it holds the remainder and reports no further page", func() {
				So(rec.Code, ShouldEqual, http.StatusOK)
				So(env.Response, ShouldHaveLength, 30)
				So(env.Paging.Current, ShouldEqual, 8)
				So(env.Paging.Total, ShouldEqual, 8)
				So(env.Paging.HasMore(), ShouldBeFalse)
				So(env.Response[0].Fixture.Status.Short, ShouldEqual, "FT")
				So(env.Response[0].Goals.Home, ShouldNotBeNil)
			})
		})

		Convey("When player statistics of a played fixture are requested", func() {
			id := schedule(leagueSerieA, 2023)[0].id
			rec := get(h, "/fixtures/players?fixture="+strconv.FormatInt(id, 10), nil)
			var env apifootball.Envelope[apifootball.TeamPlayers]
			So(json.Unmarshal(rec.Body.Bytes(), &env), ShouldBeNil)

			Convey("Then both sides list eleven players", func() {
				So(env.Response, ShouldHaveLength, 2)
				So(env.Response[0].Players, ShouldHaveLength, 11)
				So(env.Response[0].Raw()[0].PlayerID > 0, ShouldBeTrue)
			})
		})

		Convey("When the request parameters are missing", func() {
			rec := get(h, "/fixtures", nil)
			So(rec.Body.String(), ShouldContainSubstring, `"required"`)
		})

		Convey("When a non-GET method is used", func() {
			req := httptest.NewRequest(http.MethodPost, "/fixtures", nil)
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			So(rec.Code, ShouldEqual, http.StatusNotFound)
		})
	})

	Convey("Given a fake upstream with a daily limit, a key and injected failures", t, func() {
		s := New(WithDailyLimit(3), WithAPIKey("secret"), WithFailEvery(2))
		h := s.Handler()
		auth := map[string]string{"x-rapidapi-key": "secret"}

		Convey("A missing key is answered with a token error", func() {
			rec := get(h, "/fixtures?league=71&season=2023", nil)
			So(rec.Body.String(), ShouldContainSubstring, `"token"`)
			So(s.Requests(), ShouldEqual, 0)
		})

		Convey("Every second request fails and the fourth hits the limit", func() {
			So(get(h, "/fixtures?league=71&season=2023", auth).Code, ShouldEqual, http.StatusOK)
			So(get(h, "/fixtures?league=71&season=2023", auth).Code, ShouldEqual, http.StatusServiceUnavailable)
			So(get(h, "/fixtures?league=71&season=2023", auth).Code, ShouldEqual, http.StatusOK)
			rec := get(h, "/fixtures?league=71&season=2023", auth)
			So(rec.Body.String(), ShouldContainSubstring, `"requests"`)
			So(s.Requests(), ShouldEqual, 4)
		})
	})
}
