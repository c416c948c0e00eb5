package config_test

import (
	"errors"
	"testing"

	"github.com/okian/harvester/internal/config"
	"github.com/okian/harvester/internal/domain/model"
	"github.com/smartystreets/goconvey/convey"
)

func TestConfig_New(t *testing.T) {
	convey.Convey("Given a new config with default options", t, func() {
		cfg := config.New()

		convey.Convey("Then it should have sensible defaults", func() {
			convey.So(cfg.Addr, convey.ShouldEqual, ":9080")
			convey.So(cfg.DailyLimit, convey.ShouldEqual, 100)
			convey.So(cfg.QuotaTimezone, convey.ShouldEqual, "UTC")
			convey.So(cfg.RetryMaxAttempts, convey.ShouldEqual, 3)
			convey.So(cfg.IncludePlayerStats, convey.ShouldBeTrue)
			convey.So(cfg.Validate(), convey.ShouldBeNil)
		})

		convey.Convey("Then the three Brazilian competitions are walked in order", func() {
			convey.So(cfg.Competitions, convey.ShouldHaveLength, 3)
			convey.So(cfg.Competitions[0].ID, convey.ShouldEqual, 71)
			convey.So(cfg.Competitions[1].Kind, convey.ShouldEqual, model.KindCupFromPhase)
			convey.So(cfg.Competitions[1].MinPhase, convey.ShouldEqual, 3)
			convey.So(cfg.Competitions[2].Kind, convey.ShouldEqual, model.KindContinentalBrazilianOnly)
			convey.So(cfg.TeamAliases["bragantino"], convey.ShouldEqual, "red bull bragantino")
		})
	})
}

func TestConfig_Validate(t *testing.T) {
	convey.Convey("Given a default config", t, func() {
		cfg := config.New()

		convey.Convey("When the season range is inverted", func() {
			cfg.DefaultStartSeason, cfg.DefaultEndSeason = 2024, 2020

			convey.Convey("Then validation fails with ErrInvalidConfig", func() {
				err := cfg.Validate()
				convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
			})
		})

		convey.Convey("When a competition references an unknown league", func() {
			cfg.Competitions = []model.CompetitionConfig{
				{ID: 75, Name: "Copa do Brasil", Kind: model.KindCupFromPhase, MinPhase: 3, ReferenceLeague: 71},
			}

			convey.Convey("Then validation fails", func() {
				err := cfg.Validate()
				convey.So(err, convey.ShouldNotBeNil)
				convey.So(err.Error(), convey.ShouldContainSubstring, "unknown league 71")
			})
		})

		convey.Convey("When a competition is listed twice", func() {
			cfg.Competitions = append(cfg.Competitions, cfg.Competitions[0])

			convey.Convey("Then validation fails", func() {
				convey.So(cfg.Validate(), convey.ShouldNotBeNil)
			})
		})

		convey.Convey("When the quota timezone is unknown", func() {
			cfg.QuotaTimezone = "Mars/Olympus"

			convey.Convey("Then validation fails", func() {
				convey.So(errors.Is(cfg.Validate(), config.ErrInvalidConfig), convey.ShouldBeTrue)
			})
		})

		convey.Convey("When the timezone is a real zone", func() {
			cfg.QuotaTimezone = "America/Sao_Paulo"
			loc, err := cfg.Location()

			convey.Convey("Then it resolves", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(loc.String(), convey.ShouldEqual, "America/Sao_Paulo")
			})
		})
	})
}
