package metrics

import (
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	. "github.com/smartystreets/goconvey/convey"
)

func TestMetricsOptions(t *testing.T) {
	Convey("Given metrics options", t, func() {
		Convey("When creating options", func() {
			namespaceOpt := WithNamespace("test-namespace")
			subsystemOpt := WithSubsystem("test-subsystem")
			histogramBucketsOpt := WithHistogramBuckets([]float64{0.1, 0.5, 1.0})
			constLabelsOpt := WithConstLabels(map[string]string{"env": "test"})
			registryOpt := WithRegistry(prometheus.NewRegistry())

			Convey("Then they should be valid functions", func() {
				So(namespaceOpt, ShouldNotBeNil)
				So(subsystemOpt, ShouldNotBeNil)
				So(histogramBucketsOpt, ShouldNotBeNil)
				So(constLabelsOpt, ShouldNotBeNil)
				So(registryOpt, ShouldNotBeNil)
			})
		})
	})
}

func TestMetricsManagerCreation(t *testing.T) {
	Convey("Given metrics manager creation", t, func() {
		Convey("When creating with a private registry", func() {
			registry := prometheus.NewRegistry()
			manager := NewManager(WithRegistry(registry))

			Convey("Then metrics are registered under the harvester namespace", func() {
				So(manager, ShouldNotBeNil)
				manager.quotaRemaining.Set(42)
				families, err := registry.Gather()
				So(err, ShouldBeNil)

				found := false
				for _, f := range families {
					if f.GetName() == "harvester_football_quota_remaining" {
						found = true
					}
				}
				So(found, ShouldBeTrue)
			})
		})

		Convey("When creating with custom names and labels", func() {
			registry := prometheus.NewRegistry()
			manager := NewManager(
				WithNamespace("fut"),
				WithSubsystem("stats"),
				WithConstLabels(map[string]string{"env": "test"}),
				WithRegistry(registry),
			)
			manager.matchesInserted.Inc()

			Convey("Then the custom prefix and const labels are applied", func() {
				expected := `
# HELP fut_stats_matches_inserted_total Matches stored for the first time
# TYPE fut_stats_matches_inserted_total counter
fut_stats_matches_inserted_total{env="test"} 1
`
				err := testutil.GatherAndCompare(registry, strings.NewReader(expected), "fut_stats_matches_inserted_total")
				So(err, ShouldBeNil)
			})
		})
	})
}

func TestMetricsRecording(t *testing.T) {
	Convey("Given the global metrics manager", t, func() {
		Convey("When recording quota metrics", func() {
			UpdateQuota(30, 70)

			Convey("Then the gauges reflect the last values", func() {
				So(testutil.ToFloat64(globalManager.quotaUsed), ShouldEqual, 30)
				So(testutil.ToFloat64(globalManager.quotaRemaining), ShouldEqual, 70)
			})
		})

		Convey("When recording harvest outcomes", func() {
			before := testutil.ToFloat64(globalManager.statsInserted)
			RecordStatsInserted(22)

			Convey("Then counters accumulate", func() {
				So(testutil.ToFloat64(globalManager.statsInserted)-before, ShouldEqual, 22)
			})
		})

		Convey("When toggling the active run gauge", func() {
			SetRunActive(true)
			active := testutil.ToFloat64(globalManager.runActive)
			SetRunActive(false)

			Convey("Then it flips between 1 and 0", func() {
				So(active, ShouldEqual, 1)
				So(testutil.ToFloat64(globalManager.runActive), ShouldEqual, 0)
			})
		})

		Convey("When recording the remaining helpers", func() {
			So(func() {
				RecordUpstreamRequest("fixtures", "ok", 120)
				RecordUpstreamRetry()
				RecordQuotaDenied()
				RecordMatchInserted()
				RecordMatchExisting()
				RecordMatchFiltered("75", "reject")
				RecordMalformed()
				RecordUnitFailed()
				UpdatePendingUnits(3)
				RecordRun("completed", 3*time.Second)
				UpdateQueueSize(1)
				UpdateQueueCapacity(4)
				RecordQueueRejected()
				RecordHTTPRequest("harvest", "POST", "200")
				RecordHTTPRequestDuration("harvest", "POST", "200", 5)
				RecordErrorByComponent("harvest", "persistence")
				UpdateSystemMemoryUsage(1024)
				UpdateSystemGoroutineCount(10)
			}, ShouldNotPanic)
		})

		Convey("When reading the registry", func() {
			So(GetRegistry(), ShouldEqual, customRegistry)
		})
	})
}
