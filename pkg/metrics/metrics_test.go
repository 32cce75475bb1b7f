package metrics_test

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	. "github.com/smartystreets/goconvey/convey"

	"github.com/proofofaesthetic/poa-engine/pkg/metrics"
)

func TestManager(t *testing.T) {
	Convey("Given a metrics manager on a private registry", t, func() {
		registry := prometheus.NewRegistry()
		m := metrics.NewManager(
			metrics.WithRegistry(registry),
			metrics.WithNamespace("poa_test"),
			metrics.WithSubsystem("engine"),
		)
		So(m, ShouldNotBeNil)

		Convey("Then the engine metrics are registered", func() {
			families, err := registry.Gather()
			So(err, ShouldBeNil)

			names := make(map[string]bool, len(families))
			for _, f := range families {
				names[f.GetName()] = true
			}
			// Vector metrics only surface after their first label use, so
			// assert on the plain counters and gauges.
			for _, want := range []string{
				"poa_test_engine_votes_duplicate_total",
				"poa_test_engine_scores_published_total",
				"poa_test_engine_recompute_queue_size",
				"poa_test_engine_recompute_workers",
			} {
				So(names[want], ShouldBeTrue)
			}
		})
	})
}

func TestGlobalHelpers(t *testing.T) {
	Convey("Given the package-level helpers", t, func() {
		Convey("Recording counters does not panic", func() {
			So(func() {
				metrics.RecordVoteProcessed("h2h")
				metrics.RecordVoteProcessed("slider")
				metrics.RecordVoteRejected("invalid_shape")
				metrics.RecordVoteDuplicate()
				metrics.RecordVersionConflict()
				metrics.RecordConflictRetry()
				metrics.RecordVoteLatency(12.5)
				metrics.RecordScorePublished()
				metrics.RecordPublishHeld("grace_period")
				metrics.RecordAwaitingData()
				metrics.RecordComputationError()
				metrics.RecordReplay()
				metrics.RecordRecomputeLatency(3.2)
				metrics.RecordQueueDropped()
				metrics.RecordHTTPRequest("votes", "POST", "202")
				metrics.RecordHTTPRequestDuration("votes", "POST", 4.1)
			}, ShouldNotPanic)
		})

		Convey("Updating gauges does not panic", func() {
			So(func() {
				metrics.UpdateQueueSize(10)
				metrics.UpdateQueueCapacity(100)
				metrics.UpdateQueueUtilization(0.1)
				metrics.UpdateWorkerCount(4)
				metrics.UpdateNFTsTracked(20)
				metrics.UpdateUsersTracked(30)
				metrics.UpdatePublishedScores(5)
				metrics.UpdateSystemMemoryUsage(1 << 20)
				metrics.UpdateSystemGoroutineCount(42)
			}, ShouldNotPanic)
		})

		Convey("The custom registry is gatherable", func() {
			families, err := metrics.GetRegistry().Gather()
			So(err, ShouldBeNil)
			So(len(families), ShouldBeGreaterThan, 0)
		})
	})
}
