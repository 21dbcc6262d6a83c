package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	. "github.com/smartystreets/goconvey/convey"
)

func TestMetricsManagerCreation(t *testing.T) {
	Convey("Given metrics manager creation", t, func() {
		Convey("When creating with default options on a fresh registry", func() {
			registry := prometheus.NewRegistry()
			manager := NewManager(WithPrometheusRegistry(registry))

			Convey("Then it should be created and register its collectors", func() {
				So(manager, ShouldNotBeNil)
				manager.guardActive.Set(1)
				count, err := testutil.GatherAndCount(registry, "netpulse_orchestrator_guard_active")
				So(err, ShouldBeNil)
				So(count, ShouldEqual, 1)
			})
		})

		Convey("When creating with custom options", func() {
			registry := prometheus.NewRegistry()
			manager := NewManager(
				WithNamespace("test"),
				WithSubsystem("unit"),
				WithMetricPrefix("p"),
				WithLatencyBuckets([]float64{1, 10}),
				WithPipelineBuckets([]float64{100, 1000}),
				WithScoreBuckets([]float64{50, 100}),
				WithConstLabels(map[string]string{"env": "test"}),
				WithPrometheusRegistry(registry),
			)

			Convey("Then metric names should carry namespace, subsystem and prefix", func() {
				manager.guardActive.Set(3)
				count, err := testutil.GatherAndCount(registry, "test_unit_p_guard_active")
				So(err, ShouldBeNil)
				So(count, ShouldEqual, 1)
				So(testutil.ToFloat64(manager.guardActive), ShouldEqual, 3)
			})

			Convey("Then histograms should use the configured buckets", func() {
				manager.qualityScore.Observe(70)
				manager.notificationLatency.Observe(4)
				families, err := registry.Gather()
				So(err, ShouldBeNil)

				buckets := map[string][]float64{}
				for _, mf := range families {
					for _, m := range mf.GetMetric() {
						if h := m.GetHistogram(); h != nil {
							for _, b := range h.GetBucket() {
								buckets[mf.GetName()] = append(buckets[mf.GetName()], b.GetUpperBound())
							}
						}
						for _, lp := range m.GetLabel() {
							if lp.GetName() == "env" {
								So(lp.GetValue(), ShouldEqual, "test")
							}
						}
					}
				}
				So(buckets["test_unit_p_quality_score"], ShouldResemble, []float64{50, 100})
				So(buckets["test_unit_p_notification_latency_milliseconds"], ShouldResemble, []float64{1, 10})
			})
		})
	})
}

func TestMetricsRecording(t *testing.T) {
	Convey("Given the global metrics manager", t, func() {
		Convey("When recording network test outcomes", func() {
			before := testutil.ToFloat64(globalManager.networkTests.WithLabelValues("speed", "completed"))
			RecordNetworkTest("speed", "completed")
			RecordNetworkTest("speed", "completed")

			Convey("Then the labelled counter should increase", func() {
				after := testutil.ToFloat64(globalManager.networkTests.WithLabelValues("speed", "completed"))
				So(after-before, ShouldEqual, 2)
			})
		})

		Convey("When recording guard and store gauges", func() {
			UpdateGuardActive(4)
			UpdateStoreEntries("results", 12)

			Convey("Then gauges should reflect the last value", func() {
				So(testutil.ToFloat64(globalManager.guardActive), ShouldEqual, 4)
				So(testutil.ToFloat64(globalManager.storeEntries.WithLabelValues("results")), ShouldEqual, 12)
			})
		})

		Convey("When recording notification failures", func() {
			before := testutil.ToFloat64(globalManager.notificationsFailed.WithLabelValues("email"))
			RecordNotificationFailed("email")

			Convey("Then the failure counter should increase", func() {
				So(testutil.ToFloat64(globalManager.notificationsFailed.WithLabelValues("email"))-before, ShouldEqual, 1)
			})
		})

		Convey("When recording the remaining metrics", func() {
			Convey("Then none of them should panic", func() {
				So(func() {
					RecordNetworkTestDuration("full", 120)
					RecordQualityScore(87)
					RecordGuardConflict("network_test")
					RecordStoreEviction("results", "expired")
					RecordFeedbackSubmission("submitted")
					UpdateDedupeEntries(5)
					RecordNotificationSent("telegram")
					RecordNotificationDropped()
					RecordNotificationLatency(12)
					UpdateQueueSize(3)
					UpdateQueueCapacity(100)
					UpdateQueueUtilization(0.03)
					UpdateWorkerActiveCount(2)
					RecordWorkerError()
					RecordHTTPRequest("network_test", "POST", "200")
					RecordHTTPRequestDuration("network_test", "POST", "200", 4)
					RecordRateLimited("feedback")
					RecordErrorByComponent("notify", "smtp")
					RecordErrorByType("conflict", "low")
					RecordErrorByEndpoint("feedback", "POST", "client_error")
					UpdateSystemMemoryUsage(1 << 20)
					UpdateSystemGoroutineCount(10)
					RecordSystemGCPauseTime(0.4)
				}, ShouldNotPanic)
			})
		})

		Convey("When reading the registry", func() {
			Convey("Then it should be the custom registry", func() {
				So(GetRegistry(), ShouldEqual, customRegistry)
			})
		})
	})
}
