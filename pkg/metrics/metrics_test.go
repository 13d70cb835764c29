package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	. "github.com/smartystreets/goconvey/convey"
)

func TestManagerCreation(t *testing.T) {
	Convey("Given a fresh registry", t, func() {
		registry := prometheus.NewRegistry()

		Convey("When creating a manager with custom options", func() {
			m := NewManager(
				WithNamespace("test"),
				WithSubsystem("cam1"),
				WithLatencyBuckets(1, 10),
				WithRefreshInterval(3*time.Second),
				WithSite("hq"),
				WithConstLabel("camera", ""),
				WithPrometheusRegistry(registry),
			)

			Convey("Then its metrics are registered under the namespace", func() {
				So(m.RefreshInterval(), ShouldEqual, 3*time.Second)
				So(m.Enabled(), ShouldBeTrue)

				m.framesProcessed.Inc()
				families, err := registry.Gather()
				So(err, ShouldBeNil)

				found := false
				for _, f := range families {
					if f.GetName() == "test_cam1_frames_processed_total" {
						found = true
						labels := f.GetMetric()[0].GetLabel()
						So(labels, ShouldHaveLength, 1)
						So(labels[0].GetName(), ShouldEqual, "site")
						So(labels[0].GetValue(), ShouldEqual, "hq")
					}
				}
				So(found, ShouldBeTrue)
			})
		})

		Convey("When recording is disabled", func() {
			m := NewManager(WithDisabled(), WithPrometheusRegistry(registry))
			So(m.Enabled(), ShouldBeFalse)
		})

		Convey("Then the global manager uses the default refresh interval", func() {
			So(GaugeRefreshInterval(), ShouldEqual, defaultRefreshInterval)
		})

		Convey("When a refresh interval of zero is given", func() {
			m := NewManager(WithRefreshInterval(0), WithPrometheusRegistry(registry))
			So(m.RefreshInterval(), ShouldEqual, defaultRefreshInterval)
		})
	})
}

func TestGlobalRecording(t *testing.T) {
	Convey("Given the global manager", t, func() {
		Convey("When recording match outcomes", func() {
			before := testutil.ToFloat64(globalManager.matchOutcomes.WithLabelValues(OutcomeAccepted))
			RecordMatchOutcome(OutcomeAccepted)
			RecordMatchOutcome(OutcomeAccepted)

			Convey("Then the labelled counter increases", func() {
				So(testutil.ToFloat64(globalManager.matchOutcomes.WithLabelValues(OutcomeAccepted)), ShouldEqual, before+2)
			})
		})

		Convey("When recording ledger writes", func() {
			before := testutil.ToFloat64(globalManager.ledgerWrites.WithLabelValues("insert"))
			RecordLedgerWrite("insert")
			So(testutil.ToFloat64(globalManager.ledgerWrites.WithLabelValues("insert")), ShouldEqual, before+1)
		})

		Convey("When updating gauges", func() {
			UpdateCooldownEntries(7)
			UpdateGallery(3, 15, 6.5)
			UpdateCameraConnected(true)

			So(testutil.ToFloat64(globalManager.cooldownEntries), ShouldEqual, 7)
			So(testutil.ToFloat64(globalManager.galleryProfiles), ShouldEqual, 3)
			So(testutil.ToFloat64(globalManager.galleryVariants), ShouldEqual, 15)
			So(testutil.ToFloat64(globalManager.galleryAverageQuality), ShouldEqual, 6.5)
			So(testutil.ToFloat64(globalManager.cameraConnected), ShouldEqual, 1)
		})

		Convey("When recording is disabled", func() {
			SetEnabled(false)
			defer SetEnabled(true)

			before := testutil.ToFloat64(globalManager.framesSkipped)
			RecordFrameSkipped()
			So(testutil.ToFloat64(globalManager.framesSkipped), ShouldEqual, before)
		})

		Convey("When counting swept entries", func() {
			before := testutil.ToFloat64(globalManager.cooldownSwept)
			RecordCooldownSwept(0)
			RecordCooldownSwept(4)
			So(testutil.ToFloat64(globalManager.cooldownSwept), ShouldEqual, before+4)
		})
	})
}

func TestGetRegistry(t *testing.T) {
	if GetRegistry() == nil {
		t.Fatal("registry is nil")
	}
	if _, err := GetRegistry().Gather(); err != nil {
		t.Fatalf("gather: %v", err)
	}
}
