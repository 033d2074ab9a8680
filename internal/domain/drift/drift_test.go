package drift_test

import (
	"context"
	"testing"
	"time"

	"github.com/benchwatch/benchwatch/internal/adapters/storage"
	"github.com/benchwatch/benchwatch/internal/domain/drift"
	"github.com/benchwatch/benchwatch/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

var cohortKey = model.CohortKey{
	ModelID: "acme/falcon-9b", TaskID: "mmlu", Metric: "accuracy",
	ConditionClass: "decoding=greedy,shots=5",
}

func points(start time.Time, values ...float64) []model.DriftPoint {
	out := make([]model.DriftPoint, len(values))
	for i, v := range values {
		out[i] = model.DriftPoint{ObservedAt: start.AddDate(0, 0, i), Value: v, SampleSize: 1000}
	}
	return out
}

func TestTracker_AppendOnly(t *testing.T) {
	Convey("Given a tracker over an in-memory store", t, func() {
		ctx := context.Background()
		tracker := drift.New(storage.NewMemoryStore())
		start := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)

		Convey("When observations arrive across runs", func() {
			_, err := tracker.Update(ctx, cohortKey, drift.Observation{Points: points(start, 0.70, 0.71)})
			So(err, ShouldBeNil)
			_, err = tracker.Update(ctx, cohortKey, drift.Observation{Points: points(start.AddDate(0, 0, 2), 0.72)})
			So(err, ShouldBeNil)

			Convey("Then history only ever grows", func() {
				history, err := tracker.History(ctx, cohortKey)
				So(err, ShouldBeNil)
				So(len(history), ShouldEqual, 3)
			})

			Convey("And earlier points are untouched", func() {
				history, err := tracker.History(ctx, cohortKey)
				So(err, ShouldBeNil)
				So(history[0].Value, ShouldAlmostEqual, 0.70, 1e-12)
				So(history[1].Value, ShouldAlmostEqual, 0.71, 1e-12)
				So(history[2].Value, ShouldAlmostEqual, 0.72, 1e-12)
			})
		})

		Convey("When a batch arrives out of timestamp order", func() {
			batch := []model.DriftPoint{
				{ObservedAt: start.AddDate(0, 0, 1), Value: 0.71},
				{ObservedAt: start, Value: 0.70},
			}
			_, err := tracker.Update(ctx, cohortKey, drift.Observation{Points: batch})
			So(err, ShouldBeNil)

			Convey("Then it is committed in timestamp order", func() {
				history, err := tracker.History(ctx, cohortKey)
				So(err, ShouldBeNil)
				So(history[0].Value, ShouldAlmostEqual, 0.70, 1e-12)
				So(history[1].Value, ShouldAlmostEqual, 0.71, 1e-12)
			})
		})
	})
}

func TestTracker_Trend(t *testing.T) {
	Convey("Given a tracker with the default window", t, func() {
		ctx := context.Background()
		start := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)

		Convey("When measured values decline day over day", func() {
			tracker := drift.New(storage.NewMemoryStore())
			sig, err := tracker.Update(ctx, cohortKey, drift.Observation{
				Points: points(start, 0.80, 0.78, 0.76, 0.74, 0.72),
			})

			Convey("Then the trend is degrading with a negative slope", func() {
				So(err, ShouldBeNil)
				So(sig.Direction, ShouldEqual, model.TrendDegrading)
				So(sig.Slope, ShouldBeLessThan, 0)
				So(sig.Points, ShouldEqual, 5)
			})
		})

		Convey("When measured values climb day over day", func() {
			tracker := drift.New(storage.NewMemoryStore())
			sig, err := tracker.Update(ctx, cohortKey, drift.Observation{
				Points: points(start, 0.70, 0.72, 0.74, 0.76),
			})

			Convey("Then the trend is improving", func() {
				So(err, ShouldBeNil)
				So(sig.Direction, ShouldEqual, model.TrendImproving)
				So(sig.Slope, ShouldBeGreaterThan, 0)
			})
		})

		Convey("When measured values hold steady", func() {
			tracker := drift.New(storage.NewMemoryStore())
			sig, err := tracker.Update(ctx, cohortKey, drift.Observation{
				Points: points(start, 0.75, 0.75, 0.75, 0.75),
			})

			Convey("Then the trend is stable", func() {
				So(err, ShouldBeNil)
				So(sig.Direction, ShouldEqual, model.TrendStable)
			})
		})

		Convey("When a single outlier interrupts a flat series", func() {
			tracker := drift.New(storage.NewMemoryStore())
			sig, err := tracker.Update(ctx, cohortKey, drift.Observation{
				Points: points(start, 0.75, 0.75, 0.75, 0.90, 0.75),
			})

			Convey("Then the median slope shrugs it off", func() {
				So(err, ShouldBeNil)
				So(sig.Direction, ShouldEqual, model.TrendStable)
			})
		})

		Convey("When fewer than three points exist", func() {
			tracker := drift.New(storage.NewMemoryStore())
			sig, err := tracker.Update(ctx, cohortKey, drift.Observation{
				Points: points(start, 0.70, 0.90),
			})

			Convey("Then no trend is claimed", func() {
				So(err, ShouldBeNil)
				So(sig.Direction, ShouldEqual, model.TrendStable)
				So(sig.Points, ShouldEqual, 2)
			})
		})

		Convey("When history exceeds the window", func() {
			tracker := drift.New(storage.NewMemoryStore(), drift.WithWindow(3))
			sig, err := tracker.Update(ctx, cohortKey, drift.Observation{
				Points: points(start, 0.50, 0.55, 0.75, 0.75, 0.75),
			})

			Convey("Then only the trailing window counts", func() {
				So(err, ShouldBeNil)
				So(sig.Points, ShouldEqual, 3)
				So(sig.Direction, ShouldEqual, model.TrendStable)
				So(sig.WindowStart.Equal(start.AddDate(0, 0, 2)), ShouldBeTrue)
			})
		})
	})
}

func TestTracker_ReportedStale(t *testing.T) {
	Convey("Given a tracker receiving reported values alongside measurements", t, func() {
		ctx := context.Background()
		start := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)

		update := func(tracker *drift.Tracker, day int, measured, reported float64) model.DriftSignal {
			sig, err := tracker.Update(ctx, cohortKey, drift.Observation{
				Points:      points(start.AddDate(0, 0, day), measured),
				Reported:    reported,
				HasReported: true,
				ReportedAt:  start.AddDate(0, 0, day),
			})
			So(err, ShouldBeNil)
			return sig
		}

		Convey("When the reported value never moves across runs", func() {
			tracker := drift.New(storage.NewMemoryStore())
			var sig model.DriftSignal
			for day, v := range []float64{0.78, 0.74, 0.70} {
				sig = update(tracker, day, v, 0.80)
			}

			Convey("Then the reported figure counts as stale", func() {
				So(sig.ReportedStale, ShouldBeTrue)
			})
		})

		Convey("When the reported value is revised along the way", func() {
			tracker := drift.New(storage.NewMemoryStore())
			var sig model.DriftSignal
			for day, v := range []float64{0.78, 0.74, 0.70} {
				sig = update(tracker, day, v, 0.80-float64(day)*0.03)
			}

			Convey("Then it is not stale", func() {
				So(sig.ReportedStale, ShouldBeFalse)
			})
		})

		Convey("When no reported value accompanies the run", func() {
			tracker := drift.New(storage.NewMemoryStore())
			sig, err := tracker.Update(ctx, cohortKey, drift.Observation{
				Points: points(start, 0.70, 0.71, 0.72),
			})

			Convey("Then staleness is not claimed", func() {
				So(err, ShouldBeNil)
				So(sig.ReportedStale, ShouldBeFalse)
			})
		})
	})
}
