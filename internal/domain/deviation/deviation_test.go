package deviation_test

import (
	"testing"
	"time"

	"github.com/benchwatch/benchwatch/internal/domain/deviation"
	"github.com/benchwatch/benchwatch/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

var cohortKey = model.CohortKey{
	ModelID: "acme/falcon-9b", TaskID: "mmlu", Metric: "accuracy",
	ConditionClass: "decoding=greedy,shots=5",
}

func reported(value float64, at time.Time) model.BenchmarkRecord {
	return model.BenchmarkRecord{
		ModelID: "acme/falcon-9b", TaskID: "mmlu", Metric: "accuracy",
		Value: value, Source: model.SourceReported, ObservedAt: at,
		Condition: model.Condition{Shots: model.ShotFive, Decoding: model.DecodingGreedy},
	}
}

func measured(value float64, sampleSize int) model.BenchmarkRecord {
	return model.BenchmarkRecord{
		ModelID: "acme/falcon-9b", TaskID: "mmlu", Metric: "accuracy",
		Value: value, Source: model.SourceMeasured, SampleSize: sampleSize,
		Condition: model.Condition{Shots: model.ShotFive, Decoding: model.DecodingGreedy},
	}
}

func TestEstimator_Score(t *testing.T) {
	Convey("Given an estimator with default parameters", t, func() {
		e := deviation.New()
		now := time.Now()

		Convey("When the reported value exceeds the measured one", func() {
			res := e.Estimate(cohortKey, []model.BenchmarkRecord{
				reported(0.90, now),
				measured(0.70, 1000),
			})

			Convey("Then the score is positive", func() {
				So(res.HasScore, ShouldBeTrue)
				So(res.Score, ShouldAlmostEqual, (0.90-0.70)/0.70, 1e-9)
			})
		})

		Convey("When the measured value exceeds the reported one", func() {
			res := e.Estimate(cohortKey, []model.BenchmarkRecord{
				reported(0.70, now),
				measured(0.90, 1000),
			})

			Convey("Then the score is negative", func() {
				So(res.Score, ShouldAlmostEqual, (0.70-0.90)/0.90, 1e-9)
			})
		})

		Convey("When the measured value sits near zero", func() {
			res := e.Estimate(cohortKey, []model.BenchmarkRecord{
				reported(0.02, now),
				measured(0.01, 1000),
			})

			Convey("Then the epsilon floor bounds the denominator", func() {
				So(res.Score, ShouldAlmostEqual, (0.02-0.01)/0.05, 1e-9)
			})
		})
	})
}

func TestEstimator_Aggregation(t *testing.T) {
	Convey("Given an estimator with default parameters", t, func() {
		e := deviation.New()
		now := time.Now()

		Convey("When multiple measured runs carry sample sizes", func() {
			res := e.Estimate(cohortKey, []model.BenchmarkRecord{
				measured(0.80, 100),
				measured(0.60, 300),
			})

			Convey("Then the mean is sample-size weighted", func() {
				So(res.Measured, ShouldAlmostEqual, 0.65, 1e-9)
				So(res.SampleSize, ShouldEqual, 400)
				So(res.MeasuredRuns, ShouldEqual, 2)
			})
		})

		Convey("When several reported values exist", func() {
			res := e.Estimate(cohortKey, []model.BenchmarkRecord{
				reported(0.50, now.Add(-48*time.Hour)),
				reported(0.71, now),
				measured(0.70, 1000),
			})

			Convey("Then the most recent one is compared", func() {
				So(res.Reported, ShouldAlmostEqual, 0.71, 1e-9)
			})

			Convey("And the disagreement is flagged, not averaged away", func() {
				So(res.InconsistentReported, ShouldBeTrue)
				So(res.Rationale, ShouldContainSubstring, "reported values disagree")
			})
		})

		Convey("When reported values agree within the epsilon", func() {
			res := e.Estimate(cohortKey, []model.BenchmarkRecord{
				reported(0.700, now.Add(-time.Hour)),
				reported(0.710, now),
				measured(0.70, 1000),
			})

			Convey("Then no inconsistency is flagged", func() {
				So(res.InconsistentReported, ShouldBeFalse)
			})
		})
	})
}

func TestEstimator_ConfidenceBand(t *testing.T) {
	Convey("Given an estimator with default parameters", t, func() {
		e := deviation.New()

		Convey("When aggregate samples grow at a fixed mean", func() {
			small := e.Estimate(cohortKey, []model.BenchmarkRecord{measured(0.50, 100)})
			large := e.Estimate(cohortKey, []model.BenchmarkRecord{measured(0.50, 10000)})

			Convey("Then the band narrows monotonically", func() {
				So(large.Band.Width(), ShouldBeLessThan, small.Band.Width())
			})

			Convey("And it stays within the metric range", func() {
				So(small.Band.Lower, ShouldBeGreaterThanOrEqualTo, 0)
				So(small.Band.Upper, ShouldBeLessThanOrEqualTo, 1)
			})
		})

		Convey("When the mean sits at the range boundary", func() {
			res := e.Estimate(cohortKey, []model.BenchmarkRecord{measured(1.0, 100)})

			Convey("Then the band is degenerate but valid", func() {
				So(res.Band.Lower, ShouldBeLessThanOrEqualTo, res.Band.Upper)
				So(res.Band.Upper, ShouldEqual, 1)
			})
		})
	})
}

func TestEstimator_Confidence(t *testing.T) {
	Convey("Given an estimator requiring 100 aggregate samples", t, func() {
		e := deviation.New(deviation.WithMinConfidentSampleSize(100))
		now := time.Now()

		Convey("When enough samples back the measurement", func() {
			res := e.Estimate(cohortKey, []model.BenchmarkRecord{
				reported(0.70, now), measured(0.70, 100),
			})

			Convey("Then the result is confident", func() {
				So(res.LowConfidence, ShouldBeFalse)
			})
		})

		Convey("When the aggregate sample falls short", func() {
			res := e.Estimate(cohortKey, []model.BenchmarkRecord{
				reported(0.70, now), measured(0.70, 50),
			})

			Convey("Then the result is low-confidence", func() {
				So(res.LowConfidence, ShouldBeTrue)
				So(res.Rationale, ShouldContainSubstring, "low confidence")
			})
		})

		Convey("When a measured record has no condition information", func() {
			rec := measured(0.70, 1000)
			rec.Condition = model.Condition{
				Shots: model.ShotUnspecified, Decoding: model.DecodingUnspecified,
			}
			res := e.Estimate(cohortKey, []model.BenchmarkRecord{reported(0.70, now), rec})

			Convey("Then the result is low-confidence", func() {
				So(res.LowConfidence, ShouldBeTrue)
			})
		})

		Convey("When no measured records exist at all", func() {
			res := e.Estimate(cohortKey, []model.BenchmarkRecord{reported(0.70, now)})

			Convey("Then nothing is scored", func() {
				So(res.MeasuredRuns, ShouldEqual, 0)
				So(res.HasScore, ShouldBeFalse)
				So(res.LowConfidence, ShouldBeTrue)
				So(res.Rationale, ShouldContainSubstring, "no measured records")
			})
		})
	})
}
