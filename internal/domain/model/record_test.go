package model_test

import (
	"testing"

	"github.com/benchwatch/benchwatch/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

func TestCohortKey_String(t *testing.T) {
	Convey("Given a cohort key", t, func() {
		key := model.CohortKey{
			ModelID:        "acme/falcon-9b",
			TaskID:         "mmlu",
			Metric:         "accuracy",
			ConditionClass: "decoding=greedy,shots=5",
		}

		Convey("Then String should render a stable storage form", func() {
			So(key.String(), ShouldEqual, "acme/falcon-9b/mmlu/accuracy/decoding=greedy,shots=5")
		})
	})
}

func TestCondition_Unspecified(t *testing.T) {
	Convey("Given conditions with varying detail", t, func() {
		Convey("Then a fully unspecified condition reports true", func() {
			cond := model.Condition{Shots: model.ShotUnspecified, Decoding: model.DecodingUnspecified}
			So(cond.Unspecified(), ShouldBeTrue)
		})

		Convey("And any known field makes it specified", func() {
			cond := model.Condition{Shots: model.ShotFive, Decoding: model.DecodingUnspecified}
			So(cond.Unspecified(), ShouldBeFalse)

			cond = model.Condition{Shots: model.ShotUnspecified, Decoding: model.DecodingGreedy}
			So(cond.Unspecified(), ShouldBeFalse)

			cond = model.Condition{Shots: model.ShotUnspecified, Decoding: model.DecodingUnspecified, PromptTemplate: "chat"}
			So(cond.Unspecified(), ShouldBeFalse)
		})
	})
}

func TestBenchmarkRecord_Validate(t *testing.T) {
	Convey("Given records against the [0,1] metric range", t, func() {
		Convey("Then in-range values pass", func() {
			rec := model.BenchmarkRecord{Value: 0.72}
			So(rec.Validate(0, 1), ShouldBeNil)
		})

		Convey("And boundary values pass", func() {
			So(model.BenchmarkRecord{Value: 0}.Validate(0, 1), ShouldBeNil)
			So(model.BenchmarkRecord{Value: 1}.Validate(0, 1), ShouldBeNil)
		})

		Convey("And out-of-range values are rejected", func() {
			So(model.BenchmarkRecord{Value: 1.2}.Validate(0, 1), ShouldNotBeNil)
			So(model.BenchmarkRecord{Value: -0.1}.Validate(0, 1), ShouldNotBeNil)
		})
	})
}

func TestRiskVerdict_Severity(t *testing.T) {
	Convey("Given the verdict severity ladder", t, func() {
		Convey("Then MaxVerdict picks the more severe verdict", func() {
			So(model.MaxVerdict(model.VerdictConsistent, model.VerdictLikelyOverclaim),
				ShouldEqual, model.VerdictLikelyOverclaim)
			So(model.MaxVerdict(model.VerdictCriticalOverclaim, model.VerdictMinorDeviation),
				ShouldEqual, model.VerdictCriticalOverclaim)
		})

		Convey("And INSUFFICIENT_DATA sits below the ladder", func() {
			So(model.MaxVerdict(model.VerdictInsufficientData, model.VerdictConsistent),
				ShouldEqual, model.VerdictConsistent)
		})

		Convey("And AtLeast compares against a floor", func() {
			So(model.VerdictLikelyOverclaim.AtLeast(model.VerdictSignificantDeviation), ShouldBeTrue)
			So(model.VerdictMinorDeviation.AtLeast(model.VerdictSignificantDeviation), ShouldBeFalse)
			So(model.VerdictSignificantDeviation.AtLeast(model.VerdictSignificantDeviation), ShouldBeTrue)
		})
	})
}

func TestConfidenceBand_Width(t *testing.T) {
	Convey("Given a confidence band", t, func() {
		band := model.ConfidenceBand{Lower: 0.65, Upper: 0.75}

		Convey("Then Width is the upper minus lower bound", func() {
			So(band.Width(), ShouldAlmostEqual, 0.10, 1e-12)
		})
	})
}
