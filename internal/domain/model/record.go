// Package model contains domain models passed between layers.
package model

import (
	"fmt"
	"strings"
	"time"
)

// Source tells whether a record was claimed by a publisher or measured
// by an independent evaluation run.
type Source string

// Record sources.
const (
	SourceReported Source = "REPORTED"
	SourceMeasured Source = "MEASURED"
)

// ShotBucket is the normalized few-shot count vocabulary.
type ShotBucket string

// Shot buckets.
const (
	ShotZero        ShotBucket = "0"
	ShotOne         ShotBucket = "1"
	ShotFive        ShotBucket = "5"
	ShotFew         ShotBucket = "few"
	ShotMany        ShotBucket = "many"
	ShotUnspecified ShotBucket = "unspecified"
)

// Decoding is the normalized decoding strategy vocabulary.
type Decoding string

// Decoding strategies.
const (
	DecodingGreedy      Decoding = "greedy"
	DecodingSampled     Decoding = "sampled"
	DecodingUnspecified Decoding = "unspecified"
)

// Condition describes the normalized evaluation setup of a record.
// Two records are only comparable when their conditions fall into the
// same condition class (see the align package).
type Condition struct {
	Shots          ShotBucket `json:"shots"`
	Decoding       Decoding   `json:"decoding"`
	PromptTemplate string     `json:"prompt_template,omitempty"`
}

// Unspecified reports whether no condition information was provided at all.
func (c Condition) Unspecified() bool {
	return c.Shots == ShotUnspecified && c.Decoding == DecodingUnspecified && c.PromptTemplate == ""
}

// Condition field names used by per-task equivalence rules.
const (
	FieldShots          = "shots"
	FieldDecoding       = "decoding"
	FieldPromptTemplate = "prompt_template"
)

// BenchmarkRecord is one normalized benchmark observation.
type BenchmarkRecord struct {
	ModelID    string    `json:"model_id"`
	TaskID     string    `json:"task_id"`
	Metric     string    `json:"metric"`
	Value      float64   `json:"value"`
	Source     Source    `json:"source"`
	Condition  Condition `json:"condition"`
	ObservedAt time.Time `json:"observed_at"`
	// SampleSize is the number of evaluated examples behind Value.
	// Zero means unknown.
	SampleSize int `json:"sample_size,omitempty"`
}

// CohortKey identifies the unit of comparison: all records for one model,
// task, metric and condition class belong to the same cohort.
type CohortKey struct {
	ModelID        string `json:"model_id"`
	TaskID         string `json:"task_id"`
	Metric         string `json:"metric"`
	ConditionClass string `json:"condition_class"`
}

// String renders a stable textual form usable as a storage key.
func (k CohortKey) String() string {
	return strings.Join([]string{k.ModelID, k.TaskID, k.Metric, k.ConditionClass}, "/")
}

// DriftPoint is one measured observation in a cohort's append-only history.
type DriftPoint struct {
	ObservedAt time.Time `json:"observed_at"`
	Value      float64   `json:"value"`
	SampleSize int       `json:"sample_size,omitempty"`
}

// TrendDirection summarizes how measured performance moves over the
// trailing drift window.
type TrendDirection string

// Trend directions.
const (
	TrendImproving TrendDirection = "IMPROVING"
	TrendDegrading TrendDirection = "DEGRADING"
	TrendStable    TrendDirection = "STABLE"
)

// DriftSignal is the drift tracker's output for one cohort.
type DriftSignal struct {
	Direction TrendDirection `json:"direction"`
	// Slope is the robust per-day slope estimate over the window.
	Slope float64 `json:"slope"`
	// Points is the number of history points the trend was computed on.
	Points int `json:"points"`
	// WindowStart is the timestamp of the oldest point in the window.
	WindowStart time.Time `json:"window_start,omitempty"`
	// ReportedStale is set when the reported value has not moved across
	// the drift window while measurements kept arriving.
	ReportedStale bool `json:"reported_stale,omitempty"`
}

// ConfidenceBand bounds the aggregated measured value.
type ConfidenceBand struct {
	Lower float64 `json:"lower"`
	Upper float64 `json:"upper"`
}

// Width returns the band width.
func (b ConfidenceBand) Width() float64 {
	return b.Upper - b.Lower
}

// DeviationResult is the per-cohort, per-run comparison of reported and
// measured values. It is immutable once produced; a later run yields a
// new result rather than amending this one.
type DeviationResult struct {
	Key CohortKey `json:"key"`

	Reported    float64   `json:"reported,omitempty"`
	HasReported bool      `json:"has_reported"`
	ReportedAt  time.Time `json:"reported_at,omitempty"`
	// InconsistentReported is set when reported records for the cohort
	// materially disagree with each other.
	InconsistentReported bool `json:"inconsistent_reported,omitempty"`

	Measured     float64 `json:"measured,omitempty"`
	MeasuredRuns int     `json:"measured_runs"`
	// SampleSize is the aggregate measured sample size (sum over runs,
	// counting unknown sizes as zero).
	SampleSize int `json:"sample_size"`

	// Score is the signed relative deviation; positive means the reported
	// value exceeds the measured one. Valid only when HasScore is true.
	Score    float64 `json:"score,omitempty"`
	HasScore bool    `json:"has_score"`

	Band          ConfidenceBand `json:"band"`
	LowConfidence bool           `json:"low_confidence,omitempty"`

	Rationale string `json:"rationale"`
}

// RiskVerdict is the discrete overclaiming-risk category for a cohort.
type RiskVerdict string

// Risk verdicts, in escalating order.
const (
	VerdictInsufficientData     RiskVerdict = "INSUFFICIENT_DATA"
	VerdictConsistent           RiskVerdict = "CONSISTENT"
	VerdictMinorDeviation       RiskVerdict = "MINOR_DEVIATION"
	VerdictSignificantDeviation RiskVerdict = "SIGNIFICANT_DEVIATION"
	VerdictLikelyOverclaim      RiskVerdict = "LIKELY_OVERCLAIM"
	VerdictCriticalOverclaim    RiskVerdict = "CRITICAL_OVERCLAIM"
)

// severityRank orders verdicts so "at minimum" rules can compare them.
// INSUFFICIENT_DATA sits outside the severity ladder.
func severityRank(v RiskVerdict) int {
	switch v {
	case VerdictConsistent:
		return 1
	case VerdictMinorDeviation:
		return 2
	case VerdictSignificantDeviation:
		return 3
	case VerdictLikelyOverclaim:
		return 4
	case VerdictCriticalOverclaim:
		return 5
	default:
		return 0
	}
}

// MaxVerdict returns the more severe of two verdicts.
func MaxVerdict(a, b RiskVerdict) RiskVerdict {
	if severityRank(b) > severityRank(a) {
		return b
	}
	return a
}

// AtLeast reports whether v is at least as severe as floor.
func (v RiskVerdict) AtLeast(floor RiskVerdict) bool {
	return severityRank(v) >= severityRank(floor)
}

// Validate rejects records whose value is outside the declared metric
// range. Records failing this are rejected, never clamped.
func (r BenchmarkRecord) Validate(lo, hi float64) error {
	if r.Value != r.Value || r.Value < lo || r.Value > hi {
		return fmt.Errorf("value %v outside metric range [%v,%v]", r.Value, lo, hi)
	}
	return nil
}
