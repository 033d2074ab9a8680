// Package deviation computes the per-cohort comparison between reported
// and measured benchmark values.
package deviation

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/benchwatch/benchwatch/internal/domain/model"
)

// Default estimator parameters. All of them are tunable via options.
const (
	defaultEpsilonFloor     = 0.05
	defaultReportedEpsilon  = 0.02
	defaultMinConfidentSize = 100
	zScore                  = 1.96
)

// Option applies a configuration option to the Estimator.
type Option func(*Estimator)

// WithEpsilonFloor sets the denominator floor of the deviation score.
func WithEpsilonFloor(eps float64) Option {
	return func(e *Estimator) {
		if eps > 0 {
			e.epsilonFloor = eps
		}
	}
}

// WithReportedEpsilon sets the spread beyond which multiple reported
// values count as internally inconsistent.
func WithReportedEpsilon(eps float64) Option {
	return func(e *Estimator) {
		if eps > 0 {
			e.reportedEpsilon = eps
		}
	}
}

// WithMinConfidentSampleSize sets the aggregate measured sample size
// below which results are marked low-confidence.
func WithMinConfidentSampleSize(n int) Option {
	return func(e *Estimator) {
		if n > 0 {
			e.minConfidentSize = n
		}
	}
}

// Estimator aggregates cohort records into a DeviationResult.
type Estimator struct {
	epsilonFloor     float64
	reportedEpsilon  float64
	minConfidentSize int
}

// New creates an Estimator with default parameters.
func New(opts ...Option) *Estimator {
	e := &Estimator{
		epsilonFloor:     defaultEpsilonFloor,
		reportedEpsilon:  defaultReportedEpsilon,
		minConfidentSize: defaultMinConfidentSize,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Estimate computes the deviation result for one cohort. The risk
// verdict is attached later by the classifier.
func (e *Estimator) Estimate(key model.CohortKey, records []model.BenchmarkRecord) model.DeviationResult {
	res := model.DeviationResult{Key: key}
	var notes []string

	reported := filterSource(records, model.SourceReported)
	measured := filterSource(records, model.SourceMeasured)

	if len(reported) > 0 {
		// Most recent reported value wins; ties keep insertion order.
		sort.SliceStable(reported, func(i, j int) bool {
			return reported[i].ObservedAt.Before(reported[j].ObservedAt)
		})
		latest := reported[len(reported)-1]
		res.HasReported = true
		res.Reported = latest.Value
		res.ReportedAt = latest.ObservedAt

		if spread := valueSpread(reported); spread > e.reportedEpsilon {
			// Internal disagreement in reporting is itself a signal;
			// never silently averaged away.
			res.InconsistentReported = true
			notes = append(notes, fmt.Sprintf("reported values disagree (spread %.4f > eps %.4f)", spread, e.reportedEpsilon))
		}
	}

	res.MeasuredRuns = len(measured)
	if len(measured) == 0 {
		notes = append(notes, "no measured records")
		res.LowConfidence = true
		res.Rationale = strings.Join(notes, "; ")
		return res
	}

	mean, totalSamples := weightedMean(measured)
	res.Measured = mean
	res.SampleSize = totalSamples

	// Standard-error approximation for the confidence band. Without any
	// sample sizes the run count is the only usable n.
	effectiveN := totalSamples
	if effectiveN == 0 {
		effectiveN = len(measured)
	}
	se := math.Sqrt(math.Max(mean*(1-mean), 0) / float64(effectiveN))
	res.Band = model.ConfidenceBand{
		Lower: math.Max(0, mean-zScore*se),
		Upper: math.Min(1, mean+zScore*se),
	}

	if totalSamples < e.minConfidentSize {
		res.LowConfidence = true
		notes = append(notes, fmt.Sprintf("low confidence: aggregate sample %d < %d", totalSamples, e.minConfidentSize))
	}
	if unspecifiedConditions(measured) {
		res.LowConfidence = true
		notes = append(notes, "measured conditions unspecified")
	}

	if res.HasReported {
		res.Score = (res.Reported - mean) / math.Max(mean, e.epsilonFloor)
		res.HasScore = true
		notes = append(notes, fmt.Sprintf("deviation %.4f = (%.4f - %.4f) / %.4f",
			res.Score, res.Reported, mean, math.Max(mean, e.epsilonFloor)))
	} else {
		notes = append(notes, "no reported value to compare against")
	}

	res.Rationale = strings.Join(notes, "; ")
	return res
}

func filterSource(records []model.BenchmarkRecord, src model.Source) []model.BenchmarkRecord {
	out := make([]model.BenchmarkRecord, 0, len(records))
	for _, rec := range records {
		if rec.Source == src {
			out = append(out, rec)
		}
	}
	return out
}

// weightedMean aggregates measured values weighted by sample size,
// falling back to uniform weights where sizes are unknown.
func weightedMean(records []model.BenchmarkRecord) (mean float64, totalSamples int) {
	var sum, weightSum float64
	for _, rec := range records {
		weight := 1.0
		if rec.SampleSize > 0 {
			weight = float64(rec.SampleSize)
			totalSamples += rec.SampleSize
		}
		sum += rec.Value * weight
		weightSum += weight
	}
	return sum / weightSum, totalSamples
}

func valueSpread(records []model.BenchmarkRecord) float64 {
	lo, hi := records[0].Value, records[0].Value
	for _, rec := range records[1:] {
		lo = math.Min(lo, rec.Value)
		hi = math.Max(hi, rec.Value)
	}
	return hi - lo
}

func unspecifiedConditions(records []model.BenchmarkRecord) bool {
	for _, rec := range records {
		if rec.Condition.Unspecified() {
			return true
		}
	}
	return false
}
