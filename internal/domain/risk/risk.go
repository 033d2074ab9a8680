// Package risk maps deviation and drift signals onto a discrete
// overclaiming-risk verdict.
//
// The policy is an ordered rule list, first match wins. Rules are
// deliberately simple and deterministic; every verdict names the rule
// that fired and the numeric inputs so a reviewer can audit it.
package risk

import (
	"fmt"
	"math"

	"github.com/benchwatch/benchwatch/internal/domain/model"
)

// Default classification thresholds on the absolute deviation score.
const (
	defaultLowThreshold  = 0.03
	defaultHighThreshold = 0.10
)

// Option applies a configuration option to the Classifier.
type Option func(*Classifier)

// WithThresholds sets the low and high deviation bands.
func WithThresholds(low, high float64) Option {
	return func(c *Classifier) {
		if low > 0 && high > low {
			c.low = low
			c.high = high
		}
	}
}

// Classifier applies the ordered decision policy.
type Classifier struct {
	low  float64
	high float64
}

// New creates a Classifier with default thresholds.
func New(opts ...Option) *Classifier {
	c := &Classifier{low: defaultLowThreshold, high: defaultHighThreshold}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Classify returns the verdict for one cohort plus its rationale.
func (c *Classifier) Classify(res model.DeviationResult, sig model.DriftSignal) (model.RiskVerdict, string) {
	// Rule 1: nothing to compare.
	if res.MeasuredRuns == 0 {
		return model.VerdictInsufficientData,
			fmt.Sprintf("rule=no-measured-data: %d measured runs", res.MeasuredRuns)
	}
	if !res.HasScore {
		return model.VerdictInsufficientData,
			"rule=no-reported-value: measured data present but nothing was claimed for this cohort"
	}

	verdict, rationale := c.classifyByScore(res, sig)

	// Rule 2: internal contradiction in reporting is inherently
	// significant, whatever the numeric deviation says.
	if res.InconsistentReported && !verdict.AtLeast(model.VerdictSignificantDeviation) {
		return model.VerdictSignificantDeviation,
			fmt.Sprintf("rule=inconsistent-reported: reported records disagree; score-based verdict %s raised to %s",
				verdict, model.VerdictSignificantDeviation)
	}
	if res.InconsistentReported {
		rationale += "; inconsistent reported values noted"
	}
	return verdict, rationale
}

func (c *Classifier) classifyByScore(res model.DeviationResult, sig model.DriftSignal) (model.RiskVerdict, string) {
	abs := math.Abs(res.Score)
	switch {
	// Rule 3.
	case abs < c.low:
		return model.VerdictConsistent,
			fmt.Sprintf("rule=within-low-band: |%.4f| < %.4f", res.Score, c.low)
	// Rule 4.
	case abs < c.high:
		return model.VerdictMinorDeviation,
			fmt.Sprintf("rule=within-high-band: %.4f <= |%.4f| < %.4f", c.low, res.Score, c.high)
	// Rule 5: large deviation but the evidence is thin; flagged, not
	// escalated further.
	case res.LowConfidence:
		return model.VerdictSignificantDeviation,
			fmt.Sprintf("rule=above-high-band-low-confidence: |%.4f| >= %.4f with aggregate sample %d",
				res.Score, c.high, res.SampleSize)
	// Rule 6.
	default:
		if sig.Direction == model.TrendDegrading && sig.ReportedStale {
			return model.VerdictCriticalOverclaim,
				fmt.Sprintf("rule=overclaim-with-degrading-drift: |%.4f| >= %.4f, sample %d, drift %s over %d points with unchanged reported value",
					res.Score, c.high, res.SampleSize, sig.Direction, sig.Points)
		}
		return model.VerdictLikelyOverclaim,
			fmt.Sprintf("rule=above-high-band: |%.4f| >= %.4f with aggregate sample %d",
				res.Score, c.high, res.SampleSize)
	}
}
