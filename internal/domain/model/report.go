package model

import (
	"fmt"
	"strings"
	"time"
)

// CohortStatus marks whether a cohort row was fully evaluated.
type CohortStatus string

// Cohort row statuses.
const (
	StatusOK    CohortStatus = "OK"
	StatusError CohortStatus = "ERROR"
)

// CohortReport is one row of a reconciliation report.
type CohortReport struct {
	Key       CohortKey       `json:"key"`
	Status    CohortStatus    `json:"status"`
	Result    DeviationResult `json:"result"`
	Drift     DriftSignal     `json:"drift"`
	Verdict   RiskVerdict     `json:"verdict"`
	Rationale string          `json:"rationale"`
	// Error explains why the cohort could not be fully evaluated.
	// Set only when Status is ERROR.
	Error string `json:"error,omitempty"`
}

// NormalizationFailure records a raw record that was rejected before
// alignment. Failures are reported, never silently dropped.
type NormalizationFailure struct {
	// Index is the position of the raw record within the submitted batch.
	Index   int    `json:"index"`
	ModelID string `json:"model_id,omitempty"`
	Reason  string `json:"reason"`
}

// ReconciliationReport is the sole artifact of a reconciliation run.
// Its schema is the stable contract the report/CLI layers depend on.
type ReconciliationReport struct {
	RunID       string                 `json:"run_id"`
	StartedAt   time.Time              `json:"started_at"`
	CompletedAt time.Time              `json:"completed_at"`
	Cohorts     []CohortReport         `json:"cohorts"`
	Failures    []NormalizationFailure `json:"failures,omitempty"`
}

// Counts tallies rows per verdict plus error rows.
func (r *ReconciliationReport) Counts() map[string]int {
	counts := make(map[string]int)
	for i := range r.Cohorts {
		if r.Cohorts[i].Status == StatusError {
			counts["ERROR"]++
			continue
		}
		counts[string(r.Cohorts[i].Verdict)]++
	}
	return counts
}

// Render produces the plain-text comparison report consumed by logs and
// the CLI layer.
func (r *ReconciliationReport) Render() string {
	var b strings.Builder
	line := strings.Repeat("=", 60)
	fmt.Fprintf(&b, "%s\nBENCHMARK RECONCILIATION REPORT %s\n%s\n", line, r.RunID, line)
	for i := range r.Cohorts {
		c := &r.Cohorts[i]
		fmt.Fprintf(&b, "Model: %s\nTask: %s (%s)\n", c.Key.ModelID, c.Key.TaskID, c.Key.Metric)
		if c.Status == StatusError {
			fmt.Fprintf(&b, "Status: ERROR (%s)\n%s\n", c.Error, strings.Repeat("-", 40))
			continue
		}
		if c.Result.HasReported {
			fmt.Fprintf(&b, "Reported: %.4f\n", c.Result.Reported)
		} else {
			b.WriteString("Reported: -\n")
		}
		if c.Result.MeasuredRuns > 0 {
			fmt.Fprintf(&b, "Measured: %.4f (n=%d over %d runs)\n", c.Result.Measured, c.Result.SampleSize, c.Result.MeasuredRuns)
		} else {
			b.WriteString("Measured: -\n")
		}
		if c.Result.HasScore {
			fmt.Fprintf(&b, "Deviation: %+.2f%%\n", c.Result.Score*100)
		}
		fmt.Fprintf(&b, "Drift: %s\n", c.Drift.Direction)
		fmt.Fprintf(&b, "Status: %s\n", c.Verdict)
		fmt.Fprintf(&b, "Why: %s\n", c.Rationale)
		b.WriteString(strings.Repeat("-", 40) + "\n")
	}
	if len(r.Failures) > 0 {
		fmt.Fprintf(&b, "Rejected records: %d\n", len(r.Failures))
		for _, f := range r.Failures {
			fmt.Fprintf(&b, "  [%d] %s: %s\n", f.Index, f.ModelID, f.Reason)
		}
	}
	return b.String()
}
