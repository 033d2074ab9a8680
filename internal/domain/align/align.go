// Package align groups normalized records into comparable cohorts.
//
// Cohort membership is keyed by (model, task, metric, condition class).
// Condition-class equality is looser than raw condition equality: fields
// declared non-discriminating for a task are dropped from the class, so
// superficially different setups still land in the same cohort.
package align

import (
	"sort"
	"strings"

	"github.com/benchwatch/benchwatch/internal/domain/model"
)

// Option applies a configuration option to the Aligner.
type Option func(*Aligner)

// WithNonDiscriminating declares condition fields that do not
// discriminate cohorts for the given task.
func WithNonDiscriminating(taskID string, fields ...string) Option {
	return func(a *Aligner) {
		if taskID == "" || len(fields) == 0 {
			return
		}
		set := a.nonDiscriminating[taskID]
		if set == nil {
			set = make(map[string]bool, len(fields))
			a.nonDiscriminating[taskID] = set
		}
		for _, f := range fields {
			set[f] = true
		}
	}
}

// WithRules replaces the whole per-task rule table, as loaded from
// configuration.
func WithRules(rules map[string][]string) Option {
	return func(a *Aligner) {
		for task, fields := range rules {
			WithNonDiscriminating(task, fields...)(a)
		}
	}
}

// Aligner builds cohort keys using a per-task condition-equivalence
// rule table.
type Aligner struct {
	nonDiscriminating map[string]map[string]bool
}

// New creates an Aligner. Without options every condition field
// discriminates.
func New(opts ...Option) *Aligner {
	a := &Aligner{nonDiscriminating: make(map[string]map[string]bool)}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Key computes the cohort key for one record.
func (a *Aligner) Key(rec model.BenchmarkRecord) model.CohortKey {
	return model.CohortKey{
		ModelID:        rec.ModelID,
		TaskID:         rec.TaskID,
		Metric:         rec.Metric,
		ConditionClass: a.conditionClass(rec.TaskID, rec.Condition),
	}
}

// Align groups records into cohorts. Cohorts holding only one source are
// retained; the classifier needs them for INSUFFICIENT_DATA verdicts.
func (a *Aligner) Align(records []model.BenchmarkRecord) map[model.CohortKey][]model.BenchmarkRecord {
	cohorts := make(map[model.CohortKey][]model.BenchmarkRecord)
	for _, rec := range records {
		key := a.Key(rec)
		cohorts[key] = append(cohorts[key], rec)
	}
	return cohorts
}

// conditionClass renders the discriminating condition fields in a stable
// order. Unspecified values still discriminate unless ruled out: an
// unknown setup is not assumed equal to a known one.
func (a *Aligner) conditionClass(taskID string, c model.Condition) string {
	skip := a.nonDiscriminating[taskID]
	parts := make([]string, 0, 3)
	if !skip[model.FieldShots] {
		parts = append(parts, model.FieldShots+"="+string(c.Shots))
	}
	if !skip[model.FieldDecoding] {
		parts = append(parts, model.FieldDecoding+"="+string(c.Decoding))
	}
	if !skip[model.FieldPromptTemplate] && c.PromptTemplate != "" {
		parts = append(parts, model.FieldPromptTemplate+"="+c.PromptTemplate)
	}
	sort.Strings(parts)
	if len(parts) == 0 {
		return "any"
	}
	return strings.Join(parts, ",")
}
