// Package normalize converts raw scraped or measured entries into the
// canonical benchmark record schema. Normalization is a pure
// transformation: failures are returned as errors, never dropped or
// clamped away.
package normalize

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/benchwatch/benchwatch/internal/domain/model"
)

// RawRecord is an untyped entry as produced by the scrape and
// measurement layers.
type RawRecord map[string]any

// percentCeiling bounds values that are treated as percentages.
const percentCeiling = 100

// Option applies a configuration option to the Normalizer.
type Option func(*Normalizer)

// WithTask registers an additional canonical task and its default metric.
func WithTask(id, display, metric string) Option {
	return func(n *Normalizer) {
		if id != "" && metric != "" {
			n.tasks[id] = taskInfo{Display: display, Metric: metric}
		}
	}
}

// WithTaskAlias maps a free-form task name onto a canonical task id.
func WithTaskAlias(alias, canonical string) Option {
	return func(n *Normalizer) {
		if alias != "" && canonical != "" {
			n.taskAliases[fold(alias)] = canonical
		}
	}
}

// WithMetric registers an additional metric with its valid range.
func WithMetric(name string, lo, hi float64, percentScaled bool) Option {
	return func(n *Normalizer) {
		if name != "" && hi > lo {
			n.metrics[name] = metricInfo{Lo: lo, Hi: hi, PercentScaled: percentScaled}
		}
	}
}

// WithMetricAlias maps a free-form metric name onto a canonical one.
func WithMetricAlias(alias, canonical string) Option {
	return func(n *Normalizer) {
		if alias != "" && canonical != "" {
			n.metricAliases[fold(alias)] = canonical
		}
	}
}

// Normalizer resolves free-form task/metric names against a vocabulary
// and rescales values into each metric's declared range.
type Normalizer struct {
	tasks         map[string]taskInfo
	taskAliases   map[string]string
	metrics       map[string]metricInfo
	metricAliases map[string]string
}

// New creates a Normalizer seeded with the builtin vocabulary.
func New(opts ...Option) *Normalizer {
	n := &Normalizer{
		tasks:         builtinTasks(),
		taskAliases:   builtinTaskAliases(),
		metrics:       builtinMetrics(),
		metricAliases: builtinMetricAliases(),
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// MetricRange returns the declared valid range for a canonical metric.
func (n *Normalizer) MetricRange(metric string) (lo, hi float64, ok bool) {
	info, ok := n.metrics[metric]
	if !ok {
		return 0, 0, false
	}
	return info.Lo, info.Hi, true
}

// Normalize converts one raw entry into a canonical BenchmarkRecord.
// It is idempotent: normalizing the Raw form of a normalized record
// yields an identical record.
func (n *Normalizer) Normalize(raw RawRecord) (model.BenchmarkRecord, error) {
	var rec model.BenchmarkRecord

	modelID := stringField(raw, "model_id", "model")
	if modelID == "" {
		return rec, fmt.Errorf("model_id: %w", ErrMissingField)
	}

	taskName := stringField(raw, "task_id", "task", "benchmark", "name")
	if taskName == "" {
		return rec, fmt.Errorf("task: %w", ErrMissingField)
	}
	taskID, err := n.resolveTask(taskName)
	if err != nil {
		return rec, err
	}

	metricName := stringField(raw, "metric")
	metric := n.tasks[taskID].Metric
	if metricName != "" {
		metric, err = n.resolveMetric(metricName)
		if err != nil {
			return rec, err
		}
	}
	info := n.metrics[metric]

	value, ok, err := numberField(raw, "value")
	if err != nil {
		return rec, err
	}
	if !ok {
		return rec, fmt.Errorf("value: %w", ErrMissingField)
	}
	scaled, err := rescale(value, info)
	if err != nil {
		return rec, fmt.Errorf("%s=%v: %w", metric, value, err)
	}
	value = scaled

	source := model.SourceReported
	switch strings.ToUpper(stringField(raw, "source")) {
	case "", string(model.SourceReported):
	case string(model.SourceMeasured):
		source = model.SourceMeasured
	default:
		return rec, fmt.Errorf("source %q: %w", raw["source"], ErrBadValue)
	}

	cond, err := normalizeCondition(raw)
	if err != nil {
		return rec, err
	}

	observedAt, err := timeField(raw, "observed_at")
	if err != nil {
		return rec, err
	}

	sampleSize := 0
	if v, ok, err := numberField(raw, "sample_size"); err != nil {
		return rec, err
	} else if ok {
		if v < 0 || v != math.Trunc(v) {
			return rec, fmt.Errorf("sample_size %v: %w", v, ErrBadValue)
		}
		sampleSize = int(v)
	}

	rec = model.BenchmarkRecord{
		ModelID:    modelID,
		TaskID:     taskID,
		Metric:     metric,
		Value:      value,
		Source:     source,
		Condition:  cond,
		ObservedAt: observedAt,
		SampleSize: sampleSize,
	}
	if err := rec.Validate(info.Lo, info.Hi); err != nil {
		return model.BenchmarkRecord{}, fmt.Errorf("%w: %v", ErrOutOfRange, err)
	}
	return rec, nil
}

// Raw converts a normalized record back into its raw-map form. Feeding
// the result to Normalize reproduces the record exactly.
func Raw(rec model.BenchmarkRecord) RawRecord {
	raw := RawRecord{
		"model_id": rec.ModelID,
		"task_id":  rec.TaskID,
		"metric":   rec.Metric,
		"value":    rec.Value,
		"source":   string(rec.Source),
		"shots":    string(rec.Condition.Shots),
		"decoding": string(rec.Condition.Decoding),
	}
	if rec.Condition.PromptTemplate != "" {
		raw["prompt_template"] = rec.Condition.PromptTemplate
	}
	if !rec.ObservedAt.IsZero() {
		raw["observed_at"] = rec.ObservedAt.Format(time.RFC3339Nano)
	}
	if rec.SampleSize > 0 {
		raw["sample_size"] = rec.SampleSize
	}
	return raw
}

func (n *Normalizer) resolveTask(name string) (string, error) {
	if _, ok := n.tasks[name]; ok {
		return name, nil
	}
	folded := fold(name)
	if _, ok := n.tasks[folded]; ok {
		return folded, nil
	}
	if canonical, ok := n.taskAliases[folded]; ok {
		return canonical, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownTask, name)
}

func (n *Normalizer) resolveMetric(name string) (string, error) {
	if _, ok := n.metrics[name]; ok {
		return name, nil
	}
	folded := fold(name)
	if _, ok := n.metrics[folded]; ok {
		return folded, nil
	}
	if canonical, ok := n.metricAliases[folded]; ok {
		return canonical, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownMetric, name)
}

// rescale maps percentage input into the metric range and rejects values
// that fit neither scale.
func rescale(v float64, info metricInfo) (float64, error) {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, ErrBadValue
	}
	if v >= info.Lo && v <= info.Hi {
		return v, nil
	}
	if info.PercentScaled && v > info.Hi && v <= percentCeiling {
		return v / percentCeiling, nil
	}
	return 0, ErrOutOfRange
}

// normalizeCondition folds raw condition descriptors into the fixed
// vocabulary. Missing fields default to unspecified rather than erroring.
func normalizeCondition(raw RawRecord) (model.Condition, error) {
	cond := model.Condition{
		Shots:          model.ShotUnspecified,
		Decoding:       model.DecodingUnspecified,
		PromptTemplate: strings.ToLower(strings.TrimSpace(stringField(raw, "prompt_template", "prompt"))),
	}

	shotsRaw, present := firstField(raw, "shots", "num_shots", "num_fewshot")
	if present {
		bucket, err := shotBucket(shotsRaw)
		if err != nil {
			return cond, err
		}
		cond.Shots = bucket
	}

	switch fold(stringField(raw, "decoding", "decoding_strategy")) {
	case "":
	case "greedy", "greedydecoding":
		cond.Decoding = model.DecodingGreedy
	case "sampled", "sampling", "temperature":
		cond.Decoding = model.DecodingSampled
	case "unspecified":
	default:
		return cond, fmt.Errorf("decoding %q: %w", raw["decoding"], ErrBadValue)
	}
	return cond, nil
}

// shotBucket maps a raw shot count onto {0,1,5,few,many}.
func shotBucket(v any) (model.ShotBucket, error) {
	switch s := v.(type) {
	case string:
		switch fold(s) {
		case string(model.ShotFew):
			return model.ShotFew, nil
		case string(model.ShotMany):
			return model.ShotMany, nil
		case string(model.ShotUnspecified), "":
			return model.ShotUnspecified, nil
		}
		f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return "", fmt.Errorf("shots %q: %w", s, ErrBadValue)
		}
		return shotBucketFromCount(f)
	default:
		f, ok := toFloat(v)
		if !ok {
			return "", fmt.Errorf("shots %v: %w", v, ErrBadValue)
		}
		return shotBucketFromCount(f)
	}
}

func shotBucketFromCount(f float64) (model.ShotBucket, error) {
	if f < 0 || f != math.Trunc(f) {
		return "", fmt.Errorf("shots %v: %w", f, ErrBadValue)
	}
	switch count := int(f); {
	case count == 0:
		return model.ShotZero, nil
	case count == 1:
		return model.ShotOne, nil
	case count == 5:
		return model.ShotFive, nil
	case count < 10:
		return model.ShotFew, nil
	default:
		return model.ShotMany, nil
	}
}

// stringField returns the first present non-empty string among keys.
func stringField(raw RawRecord, keys ...string) string {
	for _, key := range keys {
		if v, ok := raw[key]; ok {
			if s, ok := v.(string); ok {
				return strings.TrimSpace(s)
			}
		}
	}
	return ""
}

// firstField returns the first present value among keys.
func firstField(raw RawRecord, keys ...string) (any, bool) {
	for _, key := range keys {
		if v, ok := raw[key]; ok && v != nil {
			return v, true
		}
	}
	return nil, false
}

// numberField parses a numeric field that may arrive as a number, a
// json.Number, or a string like "85.2" or "85.2%".
func numberField(raw RawRecord, key string) (float64, bool, error) {
	v, ok := raw[key]
	if !ok || v == nil {
		return 0, false, nil
	}
	if f, ok := toFloat(v); ok {
		return f, true, nil
	}
	s, ok := v.(string)
	if !ok {
		return 0, false, fmt.Errorf("%s %v: %w", key, v, ErrBadValue)
	}
	s = strings.TrimSpace(s)
	percent := strings.HasSuffix(s, "%")
	s = strings.TrimSuffix(s, "%")
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, false, fmt.Errorf("%s %q: %w", key, v, ErrBadValue)
	}
	if percent {
		f /= percentCeiling
	}
	return f, true, nil
}

func toFloat(v any) (float64, bool) {
	switch f := v.(type) {
	case float64:
		return f, true
	case float32:
		return float64(f), true
	case int:
		return float64(f), true
	case int64:
		return float64(f), true
	case json.Number:
		parsed, err := f.Float64()
		return parsed, err == nil
	default:
		return 0, false
	}
}

// timeField parses an RFC3339 timestamp field; absence yields zero time.
func timeField(raw RawRecord, key string) (time.Time, error) {
	v, ok := raw[key]
	if !ok || v == nil {
		return time.Time{}, nil
	}
	switch t := v.(type) {
	case time.Time:
		return t, nil
	case string:
		parsed, err := time.Parse(time.RFC3339Nano, strings.TrimSpace(t))
		if err != nil {
			parsed, err = time.Parse(time.RFC3339, strings.TrimSpace(t))
		}
		if err != nil {
			return time.Time{}, fmt.Errorf("%s %q: %w", key, t, ErrBadValue)
		}
		return parsed, nil
	default:
		return time.Time{}, fmt.Errorf("%s %v: %w", key, v, ErrBadValue)
	}
}
