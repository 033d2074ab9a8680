// Package app provides the reconciliation service that coordinates the
// domain stages over a batch of incoming records and assembles the final
// report set.
package app

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/benchwatch/benchwatch/internal/adapters/source"
	"github.com/benchwatch/benchwatch/internal/adapters/storage"
	"github.com/benchwatch/benchwatch/internal/domain/align"
	"github.com/benchwatch/benchwatch/internal/domain/deviation"
	"github.com/benchwatch/benchwatch/internal/domain/drift"
	"github.com/benchwatch/benchwatch/internal/domain/model"
	"github.com/benchwatch/benchwatch/internal/domain/normalize"
	"github.com/benchwatch/benchwatch/internal/domain/risk"
	"github.com/benchwatch/benchwatch/pkg/logger"
	"github.com/benchwatch/benchwatch/pkg/metrics"
)

// Sentinel kinds for service errors.
var (
	// ErrNotStarted is returned when Reconcile is called before Start.
	ErrNotStarted = errors.New("service not started")

	// ErrNoSource is returned when a model pull is requested but no
	// record source was configured.
	ErrNoSource = errors.New("no record source configured")
)

// defaultMaxParallel bounds cohort fan-out when no limit is configured.
const defaultMaxParallel = 8

// Service implements the reconciliation orchestrator. Cohorts are
// independent, so a run fans out over them under a bounded concurrency
// limit; per-cohort failures become ERROR rows, never run aborts.
type Service struct {
	mu sync.RWMutex

	// Core components, built on Start.
	normalizer *normalize.Normalizer
	aligner    *align.Aligner
	estimator  *deviation.Estimator
	tracker    *drift.Tracker
	classifier *risk.Classifier
	store      storage.Store
	records    source.RecordSource
	harness    source.MeasurementSource

	// Configuration
	maxParallel      int
	epsilonFloor     float64
	reportedEpsilon  float64
	lowThreshold     float64
	highThreshold    float64
	minConfidentSize int
	driftWindow      int
	driftStableBand  float64
	conditionRules   map[string][]string
	normalizeOpts    []normalize.Option

	// State
	started bool

	// Logging
	logger logger.Logger
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithStore sets the durable-state backend.
func WithStore(store storage.Store) Option {
	return func(s *Service) {
		if store != nil {
			s.store = store
		}
	}
}

// WithRecordSource sets the source used to pull a model's reported
// records on demand.
func WithRecordSource(src source.RecordSource) Option {
	return func(s *Service) {
		if src != nil {
			s.records = src
		}
	}
}

// WithMeasurementSource sets the evaluation harness used to re-measure
// pulled cohorts alongside their reported figures.
func WithMeasurementSource(src source.MeasurementSource) Option {
	return func(s *Service) {
		if src != nil {
			s.harness = src
		}
	}
}

// WithMaxParallelCohorts bounds concurrent cohort evaluation.
func WithMaxParallelCohorts(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxParallel = n
		}
	}
}

// WithEpsilonFloor sets the deviation denominator floor.
func WithEpsilonFloor(eps float64) Option {
	return func(s *Service) {
		if eps > 0 {
			s.epsilonFloor = eps
		}
	}
}

// WithReportedEpsilon sets the reported-disagreement spread.
func WithReportedEpsilon(eps float64) Option {
	return func(s *Service) {
		if eps > 0 {
			s.reportedEpsilon = eps
		}
	}
}

// WithThresholds sets the classifier's deviation bands.
func WithThresholds(low, high float64) Option {
	return func(s *Service) {
		if low > 0 && high > low {
			s.lowThreshold = low
			s.highThreshold = high
		}
	}
}

// WithMinConfidentSampleSize sets the low-confidence sample cutoff.
func WithMinConfidentSampleSize(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.minConfidentSize = n
		}
	}
}

// WithDriftWindow sets the trailing trend window in points.
func WithDriftWindow(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.driftWindow = n
		}
	}
}

// WithDriftStableBand sets the stable-trend band.
func WithDriftStableBand(band float64) Option {
	return func(s *Service) {
		if band > 0 {
			s.driftStableBand = band
		}
	}
}

// WithConditionRules sets the per-task non-discriminating condition
// fields (the condition-equivalence rule table).
func WithConditionRules(rules map[string][]string) Option {
	return func(s *Service) {
		if rules != nil {
			s.conditionRules = rules
		}
	}
}

// WithNormalizeOptions forwards vocabulary extensions to the normalizer.
func WithNormalizeOptions(opts ...normalize.Option) Option {
	return func(s *Service) {
		s.normalizeOpts = append(s.normalizeOpts, opts...)
	}
}

// New constructs a Service with default configuration.
func New(opts ...Option) *Service {
	s := &Service{
		maxParallel:      defaultMaxParallel,
		epsilonFloor:     0.05,
		reportedEpsilon:  0.02,
		lowThreshold:     0.03,
		highThreshold:    0.10,
		minConfidentSize: 100,
		driftWindow:      5,
		driftStableBand:  0.01,
		conditionRules:   map[string][]string{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start initializes the pipeline components.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	if s.logger == nil {
		s.logger = logger.Get()
	}
	if s.store == nil {
		s.store = storage.NewMemoryStore()
		s.logger.Info(ctx, "using in-memory store")
	}

	s.normalizer = normalize.New(s.normalizeOpts...)
	s.aligner = align.New(align.WithRules(s.conditionRules))
	s.estimator = deviation.New(
		deviation.WithEpsilonFloor(s.epsilonFloor),
		deviation.WithReportedEpsilon(s.reportedEpsilon),
		deviation.WithMinConfidentSampleSize(s.minConfidentSize),
	)
	s.tracker = drift.New(s.store,
		drift.WithWindow(s.driftWindow),
		drift.WithStableBand(s.driftStableBand),
	)
	s.classifier = risk.New(risk.WithThresholds(s.lowThreshold, s.highThreshold))

	s.started = true
	s.logger.Info(ctx, "reconciliation service started",
		logger.Int("maxParallelCohorts", s.maxParallel),
		logger.Float64("lowThreshold", s.lowThreshold),
		logger.Float64("highThreshold", s.highThreshold),
	)
	return nil
}

// Stop releases the service's resources.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}
	if closer, ok := s.store.(interface{ Close() error }); ok {
		_ = closer.Close()
	}
	s.started = false
	s.logger.Info(context.Background(), "reconciliation service stopped")
}

// Reconcile runs the full pipeline over a batch of raw records and
// returns the report. The report is always produced; per-record and
// per-cohort failures surface as report entries rather than errors.
func (s *Service) Reconcile(ctx context.Context, batch []normalize.RawRecord) (*model.ReconciliationReport, error) {
	s.mu.RLock()
	started := s.started
	s.mu.RUnlock()
	if !started {
		return nil, ErrNotStarted
	}

	start := time.Now()
	metrics.RecordRecordsIngested(len(batch))

	report := &model.ReconciliationReport{
		RunID:     uuid.NewString(),
		StartedAt: start,
	}

	// Normalize, collecting per-record failures without aborting.
	records := make([]model.BenchmarkRecord, 0, len(batch))
	for i, raw := range batch {
		rec, err := s.normalizer.Normalize(raw)
		if err != nil {
			reason := normalizationReason(err)
			metrics.RecordNormalizationError(reason)
			report.Failures = append(report.Failures, model.NormalizationFailure{
				Index:   i,
				ModelID: rawModelID(raw),
				Reason:  err.Error(),
			})
			continue
		}
		records = append(records, rec)
	}

	cohorts := s.aligner.Align(records)
	keys := make([]model.CohortKey, 0, len(cohorts))
	for key := range cohorts {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].String() < keys[j].String() })

	rows := make([]model.CohortReport, len(keys))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.maxParallel)
	for i, key := range keys {
		g.Go(func() error {
			rows[i] = s.processCohort(gctx, key, cohorts[key])
			return nil
		})
	}
	_ = g.Wait()

	report.Cohorts = rows
	report.CompletedAt = time.Now()

	if err := s.store.SaveReport(ctx, report); err != nil {
		// The report is still handed to the caller; persistence failure
		// only loses the stored copy.
		metrics.RecordStorageError()
		s.logger.Error(ctx, "failed to save reconciliation report",
			logger.String("runID", report.RunID), logger.Error(err))
	}

	metrics.RecordRun(float64(time.Since(start).Milliseconds()))
	s.logger.Info(ctx, "reconciliation run completed",
		logger.String("runID", report.RunID),
		logger.Int("cohorts", len(report.Cohorts)),
		logger.Int("rejectedRecords", len(report.Failures)),
	)
	return report, nil
}

// ReconcileModel pulls the model's reported records from the configured
// record source and runs the pipeline over them.
func (s *Service) ReconcileModel(ctx context.Context, modelID string) (*model.ReconciliationReport, error) {
	s.mu.RLock()
	started := s.started
	src := s.records
	s.mu.RUnlock()
	if !started {
		return nil, ErrNotStarted
	}
	if src == nil {
		return nil, ErrNoSource
	}

	batch, err := src.FetchRawRecords(ctx, modelID)
	if err != nil {
		return nil, fmt.Errorf("fetch records for %s: %w", modelID, err)
	}
	batch = append(batch, s.measure(ctx, modelID, batch)...)
	return s.Reconcile(ctx, batch)
}

// measure runs the evaluation harness once per distinct cohort found in
// the pulled batch. Harness failures skip the cohort; the run still
// proceeds with whatever was measured.
func (s *Service) measure(ctx context.Context, modelID string, batch []normalize.RawRecord) []normalize.RawRecord {
	if s.harness == nil {
		return nil
	}
	var measured []normalize.RawRecord
	seen := make(map[string]bool)
	for _, raw := range batch {
		rec, err := s.normalizer.Normalize(raw)
		if err != nil {
			continue
		}
		key := s.aligner.Key(rec)
		if seen[key.String()] {
			continue
		}
		seen[key.String()] = true

		records, err := s.harness.RunBenchmark(ctx, modelID, rec.TaskID, rec.Condition)
		if err != nil {
			s.logger.Warn(ctx, "benchmark run failed",
				logger.String("cohort", key.String()), logger.Error(err))
			continue
		}
		measured = append(measured, records...)
	}
	return measured
}

// LatestReport returns the most recently persisted report.
func (s *Service) LatestReport(ctx context.Context) (*model.ReconciliationReport, error) {
	s.mu.RLock()
	started := s.started
	s.mu.RUnlock()
	if !started {
		return nil, ErrNotStarted
	}
	return s.store.LatestReport(ctx)
}

// processCohort evaluates one cohort end to end. Failures of any stage
// yield an ERROR row; a panic inside a stage must not take down the run.
func (s *Service) processCohort(ctx context.Context, key model.CohortKey, records []model.BenchmarkRecord) (row model.CohortReport) {
	start := time.Now()
	row = model.CohortReport{Key: key, Status: model.StatusOK}

	defer func() {
		if r := recover(); r != nil {
			metrics.RecordCohortError()
			s.logger.Error(ctx, "cohort evaluation panicked",
				logger.String("cohort", key.String()), logger.Any("panic", r))
			row = model.CohortReport{
				Key:    key,
				Status: model.StatusError,
				Error:  fmt.Sprintf("internal error: %v", r),
			}
		}
	}()

	result := s.estimator.Estimate(key, records)
	row.Result = result

	signal, err := s.tracker.Update(ctx, key, driftObservation(result, records))
	if err != nil {
		metrics.RecordCohortError()
		if errors.Is(err, storage.ErrUnavailable) {
			metrics.RecordStorageError()
		}
		s.logger.Error(ctx, "drift update failed",
			logger.String("cohort", key.String()), logger.Error(err))
		row.Status = model.StatusError
		row.Error = err.Error()
		return row
	}
	row.Drift = signal
	metrics.RecordDriftPointsAppended(result.MeasuredRuns)

	verdict, rationale := s.classifier.Classify(result, signal)
	row.Verdict = verdict
	row.Rationale = rationale

	if result.HasScore {
		metrics.ObserveDeviationScore(result.Score)
	}
	metrics.RecordCohortProcessed(string(verdict), float64(time.Since(start).Milliseconds()))
	return row
}

// driftObservation collects the run's new history data for a cohort.
func driftObservation(result model.DeviationResult, records []model.BenchmarkRecord) drift.Observation {
	obs := drift.Observation{
		Reported:    result.Reported,
		HasReported: result.HasReported,
		ReportedAt:  result.ReportedAt,
	}
	for _, rec := range records {
		if rec.Source != model.SourceMeasured {
			continue
		}
		obs.Points = append(obs.Points, model.DriftPoint{
			ObservedAt: rec.ObservedAt,
			Value:      rec.Value,
			SampleSize: rec.SampleSize,
		})
	}
	return obs
}

// normalizationReason buckets a normalization error for metrics labels.
func normalizationReason(err error) string {
	switch {
	case errors.Is(err, normalize.ErrUnknownTask):
		return "unknown_task"
	case errors.Is(err, normalize.ErrUnknownMetric):
		return "unknown_metric"
	case errors.Is(err, normalize.ErrOutOfRange):
		return "out_of_range"
	case errors.Is(err, normalize.ErrMissingField):
		return "missing_field"
	case errors.Is(err, normalize.ErrBadValue):
		return "bad_value"
	default:
		return "other"
	}
}

func rawModelID(raw normalize.RawRecord) string {
	if v, ok := raw["model_id"].(string); ok {
		return v
	}
	if v, ok := raw["model"].(string); ok {
		return v
	}
	return ""
}
