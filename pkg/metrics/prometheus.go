// Package metrics provides Prometheus metrics for the benchwatch
// reconciliation service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager manages all Prometheus metrics for the reconciliation engine.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	enabled          bool
	registry         prometheus.Registerer

	// Ingestion metrics
	recordsIngested     prometheus.Counter
	normalizationErrors *prometheus.CounterVec

	// Reconciliation metrics
	runsTotal         prometheus.Counter
	runDuration       prometheus.Histogram
	cohortsProcessed  prometheus.Counter
	cohortErrors      prometheus.Counter
	cohortLatency     prometheus.Histogram
	verdicts          *prometheus.CounterVec
	deviationScoreAbs prometheus.Histogram

	// Drift metrics
	driftPointsAppended prometheus.Counter

	// Storage metrics
	storageErrors prometheus.Counter

	// HTTP metrics
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
}

// Global metrics manager instance.
var globalManager *Manager //nolint:gochecknoglobals // intentional global for singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // intentional global for metrics registry

// Initialize global metrics.
func init() { //nolint:gochecknoinits // intentional init for global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// deviationBuckets spread over the deviation bands the classifier uses.
var deviationBuckets = []float64{0.01, 0.03, 0.05, 0.1, 0.2, 0.3, 0.5, 1, 2} //nolint:gochecknoglobals // bucket layout constant

// NewManager creates a new metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "benchwatch",
		subsystem:        "recon",
		histogramBuckets: prometheus.DefBuckets,
		enabled:          true,
		registry:         prometheus.DefaultRegisterer,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.initializeMetrics()
	return m
}

// initializeMetrics creates all the Prometheus metrics.
func (m *Manager) initializeMetrics() {
	auto := promauto.With(m.registry)

	m.recordsIngested = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "records_ingested_total",
		Help:      "Total number of raw benchmark records submitted for reconciliation",
	})

	m.normalizationErrors = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "normalization_errors_total",
			Help:      "Total number of raw records rejected during normalization, by reason",
		},
		[]string{"reason"},
	)

	m.runsTotal = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "runs_total",
		Help:      "Total number of reconciliation runs completed",
	})

	m.runDuration = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "run_duration_milliseconds",
		Help:      "Reconciliation run duration in milliseconds",
		Buckets:   m.histogramBuckets,
	})

	m.cohortsProcessed = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "cohorts_processed_total",
		Help:      "Total number of cohorts evaluated across all runs",
	})

	m.cohortErrors = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "cohort_errors_total",
		Help:      "Total number of cohorts that produced an ERROR row",
	})

	m.cohortLatency = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "cohort_latency_milliseconds",
		Help:      "Per-cohort evaluation latency in milliseconds",
		Buckets:   m.histogramBuckets,
	})

	m.verdicts = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "verdicts_total",
			Help:      "Total number of risk verdicts issued, by category",
		},
		[]string{"verdict"},
	)

	m.deviationScoreAbs = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "deviation_score_abs",
		Help:      "Histogram of absolute deviation scores across cohorts",
		Buckets:   deviationBuckets,
	})

	m.driftPointsAppended = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "drift_points_appended_total",
		Help:      "Total number of drift points committed to cohort histories",
	})

	m.storageErrors = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "storage_errors_total",
		Help:      "Total number of storage failures observed by the engine",
	})

	m.httpRequests = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests by endpoint and method",
		},
		[]string{"endpoint", "method", "status_code"},
	)

	m.httpRequestDuration = auto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "http_request_duration_milliseconds",
			Help:      "HTTP request duration in milliseconds",
			Buckets:   m.histogramBuckets,
		},
		[]string{"endpoint", "method", "status_code"},
	)
}

// RecordRecordsIngested counts raw records entering a run.
func RecordRecordsIngested(n int) {
	globalManager.recordsIngested.Add(float64(n))
}

// RecordNormalizationError counts one rejected raw record.
func RecordNormalizationError(reason string) {
	globalManager.normalizationErrors.WithLabelValues(reason).Inc()
}

// RecordRun counts a completed reconciliation run.
func RecordRun(durationMs float64) {
	globalManager.runsTotal.Inc()
	globalManager.runDuration.Observe(durationMs)
}

// RecordCohortProcessed counts one evaluated cohort and its verdict.
func RecordCohortProcessed(verdict string, latencyMs float64) {
	globalManager.cohortsProcessed.Inc()
	globalManager.verdicts.WithLabelValues(verdict).Inc()
	globalManager.cohortLatency.Observe(latencyMs)
}

// RecordCohortError counts one cohort that ended as an ERROR row.
func RecordCohortError() {
	globalManager.cohortErrors.Inc()
}

// ObserveDeviationScore records the absolute deviation score of a cohort.
func ObserveDeviationScore(score float64) {
	if score < 0 {
		score = -score
	}
	globalManager.deviationScoreAbs.Observe(score)
}

// RecordDriftPointsAppended counts committed drift points.
func RecordDriftPointsAppended(n int) {
	globalManager.driftPointsAppended.Add(float64(n))
}

// RecordStorageError counts one storage failure.
func RecordStorageError() {
	globalManager.storageErrors.Inc()
}

// RecordHTTPRequest counts one HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request latency.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, durationMs float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(durationMs)
}

// GetRegistry exposes the custom registry for the /metrics endpoint.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
