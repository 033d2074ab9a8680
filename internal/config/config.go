// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - Provide New() to build a Config with defaults; Load layers file/env.
// - External errors must be wrapped via this package's error helpers.
package config

import "runtime"

// Config contains process configuration for the reconciliation service.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// Addr configures the HTTP listen address, e.g. ":9090".
	Addr string `koanf:"addr"`

	// MaxParallelCohorts bounds concurrent cohort evaluation within a run.
	MaxParallelCohorts int `koanf:"max_parallel_cohorts"`

	// EpsilonFloor is the denominator floor of the deviation score.
	EpsilonFloor float64 `koanf:"epsilon_floor"`

	// ReportedEpsilon is the spread beyond which multiple reported values
	// for one cohort count as internally inconsistent.
	ReportedEpsilon float64 `koanf:"reported_epsilon"`

	// LowThreshold and HighThreshold are the deviation bands of the risk
	// classifier.
	LowThreshold  float64 `koanf:"low_threshold"`
	HighThreshold float64 `koanf:"high_threshold"`

	// MinConfidentSampleSize marks results low-confidence below it.
	MinConfidentSampleSize int `koanf:"min_confident_sample_size"`

	// DriftWindow is the trailing number of history points trends are
	// computed on.
	DriftWindow int `koanf:"drift_window"`

	// DriftStableBand is the implied change below which a trend counts
	// as stable.
	DriftStableBand float64 `koanf:"drift_stable_band"`

	// NonDiscriminating lists, per task, the condition fields that do not
	// split cohorts (the condition-equivalence rule table).
	NonDiscriminating map[string][]string `koanf:"non_discriminating"`

	// Storage selects the history backend: "memory" or "sqlite".
	Storage string `koanf:"storage"`

	// SQLitePath locates the database file when Storage is "sqlite".
	SQLitePath string `koanf:"sqlite_path"`

	// ScrapeDir is where the scrape layer drops its JSON handoff files.
	ScrapeDir string `koanf:"scrape_dir"`
}

// Storage backends.
const (
	StorageMemory = "memory"
	StorageSQLite = "sqlite"
)

// New creates a Config with defaults. The threshold values are tunable
// parameters, not fixed constants.
func New() *Config {
	return &Config{
		LogLevel:               "info",
		Addr:                   ":9090",
		MaxParallelCohorts:     runtime.NumCPU() * 2,
		EpsilonFloor:           0.05,
		ReportedEpsilon:        0.02,
		LowThreshold:           0.03,
		HighThreshold:          0.10,
		MinConfidentSampleSize: 100,
		DriftWindow:            5,
		DriftStableBand:        0.01,
		NonDiscriminating:      map[string][]string{},
		Storage:                StorageMemory,
		SQLitePath:             "benchwatch.db",
		ScrapeDir:              "data",
	}
}
