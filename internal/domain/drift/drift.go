// Package drift maintains per-cohort measured history and detects trend
// changes across repeated evaluation runs.
//
// History is append-only: no committed point is ever deleted or amended,
// so past verdicts stay auditable. Appends for one cohort key are
// serialized through a per-key mutex; unrelated cohorts never contend.
package drift

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/benchwatch/benchwatch/internal/domain/model"
)

// Default tracker parameters.
const (
	defaultWindow       = 5
	defaultStableBand   = 0.01
	defaultStaleEpsilon = 0.005
	secondsPerDay       = 86400
	minTrendPoints      = 3
)

// reportedTrackSuffix separates the reported-value track from the
// measured history under the same cohort key.
const reportedTrackSuffix = "|reported"

// HistoryStore is the slice of the storage port the tracker needs.
// Implementations must preserve append order and never rewrite history.
type HistoryStore interface {
	LoadHistory(ctx context.Context, key string) ([]model.DriftPoint, error)
	Append(ctx context.Context, key string, points []model.DriftPoint) error
}

// Observation carries one run's new data for a cohort.
type Observation struct {
	// Points are the run's measured observations, appended to history.
	Points []model.DriftPoint
	// Reported is the run's effective reported value, tracked separately
	// so staleness across the window can be detected.
	Reported    float64
	HasReported bool
	ReportedAt  time.Time
}

// Option applies a configuration option to the Tracker.
type Option func(*Tracker)

// WithWindow sets the trailing number of points the trend is computed on.
func WithWindow(n int) Option {
	return func(t *Tracker) {
		if n >= minTrendPoints {
			t.window = n
		}
	}
}

// WithStableBand sets the implied change below which a trend counts as
// stable.
func WithStableBand(band float64) Option {
	return func(t *Tracker) {
		if band > 0 {
			t.stableBand = band
		}
	}
}

// WithStaleEpsilon sets the reported-value variation below which the
// reported figure counts as unchanged across the window.
func WithStaleEpsilon(eps float64) Option {
	return func(t *Tracker) {
		if eps > 0 {
			t.staleEpsilon = eps
		}
	}
}

// Tracker appends drift points and derives trend signals.
type Tracker struct {
	store        HistoryStore
	window       int
	stableBand   float64
	staleEpsilon float64

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// New creates a Tracker on top of the given history store.
func New(store HistoryStore, opts ...Option) *Tracker {
	t := &Tracker{
		store:        store,
		window:       defaultWindow,
		stableBand:   defaultStableBand,
		staleEpsilon: defaultStaleEpsilon,
		locks:        make(map[string]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Update appends the observation to the cohort's history and returns the
// trend signal over the trailing window. The read-modify-append sequence
// for one key runs under that key's lock.
func (t *Tracker) Update(ctx context.Context, key model.CohortKey, obs Observation) (model.DriftSignal, error) {
	lock := t.keyLock(key.String())
	lock.Lock()
	defer lock.Unlock()

	if len(obs.Points) > 0 {
		points := make([]model.DriftPoint, len(obs.Points))
		copy(points, obs.Points)
		// Order within the batch by timestamp; equal timestamps keep
		// their submission order.
		sort.SliceStable(points, func(i, j int) bool {
			return points[i].ObservedAt.Before(points[j].ObservedAt)
		})
		if err := t.store.Append(ctx, key.String(), points); err != nil {
			return model.DriftSignal{}, fmt.Errorf("append drift points: %w", err)
		}
	}
	if obs.HasReported {
		reportedPoint := model.DriftPoint{ObservedAt: obs.ReportedAt, Value: obs.Reported}
		if err := t.store.Append(ctx, key.String()+reportedTrackSuffix, []model.DriftPoint{reportedPoint}); err != nil {
			return model.DriftSignal{}, fmt.Errorf("append reported track: %w", err)
		}
	}

	history, err := t.store.LoadHistory(ctx, key.String())
	if err != nil {
		return model.DriftSignal{}, fmt.Errorf("load drift history: %w", err)
	}
	signal := t.trend(history)

	if obs.HasReported {
		track, err := t.store.LoadHistory(ctx, key.String()+reportedTrackSuffix)
		if err != nil {
			return model.DriftSignal{}, fmt.Errorf("load reported track: %w", err)
		}
		signal.ReportedStale = t.reportedStale(track)
	}
	return signal, nil
}

// History returns the cohort's full measured history.
func (t *Tracker) History(ctx context.Context, key model.CohortKey) ([]model.DriftPoint, error) {
	return t.store.LoadHistory(ctx, key.String())
}

// trend computes the signal over the trailing window using the median of
// pairwise slopes, which a single outlier cannot distort.
func (t *Tracker) trend(history []model.DriftPoint) model.DriftSignal {
	window := history
	if len(window) > t.window {
		window = window[len(window)-t.window:]
	}
	signal := model.DriftSignal{Direction: model.TrendStable, Points: len(window)}
	if len(window) == 0 {
		return signal
	}
	signal.WindowStart = window[0].ObservedAt
	if len(window) < minTrendPoints {
		return signal
	}

	slopes := make([]float64, 0, len(window)*(len(window)-1)/2)
	for i := 0; i < len(window); i++ {
		for j := i + 1; j < len(window); j++ {
			dt := window[j].ObservedAt.Sub(window[i].ObservedAt).Seconds()
			if dt <= 0 {
				continue
			}
			slopes = append(slopes, (window[j].Value-window[i].Value)/dt*secondsPerDay)
		}
	}
	if len(slopes) == 0 {
		return signal
	}
	signal.Slope = median(slopes)

	span := window[len(window)-1].ObservedAt.Sub(window[0].ObservedAt).Seconds() / secondsPerDay
	switch implied := signal.Slope * span; {
	case implied > t.stableBand:
		signal.Direction = model.TrendImproving
	case implied < -t.stableBand:
		signal.Direction = model.TrendDegrading
	}
	return signal
}

// reportedStale reports whether the reported value has effectively not
// moved over the trailing window of reported observations.
func (t *Tracker) reportedStale(track []model.DriftPoint) bool {
	if len(track) == 0 {
		return false
	}
	if len(track) > t.window {
		track = track[len(track)-t.window:]
	}
	lo, hi := track[0].Value, track[0].Value
	for _, p := range track[1:] {
		lo = math.Min(lo, p.Value)
		hi = math.Max(hi, p.Value)
	}
	return hi-lo <= t.staleEpsilon
}

func (t *Tracker) keyLock(key string) *sync.Mutex {
	t.mu.Lock()
	defer t.mu.Unlock()
	lock, ok := t.locks[key]
	if !ok {
		lock = &sync.Mutex{}
		t.locks[key] = lock
	}
	return lock
}

func median(values []float64) float64 {
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 0 {
		return (sorted[mid-1] + sorted[mid]) / 2
	}
	return sorted[mid]
}
