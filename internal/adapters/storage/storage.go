// Package storage defines the durable-state port of the reconciliation
// engine and its backends.
//
// Drift history is an append-only log per cohort key: implementations
// must preserve append order and never rewrite committed points.
package storage

import (
	"context"
	"errors"

	"github.com/benchwatch/benchwatch/internal/domain/model"
)

// Sentinel kinds for storage errors.
var (
	ErrUnavailable = errors.New("storage unavailable")
	ErrNoReports   = errors.New("no reports saved yet")
)

// Store is the engine's sole source of durable state.
type Store interface {
	// LoadHistory returns the append-only point log for a key, in
	// append order.
	LoadHistory(ctx context.Context, key string) ([]model.DriftPoint, error)

	// Append commits points to the end of the key's log.
	Append(ctx context.Context, key string, points []model.DriftPoint) error

	// SaveReport persists a completed reconciliation report.
	SaveReport(ctx context.Context, report *model.ReconciliationReport) error

	// LatestReport returns the most recently saved report, or
	// ErrNoReports when none exists.
	LatestReport(ctx context.Context) (*model.ReconciliationReport, error)
}
