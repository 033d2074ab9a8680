package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/benchwatch/benchwatch/internal/domain/model"
)

const schema = `
CREATE TABLE IF NOT EXISTS drift_points (
	seq         INTEGER PRIMARY KEY AUTOINCREMENT,
	cohort_key  TEXT    NOT NULL,
	observed_at TEXT    NOT NULL,
	value       REAL    NOT NULL,
	sample_size INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS drift_points_key ON drift_points (cohort_key, seq);
CREATE TABLE IF NOT EXISTS reports (
	seq        INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id     TEXT NOT NULL,
	created_at TEXT NOT NULL,
	payload    BLOB NOT NULL
);`

// SQLiteStore implements Store on an embedded SQLite database. The
// drift_points table is insert-only; history rows are never updated or
// deleted, which keeps the log auditable.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (and if needed initializes) the database at path.
func NewSQLiteStore(ctx context.Context, path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("%w: open %q: %v", ErrUnavailable, path, err)
	}
	// A single connection avoids "database is locked" errors under
	// concurrent cohort processing.
	db.SetMaxOpenConns(1)
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: init schema: %v", ErrUnavailable, err)
	}
	return &SQLiteStore{db: db}, nil
}

// Close releases the database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// LoadHistory returns the key's log in append order.
func (s *SQLiteStore) LoadHistory(ctx context.Context, key string) ([]model.DriftPoint, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT observed_at, value, sample_size FROM drift_points WHERE cohort_key = ? ORDER BY seq`, key)
	if err != nil {
		return nil, fmt.Errorf("%w: load history: %v", ErrUnavailable, err)
	}
	defer rows.Close()

	var points []model.DriftPoint
	for rows.Next() {
		var observedAt string
		var p model.DriftPoint
		if err := rows.Scan(&observedAt, &p.Value, &p.SampleSize); err != nil {
			return nil, fmt.Errorf("%w: scan point: %v", ErrUnavailable, err)
		}
		if observedAt != "" {
			if ts, err := time.Parse(time.RFC3339Nano, observedAt); err == nil {
				p.ObservedAt = ts
			}
		}
		points = append(points, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterate history: %v", ErrUnavailable, err)
	}
	return points, nil
}

// Append commits points in one transaction so a canceled run never
// leaves a partially written point.
func (s *SQLiteStore) Append(ctx context.Context, key string, points []model.DriftPoint) error {
	if len(points) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin append: %v", ErrUnavailable, err)
	}
	for _, p := range points {
		observedAt := ""
		if !p.ObservedAt.IsZero() {
			observedAt = p.ObservedAt.UTC().Format(time.RFC3339Nano)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO drift_points (cohort_key, observed_at, value, sample_size) VALUES (?, ?, ?, ?)`,
			key, observedAt, p.Value, p.SampleSize); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("%w: insert point: %v", ErrUnavailable, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit append: %v", ErrUnavailable, err)
	}
	return nil
}

// SaveReport stores the report as a JSON payload.
func (s *SQLiteStore) SaveReport(ctx context.Context, report *model.ReconciliationReport) error {
	payload, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO reports (run_id, created_at, payload) VALUES (?, ?, ?)`,
		report.RunID, report.CompletedAt.UTC().Format(time.RFC3339Nano), payload); err != nil {
		return fmt.Errorf("%w: insert report: %v", ErrUnavailable, err)
	}
	return nil
}

// LatestReport returns the most recently saved report.
func (s *SQLiteStore) LatestReport(ctx context.Context) (*model.ReconciliationReport, error) {
	var payload []byte
	err := s.db.QueryRowContext(ctx, `SELECT payload FROM reports ORDER BY seq DESC LIMIT 1`).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, ErrNoReports
	}
	if err != nil {
		return nil, fmt.Errorf("%w: load report: %v", ErrUnavailable, err)
	}
	var report model.ReconciliationReport
	if err := json.Unmarshal(payload, &report); err != nil {
		return nil, fmt.Errorf("decode report: %w", err)
	}
	return &report, nil
}
