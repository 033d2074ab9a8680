package storage

import (
	"context"
	"sync"

	"github.com/benchwatch/benchwatch/internal/domain/model"
)

// MemoryStore implements Store with in-process maps. It backs tests and
// single-node deployments that do not need durability.
type MemoryStore struct {
	mu      sync.RWMutex
	history map[string][]model.DriftPoint
	reports []*model.ReconciliationReport
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{history: make(map[string][]model.DriftPoint)}
}

// LoadHistory returns a copy of the key's log in append order.
func (s *MemoryStore) LoadHistory(_ context.Context, key string) ([]model.DriftPoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	points := s.history[key]
	out := make([]model.DriftPoint, len(points))
	copy(out, points)
	return out, nil
}

// Append commits points to the end of the key's log.
func (s *MemoryStore) Append(_ context.Context, key string, points []model.DriftPoint) error {
	if len(points) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history[key] = append(s.history[key], points...)
	return nil
}

// SaveReport keeps the report in memory.
func (s *MemoryStore) SaveReport(_ context.Context, report *model.ReconciliationReport) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reports = append(s.reports, report)
	return nil
}

// LatestReport returns the most recently saved report.
func (s *MemoryStore) LatestReport(_ context.Context) (*model.ReconciliationReport, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.reports) == 0 {
		return nil, ErrNoReports
	}
	return s.reports[len(s.reports)-1], nil
}
