package memory

import (
	"context"
	"sort"
	"sync"

	"chart-strategy-lab/internal/domain"
	"chart-strategy-lab/internal/storage"
)

// RunStore is an in-memory implementation of storage.RunStore.
type RunStore struct {
	mu     sync.RWMutex
	runs   map[string]*domain.RunResult    // keyed by run_id, Trades/EquityCurve stripped
	curves map[string][]domain.EquityPoint // keyed by run_id
}

// NewRunStore creates a new in-memory run store.
func NewRunStore() *RunStore {
	return &RunStore{
		runs:   make(map[string]*domain.RunResult),
		curves: make(map[string][]domain.EquityPoint),
	}
}

// SaveRun stores a run result. Returns ErrDuplicateKey if run_id exists.
func (s *RunStore) SaveRun(_ context.Context, r *domain.RunResult) error {
	if r == nil || r.RunID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.runs[r.RunID]; exists {
		return storage.ErrDuplicateKey
	}

	copy := *r
	copy.Trades = nil
	copy.EquityCurve = nil
	copy.Warnings = append([]string(nil), r.Warnings...)
	s.runs[r.RunID] = &copy
	return nil
}

// GetRun retrieves a run by its ID with Trades and EquityCurve unset.
// Returns ErrNotFound if not exists.
func (s *RunStore) GetRun(_ context.Context, runID string) (*domain.RunResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, exists := s.runs[runID]
	if !exists {
		return nil, storage.ErrNotFound
	}

	copy := *r
	copy.Warnings = append([]string(nil), r.Warnings...)
	return &copy, nil
}

// ListRuns retrieves runs ordered by start time DESC. A limit <= 0 returns
// all runs.
func (s *RunStore) ListRuns(_ context.Context, limit int) ([]*domain.RunResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*domain.RunResult, 0, len(s.runs))
	for _, r := range s.runs {
		copy := *r
		copy.Warnings = append([]string(nil), r.Warnings...)
		result = append(result, &copy)
	}

	sort.Slice(result, func(i, j int) bool {
		if !result[i].StartedAt.Equal(result[j].StartedAt) {
			return result[i].StartedAt.After(result[j].StartedAt)
		}
		return result[i].RunID < result[j].RunID
	})

	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// SaveEquityCurve stores the equity points of a run. Returns ErrDuplicateKey
// if the run already has points.
func (s *RunStore) SaveEquityCurve(_ context.Context, runID string, points []domain.EquityPoint) error {
	if runID == "" {
		return storage.ErrInvalidInput
	}
	if len(points) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.curves[runID]; exists {
		return storage.ErrDuplicateKey
	}

	s.curves[runID] = append([]domain.EquityPoint(nil), points...)
	return nil
}

// GetEquityCurve retrieves the equity points of a run, ordered by bar ASC.
// Returns ErrNotFound if the run has none.
func (s *RunStore) GetEquityCurve(_ context.Context, runID string) ([]domain.EquityPoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	points, exists := s.curves[runID]
	if !exists {
		return nil, storage.ErrNotFound
	}

	result := append([]domain.EquityPoint(nil), points...)
	sort.Slice(result, func(i, j int) bool { return result[i].Bar < result[j].Bar })
	return result, nil
}

var _ storage.RunStore = (*RunStore)(nil)
