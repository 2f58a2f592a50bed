package storage

import (
	"context"

	"chart-strategy-lab/internal/domain"
)

// splitRunStore routes run scalars and equity curves to different backends.
type splitRunStore struct {
	runs   RunStore
	equity EquityCurveStore
}

// SplitRunStore returns a RunStore that keeps run rows in runs and equity
// curves in equity. Used when the run scalars live in Postgres while the
// point-heavy curves go to ClickHouse.
func SplitRunStore(runs RunStore, equity EquityCurveStore) RunStore {
	return &splitRunStore{runs: runs, equity: equity}
}

func (s *splitRunStore) SaveRun(ctx context.Context, r *domain.RunResult) error {
	return s.runs.SaveRun(ctx, r)
}

func (s *splitRunStore) GetRun(ctx context.Context, runID string) (*domain.RunResult, error) {
	return s.runs.GetRun(ctx, runID)
}

func (s *splitRunStore) ListRuns(ctx context.Context, limit int) ([]*domain.RunResult, error) {
	return s.runs.ListRuns(ctx, limit)
}

func (s *splitRunStore) SaveEquityCurve(ctx context.Context, runID string, points []domain.EquityPoint) error {
	return s.equity.SaveEquityCurve(ctx, runID, points)
}

func (s *splitRunStore) GetEquityCurve(ctx context.Context, runID string) ([]domain.EquityPoint, error) {
	return s.equity.GetEquityCurve(ctx, runID)
}
