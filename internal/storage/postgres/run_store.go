package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"chart-strategy-lab/internal/domain"
	"chart-strategy-lab/internal/storage"
)

// RunStore implements storage.RunStore using PostgreSQL. Run scalars live in
// the runs table, equity points in equity_points keyed (run_id, bar).
type RunStore struct {
	pool *Pool
}

// NewRunStore creates a new RunStore.
func NewRunStore(pool *Pool) *RunStore {
	return &RunStore{pool: pool}
}

// Compile-time interface check.
var _ storage.RunStore = (*RunStore)(nil)

// SaveRun stores a run result. Returns ErrDuplicateKey if run_id exists.
// Trades and equity points are persisted through their own stores.
func (s *RunStore) SaveRun(ctx context.Context, r *domain.RunResult) error {
	query := `
		INSERT INTO runs (
			run_id, strategy_id, symbol, timeframe, state,
			initial_capital, final_equity,
			bars_processed, signals_seen, orders_rejected, orders_dropped,
			warnings, started_at, finished_at, err
		) VALUES (
			$1, $2, $3, $4, $5,
			$6, $7,
			$8, $9, $10, $11,
			$12, $13, $14, $15
		)
	`

	_, err := s.pool.Exec(ctx, query,
		r.RunID, r.StrategyID, r.Symbol, r.Timeframe, r.State,
		r.InitialCapital, r.FinalEquity,
		r.BarsProcessed, r.SignalsSeen, r.OrdersRejected, r.OrdersDropped,
		r.Warnings, r.StartedAt, r.FinishedAt, r.Err,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

// GetRun retrieves a run by its ID with Trades and EquityCurve unset.
// Returns ErrNotFound if not exists.
func (s *RunStore) GetRun(ctx context.Context, runID string) (*domain.RunResult, error) {
	query := `
		SELECT
			run_id, strategy_id, symbol, timeframe, state,
			initial_capital, final_equity,
			bars_processed, signals_seen, orders_rejected, orders_dropped,
			warnings, started_at, finished_at, err
		FROM runs
		WHERE run_id = $1
	`

	row := s.pool.QueryRow(ctx, query, runID)
	r, err := scanRun(row)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get run by id: %w", err)
	}
	return r, nil
}

// ListRuns retrieves runs ordered by start time DESC. A limit <= 0 returns
// all runs.
func (s *RunStore) ListRuns(ctx context.Context, limit int) ([]*domain.RunResult, error) {
	query := `
		SELECT
			run_id, strategy_id, symbol, timeframe, state,
			initial_capital, final_equity,
			bars_processed, signals_seen, orders_rejected, orders_dropped,
			warnings, started_at, finished_at, err
		FROM runs
		ORDER BY started_at DESC, run_id ASC
	`

	var (
		rows pgx.Rows
		err  error
	)
	if limit > 0 {
		rows, err = s.pool.Query(ctx, query+` LIMIT $1`, limit)
	} else {
		rows, err = s.pool.Query(ctx, query)
	}
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	return scanRuns(rows)
}

// SaveEquityCurve stores the equity points of a run. Returns ErrDuplicateKey
// if the run already has points. Saving an empty curve is a no-op.
func (s *RunStore) SaveEquityCurve(ctx context.Context, runID string, points []domain.EquityPoint) error {
	if len(points) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
		INSERT INTO equity_points (run_id, bar, time, equity)
		VALUES ($1, $2, $3, $4)
	`

	for _, p := range points {
		_, err := tx.Exec(ctx, query, runID, p.Bar, p.Time, p.Equity)
		if err != nil {
			if isDuplicateKeyError(err) {
				return storage.ErrDuplicateKey
			}
			return fmt.Errorf("insert equity point: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}

	return nil
}

// GetEquityCurve retrieves the equity points of a run, ordered by bar ASC.
// Returns ErrNotFound if the run has none.
func (s *RunStore) GetEquityCurve(ctx context.Context, runID string) ([]domain.EquityPoint, error) {
	query := `
		SELECT bar, time, equity
		FROM equity_points
		WHERE run_id = $1
		ORDER BY bar ASC
	`

	rows, err := s.pool.Query(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("get equity curve: %w", err)
	}
	defer rows.Close()

	var points []domain.EquityPoint
	for rows.Next() {
		var p domain.EquityPoint
		if err := rows.Scan(&p.Bar, &p.Time, &p.Equity); err != nil {
			return nil, fmt.Errorf("scan equity point row: %w", err)
		}
		points = append(points, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate equity point rows: %w", err)
	}

	if len(points) == 0 {
		return nil, storage.ErrNotFound
	}
	return points, nil
}

// scanRun scans a single row into a RunResult.
func scanRun(row pgx.Row) (*domain.RunResult, error) {
	var r domain.RunResult

	err := row.Scan(
		&r.RunID, &r.StrategyID, &r.Symbol, &r.Timeframe, &r.State,
		&r.InitialCapital, &r.FinalEquity,
		&r.BarsProcessed, &r.SignalsSeen, &r.OrdersRejected, &r.OrdersDropped,
		&r.Warnings, &r.StartedAt, &r.FinishedAt, &r.Err,
	)
	if err != nil {
		return nil, err
	}

	return &r, nil
}

// scanRuns scans multiple rows into a slice of RunResult.
func scanRuns(rows pgx.Rows) ([]*domain.RunResult, error) {
	var runs []*domain.RunResult

	for rows.Next() {
		var r domain.RunResult

		err := rows.Scan(
			&r.RunID, &r.StrategyID, &r.Symbol, &r.Timeframe, &r.State,
			&r.InitialCapital, &r.FinalEquity,
			&r.BarsProcessed, &r.SignalsSeen, &r.OrdersRejected, &r.OrdersDropped,
			&r.Warnings, &r.StartedAt, &r.FinishedAt, &r.Err,
		)
		if err != nil {
			return nil, fmt.Errorf("scan run row: %w", err)
		}

		runs = append(runs, &r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate run rows: %w", err)
	}

	return runs, nil
}
