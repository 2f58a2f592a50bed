package clickhouse

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"chart-strategy-lab/internal/domain"
	"chart-strategy-lab/internal/storage"
)

// EquityCurveStore implements storage.EquityCurveStore using ClickHouse.
// Equity is stored as Decimal(38, 18).
type EquityCurveStore struct {
	conn *Conn
}

// NewEquityCurveStore creates a new EquityCurveStore.
func NewEquityCurveStore(conn *Conn) *EquityCurveStore {
	return &EquityCurveStore{conn: conn}
}

// Compile-time interface check.
var _ storage.EquityCurveStore = (*EquityCurveStore)(nil)

// SaveEquityCurve stores the equity points of a run. Returns ErrDuplicateKey
// if the run already has points. Saving an empty curve is a no-op.
func (s *EquityCurveStore) SaveEquityCurve(ctx context.Context, runID string, points []domain.EquityPoint) error {
	if len(points) == 0 {
		return nil
	}

	exists, err := s.exists(ctx, runID)
	if err != nil {
		return fmt.Errorf("check exists: %w", err)
	}
	if exists {
		return storage.ErrDuplicateKey
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO equity_curve (run_id, bar, timestamp_ms, equity)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, p := range points {
		err = batch.Append(runID, uint32(p.Bar), uint64(p.Time.UnixMilli()), p.Equity)
		if err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}

	return nil
}

// GetEquityCurve retrieves the equity points of a run, ordered by bar ASC.
// Returns ErrNotFound if the run has none.
func (s *EquityCurveStore) GetEquityCurve(ctx context.Context, runID string) ([]domain.EquityPoint, error) {
	query := `
		SELECT bar, timestamp_ms, equity
		FROM equity_curve
		WHERE run_id = ?
		ORDER BY bar ASC
	`

	rows, err := s.conn.Query(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("query equity curve: %w", err)
	}
	defer rows.Close()

	var points []domain.EquityPoint
	for rows.Next() {
		var (
			bar         uint32
			timestampMs uint64
			equity      decimal.Decimal
		)
		if err := rows.Scan(&bar, &timestampMs, &equity); err != nil {
			return nil, fmt.Errorf("scan equity point row: %w", err)
		}
		points = append(points, domain.EquityPoint{
			Time:   time.UnixMilli(int64(timestampMs)).UTC(),
			Bar:    int(bar),
			Equity: equity,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate equity point rows: %w", err)
	}

	if len(points) == 0 {
		return nil, storage.ErrNotFound
	}
	return points, nil
}

// exists checks if any points are stored for the run.
func (s *EquityCurveStore) exists(ctx context.Context, runID string) (bool, error) {
	query := `
		SELECT count(*) FROM equity_curve
		WHERE run_id = ?
	`

	var count uint64
	err := s.conn.QueryRow(ctx, query, runID).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}
