package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"chart-strategy-lab/internal/domain"
	"chart-strategy-lab/internal/storage"
)

// TradeStore implements storage.TradeStore using PostgreSQL.
type TradeStore struct {
	pool *Pool
}

// NewTradeStore creates a new TradeStore.
func NewTradeStore(pool *Pool) *TradeStore {
	return &TradeStore{pool: pool}
}

// Compile-time interface check.
var _ storage.TradeStore = (*TradeStore)(nil)

// SaveTrade adds a closed trade. Returns ErrDuplicateKey if trade_id exists.
func (s *TradeStore) SaveTrade(ctx context.Context, t *domain.Trade) error {
	query := `
		INSERT INTO trades (
			trade_id, run_id, strategy_id, symbol,
			direction, size, entry_time, entry_price, exit_time, exit_price, exit_reason,
			pnl, fees, pattern, confidence, holding_bars, outcome
		) VALUES (
			$1, $2, $3, $4,
			$5, $6, $7, $8, $9, $10, $11,
			$12, $13, $14, $15, $16, $17
		)
	`

	_, err := s.pool.Exec(ctx, query,
		t.TradeID, t.RunID, t.StrategyID, t.Symbol,
		t.Direction, t.Size, t.EntryTime, t.EntryPrice, t.ExitTime, t.ExitPrice, t.ExitReason,
		t.PnL, t.Fees, t.Pattern, t.Confidence, t.HoldingBars, t.Outcome,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert trade: %w", err)
	}
	return nil
}

// SaveTrades adds multiple trades atomically. Fails entire batch on any duplicate.
func (s *TradeStore) SaveTrades(ctx context.Context, trades []domain.Trade) error {
	if len(trades) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
		INSERT INTO trades (
			trade_id, run_id, strategy_id, symbol,
			direction, size, entry_time, entry_price, exit_time, exit_price, exit_reason,
			pnl, fees, pattern, confidence, holding_bars, outcome
		) VALUES (
			$1, $2, $3, $4,
			$5, $6, $7, $8, $9, $10, $11,
			$12, $13, $14, $15, $16, $17
		)
	`

	for _, t := range trades {
		_, err := tx.Exec(ctx, query,
			t.TradeID, t.RunID, t.StrategyID, t.Symbol,
			t.Direction, t.Size, t.EntryTime, t.EntryPrice, t.ExitTime, t.ExitPrice, t.ExitReason,
			t.PnL, t.Fees, t.Pattern, t.Confidence, t.HoldingBars, t.Outcome,
		)
		if err != nil {
			if isDuplicateKeyError(err) {
				return storage.ErrDuplicateKey
			}
			return fmt.Errorf("insert trade in batch: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}

	return nil
}

// GetTrade retrieves a trade by its ID. Returns ErrNotFound if not exists.
func (s *TradeStore) GetTrade(ctx context.Context, tradeID string) (*domain.Trade, error) {
	query := `
		SELECT
			trade_id, run_id, strategy_id, symbol,
			direction, size, entry_time, entry_price, exit_time, exit_price, exit_reason,
			pnl, fees, pattern, confidence, holding_bars, outcome
		FROM trades
		WHERE trade_id = $1
	`

	row := s.pool.QueryRow(ctx, query, tradeID)
	t, err := scanTrade(row)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get trade by id: %w", err)
	}
	return t, nil
}

// ListByRun retrieves all trades of a run, ordered by entry time ASC.
func (s *TradeStore) ListByRun(ctx context.Context, runID string) ([]domain.Trade, error) {
	query := `
		SELECT
			trade_id, run_id, strategy_id, symbol,
			direction, size, entry_time, entry_price, exit_time, exit_price, exit_reason,
			pnl, fees, pattern, confidence, holding_bars, outcome
		FROM trades
		WHERE run_id = $1
		ORDER BY entry_time ASC, trade_id ASC
	`

	rows, err := s.pool.Query(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("list trades by run: %w", err)
	}
	defer rows.Close()

	return scanTrades(rows)
}

// scanTrade scans a single row into a Trade.
func scanTrade(row pgx.Row) (*domain.Trade, error) {
	var t domain.Trade

	err := row.Scan(
		&t.TradeID, &t.RunID, &t.StrategyID, &t.Symbol,
		&t.Direction, &t.Size, &t.EntryTime, &t.EntryPrice, &t.ExitTime, &t.ExitPrice, &t.ExitReason,
		&t.PnL, &t.Fees, &t.Pattern, &t.Confidence, &t.HoldingBars, &t.Outcome,
	)
	if err != nil {
		return nil, err
	}

	return &t, nil
}

// scanTrades scans multiple rows into a slice of Trade.
func scanTrades(rows pgx.Rows) ([]domain.Trade, error) {
	var trades []domain.Trade

	for rows.Next() {
		var t domain.Trade

		err := rows.Scan(
			&t.TradeID, &t.RunID, &t.StrategyID, &t.Symbol,
			&t.Direction, &t.Size, &t.EntryTime, &t.EntryPrice, &t.ExitTime, &t.ExitPrice, &t.ExitReason,
			&t.PnL, &t.Fees, &t.Pattern, &t.Confidence, &t.HoldingBars, &t.Outcome,
		)
		if err != nil {
			return nil, fmt.Errorf("scan trade row: %w", err)
		}

		trades = append(trades, t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate trade rows: %w", err)
	}

	return trades, nil
}
