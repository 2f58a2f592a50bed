package storage

import (
	"context"

	"chart-strategy-lab/internal/domain"
)

// SymbolTimeframe identifies one stored candle series.
type SymbolTimeframe struct {
	Symbol    string
	Timeframe string
}

// BarSeriesStore provides access to candle series storage. Stored series
// keep their indicator columns, so a series read back is ready to backtest
// without re-enrichment.
type BarSeriesStore interface {
	// SaveSeries stores a full series. Returns ErrDuplicateKey if the
	// (symbol, timeframe) pair already has bars; series are append-only.
	SaveSeries(ctx context.Context, series *domain.Series) error

	// GetSeries retrieves the series for a symbol and timeframe, bars
	// ordered by time ASC. Returns ErrNotFound if no bars exist.
	GetSeries(ctx context.Context, symbol, timeframe string) (*domain.Series, error)

	// ListSymbols returns the distinct (symbol, timeframe) pairs stored,
	// ordered by symbol then timeframe.
	ListSymbols(ctx context.Context) ([]SymbolTimeframe, error)
}

// TradeStore provides access to closed-trade storage.
type TradeStore interface {
	// SaveTrade adds a closed trade. Returns ErrDuplicateKey if trade_id exists.
	SaveTrade(ctx context.Context, t *domain.Trade) error

	// SaveTrades adds multiple trades atomically. Fails the entire batch on
	// any duplicate.
	SaveTrades(ctx context.Context, trades []domain.Trade) error

	// GetTrade retrieves a trade by its ID. Returns ErrNotFound if not exists.
	GetTrade(ctx context.Context, tradeID string) (*domain.Trade, error)

	// ListByRun retrieves all trades of a run, ordered by entry time ASC.
	ListByRun(ctx context.Context, runID string) ([]domain.Trade, error)
}

// EquityCurveStore stores per-run equity curves. Split from RunStore so
// backends that keep curves apart from run scalars can serve it alone.
type EquityCurveStore interface {
	// SaveEquityCurve stores the equity points of a run. Returns
	// ErrDuplicateKey if the run already has points.
	SaveEquityCurve(ctx context.Context, runID string, points []domain.EquityPoint) error

	// GetEquityCurve retrieves the equity points of a run, ordered by bar
	// ASC. Returns ErrNotFound if the run has none.
	GetEquityCurve(ctx context.Context, runID string) ([]domain.EquityPoint, error)
}

// RunStore provides access to backtest run storage. Run rows carry the
// scalar facts only; trades live in a TradeStore and equity curves are
// stored per run beside them.
type RunStore interface {
	// SaveRun stores a run result. Returns ErrDuplicateKey if run_id exists.
	SaveRun(ctx context.Context, r *domain.RunResult) error

	// GetRun retrieves a run by its ID with Trades and EquityCurve unset.
	// Returns ErrNotFound if not exists.
	GetRun(ctx context.Context, runID string) (*domain.RunResult, error)

	// ListRuns retrieves runs ordered by start time DESC. A limit <= 0
	// returns all runs.
	ListRuns(ctx context.Context, limit int) ([]*domain.RunResult, error)

	EquityCurveStore
}
