package reporting

import (
	"time"

	"github.com/shopspring/decimal"

	"chart-strategy-lab/internal/decision"
	"chart-strategy-lab/internal/domain"
)

// Report is the render-ready view of one backtest run.
type Report struct {
	GeneratedAt time.Time

	Run     RunFacts
	Summary domain.Summary

	// Verdict is present when an acceptance gate was applied.
	Verdict *decision.Verdict

	// Trades sorted by entry time, then trade ID.
	Trades []domain.Trade

	Warnings []string
}

// RunFacts flattens the run identity and lifecycle fields for rendering.
type RunFacts struct {
	RunID      string
	StrategyID string
	Symbol     string
	Timeframe  string
	State      string

	InitialCapital decimal.Decimal
	FinalEquity    decimal.Decimal

	BarsProcessed  int
	SignalsSeen    int
	OrdersRejected int
	OrdersDropped  int

	StartedAt  time.Time
	FinishedAt time.Time
	Err        string
}
