package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// RunState tracks the backtester lifecycle.
type RunState string

// Run state constants
const (
	RunStateIdle     RunState = "idle"
	RunStateRunning  RunState = "running"
	RunStateFinished RunState = "finished"
	RunStateFailed   RunState = "failed"
)

// EquityPoint is one sample of the account equity curve, taken at the close
// of every processed bar.
type EquityPoint struct {
	Time   time.Time
	Bar    int // series index
	Equity decimal.Decimal
}

// RunResult captures everything a single backtest produced. Failed runs keep
// the trades and equity points recorded up to the failure. Persisted to the
// runs table in PostgreSQL; equity points go to ClickHouse.
type RunResult struct {
	RunID      string // deterministic hash
	StrategyID string
	Symbol     string
	Timeframe  string
	State      RunState

	InitialCapital decimal.Decimal
	FinalEquity    decimal.Decimal
	Trades         []Trade
	EquityCurve    []EquityPoint

	BarsProcessed  int
	SignalsSeen    int      // signals emitted by the strategy
	OrdersRejected int      // failed order validation
	OrdersDropped  int      // insufficient capital
	Warnings       []string // non-fatal events worth surfacing

	StartedAt  time.Time
	FinishedAt time.Time
	Err        string // terminal error for failed runs
}
