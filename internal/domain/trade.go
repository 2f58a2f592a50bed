package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Trade is a closed round trip recorded by the account. Persisted to the
// trades table in PostgreSQL.
type Trade struct {
	TradeID    string // deterministic hash
	RunID      string // owning backtest run
	StrategyID string // strategy identifier
	Symbol     string

	Direction  Direction
	Size       decimal.Decimal // quantity
	EntryTime  time.Time
	EntryPrice decimal.Decimal
	ExitTime   time.Time
	ExitPrice  decimal.Decimal
	ExitReason string // reason code

	PnL  decimal.Decimal // realized, net of fees
	Fees decimal.Decimal // entry + exit fees

	Pattern     string  // originating pattern or rule
	Confidence  float64 // entry signal confidence
	HoldingBars int     // bars between entry and exit
	Outcome     string  // "WIN" | "LOSS" | "FLAT"
}

// Exit reason codes
const (
	ExitReasonStrategy  = "STRATEGY_EXIT" // strategy's exit rule fired
	ExitReasonSignal    = "SIGNAL_EXIT"   // opposing order closed the position
	ExitReasonEndOfData = "END_OF_DATA"   // forced close at the final bar
)

// Outcome class constants
const (
	OutcomeWin  = "WIN"
	OutcomeLoss = "LOSS"
	OutcomeFlat = "FLAT"
)

// ClassifyOutcome maps realized PnL to an outcome class.
func ClassifyOutcome(pnl decimal.Decimal) string {
	switch pnl.Sign() {
	case 1:
		return OutcomeWin
	case -1:
		return OutcomeLoss
	default:
		return OutcomeFlat
	}
}
