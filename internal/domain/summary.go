package domain

// Summary holds per-run performance metrics computed from closed trades and
// the equity curve. PnL values are float64; the analytics layer converts
// from the decimal ledger at this boundary.
type Summary struct {
	RunID      string
	StrategyID string
	Symbol     string

	// Counts
	TotalTrades int
	Wins        int
	Losses      int
	WinRate     float64 // wins / total trades

	// Outcome distribution
	TotalPnL     float64
	AvgWin       float64
	AvgLoss      float64 // negative or zero
	ProfitFactor float64 // gross wins / gross losses
	Expectancy   float64 // mean trade PnL
	PnLStddev    float64 // sample stddev
	PnLMedian    float64
	PnLP25       float64 // 25th percentile
	PnLP75       float64 // 75th percentile
	BestTrade    float64
	WorstTrade   float64

	// Drawdown
	MaxDrawdown          float64 // worst peak-to-trough fraction of equity
	MaxDrawdownAbs       float64 // same, in capital units
	MaxConsecutiveLosses int

	// Run level
	AvgHoldingBars float64
	TotalReturn    float64 // (final - initial) / initial
	FinalEquity    float64
}
