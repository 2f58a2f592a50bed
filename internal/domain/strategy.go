package domain

// StrategyConfig holds configuration parameters for any strategy type. Nil
// pointers fall back to the documented defaults when the strategy is built.
// The JSON form is what the server API and sweep config files accept.
type StrategyConfig struct {
	StrategyType string `json:"strategy_type"` // "candlestick" | "pattern" | "ema_trend" | "volatility"

	// candlestick parameters
	DojiThreshold *float64 `json:"doji_threshold,omitempty"`  // max body/wick ratio for a doji
	ExitAfterBars *int     `json:"exit_after_bars,omitempty"` // close after this many bars held

	// pattern parameters
	Patterns       []string `json:"patterns,omitempty"`         // detector names, nil = full registry
	MinScore       *float64 `json:"min_score,omitempty"`        // minimum match score to act on
	MaxHoldingBars *int     `json:"max_holding_bars,omitempty"` // 0 = unlimited

	// ema_trend parameters
	EMAShort       *int  `json:"ema_short,omitempty"`
	EMAMedium      *int  `json:"ema_medium,omitempty"`
	EMALong        *int  `json:"ema_long,omitempty"`
	Strict         *bool `json:"strict,omitempty"`         // require the full EMA stack alignment
	SwingLookback  *int  `json:"swing_lookback,omitempty"` // bars each side for swing point scan
	MomentumPeriod *int  `json:"momentum_period,omitempty"`

	// volatility parameters
	ATRPeriod      *int     `json:"atr_period,omitempty"`
	BBPeriod       *int     `json:"bb_period,omitempty"`
	BBStd          *float64 `json:"bb_std,omitempty"`
	VolLookback    *int     `json:"vol_lookback,omitempty"`    // trailing window for volatility baselines
	VolThreshold   *float64 `json:"vol_threshold,omitempty"`   // minimum expansion ratio for a breakout
	RangeThreshold *float64 `json:"range_threshold,omitempty"` // minimum bar range as a fraction of ATR

	// common parameters
	ConfidenceThreshold *float64 `json:"confidence_threshold,omitempty"` // minimum signal confidence to emit
	BaseSize            *float64 `json:"base_size,omitempty"`            // base position size fraction
}

// Strategy type constants
const (
	StrategyTypeCandlestick = "candlestick"
	StrategyTypePattern     = "pattern"
	StrategyTypeEMATrend    = "ema_trend"
	StrategyTypeVolatility  = "volatility"
)

// KnownStrategyType reports whether the type names a buildable strategy.
func KnownStrategyType(t string) bool {
	switch t {
	case StrategyTypeCandlestick, StrategyTypePattern, StrategyTypeEMATrend, StrategyTypeVolatility:
		return true
	}
	return false
}
