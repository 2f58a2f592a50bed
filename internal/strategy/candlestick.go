package strategy

import (
	"chart-strategy-lab/internal/candles"
	"chart-strategy-lab/internal/domain"
)

// Candlestick strategy defaults.
const (
	DefaultDojiThreshold       = candles.DefaultDojiThreshold
	DefaultCandleConfidence    = 0.6
	DefaultCandleBaseSize      = 0.5
	DefaultCandleExitAfterBars = 5
	candleMinBars              = candles.TrendLookback + 1
)

// CandlestickStrategy trades single and two-bar candle patterns. Entries
// come straight from the candle signal emitter; exits fire after a fixed
// holding period or on a confident opposite-direction candle.
type CandlestickStrategy struct {
	dojiThreshold       float64
	confidenceThreshold float64
	baseSize            float64
	exitAfterBars       int
}

// NewCandlestickStrategy creates a CandlestickStrategy.
func NewCandlestickStrategy(dojiThreshold, confidenceThreshold, baseSize float64, exitAfterBars int) *CandlestickStrategy {
	return &CandlestickStrategy{
		dojiThreshold:       dojiThreshold,
		confidenceThreshold: confidenceThreshold,
		baseSize:            baseSize,
		exitAfterBars:       exitAfterBars,
	}
}

// ID returns the strategy identifier including parameters.
func (s *CandlestickStrategy) ID() string {
	return strategyID(domain.StrategyTypeCandlestick,
		param("doji", s.dojiThreshold),
		param("conf", s.confidenceThreshold),
		param("base", s.baseSize),
		intParam("exit", s.exitAfterBars),
	)
}

// Requirements needs raw bars only; the doji trend read looks back a handful
// of closes.
func (s *CandlestickStrategy) Requirements() domain.Requirements {
	return domain.Requirements{MinBars: candleMinBars}
}

// GenerateSignals emits the candle signals for the current bar in their
// fixed order.
func (s *CandlestickStrategy) GenerateSignals(w domain.Window) []domain.Signal {
	return candles.Signals(w, s.dojiThreshold)
}

// ShouldExit closes after exitAfterBars bars, or sooner when a confident
// candle fires against the position.
func (s *CandlestickStrategy) ShouldExit(w domain.Window, pos *domain.Position) bool {
	if pos == nil {
		return false
	}
	if pos.Age(w.End()) >= s.exitAfterBars {
		return true
	}
	opposite := pos.Direction.Opposite()
	for _, sig := range candles.Signals(w, s.dojiThreshold) {
		if sig.Direction == opposite && sig.Confidence >= s.confidenceThreshold {
			return true
		}
	}
	return false
}

// PositionSize scales the base fraction by confidence.
func (s *CandlestickStrategy) PositionSize(_ domain.Window, sig domain.Signal) float64 {
	return clamp01(s.baseSize * 2 * sig.Confidence)
}

var _ Strategy = (*CandlestickStrategy)(nil)
