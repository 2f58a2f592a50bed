package strategy

import (
	"errors"

	"chart-strategy-lab/internal/domain"
)

// Factory errors
var (
	ErrUnknownStrategyType = errors.New("unknown strategy type")
	ErrInvalidThreshold    = errors.New("threshold must be in (0, 1]")
	ErrInvalidBaseSize     = errors.New("base size must be in (0, 1]")
	ErrInvalidScore        = errors.New("min score must be in [0, 1]")
	ErrInvalidEMAOrder     = errors.New("ema periods must satisfy short < medium < long")
	ErrInvalidPeriod       = errors.New("period must be positive")
	ErrInvalidBandStd      = errors.New("band std must be positive")
)

// FromConfig creates a Strategy from domain.StrategyConfig. Nil parameter
// pointers take the documented defaults; out-of-range values return sentinel
// errors.
func FromConfig(cfg domain.StrategyConfig) (Strategy, error) {
	switch cfg.StrategyType {
	case domain.StrategyTypeCandlestick:
		return fromCandlestickConfig(cfg)
	case domain.StrategyTypePattern:
		return fromPatternConfig(cfg)
	case domain.StrategyTypeEMATrend:
		return fromEMATrendConfig(cfg)
	case domain.StrategyTypeVolatility:
		return fromVolatilityConfig(cfg)
	default:
		return nil, ErrUnknownStrategyType
	}
}

func fromCandlestickConfig(cfg domain.StrategyConfig) (*CandlestickStrategy, error) {
	doji := f64Or(cfg.DojiThreshold, DefaultDojiThreshold)
	confidence := f64Or(cfg.ConfidenceThreshold, DefaultCandleConfidence)
	base := f64Or(cfg.BaseSize, DefaultCandleBaseSize)
	exitAfter := intOr(cfg.ExitAfterBars, DefaultCandleExitAfterBars)

	if doji <= 0 || doji > 1 || confidence <= 0 || confidence > 1 {
		return nil, ErrInvalidThreshold
	}
	if base <= 0 || base > 1 {
		return nil, ErrInvalidBaseSize
	}
	if exitAfter < 1 {
		return nil, ErrInvalidPeriod
	}
	return NewCandlestickStrategy(doji, confidence, base, exitAfter), nil
}

func fromPatternConfig(cfg domain.StrategyConfig) (*PatternStrategy, error) {
	minScore := f64Or(cfg.MinScore, DefaultPatternMinScore)
	base := f64Or(cfg.BaseSize, DefaultPatternBaseSize)
	maxHolding := intOr(cfg.MaxHoldingBars, 0)

	if minScore < 0 || minScore > 1 {
		return nil, ErrInvalidScore
	}
	if base <= 0 || base > 1 {
		return nil, ErrInvalidBaseSize
	}
	if maxHolding < 0 {
		return nil, ErrInvalidPeriod
	}
	return NewPatternStrategy(cfg.Patterns, minScore, base, maxHolding)
}

func fromEMATrendConfig(cfg domain.StrategyConfig) (*EMATrendStrategy, error) {
	short := intOr(cfg.EMAShort, DefaultEMAShort)
	medium := intOr(cfg.EMAMedium, DefaultEMAMedium)
	long := intOr(cfg.EMALong, DefaultEMALong)
	strict := boolOr(cfg.Strict, false)
	swing := intOr(cfg.SwingLookback, DefaultSwingLookback)
	momentum := intOr(cfg.MomentumPeriod, DefaultMomentumPeriod)
	confidence := f64Or(cfg.ConfidenceThreshold, DefaultTrendThreshold)
	base := f64Or(cfg.BaseSize, DefaultTrendBaseSize)

	if short < 1 || medium < 1 || long < 1 || swing < 1 || momentum < 1 {
		return nil, ErrInvalidPeriod
	}
	if short >= medium || medium >= long {
		return nil, ErrInvalidEMAOrder
	}
	if confidence <= 0 || confidence > 1 {
		return nil, ErrInvalidThreshold
	}
	if base <= 0 || base > 1 {
		return nil, ErrInvalidBaseSize
	}
	return NewEMATrendStrategy(short, medium, long, strict, swing, momentum, confidence, base), nil
}

func fromVolatilityConfig(cfg domain.StrategyConfig) (*VolatilityStrategy, error) {
	atrPeriod := intOr(cfg.ATRPeriod, DefaultATRPeriod)
	bbPeriod := intOr(cfg.BBPeriod, DefaultBBPeriod)
	bbStd := f64Or(cfg.BBStd, DefaultBBStd)
	lookback := intOr(cfg.VolLookback, DefaultVolLookback)
	volThreshold := f64Or(cfg.VolThreshold, DefaultVolThreshold)
	rangeThreshold := f64Or(cfg.RangeThreshold, DefaultRangeThreshold)
	confidence := f64Or(cfg.ConfidenceThreshold, DefaultVolConfidence)
	base := f64Or(cfg.BaseSize, DefaultVolBaseSize)

	if atrPeriod < 1 || bbPeriod < 1 || lookback < 1 {
		return nil, ErrInvalidPeriod
	}
	if bbStd <= 0 {
		return nil, ErrInvalidBandStd
	}
	if volThreshold <= 0 || rangeThreshold <= 0 || confidence <= 0 || confidence > 1 {
		return nil, ErrInvalidThreshold
	}
	if base <= 0 || base > 1 {
		return nil, ErrInvalidBaseSize
	}
	return NewVolatilityStrategy(atrPeriod, bbPeriod, bbStd, lookback, volThreshold, rangeThreshold, confidence, base), nil
}

func f64Or(p *float64, def float64) float64 {
	if p != nil {
		return *p
	}
	return def
}

func intOr(p *int, def int) int {
	if p != nil {
		return *p
	}
	return def
}

func boolOr(p *bool, def bool) bool {
	if p != nil {
		return *p
	}
	return def
}
