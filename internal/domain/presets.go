package domain

// Predefined strategy configurations mirroring the stock parameter panels.
// Sweeps and CLI flags reference these by name.
var (
	PresetCandlestickDefault = StrategyConfig{
		StrategyType:        StrategyTypeCandlestick,
		DojiThreshold:       f64Ptr(0.1),
		ExitAfterBars:       intPtr(5),
		ConfidenceThreshold: f64Ptr(0.6),
		BaseSize:            f64Ptr(0.5),
	}

	PresetPatternDefault = StrategyConfig{
		StrategyType:        StrategyTypePattern,
		Patterns:            []string{"double_bottom", "double_top"},
		MinScore:            f64Ptr(0.5),
		MaxHoldingBars:      intPtr(0),
		ConfidenceThreshold: f64Ptr(0.5),
		BaseSize:            f64Ptr(0.5),
	}

	PresetPatternAll = StrategyConfig{
		StrategyType:        StrategyTypePattern,
		Patterns:            nil, // full registry
		MinScore:            f64Ptr(0.5),
		MaxHoldingBars:      intPtr(0),
		ConfidenceThreshold: f64Ptr(0.5),
		BaseSize:            f64Ptr(0.5),
	}

	PresetEMATrendDefault = StrategyConfig{
		StrategyType:        StrategyTypeEMATrend,
		EMAShort:            intPtr(8),
		EMAMedium:           intPtr(21),
		EMALong:             intPtr(200),
		Strict:              boolPtr(false),
		SwingLookback:       intPtr(5),
		MomentumPeriod:      intPtr(14),
		ConfidenceThreshold: f64Ptr(0.5),
		BaseSize:            f64Ptr(0.5),
	}

	PresetEMATrendStrict = StrategyConfig{
		StrategyType:        StrategyTypeEMATrend,
		EMAShort:            intPtr(8),
		EMAMedium:           intPtr(21),
		EMALong:             intPtr(200),
		Strict:              boolPtr(true),
		SwingLookback:       intPtr(5),
		MomentumPeriod:      intPtr(14),
		ConfidenceThreshold: f64Ptr(0.5),
		BaseSize:            f64Ptr(0.5),
	}

	PresetVolatilityDefault = StrategyConfig{
		StrategyType:        StrategyTypeVolatility,
		ATRPeriod:           intPtr(14),
		BBPeriod:            intPtr(20),
		BBStd:               f64Ptr(2.0),
		VolLookback:         intPtr(20),
		VolThreshold:        f64Ptr(1.5),
		RangeThreshold:      f64Ptr(0.8),
		ConfidenceThreshold: f64Ptr(0.6),
		BaseSize:            f64Ptr(0.5),
	}

	// Lower expansion bar, aimed at catching moves out of tight ranges.
	PresetVolatilitySqueeze = StrategyConfig{
		StrategyType:        StrategyTypeVolatility,
		ATRPeriod:           intPtr(14),
		BBPeriod:            intPtr(20),
		BBStd:               f64Ptr(2.0),
		VolLookback:         intPtr(20),
		VolThreshold:        f64Ptr(1.2),
		RangeThreshold:      f64Ptr(0.6),
		ConfidenceThreshold: f64Ptr(0.5),
		BaseSize:            f64Ptr(0.5),
	}
)

// Presets maps preset names to their configurations.
var Presets = map[string]StrategyConfig{
	"candlestick":        PresetCandlestickDefault,
	"pattern":            PresetPatternDefault,
	"pattern-all":        PresetPatternAll,
	"ema-trend":          PresetEMATrendDefault,
	"ema-trend-strict":   PresetEMATrendStrict,
	"volatility":         PresetVolatilityDefault,
	"volatility-squeeze": PresetVolatilitySqueeze,
}

func intPtr(v int) *int         { return &v }
func f64Ptr(v float64) *float64 { return &v }
func boolPtr(v bool) *bool      { return &v }
