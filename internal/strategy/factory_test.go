package strategy

import (
	"errors"
	"reflect"
	"testing"

	"chart-strategy-lab/internal/domain"
	"chart-strategy-lab/internal/patterns"
)

func TestFromConfig_Candlestick(t *testing.T) {
	cfg := domain.StrategyConfig{
		StrategyType:        domain.StrategyTypeCandlestick,
		DojiThreshold:       ptrFloat(0.15),
		ConfidenceThreshold: ptrFloat(0.7),
		BaseSize:            ptrFloat(0.4),
		ExitAfterBars:       ptrInt(3),
	}

	s, err := FromConfig(cfg)
	if err != nil {
		t.Fatalf("FromConfig failed: %v", err)
	}
	cs, ok := s.(*CandlestickStrategy)
	if !ok {
		t.Fatalf("expected *CandlestickStrategy, got %T", s)
	}
	if cs.dojiThreshold != 0.15 || cs.confidenceThreshold != 0.7 || cs.baseSize != 0.4 || cs.exitAfterBars != 3 {
		t.Errorf("params not applied: %+v", cs)
	}
}

func TestFromConfig_Pattern(t *testing.T) {
	cfg := domain.StrategyConfig{
		StrategyType: domain.StrategyTypePattern,
		Patterns:     []string{patterns.NameBullFlag, patterns.NameBearFlag},
		MinScore:     ptrFloat(0.6),
	}

	s, err := FromConfig(cfg)
	if err != nil {
		t.Fatalf("FromConfig failed: %v", err)
	}
	ps, ok := s.(*PatternStrategy)
	if !ok {
		t.Fatalf("expected *PatternStrategy, got %T", s)
	}
	want := []string{patterns.NameBullFlag, patterns.NameBearFlag}
	if got := ps.orch.Names(); !reflect.DeepEqual(got, want) {
		t.Errorf("orchestrator patterns = %v, want %v", got, want)
	}
	if ps.minScore != 0.6 {
		t.Errorf("minScore = %v, want 0.6", ps.minScore)
	}
}

func TestFromConfig_EMATrend(t *testing.T) {
	cfg := domain.StrategyConfig{
		StrategyType: domain.StrategyTypeEMATrend,
		EMAShort:     ptrInt(5),
		EMAMedium:    ptrInt(13),
		EMALong:      ptrInt(50),
		Strict:       ptrBool(true),
	}

	s, err := FromConfig(cfg)
	if err != nil {
		t.Fatalf("FromConfig failed: %v", err)
	}
	es, ok := s.(*EMATrendStrategy)
	if !ok {
		t.Fatalf("expected *EMATrendStrategy, got %T", s)
	}
	if es.emaShort != 5 || es.emaMedium != 13 || es.emaLong != 50 || !es.strict {
		t.Errorf("params not applied: %+v", es)
	}
	req := es.Requirements()
	if !reflect.DeepEqual(req.EMAPeriods, []int{5, 13, 50}) {
		t.Errorf("Requirements().EMAPeriods = %v, want [5 13 50]", req.EMAPeriods)
	}
	if req.MinBars != 51 {
		t.Errorf("Requirements().MinBars = %d, want 51", req.MinBars)
	}
}

func TestFromConfig_Volatility(t *testing.T) {
	cfg := domain.StrategyConfig{StrategyType: domain.StrategyTypeVolatility}

	s, err := FromConfig(cfg)
	if err != nil {
		t.Fatalf("FromConfig failed: %v", err)
	}
	vs, ok := s.(*VolatilityStrategy)
	if !ok {
		t.Fatalf("expected *VolatilityStrategy, got %T", s)
	}
	if vs.atrPeriod != DefaultATRPeriod || vs.bbPeriod != DefaultBBPeriod || vs.volLookback != DefaultVolLookback {
		t.Errorf("defaults not applied: %+v", vs)
	}
	req := vs.Requirements()
	if !req.ATR || !req.Bands {
		t.Errorf("Requirements() = %+v, want ATR and Bands", req)
	}
	if req.MinBars != DefaultBBPeriod+DefaultVolLookback {
		t.Errorf("Requirements().MinBars = %d, want %d", req.MinBars, DefaultBBPeriod+DefaultVolLookback)
	}
}

func TestFromConfig_DefaultsBuildEveryType(t *testing.T) {
	for _, typ := range []string{
		domain.StrategyTypeCandlestick,
		domain.StrategyTypePattern,
		domain.StrategyTypeEMATrend,
		domain.StrategyTypeVolatility,
	} {
		t.Run(typ, func(t *testing.T) {
			s, err := FromConfig(domain.StrategyConfig{StrategyType: typ})
			if err != nil {
				t.Fatalf("FromConfig(%s) failed: %v", typ, err)
			}
			if s.ID() == "" {
				t.Error("ID() empty")
			}
			if s.Requirements().MinBars < 1 {
				t.Errorf("Requirements().MinBars = %d, want >= 1", s.Requirements().MinBars)
			}
		})
	}
}

func TestFromConfig_InvalidParams(t *testing.T) {
	tests := []struct {
		name        string
		cfg         domain.StrategyConfig
		expectedErr error
	}{
		{
			name: "candlestick confidence above one",
			cfg: domain.StrategyConfig{
				StrategyType:        domain.StrategyTypeCandlestick,
				ConfidenceThreshold: ptrFloat(1.5),
			},
			expectedErr: ErrInvalidThreshold,
		},
		{
			name: "candlestick zero base size",
			cfg: domain.StrategyConfig{
				StrategyType: domain.StrategyTypeCandlestick,
				BaseSize:     ptrFloat(0),
			},
			expectedErr: ErrInvalidBaseSize,
		},
		{
			name: "candlestick zero exit bars",
			cfg: domain.StrategyConfig{
				StrategyType:  domain.StrategyTypeCandlestick,
				ExitAfterBars: ptrInt(0),
			},
			expectedErr: ErrInvalidPeriod,
		},
		{
			name: "pattern score above one",
			cfg: domain.StrategyConfig{
				StrategyType: domain.StrategyTypePattern,
				MinScore:     ptrFloat(1.2),
			},
			expectedErr: ErrInvalidScore,
		},
		{
			name: "pattern unknown detector",
			cfg: domain.StrategyConfig{
				StrategyType: domain.StrategyTypePattern,
				Patterns:     []string{"cup_and_handle"},
			},
			expectedErr: patterns.ErrUnknownPattern,
		},
		{
			name: "ema periods out of order",
			cfg: domain.StrategyConfig{
				StrategyType: domain.StrategyTypeEMATrend,
				EMAShort:     ptrInt(21),
				EMAMedium:    ptrInt(8),
			},
			expectedErr: ErrInvalidEMAOrder,
		},
		{
			name: "ema zero period",
			cfg: domain.StrategyConfig{
				StrategyType: domain.StrategyTypeEMATrend,
				EMAShort:     ptrInt(0),
			},
			expectedErr: ErrInvalidPeriod,
		},
		{
			name: "volatility negative band std",
			cfg: domain.StrategyConfig{
				StrategyType: domain.StrategyTypeVolatility,
				BBStd:        ptrFloat(-1),
			},
			expectedErr: ErrInvalidBandStd,
		},
		{
			name: "volatility zero threshold",
			cfg: domain.StrategyConfig{
				StrategyType: domain.StrategyTypeVolatility,
				VolThreshold: ptrFloat(0),
			},
			expectedErr: ErrInvalidThreshold,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := FromConfig(tt.cfg)
			if !errors.Is(err, tt.expectedErr) {
				t.Errorf("expected %v, got %v", tt.expectedErr, err)
			}
		})
	}
}

func TestFromConfig_UnknownType(t *testing.T) {
	_, err := FromConfig(domain.StrategyConfig{StrategyType: "momentum"})
	if !errors.Is(err, ErrUnknownStrategyType) {
		t.Errorf("expected ErrUnknownStrategyType, got %v", err)
	}
}

// Helper functions
func ptrFloat(f float64) *float64 { return &f }
func ptrInt(i int) *int           { return &i }
func ptrBool(b bool) *bool        { return &b }
