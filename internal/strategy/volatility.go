package strategy

import (
	"math"

	"chart-strategy-lab/internal/domain"
)

// Volatility strategy defaults.
const (
	DefaultATRPeriod      = 14
	DefaultBBPeriod       = 20
	DefaultBBStd          = 2.0
	DefaultVolLookback    = 20
	DefaultVolThreshold   = 1.5
	DefaultRangeThreshold = 0.8
	DefaultVolConfidence  = 0.6
	DefaultVolBaseSize    = 0.5
)

// Squeeze and contraction cutoffs, fixed by the strategy definition.
const (
	squeezeConfidenceCut = 0.8
	squeezeReversionCut  = 0.7
	contractionExitCut   = 0.7
	reversionHighBand    = 0.9
	reversionLowBand     = 0.1
	reversionDiscount    = 0.8
)

// VolatilityStrategy trades volatility expansions through the Bollinger
// bands and fades extremes during a squeeze. Breakouts require expanding ATR
// relative to its trailing baseline; the squeeze branch only runs when no
// breakout signal fired.
type VolatilityStrategy struct {
	atrPeriod           int
	bbPeriod            int
	bbStd               float64
	volLookback         int
	volThreshold        float64
	rangeThreshold      float64
	confidenceThreshold float64
	baseSize            float64
}

// NewVolatilityStrategy creates a VolatilityStrategy.
func NewVolatilityStrategy(atrPeriod, bbPeriod int, bbStd float64, volLookback int, volThreshold, rangeThreshold, confidenceThreshold, baseSize float64) *VolatilityStrategy {
	return &VolatilityStrategy{
		atrPeriod:           atrPeriod,
		bbPeriod:            bbPeriod,
		bbStd:               bbStd,
		volLookback:         volLookback,
		volThreshold:        volThreshold,
		rangeThreshold:      rangeThreshold,
		confidenceThreshold: confidenceThreshold,
		baseSize:            baseSize,
	}
}

// ID returns the strategy identifier including parameters.
func (s *VolatilityStrategy) ID() string {
	return strategyID(domain.StrategyTypeVolatility,
		intParam("atr", s.atrPeriod),
		intParam("bb", s.bbPeriod),
		param("std", s.bbStd),
		intParam("look", s.volLookback),
		param("vol", s.volThreshold),
		param("range", s.rangeThreshold),
		param("conf", s.confidenceThreshold),
		param("base", s.baseSize),
	)
}

// Requirements needs ATR and Bollinger columns with enough history for the
// trailing baselines.
func (s *VolatilityStrategy) Requirements() domain.Requirements {
	minBars := s.atrPeriod
	if s.bbPeriod > minBars {
		minBars = s.bbPeriod
	}
	return domain.Requirements{
		ATR:     true,
		Bands:   true,
		MinBars: minBars + s.volLookback,
	}
}

// volFeatures are the per-bar readings every decision derives from.
type volFeatures struct {
	volRatio   float64 // ATR over its trailing mean
	rangeRatio float64 // bar range over ATR
	bbPosition float64 // close location inside the bands
	squeeze    float64 // band width over its trailing mean
	atr        float64
	upper      float64
	middle     float64
	lower      float64
}

// features computes the current-bar readings. ok is false during indicator
// warm-up.
func (s *VolatilityStrategy) features(w domain.Window) (volFeatures, bool) {
	end := w.End()
	atr := w.ATRAt(end)
	upper, middle, lower := w.BandsAt(end)
	if math.IsNaN(atr) || atr <= 0 || math.IsNaN(upper) || math.IsNaN(middle) || math.IsNaN(lower) || middle == 0 {
		return volFeatures{}, false
	}

	lo := end - s.volLookback + 1
	if lo < 0 {
		lo = 0
	}
	var atrSum, widthSum float64
	var atrN, widthN int
	for i := lo; i <= end; i++ {
		if v := w.ATRAt(i); !math.IsNaN(v) {
			atrSum += v
			atrN++
		}
		u, m, l := w.BandsAt(i)
		if !math.IsNaN(u) && !math.IsNaN(m) && !math.IsNaN(l) && m != 0 {
			widthSum += (u - l) / m
			widthN++
		}
	}
	if atrN == 0 || atrSum == 0 {
		return volFeatures{}, false
	}

	bar := w.Last()
	f := volFeatures{
		volRatio:   atr / (atrSum / float64(atrN)),
		rangeRatio: (bar.High - bar.Low) / atr,
		bbPosition: 0.5,
		squeeze:    1,
		atr:        atr,
		upper:      upper,
		middle:     middle,
		lower:      lower,
	}
	if width := upper - lower; width > 0 {
		f.bbPosition = (bar.Close - lower) / width
	}
	if widthN > 0 {
		if meanWidth := widthSum / float64(widthN); meanWidth > 0 {
			f.squeeze = (upper - lower) / middle / meanWidth
		}
	}
	return f, true
}

// GenerateSignals emits one breakout signal, or one mean-reversion signal
// when no breakout fired and the bands are squeezed.
func (s *VolatilityStrategy) GenerateSignals(w domain.Window) []domain.Signal {
	end := w.End()
	if end < 1 {
		return nil
	}
	f, ok := s.features(w)
	if !ok {
		return nil
	}

	c, prev := w.Close(end), w.Close(end-1)
	prevUpper, _, prevLower := w.BandsAt(end - 1)
	breakoutUp := !math.IsNaN(prevUpper) && c > f.upper && prev <= prevUpper
	breakoutDown := !math.IsNaN(prevLower) && c < f.lower && prev >= prevLower

	confidence := math.Min(f.volRatio/s.volThreshold, 1)
	if f.rangeRatio > s.rangeThreshold {
		confidence *= 1.2
	}
	if f.squeeze < squeezeConfidenceCut {
		confidence *= 1.1
	}
	if confidence > 1 {
		confidence = 1
	}

	last := w.Last()
	emit := func(dir domain.Direction, conf float64, pattern string) []domain.Signal {
		return []domain.Signal{{
			Direction:  dir,
			Confidence: conf,
			Price:      last.Close,
			Time:       last.Time,
			Pattern:    pattern,
			ATR:        f.atr,
		}}
	}

	if breakoutUp && f.volRatio > s.volThreshold && confidence >= s.confidenceThreshold {
		return emit(domain.DirectionLong, confidence, "volatility_breakout_up")
	}
	if breakoutDown && f.volRatio > s.volThreshold && confidence >= s.confidenceThreshold {
		return emit(domain.DirectionShort, confidence, "volatility_breakout_down")
	}
	if f.squeeze < squeezeReversionCut {
		if f.bbPosition > reversionHighBand {
			return emit(domain.DirectionShort, confidence*reversionDiscount, "volatility_mean_reversion_high")
		}
		if f.bbPosition < reversionLowBand {
			return emit(domain.DirectionLong, confidence*reversionDiscount, "volatility_mean_reversion_low")
		}
	}
	return nil
}

// ShouldExit closes on volatility contraction or when the close lands on the
// adverse side of the middle band.
func (s *VolatilityStrategy) ShouldExit(w domain.Window, pos *domain.Position) bool {
	if pos == nil {
		return false
	}
	f, ok := s.features(w)
	if !ok {
		return false
	}
	if f.volRatio < contractionExitCut {
		return true
	}
	c := w.Close(w.End())
	if pos.Direction == domain.DirectionLong {
		return c < f.middle
	}
	return c > f.middle
}

// PositionSize scales the base fraction by the volatility regime, the bar
// range and confidence.
func (s *VolatilityStrategy) PositionSize(w domain.Window, sig domain.Signal) float64 {
	f, ok := s.features(w)
	if !ok {
		return clamp01(s.baseSize * sig.Confidence)
	}
	volMult := 1.0
	switch {
	case f.volRatio > s.volThreshold:
		volMult = 0.8
	case f.squeeze < squeezeConfidenceCut:
		volMult = 1.2
	}
	rangeMult := 0.8
	if f.rangeRatio > s.rangeThreshold {
		rangeMult = 1.2
	}
	return clamp01(s.baseSize * volMult * rangeMult * sig.Confidence)
}

var _ Strategy = (*VolatilityStrategy)(nil)
