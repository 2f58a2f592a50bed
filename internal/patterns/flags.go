package patterns

import (
	"math"

	"chart-strategy-lab/internal/domain"
)

// Flag geometry: a sharp pole followed by a short, gently counter-drifting
// consolidation, confirmed by a close beyond the consolidation extreme.
const (
	poleBars      = 12   // bars the pole is measured over
	flagBars      = 8    // consolidation length including the breakout bar
	minPoleReturn = 0.06 // minimum fractional travel of the pole
	maxFlagDrift  = 0.01 // max per-bar counter-drift of the consolidation
	maxRetrace    = 0.5  // consolidation may give back at most half the pole
)

type bullFlag struct{}

// BullFlag detects an upward pole followed by a shallow downward drift,
// confirmed by a close above the consolidation high.
func BullFlag() Detector { return bullFlag{} }

func (bullFlag) Name() string { return NameBullFlag }

func (bullFlag) Detect(w domain.Window) *Match {
	s, ok := newScan(w)
	if !ok || s.n < poleBars+flagBars {
		return nil
	}
	last := s.last()
	poleEnd := s.n - flagBars - 1
	poleStart := poleEnd - poleBars
	if poleStart < 0 {
		return nil
	}
	base, top := s.closes[poleStart], s.closes[poleEnd]
	if base <= 0 {
		return nil
	}
	poleReturn := (top - base) / base
	if poleReturn < minPoleReturn {
		return nil
	}

	body := flagCloses(s.closes, poleEnd+1, last-1)
	drift := fitLine(body).normSlope(top)
	if drift > 0 || drift < -maxFlagDrift {
		return nil
	}
	_, flagLow := lowestBetween(s.lows, poleEnd+1, last-1)
	retrace := (top - flagLow) / (top - base)
	if retrace > maxRetrace {
		return nil
	}
	_, flagHigh := highestBetween(s.highs, poleEnd+1, last-1)
	if s.closes[last] <= flagHigh {
		return nil
	}

	score := clamp01(0.5 +
		0.25*clamp01(poleReturn/(2*minPoleReturn)) +
		0.15*(1-retrace/maxRetrace) +
		0.1*(1-math.Abs(drift)/maxFlagDrift))

	return &Match{
		Pattern:   NameBullFlag,
		Direction: domain.DirectionLong,
		Score:     score,
		Neckline:  flagHigh,
		Breakout:  s.closes[last],
		Target:    flagHigh + (top - base),
		Stop:      flagLow,
		StartBar:  s.start + poleStart,
		EndBar:    s.start + last,
	}
}

type bearFlag struct{}

// BearFlag detects a downward pole followed by a shallow upward drift,
// confirmed by a close below the consolidation low.
func BearFlag() Detector { return bearFlag{} }

func (bearFlag) Name() string { return NameBearFlag }

func (bearFlag) Detect(w domain.Window) *Match {
	s, ok := newScan(w)
	if !ok || s.n < poleBars+flagBars {
		return nil
	}
	last := s.last()
	poleEnd := s.n - flagBars - 1
	poleStart := poleEnd - poleBars
	if poleStart < 0 {
		return nil
	}
	base, bottom := s.closes[poleStart], s.closes[poleEnd]
	if base <= 0 {
		return nil
	}
	poleReturn := (base - bottom) / base
	if poleReturn < minPoleReturn {
		return nil
	}

	body := flagCloses(s.closes, poleEnd+1, last-1)
	drift := fitLine(body).normSlope(bottom)
	if drift < 0 || drift > maxFlagDrift {
		return nil
	}
	_, flagHigh := highestBetween(s.highs, poleEnd+1, last-1)
	retrace := (flagHigh - bottom) / (base - bottom)
	if retrace > maxRetrace {
		return nil
	}
	_, flagLow := lowestBetween(s.lows, poleEnd+1, last-1)
	if s.closes[last] >= flagLow {
		return nil
	}

	score := clamp01(0.5 +
		0.25*clamp01(poleReturn/(2*minPoleReturn)) +
		0.15*(1-retrace/maxRetrace) +
		0.1*(1-math.Abs(drift)/maxFlagDrift))

	return &Match{
		Pattern:   NameBearFlag,
		Direction: domain.DirectionShort,
		Score:     score,
		Neckline:  flagLow,
		Breakout:  s.closes[last],
		Target:    flagLow - (base - bottom),
		Stop:      flagHigh,
		StartBar:  s.start + poleStart,
		EndBar:    s.start + last,
	}
}

// flagCloses lifts closes[a, b] into pivots so fitLine can measure drift.
func flagCloses(closes []float64, a, b int) []pivot {
	ps := make([]pivot, 0, b-a+1)
	for i := a; i <= b; i++ {
		ps = append(ps, pivot{idx: i, price: closes[i]})
	}
	return ps
}
