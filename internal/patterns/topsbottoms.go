package patterns

import (
	"math"

	"chart-strategy-lab/internal/domain"
)

const (
	minPeakSpacing = 5    // bars between adjacent peaks or troughs
	depthRef       = 0.05 // trough depth fraction that earns the full depth score
)

type doubleTop struct{}

// DoubleTop detects two roughly equal peaks around a trough, confirmed by a
// close below the trough.
func DoubleTop() Detector { return doubleTop{} }

func (doubleTop) Name() string { return NameDoubleTop }

func (doubleTop) Detect(w domain.Window) *Match {
	s, ok := newScan(w)
	if !ok || len(s.hp) < 2 {
		return nil
	}
	p1, p2 := s.hp[len(s.hp)-2], s.hp[len(s.hp)-1]
	if p2.idx-p1.idx < minPeakSpacing {
		return nil
	}
	equality := relDiff(p1.price, p2.price)
	if equality > peakTolerance {
		return nil
	}
	_, trough := lowestBetween(s.lows, p1.idx, p2.idx)
	avgPeak := (p1.price + p2.price) / 2
	height := avgPeak - trough
	if height <= 0 {
		return nil
	}
	last := s.last()
	if s.closes[last] >= trough || s.closes[last-1] < trough {
		return nil
	}

	score := clamp01(0.5 +
		0.25*(1-equality/peakTolerance) +
		0.25*clamp01(height/avgPeak/depthRef))

	return &Match{
		Pattern:   NameDoubleTop,
		Direction: domain.DirectionShort,
		Score:     score,
		Neckline:  trough,
		Breakout:  s.closes[last],
		Target:    trough - height,
		Stop:      math.Max(p1.price, p2.price),
		StartBar:  s.start + p1.idx,
		EndBar:    s.start + last,
	}
}

type doubleBottom struct{}

// DoubleBottom detects two roughly equal troughs around a peak, confirmed by
// a close above the peak.
func DoubleBottom() Detector { return doubleBottom{} }

func (doubleBottom) Name() string { return NameDoubleBottom }

func (doubleBottom) Detect(w domain.Window) *Match {
	s, ok := newScan(w)
	if !ok || len(s.lp) < 2 {
		return nil
	}
	p1, p2 := s.lp[len(s.lp)-2], s.lp[len(s.lp)-1]
	if p2.idx-p1.idx < minPeakSpacing {
		return nil
	}
	equality := relDiff(p1.price, p2.price)
	if equality > peakTolerance {
		return nil
	}
	_, peak := highestBetween(s.highs, p1.idx, p2.idx)
	avgTrough := (p1.price + p2.price) / 2
	height := peak - avgTrough
	if height <= 0 {
		return nil
	}
	last := s.last()
	if s.closes[last] <= peak || s.closes[last-1] > peak {
		return nil
	}

	score := clamp01(0.5 +
		0.25*(1-equality/peakTolerance) +
		0.25*clamp01(height/avgTrough/depthRef))

	return &Match{
		Pattern:   NameDoubleBottom,
		Direction: domain.DirectionLong,
		Score:     score,
		Neckline:  peak,
		Breakout:  s.closes[last],
		Target:    peak + height,
		Stop:      math.Min(p1.price, p2.price),
		StartBar:  s.start + p1.idx,
		EndBar:    s.start + last,
	}
}

type tripleTop struct{}

// TripleTop detects three roughly equal peaks, confirmed by a close below the
// lower of the two intervening troughs.
func TripleTop() Detector { return tripleTop{} }

func (tripleTop) Name() string { return NameTripleTop }

func (tripleTop) Detect(w domain.Window) *Match {
	s, ok := newScan(w)
	if !ok || len(s.hp) < 3 {
		return nil
	}
	p1, p2, p3 := s.hp[len(s.hp)-3], s.hp[len(s.hp)-2], s.hp[len(s.hp)-1]
	if p2.idx-p1.idx < minPeakSpacing || p3.idx-p2.idx < minPeakSpacing {
		return nil
	}
	mean := (p1.price + p2.price + p3.price) / 3
	spread := peakSpread([]pivot{p1, p2, p3}, mean)
	if spread > peakTolerance {
		return nil
	}
	_, t1 := lowestBetween(s.lows, p1.idx, p2.idx)
	_, t2 := lowestBetween(s.lows, p2.idx, p3.idx)
	neckline := math.Min(t1, t2)
	height := mean - neckline
	if height <= 0 {
		return nil
	}
	last := s.last()
	if s.closes[last] >= neckline || s.closes[last-1] < neckline {
		return nil
	}

	score := clamp01(0.55 +
		0.25*(1-spread/peakTolerance) +
		0.2*clamp01(height/mean/depthRef))

	return &Match{
		Pattern:   NameTripleTop,
		Direction: domain.DirectionShort,
		Score:     score,
		Neckline:  neckline,
		Breakout:  s.closes[last],
		Target:    neckline - height,
		Stop:      pivotMax(p1, p2, p3),
		StartBar:  s.start + p1.idx,
		EndBar:    s.start + last,
	}
}

type tripleBottom struct{}

// TripleBottom detects three roughly equal troughs, confirmed by a close
// above the higher of the two intervening peaks.
func TripleBottom() Detector { return tripleBottom{} }

func (tripleBottom) Name() string { return NameTripleBottom }

func (tripleBottom) Detect(w domain.Window) *Match {
	s, ok := newScan(w)
	if !ok || len(s.lp) < 3 {
		return nil
	}
	p1, p2, p3 := s.lp[len(s.lp)-3], s.lp[len(s.lp)-2], s.lp[len(s.lp)-1]
	if p2.idx-p1.idx < minPeakSpacing || p3.idx-p2.idx < minPeakSpacing {
		return nil
	}
	mean := (p1.price + p2.price + p3.price) / 3
	spread := peakSpread([]pivot{p1, p2, p3}, mean)
	if spread > peakTolerance {
		return nil
	}
	_, c1 := highestBetween(s.highs, p1.idx, p2.idx)
	_, c2 := highestBetween(s.highs, p2.idx, p3.idx)
	neckline := math.Max(c1, c2)
	height := neckline - mean
	if height <= 0 {
		return nil
	}
	last := s.last()
	if s.closes[last] <= neckline || s.closes[last-1] > neckline {
		return nil
	}

	score := clamp01(0.55 +
		0.25*(1-spread/peakTolerance) +
		0.2*clamp01(height/mean/depthRef))

	return &Match{
		Pattern:   NameTripleBottom,
		Direction: domain.DirectionLong,
		Score:     score,
		Neckline:  neckline,
		Breakout:  s.closes[last],
		Target:    neckline + height,
		Stop:      pivotMin(p1, p2, p3),
		StartBar:  s.start + p1.idx,
		EndBar:    s.start + last,
	}
}

// peakSpread is the worst relative deviation of the pivots from their mean.
func peakSpread(ps []pivot, mean float64) float64 {
	if mean == 0 {
		return 0
	}
	var worst float64
	for _, p := range ps {
		if d := math.Abs(p.price-mean) / mean; d > worst {
			worst = d
		}
	}
	return worst
}

func pivotMax(ps ...pivot) float64 {
	best := ps[0].price
	for _, p := range ps[1:] {
		best = math.Max(best, p.price)
	}
	return best
}

func pivotMin(ps ...pivot) float64 {
	best := ps[0].price
	for _, p := range ps[1:] {
		best = math.Min(best, p.price)
	}
	return best
}
