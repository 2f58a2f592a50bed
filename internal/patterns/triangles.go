package patterns

import (
	"math"

	"chart-strategy-lab/internal/domain"
)

// trianglePivots is how many recent pivots each trendline is fitted over.
const trianglePivots = 3

type ascendingTriangle struct{}

// AscendingTriangle detects a flat resistance tested by rising swing lows,
// confirmed by a close above the resistance.
func AscendingTriangle() Detector { return ascendingTriangle{} }

func (ascendingTriangle) Name() string { return NameAscendingTriangle }

func (ascendingTriangle) Detect(w domain.Window) *Match {
	s, ok := newScan(w)
	if !ok || len(s.hp) < 2 || len(s.lp) < 2 {
		return nil
	}
	tops := lastK(s.hp, trianglePivots)
	bots := lastK(s.lp, trianglePivots)
	ref := s.closes[s.last()]

	top := fitLine(tops)
	bot := fitLine(bots)
	if math.Abs(top.normSlope(ref)) > flatSlopeMax || bot.normSlope(ref) < trendSlopeMin {
		return nil
	}
	lowP, highP := pivotRange(tops)
	if relDiff(lowP, highP) > peakTolerance {
		return nil
	}
	resistance := highP
	last := s.last()
	if s.closes[last] <= resistance || s.closes[last-1] > resistance {
		return nil
	}
	floor, _ := pivotRange(bots)
	height := resistance - floor
	if height <= 0 {
		return nil
	}

	score := clamp01(0.5 +
		0.2*(1-math.Abs(top.normSlope(ref))/flatSlopeMax) +
		0.2*clamp01(bot.normSlope(ref)/(2*trendSlopeMin)) +
		0.1*pivotBonus(tops, bots))

	return &Match{
		Pattern:   NameAscendingTriangle,
		Direction: domain.DirectionLong,
		Score:     score,
		Neckline:  resistance,
		Breakout:  s.closes[last],
		Target:    resistance + height,
		Stop:      bots[len(bots)-1].price,
		StartBar:  s.start + firstIdx(tops, bots),
		EndBar:    s.start + last,
	}
}

type descendingTriangle struct{}

// DescendingTriangle detects a flat support pressed by falling swing highs,
// confirmed by a close below the support.
func DescendingTriangle() Detector { return descendingTriangle{} }

func (descendingTriangle) Name() string { return NameDescendingTriangle }

func (descendingTriangle) Detect(w domain.Window) *Match {
	s, ok := newScan(w)
	if !ok || len(s.hp) < 2 || len(s.lp) < 2 {
		return nil
	}
	tops := lastK(s.hp, trianglePivots)
	bots := lastK(s.lp, trianglePivots)
	ref := s.closes[s.last()]

	top := fitLine(tops)
	bot := fitLine(bots)
	if math.Abs(bot.normSlope(ref)) > flatSlopeMax || top.normSlope(ref) > -trendSlopeMin {
		return nil
	}
	lowP, highP := pivotRange(bots)
	if relDiff(lowP, highP) > peakTolerance {
		return nil
	}
	support := lowP
	last := s.last()
	if s.closes[last] >= support || s.closes[last-1] < support {
		return nil
	}
	_, ceil := pivotRange(tops)
	height := ceil - support
	if height <= 0 {
		return nil
	}

	score := clamp01(0.5 +
		0.2*(1-math.Abs(bot.normSlope(ref))/flatSlopeMax) +
		0.2*clamp01(-top.normSlope(ref)/(2*trendSlopeMin)) +
		0.1*pivotBonus(tops, bots))

	return &Match{
		Pattern:   NameDescendingTriangle,
		Direction: domain.DirectionShort,
		Score:     score,
		Neckline:  support,
		Breakout:  s.closes[last],
		Target:    support - height,
		Stop:      tops[len(tops)-1].price,
		StartBar:  s.start + firstIdx(tops, bots),
		EndBar:    s.start + last,
	}
}

type symmetricalTriangle struct{}

// SymmetricalTriangle detects converging trendlines with falling highs and
// rising lows. Direction follows the side the close breaks out of.
func SymmetricalTriangle() Detector { return symmetricalTriangle{} }

func (symmetricalTriangle) Name() string { return NameSymmetricalTriangle }

func (symmetricalTriangle) Detect(w domain.Window) *Match {
	s, ok := newScan(w)
	if !ok || len(s.hp) < 2 || len(s.lp) < 2 {
		return nil
	}
	tops := lastK(s.hp, trianglePivots)
	bots := lastK(s.lp, trianglePivots)
	last := s.last()
	ref := s.closes[last]

	top := fitLine(tops)
	bot := fitLine(bots)
	if top.normSlope(ref) > -trendSlopeMin || bot.normSlope(ref) < trendSlopeMin {
		return nil
	}
	first := firstIdx(tops, bots)
	wide := top.at(first) - bot.at(first)
	narrow := top.at(last) - bot.at(last)
	if wide <= 0 || narrow >= wide {
		return nil
	}

	var dir domain.Direction
	var level, target, stop float64
	switch {
	case s.closes[last] > top.at(last) && s.closes[last-1] <= top.at(last-1):
		dir = domain.DirectionLong
		level = top.at(last)
		target = level + wide
		stop = bot.at(last)
	case s.closes[last] < bot.at(last) && s.closes[last-1] >= bot.at(last-1):
		dir = domain.DirectionShort
		level = bot.at(last)
		target = level - wide
		stop = top.at(last)
	default:
		return nil
	}

	score := clamp01(0.5 +
		0.15*clamp01(-top.normSlope(ref)/(2*trendSlopeMin)) +
		0.15*clamp01(bot.normSlope(ref)/(2*trendSlopeMin)) +
		0.1*(1-narrow/wide) +
		0.1*pivotBonus(tops, bots))

	return &Match{
		Pattern:   NameSymmetricalTriangle,
		Direction: dir,
		Score:     score,
		Neckline:  level,
		Breakout:  s.closes[last],
		Target:    target,
		Stop:      stop,
		StartBar:  s.start + first,
		EndBar:    s.start + last,
	}
}

// pivotRange returns the lowest and highest price among the pivots.
func pivotRange(ps []pivot) (low, high float64) {
	low, high = ps[0].price, ps[0].price
	for _, p := range ps[1:] {
		if p.price < low {
			low = p.price
		}
		if p.price > high {
			high = p.price
		}
	}
	return low, high
}

// pivotBonus rewards formations that touched each trendline three times.
func pivotBonus(tops, bots []pivot) float64 {
	if len(tops) >= trianglePivots && len(bots) >= trianglePivots {
		return 1
	}
	return 0
}
