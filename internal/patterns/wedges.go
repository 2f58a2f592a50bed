package patterns

import "chart-strategy-lab/internal/domain"

type risingWedge struct{}

// RisingWedge detects two rising, converging trendlines with the lows
// climbing faster than the highs. A close under the lower line confirms the
// bearish break.
func RisingWedge() Detector { return risingWedge{} }

func (risingWedge) Name() string { return NameRisingWedge }

func (risingWedge) Detect(w domain.Window) *Match {
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
	topSlope, botSlope := top.normSlope(ref), bot.normSlope(ref)
	if topSlope < trendSlopeMin || botSlope <= topSlope {
		return nil
	}
	first := firstIdx(tops, bots)
	wide := top.at(first) - bot.at(first)
	narrow := top.at(last) - bot.at(last)
	if wide <= 0 || narrow >= wide {
		return nil
	}
	level := bot.at(last)
	if s.closes[last] >= level || s.closes[last-1] < bot.at(last-1) {
		return nil
	}

	score := clamp01(0.5 +
		0.15*clamp01(botSlope/(2*trendSlopeMin)) +
		0.15*(1-narrow/wide) +
		0.1*clamp01((botSlope-topSlope)/trendSlopeMin) +
		0.1*pivotBonus(tops, bots))

	return &Match{
		Pattern:   NameRisingWedge,
		Direction: domain.DirectionShort,
		Score:     score,
		Neckline:  level,
		Breakout:  s.closes[last],
		Target:    level - wide,
		Stop:      top.at(last),
		StartBar:  s.start + first,
		EndBar:    s.start + last,
	}
}

type fallingWedge struct{}

// FallingWedge detects two falling, converging trendlines with the highs
// dropping faster than the lows. A close over the upper line confirms the
// bullish break.
func FallingWedge() Detector { return fallingWedge{} }

func (fallingWedge) Name() string { return NameFallingWedge }

func (fallingWedge) Detect(w domain.Window) *Match {
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
	topSlope, botSlope := top.normSlope(ref), bot.normSlope(ref)
	if botSlope > -trendSlopeMin || topSlope >= botSlope {
		return nil
	}
	first := firstIdx(tops, bots)
	wide := top.at(first) - bot.at(first)
	narrow := top.at(last) - bot.at(last)
	if wide <= 0 || narrow >= wide {
		return nil
	}
	level := top.at(last)
	if s.closes[last] <= level || s.closes[last-1] > top.at(last-1) {
		return nil
	}

	score := clamp01(0.5 +
		0.15*clamp01(-topSlope/(2*trendSlopeMin)) +
		0.15*(1-narrow/wide) +
		0.1*clamp01((botSlope-topSlope)/trendSlopeMin) +
		0.1*pivotBonus(tops, bots))

	return &Match{
		Pattern:   NameFallingWedge,
		Direction: domain.DirectionLong,
		Score:     score,
		Neckline:  level,
		Breakout:  s.closes[last],
		Target:    level + wide,
		Stop:      bot.at(last),
		StartBar:  s.start + first,
		EndBar:    s.start + last,
	}
}
