package patterns

import (
	"math"

	"chart-strategy-lab/internal/domain"
)

// headProminenceRef is the head-over-shoulder fraction that earns the full
// prominence score component.
const headProminenceRef = 0.02

type headAndShoulders struct{}

// HeadAndShoulders detects the bearish three-peak reversal: a head above two
// roughly equal shoulders, confirmed by a close below the neckline drawn
// through the intervening troughs.
func HeadAndShoulders() Detector { return headAndShoulders{} }

func (headAndShoulders) Name() string { return NameHeadAndShoulders }

func (headAndShoulders) Detect(w domain.Window) *Match {
	s, ok := newScan(w)
	if !ok || len(s.hp) < 3 {
		return nil
	}
	left, head, right := s.hp[len(s.hp)-3], s.hp[len(s.hp)-2], s.hp[len(s.hp)-1]
	if head.price <= left.price || head.price <= right.price {
		return nil
	}
	symmetry := relDiff(left.price, right.price)
	if symmetry > shoulderTolerance {
		return nil
	}
	t1i, t1 := lowestBetween(s.lows, left.idx, head.idx)
	t2i, t2 := lowestBetween(s.lows, head.idx, right.idx)
	neck := fitLine([]pivot{{t1i, t1}, {t2i, t2}})

	last := s.last()
	level := neck.at(last)
	if s.closes[last] >= level || s.closes[last-1] < neck.at(last-1) {
		return nil
	}
	height := head.price - neck.at(head.idx)
	if height <= 0 {
		return nil
	}

	prominence := (head.price - math.Max(left.price, right.price)) / head.price
	flatness := math.Abs(neck.normSlope(s.closes[last]))
	score := clamp01(0.5 +
		0.2*(1-symmetry/shoulderTolerance) +
		0.2*clamp01(prominence/headProminenceRef) +
		0.1*(1-clamp01(flatness/flatSlopeMax)))

	return &Match{
		Pattern:   NameHeadAndShoulders,
		Direction: domain.DirectionShort,
		Score:     score,
		Neckline:  level,
		Breakout:  s.closes[last],
		Target:    level - height,
		Stop:      right.price,
		StartBar:  s.start + left.idx,
		EndBar:    s.start + last,
	}
}

type inverseHeadAndShoulders struct{}

// InverseHeadAndShoulders detects the bullish mirror: a head below two
// roughly equal shoulder troughs, confirmed by a close above the neckline
// drawn through the intervening peaks.
func InverseHeadAndShoulders() Detector { return inverseHeadAndShoulders{} }

func (inverseHeadAndShoulders) Name() string { return NameInverseHeadAndShoulders }

func (inverseHeadAndShoulders) Detect(w domain.Window) *Match {
	s, ok := newScan(w)
	if !ok || len(s.lp) < 3 {
		return nil
	}
	left, head, right := s.lp[len(s.lp)-3], s.lp[len(s.lp)-2], s.lp[len(s.lp)-1]
	if head.price >= left.price || head.price >= right.price {
		return nil
	}
	symmetry := relDiff(left.price, right.price)
	if symmetry > shoulderTolerance {
		return nil
	}
	p1i, p1 := highestBetween(s.highs, left.idx, head.idx)
	p2i, p2 := highestBetween(s.highs, head.idx, right.idx)
	neck := fitLine([]pivot{{p1i, p1}, {p2i, p2}})

	last := s.last()
	level := neck.at(last)
	if s.closes[last] <= level || s.closes[last-1] > neck.at(last-1) {
		return nil
	}
	height := neck.at(head.idx) - head.price
	if height <= 0 {
		return nil
	}

	prominence := (math.Min(left.price, right.price) - head.price) / head.price
	flatness := math.Abs(neck.normSlope(s.closes[last]))
	score := clamp01(0.5 +
		0.2*(1-symmetry/shoulderTolerance) +
		0.2*clamp01(prominence/headProminenceRef) +
		0.1*(1-clamp01(flatness/flatSlopeMax)))

	return &Match{
		Pattern:   NameInverseHeadAndShoulders,
		Direction: domain.DirectionLong,
		Score:     score,
		Neckline:  level,
		Breakout:  s.closes[last],
		Target:    level + height,
		Stop:      right.price,
		StartBar:  s.start + left.idx,
		EndBar:    s.start + last,
	}
}
