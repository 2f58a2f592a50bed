package strategy

import (
	"math"
	"strings"

	"chart-strategy-lab/internal/domain"
	"chart-strategy-lab/internal/patterns"
)

// Pattern strategy defaults.
const (
	DefaultPatternMinScore = 0.5
	DefaultPatternBaseSize = 0.5
)

// DefaultPatternNames is the detector subset used when the config names
// none.
var DefaultPatternNames = []string{patterns.NameDoubleBottom, patterns.NameDoubleTop}

// PatternStrategy trades confirmed chart patterns picked by the
// orchestrator. The winning match carries its measured-move target and
// invalidation stop onto the position, and exits fire when price reaches
// either level.
type PatternStrategy struct {
	orch           *patterns.Orchestrator
	minScore       float64
	baseSize       float64
	maxHoldingBars int // 0 = unlimited
}

// NewPatternStrategy creates a PatternStrategy over the named detectors.
// Nil or empty names select DefaultPatternNames.
func NewPatternStrategy(names []string, minScore, baseSize float64, maxHoldingBars int) (*PatternStrategy, error) {
	if len(names) == 0 {
		names = DefaultPatternNames
	}
	orch, err := patterns.NewOrchestrator().WithPatterns(names...)
	if err != nil {
		return nil, err
	}
	return &PatternStrategy{
		orch:           orch,
		minScore:       minScore,
		baseSize:       baseSize,
		maxHoldingBars: maxHoldingBars,
	}, nil
}

// ID returns the strategy identifier including parameters.
func (s *PatternStrategy) ID() string {
	return strategyID(domain.StrategyTypePattern,
		"patterns="+strings.Join(s.orch.Names(), ","),
		param("score", s.minScore),
		param("base", s.baseSize),
		intParam("hold", s.maxHoldingBars),
	)
}

// Requirements needs enough raw bars for the detectors to scan.
func (s *PatternStrategy) Requirements() domain.Requirements {
	return domain.Requirements{MinBars: patterns.MinWindow}
}

// GenerateSignals asks the orchestrator for the best match on the current
// bar and emits at most one signal from it.
func (s *PatternStrategy) GenerateSignals(w domain.Window) []domain.Signal {
	m := s.orch.Best(w)
	if m == nil || m.Score < s.minScore {
		return nil
	}
	last := w.Last()
	return []domain.Signal{{
		Direction:  m.Direction,
		Confidence: m.Score,
		Price:      last.Close,
		Time:       last.Time,
		Pattern:    m.Pattern,
		Target:     m.Target,
		Stop:       m.Stop,
	}}
}

// ShouldExit closes when price reaches the pattern target or breaches the
// stop, or when the optional holding limit is hit.
func (s *PatternStrategy) ShouldExit(w domain.Window, pos *domain.Position) bool {
	if pos == nil {
		return false
	}
	if s.maxHoldingBars > 0 && pos.Age(w.End()) >= s.maxHoldingBars {
		return true
	}
	price := w.Close(w.End())
	switch pos.Direction {
	case domain.DirectionLong:
		if pos.Target > 0 && price >= pos.Target {
			return true
		}
		if pos.Stop > 0 && price <= pos.Stop {
			return true
		}
	case domain.DirectionShort:
		if pos.Target > 0 && price <= pos.Target {
			return true
		}
		if pos.Stop > 0 && price >= pos.Stop {
			return true
		}
	}
	return false
}

// PositionSize scales the base fraction by confidence and the reward:risk
// of the match levels.
func (s *PatternStrategy) PositionSize(_ domain.Window, sig domain.Signal) float64 {
	mult := 1.0
	if sig.Target != 0 && sig.Stop != 0 {
		risk := math.Abs(sig.Price - sig.Stop)
		if risk > 0 {
			switch rr := math.Abs(sig.Target-sig.Price) / risk; {
			case rr >= 2:
				mult = 1.2
			case rr >= 1:
				mult = 1.0
			default:
				mult = 0.8
			}
		}
	}
	return clamp01(s.baseSize * 2 * sig.Confidence * mult)
}

var _ Strategy = (*PatternStrategy)(nil)
