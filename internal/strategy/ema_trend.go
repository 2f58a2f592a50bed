package strategy

import (
	"math"

	"chart-strategy-lab/internal/domain"
	"chart-strategy-lab/internal/patterns"
)

// EMA-trend strategy defaults.
const (
	DefaultEMAShort       = 8
	DefaultEMAMedium      = 21
	DefaultEMALong        = 200
	DefaultSwingLookback  = 5
	DefaultMomentumPeriod = 14
	DefaultTrendThreshold = 0.5
	DefaultTrendBaseSize  = 0.5
)

// EMATrendStrategy trades fresh EMA alignment transitions. A signal fires on
// the first bar where the trend reading flips into a direction, with
// confidence built from normalized momentum, swing breaks and the strict
// stack.
type EMATrendStrategy struct {
	emaShort            int
	emaMedium           int
	emaLong             int
	strict              bool
	swingLookback       int
	momentumPeriod      int
	confidenceThreshold float64
	baseSize            float64
}

// NewEMATrendStrategy creates an EMATrendStrategy.
func NewEMATrendStrategy(short, medium, long int, strict bool, swingLookback, momentumPeriod int, confidenceThreshold, baseSize float64) *EMATrendStrategy {
	return &EMATrendStrategy{
		emaShort:            short,
		emaMedium:           medium,
		emaLong:             long,
		strict:              strict,
		swingLookback:       swingLookback,
		momentumPeriod:      momentumPeriod,
		confidenceThreshold: confidenceThreshold,
		baseSize:            baseSize,
	}
}

// ID returns the strategy identifier including parameters.
func (s *EMATrendStrategy) ID() string {
	mode := "loose"
	if s.strict {
		mode = "strict"
	}
	return strategyID(domain.StrategyTypeEMATrend,
		intParam("short", s.emaShort),
		intParam("medium", s.emaMedium),
		intParam("long", s.emaLong),
		"mode="+mode,
		intParam("swing", s.swingLookback),
		intParam("mom", s.momentumPeriod),
		param("conf", s.confidenceThreshold),
		param("base", s.baseSize),
	)
}

// Requirements needs all three EMA columns and a valid reading on the bar
// before the current one.
func (s *EMATrendStrategy) Requirements() domain.Requirements {
	return domain.Requirements{
		EMAPeriods: []int{s.emaShort, s.emaMedium, s.emaLong},
		MinBars:    s.emaLong + 1,
	}
}

// GenerateSignals emits a signal only on the bar where the trend reading
// transitions into a direction.
func (s *EMATrendStrategy) GenerateSignals(w domain.Window) []domain.Signal {
	end := w.End()
	if end < 1 {
		return nil
	}
	cur := s.trendAt(w, end)
	if cur == 0 || s.trendAt(w, end-1) == cur {
		return nil
	}

	confidence := 0.5 + 0.25*math.Max(s.momentum(w)*float64(cur), 0)
	if s.swingBreak(w, cur) {
		confidence += 0.15
	}
	if !s.strict && s.strictStack(w, end, cur) {
		confidence += 0.1
	}
	if confidence > 1 {
		confidence = 1
	}
	if confidence < s.confidenceThreshold {
		return nil
	}

	dir, pattern := domain.DirectionLong, "ema_trend_up"
	if cur < 0 {
		dir, pattern = domain.DirectionShort, "ema_trend_down"
	}
	last := w.Last()
	return []domain.Signal{{
		Direction:  dir,
		Confidence: confidence,
		Price:      last.Close,
		Time:       last.Time,
		Pattern:    pattern,
	}}
}

// ShouldExit closes when the loose trend flips against the position or the
// close crosses the medium EMA the wrong way.
func (s *EMATrendStrategy) ShouldExit(w domain.Window, pos *domain.Position) bool {
	if pos == nil {
		return false
	}
	end := w.End()
	loose := s.looseTrendAt(w, end)
	medium := w.EMA(s.emaMedium, end)
	c := w.Close(end)
	if pos.Direction == domain.DirectionLong {
		return loose == -1 || (!math.IsNaN(medium) && c < medium)
	}
	return loose == 1 || (!math.IsNaN(medium) && c > medium)
}

// PositionSize scales the base fraction by confidence, with a bump when the
// strict stack holds in the signal direction.
func (s *EMATrendStrategy) PositionSize(w domain.Window, sig domain.Signal) float64 {
	mult := 1.0
	if s.strictStack(w, w.End(), directionSign(sig.Direction)) {
		mult = 1.1
	}
	return clamp01(s.baseSize * 2 * sig.Confidence * mult)
}

// trendAt classifies the bar as +1, -1 or 0 under the configured mode.
func (s *EMATrendStrategy) trendAt(w domain.Window, i int) int {
	if s.strict {
		if s.strictStack(w, i, 1) {
			return 1
		}
		if s.strictStack(w, i, -1) {
			return -1
		}
		return 0
	}
	return s.looseTrendAt(w, i)
}

func (s *EMATrendStrategy) looseTrendAt(w domain.Window, i int) int {
	short := w.EMA(s.emaShort, i)
	medium := w.EMA(s.emaMedium, i)
	long := w.EMA(s.emaLong, i)
	if math.IsNaN(short) || math.IsNaN(medium) || math.IsNaN(long) {
		return 0
	}
	c := w.Close(i)
	if short > medium && c > long {
		return 1
	}
	if short < medium && c < long {
		return -1
	}
	return 0
}

// strictStack reports full EMA alignment with the close beyond the long EMA.
func (s *EMATrendStrategy) strictStack(w domain.Window, i, dir int) bool {
	short := w.EMA(s.emaShort, i)
	medium := w.EMA(s.emaMedium, i)
	long := w.EMA(s.emaLong, i)
	if math.IsNaN(short) || math.IsNaN(medium) || math.IsNaN(long) {
		return false
	}
	c := w.Close(i)
	if dir > 0 {
		return short > medium && medium > long && c > long
	}
	return short < medium && medium < long && c < long
}

// momentum is the pct change over momentumPeriod, normalized by the largest
// absolute pct change seen over the trailing 2x window. Zero when history is
// short.
func (s *EMATrendStrategy) momentum(w domain.Window) float64 {
	end := w.End()
	p := s.momentumPeriod
	if p <= 0 || end < p {
		return 0
	}
	base := w.Close(end - p)
	if base == 0 {
		return 0
	}
	current := (w.Close(end) - base) / base

	lo := end - 2*p + 1
	if lo < p {
		lo = p
	}
	var maxAbs float64
	for j := lo; j <= end; j++ {
		prior := w.Close(j - p)
		if prior == 0 {
			continue
		}
		if v := math.Abs((w.Close(j) - prior) / prior); v > maxAbs {
			maxAbs = v
		}
	}
	if maxAbs == 0 {
		return 0
	}
	normalized := current / maxAbs
	if normalized > 1 {
		normalized = 1
	}
	if normalized < -1 {
		normalized = -1
	}
	return normalized
}

// swingBreak reports whether the close took out the most recent confirmed
// swing extreme in the trend direction.
func (s *EMATrendStrategy) swingBreak(w domain.Window, dir int) bool {
	closes := w.Closes()
	highs, lows := patterns.SwingPoints(closes, s.swingLookback)
	c := closes[len(closes)-1]
	if dir > 0 {
		return len(highs) > 0 && c > closes[highs[len(highs)-1]]
	}
	return len(lows) > 0 && c < closes[lows[len(lows)-1]]
}

var _ Strategy = (*EMATrendStrategy)(nil)
