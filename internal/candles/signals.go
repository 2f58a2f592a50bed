package candles

import "chart-strategy-lab/internal/domain"

// TrendLookback is how many trailing closes classify a doji as a top or a
// bottom.
const TrendLookback = 5

// Confidence assigned to each pattern signal.
const (
	hammerConfidence = 0.6
	engulfConfidence = 0.7
	starConfidence   = 0.6
	dojiConfidence   = 0.5
)

// Signals inspects the current bar of the window and emits pattern signals
// in a fixed order: hammer, bullish engulfing, shooting star, bearish
// engulfing, doji. The order is part of the contract; the backtester acts on
// the first signal that clears its threshold.
func Signals(w domain.Window, dojiThreshold float64) []domain.Signal {
	if dojiThreshold <= 0 {
		dojiThreshold = DefaultDojiThreshold
	}

	cur := w.Last()
	var signals []domain.Signal

	emit := func(dir domain.Direction, confidence float64, pattern string) {
		signals = append(signals, domain.Signal{
			Direction:  dir,
			Confidence: confidence,
			Price:      cur.Close,
			Time:       cur.Time,
			Pattern:    pattern,
		})
	}

	if IsHammer(cur.Open, cur.High, cur.Low, cur.Close) {
		emit(domain.DirectionLong, hammerConfidence, "hammer")
	}

	var engulf domain.Direction
	var engulfed bool
	if w.Len() > 1 {
		engulf, engulfed = Engulfing(cur, w.Bar(w.Len()-2))
	}
	if engulfed && engulf == domain.DirectionLong {
		emit(domain.DirectionLong, engulfConfidence, "bullish_engulfing")
	}

	if IsShootingStar(cur.Open, cur.High, cur.Low, cur.Close) {
		emit(domain.DirectionShort, starConfidence, "shooting_star")
	}

	if engulfed && engulf == domain.DirectionShort {
		emit(domain.DirectionShort, engulfConfidence, "bearish_engulfing")
	}

	if IsDoji(cur.Open, cur.High, cur.Low, cur.Close, dojiThreshold) {
		// A doji against a rising tail reads as exhaustion at the top,
		// anything else as a potential bottom.
		if risingTail(w.Closes(), TrendLookback) {
			emit(domain.DirectionShort, dojiConfidence, "doji_top")
		} else {
			emit(domain.DirectionLong, dojiConfidence, "doji_bottom")
		}
	}

	return signals
}

// risingTail reports whether the last n closes are non-decreasing.
func risingTail(closes []float64, n int) bool {
	if len(closes) > n {
		closes = closes[len(closes)-n:]
	}
	for i := 1; i < len(closes); i++ {
		if closes[i] < closes[i-1] {
			return false
		}
	}
	return true
}
