// Package candles implements single and two-bar candlestick classifiers and
// turns them into trading signals.
package candles

import (
	"math"

	"chart-strategy-lab/internal/domain"
)

// DefaultDojiThreshold is the maximum body to combined-wick ratio for a doji.
const DefaultDojiThreshold = 0.1

// Wick requirements for hammer and shooting star geometry.
const (
	wickDominanceRatio = 2.0 // dominant wick at least this multiple of the body
	wickOppositeMax    = 0.5 // opposite wick at most this fraction of the body
)

// IsDoji reports whether the candle is a doji. A zero body always qualifies;
// otherwise the body divided by the combined wicks must stay at or below
// threshold. A body with no wicks at all is never a doji.
func IsDoji(open, high, low, close, threshold float64) bool {
	body := math.Abs(close - open)
	if body == 0 {
		return true
	}
	upper := high - math.Max(open, close)
	lower := math.Min(open, close) - low
	wicks := upper + lower
	if wicks <= 0 {
		return false
	}
	return body/wicks <= threshold
}

// IsHammer reports whether the candle is a hammer: a real body, a lower wick
// of at least twice the body and an upper wick no larger than half the body.
func IsHammer(open, high, low, close float64) bool {
	body := math.Abs(close - open)
	if body == 0 {
		return false
	}
	upper := high - math.Max(open, close)
	lower := math.Min(open, close) - low
	if lower < body*wickDominanceRatio {
		return false
	}
	if upper > body*wickOppositeMax {
		return false
	}
	return true
}

// IsShootingStar reports whether the candle is a shooting star, the exact
// mirror of a hammer.
func IsShootingStar(open, high, low, close float64) bool {
	body := math.Abs(close - open)
	if body == 0 {
		return false
	}
	upper := high - math.Max(open, close)
	lower := math.Min(open, close) - low
	if upper < body*wickDominanceRatio {
		return false
	}
	if lower > body*wickOppositeMax {
		return false
	}
	return true
}

// Engulfing classifies the current bar against the previous one. The bodies
// must have strictly opposite colors; a flat body never engulfs. The second
// return is false when the pair does not qualify.
func Engulfing(curr, prev domain.Bar) (domain.Direction, bool) {
	currBody := curr.Close - curr.Open
	prevBody := prev.Close - prev.Open
	if currBody*prevBody >= 0 {
		return "", false
	}
	if currBody > 0 {
		if curr.Open <= prev.Close && curr.Close >= prev.Open {
			return domain.DirectionLong, true
		}
		return "", false
	}
	if curr.Open >= prev.Close && curr.Close <= prev.Open {
		return domain.DirectionShort, true
	}
	return "", false
}
