package patterns

import "math"

// pivot is a confirmed swing extreme inside a window.
type pivot struct {
	idx   int // absolute index within the scanned slice
	price float64
}

// SwingPoints scans values with a symmetric lookback and returns the indexes
// of swing highs and lows in ascending order. Index i is a swing high only
// when values[i] strictly exceeds every value within lookback bars on both
// sides; an equal neighbor rejects the point. Mirror rule for lows. The scan
// is an explicit O(n*lookback) loop.
func SwingPoints(values []float64, lookback int) (highs, lows []int) {
	if lookback < 1 {
		lookback = 1
	}
	for i := lookback; i < len(values)-lookback; i++ {
		center := values[i]
		isHigh, isLow := true, true
		for j := i - lookback; j <= i+lookback; j++ {
			if j == i {
				continue
			}
			if values[j] >= center {
				isHigh = false
			}
			if values[j] <= center {
				isLow = false
			}
			if !isHigh && !isLow {
				break
			}
		}
		if isHigh {
			highs = append(highs, i)
		}
		if isLow {
			lows = append(lows, i)
		}
	}
	return highs, lows
}

// swingPivots pairs SwingPoints output with prices.
func swingPivots(values []float64, lookback int) (highs, lows []pivot) {
	hi, lo := SwingPoints(values, lookback)
	for _, i := range hi {
		highs = append(highs, pivot{idx: i, price: values[i]})
	}
	for _, i := range lo {
		lows = append(lows, pivot{idx: i, price: values[i]})
	}
	return highs, lows
}

// trendline is a least-squares fit over pivot points.
type trendline struct {
	slope     float64
	intercept float64
}

// fitLine computes an ordinary least-squares line through the pivots.
// A single point yields a flat line at its price.
func fitLine(points []pivot) trendline {
	n := float64(len(points))
	if n == 0 {
		return trendline{}
	}
	if n == 1 {
		return trendline{intercept: points[0].price}
	}
	var sumX, sumY float64
	for _, p := range points {
		sumX += float64(p.idx)
		sumY += p.price
	}
	meanX, meanY := sumX/n, sumY/n
	var num, den float64
	for _, p := range points {
		dx := float64(p.idx) - meanX
		num += dx * (p.price - meanY)
		den += dx * dx
	}
	if den == 0 {
		return trendline{intercept: meanY}
	}
	slope := num / den
	return trendline{slope: slope, intercept: meanY - slope*meanX}
}

// at evaluates the line at index x.
func (l trendline) at(x int) float64 { return l.slope*float64(x) + l.intercept }

// normSlope is the slope as a per-bar fraction of the reference price.
func (l trendline) normSlope(ref float64) float64 {
	if ref == 0 {
		return 0
	}
	return l.slope / ref
}

// lowestBetween returns the index and value of the minimum over values[a, b].
func lowestBetween(values []float64, a, b int) (int, float64) {
	idx, best := a, values[a]
	for i := a + 1; i <= b; i++ {
		if values[i] < best {
			idx, best = i, values[i]
		}
	}
	return idx, best
}

// highestBetween returns the index and value of the maximum over values[a, b].
func highestBetween(values []float64, a, b int) (int, float64) {
	idx, best := a, values[a]
	for i := a + 1; i <= b; i++ {
		if values[i] > best {
			idx, best = i, values[i]
		}
	}
	return idx, best
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// relDiff is the absolute difference as a fraction of the mean magnitude.
func relDiff(a, b float64) float64 {
	mean := (math.Abs(a) + math.Abs(b)) / 2
	if mean == 0 {
		return 0
	}
	return math.Abs(a-b) / mean
}
