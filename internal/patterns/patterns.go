// Package patterns detects classical chart patterns on candlestick windows.
//
// Each detector inspects only the bars visible through a domain.Window and
// reports at most one Match, scored in [0, 1]. Detection is geometric: swing
// pivots are extracted with a symmetric lookback, trendlines are fitted by
// least squares, and a pattern fires only once price confirms it by closing
// through its boundary on the latest bar. All detectors are pure functions
// of the window, so repeated scans over the same bars yield identical
// matches.
package patterns

import "chart-strategy-lab/internal/domain"

// Pattern names as stored on orders and trades.
const (
	NameHeadAndShoulders        = "head_and_shoulders"
	NameInverseHeadAndShoulders = "inverse_head_and_shoulders"
	NameAscendingTriangle       = "ascending_triangle"
	NameDescendingTriangle      = "descending_triangle"
	NameSymmetricalTriangle     = "symmetrical_triangle"
	NameBullFlag                = "bull_flag"
	NameBearFlag                = "bear_flag"
	NameRisingWedge             = "rising_wedge"
	NameFallingWedge            = "falling_wedge"
	NameDoubleTop               = "double_top"
	NameDoubleBottom            = "double_bottom"
	NameTripleTop               = "triple_top"
	NameTripleBottom            = "triple_bottom"
)

// MinWindow is the smallest window a detector will scan.
const MinWindow = 20

// Shared geometry parameters. Tolerances are fractions of price.
const (
	pivotLookback = 3  // bars on each side of a swing extreme
	scanSpan      = 60 // detectors look at most this many recent bars

	peakTolerance     = 0.03  // double/triple tops: peak equality
	shoulderTolerance = 0.04  // head and shoulders: shoulder symmetry
	flatSlopeMax      = 0.001 // per-bar normalized slope treated as flat
	trendSlopeMin     = 0.002 // per-bar normalized slope treated as trending
)

// Match is a confirmed pattern occurrence on the last bar of a window.
type Match struct {
	Pattern   string
	Direction domain.Direction
	Score     float64 // quality in [0, 1]
	Neckline  float64 // confirmation level that was broken
	Breakout  float64 // close that confirmed the pattern
	Target    float64 // measured-move objective
	Stop      float64 // invalidation level
	StartBar  int     // window index where the formation begins
	EndBar    int     // window index of the confirming bar
}

// Detector recognizes a single pattern family on a window.
// Detect returns nil when the pattern is absent or unconfirmed.
type Detector interface {
	Name() string
	Detect(w domain.Window) *Match
}

// span returns the first window index of the scan region and the number of
// bars in it. Windows shorter than MinWindow yield ok=false.
func span(w domain.Window) (start, n int, ok bool) {
	n = w.Len()
	if n < MinWindow {
		return 0, 0, false
	}
	if n > scanSpan {
		start = n - scanSpan
		n = scanSpan
	}
	return start, n, true
}

// scan bundles the column slices and swing pivots of the region every
// detector works on. Indexes inside a scan are relative to start.
type scan struct {
	start  int
	n      int
	highs  []float64
	lows   []float64
	closes []float64
	hp     []pivot // swing highs from the high column
	lp     []pivot // swing lows from the low column
}

func newScan(w domain.Window) (*scan, bool) {
	start, n, ok := span(w)
	if !ok {
		return nil, false
	}
	s := &scan{
		start:  start,
		n:      n,
		highs:  w.Highs()[start : start+n],
		lows:   w.Lows()[start : start+n],
		closes: w.Closes()[start : start+n],
	}
	s.hp, _ = swingPivots(s.highs, pivotLookback)
	_, s.lp = swingPivots(s.lows, pivotLookback)
	return s, true
}

// last is the relative index of the newest bar in the scan.
func (s *scan) last() int { return s.n - 1 }

// lastK returns the most recent k pivots, or all of them if fewer exist.
func lastK(ps []pivot, k int) []pivot {
	if len(ps) <= k {
		return ps
	}
	return ps[len(ps)-k:]
}

func firstIdx(groups ...[]pivot) int {
	first := -1
	for _, ps := range groups {
		if len(ps) == 0 {
			continue
		}
		if first == -1 || ps[0].idx < first {
			first = ps[0].idx
		}
	}
	return first
}
