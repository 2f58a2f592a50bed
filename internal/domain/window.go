package domain

import (
	"fmt"
	"time"
)

// Window is a read-only trailing view of a series ending at the current
// simulation bar. Accessors cover indexes 0 through End() only, so bars past
// the current bar are unreachable through a window.
type Window struct {
	series *Series
	end    int
}

// NewWindow returns a window over the series ending at index end inclusive.
// It panics on an out-of-range end; windows are always built from validated
// loop indexes.
func NewWindow(s *Series, end int) Window {
	if end < 0 || end >= s.Len() {
		panic(fmt.Sprintf("domain: window end %d out of range [0, %d)", end, s.Len()))
	}
	return Window{series: s, end: end}
}

// Len returns the number of bars visible in the window.
func (w Window) Len() int { return w.end + 1 }

// End returns the absolute series index of the current bar.
func (w Window) End() int { return w.end }

// Symbol returns the series symbol.
func (w Window) Symbol() string { return w.series.Symbol }

// Bar returns the bar at window index i (0 = oldest visible).
func (w Window) Bar(i int) Bar { return w.series.Bar(w.checked(i)) }

// Last returns the current bar.
func (w Window) Last() Bar { return w.series.Bar(w.end) }

// Time returns the current bar time.
func (w Window) Time() time.Time { return w.series.Times[w.end] }

// Open returns the open at window index i.
func (w Window) Open(i int) float64 { return w.series.Open[w.checked(i)] }

// High returns the high at window index i.
func (w Window) High(i int) float64 { return w.series.High[w.checked(i)] }

// Low returns the low at window index i.
func (w Window) Low(i int) float64 { return w.series.Low[w.checked(i)] }

// Close returns the close at window index i.
func (w Window) Close(i int) float64 { return w.series.Close[w.checked(i)] }

// Volume returns the volume at window index i.
func (w Window) Volume(i int) float64 { return w.series.Volume[w.checked(i)] }

// EMA returns the EMA value for the period at window index i. Column
// presence is guaranteed by the pre-run requirements check.
func (w Window) EMA(period, i int) float64 { return w.series.EMA[period][w.checked(i)] }

// ATRAt returns the ATR value at window index i.
func (w Window) ATRAt(i int) float64 { return w.series.ATR[w.checked(i)] }

// BandsAt returns the Bollinger upper, middle and lower values at window
// index i.
func (w Window) BandsAt(i int) (upper, middle, lower float64) {
	i = w.checked(i)
	return w.series.BBUpper[i], w.series.BBMiddle[i], w.series.BBLower[i]
}

// Closes returns the visible close column as a shared sub-slice. Callers
// must treat it as read-only.
func (w Window) Closes() []float64 { return w.series.Close[:w.end+1] }

// Highs returns the visible high column as a shared sub-slice.
func (w Window) Highs() []float64 { return w.series.High[:w.end+1] }

// Lows returns the visible low column as a shared sub-slice.
func (w Window) Lows() []float64 { return w.series.Low[:w.end+1] }

func (w Window) checked(i int) int {
	if i < 0 || i > w.end {
		panic(fmt.Sprintf("domain: window index %d out of range [0, %d]", i, w.end))
	}
	return i
}
