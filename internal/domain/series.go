package domain

import (
	"fmt"
	"sort"
	"time"
)

// Series is a column-oriented candle container for one symbol and timeframe.
// Indicator columns are populated once by the enrichment layer; absent
// families stay nil. Populated columns always match the bar count, with NaN
// in warm-up cells.
type Series struct {
	Symbol    string
	Timeframe string

	Times  []time.Time
	Open   []float64
	High   []float64
	Low    []float64
	Close  []float64
	Volume []float64

	EMA      map[int][]float64 // keyed by period
	ATR      []float64
	BBUpper  []float64
	BBMiddle []float64
	BBLower  []float64
}

// NewSeries returns an empty series for the symbol and timeframe.
func NewSeries(symbol, timeframe string) *Series {
	return &Series{Symbol: symbol, Timeframe: timeframe}
}

// Len returns the number of bars.
func (s *Series) Len() int { return len(s.Times) }

// Bar materializes the bar at index i.
func (s *Series) Bar(i int) Bar {
	return Bar{
		Time:   s.Times[i],
		Open:   s.Open[i],
		High:   s.High[i],
		Low:    s.Low[i],
		Close:  s.Close[i],
		Volume: s.Volume[i],
	}
}

// Append adds a bar to the end of the series. Indicator columns are not
// extended; enrichment runs after the series is assembled.
func (s *Series) Append(b Bar) {
	s.Times = append(s.Times, b.Time)
	s.Open = append(s.Open, b.Open)
	s.High = append(s.High, b.High)
	s.Low = append(s.Low, b.Low)
	s.Close = append(s.Close, b.Close)
	s.Volume = append(s.Volume, b.Volume)
}

// HasEMA reports whether an EMA column for the period is populated.
func (s *Series) HasEMA(period int) bool {
	col, ok := s.EMA[period]
	return ok && len(col) == s.Len()
}

// SetEMA stores an EMA column for the period.
func (s *Series) SetEMA(period int, col []float64) {
	if s.EMA == nil {
		s.EMA = make(map[int][]float64)
	}
	s.EMA[period] = col
}

// EMAPeriods returns the populated EMA periods in ascending order.
func (s *Series) EMAPeriods() []int {
	periods := make([]int, 0, len(s.EMA))
	for p := range s.EMA {
		periods = append(periods, p)
	}
	sort.Ints(periods)
	return periods
}

// Requirements declares the indicator columns and history a strategy needs
// present in a series before a run may start.
type Requirements struct {
	EMAPeriods []int // required EMA columns by period
	ATR        bool
	Bands      bool
	MinBars    int // bars needed before the first signal
}

// MergeRequirements combines requirement sets, deduplicating EMA periods and
// keeping the largest MinBars.
func MergeRequirements(reqs ...Requirements) Requirements {
	var merged Requirements
	seen := make(map[int]bool)
	for _, r := range reqs {
		for _, p := range r.EMAPeriods {
			if !seen[p] {
				seen[p] = true
				merged.EMAPeriods = append(merged.EMAPeriods, p)
			}
		}
		merged.ATR = merged.ATR || r.ATR
		merged.Bands = merged.Bands || r.Bands
		if r.MinBars > merged.MinBars {
			merged.MinBars = r.MinBars
		}
	}
	sort.Ints(merged.EMAPeriods)
	return merged
}

// Check validates the series against a requirement set. Presence is verified
// once here; after a nil return, strategies may access required columns
// directly without per-bar guards.
func (s *Series) Check(req Requirements) error {
	if s.Len() == 0 {
		return &PreconditionError{Op: "series.check", Reason: "series has no bars"}
	}
	n := s.Len()
	for _, col := range [][]float64{s.Open, s.High, s.Low, s.Close, s.Volume} {
		if len(col) != n {
			return &PreconditionError{Op: "series.check", Reason: "price columns have inconsistent lengths"}
		}
	}
	for _, p := range req.EMAPeriods {
		col, ok := s.EMA[p]
		if !ok {
			return &PreconditionError{Op: "series.check", Reason: fmt.Sprintf("missing ema_%d column", p)}
		}
		if len(col) != n {
			return &PreconditionError{Op: "series.check", Reason: fmt.Sprintf("ema_%d column length %d, want %d", p, len(col), n)}
		}
	}
	if req.ATR {
		if len(s.ATR) != n {
			return &PreconditionError{Op: "series.check", Reason: "missing atr column"}
		}
	}
	if req.Bands {
		for name, col := range map[string][]float64{"bb_upper": s.BBUpper, "bb_middle": s.BBMiddle, "bb_lower": s.BBLower} {
			if len(col) != n {
				return &PreconditionError{Op: "series.check", Reason: fmt.Sprintf("missing %s column", name)}
			}
		}
	}
	return nil
}

// Truncate returns a copy of the series containing bars [0, end] only,
// indicator columns included. Used by look-ahead verification.
func (s *Series) Truncate(end int) *Series {
	if end < 0 || end >= s.Len() {
		panic(fmt.Sprintf("domain: truncate index %d out of range [0, %d)", end, s.Len()))
	}
	n := end + 1
	out := &Series{
		Symbol:    s.Symbol,
		Timeframe: s.Timeframe,
		Times:     append([]time.Time(nil), s.Times[:n]...),
		Open:      append([]float64(nil), s.Open[:n]...),
		High:      append([]float64(nil), s.High[:n]...),
		Low:       append([]float64(nil), s.Low[:n]...),
		Close:     append([]float64(nil), s.Close[:n]...),
		Volume:    append([]float64(nil), s.Volume[:n]...),
	}
	for p, col := range s.EMA {
		out.SetEMA(p, append([]float64(nil), col[:min(n, len(col))]...))
	}
	if s.ATR != nil {
		out.ATR = append([]float64(nil), s.ATR[:min(n, len(s.ATR))]...)
	}
	if s.BBUpper != nil {
		out.BBUpper = append([]float64(nil), s.BBUpper[:min(n, len(s.BBUpper))]...)
		out.BBMiddle = append([]float64(nil), s.BBMiddle[:min(n, len(s.BBMiddle))]...)
		out.BBLower = append([]float64(nil), s.BBLower[:min(n, len(s.BBLower))]...)
	}
	return out
}
