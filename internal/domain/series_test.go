package domain

import (
	"errors"
	"math"
	"testing"
	"time"
)

func testSeries(t *testing.T, n int) *Series {
	t.Helper()
	s := NewSeries("BTCUSDT", "1h")
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < n; i++ {
		price := 100.0 + float64(i)
		s.Append(Bar{
			Time:   start.Add(time.Duration(i) * time.Hour),
			Open:   price,
			High:   price + 1,
			Low:    price - 1,
			Close:  price + 0.5,
			Volume: 1000,
		})
	}
	return s
}

func constColumn(n int, v float64) []float64 {
	col := make([]float64, n)
	for i := range col {
		col[i] = v
	}
	return col
}

func TestSeriesCheck(t *testing.T) {
	tests := []struct {
		name    string
		prepare func(s *Series)
		req     Requirements
		wantErr bool
	}{
		{
			name:    "no requirements on plain series",
			prepare: func(s *Series) {},
			req:     Requirements{},
			wantErr: false,
		},
		{
			name: "required ema present",
			prepare: func(s *Series) {
				s.SetEMA(21, constColumn(s.Len(), 100))
			},
			req:     Requirements{EMAPeriods: []int{21}},
			wantErr: false,
		},
		{
			name:    "missing ema column",
			prepare: func(s *Series) {},
			req:     Requirements{EMAPeriods: []int{21}},
			wantErr: true,
		},
		{
			name: "ema length mismatch",
			prepare: func(s *Series) {
				s.SetEMA(21, constColumn(s.Len()-1, 100))
			},
			req:     Requirements{EMAPeriods: []int{21}},
			wantErr: true,
		},
		{
			name:    "missing atr",
			prepare: func(s *Series) {},
			req:     Requirements{ATR: true},
			wantErr: true,
		},
		{
			name: "missing one band column",
			prepare: func(s *Series) {
				s.BBUpper = constColumn(s.Len(), 105)
				s.BBMiddle = constColumn(s.Len(), 100)
			},
			req:     Requirements{Bands: true},
			wantErr: true,
		},
		{
			name: "full volatility requirements",
			prepare: func(s *Series) {
				n := s.Len()
				s.ATR = constColumn(n, 2)
				s.BBUpper = constColumn(n, 105)
				s.BBMiddle = constColumn(n, 100)
				s.BBLower = constColumn(n, 95)
			},
			req:     Requirements{ATR: true, Bands: true},
			wantErr: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := testSeries(t, 30)
			tt.prepare(s)

			err := s.Check(tt.req)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Check() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				var perr *PreconditionError
				if !errors.As(err, &perr) {
					t.Errorf("Check() error type = %T, want *PreconditionError", err)
				}
			}
		})
	}
}

func TestSeriesCheckEmpty(t *testing.T) {
	s := NewSeries("BTCUSDT", "1h")
	if err := s.Check(Requirements{}); err == nil {
		t.Error("Check() on empty series should fail")
	}
}

func TestMergeRequirements(t *testing.T) {
	merged := MergeRequirements(
		Requirements{EMAPeriods: []int{21, 8}, MinBars: 50},
		Requirements{EMAPeriods: []int{21, 200}, ATR: true, MinBars: 210},
		Requirements{Bands: true, MinBars: 21},
	)

	wantPeriods := []int{8, 21, 200}
	if len(merged.EMAPeriods) != len(wantPeriods) {
		t.Fatalf("merged EMAPeriods = %v, want %v", merged.EMAPeriods, wantPeriods)
	}
	for i, p := range wantPeriods {
		if merged.EMAPeriods[i] != p {
			t.Errorf("merged EMAPeriods[%d] = %d, want %d", i, merged.EMAPeriods[i], p)
		}
	}
	if !merged.ATR || !merged.Bands {
		t.Errorf("merged ATR/Bands = %v/%v, want true/true", merged.ATR, merged.Bands)
	}
	if merged.MinBars != 210 {
		t.Errorf("merged MinBars = %d, want 210", merged.MinBars)
	}
}

func TestWindowBounds(t *testing.T) {
	s := testSeries(t, 10)
	w := NewWindow(s, 4)

	if w.Len() != 5 {
		t.Errorf("Len() = %d, want 5", w.Len())
	}
	if w.End() != 4 {
		t.Errorf("End() = %d, want 4", w.End())
	}
	if got := w.Close(4); got != s.Close[4] {
		t.Errorf("Close(4) = %v, want %v", got, s.Close[4])
	}
	if got := w.Last().Close; got != s.Close[4] {
		t.Errorf("Last().Close = %v, want %v", got, s.Close[4])
	}

	// A bar past the window end must be unreachable.
	func() {
		defer func() {
			if recover() == nil {
				t.Error("Close(5) past window end should panic")
			}
		}()
		w.Close(5)
	}()

	if got := len(w.Closes()); got != 5 {
		t.Errorf("len(Closes()) = %d, want 5", got)
	}
}

func TestNewWindowOutOfRange(t *testing.T) {
	s := testSeries(t, 3)

	for _, end := range []int{-1, 3, 10} {
		func() {
			defer func() {
				if recover() == nil {
					t.Errorf("NewWindow(end=%d) should panic", end)
				}
			}()
			NewWindow(s, end)
		}()
	}
}

func TestSeriesTruncate(t *testing.T) {
	s := testSeries(t, 20)
	s.SetEMA(8, constColumn(20, 101))
	s.ATR = constColumn(20, 2)
	s.BBUpper = constColumn(20, 105)
	s.BBMiddle = constColumn(20, 100)
	s.BBLower = constColumn(20, 95)

	cut := s.Truncate(9)

	if cut.Len() != 10 {
		t.Fatalf("Truncate(9).Len() = %d, want 10", cut.Len())
	}
	if len(cut.EMA[8]) != 10 || len(cut.ATR) != 10 || len(cut.BBLower) != 10 {
		t.Error("Truncate() should cut indicator columns to the same length")
	}

	// Mutating the copy must not touch the original.
	cut.Close[0] = math.NaN()
	if math.IsNaN(s.Close[0]) {
		t.Error("Truncate() returned aliased storage")
	}
}
