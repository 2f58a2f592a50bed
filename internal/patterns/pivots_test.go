package patterns

import (
	"math"
	"reflect"
	"testing"
)

func TestSwingPoints(t *testing.T) {
	tests := []struct {
		name      string
		values    []float64
		lookback  int
		wantHighs []int
		wantLows  []int
	}{
		{
			name:      "single interior peak",
			values:    []float64{1, 2, 5, 2, 1},
			lookback:  2,
			wantHighs: []int{2},
			wantLows:  nil,
		},
		{
			name:      "alternating swings",
			values:    []float64{1, 2, 3, 2, 1, 2, 3, 4, 3, 2},
			lookback:  2,
			wantHighs: []int{2, 7},
			wantLows:  []int{4},
		},
		{
			name:      "equal neighbors reject the point",
			values:    []float64{1, 2, 3, 3, 2, 1},
			lookback:  1,
			wantHighs: nil,
			wantLows:  nil,
		},
		{
			name:      "flat series has no swings",
			values:    []float64{5, 5, 5, 5, 5, 5},
			lookback:  2,
			wantHighs: nil,
			wantLows:  nil,
		},
		{
			name:      "too short for lookback",
			values:    []float64{1, 9, 1},
			lookback:  3,
			wantHighs: nil,
			wantLows:  nil,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			highs, lows := SwingPoints(tt.values, tt.lookback)
			if !reflect.DeepEqual(highs, tt.wantHighs) {
				t.Errorf("SwingPoints() highs = %v, want %v", highs, tt.wantHighs)
			}
			if !reflect.DeepEqual(lows, tt.wantLows) {
				t.Errorf("SwingPoints() lows = %v, want %v", lows, tt.wantLows)
			}
		})
	}
}

func TestFitLine(t *testing.T) {
	line := fitLine([]pivot{{idx: 0, price: 1}, {idx: 1, price: 3}, {idx: 2, price: 5}})
	if math.Abs(line.slope-2) > 1e-9 {
		t.Errorf("fitLine() slope = %v, want 2", line.slope)
	}
	if math.Abs(line.intercept-1) > 1e-9 {
		t.Errorf("fitLine() intercept = %v, want 1", line.intercept)
	}
	if got := line.at(3); math.Abs(got-7) > 1e-9 {
		t.Errorf("at(3) = %v, want 7", got)
	}
}

func TestFitLineDegenerate(t *testing.T) {
	if got := fitLine(nil); got.slope != 0 || got.intercept != 0 {
		t.Errorf("fitLine(nil) = %+v, want zero line", got)
	}
	line := fitLine([]pivot{{idx: 4, price: 7}})
	if line.slope != 0 || line.intercept != 7 {
		t.Errorf("fitLine(single) = %+v, want flat line at 7", line)
	}
}

func TestNormSlope(t *testing.T) {
	line := trendline{slope: 0.5}
	if got := line.normSlope(100); math.Abs(got-0.005) > 1e-12 {
		t.Errorf("normSlope(100) = %v, want 0.005", got)
	}
	if got := line.normSlope(0); got != 0 {
		t.Errorf("normSlope(0) = %v, want 0", got)
	}
}
