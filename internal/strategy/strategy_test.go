package strategy

import (
	"testing"
	"time"

	"chart-strategy-lab/internal/domain"
)

var testStart = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// buildWindow assembles a series from bars, lets the caller attach indicator
// columns, and returns the window ending at the last bar.
func buildWindow(bars []domain.Bar, set func(*domain.Series)) domain.Window {
	s := domain.NewSeries("TESTUSDT", "1h")
	for _, b := range bars {
		s.Append(b)
	}
	if set != nil {
		set(s)
	}
	return domain.NewWindow(s, s.Len()-1)
}

// flatBar is a zero-range candle at the close price.
func flatBar(i int, c float64) domain.Bar {
	return domain.Bar{
		Time: testStart.Add(time.Duration(i) * time.Hour),
		Open: c, High: c, Low: c, Close: c,
		Volume: 1000,
	}
}

// ohlcBar is a full candle.
func ohlcBar(i int, o, h, l, c float64) domain.Bar {
	return domain.Bar{
		Time: testStart.Add(time.Duration(i) * time.Hour),
		Open: o, High: h, Low: l, Close: c,
		Volume: 1000,
	}
}

func flatBars(closes ...float64) []domain.Bar {
	bars := make([]domain.Bar, len(closes))
	for i, c := range closes {
		bars[i] = flatBar(i, c)
	}
	return bars
}

func TestStrategyID_Deterministic(t *testing.T) {
	strategies := []Strategy{
		NewCandlestickStrategy(0.1, 0.6, 0.5, 5),
		NewEMATrendStrategy(8, 21, 200, false, 5, 14, 0.5, 0.5),
		NewVolatilityStrategy(14, 20, 2.0, 20, 1.5, 0.8, 0.6, 0.5),
	}
	for _, s := range strategies {
		first := s.ID()
		for i := 0; i < 3; i++ {
			if got := s.ID(); got != first {
				t.Errorf("ID() run %d = %q, want %q", i, got, first)
			}
		}
	}
}

func TestStrategyID_DistinguishesParams(t *testing.T) {
	a := NewCandlestickStrategy(0.1, 0.6, 0.5, 5)
	b := NewCandlestickStrategy(0.1, 0.7, 0.5, 5)
	if a.ID() == b.ID() {
		t.Errorf("ID() identical for different params: %q", a.ID())
	}
	c := NewCandlestickStrategy(0.1, 0.6, 0.5, 5)
	if a.ID() != c.ID() {
		t.Errorf("ID() differs for equal params: %q vs %q", a.ID(), c.ID())
	}
}

func TestStrategyID_TypePrefix(t *testing.T) {
	tests := []struct {
		s      Strategy
		prefix string
	}{
		{NewCandlestickStrategy(0.1, 0.6, 0.5, 5), domain.StrategyTypeCandlestick},
		{NewEMATrendStrategy(8, 21, 200, true, 5, 14, 0.5, 0.5), domain.StrategyTypeEMATrend},
		{NewVolatilityStrategy(14, 20, 2.0, 20, 1.5, 0.8, 0.6, 0.5), domain.StrategyTypeVolatility},
	}
	for _, tt := range tests {
		id := tt.s.ID()
		want := tt.prefix + "-"
		if len(id) < len(want) || id[:len(want)] != want {
			t.Errorf("ID() = %q, want prefix %q", id, want)
		}
	}
}
