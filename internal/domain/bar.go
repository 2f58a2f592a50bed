package domain

import (
	"math"
	"time"
)

// Bar is a single OHLCV candle.
type Bar struct {
	Time   time.Time // bar open time
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume float64
}

// Body returns the absolute size of the candle body.
func (b Bar) Body() float64 { return math.Abs(b.Close - b.Open) }

// UpperWick returns the distance from the body top to the high.
func (b Bar) UpperWick() float64 { return b.High - math.Max(b.Open, b.Close) }

// LowerWick returns the distance from the body bottom to the low.
func (b Bar) LowerWick() float64 { return math.Min(b.Open, b.Close) - b.Low }

// Range returns high minus low.
func (b Bar) Range() float64 { return b.High - b.Low }

// Bullish reports whether the bar closed above its open.
func (b Bar) Bullish() bool { return b.Close > b.Open }

// Bearish reports whether the bar closed below its open.
func (b Bar) Bearish() bool { return b.Close < b.Open }
