package domain

import "time"

// Signal is a strategy's request to open exposure at the current bar. The
// backtester turns accepted signals into orders; strategies never touch the
// account themselves.
type Signal struct {
	Direction  Direction
	Confidence float64   // [0, 1]
	Price      float64   // reference price, the current close
	Time       time.Time // current bar time
	Pattern    string    // originating detector or rule
	ATR        float64   // ATR at signal time, 0 when unavailable
	Target     float64   // projected target level, 0 = unset
	Stop       float64   // invalidation level, 0 = unset
}
