package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Position is the single open holding of an account. At most one position
// exists at a time; the account hands out copies, never the live struct.
type Position struct {
	Direction  Direction
	Size       decimal.Decimal // quantity
	EntryPrice decimal.Decimal
	EntryTime  time.Time
	EntryBar   int // series index the position opened at

	Pattern    string  // originating pattern or rule
	Confidence float64 // entry signal confidence
	ATR        float64 // ATR at entry, 0 when unavailable
	Target     float64 // profit target level, 0 = unset
	Stop       float64 // invalidation level, 0 = unset
}

// Age returns the number of bars held as of series index i.
func (p *Position) Age(i int) int { return i - p.EntryBar }
