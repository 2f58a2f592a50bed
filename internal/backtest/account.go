package backtest

import (
	"fmt"
	"log"

	"github.com/shopspring/decimal"

	"chart-strategy-lab/internal/domain"
)

// InsufficientCapitalError reports an entry whose cost exceeds available
// cash. The order is dropped; the backtest continues with the next bar.
type InsufficientCapitalError struct {
	Needed    decimal.Decimal
	Available decimal.Decimal
}

func (e *InsufficientCapitalError) Error() string {
	return fmt.Sprintf("insufficient capital: need %s, have %s", e.Needed, e.Available)
}

// Account is the cash and position ledger of a single backtest run. All
// money amounts are decimals; a round trip at an unchanged price with zero
// fees restores cash exactly.
//
// The ledger holds at most one open position and never goes negative: an
// entry that costs more than the available cash is rejected before any
// mutation. Closed trades accumulate in an append-only history.
type Account struct {
	cash     decimal.Decimal
	feeBps   int64
	position *domain.Position
	trades   []domain.Trade
	logger   *log.Logger
}

// NewAccount creates an account funded with initialCapital. Fees are charged
// per fill at feeBps basis points of the notional. A nil logger falls back
// to log.Default().
func NewAccount(initialCapital decimal.Decimal, feeBps int64, logger *log.Logger) *Account {
	if logger == nil {
		logger = log.Default()
	}
	return &Account{
		cash:   initialCapital,
		feeBps: feeBps,
		logger: logger,
	}
}

// Apply executes an order against the ledger at series index bar. It is the
// only mutating entry point.
//
// An entry order while flat opens a position, debiting notional plus fee; if
// the cost exceeds cash it returns *InsufficientCapitalError and mutates
// nothing. An entry order in the direction of the open position is ignored
// (no pyramiding). An opposing order closes the open position at the order
// price and records a trade; it never opens the reverse position. A sell
// with no open position is ignored.
func (a *Account) Apply(order domain.Order, bar int) error {
	if a.position == nil {
		if !order.IsEntry() {
			a.logger.Printf("ignoring sell at bar %d: no open position", bar)
			return nil
		}
		return a.open(order, bar)
	}

	if order.IsEntry() && order.Direction() == a.position.Direction {
		a.logger.Printf("ignoring %s order at bar %d: %s position already open", order.Type, bar, a.position.Direction)
		return nil
	}

	a.close(order, bar)
	return nil
}

// open debits cost and installs the position.
func (a *Account) open(order domain.Order, bar int) error {
	notional := order.Price.Mul(order.Size)
	cost := notional.Add(a.fee(notional))
	if cost.GreaterThan(a.cash) {
		return &InsufficientCapitalError{Needed: cost, Available: a.cash}
	}

	a.cash = a.cash.Sub(cost)
	a.position = &domain.Position{
		Direction:  order.Direction(),
		Size:       order.Size,
		EntryPrice: order.Price,
		EntryTime:  order.Time,
		EntryBar:   bar,
		Pattern:    order.Pattern,
		Confidence: order.Confidence,
		ATR:        order.ATR,
		Target:     order.Target,
		Stop:       order.Stop,
	}
	return nil
}

// close settles the open position at the order price and appends the trade.
func (a *Account) close(order domain.Order, bar int) {
	pos := a.position
	entryNotional := pos.EntryPrice.Mul(pos.Size)
	exitNotional := order.Price.Mul(pos.Size)

	realized := order.Price.Sub(pos.EntryPrice).Mul(pos.Size).Mul(directionFactor(pos.Direction))
	entryFee := a.fee(entryNotional)
	exitFee := a.fee(exitNotional)
	fees := entryFee.Add(exitFee)

	a.cash = a.cash.Add(entryNotional).Add(realized).Sub(exitFee)

	netPnL := realized.Sub(fees)
	reason := order.Reason
	if reason == "" {
		reason = domain.ExitReasonSignal
	}

	a.trades = append(a.trades, domain.Trade{
		Direction:   pos.Direction,
		Size:        pos.Size,
		EntryTime:   pos.EntryTime,
		EntryPrice:  pos.EntryPrice,
		ExitTime:    order.Time,
		ExitPrice:   order.Price,
		ExitReason:  reason,
		PnL:         netPnL,
		Fees:        fees,
		Pattern:     pos.Pattern,
		Confidence:  pos.Confidence,
		HoldingBars: pos.Age(bar),
		Outcome:     domain.ClassifyOutcome(netPnL),
	})
	a.position = nil
}

// fee returns the fill fee on a notional amount.
func (a *Account) fee(notional decimal.Decimal) decimal.Decimal {
	if a.feeBps == 0 {
		return decimal.Zero
	}
	return notional.Mul(decimal.NewFromInt(a.feeBps)).Div(decimal.NewFromInt(10000))
}

// MarkToMarket returns the unrealized PnL of the open position at price,
// zero when flat.
func (a *Account) MarkToMarket(price decimal.Decimal) decimal.Decimal {
	if a.position == nil {
		return decimal.Zero
	}
	pos := a.position
	return price.Sub(pos.EntryPrice).Mul(pos.Size).Mul(directionFactor(pos.Direction))
}

// Equity returns total account value at price: cash plus the open position's
// entry notional and unrealized PnL.
func (a *Account) Equity(price decimal.Decimal) decimal.Decimal {
	if a.position == nil {
		return a.cash
	}
	entryNotional := a.position.EntryPrice.Mul(a.position.Size)
	return a.cash.Add(entryNotional).Add(a.MarkToMarket(price))
}

// Cash returns available cash.
func (a *Account) Cash() decimal.Decimal { return a.cash }

// Position returns a copy of the open position, nil when flat.
func (a *Account) Position() *domain.Position {
	if a.position == nil {
		return nil
	}
	pos := *a.position
	return &pos
}

// Trades returns a copy of the closed trade history.
func (a *Account) Trades() []domain.Trade {
	out := make([]domain.Trade, len(a.trades))
	copy(out, a.trades)
	return out
}

// directionFactor maps a position direction to its PnL sign.
func directionFactor(d domain.Direction) decimal.Decimal {
	if d == domain.DirectionShort {
		return decimal.NewFromInt(-1)
	}
	return decimal.NewFromInt(1)
}
