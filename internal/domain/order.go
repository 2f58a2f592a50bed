package domain

import (
	"math"
	"time"

	"github.com/shopspring/decimal"
)

// OrderType identifies the intent of an order.
type OrderType string

// Order type constants. Long and buy open bullish exposure, short opens
// bearish exposure, sell only closes an existing long.
const (
	OrderLong  OrderType = "long"
	OrderShort OrderType = "short"
	OrderBuy   OrderType = "buy"
	OrderSell  OrderType = "sell"
)

// Direction is the side of a position, signal or order.
type Direction string

// Direction constants
const (
	DirectionLong  Direction = "long"
	DirectionShort Direction = "short"
)

// Opposite returns the other side.
func (d Direction) Opposite() Direction {
	if d == DirectionLong {
		return DirectionShort
	}
	return DirectionLong
}

// Order is an immutable instruction to the account ledger. Construct orders
// with NewOrder; values that fail validation are never returned. Orders are
// passed by value and the With helpers return modified copies.
type Order struct {
	Type       OrderType
	Size       decimal.Decimal // quantity, > 0
	Price      decimal.Decimal // execution price, > 0
	Time       time.Time       // execution bar time
	Confidence float64         // signal confidence in [0, 1]

	Pattern string  // originating pattern or rule, optional
	ATR     float64 // ATR at signal time, 0 when unavailable
	Target  float64 // profit target level, 0 = unset
	Stop    float64 // invalidation level, 0 = unset
	Reason  string  // exit reason tag for deliberate exits, optional
}

// NewOrder validates every field and returns the order. Each violated
// constraint yields a ValidationError naming the field.
func NewOrder(typ OrderType, size, price decimal.Decimal, at time.Time, confidence float64) (Order, error) {
	switch typ {
	case OrderLong, OrderShort, OrderBuy, OrderSell:
	default:
		return Order{}, &ValidationError{Field: "type", Reason: "must be one of long, short, buy, sell"}
	}
	if !size.IsPositive() {
		return Order{}, &ValidationError{Field: "size", Reason: "must be positive"}
	}
	if !price.IsPositive() {
		return Order{}, &ValidationError{Field: "price", Reason: "must be positive"}
	}
	if at.IsZero() {
		return Order{}, &ValidationError{Field: "time", Reason: "must be set"}
	}
	if math.IsNaN(confidence) || confidence < 0 || confidence > 1 {
		return Order{}, &ValidationError{Field: "confidence", Reason: "must be within [0, 1]"}
	}
	return Order{Type: typ, Size: size, Price: price, Time: at, Confidence: confidence}, nil
}

// WithPattern returns a copy carrying the originating pattern name.
func (o Order) WithPattern(pattern string) Order {
	o.Pattern = pattern
	return o
}

// WithATR returns a copy carrying the ATR at signal time.
func (o Order) WithATR(atr float64) Order {
	o.ATR = atr
	return o
}

// WithLevels returns a copy carrying target and stop levels.
func (o Order) WithLevels(target, stop float64) Order {
	o.Target = target
	o.Stop = stop
	return o
}

// WithReason returns a copy carrying the exit reason. Orders without a reason
// that close a position record an opposing-signal exit.
func (o Order) WithReason(reason string) Order {
	o.Reason = reason
	return o
}

// IsEntry reports whether the order opens exposure when the account is flat.
// Sell is the only pure exit type.
func (o Order) IsEntry() bool { return o.Type != OrderSell }

// Direction returns the exposure side the order pushes toward. Sell pushes
// short, which is what closes a long.
func (o Order) Direction() Direction {
	switch o.Type {
	case OrderLong, OrderBuy:
		return DirectionLong
	default:
		return DirectionShort
	}
}
