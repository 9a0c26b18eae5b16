package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderType is the ledger-facing side of an order.
type OrderType string

const (
	OrderTypeBuy  OrderType = "BUY"
	OrderTypeSell OrderType = "SELL"
)

// Direction is the position-facing intent of an order.
type Direction string

const (
	DirectionLong  Direction = "LONG"
	DirectionShort Direction = "SHORT"
)

// Sign returns +1 for LONG and -1 for SHORT, used in PnL formulas.
func (d Direction) Sign() decimal.Decimal {
	if d == DirectionShort {
		return decimal.NewFromInt(-1)
	}
	return decimal.NewFromInt(1)
}

// Opposite returns the opposing direction.
func (d Direction) Opposite() Direction {
	if d == DirectionLong {
		return DirectionShort
	}
	return DirectionLong
}

// Valid reports whether d is a known direction.
func (d Direction) Valid() bool {
	return d == DirectionLong || d == DirectionShort
}

// OrderStatus is the order lifecycle state.
// An order is created PENDING and transitions exactly once to a
// terminal state; terminal orders are immutable except for timestamps
// already stamped at transition time.
type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "PENDING"
	OrderStatusFilled    OrderStatus = "FILLED"
	OrderStatusCancelled OrderStatus = "CANCELLED"
	OrderStatusRejected  OrderStatus = "REJECTED"
)

// Order is a request to trade a symbol, owned by one user.
type Order struct {
	ID           string
	UserID       string
	Symbol       string
	Quantity     decimal.Decimal
	PricePerUnit decimal.Decimal // execution price, set at fill time
	OrderType    OrderType
	Direction    Direction
	Status       OrderStatus
	CreatedAt    time.Time
	FilledAt     *time.Time
	CancelledAt  *time.Time
	UpdatedAt    time.Time
}

// IsTerminal reports whether the order has reached a final status.
// Terminal orders must never transition again.
func (o *Order) IsTerminal() bool {
	return o.Status == OrderStatusFilled ||
		o.Status == OrderStatusCancelled ||
		o.Status == OrderStatusRejected
}

// Notional returns quantity x price for the given price per unit.
func (o *Order) Notional(price decimal.Decimal) decimal.Decimal {
	return o.Quantity.Mul(price)
}

// SideFor maps an order direction onto its ledger side: LONG entries
// buy at the ask, SHORT entries sell at the bid.
func SideFor(d Direction) OrderType {
	if d == DirectionShort {
		return OrderTypeSell
	}
	return OrderTypeBuy
}

// CreateOrderRequest is the engine-facing order submission shape.
// SlippagePercent is optional; nil requires execution at the exact
// reference price.
type CreateOrderRequest struct {
	Symbol          string           `json:"symbol"`
	Quantity        decimal.Decimal  `json:"quantity"`
	Direction       Direction        `json:"direction"`
	SlippagePercent *decimal.Decimal `json:"slippagePercent,omitempty"`
}
