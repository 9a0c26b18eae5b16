package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Trade is the immutable record of a closed position slice. It is
// created exactly once, when a position transitions OPEN -> CLOSED,
// and never mutated afterwards.
type Trade struct {
	ID         string
	UserID     string
	OrderID    string
	PositionID string
	Symbol     string
	EntryPrice decimal.Decimal
	ExitPrice  decimal.Decimal
	Quantity   decimal.Decimal
	Direction  Direction
	RealizedPL decimal.Decimal
	Fee        decimal.Decimal
	NetProfit  decimal.Decimal // realizedPL - fee
	OpenedAt   time.Time
	ClosedAt   time.Time
	CreatedAt  time.Time
}

// Duration returns how long the underlying position was held.
func (t *Trade) Duration() time.Duration {
	return t.ClosedAt.Sub(t.OpenedAt)
}
