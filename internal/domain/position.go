package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// PositionStatus is the position lifecycle state.
type PositionStatus string

const (
	PositionStatusOpen   PositionStatus = "OPEN"
	PositionStatusClosed PositionStatus = "CLOSED"
)

// Position is an open exposure on one symbol, owned by one user and
// created from exactly one originating order. A user holds at most one
// OPEN position per (symbol, direction).
type Position struct {
	ID           string
	UserID       string
	OrderID      string
	Symbol       string
	Quantity     decimal.Decimal
	EntryPrice   decimal.Decimal
	Direction    Direction
	Status       PositionStatus
	CurrentPrice decimal.Decimal // refreshed by mark-to-market
	UnrealizedPL decimal.Decimal // derived, recomputed on every quote while OPEN
	RealizedPL   decimal.Decimal // fixed once CLOSED
	OpenedAt     time.Time
	ClosedAt     *time.Time
	UpdatedAt    time.Time
}

// IsOpen reports whether the position is still open.
func (p *Position) IsOpen() bool {
	return p.Status == PositionStatusOpen
}

// Margin returns the notional reserved against this position:
// entryPrice x quantity.
func (p *Position) Margin() decimal.Decimal {
	return p.EntryPrice.Mul(p.Quantity)
}

// MarginFor returns the reserved notional backing a slice of the
// position, entryPrice x qty.
func (p *Position) MarginFor(qty decimal.Decimal) decimal.Decimal {
	return p.EntryPrice.Mul(qty)
}

// PLAt computes (price - entryPrice) x qty x directionSign.
func (p *Position) PLAt(price, qty decimal.Decimal) decimal.Decimal {
	return price.Sub(p.EntryPrice).Mul(qty).Mul(p.Direction.Sign())
}

// MarkToMarket sets the current price and recomputes unrealized PnL.
// Pure field update; no wallet interaction.
func (p *Position) MarkToMarket(price decimal.Decimal, now time.Time) {
	p.CurrentPrice = price
	p.UnrealizedPL = p.PLAt(price, p.Quantity)
	p.UpdatedAt = now
}

// UnrealizedPLPercent returns unrealizedPL / (entryPrice x quantity),
// or zero when the position carries no notional.
func (p *Position) UnrealizedPLPercent() decimal.Decimal {
	notional := p.Margin()
	if notional.IsZero() {
		return decimal.Zero
	}
	return p.UnrealizedPL.Div(notional)
}
