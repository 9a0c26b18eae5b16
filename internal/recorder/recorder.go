// Package recorder derives immutable trade records from closed
// positions.
package recorder

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/margex/gotrade/internal/domain"
	"github.com/margex/gotrade/internal/position"
)

// FeeSchedule prices the close of a position slice. The fee is a flat
// percentage of the entry notional: entryPrice x quantity x rate.
type FeeSchedule struct {
	Rate decimal.Decimal
}

// Fee computes the closing fee for a slice.
func (f FeeSchedule) Fee(entryPrice, qty decimal.Decimal) decimal.Decimal {
	return entryPrice.Mul(qty).Mul(f.Rate)
}

// TradeRecorder turns closed slices into trades. Record is pure and
// called exactly once per closing event; a position can only close
// once, so idempotency rides on that invariant.
type TradeRecorder struct {
	fees FeeSchedule
}

func New(fees FeeSchedule) *TradeRecorder {
	return &TradeRecorder{fees: fees}
}

// Record builds the immutable Trade for a just-closed slice.
// netProfit = realizedPL - fee; duration = closedAt - openedAt. The fee
// never takes more than the cover left after the realized loss, so the
// settlement credit (margin + realizedPL - fee) cannot go negative.
func (r *TradeRecorder) Record(slice *position.ClosedSlice, closingOrderID string) domain.Trade {
	p := slice.Position
	fee := r.fees.Fee(slice.EntryPrice, slice.Quantity)
	if cover := slice.FrozenDelta.Add(slice.RealizedPL); cover.LessThan(fee) {
		fee = decimal.Max(cover, decimal.Zero)
	}
	closedAt := time.Now().UTC()
	if p.ClosedAt != nil {
		closedAt = *p.ClosedAt
	}
	return domain.Trade{
		ID:         uuid.NewString(),
		UserID:     p.UserID,
		OrderID:    closingOrderID,
		PositionID: p.ID,
		Symbol:     p.Symbol,
		EntryPrice: slice.EntryPrice,
		ExitPrice:  slice.ExitPrice,
		Quantity:   slice.Quantity,
		Direction:  p.Direction,
		RealizedPL: slice.RealizedPL,
		Fee:        fee,
		NetProfit:  slice.RealizedPL.Sub(fee),
		OpenedAt:   p.OpenedAt,
		ClosedAt:   closedAt,
		CreatedAt:  time.Now().UTC(),
	}
}
