package recorder

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/margex/gotrade/internal/domain"
	"github.com/margex/gotrade/internal/position"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestFeeSchedule(t *testing.T) {
	f := FeeSchedule{Rate: dec("0.01")}
	// 1% of entry notional 50 x 10 = 500 -> 5.
	if got := f.Fee(dec("50"), dec("10")); !got.Equal(dec("5")) {
		t.Fatalf("fee got=%s want=5", got)
	}
}

func TestRecordProfitableTrade(t *testing.T) {
	r := New(FeeSchedule{Rate: dec("0.01")})
	opened := time.Now().UTC().Add(-time.Hour)
	closed := time.Now().UTC()
	slice := &position.ClosedSlice{
		Position: domain.Position{
			ID:        "p1",
			UserID:    "u1",
			Symbol:    "BTC-USD",
			Direction: domain.DirectionLong,
			Status:    domain.PositionStatusClosed,
			OpenedAt:  opened,
			ClosedAt:  &closed,
		},
		Quantity:    dec("10"),
		EntryPrice:  dec("50"),
		ExitPrice:   dec("55"),
		RealizedPL:  dec("50"),
		FrozenDelta: dec("500"),
	}

	trade := r.Record(slice, "order-2")

	if trade.OrderID != "order-2" || trade.PositionID != "p1" {
		t.Fatalf("bad linkage: %+v", trade)
	}
	if !trade.Fee.Equal(dec("5")) {
		t.Fatalf("fee got=%s want=5", trade.Fee)
	}
	if !trade.NetProfit.Equal(dec("45")) {
		t.Fatalf("netProfit got=%s want=45", trade.NetProfit)
	}
	if trade.Duration() < 59*time.Minute {
		t.Fatalf("duration got=%s want about 1h", trade.Duration())
	}
}

func TestRecordLossStillPaysFee(t *testing.T) {
	r := New(FeeSchedule{Rate: dec("0.01")})
	closed := time.Now().UTC()
	slice := &position.ClosedSlice{
		Position: domain.Position{
			ID: "p1", UserID: "u1", Symbol: "BTC-USD",
			Direction: domain.DirectionLong,
			Status:    domain.PositionStatusClosed,
			OpenedAt:  closed.Add(-time.Minute),
			ClosedAt:  &closed,
		},
		Quantity:    dec("10"),
		EntryPrice:  dec("50"),
		ExitPrice:   dec("48"),
		RealizedPL:  dec("-20"),
		FrozenDelta: dec("500"),
	}

	trade := r.Record(slice, "order-2")
	if !trade.NetProfit.Equal(dec("-25")) {
		t.Fatalf("netProfit got=%s want=-25", trade.NetProfit)
	}
}

func TestRecordFeeNeverExceedsCover(t *testing.T) {
	r := New(FeeSchedule{Rate: dec("0.01")})
	closed := time.Now().UTC()
	// Margin 1000 wiped out in full: no cover is left, the fee is
	// waived, and the net loss equals the margin exactly.
	slice := &position.ClosedSlice{
		Position: domain.Position{
			ID: "p1", UserID: "u1", Symbol: "BTC-USD",
			Direction: domain.DirectionShort,
			Status:    domain.PositionStatusClosed,
			OpenedAt:  closed.Add(-time.Minute),
			ClosedAt:  &closed,
		},
		Quantity:    dec("20"),
		EntryPrice:  dec("50"),
		ExitPrice:   dec("120"),
		RealizedPL:  dec("-1000"),
		FrozenDelta: dec("1000"),
	}

	trade := r.Record(slice, "order-2")
	if !trade.Fee.IsZero() {
		t.Fatalf("fee got=%s want=0", trade.Fee)
	}
	if !trade.NetProfit.Equal(dec("-1000")) {
		t.Fatalf("netProfit got=%s want=-1000", trade.NetProfit)
	}
}
