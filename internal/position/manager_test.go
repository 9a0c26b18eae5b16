package position

import (
	"io"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/margex/gotrade/internal/domain"
)

func testLog() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return logrus.NewEntry(l)
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func filledOrder(id, userID string, qty string, d domain.Direction) *domain.Order {
	return &domain.Order{
		ID:        id,
		UserID:    userID,
		Symbol:    "BTC-USD",
		Quantity:  dec(qty),
		Direction: d,
		Status:    domain.OrderStatusFilled,
	}
}

func TestApplyFillOpensPosition(t *testing.T) {
	m := NewManager(testLog())
	out, err := m.ApplyFill(filledOrder("o1", "u1", "10", domain.DirectionLong), dec("50"))
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if out.Opened == nil || out.Closed != nil {
		t.Fatalf("expected pure open, got %+v", out)
	}
	p := out.Opened
	if !p.EntryPrice.Equal(dec("50")) || !p.Quantity.Equal(dec("10")) {
		t.Fatalf("bad position: %+v", p)
	}
	if !p.Margin().Equal(dec("500")) {
		t.Fatalf("margin got=%s want=500", p.Margin())
	}
}

func TestApplyFillMergesSameDirection(t *testing.T) {
	m := NewManager(testLog())
	if _, err := m.ApplyFill(filledOrder("o1", "u1", "10", domain.DirectionLong), dec("50")); err != nil {
		t.Fatalf("apply 1: %v", err)
	}
	out, err := m.ApplyFill(filledOrder("o2", "u1", "10", domain.DirectionLong), dec("60"))
	if err != nil {
		t.Fatalf("apply 2: %v", err)
	}
	p := out.Opened
	if !p.Quantity.Equal(dec("20")) {
		t.Fatalf("qty got=%s want=20", p.Quantity)
	}
	// Cost-weighted entry: (500 + 600) / 20 = 55.
	if !p.EntryPrice.Equal(dec("55")) {
		t.Fatalf("entry got=%s want=55", p.EntryPrice)
	}
	// Only one open position per (user, symbol, direction).
	open := m.ListByUser("u1", true)
	if len(open) != 1 {
		t.Fatalf("open positions got=%d want=1", len(open))
	}
}

func TestApplyFillOffsetsOpposite(t *testing.T) {
	m := NewManager(testLog())
	if _, err := m.ApplyFill(filledOrder("o1", "u1", "10", domain.DirectionLong), dec("50")); err != nil {
		t.Fatalf("apply open: %v", err)
	}
	out, err := m.ApplyFill(filledOrder("o2", "u1", "10", domain.DirectionShort), dec("55"))
	if err != nil {
		t.Fatalf("apply offset: %v", err)
	}
	if out.Opened != nil {
		t.Fatalf("full offset must not open a residual position")
	}
	slice := out.Closed
	if slice == nil {
		t.Fatalf("expected closed slice")
	}
	if !slice.RealizedPL.Equal(dec("50")) {
		t.Fatalf("realized got=%s want=50", slice.RealizedPL)
	}
	if !slice.FrozenDelta.Equal(dec("500")) {
		t.Fatalf("frozenDelta got=%s want=500", slice.FrozenDelta)
	}
	if slice.Position.Status != domain.PositionStatusClosed {
		t.Fatalf("status got=%s want=CLOSED", slice.Position.Status)
	}
}

func TestApplyFillPartialOffset(t *testing.T) {
	m := NewManager(testLog())
	if _, err := m.ApplyFill(filledOrder("o1", "u1", "10", domain.DirectionLong), dec("50")); err != nil {
		t.Fatalf("apply open: %v", err)
	}
	out, err := m.ApplyFill(filledOrder("o2", "u1", "4", domain.DirectionShort), dec("55"))
	if err != nil {
		t.Fatalf("apply offset: %v", err)
	}
	slice := out.Closed
	if !slice.Quantity.Equal(dec("4")) || !slice.RealizedPL.Equal(dec("20")) {
		t.Fatalf("bad slice: %+v", slice)
	}
	if slice.Position.Status != domain.PositionStatusOpen {
		t.Fatalf("partial close must stay OPEN")
	}
	if !slice.Position.Quantity.Equal(dec("6")) {
		t.Fatalf("remaining qty got=%s want=6", slice.Position.Quantity)
	}
}

func TestApplyFillOffsetWithResidualFlips(t *testing.T) {
	m := NewManager(testLog())
	if _, err := m.ApplyFill(filledOrder("o1", "u1", "10", domain.DirectionLong), dec("50")); err != nil {
		t.Fatalf("apply open: %v", err)
	}
	out, err := m.ApplyFill(filledOrder("o2", "u1", "15", domain.DirectionShort), dec("55"))
	if err != nil {
		t.Fatalf("apply flip: %v", err)
	}
	if out.Closed == nil || !out.Closed.Quantity.Equal(dec("10")) {
		t.Fatalf("expected full close of 10, got %+v", out.Closed)
	}
	if out.Opened == nil || !out.Opened.Quantity.Equal(dec("5")) {
		t.Fatalf("expected residual SHORT 5, got %+v", out.Opened)
	}
	if out.Opened.Direction != domain.DirectionShort {
		t.Fatalf("residual direction got=%s want=SHORT", out.Opened.Direction)
	}
}

func TestShortProfitSign(t *testing.T) {
	m := NewManager(testLog())
	if _, err := m.ApplyFill(filledOrder("o1", "u1", "10", domain.DirectionShort), dec("50")); err != nil {
		t.Fatalf("apply open: %v", err)
	}
	// Shorts profit when price falls.
	out, err := m.ApplyFill(filledOrder("o2", "u1", "10", domain.DirectionLong), dec("45"))
	if err != nil {
		t.Fatalf("apply offset: %v", err)
	}
	if !out.Closed.RealizedPL.Equal(dec("50")) {
		t.Fatalf("realized got=%s want=50", out.Closed.RealizedPL)
	}
}

func TestClosePositionManual(t *testing.T) {
	m := NewManager(testLog())
	out, err := m.ApplyFill(filledOrder("o1", "u1", "10", domain.DirectionLong), dec("50"))
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	slice, err := m.ClosePosition(out.Opened.ID, "u1", dec("48"))
	if err != nil {
		t.Fatalf("close: %v", err)
	}
	if !slice.RealizedPL.Equal(dec("-20")) {
		t.Fatalf("realized got=%s want=-20", slice.RealizedPL)
	}

	// Closing twice fails.
	if _, err := m.ClosePosition(out.Opened.ID, "u1", dec("48")); !domain.IsKind(err, domain.KindInvalidOrder) {
		t.Fatalf("expected INVALID_ORDER, got %v", err)
	}
}

func TestCloseCapsLossAtMargin(t *testing.T) {
	m := NewManager(testLog())
	out, err := m.ApplyFill(filledOrder("o1", "u1", "20", domain.DirectionShort), dec("50"))
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	// Raw loss (50 - 120) x 20 = -1400 exceeds the 1000 margin; the
	// slice is floored at -1000.
	slice, err := m.ClosePosition(out.Opened.ID, "u1", dec("120"))
	if err != nil {
		t.Fatalf("close: %v", err)
	}
	if !slice.RealizedPL.Equal(dec("-1000")) {
		t.Fatalf("realized got=%s want=-1000", slice.RealizedPL)
	}
	if !slice.FrozenDelta.Equal(dec("1000")) {
		t.Fatalf("frozenDelta got=%s want=1000", slice.FrozenDelta)
	}
	if slice.Position.Status != domain.PositionStatusClosed {
		t.Fatalf("status got=%s want=CLOSED", slice.Position.Status)
	}
}

func TestOppositeOpenQuantity(t *testing.T) {
	m := NewManager(testLog())
	if _, err := m.ApplyFill(filledOrder("o1", "u1", "10", domain.DirectionLong), dec("50")); err != nil {
		t.Fatalf("apply: %v", err)
	}
	// A SHORT order offsets the open LONG in full.
	if got := m.OppositeOpenQuantity("u1", "BTC-USD", domain.DirectionShort); !got.Equal(dec("10")) {
		t.Fatalf("got=%s want=10", got)
	}
	// Same direction and other symbols have nothing to offset.
	if got := m.OppositeOpenQuantity("u1", "BTC-USD", domain.DirectionLong); !got.IsZero() {
		t.Fatalf("got=%s want=0", got)
	}
	if got := m.OppositeOpenQuantity("u1", "ETH-USD", domain.DirectionShort); !got.IsZero() {
		t.Fatalf("got=%s want=0", got)
	}
}

func TestClosePositionWrongOwner(t *testing.T) {
	m := NewManager(testLog())
	out, err := m.ApplyFill(filledOrder("o1", "u1", "10", domain.DirectionLong), dec("50"))
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if _, err := m.ClosePosition(out.Opened.ID, "u2", dec("48")); !domain.IsKind(err, domain.KindPositionNotFound) {
		t.Fatalf("expected POSITION_NOT_FOUND, got %v", err)
	}
}

func TestMarkUserUpdatesUnrealized(t *testing.T) {
	m := NewManager(testLog())
	out, err := m.ApplyFill(filledOrder("o1", "u1", "10", domain.DirectionLong), dec("50"))
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	m.MarkUser("u1", "BTC-USD", dec("53"))

	p, err := m.Get(out.Opened.ID, "u1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !p.UnrealizedPL.Equal(dec("30")) {
		t.Fatalf("unrealized got=%s want=30", p.UnrealizedPL)
	}
	if !m.UnrealizedSum("u1").Equal(dec("30")) {
		t.Fatalf("sum got=%s want=30", m.UnrealizedSum("u1"))
	}
}

func TestUsersWithOpen(t *testing.T) {
	m := NewManager(testLog())
	if _, err := m.ApplyFill(filledOrder("o1", "u1", "1", domain.DirectionLong), dec("50")); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if _, err := m.ApplyFill(filledOrder("o2", "u2", "1", domain.DirectionShort), dec("50")); err != nil {
		t.Fatalf("apply: %v", err)
	}
	users := m.UsersWithOpen("BTC-USD")
	if len(users) != 2 {
		t.Fatalf("users got=%d want=2", len(users))
	}
	if len(m.UsersWithOpen("ETH-USD")) != 0 {
		t.Fatalf("unexpected users on ETH-USD")
	}
}
