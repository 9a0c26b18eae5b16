package engine

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/margex/gotrade/internal/domain"
	"github.com/margex/gotrade/internal/ledger"
	"github.com/margex/gotrade/internal/oracle"
)

func testLog() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return logrus.NewEntry(l)
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// fakeOracle serves fixed quotes and lets a test move the market
// between Submit and Execute.
type fakeOracle struct {
	quotes map[string]oracle.Quote
}

func (f *fakeOracle) Quote(_ context.Context, symbol string) (oracle.Quote, error) {
	q, ok := f.quotes[symbol]
	if !ok {
		return oracle.Quote{}, domain.ErrPriceUnavailable(symbol, nil)
	}
	return q, nil
}

func (f *fakeOracle) Knows(symbol string) bool {
	_, ok := f.quotes[symbol]
	return ok
}

func (f *fakeOracle) set(symbol, bid, ask string) {
	f.quotes[symbol] = oracle.Quote{
		Symbol:    symbol,
		Bid:       dec(bid),
		Ask:       dec(ask),
		Last:      dec(bid),
		Timestamp: time.Now(),
	}
}

func newTestEngine(t *testing.T, balance string) (*OrderBookEngine, *ledger.WalletLedger, *fakeOracle) {
	t.Helper()
	wallets := ledger.NewWalletLedger(testLog())
	if err := wallets.Admit(&domain.Wallet{ID: "w1", UserID: "u1", Balance: dec(balance)}); err != nil {
		t.Fatalf("admit: %v", err)
	}
	prices := &fakeOracle{quotes: make(map[string]oracle.Quote)}
	prices.set("BTC-USD", "50", "50")
	e := New(Config{MaxSlippagePercent: dec("0.05")}, prices, wallets, testLog())
	return e, wallets, prices
}

func TestSubmitReservesNotional(t *testing.T) {
	e, wallets, _ := newTestEngine(t, "1000")
	order, err := e.Submit(context.Background(), "u1", domain.CreateOrderRequest{
		Symbol: "BTC-USD", Quantity: dec("10"), Direction: domain.DirectionLong,
	}, decimal.Zero)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if order.Status != domain.OrderStatusPending {
		t.Fatalf("status got=%s want=PENDING", order.Status)
	}
	w, _ := wallets.Wallet("u1")
	if !w.FrozenBalance.Equal(dec("500")) {
		t.Fatalf("frozen got=%s want=500", w.FrozenBalance)
	}
}

func TestSubmitValidation(t *testing.T) {
	e, _, _ := newTestEngine(t, "1000")
	cases := []domain.CreateOrderRequest{
		{Symbol: "", Quantity: dec("1"), Direction: domain.DirectionLong},
		{Symbol: "BTC-USD", Quantity: dec("0"), Direction: domain.DirectionLong},
		{Symbol: "BTC-USD", Quantity: dec("-1"), Direction: domain.DirectionLong},
		{Symbol: "BTC-USD", Quantity: dec("1"), Direction: "SIDEWAYS"},
		{Symbol: "NO-SUCH", Quantity: dec("1"), Direction: domain.DirectionLong},
	}
	for i, req := range cases {
		if _, err := e.Submit(context.Background(), "u1", req, decimal.Zero); !domain.IsKind(err, domain.KindValidation) {
			t.Fatalf("case %d: expected VALIDATION_ERROR, got %v", i, err)
		}
	}
}

func TestSubmitSlippageOverCap(t *testing.T) {
	e, _, _ := newTestEngine(t, "1000")
	s := dec("0.10")
	_, err := e.Submit(context.Background(), "u1", domain.CreateOrderRequest{
		Symbol: "BTC-USD", Quantity: dec("1"), Direction: domain.DirectionLong, SlippagePercent: &s,
	}, decimal.Zero)
	if !domain.IsKind(err, domain.KindValidation) {
		t.Fatalf("expected VALIDATION_ERROR, got %v", err)
	}
}

func TestSubmitInsufficientBalanceRejects(t *testing.T) {
	e, wallets, _ := newTestEngine(t, "100")
	order, err := e.Submit(context.Background(), "u1", domain.CreateOrderRequest{
		Symbol: "BTC-USD", Quantity: dec("10"), Direction: domain.DirectionLong,
	}, decimal.Zero)
	if !domain.IsKind(err, domain.KindInsufficientBalance) {
		t.Fatalf("expected INSUFFICIENT_BALANCE, got %v", err)
	}
	if order == nil || order.Status != domain.OrderStatusRejected {
		t.Fatalf("expected REJECTED order, got %+v", order)
	}
	w, _ := wallets.Wallet("u1")
	if !w.Balance.Equal(dec("100")) || !w.FrozenBalance.IsZero() {
		t.Fatalf("wallet mutated by rejected submit: %+v", w)
	}
}

func TestExecuteFillsAtSidePrice(t *testing.T) {
	e, _, prices := newTestEngine(t, "1000")
	prices.set("BTC-USD", "49", "51")
	order, err := e.Submit(context.Background(), "u1", domain.CreateOrderRequest{
		Symbol: "BTC-USD", Quantity: dec("10"), Direction: domain.DirectionLong,
	}, decimal.Zero)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	// LONG buys at the ask.
	filled, err := e.Execute(context.Background(), order.ID, dec("51"), nil)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if filled.Status != domain.OrderStatusFilled {
		t.Fatalf("status got=%s want=FILLED", filled.Status)
	}
	if !filled.PricePerUnit.Equal(dec("51")) {
		t.Fatalf("fill price got=%s want=51", filled.PricePerUnit)
	}
}

func TestExecuteRejectsOutsideSlippage(t *testing.T) {
	e, wallets, prices := newTestEngine(t, "1000")
	order, err := e.Submit(context.Background(), "u1", domain.CreateOrderRequest{
		Symbol: "BTC-USD", Quantity: dec("10"), Direction: domain.DirectionLong,
	}, decimal.Zero)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	// Market gaps 20% against the order; no tolerance accepts that.
	prices.set("BTC-USD", "60", "60")
	s := dec("0.05")
	_, err = e.Execute(context.Background(), order.ID, dec("50"), &s)
	if !domain.IsKind(err, domain.KindValidation) {
		t.Fatalf("expected VALIDATION_ERROR, got %v", err)
	}

	got, _ := e.Get(order.ID, "u1")
	if got.Status != domain.OrderStatusRejected {
		t.Fatalf("status got=%s want=REJECTED", got.Status)
	}
	// The reservation must have been rolled back in full.
	w, _ := wallets.Wallet("u1")
	if !w.Balance.Equal(dec("1000")) || !w.FrozenBalance.IsZero() {
		t.Fatalf("reservation leaked: %+v", w)
	}
}

func TestExecuteRebasesReservationOnMove(t *testing.T) {
	e, wallets, prices := newTestEngine(t, "1000")
	order, err := e.Submit(context.Background(), "u1", domain.CreateOrderRequest{
		Symbol: "BTC-USD", Quantity: dec("10"), Direction: domain.DirectionLong,
	}, decimal.Zero)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	// Price drifts up 2%, inside a 5% tolerance: margin tops up to
	// 51 x 10 = 510.
	prices.set("BTC-USD", "51", "51")
	s := dec("0.05")
	if _, err := e.Execute(context.Background(), order.ID, dec("50"), &s); err != nil {
		t.Fatalf("execute: %v", err)
	}
	w, _ := wallets.Wallet("u1")
	if !w.FrozenBalance.Equal(dec("510")) {
		t.Fatalf("frozen got=%s want=510", w.FrozenBalance)
	}
	if !w.Balance.Equal(dec("490")) {
		t.Fatalf("balance got=%s want=490", w.Balance)
	}
}

func TestExecuteTwiceIsMatchingError(t *testing.T) {
	e, _, _ := newTestEngine(t, "1000")
	order, err := e.Submit(context.Background(), "u1", domain.CreateOrderRequest{
		Symbol: "BTC-USD", Quantity: dec("1"), Direction: domain.DirectionLong,
	}, decimal.Zero)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if _, err := e.Execute(context.Background(), order.ID, dec("50"), nil); err != nil {
		t.Fatalf("first execute: %v", err)
	}
	_, err = e.Execute(context.Background(), order.ID, dec("50"), nil)
	if !domain.IsKind(err, domain.KindMatching) {
		t.Fatalf("expected MATCHING_ERROR, got %v", err)
	}
}

func TestCancelReleasesReservation(t *testing.T) {
	e, wallets, _ := newTestEngine(t, "1000")
	order, err := e.Submit(context.Background(), "u1", domain.CreateOrderRequest{
		Symbol: "BTC-USD", Quantity: dec("10"), Direction: domain.DirectionLong,
	}, decimal.Zero)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	cancelled, err := e.Cancel(order.ID, "u1")
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if cancelled.Status != domain.OrderStatusCancelled || cancelled.CancelledAt == nil {
		t.Fatalf("bad cancelled order: %+v", cancelled)
	}
	w, _ := wallets.Wallet("u1")
	if !w.Balance.Equal(dec("1000")) || !w.FrozenBalance.IsZero() {
		t.Fatalf("reservation not released: %+v", w)
	}
}

func TestCancelAfterFillIsInvalidOrder(t *testing.T) {
	e, _, _ := newTestEngine(t, "1000")
	order, err := e.Submit(context.Background(), "u1", domain.CreateOrderRequest{
		Symbol: "BTC-USD", Quantity: dec("1"), Direction: domain.DirectionLong,
	}, decimal.Zero)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if _, err := e.Execute(context.Background(), order.ID, dec("50"), nil); err != nil {
		t.Fatalf("execute: %v", err)
	}
	_, err = e.Cancel(order.ID, "u1")
	if !domain.IsKind(err, domain.KindInvalidOrder) {
		t.Fatalf("expected INVALID_ORDER, got %v", err)
	}
}

func TestCancelWrongOwnerIsNotFound(t *testing.T) {
	e, _, _ := newTestEngine(t, "1000")
	order, err := e.Submit(context.Background(), "u1", domain.CreateOrderRequest{
		Symbol: "BTC-USD", Quantity: dec("1"), Direction: domain.DirectionLong,
	}, decimal.Zero)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	_, err = e.Cancel(order.ID, "u2")
	if !domain.IsKind(err, domain.KindOrderNotFound) {
		t.Fatalf("expected ORDER_NOT_FOUND, got %v", err)
	}
}

func TestSubmitOffsetQuantityNeedsNoMargin(t *testing.T) {
	// An order fully covered by an open opposite position reserves
	// nothing, so a fully invested wallet can still offset-close.
	e, wallets, _ := newTestEngine(t, "0")
	order, err := e.Submit(context.Background(), "u1", domain.CreateOrderRequest{
		Symbol: "BTC-USD", Quantity: dec("10"), Direction: domain.DirectionShort,
	}, dec("10"))
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if order.Status != domain.OrderStatusPending {
		t.Fatalf("status got=%s want=PENDING", order.Status)
	}
	w, _ := wallets.Wallet("u1")
	if !w.FrozenBalance.IsZero() {
		t.Fatalf("frozen got=%s want=0", w.FrozenBalance)
	}
	if !e.ReservedFor(order.ID).IsZero() {
		t.Fatalf("reserved got=%s want=0", e.ReservedFor(order.ID))
	}
}

func TestSubmitOffsetResidualMarginsOnlyResidual(t *testing.T) {
	// SHORT 15 against an open LONG 10: only the residual 5 reserves,
	// 5 x 50 = 250.
	e, wallets, _ := newTestEngine(t, "1000")
	order, err := e.Submit(context.Background(), "u1", domain.CreateOrderRequest{
		Symbol: "BTC-USD", Quantity: dec("15"), Direction: domain.DirectionShort,
	}, dec("10"))
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if !e.ReservedFor(order.ID).Equal(dec("250")) {
		t.Fatalf("reserved got=%s want=250", e.ReservedFor(order.ID))
	}
	w, _ := wallets.Wallet("u1")
	if !w.FrozenBalance.Equal(dec("250")) {
		t.Fatalf("frozen got=%s want=250", w.FrozenBalance)
	}
}

func TestReservedForTracksHeldMargin(t *testing.T) {
	e, _, prices := newTestEngine(t, "1000")
	order, err := e.Submit(context.Background(), "u1", domain.CreateOrderRequest{
		Symbol: "BTC-USD", Quantity: dec("10"), Direction: domain.DirectionLong,
	}, decimal.Zero)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if !e.ReservedFor(order.ID).Equal(dec("500")) {
		t.Fatalf("reserved got=%s want=500", e.ReservedFor(order.ID))
	}

	// The market moving after Submit does not change what is held.
	prices.set("BTC-USD", "51", "51")
	if !e.ReservedFor(order.ID).Equal(dec("500")) {
		t.Fatalf("reserved moved with the quote: %s", e.ReservedFor(order.ID))
	}

	s := dec("0.05")
	if _, err := e.Execute(context.Background(), order.ID, dec("50"), &s); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if !e.ReservedFor(order.ID).IsZero() {
		t.Fatalf("reserved got=%s want=0 after fill", e.ReservedFor(order.ID))
	}
}

func TestWithinTolerance(t *testing.T) {
	five := dec("0.05")
	cases := []struct {
		ref, fill string
		slippage  *decimal.Decimal
		want      bool
	}{
		{"100", "100", nil, true},
		{"100", "100.01", nil, false},
		{"100", "105", &five, true},
		{"100", "95", &five, true},
		{"100", "105.01", &five, false},
		{"100", "94.99", &five, false},
	}
	for i, c := range cases {
		got := withinTolerance(dec(c.ref), dec(c.fill), c.slippage)
		if got != c.want {
			t.Fatalf("case %d: withinTolerance(%s, %s) got=%v want=%v", i, c.ref, c.fill, got, c.want)
		}
	}
}
