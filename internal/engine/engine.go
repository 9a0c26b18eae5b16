// Package engine validates and executes incoming orders against the
// price oracle, reserving wallet margin before an order may fill.
package engine

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/margex/gotrade/internal/domain"
	"github.com/margex/gotrade/internal/ledger"
	"github.com/margex/gotrade/internal/metrics"
	"github.com/margex/gotrade/internal/oracle"
)

// PriceSource is the oracle surface the engine needs: fresh quotes and
// a symbol-known check that runs before any price lookup.
type PriceSource interface {
	Quote(ctx context.Context, symbol string) (oracle.Quote, error)
	Knows(symbol string) bool
}

// Config bounds order validation.
type Config struct {
	// MaxSlippagePercent caps the caller-supplied tolerance, e.g. 0.05
	// for 5%.
	MaxSlippagePercent decimal.Decimal
}

// OrderBookEngine owns order status transitions. Orders move
// PENDING -> {FILLED, CANCELLED, REJECTED} exactly once; a second
// transition attempt on the same order fails with MatchingError.
type OrderBookEngine struct {
	cfg    Config
	prices PriceSource
	wallet *ledger.WalletLedger
	log    *logrus.Entry

	mu       sync.RWMutex
	orders   map[string]*domain.Order
	reserved map[string]reservation // orderID -> margin held while PENDING
}

// reservation is the margin held for a pending order and the quantity
// it backs. The quantity is what re-basing at fill time scales by; an
// order offsetting an open opposite position margins less than its
// full size.
type reservation struct {
	amount decimal.Decimal
	qty    decimal.Decimal
}

func New(cfg Config, prices PriceSource, wallet *ledger.WalletLedger, log *logrus.Entry) *OrderBookEngine {
	return &OrderBookEngine{
		cfg:      cfg,
		prices:   prices,
		wallet:   wallet,
		log:      log,
		orders:   make(map[string]*domain.Order),
		reserved: make(map[string]reservation),
	}
}

// Submit validates the request, creates the order PENDING and reserves
// notional margin at the reference price for the quantity that opens
// new exposure. offsetQty is the quantity already backed by an open
// opposite position's margin; it needs no reservation of its own, so a
// pure offsetting order reserves nothing. The reservation fails with
// InsufficientBalance before any position logic can run; in that case
// the order is recorded REJECTED.
func (e *OrderBookEngine) Submit(ctx context.Context, userID string, req domain.CreateOrderRequest, offsetQty decimal.Decimal) (*domain.Order, error) {
	if err := e.validate(req); err != nil {
		return nil, err
	}

	ref, err := e.referencePrice(ctx, req.Symbol, req.Direction)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	order := &domain.Order{
		ID:        uuid.NewString(),
		UserID:    userID,
		Symbol:    req.Symbol,
		Quantity:  req.Quantity,
		OrderType: domain.SideFor(req.Direction),
		Direction: req.Direction,
		Status:    domain.OrderStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}

	marginQty := req.Quantity.Sub(offsetQty)
	if marginQty.IsNegative() {
		marginQty = decimal.Zero
	}
	margin := marginQty.Mul(ref)
	if err := e.wallet.Reserve(userID, margin); err != nil {
		order.Status = domain.OrderStatusRejected
		order.UpdatedAt = time.Now().UTC()
		e.store(order, reservation{})
		metrics.OrdersRejected.Add(1)
		e.log.WithFields(logrus.Fields{
			"order": order.ID, "user": userID, "margin": margin,
		}).Info("order rejected at reservation")
		return order, err
	}

	e.store(order, reservation{amount: margin, qty: marginQty})
	return order, nil
}

// Execute fills a pending order. The quote may have moved since
// Submit; the fill is accepted at any price within
// referencePrice x (1 +- slippagePercent), or only at the exact
// reference price when no tolerance was supplied. The margin
// reservation is adjusted to the actual execution notional.
func (e *OrderBookEngine) Execute(ctx context.Context, orderID string, ref decimal.Decimal, slippage *decimal.Decimal) (*domain.Order, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	order, ok := e.orders[orderID]
	if !ok {
		return nil, domain.ErrOrderNotFound(orderID)
	}
	if order.IsTerminal() {
		return nil, domain.ErrMatching("order already in terminal state").
			WithContext("orderId", orderID).
			WithContext("status", string(order.Status))
	}

	q, err := e.prices.Quote(ctx, order.Symbol)
	if err != nil {
		return nil, err
	}
	fill := sidePrice(q, order.OrderType)

	if !withinTolerance(ref, fill, slippage) {
		e.rejectLocked(order, "execution price outside slippage tolerance")
		return order, domain.ErrValidation("execution price outside slippage tolerance").
			WithContext("referencePrice", ref.String()).
			WithContext("executionPrice", fill.String())
	}

	// Re-base the reservation onto the execution notional so position
	// margin always equals entryPrice x quantity for the margined part.
	held := e.reserved[order.ID]
	want := held.qty.Mul(fill)
	switch {
	case want.GreaterThan(held.amount):
		if err := e.wallet.Reserve(order.UserID, want.Sub(held.amount)); err != nil {
			e.rejectLocked(order, "top-up reservation failed")
			return order, err
		}
	case want.LessThan(held.amount):
		if err := e.wallet.Release(order.UserID, held.amount.Sub(want)); err != nil {
			return nil, err
		}
	}

	now := time.Now().UTC()
	order.PricePerUnit = fill
	order.Status = domain.OrderStatusFilled
	order.FilledAt = &now
	order.UpdatedAt = now
	delete(e.reserved, order.ID)

	metrics.OrdersFilled.Add(1)
	e.log.WithFields(logrus.Fields{
		"order": order.ID, "user": order.UserID, "symbol": order.Symbol,
		"side": order.OrderType, "qty": order.Quantity, "price": fill,
	}).Info("order filled")
	return order, nil
}

// Cancel transitions a pending order to CANCELLED and releases its
// reservation. Only the owner may cancel; terminal orders fail with
// InvalidOrder so a cancel that loses the race against a fill surfaces
// the conflict instead of silently no-op-ing.
func (e *OrderBookEngine) Cancel(orderID, userID string) (*domain.Order, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	order, ok := e.orders[orderID]
	if !ok || order.UserID != userID {
		return nil, domain.ErrOrderNotFound(orderID)
	}
	if order.IsTerminal() {
		return nil, domain.ErrInvalidOrder("order is not cancellable").
			WithContext("orderId", orderID).
			WithContext("status", string(order.Status))
	}

	if held, ok := e.reserved[order.ID]; ok && held.amount.IsPositive() {
		if err := e.wallet.Release(userID, held.amount); err != nil {
			return nil, err
		}
	}
	delete(e.reserved, order.ID)

	now := time.Now().UTC()
	order.Status = domain.OrderStatusCancelled
	order.CancelledAt = &now
	order.UpdatedAt = now

	metrics.OrdersCancelled.Add(1)
	e.log.WithFields(logrus.Fields{"order": order.ID, "user": userID}).Info("order cancelled")
	return order, nil
}

// Reject moves a pending order to REJECTED and releases any margin it
// still holds. Used by the coordinator to roll back a mid-sequence
// failure.
func (e *OrderBookEngine) Reject(orderID, reason string) (*domain.Order, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	order, ok := e.orders[orderID]
	if !ok {
		return nil, domain.ErrOrderNotFound(orderID)
	}
	if order.IsTerminal() {
		return nil, domain.ErrMatching("order already in terminal state").
			WithContext("orderId", orderID)
	}
	e.rejectLocked(order, reason)
	return order, nil
}

func (e *OrderBookEngine) rejectLocked(order *domain.Order, reason string) {
	if held, ok := e.reserved[order.ID]; ok && held.amount.IsPositive() {
		if err := e.wallet.Release(order.UserID, held.amount); err != nil {
			e.log.WithError(err).Error("reservation rollback failed")
		}
	}
	delete(e.reserved, order.ID)
	order.Status = domain.OrderStatusRejected
	order.UpdatedAt = time.Now().UTC()
	metrics.OrdersRejected.Add(1)
	e.log.WithFields(logrus.Fields{"order": order.ID, "reason": reason}).Info("order rejected")
}

// Get returns a copy of the order, owner-checked.
func (e *OrderBookEngine) Get(orderID, userID string) (domain.Order, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	order, ok := e.orders[orderID]
	if !ok || order.UserID != userID {
		return domain.Order{}, domain.ErrOrderNotFound(orderID)
	}
	return *order, nil
}

// ListByUser returns copies of all orders belonging to userID.
func (e *OrderBookEngine) ListByUser(userID string) []domain.Order {
	e.mu.RLock()
	defer e.mu.RUnlock()
	var out []domain.Order
	for _, o := range e.orders {
		if o.UserID == userID {
			out = append(out, *o)
		}
	}
	return out
}

// Rehydrate loads an order persisted before a restart. Pending orders
// re-enter with their reservation amount so Cancel can release it;
// fills are never resumed across a restart, so the backed quantity is
// taken as the full order size.
func (e *OrderBookEngine) Rehydrate(order *domain.Order, reserved decimal.Decimal) {
	e.store(order, reservation{amount: reserved, qty: order.Quantity})
}

// ReservedFor returns the margin currently held for an order, zero once
// the order is terminal. The coordinator persists this amount so a
// post-restart Cancel releases exactly what was frozen.
func (e *OrderBookEngine) ReservedFor(orderID string) decimal.Decimal {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.reserved[orderID].amount
}

// ReferencePrice exposes the side-correct quote for a direction, used
// by the coordinator for slippage bounds and manual closes.
func (e *OrderBookEngine) ReferencePrice(ctx context.Context, symbol string, d domain.Direction) (decimal.Decimal, error) {
	return e.referencePrice(ctx, symbol, d)
}

func (e *OrderBookEngine) store(order *domain.Order, res reservation) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.orders[order.ID] = order
	if res.amount.IsPositive() {
		e.reserved[order.ID] = res
	}
}

func (e *OrderBookEngine) validate(req domain.CreateOrderRequest) error {
	if req.Symbol == "" {
		return domain.ErrValidation("symbol is required")
	}
	if !req.Quantity.IsPositive() {
		return domain.ErrValidation("quantity must be positive").
			WithContext("quantity", req.Quantity.String())
	}
	if !req.Direction.Valid() {
		return domain.ErrValidation("direction must be LONG or SHORT")
	}
	if req.SlippagePercent != nil {
		s := *req.SlippagePercent
		if s.IsNegative() || s.GreaterThan(e.cfg.MaxSlippagePercent) {
			return domain.ErrValidation("slippagePercent out of range").
				WithContext("slippagePercent", s.String()).
				WithContext("max", e.cfg.MaxSlippagePercent.String())
		}
	}
	// Unknown symbols are rejected before any price lookup.
	if !e.prices.Knows(req.Symbol) {
		return domain.ErrValidation("unknown symbol").WithContext("symbol", req.Symbol)
	}
	return nil
}

func (e *OrderBookEngine) referencePrice(ctx context.Context, symbol string, d domain.Direction) (decimal.Decimal, error) {
	q, err := e.prices.Quote(ctx, symbol)
	if err != nil {
		return decimal.Zero, err
	}
	return sidePrice(q, domain.SideFor(d)), nil
}

// sidePrice: buyers execute at the ask, sellers at the bid.
func sidePrice(q oracle.Quote, side domain.OrderType) decimal.Decimal {
	if side == domain.OrderTypeSell {
		return q.Bid
	}
	return q.Ask
}

func withinTolerance(ref, fill decimal.Decimal, slippage *decimal.Decimal) bool {
	if slippage == nil {
		return fill.Equal(ref)
	}
	band := ref.Mul(*slippage)
	return fill.GreaterThanOrEqual(ref.Sub(band)) && fill.LessThanOrEqual(ref.Add(band))
}
