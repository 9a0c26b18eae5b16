// Package settle orchestrates the engine components so every
// user-facing action is atomic from the caller's perspective: per-user
// lock, cross-component sequence, audit entry, rollback of
// reservations on mid-sequence failure.
package settle

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/margex/gotrade/internal/audit"
	"github.com/margex/gotrade/internal/domain"
	"github.com/margex/gotrade/internal/engine"
	"github.com/margex/gotrade/internal/ledger"
	"github.com/margex/gotrade/internal/metrics"
	"github.com/margex/gotrade/internal/position"
	"github.com/margex/gotrade/internal/recorder"
	"github.com/margex/gotrade/internal/storage"
)

// Persistence is the durable-store surface the coordinator writes
// after each committed transition.
type Persistence interface {
	InsertUser(ctx context.Context, u domain.User) error
	UpsertWallet(ctx context.Context, w domain.Wallet) error
	UpsertOrder(ctx context.Context, o domain.Order, reserved decimal.Decimal) error
	UpsertPosition(ctx context.Context, p domain.Position) error
	InsertTrade(ctx context.Context, t domain.Trade) error
	ListTradesByUser(ctx context.Context, userID string, limit, offset int) ([]domain.Trade, int, error)
}

var _ Persistence = (*storage.Store)(nil)

// RetryPolicy bounds retries of dependency failures (storage, cache,
// stale prices). Domain-rule violations are never retried.
type RetryPolicy struct {
	Attempts int
	Backoff  time.Duration
}

// Config for the coordinator.
type Config struct {
	OpeningBalance decimal.Decimal
	Retry          RetryPolicy
}

// Coordinator wires the ledger, order engine, position manager and
// trade recorder behind per-user serialization.
type Coordinator struct {
	cfg       Config
	wallet    *ledger.WalletLedger
	orders    *engine.OrderBookEngine
	positions *position.Manager
	trades    *recorder.TradeRecorder
	store     Persistence
	sink      audit.Sink
	log       *logrus.Entry

	locks *userLocks
}

func New(
	cfg Config,
	wallet *ledger.WalletLedger,
	orders *engine.OrderBookEngine,
	positions *position.Manager,
	trades *recorder.TradeRecorder,
	store Persistence,
	sink audit.Sink,
	log *logrus.Entry,
) *Coordinator {
	if cfg.Retry.Attempts <= 0 {
		cfg.Retry.Attempts = 3
	}
	if cfg.Retry.Backoff <= 0 {
		cfg.Retry.Backoff = 100 * time.Millisecond
	}
	return &Coordinator{
		cfg:       cfg,
		wallet:    wallet,
		orders:    orders,
		positions: positions,
		trades:    trades,
		store:     store,
		sink:      sink,
		log:       log,
		locks:     newUserLocks(),
	}
}

// retry runs fn up to the configured attempt count, backing off
// between attempts, but only while the error is a retryable
// dependency failure.
func (c *Coordinator) retry(ctx context.Context, fn func() error) error {
	backoff := c.cfg.Retry.Backoff
	var err error
	for attempt := 0; attempt < c.cfg.Retry.Attempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return domain.ErrInternal("operation cancelled", ctx.Err())
			case <-time.After(backoff):
			}
			backoff *= 2
		}
		if err = fn(); err == nil {
			return nil
		}
		if !domain.IsRetryable(err) {
			return err
		}
	}
	metrics.RetriesExhausted.Add(1)
	return err
}

func (c *Coordinator) persist(ctx context.Context, what string, fn func() error) error {
	err := c.retry(ctx, func() error {
		if err := fn(); err != nil {
			return domain.ErrDatabase(err)
		}
		return nil
	})
	if err != nil {
		c.log.WithError(err).Errorf("persist %s failed", what)
	}
	return err
}

func (c *Coordinator) emit(ctx context.Context, userID string, action domain.AuditAction, metadata map[string]any) {
	if err := c.sink.Append(audit.NewEntry(ctx, userID, action, metadata)); err != nil {
		// The audit sink must not fail a committed transition; it is
		// surfaced in logs and metrics instead.
		c.log.WithError(err).Error("audit append failed")
	}
}

// RegisterUser creates a user with a fresh wallet holding the
// configured opening balance.
func (c *Coordinator) RegisterUser(ctx context.Context, email string) (domain.User, domain.WalletSnapshot, error) {
	now := time.Now().UTC()
	user := domain.User{
		ID:        uuid.NewString(),
		Email:     email,
		CreatedAt: now,
		UpdatedAt: now,
	}
	wallet := domain.Wallet{
		ID:            uuid.NewString(),
		UserID:        user.ID,
		Balance:       c.cfg.OpeningBalance,
		FrozenBalance: decimal.Zero,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	unlock := c.locks.lock(user.ID)
	defer unlock()

	if err := c.wallet.Admit(&wallet); err != nil {
		return domain.User{}, domain.WalletSnapshot{}, err
	}
	if err := c.persist(ctx, "user", func() error { return c.store.InsertUser(ctx, user) }); err != nil {
		return domain.User{}, domain.WalletSnapshot{}, err
	}
	if err := c.persist(ctx, "wallet", func() error { return c.store.UpsertWallet(ctx, wallet) }); err != nil {
		return domain.User{}, domain.WalletSnapshot{}, err
	}

	c.emit(ctx, user.ID, domain.AuditUserRegistered, map[string]any{"email": email})
	snap, err := c.wallet.Snapshot(user.ID, decimal.Zero)
	return user, snap, err
}

// PlaceOrder runs the full sequence: validate + reserve, execute
// against the oracle, fold the fill into position state, settle any
// offset slice, persist, audit. Any failure before the fill commits
// rolls the reservation back and surfaces the failure.
func (c *Coordinator) PlaceOrder(ctx context.Context, userID string, req domain.CreateOrderRequest) (domain.Order, error) {
	unlock := c.locks.lock(userID)
	defer unlock()

	var ref decimal.Decimal
	if err := c.retry(ctx, func() error {
		var err error
		ref, err = c.orders.ReferencePrice(ctx, req.Symbol, req.Direction)
		return err
	}); err != nil {
		return domain.Order{}, err
	}

	// The quantity covered by an open opposite position needs no margin
	// of its own; only the residual that opens fresh exposure reserves.
	offsetQty := c.positions.OppositeOpenQuantity(userID, req.Symbol, req.Direction)
	order, err := c.orders.Submit(ctx, userID, req, offsetQty)
	if err != nil {
		if order != nil {
			// REJECTED at reservation: record the terminal order, then
			// surface InsufficientBalance.
			_ = c.persist(ctx, "order", func() error {
				return c.store.UpsertOrder(ctx, *order, decimal.Zero)
			})
			c.emit(ctx, userID, domain.AuditOrderCreated, orderMeta(order))
		}
		return orderValue(order), err
	}

	// Persist the amount the engine actually froze, not a recompute at
	// a possibly different quote, so a post-restart Cancel releases the
	// exact reservation.
	margin := c.orders.ReservedFor(order.ID)
	if perr := c.persistOrderAndWallet(ctx, order, margin); perr != nil {
		if _, rerr := c.orders.Reject(order.ID, "persistence failure"); rerr != nil {
			c.log.WithError(rerr).Error("rollback after persist failure")
		}
		return orderValue(order), perr
	}

	filled, err := c.executeWithRetry(ctx, order.ID, ref, req.SlippagePercent)
	if err != nil {
		if filled == nil || !filled.IsTerminal() {
			if _, rerr := c.orders.Reject(order.ID, "execution failure"); rerr != nil {
				c.log.WithError(rerr).Error("rollback after execution failure")
			}
		}
		if cur, gerr := c.orders.Get(order.ID, userID); gerr == nil {
			_ = c.persistOrderAndWallet(ctx, &cur, decimal.Zero)
			c.emit(ctx, userID, domain.AuditOrderCreated, orderMeta(&cur))
		}
		return orderValue(filled), err
	}

	outcome, err := c.positions.ApplyFill(filled, filled.PricePerUnit)
	if err != nil {
		// Unreachable with a serialized user scope; treated as the
		// internal-consistency class.
		c.log.WithError(err).Error("apply fill failed after fill commit")
		return *filled, domain.ErrInternal("apply fill failed", err)
	}

	if outcome.Closed != nil {
		if _, err := c.settleSlice(ctx, userID, filled.ID, outcome.Closed); err != nil {
			return *filled, err
		}
	}

	_ = c.persistOrderAndWallet(ctx, filled, decimal.Zero)
	if outcome.Opened != nil {
		_ = c.persist(ctx, "position", func() error {
			return c.store.UpsertPosition(ctx, *outcome.Opened)
		})
	}

	c.emit(ctx, userID, domain.AuditOrderCreated, orderMeta(filled))
	if outcome.Opened != nil {
		c.emit(ctx, userID, domain.AuditPositionOpened, map[string]any{
			"positionId": outcome.Opened.ID,
			"symbol":     outcome.Opened.Symbol,
			"direction":  outcome.Opened.Direction,
			"quantity":   outcome.Opened.Quantity.String(),
			"entryPrice": outcome.Opened.EntryPrice.String(),
		})
	}
	return *filled, nil
}

func (c *Coordinator) executeWithRetry(ctx context.Context, orderID string, ref decimal.Decimal, slippage *decimal.Decimal) (*domain.Order, error) {
	var filled *domain.Order
	err := c.retry(ctx, func() error {
		var err error
		filled, err = c.orders.Execute(ctx, orderID, ref, slippage)
		return err
	})
	return filled, err
}

// settleSlice applies the wallet outcome of a closed position slice
// and records the trade. The slice's realized loss is floored at its
// margin and the fee at the remaining cover, so the settle deltas can
// never trip the ledger's negative-balance guard; a Settle failure
// here means the coordinator lost track of a reservation.
func (c *Coordinator) settleSlice(ctx context.Context, userID, closingOrderID string, slice *position.ClosedSlice) (domain.Trade, error) {
	trade := c.trades.Record(slice, closingOrderID)
	balanceDelta := slice.FrozenDelta.Add(slice.RealizedPL).Sub(trade.Fee)
	if err := c.wallet.Settle(userID, slice.FrozenDelta, balanceDelta); err != nil {
		return domain.Trade{}, err
	}
	metrics.TradesRecorded.Add(1)

	_ = c.persist(ctx, "position", func() error {
		return c.store.UpsertPosition(ctx, slice.Position)
	})
	_ = c.persist(ctx, "trade", func() error {
		return c.store.InsertTrade(ctx, trade)
	})
	if w, err := c.wallet.Wallet(userID); err == nil {
		_ = c.persist(ctx, "wallet", func() error {
			return c.store.UpsertWallet(ctx, w)
		})
	}

	c.emit(ctx, userID, domain.AuditPositionClosed, map[string]any{
		"positionId": slice.Position.ID,
		"tradeId":    trade.ID,
		"exitPrice":  slice.ExitPrice.String(),
		"realizedPL": slice.RealizedPL.String(),
		"netProfit":  trade.NetProfit.String(),
	})
	c.emit(ctx, userID, domain.AuditBalanceUpdated, map[string]any{
		"frozenDelta":  slice.FrozenDelta.Neg().String(),
		"balanceDelta": balanceDelta.String(),
	})
	return trade, nil
}

// CancelOrder cancels a pending order, releasing its reservation. A
// cancel that arrives after the fill committed fails with
// InvalidOrder and changes nothing.
func (c *Coordinator) CancelOrder(ctx context.Context, userID, orderID string) (domain.Order, error) {
	unlock := c.locks.lock(userID)
	defer unlock()

	order, err := c.orders.Cancel(orderID, userID)
	if err != nil {
		return domain.Order{}, err
	}

	_ = c.persistOrderAndWallet(ctx, order, decimal.Zero)
	c.emit(ctx, userID, domain.AuditOrderCancelled, orderMeta(order))
	return *order, nil
}

// ClosePosition closes the position in full at the current
// side-correct oracle price.
func (c *Coordinator) ClosePosition(ctx context.Context, userID, positionID string) (domain.Trade, error) {
	unlock := c.locks.lock(userID)
	defer unlock()

	p, err := c.positions.Get(positionID, userID)
	if err != nil {
		return domain.Trade{}, err
	}
	if !p.IsOpen() {
		return domain.Trade{}, domain.ErrInvalidOrder("position already closed").
			WithContext("positionId", positionID)
	}

	// Closing a LONG sells at the bid; closing a SHORT buys at the ask.
	var exit decimal.Decimal
	if err := c.retry(ctx, func() error {
		var err error
		exit, err = c.orders.ReferencePrice(ctx, p.Symbol, p.Direction.Opposite())
		return err
	}); err != nil {
		return domain.Trade{}, err
	}

	slice, err := c.positions.ClosePosition(positionID, userID, exit)
	if err != nil {
		return domain.Trade{}, err
	}
	return c.settleSlice(ctx, userID, p.OrderID, slice)
}

// MarkToMarket sweeps every user holding an open position on symbol,
// taking each user's lock so a sweep never observes a half-applied
// fill. Cached-field refresh only; no wallet or storage writes.
func (c *Coordinator) MarkToMarket(symbol string, price decimal.Decimal) {
	users := c.positions.UsersWithOpen(symbol)
	for _, userID := range users {
		unlock := c.locks.lock(userID)
		c.positions.MarkUser(userID, symbol, price)
		unlock()
	}
	metrics.SweepRuns.Add(1)
}

// WalletOf returns the equity snapshot for a user.
func (c *Coordinator) WalletOf(userID string) (domain.WalletSnapshot, error) {
	unlock := c.locks.lock(userID)
	defer unlock()
	return c.wallet.Snapshot(userID, c.positions.UnrealizedSum(userID))
}

// OrderOf / OrdersOf / PositionOf / PositionsOf / TradesOf are
// read-only projections for the transport layer.
func (c *Coordinator) OrderOf(userID, orderID string) (domain.Order, error) {
	return c.orders.Get(orderID, userID)
}

func (c *Coordinator) OrdersOf(userID string) []domain.Order {
	return c.orders.ListByUser(userID)
}

func (c *Coordinator) PositionOf(userID, positionID string) (domain.Position, error) {
	return c.positions.Get(positionID, userID)
}

func (c *Coordinator) PositionsOf(userID string, openOnly bool) []domain.Position {
	return c.positions.ListByUser(userID, openOnly)
}

func (c *Coordinator) TradesOf(ctx context.Context, userID string, limit, offset int) ([]domain.Trade, int, error) {
	trades, total, err := c.store.ListTradesByUser(ctx, userID, limit, offset)
	if err != nil {
		return nil, 0, domain.ErrDatabase(err)
	}
	return trades, total, nil
}

func (c *Coordinator) persistOrderAndWallet(ctx context.Context, order *domain.Order, reserved decimal.Decimal) error {
	if err := c.persist(ctx, "order", func() error {
		return c.store.UpsertOrder(ctx, *order, reserved)
	}); err != nil {
		return err
	}
	if w, err := c.wallet.Wallet(order.UserID); err == nil {
		return c.persist(ctx, "wallet", func() error {
			return c.store.UpsertWallet(ctx, w)
		})
	}
	return nil
}

func orderMeta(o *domain.Order) map[string]any {
	if o == nil {
		return nil
	}
	return map[string]any{
		"orderId":   o.ID,
		"symbol":    o.Symbol,
		"quantity":  o.Quantity.String(),
		"direction": o.Direction,
		"status":    o.Status,
	}
}

func orderValue(o *domain.Order) domain.Order {
	if o == nil {
		return domain.Order{}
	}
	return *o
}
