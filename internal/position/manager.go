// Package position opens, offsets and closes positions from order
// fills and keeps unrealized PnL current.
package position

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/margex/gotrade/internal/domain"
	"github.com/margex/gotrade/internal/metrics"
)

// ClosedSlice describes the part of a fill that offset an existing
// opposite position. FrozenDelta is the position margin the ledger must
// unfreeze; RealizedPL is floored at -FrozenDelta so a settlement never
// asks the wallet for more than the margin that was held.
type ClosedSlice struct {
	Position    domain.Position // state after the close
	Quantity    decimal.Decimal
	EntryPrice  decimal.Decimal
	ExitPrice   decimal.Decimal
	RealizedPL  decimal.Decimal
	FrozenDelta decimal.Decimal // entryPrice x quantity
}

// FillOutcome is what applying one fill did to position state.
type FillOutcome struct {
	Opened *domain.Position // new or merged-into position, nil if pure close
	Closed *ClosedSlice     // offset slice, nil if pure open
}

type indexKey struct {
	userID    string
	symbol    string
	direction domain.Direction
}

// Manager exclusively owns position mutation. One OPEN position per
// (user, symbol, direction); an opposite-direction fill reduces or
// closes the existing position instead of creating a second one.
type Manager struct {
	mu        sync.RWMutex
	positions map[string]*domain.Position
	open      map[indexKey]string // -> position ID

	log *logrus.Entry
}

func NewManager(log *logrus.Entry) *Manager {
	return &Manager{
		positions: make(map[string]*domain.Position),
		open:      make(map[indexKey]string),
		log:       log,
	}
}

// ApplyFill folds a filled order into position state at fillPrice.
//
// No opposite OPEN position: opens (or merges into) the same-direction
// position. Opposite OPEN position: offsets min(existing, incoming);
// a residual beyond the existing quantity closes it and opens a new
// position in the incoming direction.
func (m *Manager) ApplyFill(order *domain.Order, fillPrice decimal.Decimal) (FillOutcome, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	oppKey := indexKey{order.UserID, order.Symbol, order.Direction.Opposite()}
	if oppID, ok := m.open[oppKey]; ok {
		return m.offsetLocked(m.positions[oppID], order, fillPrice)
	}
	return m.openLocked(order, order.Quantity, fillPrice)
}

func (m *Manager) openLocked(order *domain.Order, qty, fillPrice decimal.Decimal) (FillOutcome, error) {
	key := indexKey{order.UserID, order.Symbol, order.Direction}
	now := time.Now().UTC()

	if id, ok := m.open[key]; ok {
		// Merge into the existing same-direction position with a
		// cost-weighted entry price, so margin stays additive.
		p := m.positions[id]
		total := p.Quantity.Add(qty)
		p.EntryPrice = p.Margin().Add(fillPrice.Mul(qty)).Div(total)
		p.Quantity = total
		p.MarkToMarket(fillPrice, now)
		m.log.WithFields(logrus.Fields{
			"position": p.ID, "user": p.UserID, "qty": p.Quantity, "entry": p.EntryPrice,
		}).Info("position increased")
		cp := *p
		return FillOutcome{Opened: &cp}, nil
	}

	p := &domain.Position{
		ID:           uuid.NewString(),
		UserID:       order.UserID,
		OrderID:      order.ID,
		Symbol:       order.Symbol,
		Quantity:     qty,
		EntryPrice:   fillPrice,
		Direction:    order.Direction,
		Status:       domain.PositionStatusOpen,
		CurrentPrice: fillPrice,
		UnrealizedPL: decimal.Zero,
		OpenedAt:     now,
		UpdatedAt:    now,
	}
	m.positions[p.ID] = p
	m.open[key] = p.ID

	metrics.PositionsOpened.Add(1)
	m.log.WithFields(logrus.Fields{
		"position": p.ID, "user": p.UserID, "symbol": p.Symbol,
		"direction": p.Direction, "qty": p.Quantity, "entry": fillPrice,
	}).Info("position opened")
	cp := *p
	return FillOutcome{Opened: &cp}, nil
}

func (m *Manager) offsetLocked(existing *domain.Position, order *domain.Order, fillPrice decimal.Decimal) (FillOutcome, error) {
	closeQty := decimal.Min(existing.Quantity, order.Quantity)
	slice, err := m.closeSliceLocked(existing, closeQty, fillPrice)
	if err != nil {
		return FillOutcome{}, err
	}

	out := FillOutcome{Closed: slice}
	if residual := order.Quantity.Sub(closeQty); residual.IsPositive() {
		opened, err := m.openLocked(order, residual, fillPrice)
		if err != nil {
			return FillOutcome{}, err
		}
		out.Opened = opened.Opened
	}
	return out, nil
}

// closeSliceLocked reduces (or fully closes) an open position by qty
// at exitPrice and computes the realized slice.
func (m *Manager) closeSliceLocked(p *domain.Position, qty, exitPrice decimal.Decimal) (*ClosedSlice, error) {
	if !p.IsOpen() {
		return nil, domain.ErrInvalidOrder("position already closed").
			WithContext("positionId", p.ID)
	}
	now := time.Now().UTC()
	realized := p.PLAt(exitPrice, qty)
	// Isolated margin: a losing slice can wipe out the margin held for
	// it, never more. Without the floor a runaway SHORT would ask the
	// wallet for funds that were never reserved.
	if floor := p.MarginFor(qty).Neg(); realized.LessThan(floor) {
		realized = floor
	}

	slice := &ClosedSlice{
		Quantity:    qty,
		EntryPrice:  p.EntryPrice,
		ExitPrice:   exitPrice,
		RealizedPL:  realized,
		FrozenDelta: p.MarginFor(qty),
	}

	if qty.Equal(p.Quantity) {
		p.Quantity = decimal.Zero
		p.Status = domain.PositionStatusClosed
		p.CurrentPrice = exitPrice
		p.UnrealizedPL = decimal.Zero
		p.RealizedPL = p.RealizedPL.Add(realized)
		p.ClosedAt = &now
		p.UpdatedAt = now
		delete(m.open, indexKey{p.UserID, p.Symbol, p.Direction})
		metrics.PositionsClosed.Add(1)
		m.log.WithFields(logrus.Fields{
			"position": p.ID, "user": p.UserID, "realized": realized, "exit": exitPrice,
		}).Info("position closed")
	} else {
		p.Quantity = p.Quantity.Sub(qty)
		p.RealizedPL = p.RealizedPL.Add(realized)
		p.MarkToMarket(exitPrice, now)
		m.log.WithFields(logrus.Fields{
			"position": p.ID, "user": p.UserID, "closedQty": qty, "remaining": p.Quantity,
		}).Info("position reduced")
	}

	slice.Position = *p
	return slice, nil
}

// ClosePosition is the explicit manual close path: full offset of the
// remaining quantity at exitPrice.
func (m *Manager) ClosePosition(positionID, userID string, exitPrice decimal.Decimal) (*ClosedSlice, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.positions[positionID]
	if !ok || p.UserID != userID {
		return nil, domain.ErrPositionNotFound(positionID)
	}
	if !p.IsOpen() {
		return nil, domain.ErrInvalidOrder("position already closed").
			WithContext("positionId", positionID)
	}
	return m.closeSliceLocked(p, p.Quantity, exitPrice)
}

// OppositeOpenQuantity returns the open quantity held against d, i.e.
// how much of a new order in direction d would offset instead of
// opening fresh exposure. Zero when no opposite position is open.
func (m *Manager) OppositeOpenQuantity(userID, symbol string, d domain.Direction) decimal.Decimal {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if id, ok := m.open[indexKey{userID, symbol, d.Opposite()}]; ok {
		return m.positions[id].Quantity
	}
	return decimal.Zero
}

// MarkUser recomputes unrealized PnL for the user's open positions on
// symbol. Pure field refresh, no wallet interaction.
func (m *Manager) MarkUser(userID, symbol string, price decimal.Decimal) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now().UTC()
	for _, d := range []domain.Direction{domain.DirectionLong, domain.DirectionShort} {
		if id, ok := m.open[indexKey{userID, symbol, d}]; ok {
			m.positions[id].MarkToMarket(price, now)
		}
	}
}

// UsersWithOpen lists users holding an open position on symbol, so the
// sweep can take each user's lock in turn.
func (m *Manager) UsersWithOpen(symbol string) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	seen := make(map[string]struct{})
	var out []string
	for key := range m.open {
		if key.symbol != symbol {
			continue
		}
		if _, ok := seen[key.userID]; !ok {
			seen[key.userID] = struct{}{}
			out = append(out, key.userID)
		}
	}
	return out
}

// Get returns a copy of the position, owner-checked.
func (m *Manager) Get(positionID, userID string) (domain.Position, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.positions[positionID]
	if !ok || p.UserID != userID {
		return domain.Position{}, domain.ErrPositionNotFound(positionID)
	}
	return *p, nil
}

// ListByUser returns copies of the user's positions; openOnly filters
// to OPEN status.
func (m *Manager) ListByUser(userID string, openOnly bool) []domain.Position {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []domain.Position
	for _, p := range m.positions {
		if p.UserID != userID {
			continue
		}
		if openOnly && !p.IsOpen() {
			continue
		}
		out = append(out, *p)
	}
	return out
}

// UnrealizedSum totals unrealized PnL across the user's open
// positions, for equity snapshots.
func (m *Manager) UnrealizedSum(userID string) decimal.Decimal {
	m.mu.RLock()
	defer m.mu.RUnlock()
	sum := decimal.Zero
	for _, p := range m.positions {
		if p.UserID == userID && p.IsOpen() {
			sum = sum.Add(p.UnrealizedPL)
		}
	}
	return sum
}

// Rehydrate loads a persisted position after a restart.
func (m *Manager) Rehydrate(p *domain.Position) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *p
	m.positions[cp.ID] = &cp
	if cp.IsOpen() {
		m.open[indexKey{cp.UserID, cp.Symbol, cp.Direction}] = cp.ID
	}
}
