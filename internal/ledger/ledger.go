// Package ledger owns all wallet balance state. Every balance mutation
// in the system goes through WalletLedger, serialized per wallet.
package ledger

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/margex/gotrade/internal/domain"
)

// WalletLedger keeps wallets in memory and applies reserve / release /
// settle transitions atomically. The settlement coordinator serializes
// operations per user; the internal mutex additionally protects the
// map against concurrent access from different users' scopes.
type WalletLedger struct {
	mu      sync.RWMutex
	wallets map[string]*domain.Wallet // userID -> wallet

	log *logrus.Entry
}

func NewWalletLedger(log *logrus.Entry) *WalletLedger {
	return &WalletLedger{
		wallets: make(map[string]*domain.Wallet),
		log:     log,
	}
}

// Admit registers a wallet with the ledger, e.g. at user registration
// or when rehydrating from storage. Fails with Conflict if the user
// already has one.
func (l *WalletLedger) Admit(w *domain.Wallet) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.wallets[w.UserID]; ok {
		return domain.ErrConflict("wallet already exists").WithContext("userId", w.UserID)
	}
	cp := *w
	l.wallets[w.UserID] = &cp
	return nil
}

// Reserve moves amount from free balance to frozen balance. Fails with
// InsufficientBalance when free balance does not cover the amount.
func (l *WalletLedger) Reserve(userID string, amount decimal.Decimal) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	w, ok := l.wallets[userID]
	if !ok {
		return domain.ErrWalletNotFound(userID)
	}
	if amount.IsNegative() {
		return domain.ErrValidation("reserve amount must not be negative")
	}
	if w.Balance.LessThan(amount) {
		return domain.ErrInsufficientBalance(amount, w.Balance)
	}

	w.Balance = w.Balance.Sub(amount)
	w.FrozenBalance = w.FrozenBalance.Add(amount)
	w.UpdatedAt = time.Now().UTC()

	l.log.WithFields(logrus.Fields{
		"user":   userID,
		"amount": amount,
		"free":   w.Balance,
		"frozen": w.FrozenBalance,
	}).Debug("reserved margin")
	return nil
}

// Release moves amount from frozen back to free balance. A frozen
// balance smaller than the release amount means the coordinator lost
// track of a reservation; that is surfaced as an internal error, never
// as user-facing insufficiency.
func (l *WalletLedger) Release(userID string, amount decimal.Decimal) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	w, ok := l.wallets[userID]
	if !ok {
		return domain.ErrWalletNotFound(userID)
	}
	if amount.IsNegative() {
		return domain.ErrValidation("release amount must not be negative")
	}
	if w.FrozenBalance.LessThan(amount) {
		l.log.WithFields(logrus.Fields{
			"user":   userID,
			"amount": amount,
			"frozen": w.FrozenBalance,
		}).Error("release exceeds frozen balance")
		return domain.ErrInternal("release exceeds frozen balance", nil).
			WithContext("userId", userID).
			WithContext("amount", amount.String()).
			WithContext("frozen", w.FrozenBalance.String())
	}

	w.FrozenBalance = w.FrozenBalance.Sub(amount)
	w.Balance = w.Balance.Add(amount)
	w.UpdatedAt = time.Now().UTC()
	return nil
}

// Settle applies a realized PnL outcome: frozenDelta is removed from
// the frozen balance (the margin that was held) and balanceDelta is
// credited to the free balance (margin + realized PnL - fee). Neither
// balance may go negative; with correct margin sizing that branch is
// unreachable, so it is an internal-consistency error.
func (l *WalletLedger) Settle(userID string, frozenDelta, balanceDelta decimal.Decimal) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	w, ok := l.wallets[userID]
	if !ok {
		return domain.ErrWalletNotFound(userID)
	}

	newFrozen := w.FrozenBalance.Sub(frozenDelta)
	newBalance := w.Balance.Add(balanceDelta)
	if newFrozen.IsNegative() || newBalance.IsNegative() {
		l.log.WithFields(logrus.Fields{
			"user":         userID,
			"frozenDelta":  frozenDelta,
			"balanceDelta": balanceDelta,
			"free":         w.Balance,
			"frozen":       w.FrozenBalance,
		}).Error("settle would drive a balance negative")
		return domain.ErrInternal("settlement would drive a balance negative", nil).
			WithContext("userId", userID)
	}

	w.FrozenBalance = newFrozen
	w.Balance = newBalance
	w.UpdatedAt = time.Now().UTC()

	l.log.WithFields(logrus.Fields{
		"user":         userID,
		"frozenDelta":  frozenDelta,
		"balanceDelta": balanceDelta,
		"free":         w.Balance,
		"frozen":       w.FrozenBalance,
	}).Debug("settled")
	return nil
}

// Snapshot returns an immutable view of the wallet. unrealized is the
// caller-computed sum of unrealized PnL across the user's open
// positions; totalEquity = balance + frozen + unrealized.
func (l *WalletLedger) Snapshot(userID string, unrealized decimal.Decimal) (domain.WalletSnapshot, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	w, ok := l.wallets[userID]
	if !ok {
		return domain.WalletSnapshot{}, domain.ErrWalletNotFound(userID)
	}
	return domain.WalletSnapshot{
		ID:               w.ID,
		UserID:           w.UserID,
		Balance:          w.Balance,
		FrozenBalance:    w.FrozenBalance,
		AvailableBalance: w.Balance,
		TotalEquity:      w.Balance.Add(w.FrozenBalance).Add(unrealized),
	}, nil
}

// Wallet returns a copy of the user's wallet for persistence.
func (l *WalletLedger) Wallet(userID string) (domain.Wallet, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	w, ok := l.wallets[userID]
	if !ok {
		return domain.Wallet{}, domain.ErrWalletNotFound(userID)
	}
	return *w, nil
}
