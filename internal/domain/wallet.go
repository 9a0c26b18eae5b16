package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Wallet holds a user's single-currency funds. Balance is free margin,
// FrozenBalance is margin reserved by pending orders and open
// positions. Invariant: both are always >= 0. Only the wallet ledger
// mutates a wallet, serialized per user.
type Wallet struct {
	ID            string
	UserID        string
	Balance       decimal.Decimal
	FrozenBalance decimal.Decimal
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// WalletSnapshot is an immutable read view of a wallet. TotalEquity
// folds in the unrealized PnL of the user's open positions at the
// moment the snapshot was taken.
type WalletSnapshot struct {
	ID               string          `json:"id"`
	UserID           string          `json:"userId"`
	Balance          decimal.Decimal `json:"balance"`
	FrozenBalance    decimal.Decimal `json:"frozenBalance"`
	AvailableBalance decimal.Decimal `json:"availableBalance"`
	TotalEquity      decimal.Decimal `json:"totalEquity"`
}

// User is identity only; every user owns exactly one wallet.
type User struct {
	ID        string
	Email     string
	CreatedAt time.Time
	UpdatedAt time.Time
}
