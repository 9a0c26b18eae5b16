package storage

import (
	"context"
	"database/sql"
	"errors"

	"github.com/margex/gotrade/internal/domain"
)

func (s *Store) UpsertWallet(ctx context.Context, w domain.Wallet) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO wallets (id,user_id,balance,frozen_balance,created_at,updated_at)
VALUES (?,?,?,?,?,?)
ON CONFLICT(id) DO UPDATE SET
  balance=excluded.balance,
  frozen_balance=excluded.frozen_balance,
  updated_at=excluded.updated_at
`, w.ID, w.UserID, w.Balance.String(), w.FrozenBalance.String(),
		fmtTime(w.CreatedAt), fmtTime(w.UpdatedAt))
	return err
}

func (s *Store) GetWalletByUser(ctx context.Context, userID string) (*domain.Wallet, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT id,user_id,balance,frozen_balance,created_at,updated_at
FROM wallets WHERE user_id=?
`, userID)
	var w domain.Wallet
	var balance, frozen, created, updated string
	if err := row.Scan(&w.ID, &w.UserID, &balance, &frozen, &created, &updated); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	var rp rowParser
	w.Balance = rp.dec(balance)
	w.FrozenBalance = rp.dec(frozen)
	w.CreatedAt = rp.time(created)
	w.UpdatedAt = rp.time(updated)
	if rp.err != nil {
		return nil, rp.err
	}
	return &w, nil
}

func (s *Store) ListWallets(ctx context.Context) ([]domain.Wallet, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT id,user_id,balance,frozen_balance,created_at,updated_at FROM wallets
`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Wallet
	for rows.Next() {
		var w domain.Wallet
		var balance, frozen, created, updated string
		if err := rows.Scan(&w.ID, &w.UserID, &balance, &frozen, &created, &updated); err != nil {
			return nil, err
		}
		var rp rowParser
		w.Balance = rp.dec(balance)
		w.FrozenBalance = rp.dec(frozen)
		w.CreatedAt = rp.time(created)
		w.UpdatedAt = rp.time(updated)
		if rp.err != nil {
			return nil, rp.err
		}
		out = append(out, w)
	}
	return out, rows.Err()
}
