package storage

import (
	"context"
	"database/sql"
	"errors"

	"github.com/margex/gotrade/internal/domain"
)

func (s *Store) InsertUser(ctx context.Context, u domain.User) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO users (id,email,created_at,updated_at)
VALUES (?,?,?,?)
`, u.ID, u.Email, fmtTime(u.CreatedAt), fmtTime(u.UpdatedAt))
	return err
}

func (s *Store) GetUser(ctx context.Context, userID string) (*domain.User, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT id,email,created_at,updated_at FROM users WHERE id=?
`, userID)
	var u domain.User
	var created, updated string
	if err := row.Scan(&u.ID, &u.Email, &created, &updated); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	var rp rowParser
	u.CreatedAt = rp.time(created)
	u.UpdatedAt = rp.time(updated)
	if rp.err != nil {
		return nil, rp.err
	}
	return &u, nil
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT id,email,created_at,updated_at FROM users WHERE email=?
`, email)
	var u domain.User
	var created, updated string
	if err := row.Scan(&u.ID, &u.Email, &created, &updated); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	var rp rowParser
	u.CreatedAt = rp.time(created)
	u.UpdatedAt = rp.time(updated)
	if rp.err != nil {
		return nil, rp.err
	}
	return &u, nil
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.User, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT id,email,created_at,updated_at FROM users ORDER BY created_at
`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.User
	for rows.Next() {
		var u domain.User
		var created, updated string
		if err := rows.Scan(&u.ID, &u.Email, &created, &updated); err != nil {
			return nil, err
		}
		var rp rowParser
		u.CreatedAt = rp.time(created)
		u.UpdatedAt = rp.time(updated)
		if rp.err != nil {
			return nil, rp.err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}
