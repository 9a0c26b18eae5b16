package storage

import (
	"context"
	"database/sql"
	"errors"

	"github.com/margex/gotrade/internal/domain"
)

func (s *Store) UpsertPosition(ctx context.Context, p domain.Position) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO positions (id,user_id,order_id,symbol,quantity,entry_price,direction,status,current_price,unrealized_pl,realized_pl,opened_at,closed_at,updated_at)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?)
ON CONFLICT(id) DO UPDATE SET
  quantity=excluded.quantity,
  entry_price=excluded.entry_price,
  status=excluded.status,
  current_price=excluded.current_price,
  unrealized_pl=excluded.unrealized_pl,
  realized_pl=excluded.realized_pl,
  closed_at=excluded.closed_at,
  updated_at=excluded.updated_at
`, p.ID, p.UserID, p.OrderID, p.Symbol, p.Quantity.String(), p.EntryPrice.String(),
		string(p.Direction), string(p.Status), p.CurrentPrice.String(),
		p.UnrealizedPL.String(), p.RealizedPL.String(),
		fmtTime(p.OpenedAt), fmtTimePtr(p.ClosedAt), fmtTime(p.UpdatedAt))
	return err
}

const positionCols = `id,user_id,order_id,symbol,quantity,entry_price,direction,status,current_price,unrealized_pl,realized_pl,opened_at,closed_at,updated_at`

func scanPosition(scan func(dest ...any) error) (*domain.Position, error) {
	var p domain.Position
	var qty, entry, dir, status, current, upl, rpl, opened, updated string
	var closed sql.NullString
	if err := scan(&p.ID, &p.UserID, &p.OrderID, &p.Symbol, &qty, &entry,
		&dir, &status, &current, &upl, &rpl, &opened, &closed, &updated); err != nil {
		return nil, err
	}
	var rp rowParser
	p.Quantity = rp.dec(qty)
	p.EntryPrice = rp.dec(entry)
	p.Direction = domain.Direction(dir)
	p.Status = domain.PositionStatus(status)
	p.CurrentPrice = rp.dec(current)
	p.UnrealizedPL = rp.dec(upl)
	p.RealizedPL = rp.dec(rpl)
	p.OpenedAt = rp.time(opened)
	p.ClosedAt = rp.timePtr(closed)
	p.UpdatedAt = rp.time(updated)
	if rp.err != nil {
		return nil, rp.err
	}
	return &p, nil
}

func (s *Store) GetPosition(ctx context.Context, positionID string) (*domain.Position, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+positionCols+` FROM positions WHERE id=?`, positionID)
	p, err := scanPosition(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return p, nil
}

func (s *Store) ListPositions(ctx context.Context) ([]domain.Position, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+positionCols+` FROM positions ORDER BY opened_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Position
	for rows.Next() {
		p, err := scanPosition(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}
