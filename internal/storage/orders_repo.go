package storage

import (
	"context"
	"database/sql"
	"errors"

	"github.com/shopspring/decimal"

	"github.com/margex/gotrade/internal/domain"
)

// OrderRow pairs an order with the margin still reserved for it, which
// only matters while the order is PENDING across a restart.
type OrderRow struct {
	Order    domain.Order
	Reserved decimal.Decimal
}

func (s *Store) UpsertOrder(ctx context.Context, o domain.Order, reserved decimal.Decimal) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO orders (id,user_id,symbol,quantity,price_per_unit,order_type,direction,status,reserved,created_at,filled_at,cancelled_at,updated_at)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?)
ON CONFLICT(id) DO UPDATE SET
  price_per_unit=excluded.price_per_unit,
  status=excluded.status,
  reserved=excluded.reserved,
  filled_at=excluded.filled_at,
  cancelled_at=excluded.cancelled_at,
  updated_at=excluded.updated_at
`, o.ID, o.UserID, o.Symbol, o.Quantity.String(), o.PricePerUnit.String(),
		string(o.OrderType), string(o.Direction), string(o.Status), reserved.String(),
		fmtTime(o.CreatedAt), fmtTimePtr(o.FilledAt), fmtTimePtr(o.CancelledAt), fmtTime(o.UpdatedAt))
	return err
}

func scanOrder(scan func(dest ...any) error) (*OrderRow, error) {
	var r OrderRow
	var qty, price, otype, dir, status, reserved, created, updated string
	var filled, cancelled sql.NullString
	if err := scan(&r.Order.ID, &r.Order.UserID, &r.Order.Symbol, &qty, &price,
		&otype, &dir, &status, &reserved, &created, &filled, &cancelled, &updated); err != nil {
		return nil, err
	}
	var rp rowParser
	r.Order.Quantity = rp.dec(qty)
	r.Order.PricePerUnit = rp.dec(price)
	r.Order.OrderType = domain.OrderType(otype)
	r.Order.Direction = domain.Direction(dir)
	r.Order.Status = domain.OrderStatus(status)
	r.Reserved = rp.dec(reserved)
	r.Order.CreatedAt = rp.time(created)
	r.Order.FilledAt = rp.timePtr(filled)
	r.Order.CancelledAt = rp.timePtr(cancelled)
	r.Order.UpdatedAt = rp.time(updated)
	if rp.err != nil {
		return nil, rp.err
	}
	return &r, nil
}

const orderCols = `id,user_id,symbol,quantity,price_per_unit,order_type,direction,status,reserved,created_at,filled_at,cancelled_at,updated_at`

func (s *Store) GetOrder(ctx context.Context, orderID string) (*OrderRow, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+orderCols+` FROM orders WHERE id=?`, orderID)
	r, err := scanOrder(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return r, nil
}

func (s *Store) ListOrders(ctx context.Context) ([]OrderRow, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+orderCols+` FROM orders ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []OrderRow
	for rows.Next() {
		r, err := scanOrder(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}
