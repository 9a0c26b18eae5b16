package storage

import (
	"context"

	"github.com/margex/gotrade/internal/domain"
)

func (s *Store) InsertTrade(ctx context.Context, t domain.Trade) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO trades (id,user_id,order_id,position_id,symbol,entry_price,exit_price,quantity,direction,realized_pl,fee,net_profit,opened_at,closed_at,created_at)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)
`, t.ID, t.UserID, t.OrderID, t.PositionID, t.Symbol,
		t.EntryPrice.String(), t.ExitPrice.String(), t.Quantity.String(),
		string(t.Direction), t.RealizedPL.String(), t.Fee.String(), t.NetProfit.String(),
		fmtTime(t.OpenedAt), fmtTime(t.ClosedAt), fmtTime(t.CreatedAt))
	return err
}

// ListTradesByUser returns one page of the user's trades, most recent
// close first, plus the total count for pagination.
func (s *Store) ListTradesByUser(ctx context.Context, userID string, limit, offset int) ([]domain.Trade, int, error) {
	var total int
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM trades WHERE user_id=?`, userID).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := s.db.QueryContext(ctx, `
SELECT id,user_id,order_id,position_id,symbol,entry_price,exit_price,quantity,direction,realized_pl,fee,net_profit,opened_at,closed_at,created_at
FROM trades WHERE user_id=? ORDER BY closed_at DESC LIMIT ? OFFSET ?
`, userID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []domain.Trade
	for rows.Next() {
		var t domain.Trade
		var entry, exit, qty, dir, rpl, fee, net, opened, closed, created string
		if err := rows.Scan(&t.ID, &t.UserID, &t.OrderID, &t.PositionID, &t.Symbol,
			&entry, &exit, &qty, &dir, &rpl, &fee, &net, &opened, &closed, &created); err != nil {
			return nil, 0, err
		}
		var rp rowParser
		t.EntryPrice = rp.dec(entry)
		t.ExitPrice = rp.dec(exit)
		t.Quantity = rp.dec(qty)
		t.Direction = domain.Direction(dir)
		t.RealizedPL = rp.dec(rpl)
		t.Fee = rp.dec(fee)
		t.NetProfit = rp.dec(net)
		t.OpenedAt = rp.time(opened)
		t.ClosedAt = rp.time(closed)
		t.CreatedAt = rp.time(created)
		if rp.err != nil {
			return nil, 0, rp.err
		}
		out = append(out, t)
	}
	return out, total, rows.Err()
}
