package settle

import (
	"context"

	"github.com/margex/gotrade/internal/domain"
	"github.com/margex/gotrade/internal/storage"
)

// Rehydrate loads durable state back into the in-memory components
// after a restart. Pending orders come back with their reservation so
// they stay cancellable; everything else is read-only history plus the
// open positions the sweep must keep marking.
func (c *Coordinator) Rehydrate(ctx context.Context, store *storage.Store) error {
	wallets, err := store.ListWallets(ctx)
	if err != nil {
		return domain.ErrDatabase(err)
	}
	for i := range wallets {
		if err := c.wallet.Admit(&wallets[i]); err != nil {
			return err
		}
	}

	orders, err := store.ListOrders(ctx)
	if err != nil {
		return domain.ErrDatabase(err)
	}
	for i := range orders {
		o := orders[i].Order
		c.orders.Rehydrate(&o, orders[i].Reserved)
	}

	positions, err := store.ListPositions(ctx)
	if err != nil {
		return domain.ErrDatabase(err)
	}
	open := 0
	for i := range positions {
		c.positions.Rehydrate(&positions[i])
		if positions[i].IsOpen() {
			open++
		}
	}

	c.log.Infof("rehydrated %d wallets, %d orders, %d positions (%d open)",
		len(wallets), len(orders), len(positions), open)
	return nil
}
