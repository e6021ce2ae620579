package service

import (
	"context"
	"fmt"
	"time"

	"pos-checkout/internal/cart"
	"pos-checkout/internal/util"

	"go.uber.org/zap"
)

// HeldOrderQueue parks session carts and brings them back one at a time
type HeldOrderQueue struct {
	store           HeldOrderStore
	requireCustomer bool
	logger          *zap.Logger
	now             func() time.Time
}

// NewHeldOrderQueue creates a new held-order queue. requireCustomer makes
// Hold refuse carts without a selected customer.
func NewHeldOrderQueue(store HeldOrderStore, requireCustomer bool) *HeldOrderQueue {
	return &HeldOrderQueue{
		store:           store,
		requireCustomer: requireCustomer,
		logger:          util.GetLogger(),
		now:             time.Now,
	}
}

// Hold appends a snapshot of c to the session list and resets c. The stored
// session cart is reset in the same write.
func (q *HeldOrderQueue) Hold(ctx context.Context, sessionID string, c *cart.Cart) (*cart.HeldOrder, error) {
	ctx, span := util.StartSpan(ctx, "HeldOrderQueue.Hold")
	defer span.End()

	if c.IsEmpty() {
		return nil, ErrEmptyHold
	}
	if q.requireCustomer && c.CustomerID == nil {
		return nil, ErrMissingCustomer
	}

	order := c.Snapshot(q.now())
	if err := q.store.HoldOrder(ctx, sessionID, order, cart.New()); err != nil {
		return nil, fmt.Errorf("failed to hold order: %w", err)
	}

	c.Reset()
	util.HeldOrdersTotal.WithLabelValues("hold").Inc()
	q.logger.Info("Order held",
		zap.String("session_id", sessionID),
		zap.Int("lines", len(order.Lines)),
		zap.Int64("total", order.Total))

	return &order, nil
}

// Restore loads the held order at index into c, which must be empty. The
// entry is removed, the remaining list re-indexed and the stored session
// cart replaced in one write. Stock is not checked here; checkout
// re-validates it.
func (q *HeldOrderQueue) Restore(ctx context.Context, sessionID string, index int, c *cart.Cart) (*cart.HeldOrder, error) {
	ctx, span := util.StartSpan(ctx, "HeldOrderQueue.Restore")
	defer span.End()

	if !c.IsEmpty() {
		return nil, ErrCartNotEmpty
	}
	if index < 0 {
		return nil, notFound("held order", index)
	}

	order, err := q.store.RestoreHeldOrder(ctx, sessionID, index)
	if err != nil {
		return nil, fmt.Errorf("failed to restore held order: %w", err)
	}
	if order == nil {
		return nil, notFound("held order", index)
	}

	c.Load(*order)
	util.HeldOrdersTotal.WithLabelValues("restore").Inc()
	q.logger.Info("Held order restored",
		zap.String("session_id", sessionID),
		zap.Int("index", index))

	return order, nil
}

// List returns the held orders of the session in hold order
func (q *HeldOrderQueue) List(ctx context.Context, sessionID string) ([]cart.HeldOrder, error) {
	orders, err := q.store.ListHeldOrders(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list held orders: %w", err)
	}
	if orders == nil {
		orders = []cart.HeldOrder{}
	}
	return orders, nil
}
