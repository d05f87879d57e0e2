// Package fulfillment implements the inventory coordinator: the atomic
// check-and-decrement of product stock paired with an order ledger append.
package fulfillment

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/hackshop/fulfillment/internal/catalog"
	"github.com/hackshop/fulfillment/internal/ledger"
	"github.com/hackshop/fulfillment/internal/model"
	"github.com/hackshop/fulfillment/internal/obs"
)

// Coordinator serializes order placement per product id. Orders on
// distinct products proceed in parallel; two orders racing for the same
// units can never both pass the stock check.
type Coordinator struct {
	catalog catalog.Store
	ledger  ledger.Ledger

	mu    sync.Mutex
	locks map[int64]*sync.Mutex
}

// New constructs a Coordinator over the given stores.
func New(c catalog.Store, l ledger.Ledger) *Coordinator {
	return &Coordinator{catalog: c, ledger: l, locks: make(map[int64]*sync.Mutex)}
}

// lockFor returns the mutex guarding one product id, creating it on first
// use. Locks are never removed; the arena grows with the catalog, not
// with traffic.
func (c *Coordinator) lockFor(id int64) *sync.Mutex {
	c.mu.Lock()
	defer c.mu.Unlock()
	l, ok := c.locks[id]
	if !ok {
		l = &sync.Mutex{}
		c.locks[id] = l
	}
	return l
}

func validate(productID, quantity int64, buyer model.BuyerInfo) error {
	if productID <= 0 {
		return fmt.Errorf("%w: product id must be positive", model.ErrInvalidRequest)
	}
	if quantity <= 0 {
		return fmt.Errorf("%w: quantity must be positive", model.ErrInvalidRequest)
	}
	if strings.TrimSpace(buyer.Name) == "" {
		return fmt.Errorf("%w: buyer name is required", model.ErrInvalidRequest)
	}
	if strings.TrimSpace(buyer.Email) == "" {
		return fmt.Errorf("%w: buyer email is required", model.ErrInvalidRequest)
	}
	return nil
}

// PlaceOrder decides against the current stock value whether the purchase
// can be satisfied and, if so, makes the decrement and the ledger append
// observable together. On any error path both stores are unchanged.
//
// The whole check-read-decrement-append sequence runs inside the
// per-product critical section, so the stock observed by the check is
// still the authoritative value at commit time.
func (c *Coordinator) PlaceOrder(ctx context.Context, productID, quantity int64, buyer model.BuyerInfo) (model.OrderRecord, error) {
	if err := validate(productID, quantity, buyer); err != nil {
		return model.OrderRecord{}, err
	}

	lock := c.lockFor(productID)
	lock.Lock()
	defer lock.Unlock()

	// a request cancelled while waiting for the lock must not write
	if err := ctx.Err(); err != nil {
		return model.OrderRecord{}, err
	}

	p, err := c.catalog.Get(ctx, productID)
	if err != nil {
		return model.OrderRecord{}, err
	}
	if p.Stock < quantity {
		return model.OrderRecord{}, model.ErrInsufficientStock
	}

	remaining, err := c.catalog.DecrementStock(ctx, productID, quantity)
	if err != nil {
		return model.OrderRecord{}, err
	}

	rec := model.OrderRecord{
		ProductID:   productID,
		ProductName: p.Name,
		Quantity:    quantity,
		TotalPrice:  p.Price * quantity,
		BuyerInfo:   buyer,
		OrderDate:   time.Now().UTC(),
		Status:      model.StatusConfirmed,
	}
	stored, err := c.ledger.Append(ctx, rec)
	if err != nil {
		// the decrement is durable but the order is not; undo the
		// decrement so no split-brain state survives
		if rerr := c.catalog.RestoreStock(ctx, productID, quantity); rerr != nil {
			obs.Logger.Error("order_rollback_failed",
				"product_id", productID, "quantity", quantity, "error", rerr.Error())
		}
		return model.OrderRecord{}, fmt.Errorf("%w: ledger append: %v", model.ErrStorageUnavailable, err)
	}

	obs.Logger.Info("order_placed",
		"order_id", stored.ID,
		"product_id", productID,
		"quantity", quantity,
		"total_price", stored.TotalPrice,
		"remaining_stock", remaining,
	)
	return stored, nil
}

// RecentOrders returns the last n ledger records in append order.
func (c *Coordinator) RecentOrders(ctx context.Context, n int) ([]model.OrderRecord, error) {
	return c.ledger.ListRecent(ctx, n)
}
