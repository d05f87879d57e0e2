// Package catalog provides durable key-value access to product records.
//
// The store is the atomicity primitive underlying order fulfillment:
// DecrementStock must never let two callers observe the same
// pre-decrement stock value and both succeed past it.
package catalog

import (
	"context"

	"github.com/hackshop/fulfillment/internal/model"
)

// Store is the catalog access contract.
type Store interface {
	// Get returns the product or model.ErrProductNotFound.
	Get(ctx context.Context, id int64) (model.Product, error)

	// List returns all products ordered by id.
	List(ctx context.Context) ([]model.Product, error)

	// Search returns products whose name or description contains q,
	// case-insensitively, ordered by id.
	Search(ctx context.Context, q string) ([]model.Product, error)

	// DecrementStock atomically subtracts amount from the product's stock
	// and returns the remaining value. It returns
	// model.ErrInsufficientStock when the current stock is below amount
	// and model.ErrProductNotFound when the id is unknown. The decrement
	// is durable before the call returns.
	DecrementStock(ctx context.Context, id, amount int64) (int64, error)

	// RestoreStock adds amount back to the product's stock. It exists only
	// so a failed fulfillment can roll back its own decrement; it is not a
	// restock API.
	RestoreStock(ctx context.Context, id, amount int64) error

	Close() error
}
