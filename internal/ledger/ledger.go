// Package ledger provides the durable, append-only record of completed
// orders.
package ledger

import (
	"context"

	"github.com/hackshop/fulfillment/internal/model"
)

// Ledger is the order ledger contract. Records are immutable once
// appended and ids are never reused.
type Ledger interface {
	// Append stores the record, assigns its id, and returns the stored
	// copy. The record is durable before the call returns.
	Append(ctx context.Context, rec model.OrderRecord) (model.OrderRecord, error)

	// ListRecent returns the last n records in append order.
	ListRecent(ctx context.Context, n int) ([]model.OrderRecord, error)

	Close() error
}
