// Package events implements asynchronous delivery of order-placed
// notifications: a bounded in-memory queue feeding a worker pool that
// hands events to a publisher. Delivery is best-effort and never affects
// a committed order.
package events

import (
	"context"
	"time"

	"github.com/hackshop/fulfillment/internal/model"
	"github.com/hackshop/fulfillment/internal/obs"
)

// OrderPlaced is emitted after an order has been durably committed.
type OrderPlaced struct {
	OrderID     int64     `json:"order_id"`
	ProductID   int64     `json:"product_id"`
	ProductName string    `json:"product_name"`
	Quantity    int64     `json:"quantity"`
	TotalPrice  int64     `json:"total_price"`
	PlacedAt    time.Time `json:"placed_at"`
}

// FromRecord builds the event for a stored order record.
func FromRecord(rec model.OrderRecord) OrderPlaced {
	return OrderPlaced{
		OrderID:     rec.ID,
		ProductID:   rec.ProductID,
		ProductName: rec.ProductName,
		Quantity:    rec.Quantity,
		TotalPrice:  rec.TotalPrice,
		PlacedAt:    rec.OrderDate,
	}
}

// Publisher delivers one event to an external consumer.
type Publisher interface {
	Publish(ctx context.Context, ev OrderPlaced) error
	Close() error
}

// LogPublisher writes events to the structured log. It is the default
// when no broker is configured.
type LogPublisher struct{}

func (LogPublisher) Publish(_ context.Context, ev OrderPlaced) error {
	obs.Logger.Info("order_event",
		"order_id", ev.OrderID,
		"product_id", ev.ProductID,
		"quantity", ev.Quantity,
		"total_price", ev.TotalPrice,
	)
	return nil
}

func (LogPublisher) Close() error { return nil }
