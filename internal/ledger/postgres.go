package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/hackshop/fulfillment/internal/model"
)

const ordersSchema = `
CREATE TABLE IF NOT EXISTS orders (
	id            BIGSERIAL PRIMARY KEY,
	product_id    BIGINT NOT NULL,
	product_name  TEXT NOT NULL,
	quantity      BIGINT NOT NULL CHECK (quantity > 0),
	total_price   BIGINT NOT NULL,
	buyer_name    TEXT NOT NULL,
	buyer_email   TEXT NOT NULL,
	buyer_phone   TEXT NOT NULL DEFAULT '',
	buyer_address TEXT NOT NULL DEFAULT '',
	order_date    TIMESTAMPTZ NOT NULL,
	status        TEXT NOT NULL
)`

// PostgresLedger backs the order ledger with an append-only orders table.
// Id assignment rides on the table's sequence, which never reuses values.
type PostgresLedger struct {
	db *sql.DB
}

// NewPostgres wraps an open database handle and ensures the schema exists.
func NewPostgres(ctx context.Context, db *sql.DB) (*PostgresLedger, error) {
	if _, err := db.ExecContext(ctx, ordersSchema); err != nil {
		return nil, fmt.Errorf("ensure orders schema: %w", err)
	}
	return &PostgresLedger{db: db}, nil
}

// Append implements Ledger.
func (l *PostgresLedger) Append(ctx context.Context, rec model.OrderRecord) (model.OrderRecord, error) {
	if rec.OrderDate.IsZero() {
		rec.OrderDate = time.Now().UTC()
	}
	if rec.Status == "" {
		rec.Status = model.StatusConfirmed
	}
	err := l.db.QueryRowContext(ctx,
		`INSERT INTO orders
			(product_id, product_name, quantity, total_price,
			 buyer_name, buyer_email, buyer_phone, buyer_address,
			 order_date, status)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		 RETURNING id`,
		rec.ProductID, rec.ProductName, rec.Quantity, rec.TotalPrice,
		rec.BuyerInfo.Name, rec.BuyerInfo.Email, rec.BuyerInfo.Phone, rec.BuyerInfo.Address,
		rec.OrderDate, rec.Status,
	).Scan(&rec.ID)
	if err != nil {
		return model.OrderRecord{}, fmt.Errorf("%w: %v", model.ErrStorageUnavailable, err)
	}
	return rec, nil
}

// ListRecent implements Ledger.
func (l *PostgresLedger) ListRecent(ctx context.Context, n int) ([]model.OrderRecord, error) {
	if n <= 0 {
		n = 20
	}
	rows, err := l.db.QueryContext(ctx,
		`SELECT id, product_id, product_name, quantity, total_price,
			buyer_name, buyer_email, buyer_phone, buyer_address,
			order_date, status
		 FROM orders ORDER BY id DESC LIMIT $1`, n)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrStorageUnavailable, err)
	}
	defer rows.Close()
	out := make([]model.OrderRecord, 0, n)
	for rows.Next() {
		var rec model.OrderRecord
		if err := rows.Scan(&rec.ID, &rec.ProductID, &rec.ProductName,
			&rec.Quantity, &rec.TotalPrice,
			&rec.BuyerInfo.Name, &rec.BuyerInfo.Email,
			&rec.BuyerInfo.Phone, &rec.BuyerInfo.Address,
			&rec.OrderDate, &rec.Status); err != nil {
			return nil, fmt.Errorf("%w: %v", model.ErrStorageUnavailable, err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrStorageUnavailable, err)
	}
	// rows arrive newest first; flip to append order
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

// Close implements Ledger. The database handle is shared with the
// catalog, so closing it is left to the caller that opened it.
func (l *PostgresLedger) Close() error { return nil }
