package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/lib/pq"

	"github.com/hackshop/fulfillment/internal/model"
)

const productsSchema = `
CREATE TABLE IF NOT EXISTS products (
	id          BIGINT PRIMARY KEY,
	name        TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	category    TEXT NOT NULL DEFAULT '',
	price       BIGINT NOT NULL CHECK (price >= 0),
	stock       BIGINT NOT NULL CHECK (stock >= 0)
)`

// PostgresStore backs the catalog with a products table. The conditional
// UPDATE makes check-and-decrement a single atomic statement.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgres wraps an open database handle and ensures the schema exists.
func NewPostgres(ctx context.Context, db *sql.DB) (*PostgresStore, error) {
	if _, err := db.ExecContext(ctx, productsSchema); err != nil {
		return nil, fmt.Errorf("ensure products schema: %w", err)
	}
	return &PostgresStore{db: db}, nil
}

const productColumns = "id, name, description, category, price, stock"

func scanProduct(row interface{ Scan(...any) error }) (model.Product, error) {
	var p model.Product
	err := row.Scan(&p.ID, &p.Name, &p.Description, &p.Category, &p.Price, &p.Stock)
	return p, err
}

// Get implements Store.
func (s *PostgresStore) Get(ctx context.Context, id int64) (model.Product, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+productColumns+" FROM products WHERE id = $1", id)
	p, err := scanProduct(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Product{}, model.ErrProductNotFound
	}
	if err != nil {
		return model.Product{}, fmt.Errorf("%w: %v", model.ErrStorageUnavailable, err)
	}
	return p, nil
}

// List implements Store.
func (s *PostgresStore) List(ctx context.Context) ([]model.Product, error) {
	return s.queryProducts(ctx,
		"SELECT "+productColumns+" FROM products ORDER BY id")
}

// Search implements Store.
func (s *PostgresStore) Search(ctx context.Context, q string) ([]model.Product, error) {
	return s.queryProducts(ctx,
		"SELECT "+productColumns+" FROM products WHERE name ILIKE '%' || $1 || '%' OR description ILIKE '%' || $1 || '%' ORDER BY id", q)
}

func (s *PostgresStore) queryProducts(ctx context.Context, query string, args ...any) ([]model.Product, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrStorageUnavailable, err)
	}
	defer rows.Close()
	out := make([]model.Product, 0)
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", model.ErrStorageUnavailable, err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrStorageUnavailable, err)
	}
	return out, nil
}

// DecrementStock implements Store. The WHERE clause carries the stock
// check, so two concurrent callers can never both pass it for the same
// units.
func (s *PostgresStore) DecrementStock(ctx context.Context, id, amount int64) (int64, error) {
	if amount <= 0 {
		return 0, fmt.Errorf("%w: amount must be positive", model.ErrInvalidRequest)
	}
	var remaining int64
	err := s.db.QueryRowContext(ctx,
		"UPDATE products SET stock = stock - $2 WHERE id = $1 AND stock >= $2 RETURNING stock",
		id, amount).Scan(&remaining)
	if errors.Is(err, sql.ErrNoRows) {
		// either the product does not exist or the stock was too low
		if _, gerr := s.Get(ctx, id); gerr != nil {
			return 0, gerr
		}
		return 0, model.ErrInsufficientStock
	}
	if err != nil {
		return 0, fmt.Errorf("%w: %v", model.ErrStorageUnavailable, err)
	}
	return remaining, nil
}

// RestoreStock implements Store.
func (s *PostgresStore) RestoreStock(ctx context.Context, id, amount int64) error {
	if amount <= 0 {
		return fmt.Errorf("%w: amount must be positive", model.ErrInvalidRequest)
	}
	res, err := s.db.ExecContext(ctx,
		"UPDATE products SET stock = stock + $2 WHERE id = $1", id, amount)
	if err != nil {
		return fmt.Errorf("%w: %v", model.ErrStorageUnavailable, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: %v", model.ErrStorageUnavailable, err)
	}
	if n == 0 {
		return model.ErrProductNotFound
	}
	return nil
}

// Close implements Store. The database handle is shared with the ledger,
// so closing it is left to the caller that opened it.
func (s *PostgresStore) Close() error { return nil }
