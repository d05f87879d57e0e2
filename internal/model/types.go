// Package model defines domain types and sentinel errors used by the service.
package model

import (
	"errors"
	"time"
)

// Product represents a catalog entry. Stock is the only field the
// fulfillment core ever mutates.
type Product struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Category    string `json:"category"`
	Price       int64  `json:"price"`
	Stock       int64  `json:"stock"`
}

// BuyerInfo is the contact payload attached to an order. It is stored
// verbatim; only presence of name and email is checked.
type BuyerInfo struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Phone   string `json:"phone,omitempty"`
	Address string `json:"address,omitempty"`
}

// OrderRecord is one immutable entry in the order ledger. ProductName and
// TotalPrice are snapshots taken at order time; a later catalog change
// never rewrites history.
type OrderRecord struct {
	ID          int64     `json:"id"`
	ProductID   int64     `json:"product_id"`
	ProductName string    `json:"product_name"`
	Quantity    int64     `json:"quantity"`
	TotalPrice  int64     `json:"total_price"`
	BuyerInfo   BuyerInfo `json:"buyer_info"`
	OrderDate   time.Time `json:"order_date"`
	Status      string    `json:"status"`
}

// StatusConfirmed is the single terminal order status.
const StatusConfirmed = "confirmed"

var (
	ErrProductNotFound    = errors.New("product not found")
	ErrInsufficientStock  = errors.New("insufficient stock")
	ErrInvalidRequest     = errors.New("invalid request")
	ErrStorageUnavailable = errors.New("storage unavailable")
)
