// Package httpapi exposes the HTTP API layer of the service.
package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/hackshop/fulfillment/internal/model"
)

// jsonError represents a JSON error payload.
type jsonError struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// WriteJSONError writes a JSON error payload with the given status code.
func WriteJSONError(w http.ResponseWriter, status int, message, details string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(jsonError{Error: message, Details: details})
}

// errorCode maps a domain error to its wire code and HTTP status. The
// payload never carries storage internals; details stay empty for
// storage-side failures.
func errorCode(err error) (status int, code string) {
	switch {
	case errors.Is(err, model.ErrInvalidRequest):
		return http.StatusBadRequest, "invalid_request"
	case errors.Is(err, model.ErrProductNotFound):
		return http.StatusNotFound, "product_not_found"
	case errors.Is(err, model.ErrInsufficientStock):
		return http.StatusConflict, "insufficient_stock"
	case errors.Is(err, model.ErrStorageUnavailable):
		return http.StatusServiceUnavailable, "storage_unavailable"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}
