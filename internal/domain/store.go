package domain

import (
	"context"
	"time"
)

// Store-level errors shared by all OrderStore implementations.
var (
	ErrOrderNotFound = &Error{Code: ENOTFOUND, Message: "Order not found"}

	// ErrVersionConflict is returned when a write loses the compare-and-swap
	// race. The caller must re-fetch and decide whether to retry; the store
	// never retries on its own.
	ErrVersionConflict = &Error{Code: ECONFLICT, Message: "Order was modified concurrently"}

	ErrDuplicateOrderNumber = &Error{Code: ECONFLICT, Message: "Order number already exists"}
)

// OrderStore persists order aggregates under optimistic concurrency
// control. Implementations must treat Order.Version as the CAS token:
// UpdateOrder succeeds only if the stored version equals the version the
// caller read, and increments it atomically with the write.
type OrderStore interface {
	// CreateOrder persists a new order atomically with all items and the
	// initial status history entry. The stored version starts at 1.
	CreateOrder(ctx context.Context, order *Order) error

	// GetOrder retrieves an order by ID, including its current version.
	GetOrder(ctx context.Context, id string) (*Order, error)

	// GetOrderByNumber retrieves an order by its human-readable number.
	GetOrderByNumber(ctx context.Context, orderNumber string) (*Order, error)

	// UpdateOrder writes the order back conditioned on order.Version being
	// unchanged since the read. Returns ErrVersionConflict if the
	// compare-and-swap fails. On success the in-memory Version is bumped.
	UpdateOrder(ctx context.Context, order *Order) error

	// ListUnsettled returns orders whose payment status is still pending or
	// in_process and that were last updated before the cutoff. Used by the
	// payment status poller.
	ListUnsettled(ctx context.Context, updatedBefore time.Time, limit int) ([]*Order, error)
}
