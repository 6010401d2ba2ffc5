// Package postgres implements domain.OrderStore on PostgreSQL.
//
// The order aggregate is stored as a jsonb document with the columns the
// store queries by (order number, statuses, version, timestamps) extracted
// alongside it. Optimistic concurrency is a conditioned UPDATE on the
// version column: zero rows affected means a concurrent writer won.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dukerupert/vanir/internal/domain"
)

// OrderStore is a PostgreSQL-backed order store.
type OrderStore struct {
	pool *pgxpool.Pool
}

// Compile-time check that OrderStore implements domain.OrderStore.
var _ domain.OrderStore = (*OrderStore)(nil)

// NewOrderStore creates an order store on the given connection pool.
func NewOrderStore(pool *pgxpool.Pool) *OrderStore {
	return &OrderStore{pool: pool}
}

const uniqueViolation = "23505"

// CreateOrder inserts a new order with version 1.
func (s *OrderStore) CreateOrder(ctx context.Context, order *domain.Order) error {
	const op = "postgres.create_order"

	order.Version = 1
	doc, err := json.Marshal(order)
	if err != nil {
		return domain.WrapError(err, domain.EINTERNAL, op, "failed to encode order")
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO orders (id, order_number, status, payment_status, version, created_at, updated_at, doc)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		order.ID, order.OrderNumber, order.Status, order.PaymentStatus,
		order.Version, order.CreatedAt, order.UpdatedAt, doc)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			if pgErr.ConstraintName == "orders_order_number_key" {
				return domain.ErrDuplicateOrderNumber
			}
			return domain.Conflict(op, "order already exists")
		}
		return domain.WrapError(err, domain.EINTERNAL, op, "failed to insert order")
	}
	return nil
}

// GetOrder returns the order with the given ID.
func (s *OrderStore) GetOrder(ctx context.Context, id string) (*domain.Order, error) {
	return s.getOrder(ctx, `SELECT doc, version FROM orders WHERE id = $1`, id)
}

// GetOrderByNumber returns the order with the given human-facing number.
func (s *OrderStore) GetOrderByNumber(ctx context.Context, orderNumber string) (*domain.Order, error) {
	return s.getOrder(ctx, `SELECT doc, version FROM orders WHERE order_number = $1`, orderNumber)
}

func (s *OrderStore) getOrder(ctx context.Context, query, arg string) (*domain.Order, error) {
	const op = "postgres.get_order"

	var doc []byte
	var version int64
	err := s.pool.QueryRow(ctx, query, arg).Scan(&doc, &version)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrOrderNotFound
	}
	if err != nil {
		return nil, domain.WrapError(err, domain.EINTERNAL, op, "failed to read order")
	}

	var order domain.Order
	if err := json.Unmarshal(doc, &order); err != nil {
		return nil, domain.WrapError(err, domain.EINTERNAL, op, "failed to decode order")
	}
	// The version column is authoritative; the document lags one write.
	order.Version = version
	return &order, nil
}

// UpdateOrder writes the order back if the stored version still matches
// order.Version. On success the version is incremented, both in the row
// and on the caller's copy.
func (s *OrderStore) UpdateOrder(ctx context.Context, order *domain.Order) error {
	const op = "postgres.update_order"

	next := order.Version + 1
	doc, err := json.Marshal(order)
	if err != nil {
		return domain.WrapError(err, domain.EINTERNAL, op, "failed to encode order")
	}

	tag, err := s.pool.Exec(ctx, `
		UPDATE orders
		SET status = $1, payment_status = $2, version = $3, updated_at = $4, doc = $5
		WHERE id = $6 AND version = $7`,
		order.Status, order.PaymentStatus, next, order.UpdatedAt, doc,
		order.ID, order.Version)
	if err != nil {
		return domain.WrapError(err, domain.EINTERNAL, op, "failed to update order")
	}
	if tag.RowsAffected() == 0 {
		// Either the order vanished or a concurrent writer bumped the
		// version; distinguish so callers get the right error.
		var exists bool
		if err := s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM orders WHERE id = $1)`, order.ID).Scan(&exists); err != nil {
			return domain.WrapError(err, domain.EINTERNAL, op, "failed to check order existence")
		}
		if !exists {
			return domain.ErrOrderNotFound
		}
		return domain.ErrVersionConflict
	}

	order.Version = next
	return nil
}

// ListUnsettled returns orders with pending or in_process payments last
// updated before the cutoff, oldest first.
func (s *OrderStore) ListUnsettled(ctx context.Context, updatedBefore time.Time, limit int) ([]*domain.Order, error) {
	const op = "postgres.list_unsettled"

	rows, err := s.pool.Query(ctx, `
		SELECT doc, version FROM orders
		WHERE payment_status IN ('pending', 'in_process')
		  AND status <> 'cancelled'
		  AND updated_at < $1
		ORDER BY updated_at ASC
		LIMIT $2`,
		updatedBefore, limit)
	if err != nil {
		return nil, domain.WrapError(err, domain.EINTERNAL, op, "failed to list orders")
	}
	defer rows.Close()

	var result []*domain.Order
	for rows.Next() {
		var doc []byte
		var version int64
		if err := rows.Scan(&doc, &version); err != nil {
			return nil, domain.WrapError(err, domain.EINTERNAL, op, "failed to scan order")
		}
		var order domain.Order
		if err := json.Unmarshal(doc, &order); err != nil {
			return nil, domain.WrapError(err, domain.EINTERNAL, op, "failed to decode order")
		}
		order.Version = version
		result = append(result, &order)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.WrapError(err, domain.EINTERNAL, op, "failed to iterate orders")
	}
	return result, nil
}
