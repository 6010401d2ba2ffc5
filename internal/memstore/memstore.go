// Package memstore provides an in-memory OrderStore with the same
// compare-and-swap semantics as the postgres implementation. It backs
// service tests and single-process development mode.
package memstore

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/dukerupert/vanir/internal/domain"
)

// OrderStore is an in-memory, mutex-guarded order store.
// Orders are deep-copied on every read and write so callers never share
// state with the store; the CAS race is decided under the lock exactly
// like a conditioned UPDATE would decide it in postgres.
type OrderStore struct {
	mu     sync.Mutex
	orders map[string]*domain.Order
	byNum  map[string]string
}

// Compile-time check that OrderStore implements domain.OrderStore.
var _ domain.OrderStore = (*OrderStore)(nil)

// New creates an empty in-memory order store.
func New() *OrderStore {
	return &OrderStore{
		orders: make(map[string]*domain.Order),
		byNum:  make(map[string]string),
	}
}

// CreateOrder stores a new order with version 1.
func (s *OrderStore) CreateOrder(ctx context.Context, order *domain.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.orders[order.ID]; exists {
		return domain.Conflict("memstore.create", "order already exists")
	}
	if _, exists := s.byNum[order.OrderNumber]; exists {
		return domain.ErrDuplicateOrderNumber
	}

	order.Version = 1
	copied, err := clone(order)
	if err != nil {
		return err
	}
	s.orders[order.ID] = copied
	s.byNum[order.OrderNumber] = order.ID
	return nil
}

// GetOrder returns a copy of the order.
func (s *OrderStore) GetOrder(ctx context.Context, id string) (*domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	order, ok := s.orders[id]
	if !ok {
		return nil, domain.ErrOrderNotFound
	}
	return clone(order)
}

// GetOrderByNumber returns a copy of the order with the given number.
func (s *OrderStore) GetOrderByNumber(ctx context.Context, orderNumber string) (*domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.byNum[orderNumber]
	if !ok {
		return nil, domain.ErrOrderNotFound
	}
	return clone(s.orders[id])
}

// UpdateOrder writes the order back if the stored version still matches
// order.Version. On success the version is incremented, both in the store
// and on the caller's copy.
func (s *OrderStore) UpdateOrder(ctx context.Context, order *domain.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.orders[order.ID]
	if !ok {
		return domain.ErrOrderNotFound
	}
	if current.Version != order.Version {
		return domain.ErrVersionConflict
	}

	order.Version++
	copied, err := clone(order)
	if err != nil {
		order.Version--
		return err
	}
	s.orders[order.ID] = copied
	return nil
}

// ListUnsettled returns orders with pending or in_process payments last
// updated before the cutoff, oldest first.
func (s *OrderStore) ListUnsettled(ctx context.Context, updatedBefore time.Time, limit int) ([]*domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var result []*domain.Order
	for _, order := range s.orders {
		settling := order.PaymentStatus == domain.PaymentPending || order.PaymentStatus == domain.PaymentInProcess
		if settling && order.UpdatedAt.Before(updatedBefore) && order.Status != domain.OrderCancelled {
			copied, err := clone(order)
			if err != nil {
				return nil, err
			}
			result = append(result, copied)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].UpdatedAt.Before(result[j].UpdatedAt)
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// clone deep-copies an order via JSON round-trip.
func clone(order *domain.Order) (*domain.Order, error) {
	raw, err := json.Marshal(order)
	if err != nil {
		return nil, domain.WrapError(err, domain.EINTERNAL, "memstore.clone", "failed to copy order")
	}
	var copied domain.Order
	if err := json.Unmarshal(raw, &copied); err != nil {
		return nil, domain.WrapError(err, domain.EINTERNAL, "memstore.clone", "failed to copy order")
	}
	return &copied, nil
}
