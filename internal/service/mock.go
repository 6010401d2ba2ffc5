package service

import (
	"context"

	"github.com/dukerupert/vanir/internal/domain"
)

// MockDirectory is a map-backed SupplierDirectory for tests and
// single-process development mode.
type MockDirectory struct {
	// PickupLocationFunc allows customizing lookup behavior.
	PickupLocationFunc func(ctx context.Context, supplierID string) (*domain.PickupLocation, error)

	// Locations maps supplier IDs to their pickup locations.
	Locations map[string]*domain.PickupLocation
}

// Compile-time check that MockDirectory implements SupplierDirectory.
var _ SupplierDirectory = (*MockDirectory)(nil)

// NewMockDirectory creates an empty mock directory.
func NewMockDirectory() *MockDirectory {
	return &MockDirectory{Locations: make(map[string]*domain.PickupLocation)}
}

// PickupLocation implements SupplierDirectory.
func (m *MockDirectory) PickupLocation(ctx context.Context, supplierID string) (*domain.PickupLocation, error) {
	if m.PickupLocationFunc != nil {
		return m.PickupLocationFunc(ctx, supplierID)
	}
	location, ok := m.Locations[supplierID]
	if !ok {
		return nil, domain.NotFound("directory.pickup_location", "pickup location", supplierID)
	}
	return location, nil
}
