package commission

import (
	"time"

	"github.com/dukerupert/vanir/internal/domain"
)

// MockCalculator is a test implementation of Calculator.
type MockCalculator struct {
	// CalculateFunc allows customizing calculation behavior.
	CalculateFunc func(items []domain.OrderItem, totalCents int64, now time.Time) (*domain.CommissionDetails, error)

	// Calls counts Calculate invocations, for freeze-once assertions.
	Calls int
}

// NewMockCalculator creates a new mock commission calculator for testing.
func NewMockCalculator() *MockCalculator {
	return &MockCalculator{}
}

// Calculate delegates to the configured function or returns a zero-fee
// split that assigns the whole total to the first supplier.
func (m *MockCalculator) Calculate(items []domain.OrderItem, totalCents int64, now time.Time) (*domain.CommissionDetails, error) {
	m.Calls++

	if m.CalculateFunc != nil {
		return m.CalculateFunc(items, totalCents, now)
	}

	earnings := make(map[string]int64)
	if len(items) > 0 {
		earnings[items[0].Supplier.ID] = totalCents
	}
	return &domain.CommissionDetails{
		SupplierEarningsCents: earnings,
		FrozenAt:              now,
	}, nil
}
