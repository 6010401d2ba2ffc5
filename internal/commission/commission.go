package commission

import (
	"math"
	"time"

	"github.com/dukerupert/vanir/internal/domain"
)

// Calculator defines the interface for commission splitting.
// Implementations: RateCalculator, MockCalculator.
type Calculator interface {
	// Calculate splits an order total into per-supplier earnings, platform
	// fee and processing fee. The returned snapshot always reconciles
	// exactly to totalCents; if it cannot, an error is returned and the
	// caller must abort the freeze.
	Calculate(items []domain.OrderItem, totalCents int64, now time.Time) (*domain.CommissionDetails, error)
}

// RateCalculator computes commission from flat platform and processing
// fee rates.
//
// Per supplier: earnings = round(lineSubtotal * (1 - platformFeeRate)).
// The platform fee is the gross platform share (round(total * platformFeeRate))
// and absorbs any rounding remainder so the split reconciles exactly.
// The processing fee (round(total * processingFeeRate)) is carved out of
// the platform fee, leaving the platform net.
type RateCalculator struct {
	platformFeeRate   float64 // e.g. 0.10 for 10%
	processingFeeRate float64 // e.g. 0.05 for 5%
}

// NewRateCalculator creates a rate-based commission calculator.
// Rates must lie in [0, 1) and the processing rate must not exceed the
// platform rate, since it is paid out of the platform's share.
func NewRateCalculator(platformFeeRate, processingFeeRate float64) (*RateCalculator, error) {
	if platformFeeRate < 0 || platformFeeRate >= 1 {
		return nil, ErrInvalidRate
	}
	if processingFeeRate < 0 || processingFeeRate >= 1 {
		return nil, ErrInvalidRate
	}
	if processingFeeRate > platformFeeRate {
		return nil, ErrProcessingExceedsPlatform
	}
	return &RateCalculator{
		platformFeeRate:   platformFeeRate,
		processingFeeRate: processingFeeRate,
	}, nil
}

// Calculate implements Calculator.
func (c *RateCalculator) Calculate(items []domain.OrderItem, totalCents int64, now time.Time) (*domain.CommissionDetails, error) {
	if len(items) == 0 {
		return nil, ErrNoItems
	}

	processingFee := roundCents(float64(totalCents) * c.processingFeeRate)
	platformFee := roundCents(float64(totalCents) * c.platformFeeRate)

	earnings := make(map[string]int64)
	subtotals := make(map[string]int64)
	var order []string
	for _, item := range items {
		id := item.Supplier.ID
		if _, ok := subtotals[id]; !ok {
			order = append(order, id)
		}
		subtotals[id] += item.LineTotalCents()
	}

	var earningsSum int64
	for _, id := range order {
		e := roundCents(float64(subtotals[id]) * (1 - c.platformFeeRate))
		earnings[id] = e
		earningsSum += e
	}

	// Rounding remainder goes to the platform bucket, never dropped.
	remainder := totalCents - earningsSum - platformFee
	platformFee += remainder
	platformNet := platformFee - processingFee

	details := &domain.CommissionDetails{
		PlatformFeeCents:      platformFee,
		ProcessingFeeCents:    processingFee,
		PlatformNetCents:      platformNet,
		SupplierEarningsCents: earnings,
		PlatformFeeRate:       c.platformFeeRate,
		ProcessingFeeRate:     c.processingFeeRate,
		FrozenAt:              now,
	}

	// The invariant must hold exactly, not approximately. A violation here
	// means the snapshot is unusable and the freeze must abort.
	if platformNet+processingFee+earningsSum != totalCents {
		return nil, ErrInconsistentCommission
	}
	if platformNet < 0 {
		return nil, ErrInconsistentCommission
	}

	return details, nil
}

// roundCents rounds half away from zero to whole cents.
func roundCents(v float64) int64 {
	return int64(math.Round(v))
}
