package service

import "github.com/dukerupert/vanir/internal/domain"

var (
	// ErrPickupMultiSupplier rejects pickup checkout for carts spanning
	// more than one supplier; there is no single location to collect from.
	ErrPickupMultiSupplier = &domain.Error{
		Code:    domain.EINVALID,
		Op:      "order.create",
		Message: "pickup orders must contain items from a single supplier",
	}

	// ErrRetryNotAllowed rejects a payment retry for an order whose
	// payment is not in a retryable state or whose status has advanced.
	ErrRetryNotAllowed = &domain.Error{
		Code:    domain.EPAYMENT,
		Op:      "order.retry_payment",
		Message: "payment cannot be retried for this order",
	}
)
