package commission

import "github.com/dukerupert/vanir/internal/domain"

// Commission domain errors.
var (
	ErrInvalidRate = &domain.Error{
		Code:    domain.EINVALID,
		Message: "Fee rate must be between 0 and 1",
	}

	ErrProcessingExceedsPlatform = &domain.Error{
		Code:    domain.EINVALID,
		Message: "Processing fee rate cannot exceed platform fee rate",
	}

	ErrNoItems = &domain.Error{
		Code:    domain.EINVALID,
		Message: "Cannot calculate commission for an order without items",
	}

	// ErrInconsistentCommission should never occur: the split failed to
	// reconcile to the order total. Callers must abort the freeze and
	// raise a loud internal alert, never persist the snapshot.
	ErrInconsistentCommission = &domain.Error{
		Code:    domain.EINTERNAL,
		Message: "Commission components do not sum to order total",
	}
)
