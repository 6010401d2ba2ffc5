package gateway

import "github.com/dukerupert/vanir/internal/domain"

// Gateway domain errors.
var (
	ErrIntentNotFound = &domain.Error{
		Code:    domain.ENOTFOUND,
		Message: "Payment intent not found",
	}

	ErrInvalidSignature = &domain.Error{
		Code:    domain.EUNAUTHORIZED,
		Message: "Webhook signature verification failed",
	}

	ErrGatewayUnavailable = &domain.Error{
		Code:    domain.EINTERNAL,
		Message: "Payment gateway request failed",
	}
)
