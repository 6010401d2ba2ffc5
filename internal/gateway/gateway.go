package gateway

import (
	"context"
	"time"
)

// Provider defines the interface to the external payment gateway.
// The gateway is the source of truth for payment state; it reports back
// asynchronously via webhooks or polled status queries.
// Implementations: StripeProvider, MockProvider.
type Provider interface {
	// CreatePaymentIntent creates a payment intent for an order.
	// Returns the intent with a client secret for frontend confirmation.
	CreatePaymentIntent(ctx context.Context, params CreatePaymentIntentParams) (*PaymentIntent, error)

	// GetPaymentIntent retrieves an existing payment intent. Used by the
	// status poller to reconcile orders the webhook never reached.
	GetPaymentIntent(ctx context.Context, paymentIntentID string) (*PaymentIntent, error)

	// CancelPaymentIntent cancels an intent that has not settled. Called
	// when a retry_payment command invalidates the prior intent so a late
	// webhook for it cannot resurrect stale state.
	CancelPaymentIntent(ctx context.Context, paymentIntentID string) error

	// VerifyWebhookSignature verifies that a webhook request is authentic.
	VerifyWebhookSignature(payload []byte, signature string, secret string) error
}

// CreatePaymentIntentParams contains parameters for creating a payment intent.
type CreatePaymentIntentParams struct {
	// AmountCents is the amount in the smallest currency unit.
	AmountCents int64

	// Currency code (ISO 4217) - e.g., "usd".
	Currency string

	// CustomerEmail prefills the payment sheet and receives receipts.
	CustomerEmail string

	// Description appears on the customer's statement.
	Description string

	// Metadata for reconciliation; always includes order_id.
	Metadata map[string]string

	// IdempotencyKey prevents duplicate intents for the same attempt.
	// retry_payment derives a fresh key per attempt.
	IdempotencyKey string
}

// PaymentIntent represents a gateway payment intent.
type PaymentIntent struct {
	// ID is the gateway intent identifier.
	ID string

	// ClientSecret is used by the frontend to confirm payment.
	ClientSecret string

	AmountCents int64
	Currency    string

	// Status uses the gateway's vocabulary; the reconciler maps it via
	// domain.MapGatewayStatus.
	Status string

	// LatestTransactionID is the gateway transaction backing the current
	// status, when one exists. The reconciler uses it as idempotency key
	// for polled status updates.
	LatestTransactionID string

	// NetReceivedCents is the amount net of gateway fees, when reported.
	NetReceivedCents int64

	Metadata  map[string]string
	CreatedAt time.Time

	// LastPaymentError contains details if payment failed.
	LastPaymentError *PaymentError
}

// PaymentError contains details about a failed payment attempt.
type PaymentError struct {
	Code        string
	Message     string
	DeclineCode string
}
