package gateway

import (
	"context"
	"fmt"
	"time"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/client"
	"github.com/stripe/stripe-go/v82/webhook"

	"github.com/dukerupert/vanir/internal/domain"
)

// StripeConfig contains configuration for the Stripe provider.
type StripeConfig struct {
	// APIKey is the Stripe secret key (sk_test_... or sk_live_...).
	APIKey string

	// WebhookSecret is the signing secret from the Stripe dashboard.
	WebhookSecret string
}

// IsTestMode reports whether the configured key is a test key.
func (c StripeConfig) IsTestMode() bool {
	return len(c.APIKey) >= 7 && c.APIKey[:7] == "sk_test"
}

// StripeProvider implements Provider using Stripe.
type StripeProvider struct {
	api    *client.API
	config StripeConfig
}

// Compile-time check that StripeProvider implements Provider.
var _ Provider = (*StripeProvider)(nil)

// NewStripeProvider creates a new Stripe payment provider.
func NewStripeProvider(config StripeConfig) (*StripeProvider, error) {
	if config.APIKey == "" {
		return nil, domain.Invalid("gateway.stripe", "Stripe API key is required")
	}

	api := &client.API{}
	api.Init(config.APIKey, nil)

	return &StripeProvider{
		api:    api,
		config: config,
	}, nil
}

// CreatePaymentIntent creates a Stripe payment intent.
func (s *StripeProvider) CreatePaymentIntent(ctx context.Context, params CreatePaymentIntentParams) (*PaymentIntent, error) {
	piParams := &stripe.PaymentIntentParams{
		Params: stripe.Params{
			Context: ctx,
		},
		Amount:   stripe.Int64(params.AmountCents),
		Currency: stripe.String(params.Currency),
	}
	if params.Description != "" {
		piParams.Description = stripe.String(params.Description)
	}
	if params.CustomerEmail != "" {
		piParams.ReceiptEmail = stripe.String(params.CustomerEmail)
	}
	if params.IdempotencyKey != "" {
		piParams.IdempotencyKey = stripe.String(params.IdempotencyKey)
	}
	for k, v := range params.Metadata {
		piParams.AddMetadata(k, v)
	}

	pi, err := s.api.PaymentIntents.New(piParams)
	if err != nil {
		if _, ok := err.(*stripe.Error); !ok {
			// Not a Stripe response at all; the gateway was unreachable.
			return nil, ErrGatewayUnavailable
		}
		return nil, domain.WrapError(err, domain.EINTERNAL, "gateway.stripe.create_intent",
			"failed to create payment intent")
	}

	return fromStripeIntent(pi), nil
}

// GetPaymentIntent retrieves a Stripe payment intent.
func (s *StripeProvider) GetPaymentIntent(ctx context.Context, paymentIntentID string) (*PaymentIntent, error) {
	pi, err := s.api.PaymentIntents.Get(paymentIntentID, &stripe.PaymentIntentParams{
		Params: stripe.Params{Context: ctx},
	})
	if err != nil {
		if stripeErr, ok := err.(*stripe.Error); ok && stripeErr.HTTPStatusCode == 404 {
			return nil, ErrIntentNotFound
		}
		return nil, domain.WrapError(err, domain.EINTERNAL, "gateway.stripe.get_intent",
			fmt.Sprintf("failed to retrieve payment intent %s", paymentIntentID))
	}

	return fromStripeIntent(pi), nil
}

// CancelPaymentIntent cancels an unsettled Stripe payment intent.
// Intents that already reached a terminal state cannot be cancelled;
// Stripe reports that as an error which is surfaced to the caller.
func (s *StripeProvider) CancelPaymentIntent(ctx context.Context, paymentIntentID string) error {
	_, err := s.api.PaymentIntents.Cancel(paymentIntentID, &stripe.PaymentIntentCancelParams{
		Params: stripe.Params{Context: ctx},
	})
	if err != nil {
		return domain.WrapError(err, domain.EINTERNAL, "gateway.stripe.cancel_intent",
			fmt.Sprintf("failed to cancel payment intent %s", paymentIntentID))
	}
	return nil
}

// VerifyWebhookSignature verifies a Stripe webhook signature.
func (s *StripeProvider) VerifyWebhookSignature(payload []byte, signature string, secret string) error {
	if _, err := webhook.ConstructEvent(payload, signature, secret); err != nil {
		return ErrInvalidSignature
	}
	return nil
}

// fromStripeIntent converts a Stripe payment intent to the provider type.
func fromStripeIntent(pi *stripe.PaymentIntent) *PaymentIntent {
	out := &PaymentIntent{
		ID:           pi.ID,
		ClientSecret: pi.ClientSecret,
		AmountCents:  pi.Amount,
		Currency:     string(pi.Currency),
		Status:       string(pi.Status),
		Metadata:     pi.Metadata,
		CreatedAt:    time.Unix(pi.Created, 0),
	}
	if pi.LatestCharge != nil {
		out.LatestTransactionID = pi.LatestCharge.ID
	}
	if pi.LastPaymentError != nil {
		out.LastPaymentError = &PaymentError{
			Code:        string(pi.LastPaymentError.Code),
			Message:     pi.LastPaymentError.Msg,
			DeclineCode: string(pi.LastPaymentError.DeclineCode),
		}
	}
	return out
}
