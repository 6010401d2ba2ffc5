// Package webhook receives asynchronous payment notifications from the
// gateway and feeds them to the payment reconciler.
package webhook

import (
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/stripe/stripe-go/v82"

	"github.com/dukerupert/vanir/internal/domain"
	"github.com/dukerupert/vanir/internal/gateway"
	"github.com/dukerupert/vanir/internal/handler"
	"github.com/dukerupert/vanir/internal/middleware"
	"github.com/dukerupert/vanir/internal/service"
	"github.com/dukerupert/vanir/internal/telemetry"
)

// maxPayloadBytes bounds webhook bodies; gateway events are small.
const maxPayloadBytes = 1 << 16

// applyAttempts is how often a webhook retries a version-conflicted
// reconciliation with a fresh read before giving up and letting the
// gateway redeliver.
const applyAttempts = 3

// GatewayHandler handles payment gateway webhook events.
type GatewayHandler struct {
	provider   gateway.Provider
	reconciler service.PaymentReconciler
	secret     string
}

// NewGatewayHandler creates a new gateway webhook handler.
func NewGatewayHandler(provider gateway.Provider, reconciler service.PaymentReconciler, webhookSecret string) *GatewayHandler {
	return &GatewayHandler{
		provider:   provider,
		reconciler: reconciler,
		secret:     webhookSecret,
	}
}

// HandleWebhook processes an incoming gateway webhook. Delivery is
// at-least-once: duplicates and out-of-order events are acknowledged with
// 200 so the gateway stops redelivering them; only genuine processing
// failures return 5xx.
func (h *GatewayHandler) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	const op = "webhook.gateway"
	start := time.Now()
	logger := middleware.GetLogger(r.Context())

	payload, err := io.ReadAll(io.LimitReader(r.Body, maxPayloadBytes))
	if err != nil {
		handler.ErrorResponse(w, r, domain.Invalid(op, "error reading request body"))
		return
	}

	signature := r.Header.Get("Stripe-Signature")
	if signature == "" {
		handler.ErrorResponse(w, r, domain.Invalid(op, "missing signature"))
		return
	}
	if err := h.provider.VerifyWebhookSignature(payload, signature, h.secret); err != nil {
		logger.Warn("webhook signature verification failed", "error", err)
		handler.ErrorResponse(w, r, domain.Errorf(domain.EUNAUTHORIZED, op, "invalid signature"))
		return
	}

	var event stripe.Event
	if err := json.Unmarshal(payload, &event); err != nil {
		handler.ErrorResponse(w, r, domain.Invalid(op, "invalid JSON payload"))
		return
	}

	eventType := string(event.Type)
	if telemetry.Business != nil {
		telemetry.Business.WebhookReceived.WithLabelValues(eventType).Inc()
		defer func() {
			telemetry.Business.WebhookLatency.WithLabelValues(eventType).Observe(time.Since(start).Seconds())
		}()
	}

	gatewayEvent, ok, err := translateEvent(&event, payload)
	if err != nil {
		handler.ErrorResponse(w, r, err)
		return
	}
	if !ok {
		// Event types the pipeline does not consume are acked untouched.
		logger.Info("ignoring gateway event", "type", eventType, "event_id", event.ID)
		handler.JSON(w, http.StatusOK, map[string]bool{"received": true})
		return
	}

	if err := h.apply(r, gatewayEvent); err != nil {
		if domain.IsCode(err, domain.ENOTFOUND) {
			// Not ours (other environment, deleted order). Ack so the
			// gateway stops retrying; the poller cannot help either.
			logger.Warn("webhook for unknown order",
				"reference", gatewayEvent.ExternalReference, "event_id", event.ID)
			handler.JSON(w, http.StatusOK, map[string]bool{"received": true})
			return
		}
		if telemetry.Business != nil {
			telemetry.Business.WebhookFailed.WithLabelValues(eventType, domain.ErrorCode(err)).Inc()
		}
		logger.Error("webhook processing failed", "event_id", event.ID, "error", err)
		handler.ErrorResponse(w, r, err)
		return
	}

	if telemetry.Business != nil {
		telemetry.Business.WebhookProcessed.WithLabelValues(eventType).Inc()
	}
	handler.JSON(w, http.StatusOK, map[string]bool{"received": true})
}

// apply runs the reconciler, retrying version conflicts with a fresh read.
func (h *GatewayHandler) apply(r *http.Request, event domain.GatewayEvent) error {
	var err error
	for attempt := 0; attempt < applyAttempts; attempt++ {
		_, err = h.reconciler.ApplyEvent(r.Context(), event)
		if err == nil || !domain.IsCode(err, domain.ECONFLICT) {
			return err
		}
	}
	return err
}

// translateEvent maps a gateway event to the internal representation.
// Returns ok=false for event types the pipeline does not consume.
func translateEvent(event *stripe.Event, payload []byte) (domain.GatewayEvent, bool, error) {
	const op = "webhook.gateway"

	var status string
	switch event.Type {
	case "payment_intent.succeeded":
		status = "succeeded"
	case "payment_intent.processing":
		status = "processing"
	case "payment_intent.payment_failed":
		status = "rejected"
	case "payment_intent.canceled":
		status = "failed"
	case "charge.refunded":
		return translateRefund(event, payload)
	default:
		return domain.GatewayEvent{}, false, nil
	}

	if event.Data == nil {
		return domain.GatewayEvent{}, false, domain.Invalid(op, "event is missing its data object")
	}
	var intent stripe.PaymentIntent
	if err := json.Unmarshal(event.Data.Raw, &intent); err != nil {
		return domain.GatewayEvent{}, false, domain.Invalid(op, "malformed payment intent payload")
	}
	orderID := intent.Metadata["order_id"]
	if orderID == "" {
		return domain.GatewayEvent{}, false, domain.Invalid(op, "payment intent is missing order_id metadata")
	}

	ev := domain.GatewayEvent{
		ExternalReference:      orderID,
		IntentID:               intent.ID,
		Status:                 status,
		TransactionAmountCents: intent.Amount,
		NetReceivedCents:       intent.AmountReceived,
		Timestamp:              time.Unix(event.Created, 0).UTC(),
		Raw:                    payload,
	}
	if intent.LatestCharge != nil {
		ev.ExternalTransactionID = intent.LatestCharge.ID
	}
	if ev.ExternalTransactionID == "" {
		// Failed attempts may not carry a charge; the event ID still
		// dedupes redeliveries.
		ev.ExternalTransactionID = event.ID
	}
	return ev, true, nil
}

func translateRefund(event *stripe.Event, payload []byte) (domain.GatewayEvent, bool, error) {
	const op = "webhook.gateway"

	if event.Data == nil {
		return domain.GatewayEvent{}, false, domain.Invalid(op, "event is missing its data object")
	}
	var charge stripe.Charge
	if err := json.Unmarshal(event.Data.Raw, &charge); err != nil {
		return domain.GatewayEvent{}, false, domain.Invalid(op, "malformed charge payload")
	}
	orderID := charge.Metadata["order_id"]
	if orderID == "" && charge.PaymentIntent != nil {
		orderID = charge.PaymentIntent.Metadata["order_id"]
	}
	if orderID == "" {
		return domain.GatewayEvent{}, false, domain.Invalid(op, "charge is missing order_id metadata")
	}

	ev := domain.GatewayEvent{
		ExternalReference:      orderID,
		ExternalTransactionID:  event.ID,
		Status:                 "refunded",
		TransactionAmountCents: charge.AmountRefunded,
		Timestamp:              time.Unix(event.Created, 0).UTC(),
		Raw:                    payload,
	}
	if charge.PaymentIntent != nil {
		ev.IntentID = charge.PaymentIntent.ID
	}
	return ev, true, nil
}
