package domain

import (
	"encoding/json"
	"time"
)

// PaymentStatus is the canonical internal payment status.
type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentInProcess PaymentStatus = "in_process"
	PaymentApproved  PaymentStatus = "approved"
	PaymentRejected  PaymentStatus = "rejected"
	PaymentRefunded  PaymentStatus = "refunded"
	PaymentFailed    PaymentStatus = "failed"
)

// paymentRank orders payment statuses for out-of-order event detection:
// pending < in_process < {approved, rejected, failed} < refunded.
// A gateway event is only applied if it represents a strictly later state.
var paymentRank = map[PaymentStatus]int{
	PaymentPending:   0,
	PaymentInProcess: 1,
	PaymentApproved:  2,
	PaymentRejected:  2,
	PaymentFailed:    2,
	PaymentRefunded:  3,
}

// Rank returns the status position in the reconciliation partial order.
func (s PaymentStatus) Rank() int {
	return paymentRank[s]
}

// Retryable reports whether a customer may start a new payment attempt
// while the order is still pending.
func (s PaymentStatus) Retryable() bool {
	return s == PaymentPending || s == PaymentRejected || s == PaymentFailed
}

// MapGatewayStatus translates the gateway status vocabulary to the internal
// payment status. Unrecognized values map to failed, never to approved.
func MapGatewayStatus(gatewayStatus string) PaymentStatus {
	switch gatewayStatus {
	case "approved", "succeeded":
		return PaymentApproved
	case "pending":
		return PaymentPending
	case "in_process", "processing":
		return PaymentInProcess
	case "rejected":
		return PaymentRejected
	case "refunded":
		return PaymentRefunded
	default:
		return PaymentFailed
	}
}

// PaymentDetails holds the gateway-facing payment state of an order.
// Raw carries gateway fields the core does not interpret.
type PaymentDetails struct {
	Method string `json:"method,omitempty"`

	// IntentID is the active gateway payment intent. A retry_payment
	// command replaces it and moves the old value to InvalidatedIntentIDs
	// so a late webhook for an abandoned intent cannot resurrect state.
	IntentID             string   `json:"intent_id,omitempty"`
	InvalidatedIntentIDs []string `json:"invalidated_intent_ids,omitempty"`

	// TransactionID is the external transaction of the last applied event.
	// AppliedTransactionIDs is the idempotency ledger: an event whose
	// transaction ID appears here is a duplicate and is not re-applied.
	TransactionID         string   `json:"transaction_id,omitempty"`
	AppliedTransactionIDs []string `json:"applied_transaction_ids,omitempty"`

	StatusDetail           string          `json:"status_detail,omitempty"`
	TransactionAmountCents int64           `json:"transaction_amount_cents,omitempty"`
	NetReceivedCents       int64           `json:"net_received_cents,omitempty"`
	LastEventAt            time.Time       `json:"last_event_at,omitempty"`
	Raw                    json.RawMessage `json:"raw,omitempty"`
}

// Applied reports whether the given external transaction has already been
// reconciled onto the order.
func (p *PaymentDetails) Applied(externalTransactionID string) bool {
	for _, id := range p.AppliedTransactionIDs {
		if id == externalTransactionID {
			return true
		}
	}
	return false
}

// IntentInvalidated reports whether the given intent was abandoned by a
// retry_payment command.
func (p *PaymentDetails) IntentInvalidated(intentID string) bool {
	for _, id := range p.InvalidatedIntentIDs {
		if id == intentID {
			return true
		}
	}
	return false
}

// GatewayEvent is a payment notification from the gateway, delivered via
// webhook or synthesized by the status poller. Delivery is at-least-once;
// ExternalTransactionID is the idempotency key.
type GatewayEvent struct {
	// ExternalReference identifies the order the gateway charged.
	ExternalReference string `json:"external_reference"`

	// ExternalTransactionID is the gateway's transaction identifier and
	// the idempotency key for event application.
	ExternalTransactionID string `json:"external_transaction_id"`

	// IntentID is the gateway payment intent the transaction belongs to.
	IntentID string `json:"intent_id,omitempty"`

	// Status uses the gateway's vocabulary; see MapGatewayStatus.
	Status string `json:"status"`

	TransactionAmountCents int64     `json:"transaction_amount_cents"`
	NetReceivedCents       int64     `json:"net_received_cents"`
	Timestamp              time.Time `json:"timestamp"`

	// Raw is the full gateway payload, stored opaquely on the order.
	Raw json.RawMessage `json:"-"`
}
