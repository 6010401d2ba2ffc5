package domain

import (
	"fmt"
	"time"
)

// PaymentOutcome classifies what applying a gateway event did to an order.
type PaymentOutcome string

const (
	// OutcomeApplied means the event advanced the payment state.
	OutcomeApplied PaymentOutcome = "applied"

	// OutcomeDuplicate means the event's transaction was already applied.
	// Duplicates are a success to the caller, never an error.
	OutcomeDuplicate PaymentOutcome = "duplicate"

	// OutcomeOutOfOrder means the event represents an earlier gateway
	// state than the one already recorded. Logged and discarded.
	OutcomeOutOfOrder PaymentOutcome = "out_of_order"

	// OutcomeStaleIntent means the event belongs to an intent invalidated
	// by a retry_payment command and must never resurrect state.
	OutcomeStaleIntent PaymentOutcome = "stale_intent"
)

// ReconcilePayment applies a gateway payment event to the order's payment
// state. The external transaction ID is the idempotency key: re-applying
// an already-seen transaction is a no-op reported as OutcomeDuplicate.
// Events for invalidated intents and events that do not represent a
// strictly later state in the payment partial order are discarded without
// mutation.
//
// The order status is never touched here: a rejected or failed payment
// leaves the order re-attemptable, and approval alone does not advance
// fulfillment.
func (o *Order) ReconcilePayment(ev GatewayEvent, now time.Time) PaymentOutcome {
	if ev.ExternalTransactionID != "" && o.Payment.Applied(ev.ExternalTransactionID) {
		return OutcomeDuplicate
	}
	if ev.IntentID != "" && o.Payment.IntentInvalidated(ev.IntentID) {
		return OutcomeStaleIntent
	}

	newStatus := MapGatewayStatus(ev.Status)
	if newStatus.Rank() <= o.PaymentStatus.Rank() {
		return OutcomeOutOfOrder
	}

	o.PaymentStatus = newStatus
	if ev.ExternalTransactionID != "" {
		o.Payment.TransactionID = ev.ExternalTransactionID
		o.Payment.AppliedTransactionIDs = append(o.Payment.AppliedTransactionIDs, ev.ExternalTransactionID)
	}
	o.Payment.StatusDetail = ev.Status
	o.Payment.TransactionAmountCents = ev.TransactionAmountCents
	o.Payment.NetReceivedCents = ev.NetReceivedCents
	o.Payment.LastEventAt = ev.Timestamp
	if len(ev.Raw) > 0 {
		o.Payment.Raw = ev.Raw
	}
	if ev.IntentID != "" && o.Payment.IntentID == "" {
		o.Payment.IntentID = ev.IntentID
	}

	o.appendHistory(o.Status, fmt.Sprintf("payment %s", newStatus), System(), now)
	return OutcomeApplied
}

// FreezeCommission writes the settlement snapshot exactly once. Returns
// false without mutation if commission details are already frozen.
func (o *Order) FreezeCommission(details *CommissionDetails, now time.Time) bool {
	if o.Commission != nil {
		return false
	}
	o.Commission = details
	o.appendHistory(o.Status, "commission frozen", System(), now)
	return true
}

// ReplacePaymentIntent starts a fresh payment attempt: the current intent
// is invalidated so its late webhooks are discarded, the new intent
// becomes active and the payment status returns to pending.
func (o *Order) ReplacePaymentIntent(actor Actor, newIntentID string, now time.Time) {
	if o.Payment.IntentID != "" {
		o.Payment.InvalidatedIntentIDs = append(o.Payment.InvalidatedIntentIDs, o.Payment.IntentID)
	}
	o.Payment.IntentID = newIntentID
	o.PaymentStatus = PaymentPending
	o.Payment.StatusDetail = ""
	o.appendHistory(o.Status, "payment retried with new intent", actor, now)
}
