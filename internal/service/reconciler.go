package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/dukerupert/vanir/internal/commission"
	"github.com/dukerupert/vanir/internal/domain"
	"github.com/dukerupert/vanir/internal/notify"
	"github.com/dukerupert/vanir/internal/telemetry"
)

// ApplyResult reports what a gateway event did to an order.
type ApplyResult struct {
	Outcome domain.PaymentOutcome
	Order   *domain.Order
}

// PaymentReconciler folds asynchronous gateway payment events into order
// state. Delivery is at-least-once and unordered, so the reconciler is
// idempotent: duplicates and late events are absorbed without mutation and
// reported as a success to the transport.
//
// Commission details are frozen exactly once, the first time an event
// moves the payment to approved.
type PaymentReconciler interface {
	// ApplyEvent applies one gateway event. Discarded events (duplicate,
	// out of order, stale intent) return a nil error with the outcome set;
	// the webhook transport acks them. A version conflict returns ECONFLICT
	// and the caller retries with a fresh read, which ApplyEvent performs
	// itself on each call.
	ApplyEvent(ctx context.Context, event domain.GatewayEvent) (*ApplyResult, error)
}

type paymentReconciler struct {
	store      domain.OrderStore
	calculator commission.Calculator
	dispatcher notify.Dispatcher
	logger     *slog.Logger
	nowFn      func() time.Time
}

// NewPaymentReconciler creates a new PaymentReconciler.
func NewPaymentReconciler(store domain.OrderStore, calculator commission.Calculator, dispatcher notify.Dispatcher, logger *slog.Logger) PaymentReconciler {
	return &paymentReconciler{
		store:      store,
		calculator: calculator,
		dispatcher: dispatcher,
		logger:     logger,
		nowFn:      time.Now,
	}
}

func (r *paymentReconciler) ApplyEvent(ctx context.Context, event domain.GatewayEvent) (*ApplyResult, error) {
	now := r.nowFn()

	order, err := r.store.GetOrder(ctx, event.ExternalReference)
	if err != nil {
		return nil, err
	}

	outcome := order.ReconcilePayment(event, now)
	if outcome != domain.OutcomeApplied {
		r.logger.Info("discarded gateway event",
			"order_id", order.ID,
			"outcome", string(outcome),
			"transaction_id", event.ExternalTransactionID,
			"status", event.Status)
		if telemetry.Business != nil {
			telemetry.Business.PaymentEventsDiscarded.WithLabelValues(string(outcome)).Inc()
		}
		return &ApplyResult{Outcome: outcome, Order: order}, nil
	}

	// First approval freezes the settlement snapshot. A calculator error
	// means the snapshot would not reconcile exactly; nothing is persisted
	// and the event will be retried by the gateway.
	if order.PaymentStatus == domain.PaymentApproved && order.Commission == nil {
		details, err := r.calculator.Calculate(order.Items, order.TotalCents, now)
		if err != nil {
			r.logger.Error("commission calculation failed, aborting freeze",
				"order_id", order.ID,
				"total_cents", order.TotalCents,
				"error", err)
			if telemetry.Business != nil {
				telemetry.Business.CommissionInconsistent.Inc()
			}
			return nil, err
		}
		order.FreezeCommission(details, now)
		if telemetry.Business != nil {
			telemetry.Business.CommissionFrozen.WithLabelValues("gateway").Inc()
		}
	}

	if err := r.store.UpdateOrder(ctx, order); err != nil {
		if domain.IsCode(err, domain.ECONFLICT) && telemetry.Business != nil {
			telemetry.Business.VersionConflicts.WithLabelValues("reconcile").Inc()
		}
		return nil, err
	}

	if telemetry.Business != nil {
		telemetry.Business.PaymentEventsApplied.WithLabelValues(string(order.PaymentStatus)).Inc()
	}
	r.announcePayment(ctx, order, now)

	return &ApplyResult{Outcome: domain.OutcomeApplied, Order: order}, nil
}

// announcePayment emits the notification matching the new payment status.
// Dispatch failures never fail reconciliation.
func (r *paymentReconciler) announcePayment(ctx context.Context, order *domain.Order, now time.Time) {
	var eventType notify.EventType
	switch order.PaymentStatus {
	case domain.PaymentApproved:
		eventType = notify.EventPaymentApproved
	case domain.PaymentRejected, domain.PaymentFailed:
		eventType = notify.EventPaymentRejected
	case domain.PaymentRefunded:
		eventType = notify.EventPaymentRefunded
	default:
		return
	}

	event := notify.Event{
		Type:        eventType,
		OrderID:     order.ID,
		OrderNumber: order.OrderNumber,
		CustomerID:  order.Customer.ID,
		OccurredAt:  now,
	}
	if err := r.dispatcher.Dispatch(ctx, event); err != nil {
		r.logger.Error("failed to dispatch payment event",
			"type", eventType,
			"order_id", order.ID,
			"error", err)
	}
}
