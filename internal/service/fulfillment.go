package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/dukerupert/vanir/internal/domain"
	"github.com/dukerupert/vanir/internal/gateway"
	"github.com/dukerupert/vanir/internal/notify"
	"github.com/dukerupert/vanir/internal/telemetry"
)

// minPickupWeekdays is how many full weekdays must pass before a pickup
// order can be collected; suppliers need the lead time to prepare.
const minPickupWeekdays = 3

// MinPickupDate returns the earliest allowed pickup date: the day reached
// by counting minPickupWeekdays weekdays forward from now, skipping
// Saturdays and Sundays.
func MinPickupDate(now time.Time) time.Time {
	d := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	weekdays := 0
	for weekdays < minPickupWeekdays {
		d = d.AddDate(0, 0, 1)
		if wd := d.Weekday(); wd != time.Saturday && wd != time.Sunday {
			weekdays++
		}
	}
	return d
}

// FulfillmentService coordinates the physical side of an order: supplier
// confirmations, shipments, tracking, delivery and cancellation. Every
// operation loads the order, applies a state machine transition and writes
// it back under optimistic concurrency; a concurrent writer surfaces as a
// version conflict the caller may retry.
type FulfillmentService interface {
	// Confirm records a supplier's acceptance of their subset. The order
	// becomes confirmed once every supplier has confirmed.
	Confirm(ctx context.Context, actor domain.Actor, orderID, supplierID string) (*domain.Order, error)

	// MarkShipped records a supplier's shipment, with a tracking number
	// required for home delivery. The order becomes shipped once every
	// supplier has shipped.
	MarkShipped(ctx context.Context, actor domain.Actor, orderID, supplierID, trackingNumber string) (*domain.Order, error)

	// MarkDelivered completes a shipped, paid order.
	MarkDelivered(ctx context.Context, actor domain.Actor, orderID string) (*domain.Order, error)

	// Cancel moves the order to cancelled, subject to role rules.
	Cancel(ctx context.Context, actor domain.Actor, orderID, note string) (*domain.Order, error)

	// UpdateTracking attaches a tracking number without changing status.
	UpdateTracking(ctx context.Context, actor domain.Actor, orderID, supplierID, trackingNumber string) (*domain.Order, error)
}

type fulfillmentService struct {
	store      domain.OrderStore
	provider   gateway.Provider
	dispatcher notify.Dispatcher
	logger     *slog.Logger
	nowFn      func() time.Time
}

// NewFulfillmentService creates a new FulfillmentService.
func NewFulfillmentService(store domain.OrderStore, provider gateway.Provider, dispatcher notify.Dispatcher, logger *slog.Logger) FulfillmentService {
	return &fulfillmentService{
		store:      store,
		provider:   provider,
		dispatcher: dispatcher,
		logger:     logger,
		nowFn:      time.Now,
	}
}

func (s *fulfillmentService) Confirm(ctx context.Context, actor domain.Actor, orderID, supplierID string) (*domain.Order, error) {
	now := s.nowFn()
	order, err := s.mutate(ctx, orderID, "confirm", func(o *domain.Order) error {
		return o.Confirm(actor, supplierID, now)
	})
	if err != nil {
		return nil, err
	}

	s.countTransition("confirm", actor)
	if order.Status == domain.OrderConfirmed {
		s.announce(ctx, notify.Event{
			Type:        notify.EventOrderConfirmed,
			OrderID:     order.ID,
			OrderNumber: order.OrderNumber,
			CustomerID:  order.Customer.ID,
			OccurredAt:  now,
		})
	}
	return order, nil
}

func (s *fulfillmentService) MarkShipped(ctx context.Context, actor domain.Actor, orderID, supplierID, trackingNumber string) (*domain.Order, error) {
	now := s.nowFn()
	order, err := s.mutate(ctx, orderID, "mark_shipped", func(o *domain.Order) error {
		return o.MarkShipped(actor, supplierID, trackingNumber, now)
	})
	if err != nil {
		return nil, err
	}

	s.countTransition("mark_shipped", actor)
	if order.Status == domain.OrderShipped {
		s.announce(ctx, notify.Event{
			Type:        notify.EventOrderShipped,
			OrderID:     order.ID,
			OrderNumber: order.OrderNumber,
			CustomerID:  order.Customer.ID,
			SupplierID:  supplierID,
			Message:     trackingNumber,
			OccurredAt:  now,
		})
	}
	return order, nil
}

func (s *fulfillmentService) MarkDelivered(ctx context.Context, actor domain.Actor, orderID string) (*domain.Order, error) {
	now := s.nowFn()
	order, err := s.mutate(ctx, orderID, "mark_delivered", func(o *domain.Order) error {
		return o.MarkDelivered(actor, now)
	})
	if err != nil {
		return nil, err
	}

	s.countTransition("mark_delivered", actor)
	s.announce(ctx, notify.Event{
		Type:        notify.EventOrderDelivered,
		OrderID:     order.ID,
		OrderNumber: order.OrderNumber,
		CustomerID:  order.Customer.ID,
		OccurredAt:  now,
	})
	return order, nil
}

func (s *fulfillmentService) Cancel(ctx context.Context, actor domain.Actor, orderID, note string) (*domain.Order, error) {
	now := s.nowFn()

	var staleIntentID string
	order, err := s.mutate(ctx, orderID, "cancel", func(o *domain.Order) error {
		staleIntentID = o.Payment.IntentID
		if err := o.Cancel(actor, note, now); err != nil {
			return err
		}
		if o.Payment.IntentID != "" {
			// Approved intent stays active for refund events.
			staleIntentID = ""
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	// Cancel the invalidated intent at the gateway best-effort, outside
	// the guarded write. Local invalidation is what actually guards
	// against its late webhooks.
	if staleIntentID != "" {
		if err := s.provider.CancelPaymentIntent(ctx, staleIntentID); err != nil {
			s.logger.Warn("failed to cancel payment intent for cancelled order",
				"order_id", order.ID, "intent_id", staleIntentID, "error", err)
		}
	}

	if telemetry.Business != nil {
		telemetry.Business.OrdersCancelled.WithLabelValues(string(actor.Role)).Inc()
	}
	s.announce(ctx, notify.Event{
		Type:        notify.EventOrderCancelled,
		OrderID:     order.ID,
		OrderNumber: order.OrderNumber,
		CustomerID:  order.Customer.ID,
		Message:     note,
		OccurredAt:  now,
	})
	return order, nil
}

func (s *fulfillmentService) UpdateTracking(ctx context.Context, actor domain.Actor, orderID, supplierID, trackingNumber string) (*domain.Order, error) {
	now := s.nowFn()
	order, err := s.mutate(ctx, orderID, "update_tracking", func(o *domain.Order) error {
		return o.UpdateTracking(actor, supplierID, trackingNumber, now)
	})
	if err != nil {
		return nil, err
	}

	s.countTransition("update_tracking", actor)
	s.announce(ctx, notify.Event{
		Type:        notify.EventTrackingUpdated,
		OrderID:     order.ID,
		OrderNumber: order.OrderNumber,
		CustomerID:  order.Customer.ID,
		SupplierID:  supplierID,
		Message:     trackingNumber,
		OccurredAt:  now,
	})
	return order, nil
}

// mutate runs the load-transition-validate-write cycle shared by every
// fulfillment operation.
func (s *fulfillmentService) mutate(ctx context.Context, orderID, op string, fn func(o *domain.Order) error) (*domain.Order, error) {
	order, err := s.store.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}

	if err := fn(order); err != nil {
		return nil, err
	}
	if err := order.Validate(); err != nil {
		return nil, err
	}

	if err := s.store.UpdateOrder(ctx, order); err != nil {
		if domain.IsCode(err, domain.ECONFLICT) && telemetry.Business != nil {
			telemetry.Business.VersionConflicts.WithLabelValues(op).Inc()
		}
		return nil, err
	}
	return order, nil
}

func (s *fulfillmentService) countTransition(action string, actor domain.Actor) {
	if telemetry.Business != nil {
		telemetry.Business.OrderTransitions.WithLabelValues(action, string(actor.Role)).Inc()
	}
}

// announce dispatches an event; failures are logged and swallowed, the
// order operation already succeeded.
func (s *fulfillmentService) announce(ctx context.Context, event notify.Event) {
	if err := s.dispatcher.Dispatch(ctx, event); err != nil {
		s.logger.Error("failed to dispatch event",
			"type", event.Type,
			"order_id", event.OrderID,
			"error", err)
	}
}
