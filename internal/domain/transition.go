package domain

import (
	"fmt"
	"time"
)

// Action names the order operations gated by the state machine.
type Action string

const (
	ActionConfirm        Action = "confirm"
	ActionMarkShipped    Action = "mark_shipped"
	ActionMarkDelivered  Action = "mark_delivered"
	ActionCancel         Action = "cancel"
	ActionUpdateTracking Action = "update_tracking"
)

// invalidTransition builds the rejection returned for an action that is
// illegal for the current (status, paymentStatus, role). The message
// carries the current state so the caller can reconcile its view.
func invalidTransition(o *Order, action Action) error {
	return &Error{
		Code: ETRANSITION,
		Op:   fmt.Sprintf("order.%s", action),
		Message: fmt.Sprintf("cannot %s order %s in status %q (payment %q)",
			action, o.OrderNumber, o.Status, o.PaymentStatus),
	}
}

// supplierScope resolves which suppliers an actor's confirm/ship action
// applies to. A supplier acts only on their own subset; admins may act for
// a named supplier or, with an empty supplierID, for all suppliers.
func (o *Order) supplierScope(actor Actor, supplierID string, action Action) ([]string, error) {
	op := fmt.Sprintf("order.%s", action)

	switch actor.Role {
	case RoleSupplier:
		if supplierID != "" && supplierID != actor.ID {
			return nil, Forbidden(op, "suppliers may only act on their own items")
		}
		if !o.HasSupplier(actor.ID) {
			return nil, Forbidden(op, "order contains no items for this supplier")
		}
		return []string{actor.ID}, nil

	case RoleAdmin:
		if supplierID == "" {
			return o.SupplierIDs(), nil
		}
		if !o.HasSupplier(supplierID) {
			return nil, Errorf(EINVALID, op, "order contains no items for supplier %s", supplierID)
		}
		return []string{supplierID}, nil

	default:
		return nil, Forbidden(op, fmt.Sprintf("role %q may not %s orders", actor.Role, action))
	}
}

// Confirm records that a supplier has accepted their subset of the order.
// Allowed for the owning supplier or an admin while the order is pending.
// The order-level status advances to confirmed once every supplier has
// confirmed; the last-to-confirm supplier triggers the transition.
func (o *Order) Confirm(actor Actor, supplierID string, now time.Time) error {
	scope, err := o.supplierScope(actor, supplierID, ActionConfirm)
	if err != nil {
		return err
	}
	if o.Status != OrderPending {
		return invalidTransition(o, ActionConfirm)
	}
	for _, id := range scope {
		if o.Fulfillments[id].Stage != OrderPending {
			return invalidTransition(o, ActionConfirm)
		}
	}

	for _, id := range scope {
		f := o.Fulfillments[id]
		f.Stage = OrderConfirmed
		f.UpdatedAt = now
	}

	if o.allSuppliersAtLeast(OrderConfirmed) {
		o.setStatus(OrderConfirmed, "all suppliers confirmed", actor, now)
	} else {
		o.UpdatedAt = now
	}
	return nil
}

// MarkShipped records that a supplier has shipped their subset. Allowed
// for the owning supplier or an admin while the order is confirmed or
// processing. Home delivery shipments require a tracking number. The
// order-level status advances to shipped once every supplier has shipped.
func (o *Order) MarkShipped(actor Actor, supplierID, trackingNumber string, now time.Time) error {
	scope, err := o.supplierScope(actor, supplierID, ActionMarkShipped)
	if err != nil {
		return err
	}
	if o.Status != OrderConfirmed && o.Status != OrderProcessing {
		return invalidTransition(o, ActionMarkShipped)
	}
	if o.ShippingMethod == ShippingHomeDelivery && trackingNumber == "" {
		return NewValidationError("order.mark_shipped", "tracking_number",
			"tracking number is required to ship a home delivery order")
	}
	if trackingNumber != "" {
		if err := ValidateTrackingNumber(trackingNumber); err != nil {
			return err
		}
	}
	for _, id := range scope {
		if stage := o.Fulfillments[id].Stage; stage == OrderShipped {
			return invalidTransition(o, ActionMarkShipped)
		}
	}

	for _, id := range scope {
		f := o.Fulfillments[id]
		f.Stage = OrderShipped
		if trackingNumber != "" {
			f.TrackingNumber = trackingNumber
		}
		f.UpdatedAt = now
	}
	if trackingNumber != "" {
		o.TrackingNumber = trackingNumber
	}

	if o.allSuppliersAtLeast(OrderShipped) {
		o.setStatus(OrderShipped, "all suppliers shipped", actor, now)
	} else {
		o.UpdatedAt = now
	}
	return nil
}

// MarkDelivered completes the order. Allowed for admins and the system
// (on pickup or delivery confirmation) once the order is shipped.
// Delivery is never recorded against an unpaid order.
func (o *Order) MarkDelivered(actor Actor, now time.Time) error {
	if !actor.isStaff() {
		return Forbidden("order.mark_delivered", fmt.Sprintf("role %q may not mark orders delivered", actor.Role))
	}
	if o.Status != OrderShipped {
		return invalidTransition(o, ActionMarkDelivered)
	}
	if o.PaymentStatus != PaymentApproved {
		return invalidTransition(o, ActionMarkDelivered)
	}

	o.setStatus(OrderDelivered, "order delivered", actor, now)
	return nil
}

// Cancel moves the order to cancelled. Customers may cancel their own
// pending orders; suppliers and admins may cancel pending or confirmed
// orders. Cancellation is a transition, never an erasure.
//
// An unsettled payment intent is invalidated so its late webhooks are
// discarded; without this, a late approval would settle commission onto
// a cancelled order. An approved intent stays active: its refund events
// must still apply.
func (o *Order) Cancel(actor Actor, note string, now time.Time) error {
	const op = "order.cancel"

	switch actor.Role {
	case RoleCustomer:
		if actor.ID != o.Customer.ID {
			return Forbidden(op, "only the order's customer can cancel it")
		}
		if o.Status != OrderPending {
			return invalidTransition(o, ActionCancel)
		}
	case RoleSupplier:
		if !o.HasSupplier(actor.ID) {
			return Forbidden(op, "order contains no items for this supplier")
		}
		if o.Status != OrderPending && o.Status != OrderConfirmed {
			return invalidTransition(o, ActionCancel)
		}
	case RoleAdmin:
		if o.Status != OrderPending && o.Status != OrderConfirmed {
			return invalidTransition(o, ActionCancel)
		}
	default:
		return Forbidden(op, fmt.Sprintf("role %q may not cancel orders", actor.Role))
	}

	if o.Payment.IntentID != "" && o.PaymentStatus != PaymentApproved {
		o.Payment.InvalidatedIntentIDs = append(o.Payment.InvalidatedIntentIDs, o.Payment.IntentID)
		o.Payment.IntentID = ""
	}

	if note == "" {
		note = "order cancelled"
	}
	o.setStatus(OrderCancelled, note, actor, now)
	return nil
}

// UpdateTracking attaches a tracking number to a supplier's shipment
// without changing the order status. Allowed for the owning supplier or
// an admin while the order is confirmed, processing or shipped.
func (o *Order) UpdateTracking(actor Actor, supplierID, trackingNumber string, now time.Time) error {
	scope, err := o.supplierScope(actor, supplierID, ActionUpdateTracking)
	if err != nil {
		return err
	}
	if o.Status != OrderConfirmed && o.Status != OrderProcessing && o.Status != OrderShipped {
		return invalidTransition(o, ActionUpdateTracking)
	}
	if err := ValidateTrackingNumber(trackingNumber); err != nil {
		return err
	}

	for _, id := range scope {
		f := o.Fulfillments[id]
		f.TrackingNumber = trackingNumber
		f.UpdatedAt = now
	}
	o.TrackingNumber = trackingNumber
	o.appendHistory(o.Status, fmt.Sprintf("tracking updated: %s", trackingNumber), actor, now)
	return nil
}

// allSuppliersAtLeast reports whether every supplier's fulfillment has
// reached the given stage.
func (o *Order) allSuppliersAtLeast(stage OrderStatus) bool {
	rank := map[OrderStatus]int{
		OrderPending:   0,
		OrderConfirmed: 1,
		OrderShipped:   2,
	}
	for _, id := range o.SupplierIDs() {
		f, ok := o.Fulfillments[id]
		if !ok || rank[f.Stage] < rank[stage] {
			return false
		}
	}
	return true
}
