package notify

import (
	"context"
	"time"
)

// EventType names the order events the core announces.
type EventType string

const (
	EventOrderCreated     EventType = "order.created"
	EventOrderConfirmed   EventType = "order.confirmed"
	EventOrderShipped     EventType = "order.shipped"
	EventOrderDelivered   EventType = "order.delivered"
	EventOrderCancelled   EventType = "order.cancelled"
	EventPaymentApproved  EventType = "payment.approved"
	EventPaymentRejected  EventType = "payment.rejected"
	EventPaymentRefunded  EventType = "payment.refunded"
	EventTrackingUpdated  EventType = "tracking.updated"
	EventMessageRequested EventType = "message.requested"
)

// Event describes an order-relevant occurrence. The chat/messaging system
// consumes these; the core never implements messaging itself.
type Event struct {
	Type        EventType `json:"type"`
	OrderID     string    `json:"order_id"`
	OrderNumber string    `json:"order_number"`
	CustomerID  string    `json:"customer_id,omitempty"`
	SupplierID  string    `json:"supplier_id,omitempty"`
	Message     string    `json:"message,omitempty"`
	OccurredAt  time.Time `json:"occurred_at"`
}

// Dispatcher delivers order events to the messaging boundary.
// Dispatch failures must never fail the order operation that produced the
// event; callers log and continue.
// Implementations: NATSDispatcher, MockDispatcher.
type Dispatcher interface {
	Dispatch(ctx context.Context, event Event) error
}
