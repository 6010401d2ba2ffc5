package domain

import (
	"regexp"
	"time"
)

// OrderStatus is the canonical order lifecycle status.
// Wire value equals internal value.
type OrderStatus string

const (
	OrderPending    OrderStatus = "pending"
	OrderConfirmed  OrderStatus = "confirmed"
	OrderProcessing OrderStatus = "processing"
	OrderShipped    OrderStatus = "shipped"
	OrderDelivered  OrderStatus = "delivered"
	OrderCancelled  OrderStatus = "cancelled"
)

// Terminal reports whether no transition may leave this status.
func (s OrderStatus) Terminal() bool {
	return s == OrderDelivered || s == OrderCancelled
}

// ShippingMethod selects how an order is fulfilled to the customer.
type ShippingMethod string

const (
	ShippingHomeDelivery ShippingMethod = "home_delivery"
	ShippingPickup       ShippingMethod = "pickup"
)

// CustomerRef is a weak reference to the purchasing customer.
// The order looks the customer up, it never owns their lifecycle.
type CustomerRef struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone,omitempty"`
}

// SupplierRef is a weak reference to the supplier fulfilling an item.
type SupplierRef struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email,omitempty"`
	Phone string `json:"phone,omitempty"`
}

// ProductRef is a weak reference to the purchased product.
type ProductRef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	SKU  string `json:"sku,omitempty"`
}

// Address is a full shipping address. All fields are required for
// home delivery orders.
type Address struct {
	Street  string `json:"street" validate:"required"`
	City    string `json:"city" validate:"required"`
	State   string `json:"state" validate:"required"`
	Zip     string `json:"zip" validate:"required"`
	Country string `json:"country" validate:"required"`
}

// PickupLocation is read-only display data for pickup orders, resolved
// from the fulfilling supplier at order creation.
type PickupLocation struct {
	SupplierID    string  `json:"supplier_id"`
	Name          string  `json:"name"`
	Address       Address `json:"address"`
	Phone         string  `json:"phone,omitempty"`
	BusinessHours string  `json:"business_hours,omitempty"`
}

// OrderItem is a single purchased line. Insertion order is display order.
type OrderItem struct {
	Product        ProductRef  `json:"product"`
	Supplier       SupplierRef `json:"supplier"`
	Quantity       int32       `json:"quantity"`
	UnitPriceCents int64       `json:"unit_price_cents"`
	Variant        string      `json:"variant,omitempty"`
}

// LineTotalCents is quantity * unit price.
func (i OrderItem) LineTotalCents() int64 {
	return int64(i.Quantity) * i.UnitPriceCents
}

// StatusChange is one entry of the append-only status history.
type StatusChange struct {
	Status    OrderStatus `json:"status"`
	Timestamp time.Time   `json:"timestamp"`
	Note      string      `json:"note,omitempty"`
	ChangedBy string      `json:"changed_by"`
}

// SupplierFulfillment tracks one supplier's progress through their subset
// of a multi-supplier order. The order-level status only advances once
// every supplier has reached at least that stage.
type SupplierFulfillment struct {
	SupplierID     string      `json:"supplier_id"`
	Stage          OrderStatus `json:"stage"`
	TrackingNumber string      `json:"tracking_number,omitempty"`
	UpdatedAt      time.Time   `json:"updated_at"`
}

// CommissionDetails is the frozen settlement snapshot written exactly once
// when payment is approved. Immutable after freezing.
//
// The platform fee is the gross platform share (total * platformFeeRate);
// the processing fee is carved out of it, so the exact split of the order
// total is: supplier earnings + platform net + processing fee.
type CommissionDetails struct {
	PlatformFeeCents      int64            `json:"platform_fee_cents"`
	ProcessingFeeCents    int64            `json:"processing_fee_cents"`
	PlatformNetCents      int64            `json:"platform_net_cents"`
	SupplierEarningsCents map[string]int64 `json:"supplier_earnings_cents"`
	PlatformFeeRate       float64          `json:"platform_fee_rate"`
	ProcessingFeeRate     float64          `json:"processing_fee_rate"`
	FrozenAt              time.Time        `json:"frozen_at"`
}

// Order is the aggregate root for a customer purchase, possibly spanning
// multiple suppliers. It exclusively owns its items and status history;
// customer and supplier references are weak.
//
// Orders are mutated only through the transition methods and the payment
// reconciler, never by direct field writes, and are persisted under
// optimistic concurrency control on Version.
type Order struct {
	ID          string      `json:"id"`
	OrderNumber string      `json:"order_number"`
	Customer    CustomerRef `json:"customer"`
	Items       []OrderItem `json:"items"`

	SubtotalCents int64 `json:"subtotal_cents"`
	DiscountCents int64 `json:"discount_cents"`
	ShippingCents int64 `json:"shipping_cents"`
	TotalCents    int64 `json:"total_cents"`

	Status        OrderStatus    `json:"status"`
	PaymentStatus PaymentStatus  `json:"payment_status"`
	Payment       PaymentDetails `json:"payment"`

	ShippingMethod  ShippingMethod  `json:"shipping_method"`
	ShippingAddress *Address        `json:"shipping_address,omitempty"`
	PickupDate      *time.Time      `json:"pickup_date,omitempty"`
	PickupLocation  *PickupLocation `json:"pickup_location,omitempty"`

	Commission     *CommissionDetails              `json:"commission,omitempty"`
	TrackingNumber string                          `json:"tracking_number,omitempty"`
	Fulfillments   map[string]*SupplierFulfillment `json:"fulfillments"`

	StatusHistory []StatusChange `json:"status_history"`

	Version   int64     `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// trackingNumberPattern accepts 4-40 chars of letters, digits, dash,
// underscore and dot.
var trackingNumberPattern = regexp.MustCompile(`^[A-Za-z0-9\-_.]{4,40}$`)

// ValidateTrackingNumber checks a carrier tracking number format.
func ValidateTrackingNumber(trackingNumber string) error {
	if !trackingNumberPattern.MatchString(trackingNumber) {
		return NewValidationError("order.tracking", "tracking_number",
			"tracking number must be 4-40 characters of letters, digits, '-', '_' or '.'")
	}
	return nil
}

// SupplierIDs returns the distinct supplier IDs across the order's items,
// in first-appearance order.
func (o *Order) SupplierIDs() []string {
	seen := make(map[string]bool, len(o.Items))
	var ids []string
	for _, item := range o.Items {
		if !seen[item.Supplier.ID] {
			seen[item.Supplier.ID] = true
			ids = append(ids, item.Supplier.ID)
		}
	}
	return ids
}

// ItemsFor returns the subset of items fulfilled by the given supplier.
func (o *Order) ItemsFor(supplierID string) []OrderItem {
	var items []OrderItem
	for _, item := range o.Items {
		if item.Supplier.ID == supplierID {
			items = append(items, item)
		}
	}
	return items
}

// HasSupplier reports whether the order contains items for the supplier.
func (o *Order) HasSupplier(supplierID string) bool {
	for _, item := range o.Items {
		if item.Supplier.ID == supplierID {
			return true
		}
	}
	return false
}

// Validate checks the aggregate invariants. It is called on creation and
// after every mutation before the order is written back.
//
// Invariants:
//   - at least one item; every item has quantity >= 1 and unit price >= 0
//   - sum of line totals equals subtotal
//   - total equals subtotal - discount + shipping
//   - home_delivery carries a shipping address, pickup carries a pickup date
//   - a fulfillment entry exists for every supplier with items
func (o *Order) Validate() error {
	const op = "order.validate"

	if len(o.Items) == 0 {
		return Invalid(op, "order must contain at least one item")
	}

	var lineSum int64
	for _, item := range o.Items {
		if item.Quantity < 1 {
			return Invalid(op, "item quantity must be at least 1")
		}
		if item.UnitPriceCents < 0 {
			return Invalid(op, "item unit price must not be negative")
		}
		if item.Supplier.ID == "" {
			return Invalid(op, "item is missing a supplier reference")
		}
		lineSum += item.LineTotalCents()
	}

	if lineSum != o.SubtotalCents {
		return Errorf(EINVALID, op, "item line totals (%d) do not sum to subtotal (%d)", lineSum, o.SubtotalCents)
	}
	if o.SubtotalCents-o.DiscountCents+o.ShippingCents != o.TotalCents {
		return Errorf(EINVALID, op, "subtotal - discount + shipping (%d) does not equal total (%d)",
			o.SubtotalCents-o.DiscountCents+o.ShippingCents, o.TotalCents)
	}

	switch o.ShippingMethod {
	case ShippingHomeDelivery:
		if o.ShippingAddress == nil {
			return NewValidationError(op, "shipping_address", "shipping address is required for home delivery")
		}
		if o.PickupDate != nil {
			return Invalid(op, "home delivery orders must not carry a pickup date")
		}
	case ShippingPickup:
		if o.PickupDate == nil {
			return NewValidationError(op, "pickup_date", "pickup date is required for pickup orders")
		}
		if o.ShippingAddress != nil {
			return Invalid(op, "pickup orders must not carry a shipping address")
		}
	default:
		return Errorf(EINVALID, op, "unknown shipping method: %s", o.ShippingMethod)
	}

	for _, id := range o.SupplierIDs() {
		if _, ok := o.Fulfillments[id]; !ok {
			return Errorf(EINTERNAL, op, "missing fulfillment record for supplier %s", id)
		}
	}

	return nil
}

// Initialize stamps a freshly built order: pending status, pending
// payment, creation timestamps and the opening history entry.
func (o *Order) Initialize(by Actor, now time.Time) {
	o.Status = OrderPending
	o.PaymentStatus = PaymentPending
	o.CreatedAt = now
	o.appendHistory(OrderPending, "order created", by, now)
}

// appendHistory records a status history entry. History is append-only;
// existing entries are never rewritten.
func (o *Order) appendHistory(status OrderStatus, note string, by Actor, now time.Time) {
	o.StatusHistory = append(o.StatusHistory, StatusChange{
		Status:    status,
		Timestamp: now,
		Note:      note,
		ChangedBy: by.String(),
	})
	o.UpdatedAt = now
}

// setStatus advances the order-level status and records history.
func (o *Order) setStatus(status OrderStatus, note string, by Actor, now time.Time) {
	o.Status = status
	o.appendHistory(status, note, by, now)
}
