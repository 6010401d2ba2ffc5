package service

import (
	"context"
	"crypto/rand"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/dukerupert/vanir/internal/domain"
	"github.com/dukerupert/vanir/internal/gateway"
	"github.com/dukerupert/vanir/internal/notify"
	"github.com/dukerupert/vanir/internal/telemetry"
)

// SupplierDirectory resolves supplier pickup locations at checkout.
// Implementations: a postgres-backed directory in production, MockDirectory
// in tests.
type SupplierDirectory interface {
	PickupLocation(ctx context.Context, supplierID string) (*domain.PickupLocation, error)
}

// CreateOrderParams carries everything checkout needs to build an order.
type CreateOrderParams struct {
	Customer       domain.CustomerRef
	Items          []domain.OrderItem
	DiscountCents  int64
	ShippingCents  int64
	Currency       string
	PaymentMethod  string
	ShippingMethod domain.ShippingMethod

	// ShippingAddress is required for home delivery.
	ShippingAddress *domain.Address

	// PickupDate is required for pickup and must allow the supplier at
	// least three weekdays of preparation.
	PickupDate *time.Time
}

// CheckoutResult is the order plus the gateway client secret the frontend
// needs to confirm payment.
type CheckoutResult struct {
	Order        *domain.Order
	ClientSecret string
}

// RetryPaymentResult is the order after a retry_payment command plus the
// fresh client secret.
type RetryPaymentResult struct {
	Order        *domain.Order
	ClientSecret string
}

// OrderService provides order creation, reads and payment retry.
type OrderService interface {
	// CreateOrder validates the checkout request, creates a gateway payment
	// intent and persists the order in pending status.
	CreateOrder(ctx context.Context, params CreateOrderParams) (*CheckoutResult, error)

	// GetOrder retrieves an order, scoped to the actor: customers see only
	// their own orders, suppliers only orders containing their items.
	GetOrder(ctx context.Context, actor domain.Actor, orderID string) (*domain.Order, error)

	// GetOrderByNumber retrieves an order by its human-facing number.
	GetOrderByNumber(ctx context.Context, actor domain.Actor, orderNumber string) (*domain.Order, error)

	// RetryPayment starts a fresh payment attempt for a pending order whose
	// payment is retryable. The prior intent is cancelled and invalidated so
	// its late webhooks cannot resurrect stale state.
	RetryPayment(ctx context.Context, actor domain.Actor, orderID string) (*RetryPaymentResult, error)

	// RequestMessage relays a send_message action to the messaging boundary.
	// The core stores nothing; it only emits the event.
	RequestMessage(ctx context.Context, actor domain.Actor, orderID, message string) error
}

type orderService struct {
	store      domain.OrderStore
	provider   gateway.Provider
	directory  SupplierDirectory
	dispatcher notify.Dispatcher
	validate   *validator.Validate
	logger     *slog.Logger
	nowFn      func() time.Time
}

// NewOrderService creates a new OrderService.
func NewOrderService(store domain.OrderStore, provider gateway.Provider, directory SupplierDirectory, dispatcher notify.Dispatcher, logger *slog.Logger) OrderService {
	return &orderService{
		store:      store,
		provider:   provider,
		directory:  directory,
		dispatcher: dispatcher,
		validate:   validator.New(),
		logger:     logger,
		nowFn:      time.Now,
	}
}

func (s *orderService) CreateOrder(ctx context.Context, params CreateOrderParams) (*CheckoutResult, error) {
	const op = "order.create"
	now := s.nowFn()

	if params.Customer.ID == "" {
		return nil, domain.NewValidationError(op, "customer", "customer is required")
	}
	if len(params.Items) == 0 {
		return nil, domain.NewValidationError(op, "items", "order must contain at least one item")
	}

	order := &domain.Order{
		ID:             uuid.NewString(),
		OrderNumber:    newOrderNumber(now),
		Customer:       params.Customer,
		Items:          params.Items,
		DiscountCents:  params.DiscountCents,
		ShippingCents:  params.ShippingCents,
		ShippingMethod: params.ShippingMethod,
		Fulfillments:   make(map[string]*domain.SupplierFulfillment),
	}
	for _, item := range params.Items {
		order.SubtotalCents += item.LineTotalCents()
	}
	order.TotalCents = order.SubtotalCents - order.DiscountCents + order.ShippingCents
	if order.TotalCents < 0 {
		return nil, domain.Invalid(op, "order total must not be negative")
	}
	for _, id := range order.SupplierIDs() {
		order.Fulfillments[id] = &domain.SupplierFulfillment{
			SupplierID: id,
			Stage:      domain.OrderPending,
			UpdatedAt:  now,
		}
	}

	switch params.ShippingMethod {
	case domain.ShippingHomeDelivery:
		if err := s.validateShippingAddress(params.ShippingAddress); err != nil {
			return nil, err
		}
		order.ShippingAddress = params.ShippingAddress

	case domain.ShippingPickup:
		location, err := s.validatePickup(ctx, order, params.PickupDate, now)
		if err != nil {
			return nil, err
		}
		order.PickupDate = params.PickupDate
		order.PickupLocation = location

	default:
		return nil, domain.Errorf(domain.EINVALID, op, "unknown shipping method: %s", params.ShippingMethod)
	}

	order.Initialize(domain.Customer(params.Customer.ID), now)
	if err := order.Validate(); err != nil {
		return nil, err
	}

	currency := params.Currency
	if currency == "" {
		currency = "usd"
	}
	intent, err := s.provider.CreatePaymentIntent(ctx, gateway.CreatePaymentIntentParams{
		AmountCents:   order.TotalCents,
		Currency:      currency,
		CustomerEmail: params.Customer.Email,
		Description:   fmt.Sprintf("Order %s", order.OrderNumber),
		Metadata: map[string]string{
			"order_id":     order.ID,
			"order_number": order.OrderNumber,
		},
		IdempotencyKey: uuid.NewString(),
	})
	if err != nil {
		return nil, domain.WrapError(err, domain.EPAYMENT, op, "failed to create payment intent")
	}
	order.Payment.Method = params.PaymentMethod
	order.Payment.IntentID = intent.ID

	if err := s.store.CreateOrder(ctx, order); err != nil {
		// The intent is orphaned; cancel it so it cannot settle against an
		// order that was never persisted.
		if cancelErr := s.provider.CancelPaymentIntent(ctx, intent.ID); cancelErr != nil {
			s.logger.Error("failed to cancel orphaned payment intent",
				"intent_id", intent.ID, "error", cancelErr)
		}
		return nil, err
	}

	if telemetry.Business != nil {
		method := string(order.ShippingMethod)
		telemetry.Business.OrdersCreated.WithLabelValues(method).Inc()
		telemetry.Business.OrderValue.WithLabelValues(method).Observe(float64(order.TotalCents))
	}

	s.announce(ctx, notify.Event{
		Type:        notify.EventOrderCreated,
		OrderID:     order.ID,
		OrderNumber: order.OrderNumber,
		CustomerID:  order.Customer.ID,
		OccurredAt:  now,
	})

	return &CheckoutResult{Order: order, ClientSecret: intent.ClientSecret}, nil
}

func (s *orderService) GetOrder(ctx context.Context, actor domain.Actor, orderID string) (*domain.Order, error) {
	order, err := s.store.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if err := scopeRead(actor, order); err != nil {
		return nil, err
	}
	return order, nil
}

func (s *orderService) GetOrderByNumber(ctx context.Context, actor domain.Actor, orderNumber string) (*domain.Order, error) {
	order, err := s.store.GetOrderByNumber(ctx, orderNumber)
	if err != nil {
		return nil, err
	}
	if err := scopeRead(actor, order); err != nil {
		return nil, err
	}
	return order, nil
}

func (s *orderService) RetryPayment(ctx context.Context, actor domain.Actor, orderID string) (*RetryPaymentResult, error) {
	const op = "order.retry_payment"
	now := s.nowFn()

	order, err := s.store.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if actor.Role != domain.RoleCustomer || actor.ID != order.Customer.ID {
		return nil, domain.Forbidden(op, "only the order's customer can retry payment")
	}
	if order.Status != domain.OrderPending || !order.PaymentStatus.Retryable() {
		return nil, ErrRetryNotAllowed
	}

	priorStatus := order.PaymentStatus
	priorIntentID := order.Payment.IntentID

	// Cancel the old intent best-effort. Local invalidation is what
	// actually guards against its late webhooks.
	if priorIntentID != "" {
		if err := s.provider.CancelPaymentIntent(ctx, priorIntentID); err != nil {
			s.logger.Warn("failed to cancel prior payment intent",
				"order_id", order.ID, "intent_id", priorIntentID, "error", err)
		}
	}

	currency := "usd"
	intent, err := s.provider.CreatePaymentIntent(ctx, gateway.CreatePaymentIntentParams{
		AmountCents:   order.TotalCents,
		Currency:      currency,
		CustomerEmail: order.Customer.Email,
		Description:   fmt.Sprintf("Order %s (retry)", order.OrderNumber),
		Metadata: map[string]string{
			"order_id":     order.ID,
			"order_number": order.OrderNumber,
		},
		IdempotencyKey: uuid.NewString(),
	})
	if err != nil {
		return nil, domain.WrapError(err, domain.EPAYMENT, op, "failed to create payment intent")
	}

	order.ReplacePaymentIntent(actor, intent.ID, now)
	if err := s.store.UpdateOrder(ctx, order); err != nil {
		if domain.IsCode(err, domain.ECONFLICT) && telemetry.Business != nil {
			telemetry.Business.VersionConflicts.WithLabelValues("retry_payment").Inc()
		}
		return nil, err
	}

	if telemetry.Business != nil {
		telemetry.Business.PaymentRetries.WithLabelValues(string(priorStatus)).Inc()
	}

	return &RetryPaymentResult{Order: order, ClientSecret: intent.ClientSecret}, nil
}

func (s *orderService) RequestMessage(ctx context.Context, actor domain.Actor, orderID, message string) error {
	const op = "order.send_message"

	order, err := s.store.GetOrder(ctx, orderID)
	if err != nil {
		return err
	}
	if err := scopeRead(actor, order); err != nil {
		return err
	}
	if message == "" {
		return domain.NewValidationError(op, "message", "message must not be empty")
	}

	event := notify.Event{
		Type:        notify.EventMessageRequested,
		OrderID:     order.ID,
		OrderNumber: order.OrderNumber,
		CustomerID:  order.Customer.ID,
		Message:     message,
		OccurredAt:  s.nowFn(),
	}
	if actor.Role == domain.RoleSupplier {
		event.SupplierID = actor.ID
	}
	if err := s.dispatcher.Dispatch(ctx, event); err != nil {
		return domain.WrapError(err, domain.EINTERNAL, op, "failed to relay message request")
	}
	return nil
}

// validateShippingAddress checks a home delivery address, reporting every
// missing field at once.
func (s *orderService) validateShippingAddress(address *domain.Address) error {
	const op = "order.create"

	if address == nil {
		return domain.NewValidationError(op, "shipping_address", "shipping address is required for home delivery")
	}
	err := s.validate.Struct(address)
	if err == nil {
		return nil
	}

	var fieldErr error
	if errs, ok := err.(validator.ValidationErrors); ok {
		for _, fe := range errs {
			fieldErr = domain.AddFieldError(fieldErr,
				fmt.Sprintf("shipping_address.%s", fe.Field()), "field is required")
		}
		return fieldErr
	}
	return domain.WrapError(err, domain.EINTERNAL, op, "address validation failed")
}

// validatePickup enforces the pickup rules: one supplier, a pickup date at
// least three weekdays out, and a resolvable pickup location.
func (s *orderService) validatePickup(ctx context.Context, order *domain.Order, pickupDate *time.Time, now time.Time) (*domain.PickupLocation, error) {
	const op = "order.create"

	suppliers := order.SupplierIDs()
	if len(suppliers) != 1 {
		return nil, ErrPickupMultiSupplier
	}
	if pickupDate == nil {
		return nil, domain.NewValidationError(op, "pickup_date", "pickup date is required for pickup orders")
	}
	if min := MinPickupDate(now); pickupDate.Before(min) {
		return nil, domain.NewValidationError(op, "pickup_date",
			fmt.Sprintf("earliest available pickup date is %s", min.Format("2006-01-02")))
	}

	location, err := s.directory.PickupLocation(ctx, suppliers[0])
	if err != nil {
		return nil, domain.WrapError(err, domain.EINVALID, op, "supplier does not offer pickup")
	}
	return location, nil
}

// scopeRead gates order reads: customers see their own orders, suppliers
// orders containing their items, staff everything.
func scopeRead(actor domain.Actor, order *domain.Order) error {
	const op = "order.get"

	switch actor.Role {
	case domain.RoleCustomer:
		if actor.ID != order.Customer.ID {
			return domain.NotFound(op, "order", order.ID)
		}
	case domain.RoleSupplier:
		if !order.HasSupplier(actor.ID) {
			return domain.NotFound(op, "order", order.ID)
		}
	case domain.RoleAdmin, domain.RoleSystem:
		// unrestricted
	default:
		return domain.Forbidden(op, fmt.Sprintf("role %q may not read orders", actor.Role))
	}
	return nil
}

// announce dispatches an event; failures are logged and swallowed.
func (s *orderService) announce(ctx context.Context, event notify.Event) {
	if err := s.dispatcher.Dispatch(ctx, event); err != nil {
		s.logger.Error("failed to dispatch event",
			"type", event.Type,
			"order_id", event.OrderID,
			"error", err)
	}
}

// newOrderNumber generates a human-facing order number of the form
// ORD-20250602-7KQ2. The random suffix avoids guessable sequences.
func newOrderNumber(now time.Time) string {
	const alphabet = "ABCDEFGHJKMNPQRSTVWXYZ23456789"
	buf := make([]byte, 4)
	rand.Read(buf) //nolint:errcheck
	for i, b := range buf {
		buf[i] = alphabet[int(b)%len(alphabet)]
	}
	return fmt.Sprintf("ORD-%s-%s", now.Format("20060102"), buf)
}
