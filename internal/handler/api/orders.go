// Package api implements the JSON order API.
package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/dukerupert/vanir/internal/domain"
	"github.com/dukerupert/vanir/internal/handler"
	"github.com/dukerupert/vanir/internal/middleware"
	"github.com/dukerupert/vanir/internal/service"
)

// OrderHandler serves the order endpoints.
type OrderHandler struct {
	orders      service.OrderService
	fulfillment service.FulfillmentService
}

// NewOrderHandler creates a new OrderHandler.
func NewOrderHandler(orders service.OrderService, fulfillment service.FulfillmentService) *OrderHandler {
	return &OrderHandler{orders: orders, fulfillment: fulfillment}
}

// createOrderRequest is the checkout payload.
type createOrderRequest struct {
	Customer       domain.CustomerRef    `json:"customer"`
	Items          []domain.OrderItem    `json:"items"`
	DiscountCents  int64                 `json:"discount_cents"`
	ShippingCents  int64                 `json:"shipping_cents"`
	Currency       string                `json:"currency"`
	PaymentMethod  string                `json:"payment_method"`
	ShippingMethod domain.ShippingMethod `json:"shipping_method"`
	ShippingAddr   *domain.Address       `json:"shipping_address"`
	PickupDate     string                `json:"pickup_date"` // YYYY-MM-DD
}

// actionRequest is the payload of the PATCH order command endpoint.
type actionRequest struct {
	Action         string `json:"action"`
	SupplierID     string `json:"supplier_id"`
	Status         string `json:"status"`
	TrackingNumber string `json:"tracking_number"`
	Note           string `json:"note"`
	Message        string `json:"message"`
}

// orderView is the read model of an order. Payment status uses the
// display vocabulary: approved renders as paid, rejected as failed.
type orderView struct {
	*domain.Order
	PaymentStatus string `json:"payment_status"`
}

func newOrderView(order *domain.Order) orderView {
	return orderView{Order: order, PaymentStatus: displayPaymentStatus(order.PaymentStatus)}
}

func displayPaymentStatus(status domain.PaymentStatus) string {
	switch status {
	case domain.PaymentApproved:
		return "paid"
	case domain.PaymentRejected:
		return "failed"
	default:
		return string(status)
	}
}

// Create handles POST /api/v1/orders.
func (h *OrderHandler) Create(w http.ResponseWriter, r *http.Request) {
	actor, ok := middleware.GetActor(r.Context())
	if !ok || actor.Role != domain.RoleCustomer {
		handler.ErrorResponse(w, r, domain.Forbidden("order.create", "checkout requires a customer"))
		return
	}

	var req createOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		handler.ErrorResponse(w, r, domain.Invalid("order.create", "invalid JSON payload"))
		return
	}

	params := service.CreateOrderParams{
		Customer:        req.Customer,
		Items:           req.Items,
		DiscountCents:   req.DiscountCents,
		ShippingCents:   req.ShippingCents,
		Currency:        req.Currency,
		PaymentMethod:   req.PaymentMethod,
		ShippingMethod:  req.ShippingMethod,
		ShippingAddress: req.ShippingAddr,
	}
	params.Customer.ID = actor.ID

	if req.PickupDate != "" {
		date, err := time.Parse("2006-01-02", req.PickupDate)
		if err != nil {
			handler.ErrorResponse(w, r, domain.NewValidationError("order.create", "pickup_date", "must be a date in YYYY-MM-DD format"))
			return
		}
		params.PickupDate = &date
	}

	result, err := h.orders.CreateOrder(r.Context(), params)
	if err != nil {
		handler.ErrorResponse(w, r, err)
		return
	}

	handler.JSON(w, http.StatusCreated, struct {
		Order        orderView `json:"order"`
		ClientSecret string    `json:"client_secret"`
	}{newOrderView(result.Order), result.ClientSecret})
}

// Get handles GET /api/v1/orders/{id}.
func (h *OrderHandler) Get(w http.ResponseWriter, r *http.Request) {
	actor, ok := middleware.GetActor(r.Context())
	if !ok {
		handler.ErrorResponse(w, r, domain.Forbidden("order.get", "authentication required"))
		return
	}

	order, err := h.orders.GetOrder(r.Context(), actor, r.PathValue("id"))
	if err != nil {
		handler.ErrorResponse(w, r, err)
		return
	}
	handler.JSON(w, http.StatusOK, struct {
		Order orderView `json:"order"`
	}{newOrderView(order)})
}

// GetByNumber handles GET /api/v1/orders/number/{number}.
func (h *OrderHandler) GetByNumber(w http.ResponseWriter, r *http.Request) {
	actor, ok := middleware.GetActor(r.Context())
	if !ok {
		handler.ErrorResponse(w, r, domain.Forbidden("order.get", "authentication required"))
		return
	}

	order, err := h.orders.GetOrderByNumber(r.Context(), actor, r.PathValue("number"))
	if err != nil {
		handler.ErrorResponse(w, r, err)
		return
	}
	handler.JSON(w, http.StatusOK, struct {
		Order orderView `json:"order"`
	}{newOrderView(order)})
}

// Action handles PATCH /api/v1/orders/{id}: a single command endpoint
// dispatching on the action field.
func (h *OrderHandler) Action(w http.ResponseWriter, r *http.Request) {
	const op = "order.action"

	actor, ok := middleware.GetActor(r.Context())
	if !ok {
		handler.ErrorResponse(w, r, domain.Forbidden(op, "authentication required"))
		return
	}
	orderID := r.PathValue("id")

	var req actionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		handler.ErrorResponse(w, r, domain.Invalid(op, "invalid JSON payload"))
		return
	}

	var (
		order   *domain.Order
		message string
		err     error
	)

	switch req.Action {
	case "confirm":
		order, err = h.fulfillment.Confirm(r.Context(), actor, orderID, req.SupplierID)
		message = "order confirmed"

	case "cancel":
		order, err = h.fulfillment.Cancel(r.Context(), actor, orderID, req.Note)
		message = "order cancelled"

	case "update_status":
		switch req.Status {
		case "shipped":
			order, err = h.fulfillment.MarkShipped(r.Context(), actor, orderID, req.SupplierID, req.TrackingNumber)
			message = "order marked shipped"
		case "delivered":
			order, err = h.fulfillment.MarkDelivered(r.Context(), actor, orderID)
			message = "order marked delivered"
		default:
			err = domain.Errorf(domain.EINVALID, op, "unsupported status update: %q", req.Status)
		}

	case "update_tracking":
		order, err = h.fulfillment.UpdateTracking(r.Context(), actor, orderID, req.SupplierID, req.TrackingNumber)
		message = "tracking updated"

	case "retry_payment":
		var result *service.RetryPaymentResult
		result, err = h.orders.RetryPayment(r.Context(), actor, orderID)
		if err == nil {
			handler.JSON(w, http.StatusOK, struct {
				Message      string    `json:"message"`
				Order        orderView `json:"order"`
				ClientSecret string    `json:"client_secret"`
			}{"payment retry started", newOrderView(result.Order), result.ClientSecret})
			return
		}

	case "send_message":
		err = h.orders.RequestMessage(r.Context(), actor, orderID, req.Message)
		if err == nil {
			handler.JSON(w, http.StatusAccepted, struct {
				Message string `json:"message"`
			}{"message relayed"})
			return
		}

	default:
		err = domain.Errorf(domain.EINVALID, op, "unknown action: %q", req.Action)
	}

	if err != nil {
		handler.ErrorResponse(w, r, err)
		return
	}

	handler.JSON(w, http.StatusOK, struct {
		Message string    `json:"message"`
		Order   orderView `json:"order"`
	}{message, newOrderView(order)})
}
