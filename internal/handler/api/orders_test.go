package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dukerupert/vanir/internal/domain"
	"github.com/dukerupert/vanir/internal/gateway"
	"github.com/dukerupert/vanir/internal/handler/api"
	"github.com/dukerupert/vanir/internal/memstore"
	"github.com/dukerupert/vanir/internal/middleware"
	"github.com/dukerupert/vanir/internal/notify"
	"github.com/dukerupert/vanir/internal/router"
	"github.com/dukerupert/vanir/internal/service"
)

type fixture struct {
	store      *memstore.OrderStore
	provider   *gateway.MockProvider
	dispatcher *notify.MockDispatcher
	server     http.Handler
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := memstore.New()
	provider := gateway.NewMockProvider()
	dispatcher := notify.NewMockDispatcher()
	directory := service.NewMockDirectory()

	orders := service.NewOrderService(store, provider, directory, dispatcher, logger)
	fulfillment := service.NewFulfillmentService(store, provider, dispatcher, logger)
	h := api.NewOrderHandler(orders, fulfillment)

	r := router.New(middleware.WithActor)
	r.Post("/api/v1/orders", h.Create)
	r.Get("/api/v1/orders/{id}", h.Get)
	r.Get("/api/v1/orders/number/{number}", h.GetByNumber)
	r.Patch("/api/v1/orders/{id}", h.Action)

	return &fixture{store: store, provider: provider, dispatcher: dispatcher, server: r}
}

func (f *fixture) do(t *testing.T, method, path string, actor domain.Actor, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set(middleware.ActorRoleHeader, string(actor.Role))
	if actor.ID != "" {
		req.Header.Set(middleware.ActorIDHeader, actor.ID)
	}
	rec := httptest.NewRecorder()
	f.server.ServeHTTP(rec, req)
	return rec
}

func (f *fixture) seed(t *testing.T) *domain.Order {
	t.Helper()
	now := time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC)
	order := &domain.Order{
		ID:          "ord-1",
		OrderNumber: "ORD-20250602-TEST",
		Customer:    domain.CustomerRef{ID: "cust-1"},
		Items: []domain.OrderItem{
			{Product: domain.ProductRef{ID: "prod-1"}, Supplier: domain.SupplierRef{ID: "sup-a"}, Quantity: 1, UnitPriceCents: 1000},
			{Product: domain.ProductRef{ID: "prod-2"}, Supplier: domain.SupplierRef{ID: "sup-b"}, Quantity: 1, UnitPriceCents: 500},
		},
		SubtotalCents:   1500,
		TotalCents:      1500,
		Status:          domain.OrderPending,
		PaymentStatus:   domain.PaymentPending,
		ShippingMethod:  domain.ShippingHomeDelivery,
		ShippingAddress: &domain.Address{Street: "1 Way", City: "Town", State: "WA", Zip: "98101", Country: "US"},
		Fulfillments: map[string]*domain.SupplierFulfillment{
			"sup-a": {SupplierID: "sup-a", Stage: domain.OrderPending},
			"sup-b": {SupplierID: "sup-b", Stage: domain.OrderPending},
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
	require.NoError(t, f.store.CreateOrder(context.Background(), order))
	return order
}

func decodeOrder(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	order, ok := body["order"].(map[string]any)
	require.True(t, ok, "response missing order: %s", rec.Body.String())
	return order
}

func TestCreateOrderEndpoint(t *testing.T) {
	f := newFixture(t)

	payload := map[string]any{
		"customer": map[string]any{"id": "cust-1", "name": "Ada", "email": "ada@example.com"},
		"items": []map[string]any{
			{
				"product":          map[string]any{"id": "prod-1", "name": "Widget"},
				"supplier":         map[string]any{"id": "sup-a", "name": "Supplier A"},
				"quantity":         2,
				"unit_price_cents": 500,
			},
		},
		"shipping_cents":  250,
		"payment_method":  "card",
		"shipping_method": "home_delivery",
		"shipping_address": map[string]any{
			"street": "1 Way", "city": "Town", "state": "WA", "zip": "98101", "country": "US",
		},
	}

	rec := f.do(t, http.MethodPost, "/api/v1/orders", domain.Customer("cust-1"), payload)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var body struct {
		Order struct {
			ID            string `json:"id"`
			OrderNumber   string `json:"order_number"`
			Status        string `json:"status"`
			PaymentStatus string `json:"payment_status"`
			TotalCents    int64  `json:"total_cents"`
		} `json:"order"`
		ClientSecret string `json:"client_secret"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "pending", body.Order.Status)
	assert.Equal(t, "pending", body.Order.PaymentStatus)
	assert.Equal(t, int64(1250), body.Order.TotalCents)
	assert.NotEmpty(t, body.ClientSecret)
}

func TestCreateOrderEndpoint_RequiresCustomer(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodPost, "/api/v1/orders", domain.Supplier("sup-a"), map[string]any{})
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestGetOrder_DisplayAliases(t *testing.T) {
	f := newFixture(t)
	order := f.seed(t)

	order.PaymentStatus = domain.PaymentApproved
	require.NoError(t, f.store.UpdateOrder(context.Background(), order))

	rec := f.do(t, http.MethodGet, "/api/v1/orders/ord-1", domain.Customer("cust-1"), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	got := decodeOrder(t, rec)
	assert.Equal(t, "paid", got["payment_status"], "approved renders as paid")

	order, err := f.store.GetOrder(context.Background(), "ord-1")
	require.NoError(t, err)
	order.PaymentStatus = domain.PaymentRejected
	require.NoError(t, f.store.UpdateOrder(context.Background(), order))

	rec = f.do(t, http.MethodGet, "/api/v1/orders/ord-1", domain.Customer("cust-1"), nil)
	got = decodeOrder(t, rec)
	assert.Equal(t, "failed", got["payment_status"], "rejected renders as failed")
}

func TestGetOrder_ForeignCustomer(t *testing.T) {
	f := newFixture(t)
	f.seed(t)

	rec := f.do(t, http.MethodGet, "/api/v1/orders/ord-1", domain.Customer("cust-2"), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetOrderByNumber(t *testing.T) {
	f := newFixture(t)
	f.seed(t)

	rec := f.do(t, http.MethodGet, "/api/v1/orders/number/ORD-20250602-TEST", domain.Admin(), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	got := decodeOrder(t, rec)
	assert.Equal(t, "ord-1", got["id"])
}

func TestActionEndpoint_ConfirmFlow(t *testing.T) {
	f := newFixture(t)
	f.seed(t)

	rec := f.do(t, http.MethodPatch, "/api/v1/orders/ord-1", domain.Supplier("sup-a"),
		map[string]any{"action": "confirm"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	got := decodeOrder(t, rec)
	assert.Equal(t, "pending", got["status"])

	rec = f.do(t, http.MethodPatch, "/api/v1/orders/ord-1", domain.Supplier("sup-b"),
		map[string]any{"action": "confirm"})
	require.Equal(t, http.StatusOK, rec.Code)
	got = decodeOrder(t, rec)
	assert.Equal(t, "confirmed", got["status"])

	// Double confirm is an invalid transition, reported as a conflict.
	rec = f.do(t, http.MethodPatch, "/api/v1/orders/ord-1", domain.Supplier("sup-a"),
		map[string]any{"action": "confirm"})
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestActionEndpoint_UpdateStatusShipped(t *testing.T) {
	f := newFixture(t)
	f.seed(t)

	rec := f.do(t, http.MethodPatch, "/api/v1/orders/ord-1", domain.Admin(),
		map[string]any{"action": "confirm"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodPatch, "/api/v1/orders/ord-1", domain.Admin(),
		map[string]any{"action": "update_status", "status": "shipped", "tracking_number": "TRACK-001"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	got := decodeOrder(t, rec)
	assert.Equal(t, "shipped", got["status"])
	assert.Equal(t, "TRACK-001", got["tracking_number"])
}

func TestActionEndpoint_UnknownAction(t *testing.T) {
	f := newFixture(t)
	f.seed(t)

	rec := f.do(t, http.MethodPatch, "/api/v1/orders/ord-1", domain.Admin(),
		map[string]any{"action": "explode"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestActionEndpoint_RetryPayment(t *testing.T) {
	f := newFixture(t)
	order := f.seed(t)
	order.Payment.IntentID = "pi_old"
	order.PaymentStatus = domain.PaymentFailed
	require.NoError(t, f.store.UpdateOrder(context.Background(), order))

	rec := f.do(t, http.MethodPatch, "/api/v1/orders/ord-1", domain.Customer("cust-1"),
		map[string]any{"action": "retry_payment"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var body struct {
		ClientSecret string `json:"client_secret"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.NotEmpty(t, body.ClientSecret)
	assert.Contains(t, f.provider.Cancelled, "pi_old")
}

func TestActionEndpoint_SendMessage(t *testing.T) {
	f := newFixture(t)
	f.seed(t)

	rec := f.do(t, http.MethodPatch, "/api/v1/orders/ord-1", domain.Customer("cust-1"),
		map[string]any{"action": "send_message", "message": "where is my order"})
	require.Equal(t, http.StatusAccepted, rec.Code)

	require.Len(t, f.dispatcher.Events, 1)
	assert.Equal(t, notify.EventMessageRequested, f.dispatcher.Events[0].Type)
}

func TestMissingActorHeader(t *testing.T) {
	f := newFixture(t)
	f.seed(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/orders/ord-1", nil)
	rec := httptest.NewRecorder()
	f.server.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
