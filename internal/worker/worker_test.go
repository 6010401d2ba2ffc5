package worker_test

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dukerupert/vanir/internal/commission"
	"github.com/dukerupert/vanir/internal/domain"
	"github.com/dukerupert/vanir/internal/gateway"
	"github.com/dukerupert/vanir/internal/memstore"
	"github.com/dukerupert/vanir/internal/notify"
	"github.com/dukerupert/vanir/internal/service"
	"github.com/dukerupert/vanir/internal/worker"
)

func staleOrder(t *testing.T, store *memstore.OrderStore, id, intentID string) *domain.Order {
	t.Helper()
	stale := time.Now().Add(-time.Hour)
	order := &domain.Order{
		ID:          id,
		OrderNumber: "ORD-" + id,
		Customer:    domain.CustomerRef{ID: "cust-1"},
		Items: []domain.OrderItem{
			{Product: domain.ProductRef{ID: "prod-1"}, Supplier: domain.SupplierRef{ID: "sup-a"}, Quantity: 1, UnitPriceCents: 1000},
		},
		SubtotalCents:   1000,
		TotalCents:      1000,
		Status:          domain.OrderPending,
		PaymentStatus:   domain.PaymentPending,
		Payment:         domain.PaymentDetails{IntentID: intentID},
		ShippingMethod:  domain.ShippingHomeDelivery,
		ShippingAddress: &domain.Address{Street: "1 Way", City: "Town", State: "WA", Zip: "98101", Country: "US"},
		Fulfillments: map[string]*domain.SupplierFulfillment{
			"sup-a": {SupplierID: "sup-a", Stage: domain.OrderPending},
		},
		CreatedAt: stale,
		UpdatedAt: stale,
	}
	require.NoError(t, store.CreateOrder(context.Background(), order))
	return order
}

func newPoller(store *memstore.OrderStore, provider *gateway.MockProvider) *worker.Poller {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	calc, _ := commission.NewRateCalculator(0.10, 0.05)
	reconciler := service.NewPaymentReconciler(store, calc, notify.NewMockDispatcher(), logger)
	return worker.NewPoller(store, provider, reconciler, worker.Config{
		SettleAfter: time.Minute,
	}, logger)
}

func TestPoll_ReconcilesSettledIntent(t *testing.T) {
	store := memstore.New()
	staleOrder(t, store, "ord-1", "pi_1")
	provider := gateway.NewMockProvider()
	provider.PaymentIntents["pi_1"] = &gateway.PaymentIntent{
		ID:                  "pi_1",
		Status:              "succeeded",
		AmountCents:         1000,
		NetReceivedCents:    950,
		LatestTransactionID: "ch_1",
	}
	poller := newPoller(store, provider)

	poller.Poll(context.Background())

	order, err := store.GetOrder(context.Background(), "ord-1")
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentApproved, order.PaymentStatus)
	assert.Equal(t, "ch_1", order.Payment.TransactionID)
	assert.NotNil(t, order.Commission)
}

func TestPoll_SkipsUnpaidIntent(t *testing.T) {
	store := memstore.New()
	staleOrder(t, store, "ord-1", "pi_1")
	provider := gateway.NewMockProvider()
	provider.PaymentIntents["pi_1"] = &gateway.PaymentIntent{
		ID:     "pi_1",
		Status: "requires_payment_method",
	}
	poller := newPoller(store, provider)

	poller.Poll(context.Background())

	order, err := store.GetOrder(context.Background(), "ord-1")
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentPending, order.PaymentStatus,
		"an unpaid intent is not a failure, just not settled yet")
	assert.Equal(t, int64(1), order.Version)
}

func TestPoll_SkipsFreshOrders(t *testing.T) {
	store := memstore.New()
	order := staleOrder(t, store, "ord-1", "pi_1")
	order.UpdatedAt = time.Now()
	require.NoError(t, store.UpdateOrder(context.Background(), order))

	provider := gateway.NewMockProvider()
	provider.PaymentIntents["pi_1"] = &gateway.PaymentIntent{ID: "pi_1", Status: "succeeded", LatestTransactionID: "ch_1"}
	poller := newPoller(store, provider)

	poller.Poll(context.Background())

	got, err := store.GetOrder(context.Background(), "ord-1")
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentPending, got.PaymentStatus,
		"orders updated recently are left to the webhook")
}

func TestPoll_DuplicateAgainstWebhook(t *testing.T) {
	store := memstore.New()
	staleOrder(t, store, "ord-1", "pi_1")
	provider := gateway.NewMockProvider()
	provider.PaymentIntents["pi_1"] = &gateway.PaymentIntent{
		ID: "pi_1", Status: "succeeded", AmountCents: 1000, LatestTransactionID: "ch_1",
	}
	poller := newPoller(store, provider)

	poller.Poll(context.Background())
	poller.Poll(context.Background())

	order, err := store.GetOrder(context.Background(), "ord-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"ch_1"}, order.Payment.AppliedTransactionIDs,
		"the transaction ledger dedupes poller and webhook alike")
}
