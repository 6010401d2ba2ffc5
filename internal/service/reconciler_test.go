package service_test

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
	"github.com/dukerupert/vanir/internal/memstore"
	"github.com/dukerupert/vanir/internal/notify"
	"github.com/dukerupert/vanir/internal/service"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// seedOrder stores a pending two-supplier home delivery order:
// sup-a 1000 cents, sup-b 500 cents, total 1500.
func seedOrder(t *testing.T, store *memstore.OrderStore) *domain.Order {
	t.Helper()
	now := time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC)
	order := &domain.Order{
		ID:          "ord-1",
		OrderNumber: "ORD-20250602-TEST",
		Customer:    domain.CustomerRef{ID: "cust-1", Email: "c@example.com"},
		Items: []domain.OrderItem{
			{
				Product:        domain.ProductRef{ID: "prod-1", Name: "Widget"},
				Supplier:       domain.SupplierRef{ID: "sup-a"},
				Quantity:       2,
				UnitPriceCents: 500,
			},
			{
				Product:        domain.ProductRef{ID: "prod-2", Name: "Gadget"},
				Supplier:       domain.SupplierRef{ID: "sup-b"},
				Quantity:       1,
				UnitPriceCents: 500,
			},
		},
		SubtotalCents:  1500,
		TotalCents:     1500,
		Status:         domain.OrderPending,
		PaymentStatus:  domain.PaymentPending,
		Payment:        domain.PaymentDetails{IntentID: "pi_1"},
		ShippingMethod: domain.ShippingHomeDelivery,
		ShippingAddress: &domain.Address{
			Street: "1 Way", City: "Town", State: "WA", Zip: "98101", Country: "US",
		},
		Fulfillments: map[string]*domain.SupplierFulfillment{
			"sup-a": {SupplierID: "sup-a", Stage: domain.OrderPending},
			"sup-b": {SupplierID: "sup-b", Stage: domain.OrderPending},
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
	require.NoError(t, store.CreateOrder(context.Background(), order))
	return order
}

func approvedEvent(txn string) domain.GatewayEvent {
	return domain.GatewayEvent{
		ExternalReference:      "ord-1",
		ExternalTransactionID:  txn,
		IntentID:               "pi_1",
		Status:                 "approved",
		TransactionAmountCents: 1500,
		NetReceivedCents:       1425,
		Timestamp:              time.Date(2025, 6, 2, 11, 0, 0, 0, time.UTC),
	}
}

func newReconciler(store *memstore.OrderStore, calc commission.Calculator, dispatcher notify.Dispatcher) service.PaymentReconciler {
	return service.NewPaymentReconciler(store, calc, dispatcher, testLogger())
}

func TestApplyEvent_ApprovesAndFreezesCommission(t *testing.T) {
	store := memstore.New()
	seedOrder(t, store)
	calc, err := commission.NewRateCalculator(0.10, 0.05)
	require.NoError(t, err)
	dispatcher := notify.NewMockDispatcher()
	reconciler := newReconciler(store, calc, dispatcher)

	result, err := reconciler.ApplyEvent(context.Background(), approvedEvent("txn_1"))
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeApplied, result.Outcome)

	got, err := store.GetOrder(context.Background(), "ord-1")
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentApproved, got.PaymentStatus)
	assert.Equal(t, domain.OrderPending, got.Status, "payment approval never advances order status")
	assert.Equal(t, "txn_1", got.Payment.TransactionID)
	assert.Equal(t, int64(2), got.Version)

	require.NotNil(t, got.Commission)
	c := got.Commission
	assert.Equal(t, int64(150), c.PlatformFeeCents)
	assert.Equal(t, int64(75), c.ProcessingFeeCents)
	assert.Equal(t, int64(900), c.SupplierEarningsCents["sup-a"])
	assert.Equal(t, int64(450), c.SupplierEarningsCents["sup-b"])

	var earningsSum int64
	for _, e := range c.SupplierEarningsCents {
		earningsSum += e
	}
	assert.Equal(t, got.TotalCents, c.PlatformNetCents+c.ProcessingFeeCents+earningsSum)

	assert.Equal(t, []notify.EventType{notify.EventPaymentApproved}, dispatcher.TypesDispatched())
}

func TestApplyEvent_DuplicateTransactionIsNoOp(t *testing.T) {
	store := memstore.New()
	seedOrder(t, store)
	calc := commission.NewMockCalculator()
	dispatcher := notify.NewMockDispatcher()
	reconciler := newReconciler(store, calc, dispatcher)

	_, err := reconciler.ApplyEvent(context.Background(), approvedEvent("txn_1"))
	require.NoError(t, err)

	result, err := reconciler.ApplyEvent(context.Background(), approvedEvent("txn_1"))
	require.NoError(t, err, "duplicates are a success, not an error")
	assert.Equal(t, domain.OutcomeDuplicate, result.Outcome)

	got, err := store.GetOrder(context.Background(), "ord-1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), got.Version, "duplicate must not write")
	assert.Equal(t, 1, calc.Calls, "commission is frozen exactly once")
	assert.Len(t, dispatcher.Events, 1)
}

func TestApplyEvent_OutOfOrderEventDiscarded(t *testing.T) {
	store := memstore.New()
	seedOrder(t, store)
	reconciler := newReconciler(store, commission.NewMockCalculator(), notify.NewMockDispatcher())

	_, err := reconciler.ApplyEvent(context.Background(), approvedEvent("txn_1"))
	require.NoError(t, err)

	// A late in_process event for an earlier gateway state must not
	// regress the approved payment.
	late := approvedEvent("txn_2")
	late.Status = "in_process"
	result, err := reconciler.ApplyEvent(context.Background(), late)
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeOutOfOrder, result.Outcome)

	got, err := store.GetOrder(context.Background(), "ord-1")
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentApproved, got.PaymentStatus)
}

func TestApplyEvent_RefundSupersedesApproval(t *testing.T) {
	store := memstore.New()
	seedOrder(t, store)
	reconciler := newReconciler(store, commission.NewMockCalculator(), notify.NewMockDispatcher())

	_, err := reconciler.ApplyEvent(context.Background(), approvedEvent("txn_1"))
	require.NoError(t, err)

	refund := approvedEvent("txn_2")
	refund.Status = "refunded"
	result, err := reconciler.ApplyEvent(context.Background(), refund)
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeApplied, result.Outcome)

	got, err := store.GetOrder(context.Background(), "ord-1")
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentRefunded, got.PaymentStatus)
}

func TestApplyEvent_StaleIntentDiscarded(t *testing.T) {
	store := memstore.New()
	order := seedOrder(t, store)
	reconciler := newReconciler(store, commission.NewMockCalculator(), notify.NewMockDispatcher())

	order.Payment.InvalidatedIntentIDs = []string{"pi_old"}
	require.NoError(t, store.UpdateOrder(context.Background(), order))

	stale := approvedEvent("txn_1")
	stale.IntentID = "pi_old"
	result, err := reconciler.ApplyEvent(context.Background(), stale)
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeStaleIntent, result.Outcome)

	got, err := store.GetOrder(context.Background(), "ord-1")
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentPending, got.PaymentStatus)
	assert.Nil(t, got.Commission)
}

func TestApplyEvent_CalculatorFailureAbortsFreeze(t *testing.T) {
	store := memstore.New()
	seedOrder(t, store)
	calc := commission.NewMockCalculator()
	calc.CalculateFunc = func(items []domain.OrderItem, totalCents int64, now time.Time) (*domain.CommissionDetails, error) {
		return nil, commission.ErrInconsistentCommission
	}
	reconciler := newReconciler(store, calc, notify.NewMockDispatcher())

	_, err := reconciler.ApplyEvent(context.Background(), approvedEvent("txn_1"))
	require.Error(t, err)

	got, err := store.GetOrder(context.Background(), "ord-1")
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentPending, got.PaymentStatus, "nothing is persisted when the freeze aborts")
	assert.Equal(t, int64(1), got.Version)
}

func TestApplyEvent_RejectedPaymentKeepsOrderOpen(t *testing.T) {
	store := memstore.New()
	seedOrder(t, store)
	dispatcher := notify.NewMockDispatcher()
	reconciler := newReconciler(store, commission.NewMockCalculator(), dispatcher)

	rejected := approvedEvent("txn_1")
	rejected.Status = "rejected"
	result, err := reconciler.ApplyEvent(context.Background(), rejected)
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeApplied, result.Outcome)

	got, err := store.GetOrder(context.Background(), "ord-1")
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentRejected, got.PaymentStatus)
	assert.Equal(t, domain.OrderPending, got.Status, "rejection leaves the order re-attemptable")
	assert.Nil(t, got.Commission)
	assert.True(t, got.PaymentStatus.Retryable())
	assert.Equal(t, []notify.EventType{notify.EventPaymentRejected}, dispatcher.TypesDispatched())
}

func TestApplyEvent_UnknownOrder(t *testing.T) {
	store := memstore.New()
	reconciler := newReconciler(store, commission.NewMockCalculator(), notify.NewMockDispatcher())

	ev := approvedEvent("txn_1")
	ev.ExternalReference = "missing"
	_, err := reconciler.ApplyEvent(context.Background(), ev)
	assert.ErrorIs(t, err, domain.ErrOrderNotFound)
}
