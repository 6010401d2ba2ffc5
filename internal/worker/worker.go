// Package worker runs the payment status poller: the safety net for
// orders whose gateway webhooks were lost. It periodically asks the
// gateway for the current intent status of stale unsettled orders and
// feeds the answers through the same reconciler the webhooks use.
package worker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/dukerupert/vanir/internal/domain"
	"github.com/dukerupert/vanir/internal/gateway"
	"github.com/dukerupert/vanir/internal/service"
	"github.com/dukerupert/vanir/internal/telemetry"
)

// Config holds poller configuration
type Config struct {
	// PollInterval is how often to scan for unsettled orders
	PollInterval time.Duration

	// SettleAfter is how long an order may sit unsettled before the
	// poller asks the gateway about it. Keeps the poller from racing
	// webhooks that are merely seconds behind.
	SettleAfter time.Duration

	// BatchSize caps how many orders one cycle reconciles
	BatchSize int

	// MaxConcurrency is the maximum number of gateway lookups in flight
	MaxConcurrency int
}

// Poller reconciles stale unsettled orders against the gateway.
type Poller struct {
	config     Config
	store      domain.OrderStore
	provider   gateway.Provider
	reconciler service.PaymentReconciler
	logger     *slog.Logger
}

// NewPoller creates a new payment status poller
func NewPoller(store domain.OrderStore, provider gateway.Provider, reconciler service.PaymentReconciler, config Config, logger *slog.Logger) *Poller {
	if config.PollInterval == 0 {
		config.PollInterval = 5 * time.Minute
	}
	if config.SettleAfter == 0 {
		config.SettleAfter = 15 * time.Minute
	}
	if config.BatchSize == 0 {
		config.BatchSize = 50
	}
	if config.MaxConcurrency == 0 {
		config.MaxConcurrency = 5
	}

	return &Poller{
		config:     config,
		store:      store,
		provider:   provider,
		reconciler: reconciler,
		logger:     logger,
	}
}

// Start runs poll cycles until the context is cancelled
func (p *Poller) Start(ctx context.Context) error {
	p.logger.Info("payment poller starting",
		"poll_interval", p.config.PollInterval,
		"settle_after", p.config.SettleAfter,
		"batch_size", p.config.BatchSize,
	)

	ticker := time.NewTicker(p.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("payment poller shutting down")
			return ctx.Err()
		case <-ticker.C:
			p.Poll(ctx)
		}
	}
}

// Poll runs a single reconciliation cycle.
func (p *Poller) Poll(ctx context.Context) {
	if telemetry.Business != nil {
		telemetry.Business.PollerRuns.Inc()
	}

	cutoff := time.Now().Add(-p.config.SettleAfter)
	orders, err := p.store.ListUnsettled(ctx, cutoff, p.config.BatchSize)
	if err != nil {
		p.logger.Error("failed to list unsettled orders", "error", err)
		return
	}
	if len(orders) == 0 {
		return
	}
	p.logger.Info("reconciling unsettled orders", "count", len(orders))

	// Semaphore for concurrency control
	sem := make(chan struct{}, p.config.MaxConcurrency)
	var wg sync.WaitGroup
	for _, order := range orders {
		sem <- struct{}{}
		wg.Add(1)
		go func(order *domain.Order) {
			defer func() { <-sem; wg.Done() }()
			p.checkOrder(ctx, order)
		}(order)
	}
	wg.Wait()
}

// checkOrder asks the gateway for the order's intent status and applies
// it through the reconciler.
func (p *Poller) checkOrder(ctx context.Context, order *domain.Order) {
	if order.Payment.IntentID == "" {
		return
	}
	if telemetry.Business != nil {
		telemetry.Business.PollerOrdersChecked.Inc()
	}

	intent, err := p.provider.GetPaymentIntent(ctx, order.Payment.IntentID)
	if err != nil {
		p.logger.Error("failed to fetch payment intent",
			"order_id", order.ID, "intent_id", order.Payment.IntentID, "error", err)
		return
	}

	status, ok := pollStatus(intent.Status)
	if !ok {
		// The customer simply hasn't paid yet; nothing to reconcile.
		return
	}

	event := domain.GatewayEvent{
		ExternalReference:      order.ID,
		ExternalTransactionID:  intent.LatestTransactionID,
		IntentID:               intent.ID,
		Status:                 status,
		TransactionAmountCents: intent.AmountCents,
		NetReceivedCents:       intent.NetReceivedCents,
		Timestamp:              time.Now().UTC(),
	}

	result, err := p.reconciler.ApplyEvent(ctx, event)
	if err != nil {
		p.logger.Error("failed to reconcile polled status",
			"order_id", order.ID, "status", status, "error", err)
		return
	}
	if result.Outcome == domain.OutcomeApplied {
		p.logger.Info("reconciled order from polled status",
			"order_id", order.ID, "payment_status", result.Order.PaymentStatus)
	}
}

// pollStatus maps a polled gateway intent status to the event vocabulary.
// Statuses that only mean "customer has not completed payment" report
// ok=false and are skipped; marking them failed would be wrong.
func pollStatus(intentStatus string) (string, bool) {
	switch intentStatus {
	case "succeeded":
		return "succeeded", true
	case "processing":
		return "processing", true
	case "canceled", "cancelled":
		return "failed", true
	default:
		return "", false
	}
}
