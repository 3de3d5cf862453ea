package services

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

const meterName = "github.com/KhangNguyen-1412/freshfood-ecommerce-sub000/internal/services"

// Checkout outcomes reported on settlement.checkouts.
const (
	checkoutOutcomeCreated            = "created"
	checkoutOutcomeInsufficientStock  = "insufficient_stock"
	checkoutOutcomeConfirmationFailed = "confirmation_failed"
	checkoutOutcomeProviderRejected   = "provider_rejected"
	checkoutOutcomeSettlementFailed   = "settlement_failed"

	shortageStageCheckout     = "checkout"
	shortageStageConfirmation = "confirmation"
	shortageStageTransition   = "transition"

	callbackCodeUnprocessed = "unprocessed"
)

// settlementMetrics counts checkout, stock and callback outcomes. Instruments that fail to
// register are replaced with no-ops so recording never fails a settlement.
type settlementMetrics struct {
	checkouts metric.Int64Counter
	shortages metric.Int64Counter
	callbacks metric.Int64Counter
}

func newSettlementMetrics(meter metric.Meter, logger func(context.Context, string, map[string]any)) settlementMetrics {
	if meter == nil {
		meter = otel.GetMeterProvider().Meter(meterName)
	}
	counter := func(name, description string) metric.Int64Counter {
		c, err := meter.Int64Counter(name, metric.WithDescription(description))
		if err != nil {
			logger(context.Background(), "metrics.register.failed", map[string]any{
				"instrument": name,
				"error":      err.Error(),
			})
			return noop.Int64Counter{}
		}
		return c
	}
	return settlementMetrics{
		checkouts: counter("settlement.checkouts", "Checkout attempts by payment method and outcome"),
		shortages: counter("settlement.stock.shortages", "Stock reservations rejected for insufficient stock"),
		callbacks: counter("settlement.callbacks", "Gateway callbacks by channel and acknowledgement code"),
	}
}

func (m settlementMetrics) recordCheckout(ctx context.Context, method, outcome string) {
	m.checkouts.Add(ctx, 1, metric.WithAttributes(
		attribute.String("method", method),
		attribute.String("outcome", outcome),
	))
}

func (m settlementMetrics) recordShortage(ctx context.Context, stage string) {
	m.shortages.Add(ctx, 1, metric.WithAttributes(attribute.String("stage", stage)))
}

func (m settlementMetrics) recordCallback(ctx context.Context, channel, code string) {
	if code == "" {
		code = callbackCodeUnprocessed
	}
	m.callbacks.Add(ctx, 1, metric.WithAttributes(
		attribute.String("channel", channel),
		attribute.String("rsp_code", code),
	))
}
