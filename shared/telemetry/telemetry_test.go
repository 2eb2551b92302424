package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
)

func TestTelemetry_ReusesInstruments(t *testing.T) {
	tel := NewTelemetry(InventoryServiceConfig)

	first, err := tel.counter("stock_reservations_total", "reservations")
	require.NoError(t, err)
	second, err := tel.counter("stock_reservations_total", "reservations")
	require.NoError(t, err)
	assert.Equal(t, first, second)

	h1, err := tel.histogram("stock_reservation_seconds", "latency")
	require.NoError(t, err)
	h2, err := tel.histogram("stock_reservation_seconds", "latency")
	require.NoError(t, err)
	assert.Equal(t, h1, h2)
	assert.Len(t, tel.counters, 1)
	assert.Len(t, tel.histograms, 1)
}

func TestRecord_WithoutTelemetryInContext(t *testing.T) {
	ctx := context.Background()

	assert.Equal(t, "unknown", GetServiceName(ctx))
	assert.NotPanics(t, func() {
		RecordCounter(ctx, "orders_total", "orders", 1, attribute.String("status", "ok"))
		RecordHistogram(ctx, "order_seconds", "latency", 0.2)
	})
}

func TestConfig_WithOTLPEndpoint(t *testing.T) {
	cfg := OrderServiceConfig.WithOTLPEndpoint("collector:4318").WithVersion("2.0.0")

	assert.Equal(t, "collector:4318", cfg.OTLPEndpoint)
	assert.Equal(t, "2.0.0", cfg.ServiceVersion)
	assert.Empty(t, OrderServiceConfig.OTLPEndpoint)
}
