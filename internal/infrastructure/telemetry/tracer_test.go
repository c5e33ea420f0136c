package telemetry_test

import (
	"context"
	"testing"

	"github.com/erp/crm/internal/infrastructure/telemetry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap/zaptest"
)

func TestNewTracerProvider_Disabled(t *testing.T) {
	ctx := context.Background()
	before := otel.GetTracerProvider()

	tp, err := telemetry.NewTracerProvider(ctx, telemetry.Config{
		Enabled:           false,
		CollectorEndpoint: "localhost:14317",
		SamplingRatio:     1.0,
		ServiceName:       "crm-test",
	}, zaptest.NewLogger(t))
	require.NoError(t, err)
	require.NotNil(t, tp)

	assert.False(t, tp.IsEnabled())
	assert.Same(t, before, otel.GetTracerProvider(), "disabled provider must not replace the global one")
	assert.NoError(t, tp.Shutdown(ctx))
}

func TestNewTracerProvider_Enabled(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping exporter test in short mode")
	}
	ctx := context.Background()
	before := otel.GetTracerProvider()
	t.Cleanup(func() { otel.SetTracerProvider(before) })

	// The gRPC exporter dials lazily, so no collector needs to be listening.
	tp, err := telemetry.NewTracerProvider(ctx, telemetry.Config{
		Enabled:           true,
		CollectorEndpoint: "localhost:14317",
		SamplingRatio:     0.5,
		ServiceName:       "crm-test",
		Insecure:          true,
	}, zaptest.NewLogger(t))
	require.NoError(t, err)

	assert.True(t, tp.IsEnabled())

	_, span := otel.Tracer("crm-test").Start(ctx, "probe")
	span.End()

	shutdownCtx, cancel := context.WithCancel(ctx)
	cancel()
	// Flushing to an absent collector fails fast on a cancelled context.
	_ = tp.Shutdown(shutdownCtx)
}
