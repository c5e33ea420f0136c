package telemetry_test

import (
	"context"
	"testing"
	"time"

	"github.com/erp/crm/internal/infrastructure/telemetry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.uber.org/zap/zaptest"
)

func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]metricdata.Metrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	out := make(map[string]metricdata.Metrics)
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			out[m.Name] = m
		}
	}
	return out
}

func sumByOutcome(t *testing.T, m metricdata.Metrics) map[string]int64 {
	t.Helper()
	sum, ok := m.Data.(metricdata.Sum[int64])
	require.True(t, ok)

	out := make(map[string]int64)
	for _, dp := range sum.DataPoints {
		outcome, _ := dp.Attributes.Value(telemetry.AttrOutcome)
		out[outcome.AsString()] += dp.Value
	}
	return out
}

func TestRelationsMetrics(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	m, err := telemetry.NewRelationsMetrics(provider.Meter("test"))
	require.NoError(t, err)

	ctx := context.Background()
	m.RecordCascade(ctx, "tag.rename", 2, 3, 10*time.Millisecond)
	m.RecordCascade(ctx, "tag.rename", 3, 0, 5*time.Millisecond)
	m.RecordGroupResolution(ctx, telemetry.ResolveCreated)
	m.RecordGroupResolution(ctx, telemetry.ResolveReread)
	m.RecordGroupResolution(ctx, telemetry.ResolveReread)

	metrics := collect(t, reader)

	writes := sumByOutcome(t, metrics["crm_cascade_writes_total"])
	assert.Equal(t, int64(5), writes[telemetry.OutcomeSucceeded])
	assert.Equal(t, int64(3), writes[telemetry.OutcomeFailed])

	partial, ok := metrics["crm_partial_cascades_total"].Data.(metricdata.Sum[int64])
	require.True(t, ok)
	require.Len(t, partial.DataPoints, 1)
	assert.Equal(t, int64(1), partial.DataPoints[0].Value)

	resolves := sumByOutcome(t, metrics["crm_group_resolutions_total"])
	assert.Equal(t, int64(1), resolves[telemetry.ResolveCreated])
	assert.Equal(t, int64(2), resolves[telemetry.ResolveReread])

	assert.Contains(t, metrics, "crm_cascade_duration_seconds")
}

func TestRelationsMetrics_NilMeter(t *testing.T) {
	_, err := telemetry.NewRelationsMetrics(nil)
	assert.ErrorIs(t, err, telemetry.ErrMeterNil)
}

func TestRelationsMetrics_NilAndNop(t *testing.T) {
	var m *telemetry.RelationsMetrics
	assert.NotPanics(t, func() {
		m.RecordCascade(context.Background(), "tag.delete", 1, 1, time.Millisecond)
		m.RecordGroupResolution(context.Background(), telemetry.ResolveFound)
		telemetry.NopRelationsMetrics().RecordCascade(context.Background(), "tag.delete", 1, 0, 0)
	})
}

func TestNewMeterProvider_Disabled(t *testing.T) {
	mp, err := telemetry.NewMeterProvider(context.Background(), telemetry.MetricsConfig{ServiceName: "crm"}, zaptest.NewLogger(t))
	require.NoError(t, err)

	assert.False(t, mp.IsEnabled())
	assert.NotNil(t, mp.Meter("crm"))
	assert.NoError(t, mp.Shutdown(context.Background()))
}
