package telemetry_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/erp/crm/internal/domain/partner"
	"github.com/erp/crm/internal/infrastructure/telemetry"
	"github.com/erp/crm/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.uber.org/zap/zaptest"
	"gorm.io/gorm"
)

func newDBMetrics(t *testing.T, threshold time.Duration) (*telemetry.DBMetrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })

	m, err := telemetry.NewDBMetrics(provider.Meter("test"), nil, telemetry.DBMetricsConfig{SlowQueryThreshold: threshold})
	require.NoError(t, err)
	return m, reader
}

func sumByOperation(t *testing.T, m metricdata.Metrics) map[string]int64 {
	t.Helper()
	sum, ok := m.Data.(metricdata.Sum[int64])
	require.True(t, ok)

	out := make(map[string]int64)
	for _, dp := range sum.DataPoints {
		op, _ := dp.Attributes.Value(telemetry.AttrDBOperation)
		table, _ := dp.Attributes.Value(telemetry.AttrDBTable)
		out[op.AsString()+" "+table.AsString()] += dp.Value
	}
	return out
}

func TestNewDBMetrics_NilMeter(t *testing.T) {
	m, err := telemetry.NewDBMetrics(nil, nil, telemetry.DBMetricsConfig{})
	assert.ErrorIs(t, err, telemetry.ErrMeterNil)
	assert.Nil(t, m)
}

func TestDBMetrics_RecordQuery(t *testing.T) {
	m, reader := newDBMetrics(t, 100*time.Millisecond)
	ctx := context.Background()

	m.RecordQuery(ctx, "select", "tags", 10*time.Millisecond, nil)
	m.RecordQuery(ctx, "SELECT", "tags", 10*time.Millisecond, gorm.ErrRecordNotFound)
	m.RecordQuery(ctx, "UPDATE", "clients", 250*time.Millisecond, errors.New("boom"))
	m.RecordQuery(ctx, "", "", time.Millisecond, nil)

	metrics := collect(t, reader)

	total := sumByOperation(t, metrics["db_query_total"])
	assert.Equal(t, int64(2), total["SELECT tags"])
	assert.Equal(t, int64(1), total["UPDATE clients"])
	assert.Equal(t, int64(1), total["OTHER unknown"])

	// record not found is an answer, not a failure
	errs := sumByOperation(t, metrics["db_query_errors_total"])
	assert.Equal(t, map[string]int64{"UPDATE clients": 1}, errs)

	slow := sumByOperation(t, metrics["db_slow_query_total"])
	assert.Equal(t, map[string]int64{"UPDATE clients": 1}, slow)

	hist, ok := metrics["db_query_duration_seconds"].Data.(metricdata.Histogram[float64])
	require.True(t, ok)
	var count uint64
	for _, dp := range hist.DataPoints {
		count += dp.Count
	}
	assert.Equal(t, uint64(4), count)
}

func TestDBMetrics_NilSafe(t *testing.T) {
	var m *telemetry.DBMetrics
	assert.NotPanics(t, func() {
		m.RecordQuery(context.Background(), "SELECT", "tags", time.Second, nil)
	})
	assert.NoError(t, m.Stop())
}

func TestDBMetrics_Register(t *testing.T) {
	db := testutil.NewSQLiteDB(t)
	m, reader := newDBMetrics(t, time.Hour)
	require.NoError(t, m.Register(db, zaptest.NewLogger(t)))

	tag, err := partner.NewTag("vip")
	require.NoError(t, err)
	require.NoError(t, db.Create(tag).Error)

	var found partner.Tag
	require.NoError(t, db.First(&found, "id = ?", tag.ID).Error)
	require.NoError(t, db.Model(&found).Update("name", "gold").Error)
	require.NoError(t, db.Exec("DELETE FROM tags WHERE id = ?", tag.ID).Error)

	err = db.First(&found, "id = ?", tag.ID).Error
	require.ErrorIs(t, err, gorm.ErrRecordNotFound)

	metrics := collect(t, reader)
	total := sumByOperation(t, metrics["db_query_total"])
	assert.Equal(t, int64(1), total["INSERT tags"])
	assert.Equal(t, int64(2), total["SELECT tags"])
	assert.Equal(t, int64(1), total["UPDATE tags"])
	assert.Equal(t, int64(1), total["DELETE unknown"])

	if errs, ok := metrics["db_query_errors_total"]; ok {
		assert.Empty(t, sumByOperation(t, errs), "record not found must not count as an error")
	}
}

func TestDBMetrics_PoolGauges(t *testing.T) {
	db := testutil.NewSQLiteDB(t)
	sqlDB, err := db.DB()
	require.NoError(t, err)

	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	defer func() { _ = provider.Shutdown(context.Background()) }()

	m, err := telemetry.NewDBMetrics(provider.Meter("test"), sqlDB, telemetry.DBMetricsConfig{})
	require.NoError(t, err)

	metrics := collect(t, reader)
	maxConns, ok := metrics["db_pool_connections_max"].Data.(metricdata.Gauge[int64])
	require.True(t, ok)
	require.Len(t, maxConns.DataPoints, 1)
	assert.Equal(t, int64(1), maxConns.DataPoints[0].Value)

	conns, ok := metrics["db_pool_connections"].Data.(metricdata.Gauge[int64])
	require.True(t, ok)
	assert.Len(t, conns.DataPoints, 3)

	require.NoError(t, m.Stop())
}
