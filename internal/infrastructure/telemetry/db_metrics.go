package telemetry

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Metric attribute keys for record store statements
var (
	AttrDBOperation = attribute.Key("db_operation")
	AttrDBTable     = attribute.Key("db_table")
	AttrDBState     = attribute.Key("state")
)

// DBMetricsConfig holds configuration for record store metrics
type DBMetricsConfig struct {
	// SlowQueryThreshold marks statements counted in db_slow_query_total
	SlowQueryThreshold time.Duration
}

// DBMetrics counts and times the statements the record stores issue and
// reports connection pool usage on every collection.
type DBMetrics struct {
	queryTotal     *Counter
	queryErrors    *Counter
	slowQueryTotal *Counter
	queryDuration  *Histogram
	slowThreshold  time.Duration
	registration   metric.Registration
}

// NewDBMetrics registers the instruments on meter. Pool gauges are observed
// from sqlDB when it is non-nil.
func NewDBMetrics(meter metric.Meter, sqlDB *sql.DB, cfg DBMetricsConfig) (*DBMetrics, error) {
	if meter == nil {
		return nil, ErrMeterNil
	}
	if cfg.SlowQueryThreshold <= 0 {
		cfg.SlowQueryThreshold = 200 * time.Millisecond
	}

	m := &DBMetrics{slowThreshold: cfg.SlowQueryThreshold}
	var err error
	if m.queryTotal, err = NewCounter(meter, "db_query_total",
		"Statements issued by the record stores", "{query}"); err != nil {
		return nil, err
	}
	if m.queryErrors, err = NewCounter(meter, "db_query_errors_total",
		"Statements that returned an error other than record not found", "{query}"); err != nil {
		return nil, err
	}
	if m.slowQueryTotal, err = NewCounter(meter, "db_slow_query_total",
		"Statements slower than the slow query threshold", "{query}"); err != nil {
		return nil, err
	}
	if m.queryDuration, err = NewHistogram(meter, HistogramOpts{
		Name:        "db_query_duration_seconds",
		Description: "Statement latency distribution in seconds",
		Unit:        "s",
		Boundaries:  DurationBuckets,
	}); err != nil {
		return nil, err
	}

	if sqlDB != nil {
		if err := m.observePool(meter, sqlDB); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *DBMetrics) observePool(meter metric.Meter, sqlDB *sql.DB) error {
	connections, err := meter.Int64ObservableGauge("db_pool_connections",
		metric.WithDescription("Connections in the pool by state"),
		metric.WithUnit("{connection}"))
	if err != nil {
		return err
	}
	maxConnections, err := meter.Int64ObservableGauge("db_pool_connections_max",
		metric.WithDescription("Maximum number of open connections"),
		metric.WithUnit("{connection}"))
	if err != nil {
		return err
	}

	m.registration, err = meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		stats := sqlDB.Stats()
		o.ObserveInt64(maxConnections, int64(stats.MaxOpenConnections))
		o.ObserveInt64(connections, int64(stats.Idle), metric.WithAttributes(AttrDBState.String("idle")))
		o.ObserveInt64(connections, int64(stats.InUse), metric.WithAttributes(AttrDBState.String("in_use")))
		o.ObserveInt64(connections, int64(stats.OpenConnections), metric.WithAttributes(AttrDBState.String("open")))
		return nil
	}, connections, maxConnections)
	return err
}

// Stop unregisters the pool callback
func (m *DBMetrics) Stop() error {
	if m == nil || m.registration == nil {
		return nil
	}
	return m.registration.Unregister()
}

// RecordQuery records one statement
func (m *DBMetrics) RecordQuery(ctx context.Context, operation, table string, elapsed time.Duration, err error) {
	if m == nil {
		return
	}
	operation = strings.ToUpper(operation)
	if operation == "" {
		operation = "OTHER"
	}
	if table == "" {
		table = "unknown"
	}
	attrs := []attribute.KeyValue{AttrDBOperation.String(operation), AttrDBTable.String(table)}

	m.queryTotal.Inc(ctx, attrs...)
	m.queryDuration.RecordDuration(ctx, elapsed, attrs...)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		m.queryErrors.Inc(ctx, attrs...)
	}
	if elapsed > m.slowThreshold {
		m.slowQueryTotal.Inc(ctx, attrs...)
	}
}

type dbMetricsStartKey struct{}

// Register installs before/after callbacks for every statement kind on db
func (m *DBMetrics) Register(db *gorm.DB, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	start := func(tx *gorm.DB) {
		ctx := tx.Statement.Context
		if ctx == nil {
			ctx = context.Background()
		}
		tx.Statement.Context = context.WithValue(ctx, dbMetricsStartKey{}, time.Now())
	}
	finish := func(operation string) func(*gorm.DB) {
		return func(tx *gorm.DB) {
			ctx := tx.Statement.Context
			if ctx == nil {
				return
			}
			began, ok := ctx.Value(dbMetricsStartKey{}).(time.Time)
			if !ok {
				return
			}
			op := operation
			if op == "" {
				op = detectOperationType(tx.Statement.SQL.String())
			}
			m.RecordQuery(ctx, op, tx.Statement.Table, time.Since(began), tx.Error)
		}
	}

	cb := db.Callback()
	if err := errors.Join(
		cb.Create().Before("gorm:create").Register("db_metrics:before_create", start),
		cb.Create().After("gorm:create").Register("db_metrics:after_create", finish("INSERT")),
		cb.Query().Before("gorm:query").Register("db_metrics:before_query", start),
		cb.Query().After("gorm:query").Register("db_metrics:after_query", finish("SELECT")),
		cb.Update().Before("gorm:update").Register("db_metrics:before_update", start),
		cb.Update().After("gorm:update").Register("db_metrics:after_update", finish("UPDATE")),
		cb.Delete().Before("gorm:delete").Register("db_metrics:before_delete", start),
		cb.Delete().After("gorm:delete").Register("db_metrics:after_delete", finish("DELETE")),
		cb.Row().Before("gorm:row").Register("db_metrics:before_row", start),
		cb.Row().After("gorm:row").Register("db_metrics:after_row", finish("")),
		cb.Raw().Before("gorm:raw").Register("db_metrics:before_raw", start),
		cb.Raw().After("gorm:raw").Register("db_metrics:after_raw", finish("")),
	); err != nil {
		return err
	}

	logger.Info("Database metrics registered", zap.Duration("slow_query_threshold", m.slowThreshold))
	return nil
}

// detectOperationType reads the statement verb of a raw or row query
func detectOperationType(sql string) string {
	sql = strings.ToUpper(strings.TrimSpace(sql))
	for _, verb := range []string{"SELECT", "INSERT", "UPDATE", "DELETE"} {
		if strings.HasPrefix(sql, verb) {
			return verb
		}
	}
	return "OTHER"
}
