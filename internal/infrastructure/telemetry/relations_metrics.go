package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

// Group resolution outcomes
const (
	ResolveFound    = "found"
	ResolveCreated  = "created"
	ResolveReread   = "conflict_reread"
	ResolveConflict = "conflict_unresolved"
)

// Cascade sub-write outcomes
const (
	OutcomeSucceeded = "succeeded"
	OutcomeFailed    = "failed"
)

// RelationsMetrics counts cascade sub-writes and group resolutions.
// A nil *RelationsMetrics records nothing.
type RelationsMetrics struct {
	cascadeWrites   *Counter
	partialCascades *Counter
	groupResolves   *Counter
	cascadeDuration *Histogram
}

// NewRelationsMetrics registers the relations instruments on meter
func NewRelationsMetrics(meter metric.Meter) (*RelationsMetrics, error) {
	if meter == nil {
		return nil, ErrMeterNil
	}

	var (
		m   RelationsMetrics
		err error
	)
	if m.cascadeWrites, err = NewCounter(meter, "crm_cascade_writes_total",
		"Sub-writes issued by multi-row cascades", "{write}"); err != nil {
		return nil, err
	}
	if m.partialCascades, err = NewCounter(meter, "crm_partial_cascades_total",
		"Cascades that committed some but not all sub-writes", "{cascade}"); err != nil {
		return nil, err
	}
	if m.groupResolves, err = NewCounter(meter, "crm_group_resolutions_total",
		"Economic group find-or-create calls by outcome", "{call}"); err != nil {
		return nil, err
	}
	if m.cascadeDuration, err = NewHistogram(meter, HistogramOpts{
		Name:        "crm_cascade_duration_seconds",
		Description: "Duration of multi-row cascades",
		Unit:        "s",
		Boundaries:  DurationBuckets,
	}); err != nil {
		return nil, err
	}
	return &m, nil
}

// NopRelationsMetrics returns metrics backed by a no-op meter
func NopRelationsMetrics() *RelationsMetrics {
	m, _ := NewRelationsMetrics(noop.NewMeterProvider().Meter(TracerName))
	return m
}

// RecordCascade records the outcome of one cascade
func (m *RelationsMetrics) RecordCascade(ctx context.Context, operation string, succeeded, failed int, elapsed time.Duration) {
	if m == nil {
		return
	}
	op := AttrOperation.String(operation)
	if succeeded > 0 {
		m.cascadeWrites.Add(ctx, int64(succeeded), op, AttrOutcome.String(OutcomeSucceeded))
	}
	if failed > 0 {
		m.cascadeWrites.Add(ctx, int64(failed), op, AttrOutcome.String(OutcomeFailed))
		m.partialCascades.Inc(ctx, op)
	}
	m.cascadeDuration.RecordDuration(ctx, elapsed, op)
}

// RecordGroupResolution records how a group resolve call was satisfied
func (m *RelationsMetrics) RecordGroupResolution(ctx context.Context, outcome string) {
	if m == nil {
		return
	}
	m.groupResolves.Inc(ctx, AttrOutcome.String(outcome))
}
