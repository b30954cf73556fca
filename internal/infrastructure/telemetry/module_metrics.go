package telemetry

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Activation outcomes
const (
	OutcomeActivated   = "activated"
	OutcomeDeactivated = "deactivated"
	OutcomeRejected    = "rejected"
	OutcomeFailed      = "failed"
)

// Instrument names
const (
	MetricLifecycleTotal     = "erp_module_lifecycle_total"
	MetricEventsEmittedTotal = "erp_events_emitted_total"
	MetricAsyncFailuresTotal = "erp_event_async_failures_total"
	MetricFlushDuration      = "erp_event_flush_duration_seconds"
)

var (
	attrCompanyID = attribute.Key("company_id")
	attrModuleID  = attribute.Key("module_id")
	attrEventName = attribute.Key("event_name")
	attrOutcome   = attribute.Key("outcome")
)

// ModuleMetrics records module lifecycle and event bus activity.
// A nil *ModuleMetrics is valid and records nothing.
type ModuleMetrics struct {
	lifecycle     metric.Int64Counter
	emitted       metric.Int64Counter
	asyncFailures metric.Int64Counter
	flushDuration metric.Float64Histogram
}

// NewModuleMetrics creates the module and event bus instruments on meter.
func NewModuleMetrics(meter metric.Meter) (*ModuleMetrics, error) {
	if meter == nil {
		return nil, ErrMeterNil
	}

	var (
		m   ModuleMetrics
		err error
	)
	if m.lifecycle, err = meter.Int64Counter(MetricLifecycleTotal,
		metric.WithDescription("Module activation and deactivation attempts by outcome"),
		metric.WithUnit("{operation}")); err != nil {
		return nil, instrumentError(MetricLifecycleTotal, err)
	}
	if m.emitted, err = meter.Int64Counter(MetricEventsEmittedTotal,
		metric.WithDescription("Events emitted on the in-process bus"),
		metric.WithUnit("{event}")); err != nil {
		return nil, instrumentError(MetricEventsEmittedTotal, err)
	}
	if m.asyncFailures, err = meter.Int64Counter(MetricAsyncFailuresTotal,
		metric.WithDescription("Deferred event handlers that failed, panicked or timed out"),
		metric.WithUnit("{handler}")); err != nil {
		return nil, instrumentError(MetricAsyncFailuresTotal, err)
	}
	if m.flushDuration, err = meter.Float64Histogram(MetricFlushDuration,
		metric.WithDescription("Time spent draining the deferred handler queue"),
		metric.WithUnit("s")); err != nil {
		return nil, instrumentError(MetricFlushDuration, err)
	}
	return &m, nil
}

// RecordLifecycle counts an activate or deactivate attempt.
func (m *ModuleMetrics) RecordLifecycle(ctx context.Context, companyID uuid.UUID, moduleID, outcome string) {
	if m == nil {
		return
	}
	m.lifecycle.Add(ctx, 1, metric.WithAttributes(
		attrCompanyID.String(companyID.String()),
		attrModuleID.String(moduleID),
		attrOutcome.String(outcome),
	))
}

// RecordEmit counts one emission.
func (m *ModuleMetrics) RecordEmit(ctx context.Context, eventName string) {
	if m == nil {
		return
	}
	m.emitted.Add(ctx, 1, metric.WithAttributes(attrEventName.String(eventName)))
}

// RecordAsyncFailure counts a failed deferred handler.
func (m *ModuleMetrics) RecordAsyncFailure(ctx context.Context, eventName, moduleID string) {
	if m == nil {
		return
	}
	m.asyncFailures.Add(ctx, 1, metric.WithAttributes(attrEventName.String(eventName), attrModuleID.String(moduleID)))
}

// RecordFlush records the duration of one flush.
func (m *ModuleMetrics) RecordFlush(ctx context.Context, d time.Duration, tasks int) {
	if m == nil {
		return
	}
	m.flushDuration.Record(ctx, d.Seconds(), metric.WithAttributes(attribute.Int("tasks", tasks)))
}

// ErrMeterNil is returned when meter is nil.
var ErrMeterNil = &MetricsError{Op: "NewModuleMetrics", Err: "meter cannot be nil"}

// MetricsError represents a metrics-related error.
type MetricsError struct {
	Op  string
	Err string
}

func (e *MetricsError) Error() string {
	return e.Op + ": " + e.Err
}

func instrumentError(name string, err error) error {
	return &MetricsError{Op: "NewModuleMetrics", Err: name + ": " + err.Error()}
}
