package telemetry

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// TracerName names the tracer behind lifecycle and event bus spans
const TracerName = "erp-platform"

// OutcomeUnchanged marks a transition that found the module already in the requested state.
// It is a span outcome only; no lifecycle counter is recorded for it.
const OutcomeUnchanged = "unchanged"

var (
	attrTasks    = attribute.Key("event_bus.tasks")
	attrFailures = attribute.Key("event_bus.failures")
)

func tracer() trace.Tracer {
	return otel.GetTracerProvider().Tracer(TracerName)
}

// StartLifecycleSpan opens "module.<operation>" for one company and module.
func StartLifecycleSpan(ctx context.Context, operation string, companyID uuid.UUID, moduleID string) (context.Context, trace.Span) {
	return tracer().Start(ctx, "module."+operation,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attrCompanyID.String(companyID.String()),
			attrModuleID.String(moduleID),
		),
	)
}

// SetLifecycleOutcome stamps the outcome on span. Rejections stay out of the
// error status: they are answers to the caller, recorded as an event instead.
func SetLifecycleOutcome(span trace.Span, outcome string, err error) {
	span.SetAttributes(attrOutcome.String(outcome))
	switch {
	case err == nil:
		span.SetStatus(codes.Ok, "")
	case outcome == OutcomeRejected:
		span.AddEvent("transition rejected", trace.WithAttributes(attribute.String("reason", err.Error())))
	default:
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}

// StartFlushSpan opens "event_bus.flush" around one drain of the deferred queue.
func StartFlushSpan(ctx context.Context, tasks int) (context.Context, trace.Span) {
	return tracer().Start(ctx, "event_bus.flush",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(attrTasks.Int(tasks)),
	)
}

// SetFlushResult records how many drained handlers failed.
func SetFlushResult(span trace.Span, failed int) {
	span.SetAttributes(attrFailures.Int(failed))
	if failed > 0 {
		span.SetStatus(codes.Error, fmt.Sprintf("%d async handlers failed", failed))
		return
	}
	span.SetStatus(codes.Ok, "")
}

// StartHandlerSpan opens a span for one subscriber handling eventName.
func StartHandlerSpan(ctx context.Context, eventName, moduleID string) (context.Context, trace.Span) {
	return tracer().Start(ctx, "event_bus.handle",
		trace.WithAttributes(
			attrEventName.String(eventName),
			attrModuleID.String(moduleID),
		),
	)
}

// EndHandlerSpan closes a handler span, marking it failed when err is set.
func EndHandlerSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
