package storage

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/giantswarm/oauth-credentials/instrumentation"
)

// Telemetry traces and measures the operations of one store implementation.
// A nil *Telemetry is valid and records nothing.
type Telemetry struct {
	storageType string
	tracer      trace.Tracer
	metrics     *instrumentation.Metrics
}

// NewTelemetry creates storage telemetry. A nil inst yields nil.
func NewTelemetry(inst *instrumentation.Instrumentation, storageType string) *Telemetry {
	if inst == nil {
		return nil
	}
	return &Telemetry{
		storageType: storageType,
		tracer:      inst.Tracer("storage"),
		metrics:     inst.Metrics(),
	}
}

// Metrics returns the metrics used for storage operations, or nil
func (t *Telemetry) Metrics() *instrumentation.Metrics {
	if t == nil {
		return nil
	}
	return t.metrics
}

// Start starts a span for a storage operation
func (t *Telemetry) Start(ctx context.Context, operation string) (context.Context, trace.Span) {
	if t == nil {
		return ctx, noop.Span{}
	}
	ctx, span := t.tracer.Start(ctx, "storage."+operation)
	instrumentation.AddStorageAttributes(span, operation, t.storageType)
	return ctx, span
}

// Finish records the operation's outcome and duration and sets the span status
func (t *Telemetry) Finish(ctx context.Context, span trace.Span, operation string, err error, start time.Time) {
	if t == nil {
		return
	}

	durationMs := float64(time.Since(start).Microseconds()) / 1000.0
	result := "success"
	if err != nil {
		result = "error"
		instrumentation.RecordError(span, err)
	} else {
		instrumentation.SetSpanSuccess(span)
	}
	t.metrics.RecordStorageOperation(ctx, operation, result, durationMs)
}
