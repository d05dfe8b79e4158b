package tokencli

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"

	"github.com/giantswarm/oauth-credentials/instrumentation"
)

const serviceName = "oauth-token"

// setupInstrumentation exports traces over OTLP/HTTP when endpoint is set and
// returns no-op instrumentation otherwise. The shutdown function flushes
// pending spans.
func setupInstrumentation(ctx context.Context, endpoint, version string) (*instrumentation.Instrumentation, func(context.Context) error, error) {
	noop := func(context.Context) error { return nil }
	if endpoint == "" {
		return instrumentation.NewNoop(), noop, nil
	}

	exporter, err := otlptracehttp.New(ctx, otlptracehttp.WithEndpointURL(endpoint))
	if err != nil {
		return nil, noop, fmt.Errorf("create trace exporter: %w", err)
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(serviceName),
			semconv.ServiceVersion(version),
		),
	)
	if err != nil {
		return nil, noop, fmt.Errorf("create resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.TraceContext{})

	inst, err := instrumentation.New(instrumentation.Config{
		ServiceName:    serviceName,
		ServiceVersion: version,
		Enabled:        true,
		TracerProvider: tp,
		Resource:       res,
	})
	if err != nil {
		_ = tp.Shutdown(ctx)
		return nil, noop, err
	}

	return inst, tp.Shutdown, nil
}
