// Package observability sets up structured logging and request/pipeline
// tracing for opflow. Tracing uses the core OpenTelemetry API and SDK only
// — no OTLP exporter is wired, since this repo has no external collector
// for one to ship to (see DESIGN.md). The serve command sets up and shuts
// down the providers; the span helpers and the step-latency histogram are
// not called by the HTTP server or the pipeline runner.
package observability

import (
	"context"
	"log/slog"
	"os"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

// SetupLogging configures the process-wide slog default handler. JSON in
// production, text in development — matches the teacher's convention of a
// single package-level logger configured once at startup.
func SetupLogging(development bool) {
	var handler slog.Handler
	opts := &slog.HandlerOptions{Level: slog.LevelInfo}
	if development {
		handler = slog.NewTextHandler(os.Stderr, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(handler))
}

// Telemetry bundles the tracer and meter instruments pipeline execution
// reports to.
type Telemetry struct {
	Tracer       trace.Tracer
	StepLatency  metric.Float64Histogram
	tracerProvider *sdktrace.TracerProvider
	meterProvider  *sdkmetric.MeterProvider
}

// Setup constructs a TracerProvider/MeterProvider pair scoped to the given
// service name and registers them as the global providers.
func Setup(ctx context.Context, serviceName string) (*Telemetry, error) {
	res, err := resource.New(ctx, resource.WithAttributes(semconv.ServiceName(serviceName)))
	if err != nil {
		return nil, err
	}

	tp := sdktrace.NewTracerProvider(sdktrace.WithResource(res))
	otel.SetTracerProvider(tp)

	mp := sdkmetric.NewMeterProvider(sdkmetric.WithResource(res))
	otel.SetMeterProvider(mp)

	tracer := tp.Tracer("github.com/opflowhq/opflow")
	meter := mp.Meter("github.com/opflowhq/opflow")

	stepLatency, err := meter.Float64Histogram(
		"opflow.pipeline.step.duration",
		metric.WithDescription("Evaluation duration of a single pipeline step"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	return &Telemetry{
		Tracer:         tracer,
		StepLatency:    stepLatency,
		tracerProvider: tp,
		meterProvider:  mp,
	}, nil
}

// Shutdown flushes and stops the tracer/meter providers.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	if err := t.tracerProvider.Shutdown(ctx); err != nil {
		return err
	}
	return t.meterProvider.Shutdown(ctx)
}

// StartRequestSpan starts a span for one HTTP request, tagged with route
// and method.
func (t *Telemetry) StartRequestSpan(ctx context.Context, method, route string) (context.Context, trace.Span) {
	return t.Tracer.Start(ctx, "opflow.request",
		trace.WithAttributes(
			attribute.String("http.method", method),
			attribute.String("http.route", route),
		),
	)
}

// StartStepSpan starts a span for one pipeline step, named after its
// binding name if present.
func (t *Telemetry) StartStepSpan(ctx context.Context, stepName string) (context.Context, trace.Span) {
	name := "opflow.step"
	if stepName != "" {
		name = "opflow.step." + stepName
	}
	return t.Tracer.Start(ctx, name)
}
