// Package telemetry wires OpenTelemetry tracing and metrics. Without Setup the
// global no-op providers are used, so instrumentation is always safe to call.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// InstrumentationName identifies tracers and meters created by this module.
const InstrumentationName = "github.com/hupe1980/nablmesh"

// Tracer returns the module tracer from the global provider.
func Tracer() trace.Tracer { return otel.Tracer(InstrumentationName) }

// Config configures Setup.
type Config struct {
	ServiceName string
	// Endpoint is the OTLP/HTTP collector host:port. Empty disables export.
	Endpoint string
	Insecure bool
}

// ShutdownFunc flushes and stops the installed providers.
type ShutdownFunc func(ctx context.Context) error

// Exporter constructors, replaceable in tests.
var (
	newTraceExporter = func(ctx context.Context, opts ...otlptracehttp.Option) (sdktrace.SpanExporter, error) {
		return otlptracehttp.New(ctx, opts...)
	}
	newMetricExporter = func(ctx context.Context, opts ...otlpmetrichttp.Option) (sdkmetric.Exporter, error) {
		return otlpmetrichttp.New(ctx, opts...)
	}
)

// Setup installs global trace and meter providers exporting over OTLP/HTTP.
// With an empty endpoint it is a no-op.
func Setup(ctx context.Context, cfg Config) (ShutdownFunc, error) {
	if cfg.Endpoint == "" {
		return func(context.Context) error { return nil }, nil
	}

	res := resource.NewSchemaless(attribute.String("service.name", cfg.ServiceName))

	traceOpts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(cfg.Endpoint)}
	metricOpts := []otlpmetrichttp.Option{otlpmetrichttp.WithEndpoint(cfg.Endpoint)}
	if cfg.Insecure {
		traceOpts = append(traceOpts, otlptracehttp.WithInsecure())
		metricOpts = append(metricOpts, otlpmetrichttp.WithInsecure())
	}

	traceExp, err := newTraceExporter(ctx, traceOpts...)
	if err != nil {
		return nil, fmt.Errorf("create trace exporter: %w", err)
	}

	metricExp, err := newMetricExporter(ctx, metricOpts...)
	if err != nil {
		return nil, errors.Join(fmt.Errorf("create metric exporter: %w", err), traceExp.Shutdown(ctx))
	}

	tp := sdktrace.NewTracerProvider(sdktrace.WithBatcher(traceExp), sdktrace.WithResource(res))
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExp)), sdkmetric.WithResource(res))

	otel.SetTracerProvider(tp)
	otel.SetMeterProvider(mp)

	return func(ctx context.Context) error {
		return errors.Join(tp.Shutdown(ctx), mp.Shutdown(ctx))
	}, nil
}

// Instruments holds the metric instruments recorded by the agent loop and the
// tool invoker. A nil *Instruments records nothing.
type Instruments struct {
	toolCalls      metric.Int64Counter
	toolDuration   metric.Float64Histogram
	modelCalls     metric.Int64Counter
	modelDuration  metric.Float64Histogram
	loopIterations metric.Int64Histogram
}

// NewInstruments creates the instruments on mp.
func NewInstruments(mp metric.MeterProvider) (*Instruments, error) {
	meter := mp.Meter(InstrumentationName)

	var (
		in  Instruments
		err error
	)

	if in.toolCalls, err = meter.Int64Counter("nabl.tool.calls",
		metric.WithDescription("Number of tool invocations"), metric.WithUnit("1")); err != nil {
		return nil, fmt.Errorf("create tool.calls counter: %w", err)
	}
	if in.toolDuration, err = meter.Float64Histogram("nabl.tool.duration",
		metric.WithDescription("Duration of tool invocations"), metric.WithUnit("s")); err != nil {
		return nil, fmt.Errorf("create tool.duration histogram: %w", err)
	}
	if in.modelCalls, err = meter.Int64Counter("nabl.model.calls",
		metric.WithDescription("Number of model calls"), metric.WithUnit("1")); err != nil {
		return nil, fmt.Errorf("create model.calls counter: %w", err)
	}
	if in.modelDuration, err = meter.Float64Histogram("nabl.model.duration",
		metric.WithDescription("Duration of model calls"), metric.WithUnit("s")); err != nil {
		return nil, fmt.Errorf("create model.duration histogram: %w", err)
	}
	if in.loopIterations, err = meter.Int64Histogram("nabl.agent.iterations",
		metric.WithDescription("Model visits per request"), metric.WithUnit("1")); err != nil {
		return nil, fmt.Errorf("create agent.iterations histogram: %w", err)
	}

	return &in, nil
}

// DefaultInstruments creates instruments on the global meter provider and
// falls back to no-op instruments if that fails.
func DefaultInstruments() *Instruments {
	in, err := NewInstruments(otel.GetMeterProvider())
	if err != nil {
		in, _ = NewInstruments(noop.NewMeterProvider())
	}
	return in
}

// RecordToolCall records one tool invocation.
func (in *Instruments) RecordToolCall(ctx context.Context, tool string, dur time.Duration, failed bool) {
	if in == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("tool", tool), attribute.Bool("error", failed))
	in.toolCalls.Add(ctx, 1, attrs)
	in.toolDuration.Record(ctx, dur.Seconds(), attrs)
}

// RecordModelCall records one model call.
func (in *Instruments) RecordModelCall(ctx context.Context, provider, model string, dur time.Duration, failed bool) {
	if in == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("provider", provider),
		attribute.String("model", model),
		attribute.Bool("error", failed),
	)
	in.modelCalls.Add(ctx, 1, attrs)
	in.modelDuration.Record(ctx, dur.Seconds(), attrs)
}

// RecordLoop records the number of model visits of a finished request.
func (in *Instruments) RecordLoop(ctx context.Context, iterations int, outcome string) {
	if in == nil {
		return
	}
	in.loopIterations.Record(ctx, int64(iterations), metric.WithAttributes(attribute.String("outcome", outcome)))
}
