package telemetry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

type recordingSpanExporter struct {
	shutdowns int
}

func (e *recordingSpanExporter) ExportSpans(context.Context, []sdktrace.ReadOnlySpan) error {
	return nil
}

func (e *recordingSpanExporter) Shutdown(context.Context) error {
	e.shutdowns++
	return nil
}

func TestSetup_MetricExporterFailureShutsDownTraceExporter(t *testing.T) {
	traceExp := &recordingSpanExporter{}

	origTrace, origMetric := newTraceExporter, newMetricExporter
	t.Cleanup(func() { newTraceExporter, newMetricExporter = origTrace, origMetric })

	newTraceExporter = func(context.Context, ...otlptracehttp.Option) (sdktrace.SpanExporter, error) {
		return traceExp, nil
	}
	newMetricExporter = func(context.Context, ...otlpmetrichttp.Option) (sdkmetric.Exporter, error) {
		return nil, errors.New("bad endpoint")
	}

	shutdown, err := Setup(context.Background(), Config{ServiceName: "test", Endpoint: "localhost:4318"})
	require.Error(t, err)
	assert.Nil(t, shutdown)
	assert.Contains(t, err.Error(), "create metric exporter: bad endpoint")
	assert.Equal(t, 1, traceExp.shutdowns)
}

func TestSetup_NoEndpointIsNoop(t *testing.T) {
	shutdown, err := Setup(context.Background(), Config{ServiceName: "test"})
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))
}

func TestInstruments_NilSafe(t *testing.T) {
	var in *Instruments
	in.RecordToolCall(context.Background(), "t", time.Second, false)
	in.RecordModelCall(context.Background(), "p", "m", time.Second, true)
	in.RecordLoop(context.Background(), 3, "done")
}

func TestInstruments_Record(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	in, err := NewInstruments(mp)
	require.NoError(t, err)

	ctx := context.Background()
	in.RecordToolCall(ctx, "nabl_audit", 10*time.Millisecond, false)
	in.RecordToolCall(ctx, "nabl_audit", 10*time.Millisecond, true)
	in.RecordModelCall(ctx, "anthropic", "claude", time.Second, false)
	in.RecordLoop(ctx, 2, "done")

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(ctx, &rm))
	require.Len(t, rm.ScopeMetrics, 1)

	names := map[string]bool{}
	for _, m := range rm.ScopeMetrics[0].Metrics {
		names[m.Name] = true
	}
	for _, want := range []string{"nabl.tool.calls", "nabl.tool.duration", "nabl.model.calls", "nabl.model.duration", "nabl.agent.iterations"} {
		assert.True(t, names[want], want)
	}

	assert.NotNil(t, DefaultInstruments())
}
