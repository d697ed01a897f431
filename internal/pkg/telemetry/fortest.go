package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkMetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	tracesdk "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// ForTest is a Telemetry recording spans and metrics in memory.
type ForTest interface {
	Telemetry
	Spans() tracetest.SpanStubs
	SpanNames() []string
	// Int64Sum returns value of the counter with the attributes, 0 if it has not been collected.
	Int64Sum(t *testing.T, name string, attrs ...attribute.KeyValue) int64
	AssertSpanNames(t *testing.T, expected []string)
}

type forTest struct {
	Telemetry
	spans  *tracetest.InMemoryExporter
	reader *sdkMetric.ManualReader
}

func NewForTest(tb testing.TB) ForTest {
	tb.Helper()

	spans := tracetest.NewInMemoryExporter()
	tracerProvider := tracesdk.NewTracerProvider(tracesdk.WithSyncer(spans))
	reader := sdkMetric.NewManualReader()
	meterProvider := sdkMetric.NewMeterProvider(sdkMetric.WithReader(reader))

	tb.Cleanup(func() {
		_ = tracerProvider.Shutdown(context.Background())
		_ = meterProvider.Shutdown(context.Background())
	})

	return &forTest{Telemetry: New(tracerProvider, meterProvider), spans: spans, reader: reader}
}

func (v *forTest) Spans() tracetest.SpanStubs {
	return v.spans.GetSpans()
}

func (v *forTest) SpanNames() []string {
	var out []string
	for _, s := range v.spans.GetSpans() {
		out = append(out, s.Name)
	}
	return out
}

func (v *forTest) AssertSpanNames(t *testing.T, expected []string) {
	t.Helper()
	assert.Equal(t, expected, v.SpanNames())
}

func (v *forTest) Int64Sum(t *testing.T, name string, attrs ...attribute.KeyValue) int64 {
	t.Helper()

	var data metricdata.ResourceMetrics
	require.NoError(t, v.reader.Collect(context.Background(), &data))

	expected := attribute.NewSet(attrs...)
	for _, scope := range data.ScopeMetrics {
		for _, m := range scope.Metrics {
			if m.Name != name {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			if !ok {
				continue
			}
			for _, point := range sum.DataPoints {
				if point.Attributes.Equals(&expected) {
					return point.Value
				}
			}
		}
	}
	return 0
}
