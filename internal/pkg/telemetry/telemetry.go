// Package telemetry provides OpenTelemetry tracing and metrics helpers.
package telemetry

import (
	"go.opentelemetry.io/otel/metric"
	metricNoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	traceNoop "go.opentelemetry.io/otel/trace/noop"
)

const appName = "github.com/keboola/dbsnap"

type Telemetry interface {
	TracerProvider() trace.TracerProvider
	MeterProvider() metric.MeterProvider
	Tracer() Tracer
	Meter() Meter
}

type telemetry struct {
	tracerProvider trace.TracerProvider
	meterProvider  metric.MeterProvider
	tracer         Tracer
	meter          Meter
}

func New(tracerProvider trace.TracerProvider, meterProvider metric.MeterProvider) Telemetry {
	if tracerProvider == nil {
		tracerProvider = traceNoop.NewTracerProvider()
	}
	if meterProvider == nil {
		meterProvider = metricNoop.NewMeterProvider()
	}
	return &telemetry{
		tracerProvider: tracerProvider,
		meterProvider:  meterProvider,
		tracer:         &tracer{tracer: tracerProvider.Tracer(appName)},
		meter:          &meter{meter: meterProvider.Meter(appName)},
	}
}

func NewNop() Telemetry {
	return New(nil, nil)
}

func (t *telemetry) TracerProvider() trace.TracerProvider {
	return t.tracerProvider
}

func (t *telemetry) MeterProvider() metric.MeterProvider {
	return t.meterProvider
}

func (t *telemetry) Tracer() Tracer {
	return t.tracer
}

func (t *telemetry) Meter() Meter {
	return t.meter
}
