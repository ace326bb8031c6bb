package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	tracetype "go.opentelemetry.io/otel/trace"
)

// Providers bundles the tracer and meter providers initialized for one
// engine process.
type Providers struct {
	tp *trace.TracerProvider
	mp *sdkmetric.MeterProvider
}

// Setup wires a pretty-printed stdout trace exporter and a Prometheus
// metrics exporter, then registers both as OTel globals. Call Shutdown on
// engine stop to flush pending spans.
func Setup(serviceName string) (*Providers, error) {
	ctx := context.Background()

	res, err := resource.New(ctx, resource.WithAttributes(semconv.ServiceNameKey.String(serviceName)))
	if err != nil {
		return nil, fmt.Errorf("telemetry resource: %w", err)
	}

	traceExporter, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
	if err != nil {
		return nil, fmt.Errorf("trace exporter: %w", err)
	}
	tp := trace.NewTracerProvider(trace.WithBatcher(traceExporter), trace.WithResource(res))
	otel.SetTracerProvider(tp)

	metricExporter, err := prometheus.New()
	if err != nil {
		return nil, fmt.Errorf("metric exporter: %w", err)
	}
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(metricExporter), sdkmetric.WithResource(res))
	otel.SetMeterProvider(mp)

	if err := GetGlobalMetrics().Init(mp.Meter(serviceName)); err != nil {
		return nil, fmt.Errorf("metric instruments: %w", err)
	}

	return &Providers{tp: tp, mp: mp}, nil
}

// Shutdown flushes and stops both providers.
func (p *Providers) Shutdown(ctx context.Context) error {
	if err := p.tp.Shutdown(ctx); err != nil {
		return fmt.Errorf("trace provider shutdown: %w", err)
	}
	if err := p.mp.Shutdown(ctx); err != nil {
		return fmt.Errorf("meter provider shutdown: %w", err)
	}
	return nil
}

// GetMeter returns a named meter from the global provider.
func GetMeter(name string) metric.Meter { return otel.GetMeterProvider().Meter(name) }

// GetTracer returns a named tracer from the global provider.
func GetTracer(name string) tracetype.Tracer { return otel.GetTracerProvider().Tracer(name) }
