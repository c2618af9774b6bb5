package observability

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"
)

// Provider owns the metric and trace pipelines of the process
type Provider struct {
	registry *prom.Registry
	meters   *sdkmetric.MeterProvider
	tracer   *trace.TracerProvider
}

// Setup builds a Prometheus-backed meter provider and, when tracing is on,
// a stdout tracer provider. Both are installed as the otel globals.
func Setup(serviceName string, tracing bool) (*Provider, error) {
	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(serviceName),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to build otel resource: %w", err)
	}

	registry := prom.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	exp, err := prometheus.New(prometheus.WithRegisterer(registry))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize prometheus exporter: %w", err)
	}

	p := &Provider{
		registry: registry,
		meters:   sdkmetric.NewMeterProvider(sdkmetric.WithReader(exp), sdkmetric.WithResource(res)),
	}
	otel.SetMeterProvider(p.meters)

	if tracing {
		traceExp, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
		if err != nil {
			return nil, fmt.Errorf("failed to initialize stdouttrace exporter: %w", err)
		}
		p.tracer = trace.NewTracerProvider(
			trace.WithBatcher(traceExp),
			trace.WithResource(res),
		)
		otel.SetTracerProvider(p.tracer)
	}

	return p, nil
}

// Meter returns a named meter from the provider
func (p *Provider) Meter(name string) metric.Meter {
	return p.meters.Meter(name)
}

// Handler serves the Prometheus exposition format
func (p *Provider) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{Registry: p.registry})
}

// Shutdown flushes and stops the pipelines
func (p *Provider) Shutdown(ctx context.Context) error {
	var errs []error
	if p.tracer != nil {
		errs = append(errs, p.tracer.Shutdown(ctx))
	}
	errs = append(errs, p.meters.Shutdown(ctx))
	return errors.Join(errs...)
}
