package observability

import (
	"context"
	"fmt"
	"net/http"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// Prometheus exposes recorded metrics in the Prometheus text format.
type Prometheus struct {
	registry *prom.Registry
	provider *sdkmetric.MeterProvider
}

// NewPrometheus creates a meter provider whose metrics are served by Handler.
func NewPrometheus() (*Prometheus, error) {
	registry := prom.NewRegistry()

	exporter, err := prometheus.New(prometheus.WithRegisterer(registry))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Prometheus exporter: %w", err)
	}

	return &Prometheus{
		registry: registry,
		provider: sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter)),
	}, nil
}

// MeterProvider returns the provider to pass to NewRecorder.
func (p *Prometheus) MeterProvider() metric.MeterProvider {
	return p.provider
}

// Handler returns the /metrics handler.
func (p *Prometheus) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}

// Shutdown flushes and stops the meter provider.
func (p *Prometheus) Shutdown(ctx context.Context) error {
	err := p.provider.Shutdown(ctx)
	if err != nil {
		return fmt.Errorf("failed to shut down meter provider: %w", err)
	}

	return nil
}
