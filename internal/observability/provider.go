package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	promexporter "go.opentelemetry.io/otel/exporters/prometheus"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// MetricsProvider bundles the SDK meter provider with its scrape handler
type MetricsProvider struct {
	*sdkmetric.MeterProvider
	handler http.Handler
}

// NewMetricsProvider sets up a meter provider exported through a dedicated
// Prometheus registry
func NewMetricsProvider() (*MetricsProvider, error) {
	registry := prometheus.NewRegistry()

	promExp, err := promexporter.New(promexporter.WithRegisterer(registry))
	if err != nil {
		return nil, err
	}

	return &MetricsProvider{
		MeterProvider: sdkmetric.NewMeterProvider(sdkmetric.WithReader(promExp)),
		handler:       promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
	}, nil
}

// Handler serves the Prometheus exposition format
func (p *MetricsProvider) Handler() http.Handler {
	return p.handler
}
