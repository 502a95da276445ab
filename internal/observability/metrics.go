// Package observability wires the Prometheus collectors of every component
// into one registry and exposes them over HTTP.
package observability

import (
	"fmt"
	"log"
	"net/http"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tphakala/gwpe/internal/observability/metrics"
)

// Metrics holds all the metric collectors for the application.
type Metrics struct {
	registry     *prometheus.Registry
	Sampler      *metrics.SamplerMetrics
	Pipeline     *metrics.PipelineMetrics
	Datastore    *metrics.DatastoreMetrics
	Notification *metrics.NotificationMetrics
}

// NewMetrics creates a registry with every collector registered, plus the
// Go runtime and process collectors.
func NewMetrics() (*Metrics, error) {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	samplerMetrics, err := metrics.NewSamplerMetrics(registry)
	if err != nil {
		return nil, fmt.Errorf("failed to create sampler metrics: %w", err)
	}

	pipelineMetrics, err := metrics.NewPipelineMetrics(registry)
	if err != nil {
		return nil, fmt.Errorf("failed to create pipeline metrics: %w", err)
	}

	datastoreMetrics, err := metrics.NewDatastoreMetrics(registry)
	if err != nil {
		return nil, fmt.Errorf("failed to create datastore metrics: %w", err)
	}

	notificationMetrics, err := metrics.NewNotificationMetrics(registry)
	if err != nil {
		return nil, fmt.Errorf("failed to create notification metrics: %w", err)
	}

	return &Metrics{
		registry:     registry,
		Sampler:      samplerMetrics,
		Pipeline:     pipelineMetrics,
		Datastore:    datastoreMetrics,
		Notification: notificationMetrics,
	}, nil
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		ErrorLog:      log.New(os.Stderr, "metrics handler: ", log.LstdFlags),
		ErrorHandling: promhttp.HTTPErrorOnError,
	})
}
