// Package metrics counts scenarios and page interactions with Prometheus
// collectors on a private registry, exported in the text format for the
// node-exporter textfile collector.
package metrics

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/xkilldash9x/uiharness/api/schemas"
	"github.com/xkilldash9x/uiharness/internal/page"
)

const namespace = "uiharness"

// Metrics holds the run's collectors.
type Metrics struct {
	registry *prometheus.Registry

	scenarios           *prometheus.CounterVec
	interactions        *prometheus.CounterVec
	interactionDuration *prometheus.HistogramVec
}

// New registers every collector on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &Metrics{
		registry: reg,
		scenarios: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "scenarios_total",
				Help:      "Total number of finished test cases by status.",
			},
			[]string{"status"},
		),
		interactions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "interactions_total",
				Help:      "Total number of page interactions by operation and outcome.",
			},
			[]string{"operation", "outcome"},
		),
		interactionDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "interaction_seconds",
				Help:      "Page interaction latency in seconds, waits included.",
				Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12), // 50ms to ~100s
			},
			[]string{"operation"},
		),
	}
}

// Registry exposes the registry for scraping or inspection.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// RecordCase counts a finished test case.
func (m *Metrics) RecordCase(status schemas.Status) {
	m.scenarios.WithLabelValues(string(status)).Inc()
}

// RecordInteraction counts one page operation.
func (m *Metrics) RecordInteraction(op string, res page.Result, elapsed time.Duration) {
	m.interactions.WithLabelValues(op, res.Outcome.String()).Inc()
	m.interactionDuration.WithLabelValues(op).Observe(elapsed.Seconds())
}

// Observer adapts RecordInteraction to the page observer hook.
func (m *Metrics) Observer() page.Observer {
	return m.RecordInteraction
}

// WriteTextfile atomically writes every metric to path.
func (m *Metrics) WriteTextfile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create metrics directory: %w", err)
	}
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("failed to write metrics to %s: %w", path, err)
	}
	return nil
}
