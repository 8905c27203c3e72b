// Package prom implements a Prometheus backend for the metrics package.
//
// Collectors live in a private registry that is exposed for scraping through
// Handler. When a Pushgateway URL is configured, Flush also pushes the
// registry there, which suits short-lived runs such as the trigger command.
package prom

import (
	"fmt"
	"net/http"

	"crashpipe/internal/metrics"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/client_golang/prometheus/push"
)

// Backend is a Prometheus metrics backend.
type Backend struct {
	gatewayURL string
	jobName    string
	reg        *prometheus.Registry

	counters   map[string]*prometheus.CounterVec
	histograms map[string]*prometheus.HistogramVec
	gauges     map[string]*prometheus.GaugeVec
}

// NewBackend builds the registry. gatewayURL may be empty (pull only).
func NewBackend(jobName, gatewayURL string) (*Backend, error) {
	if jobName == "" {
		jobName = "crashpipe"
	}
	b := &Backend{
		gatewayURL: gatewayURL,
		jobName:    jobName,
		reg:        prometheus.NewRegistry(),
		counters:   map[string]*prometheus.CounterVec{},
		histograms: map[string]*prometheus.HistogramVec{},
		gauges:     map[string]*prometheus.GaugeVec{},
	}

	counter := func(name, help string, labels ...string) {
		b.counters[name] = prometheus.NewCounterVec(prometheus.CounterOpts{Name: name, Help: help}, labels)
	}
	histogram := func(name, help string, labels ...string) {
		b.histograms[name] = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name: name, Help: help, Buckets: prometheus.DefBuckets,
		}, labels)
	}
	gauge := func(name, help string, labels ...string) {
		b.gauges[name] = prometheus.NewGaugeVec(prometheus.GaugeOpts{Name: name, Help: help}, labels)
	}

	counter(metrics.StepTotal, "Step executions by stage, step and status.", "stage", "step", "status")
	counter(metrics.RowsTotal, "Row counts by stage and kind (read, written, dropped, inserted, skipped).", "stage", "kind")
	counter(metrics.JobsTotal, "Jobs handled by stage and status (success, failure, ignored).", "stage", "status")
	histogram(metrics.StepDurationSeconds, "Step duration in seconds.", "stage", "step", "status")
	histogram(metrics.JobDurationSeconds, "Job duration in seconds.", "stage")
	histogram(metrics.IODurationSeconds, "Object store operation duration in seconds.", "stage", "op")
	gauge(metrics.JobsInProgress, "Jobs currently being processed.", "stage")
	gauge(metrics.UptimeSeconds, "Seconds since the process started.", "stage")

	for name, c := range b.counters {
		if err := b.reg.Register(c); err != nil {
			return nil, fmt.Errorf("prom: register %s: %w", name, err)
		}
	}
	for name, h := range b.histograms {
		if err := b.reg.Register(h); err != nil {
			return nil, fmt.Errorf("prom: register %s: %w", name, err)
		}
	}
	for name, g := range b.gauges {
		if err := b.reg.Register(g); err != nil {
			return nil, fmt.Errorf("prom: register %s: %w", name, err)
		}
	}
	if err := b.reg.Register(collectors.NewGoCollector()); err != nil {
		return nil, fmt.Errorf("prom: register go collector: %w", err)
	}
	return b, nil
}

// Registry exposes the underlying registry.
func (b *Backend) Registry() *prometheus.Registry { return b.reg }

// Handler serves the registry in the Prometheus exposition format.
func (b *Backend) Handler() http.Handler {
	return promhttp.HandlerFor(b.reg, promhttp.HandlerOpts{Registry: b.reg})
}

// IncCounter implements metrics.Backend. Unknown names are ignored.
func (b *Backend) IncCounter(name string, delta float64, labels metrics.Labels) {
	if c, ok := b.counters[name]; ok {
		if m, err := c.GetMetricWith(prometheus.Labels(labels)); err == nil {
			m.Add(delta)
		}
	}
}

// ObserveHistogram implements metrics.Backend.
func (b *Backend) ObserveHistogram(name string, value float64, labels metrics.Labels) {
	if h, ok := b.histograms[name]; ok {
		if m, err := h.GetMetricWith(prometheus.Labels(labels)); err == nil {
			m.Observe(value)
		}
	}
}

// SetGauge implements metrics.Backend.
func (b *Backend) SetGauge(name string, value float64, labels metrics.Labels) {
	if g, ok := b.gauges[name]; ok {
		if m, err := g.GetMetricWith(prometheus.Labels(labels)); err == nil {
			m.Set(value)
		}
	}
}

// Flush pushes the registry to the Pushgateway when one is configured.
func (b *Backend) Flush() error {
	if b.gatewayURL == "" {
		return nil
	}
	if err := push.New(b.gatewayURL, b.jobName).Gatherer(b.reg).Push(); err != nil {
		return fmt.Errorf("prom: push: %w", err)
	}
	return nil
}
