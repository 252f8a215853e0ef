package metrics

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusMetrics exports every metric through a private Prometheus
// registry. Counters gain a _total suffix. Collectors are created on first
// use, so any metric name is accepted. Flush writes the registry to a
// node_exporter textfile when one is configured.
type PrometheusMetrics struct {
	namespace string
	textfile  string
	registry  *prometheus.Registry

	mu         sync.Mutex
	counters   map[string]prometheus.Counter
	gauges     map[string]prometheus.Gauge
	histograms map[string]prometheus.Histogram
}

// DurationBuckets are the histogram buckets in milliseconds.
var DurationBuckets = prometheus.ExponentialBuckets(0.05, 2, 14)

func NewPrometheusMetrics(namespace, textfile string) *PrometheusMetrics {
	return &PrometheusMetrics{
		namespace:  namespace,
		textfile:   textfile,
		registry:   prometheus.NewRegistry(),
		counters:   make(map[string]prometheus.Counter),
		gauges:     make(map[string]prometheus.Gauge),
		histograms: make(map[string]prometheus.Histogram),
	}
}

// Gatherer exposes the registry, e.g. for promhttp or tests.
func (p *PrometheusMetrics) Gatherer() prometheus.Gatherer {
	return p.registry
}

// register adds c to the registry, returning the collector already
// registered under the same name if there is one.
func register[C prometheus.Collector](r *prometheus.Registry, c C) (C, error) {
	if err := r.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		var zero C
		return zero, err
	}
	return c, nil
}

func (p *PrometheusMetrics) counter(name string) (prometheus.Counter, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if c, ok := p.counters[name]; ok {
		return c, nil
	}
	c, err := register(p.registry, prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: p.namespace,
		Name:      name + "_total",
		Help:      "Total " + name + ".",
	}))
	if err != nil {
		return nil, fmt.Errorf("register counter %s: %w", name, err)
	}
	p.counters[name] = c
	return c, nil
}

func (p *PrometheusMetrics) gauge(name string) (prometheus.Gauge, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if g, ok := p.gauges[name]; ok {
		return g, nil
	}
	g, err := register(p.registry, prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: p.namespace,
		Name:      name,
		Help:      "Current " + name + ".",
	}))
	if err != nil {
		return nil, fmt.Errorf("register gauge %s: %w", name, err)
	}
	p.gauges[name] = g
	return g, nil
}

func (p *PrometheusMetrics) histogram(name string) (prometheus.Histogram, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if h, ok := p.histograms[name]; ok {
		return h, nil
	}
	h, err := register(p.registry, prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: p.namespace,
		Name:      name,
		Help:      "Distribution of " + name + ".",
		Buckets:   DurationBuckets,
	}))
	if err != nil {
		return nil, fmt.Errorf("register histogram %s: %w", name, err)
	}
	p.histograms[name] = h
	return h, nil
}

func (p *PrometheusMetrics) IncrementCounter(ctx context.Context, name string, value uint64) error {
	c, err := p.counter(name)
	if err != nil {
		return err
	}
	c.Add(float64(value))
	return nil
}

func (p *PrometheusMetrics) UpdateGauge(ctx context.Context, name string, value float64) error {
	g, err := p.gauge(name)
	if err != nil {
		return err
	}
	g.Set(value)
	return nil
}

func (p *PrometheusMetrics) RecordHistogram(ctx context.Context, name string, value float64) error {
	h, err := p.histogram(name)
	if err != nil {
		return err
	}
	h.Observe(value)
	return nil
}

// Flush writes the registry to the textfile, if one is set.
func (p *PrometheusMetrics) Flush(ctx context.Context) error {
	if p.textfile == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(p.textfile), 0o755); err != nil {
		return fmt.Errorf("create metrics directory: %w", err)
	}
	if err := prometheus.WriteToTextfile(p.textfile, p.registry); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}

func (p *PrometheusMetrics) Shutdown(ctx context.Context) error {
	return p.Flush(ctx)
}
