// Package metrics records ledger and swap activity.
//
// The ledger runtime reports transaction outcomes and latencies, the pool
// program reports swap volume per side and the journal reports its writes.
// A Collection fans every call out to any number of backends.
package metrics

import (
	"context"
	"errors"
	"log/slog"
	"maps"
	"sync"
)

// Metrics is a metrics backend.
type Metrics interface {
	// Flush reports buffered values.
	Flush(ctx context.Context) error

	// Shutdown releases the backend. No calls follow it.
	Shutdown(ctx context.Context) error

	// UpdateGauge sets a value that can go up or down, like the current slot.
	UpdateGauge(ctx context.Context, name string, value float64) error

	// IncrementCounter adds to a monotonically increasing total.
	IncrementCounter(ctx context.Context, name string, value uint64) error

	// RecordHistogram adds one observation to a distribution.
	RecordHistogram(ctx context.Context, name string, value float64) error
}

// Collection fans calls out to every registered backend. A failing backend
// does not keep the others from receiving the value; all errors are joined.
type Collection struct {
	mu       sync.RWMutex
	backends []Metrics
}

func NewCollection(backends ...Metrics) *Collection {
	return &Collection{backends: backends}
}

// Add registers another backend.
func (c *Collection) Add(m Metrics) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.backends = append(c.backends, m)
}

// Len returns the number of backends.
func (c *Collection) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.backends)
}

func (c *Collection) each(fn func(Metrics) error) error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var errs []error
	for _, m := range c.backends {
		if err := fn(m); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (c *Collection) Flush(ctx context.Context) error {
	return c.each(func(m Metrics) error { return m.Flush(ctx) })
}

func (c *Collection) Shutdown(ctx context.Context) error {
	return c.each(func(m Metrics) error { return m.Shutdown(ctx) })
}

func (c *Collection) UpdateGauge(ctx context.Context, name string, value float64) error {
	return c.each(func(m Metrics) error { return m.UpdateGauge(ctx, name, value) })
}

func (c *Collection) IncrementCounter(ctx context.Context, name string, value uint64) error {
	return c.each(func(m Metrics) error { return m.IncrementCounter(ctx, name, value) })
}

func (c *Collection) RecordHistogram(ctx context.Context, name string, value float64) error {
	return c.each(func(m Metrics) error { return m.RecordHistogram(ctx, name, value) })
}

// Summary aggregates the observations of one histogram.
type Summary struct {
	Count uint64  `json:"count" yaml:"count"`
	Sum   float64 `json:"sum" yaml:"sum"`
	Min   float64 `json:"min" yaml:"min"`
	Max   float64 `json:"max" yaml:"max"`
}

func (s Summary) Mean() float64 {
	if s.Count == 0 {
		return 0
	}
	return s.Sum / float64(s.Count)
}

func (s *Summary) observe(v float64) {
	if s.Count == 0 || v < s.Min {
		s.Min = v
	}
	if s.Count == 0 || v > s.Max {
		s.Max = v
	}
	s.Count++
	s.Sum += v
}

// Snapshot is a point-in-time copy of everything a LogMetrics has seen.
type Snapshot struct {
	Counters   map[string]uint64
	Gauges     map[string]float64
	Histograms map[string]Summary
}

// LogMetrics keeps values in memory and writes them to slog: every update at
// debug level, the totals on Flush.
type LogMetrics struct {
	logger *slog.Logger

	mu         sync.RWMutex
	counters   map[string]uint64
	gauges     map[string]float64
	histograms map[string]*Summary
}

// NewLogMetrics returns a LogMetrics writing to logger, or to the default
// logger when nil.
func NewLogMetrics(logger *slog.Logger) *LogMetrics {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogMetrics{
		logger:     logger.With("component", "metrics"),
		counters:   make(map[string]uint64),
		gauges:     make(map[string]float64),
		histograms: make(map[string]*Summary),
	}
}

func (l *LogMetrics) Flush(ctx context.Context) error {
	s := l.Snapshot()
	attrs := make([]any, 0, len(s.Histograms))
	for name, h := range s.Histograms {
		attrs = append(attrs, slog.Group(name,
			"count", h.Count, "mean", h.Mean(), "min", h.Min, "max", h.Max))
	}
	l.logger.InfoContext(ctx, "metrics",
		"counters", s.Counters,
		"gauges", s.Gauges,
		slog.Group("histograms", attrs...),
	)
	return nil
}

// Shutdown only drops a debug line; call Flush to log the totals.
func (l *LogMetrics) Shutdown(ctx context.Context) error {
	l.logger.DebugContext(ctx, "metrics shutdown")
	return nil
}

func (l *LogMetrics) UpdateGauge(ctx context.Context, name string, value float64) error {
	l.mu.Lock()
	l.gauges[name] = value
	l.mu.Unlock()

	l.logger.DebugContext(ctx, "gauge", "name", name, "value", value)
	return nil
}

func (l *LogMetrics) IncrementCounter(ctx context.Context, name string, value uint64) error {
	l.mu.Lock()
	l.counters[name] += value
	total := l.counters[name]
	l.mu.Unlock()

	l.logger.DebugContext(ctx, "counter", "name", name, "delta", value, "total", total)
	return nil
}

func (l *LogMetrics) RecordHistogram(ctx context.Context, name string, value float64) error {
	l.mu.Lock()
	h, ok := l.histograms[name]
	if !ok {
		h = &Summary{}
		l.histograms[name] = h
	}
	h.observe(value)
	l.mu.Unlock()

	l.logger.DebugContext(ctx, "histogram", "name", name, "value", value)
	return nil
}

// Snapshot copies the current values.
func (l *LogMetrics) Snapshot() Snapshot {
	l.mu.RLock()
	defer l.mu.RUnlock()

	histograms := make(map[string]Summary, len(l.histograms))
	for name, h := range l.histograms {
		histograms[name] = *h
	}
	return Snapshot{
		Counters:   maps.Clone(l.counters),
		Gauges:     maps.Clone(l.gauges),
		Histograms: histograms,
	}
}

// Metric names used by the ledger runtime, the pool program and the journal.
const (
	MetricTransactionsSubmitted = "transactions_submitted"
	MetricTransactionsCommitted = "transactions_committed"
	MetricTransactionsAborted   = "transactions_aborted"
	MetricTransactionDurationMs = "transaction_duration_ms"
	MetricAccountsWritten       = "accounts_written"
	MetricSlot                  = "slot"

	MetricSwapsExecuted    = "swaps_executed"
	MetricSwapsFailed      = "swaps_failed"
	MetricSwapVolumeIn     = "swap_volume_in"
	MetricSwapVolumeOut    = "swap_volume_out"
	MetricPoolsInitialized = "pools_initialized"

	MetricJournalWrites = "journal_writes"
	MetricJournalErrors = "journal_errors"
)
