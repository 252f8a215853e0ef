package metrics

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingMetrics struct {
	*LogMetrics
}

func (f *failingMetrics) IncrementCounter(ctx context.Context, name string, value uint64) error {
	return errors.New("backend down")
}

func TestCollectionDelegates(t *testing.T) {
	ctx := context.Background()
	a := NewLogMetrics(nil)
	b := NewLogMetrics(nil)
	c := NewCollection(a)
	c.Add(b)
	require.Equal(t, 2, c.Len())

	require.NoError(t, c.IncrementCounter(ctx, MetricSwapsExecuted, 2))
	require.NoError(t, c.IncrementCounter(ctx, MetricSwapsExecuted, 3))
	require.NoError(t, c.UpdateGauge(ctx, MetricSlot, 7))

	for _, m := range []*LogMetrics{a, b} {
		s := m.Snapshot()
		assert.Equal(t, uint64(5), s.Counters[MetricSwapsExecuted])
		assert.Equal(t, float64(7), s.Gauges[MetricSlot])
	}
}

func TestCollectionReachesEveryBackend(t *testing.T) {
	ctx := context.Background()
	after := NewLogMetrics(nil)
	c := NewCollection(&failingMetrics{NewLogMetrics(nil)}, after)

	err := c.IncrementCounter(ctx, MetricSwapsFailed, 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "backend down")

	assert.Equal(t, uint64(1), after.Snapshot().Counters[MetricSwapsFailed])
}

func TestHistogramSummary(t *testing.T) {
	ctx := context.Background()
	m := NewLogMetrics(nil)
	for _, v := range []float64{4, 1, 7} {
		require.NoError(t, m.RecordHistogram(ctx, MetricTransactionDurationMs, v))
	}

	h := m.Snapshot().Histograms[MetricTransactionDurationMs]
	assert.Equal(t, uint64(3), h.Count)
	assert.Equal(t, float64(1), h.Min)
	assert.Equal(t, float64(7), h.Max)
	assert.Equal(t, float64(4), h.Mean())
	assert.Zero(t, Summary{}.Mean())
}

func TestSnapshotIsACopy(t *testing.T) {
	ctx := context.Background()
	m := NewLogMetrics(nil)
	require.NoError(t, m.IncrementCounter(ctx, MetricJournalWrites, 1))

	s := m.Snapshot()
	s.Counters[MetricJournalWrites] = 100
	assert.Equal(t, uint64(1), m.Snapshot().Counters[MetricJournalWrites])

	require.NoError(t, NewCollection(m).Shutdown(ctx))
}
