package metrics

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func gathered(t *testing.T, p *PrometheusMetrics) map[string]*dto.MetricFamily {
	t.Helper()
	families, err := p.Gatherer().Gather()
	require.NoError(t, err)
	out := make(map[string]*dto.MetricFamily, len(families))
	for _, f := range families {
		out[f.GetName()] = f
	}
	return out
}

func TestPrometheusMetrics(t *testing.T) {
	ctx := context.Background()
	p := NewPrometheusMetrics("vaultswap", "")

	require.NoError(t, p.IncrementCounter(ctx, MetricSwapsExecuted, 2))
	require.NoError(t, p.IncrementCounter(ctx, MetricSwapsExecuted, 1))
	require.NoError(t, p.UpdateGauge(ctx, MetricSlot, 12))
	require.NoError(t, p.RecordHistogram(ctx, MetricTransactionDurationMs, 0.7))
	require.NoError(t, p.RecordHistogram(ctx, MetricTransactionDurationMs, 3.1))

	families := gathered(t, p)

	swaps := families["vaultswap_swaps_executed_total"]
	require.NotNil(t, swaps)
	assert.Equal(t, float64(3), swaps.GetMetric()[0].GetCounter().GetValue())

	slot := families["vaultswap_slot"]
	require.NotNil(t, slot)
	assert.Equal(t, float64(12), slot.GetMetric()[0].GetGauge().GetValue())

	duration := families["vaultswap_transaction_duration_ms"]
	require.NotNil(t, duration)
	assert.Equal(t, uint64(2), duration.GetMetric()[0].GetHistogram().GetSampleCount())
	assert.InDelta(t, 3.8, duration.GetMetric()[0].GetHistogram().GetSampleSum(), 1e-9)

	require.NoError(t, p.Flush(ctx))
}

func TestPrometheusTextfile(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "vaultswap.prom")
	p := NewPrometheusMetrics("vaultswap", path)
	c := NewCollection(NewLogMetrics(nil), p)

	require.NoError(t, c.IncrementCounter(ctx, MetricJournalWrites, 4))
	require.NoError(t, c.Shutdown(ctx))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "vaultswap_journal_writes_total 4")
}
