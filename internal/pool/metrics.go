package pool

import (
	"context"

	"github.com/gagliardetto/solana-go"

	"github.com/lugondev/go-vaultswap/internal/ledger"
	"github.com/lugondev/go-vaultswap/internal/metrics"
	"github.com/lugondev/go-vaultswap/internal/processor"
	"github.com/lugondev/go-vaultswap/pkg/decoder"
)

// NewMetricsProcessor counts pool activity from finished transactions:
// executed swaps and their volume from Swapped events, failed swaps from
// aborted buy and sell instructions.
func NewMetricsProcessor(programID solana.PublicKey) processor.Processor[*ledger.Result] {
	registry := NewEventRegistry(programID)
	return processor.ProcessorFunc[*ledger.Result](func(ctx context.Context, result *ledger.Result, m *metrics.Collection) error {
		if !result.Success() {
			failed := 0
			for _, name := range Instructions(programID, result.Transaction) {
				if name == "buy" || name == "sell" {
					failed++
				}
			}
			if failed == 0 {
				return nil
			}
			return m.IncrementCounter(ctx, metrics.MetricSwapsFailed, uint64(failed))
		}

		for _, event := range DecodeEvents(programID, registry, result.Logs) {
			if err := recordEvent(ctx, m, event); err != nil {
				return err
			}
		}
		return nil
	})
}

func recordEvent(ctx context.Context, m *metrics.Collection, event *decoder.Event) error {
	switch e := event.Data.(type) {
	case *SwappedEvent:
		if err := m.IncrementCounter(ctx, metrics.MetricSwapsExecuted, 1); err != nil {
			return err
		}
		if err := m.IncrementCounter(ctx, metrics.MetricSwapVolumeIn, e.AmountIn); err != nil {
			return err
		}
		return m.IncrementCounter(ctx, metrics.MetricSwapVolumeOut, e.AmountOut)
	case *PoolInitializedEvent:
		return m.IncrementCounter(ctx, metrics.MetricPoolsInitialized, 1)
	}
	return nil
}

// Instructions names the top-level pool instructions of tx, in order.
func Instructions(programID solana.PublicKey, tx *solana.Transaction) []string {
	if tx == nil {
		return nil
	}
	var names []string
	for _, ci := range tx.Message.Instructions {
		pid, err := tx.Message.ResolveProgramIDIndex(ci.ProgramIDIndex)
		if err != nil || !pid.Equals(programID) {
			continue
		}
		if name := InstructionName(ci.Data); name != "" {
			names = append(names, name)
		}
	}
	return names
}
