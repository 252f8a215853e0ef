package storage

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/gagliardetto/solana-go"

	"github.com/lugondev/go-vaultswap/internal/common"
	"github.com/lugondev/go-vaultswap/internal/custody"
	"github.com/lugondev/go-vaultswap/internal/ledger"
	"github.com/lugondev/go-vaultswap/internal/metrics"
	"github.com/lugondev/go-vaultswap/internal/pool"
	"github.com/lugondev/go-vaultswap/pkg/decoder"
	"github.com/lugondev/go-vaultswap/pkg/types"
)

// Journal is a ledger processor that writes every executed transaction to a
// Repository. Aborted transactions are journaled with their error code but
// without records or events, since nothing they wrote was committed.
type Journal struct {
	common.LoggerMixin
	repo      Repository
	programID solana.PublicKey
	events    *decoder.Registry
}

// NewJournal journals into repo, decoding events of the pool program at programID.
func NewJournal(repo Repository, programID solana.PublicKey) *Journal {
	return &Journal{
		LoggerMixin: common.NewLoggerMixin(),
		repo:        repo,
		programID:   programID,
		events:      pool.NewEventRegistry(programID),
	}
}

// WithLogger sets the logger.
func (j *Journal) WithLogger(logger *slog.Logger) *Journal {
	j.SetLogger(logger)
	return j
}

// Repository returns the underlying repository.
func (j *Journal) Repository() Repository {
	return j.repo
}

func (j *Journal) Process(ctx context.Context, result *ledger.Result, m *metrics.Collection) error {
	if err := j.write(ctx, result); err != nil {
		_ = m.IncrementCounter(ctx, metrics.MetricJournalErrors, 1)
		j.GetLogger().Error("failed to journal transaction",
			"signature", result.Signature.String(),
			"slot", result.Slot,
			"error", err,
		)
		return err
	}
	_ = m.IncrementCounter(ctx, metrics.MetricJournalWrites, 1)
	return nil
}

// write persists one transaction. Backends implementing Transactor store it
// atomically; on the others a failure part way leaves the earlier writes.
func (j *Journal) write(ctx context.Context, result *ledger.Result) error {
	if t, ok := j.repo.(Transactor); ok {
		return t.WithTransaction(ctx, func(ctx context.Context, repo Repository) error {
			return j.writeTo(ctx, repo, result)
		})
	}
	return j.writeTo(ctx, j.repo, result)
}

func (j *Journal) writeTo(ctx context.Context, repo Repository, result *ledger.Result) error {
	if err := repo.Transactions().Save(ctx, ResultToTransactionModel(result)); err != nil {
		return fmt.Errorf("failed to save transaction: %w", err)
	}

	instructions := ResultToInstructionModels(result, j.instructionName)
	if err := repo.Instructions().SaveBatch(ctx, instructions); err != nil {
		return fmt.Errorf("failed to save instructions: %w", err)
	}

	if !result.Success() {
		j.GetLogger().Debug("aborted transaction journaled",
			"signature", result.Signature.String(),
			"slot", result.Slot,
			"code", result.ErrorCode(),
		)
		return nil
	}

	if err := j.writeAccounts(ctx, repo, result); err != nil {
		return err
	}

	decoded := pool.DecodeEvents(j.programID, j.events, result.Logs)
	if len(decoded) > 0 {
		events := make([]*EventModel, 0, len(decoded))
		for _, event := range decoded {
			events = append(events, EventToModel(event, result.Signature, result.Slot, result.BlockTime))
		}
		if err := repo.Events().SaveBatch(ctx, events); err != nil {
			return fmt.Errorf("failed to save events: %w", err)
		}
	}

	j.GetLogger().Debug("transaction journaled",
		"signature", result.Signature.String(),
		"slot", result.Slot,
		"accounts", len(result.Accounts),
		"events", len(decoded),
	)
	return nil
}

func (j *Journal) writeAccounts(ctx context.Context, repo Repository, result *ledger.Result) error {
	var (
		accounts []*AccountModel
		balances []*BalanceRecordModel
	)
	for key, account := range result.Accounts {
		if account.IsEmpty() {
			if err := repo.Accounts().Delete(ctx, key.String()); err != nil {
				return fmt.Errorf("failed to delete account: %w", err)
			}
			if err := repo.BalanceRecords().Delete(ctx, key.String()); err != nil {
				return fmt.Errorf("failed to delete balance record: %w", err)
			}
			continue
		}
		accounts = append(accounts, AccountToModel(key, account, result.Slot))

		if account.Owner.Equals(custody.ProgramID) && len(account.Data) == custody.AccountSize {
			record, err := custody.DecodeTokenAccount(account.Data)
			if err != nil {
				j.GetLogger().Warn("undecodable balance record", "address", key.String(), "error", err)
				continue
			}
			balances = append(balances, BalanceRecordToModel(key, record, result.Slot))
		}
	}

	if err := repo.Accounts().SaveBatch(ctx, accounts); err != nil {
		return fmt.Errorf("failed to save accounts: %w", err)
	}
	if err := repo.BalanceRecords().SaveBatch(ctx, balances); err != nil {
		return fmt.Errorf("failed to save balance records: %w", err)
	}
	return nil
}

func (j *Journal) instructionName(programID types.Pubkey, data []byte) string {
	switch {
	case programID.Equals(j.programID):
		return pool.InstructionName(data)
	case programID.Equals(custody.ProgramID):
		return "custody"
	case programID.Equals(custody.AssociatedProgramID):
		return "associated"
	case programID.Equals(solana.SystemProgramID):
		return "system"
	}
	return ""
}

// Restore loads every journaled record into l, fast-forwards its slot and
// marks the transactions of the recent blockhash window as processed, so a
// signed transaction cannot run again against the rebuilt ledger. It
// returns the number of records restored.
func (j *Journal) Restore(ctx context.Context, l *ledger.Ledger) (int, error) {
	models, err := j.repo.Accounts().FindAll(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to load accounts: %w", err)
	}

	for _, model := range models {
		key, account, err := model.Account()
		if err != nil {
			return 0, fmt.Errorf("journaled account %s: %w", model.Pubkey, err)
		}
		l.Restore(key, account)
	}

	slot, err := j.repo.Transactions().LatestSlot(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to load latest slot: %w", err)
	}
	l.RestoreSlot(slot)

	// Every executed transaction takes its own slot, so the most recent
	// ones cover the whole window.
	recent, err := j.repo.Transactions().FindRecent(ctx, ledger.MaxRecentBlockhashes+1)
	if err != nil {
		return 0, fmt.Errorf("failed to load recent transactions: %w", err)
	}
	signatures := make([]solana.Signature, 0, len(recent))
	for _, tx := range recent {
		sig, err := solana.SignatureFromBase58(tx.Signature)
		if err != nil {
			return 0, fmt.Errorf("journaled transaction %s: %w", tx.Signature, err)
		}
		signatures = append(signatures, sig)
	}
	l.RestoreProcessed(signatures...)

	j.GetLogger().Debug("ledger restored from journal",
		"accounts", len(models),
		"slot", slot,
		"signatures", len(signatures),
	)
	return len(models), nil
}
