package postgres

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/lugondev/go-vaultswap/internal/storage"
)

type postgresAccountRepository struct {
	db querier
}

const accountColumns = `id, pubkey, lamports, data, owner, executable, rent_epoch, slot, updated_at, created_at`

const upsertAccount = `
	INSERT INTO accounts (` + accountColumns + `)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	ON CONFLICT (pubkey) DO UPDATE SET
		lamports = $3, data = $4, owner = $5, executable = $6, rent_epoch = $7, slot = $8, updated_at = $9
`

func accountArgs(account *storage.AccountModel) []any {
	return []any{
		account.ID, account.Pubkey, account.Lamports, account.Data, account.Owner,
		account.Executable, account.RentEpoch, account.Slot, account.UpdatedAt, account.CreatedAt,
	}
}

func (r *postgresAccountRepository) Save(ctx context.Context, account *storage.AccountModel) error {
	_, err := r.db.Exec(ctx, upsertAccount, accountArgs(account)...)
	return err
}

func (r *postgresAccountRepository) SaveBatch(ctx context.Context, accounts []*storage.AccountModel) error {
	return sendBatch(ctx, r.db, len(accounts), func(batch *pgx.Batch, i int) {
		batch.Queue(upsertAccount, accountArgs(accounts[i])...)
	})
}

func (r *postgresAccountRepository) FindByPubkey(ctx context.Context, pubkey string) (*storage.AccountModel, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE pubkey = $1`
	return queryOne(ctx, r.db, query, scanAccount, pubkey)
}

func (r *postgresAccountRepository) FindByOwner(ctx context.Context, owner string, limit int, offset int) ([]*storage.AccountModel, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE owner = $1 ORDER BY slot DESC LIMIT $2 OFFSET $3`
	return queryMany(ctx, r.db, query, scanAccount, owner, limitArg(limit), offset)
}

func (r *postgresAccountRepository) FindAll(ctx context.Context) ([]*storage.AccountModel, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts ORDER BY pubkey`
	return queryMany(ctx, r.db, query, scanAccount)
}

func (r *postgresAccountRepository) Delete(ctx context.Context, pubkey string) error {
	_, err := r.db.Exec(ctx, `DELETE FROM accounts WHERE pubkey = $1`, pubkey)
	return err
}

func scanAccount(row pgx.Row) (*storage.AccountModel, error) {
	var account storage.AccountModel
	err := row.Scan(
		&account.ID, &account.Pubkey, &account.Lamports, &account.Data, &account.Owner,
		&account.Executable, &account.RentEpoch, &account.Slot, &account.UpdatedAt, &account.CreatedAt,
	)
	return &account, err
}

type postgresTransactionRepository struct {
	db querier
}

const transactionColumns = `id, signature, slot, block_time, success, error_code, error_message,
	account_keys, num_instructions, log_messages, return_data, duration_us, created_at`

func (r *postgresTransactionRepository) Save(ctx context.Context, tx *storage.TransactionModel) error {
	query := `
		INSERT INTO transactions (` + transactionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (signature) DO UPDATE SET
			slot = $3, block_time = $4, success = $5, error_code = $6, error_message = $7,
			account_keys = $8, num_instructions = $9, log_messages = $10, return_data = $11, duration_us = $12
	`
	_, err := r.db.Exec(ctx, query,
		tx.ID, tx.Signature, tx.Slot, tx.BlockTime, tx.Success, tx.ErrorCode, tx.ErrorMessage,
		tx.AccountKeys, tx.NumInstructions, tx.LogMessages, tx.ReturnData, tx.DurationMicros, tx.CreatedAt,
	)
	return err
}

func (r *postgresTransactionRepository) FindBySignature(ctx context.Context, signature string) (*storage.TransactionModel, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE signature = $1`
	return queryOne(ctx, r.db, query, scanTransaction, signature)
}

func (r *postgresTransactionRepository) FindByAccountKey(ctx context.Context, accountKey string, limit int, offset int) ([]*storage.TransactionModel, error) {
	query := `SELECT ` + transactionColumns + `
		FROM transactions WHERE $1 = ANY(account_keys) ORDER BY slot DESC LIMIT $2 OFFSET $3`
	return queryMany(ctx, r.db, query, scanTransaction, accountKey, limitArg(limit), offset)
}

func (r *postgresTransactionRepository) FindRecent(ctx context.Context, limit int) ([]*storage.TransactionModel, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions ORDER BY slot DESC LIMIT $1`
	return queryMany(ctx, r.db, query, scanTransaction, limitArg(limit))
}

func (r *postgresTransactionRepository) LatestSlot(ctx context.Context) (uint64, error) {
	var slot uint64
	err := r.db.QueryRow(ctx, `SELECT COALESCE(MAX(slot), 0) FROM transactions`).Scan(&slot)
	return slot, err
}

func scanTransaction(row pgx.Row) (*storage.TransactionModel, error) {
	var tx storage.TransactionModel
	err := row.Scan(
		&tx.ID, &tx.Signature, &tx.Slot, &tx.BlockTime, &tx.Success, &tx.ErrorCode, &tx.ErrorMessage,
		&tx.AccountKeys, &tx.NumInstructions, &tx.LogMessages, &tx.ReturnData, &tx.DurationMicros, &tx.CreatedAt,
	)
	return &tx, err
}

type postgresInstructionRepository struct {
	db querier
}

const instructionColumns = `id, signature, instruction_index, program_id, name, data, accounts, created_at`

func (r *postgresInstructionRepository) SaveBatch(ctx context.Context, instructions []*storage.InstructionModel) error {
	query := `INSERT INTO instructions (` + instructionColumns + `) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	return sendBatch(ctx, r.db, len(instructions), func(batch *pgx.Batch, i int) {
		ix := instructions[i]
		batch.Queue(query,
			ix.ID, ix.Signature, ix.InstructionIndex, ix.ProgramID, ix.Name, ix.Data, ix.Accounts, ix.CreatedAt,
		)
	})
}

func (r *postgresInstructionRepository) FindBySignature(ctx context.Context, signature string) ([]*storage.InstructionModel, error) {
	query := `SELECT ` + instructionColumns + ` FROM instructions WHERE signature = $1 ORDER BY instruction_index`
	return queryMany(ctx, r.db, query, scanInstruction, signature)
}

func (r *postgresInstructionRepository) FindByProgramID(ctx context.Context, programID string, limit int, offset int) ([]*storage.InstructionModel, error) {
	query := `SELECT ` + instructionColumns + `
		FROM instructions WHERE program_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`
	return queryMany(ctx, r.db, query, scanInstruction, programID, limitArg(limit), offset)
}

func scanInstruction(row pgx.Row) (*storage.InstructionModel, error) {
	var ix storage.InstructionModel
	err := row.Scan(
		&ix.ID, &ix.Signature, &ix.InstructionIndex, &ix.ProgramID, &ix.Name, &ix.Data, &ix.Accounts, &ix.CreatedAt,
	)
	return &ix, err
}

type postgresEventRepository struct {
	db querier
}

const eventColumns = `id, signature, program_id, event_name, data, raw_data, slot, block_time, created_at`

const insertEvent = `INSERT INTO events (` + eventColumns + `) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

func (r *postgresEventRepository) Save(ctx context.Context, event *storage.EventModel) error {
	return r.SaveBatch(ctx, []*storage.EventModel{event})
}

func (r *postgresEventRepository) SaveBatch(ctx context.Context, events []*storage.EventModel) error {
	marshaledData := make([][]byte, len(events))
	for i, event := range events {
		dataJSON, err := json.Marshal(event.Data)
		if err != nil {
			return fmt.Errorf("failed to marshal event data at index %d: %w", i, err)
		}
		marshaledData[i] = dataJSON
	}

	return sendBatch(ctx, r.db, len(events), func(batch *pgx.Batch, i int) {
		event := events[i]
		batch.Queue(insertEvent,
			event.ID, event.Signature, event.ProgramID, event.EventName,
			marshaledData[i], event.RawData, event.Slot, event.BlockTime, event.CreatedAt,
		)
	})
}

func (r *postgresEventRepository) FindBySignature(ctx context.Context, signature string) ([]*storage.EventModel, error) {
	query := `SELECT ` + eventColumns + ` FROM events WHERE signature = $1`
	return queryMany(ctx, r.db, query, scanEvent, signature)
}

func (r *postgresEventRepository) FindByProgramID(ctx context.Context, programID string, limit int, offset int) ([]*storage.EventModel, error) {
	query := `SELECT ` + eventColumns + ` FROM events WHERE program_id = $1 ORDER BY slot DESC LIMIT $2 OFFSET $3`
	return queryMany(ctx, r.db, query, scanEvent, programID, limitArg(limit), offset)
}

func (r *postgresEventRepository) FindByEventName(ctx context.Context, eventName string, limit int, offset int) ([]*storage.EventModel, error) {
	query := `SELECT ` + eventColumns + ` FROM events WHERE event_name = $1 ORDER BY slot DESC LIMIT $2 OFFSET $3`
	return queryMany(ctx, r.db, query, scanEvent, eventName, limitArg(limit), offset)
}

func scanEvent(row pgx.Row) (*storage.EventModel, error) {
	var (
		event    storage.EventModel
		dataJSON []byte
	)
	if err := row.Scan(
		&event.ID, &event.Signature, &event.ProgramID, &event.EventName,
		&dataJSON, &event.RawData, &event.Slot, &event.BlockTime, &event.CreatedAt,
	); err != nil {
		return nil, err
	}

	dec := json.NewDecoder(bytes.NewReader(dataJSON))
	dec.UseNumber()
	if err := dec.Decode(&event.Data); err != nil {
		return nil, fmt.Errorf("failed to unmarshal event data: %w", err)
	}
	return &event, nil
}

type postgresBalanceRecordRepository struct {
	db querier
}

const balanceRecordColumns = `id, address, mint, owner, amount, delegate, delegated_amount, close_authority, slot, updated_at, created_at`

const upsertBalanceRecord = `
	INSERT INTO balance_records (` + balanceRecordColumns + `)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	ON CONFLICT (address) DO UPDATE SET
		mint = $3, owner = $4, amount = $5, delegate = $6, delegated_amount = $7,
		close_authority = $8, slot = $9, updated_at = $10
`

func balanceRecordArgs(b *storage.BalanceRecordModel) []any {
	return []any{
		b.ID, b.Address, b.Mint, b.Owner, b.Amount, b.Delegate, b.DelegatedAmount,
		b.CloseAuthority, b.Slot, b.UpdatedAt, b.CreatedAt,
	}
}

func (r *postgresBalanceRecordRepository) Save(ctx context.Context, record *storage.BalanceRecordModel) error {
	_, err := r.db.Exec(ctx, upsertBalanceRecord, balanceRecordArgs(record)...)
	return err
}

func (r *postgresBalanceRecordRepository) SaveBatch(ctx context.Context, records []*storage.BalanceRecordModel) error {
	return sendBatch(ctx, r.db, len(records), func(batch *pgx.Batch, i int) {
		batch.Queue(upsertBalanceRecord, balanceRecordArgs(records[i])...)
	})
}

func (r *postgresBalanceRecordRepository) FindByAddress(ctx context.Context, address string) (*storage.BalanceRecordModel, error) {
	query := `SELECT ` + balanceRecordColumns + ` FROM balance_records WHERE address = $1`
	return queryOne(ctx, r.db, query, scanBalanceRecord, address)
}

func (r *postgresBalanceRecordRepository) FindByOwner(ctx context.Context, owner string, limit int, offset int) ([]*storage.BalanceRecordModel, error) {
	query := `SELECT ` + balanceRecordColumns + ` FROM balance_records WHERE owner = $1 ORDER BY address LIMIT $2 OFFSET $3`
	return queryMany(ctx, r.db, query, scanBalanceRecord, owner, limitArg(limit), offset)
}

func (r *postgresBalanceRecordRepository) FindByMint(ctx context.Context, mint string, limit int, offset int) ([]*storage.BalanceRecordModel, error) {
	query := `SELECT ` + balanceRecordColumns + ` FROM balance_records WHERE mint = $1 ORDER BY address LIMIT $2 OFFSET $3`
	return queryMany(ctx, r.db, query, scanBalanceRecord, mint, limitArg(limit), offset)
}

func (r *postgresBalanceRecordRepository) Delete(ctx context.Context, address string) error {
	_, err := r.db.Exec(ctx, `DELETE FROM balance_records WHERE address = $1`, address)
	return err
}

func scanBalanceRecord(row pgx.Row) (*storage.BalanceRecordModel, error) {
	var b storage.BalanceRecordModel
	err := row.Scan(
		&b.ID, &b.Address, &b.Mint, &b.Owner, &b.Amount, &b.Delegate, &b.DelegatedAmount,
		&b.CloseAuthority, &b.Slot, &b.UpdatedAt, &b.CreatedAt,
	)
	return &b, err
}

