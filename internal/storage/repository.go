// Package storage journals executed ledger transactions, the records they
// wrote, the pool events they emitted and the decoded custody balance records.
//
// A Repository is picked by database type through ConnectionManager. The
// memory backend lives in this package; jsonl, postgres and mongo backends
// register themselves when their package is imported.
package storage

import (
	"context"
)

type AccountRepository interface {
	Save(ctx context.Context, account *AccountModel) error
	SaveBatch(ctx context.Context, accounts []*AccountModel) error
	FindByPubkey(ctx context.Context, pubkey string) (*AccountModel, error)
	FindByOwner(ctx context.Context, owner string, limit int, offset int) ([]*AccountModel, error)
	// FindAll returns every stored record in pubkey order.
	FindAll(ctx context.Context) ([]*AccountModel, error)
	Delete(ctx context.Context, pubkey string) error
}

type TransactionRepository interface {
	Save(ctx context.Context, tx *TransactionModel) error
	FindBySignature(ctx context.Context, signature string) (*TransactionModel, error)
	FindByAccountKey(ctx context.Context, accountKey string, limit int, offset int) ([]*TransactionModel, error)
	FindRecent(ctx context.Context, limit int) ([]*TransactionModel, error)
	// LatestSlot returns the highest journaled slot, or 0 for an empty journal.
	LatestSlot(ctx context.Context) (uint64, error)
}

type InstructionRepository interface {
	SaveBatch(ctx context.Context, instructions []*InstructionModel) error
	FindBySignature(ctx context.Context, signature string) ([]*InstructionModel, error)
	FindByProgramID(ctx context.Context, programID string, limit int, offset int) ([]*InstructionModel, error)
}

type EventRepository interface {
	Save(ctx context.Context, event *EventModel) error
	SaveBatch(ctx context.Context, events []*EventModel) error
	FindBySignature(ctx context.Context, signature string) ([]*EventModel, error)
	FindByProgramID(ctx context.Context, programID string, limit int, offset int) ([]*EventModel, error)
	FindByEventName(ctx context.Context, eventName string, limit int, offset int) ([]*EventModel, error)
}

type BalanceRecordRepository interface {
	Save(ctx context.Context, record *BalanceRecordModel) error
	SaveBatch(ctx context.Context, records []*BalanceRecordModel) error
	FindByAddress(ctx context.Context, address string) (*BalanceRecordModel, error)
	FindByOwner(ctx context.Context, owner string, limit int, offset int) ([]*BalanceRecordModel, error)
	FindByMint(ctx context.Context, mint string, limit int, offset int) ([]*BalanceRecordModel, error)
	Delete(ctx context.Context, address string) error
}

// Transactor is implemented by repositories that can apply several writes as
// one unit. fn writes through repo; if it returns an error nothing it wrote
// is kept.
type Transactor interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context, repo Repository) error) error
}

type Repository interface {
	Accounts() AccountRepository
	Transactions() TransactionRepository
	Instructions() InstructionRepository
	Events() EventRepository
	BalanceRecords() BalanceRecordRepository
	Close() error
	Ping(ctx context.Context) error
}
