// Package jsonl is a file journal backend: every write is appended to a JSON
// lines file, and opening the file replays it into memory.
package jsonl

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/lugondev/go-vaultswap/internal/config"
	"github.com/lugondev/go-vaultswap/internal/storage"
)

const maxLineSize = 16 << 20

type entryKind string

const (
	kindAccount       entryKind = "account"
	kindAccountDelete entryKind = "account_delete"
	kindTransaction   entryKind = "transaction"
	kindInstruction   entryKind = "instruction"
	kindEvent         entryKind = "event"
	kindBalanceRecord entryKind = "balance_record"
	kindBalanceDelete entryKind = "balance_record_delete"
)

type entry struct {
	Kind   entryKind       `json:"kind"`
	Key    string          `json:"key,omitempty"`
	Record json.RawMessage `json:"record,omitempty"`
}

func init() {
	storage.RegisterFactory(storage.DatabaseTypeJSONL, func(ctx context.Context, cfg *config.DatabaseConfig) (storage.Repository, error) {
		repo, err := Open(ctx, cfg.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to open jsonl journal: %w", err)
		}
		return repo, nil
	})
}

// Repository serves reads from memory and appends writes to path.
type Repository struct {
	path string
	mu   *sync.Mutex
	mem  *storage.MemoryRepository

	// pending collects the writes of an open WithTransaction.
	pending *[]entry
}

// Open replays the journal at path. A missing file is an empty journal.
func Open(ctx context.Context, path string) (*Repository, error) {
	if path == "" {
		return nil, fmt.Errorf("jsonl journal path is empty")
	}
	r := &Repository{path: path, mu: new(sync.Mutex), mem: storage.NewMemoryRepository()}
	if err := r.replay(ctx); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *Repository) replay(ctx context.Context) error {
	file, err := os.Open(r.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("open journal: %w", err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	line := 0
	for scanner.Scan() {
		line++
		raw := scanner.Bytes()
		if len(raw) == 0 {
			continue
		}
		var e entry
		if err := json.Unmarshal(raw, &e); err != nil {
			return fmt.Errorf("journal line %d: %w", line, err)
		}
		if err := r.apply(ctx, &e); err != nil {
			return fmt.Errorf("journal line %d: %w", line, err)
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read journal: %w", err)
	}
	return nil
}

// decode keeps numbers inside free-form event fields as json.Number.
func decode(raw json.RawMessage, v any) error {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	return dec.Decode(v)
}

func (r *Repository) apply(ctx context.Context, e *entry) error {
	switch e.Kind {
	case kindAccount:
		var m storage.AccountModel
		if err := decode(e.Record, &m); err != nil {
			return err
		}
		return r.mem.Accounts().Save(ctx, &m)
	case kindAccountDelete:
		return r.mem.Accounts().Delete(ctx, e.Key)
	case kindTransaction:
		var m storage.TransactionModel
		if err := decode(e.Record, &m); err != nil {
			return err
		}
		return r.mem.Transactions().Save(ctx, &m)
	case kindInstruction:
		var m storage.InstructionModel
		if err := decode(e.Record, &m); err != nil {
			return err
		}
		return r.mem.Instructions().SaveBatch(ctx, []*storage.InstructionModel{&m})
	case kindEvent:
		var m storage.EventModel
		if err := decode(e.Record, &m); err != nil {
			return err
		}
		return r.mem.Events().Save(ctx, &m)
	case kindBalanceRecord:
		var m storage.BalanceRecordModel
		if err := decode(e.Record, &m); err != nil {
			return err
		}
		return r.mem.BalanceRecords().Save(ctx, &m)
	case kindBalanceDelete:
		return r.mem.BalanceRecords().Delete(ctx, e.Key)
	default:
		return fmt.Errorf("unknown entry kind %q", e.Kind)
	}
}

// appendEntries writes entries to the journal file in a single write, then
// applies them in memory. Inside a transaction they are only collected.
func (r *Repository) appendEntries(ctx context.Context, entries []entry) error {
	if len(entries) == 0 {
		return nil
	}
	if r.pending != nil {
		*r.pending = append(*r.pending, entries...)
		return nil
	}

	var buf bytes.Buffer
	for i := range entries {
		line, err := json.Marshal(&entries[i])
		if err != nil {
			return fmt.Errorf("marshal journal entry: %w", err)
		}
		buf.Write(line)
		buf.WriteByte('\n')
	}

	dir := filepath.Dir(r.path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create journal dir: %w", err)
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	file, err := os.OpenFile(r.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open journal: %w", err)
	}
	if _, err := file.Write(buf.Bytes()); err != nil {
		_ = file.Close()
		return fmt.Errorf("write journal entries: %w", err)
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("close journal: %w", err)
	}

	for i := range entries {
		if err := r.apply(ctx, &entries[i]); err != nil {
			return err
		}
	}
	return nil
}

// WithTransaction collects every write fn makes and appends them together
// once fn returns nil. Nothing is written when fn fails. Reads inside fn do
// not see its own writes.
func (r *Repository) WithTransaction(ctx context.Context, fn func(ctx context.Context, repo storage.Repository) error) error {
	if r.pending != nil {
		return fn(ctx, r)
	}
	var pending []entry
	tx := &Repository{path: r.path, mu: r.mu, mem: r.mem, pending: &pending}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	return r.appendEntries(ctx, pending)
}

func records[T any](kind entryKind, items []*T) ([]entry, error) {
	entries := make([]entry, 0, len(items))
	for _, item := range items {
		raw, err := json.Marshal(item)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry{Kind: kind, Record: raw})
	}
	return entries, nil
}

func (r *Repository) write(ctx context.Context, kind entryKind, raw any) error {
	rec, err := json.Marshal(raw)
	if err != nil {
		return err
	}
	return r.appendEntries(ctx, []entry{{Kind: kind, Record: rec}})
}

func (r *Repository) Accounts() storage.AccountRepository { return accounts{r} }
func (r *Repository) Transactions() storage.TransactionRepository { return transactions{r} }
func (r *Repository) Instructions() storage.InstructionRepository { return instructions{r} }
func (r *Repository) Events() storage.EventRepository { return events{r} }
func (r *Repository) BalanceRecords() storage.BalanceRecordRepository { return balanceRecords{r} }

// Path returns the journal file location.
func (r *Repository) Path() string { return r.path }

func (r *Repository) Close() error { return nil }

func (r *Repository) Ping(ctx context.Context) error { return ctx.Err() }

type accounts struct{ r *Repository }

func (a accounts) Save(ctx context.Context, account *storage.AccountModel) error {
	return a.r.write(ctx, kindAccount, account)
}

func (a accounts) SaveBatch(ctx context.Context, models []*storage.AccountModel) error {
	entries, err := records(kindAccount, models)
	if err != nil {
		return err
	}
	return a.r.appendEntries(ctx, entries)
}

func (a accounts) FindByPubkey(ctx context.Context, pubkey string) (*storage.AccountModel, error) {
	return a.r.mem.Accounts().FindByPubkey(ctx, pubkey)
}

func (a accounts) FindByOwner(ctx context.Context, owner string, limit int, offset int) ([]*storage.AccountModel, error) {
	return a.r.mem.Accounts().FindByOwner(ctx, owner, limit, offset)
}

func (a accounts) FindAll(ctx context.Context) ([]*storage.AccountModel, error) {
	return a.r.mem.Accounts().FindAll(ctx)
}

func (a accounts) Delete(ctx context.Context, pubkey string) error {
	return a.r.appendEntries(ctx, []entry{{Kind: kindAccountDelete, Key: pubkey}})
}

type transactions struct{ r *Repository }

func (t transactions) Save(ctx context.Context, tx *storage.TransactionModel) error {
	return t.r.write(ctx, kindTransaction, tx)
}

func (t transactions) FindBySignature(ctx context.Context, signature string) (*storage.TransactionModel, error) {
	return t.r.mem.Transactions().FindBySignature(ctx, signature)
}

func (t transactions) FindByAccountKey(ctx context.Context, accountKey string, limit int, offset int) ([]*storage.TransactionModel, error) {
	return t.r.mem.Transactions().FindByAccountKey(ctx, accountKey, limit, offset)
}

func (t transactions) FindRecent(ctx context.Context, limit int) ([]*storage.TransactionModel, error) {
	return t.r.mem.Transactions().FindRecent(ctx, limit)
}

func (t transactions) LatestSlot(ctx context.Context) (uint64, error) {
	return t.r.mem.Transactions().LatestSlot(ctx)
}

type instructions struct{ r *Repository }

func (i instructions) SaveBatch(ctx context.Context, models []*storage.InstructionModel) error {
	entries, err := records(kindInstruction, models)
	if err != nil {
		return err
	}
	return i.r.appendEntries(ctx, entries)
}

func (i instructions) FindBySignature(ctx context.Context, signature string) ([]*storage.InstructionModel, error) {
	return i.r.mem.Instructions().FindBySignature(ctx, signature)
}

func (i instructions) FindByProgramID(ctx context.Context, programID string, limit int, offset int) ([]*storage.InstructionModel, error) {
	return i.r.mem.Instructions().FindByProgramID(ctx, programID, limit, offset)
}

type events struct{ r *Repository }

func (e events) Save(ctx context.Context, event *storage.EventModel) error {
	return e.r.write(ctx, kindEvent, event)
}

func (e events) SaveBatch(ctx context.Context, models []*storage.EventModel) error {
	entries, err := records(kindEvent, models)
	if err != nil {
		return err
	}
	return e.r.appendEntries(ctx, entries)
}

func (e events) FindBySignature(ctx context.Context, signature string) ([]*storage.EventModel, error) {
	return e.r.mem.Events().FindBySignature(ctx, signature)
}

func (e events) FindByProgramID(ctx context.Context, programID string, limit int, offset int) ([]*storage.EventModel, error) {
	return e.r.mem.Events().FindByProgramID(ctx, programID, limit, offset)
}

func (e events) FindByEventName(ctx context.Context, eventName string, limit int, offset int) ([]*storage.EventModel, error) {
	return e.r.mem.Events().FindByEventName(ctx, eventName, limit, offset)
}

type balanceRecords struct{ r *Repository }

func (b balanceRecords) Save(ctx context.Context, record *storage.BalanceRecordModel) error {
	return b.r.write(ctx, kindBalanceRecord, record)
}

func (b balanceRecords) SaveBatch(ctx context.Context, models []*storage.BalanceRecordModel) error {
	entries, err := records(kindBalanceRecord, models)
	if err != nil {
		return err
	}
	return b.r.appendEntries(ctx, entries)
}

func (b balanceRecords) FindByAddress(ctx context.Context, address string) (*storage.BalanceRecordModel, error) {
	return b.r.mem.BalanceRecords().FindByAddress(ctx, address)
}

func (b balanceRecords) FindByOwner(ctx context.Context, owner string, limit int, offset int) ([]*storage.BalanceRecordModel, error) {
	return b.r.mem.BalanceRecords().FindByOwner(ctx, owner, limit, offset)
}

func (b balanceRecords) FindByMint(ctx context.Context, mint string, limit int, offset int) ([]*storage.BalanceRecordModel, error) {
	return b.r.mem.BalanceRecords().FindByMint(ctx, mint, limit, offset)
}

func (b balanceRecords) Delete(ctx context.Context, address string) error {
	return b.r.appendEntries(ctx, []entry{{Kind: kindBalanceDelete, Key: address}})
}
