package storage

import (
	"context"
	"sort"
	"sync"
)

// MemoryRepository keeps the journal in process memory. It backs tests and
// the jsonl backend, which replays its file into one on open.
type MemoryRepository struct {
	mu             sync.RWMutex
	accounts       map[string]*AccountModel
	transactions   []*TransactionModel
	txBySignature  map[string]*TransactionModel
	instructions   []*InstructionModel
	events         []*EventModel
	balanceRecords map[string]*BalanceRecordModel
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		accounts:       make(map[string]*AccountModel),
		txBySignature:  make(map[string]*TransactionModel),
		balanceRecords: make(map[string]*BalanceRecordModel),
	}
}

func (r *MemoryRepository) Accounts() AccountRepository { return memoryAccounts{r} }
func (r *MemoryRepository) Transactions() TransactionRepository { return memoryTransactions{r} }
func (r *MemoryRepository) Instructions() InstructionRepository { return memoryInstructions{r} }
func (r *MemoryRepository) Events() EventRepository { return memoryEvents{r} }
func (r *MemoryRepository) BalanceRecords() BalanceRecordRepository { return memoryBalanceRecords{r} }
func (r *MemoryRepository) Close() error { return nil }
func (r *MemoryRepository) Ping(ctx context.Context) error { return ctx.Err() }

// page applies limit and offset; a non-positive limit returns everything after offset.
func page[T any](items []T, limit, offset int) []T {
	if offset >= len(items) {
		return nil
	}
	if offset > 0 {
		items = items[offset:]
	}
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	out := make([]T, len(items))
	copy(out, items)
	return out
}

func filter[T any](items []T, keep func(T) bool) []T {
	var out []T
	for _, item := range items {
		if keep(item) {
			out = append(out, item)
		}
	}
	return out
}

type memoryAccounts struct{ r *MemoryRepository }

func (m memoryAccounts) Save(ctx context.Context, account *AccountModel) error {
	return m.SaveBatch(ctx, []*AccountModel{account})
}

func (m memoryAccounts) SaveBatch(_ context.Context, accounts []*AccountModel) error {
	m.r.mu.Lock()
	defer m.r.mu.Unlock()
	for _, account := range accounts {
		cp := *account
		if prev, ok := m.r.accounts[account.Pubkey]; ok {
			cp.CreatedAt = prev.CreatedAt
		}
		m.r.accounts[account.Pubkey] = &cp
	}
	return nil
}

func (m memoryAccounts) FindByPubkey(_ context.Context, pubkey string) (*AccountModel, error) {
	m.r.mu.RLock()
	defer m.r.mu.RUnlock()
	if account, ok := m.r.accounts[pubkey]; ok {
		cp := *account
		return &cp, nil
	}
	return nil, nil
}

func (m memoryAccounts) FindByOwner(ctx context.Context, owner string, limit int, offset int) ([]*AccountModel, error) {
	all, err := m.FindAll(ctx)
	if err != nil {
		return nil, err
	}
	owned := filter(all, func(a *AccountModel) bool { return a.Owner == owner })
	sort.SliceStable(owned, func(i, j int) bool { return owned[i].Slot > owned[j].Slot })
	return page(owned, limit, offset), nil
}

func (m memoryAccounts) FindAll(_ context.Context) ([]*AccountModel, error) {
	m.r.mu.RLock()
	defer m.r.mu.RUnlock()
	out := make([]*AccountModel, 0, len(m.r.accounts))
	for _, account := range m.r.accounts {
		cp := *account
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Pubkey < out[j].Pubkey })
	return out, nil
}

func (m memoryAccounts) Delete(_ context.Context, pubkey string) error {
	m.r.mu.Lock()
	defer m.r.mu.Unlock()
	delete(m.r.accounts, pubkey)
	return nil
}

type memoryTransactions struct{ r *MemoryRepository }

func (m memoryTransactions) Save(_ context.Context, tx *TransactionModel) error {
	m.r.mu.Lock()
	defer m.r.mu.Unlock()
	cp := *tx
	if prev, ok := m.r.txBySignature[tx.Signature]; ok {
		*prev = cp
		return nil
	}
	m.r.transactions = append(m.r.transactions, &cp)
	m.r.txBySignature[tx.Signature] = &cp
	return nil
}

func (m memoryTransactions) FindBySignature(_ context.Context, signature string) (*TransactionModel, error) {
	m.r.mu.RLock()
	defer m.r.mu.RUnlock()
	if tx, ok := m.r.txBySignature[signature]; ok {
		cp := *tx
		return &cp, nil
	}
	return nil, nil
}

func (m memoryTransactions) FindByAccountKey(_ context.Context, accountKey string, limit int, offset int) ([]*TransactionModel, error) {
	m.r.mu.RLock()
	defer m.r.mu.RUnlock()
	var matched []*TransactionModel
	for i := len(m.r.transactions) - 1; i >= 0; i-- {
		tx := m.r.transactions[i]
		for _, key := range tx.AccountKeys {
			if key == accountKey {
				matched = append(matched, tx)
				break
			}
		}
	}
	return page(matched, limit, offset), nil
}

func (m memoryTransactions) FindRecent(_ context.Context, limit int) ([]*TransactionModel, error) {
	m.r.mu.RLock()
	defer m.r.mu.RUnlock()
	recent := make([]*TransactionModel, 0, len(m.r.transactions))
	for i := len(m.r.transactions) - 1; i >= 0; i-- {
		recent = append(recent, m.r.transactions[i])
	}
	return page(recent, limit, 0), nil
}

func (m memoryTransactions) LatestSlot(_ context.Context) (uint64, error) {
	m.r.mu.RLock()
	defer m.r.mu.RUnlock()
	var slot uint64
	for _, tx := range m.r.transactions {
		if tx.Slot > slot {
			slot = tx.Slot
		}
	}
	return slot, nil
}

type memoryInstructions struct{ r *MemoryRepository }

func (m memoryInstructions) SaveBatch(_ context.Context, instructions []*InstructionModel) error {
	m.r.mu.Lock()
	defer m.r.mu.Unlock()
	for _, ix := range instructions {
		cp := *ix
		m.r.instructions = append(m.r.instructions, &cp)
	}
	return nil
}

func (m memoryInstructions) FindBySignature(_ context.Context, signature string) ([]*InstructionModel, error) {
	m.r.mu.RLock()
	defer m.r.mu.RUnlock()
	matched := filter(m.r.instructions, func(ix *InstructionModel) bool { return ix.Signature == signature })
	sort.SliceStable(matched, func(i, j int) bool { return matched[i].InstructionIndex < matched[j].InstructionIndex })
	return matched, nil
}

func (m memoryInstructions) FindByProgramID(_ context.Context, programID string, limit int, offset int) ([]*InstructionModel, error) {
	m.r.mu.RLock()
	defer m.r.mu.RUnlock()
	matched := filter(m.r.instructions, func(ix *InstructionModel) bool { return ix.ProgramID == programID })
	return page(matched, limit, offset), nil
}

type memoryEvents struct{ r *MemoryRepository }

func (m memoryEvents) Save(ctx context.Context, event *EventModel) error {
	return m.SaveBatch(ctx, []*EventModel{event})
}

func (m memoryEvents) SaveBatch(_ context.Context, events []*EventModel) error {
	m.r.mu.Lock()
	defer m.r.mu.Unlock()
	for _, event := range events {
		cp := *event
		m.r.events = append(m.r.events, &cp)
	}
	return nil
}

func (m memoryEvents) FindBySignature(_ context.Context, signature string) ([]*EventModel, error) {
	m.r.mu.RLock()
	defer m.r.mu.RUnlock()
	return filter(m.r.events, func(e *EventModel) bool { return e.Signature == signature }), nil
}

func (m memoryEvents) FindByProgramID(_ context.Context, programID string, limit int, offset int) ([]*EventModel, error) {
	m.r.mu.RLock()
	defer m.r.mu.RUnlock()
	return page(filter(m.r.events, func(e *EventModel) bool { return e.ProgramID == programID }), limit, offset), nil
}

func (m memoryEvents) FindByEventName(_ context.Context, eventName string, limit int, offset int) ([]*EventModel, error) {
	m.r.mu.RLock()
	defer m.r.mu.RUnlock()
	return page(filter(m.r.events, func(e *EventModel) bool { return e.EventName == eventName }), limit, offset), nil
}

type memoryBalanceRecords struct{ r *MemoryRepository }

func (m memoryBalanceRecords) Save(ctx context.Context, record *BalanceRecordModel) error {
	return m.SaveBatch(ctx, []*BalanceRecordModel{record})
}

func (m memoryBalanceRecords) SaveBatch(_ context.Context, records []*BalanceRecordModel) error {
	m.r.mu.Lock()
	defer m.r.mu.Unlock()
	for _, record := range records {
		cp := *record
		if prev, ok := m.r.balanceRecords[record.Address]; ok {
			cp.CreatedAt = prev.CreatedAt
		}
		m.r.balanceRecords[record.Address] = &cp
	}
	return nil
}

func (m memoryBalanceRecords) FindByAddress(_ context.Context, address string) (*BalanceRecordModel, error) {
	m.r.mu.RLock()
	defer m.r.mu.RUnlock()
	if record, ok := m.r.balanceRecords[address]; ok {
		cp := *record
		return &cp, nil
	}
	return nil, nil
}

func (m memoryBalanceRecords) sorted(keep func(*BalanceRecordModel) bool) []*BalanceRecordModel {
	m.r.mu.RLock()
	defer m.r.mu.RUnlock()
	var out []*BalanceRecordModel
	for _, record := range m.r.balanceRecords {
		if keep(record) {
			cp := *record
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Address < out[j].Address })
	return out
}

func (m memoryBalanceRecords) FindByOwner(_ context.Context, owner string, limit int, offset int) ([]*BalanceRecordModel, error) {
	return page(m.sorted(func(b *BalanceRecordModel) bool { return b.Owner == owner }), limit, offset), nil
}

func (m memoryBalanceRecords) FindByMint(_ context.Context, mint string, limit int, offset int) ([]*BalanceRecordModel, error) {
	return page(m.sorted(func(b *BalanceRecordModel) bool { return b.Mint == mint }), limit, offset), nil
}

func (m memoryBalanceRecords) Delete(_ context.Context, address string) error {
	m.r.mu.Lock()
	defer m.r.mu.Unlock()
	delete(m.r.balanceRecords, address)
	return nil
}
