package ledger

import (
	"bytes"
	"sort"
	"sync"

	"github.com/gagliardetto/solana-go"

	"github.com/lugondev/go-vaultswap/pkg/types"
)

// lockTable hands out one RWMutex per record address. Transactions take write
// locks on writable records and read locks on the rest, always in address
// order, so two transactions can never wait on each other in a cycle.
type lockTable struct {
	mu    sync.Mutex
	locks map[types.Pubkey]*sync.RWMutex
}

func newLockTable() *lockTable {
	return &lockTable{locks: make(map[types.Pubkey]*sync.RWMutex)}
}

func (t *lockTable) lockFor(key types.Pubkey) *sync.RWMutex {
	t.mu.Lock()
	defer t.mu.Unlock()

	l, ok := t.locks[key]
	if !ok {
		l = &sync.RWMutex{}
		t.locks[key] = l
	}
	return l
}

type lockRequest struct {
	key   types.Pubkey
	write bool
}

// acquire blocks until every account in metas is locked and returns the
// matching release function.
func (t *lockTable) acquire(metas []*solana.AccountMeta) func() {
	byKey := make(map[types.Pubkey]bool, len(metas))
	for _, meta := range metas {
		byKey[meta.PublicKey] = byKey[meta.PublicKey] || meta.IsWritable
	}

	requests := make([]lockRequest, 0, len(byKey))
	for key, write := range byKey {
		requests = append(requests, lockRequest{key: key, write: write})
	}
	sort.Slice(requests, func(i, j int) bool {
		return bytes.Compare(requests[i].key[:], requests[j].key[:]) < 0
	})

	held := make([]func(), 0, len(requests))
	for _, req := range requests {
		l := t.lockFor(req.key)
		if req.write {
			l.Lock()
			held = append(held, l.Unlock)
		} else {
			l.RLock()
			held = append(held, l.RUnlock)
		}
	}

	return func() {
		for i := len(held) - 1; i >= 0; i-- {
			held[i]()
		}
	}
}
