// Package ledger is an in-process, single-node ledger runtime.
//
// Records (accounts) are owned by programs. A transaction declares every record
// it touches up front; the runtime locks them, runs the instructions against a
// private overlay and publishes every write at once, or nothing if any
// instruction fails. Programs call each other through InvokeContext.Invoke, and
// sign for program-derived addresses by passing the derivation seeds.
package ledger

import (
	"context"
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/binary"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/gagliardetto/solana-go"

	"github.com/lugondev/go-vaultswap/internal/common"
	verrors "github.com/lugondev/go-vaultswap/internal/errors"
	"github.com/lugondev/go-vaultswap/internal/metrics"
	"github.com/lugondev/go-vaultswap/internal/processor"
	"github.com/lugondev/go-vaultswap/pkg/types"
)

// DefaultMaxCallDepth is the deepest allowed nesting of Invoke calls, counting
// the top-level instruction as depth 1.
const DefaultMaxCallDepth = 4

// MaxRecentBlockhashes is how many slots a blockhash stays valid for. A
// transaction referencing an older or unknown blockhash is rejected.
const MaxRecentBlockhashes = 150

// FaucetLamports is the genesis balance of the faucet wallet.
const FaucetLamports uint64 = 500_000_000 * types.LamportsPerSOL

// Program is an on-ledger program.
type Program interface {
	// ID returns the program address instructions are routed by.
	ID() types.Pubkey

	// Name is used in logs and metrics.
	Name() string

	// Process executes one instruction. Any error aborts the whole transaction.
	Process(ic *InvokeContext, data []byte) error
}

// Ledger holds committed records and executes transactions against them.
type Ledger struct {
	common.LoggerMixin

	mu        sync.RWMutex
	accounts  map[types.Pubkey]*types.Account
	programs  map[types.Pubkey]Program
	processed map[solana.Signature]struct{}
	recent    map[solana.Hash]uint64
	slot      uint64
	blockhash solana.Hash

	locks      *lockTable
	metrics    *metrics.Collection
	processors []processor.Processor[*Result]
	maxDepth   int
	now        func() time.Time
	faucet     solana.PrivateKey
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithMetrics sets the metrics collection transactions are reported to.
func WithMetrics(m *metrics.Collection) Option {
	return func(l *Ledger) {
		if m != nil {
			l.metrics = m
		}
	}
}

// WithProcessor adds a processor that sees every executed transaction.
func WithProcessor(p processor.Processor[*Result]) Option {
	return func(l *Ledger) {
		l.processors = append(l.processors, p)
	}
}

// WithMaxCallDepth overrides DefaultMaxCallDepth.
func WithMaxCallDepth(depth int) Option {
	return func(l *Ledger) {
		if depth > 0 {
			l.maxDepth = depth
		}
	}
}

// WithClock overrides the block time source.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) {
		if now != nil {
			l.now = now
		}
	}
}

// New creates a ledger with the system program and a funded faucet wallet.
func New(opts ...Option) *Ledger {
	l := &Ledger{
		LoggerMixin: common.NewLoggerMixin(),
		accounts:    make(map[types.Pubkey]*types.Account),
		programs:    make(map[types.Pubkey]Program),
		processed:   make(map[solana.Signature]struct{}),
		recent:      make(map[solana.Hash]uint64),
		locks:       newLockTable(),
		metrics:     metrics.NewCollection(),
		maxDepth:    DefaultMaxCallDepth,
		now:         time.Now,
		faucet:      faucetKey(),
	}
	l.advance(0)

	for _, opt := range opts {
		opt(l)
	}

	l.Register(systemProgram{})
	l.accounts[l.faucet.PublicKey()] = &types.Account{
		Lamports: FaucetLamports,
		Owner:    solana.SystemProgramID,
	}
	return l
}

// WithLogger sets the logger.
func (l *Ledger) WithLogger(logger *slog.Logger) *Ledger {
	l.SetLogger(logger)
	return l
}

// Register makes a program callable. Registering the same id twice replaces it.
func (l *Ledger) Register(p Program) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.programs[p.ID()] = p
	l.GetLogger().Debug("program registered", "program", p.Name(), "id", p.ID())
}

func (l *Ledger) program(id types.Pubkey) (Program, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	p, ok := l.programs[id]
	return p, ok
}

// Account returns a copy of the committed record at key.
func (l *Ledger) Account(key types.Pubkey) (*types.Account, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	a, ok := l.accounts[key]
	if !ok {
		return nil, false
	}
	return a.Clone(), true
}

// Keys returns the addresses of all committed records in address order.
func (l *Ledger) Keys() []types.Pubkey {
	l.mu.RLock()
	defer l.mu.RUnlock()
	keys := make([]types.Pubkey, 0, len(l.accounts))
	for k := range l.accounts {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		return keys[i].String() < keys[j].String()
	})
	return keys
}

// snapshot returns a private copy of the record, or an empty system-owned
// record if none exists.
func (l *Ledger) snapshot(key types.Pubkey) *types.Account {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if a, ok := l.accounts[key]; ok {
		return a.Clone()
	}
	return &types.Account{Owner: solana.SystemProgramID}
}

// Restore loads a previously journaled record, bypassing execution.
// It is meant for rebuilding state at startup, before any Submit.
func (l *Ledger) Restore(key types.Pubkey, account *types.Account) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if account.IsEmpty() {
		delete(l.accounts, key)
		return
	}
	l.accounts[key] = account.Clone()
}

// RestoreSlot fast-forwards the slot counter after a restore. The blockhashes
// of the last MaxRecentBlockhashes slots become valid again.
func (l *Ledger) RestoreSlot(slot uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if slot <= l.slot {
		return
	}
	from := l.slot + 1
	if slot > MaxRecentBlockhashes && slot-MaxRecentBlockhashes > from {
		from = slot - MaxRecentBlockhashes
	}
	for s := from; s <= slot; s++ {
		l.advance(s)
	}
	for hash, at := range l.recent {
		if at+MaxRecentBlockhashes < slot {
			delete(l.recent, hash)
		}
	}
}

// RestoreProcessed marks journaled signatures as already executed, so a
// rebuilt ledger rejects them like the one that ran them.
func (l *Ledger) RestoreProcessed(signatures ...solana.Signature) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, sig := range signatures {
		l.processed[sig] = struct{}{}
	}
}

// Slot returns the slot of the most recently executed transaction.
func (l *Ledger) Slot() uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.slot
}

// LatestBlockhash returns the hash transactions should reference.
func (l *Ledger) LatestBlockhash() solana.Hash {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.blockhash
}

// Faucet returns the faucet wallet key used by Airdrop.
func (l *Ledger) Faucet() solana.PrivateKey {
	return l.faucet
}

// Submit executes tx atomically. The returned Result is nil only when the
// transaction was rejected before execution (bad signatures, replay, canceled
// context). Otherwise it carries logs and, on success, the written records.
func (l *Ledger) Submit(ctx context.Context, tx *solana.Transaction) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, verrors.ErrContextCanceled.WithCause(err)
	}
	if tx == nil || len(tx.Signatures) == 0 {
		return nil, verrors.ErrMissingSigner.WithMessage("transaction carries no signatures")
	}
	if err := tx.VerifySignatures(); err != nil {
		return nil, verrors.ErrMissingSigner.WithCause(err)
	}
	metas, err := tx.Message.AccountMetaList()
	if err != nil {
		return nil, verrors.Wrap(err, "resolve transaction accounts")
	}

	_ = l.metrics.IncrementCounter(ctx, metrics.MetricTransactionsSubmitted, 1)

	release := l.locks.acquire(metas)
	defer release()

	if err := ctx.Err(); err != nil {
		return nil, verrors.ErrContextCanceled.WithCause(err)
	}

	signature := tx.Signatures[0]
	slot, err := l.begin(signature, tx.Message.RecentBlockhash)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	txc := newTxContext(l, metas, slot)
	execErr := l.run(txc, tx)
	if execErr == nil && !txc.balanced() {
		execErr = verrors.ErrUnbalancedTransaction
	}

	result := &Result{
		Signature:   signature,
		Slot:        slot,
		BlockTime:   l.now().Unix(),
		Transaction: tx,
		Logs:        txc.logs,
		Err:         execErr,
	}

	if execErr == nil {
		result.Accounts = l.commit(txc)
		result.ReturnData = txc.ret
	}
	result.Duration = time.Since(start)

	l.report(ctx, result)
	return result, execErr
}

func (l *Ledger) begin(signature solana.Signature, blockhash solana.Hash) (uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.processed[signature]; ok {
		return 0, verrors.ErrAlreadyProcessed.WithDetails(map[string]any{"signature": signature.String()})
	}
	if _, ok := l.recent[blockhash]; !ok {
		return 0, verrors.ErrBlockhashNotFound.WithDetails(map[string]any{
			"signature": signature.String(),
			"blockhash": blockhash.String(),
		})
	}
	l.processed[signature] = struct{}{}
	l.advance(l.slot + 1)
	return l.slot, nil
}

// advance moves to slot, makes its blockhash current and expires the one
// that fell out of the recent window. Callers hold l.mu.
func (l *Ledger) advance(slot uint64) {
	l.slot = slot
	l.blockhash = blockhashAt(slot)
	l.recent[l.blockhash] = slot
	if slot > MaxRecentBlockhashes {
		delete(l.recent, blockhashAt(slot-MaxRecentBlockhashes-1))
	}
}

func (l *Ledger) run(txc *txContext, tx *solana.Transaction) error {
	for i := range tx.Message.Instructions {
		ci := &tx.Message.Instructions[i]
		programID, err := tx.Message.ResolveProgramIDIndex(ci.ProgramIDIndex)
		if err != nil {
			return verrors.ErrUnknownProgram.WithCause(err)
		}
		accounts, err := ci.ResolveInstructionAccounts(&tx.Message)
		if err != nil {
			return verrors.ErrNotEnoughAccountKeys.WithCause(err)
		}
		if err := txc.execute(programID, accounts, ci.Data, 1); err != nil {
			return &InstructionError{Index: i, Err: err}
		}
	}
	return nil
}

// commit publishes every dirty record and returns copies of them.
// Records left without lamports or data are removed.
func (l *Ledger) commit(txc *txContext) map[types.Pubkey]*types.Account {
	l.mu.Lock()
	defer l.mu.Unlock()

	written := make(map[types.Pubkey]*types.Account, len(txc.dirty))
	for key := range txc.dirty {
		acct := txc.overlay[key]
		if acct.IsEmpty() {
			delete(l.accounts, key)
			written[key] = &types.Account{Owner: solana.SystemProgramID}
			continue
		}
		l.accounts[key] = acct.Clone()
		written[key] = acct.Clone()
	}
	return written
}

func (l *Ledger) report(ctx context.Context, result *Result) {
	logger := l.GetLogger()
	_ = l.metrics.RecordHistogram(ctx, metrics.MetricTransactionDurationMs, float64(result.Duration.Microseconds())/1000)
	_ = l.metrics.UpdateGauge(ctx, metrics.MetricSlot, float64(result.Slot))

	if result.Err != nil {
		_ = l.metrics.IncrementCounter(ctx, metrics.MetricTransactionsAborted, 1)
		logger.Debug("transaction aborted",
			"signature", result.Signature,
			"slot", result.Slot,
			"code", verrors.CodeOf(result.Err),
			"error", result.Err,
		)
	} else {
		_ = l.metrics.IncrementCounter(ctx, metrics.MetricTransactionsCommitted, 1)
		_ = l.metrics.IncrementCounter(ctx, metrics.MetricAccountsWritten, uint64(len(result.Accounts)))
		logger.Debug("transaction committed",
			"signature", result.Signature,
			"slot", result.Slot,
			"accounts", len(result.Accounts),
		)
	}

	for _, p := range l.processors {
		if err := p.Process(ctx, result, l.metrics); err != nil {
			logger.Error("transaction processor failed", "signature", result.Signature, "error", err)
		}
	}
}

// blockhashAt derives the blockhash of slot. It depends on the slot alone,
// so a ledger restored from a journal hands out the same hashes.
func blockhashAt(slot uint64) solana.Hash {
	h := sha256.New()
	h.Write([]byte("vaultswap blockhash"))
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], slot)
	h.Write(buf[:])
	return solana.HashFromBytes(h.Sum(nil))
}

func faucetKey() solana.PrivateKey {
	seed := sha256.Sum256([]byte("vaultswap faucet"))
	return solana.PrivateKey(ed25519.NewKeyFromSeed(seed[:]))
}
