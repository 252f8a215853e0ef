package ledger

import (
	"encoding/base64"
	"fmt"
	"log/slog"
	"math/bits"
	"strings"

	"github.com/gagliardetto/solana-go"

	"github.com/lugondev/go-vaultswap/internal/authority"
	verrors "github.com/lugondev/go-vaultswap/internal/errors"
	"github.com/lugondev/go-vaultswap/pkg/types"
)

// txContext is the copy-on-write overlay a single transaction executes against.
// Nothing in it is visible to other transactions until commit.
type txContext struct {
	ledger   *Ledger
	declared map[types.Pubkey]*solana.AccountMeta
	overlay  map[types.Pubkey]*types.Account
	original map[types.Pubkey]uint64
	dirty    map[types.Pubkey]struct{}
	logs     []string
	ret      *ReturnData
	slot     uint64
}

func newTxContext(l *Ledger, metas []*solana.AccountMeta, slot uint64) *txContext {
	declared := make(map[types.Pubkey]*solana.AccountMeta, len(metas))
	for _, meta := range metas {
		declared[meta.PublicKey] = meta
	}
	return &txContext{
		ledger:   l,
		declared: declared,
		overlay:  make(map[types.Pubkey]*types.Account),
		original: make(map[types.Pubkey]uint64),
		dirty:    make(map[types.Pubkey]struct{}),
		slot:     slot,
	}
}

func (t *txContext) account(key types.Pubkey) *types.Account {
	if a, ok := t.overlay[key]; ok {
		return a
	}
	a := t.ledger.snapshot(key)
	t.overlay[key] = a
	t.original[key] = a.Lamports
	return a
}

func (t *txContext) markDirty(key types.Pubkey) {
	t.dirty[key] = struct{}{}
}

func (t *txContext) log(format string, args ...any) {
	t.logs = append(t.logs, fmt.Sprintf(format, args...))
}

// balanced reports whether the overlay holds exactly the lamports it loaded.
func (t *txContext) balanced() bool {
	var beforeHi, beforeLo, afterHi, afterLo, carry uint64
	for key, lamports := range t.original {
		beforeLo, carry = bits.Add64(beforeLo, lamports, 0)
		beforeHi += carry
		afterLo, carry = bits.Add64(afterLo, t.overlay[key].Lamports, 0)
		afterHi += carry
	}
	return beforeHi == afterHi && beforeLo == afterLo
}

func (t *txContext) execute(programID types.Pubkey, accounts []*solana.AccountMeta, data []byte, depth int) error {
	program, ok := t.ledger.program(programID)
	if !ok {
		return verrors.ErrUnknownProgram.WithDetails(map[string]any{"program_id": programID.String()})
	}

	t.log("Program %s invoke [%d]", programID, depth)
	ic := &InvokeContext{
		tx:        t,
		programID: programID,
		accounts:  accounts,
		depth:     depth,
		logger:    t.ledger.GetLogger().With("program", program.Name(), "depth", depth),
	}

	if err := program.Process(ic, data); err != nil {
		t.log("Program %s failed: %v", programID, err)
		return err
	}
	t.log("Program %s success", programID)
	return nil
}

// ReturnData is the last value a program set with SetReturnData.
type ReturnData struct {
	ProgramID types.Pubkey
	Data      []byte
}

// InvokeContext is the view one program invocation has of its transaction:
// the accounts passed to this instruction with their effective privileges.
type InvokeContext struct {
	tx        *txContext
	programID types.Pubkey
	accounts  []*solana.AccountMeta
	depth     int
	logger    *slog.Logger
}

// ProgramID returns the id of the executing program.
func (ic *InvokeContext) ProgramID() types.Pubkey {
	return ic.programID
}

// Accounts returns the instruction's account metas in order.
func (ic *InvokeContext) Accounts() []*solana.AccountMeta {
	return ic.accounts
}

// Depth is 1 for top-level instructions and grows with each nested Invoke.
func (ic *InvokeContext) Depth() int {
	return ic.depth
}

// Slot returns the slot the transaction executes in.
func (ic *InvokeContext) Slot() uint64 {
	return ic.tx.slot
}

// Logger returns a logger scoped to this invocation.
func (ic *InvokeContext) Logger() *slog.Logger {
	return ic.logger
}

// RequireAccounts fails with NotEnoughAccountKeys when fewer than n accounts were passed.
func (ic *InvokeContext) RequireAccounts(n int) error {
	if len(ic.accounts) < n {
		return verrors.ErrNotEnoughAccountKeys.WithDetails(map[string]any{
			"expected": n,
			"actual":   len(ic.accounts),
		})
	}
	return nil
}

// AccountAt returns the i-th instruction account.
func (ic *InvokeContext) AccountAt(i int) (*AccountRef, error) {
	if err := ic.RequireAccounts(i + 1); err != nil {
		return nil, err
	}
	return ic.Account(ic.accounts[i].PublicKey)
}

// Account returns a handle on a record passed to this instruction.
func (ic *InvokeContext) Account(key types.Pubkey) (*AccountRef, error) {
	meta, ok := ic.meta(key)
	if !ok {
		return nil, verrors.ErrUndeclaredAccount.WithDetails(map[string]any{"account": key.String()})
	}
	return &AccountRef{
		ic:       ic,
		key:      key,
		signer:   meta.IsSigner,
		writable: meta.IsWritable,
	}, nil
}

// IsSigner reports whether key signed for this instruction.
func (ic *InvokeContext) IsSigner(key types.Pubkey) bool {
	meta, ok := ic.meta(key)
	return ok && meta.IsSigner
}

// Log appends a "Program log:" line to the transaction logs.
func (ic *InvokeContext) Log(format string, args ...any) {
	ic.tx.log("Program log: "+format, args...)
}

// EmitData appends a "Program data:" line holding the base64 encoded chunks.
func (ic *InvokeContext) EmitData(chunks ...[]byte) {
	encoded := make([]string, 0, len(chunks))
	for _, chunk := range chunks {
		encoded = append(encoded, base64.StdEncoding.EncodeToString(chunk))
	}
	ic.tx.log("Program data: %s", strings.Join(encoded, " "))
}

// SetReturnData records data as this program's return value for the transaction.
func (ic *InvokeContext) SetReturnData(data []byte) {
	ic.tx.ret = &ReturnData{ProgramID: ic.programID, Data: append([]byte(nil), data...)}
}

// Invoke runs ix as a nested instruction. Accounts the caller received as
// signers stay signers; any other signer ix requires must be one of the
// addresses signerSeeds derive under the calling program's id.
func (ic *InvokeContext) Invoke(ix solana.Instruction, signerSeeds ...[][]byte) error {
	if ic.depth >= ic.tx.ledger.maxDepth {
		return verrors.ErrCallDepthExceeded.WithDetails(map[string]any{"depth": ic.depth + 1})
	}

	requested := ix.Accounts()
	callee := make([]*solana.AccountMeta, 0, len(requested))
	for _, m := range requested {
		caller, ok := ic.meta(m.PublicKey)
		if !ok {
			return verrors.ErrUndeclaredAccount.WithDetails(map[string]any{"account": m.PublicKey.String()})
		}
		if m.IsWritable && !caller.IsWritable {
			return verrors.ErrAccountNotWritable.WithDetails(map[string]any{"account": m.PublicKey.String()})
		}
		if m.IsSigner && !caller.IsSigner {
			if err := ic.signedBySeeds(m.PublicKey, signerSeeds); err != nil {
				return err
			}
		}
		callee = append(callee, &solana.AccountMeta{
			PublicKey:  m.PublicKey,
			IsSigner:   m.IsSigner,
			IsWritable: m.IsWritable,
		})
	}

	data, err := ix.Data()
	if err != nil {
		return verrors.Wrap(err, "encode inner instruction")
	}
	return ic.tx.execute(ix.ProgramID(), callee, data, ic.depth+1)
}

// signedBySeeds checks that one of signerSeeds derives key under the
// executing program's id.
func (ic *InvokeContext) signedBySeeds(key types.Pubkey, signerSeeds [][][]byte) error {
	if len(signerSeeds) == 0 {
		return verrors.ErrMissingSigner.WithDetails(map[string]any{"account": key.String()})
	}
	var err error
	for _, seeds := range signerSeeds {
		if err = authority.Verify(ic.programID, seeds, key); err == nil {
			return nil
		}
	}
	return err
}

// meta merges every occurrence of key in the instruction's accounts.
func (ic *InvokeContext) meta(key types.Pubkey) (*solana.AccountMeta, bool) {
	var out *solana.AccountMeta
	for _, m := range ic.accounts {
		if !m.PublicKey.Equals(key) {
			continue
		}
		if out == nil {
			out = &solana.AccountMeta{PublicKey: key}
		}
		out.IsSigner = out.IsSigner || m.IsSigner
		out.IsWritable = out.IsWritable || m.IsWritable
	}
	return out, out != nil
}

// AccountRef is a handle on one record inside the transaction overlay.
type AccountRef struct {
	ic       *InvokeContext
	key      types.Pubkey
	signer   bool
	writable bool
}

func (r *AccountRef) state() *types.Account {
	return r.ic.tx.account(r.key)
}

// Key returns the record address.
func (r *AccountRef) Key() types.Pubkey { return r.key }

// Owner returns the program that owns the record.
func (r *AccountRef) Owner() types.Pubkey { return r.state().Owner }

// Lamports returns the record balance.
func (r *AccountRef) Lamports() uint64 { return r.state().Lamports }

// Data returns a copy of the record data.
func (r *AccountRef) Data() []byte {
	return append([]byte(nil), r.state().Data...)
}

// IsSigner reports whether the record signed for this instruction.
func (r *AccountRef) IsSigner() bool { return r.signer }

// IsWritable reports whether this instruction may modify the record.
func (r *AccountRef) IsWritable() bool { return r.writable }

// Exists reports whether the record holds lamports or data.
func (r *AccountRef) Exists() bool { return !r.state().IsEmpty() }

// IsOwnedBy reports whether program owns the record.
func (r *AccountRef) IsOwnedBy(program types.Pubkey) bool {
	return r.state().Owner.Equals(program)
}

// SetData overwrites the record data. Only the owning program may do so and
// the size must not change.
func (r *AccountRef) SetData(data []byte) error {
	if err := r.checkMutable(); err != nil {
		return err
	}
	acct := r.state()
	if len(data) != len(acct.Data) {
		return verrors.ErrInvalidAccountData.WithMessage("account data size changed from %d to %d", len(acct.Data), len(data))
	}
	copy(acct.Data, data)
	r.ic.tx.markDirty(r.key)
	return nil
}

// Debit removes lamports from a record owned by the executing program.
func (r *AccountRef) Debit(lamports uint64) error {
	if err := r.checkMutable(); err != nil {
		return err
	}
	acct := r.state()
	if acct.Lamports < lamports {
		return verrors.ErrInsufficientLamports.WithDetails(map[string]any{
			"account":   r.key.String(),
			"balance":   acct.Lamports,
			"requested": lamports,
		})
	}
	acct.Lamports -= lamports
	r.ic.tx.markDirty(r.key)
	return nil
}

// Credit adds lamports to any writable record.
func (r *AccountRef) Credit(lamports uint64) error {
	if !r.writable {
		return verrors.ErrAccountNotWritable.WithDetails(map[string]any{"account": r.key.String()})
	}
	acct := r.state()
	sum, carry := bits.Add64(acct.Lamports, lamports, 0)
	if carry != 0 {
		return verrors.ErrCalculationOverflow.WithDetails(map[string]any{"account": r.key.String()})
	}
	acct.Lamports = sum
	r.ic.tx.markDirty(r.key)
	return nil
}

func (r *AccountRef) checkMutable() error {
	if !r.writable {
		return verrors.ErrAccountNotWritable.WithDetails(map[string]any{"account": r.key.String()})
	}
	if !r.state().Owner.Equals(r.ic.programID) {
		return verrors.ErrIllegalOwner.WithDetails(map[string]any{
			"account": r.key.String(),
			"owner":   r.state().Owner.String(),
			"program": r.ic.programID.String(),
		})
	}
	return nil
}

// allocate and assign are reserved for the system program.
func (r *AccountRef) allocate(space uint64) {
	acct := r.state()
	acct.Data = make([]byte, space)
	r.ic.tx.markDirty(r.key)
}

func (r *AccountRef) assign(owner types.Pubkey) {
	r.state().Owner = owner
	r.ic.tx.markDirty(r.key)
}

// Close moves every lamport of the record to destination, clears its data
// and hands it back to the system program, so commit removes it. Only the
// owning program may close a record.
func (r *AccountRef) Close(destination *AccountRef) error {
	if err := r.checkMutable(); err != nil {
		return err
	}
	if r.key.Equals(destination.key) {
		return verrors.ErrInvalidAccountData.WithMessage("cannot close %s into itself", r.key)
	}
	acct := r.state()
	if err := destination.Credit(acct.Lamports); err != nil {
		return err
	}
	acct.Lamports = 0
	acct.Data = nil
	acct.Owner = solana.SystemProgramID
	r.ic.tx.markDirty(r.key)
	return nil
}
