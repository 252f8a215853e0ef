package ledger

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lugondev/go-vaultswap/internal/authority"
	verrors "github.com/lugondev/go-vaultswap/internal/errors"
	"github.com/lugondev/go-vaultswap/internal/metrics"
	"github.com/lugondev/go-vaultswap/internal/processor"
	"github.com/lugondev/go-vaultswap/pkg/types"
)

const (
	opWrite byte = iota
	opFail
	opCreatePDA
	opRecurse
	opCreatePDAWrongSeeds
	opCreatePDANoSeeds
	opAdoptPDA
	opClose
)

// scratchProgram is a minimal program used to drive the runtime from tests.
type scratchProgram struct {
	id types.Pubkey
}

func (p *scratchProgram) ID() types.Pubkey { return p.id }
func (p *scratchProgram) Name() string     { return "scratch" }

func (p *scratchProgram) Process(ic *InvokeContext, data []byte) error {
	if len(data) == 0 {
		return verrors.ErrUnknownInstruction
	}
	switch data[0] {
	case opWrite:
		acct, err := ic.AccountAt(0)
		if err != nil {
			return err
		}
		ic.Log("writing %d bytes", len(data)-1)
		return acct.SetData(data[1:])
	case opFail:
		return verrors.ErrInvalidAmount
	case opCreatePDA, opCreatePDAWrongSeeds, opCreatePDANoSeeds:
		payer, err := ic.AccountAt(0)
		if err != nil {
			return err
		}
		pda := authority.MustDerive(p.id, "scratch", payer.Key())
		ix := system.NewCreateAccountInstruction(RentExemptMinimum(8), 8, p.id, payer.Key(), pda.Address).Build()
		switch data[0] {
		case opCreatePDAWrongSeeds:
			wrong := pda.SignerSeeds()
			wrong[len(wrong)-1] = []byte{pda.Bump - 1}
			return ic.Invoke(ix, wrong)
		case opCreatePDANoSeeds:
			return ic.Invoke(ix)
		}
		return ic.Invoke(ix, pda.SignerSeeds())
	case opRecurse:
		return ic.Invoke(solana.NewInstruction(p.id, nil, []byte{opRecurse}))
	case opAdoptPDA:
		payer, err := ic.AccountAt(0)
		if err != nil {
			return err
		}
		pda := authority.MustDerive(p.id, "scratch", payer.Key())
		return CreateAccount(ic, payer.Key(), pda.Address, 8, p.id, pda.SignerSeeds())
	case opClose:
		closed, err := ic.AccountAt(0)
		if err != nil {
			return err
		}
		destination, err := ic.AccountAt(1)
		if err != nil {
			return err
		}
		return closed.Close(destination)
	}
	return verrors.ErrUnknownInstruction
}

type harness struct {
	t       *testing.T
	ledger  *Ledger
	program *scratchProgram
	keys    map[solana.PublicKey]solana.PrivateKey
	results []*Result
	mu      sync.Mutex
}

func newHarness(t *testing.T, opts ...Option) *harness {
	h := &harness{
		t:       t,
		program: &scratchProgram{id: solana.NewWallet().PublicKey()},
		keys:    make(map[solana.PublicKey]solana.PrivateKey),
	}
	opts = append(opts, WithProcessor(processor.ProcessorFunc[*Result](func(ctx context.Context, r *Result, m *metrics.Collection) error {
		h.mu.Lock()
		defer h.mu.Unlock()
		h.results = append(h.results, r)
		return nil
	})))
	h.ledger = New(opts...)
	h.ledger.Register(h.program)
	return h
}

func (h *harness) wallet(lamports uint64) solana.PrivateKey {
	w := solana.NewWallet()
	h.keys[w.PublicKey()] = w.PrivateKey
	if lamports > 0 {
		_, err := h.ledger.Airdrop(context.Background(), w.PublicKey(), lamports)
		require.NoError(h.t, err)
	}
	return w.PrivateKey
}

func (h *harness) tx(payer solana.PublicKey, ixs ...solana.Instruction) *solana.Transaction {
	tx, err := solana.NewTransaction(ixs, h.ledger.LatestBlockhash(), solana.TransactionPayer(payer))
	require.NoError(h.t, err)
	_, err = tx.Sign(func(key solana.PublicKey) *solana.PrivateKey {
		if k, ok := h.keys[key]; ok {
			return &k
		}
		return nil
	})
	require.NoError(h.t, err)
	return tx
}

func (h *harness) lamports(key solana.PublicKey) uint64 {
	a, ok := h.ledger.Account(key)
	if !ok {
		return 0
	}
	return a.Lamports
}

func TestAirdrop(t *testing.T) {
	h := newHarness(t)
	faucetBefore := h.lamports(h.ledger.Faucet().PublicKey())

	user := h.wallet(5 * types.LamportsPerSOL)

	assert.Equal(t, 5*types.LamportsPerSOL, h.lamports(user.PublicKey()))
	assert.Equal(t, faucetBefore-5*types.LamportsPerSOL, h.lamports(h.ledger.Faucet().PublicKey()))
	assert.Equal(t, uint64(1), h.ledger.Slot())
	require.Len(t, h.results, 1)
	assert.True(t, h.results[0].Success())
	assert.Contains(t, h.results[0].Accounts, user.PublicKey())

	_, err := h.ledger.Airdrop(context.Background(), user.PublicKey(), 0)
	assert.ErrorIs(t, err, verrors.ErrInvalidAmount)
}

func TestCreateAccount(t *testing.T) {
	h := newHarness(t)
	payer := h.wallet(types.LamportsPerSOL)
	record := h.wallet(0)
	rent := RentExemptMinimum(16)

	create := func() (*Result, error) {
		ix := system.NewCreateAccountInstruction(rent, 16, h.program.id, payer.PublicKey(), record.PublicKey()).Build()
		return h.ledger.Submit(context.Background(), h.tx(payer.PublicKey(), ix))
	}

	res, err := create()
	require.NoError(t, err)
	require.True(t, res.Success())

	acct, ok := h.ledger.Account(record.PublicKey())
	require.True(t, ok)
	assert.Equal(t, h.program.id, acct.Owner)
	assert.Len(t, acct.Data, 16)
	assert.Equal(t, rent, acct.Lamports)
	assert.Equal(t, types.LamportsPerSOL-rent, h.lamports(payer.PublicKey()))

	res, err = create()
	require.Error(t, err)
	assert.ErrorIs(t, err, verrors.ErrDuplicateInitialization)
	assert.Equal(t, verrors.ErrCodeDuplicateInitialization, res.ErrorCode())
	assert.Equal(t, types.LamportsPerSOL-rent, h.lamports(payer.PublicKey()))
}

func TestCreateAccountBelowRentExemption(t *testing.T) {
	h := newHarness(t)
	payer := h.wallet(types.LamportsPerSOL)
	record := h.wallet(0)

	ix := system.NewCreateAccountInstruction(RentExemptMinimum(16)-1, 16, h.program.id, payer.PublicKey(), record.PublicKey()).Build()
	_, err := h.ledger.Submit(context.Background(), h.tx(payer.PublicKey(), ix))
	assert.ErrorIs(t, err, verrors.ErrInsufficientLamports)

	_, ok := h.ledger.Account(record.PublicKey())
	assert.False(t, ok)
}

func TestTransactionIsAtomic(t *testing.T) {
	h := newHarness(t)
	payer := h.wallet(types.LamportsPerSOL)
	recipient := h.wallet(0)

	transfer := system.NewTransferInstruction(1000, payer.PublicKey(), recipient.PublicKey()).Build()
	fail := solana.NewInstruction(h.program.id, nil, []byte{opFail})

	res, err := h.ledger.Submit(context.Background(), h.tx(payer.PublicKey(), transfer, fail))
	require.Error(t, err)
	assert.ErrorIs(t, err, verrors.ErrInvalidAmount)

	var ie *InstructionError
	require.ErrorAs(t, err, &ie)
	assert.Equal(t, 1, ie.Index)

	assert.False(t, res.Success())
	assert.Empty(t, res.Accounts)
	assert.Equal(t, types.LamportsPerSOL, h.lamports(payer.PublicKey()))
	assert.Zero(t, h.lamports(recipient.PublicKey()))
}

func TestSubmitRejectsUnsignedAndReplayed(t *testing.T) {
	h := newHarness(t)
	payer := h.wallet(types.LamportsPerSOL)
	stranger := solana.NewWallet()

	transfer := system.NewTransferInstruction(10, payer.PublicKey(), stranger.PublicKey()).Build()
	tx := h.tx(payer.PublicKey(), transfer)

	_, err := h.ledger.Submit(context.Background(), tx)
	require.NoError(t, err)

	_, err = h.ledger.Submit(context.Background(), tx)
	assert.ErrorIs(t, err, verrors.ErrAlreadyProcessed)

	forged := h.tx(payer.PublicKey(), system.NewTransferInstruction(20, payer.PublicKey(), stranger.PublicKey()).Build())
	forged.Signatures[0][0] ^= 0xff
	_, err = h.ledger.Submit(context.Background(), forged)
	assert.ErrorIs(t, err, verrors.ErrMissingSigner)

	assert.Equal(t, types.LamportsPerSOL-10, h.lamports(payer.PublicKey()))
}

func TestSubmitCanceledContext(t *testing.T) {
	h := newHarness(t)
	payer := h.wallet(types.LamportsPerSOL)
	tx := h.tx(payer.PublicKey(), system.NewTransferInstruction(10, payer.PublicKey(), solana.NewWallet().PublicKey()).Build())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := h.ledger.Submit(ctx, tx)
	assert.Nil(t, res)
	assert.ErrorIs(t, err, verrors.ErrContextCanceled)
	assert.Equal(t, types.LamportsPerSOL, h.lamports(payer.PublicKey()))
}

func TestInvokeWithDerivedSigner(t *testing.T) {
	tests := []struct {
		name string
		op   byte
		want error
	}{
		{"valid seeds", opCreatePDA, nil},
		{"wrong bump", opCreatePDAWrongSeeds, verrors.ErrInvalidSeeds},
		{"no seeds", opCreatePDANoSeeds, verrors.ErrMissingSigner},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			payer := h.wallet(types.LamportsPerSOL)
			pda := authority.MustDerive(h.program.id, "scratch", payer.PublicKey())

			ix := solana.NewInstruction(h.program.id, solana.AccountMetaSlice{
				solana.Meta(payer.PublicKey()).WRITE().SIGNER(),
				solana.Meta(pda.Address).WRITE(),
				solana.Meta(solana.SystemProgramID),
			}, []byte{tt.op})

			_, err := h.ledger.Submit(context.Background(), h.tx(payer.PublicKey(), ix))
			if tt.want != nil {
				assert.ErrorIs(t, err, tt.want)
				_, ok := h.ledger.Account(pda.Address)
				assert.False(t, ok)
				return
			}
			require.NoError(t, err)
			acct, ok := h.ledger.Account(pda.Address)
			require.True(t, ok)
			assert.Equal(t, h.program.id, acct.Owner)
		})
	}
}

func TestInvokeRejectsUndeclaredAccount(t *testing.T) {
	h := newHarness(t)
	payer := h.wallet(types.LamportsPerSOL)

	// The PDA is derived but not passed to the instruction.
	ix := solana.NewInstruction(h.program.id, solana.AccountMetaSlice{
		solana.Meta(payer.PublicKey()).WRITE().SIGNER(),
		solana.Meta(solana.SystemProgramID),
	}, []byte{opCreatePDA})

	_, err := h.ledger.Submit(context.Background(), h.tx(payer.PublicKey(), ix))
	assert.ErrorIs(t, err, verrors.ErrUndeclaredAccount)
}

func TestInvokeDepthLimit(t *testing.T) {
	h := newHarness(t, WithMaxCallDepth(3))
	payer := h.wallet(types.LamportsPerSOL)

	ix := solana.NewInstruction(h.program.id, solana.AccountMetaSlice{
		solana.Meta(payer.PublicKey()).SIGNER(),
	}, []byte{opRecurse})
	res, err := h.ledger.Submit(context.Background(), h.tx(payer.PublicKey(), ix))
	assert.ErrorIs(t, err, verrors.ErrCallDepthExceeded)
	assert.Contains(t, res.Logs, "Program "+h.program.id.String()+" invoke [3]")
}

func TestProgramCannotWriteForeignRecord(t *testing.T) {
	h := newHarness(t)
	payer := h.wallet(types.LamportsPerSOL)

	// payer is owned by the system program, not the scratch program.
	ix := solana.NewInstruction(h.program.id, solana.AccountMetaSlice{
		solana.Meta(payer.PublicKey()).WRITE().SIGNER(),
	}, []byte{opWrite})
	_, err := h.ledger.Submit(context.Background(), h.tx(payer.PublicKey(), ix))
	assert.ErrorIs(t, err, verrors.ErrIllegalOwner)
}

func TestProgramLogs(t *testing.T) {
	h := newHarness(t)
	payer := h.wallet(types.LamportsPerSOL)
	record := h.wallet(0)

	create := system.NewCreateAccountInstruction(RentExemptMinimum(3), 3, h.program.id, payer.PublicKey(), record.PublicKey()).Build()
	write := solana.NewInstruction(h.program.id, solana.AccountMetaSlice{
		solana.Meta(record.PublicKey()).WRITE(),
	}, []byte{opWrite, 1, 2, 3})

	res, err := h.ledger.Submit(context.Background(), h.tx(payer.PublicKey(), create, write))
	require.NoError(t, err)
	assert.Contains(t, res.Logs, "Program log: writing 3 bytes")
	assert.Contains(t, res.Logs, "Program "+h.program.id.String()+" success")

	acct, _ := h.ledger.Account(record.PublicKey())
	assert.Equal(t, []byte{1, 2, 3}, acct.Data)
}

func TestConcurrentTransfersSerialize(t *testing.T) {
	h := newHarness(t)
	recipient := solana.NewWallet().PublicKey()

	const senders = 16
	payers := make([]solana.PrivateKey, senders)
	txs := make([]*solana.Transaction, senders)
	for i := range payers {
		payers[i] = h.wallet(types.LamportsPerSOL)
		txs[i] = h.tx(payers[i].PublicKey(), system.NewTransferInstruction(uint64(i+1), payers[i].PublicKey(), recipient).Build())
	}

	var wg sync.WaitGroup
	errs := make(chan error, senders)
	for _, tx := range txs {
		wg.Add(1)
		go func(tx *solana.Transaction) {
			defer wg.Done()
			_, err := h.ledger.Submit(context.Background(), tx)
			errs <- err
		}(tx)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}
	assert.Equal(t, uint64(senders*(senders+1)/2), h.lamports(recipient))
	assert.Equal(t, uint64(2*senders), h.ledger.Slot())
}

func TestRestore(t *testing.T) {
	l := New()
	key := solana.NewWallet().PublicKey()

	l.Restore(key, &types.Account{Lamports: 42, Owner: solana.SystemProgramID})
	l.RestoreSlot(10)

	acct, ok := l.Account(key)
	require.True(t, ok)
	assert.Equal(t, uint64(42), acct.Lamports)
	assert.Equal(t, uint64(10), l.Slot())

	l.Restore(key, &types.Account{})
	_, ok = l.Account(key)
	assert.False(t, ok)
}

func TestSubmitRejectsStaleBlockhash(t *testing.T) {
	h := newHarness(t)
	payer := h.wallet(types.LamportsPerSOL)
	recipient := solana.NewWallet().PublicKey()
	transfer := system.NewTransferInstruction(10, payer.PublicKey(), recipient).Build()

	unknown := h.tx(payer.PublicKey(), transfer)
	unknown.Message.RecentBlockhash = solana.HashFromBytes(make([]byte, 32))
	_, err := unknown.Sign(func(key solana.PublicKey) *solana.PrivateKey {
		k := h.keys[key]
		return &k
	})
	require.NoError(t, err)
	res, err := h.ledger.Submit(context.Background(), unknown)
	assert.Nil(t, res)
	assert.ErrorIs(t, err, verrors.ErrBlockhashNotFound)

	stale := h.tx(payer.PublicKey(), transfer)
	h.ledger.RestoreSlot(h.ledger.Slot() + MaxRecentBlockhashes + 1)
	_, err = h.ledger.Submit(context.Background(), stale)
	assert.ErrorIs(t, err, verrors.ErrBlockhashNotFound)

	recent := h.tx(payer.PublicKey(), transfer)
	h.ledger.RestoreSlot(h.ledger.Slot() + MaxRecentBlockhashes)
	_, err = h.ledger.Submit(context.Background(), recent)
	require.NoError(t, err)
	assert.Equal(t, uint64(10), h.lamports(recipient))
}

func TestRestoreProcessed(t *testing.T) {
	h := newHarness(t)
	payer := h.wallet(types.LamportsPerSOL)
	tx := h.tx(payer.PublicKey(), system.NewTransferInstruction(10, payer.PublicKey(), solana.NewWallet().PublicKey()).Build())

	h.ledger.RestoreProcessed(tx.Signatures[0])
	_, err := h.ledger.Submit(context.Background(), tx)
	assert.ErrorIs(t, err, verrors.ErrAlreadyProcessed)
	assert.Equal(t, types.LamportsPerSOL, h.lamports(payer.PublicKey()))
}

func TestBlockTimeUsesClock(t *testing.T) {
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	h := newHarness(t, WithClock(func() time.Time { return at }))
	h.wallet(types.LamportsPerSOL)

	require.Len(t, h.results, 1)
	assert.Equal(t, at.Unix(), h.results[0].BlockTime)
}

func TestAllocateAndAssign(t *testing.T) {
	h := newHarness(t)
	record := h.wallet(types.LamportsPerSOL)

	allocate := system.NewAllocateInstruction(16, record.PublicKey()).Build()
	assign := system.NewAssignInstruction(h.program.id, record.PublicKey()).Build()
	_, err := h.ledger.Submit(context.Background(), h.tx(record.PublicKey(), allocate, assign))
	require.NoError(t, err)

	acct, ok := h.ledger.Account(record.PublicKey())
	require.True(t, ok)
	assert.Equal(t, h.program.id, acct.Owner)
	assert.Len(t, acct.Data, 16)
	assert.Equal(t, types.LamportsPerSOL, acct.Lamports)

	_, err = h.ledger.Submit(context.Background(), h.tx(record.PublicKey(), system.NewAllocateInstruction(8, record.PublicKey()).Build()))
	assert.ErrorIs(t, err, verrors.ErrDuplicateInitialization)
}

func TestCreateAccountAdoptsPrefundedAddress(t *testing.T) {
	tests := []struct {
		name    string
		prefund uint64
		want    uint64
	}{
		{"empty", 0, RentExemptMinimum(8)},
		{"dusted", 1, RentExemptMinimum(8)},
		{"over funded", RentExemptMinimum(8) + 5, RentExemptMinimum(8) + 5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			payer := h.wallet(types.LamportsPerSOL)
			pda := authority.MustDerive(h.program.id, "scratch", payer.PublicKey())
			if tt.prefund > 0 {
				griefer := h.wallet(types.LamportsPerSOL)
				_, err := h.ledger.Submit(context.Background(), h.tx(griefer.PublicKey(),
					system.NewTransferInstruction(tt.prefund, griefer.PublicKey(), pda.Address).Build()))
				require.NoError(t, err)
			}

			adopt := solana.NewInstruction(h.program.id, solana.AccountMetaSlice{
				solana.Meta(payer.PublicKey()).WRITE().SIGNER(),
				solana.Meta(pda.Address).WRITE(),
				solana.Meta(solana.SystemProgramID),
			}, []byte{opAdoptPDA})
			_, err := h.ledger.Submit(context.Background(), h.tx(payer.PublicKey(), adopt))
			require.NoError(t, err)

			acct, ok := h.ledger.Account(pda.Address)
			require.True(t, ok)
			assert.Equal(t, h.program.id, acct.Owner)
			assert.Len(t, acct.Data, 8)
			assert.Equal(t, tt.want, acct.Lamports)

			_, err = h.ledger.Submit(context.Background(), h.tx(payer.PublicKey(), adopt))
			assert.ErrorIs(t, err, verrors.ErrDuplicateInitialization)
		})
	}
}

func TestCloseReturnsLamports(t *testing.T) {
	h := newHarness(t)
	payer := h.wallet(types.LamportsPerSOL)
	record := h.wallet(0)
	destination := solana.NewWallet().PublicKey()
	rent := RentExemptMinimum(4)

	create := system.NewCreateAccountInstruction(rent, 4, h.program.id, payer.PublicKey(), record.PublicKey()).Build()
	_, err := h.ledger.Submit(context.Background(), h.tx(payer.PublicKey(), create))
	require.NoError(t, err)

	closeIx := func(to solana.PublicKey) solana.Instruction {
		return solana.NewInstruction(h.program.id, solana.AccountMetaSlice{
			solana.Meta(record.PublicKey()).WRITE(),
			solana.Meta(to).WRITE(),
		}, []byte{opClose})
	}

	_, err = h.ledger.Submit(context.Background(), h.tx(payer.PublicKey(), closeIx(record.PublicKey())))
	assert.ErrorIs(t, err, verrors.ErrInvalidAccountData)

	res, err := h.ledger.Submit(context.Background(), h.tx(payer.PublicKey(), closeIx(destination)))
	require.NoError(t, err)
	assert.True(t, res.Accounts[record.PublicKey()].IsEmpty())

	_, ok := h.ledger.Account(record.PublicKey())
	assert.False(t, ok)
	assert.Equal(t, rent, h.lamports(destination))
}

func TestRentExemptMinimum(t *testing.T) {
	assert.Equal(t, uint64(890880), RentExemptMinimum(0))
	assert.Equal(t, uint64(2039280), RentExemptMinimum(165))
}
