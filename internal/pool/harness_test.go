package pool

import (
	"context"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/require"

	"github.com/lugondev/go-vaultswap/internal/custody"
	"github.com/lugondev/go-vaultswap/internal/ledger"
	"github.com/lugondev/go-vaultswap/pkg/types"
)

var testProgramID = solana.MustPublicKeyFromBase58("Fg6PaFpoGXkYsidMpWTK6W2BeZ7FEfcYkg476zPFsLnS")

type harness struct {
	t      *testing.T
	ledger *ledger.Ledger
	keys   map[solana.PublicKey]solana.PrivateKey

	admin solana.PublicKey
	mintA solana.PublicKey
	mintB solana.PublicKey
}

type trader struct {
	wallet solana.PublicKey
	a      solana.PublicKey
	b      solana.PublicKey
}

type deployed struct {
	addrs  *Addresses
	vaultA solana.PublicKey
	vaultB solana.PublicKey
}

func newHarness(t *testing.T, opts ...ledger.Option) *harness {
	l := ledger.New(opts...)
	l.Register(custody.New())
	l.Register(custody.NewAssociated())
	l.Register(New(testProgramID))

	h := &harness{t: t, ledger: l, keys: make(map[solana.PublicKey]solana.PrivateKey)}
	h.admin = h.funded()
	h.mintA = h.createMint()
	h.mintB = h.createMint()
	return h
}

func (h *harness) keypair() solana.PublicKey {
	w := solana.NewWallet()
	h.keys[w.PublicKey()] = w.PrivateKey
	return w.PublicKey()
}

func (h *harness) funded() solana.PublicKey {
	key := h.keypair()
	_, err := h.ledger.Airdrop(context.Background(), key, 10*types.LamportsPerSOL)
	require.NoError(h.t, err)
	return key
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

func (h *harness) submit(payer solana.PublicKey, ixs ...solana.Instruction) (*ledger.Result, error) {
	return h.ledger.Submit(context.Background(), h.tx(payer, ixs...))
}

func (h *harness) createMint() solana.PublicKey {
	mint := h.keypair()
	_, err := h.submit(h.admin, custody.CreateMint(h.admin, mint, h.admin, 6)...)
	require.NoError(h.t, err)
	return mint
}

// record creates a balance record of mint owned by owner and mints amount into it.
func (h *harness) record(mint, owner solana.PublicKey, amount uint64) solana.PublicKey {
	account := h.keypair()
	ixs := custody.CreateBalanceRecord(h.admin, account, mint, owner)
	if amount > 0 {
		ixs = append(ixs, custody.MintTo(amount, mint, account, h.admin))
	}
	_, err := h.submit(h.admin, ixs...)
	require.NoError(h.t, err)
	return account
}

func (h *harness) balance(account solana.PublicKey) uint64 {
	rec, ok := h.ledger.Account(account)
	require.True(h.t, ok, "record %s missing", account)
	acct, err := custody.ReadTokenAccount(rec)
	require.NoError(h.t, err)
	return acct.Amount
}

func (h *harness) trader(a, b uint64) *trader {
	wallet := h.funded()
	return &trader{
		wallet: wallet,
		a:      h.record(h.mintA, wallet, a),
		b:      h.record(h.mintB, wallet, b),
	}
}

type poolParams struct {
	variant  Variant
	keying   Keying
	dust     DustPolicy
	rate     uint64
	depositA uint64
	depositB uint64
}

func (h *harness) initialize(p poolParams) (*deployed, *ledger.Result, error) {
	addrs, err := DeriveAddresses(testProgramID, p.variant, p.keying, h.mintA, h.mintB)
	require.NoError(h.t, err)

	d := &deployed{addrs: addrs}
	if p.variant == VariantLiquiditySeeded {
		d.vaultA = addrs.VaultA.Address
		d.vaultB = addrs.VaultB.Address
	} else {
		d.vaultA = h.record(h.mintA, addrs.Authority.Address, 0)
		d.vaultB = h.record(h.mintB, addrs.Authority.Address, 0)
	}
	res, err := h.initializeWith(p, d)
	return d, res, err
}

func (h *harness) initializeWith(p poolParams, d *deployed) (*ledger.Result, error) {
	accounts := InitializeAccounts{
		Payer:     h.admin,
		Pool:      d.addrs.Pool.Address,
		Authority: d.addrs.Authority.Address,
		MintA:     h.mintA,
		MintB:     h.mintB,
		VaultA:    d.vaultA,
		VaultB:    d.vaultB,
	}
	if p.depositA > 0 || p.depositB > 0 {
		accounts.PayerA = h.record(h.mintA, h.admin, p.depositA)
		accounts.PayerB = h.record(h.mintB, h.admin, p.depositB)
	}
	ix, err := NewInitializeInstruction(testProgramID, InitializeInstruction{
		Variant:    p.variant,
		Keying:     p.keying,
		DustPolicy: p.dust,
		Rate:       p.rate,
		DepositA:   p.depositA,
		DepositB:   p.depositB,
	}, accounts)
	require.NoError(h.t, err)
	return h.submit(h.admin, ix)
}

func (h *harness) mustInitialize(p poolParams) *deployed {
	d, _, err := h.initialize(p)
	require.NoError(h.t, err)
	return d
}

func (d *deployed) swapAccounts(tr *trader) SwapAccounts {
	return SwapAccounts{
		User:      tr.wallet,
		Pool:      d.addrs.Pool.Address,
		Authority: d.addrs.Authority.Address,
		VaultA:    d.vaultA,
		VaultB:    d.vaultB,
		UserA:     tr.a,
		UserB:     tr.b,
	}
}

func (h *harness) swapIx(side Side, accounts SwapAccounts, amount uint64) solana.Instruction {
	var (
		ix  solana.Instruction
		err error
	)
	if side == SideBuy {
		ix, err = NewBuyInstruction(testProgramID, amount, accounts)
	} else {
		ix, err = NewSellInstruction(testProgramID, amount, accounts)
	}
	require.NoError(h.t, err)
	return ix
}

func (h *harness) swap(side Side, d *deployed, tr *trader, amount uint64) (*ledger.Result, error) {
	return h.submit(tr.wallet, h.swapIx(side, d.swapAccounts(tr), amount))
}

// balances returns user A, user B, vault A, vault B.
func (h *harness) balances(d *deployed, tr *trader) [4]uint64 {
	return [4]uint64{h.balance(tr.a), h.balance(tr.b), h.balance(d.vaultA), h.balance(d.vaultB)}
}
