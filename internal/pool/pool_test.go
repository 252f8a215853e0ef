package pool

import (
	"context"
	"math"
	"sync"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lugondev/go-vaultswap/internal/custody"
	verrors "github.com/lugondev/go-vaultswap/internal/errors"
	"github.com/lugondev/go-vaultswap/internal/ledger"
	"github.com/lugondev/go-vaultswap/internal/metrics"
	"github.com/lugondev/go-vaultswap/internal/processor"
)

func fixedRate(rate, depositA, depositB uint64) poolParams {
	return poolParams{
		variant:  VariantFixedRate,
		keying:   KeyingAssetPair,
		rate:     rate,
		depositA: depositA,
		depositB: depositB,
	}
}

func TestInitializeWritesPoolState(t *testing.T) {
	h := newHarness(t)
	d, res, err := h.initialize(fixedRate(2, 1000, 50))
	require.NoError(t, err)

	rec, ok := h.ledger.Account(d.addrs.Pool.Address)
	require.True(t, ok)
	assert.Equal(t, testProgramID, rec.Owner)
	assert.Equal(t, ledger.RentExemptMinimum(PoolStateSize), rec.Lamports)

	state, err := ReadPoolState(testProgramID, rec)
	require.NoError(t, err)
	assert.Equal(t, VariantFixedRate, state.Variant)
	assert.Equal(t, KeyingAssetPair, state.Keying)
	assert.Equal(t, h.mintA, state.MintA)
	assert.Equal(t, h.mintB, state.MintB)
	assert.Equal(t, d.vaultA, state.VaultA)
	assert.Equal(t, d.vaultB, state.VaultB)
	assert.Equal(t, uint64(2), state.Rate)
	assert.Equal(t, d.addrs.Pool.Bump, state.PoolBump)
	assert.Equal(t, d.addrs.Authority.Bump, state.AuthorityBump)
	assert.Equal(t, DustReject, state.DustPolicy)

	assert.Equal(t, uint64(1000), h.balance(d.vaultA))
	assert.Equal(t, uint64(50), h.balance(d.vaultB))

	events := DecodeEvents(testProgramID, NewEventRegistry(testProgramID), res.Logs)
	require.Len(t, events, 1)
	assert.Equal(t, EventPoolInitialized, events[0].Name)
	initialized, ok := events[0].Data.(*PoolInitializedEvent)
	require.True(t, ok)
	assert.Equal(t, d.addrs.Pool.Address, initialized.Pool)
	assert.Equal(t, d.addrs.Authority.Address, initialized.Authority)
	assert.Equal(t, uint64(1000), initialized.DepositA)
}

func TestInitializeTwiceFails(t *testing.T) {
	h := newHarness(t)
	params := fixedRate(2, 0, 0)
	d := h.mustInitialize(params)

	_, err := h.initializeWith(params, d)
	require.Error(t, err)
	assert.True(t, verrors.Is(err, verrors.ErrDuplicateInitialization))
}

func TestSingletonRegistryHostsOnePool(t *testing.T) {
	h := newHarness(t)
	params := fixedRate(3, 0, 0)
	params.keying = KeyingSingleton
	first := h.mustInitialize(params)

	// A second asset pair still derives the same singleton address.
	h.mintA = h.createMint()
	_, _, err := h.initialize(params)
	require.Error(t, err)
	assert.True(t, verrors.Is(err, verrors.ErrDuplicateInitialization))

	keyed, err := DeriveAddress(testProgramID, KeyingAssetPair, h.mintA, h.mintB)
	require.NoError(t, err)
	assert.NotEqual(t, first.addrs.Pool.Address, keyed.Address)
}

func TestInitializeRejects(t *testing.T) {
	tests := []struct {
		name    string
		params  poolParams
		mutate  func(h *harness, d *deployed)
		wantErr *verrors.Error
	}{
		{
			name:    "zero rate",
			params:  fixedRate(0, 0, 0),
			wantErr: verrors.ErrInvalidAmount,
		},
		{
			name:   "vault controlled by another owner",
			params: fixedRate(2, 0, 0),
			mutate: func(h *harness, d *deployed) {
				d.vaultA = h.record(h.mintA, h.admin, 0)
			},
			wantErr: verrors.ErrAuthorityMismatch,
		},
		{
			name:   "vault holding the wrong asset",
			params: fixedRate(2, 0, 0),
			mutate: func(h *harness, d *deployed) {
				d.vaultA = h.record(h.mintB, d.addrs.Authority.Address, 0)
			},
			wantErr: verrors.ErrMintMismatch,
		},
		{
			name:   "pool address not derived from the seeds",
			params: fixedRate(2, 0, 0),
			mutate: func(h *harness, d *deployed) {
				other, err := DeriveAddress(testProgramID, KeyingSingleton, h.mintA, h.mintB)
				require.NoError(h.t, err)
				d.addrs.Pool = other
			},
			wantErr: verrors.ErrInvalidSeeds,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			addrs, err := DeriveAddresses(testProgramID, tt.params.variant, tt.params.keying, h.mintA, h.mintB)
			require.NoError(t, err)
			d := &deployed{
				addrs:  addrs,
				vaultA: h.record(h.mintA, addrs.Authority.Address, 0),
				vaultB: h.record(h.mintB, addrs.Authority.Address, 0),
			}
			if tt.mutate != nil {
				tt.mutate(h, d)
			}
			_, err = h.initializeWith(tt.params, d)
			require.Error(t, err)
			assert.True(t, verrors.Is(err, tt.wantErr), "got %v", err)

			_, exists := h.ledger.Account(addrs.Pool.Address)
			assert.False(t, exists, "aborted initialize must not leave a pool record")
		})
	}
}

func TestInitializeSameMintsRejected(t *testing.T) {
	h := newHarness(t)
	h.mintB = h.mintA
	addrs, err := DeriveAddresses(testProgramID, VariantFixedRate, KeyingAssetPair, h.mintA, h.mintB)
	require.NoError(t, err)
	d := &deployed{
		addrs:  addrs,
		vaultA: h.record(h.mintA, addrs.Authority.Address, 0),
		vaultB: h.record(h.mintA, addrs.Authority.Address, 0),
	}
	_, err = h.initializeWith(fixedRate(2, 0, 0), d)
	require.Error(t, err)
	assert.True(t, verrors.Is(err, verrors.ErrMintMismatch))
}

func TestInitializeDepositExceedsBalance(t *testing.T) {
	h := newHarness(t)
	addrs, err := DeriveAddresses(testProgramID, VariantFixedRate, KeyingAssetPair, h.mintA, h.mintB)
	require.NoError(t, err)
	d := &deployed{
		addrs:  addrs,
		vaultA: h.record(h.mintA, addrs.Authority.Address, 0),
		vaultB: h.record(h.mintB, addrs.Authority.Address, 0),
	}

	payerA := h.record(h.mintA, h.admin, 5)
	payerB := h.record(h.mintB, h.admin, 0)
	ix, err := NewInitializeInstruction(testProgramID, InitializeInstruction{
		Variant:  VariantFixedRate,
		Keying:   KeyingAssetPair,
		Rate:     2,
		DepositA: 10,
	}, InitializeAccounts{
		Payer:     h.admin,
		Pool:      addrs.Pool.Address,
		Authority: addrs.Authority.Address,
		MintA:     h.mintA,
		MintB:     h.mintB,
		VaultA:    d.vaultA,
		VaultB:    d.vaultB,
		PayerA:    payerA,
		PayerB:    payerB,
	})
	require.NoError(t, err)

	_, err = h.submit(h.admin, ix)
	require.Error(t, err)
	assert.True(t, verrors.Is(err, verrors.ErrInsufficientFunds))
	assert.Equal(t, uint64(5), h.balance(payerA))
}

func TestLiquiditySeededCreatesVaults(t *testing.T) {
	h := newHarness(t)
	d := h.mustInitialize(poolParams{
		variant:  VariantLiquiditySeeded,
		keying:   KeyingAssetPair,
		rate:     4,
		depositA: 400,
		depositB: 25,
	})

	for _, vault := range []struct {
		key  solana.PublicKey
		mint solana.PublicKey
		want uint64
	}{
		{d.vaultA, h.mintA, 400},
		{d.vaultB, h.mintB, 25},
	} {
		rec, ok := h.ledger.Account(vault.key)
		require.True(t, ok)
		acct, err := custody.ReadTokenAccount(rec)
		require.NoError(t, err)
		assert.Equal(t, vault.mint, acct.Mint)
		assert.Equal(t, d.addrs.Authority.Address, acct.Owner)
		assert.Equal(t, vault.want, acct.Amount)
	}

	tr := h.trader(0, 10)
	res, err := h.swap(SideBuy, d, tr, 10)
	require.NoError(t, err)
	out, ok := DecodeReturn(res.ReturnData)
	require.True(t, ok)
	assert.Equal(t, uint64(40), out)
}

func TestInitializeAdoptsPrefundedAddresses(t *testing.T) {
	poolRent := ledger.RentExemptMinimum(PoolStateSize)
	vaultRent := ledger.RentExemptMinimum(custody.AccountSize)

	tests := []struct {
		name      string
		params    poolParams
		target    func(a *Addresses) solana.PublicKey
		prefund   uint64
		wantOwner solana.PublicKey
		want      uint64
	}{
		{
			name:      "singleton pool state dusted",
			params:    poolParams{variant: VariantFixedRate, keying: KeyingSingleton, rate: 2},
			target:    func(a *Addresses) solana.PublicKey { return a.Pool.Address },
			prefund:   1,
			wantOwner: testProgramID,
			want:      poolRent,
		},
		{
			name:      "pool state over funded",
			params:    fixedRate(2, 0, 0),
			target:    func(a *Addresses) solana.PublicKey { return a.Pool.Address },
			prefund:   poolRent + 7,
			wantOwner: testProgramID,
			want:      poolRent + 7,
		},
		{
			name:      "seeded vault dusted",
			params:    poolParams{variant: VariantLiquiditySeeded, keying: KeyingAssetPair, rate: 4, depositA: 40},
			target:    func(a *Addresses) solana.PublicKey { return a.VaultA.Address },
			prefund:   1,
			wantOwner: custody.ProgramID,
			want:      vaultRent,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			addrs, err := DeriveAddresses(testProgramID, tt.params.variant, tt.params.keying, h.mintA, h.mintB)
			require.NoError(t, err)
			target := tt.target(addrs)

			griefer := h.funded()
			_, err = h.submit(griefer, system.NewTransferInstruction(tt.prefund, griefer, target).Build())
			require.NoError(t, err)

			d, _, err := h.initialize(tt.params)
			require.NoError(t, err)

			rec, ok := h.ledger.Account(target)
			require.True(t, ok)
			assert.Equal(t, tt.wantOwner, rec.Owner)
			assert.Equal(t, tt.want, rec.Lamports)

			info, ok := h.ledger.Account(d.addrs.Pool.Address)
			require.True(t, ok)
			state, err := ReadPoolState(testProgramID, info)
			require.NoError(t, err)
			assert.Equal(t, tt.params.rate, state.Rate)
			assert.Equal(t, tt.params.depositA, h.balance(d.vaultA))
		})
	}
}

func TestConcreteRateTwoScenario(t *testing.T) {
	h := newHarness(t)
	d := h.mustInitialize(fixedRate(2, 1000, 500))
	tr := h.trader(0, 100)

	res, err := h.swap(SideBuy, d, tr, 10)
	require.NoError(t, err)
	out, ok := DecodeReturn(res.ReturnData)
	require.True(t, ok)
	assert.Equal(t, uint64(20), out)
	assert.Equal(t, [4]uint64{20, 90, 980, 510}, h.balances(d, tr))

	_, err = h.swap(SideSell, d, tr, 20)
	require.NoError(t, err)
	assert.Equal(t, [4]uint64{0, 100, 1000, 500}, h.balances(d, tr))
}

func TestSwapConservesValue(t *testing.T) {
	h := newHarness(t)
	d := h.mustInitialize(fixedRate(3, 10_000, 10_000))
	tr := h.trader(500, 500)

	steps := []struct {
		side   Side
		amount uint64
	}{
		{SideBuy, 7},
		{SideSell, 10},
		{SideBuy, 100},
		{SideSell, 301},
	}
	for _, step := range steps {
		before := h.balances(d, tr)
		_, err := h.swap(step.side, d, tr, step.amount)
		require.NoError(t, err)
		after := h.balances(d, tr)

		assert.Equal(t, before[0]+before[2], after[0]+after[2], "asset A conserved")
		assert.Equal(t, before[1]+before[3], after[1]+after[3], "asset B conserved")
	}
}

func TestRoundTripTruncation(t *testing.T) {
	tests := []struct {
		rate   uint64
		amount uint64
	}{
		{rate: 2, amount: 10},
		{rate: 3, amount: 10},
		{rate: 7, amount: 100},
		{rate: 1, amount: 42},
	}

	for _, tt := range tests {
		h := newHarness(t)
		d := h.mustInitialize(fixedRate(tt.rate, 1_000_000, 1_000_000))
		tr := h.trader(10_000, 10_000)

		// buy then sell returns exactly the B that went in.
		res, err := h.swap(SideBuy, d, tr, tt.amount)
		require.NoError(t, err)
		gotA, _ := DecodeReturn(res.ReturnData)
		res, err = h.swap(SideSell, d, tr, gotA)
		require.NoError(t, err)
		gotB, _ := DecodeReturn(res.ReturnData)
		assert.Equal(t, tt.amount, gotB)

		// sell then buy loses the remainder of the division.
		res, err = h.swap(SideSell, d, tr, tt.amount)
		require.NoError(t, err)
		gotB, _ = DecodeReturn(res.ReturnData)
		res, err = h.swap(SideBuy, d, tr, gotB)
		require.NoError(t, err)
		gotA, _ = DecodeReturn(res.ReturnData)
		assert.Equal(t, tt.amount-tt.amount%tt.rate, gotA)
	}
}

func TestBuyOverflowLeavesBalances(t *testing.T) {
	h := newHarness(t)
	d := h.mustInitialize(fixedRate(2, 1000, 0))
	tr := h.trader(0, math.MaxUint64/2+1)

	before := h.balances(d, tr)
	_, err := h.swap(SideBuy, d, tr, math.MaxUint64/2+1)
	require.Error(t, err)
	assert.True(t, verrors.Is(err, verrors.ErrCalculationOverflow))
	assert.Equal(t, verrors.NumberCalculationOverflow, verrors.NumberOf(err))
	assert.Equal(t, before, h.balances(d, tr))
}

func TestSwapRejects(t *testing.T) {
	tests := []struct {
		name    string
		side    Side
		amount  uint64
		mutate  func(h *harness, d *deployed, accounts *SwapAccounts)
		wantErr *verrors.Error
	}{
		{
			name:    "zero amount",
			side:    SideBuy,
			amount:  0,
			wantErr: verrors.ErrInvalidAmount,
		},
		{
			name:   "substituted vault A",
			side:   SideBuy,
			amount: 5,
			mutate: func(h *harness, d *deployed, accounts *SwapAccounts) {
				accounts.VaultA = h.record(h.mintA, d.addrs.Authority.Address, 1000)
			},
			wantErr: verrors.ErrVaultMismatch,
		},
		{
			name:   "substituted vault B",
			side:   SideSell,
			amount: 4,
			mutate: func(h *harness, d *deployed, accounts *SwapAccounts) {
				accounts.VaultB = h.record(h.mintB, h.admin, 1000)
			},
			wantErr: verrors.ErrVaultMismatch,
		},
		{
			name:   "wrong authority",
			side:   SideBuy,
			amount: 5,
			mutate: func(h *harness, d *deployed, accounts *SwapAccounts) {
				accounts.Authority = h.admin
			},
			wantErr: verrors.ErrAuthorityMismatch,
		},
		{
			name:   "user pays from someone else's record",
			side:   SideBuy,
			amount: 5,
			mutate: func(h *harness, d *deployed, accounts *SwapAccounts) {
				accounts.UserB = h.record(h.mintB, h.admin, 100)
			},
			wantErr: verrors.ErrUnauthorized,
		},
		{
			name:    "insufficient user balance",
			side:    SideBuy,
			amount:  101,
			wantErr: verrors.ErrInsufficientFunds,
		},
		{
			name:    "vault cannot cover the payout",
			side:    SideBuy,
			amount:  100,
			wantErr: verrors.ErrInsufficientFunds,
		},
		{
			name:    "sell below rate is dust",
			side:    SideSell,
			amount:  1,
			wantErr: verrors.ErrDustAmount,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			d := h.mustInitialize(fixedRate(2, 100, 100))
			tr := h.trader(100, 100)
			accounts := d.swapAccounts(tr)
			if tt.mutate != nil {
				tt.mutate(h, d, &accounts)
			}

			before := h.balances(d, tr)
			_, err := h.submit(tr.wallet, h.swapIx(tt.side, accounts, tt.amount))
			require.Error(t, err)
			assert.True(t, verrors.Is(err, tt.wantErr), "got %v", err)
			assert.Equal(t, before, h.balances(d, tr))
		})
	}
}

func TestMintCheckedPoolRejectsForeignRecords(t *testing.T) {
	h := newHarness(t)
	params := fixedRate(2, 100, 100)
	params.variant = VariantMintChecked
	d := h.mustInitialize(params)
	tr := h.trader(100, 100)

	// Both user records hold asset B: a fixed-rate pool would only fail in
	// custody, a mint-checked pool rejects before moving anything.
	accounts := d.swapAccounts(tr)
	accounts.UserA = h.record(h.mintB, tr.wallet, 0)

	_, err := h.submit(tr.wallet, h.swapIx(SideBuy, accounts, 5))
	require.Error(t, err)
	assert.True(t, verrors.Is(err, verrors.ErrMintMismatch))
	assert.Equal(t, uint64(100), h.balance(tr.b))

	_, err = h.swap(SideBuy, d, tr, 5)
	require.NoError(t, err)
	assert.Equal(t, uint64(110), h.balance(tr.a))
}

func TestDustBurnPolicy(t *testing.T) {
	h := newHarness(t)
	params := fixedRate(5, 100, 100)
	params.dust = DustBurn
	d := h.mustInitialize(params)
	tr := h.trader(100, 100)

	res, err := h.swap(SideSell, d, tr, 4)
	require.NoError(t, err)
	out, ok := DecodeReturn(res.ReturnData)
	require.True(t, ok)
	assert.Zero(t, out)
	assert.Equal(t, [4]uint64{96, 100, 104, 100}, h.balances(d, tr))
}

func TestSwapEmitsEvent(t *testing.T) {
	h := newHarness(t)
	d := h.mustInitialize(fixedRate(2, 100, 100))
	tr := h.trader(100, 100)

	res, err := h.swap(SideSell, d, tr, 9)
	require.NoError(t, err)

	events := DecodeEvents(testProgramID, NewEventRegistry(testProgramID), res.Logs)
	require.Len(t, events, 1)
	swapped, ok := events[0].Data.(*SwappedEvent)
	require.True(t, ok)
	assert.Equal(t, SideSell, swapped.Side)
	assert.Equal(t, tr.wallet, swapped.User)
	assert.Equal(t, h.mintA, swapped.MintIn)
	assert.Equal(t, h.mintB, swapped.MintOut)
	assert.Equal(t, uint64(9), swapped.AmountIn)
	assert.Equal(t, uint64(4), swapped.AmountOut)
	assert.Equal(t, []string{"sell"}, Instructions(testProgramID, res.Transaction))
}

func TestConcurrentSwapsSerialize(t *testing.T) {
	h := newHarness(t)
	const traders = 16
	d := h.mustInitialize(fixedRate(2, 10_000, 0))

	crowd := make([]*trader, traders)
	for i := range crowd {
		crowd[i] = h.trader(0, 100)
	}
	txs := make([]*solana.Transaction, traders)
	for i, tr := range crowd {
		txs[i] = h.tx(tr.wallet, h.swapIx(SideBuy, d.swapAccounts(tr), uint64(i+1)))
	}

	var wg sync.WaitGroup
	errs := make([]error, traders)
	for i := range txs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = h.ledger.Submit(context.Background(), txs[i])
		}(i)
	}
	wg.Wait()

	var paidIn uint64
	for i, err := range errs {
		require.NoError(t, err)
		paidIn += uint64(i + 1)
		assert.Equal(t, 2*uint64(i+1), h.balance(crowd[i].a))
	}
	assert.Equal(t, paidIn, h.balance(d.vaultB))
	assert.Equal(t, 10_000-2*paidIn, h.balance(d.vaultA))
}

func TestMetricsProcessorCountsSwaps(t *testing.T) {
	logMetrics := metrics.NewLogMetrics(nil)
	h := newHarness(t,
		ledger.WithMetrics(metrics.NewCollection(logMetrics)),
		ledger.WithProcessor(NewMetricsProcessor(testProgramID)),
	)
	d := h.mustInitialize(fixedRate(2, 100, 100))
	tr := h.trader(100, 100)

	_, err := h.swap(SideBuy, d, tr, 3)
	require.NoError(t, err)
	_, err = h.swap(SideSell, d, tr, 1)
	require.Error(t, err)

	counters := logMetrics.Snapshot().Counters
	assert.Equal(t, uint64(1), counters[metrics.MetricPoolsInitialized])
	assert.Equal(t, uint64(1), counters[metrics.MetricSwapsExecuted])
	assert.Equal(t, uint64(1), counters[metrics.MetricSwapsFailed])
	assert.Equal(t, uint64(3), counters[metrics.MetricSwapVolumeIn])
	assert.Equal(t, uint64(6), counters[metrics.MetricSwapVolumeOut])
}

var _ processor.Processor[*ledger.Result] = NewMetricsProcessor(testProgramID)
