// Package client builds, signs and submits vaultswap transactions against a
// ledger, the way an off-chain wallet application would.
package client

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"

	"github.com/lugondev/go-vaultswap/internal/common"
	"github.com/lugondev/go-vaultswap/internal/custody"
	verrors "github.com/lugondev/go-vaultswap/internal/errors"
	"github.com/lugondev/go-vaultswap/internal/ledger"
	"github.com/lugondev/go-vaultswap/internal/pool"
)

// Client talks to one ledger and one deployed pool program.
type Client struct {
	common.LoggerMixin

	ledger    *ledger.Ledger
	programID solana.PublicKey

	mu      sync.RWMutex
	signers map[solana.PublicKey]solana.PrivateKey
}

// New creates a client for the pool program at programID.
func New(l *ledger.Ledger, programID solana.PublicKey) *Client {
	return &Client{
		LoggerMixin: common.NewLoggerMixin(),
		ledger:      l,
		programID:   programID,
		signers:     make(map[solana.PublicKey]solana.PrivateKey),
	}
}

// WithLogger sets the logger.
func (c *Client) WithLogger(logger *slog.Logger) *Client {
	c.SetLogger(logger)
	return c
}

// ProgramID returns the pool program id.
func (c *Client) ProgramID() solana.PublicKey {
	return c.programID
}

// Ledger returns the underlying ledger.
func (c *Client) Ledger() *ledger.Ledger {
	return c.ledger
}

// AddSigner makes w available to sign every transaction that needs it.
func (c *Client) AddSigner(w *Wallet) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.signers[w.PublicKey()] = w.PrivateKey()
}

// Send builds a transaction paid by payer, signs it with payer, extra and
// any registered signer it requires, and submits it.
func (c *Client) Send(ctx context.Context, payer *Wallet, ixs []solana.Instruction, extra ...*Wallet) (*ledger.Result, error) {
	tx, err := solana.NewTransaction(ixs, c.ledger.LatestBlockhash(), solana.TransactionPayer(payer.PublicKey()))
	if err != nil {
		return nil, verrors.Wrap(err, "build transaction")
	}

	keys := map[solana.PublicKey]solana.PrivateKey{payer.PublicKey(): payer.PrivateKey()}
	for _, w := range extra {
		keys[w.PublicKey()] = w.PrivateKey()
	}
	c.mu.RLock()
	_, err = tx.Sign(func(key solana.PublicKey) *solana.PrivateKey {
		if k, ok := keys[key]; ok {
			return &k
		}
		if k, ok := c.signers[key]; ok {
			return &k
		}
		return nil
	})
	c.mu.RUnlock()
	if err != nil {
		return nil, verrors.ErrMissingSigner.WithCause(err)
	}

	res, err := c.ledger.Submit(ctx, tx)
	if err != nil {
		c.GetLogger().Debug("transaction failed",
			"payer", payer.PublicKey(),
			"code", verrors.CodeOf(err),
			"error", err,
		)
		return res, err
	}
	c.GetLogger().Debug("transaction committed", "signature", res.Signature, "slot", res.Slot)
	return res, nil
}

// Airdrop funds recipient from the ledger faucet.
func (c *Client) Airdrop(ctx context.Context, recipient solana.PublicKey, lamports uint64) (*ledger.Result, error) {
	return c.ledger.Airdrop(ctx, recipient, lamports)
}

// Lamports returns the lamport balance of key.
func (c *Client) Lamports(key solana.PublicKey) uint64 {
	acct, ok := c.ledger.Account(key)
	if !ok {
		return 0
	}
	return acct.Lamports
}

// Transfer moves lamports from one wallet to another.
func (c *Client) Transfer(ctx context.Context, from *Wallet, to solana.PublicKey, lamports uint64) (*ledger.Result, error) {
	ix := system.NewTransferInstruction(lamports, from.PublicKey(), to).Build()
	return c.Send(ctx, from, []solana.Instruction{ix})
}

// Drain moves every lamport from one wallet to another, leaving from closed.
func (c *Client) Drain(ctx context.Context, from *Wallet, to solana.PublicKey) (uint64, *ledger.Result, error) {
	lamports := c.Lamports(from.PublicKey())
	if lamports == 0 {
		return 0, nil, verrors.ErrInsufficientFunds.WithDetails(map[string]any{"wallet": from.PublicKey().String()})
	}
	res, err := c.Transfer(ctx, from, to, lamports)
	if err != nil {
		return 0, res, err
	}
	return lamports, res, nil
}

// CloseBalanceRecord closes an empty balance record owned by owner and sends
// its rent lamports to destination.
func (c *Client) CloseBalanceRecord(ctx context.Context, owner *Wallet, record, destination solana.PublicKey) (*ledger.Result, error) {
	ix := custody.CloseAccount(record, destination, owner.PublicKey())
	return c.Send(ctx, owner, []solana.Instruction{ix})
}

// CreateMint creates a new asset type whose mint authority is payer.
func (c *Client) CreateMint(ctx context.Context, payer *Wallet, decimals uint8) (solana.PublicKey, error) {
	return c.CreateMintWith(ctx, payer, NewWallet(), decimals)
}

// CreateMintWith is like CreateMint but creates the mint at mint's address.
func (c *Client) CreateMintWith(ctx context.Context, payer, mint *Wallet, decimals uint8) (solana.PublicKey, error) {
	ixs := custody.CreateMint(payer.PublicKey(), mint.PublicKey(), payer.PublicKey(), decimals)
	if _, err := c.Send(ctx, payer, ixs, mint); err != nil {
		return solana.PublicKey{}, err
	}
	c.GetLogger().Info("mint created", "mint", mint.PublicKey(), "decimals", decimals)
	return mint.PublicKey(), nil
}

// ensureAssociatedIx returns owner's associated balance record for mint and,
// when it does not exist yet, the instruction creating it.
func (c *Client) ensureAssociatedIx(payer, owner, mint solana.PublicKey) (solana.PublicKey, solana.Instruction, error) {
	address, err := custody.AssociatedAddress(owner, mint)
	if err != nil {
		return solana.PublicKey{}, nil, err
	}
	if _, ok := c.ledger.Account(address); ok {
		return address, nil, nil
	}
	return address, custody.CreateAssociated(payer, owner, mint), nil
}

// EnsureAssociated creates owner's associated balance record for mint if needed.
func (c *Client) EnsureAssociated(ctx context.Context, payer *Wallet, owner, mint solana.PublicKey) (solana.PublicKey, error) {
	address, ix, err := c.ensureAssociatedIx(payer.PublicKey(), owner, mint)
	if err != nil || ix == nil {
		return address, err
	}
	if _, err := c.Send(ctx, payer, []solana.Instruction{ix}); err != nil {
		return solana.PublicKey{}, err
	}
	return address, nil
}

// MintTo credits amount of mint to owner's associated balance record,
// creating the record first if needed. authority must be the mint authority.
func (c *Client) MintTo(ctx context.Context, authority *Wallet, mint, owner solana.PublicKey, amount uint64) (solana.PublicKey, error) {
	address, create, err := c.ensureAssociatedIx(authority.PublicKey(), owner, mint)
	if err != nil {
		return solana.PublicKey{}, err
	}
	var ixs []solana.Instruction
	if create != nil {
		ixs = append(ixs, create)
	}
	ixs = append(ixs, custody.MintTo(amount, mint, address, authority.PublicKey()))
	if _, err := c.Send(ctx, authority, ixs); err != nil {
		return solana.PublicKey{}, err
	}
	return address, nil
}

// Balance returns the token amount held by a balance record.
func (c *Client) Balance(account solana.PublicKey) (uint64, error) {
	rec, ok := c.ledger.Account(account)
	if !ok {
		return 0, verrors.ErrAccountNotFound.WithDetails(map[string]any{"account": account.String()})
	}
	acct, err := custody.ReadTokenAccount(rec)
	if err != nil {
		return 0, err
	}
	return acct.Amount, nil
}

// TokenBalance returns owner's balance of mint in its associated record.
// A missing record holds nothing.
func (c *Client) TokenBalance(owner, mint solana.PublicKey) (uint64, error) {
	address, err := custody.AssociatedAddress(owner, mint)
	if err != nil {
		return 0, err
	}
	if _, ok := c.ledger.Account(address); !ok {
		return 0, nil
	}
	return c.Balance(address)
}

// PoolParams configures InitializePool.
type PoolParams struct {
	Variant    pool.Variant
	Keying     pool.Keying
	DustPolicy pool.DustPolicy
	MintA      solana.PublicKey
	MintB      solana.PublicKey
	Rate       uint64
	DepositA   uint64
	DepositB   uint64
}

// PoolInfo is a pool's address, authority and decoded state.
type PoolInfo struct {
	Address   solana.PublicKey `json:"address" yaml:"address"`
	Authority solana.PublicKey `json:"authority" yaml:"authority"`
	State     *pool.PoolState  `json:"state" yaml:"state"`
}

// InitializePool creates a pool. Fixed-rate and mint-checked pools use the
// authority's associated balance records as vaults; liquidity-seeded pools
// create their vaults themselves. Deposits come from payer's associated records.
func (c *Client) InitializePool(ctx context.Context, payer *Wallet, p PoolParams) (*PoolInfo, error) {
	addrs, err := pool.DeriveAddresses(c.programID, p.Variant, p.Keying, p.MintA, p.MintB)
	if err != nil {
		return nil, err
	}

	accounts := pool.InitializeAccounts{
		Payer:     payer.PublicKey(),
		Pool:      addrs.Pool.Address,
		Authority: addrs.Authority.Address,
		MintA:     p.MintA,
		MintB:     p.MintB,
	}

	var ixs []solana.Instruction
	if p.Variant == pool.VariantLiquiditySeeded {
		accounts.VaultA = addrs.VaultA.Address
		accounts.VaultB = addrs.VaultB.Address
	} else {
		for _, v := range []struct {
			mint solana.PublicKey
			dst  *solana.PublicKey
		}{{p.MintA, &accounts.VaultA}, {p.MintB, &accounts.VaultB}} {
			address, create, err := c.ensureAssociatedIx(payer.PublicKey(), addrs.Authority.Address, v.mint)
			if err != nil {
				return nil, err
			}
			*v.dst = address
			if create != nil {
				ixs = append(ixs, create)
			}
		}
	}

	if p.DepositA > 0 || p.DepositB > 0 {
		if accounts.PayerA, err = custody.AssociatedAddress(payer.PublicKey(), p.MintA); err != nil {
			return nil, err
		}
		if accounts.PayerB, err = custody.AssociatedAddress(payer.PublicKey(), p.MintB); err != nil {
			return nil, err
		}
	}

	ix, err := pool.NewInitializeInstruction(c.programID, pool.InitializeInstruction{
		Variant:    p.Variant,
		Keying:     p.Keying,
		DustPolicy: p.DustPolicy,
		Rate:       p.Rate,
		DepositA:   p.DepositA,
		DepositB:   p.DepositB,
	}, accounts)
	if err != nil {
		return nil, err
	}
	ixs = append(ixs, ix)

	if _, err := c.Send(ctx, payer, ixs); err != nil {
		return nil, err
	}
	c.GetLogger().Debug("pool initialized",
		"pool", addrs.Pool.Address,
		"authority", addrs.Authority.Address,
		"variant", p.Variant.String(),
		"rate", p.Rate,
	)
	return c.LoadPool(addrs.Pool.Address)
}

// FindPool locates the pool for a mint pair under the given keying.
func (c *Client) FindPool(keying pool.Keying, mintA, mintB solana.PublicKey) (*PoolInfo, error) {
	derived, err := pool.DeriveAddress(c.programID, keying, mintA, mintB)
	if err != nil {
		return nil, err
	}
	return c.LoadPool(derived.Address)
}

// LoadPool reads the pool state stored at address.
func (c *Client) LoadPool(address solana.PublicKey) (*PoolInfo, error) {
	rec, ok := c.ledger.Account(address)
	if !ok {
		return nil, verrors.ErrAccountNotFound.WithDetails(map[string]any{"pool": address.String()})
	}
	state, err := pool.ReadPoolState(c.programID, rec)
	if err != nil {
		return nil, err
	}
	auth, err := pool.DeriveAuthority(c.programID, address)
	if err != nil {
		return nil, err
	}
	return &PoolInfo{Address: address, Authority: auth.Address, State: state}, nil
}

// Quote prices a swap without submitting it.
func (c *Client) Quote(info *PoolInfo, side pool.Side, amountIn uint64) (uint64, error) {
	return info.State.Quote(side, amountIn)
}

// Buy pays amountInB of asset B and returns the amount of asset A received.
func (c *Client) Buy(ctx context.Context, user *Wallet, info *PoolInfo, amountInB uint64) (uint64, *ledger.Result, error) {
	return c.swap(ctx, user, info, pool.SideBuy, amountInB)
}

// Sell pays amountInA of asset A and returns the amount of asset B received.
func (c *Client) Sell(ctx context.Context, user *Wallet, info *PoolInfo, amountInA uint64) (uint64, *ledger.Result, error) {
	return c.swap(ctx, user, info, pool.SideSell, amountInA)
}

func (c *Client) swap(ctx context.Context, user *Wallet, info *PoolInfo, side pool.Side, amount uint64) (uint64, *ledger.Result, error) {
	var ixs []solana.Instruction
	accounts := pool.SwapAccounts{
		User:      user.PublicKey(),
		Pool:      info.Address,
		Authority: info.Authority,
		VaultA:    info.State.VaultA,
		VaultB:    info.State.VaultB,
	}
	for _, r := range []struct {
		mint solana.PublicKey
		dst  *solana.PublicKey
	}{{info.State.MintA, &accounts.UserA}, {info.State.MintB, &accounts.UserB}} {
		address, create, err := c.ensureAssociatedIx(user.PublicKey(), user.PublicKey(), r.mint)
		if err != nil {
			return 0, nil, err
		}
		*r.dst = address
		if create != nil {
			ixs = append(ixs, create)
		}
	}

	var (
		ix  solana.Instruction
		err error
	)
	if side == pool.SideBuy {
		ix, err = pool.NewBuyInstruction(c.programID, amount, accounts)
	} else {
		ix, err = pool.NewSellInstruction(c.programID, amount, accounts)
	}
	if err != nil {
		return 0, nil, err
	}
	ixs = append(ixs, ix)

	res, err := c.Send(ctx, user, ixs)
	if err != nil {
		return 0, res, err
	}
	out, ok := pool.DecodeReturn(res.ReturnData)
	if !ok {
		return 0, res, fmt.Errorf("%s returned no amount", side)
	}
	c.GetLogger().Debug("swap executed",
		"pool", info.Address,
		"side", side.String(),
		"amount_in", amount,
		"amount_out", out,
	)
	return out, res, nil
}
