package pool

import (
	"encoding/binary"

	"github.com/gagliardetto/solana-go"

	"github.com/lugondev/go-vaultswap/internal/custody"
	verrors "github.com/lugondev/go-vaultswap/internal/errors"
	"github.com/lugondev/go-vaultswap/internal/ledger"
)

// swap executes one buy or sell. The inbound leg moves the user's asset into
// its vault under the user's signature; the outbound leg pays the quoted
// amount from the other vault under the pool authority's seeds. Both legs
// run in the same transaction, so a failing outbound leg undoes the inbound one.
func (p *Program) swap(ic *ledger.InvokeContext, side Side, amountIn uint64) error {
	if err := ic.RequireAccounts(swapAccountCount); err != nil {
		return err
	}
	accounts := ic.Accounts()
	user := accounts[swapUser].PublicKey
	poolKey := accounts[swapPool].PublicKey
	vaultA := accounts[swapVaultA].PublicKey
	vaultB := accounts[swapVaultB].PublicKey
	userA := accounts[swapUserA].PublicKey
	userB := accounts[swapUserB].PublicKey

	state, err := p.loadState(ic, poolKey)
	if err != nil {
		return err
	}

	auth, err := state.authorityFromBump(p.id, poolKey)
	if err != nil {
		return err
	}
	if !auth.Address.Equals(accounts[swapAuthority].PublicKey) {
		return verrors.ErrAuthorityMismatch.WithDetails(map[string]any{
			"expected": auth.Address.String(),
			"actual":   accounts[swapAuthority].PublicKey.String(),
		})
	}

	if !vaultA.Equals(state.VaultA) || !vaultB.Equals(state.VaultB) {
		return verrors.ErrVaultMismatch.WithDetails(map[string]any{
			"pool":     poolKey.String(),
			"vault_a":  vaultA.String(),
			"vault_b":  vaultB.String(),
			"expected": []string{state.VaultA.String(), state.VaultB.String()},
		})
	}

	if state.Variant == VariantMintChecked {
		checks := []struct {
			key  solana.PublicKey
			mint solana.PublicKey
		}{
			{vaultA, state.MintA},
			{vaultB, state.MintB},
			{userA, state.MintA},
			{userB, state.MintB},
		}
		for _, c := range checks {
			ref, err := ic.Account(c.key)
			if err != nil {
				return err
			}
			acct, err := loadBalanceRecord(ref)
			if err != nil {
				return err
			}
			if err := checkMint(c.key, acct, c.mint); err != nil {
				return err
			}
		}
	}

	amountOut, err := state.Quote(side, amountIn)
	if err != nil {
		return err
	}

	// buy: user_b -> vault_b, vault_a -> user_a. sell: the mirror image.
	inFrom, inTo, outFrom, outTo := userB, vaultB, vaultA, userA
	mintIn, mintOut := state.MintB, state.MintA
	if side == SideSell {
		inFrom, inTo, outFrom, outTo = userA, vaultA, vaultB, userB
		mintIn, mintOut = state.MintA, state.MintB
	}

	if err := ic.Invoke(custody.Transfer(amountIn, inFrom, inTo, user)); err != nil {
		return err
	}
	if err := ic.Invoke(custody.Transfer(amountOut, outFrom, outTo, auth.Address), auth.SignerSeeds()); err != nil {
		return err
	}

	event, err := encodeEvent(&SwappedEvent{
		Pool:      poolKey,
		User:      user,
		Side:      side,
		MintIn:    mintIn,
		MintOut:   mintOut,
		AmountIn:  amountIn,
		AmountOut: amountOut,
	})
	if err != nil {
		return err
	}
	ic.EmitData(event)

	var ret [8]byte
	binary.LittleEndian.PutUint64(ret[:], amountOut)
	ic.SetReturnData(ret[:])

	ic.Logger().Info("swap executed",
		"pool", poolKey,
		"side", side.String(),
		"amount_in", amountIn,
		"amount_out", amountOut,
	)
	return nil
}

// loadState reads the pool state and checks it lives at the address its
// recorded bump derives.
func (p *Program) loadState(ic *ledger.InvokeContext, poolKey solana.PublicKey) (*PoolState, error) {
	ref, err := ic.Account(poolKey)
	if err != nil {
		return nil, err
	}
	if !ref.Exists() {
		return nil, verrors.ErrAccountNotFound.WithDetails(map[string]any{"pool": poolKey.String()})
	}
	if !ref.IsOwnedBy(p.id) {
		return nil, verrors.ErrInvalidAccountData.WithMessage("pool %s is not owned by %s", poolKey, p.id)
	}
	state, err := DecodePoolState(ref.Data())
	if err != nil {
		return nil, err
	}
	derived, err := state.poolFromBump(p.id)
	if err != nil {
		return nil, err
	}
	if err := expectAddress(derived, poolKey); err != nil {
		return nil, err
	}
	return state, nil
}

// DecodeReturn reads the amount a swap returned.
func DecodeReturn(ret *ledger.ReturnData) (uint64, bool) {
	if ret == nil || len(ret.Data) != 8 {
		return 0, false
	}
	return binary.LittleEndian.Uint64(ret.Data), true
}
