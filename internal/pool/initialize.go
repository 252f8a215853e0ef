package pool

import (
	"github.com/gagliardetto/solana-go"

	"github.com/lugondev/go-vaultswap/internal/authority"
	"github.com/lugondev/go-vaultswap/internal/custody"
	verrors "github.com/lugondev/go-vaultswap/internal/errors"
	"github.com/lugondev/go-vaultswap/internal/ledger"
)

func (p *Program) initialize(ic *ledger.InvokeContext, inst *InitializeInstruction) error {
	if err := ic.RequireAccounts(initCustodyProgram + 1); err != nil {
		return err
	}
	if _, ok := variantNames[inst.Variant]; !ok {
		return verrors.ErrInvalidAccountData.WithMessage("unknown variant %d", inst.Variant)
	}
	if inst.Keying > KeyingAssetPair || inst.DustPolicy > DustBurn {
		return verrors.ErrInvalidAccountData.WithMessage("unknown keying or dust policy")
	}
	if inst.Rate == 0 {
		return verrors.ErrInvalidAmount.WithMessage("rate must be positive")
	}

	accounts := ic.Accounts()
	payer := accounts[initPayer].PublicKey
	poolKey := accounts[initPool].PublicKey
	mintA := accounts[initMintA].PublicKey
	mintB := accounts[initMintB].PublicKey
	vaultA := accounts[initVaultA].PublicKey
	vaultB := accounts[initVaultB].PublicKey

	if mintA.Equals(mintB) {
		return verrors.ErrMintMismatch.WithMessage("pool assets must differ")
	}

	addrs, err := DeriveAddresses(p.id, inst.Variant, inst.Keying, mintA, mintB)
	if err != nil {
		return err
	}
	if err := expectAddress(addrs.Pool, poolKey); err != nil {
		return err
	}
	if err := expectAddress(addrs.Authority, accounts[initAuthority].PublicKey); err != nil {
		return err
	}
	for _, mint := range []solana.PublicKey{mintA, mintB} {
		ref, err := ic.Account(mint)
		if err != nil {
			return err
		}
		if !ref.IsOwnedBy(custody.ProgramID) {
			return verrors.ErrInvalidAccountData.WithMessage("%s is not a custody mint", mint)
		}
		if _, err := custody.DecodeMint(ref.Data()); err != nil {
			return err
		}
	}

	if err := ledger.CreateAccount(ic, payer, poolKey, PoolStateSize, p.id, addrs.Pool.SignerSeeds()); err != nil {
		return err
	}

	if inst.Variant == VariantLiquiditySeeded {
		if err := expectAddress(addrs.VaultA, vaultA); err != nil {
			return err
		}
		if err := expectAddress(addrs.VaultB, vaultB); err != nil {
			return err
		}
		if err := p.createVault(ic, payer, addrs.VaultA, mintA, addrs.Authority.Address); err != nil {
			return err
		}
		if err := p.createVault(ic, payer, addrs.VaultB, mintB, addrs.Authority.Address); err != nil {
			return err
		}
	} else {
		if err := validateVault(ic, vaultA, mintA, addrs.Authority.Address); err != nil {
			return err
		}
		if err := validateVault(ic, vaultB, mintB, addrs.Authority.Address); err != nil {
			return err
		}
	}

	if inst.DepositA > 0 || inst.DepositB > 0 {
		if err := ic.RequireAccounts(initPayerB + 1); err != nil {
			return err
		}
		deposits := []struct {
			amount uint64
			from   solana.PublicKey
			vault  solana.PublicKey
		}{
			{inst.DepositA, accounts[initPayerA].PublicKey, vaultA},
			{inst.DepositB, accounts[initPayerB].PublicKey, vaultB},
		}
		for _, d := range deposits {
			if d.amount == 0 {
				continue
			}
			if err := ic.Invoke(custody.Transfer(d.amount, d.from, d.vault, payer)); err != nil {
				return err
			}
		}
	}

	state := &PoolState{
		Variant:       inst.Variant,
		Keying:        inst.Keying,
		MintA:         mintA,
		MintB:         mintB,
		VaultA:        vaultA,
		VaultB:        vaultB,
		Rate:          inst.Rate,
		PoolBump:      addrs.Pool.Bump,
		AuthorityBump: addrs.Authority.Bump,
		DustPolicy:    inst.DustPolicy,
	}
	data, err := state.Encode()
	if err != nil {
		return err
	}
	poolRef, err := ic.AccountAt(initPool)
	if err != nil {
		return err
	}
	if err := poolRef.SetData(data); err != nil {
		return err
	}

	event, err := encodeEvent(&PoolInitializedEvent{
		Pool:       poolKey,
		Authority:  addrs.Authority.Address,
		MintA:      mintA,
		MintB:      mintB,
		VaultA:     vaultA,
		VaultB:     vaultB,
		Variant:    inst.Variant,
		Keying:     inst.Keying,
		DustPolicy: inst.DustPolicy,
		Rate:       inst.Rate,
		DepositA:   inst.DepositA,
		DepositB:   inst.DepositB,
	})
	if err != nil {
		return err
	}
	ic.EmitData(event)

	ic.Logger().Info("pool initialized",
		"pool", poolKey,
		"variant", inst.Variant.String(),
		"keying", inst.Keying.String(),
		"rate", inst.Rate,
	)
	return nil
}

// createVault allocates a vault at its derived address and binds it to the
// pool authority.
func (p *Program) createVault(ic *ledger.InvokeContext, payer solana.PublicKey, vault authority.Authority, mint, owner solana.PublicKey) error {
	if err := ledger.CreateAccount(ic, payer, vault.Address, custody.AccountSize, custody.ProgramID, vault.SignerSeeds()); err != nil {
		return err
	}
	return ic.Invoke(custody.InitializeBalanceRecord(vault.Address, mint, owner))
}

// validateVault checks a caller-supplied vault holds mint and is controlled
// by the pool authority.
func validateVault(ic *ledger.InvokeContext, vault, mint, owner solana.PublicKey) error {
	ref, err := ic.Account(vault)
	if err != nil {
		return err
	}
	acct, err := loadBalanceRecord(ref)
	if err != nil {
		return err
	}
	if err := checkMint(vault, acct, mint); err != nil {
		return err
	}
	if !acct.Owner.Equals(owner) {
		return verrors.ErrAuthorityMismatch.WithDetails(map[string]any{
			"vault":    vault.String(),
			"expected": owner.String(),
			"actual":   acct.Owner.String(),
		})
	}
	return nil
}

func expectAddress(derived authority.Authority, supplied solana.PublicKey) error {
	if derived.Address.Equals(supplied) {
		return nil
	}
	return verrors.ErrInvalidSeeds.WithDetails(map[string]any{
		"expected": derived.Address.String(),
		"actual":   supplied.String(),
	})
}
