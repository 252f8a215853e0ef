package pool

import (
	"github.com/lugondev/go-vaultswap/internal/authority"
	"github.com/lugondev/go-vaultswap/pkg/types"
)

// Addresses are the derived records of one pool.
type Addresses struct {
	Pool      authority.Authority
	Authority authority.Authority

	// VaultA and VaultB are only derived for liquidity-seeded pools.
	VaultA authority.Authority
	VaultB authority.Authority
}

// DeriveAddress derives the pool state address. A singleton registry uses
// the bare label; an asset-pair registry adds both mints.
func DeriveAddress(programID types.Pubkey, keying Keying, mintA, mintB types.Pubkey) (authority.Authority, error) {
	if keying == KeyingSingleton {
		return authority.Derive(programID, authority.LabelPool)
	}
	return authority.Derive(programID, authority.LabelPool, mintA, mintB)
}

// DeriveAuthority derives the vault authority of pool.
func DeriveAuthority(programID, pool types.Pubkey) (authority.Authority, error) {
	return authority.Derive(programID, authority.LabelAuthority, pool)
}

// DeriveVault derives the program-created vault of pool for mint.
func DeriveVault(programID, pool, mint types.Pubkey) (authority.Authority, error) {
	return authority.Derive(programID, authority.LabelVault, pool, mint)
}

// DeriveAddresses derives every address a pool with the given keying and
// variant uses.
func DeriveAddresses(programID types.Pubkey, variant Variant, keying Keying, mintA, mintB types.Pubkey) (*Addresses, error) {
	pool, err := DeriveAddress(programID, keying, mintA, mintB)
	if err != nil {
		return nil, err
	}
	auth, err := DeriveAuthority(programID, pool.Address)
	if err != nil {
		return nil, err
	}
	out := &Addresses{Pool: pool, Authority: auth}
	if variant == VariantLiquiditySeeded {
		if out.VaultA, err = DeriveVault(programID, pool.Address, mintA); err != nil {
			return nil, err
		}
		if out.VaultB, err = DeriveVault(programID, pool.Address, mintB); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// poolFromBump re-derives the pool address a state record claims to live at.
func (s *PoolState) poolFromBump(programID types.Pubkey) (authority.Authority, error) {
	if s.Keying == KeyingSingleton {
		return authority.FromBump(programID, s.PoolBump, authority.LabelPool)
	}
	return authority.FromBump(programID, s.PoolBump, authority.LabelPool, s.MintA, s.MintB)
}

// authorityFromBump re-derives the vault authority from the recorded bump.
func (s *PoolState) authorityFromBump(programID, pool types.Pubkey) (authority.Authority, error) {
	return authority.FromBump(programID, s.AuthorityBump, authority.LabelAuthority, pool)
}
