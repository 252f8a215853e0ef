// Package authority derives program-controlled addresses that have no private key.
//
// A derived authority is a pure function of a label, optional context keys, a bump
// and the owning program id. The runtime accepts the full seed list (label, context
// keys, bump) from the owning program as proof that the program controls the address.
package authority

import (
	"github.com/gagliardetto/solana-go"

	verrors "github.com/lugondev/go-vaultswap/internal/errors"
	"github.com/lugondev/go-vaultswap/pkg/types"
)

// Seed labels used by the pool program.
const (
	LabelPool      = "pool"
	LabelAuthority = "authority"
	LabelVault     = "vault"
)

// Authority is a derived address together with the seeds that prove it.
type Authority struct {
	// Address is the derived, off-curve address.
	Address types.Pubkey

	// Bump is the disambiguator that pushed the address off the ed25519 curve.
	Bump uint8

	// ProgramID is the program the address is derived for.
	ProgramID types.Pubkey

	seeds [][]byte
}

// Derive finds the canonical (highest valid) bump for the given label and
// context keys and returns the resulting authority.
func Derive(programID types.Pubkey, label string, contextKeys ...types.Pubkey) (Authority, error) {
	seeds := buildSeeds(label, contextKeys)
	address, bump, err := solana.FindProgramAddress(cloneSeeds(seeds), programID)
	if err != nil {
		return Authority{}, verrors.ErrInvalidSeeds.WithCause(err)
	}
	return Authority{
		Address:   address,
		Bump:      bump,
		ProgramID: programID,
		seeds:     seeds,
	}, nil
}

// MustDerive is like Derive but panics on failure. Intended for constants and tests.
func MustDerive(programID types.Pubkey, label string, contextKeys ...types.Pubkey) Authority {
	a, err := Derive(programID, label, contextKeys...)
	if err != nil {
		panic(err)
	}
	return a
}

// FromBump re-derives an authority from a recorded bump without searching.
func FromBump(programID types.Pubkey, bump uint8, label string, contextKeys ...types.Pubkey) (Authority, error) {
	seeds := buildSeeds(label, contextKeys)
	address, err := solana.CreateProgramAddress(append(cloneSeeds(seeds), []byte{bump}), programID)
	if err != nil {
		return Authority{}, verrors.ErrInvalidSeeds.WithCause(err)
	}
	return Authority{
		Address:   address,
		Bump:      bump,
		ProgramID: programID,
		seeds:     seeds,
	}, nil
}

// SignerSeeds returns label, context keys and bump: the capability proof handed
// to the runtime when the owning program signs for Address.
func (a Authority) SignerSeeds() [][]byte {
	return append(cloneSeeds(a.seeds), []byte{a.Bump})
}

// Verify checks that seeds derive exactly expected under programID.
func Verify(programID types.Pubkey, seeds [][]byte, expected types.Pubkey) error {
	address, err := Address(programID, seeds)
	if err != nil {
		return err
	}
	if !address.Equals(expected) {
		return verrors.ErrInvalidSeeds.WithDetails(map[string]any{
			"expected": expected.String(),
			"derived":  address.String(),
		})
	}
	return nil
}

// Address computes the program address for a complete seed list (bump included).
func Address(programID types.Pubkey, seeds [][]byte) (types.Pubkey, error) {
	address, err := solana.CreateProgramAddress(cloneSeeds(seeds), programID)
	if err != nil {
		return types.Pubkey{}, verrors.ErrInvalidSeeds.WithCause(err)
	}
	return address, nil
}

func buildSeeds(label string, contextKeys []types.Pubkey) [][]byte {
	seeds := make([][]byte, 0, 1+len(contextKeys))
	seeds = append(seeds, []byte(label))
	for _, key := range contextKeys {
		seeds = append(seeds, key.Bytes())
	}
	return seeds
}

// solana.FindProgramAddress appends the bump to the slice it is given,
// so callers never hand over a slice they keep using.
func cloneSeeds(seeds [][]byte) [][]byte {
	out := make([][]byte, len(seeds), len(seeds)+1)
	copy(out, seeds)
	return out
}
