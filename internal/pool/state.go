package pool

import (
	"bytes"
	"fmt"
	"strings"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"

	verrors "github.com/lugondev/go-vaultswap/internal/errors"
	"github.com/lugondev/go-vaultswap/pkg/types"
)

// Variant selects how strictly a pool checks the records passed to a swap
// and who creates its vaults.
type Variant uint8

const (
	// VariantFixedRate trusts the custody program to reject mismatched mints.
	VariantFixedRate Variant = iota
	// VariantMintChecked verifies vault and user record mints on every swap.
	VariantMintChecked
	// VariantLiquiditySeeded creates its own vaults at derived addresses during initialize.
	VariantLiquiditySeeded
)

var variantNames = map[Variant]string{
	VariantFixedRate:       "fixed_rate",
	VariantMintChecked:     "mint_checked",
	VariantLiquiditySeeded: "liquidity_seeded",
}

func (v Variant) String() string {
	if name, ok := variantNames[v]; ok {
		return name
	}
	return fmt.Sprintf("variant(%d)", uint8(v))
}

// ParseVariant parses the configuration name of a variant.
func ParseVariant(s string) (Variant, error) {
	for v, name := range variantNames {
		if strings.EqualFold(s, name) {
			return v, nil
		}
	}
	return 0, fmt.Errorf("unknown pool variant %q", s)
}

// Keying decides how many pools the program can host.
type Keying uint8

const (
	// KeyingSingleton derives one pool address per program.
	KeyingSingleton Keying = iota
	// KeyingAssetPair derives one pool address per (mint_a, mint_b) pair.
	KeyingAssetPair
)

func (k Keying) String() string {
	switch k {
	case KeyingSingleton:
		return "singleton"
	case KeyingAssetPair:
		return "keyed"
	default:
		return fmt.Sprintf("keying(%d)", uint8(k))
	}
}

// ParseKeying parses "singleton" or "keyed".
func ParseKeying(s string) (Keying, error) {
	switch strings.ToLower(s) {
	case "singleton":
		return KeyingSingleton, nil
	case "keyed", "asset_pair":
		return KeyingAssetPair, nil
	default:
		return 0, fmt.Errorf("unknown pool keying %q", s)
	}
}

// DustPolicy decides what a swap does when its output rounds down to zero.
type DustPolicy uint8

const (
	// DustReject aborts the swap with DustAmount.
	DustReject DustPolicy = iota
	// DustBurn accepts the input and pays out nothing.
	DustBurn
)

func (d DustPolicy) String() string {
	switch d {
	case DustReject:
		return "reject"
	case DustBurn:
		return "burn"
	default:
		return fmt.Sprintf("dust(%d)", uint8(d))
	}
}

// ParseDustPolicy parses "reject" or "burn".
func ParseDustPolicy(s string) (DustPolicy, error) {
	switch strings.ToLower(s) {
	case "reject", "":
		return DustReject, nil
	case "burn":
		return DustBurn, nil
	default:
		return 0, fmt.Errorf("unknown dust policy %q", s)
	}
}

// PoolStateDiscriminator prefixes every pool state record.
var PoolStateDiscriminator = discriminator(bin.SighashAccount("PoolState"))

// PoolStateSize is the fixed size of an encoded pool state record.
const PoolStateSize = 8 + 1 + 1 + 32*4 + 8 + 1 + 1 + 1

// PoolState is the persistent configuration of one pool. It is written once
// by initialize and only read afterwards.
type PoolState struct {
	Variant       Variant          `json:"variant" borsh:"variant"`
	Keying        Keying           `json:"keying" borsh:"keying"`
	MintA         solana.PublicKey `json:"mint_a" borsh:"mint_a"`
	MintB         solana.PublicKey `json:"mint_b" borsh:"mint_b"`
	VaultA        solana.PublicKey `json:"vault_a" borsh:"vault_a"`
	VaultB        solana.PublicKey `json:"vault_b" borsh:"vault_b"`
	Rate          uint64           `json:"rate" borsh:"rate"`
	PoolBump      uint8            `json:"pool_bump" borsh:"pool_bump"`
	AuthorityBump uint8            `json:"authority_bump" borsh:"authority_bump"`
	DustPolicy    DustPolicy       `json:"dust_policy" borsh:"dust_policy"`
}

func (s *PoolState) Discriminator() [8]byte {
	return PoolStateDiscriminator
}

// Encode returns the discriminator followed by the Borsh encoded fields.
func (s *PoolState) Encode() ([]byte, error) {
	buf := new(bytes.Buffer)
	buf.Grow(PoolStateSize)
	buf.Write(PoolStateDiscriminator[:])
	if err := bin.NewBorshEncoder(buf).Encode(s); err != nil {
		return nil, verrors.Wrap(err, "encode pool state")
	}
	return buf.Bytes(), nil
}

// DecodePoolState decodes a pool state record.
func DecodePoolState(data []byte) (*PoolState, error) {
	if len(data) != PoolStateSize {
		return nil, verrors.ErrInvalidAccountData.WithMessage("pool state has %d bytes, want %d", len(data), PoolStateSize)
	}

	var disc [8]byte
	copy(disc[:], data[:8])
	if disc != PoolStateDiscriminator {
		return nil, verrors.ErrInvalidAccountData.WithMessage("invalid discriminator for PoolState")
	}

	state := &PoolState{}
	if err := bin.NewBorshDecoder(data[8:]).Decode(state); err != nil {
		return nil, verrors.ErrInvalidAccountData.WithCause(err)
	}
	return state, nil
}

// ReadPoolState decodes a stored record, checking it belongs to programID.
func ReadPoolState(programID types.Pubkey, record *types.Account) (*PoolState, error) {
	if record == nil || record.IsEmpty() {
		return nil, verrors.ErrAccountNotFound
	}
	if !record.Owner.Equals(programID) {
		return nil, verrors.ErrInvalidAccountData.WithMessage("pool state owned by %s", record.Owner)
	}
	return DecodePoolState(record.Data)
}

func discriminator(b []byte) [8]byte {
	var d [8]byte
	copy(d[:], b)
	return d
}
