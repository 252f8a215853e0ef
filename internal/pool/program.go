// Package pool implements the fixed-rate swap pool program.
//
// A pool escrows two assets in custody balance records (vaults) controlled by
// a derived authority that has no private key. Initialize creates the pool
// state record once per derived pool address. Buy and sell exchange one asset
// for the other at the pool rate in a single atomic transaction: the user
// signs the inbound transfer and the program signs the outbound one with the
// authority's seeds.
package pool

import (
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/token"

	"github.com/lugondev/go-vaultswap/internal/custody"
	verrors "github.com/lugondev/go-vaultswap/internal/errors"
	"github.com/lugondev/go-vaultswap/internal/ledger"
	"github.com/lugondev/go-vaultswap/pkg/types"
)

// Program is the pool program deployed at a configured address.
type Program struct {
	id types.Pubkey
}

// New creates the pool program with the given program id.
func New(programID types.Pubkey) *Program {
	return &Program{id: programID}
}

// ID implements ledger.Program.
func (p *Program) ID() types.Pubkey { return p.id }

// Name implements ledger.Program.
func (p *Program) Name() string { return "vaultswap" }

// Process implements ledger.Program.
func (p *Program) Process(ic *ledger.InvokeContext, data []byte) error {
	disc, args, err := splitInstruction(data)
	if err != nil {
		return err
	}

	switch disc {
	case InitializeDiscriminator:
		ic.Log("Instruction: Initialize")
		var inst InitializeInstruction
		if err := decodeArgs(args, &inst); err != nil {
			return err
		}
		return p.initialize(ic, &inst)
	case BuyDiscriminator:
		ic.Log("Instruction: Buy")
		var inst SwapInstruction
		if err := decodeArgs(args, &inst); err != nil {
			return err
		}
		return p.swap(ic, SideBuy, inst.Amount)
	case SellDiscriminator:
		ic.Log("Instruction: Sell")
		var inst SwapInstruction
		if err := decodeArgs(args, &inst); err != nil {
			return err
		}
		return p.swap(ic, SideSell, inst.Amount)
	default:
		return verrors.ErrUnknownInstruction.WithDetails(map[string]any{
			"program":       p.Name(),
			"discriminator": disc[:],
		})
	}
}

// loadBalanceRecord decodes a custody balance record passed to the instruction.
func loadBalanceRecord(ref *ledger.AccountRef) (*token.Account, error) {
	if !ref.IsOwnedBy(custody.ProgramID) {
		return nil, verrors.ErrInvalidAccountData.WithMessage("%s is not a custody record", ref.Key())
	}
	acct, err := custody.DecodeTokenAccount(ref.Data())
	if err != nil {
		return nil, err
	}
	return acct, nil
}

func checkMint(key solana.PublicKey, acct *token.Account, expected solana.PublicKey) error {
	if acct.Mint.Equals(expected) {
		return nil
	}
	return verrors.ErrMintMismatch.WithDetails(map[string]any{
		"account":  key.String(),
		"expected": expected.String(),
		"actual":   acct.Mint.String(),
	})
}
