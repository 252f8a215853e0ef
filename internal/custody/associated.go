package custody

import (
	"github.com/gagliardetto/solana-go"
	associatedtokenaccount "github.com/gagliardetto/solana-go/programs/associated-token-account"

	verrors "github.com/lugondev/go-vaultswap/internal/errors"
	"github.com/lugondev/go-vaultswap/internal/ledger"
	"github.com/lugondev/go-vaultswap/pkg/types"
)

// AssociatedProgramID is the address of the associated balance record program.
var AssociatedProgramID = solana.SPLAssociatedTokenAccountProgramID

// AssociatedProgram creates the canonical balance record of a wallet for a
// mint, at the address derived from (wallet, custody program, mint).
type AssociatedProgram struct{}

// NewAssociated creates the associated balance record program.
func NewAssociated() *AssociatedProgram {
	return &AssociatedProgram{}
}

// ID implements ledger.Program.
func (p *AssociatedProgram) ID() types.Pubkey { return AssociatedProgramID }

// Name implements ledger.Program.
func (p *AssociatedProgram) Name() string { return "associated-custody" }

// Process implements ledger.Program.
func (p *AssociatedProgram) Process(ic *ledger.InvokeContext, data []byte) error {
	if err := ic.RequireAccounts(6); err != nil {
		return err
	}
	if _, err := associatedtokenaccount.DecodeInstruction(ic.Accounts(), data); err != nil {
		return verrors.ErrUnknownInstruction.WithCause(err)
	}

	payer := ic.Accounts()[0].PublicKey
	record := ic.Accounts()[1].PublicKey
	wallet := ic.Accounts()[2].PublicKey
	mint := ic.Accounts()[3].PublicKey

	expected, bump, err := solana.FindAssociatedTokenAddress(wallet, mint)
	if err != nil {
		return verrors.ErrInvalidSeeds.WithCause(err)
	}
	if !expected.Equals(record) {
		return verrors.ErrInvalidSeeds.WithDetails(map[string]any{
			"expected": expected.String(),
			"actual":   record.String(),
		})
	}

	ic.Log("Create")
	seeds := [][]byte{wallet[:], ProgramID[:], mint[:], {bump}}
	if err := ledger.CreateAccount(ic, payer, record, AccountSize, ProgramID, seeds); err != nil {
		return err
	}
	return ic.Invoke(InitializeBalanceRecord(record, mint, wallet))
}

// AssociatedAddress returns the associated balance record address of wallet for mint.
func AssociatedAddress(wallet, mint solana.PublicKey) (solana.PublicKey, error) {
	address, _, err := solana.FindAssociatedTokenAddress(wallet, mint)
	if err != nil {
		return solana.PublicKey{}, verrors.ErrInvalidSeeds.WithCause(err)
	}
	return address, nil
}

// CreateAssociated returns the instruction that creates wallet's associated
// balance record for mint, funded by payer.
func CreateAssociated(payer, wallet, mint solana.PublicKey) solana.Instruction {
	return associatedtokenaccount.NewCreateInstruction(payer, wallet, mint).Build()
}
