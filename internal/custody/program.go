// Package custody implements the token custody program: mints, balance records
// and authorized transfers between them.
//
// Records use the SPL token layouts and instructions are encoded with
// solana-go's programs/token package, so standard tooling can read both.
// Only InitializeMint2, InitializeAccount3, MintTo, Transfer and CloseAccount
// are supported.
package custody

import (
	"math/bits"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/token"

	verrors "github.com/lugondev/go-vaultswap/internal/errors"
	"github.com/lugondev/go-vaultswap/internal/ledger"
	"github.com/lugondev/go-vaultswap/pkg/types"
)

// ProgramID is the address the custody program is registered at.
var ProgramID = solana.TokenProgramID

// Byte offsets of the initialization markers in the raw layouts.
const (
	mintInitializedOffset = 45
	accountStateOffset    = 108
)

// Program is the custody program.
type Program struct{}

// New creates the custody program.
func New() *Program {
	return &Program{}
}

// ID implements ledger.Program.
func (p *Program) ID() types.Pubkey { return ProgramID }

// Name implements ledger.Program.
func (p *Program) Name() string { return "custody" }

// Process implements ledger.Program.
func (p *Program) Process(ic *ledger.InvokeContext, data []byte) error {
	inst, err := token.DecodeInstruction(ic.Accounts(), data)
	if err != nil {
		return verrors.ErrUnknownInstruction.WithCause(err)
	}

	switch impl := inst.Impl.(type) {
	case *token.InitializeMint2:
		ic.Log("Instruction: InitializeMint2")
		return p.initializeMint(ic, impl)
	case *token.InitializeAccount3:
		ic.Log("Instruction: InitializeAccount3")
		return p.initializeAccount(ic, impl)
	case *token.MintTo:
		ic.Log("Instruction: MintTo")
		return p.mintTo(ic, impl)
	case *token.Transfer:
		ic.Log("Instruction: Transfer")
		return p.transfer(ic, impl)
	case *token.CloseAccount:
		ic.Log("Instruction: CloseAccount")
		return p.closeAccount(ic)
	default:
		return verrors.ErrUnknownInstruction.WithDetails(map[string]any{
			"program":     "custody",
			"instruction": token.InstructionIDToName(inst.TypeID.Uint8()),
		})
	}
}

func (p *Program) initializeMint(ic *ledger.InvokeContext, inst *token.InitializeMint2) error {
	if inst.Decimals == nil || inst.MintAuthority == nil {
		return verrors.ErrInvalidAccountData.WithMessage("initialize mint: missing parameters")
	}
	mintRef, err := ic.AccountAt(0)
	if err != nil {
		return err
	}
	raw, err := p.ownedData(mintRef, MintSize)
	if err != nil {
		return err
	}
	if raw[mintInitializedOffset] != 0 {
		return verrors.ErrDuplicateInitialization.WithDetails(map[string]any{"mint": mintRef.Key().String()})
	}

	mint := &token.Mint{
		MintAuthority:   inst.MintAuthority,
		Decimals:        *inst.Decimals,
		IsInitialized:   true,
		FreezeAuthority: inst.FreezeAuthority,
	}
	data, err := EncodeMint(mint)
	if err != nil {
		return err
	}
	return mintRef.SetData(data)
}

func (p *Program) initializeAccount(ic *ledger.InvokeContext, inst *token.InitializeAccount3) error {
	if inst.Owner == nil {
		return verrors.ErrInvalidAccountData.WithMessage("initialize account: missing owner")
	}
	if err := ic.RequireAccounts(2); err != nil {
		return err
	}
	acctRef, err := ic.AccountAt(0)
	if err != nil {
		return err
	}
	mintRef, err := ic.AccountAt(1)
	if err != nil {
		return err
	}

	raw, err := p.ownedData(acctRef, AccountSize)
	if err != nil {
		return err
	}
	if raw[accountStateOffset] != byte(token.Uninitialized) {
		return verrors.ErrDuplicateInitialization.WithDetails(map[string]any{"account": acctRef.Key().String()})
	}
	if _, err := p.loadMint(mintRef); err != nil {
		return err
	}

	acct := &token.Account{
		Mint:  mintRef.Key(),
		Owner: *inst.Owner,
		State: token.Initialized,
	}
	data, err := EncodeTokenAccount(acct)
	if err != nil {
		return err
	}
	ic.Logger().Debug("balance record created",
		"account", acctRef.Key(),
		"mint", acct.Mint,
		"owner", acct.Owner,
	)
	return acctRef.SetData(data)
}

func (p *Program) mintTo(ic *ledger.InvokeContext, inst *token.MintTo) error {
	if inst.Amount == nil {
		return verrors.ErrInvalidAmount.WithMessage("mint to: missing amount")
	}
	if err := ic.RequireAccounts(3); err != nil {
		return err
	}
	mintRef, err := ic.AccountAt(0)
	if err != nil {
		return err
	}
	destRef, err := ic.AccountAt(1)
	if err != nil {
		return err
	}
	authRef, err := ic.AccountAt(2)
	if err != nil {
		return err
	}

	mint, err := p.loadMint(mintRef)
	if err != nil {
		return err
	}
	dest, err := p.loadAccount(destRef)
	if err != nil {
		return err
	}

	if mint.MintAuthority == nil || !mint.MintAuthority.Equals(authRef.Key()) || !authRef.IsSigner() {
		return verrors.ErrUnauthorized.WithDetails(map[string]any{
			"mint":      mintRef.Key().String(),
			"authority": authRef.Key().String(),
		})
	}
	if !dest.Mint.Equals(mintRef.Key()) {
		return verrors.ErrMintMismatch.WithDetails(map[string]any{
			"expected": mintRef.Key().String(),
			"actual":   dest.Mint.String(),
		})
	}

	supply, carry := bits.Add64(mint.Supply, *inst.Amount, 0)
	if carry != 0 {
		return verrors.ErrCalculationOverflow.WithMessage("mint supply overflow")
	}
	balance, carry := bits.Add64(dest.Amount, *inst.Amount, 0)
	if carry != 0 {
		return verrors.ErrCalculationOverflow.WithMessage("balance overflow")
	}
	mint.Supply = supply
	dest.Amount = balance

	if err := p.storeMint(mintRef, mint); err != nil {
		return err
	}
	return p.storeAccount(destRef, dest)
}

// transfer moves tokens between two balance records of the same mint. The
// source owner must have signed, either as a wallet or through derivation seeds.
func (p *Program) transfer(ic *ledger.InvokeContext, inst *token.Transfer) error {
	if inst.Amount == nil {
		return verrors.ErrInvalidAmount.WithMessage("transfer: missing amount")
	}
	amount := *inst.Amount
	if err := ic.RequireAccounts(3); err != nil {
		return err
	}
	srcRef, err := ic.AccountAt(0)
	if err != nil {
		return err
	}
	dstRef, err := ic.AccountAt(1)
	if err != nil {
		return err
	}
	ownerRef, err := ic.AccountAt(2)
	if err != nil {
		return err
	}

	src, err := p.loadAccount(srcRef)
	if err != nil {
		return err
	}
	dst, err := p.loadAccount(dstRef)
	if err != nil {
		return err
	}

	if src.State == token.Frozen || dst.State == token.Frozen {
		return verrors.ErrUnauthorized.WithMessage("account is frozen")
	}
	if !src.Owner.Equals(ownerRef.Key()) || !ownerRef.IsSigner() {
		return verrors.ErrUnauthorized.WithDetails(map[string]any{
			"source":    srcRef.Key().String(),
			"owner":     src.Owner.String(),
			"authority": ownerRef.Key().String(),
			"signed":    ownerRef.IsSigner(),
		})
	}
	if !src.Mint.Equals(dst.Mint) {
		return verrors.ErrMintMismatch.WithDetails(map[string]any{
			"source_mint":      src.Mint.String(),
			"destination_mint": dst.Mint.String(),
		})
	}
	if src.Amount < amount {
		return verrors.ErrInsufficientFunds.WithDetails(map[string]any{
			"source":    srcRef.Key().String(),
			"balance":   src.Amount,
			"requested": amount,
		})
	}
	if srcRef.Key().Equals(dstRef.Key()) {
		return nil
	}

	balance, carry := bits.Add64(dst.Amount, amount, 0)
	if carry != 0 {
		return verrors.ErrCalculationOverflow.WithMessage("balance overflow")
	}
	src.Amount -= amount
	dst.Amount = balance

	if err := p.storeAccount(srcRef, src); err != nil {
		return err
	}
	return p.storeAccount(dstRef, dst)
}

// closeAccount removes an empty balance record and pays its lamports to the
// destination. The close authority signs when one is set, the owner otherwise.
func (p *Program) closeAccount(ic *ledger.InvokeContext) error {
	if err := ic.RequireAccounts(3); err != nil {
		return err
	}
	acctRef, err := ic.AccountAt(0)
	if err != nil {
		return err
	}
	destRef, err := ic.AccountAt(1)
	if err != nil {
		return err
	}
	authRef, err := ic.AccountAt(2)
	if err != nil {
		return err
	}

	acct, err := p.loadAccount(acctRef)
	if err != nil {
		return err
	}
	authority := acct.Owner
	if acct.CloseAuthority != nil {
		authority = *acct.CloseAuthority
	}
	if !authority.Equals(authRef.Key()) || !authRef.IsSigner() {
		return verrors.ErrUnauthorized.WithDetails(map[string]any{
			"account":   acctRef.Key().String(),
			"authority": authRef.Key().String(),
			"signed":    authRef.IsSigner(),
		})
	}
	if acct.Amount != 0 {
		return verrors.ErrInvalidAmount.WithDetails(map[string]any{
			"account": acctRef.Key().String(),
			"balance": acct.Amount,
			"reason":  "balance record still holds tokens",
		})
	}

	lamports := acctRef.Lamports()
	if err := acctRef.Close(destRef); err != nil {
		return err
	}
	ic.Logger().Debug("balance record closed",
		"account", acctRef.Key(),
		"destination", destRef.Key(),
		"lamports", lamports,
	)
	return nil
}

func (p *Program) ownedData(ref *ledger.AccountRef, size int) ([]byte, error) {
	if !ref.IsOwnedBy(ProgramID) {
		return nil, verrors.ErrIllegalOwner.WithDetails(map[string]any{
			"account": ref.Key().String(),
			"owner":   ref.Owner().String(),
		})
	}
	data := ref.Data()
	if len(data) != size {
		return nil, verrors.ErrInvalidAccountData.WithMessage("account %s has %d bytes, want %d", ref.Key(), len(data), size)
	}
	return data, nil
}

func (p *Program) loadMint(ref *ledger.AccountRef) (*token.Mint, error) {
	data, err := p.ownedData(ref, MintSize)
	if err != nil {
		return nil, err
	}
	return DecodeMint(data)
}

func (p *Program) loadAccount(ref *ledger.AccountRef) (*token.Account, error) {
	data, err := p.ownedData(ref, AccountSize)
	if err != nil {
		return nil, err
	}
	return DecodeTokenAccount(data)
}

func (p *Program) storeMint(ref *ledger.AccountRef, mint *token.Mint) error {
	data, err := EncodeMint(mint)
	if err != nil {
		return err
	}
	return ref.SetData(data)
}

func (p *Program) storeAccount(ref *ledger.AccountRef, acct *token.Account) error {
	data, err := EncodeTokenAccount(acct)
	if err != nil {
		return err
	}
	return ref.SetData(data)
}
