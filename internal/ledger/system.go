package ledger

import (
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"

	verrors "github.com/lugondev/go-vaultswap/internal/errors"
	"github.com/lugondev/go-vaultswap/pkg/types"
)

// MaxAccountDataSize caps the space CreateAccount may allocate.
const MaxAccountDataSize uint64 = 10 * 1024 * 1024

// systemProgram creates records and moves lamports between system-owned wallets.
type systemProgram struct{}

func (systemProgram) ID() types.Pubkey { return solana.SystemProgramID }

func (systemProgram) Name() string { return "system" }

func (p systemProgram) Process(ic *InvokeContext, data []byte) error {
	inst, err := system.DecodeInstruction(ic.Accounts(), data)
	if err != nil {
		return verrors.ErrUnknownInstruction.WithCause(err)
	}

	switch impl := inst.Impl.(type) {
	case *system.CreateAccount:
		return p.createAccount(ic, impl)
	case *system.Transfer:
		return p.transfer(ic, impl)
	case *system.Allocate:
		return p.allocate(ic, impl)
	case *system.Assign:
		return p.assign(ic, impl)
	default:
		return verrors.ErrUnknownInstruction.WithDetails(map[string]any{
			"program":     "system",
			"instruction": system.InstructionIDToName(inst.TypeID.Uint32()),
		})
	}
}

func (systemProgram) createAccount(ic *InvokeContext, inst *system.CreateAccount) error {
	if inst.Lamports == nil || inst.Space == nil || inst.Owner == nil {
		return verrors.ErrInvalidAccountData.WithMessage("create account: missing parameters")
	}
	if err := ic.RequireAccounts(2); err != nil {
		return err
	}

	funder, err := ic.AccountAt(0)
	if err != nil {
		return err
	}
	created, err := ic.AccountAt(1)
	if err != nil {
		return err
	}

	if !funder.IsSigner() {
		return verrors.ErrMissingSigner.WithDetails(map[string]any{"account": funder.Key().String()})
	}
	if !created.IsSigner() {
		return verrors.ErrMissingSigner.WithDetails(map[string]any{"account": created.Key().String()})
	}
	if created.Exists() {
		return verrors.ErrDuplicateInitialization.WithDetails(map[string]any{"account": created.Key().String()})
	}
	if *inst.Space > MaxAccountDataSize {
		return verrors.ErrInvalidAccountData.WithMessage("requested space %d exceeds %d", *inst.Space, MaxAccountDataSize)
	}
	if minimum := RentExemptMinimum(*inst.Space); *inst.Lamports < minimum {
		return verrors.ErrInsufficientLamports.WithDetails(map[string]any{
			"account":  created.Key().String(),
			"lamports": *inst.Lamports,
			"minimum":  minimum,
		})
	}

	if err := funder.Debit(*inst.Lamports); err != nil {
		return err
	}
	if err := created.Credit(*inst.Lamports); err != nil {
		return err
	}
	created.allocate(*inst.Space)
	created.assign(*inst.Owner)

	ic.Logger().Debug("account created",
		"account", created.Key(),
		"owner", *inst.Owner,
		"space", *inst.Space,
		"lamports", *inst.Lamports,
	)
	return nil
}

func (systemProgram) transfer(ic *InvokeContext, inst *system.Transfer) error {
	if inst.Lamports == nil {
		return verrors.ErrInvalidAccountData.WithMessage("transfer: missing lamports")
	}
	if err := ic.RequireAccounts(2); err != nil {
		return err
	}

	from, err := ic.AccountAt(0)
	if err != nil {
		return err
	}
	to, err := ic.AccountAt(1)
	if err != nil {
		return err
	}

	if !from.IsSigner() {
		return verrors.ErrMissingSigner.WithDetails(map[string]any{"account": from.Key().String()})
	}
	if len(from.Data()) != 0 {
		return verrors.ErrInvalidAccountData.WithMessage("transfer: `from` must not carry data")
	}

	if err := from.Debit(*inst.Lamports); err != nil {
		return err
	}
	return to.Credit(*inst.Lamports)
}

// unallocated returns the single signing, writable, system-owned and
// data-free account Allocate and Assign operate on.
func unallocated(ic *InvokeContext) (*AccountRef, error) {
	target, err := ic.AccountAt(0)
	if err != nil {
		return nil, err
	}
	if !target.IsSigner() {
		return nil, verrors.ErrMissingSigner.WithDetails(map[string]any{"account": target.Key().String()})
	}
	if !target.IsWritable() {
		return nil, verrors.ErrAccountNotWritable.WithDetails(map[string]any{"account": target.Key().String()})
	}
	if !target.IsOwnedBy(solana.SystemProgramID) || len(target.Data()) != 0 {
		return nil, verrors.ErrDuplicateInitialization.WithDetails(map[string]any{"account": target.Key().String()})
	}
	return target, nil
}

func (systemProgram) allocate(ic *InvokeContext, inst *system.Allocate) error {
	if inst.Space == nil {
		return verrors.ErrInvalidAccountData.WithMessage("allocate: missing space")
	}
	if *inst.Space > MaxAccountDataSize {
		return verrors.ErrInvalidAccountData.WithMessage("requested space %d exceeds %d", *inst.Space, MaxAccountDataSize)
	}
	target, err := unallocated(ic)
	if err != nil {
		return err
	}
	target.allocate(*inst.Space)
	return nil
}

func (systemProgram) assign(ic *InvokeContext, inst *system.Assign) error {
	if inst.Owner == nil {
		return verrors.ErrInvalidAccountData.WithMessage("assign: missing owner")
	}
	target, err := ic.AccountAt(0)
	if err != nil {
		return err
	}
	if target.IsOwnedBy(*inst.Owner) {
		return nil
	}
	if !target.IsSigner() {
		return verrors.ErrMissingSigner.WithDetails(map[string]any{"account": target.Key().String()})
	}
	if !target.IsWritable() {
		return verrors.ErrAccountNotWritable.WithDetails(map[string]any{"account": target.Key().String()})
	}
	if !target.IsOwnedBy(solana.SystemProgramID) {
		return verrors.ErrIllegalOwner.WithDetails(map[string]any{
			"account": target.Key().String(),
			"owner":   target.Owner().String(),
		})
	}
	target.assign(*inst.Owner)
	return nil
}

// CreateAccount creates a rent-exempt record of space bytes at address,
// owned by owner and funded by payer, through nested system instructions.
// seeds sign for address when it is derived from the calling program.
//
// An address that already holds lamports but was never allocated is adopted:
// payer tops it up to the rent-exempt minimum and it is then allocated and
// assigned. Only an address holding data or owned by another program is
// rejected with DuplicateInitialization.
func CreateAccount(ic *InvokeContext, payer, address types.Pubkey, space uint64, owner types.Pubkey, seeds [][]byte) error {
	var signers [][][]byte
	if seeds != nil {
		signers = append(signers, seeds)
	}

	target, err := ic.Account(address)
	if err != nil {
		return err
	}
	minimum := RentExemptMinimum(space)
	lamports := target.Lamports()
	if lamports == 0 {
		create := system.NewCreateAccountInstruction(minimum, space, owner, payer, address).Build()
		return ic.Invoke(create, signers...)
	}
	if !target.IsOwnedBy(solana.SystemProgramID) || len(target.Data()) != 0 {
		return verrors.ErrDuplicateInitialization.WithDetails(map[string]any{"account": address.String()})
	}

	if lamports < minimum {
		if err := ic.Invoke(system.NewTransferInstruction(minimum-lamports, payer, address).Build()); err != nil {
			return err
		}
	}
	if err := ic.Invoke(system.NewAllocateInstruction(space, address).Build(), signers...); err != nil {
		return err
	}
	if err := ic.Invoke(system.NewAssignInstruction(owner, address).Build(), signers...); err != nil {
		return err
	}
	ic.Logger().Debug("prefunded account adopted",
		"account", address,
		"owner", owner,
		"space", space,
		"prefunded", lamports,
	)
	return nil
}
