package custody

import (
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"
	"github.com/gagliardetto/solana-go/programs/token"

	"github.com/lugondev/go-vaultswap/internal/ledger"
)

// CreateMint returns the instructions that allocate mint and initialize it
// with the given authority. mint must sign the transaction.
func CreateMint(payer, mint, mintAuthority solana.PublicKey, decimals uint8) []solana.Instruction {
	return []solana.Instruction{
		system.NewCreateAccountInstruction(
			ledger.RentExemptMinimum(MintSize),
			MintSize,
			ProgramID,
			payer,
			mint,
		).Build(),
		token.NewInitializeMint2InstructionBuilder().
			SetDecimals(decimals).
			SetMintAuthority(mintAuthority).
			SetMintAccount(mint).
			Build(),
	}
}

// CreateBalanceRecord returns the instructions that allocate account and
// initialize it as a balance record of mint controlled by owner.
// account must sign the transaction.
func CreateBalanceRecord(payer, account, mint, owner solana.PublicKey) []solana.Instruction {
	return []solana.Instruction{
		system.NewCreateAccountInstruction(
			ledger.RentExemptMinimum(AccountSize),
			AccountSize,
			ProgramID,
			payer,
			account,
		).Build(),
		InitializeBalanceRecord(account, mint, owner),
	}
}

// InitializeBalanceRecord initializes an already allocated balance record.
func InitializeBalanceRecord(account, mint, owner solana.PublicKey) solana.Instruction {
	return token.NewInitializeAccount3Instruction(owner, account, mint).Build()
}

// MintTo credits amount new tokens to destination.
func MintTo(amount uint64, mint, destination, mintAuthority solana.PublicKey) solana.Instruction {
	return token.NewMintToInstruction(amount, mint, destination, mintAuthority, nil).Build()
}

// Transfer moves amount from source to destination, authorized by owner.
func Transfer(amount uint64, source, destination, owner solana.PublicKey) solana.Instruction {
	return token.NewTransferInstruction(amount, source, destination, owner, nil).Build()
}

// CloseAccount closes an empty balance record and sends its lamports to
// destination, authorized by owner.
func CloseAccount(account, destination, owner solana.PublicKey) solana.Instruction {
	return token.NewCloseAccountInstruction(account, destination, owner, nil).Build()
}
