package pool

import (
	"bytes"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"

	"github.com/lugondev/go-vaultswap/internal/custody"
	verrors "github.com/lugondev/go-vaultswap/internal/errors"
)

// Create a pool, its state record and (for liquidity-seeded pools) its vaults
var InitializeDiscriminator = discriminator(bin.SighashInstruction("initialize"))

type InitializeInstruction struct {
	Variant    Variant    `json:"variant" borsh:"variant"`
	Keying     Keying     `json:"keying" borsh:"keying"`
	DustPolicy DustPolicy `json:"dust_policy" borsh:"dust_policy"`
	Rate       uint64     `json:"rate" borsh:"rate"`
	DepositA   uint64     `json:"deposit_a" borsh:"deposit_a"`
	DepositB   uint64     `json:"deposit_b" borsh:"deposit_b"`
}

// InitializeAccounts lists the records initialize touches. PayerA and PayerB
// are the payer's balance records and are only needed with a deposit.
type InitializeAccounts struct {
	Payer     solana.PublicKey
	Pool      solana.PublicKey
	Authority solana.PublicKey
	MintA     solana.PublicKey
	MintB     solana.PublicKey
	VaultA    solana.PublicKey
	VaultB    solana.PublicKey
	PayerA    solana.PublicKey
	PayerB    solana.PublicKey
}

// Pay asset B, receive asset A at the pool rate
var BuyDiscriminator = discriminator(bin.SighashInstruction("buy"))

// Pay asset A, receive asset B at the pool rate
var SellDiscriminator = discriminator(bin.SighashInstruction("sell"))

type SwapInstruction struct {
	Amount uint64 `json:"amount" borsh:"amount"`
}

type SwapAccounts struct {
	User      solana.PublicKey
	Pool      solana.PublicKey
	Authority solana.PublicKey
	VaultA    solana.PublicKey
	VaultB    solana.PublicKey
	UserA     solana.PublicKey
	UserB     solana.PublicKey
}

// Account positions shared by the builders and the program.
const (
	initPayer = iota
	initPool
	initAuthority
	initMintA
	initMintB
	initVaultA
	initVaultB
	initSystemProgram
	initCustodyProgram
	initPayerA
	initPayerB
)

const (
	swapUser = iota
	swapPool
	swapAuthority
	swapVaultA
	swapVaultB
	swapUserA
	swapUserB
	swapCustodyProgram
	swapAccountCount
)

// NewInitializeInstruction builds an initialize instruction for programID.
func NewInitializeInstruction(programID solana.PublicKey, args InitializeInstruction, accounts InitializeAccounts) (solana.Instruction, error) {
	data, err := encodeInstruction(InitializeDiscriminator, &args)
	if err != nil {
		return nil, err
	}
	metas := solana.AccountMetaSlice{
		solana.Meta(accounts.Payer).WRITE().SIGNER(),
		solana.Meta(accounts.Pool).WRITE(),
		solana.Meta(accounts.Authority),
		solana.Meta(accounts.MintA),
		solana.Meta(accounts.MintB),
		solana.Meta(accounts.VaultA).WRITE(),
		solana.Meta(accounts.VaultB).WRITE(),
		solana.Meta(solana.SystemProgramID),
		solana.Meta(custody.ProgramID),
	}
	if args.DepositA > 0 || args.DepositB > 0 {
		metas.Append(solana.Meta(accounts.PayerA).WRITE())
		metas.Append(solana.Meta(accounts.PayerB).WRITE())
	}
	return solana.NewInstruction(programID, metas, data), nil
}

// NewBuyInstruction builds a buy of amountInB.
func NewBuyInstruction(programID solana.PublicKey, amountInB uint64, accounts SwapAccounts) (solana.Instruction, error) {
	return newSwapInstruction(programID, BuyDiscriminator, amountInB, accounts)
}

// NewSellInstruction builds a sell of amountInA.
func NewSellInstruction(programID solana.PublicKey, amountInA uint64, accounts SwapAccounts) (solana.Instruction, error) {
	return newSwapInstruction(programID, SellDiscriminator, amountInA, accounts)
}

func newSwapInstruction(programID solana.PublicKey, disc [8]byte, amount uint64, accounts SwapAccounts) (solana.Instruction, error) {
	data, err := encodeInstruction(disc, &SwapInstruction{Amount: amount})
	if err != nil {
		return nil, err
	}
	metas := solana.AccountMetaSlice{
		solana.Meta(accounts.User).SIGNER(),
		solana.Meta(accounts.Pool),
		solana.Meta(accounts.Authority),
		solana.Meta(accounts.VaultA).WRITE(),
		solana.Meta(accounts.VaultB).WRITE(),
		solana.Meta(accounts.UserA).WRITE(),
		solana.Meta(accounts.UserB).WRITE(),
		solana.Meta(custody.ProgramID),
	}
	return solana.NewInstruction(programID, metas, data), nil
}

func encodeInstruction(disc [8]byte, args any) ([]byte, error) {
	buf := new(bytes.Buffer)
	buf.Write(disc[:])
	if err := bin.NewBorshEncoder(buf).Encode(args); err != nil {
		return nil, verrors.Wrap(err, "encode instruction")
	}
	return buf.Bytes(), nil
}

// splitInstruction separates the discriminator from the Borsh arguments.
func splitInstruction(data []byte) ([8]byte, []byte, error) {
	var disc [8]byte
	if len(data) < 8 {
		return disc, nil, verrors.ErrUnknownInstruction.WithMessage("instruction data too short")
	}
	copy(disc[:], data[:8])
	return disc, data[8:], nil
}

func decodeArgs(data []byte, args any) error {
	dec := bin.NewBorshDecoder(data)
	if err := dec.Decode(args); err != nil {
		return verrors.ErrInvalidAccountData.WithCause(err)
	}
	if dec.HasRemaining() {
		return verrors.ErrInvalidAccountData.WithMessage("trailing instruction data")
	}
	return nil
}

// InstructionName returns the name of a pool instruction from its data, or "".
func InstructionName(data []byte) string {
	disc, _, err := splitInstruction(data)
	if err != nil {
		return ""
	}
	switch disc {
	case InitializeDiscriminator:
		return "initialize"
	case BuyDiscriminator:
		return "buy"
	case SellDiscriminator:
		return "sell"
	default:
		return ""
	}
}
