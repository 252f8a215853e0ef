package custody

import (
	"bytes"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go/programs/token"

	verrors "github.com/lugondev/go-vaultswap/internal/errors"
	"github.com/lugondev/go-vaultswap/pkg/types"
)

// Fixed record sizes of the token program layouts.
const (
	MintSize    = 82
	AccountSize = 165
)

// DecodeMint decodes an initialized mint record.
func DecodeMint(data []byte) (*token.Mint, error) {
	if len(data) != MintSize {
		return nil, verrors.ErrInvalidAccountData.WithMessage("mint data has %d bytes, want %d", len(data), MintSize)
	}
	var mint token.Mint
	if err := bin.NewBinDecoder(data).Decode(&mint); err != nil {
		return nil, verrors.ErrInvalidAccountData.WithCause(err)
	}
	if !mint.IsInitialized {
		return nil, verrors.ErrInvalidAccountData.WithMessage("mint is not initialized")
	}
	return &mint, nil
}

// EncodeMint encodes mint into its fixed-size layout.
func EncodeMint(mint *token.Mint) ([]byte, error) {
	var buf bytes.Buffer
	if err := bin.NewBinEncoder(&buf).Encode(mint); err != nil {
		return nil, verrors.Wrap(err, "encode mint")
	}
	return buf.Bytes(), nil
}

// DecodeTokenAccount decodes an initialized token account (balance record).
func DecodeTokenAccount(data []byte) (*token.Account, error) {
	if len(data) != AccountSize {
		return nil, verrors.ErrInvalidAccountData.WithMessage("token account data has %d bytes, want %d", len(data), AccountSize)
	}
	var acct token.Account
	if err := bin.NewBinDecoder(data).Decode(&acct); err != nil {
		return nil, verrors.ErrInvalidAccountData.WithCause(err)
	}
	if acct.State == token.Uninitialized {
		return nil, verrors.ErrInvalidAccountData.WithMessage("token account is not initialized")
	}
	return &acct, nil
}

// EncodeTokenAccount encodes acct into its fixed-size layout.
func EncodeTokenAccount(acct *token.Account) ([]byte, error) {
	var buf bytes.Buffer
	if err := bin.NewBinEncoder(&buf).Encode(acct); err != nil {
		return nil, verrors.Wrap(err, "encode token account")
	}
	return buf.Bytes(), nil
}

// ReadTokenAccount decodes a committed record as a token account, checking
// that the custody program owns it.
func ReadTokenAccount(record *types.Account) (*token.Account, error) {
	if record == nil || !record.Owner.Equals(ProgramID) {
		return nil, verrors.ErrInvalidAccountData.WithMessage("record is not owned by the custody program")
	}
	return DecodeTokenAccount(record.Data)
}

// ReadMint decodes a committed record as a mint, checking ownership.
func ReadMint(record *types.Account) (*token.Mint, error) {
	if record == nil || !record.Owner.Equals(ProgramID) {
		return nil, verrors.ErrInvalidAccountData.WithMessage("record is not owned by the custody program")
	}
	return DecodeMint(record.Data)
}
