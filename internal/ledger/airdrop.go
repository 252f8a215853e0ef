package ledger

import (
	"context"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"

	verrors "github.com/lugondev/go-vaultswap/internal/errors"
	"github.com/lugondev/go-vaultswap/pkg/types"
)

// Airdrop moves lamports from the faucet wallet to recipient with an ordinary
// system transfer, so the credit is journaled like any other transaction.
func (l *Ledger) Airdrop(ctx context.Context, recipient types.Pubkey, lamports uint64) (*Result, error) {
	if lamports == 0 {
		return nil, verrors.ErrInvalidAmount.WithMessage("airdrop amount must be positive")
	}

	faucet := l.faucet.PublicKey()
	tx, err := solana.NewTransaction(
		[]solana.Instruction{
			system.NewTransferInstruction(lamports, faucet, recipient).Build(),
		},
		l.LatestBlockhash(),
		solana.TransactionPayer(faucet),
	)
	if err != nil {
		return nil, verrors.Wrap(err, "build airdrop transaction")
	}

	if _, err := tx.Sign(func(key solana.PublicKey) *solana.PrivateKey {
		if key.Equals(faucet) {
			return &l.faucet
		}
		return nil
	}); err != nil {
		return nil, verrors.Wrap(err, "sign airdrop transaction")
	}

	l.GetLogger().Info("airdrop", "recipient", recipient, "lamports", lamports)
	return l.Submit(ctx, tx)
}
