package ledger

import (
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"

	verrors "github.com/lugondev/go-vaultswap/internal/errors"
	"github.com/lugondev/go-vaultswap/pkg/types"
)

// Result describes one executed transaction.
type Result struct {
	Signature   solana.Signature
	Slot        uint64
	BlockTime   int64
	Transaction *solana.Transaction
	Logs        []string

	// Accounts holds the post-commit state of every record the transaction
	// wrote. Closed records appear as empty system-owned accounts.
	Accounts map[types.Pubkey]*types.Account

	ReturnData *ReturnData
	Err        error
	Duration   time.Duration
}

// Success reports whether the transaction committed.
func (r *Result) Success() bool {
	return r.Err == nil
}

// ErrorCode returns the machine-readable code of the abort reason, or "".
func (r *Result) ErrorCode() string {
	return verrors.CodeOf(r.Err)
}

// InstructionError locates the instruction that aborted a transaction.
type InstructionError struct {
	Index int
	Err   error
}

func (e *InstructionError) Error() string {
	return fmt.Sprintf("instruction %d: %v", e.Index, e.Err)
}

func (e *InstructionError) Unwrap() error {
	return e.Err
}
