// Package errors defines the error taxonomy used throughout vaultswap.
//
// Every failure that aborts a ledger transaction is an *Error carrying a stable
// machine-readable Code and, for program errors, a numeric Number that clients can
// branch on. Human-readable messages are informational only.
package errors

import (
	"errors"
	"fmt"
)

// Error codes for the runtime, the custody program and the pool program.
const (
	ErrCodeCalculationOverflow     = "CALCULATION_OVERFLOW"
	ErrCodeInvalidAmount           = "INVALID_AMOUNT"
	ErrCodeInvalidSeeds            = "INVALID_SEEDS"
	ErrCodeAuthorityMismatch       = "AUTHORITY_MISMATCH"
	ErrCodeVaultMismatch           = "VAULT_MISMATCH"
	ErrCodeMintMismatch            = "MINT_MISMATCH"
	ErrCodeInsufficientFunds       = "INSUFFICIENT_FUNDS"
	ErrCodeUnauthorized            = "UNAUTHORIZED"
	ErrCodeDuplicateInitialization = "DUPLICATE_INITIALIZATION"
	ErrCodeDustAmount              = "DUST_AMOUNT"
	ErrCodeInvalidAccountData      = "INVALID_ACCOUNT_DATA"
	ErrCodeAccountNotFound         = "ACCOUNT_NOT_FOUND"
	ErrCodeMissingSigner           = "MISSING_SIGNER"
	ErrCodeAccountNotWritable      = "ACCOUNT_NOT_WRITABLE"
	ErrCodeUndeclaredAccount       = "UNDECLARED_ACCOUNT"
	ErrCodeUnknownInstruction      = "UNKNOWN_INSTRUCTION"
	ErrCodeUnknownProgram          = "UNKNOWN_PROGRAM"
	ErrCodeInsufficientLamports    = "INSUFFICIENT_LAMPORTS"
	ErrCodeIllegalOwner            = "ILLEGAL_OWNER"
	ErrCodeCallDepthExceeded       = "CALL_DEPTH_EXCEEDED"
	ErrCodeContextCanceled         = "CONTEXT_CANCELED"
	ErrCodeNotEnoughAccountKeys    = "NOT_ENOUGH_ACCOUNT_KEYS"
	ErrCodeAlreadyProcessed        = "ALREADY_PROCESSED"
	ErrCodeBlockhashNotFound       = "BLOCKHASH_NOT_FOUND"
	ErrCodeUnbalancedTransaction   = "UNBALANCED_TRANSACTION"
	ErrCodeCustom                  = "CUSTOM"
)

// Numeric program error numbers. Pool errors start at 6000 like Anchor
// custom errors; runtime and custody errors use their own low ranges.
const (
	NumberCalculationOverflow     uint32 = 6000
	NumberInvalidAmount           uint32 = 6001
	NumberInvalidSeeds            uint32 = 6002
	NumberAuthorityMismatch       uint32 = 6003
	NumberVaultMismatch           uint32 = 6004
	NumberMintMismatch            uint32 = 6005
	NumberDuplicateInitialization uint32 = 6006
	NumberDustAmount              uint32 = 6007
	NumberInvalidAccountData      uint32 = 6008

	NumberInsufficientFunds uint32 = 1
	NumberUnauthorized      uint32 = 4
)

// Error represents an error raised while executing a ledger transaction.
type Error struct {
	// Code is a unique error code for this error type.
	Code string

	// Number is the numeric program error, zero for runtime errors.
	Number uint32

	// Message is a human-readable error message.
	Message string

	// Cause is the underlying error, if any.
	Cause error

	// Details contains additional error context.
	Details map[string]any
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether the error matches the target by code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// WithCause returns a copy of the error with the given cause.
// The receiver is left untouched so package-level sentinels stay immutable.
func (e *Error) WithCause(cause error) *Error {
	out := *e
	out.Cause = cause
	return &out
}

// WithDetails returns a copy of the error with the given details.
func (e *Error) WithDetails(details map[string]any) *Error {
	out := *e
	out.Details = details
	return &out
}

// WithMessage returns a copy of the error with a more specific message.
func (e *Error) WithMessage(format string, args ...any) *Error {
	out := *e
	out.Message = fmt.Sprintf(format, args...)
	return &out
}

// NewError creates a new Error.
func NewError(code, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
	}
}

// NewProgramError creates a new Error with a numeric program error number.
func NewProgramError(code string, number uint32, message string) *Error {
	return &Error{
		Code:    code,
		Number:  number,
		Message: message,
	}
}

// Pre-defined errors.
var (
	// ErrCalculationOverflow is returned when a checked arithmetic operation would exceed u64.
	ErrCalculationOverflow = NewProgramError(ErrCodeCalculationOverflow, NumberCalculationOverflow, "calculation overflow")

	// ErrInvalidAmount is returned for zero amounts, zero rates and other amount preconditions.
	ErrInvalidAmount = NewProgramError(ErrCodeInvalidAmount, NumberInvalidAmount, "invalid amount")

	// ErrInvalidSeeds is returned when signer seeds do not reproduce the expected address.
	ErrInvalidSeeds = NewProgramError(ErrCodeInvalidSeeds, NumberInvalidSeeds, "invalid seeds")

	// ErrAuthorityMismatch is returned when a vault is not controlled by the derived authority.
	ErrAuthorityMismatch = NewProgramError(ErrCodeAuthorityMismatch, NumberAuthorityMismatch, "vault authority mismatch")

	// ErrVaultMismatch is returned when a supplied vault is not the one recorded in pool state.
	ErrVaultMismatch = NewProgramError(ErrCodeVaultMismatch, NumberVaultMismatch, "vault mismatch")

	// ErrMintMismatch is returned when a balance record holds an unexpected asset type.
	ErrMintMismatch = NewProgramError(ErrCodeMintMismatch, NumberMintMismatch, "mint mismatch")

	// ErrDuplicateInitialization is returned when a record already exists at the target address.
	ErrDuplicateInitialization = NewProgramError(ErrCodeDuplicateInitialization, NumberDuplicateInitialization, "account already in use")

	// ErrDustAmount is returned when a sell would pay out zero under the reject dust policy.
	ErrDustAmount = NewProgramError(ErrCodeDustAmount, NumberDustAmount, "swap output rounds to zero")

	// ErrInvalidAccountData is returned when a record cannot be decoded as the expected type.
	ErrInvalidAccountData = NewProgramError(ErrCodeInvalidAccountData, NumberInvalidAccountData, "invalid account data")

	// ErrInsufficientFunds is returned by the custody program when a debit exceeds the balance.
	ErrInsufficientFunds = NewProgramError(ErrCodeInsufficientFunds, NumberInsufficientFunds, "insufficient funds")

	// ErrUnauthorized is returned by the custody program when the record owner did not sign.
	ErrUnauthorized = NewProgramError(ErrCodeUnauthorized, NumberUnauthorized, "owner does not match or did not sign")

	// ErrAccountNotFound is returned when a required record does not exist.
	ErrAccountNotFound = NewError(ErrCodeAccountNotFound, "account not found")

	// ErrMissingSigner is returned when a required signature is absent.
	ErrMissingSigner = NewError(ErrCodeMissingSigner, "missing required signature")

	// ErrAccountNotWritable is returned when a program writes a record declared read-only.
	ErrAccountNotWritable = NewError(ErrCodeAccountNotWritable, "account not writable")

	// ErrUndeclaredAccount is returned when an instruction touches a record the transaction did not declare.
	ErrUndeclaredAccount = NewError(ErrCodeUndeclaredAccount, "account not declared by transaction")

	// ErrUnknownInstruction is returned when instruction data does not match any handler.
	ErrUnknownInstruction = NewError(ErrCodeUnknownInstruction, "unknown instruction")

	// ErrUnknownProgram is returned when an instruction targets an unregistered program.
	ErrUnknownProgram = NewError(ErrCodeUnknownProgram, "unknown program")

	// ErrInsufficientLamports is returned when a payer cannot fund a transfer or record creation.
	ErrInsufficientLamports = NewError(ErrCodeInsufficientLamports, "insufficient lamports")

	// ErrIllegalOwner is returned when a program mutates a record it does not own.
	ErrIllegalOwner = NewError(ErrCodeIllegalOwner, "instruction modified data of an account it does not own")

	// ErrCallDepthExceeded is returned when cross-program invocations nest too deeply.
	ErrCallDepthExceeded = NewError(ErrCodeCallDepthExceeded, "cross-program invocation depth exceeded")

	// ErrContextCanceled is returned when the context is canceled before execution.
	ErrContextCanceled = NewError(ErrCodeContextCanceled, "context canceled")

	// ErrNotEnoughAccountKeys is returned when an instruction carries fewer accounts than it needs.
	ErrNotEnoughAccountKeys = NewError(ErrCodeNotEnoughAccountKeys, "insufficient account keys for instruction")

	// ErrAlreadyProcessed is returned when a transaction signature was already executed.
	ErrAlreadyProcessed = NewError(ErrCodeAlreadyProcessed, "transaction already processed")

	// ErrBlockhashNotFound is returned when a transaction references an expired or unknown blockhash.
	ErrBlockhashNotFound = NewError(ErrCodeBlockhashNotFound, "blockhash not found")

	// ErrUnbalancedTransaction is returned when execution would create or destroy lamports.
	ErrUnbalancedTransaction = NewError(ErrCodeUnbalancedTransaction, "sum of account balances before and after transaction do not match")
)

// Custom creates a custom error with the given message.
func Custom(message string) *Error {
	return NewError(ErrCodeCustom, message)
}

// CodeOf returns the code of the first *Error in err's chain, or "" if none.
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// NumberOf returns the program error number of the first *Error in err's chain.
func NumberOf(err error) uint32 {
	var e *Error
	if errors.As(err, &e) {
		return e.Number
	}
	return 0
}

// Wrap wraps an error with additional context.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target.
func As(err error, target any) bool {
	return errors.As(err, target)
}

// Join returns an error that wraps the given errors.
func Join(errs ...error) error {
	return errors.Join(errs...)
}
