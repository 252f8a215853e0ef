// Package types holds the record types shared by the ledger runtime, the
// programs it hosts and the storage journal.
package types

import (
	"strconv"

	"github.com/gagliardetto/solana-go"
)

type Pubkey = solana.PublicKey

// Account is a ledger record: lamports, owning program and opaque program
// data. Only the owner may change Data.
type Account struct {
	Lamports   uint64 `json:"lamports"`
	Data       []byte `json:"data"`
	Owner      Pubkey `json:"owner"`
	Executable bool   `json:"executable"`
	RentEpoch  uint64 `json:"rent_epoch"`
}

// Clone returns a deep copy of the account.
func (a *Account) Clone() *Account {
	if a == nil {
		return nil
	}
	out := *a
	if a.Data != nil {
		out.Data = append([]byte(nil), a.Data...)
	}
	return &out
}

// IsEmpty reports whether the account holds no lamports, no data and is
// owned by the system program, whose id is the zero key. The runtime drops
// empty records at commit.
func (a *Account) IsEmpty() bool {
	return a == nil || (a.Lamports == 0 && len(a.Data) == 0 && a.Owner.IsZero())
}

const LamportsPerSOL uint64 = 1_000_000_000

// FormatLamports renders lamports as whole SOL with nine decimals.
func FormatLamports(lamports uint64) string {
	frac := strconv.FormatUint(lamports%LamportsPerSOL, 10)
	for len(frac) < 9 {
		frac = "0" + frac
	}
	return strconv.FormatUint(lamports/LamportsPerSOL, 10) + "." + frac
}
