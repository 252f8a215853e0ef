package types

import (
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
)

func TestAccountClone(t *testing.T) {
	a := &Account{Lamports: 5, Data: []byte{1, 2}, Owner: solana.SystemProgramID}
	b := a.Clone()
	b.Data[0] = 9
	assert.Equal(t, byte(1), a.Data[0])
	assert.Nil(t, (*Account)(nil).Clone())
}

func TestAccountIsEmpty(t *testing.T) {
	assert.True(t, (*Account)(nil).IsEmpty())
	assert.True(t, (&Account{}).IsEmpty())
	assert.False(t, (&Account{Lamports: 1}).IsEmpty())
	assert.True(t, (&Account{Owner: solana.SystemProgramID}).IsEmpty())
	assert.False(t, (&Account{Owner: solana.TokenProgramID}).IsEmpty())
	assert.False(t, (&Account{Data: []byte{0}, Owner: solana.SystemProgramID}).IsEmpty())
}

func TestFormatLamports(t *testing.T) {
	assert.Equal(t, "0.000000000", FormatLamports(0))
	assert.Equal(t, "1.500000000", FormatLamports(1_500_000_000))
	assert.Equal(t, "18446744073.709551615", FormatLamports(^uint64(0)))
}
