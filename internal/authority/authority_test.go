package authority

import (
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	verrors "github.com/lugondev/go-vaultswap/internal/errors"
)

var programID = solana.MustPublicKeyFromBase58("Fg6PaFpoGXkYsidMpWTK6W2BeZ7FEfcYkg476zPFsLnS")

func TestDeriveIsDeterministic(t *testing.T) {
	pool := solana.NewWallet().PublicKey()

	first, err := Derive(programID, LabelAuthority, pool)
	require.NoError(t, err)
	second, err := Derive(programID, LabelAuthority, pool)
	require.NoError(t, err)

	assert.Equal(t, first.Address, second.Address)
	assert.Equal(t, first.Bump, second.Bump)
	assert.False(t, first.Address.IsOnCurve())

	other, err := Derive(programID, LabelAuthority, solana.NewWallet().PublicKey())
	require.NoError(t, err)
	assert.NotEqual(t, first.Address, other.Address)
}

func TestDeriveMatchesSolana(t *testing.T) {
	pool := solana.NewWallet().PublicKey()
	a := MustDerive(programID, LabelAuthority, pool)

	address, bump, err := solana.FindProgramAddress([][]byte{[]byte(LabelAuthority), pool.Bytes()}, programID)
	require.NoError(t, err)
	assert.Equal(t, address, a.Address)
	assert.Equal(t, bump, a.Bump)
}

func TestSignerSeedsProveAddress(t *testing.T) {
	mintA := solana.NewWallet().PublicKey()
	mintB := solana.NewWallet().PublicKey()
	a := MustDerive(programID, LabelPool, mintA, mintB)

	seeds := a.SignerSeeds()
	require.Len(t, seeds, 4)
	assert.Equal(t, []byte(LabelPool), seeds[0])
	assert.Equal(t, []byte{a.Bump}, seeds[3])
	require.NoError(t, Verify(programID, seeds, a.Address))

	// SignerSeeds hands out copies of the seed list.
	seeds[0] = []byte("tampered")
	require.NoError(t, Verify(programID, a.SignerSeeds(), a.Address))
}

func TestVerifyRejects(t *testing.T) {
	pool := solana.NewWallet().PublicKey()
	a := MustDerive(programID, LabelAuthority, pool)

	tests := []struct {
		name  string
		seeds [][]byte
		prog  solana.PublicKey
	}{
		{
			name:  "other label",
			seeds: [][]byte{[]byte(LabelVault), pool.Bytes(), {a.Bump}},
			prog:  programID,
		},
		{
			name:  "other context",
			seeds: [][]byte{[]byte(LabelAuthority), solana.NewWallet().PublicKey().Bytes(), {a.Bump}},
			prog:  programID,
		},
		{
			name:  "other program",
			seeds: a.SignerSeeds(),
			prog:  solana.SystemProgramID,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Verify(tt.prog, tt.seeds, a.Address)
			require.Error(t, err)
			assert.True(t, verrors.Is(err, verrors.ErrInvalidSeeds))
		})
	}
}

func TestFromBump(t *testing.T) {
	pool := solana.NewWallet().PublicKey()
	a := MustDerive(programID, LabelAuthority, pool)

	again, err := FromBump(programID, a.Bump, LabelAuthority, pool)
	require.NoError(t, err)
	assert.Equal(t, a.Address, again.Address)
	assert.Equal(t, a.SignerSeeds(), again.SignerSeeds())

	if a.Bump > 0 {
		lower, err := FromBump(programID, a.Bump-1, LabelAuthority, pool)
		if err == nil {
			assert.NotEqual(t, a.Address, lower.Address)
		} else {
			assert.True(t, verrors.Is(err, verrors.ErrInvalidSeeds))
		}
	}
}
