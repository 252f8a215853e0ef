package decoder

import (
	"bytes"
	"crypto/sha256"
	"errors"
	"testing"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type transferred struct {
	From   solana.PublicKey
	Amount uint64
}

type burned struct {
	Amount uint64
}

func payload(t *testing.T, name string, v any) []byte {
	t.Helper()
	buf := new(bytes.Buffer)
	buf.Write(EventDiscriminator(name).Bytes())
	require.NoError(t, bin.NewBorshEncoder(buf).Encode(v))
	return buf.Bytes()
}

func TestEventDiscriminator(t *testing.T) {
	sum := sha256.Sum256([]byte("event:Transferred"))
	assert.Equal(t, sum[:8], EventDiscriminator("Transferred").Bytes())
}

func TestRegistryDecode(t *testing.T) {
	programID := solana.NewWallet().PublicKey()
	registry := NewRegistry()
	registry.Register(NewBorshEventDecoder[transferred]("Transferred", programID))
	registry.Register(NewBorshEventDecoder[burned]("Burned", programID))

	from := solana.NewWallet().PublicKey()
	data := payload(t, "Transferred", &transferred{From: from, Amount: 42})

	event, err := registry.Decode(data, &programID)
	require.NoError(t, err)
	assert.Equal(t, "Transferred", event.Name)
	assert.Equal(t, programID, event.ProgramID)
	assert.Equal(t, data, event.RawData)
	got, ok := event.Data.(*transferred)
	require.True(t, ok)
	assert.Equal(t, from, got.From)
	assert.Equal(t, uint64(42), got.Amount)

	event, err = registry.Decode(data, nil)
	require.NoError(t, err)
	assert.Equal(t, "Transferred", event.Name)

	assert.Equal(t, []string{"Burned", "Transferred"}, registry.Names())
}

func TestRegistryRejects(t *testing.T) {
	programID := solana.NewWallet().PublicKey()
	registry := NewRegistry()
	registry.Register(NewBorshEventDecoder[transferred]("Transferred", programID))
	data := payload(t, "Transferred", &transferred{Amount: 1})

	tests := []struct {
		name      string
		data      []byte
		programID *solana.PublicKey
		unknown   bool
	}{
		{"other program", data, func() *solana.PublicKey { k := solana.NewWallet().PublicKey(); return &k }(), true},
		{"unknown event", payload(t, "Unknown", &burned{}), nil, true},
		{"short payload", []byte{1, 2}, &programID, true},
		{"truncated body", data[:12], &programID, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := registry.Decode(tt.data, tt.programID)
			require.Error(t, err)
			assert.Equal(t, tt.unknown, errors.Is(err, ErrUnknownEvent))
		})
	}
}

func TestDecodeAllSkipsUnknown(t *testing.T) {
	programID := solana.NewWallet().PublicKey()
	registry := NewRegistry()
	registry.Register(NewBorshEventDecoder[transferred]("Transferred", programID))
	data := payload(t, "Transferred", &transferred{Amount: 3})

	events := registry.DecodeAll([][]byte{data, {1, 2}, data}, &programID)
	assert.Len(t, events, 2)
}
