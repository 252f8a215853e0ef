package pool

import (
	"bytes"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"

	verrors "github.com/lugondev/go-vaultswap/internal/errors"
	"github.com/lugondev/go-vaultswap/pkg/decoder"
	"github.com/lugondev/go-vaultswap/pkg/log"
)

// Event names as they appear in decoded events.
const (
	EventPoolInitialized = "PoolInitialized"
	EventSwapped         = "Swapped"
)

var PoolInitializedEventDiscriminator = decoder.EventDiscriminator(EventPoolInitialized)

type PoolInitializedEvent struct {
	Pool       solana.PublicKey `json:"pool" borsh:"pool"`
	Authority  solana.PublicKey `json:"authority" borsh:"authority"`
	MintA      solana.PublicKey `json:"mint_a" borsh:"mint_a"`
	MintB      solana.PublicKey `json:"mint_b" borsh:"mint_b"`
	VaultA     solana.PublicKey `json:"vault_a" borsh:"vault_a"`
	VaultB     solana.PublicKey `json:"vault_b" borsh:"vault_b"`
	Variant    Variant          `json:"variant" borsh:"variant"`
	Keying     Keying           `json:"keying" borsh:"keying"`
	DustPolicy DustPolicy       `json:"dust_policy" borsh:"dust_policy"`
	Rate       uint64           `json:"rate" borsh:"rate"`
	DepositA   uint64           `json:"deposit_a" borsh:"deposit_a"`
	DepositB   uint64           `json:"deposit_b" borsh:"deposit_b"`
}

func (e *PoolInitializedEvent) Discriminator() [8]byte {
	return PoolInitializedEventDiscriminator
}

var SwappedEventDiscriminator = decoder.EventDiscriminator(EventSwapped)

type SwappedEvent struct {
	Pool      solana.PublicKey `json:"pool" borsh:"pool"`
	User      solana.PublicKey `json:"user" borsh:"user"`
	Side      Side             `json:"side" borsh:"side"`
	MintIn    solana.PublicKey `json:"mint_in" borsh:"mint_in"`
	MintOut   solana.PublicKey `json:"mint_out" borsh:"mint_out"`
	AmountIn  uint64           `json:"amount_in" borsh:"amount_in"`
	AmountOut uint64           `json:"amount_out" borsh:"amount_out"`
}

func (e *SwappedEvent) Discriminator() [8]byte {
	return SwappedEventDiscriminator
}

type discriminated interface {
	Discriminator() [8]byte
}

// encodeEvent prefixes the Borsh encoding of event with its discriminator.
func encodeEvent(event discriminated) ([]byte, error) {
	buf := new(bytes.Buffer)
	disc := event.Discriminator()
	buf.Write(disc[:])
	if err := bin.NewBorshEncoder(buf).Encode(event); err != nil {
		return nil, verrors.Wrap(err, "encode event")
	}
	return buf.Bytes(), nil
}

// NewEventRegistry returns a registry that decodes the events of the pool
// program deployed at programID.
func NewEventRegistry(programID solana.PublicKey) *decoder.Registry {
	registry := decoder.NewRegistry()
	registry.Register(decoder.NewBorshEventDecoder[PoolInitializedEvent](EventPoolInitialized, programID))
	registry.Register(decoder.NewBorshEventDecoder[SwappedEvent](EventSwapped, programID))
	return registry
}

// DecodeEvents extracts and decodes the pool events found in transaction logs.
func DecodeEvents(programID solana.PublicKey, registry *decoder.Registry, logs []string) []*decoder.Event {
	payloads := log.ProgramData(logs, programID.String())
	return registry.DecodeAll(payloads, &programID)
}
