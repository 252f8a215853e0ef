// Package decoder turns "Program data:" payloads back into typed events.
//
// A payload is an 8-byte discriminator, sha256("event:<Name>")[:8], followed
// by the Borsh encoding of the event. A Registry indexes decoders by program
// and discriminator, so routing a payload is a single map lookup.
//
//	registry := decoder.NewRegistry()
//	registry.Register(decoder.NewBorshEventDecoder[SwappedEvent]("Swapped", programID))
//
//	event, err := registry.Decode(payload, &programID)
package decoder

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
)

// ErrUnknownEvent is returned when no registered decoder matches a payload.
var ErrUnknownEvent = errors.New("unknown event")

// Event is a decoded program event.
type Event struct {
	Name          string
	Data          any
	RawData       []byte
	ProgramID     solana.PublicKey
	Discriminator []byte
}

// Discriminator identifies one event type in a payload.
type Discriminator [8]byte

// EventDiscriminator computes sha256("event:<name>")[:8].
func EventDiscriminator(name string) Discriminator {
	var d Discriminator
	copy(d[:], bin.Sighash("event", name))
	return d
}

func (d Discriminator) Bytes() []byte { return d[:] }

// discriminatorOf reads the leading discriminator of a payload.
func discriminatorOf(data []byte) (Discriminator, bool) {
	var d Discriminator
	if len(data) < len(d) {
		return d, false
	}
	copy(d[:], data)
	return d, true
}

// Decoder decodes one event type emitted by one program.
type Decoder interface {
	Name() string
	ProgramID() solana.PublicKey
	Discriminator() Discriminator

	// Decode decodes a payload with the discriminator already stripped.
	Decode(body []byte) (any, error)
}

// Registry routes payloads to decoders.
type Registry struct {
	mu       sync.RWMutex
	programs map[solana.PublicKey]map[Discriminator]Decoder
}

func NewRegistry() *Registry {
	return &Registry{programs: make(map[solana.PublicKey]map[Discriminator]Decoder)}
}

// Register adds d, replacing any decoder registered for the same program
// and discriminator.
func (r *Registry) Register(d Decoder) {
	r.mu.Lock()
	defer r.mu.Unlock()

	byDisc, ok := r.programs[d.ProgramID()]
	if !ok {
		byDisc = make(map[Discriminator]Decoder)
		r.programs[d.ProgramID()] = byDisc
	}
	byDisc[d.Discriminator()] = d
}

// Names lists the registered event names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var names []string
	for _, byDisc := range r.programs {
		for _, d := range byDisc {
			names = append(names, d.Name())
		}
	}
	slices.Sort(names)
	return slices.Compact(names)
}

func (r *Registry) lookup(programID *solana.PublicKey, disc Discriminator) (Decoder, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if programID != nil {
		d, ok := r.programs[*programID][disc]
		return d, ok
	}
	for _, byDisc := range r.programs {
		if d, ok := byDisc[disc]; ok {
			return d, true
		}
	}
	return nil, false
}

// Decode decodes one payload. A nil programID matches decoders of any
// program.
func (r *Registry) Decode(data []byte, programID *solana.PublicKey) (*Event, error) {
	disc, ok := discriminatorOf(data)
	if !ok {
		return nil, fmt.Errorf("%w: payload of %d bytes has no discriminator", ErrUnknownEvent, len(data))
	}
	d, ok := r.lookup(programID, disc)
	if !ok {
		return nil, fmt.Errorf("%w: discriminator %x", ErrUnknownEvent, disc[:])
	}

	value, err := d.Decode(data[len(disc):])
	if err != nil {
		return nil, fmt.Errorf("failed to decode event %s: %w", d.Name(), err)
	}
	return &Event{
		Name:          d.Name(),
		Data:          value,
		RawData:       data,
		ProgramID:     d.ProgramID(),
		Discriminator: disc.Bytes(),
	}, nil
}

// DecodeAll decodes every payload it has a decoder for and skips the rest.
func (r *Registry) DecodeAll(payloads [][]byte, programID *solana.PublicKey) []*Event {
	events := make([]*Event, 0, len(payloads))
	for _, data := range payloads {
		if event, err := r.Decode(data, programID); err == nil {
			events = append(events, event)
		}
	}
	return events
}

// BorshEventDecoder decodes one event type into a *T.
type BorshEventDecoder[T any] struct {
	name          string
	programID     solana.PublicKey
	discriminator Discriminator
}

// NewBorshEventDecoder returns a decoder for the event called name. The
// discriminator is derived from name.
func NewBorshEventDecoder[T any](name string, programID solana.PublicKey) *BorshEventDecoder[T] {
	return &BorshEventDecoder[T]{
		name:          name,
		programID:     programID,
		discriminator: EventDiscriminator(name),
	}
}

func (d *BorshEventDecoder[T]) Name() string { return d.name }
func (d *BorshEventDecoder[T]) ProgramID() solana.PublicKey { return d.programID }
func (d *BorshEventDecoder[T]) Discriminator() Discriminator { return d.discriminator }

func (d *BorshEventDecoder[T]) Decode(body []byte) (any, error) {
	out := new(T)
	if err := bin.NewBorshDecoder(body).Decode(out); err != nil {
		return nil, err
	}
	return out, nil
}
