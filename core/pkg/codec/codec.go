// Package codec serializes messages to wire payloads and back. The
// concrete type on the wire is carried by the $type header (a stable
// logical tag), optionally refined by $runtimeType for polymorphic
// payloads.
package codec

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/madcok-co/relay/core/pkg/envelope"
)

var (
	// ErrNilMessage is fatal: serializing an envelope without a message.
	ErrNilMessage = errors.New("codec: nil message")

	// ErrMissingType is fatal: a consumed message without a $type header.
	ErrMissingType = errors.New("codec: missing $type header")

	// ErrUnknownType is returned when the registry holds no entry for a
	// message's type tag.
	ErrUnknownType = errors.New("codec: unknown message type")
)

// Codec serializes and deserializes messages of type T. Implementations
// may read and write the framework headers $type and $runtimeType.
type Codec[T any] interface {
	Serialize(h *envelope.Headers, msg *T) ([]byte, error)
	Deserialize(h *envelope.Headers, payload []byte) (*T, error)
}

// TypeTag returns the stable logical tag for T: the bare type name
// without package path, matching the default topic name.
func TypeTag[T any]() string {
	var zero *T
	return tagOf(reflect.TypeOf(zero).Elem())
}

func tagOf(t reflect.Type) string {
	name := t.Name()
	if name == "" {
		name = t.String()
	}
	// Strip generic instantiation noise, keep the bare name.
	if i := strings.IndexByte(name, '['); i > 0 {
		name = name[:i]
	}
	return name
}

// Entry decodes or encodes an untyped payload for one registered tag.
// The outbox worker routes rows through these.
type Entry struct {
	Tag    string
	Decode func(h *envelope.Headers, payload []byte) (any, error)
	Encode func(h *envelope.Headers, msg any) ([]byte, error)
}

// Registry maps type tags to codec entries. Built once at startup from
// explicit registrations; reads are unlocked afterwards.
type Registry struct {
	entries map[string]Entry
	sealed  bool
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]Entry)}
}

// Add registers an entry. Registering after Seal or registering a
// duplicate tag panics: both are startup wiring mistakes.
func (r *Registry) Add(e Entry) {
	if r.sealed {
		panic("codec: registry sealed")
	}
	if _, ok := r.entries[e.Tag]; ok {
		panic(fmt.Sprintf("codec: duplicate tag %q", e.Tag))
	}
	r.entries[e.Tag] = e
}

// Seal freezes the registry.
func (r *Registry) Seal() {
	r.sealed = true
}

// Lookup resolves a tag.
func (r *Registry) Lookup(tag string) (Entry, error) {
	e, ok := r.entries[tag]
	if !ok {
		return Entry{}, fmt.Errorf("%w: %q", ErrUnknownType, tag)
	}
	return e, nil
}

// Register adds a typed codec to the registry under T's tag.
func Register[T any](r *Registry, c Codec[T]) {
	tag := TypeTag[T]()
	r.Add(Entry{
		Tag: tag,
		Decode: func(h *envelope.Headers, payload []byte) (any, error) {
			return c.Deserialize(h, payload)
		},
		Encode: func(h *envelope.Headers, msg any) ([]byte, error) {
			typed, ok := msg.(*T)
			if !ok {
				return nil, fmt.Errorf("codec: tag %q cannot encode %T", tag, msg)
			}
			return c.Serialize(h, typed)
		},
	})
}
