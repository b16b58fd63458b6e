package codec

import (
	"encoding/json"
	"fmt"
	"reflect"

	"github.com/madcok-co/relay/core/pkg/envelope"
)

// jsonCodec is the default codec: JSON body, $type header for dispatch,
// $runtimeType when the concrete runtime type differs from T.
type jsonCodec[T any] struct {
	tag string
}

// JSON returns the default JSON codec for T.
func JSON[T any]() Codec[T] {
	return &jsonCodec[T]{tag: TypeTag[T]()}
}

func (c *jsonCodec[T]) Serialize(h *envelope.Headers, msg *T) ([]byte, error) {
	if msg == nil {
		return nil, ErrNilMessage
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("codec: serialize %s: %w", c.tag, err)
	}

	h.Set(envelope.HeaderType, c.tag)
	if rt := runtimeTag(msg); rt != "" && rt != c.tag {
		h.Set(envelope.HeaderRuntimeType, rt)
	}
	return payload, nil
}

func (c *jsonCodec[T]) Deserialize(h *envelope.Headers, payload []byte) (*T, error) {
	if !h.Has(envelope.HeaderType) {
		return nil, ErrMissingType
	}
	// A mis-tagged message must not silently unmarshal into the wrong
	// type. That is a fatal delivery, same as an unregistered tag.
	if got := h.Get(envelope.HeaderType); got != c.tag {
		return nil, fmt.Errorf("codec: message tagged %q reached the %s codec: %w", got, c.tag, ErrUnknownType)
	}

	msg := new(T)
	if err := json.Unmarshal(payload, msg); err != nil {
		return nil, fmt.Errorf("codec: deserialize %s: %w", c.tag, err)
	}
	return msg, nil
}

// runtimeTag resolves the concrete dynamic type behind interface-typed
// messages. For plain structs it equals the static tag.
func runtimeTag(msg any) string {
	v := reflect.ValueOf(msg)
	for v.Kind() == reflect.Pointer || v.Kind() == reflect.Interface {
		if v.IsNil() {
			return ""
		}
		v = v.Elem()
	}
	return tagOf(v.Type())
}
