package envelope

import "encoding/json"

// Headers is a string-to-string map with stable insertion order. It
// implements contracts.Carrier so tracers can inject and extract
// context directly.
type Headers struct {
	keys   []string
	values map[string]string
}

// NewHeaders returns an empty header set.
func NewHeaders() *Headers {
	return &Headers{values: make(map[string]string, 4)}
}

// Get returns the value for key, or "" when absent.
func (h *Headers) Get(key string) string {
	return h.values[key]
}

// Set adds or replaces a header. First insertion fixes the position.
func (h *Headers) Set(key, value string) {
	if _, ok := h.values[key]; !ok {
		h.keys = append(h.keys, key)
	}
	h.values[key] = value
}

// Has reports whether key is present.
func (h *Headers) Has(key string) bool {
	_, ok := h.values[key]
	return ok
}

// Delete removes a header.
func (h *Headers) Delete(key string) {
	if _, ok := h.values[key]; !ok {
		return
	}
	delete(h.values, key)
	for i, k := range h.keys {
		if k == key {
			h.keys = append(h.keys[:i], h.keys[i+1:]...)
			break
		}
	}
}

// Keys returns the header names in insertion order.
func (h *Headers) Keys() []string {
	out := make([]string, len(h.keys))
	copy(out, h.keys)
	return out
}

// Len returns the number of headers.
func (h *Headers) Len() int {
	return len(h.keys)
}

// MarshalJSON encodes the headers as a plain JSON object.
func (h *Headers) MarshalJSON() ([]byte, error) {
	return json.Marshal(h.values)
}

// UnmarshalJSON decodes a JSON object. Order follows the encoded form
// only as far as encoding/json exposes it, which is good enough for
// rows reloaded from the outbox table.
func (h *Headers) UnmarshalJSON(data []byte) error {
	m := make(map[string]string)
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	if h.values == nil {
		h.values = make(map[string]string, len(m))
	}
	for k, v := range m {
		h.Set(k, v)
	}
	return nil
}
