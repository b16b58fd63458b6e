package topic

import (
	"fmt"
	"reflect"
	"sort"
	"sync"
)

// Model is the startup-time registry of topic configurations. Register
// through the builder, then Seal before handing the model to runtime
// components. Lookups after Seal are lock-free.
type Model struct {
	mu     sync.Mutex
	sealed bool

	byType map[reflect.Type]any
	byTag  map[string]any
	byName map[string]any
}

// NewModel returns an empty model.
func NewModel() *Model {
	return &Model{
		byType: make(map[reflect.Type]any),
		byTag:  make(map[string]any),
		byName: make(map[string]any),
	}
}

func register[T any](m *Model, cfg *Config[T]) error {
	if m == nil {
		return fmt.Errorf("topic %q: nil model", cfg.name)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.sealed {
		return fmt.Errorf("topic %q: model already sealed", cfg.name)
	}

	rt := reflect.TypeOf((*T)(nil)).Elem()
	if _, ok := m.byType[rt]; ok {
		return fmt.Errorf("topic %q: type %s already registered", cfg.name, rt)
	}
	if _, ok := m.byTag[cfg.tag]; ok {
		return fmt.Errorf("topic %q: tag %q already registered", cfg.name, cfg.tag)
	}

	m.byType[rt] = cfg
	m.byTag[cfg.tag] = cfg
	m.byName[cfg.name] = cfg
	return nil
}

// Seal freezes the model. Further Build calls fail.
func (m *Model) Seal() {
	m.mu.Lock()
	m.sealed = true
	m.mu.Unlock()
}

// Sealed reports whether the model has been frozen.
func (m *Model) Sealed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sealed
}

// Lookup returns the configuration registered for T.
func Lookup[T any](m *Model) (*Config[T], error) {
	rt := reflect.TypeOf((*T)(nil)).Elem()
	m.mu.Lock()
	raw, ok := m.byType[rt]
	m.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("topic: type %s is not registered", rt)
	}
	cfg, ok := raw.(*Config[T])
	if !ok {
		return nil, fmt.Errorf("topic: type %s registered with mismatched config", rt)
	}
	return cfg, nil
}

// ByTag returns the raw configuration for a type tag. Callers that need
// typed access use Lookup; the outbox worker routes rows through the
// erased form.
func (m *Model) ByTag(tag string) (any, bool) {
	m.mu.Lock()
	raw, ok := m.byTag[tag]
	m.mu.Unlock()
	return raw, ok
}

// Tags returns the registered type tags in stable order.
func (m *Model) Tags() []string {
	m.mu.Lock()
	tags := make([]string, 0, len(m.byTag))
	for tag := range m.byTag {
		tags = append(tags, tag)
	}
	m.mu.Unlock()
	sort.Strings(tags)
	return tags
}
