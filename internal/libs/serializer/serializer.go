// Package serializer converts cache payloads to and from the opaque byte slices
// carried by the lateral wire protocol. Peers never inspect payloads: they store
// and forward bytes, so both ends only need to agree on the serializer name.
package serializer

import (
	"sync"

	"github.com/hyp3rd/ewrap"

	"github.com/hyp3rd/lateralcache/internal/sentinel"
)

// ISerializer is the interface that wraps the basic serializer methods.
type ISerializer interface {
	// Marshal serializes the given value into a byte slice.
	Marshal(v any) ([]byte, error)
	// Unmarshal deserializes the given byte slice into the value pointed to by v.
	Unmarshal(data []byte, v any) error
}

// Registry manages serializer constructors.
type Registry struct {
	mu          sync.RWMutex
	serializers map[string]func() ISerializer
}

// NewSerializerRegistry creates a registry with the json and msgpack serializers pre-registered.
func NewSerializerRegistry() *Registry {
	registry := NewEmptySerializerRegistry()
	registry.Register("json", func() ISerializer { return JSON{} })
	registry.Register("msgpack", func() ISerializer { return Msgpack{} })

	return registry
}

// NewEmptySerializerRegistry creates a new serializer registry without default serializers.
func NewEmptySerializerRegistry() *Registry {
	return &Registry{serializers: make(map[string]func() ISerializer)}
}

// Register registers a serializer constructor under name, replacing any previous one.
func (r *Registry) Register(name string, createFunc func() ISerializer) {
	r.mu.Lock()
	r.serializers[name] = createFunc
	r.mu.Unlock()
}

// New returns a new serializer by name.
func (r *Registry) New(name string) (ISerializer, error) {
	if name == "" {
		return nil, ewrap.Wrap(sentinel.ErrParamCannotBeEmpty, "serializer name")
	}

	r.mu.RLock()
	createFunc, ok := r.serializers[name]
	r.mu.RUnlock()

	if !ok {
		return nil, ewrap.Wrap(sentinel.ErrSerializerNotFound, name)
	}

	return createFunc(), nil
}

// New returns a serializer from a fresh default registry.
func New(name string) (ISerializer, error) {
	return NewSerializerRegistry().New(name)
}
