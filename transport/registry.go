package transport

import (
	"fmt"
	"sync"

	"github.com/Martenstenden/Data-Logger-sub001/component"
	"github.com/Martenstenden/Data-Logger-sub001/errors"
	"github.com/Martenstenden/Data-Logger-sub001/types"
)

// Factory builds a backend from runtime dependencies.
type Factory func(deps component.Dependencies) Backend

// Registry maps protocols to backend factories. The binary registers the
// compiled-in backends at startup; tests register fakes.
type Registry struct {
	mu        sync.RWMutex
	factories map[types.Protocol]Factory
}

// NewRegistry creates an empty backend registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[types.Protocol]Factory)}
}

// Register adds a factory for a protocol. Duplicate registration is a
// programming error and rejected.
func (r *Registry) Register(protocol types.Protocol, factory Factory) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if factory == nil {
		return errors.WrapInvalid(fmt.Errorf("nil factory for %s", protocol),
			"transport.Registry", "Register", "factory validation")
	}
	if _, exists := r.factories[protocol]; exists {
		return errors.WrapInvalid(fmt.Errorf("backend %s already registered", protocol),
			"transport.Registry", "Register", "duplicate registration")
	}
	r.factories[protocol] = factory
	return nil
}

// New builds a backend for the given protocol.
func (r *Registry) New(protocol types.Protocol, deps component.Dependencies) (Backend, error) {
	r.mu.RLock()
	factory, ok := r.factories[protocol]
	r.mu.RUnlock()

	if !ok {
		return nil, errors.WrapInvalid(fmt.Errorf("no backend registered for %q", protocol),
			"transport.Registry", "New", "protocol lookup")
	}
	return factory(deps), nil
}

// Protocols lists the registered protocols.
func (r *Registry) Protocols() []types.Protocol {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]types.Protocol, 0, len(r.factories))
	for p := range r.factories {
		out = append(out, p)
	}
	return out
}
