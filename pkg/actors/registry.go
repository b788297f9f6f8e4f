package actors

import (
	"fmt"
	"sort"
	"sync"
)

// Factory constructs a configured actor from its raw workflow options.
// Construction performs the actor's fail-fast validation.
type Factory func(rt *Runtime, options map[string]any) (Actor, error)

// Registry maps actor type names (e.g. "serverarray.clone") to factories.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry creates an empty actor registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register adds a factory under the given actor type name.
func (r *Registry) Register(name string, factory Factory) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.factories[name]; exists {
		return fmt.Errorf("actor type %q already registered", name)
	}
	r.factories[name] = factory
	return nil
}

// New constructs an actor of the named type with the given options.
func (r *Registry) New(name string, rt *Runtime, options map[string]any) (Actor, error) {
	r.mu.RLock()
	factory, ok := r.factories[name]
	r.mu.RUnlock()
	if !ok {
		return nil, NewConfigError(fmt.Sprintf("unknown actor type %q", name), nil)
	}
	return factory(rt, options)
}

// Names returns the registered actor type names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
