package stage

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// ErrUnknownBuiltin is returned when a config names a builtin that is not registered.
var ErrUnknownBuiltin = errors.New("unknown builtin stage")

// Factory builds an in-process stage from its config options.
type Factory func(name string, options map[string]string) (Stage, error)

// Registry maps builtin names to stage factories. Safe for concurrent use.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// DefaultRegistry returns a registry holding every builtin stage.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(BuiltinHTTPJSON, newHTTPJSON)
	r.Register(BuiltinJSONFile, newJSONFile)
	r.Register(BuiltinSnapshot, newSnapshot)
	r.Register(BuiltinTally, newTally)
	return r
}

// Register adds a factory under name. Overwrites any existing registration.
func (r *Registry) Register(name string, factory Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.factories == nil {
		r.factories = make(map[string]Factory)
	}
	r.factories[name] = factory
}

// Get returns the factory for name, or nil and false if not found.
func (r *Registry) Get(name string) (Factory, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.factories[name]
	return f, ok
}

// New builds the builtin stage named builtin.
func (r *Registry) New(builtin, name string, options map[string]string) (Stage, error) {
	factory, ok := r.Get(builtin)
	if !ok {
		return nil, fmt.Errorf("%w %q", ErrUnknownBuiltin, builtin)
	}
	return factory(name, options)
}

// Names returns the registered builtin names in sorted order.
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
