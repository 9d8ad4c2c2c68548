package unit

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// BuiltinPrefix marks entries that name a unit compiled into the binary
const BuiltinPrefix = "builtin:"

// Factory creates a fresh in-process unit
type Factory func() Unit

// Registry holds the in-process units reachable through builtin entries
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register adds a unit under name. Registering a name twice is an error.
func (r *Registry) Register(name string, f Factory) error {
	if name == "" || strings.ContainsAny(name, " \t:") {
		return fmt.Errorf("invalid builtin name %q", name)
	}
	if f == nil {
		return fmt.Errorf("builtin %q has no factory", name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.factories[name]; exists {
		return fmt.Errorf("builtin %q already registered", name)
	}
	r.factories[name] = f
	return nil
}

// Open creates the unit registered under name
func (r *Registry) Open(name string) (Unit, bool) {
	r.mu.RLock()
	f, ok := r.factories[name]
	r.mu.RUnlock()
	if !ok {
		return nil, false
	}
	return f(), true
}

// Names lists registered names in sorted order
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

// IsBuiltin reports whether entry names a registered-unit reference
func IsBuiltin(entry string) bool {
	return strings.HasPrefix(entry, BuiltinPrefix)
}
