package backend

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// NotFoundError is returned when no backend is registered under an
// identifier.
type NotFoundError struct {
	ID    string
	Known []string
}

func (e *NotFoundError) Error() string {
	if len(e.Known) == 0 {
		return fmt.Sprintf("backend %q not found", e.ID)
	}
	return fmt.Sprintf("backend %q not found (available: %s)", e.ID, strings.Join(e.Known, ", "))
}

// Registry maps backend identifiers and their aliases to implementations.
type Registry struct {
	mu       sync.RWMutex
	backends map[string]Backend
	names    []string
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{backends: make(map[string]Backend)}
}

// Register adds b under its name and any aliases. Registering an identifier
// twice is an error.
func (r *Registry) Register(b Backend, aliases ...string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	ids := append([]string{b.Name()}, aliases...)
	for _, id := range ids {
		key := normalizeID(id)
		if key == "" {
			return fmt.Errorf("backend identifier must not be empty")
		}
		if _, exists := r.backends[key]; exists {
			return fmt.Errorf("backend %q is already registered", id)
		}
	}

	for _, id := range ids {
		r.backends[normalizeID(id)] = b
	}
	r.names = append(r.names, b.Name())
	sort.Strings(r.names)
	return nil
}

// Lookup resolves id to a backend.
func (r *Registry) Lookup(id string) (Backend, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	b, ok := r.backends[normalizeID(id)]
	if !ok {
		return nil, &NotFoundError{ID: id, Known: append([]string(nil), r.names...)}
	}
	return b, nil
}

// Names returns the canonical names of the registered backends, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.names...)
}

func normalizeID(id string) string {
	return strings.ToLower(strings.TrimSpace(id))
}
