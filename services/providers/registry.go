package providers

import (
	"errors"
	"sort"
	"sync"
)

var (
	// ErrBackendNotFound is returned when a backend kind is not registered
	ErrBackendNotFound = errors.New("backend not found")

	// ErrBackendAlreadyRegistered is returned when trying to register a duplicate backend
	ErrBackendAlreadyRegistered = errors.New("backend already registered")
)

// Registry holds the instantiated backends by kind
type Registry struct {
	mu       sync.RWMutex
	backends map[BackendKind]Backend
}

// NewRegistry creates a new backend registry
func NewRegistry() *Registry {
	return &Registry{
		backends: make(map[BackendKind]Backend),
	}
}

// Register registers a backend instance
func (r *Registry) Register(backend Backend) error {
	if backend == nil {
		return errors.New("backend cannot be nil")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	kind := backend.Kind()
	if _, exists := r.backends[kind]; exists {
		return ErrBackendAlreadyRegistered
	}

	r.backends[kind] = backend
	return nil
}

// Unregister removes a backend from the registry
func (r *Registry) Unregister(kind BackendKind) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.backends[kind]; !exists {
		return ErrBackendNotFound
	}
	delete(r.backends, kind)
	return nil
}

// Get retrieves a backend by kind
func (r *Registry) Get(kind BackendKind) (Backend, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	backend, exists := r.backends[kind]
	if !exists {
		return nil, ErrBackendNotFound
	}
	return backend, nil
}

// Kinds returns the registered kinds in declaration order
func (r *Registry) Kinds() []BackendKind {
	r.mu.RLock()
	defer r.mu.RUnlock()

	kinds := make([]BackendKind, 0, len(r.backends))
	for kind := range r.backends {
		kinds = append(kinds, kind)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}

// Count returns the number of registered backends
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.backends)
}
