package backend

import (
	"errors"
	"fmt"
	"io"
	"sync"
)

// Registry manages backend loaders.
type Registry struct {
	loaders map[BackendProvider]Loader
	mu      sync.RWMutex
}

// NewRegistry creates a new backend registry.
func NewRegistry() *Registry {
	return &Registry{
		loaders: make(map[BackendProvider]Loader),
	}
}

// Register adds a loader to the registry.
func (r *Registry) Register(l Loader) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.loaders[l.Provider()]; exists {
		return fmt.Errorf("%w: %s", ErrAlreadyRegistered, l.Provider())
	}

	r.loaders[l.Provider()] = l
	return nil
}

// Get retrieves a loader by provider.
func (r *Registry) Get(p BackendProvider) (Loader, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	l, ok := r.loaders[p]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, p)
	}
	return l, nil
}

// Providers lists the registered providers.
func (r *Registry) Providers() []BackendProvider {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]BackendProvider, 0, len(r.loaders))
	for p := range r.loaders {
		out = append(out, p)
	}
	return out
}

// Close closes every loader that holds resources.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var errs []error
	for _, l := range r.loaders {
		if c, ok := l.(io.Closer); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, err)
			}
		}
	}

	return errors.Join(errs...)
}
