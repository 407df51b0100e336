// Package registry caches expensive per-provider instances for the lifetime of the process.
package registry

import (
	"fmt"
	"sync"

	"golang.org/x/sync/singleflight"
)

// Builder constructs the instance for a provider id
type Builder[T any] func(providerID string) (T, error)

// Registry is a read-mostly map from provider id to an initialized instance.
// Concurrent first requests for the same id share a single construction.
type Registry[T any] struct {
	build   Builder[T]
	entries sync.Map
	group   singleflight.Group
}

// New creates a registry that builds missing entries with build
func New[T any](build Builder[T]) *Registry[T] {
	return &Registry[T]{build: build}
}

// Get returns the instance for providerID, building it on first use. Failed builds are not cached.
func (r *Registry[T]) Get(providerID string) (T, error) {
	if v, ok := r.entries.Load(providerID); ok {
		return v.(T), nil
	}

	v, err, _ := r.group.Do(providerID, func() (interface{}, error) {
		if v, ok := r.entries.Load(providerID); ok {
			return v, nil
		}
		inst, err := r.build(providerID)
		if err != nil {
			return nil, err
		}
		r.entries.Store(providerID, inst)
		return inst, nil
	})
	if err != nil {
		var zero T
		return zero, fmt.Errorf("initialize %s: %w", providerID, err)
	}
	return v.(T), nil
}

// Len returns the number of cached entries
func (r *Registry[T]) Len() int {
	n := 0
	r.entries.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}
