// Package registry provides the authoritative in-memory session table.
// One registry per session kind; empty at process start and populated only
// through the lifecycle controllers.
package registry

import (
	"errors"
	"sync"
)

// ErrSessionNotFound is returned when an operation references an unknown
// or expired session key.
var ErrSessionNotFound = errors.New("session not found")

// ErrSessionExists is returned by Create when the key is already present.
var ErrSessionExists = errors.New("session already exists")

// Registry is an arena-style map keyed by session id. All operations are
// atomic with respect to a single key; there are no cross-key transactions.
type Registry[T any] struct {
	mu    sync.RWMutex
	items map[string]*T
}

// New creates an empty registry
func New[T any]() *Registry[T] {
	return &Registry[T]{
		items: make(map[string]*T),
	}
}

// Create inserts initial state under key
func (r *Registry[T]) Create(key string, initial *T) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.items[key]; exists {
		return ErrSessionExists
	}
	r.items[key] = initial
	return nil
}

// Get returns a snapshot of the state stored under key. Callers never
// see the live value; the stored state is only written inside Mutate.
func (r *Registry[T]) Get(key string) (*T, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	item, exists := r.items[key]
	if !exists {
		return nil, ErrSessionNotFound
	}
	snapshot := *item
	return &snapshot, nil
}

// Mutate applies fn to the state under key while holding the registry
// lock, making the update atomic with respect to that key. The returned
// snapshot reflects the state right after fn ran and is safe to read
// while other connections keep mutating the same key.
func (r *Registry[T]) Mutate(key string, fn func(*T)) (*T, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	item, exists := r.items[key]
	if !exists {
		return nil, ErrSessionNotFound
	}
	fn(item)
	snapshot := *item
	return &snapshot, nil
}

// Remove deletes the state under key; removing a missing key is a no-op
func (r *Registry[T]) Remove(key string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.items, key)
}

// Keys returns a snapshot of all stored keys
func (r *Registry[T]) Keys() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	keys := make([]string, 0, len(r.items))
	for key := range r.items {
		keys = append(keys, key)
	}
	return keys
}

// Len returns the number of stored sessions
func (r *Registry[T]) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.items)
}

// Find returns the first key and a snapshot of the state matching pred,
// or ErrSessionNotFound
func (r *Registry[T]) Find(pred func(*T) bool) (string, *T, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for key, item := range r.items {
		if pred(item) {
			snapshot := *item
			return key, &snapshot, nil
		}
	}
	return "", nil, ErrSessionNotFound
}
