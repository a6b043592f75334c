// Package syncx provides small synchronization helpers for the job runner.
package syncx

import "sync"

// Registry is a map guarded by an RWMutex.
type Registry[K comparable, V any] struct {
	mu    sync.RWMutex
	items map[K]V
}

// NewRegistry creates an empty registry.
func NewRegistry[K comparable, V any]() *Registry[K, V] {
	return &Registry[K, V]{items: make(map[K]V)}
}

// Store sets the value for key.
func (r *Registry[K, V]) Store(key K, v V) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items[key] = v
}

// Load returns the value for key.
func (r *Registry[K, V]) Load(key K) (V, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.items[key]
	return v, ok
}

// LoadAndDelete removes key and returns its value.
func (r *Registry[K, V]) LoadAndDelete(key K) (V, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.items[key]
	delete(r.items, key)
	return v, ok
}

// Len returns the number of entries.
func (r *Registry[K, V]) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.items)
}

// Values returns a snapshot of the values in no particular order.
func (r *Registry[K, V]) Values() []V {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]V, 0, len(r.items))
	for _, v := range r.items {
		out = append(out, v)
	}
	return out
}
