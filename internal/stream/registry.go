package stream

import (
	"sync"

	"github.com/google/uuid"
)

const defaultBufferSize = 16

// Registry tracks the live subscriptions. Registration and removal take the
// write lock briefly; dispatch iterates over a copied snapshot so it never
// observes a half-mutated entry and never blocks writers.
type Registry struct {
	mu         sync.RWMutex
	subs       map[string]*Subscription
	bufferSize int
}

// RegistryConfig describes registry tunables.
type RegistryConfig struct {
	BufferSize int
}

// NewRegistry constructs an empty subscription registry.
func NewRegistry(cfg RegistryConfig) *Registry {
	bufferSize := cfg.BufferSize
	if bufferSize <= 0 {
		bufferSize = defaultBufferSize
	}
	return &Registry{
		subs:       make(map[string]*Subscription),
		bufferSize: bufferSize,
	}
}

// Register validates the scope and returns a live subscription with a fresh
// opaque handle.
func (r *Registry) Register(scope Scope) (*Subscription, error) {
	if err := scope.Validate(); err != nil {
		return nil, err
	}
	handle, err := uuid.NewV7()
	if err != nil {
		return nil, err
	}
	subscription := newSubscription(handle.String(), scope, r.bufferSize)

	r.mu.Lock()
	r.subs[subscription.handle] = subscription
	r.mu.Unlock()
	return subscription, nil
}

// Unregister removes the subscription and closes its channel. Unknown handles
// are a no-op. A dispatch iteration holding a stale reference pushes into the
// closed subscription harmlessly.
func (r *Registry) Unregister(handle string) {
	r.mu.Lock()
	subscription := r.subs[handle]
	delete(r.subs, handle)
	r.mu.Unlock()

	if subscription != nil {
		subscription.close()
	}
}

// Len reports the number of live subscriptions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.subs)
}

// snapshot copies the current subscriber set for lock-free iteration.
func (r *Registry) snapshot() []*Subscription {
	r.mu.RLock()
	defer r.mu.RUnlock()
	copies := make([]*Subscription, 0, len(r.subs))
	for _, subscription := range r.subs {
		copies = append(copies, subscription)
	}
	return copies
}
