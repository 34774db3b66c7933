package realtime

import (
	"context"
	"sync"
)

// Registry tracks the watchers opened on behalf of one session so they can
// all be stopped together.
type Registry struct {
	mu      sync.Mutex
	cancels []context.CancelFunc
}

func NewRegistry() *Registry {
	return &Registry{}
}

func (r *Registry) Register(cancel context.CancelFunc) {
	r.mu.Lock()
	r.cancels = append(r.cancels, cancel)
	r.mu.Unlock()
}

// DisposeAll stops every registered watcher and empties the registry.
func (r *Registry) DisposeAll() {
	r.mu.Lock()
	cancels := r.cancels
	r.cancels = nil
	r.mu.Unlock()

	for _, cancel := range cancels {
		cancel()
	}
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.cancels)
}
