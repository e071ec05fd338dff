package service

import (
	"sync"

	"github.com/Wyydra/callbridge/internal/core/domain"
)

// Registry resolves opaque session handles to the bridge that currently owns them.
// A handle stops resolving as soon as its session is replaced or its bridge closes.
type Registry struct {
	mu      sync.RWMutex
	bridges map[domain.SessionHandle]*Bridge
}

func NewRegistry() *Registry {
	return &Registry{
		bridges: make(map[domain.SessionHandle]*Bridge),
	}
}

func (r *Registry) Lookup(h domain.SessionHandle) (*Bridge, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.bridges[h]
	return b, ok
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.bridges)
}

func (r *Registry) swap(prev, next domain.SessionHandle, b *Bridge) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if prev != "" && r.bridges[prev] == b {
		delete(r.bridges, prev)
	}
	if next != "" {
		r.bridges[next] = b
	}
}
