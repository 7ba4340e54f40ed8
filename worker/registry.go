// Package worker implements the runtime that loads resource handlers,
// receives request envelopes from the dispatch fabric, and runs the
// per-request state machine, per §4.F.
package worker

import (
	"sync"

	"github.com/GoCodeAlone/laf/lone"
)

// Registry holds every lone descriptor a worker process has loaded.
type Registry struct {
	mu    sync.RWMutex
	lones map[string]*lone.Descriptor
}

// NewRegistry creates an empty lone Registry.
func NewRegistry() *Registry {
	return &Registry{lones: make(map[string]*lone.Descriptor)}
}

// AddLone registers a lone descriptor by name.
func (r *Registry) AddLone(d *lone.Descriptor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lones[d.Name] = d
}

// Lone looks up a lone descriptor by name.
func (r *Registry) Lone(name string) (*lone.Descriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.lones[name]
	return d, ok
}
