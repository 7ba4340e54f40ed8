// Package lone models the per-resource descriptor: a named resource backed by
// a latest OpenAPI document, a verb set, and user handler code. A Descriptor's
// lifetime equals the server process.
package lone

import (
	"sync"

	"github.com/GoCodeAlone/laf/handler"
	"github.com/GoCodeAlone/laf/specloader"
)

// Descriptor is one lone's runtime registration: its compiled operations and
// its registered handler functions, keyed by operationId (plus an optional
// "._<subhandler>" suffix).
type Descriptor struct {
	Name       string
	Version    specloader.Version
	Operations map[string]*specloader.OperationSpec // keyed by operationId

	mu       sync.RWMutex
	handlers map[string]handler.Func
}

// NewDescriptor creates a Descriptor for a loaded OpenAPI document.
func NewDescriptor(name string, version specloader.Version, ops map[string]*specloader.OperationSpec) *Descriptor {
	return &Descriptor{
		Name:       name,
		Version:    version,
		Operations: ops,
		handlers:   make(map[string]handler.Func),
	}
}

// key builds the handler registry key for an operationId plus optional subhandler.
func key(operationID, subhandler string) string {
	if subhandler == "" {
		return operationID
	}
	return operationID + "._" + subhandler
}

// Register installs fn as the handler for operationID (optionally scoped to
// a subhandler suffix, e.g. a custom verb's "_<name>" selector).
func (d *Descriptor) Register(operationID, subhandler string, fn handler.Func) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[key(operationID, subhandler)] = fn
}

// Handler looks up the registered handler for an operationId, falling back
// from a subhandler-scoped key to the bare operationId if no scoped entry exists.
func (d *Descriptor) Handler(operationID, subhandler string) (handler.Func, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if subhandler != "" {
		if fn, ok := d.handlers[key(operationID, subhandler)]; ok {
			return fn, true
		}
	}
	fn, ok := d.handlers[operationID]
	return fn, ok
}

// Operation looks up a compiled operation by operationId.
func (d *Descriptor) Operation(operationID string) (*specloader.OperationSpec, bool) {
	op, ok := d.Operations[operationID]
	return op, ok
}
