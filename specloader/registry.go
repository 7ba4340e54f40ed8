package specloader

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// Registry holds every lone's compiled operations and validators, built once
// at startup and swapped atomically on reload.
type Registry struct {
	mu         sync.RWMutex
	byLone     map[string]map[string]*OperationSpec // lone -> operationId -> spec
	validators map[string]*Validators               // operationId -> validators
	logger     *slog.Logger
}

// NewRegistry builds a Registry by discovering and compiling every lone's
// latest OpenAPI document under dir.
func NewRegistry(dir string, logger *slog.Logger) (*Registry, error) {
	r := &Registry{
		byLone:     make(map[string]map[string]*OperationSpec),
		validators: make(map[string]*Validators),
		logger:     logger,
	}
	if err := r.reload(dir); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *Registry) reload(dir string) error {
	empty := false
	discovered, err := Discover(dir)
	if err != nil {
		return err
	}
	if len(discovered) == 0 {
		empty = true
	}

	byLone := make(map[string]map[string]*OperationSpec)
	validators := make(map[string]*Validators)

	for lone, d := range discovered {
		doc, err := LoadDocument(d.Path)
		if err != nil {
			return err
		}
		resolver := NewResolver("file://"+filepath.Dir(d.Path)+"/", doc)
		resolved, err := resolver.Resolve(doc)
		if err != nil {
			return fmt.Errorf("resolving refs for %s: %w", lone, err)
		}
		resolvedDoc, ok := resolved.(map[string]any)
		if !ok {
			return fmt.Errorf("resolved document for %s is not an object", lone)
		}
		ops, err := Compile(lone, resolvedDoc, empty)
		if err != nil {
			return err
		}
		byLone[lone] = ops
		for id, spec := range ops {
			v, err := BuildValidators(spec)
			if err != nil {
				return fmt.Errorf("building validators for %s.%s: %w", lone, id, err)
			}
			validators[id] = v
		}
	}

	r.mu.Lock()
	r.byLone = byLone
	r.validators = validators
	r.mu.Unlock()
	return nil
}

// Operation looks up the compiled operation for a lone/operationId pair.
func (r *Registry) Operation(lone, operationID string) (*OperationSpec, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ops, ok := r.byLone[lone]
	if !ok {
		return nil, false
	}
	spec, ok := ops[operationID]
	return spec, ok
}

// Operations returns every compiled operation for a lone.
func (r *Registry) Operations(lone string) map[string]*OperationSpec {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]*OperationSpec, len(r.byLone[lone]))
	for id, spec := range r.byLone[lone] {
		out[id] = spec
	}
	return out
}

// Validators returns the precompiled validators for an operationId.
func (r *Registry) Validators(operationID string) (*Validators, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.validators[operationID]
	return v, ok
}

// Watcher watches apischemas/openapi/ and reloads the registry on change,
// for long-running server-mode processes.
type Watcher struct {
	registry *Registry
	dir      string
	fsw      *fsnotify.Watcher
	logger   *slog.Logger
}

// NewWatcher starts watching dir, reloading registry whenever a file under it changes.
func NewWatcher(registry *Registry, dir string, logger *slog.Logger) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating openapi watcher: %w", err)
	}
	if err := fsw.Add(dir); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("watching %s: %w", dir, err)
	}
	w := &Watcher{registry: registry, dir: dir, fsw: fsw, logger: logger}
	go w.loop()
	return w, nil
}

func (w *Watcher) loop() {
	for {
		select {
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			if err := w.registry.reload(w.dir); err != nil {
				w.logger.Error("reloading openapi registry", "error", err)
				continue
			}
			w.logger.Info("reloaded openapi registry", "dir", w.dir)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Error("openapi watcher error", "error", err)
		}
	}
}

// Close stops the watcher.
func (w *Watcher) Close() error { return w.fsw.Close() }
