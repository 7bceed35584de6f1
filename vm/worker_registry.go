package vm

import (
	"context"
	"sort"
	"sync"
)

// ---------------------------------------------------------------------------
// Registry: live workers
// ---------------------------------------------------------------------------

// Registry tracks running workers so they can be listed and shut down
// together. Workers remove themselves when they terminate.
type Registry struct {
	mu      sync.RWMutex
	workers map[string]*Worker
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{workers: make(map[string]*Worker)}
}

var defaultRegistry = NewRegistry()

// DefaultRegistry returns the registry used by StartWorker when no
// WithRegistry option is given.
func DefaultRegistry() *Registry { return defaultRegistry }

func (r *Registry) add(w *Worker) {
	r.mu.Lock()
	r.workers[w.id] = w
	r.mu.Unlock()
}

func (r *Registry) remove(w *Worker) {
	r.mu.Lock()
	delete(r.workers, w.id)
	r.mu.Unlock()
}

// Get returns the worker with the given ID, or nil.
func (r *Registry) Get(id string) *Worker {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.workers[id]
}

// Count returns the number of live workers.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.workers)
}

// Workers returns the live workers ordered by name.
func (r *Registry) Workers() []*Worker {
	r.mu.RLock()
	out := make([]*Worker, 0, len(r.workers))
	for _, w := range r.workers {
		out = append(out, w)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].name < out[j].name })
	return out
}

// TerminateAll requests termination of every live worker and waits for
// each to finish, or for ctx to end.
func (r *Registry) TerminateAll(ctx context.Context) error {
	workers := r.Workers()
	futures := make([]*Future, len(workers))
	for i, w := range workers {
		futures[i] = w.RequestTermination()
	}
	for _, f := range futures {
		if _, err := f.ResultContext(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Workers lists the workers in the default registry.
func Workers() []*Worker { return defaultRegistry.Workers() }

// TerminateAll terminates every worker in the default registry.
func TerminateAll(ctx context.Context) error { return defaultRegistry.TerminateAll(ctx) }
