// Package registry maps workers to their database connection contexts.
package registry

import (
	"context"
	"errors"
	"sync"

	"github.com/nsqlite/nsqlitectx/internal/db"
	"github.com/nsqlite/nsqlitectx/internal/log"
)

// entry pairs a worker with one of its contexts. The worker is captured at
// registration time and never changes afterwards.
type entry struct {
	worker db.WorkerID
	conn   *db.ConnContext
}

// Registry holds the main connection context and the contexts registered by
// other workers. The main context is used by the main worker and is the
// fallback for workers that registered nothing.
//
// The registry never owns the lifetime of registered contexts, except for
// the main context which is closed by Close.
type Registry struct {
	logger log.Logger
	main   *db.ConnContext

	mu      sync.RWMutex
	entries []entry
}

// New creates a registry around the main connection context.
func New(logger log.Logger, main *db.ConnContext) (*Registry, error) {
	if !logger.IsInitialized() {
		return nil, errors.New("logger is required")
	}
	if main == nil {
		return nil, errors.New("main connection context is required")
	}

	return &Registry{
		logger: logger,
		main:   main,
	}, nil
}

// Main returns the main connection context.
func (r *Registry) Main() *db.ConnContext {
	return r.main
}

// Register adds c under the worker that owns it. A worker may register
// several contexts; Resolve returns the first one.
func (r *Registry) Register(c *db.ConnContext) {
	r.mu.Lock()
	r.entries = append(r.entries, entry{worker: c.Owner(), conn: c})
	r.mu.Unlock()

	c.Attach(r)
	r.logger.DebugNs(log.NsRegistry, "registered connection context", log.KV{
		"worker": string(c.Owner()),
		"path":   c.Path(),
	})
}

// DeregisterCurrent removes every entry of the worker of ctx and returns how
// many were removed. The contexts themselves are left untouched.
func (r *Registry) DeregisterCurrent(ctx context.Context) int {
	worker := db.WorkerFrom(ctx)
	return r.removeWhere(func(e entry) bool { return e.worker == worker })
}

// Remove removes every entry pointing at c.
func (r *Registry) Remove(c *db.ConnContext) {
	r.removeWhere(func(e entry) bool { return e.conn == c })
}

func (r *Registry) removeWhere(match func(entry) bool) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	kept := r.entries[:0]
	removed := 0
	for _, e := range r.entries {
		if match(e) {
			removed++
			continue
		}
		kept = append(kept, e)
	}
	clear(r.entries[len(kept):])
	r.entries = kept
	return removed
}

// Resolve returns the connection context of the worker of ctx.
//
// The main worker gets the main context without any locking. Other workers
// get the first context they registered; if they registered none, a warning
// is logged and the main context is returned. The main context is not safe
// to use from another worker, so that fallback only hides a missing
// registration.
func (r *Registry) Resolve(ctx context.Context) *db.ConnContext {
	worker := db.WorkerFrom(ctx)
	if worker == db.MainWorker {
		return r.main
	}

	r.mu.RLock()
	for _, e := range r.entries {
		if e.worker == worker {
			r.mu.RUnlock()
			return e.conn
		}
	}
	r.mu.RUnlock()

	r.logger.WarnNs(log.NsRegistry, "non-main worker is requesting the global database connection context", log.KV{
		"worker": string(worker),
	})
	return r.main
}

// Len returns the number of registered entries.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Close drops every entry and closes the main context.
func (r *Registry) Close(ctx context.Context) error {
	r.mu.Lock()
	r.entries = nil
	r.mu.Unlock()

	return r.main.Close(db.WithWorker(ctx, r.main.Owner()))
}
