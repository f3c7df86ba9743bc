// Package pooler provides a bounded pool of reusable resources such as
// opened connection contexts.
package pooler

import (
	"context"
	"errors"
	"sync"

	"github.com/hashicorp/go-multierror"
)

// ErrPoolClosed is returned by Get once the pool has been closed.
var ErrPoolClosed = errors.New("pool is closed")

type Config[T any] struct {
	// MaxItems is the maximum total number of items allowed in the pool.
	// Must be greater than zero.
	MaxItems int
	// MaxIdle is the maximum number of items allowed to remain idle.
	// Must be greater than or equal to zero.
	// Must not exceed MaxItems.
	MaxIdle int
	// NewFunc is the function to create a new item. It receives the context
	// of the Get call that needs the item.
	NewFunc func(ctx context.Context) (T, error)
	// CloseFunc is the function to close an item.
	CloseFunc func(T) error
	// ResetFunc, if set, is called on an idle item before it is handed out
	// by Get. If it fails the item is closed and another one is tried.
	ResetFunc func(ctx context.Context, item T) error
}

// Stats describes the current occupancy of a pool.
type Stats struct {
	Total  int
	Idle   int
	InUse  int
	Closed bool
}

// Pool is a generic, thread-safe pool for any resource type T.
// It enforces a maximum number of total items (maxItems) and a maximum
// number of idle items (maxIdle). When Put() is called, if maxIdle is reached,
// the resource is closed rather than stored.
type Pool[T any] struct {
	Config[T]

	mu     sync.Mutex
	cond   *sync.Cond
	closed bool

	totalItems int
	idleItems  []T
}

// NewPool creates a Pool with the specified limits and functions.
func NewPool[T any](config Config[T]) (*Pool[T], error) {
	if config.MaxItems <= 0 {
		return nil, errors.New("maxItems must be greater than zero")
	}
	if config.MaxIdle < 0 {
		return nil, errors.New("maxIdle cannot be negative")
	}
	if config.MaxIdle > config.MaxItems {
		return nil, errors.New("maxIdle cannot exceed maxItems")
	}
	if config.NewFunc == nil {
		return nil, errors.New("newFunc must not be nil")
	}
	if config.CloseFunc == nil {
		return nil, errors.New("closeFunc must not be nil")
	}

	p := &Pool[T]{
		Config:    config,
		idleItems: make([]T, 0, config.MaxIdle),
	}
	p.cond = sync.NewCond(&p.mu)
	return p, nil
}

// Get retrieves a resource from the pool. If there are no idle items and the
// pool has reached maxItems, this call blocks until an item is Put back or
// ctx is done.
func (p *Pool[T]) Get(ctx context.Context) (T, error) {
	var zero T

	stop := context.AfterFunc(ctx, func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		p.cond.Broadcast()
	})
	defer stop()

	p.mu.Lock()
	defer p.mu.Unlock()

	for {
		if p.closed {
			return zero, ErrPoolClosed
		}
		if err := ctx.Err(); err != nil {
			return zero, err
		}

		if len(p.idleItems) > 0 {
			idx := len(p.idleItems) - 1
			res := p.idleItems[idx]
			p.idleItems = p.idleItems[:idx]

			if p.ResetFunc != nil {
				if err := p.ResetFunc(ctx, res); err != nil {
					p.totalItems--
					_ = p.CloseFunc(res)
					continue
				}
			}
			return res, nil
		}

		if p.totalItems < p.MaxItems {
			res, err := p.NewFunc(ctx)
			if err != nil {
				return zero, err
			}
			p.totalItems++
			return res, nil
		}

		p.cond.Wait()
	}
}

// Put returns a resource to the pool. If the pool is closed,
// or if maxIdle is already reached, the resource will be closed.
func (p *Pool[T]) Put(res T) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		p.totalItems--
		return p.CloseFunc(res)
	}

	if len(p.idleItems) < p.MaxIdle {
		p.idleItems = append(p.idleItems, res)
		p.cond.Signal()
		return nil
	}

	p.totalItems--
	p.cond.Signal()
	return p.CloseFunc(res)
}

// Stats returns the current occupancy of the pool.
func (p *Pool[T]) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()

	return Stats{
		Total:  p.totalItems,
		Idle:   len(p.idleItems),
		InUse:  p.totalItems - len(p.idleItems),
		Closed: p.closed,
	}
}

// Close closes the pool and all idle items. Any subsequent call to Get()
// will fail. Items that are not idle (checked out) are closed when they are
// Put back.
func (p *Pool[T]) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}
	p.closed = true

	var errs *multierror.Error
	for _, res := range p.idleItems {
		if err := p.CloseFunc(res); err != nil {
			errs = multierror.Append(errs, err)
		}
	}
	p.totalItems -= len(p.idleItems)
	p.idleItems = nil
	p.cond.Broadcast()
	return errs.ErrorOrNil()
}
