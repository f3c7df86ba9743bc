// Package stress runs concurrent workers against the program database, each
// one with its own pooled connection context, to check that contexts and
// their cached statements never leak between workers.
package stress

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-pkgz/syncs"
	"github.com/nsqlite/nsqlitectx/internal/db"
	"github.com/nsqlite/nsqlitectx/internal/log"
	"github.com/nsqlite/nsqlitectx/internal/pooler"
	"github.com/nsqlite/nsqlitectx/internal/registry"
)

const (
	DefaultWorkers    = 4
	DefaultRounds     = 2
	DefaultIterations = 1000
)

// Config represents the configuration for a stress run.
type Config struct {
	Logger   log.Logger
	Registry *registry.Registry
	// Path is the database file every worker opens.
	Path string
	// Workers is the number of concurrent workers, and the size of the
	// context pool.
	Workers int
	// Rounds is the number of tasks each worker slot runs. Tasks after the
	// first reuse pooled contexts.
	Rounds int
	// Iterations is the number of cache-and-query cycles per task.
	Iterations int
	// Out receives the progress bar. Nil hides it.
	Out                  io.Writer
	ShowProgress         bool
	DisableOptimizations bool
}

// Result summarizes a stress run.
type Result struct {
	Tasks           int
	Queries         int64
	ContextsCreated int64
	Duration        time.Duration
}

// QueriesPerSecond returns the query throughput of the run.
func (r Result) QueriesPerSecond() float64 {
	if r.Duration <= 0 {
		return 0
	}
	return float64(r.Queries) / r.Duration.Seconds()
}

// Run runs Workers*Rounds tasks, at most Workers at a time. Every task
// checks out a context from the pool under a new worker id, registers it,
// resolves it back through the registry and runs Iterations cached queries
// on it.
func Run(ctx context.Context, config Config) (Result, error) {
	if !config.Logger.IsInitialized() {
		return Result{}, errors.New("logger is required")
	}
	if config.Registry == nil {
		return Result{}, errors.New("registry is required")
	}
	if config.Path == "" {
		return Result{}, errors.New("database path is required")
	}
	if config.Workers <= 0 {
		config.Workers = DefaultWorkers
	}
	if config.Rounds <= 0 {
		config.Rounds = DefaultRounds
	}
	if config.Iterations <= 0 {
		config.Iterations = DefaultIterations
	}

	var created int64
	pool, err := pooler.NewPool(pooler.Config[*db.ConnContext]{
		MaxItems: config.Workers,
		MaxIdle:  config.Workers,
		NewFunc: func(ctx context.Context) (*db.ConnContext, error) {
			atomic.AddInt64(&created, 1)
			return db.NewConnContext(ctx, db.Config{
				Logger:               config.Logger,
				Path:                 config.Path,
				DisableOptimizations: config.DisableOptimizations,
				AssertOwner:          true,
			})
		},
		CloseFunc: func(c *db.ConnContext) error {
			return c.Destroy(db.WithWorker(context.Background(), c.Owner()))
		},
		ResetFunc: func(ctx context.Context, c *db.ConnContext) error {
			c.Rebind(ctx)
			return nil
		},
	})
	if err != nil {
		return Result{}, err
	}
	defer func() {
		if err := pool.Close(); err != nil {
			config.Logger.ErrorNs(log.NsPool, "error closing context pool", log.KV{"error": err.Error()})
		}
	}()

	tasks := config.Workers * config.Rounds
	bar := newProgressBar(config.Out, "stress", tasks, config.ShowProgress)
	defer bar.Finish()

	r := &runner{Config: config, pool: pool}
	start := time.Now()

	grp := syncs.NewErrSizedGroup(config.Workers, syncs.Context(ctx), syncs.Preemptive)
	for task := range tasks {
		grp.Go(func() error {
			defer bar.Inc()
			return r.runTask(ctx, task)
		})
	}
	err = grp.Wait()

	result := Result{
		Tasks:           tasks,
		Queries:         atomic.LoadInt64(&r.queries),
		ContextsCreated: atomic.LoadInt64(&created),
		Duration:        time.Since(start),
	}

	stats := pool.Stats()
	config.Logger.InfoNs(log.NsPool, "stress run finished", log.KV{
		"tasks":    result.Tasks,
		"queries":  result.Queries,
		"contexts": result.ContextsCreated,
		"idle":     stats.Idle,
		"duration": result.Duration.String(),
	})

	return result, err
}

type runner struct {
	Config
	pool    *pooler.Pool[*db.ConnContext]
	inUse   sync.Map
	queries int64
}

func (r *runner) runTask(ctx context.Context, task int) error {
	wctx := db.WithWorker(ctx, db.NewWorkerID())

	c, err := r.pool.Get(wctx)
	if err != nil {
		return fmt.Errorf("task %d: failed to check out context: %w", task, err)
	}
	if _, taken := r.inUse.LoadOrStore(c, task); taken {
		return fmt.Errorf("task %d: context checked out twice", task)
	}
	defer func() {
		r.inUse.Delete(c)
		if err := r.pool.Put(c); err != nil {
			r.Logger.ErrorNs(log.NsPool, "error returning context to pool", log.KV{"error": err.Error()})
		}
	}()

	r.Registry.Register(c)
	defer r.Registry.DeregisterCurrent(wctx)

	for i := range r.Iterations {
		resolved := r.Registry.Resolve(wctx)
		if resolved != c {
			return fmt.Errorf("task %d: registry resolved a foreign context", task)
		}

		stmt, err := resolved.CacheQuery(wctx, fmt.Sprintf("stress.q%d", i%64), "SELECT ?", false)
		if err != nil {
			return fmt.Errorf("task %d: %w", task, err)
		}
		if stmt == nil || !c.Owns(stmt) {
			return fmt.Errorf("task %d: got a statement from a foreign context", task)
		}
		if !stmt.IsFresh() {
			return fmt.Errorf("task %d: cached statement %s was not reset", task, stmt.ID())
		}

		var got int
		if err := stmt.QueryRow(wctx, i).Scan(&got); err != nil {
			return fmt.Errorf("task %d: %w", task, err)
		}
		if got != i {
			return fmt.Errorf("task %d: read %d, want %d", task, got, i)
		}
		atomic.AddInt64(&r.queries, 1)
	}

	return nil
}
