package registry

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/nsqlite/nsqlitectx/internal/db"
	"github.com/nsqlite/nsqlitectx/internal/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func createTestDatabase(t *testing.T) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "test.sqlite")
	sqlDB, err := sql.Open("sqlite3", "file:"+path)
	require.NoError(t, err)
	defer sqlDB.Close()

	_, err = sqlDB.Exec("CREATE TABLE archive_file (id INTEGER PRIMARY KEY, name TEXT)")
	require.NoError(t, err)
	return path
}

func openContext(t *testing.T, ctx context.Context, logger log.Logger, path string) *db.ConnContext {
	t.Helper()

	c, err := db.NewConnContext(ctx, db.Config{Logger: logger, Path: path})
	require.NoError(t, err)
	return c
}

func newTestRegistry(t *testing.T) (*Registry, *bytes.Buffer, string) {
	t.Helper()

	buf := &bytes.Buffer{}
	logger := log.NewLogger(buf)
	path := createTestDatabase(t)
	main := openContext(t, context.Background(), logger, path)

	r, err := New(logger, main)
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Close(context.Background()) })
	return r, buf, path
}

func TestNew(t *testing.T) {
	_, err := New(log.Logger{}, nil)
	assert.Error(t, err)

	_, err = New(log.NewLogger(&bytes.Buffer{}), nil)
	assert.Error(t, err)
}

func TestRegistry_Resolve(t *testing.T) {
	t.Run("MainWorkerGetsMain", func(t *testing.T) {
		r, buf, _ := newTestRegistry(t)
		assert.Same(t, r.Main(), r.Resolve(context.Background()))
		assert.Empty(t, buf.String())
	})

	t.Run("RegisteredWorker", func(t *testing.T) {
		r, buf, path := newTestRegistry(t)
		ctx := db.WithWorker(context.Background(), "w1")
		c := openContext(t, ctx, log.NewLogger(&bytes.Buffer{}), path)
		defer c.Close(ctx)

		r.Register(c)
		assert.Equal(t, 1, r.Len())
		assert.Same(t, c, r.Resolve(ctx))
		assert.NotContains(t, buf.String(), "non-main worker")
	})

	t.Run("FirstRegistrationWins", func(t *testing.T) {
		r, _, path := newTestRegistry(t)
		ctx := db.WithWorker(context.Background(), "w1")
		logger := log.NewLogger(&bytes.Buffer{})
		first := openContext(t, ctx, logger, path)
		defer first.Close(ctx)
		second := openContext(t, ctx, logger, path)
		defer second.Close(ctx)

		r.Register(first)
		r.Register(second)
		assert.Equal(t, 2, r.Len())
		assert.Same(t, first, r.Resolve(ctx))
	})

	t.Run("DeregisterFallsBackToMain", func(t *testing.T) {
		r, buf, path := newTestRegistry(t)
		ctx := db.WithWorker(context.Background(), "w1")
		c := openContext(t, ctx, log.NewLogger(&bytes.Buffer{}), path)
		defer c.Close(ctx)

		r.Register(c)
		assert.Equal(t, 1, r.DeregisterCurrent(ctx))
		assert.Zero(t, r.Len())
		assert.True(t, c.IsOpen())

		assert.Same(t, r.Main(), r.Resolve(ctx))
		assert.Contains(t, buf.String(), "non-main worker is requesting the global database connection context")
		assert.Contains(t, buf.String(), `"worker":"w1"`)
		assert.Contains(t, buf.String(), `"level":"WARN"`)
	})

	t.Run("DeregisterOnlyCurrentWorker", func(t *testing.T) {
		r, _, path := newTestRegistry(t)
		logger := log.NewLogger(&bytes.Buffer{})
		ctx1 := db.WithWorker(context.Background(), "w1")
		ctx2 := db.WithWorker(context.Background(), "w2")
		c1 := openContext(t, ctx1, logger, path)
		defer c1.Close(ctx1)
		c2 := openContext(t, ctx2, logger, path)
		defer c2.Close(ctx2)

		r.Register(c1)
		r.Register(c2)
		assert.Equal(t, 1, r.DeregisterCurrent(ctx1))
		assert.Same(t, c2, r.Resolve(ctx2))
		assert.Zero(t, r.DeregisterCurrent(ctx1))
	})

	t.Run("DestroyRemovesEntries", func(t *testing.T) {
		r, _, path := newTestRegistry(t)
		ctx := db.WithWorker(context.Background(), "w1")
		c := openContext(t, ctx, log.NewLogger(&bytes.Buffer{}), path)

		r.Register(c)
		r.Register(c)
		assert.Equal(t, 2, r.Len())

		require.NoError(t, c.Destroy(ctx))
		assert.Zero(t, r.Len())
		assert.False(t, c.IsOpen())
		assert.Same(t, r.Main(), r.Resolve(ctx))
	})
}

func TestRegistry_Close(t *testing.T) {
	r, _, path := newTestRegistry(t)
	ctx := db.WithWorker(context.Background(), "w1")
	c := openContext(t, ctx, log.NewLogger(&bytes.Buffer{}), path)
	defer c.Close(ctx)

	r.Register(c)
	require.NoError(t, r.Close(context.Background()))
	assert.Zero(t, r.Len())
	assert.False(t, r.Main().IsOpen())
	assert.True(t, c.IsOpen())
}

func TestRegistry_ConcurrentWorkers(t *testing.T) {
	const (
		workers    = 8
		iterations = 1000
	)

	r, _, path := newTestRegistry(t)
	logger := log.NewLogger(&bytes.Buffer{})

	var wg sync.WaitGroup
	errs := make(chan error, workers)
	seen := make([]map[*db.Statement]struct{}, workers)

	for w := range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()

			ctx := db.WithWorker(context.Background(), db.NewWorkerID())
			c, err := db.NewConnContext(ctx, db.Config{
				Logger:      logger,
				Path:        path,
				AssertOwner: true,
			})
			if err != nil {
				errs <- err
				return
			}
			defer c.Destroy(ctx)
			r.Register(c)

			seen[w] = make(map[*db.Statement]struct{}, iterations)
			for i := range iterations {
				resolved := r.Resolve(ctx)
				if resolved != c {
					errs <- fmt.Errorf("worker %d resolved a foreign context", w)
					return
				}

				stmt, err := resolved.CacheQuery(ctx, fmt.Sprintf("w%d.q%d", w, i), "SELECT ?", false)
				if err != nil {
					errs <- err
					return
				}
				if !c.Owns(stmt) {
					errs <- fmt.Errorf("worker %d got a statement it did not prepare", w)
					return
				}

				var got int
				if err := stmt.QueryRow(ctx, i).Scan(&got); err != nil {
					errs <- err
					return
				}
				if got != i {
					errs <- fmt.Errorf("worker %d read %d, want %d", w, got, i)
					return
				}
				seen[w][stmt] = struct{}{}
			}
		}()
	}

	wg.Wait()
	close(errs)
	for err := range errs {
		assert.NoError(t, err)
	}

	all := make(map[*db.Statement]int)
	for w := range workers {
		assert.Len(t, seen[w], iterations)
		for stmt := range seen[w] {
			all[stmt]++
		}
	}
	assert.Len(t, all, workers*iterations)
	for _, count := range all {
		assert.Equal(t, 1, count)
	}
	assert.Zero(t, r.Len())
}
