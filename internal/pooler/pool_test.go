package pooler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockResource struct {
	id int64
}

func newMockConfig(created, closed *int64) Config[mockResource] {
	return Config[mockResource]{
		NewFunc: func(context.Context) (mockResource, error) {
			return mockResource{id: atomic.AddInt64(created, 1)}, nil
		},
		CloseFunc: func(mockResource) error {
			atomic.AddInt64(closed, 1)
			return nil
		},
	}
}

func TestNewPool(t *testing.T) {
	var created, closed int64
	base := newMockConfig(&created, &closed)

	tests := []struct {
		name    string
		mutate  func(*Config[mockResource])
		wantErr bool
	}{
		{name: "valid", mutate: func(c *Config[mockResource]) {}},
		{name: "zero max items", mutate: func(c *Config[mockResource]) { c.MaxItems = 0 }, wantErr: true},
		{name: "negative idle", mutate: func(c *Config[mockResource]) { c.MaxIdle = -1 }, wantErr: true},
		{name: "idle above max", mutate: func(c *Config[mockResource]) { c.MaxIdle = 5 }, wantErr: true},
		{name: "nil new func", mutate: func(c *Config[mockResource]) { c.NewFunc = nil }, wantErr: true},
		{name: "nil close func", mutate: func(c *Config[mockResource]) { c.CloseFunc = nil }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := base
			config.MaxItems = 2
			config.MaxIdle = 1
			tt.mutate(&config)

			pool, err := NewPool(config)
			if tt.wantErr {
				assert.Error(t, err)
				assert.Nil(t, pool)
			} else {
				assert.NoError(t, err)
				assert.NotNil(t, pool)
			}
		})
	}
}

func TestPool_CreateAndClose(t *testing.T) {
	ctx := context.Background()
	var created, closed int64

	config := newMockConfig(&created, &closed)
	config.MaxItems = 3
	config.MaxIdle = 2
	pool, err := NewPool(config)
	require.NoError(t, err)

	res1, err := pool.Get(ctx)
	assert.NoError(t, err)
	assert.EqualValues(t, 1, res1.id)

	assert.NoError(t, pool.Close())
	assert.True(t, pool.Stats().Closed)

	res2, err := pool.Get(ctx)
	assert.ErrorIs(t, err, ErrPoolClosed)
	assert.Zero(t, res2.id)

	assert.NoError(t, pool.Put(res1))
	assert.EqualValues(t, 1, closed)
	assert.Zero(t, pool.Stats().Total)
}

func TestPool_MaxIdle(t *testing.T) {
	ctx := context.Background()
	var created, closed int64

	config := newMockConfig(&created, &closed)
	config.MaxItems = 5
	config.MaxIdle = 2
	pool, err := NewPool(config)
	require.NoError(t, err)

	r1, err := pool.Get(ctx)
	assert.NoError(t, err)
	r2, err := pool.Get(ctx)
	assert.NoError(t, err)
	r3, err := pool.Get(ctx)
	assert.NoError(t, err)
	assert.EqualValues(t, 3, r3.id)

	assert.Equal(t, Stats{Total: 3, InUse: 3}, pool.Stats())

	assert.NoError(t, pool.Put(r1))
	assert.NoError(t, pool.Put(r2))
	assert.NoError(t, pool.Put(r3))

	assert.EqualValues(t, 3, created)
	assert.EqualValues(t, 1, closed)
	assert.Equal(t, Stats{Total: 2, Idle: 2}, pool.Stats())

	assert.NoError(t, pool.Close())
	assert.EqualValues(t, 3, created)
	assert.EqualValues(t, 3, closed)
}

func TestPool_BlockWhenFull(t *testing.T) {
	ctx := context.Background()
	var created, closed int64

	config := newMockConfig(&created, &closed)
	config.MaxItems = 2
	config.MaxIdle = 1
	pool, err := NewPool(config)
	require.NoError(t, err)
	defer pool.Close()

	r1, err := pool.Get(ctx)
	assert.NoError(t, err)
	_, err = pool.Get(ctx)
	assert.NoError(t, err)

	ch := make(chan struct{})
	go func() {
		r3, getErr := pool.Get(ctx)
		assert.NoError(t, getErr)
		assert.NotZero(t, r3.id)
		close(ch)
	}()

	assert.EqualValues(t, 2, created)
	_ = pool.Put(r1)
	<-ch
}

func TestPool_GetCancelled(t *testing.T) {
	var created, closed int64

	config := newMockConfig(&created, &closed)
	config.MaxItems = 1
	config.MaxIdle = 1
	pool, err := NewPool(config)
	require.NoError(t, err)
	defer pool.Close()

	_, err = pool.Get(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err = pool.Get(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.EqualValues(t, 1, created)
}

func TestPool_ResetFunc(t *testing.T) {
	ctx := context.Background()
	var created, closed, resets int64

	config := newMockConfig(&created, &closed)
	config.MaxItems = 2
	config.MaxIdle = 2
	config.ResetFunc = func(_ context.Context, r mockResource) error {
		atomic.AddInt64(&resets, 1)
		if r.id == 1 {
			return errors.New("stale")
		}
		return nil
	}
	pool, err := NewPool(config)
	require.NoError(t, err)
	defer pool.Close()

	r1, err := pool.Get(ctx)
	require.NoError(t, err)
	r2, err := pool.Get(ctx)
	require.NoError(t, err)
	assert.Zero(t, resets)

	require.NoError(t, pool.Put(r2))
	require.NoError(t, pool.Put(r1))

	// r1 fails its reset and is closed, r2 is handed out.
	got, err := pool.Get(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 2, got.id)
	assert.EqualValues(t, 2, resets)
	assert.EqualValues(t, 1, closed)
	assert.Equal(t, Stats{Total: 1, InUse: 1}, pool.Stats())
}
