package stress

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"

	"github.com/nsqlite/nsqlitectx/internal/log"
	"github.com/nsqlite/nsqlitectx/internal/registry"
	"github.com/nsqlite/nsqlitectx/internal/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRegistry(t *testing.T, logger log.Logger) (*registry.Registry, string) {
	t.Helper()

	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "stress.sqlite")
	main, err := schema.Init(ctx, schema.Config{Logger: logger, Path: path})
	require.NoError(t, err)

	reg, err := registry.New(logger, main)
	require.NoError(t, err)
	t.Cleanup(func() { _ = reg.Close(ctx) })
	return reg, path
}

func TestRun(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := log.NewLogger(buf)
	reg, path := newTestRegistry(t, logger)

	out := &bytes.Buffer{}
	result, err := Run(context.Background(), Config{
		Logger:       logger,
		Registry:     reg,
		Path:         path,
		Workers:      4,
		Rounds:       3,
		Iterations:   200,
		Out:          out,
		ShowProgress: true,
	})
	require.NoError(t, err)

	assert.Equal(t, 12, result.Tasks)
	assert.EqualValues(t, 12*200, result.Queries)
	assert.LessOrEqual(t, result.ContextsCreated, int64(4))
	assert.Positive(t, result.ContextsCreated)
	assert.Positive(t, result.QueriesPerSecond())
	assert.Zero(t, reg.Len())
	assert.Contains(t, out.String(), "stress")
	assert.Contains(t, buf.String(), "stress run finished")
	assert.NotContains(t, buf.String(), "non-main worker")
}

func TestRun_Defaults(t *testing.T) {
	logger := log.NewLogger(&bytes.Buffer{})
	reg, path := newTestRegistry(t, logger)

	result, err := Run(context.Background(), Config{
		Logger:     logger,
		Registry:   reg,
		Path:       path,
		Iterations: 10,
	})
	require.NoError(t, err)
	assert.Equal(t, DefaultWorkers*DefaultRounds, result.Tasks)
	assert.EqualValues(t, DefaultWorkers*DefaultRounds*10, result.Queries)
}

func TestRun_InvalidConfig(t *testing.T) {
	logger := log.NewLogger(&bytes.Buffer{})
	reg, path := newTestRegistry(t, logger)

	tests := []struct {
		name   string
		config Config
	}{
		{name: "no logger", config: Config{Registry: reg, Path: path}},
		{name: "no registry", config: Config{Logger: logger, Path: path}},
		{name: "no path", config: Config{Logger: logger, Registry: reg}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Run(context.Background(), tt.config)
			assert.Error(t, err)
		})
	}
}

func TestRun_MissingDatabase(t *testing.T) {
	logger := log.NewLogger(&bytes.Buffer{})
	reg, _ := newTestRegistry(t, logger)

	_, err := Run(context.Background(), Config{
		Logger:     logger,
		Registry:   reg,
		Path:       filepath.Join(t.TempDir(), "missing.sqlite"),
		Workers:    2,
		Rounds:     1,
		Iterations: 1,
	})
	assert.Error(t, err)
}
