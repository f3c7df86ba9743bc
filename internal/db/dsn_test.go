package db

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func Test_createDSN(t *testing.T) {
	tests := []struct {
		name                 string
		isReadOnly           bool
		disableOptimizations bool
		contains             []string
		notContains          []string
	}{
		{
			name:        "read-write optimized",
			contains:    []string{"mode=rw", "_journal_mode=WAL", "_synchronous=NORMAL", "_busy_timeout=5000"},
			notContains: []string{"_query_only"},
		},
		{
			name:        "read-only optimized",
			isReadOnly:  true,
			contains:    []string{"_query_only=true", "_cache_size=10000"},
			notContains: []string{"mode=rw", "_journal_mode"},
		},
		{
			name:                 "read-write without optimizations",
			disableOptimizations: true,
			contains:             []string{"mode=rw", "_foreign_keys=true"},
			notContains:          []string{"_journal_mode", "_cache_size"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dsn := createDSN("/tmp/db.sqlite", tt.isReadOnly, tt.disableOptimizations)
			assert.Contains(t, dsn, "file:/tmp/db.sqlite?")
			for _, s := range tt.contains {
				assert.Contains(t, dsn, s)
			}
			for _, s := range tt.notContains {
				assert.NotContains(t, dsn, s)
			}
		})
	}
}

func TestWorkerFrom(t *testing.T) {
	ctx := context.Background()
	assert.Equal(t, MainWorker, WorkerFrom(ctx))
	assert.Equal(t, WorkerID("w1"), WorkerFrom(WithWorker(ctx, "w1")))
	assert.Equal(t, MainWorker, WorkerFrom(WithWorker(ctx, "")))

	a, b := NewWorkerID(), NewWorkerID()
	assert.NotEqual(t, a, b)
	assert.NotEqual(t, MainWorker, a)
}

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want errorKind
	}{
		{"nil", nil, KindUnknown},
		{"plain", errors.New("boom"), KindUnknown},
		{"open", fmt.Errorf("%w: x", ErrOpenFailed), KindOpenFailed},
		{"close", fmt.Errorf("%w: x", ErrCloseFailed), KindCloseFailed},
		{"statement", fmt.Errorf("%w: x", ErrStatementFault), KindStatementFault},
		{"wrong owner", ErrWrongOwner, KindCallerContract},
		{"closed", fmt.Errorf("wrapped: %w", ErrContextClosed), KindCallerContract},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, KindOf(tt.err))
		})
	}
}

func Test_stripLeadingComments(t *testing.T) {
	tests := []struct {
		name  string
		query string
		want  string
	}{
		{"NoComment", "  BEGIN ", "BEGIN"},
		{"LineComment", "-- note\nBEGIN", "BEGIN"},
		{"BlockComment", "/* note */COMMIT", "COMMIT"},
		{"Mixed", "/* a */\n-- b\n\t/* c */ ROLLBACK", "ROLLBACK"},
		{"OnlyLineComment", "-- nothing else", ""},
		{"UnterminatedBlock", "/* open BEGIN", ""},
		{"InnerCommentKept", "SELECT 1 -- trailing", "SELECT 1 -- trailing"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, stripLeadingComments(tt.query))
		})
	}
}
