package log

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKvToArgs(t *testing.T) {
	tests := []struct {
		name    string
		keyVals []KV
		want    []any
	}{
		{
			name: "NoArgs",
			want: []any{},
		},
		{
			name:    "SortedByKey",
			keyVals: []KV{{"worker": "w1", "path": "/tmp/a.sqlite"}},
			want:    []any{"path", "/tmp/a.sqlite", "worker", "w1"},
		},
		{
			name:    "ExtraKVIgnored",
			keyVals: []KV{{"table": "archive_file"}, {"error": "ignored"}},
			want:    []any{"table", "archive_file"},
		},
		{
			name:    "EmptyKV",
			keyVals: []KV{{}},
			want:    []any{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, kvToArgs(tt.keyVals...))
		})
	}
}

func TestKvToArgsNs(t *testing.T) {
	t.Run("OnlyNamespace", func(t *testing.T) {
		assert.Equal(t, []any{"ns", NsRegistry}, kvToArgsNs(NsRegistry))
	})

	t.Run("NamespaceFirst", func(t *testing.T) {
		got := kvToArgsNs(NsSchema, KV{"version": 1, "table": "archive_file"})
		assert.Equal(t, []any{"ns", NsSchema, "table", "archive_file", "version", 1}, got)
	})

	t.Run("NamespaceNotOverridden", func(t *testing.T) {
		got := kvToArgsNs(NsPool, KV{"ns": "other"})
		assert.Equal(t, []any{"ns", NsPool, "ns", "other"}, got)
	})
}
