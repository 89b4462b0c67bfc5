package patch

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type line struct {
	Content string `json:"content"`
}

func TestAppendItems(t *testing.T) {
	p, err := AppendItems("/entries", 2, line{"c"}, line{"d"})
	require.NoError(t, err)

	assert.Equal(t, Patch{
		{Op: OpAdd, Path: "/entries/2", Value: json.RawMessage(`{"content":"c"}`)},
		{Op: OpAdd, Path: "/entries/3", Value: json.RawMessage(`{"content":"d"}`)},
	}, p)
}

func TestDiffSequence(t *testing.T) {
	old := []line{{"a"}, {"b"}}

	tests := []struct {
		name     string
		next     []line
		snapshot bool
		ops      int
	}{
		{name: "append", next: []line{{"a"}, {"b"}, {"c"}}, ops: 1},
		{name: "unchanged", next: []line{{"a"}, {"b"}}, ops: 0},
		{name: "reset", next: nil, snapshot: true, ops: 1},
		{name: "truncate", next: []line{{"b"}}, snapshot: true, ops: 1},
		{name: "edited prefix", next: []line{{"x"}, {"b"}, {"c"}}, snapshot: true, ops: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := DiffSequence("/entries", old, tt.next)
			require.NoError(t, err)
			assert.Len(t, p, tt.ops)
			assert.Equal(t, tt.snapshot, p.IsSnapshot("/entries"))
		})
	}
}

func TestDiffSequence_ApplyYieldsNext(t *testing.T) {
	old := []line{{"a"}}
	next := []line{{"a"}, {"b"}, {"c"}}

	p, err := DiffSequence("/entries", old, next)
	require.NoError(t, err)

	got := apply(t, "entries", old, p)
	assert.Equal(t, []any{
		map[string]any{"content": "a"},
		map[string]any{"content": "b"},
		map[string]any{"content": "c"},
	}, got["entries"])
}

func TestDiffSequence_ResetEncodesEmptyArray(t *testing.T) {
	p, err := DiffSequence[line]("/entries", []line{{"a"}}, nil)
	require.NoError(t, err)
	require.Len(t, p, 1)
	assert.JSONEq(t, `[]`, string(p[0].Value))
}
