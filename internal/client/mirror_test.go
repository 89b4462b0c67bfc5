package client

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/colonyops/hivesync/internal/core/patch"
	"github.com/colonyops/hivesync/internal/core/stream"
)

func snapshotEnv(t *testing.T, topic stream.Topic, seq uint64, v any) stream.Envelope {
	t.Helper()
	p, err := patch.Snapshot(topic.Kind.Root(), v)
	require.NoError(t, err)
	return stream.Envelope{Topic: topic.String(), Seq: seq, Patch: p}
}

func addEnv(t *testing.T, topic stream.Topic, seq uint64, path string, v any) stream.Envelope {
	t.Helper()
	op, err := patch.Add(path, v)
	require.NoError(t, err)
	return stream.Envelope{Topic: topic.String(), Seq: seq, Patch: patch.Patch{op}}
}

func TestMirror_KeyedCollection(t *testing.T) {
	topic := stream.NewTopic(stream.KindTasks, "P1")
	m := NewMirror(topic)
	assert.Nil(t, m.Value())

	require.NoError(t, m.Apply(snapshotEnv(t, topic, 4, map[string]any{})))
	assert.JSONEq(t, `{}`, string(m.Value()))
	assert.Equal(t, uint64(4), m.Seq())

	require.NoError(t, m.Apply(addEnv(t, topic, 5, "/tasks/t1", map[string]string{"title": "Fix bug"})))
	title, err := patch.Replace("/tasks/t1/title", "Fix login bug")
	require.NoError(t, err)
	require.NoError(t, m.Apply(stream.Envelope{Seq: 6, Patch: patch.Patch{title}}))

	var got map[string]map[string]string
	require.NoError(t, json.Unmarshal(m.Value(), &got))
	assert.Equal(t, map[string]map[string]string{"t1": {"title": "Fix login bug"}}, got)

	require.NoError(t, m.Apply(stream.Envelope{Seq: 7, Patch: patch.Patch{patch.Remove("/tasks/t1")}}))
	assert.JSONEq(t, `{}`, string(m.Value()))
}

func TestMirror_Sequence(t *testing.T) {
	topic := stream.NewTopic(stream.KindRawLogs, "proc-1")
	m := NewMirror(topic)

	require.NoError(t, m.Apply(snapshotEnv(t, topic, 0, []string{})))
	p, err := patch.AppendItems("/entries", 0, "a", "b")
	require.NoError(t, err)
	require.NoError(t, m.Apply(stream.Envelope{Seq: 1, Patch: p}))
	assert.JSONEq(t, `["a","b"]`, string(m.Value()))

	require.NoError(t, m.Apply(snapshotEnv(t, topic, 2, []string{})), "a reset arrives as a snapshot")
	assert.JSONEq(t, `[]`, string(m.Value()))

	require.NoError(t, m.Apply(stream.Envelope{Seq: 3, Patch: patch.Patch{}, Finished: true}))
	assert.True(t, m.Finished())
}

func TestMirror_Errors(t *testing.T) {
	topic := stream.NewTopic(stream.KindDrafts, "P1")

	tests := []struct {
		name    string
		envs    func(t *testing.T) []stream.Envelope
		wantErr error
	}{
		{
			name: "patch before snapshot",
			envs: func(t *testing.T) []stream.Envelope {
				return []stream.Envelope{addEnv(t, topic, 1, "/drafts/a1", 1)}
			},
			wantErr: ErrNoSnapshot,
		},
		{
			name: "skipped envelope",
			envs: func(t *testing.T) []stream.Envelope {
				return []stream.Envelope{
					snapshotEnv(t, topic, 2, map[string]any{}),
					addEnv(t, topic, 4, "/drafts/a1", 1),
				}
			},
			wantErr: ErrSequenceGap,
		},
		{
			name: "replayed envelope",
			envs: func(t *testing.T) []stream.Envelope {
				return []stream.Envelope{
					snapshotEnv(t, topic, 2, map[string]any{}),
					addEnv(t, topic, 3, "/drafts/a1", 1),
					addEnv(t, topic, 3, "/drafts/a1", 1),
				}
			},
			wantErr: ErrSequenceGap,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewMirror(topic)
			var err error
			for _, env := range tt.envs(t) {
				if err = m.Apply(env); err != nil {
					break
				}
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestMirror_InapplicablePatch(t *testing.T) {
	topic := stream.NewTopic(stream.KindTasks, "P1")
	m := NewMirror(topic)
	require.NoError(t, m.Apply(snapshotEnv(t, topic, 0, map[string]any{})))

	err := m.Apply(stream.Envelope{Seq: 1, Patch: patch.Patch{patch.Remove("/tasks/missing")}})
	require.Error(t, err)

	var v map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(m.Value(), &v))
	assert.Empty(t, v, "a failed patch leaves the mirror untouched")
}
