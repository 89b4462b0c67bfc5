package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	jsonpatch "github.com/evanphx/json-patch/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/colonyops/hivesync/internal/core/diff"
	"github.com/colonyops/hivesync/internal/core/draft"
	"github.com/colonyops/hivesync/internal/core/execution"
	"github.com/colonyops/hivesync/internal/core/patch"
	"github.com/colonyops/hivesync/internal/core/stream"
	"github.com/colonyops/hivesync/internal/core/task"
	"github.com/colonyops/hivesync/internal/data/db"
	"github.com/colonyops/hivesync/internal/data/stores"
)

var t0 = time.Unix(0, 1_700_000_000_000_000_000)

func openStores(t *testing.T, dir string) Stores {
	t.Helper()
	database, err := db.Open(dir, db.DefaultOpenOptions())
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close() })
	return Stores{
		Tasks:     stores.NewTaskStore(database),
		Attempts:  stores.NewAttemptStore(database),
		Processes: stores.NewProcessStore(database),
		Drafts:    stores.NewDraftStore(database),
	}
}

func newTestStore(t *testing.T, opts Options) *Store {
	t.Helper()
	s := New(openStores(t, t.TempDir()), stream.NewHub(), opts)
	require.NoError(t, s.Load(context.Background()))
	return s
}

func subscribe(t *testing.T, s *Store, kind stream.Kind, key string) *stream.Subscriber {
	t.Helper()
	sub, err := s.Subscribe(stream.NewTopic(kind, key), "conn-test")
	require.NoError(t, err)
	return sub
}

func next(t *testing.T, sub *stream.Subscriber) stream.Envelope {
	t.Helper()
	select {
	case env := <-sub.C():
		return env
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for envelope")
		return stream.Envelope{}
	}
}

func assertQuiet(t *testing.T, sub *stream.Subscriber) {
	t.Helper()
	select {
	case env := <-sub.C():
		t.Fatalf("unexpected envelope %+v", env)
	default:
	}
}

func mkTask(id, project, title string, status task.Status) task.Task {
	return task.Task{ID: id, ProjectID: project, Title: title, Status: status, CreatedAt: t0, UpdatedAt: t0}
}

func seedAttempt(t *testing.T, s *Store, project, taskID, attemptID string) {
	t.Helper()
	ctx := context.Background()
	_, err := s.PutTask(ctx, mkTask(taskID, project, "task "+taskID, task.StatusInProgress))
	require.NoError(t, err)
	_, err = s.CreateAttempt(ctx, task.Attempt{ID: attemptID, TaskID: taskID, Executor: "claude", CreatedAt: t0})
	require.NoError(t, err)
}

func TestStore_TaskStreamSnapshotThenAdd(t *testing.T) {
	s := newTestStore(t, Options{})
	sub := subscribe(t, s, stream.KindTasks, "P1")

	snap := next(t, sub)
	require.True(t, snap.Patch.IsSnapshot("/tasks"))
	assert.JSONEq(t, `{}`, string(snap.Patch[0].Value))

	_, err := s.PutTask(context.Background(), mkTask("t1", "P1", "Fix bug", task.StatusTodo))
	require.NoError(t, err)

	env := next(t, sub)
	require.Len(t, env.Patch, 1)
	assert.Equal(t, patch.OpAdd, env.Patch[0].Op)
	assert.Equal(t, "/tasks/t1", env.Patch[0].Path)

	var got task.Task
	require.NoError(t, json.Unmarshal(env.Patch[0].Value, &got))
	assert.Equal(t, "Fix bug", got.Title)
}

func TestStore_TaskFieldUpdateIsReplace(t *testing.T) {
	s := newTestStore(t, Options{})
	ctx := context.Background()

	tk, err := s.PutTask(ctx, mkTask("t1", "P1", "Fix bug", task.StatusTodo))
	require.NoError(t, err)

	sub := subscribe(t, s, stream.KindTasks, "P1")
	next(t, sub)

	tk.Status = task.StatusInReview
	_, err = s.PutTask(ctx, tk)
	require.NoError(t, err)

	env := next(t, sub)
	require.Len(t, env.Patch, 1)
	assert.Equal(t, patch.Operation{Op: patch.OpReplace, Path: "/tasks/t1/status", Value: json.RawMessage(`"inreview"`)}, env.Patch[0])
}

func TestStore_UpdateTask(t *testing.T) {
	errStop := errors.New("stop")

	tests := []struct {
		name      string
		id        string
		wantErr   error
		wantTitle string
		fn        func(*task.Task) error
	}{
		{
			name:      "applies change",
			id:        "t1",
			wantTitle: "Fix login bug",
			fn: func(tk *task.Task) error {
				tk.Title = "Fix login bug"
				return nil
			},
		},
		{
			name:      "keeps identity",
			id:        "t1",
			wantTitle: "Fix bug",
			fn: func(tk *task.Task) error {
				tk.ID = "other"
				tk.ProjectID = "P2"
				return nil
			},
		},
		{
			name:    "callback error aborts",
			id:      "t1",
			wantErr: errStop,
			fn: func(tk *task.Task) error {
				tk.Title = "lost"
				return errStop
			},
		},
		{
			name:    "invalid status",
			id:      "t1",
			wantErr: task.ErrInvalidStatus,
			fn: func(tk *task.Task) error {
				tk.Status = "bogus"
				return nil
			},
		},
		{
			name:    "unknown task",
			id:      "missing",
			wantErr: task.ErrNotFound,
			fn:      func(*task.Task) error { return nil },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestStore(t, Options{})
			ctx := context.Background()
			_, err := s.PutTask(ctx, mkTask("t1", "P1", "Fix bug", task.StatusTodo))
			require.NoError(t, err)

			got, err := s.UpdateTask(ctx, tt.id, tt.fn)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				stored, ok := s.Task("t1")
				require.True(t, ok)
				assert.Equal(t, "Fix bug", stored.Title)
				_, ok = s.Task(tt.id)
				assert.Equal(t, tt.id == "t1", ok, "a failed update never creates a task")
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "t1", got.ID)
			assert.Equal(t, "P1", got.ProjectID)
			assert.Equal(t, tt.wantTitle, got.Title)
			assert.Empty(t, s.Tasks("P2"))
		})
	}
}

func TestStore_UpdateTaskAfterDelete(t *testing.T) {
	s := newTestStore(t, Options{})
	ctx := context.Background()
	_, err := s.PutTask(ctx, mkTask("t1", "P1", "Fix bug", task.StatusTodo))
	require.NoError(t, err)

	sub := subscribe(t, s, stream.KindTasks, "P1")
	next(t, sub)

	_, _, err = s.DeleteTask(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, patch.Patch{patch.Remove("/tasks/t1")}, next(t, sub).Patch)

	called := false
	_, err = s.UpdateTask(ctx, "t1", func(*task.Task) error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, task.ErrNotFound)
	assert.False(t, called)
	assertQuiet(t, sub)

	persisted, err := s.stores.Tasks.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, persisted)
}

func TestStore_AgentTasksNeverStreamed(t *testing.T) {
	s := newTestStore(t, Options{})
	ctx := context.Background()

	_, err := s.PutTask(ctx, mkTask("hidden", "P1", "orchestrate", task.StatusAgent))
	require.NoError(t, err)

	sub := subscribe(t, s, stream.KindTasks, "P1")
	snap := next(t, sub)
	assert.JSONEq(t, `{}`, string(snap.Patch[0].Value), "agent task excluded from snapshot")

	// Updating or deleting an agent task produces nothing.
	hidden, _ := s.Task("hidden")
	hidden.Title = "orchestrate more"
	_, err = s.PutTask(ctx, hidden)
	require.NoError(t, err)
	_, _, err = s.DeleteTask(ctx, "hidden")
	require.NoError(t, err)
	assertQuiet(t, sub)

	// Status changes across the boundary look like creation and removal.
	_, err = s.PutTask(ctx, mkTask("t2", "P1", "later visible", task.StatusAgent))
	require.NoError(t, err)
	assertQuiet(t, sub)

	_, err = s.PutTask(ctx, mkTask("t2", "P1", "later visible", task.StatusTodo))
	require.NoError(t, err)
	env := next(t, sub)
	assert.Equal(t, patch.OpAdd, env.Patch[0].Op)

	_, err = s.PutTask(ctx, mkTask("t2", "P1", "later visible", task.StatusAgent))
	require.NoError(t, err)
	env = next(t, sub)
	assert.Equal(t, patch.Patch{patch.Remove("/tasks/t2")}, env.Patch)

	assert.Empty(t, s.Tasks("P1"))
}

func TestStore_InvalidStatusRejected(t *testing.T) {
	s := newTestStore(t, Options{})
	_, err := s.PutTask(context.Background(), mkTask("t1", "P1", "x", "someday"))
	assert.ErrorIs(t, err, task.ErrInvalidStatus)
}

func TestStore_TaskProjectIsSticky(t *testing.T) {
	s := newTestStore(t, Options{})
	ctx := context.Background()

	_, err := s.PutTask(ctx, mkTask("t1", "P1", "x", task.StatusTodo))
	require.NoError(t, err)
	got, err := s.PutTask(ctx, mkTask("t1", "P2", "y", task.StatusTodo))
	require.NoError(t, err)
	assert.Equal(t, "P1", got.ProjectID)
	assert.Empty(t, s.Tasks("P2"))
}

func TestStore_MirrorMatchesState(t *testing.T) {
	s := newTestStore(t, Options{})
	ctx := context.Background()

	sub := subscribe(t, s, stream.KindTasks, "P1")
	snap := next(t, sub)
	mirror := []byte(fmt.Sprintf(`{"tasks":%s}`, snap.Patch[0].Value))

	for i := range 5 {
		_, err := s.PutTask(ctx, mkTask(fmt.Sprintf("t%d", i), "P1", "task", task.StatusTodo))
		require.NoError(t, err)
	}
	tk, _ := s.Task("t2")
	tk.Description = "details"
	tk.Status = task.StatusDone
	_, err := s.PutTask(ctx, tk)
	require.NoError(t, err)
	_, _, err = s.DeleteTask(ctx, "t3")
	require.NoError(t, err)

	for range 7 {
		env := next(t, sub)
		raw, err := json.Marshal(env.Patch)
		require.NoError(t, err)
		p, err := jsonpatch.DecodePatch(raw)
		require.NoError(t, err)
		mirror, err = p.Apply(mirror)
		require.NoError(t, err)
	}

	fresh := subscribe(t, s, stream.KindTasks, "P1")
	want := next(t, fresh)
	assert.JSONEq(t, fmt.Sprintf(`{"tasks":%s}`, want.Patch[0].Value), string(mirror))
}

func TestStore_ProcessesPublishToAttemptAndGlobal(t *testing.T) {
	s := newTestStore(t, Options{})
	ctx := context.Background()
	seedAttempt(t, s, "P1", "t1", "A1")

	scoped := subscribe(t, s, stream.KindExecutionProcesses, "A1")
	global := subscribe(t, s, stream.KindExecutionProcesses, "")
	other := subscribe(t, s, stream.KindExecutionProcesses, "A2")
	next(t, scoped)
	next(t, global)
	next(t, other)

	running, err := s.AttemptRunning("A1")
	require.NoError(t, err)
	assert.False(t, running)

	proc := execution.Process{ID: "p1", AttemptID: "A1", RunReason: execution.RunReasonCodingAgent, Status: execution.StatusRunning, StartedAt: t0}
	_, existed, err := s.PutProcess(ctx, proc)
	require.NoError(t, err)
	assert.False(t, existed)

	for _, sub := range []*stream.Subscriber{scoped, global} {
		env := next(t, sub)
		assert.Equal(t, "/execution_processes/p1", env.Patch[0].Path)
		assert.Equal(t, patch.OpAdd, env.Patch[0].Op)
	}
	assertQuiet(t, other)

	running, err = s.AttemptRunning("A1")
	require.NoError(t, err)
	assert.True(t, running)

	_, err = s.AttemptRunning("missing")
	assert.ErrorIs(t, err, task.ErrAttemptNotFound)

	_, _, err = s.PutProcess(ctx, execution.Process{ID: "p9", AttemptID: "missing", RunReason: execution.RunReasonCodingAgent, Status: execution.StatusRunning})
	assert.ErrorIs(t, err, task.ErrAttemptNotFound)
}

func TestStore_TerminalProcessFinishesLogs(t *testing.T) {
	s := newTestStore(t, Options{})
	ctx := context.Background()
	seedAttempt(t, s, "P1", "t1", "A1")

	proc := execution.Process{ID: "p1", AttemptID: "A1", RunReason: execution.RunReasonCodingAgent, Status: execution.StatusRunning, StartedAt: t0}
	_, _, err := s.PutProcess(ctx, proc)
	require.NoError(t, err)

	raw := subscribe(t, s, stream.KindRawLogs, "p1")
	norm := subscribe(t, s, stream.KindNormalizedLogs, "p1")
	next(t, raw)
	next(t, norm)

	require.NoError(t, s.AppendRawLogs(ctx, "p1", execution.LogLine{Stream: execution.LogStdout, Content: "hello"}))
	env := next(t, raw)
	assert.Equal(t, "/entries/0", env.Patch[0].Path)

	done := t0.Add(time.Minute)
	proc.Status = execution.StatusCompleted
	proc.CompletedAt = &done
	prev, existed, err := s.PutProcess(ctx, proc)
	require.NoError(t, err)
	assert.True(t, existed)
	assert.Equal(t, execution.StatusRunning, prev.Status)

	assert.True(t, next(t, raw).Finished)
	assert.True(t, next(t, norm).Finished)

	// A second terminal update does not finish again.
	_, _, err = s.PutProcess(ctx, proc)
	require.NoError(t, err)
	assertQuiet(t, raw)
}

func TestStore_LateLogSubscriberSeesFinished(t *testing.T) {
	tests := []struct {
		name     string
		status   execution.Status
		finished bool
	}{
		{name: "running", status: execution.StatusRunning, finished: false},
		{name: "completed", status: execution.StatusCompleted, finished: true},
		{name: "failed", status: execution.StatusFailed, finished: true},
		{name: "stopped", status: execution.StatusStopped, finished: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestStore(t, Options{})
			ctx := context.Background()
			seedAttempt(t, s, "P1", "t1", "A1")

			proc := execution.Process{ID: "p1", AttemptID: "A1", RunReason: execution.RunReasonCodingAgent, Status: execution.StatusRunning, StartedAt: t0}
			_, _, err := s.PutProcess(ctx, proc)
			require.NoError(t, err)
			require.NoError(t, s.AppendRawLogs(ctx, "p1", execution.LogLine{Stream: execution.LogStdout, Content: "hello"}))

			if tt.status != execution.StatusRunning {
				done := t0.Add(time.Minute)
				proc.Status = tt.status
				proc.CompletedAt = &done
				_, _, err = s.PutProcess(ctx, proc)
				require.NoError(t, err)
			}

			for _, kind := range []stream.Kind{stream.KindRawLogs, stream.KindNormalizedLogs} {
				sub := subscribe(t, s, kind, "p1")
				snap := next(t, sub)
				assert.True(t, snap.Patch.IsSnapshot(kind.Root()), kind)
				assert.Equal(t, tt.finished, snap.Finished, kind)
				assertQuiet(t, sub)
			}
		})
	}
}

func TestStore_LogsCapResetAndEvict(t *testing.T) {
	s := newTestStore(t, Options{MaxLogLines: 3})
	ctx := context.Background()
	seedAttempt(t, s, "P1", "t1", "A1")

	_, _, err := s.PutProcess(ctx, execution.Process{ID: "p1", AttemptID: "A1", RunReason: execution.RunReasonCodingAgent, Status: execution.StatusRunning, StartedAt: t0})
	require.NoError(t, err)

	sub := subscribe(t, s, stream.KindNormalizedLogs, "p1")
	next(t, sub)

	entries := []execution.NormalizedEntry{
		{EntryType: execution.EntryUserMessage, Content: "one"},
		{EntryType: execution.EntryAssistantMessage, Content: "two"},
	}
	require.NoError(t, s.AppendNormalizedLogs(ctx, "p1", entries...))
	env := next(t, sub)
	require.Len(t, env.Patch, 2)
	assert.Equal(t, "/entries/1", env.Patch[1].Path)

	require.NoError(t, s.AppendNormalizedLogs(ctx, "p1",
		execution.NormalizedEntry{EntryType: execution.EntryToolUse, Content: "three"},
		execution.NormalizedEntry{EntryType: execution.EntryAssistantMessage, Content: "four"},
	))
	env = next(t, sub)
	require.True(t, env.Patch.IsSnapshot("/entries"), "trim is announced as a snapshot")
	var kept []execution.NormalizedEntry
	require.NoError(t, json.Unmarshal(env.Patch[0].Value, &kept))
	require.Len(t, kept, 3)
	assert.Equal(t, "two", kept[0].Content)
	assert.Len(t, s.NormalizedLogs("p1"), 3)

	require.NoError(t, s.ResetLogs(ctx, "p1"))
	env = next(t, sub)
	require.True(t, env.Patch.IsSnapshot("/entries"))
	assert.JSONEq(t, `[]`, string(env.Patch[0].Value))
	assert.Empty(t, s.NormalizedLogs("p1"))

	assert.ErrorIs(t, s.AppendRawLogs(ctx, "nope", execution.LogLine{Content: "x"}), execution.ErrNotFound)

	// Eviction only touches processes finished before the cutoff.
	require.NoError(t, s.AppendRawLogs(ctx, "p1", execution.LogLine{Content: "x"}))
	assert.Equal(t, 0, s.EvictFinishedLogs(time.Now()))

	done := time.Now().Add(-2 * time.Hour)
	_, _, err = s.PutProcess(ctx, execution.Process{ID: "p1", AttemptID: "A1", RunReason: execution.RunReasonCodingAgent, Status: execution.StatusFailed, StartedAt: t0, CompletedAt: &done})
	require.NoError(t, err)
	assert.Equal(t, 1, s.EvictFinishedLogs(time.Now().Add(-time.Hour)))
	assert.Empty(t, s.RawLogs("p1"))
}

func TestStore_DiffStream(t *testing.T) {
	s := newTestStore(t, Options{})
	ctx := context.Background()
	seedAttempt(t, s, "P1", "t1", "A1")

	require.NoError(t, s.SetDiff(ctx, "A1", []diff.Entry{
		{Path: "a.go", Change: diff.ChangeModified, Additions: 1},
	}))

	sub := subscribe(t, s, stream.KindDiff, "A1")
	snap := next(t, sub)
	assert.Contains(t, string(snap.Patch[0].Value), `"a.go"`)

	require.NoError(t, s.SetDiff(ctx, "A1", []diff.Entry{
		{Path: "a.go", Change: diff.ChangeModified, Additions: 2},
		{Path: "dir/b.go", Change: diff.ChangeAdded, Additions: 5},
	}))

	env := next(t, sub)
	require.Len(t, env.Patch, 2)
	assert.Equal(t, "/entries/a.go/additions", env.Patch[0].Path)
	assert.Equal(t, patch.OpAdd, env.Patch[1].Op)
	assert.Equal(t, "/entries/dir~1b.go", env.Patch[1].Path)

	assert.Len(t, s.Diff("A1"), 2)
	assert.ErrorIs(t, s.SetDiff(ctx, "A9", nil), task.ErrAttemptNotFound)
}

func TestStore_DraftStreamPerProject(t *testing.T) {
	s := newTestStore(t, Options{})
	ctx := context.Background()
	seedAttempt(t, s, "P1", "t1", "A1")
	seedAttempt(t, s, "P2", "t2", "B1")

	p1 := subscribe(t, s, stream.KindDrafts, "P1")
	p2 := subscribe(t, s, stream.KindDrafts, "P2")
	next(t, p1)
	next(t, p2)

	require.NoError(t, s.SaveDraft(ctx, draft.Draft{AttemptID: "A1", Prompt: "add tests", UpdatedAt: t0}))
	env := next(t, p1)
	assert.Equal(t, "/drafts/A1", env.Patch[0].Path)
	assertQuiet(t, p2)

	require.NoError(t, s.SaveDraft(ctx, draft.Draft{AttemptID: "A1", Prompt: "add tests", Queued: true, UpdatedAt: t0}))
	env = next(t, p1)
	assert.Equal(t, patch.Operation{Op: patch.OpReplace, Path: "/drafts/A1/queued", Value: json.RawMessage(`true`)}, env.Patch[0])

	err := s.SaveDraft(ctx, draft.Draft{AttemptID: "A1", Queued: true, Sending: true})
	assert.Error(t, err)

	require.NoError(t, s.DeleteDraft(ctx, "A1"))
	env = next(t, p1)
	assert.Equal(t, patch.Patch{patch.Remove("/drafts/A1")}, env.Patch)

	require.NoError(t, s.DeleteDraft(ctx, "A1"), "clearing twice is a no-op")
	assertQuiet(t, p1)
}

func TestStore_LoadRecoversInterruptedSend(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	first := New(openStores(t, dir), stream.NewHub(), Options{})
	require.NoError(t, first.Load(ctx))
	seedAttempt(t, first, "P1", "t1", "A1")
	require.NoError(t, first.SaveDraft(ctx, draft.Draft{AttemptID: "A1", Prompt: "ship it", Sending: true, UpdatedAt: t0}))

	second := New(openStores(t, dir), stream.NewHub(), Options{})
	require.NoError(t, second.Load(ctx))

	d, ok := second.Draft("A1")
	require.True(t, ok)
	assert.False(t, d.Sending)
	assert.Equal(t, draft.StateEditing, d.State())
	assert.Equal(t, InterruptedError, d.Error)
	assert.Equal(t, "ship it", d.Prompt)

	tk, ok := second.Task("t1")
	require.True(t, ok)
	assert.Equal(t, "P1", tk.ProjectID)
	_, ok = second.Attempt("A1")
	assert.True(t, ok)
}

func TestStore_DeleteTaskCascades(t *testing.T) {
	s := newTestStore(t, Options{})
	ctx := context.Background()
	seedAttempt(t, s, "P1", "t1", "A1")

	_, _, err := s.PutProcess(ctx, execution.Process{ID: "p1", AttemptID: "A1", RunReason: execution.RunReasonCodingAgent, Status: execution.StatusRunning, StartedAt: t0})
	require.NoError(t, err)
	require.NoError(t, s.AppendRawLogs(ctx, "p1", execution.LogLine{Content: "x"}))
	require.NoError(t, s.SaveDraft(ctx, draft.Draft{AttemptID: "A1", Prompt: "p", UpdatedAt: t0}))

	procs := subscribe(t, s, stream.KindExecutionProcesses, "A1")
	drafts := subscribe(t, s, stream.KindDrafts, "P1")
	next(t, procs)
	next(t, drafts)

	_, attempts, err := s.DeleteTask(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, []string{"A1"}, attempts)

	assert.Equal(t, patch.Patch{patch.Remove("/execution_processes/p1")}, next(t, procs).Patch)
	assert.Equal(t, patch.Patch{patch.Remove("/drafts/A1")}, next(t, drafts).Patch)

	_, ok := s.Attempt("A1")
	assert.False(t, ok)
	_, ok = s.Draft("A1")
	assert.False(t, ok)
	assert.Empty(t, s.RawLogs("p1"))

	_, _, err = s.DeleteTask(ctx, "t1")
	assert.ErrorIs(t, err, task.ErrNotFound)
}

func TestStore_SubscribeRejectsBadTopic(t *testing.T) {
	s := newTestStore(t, Options{})
	_, err := s.Subscribe(stream.Topic{Kind: "sessions", Key: "x"}, "c1")
	assert.ErrorIs(t, err, stream.ErrUnknownKind)
}
