package board

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/colonyops/hivesync/internal/core/draft"
	"github.com/colonyops/hivesync/internal/core/eventbus"
	"github.com/colonyops/hivesync/internal/core/execution"
	"github.com/colonyops/hivesync/internal/core/task"
)

func seedAttempt(t *testing.T, app *App) task.Attempt {
	t.Helper()
	ctx := context.Background()
	tk, err := app.Tasks.Create(ctx, CreateTaskOptions{ProjectID: "P1", Title: "Fix bug"})
	require.NoError(t, err)
	a, err := app.Tasks.CreateAttempt(ctx, tk.ID, CreateAttemptOptions{Executor: "claude"})
	require.NoError(t, err)
	return a
}

func TestExecutionService_StartFinish(t *testing.T) {
	app, bus := newTestApp(t, nil)
	ctx := context.Background()
	a := seedAttempt(t, app)

	p, err := app.Executions.Start(ctx, a.ID, "")
	require.NoError(t, err)
	assert.Equal(t, execution.RunReasonCodingAgent, p.RunReason)
	assert.Equal(t, execution.StatusRunning, p.Status)

	running, err := app.State.AttemptRunning(a.ID)
	require.NoError(t, err)
	assert.True(t, running)

	_, err = app.Executions.Finish(ctx, p.ID, FinishOptions{Status: execution.StatusRunning})
	assert.ErrorIs(t, err, ErrInvalidInput)

	code := 0
	done, err := app.Executions.Finish(ctx, p.ID, FinishOptions{Status: execution.StatusCompleted, ExitCode: &code})
	require.NoError(t, err)
	assert.Equal(t, execution.StatusCompleted, done.Status)
	require.NotNil(t, done.CompletedAt)
	require.NotNil(t, done.ExitCode)

	again, err := app.Executions.Stop(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, execution.StatusCompleted, again.Status, "finishing twice keeps the first outcome")

	_, err = app.Executions.Start(ctx, "missing", execution.RunReasonSetupScript)
	assert.ErrorIs(t, err, task.ErrAttemptNotFound)
	_, err = app.Executions.Start(ctx, a.ID, "compile")
	assert.ErrorIs(t, err, ErrInvalidInput)
	_, err = app.Executions.Get("missing")
	assert.ErrorIs(t, err, execution.ErrNotFound)

	bus.AssertPublished(t, eventbus.EventExecutionStarted)
	bus.AssertPublished(t, eventbus.EventExecutionFinished)
}

func TestExecutionService_Logs(t *testing.T) {
	app, _ := newTestApp(t, nil)
	ctx := context.Background()
	a := seedAttempt(t, app)

	p, err := app.Executions.Start(ctx, a.ID, execution.RunReasonSetupScript)
	require.NoError(t, err)

	require.NoError(t, app.Executions.AppendRawLogs(ctx, p.ID, []execution.LogLine{{Content: "npm install"}}))
	require.NoError(t, app.Executions.AppendNormalizedLogs(ctx, p.ID, []execution.NormalizedEntry{
		{EntryType: execution.EntrySystemMessage, Content: "setup"},
	}))

	raw, err := app.Executions.RawLogs(p.ID)
	require.NoError(t, err)
	assert.Equal(t, []execution.LogLine{{Stream: execution.LogStdout, Content: "npm install"}}, raw)

	norm, err := app.Executions.NormalizedLogs(p.ID)
	require.NoError(t, err)
	require.Len(t, norm, 1)
	assert.NotNil(t, norm[0].Timestamp)

	require.NoError(t, app.Executions.ResetLogs(ctx, p.ID))
	raw, err = app.Executions.RawLogs(p.ID)
	require.NoError(t, err)
	assert.Empty(t, raw)

	_, err = app.Executions.RawLogs("missing")
	assert.ErrorIs(t, err, execution.ErrNotFound)
}

// A draft queued during a running turn is dispatched as a new turn once
// the running one finishes.
func TestExecutionService_TurnEndFlushesQueuedDraft(t *testing.T) {
	app, bus := newTestApp(t, nil)
	ctx := context.Background()
	a := seedAttempt(t, app)

	first, err := app.Executions.Start(ctx, a.ID, execution.RunReasonCodingAgent)
	require.NoError(t, err)

	_, err = app.Drafts.Edit(ctx, a.ID, draft.Content{Prompt: "also add tests"})
	require.NoError(t, err)
	d, err := app.Drafts.Queue(ctx, a.ID)
	require.NoError(t, err)
	assert.True(t, d.Queued)

	_, err = app.Executions.Finish(ctx, first.ID, FinishOptions{Status: execution.StatusCompleted})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		_, state := app.Drafts.Get(a.ID)
		return state == draft.StateIdle
	}, 2*time.Second, 10*time.Millisecond)
	bus.AssertPublished(t, eventbus.EventDraftSent)

	var turn execution.Process
	for _, p := range app.Executions.List(a.ID) {
		if p.ID != first.ID {
			turn = p
		}
	}
	require.NotEmpty(t, turn.ID, "follow-up started a new turn")
	assert.Equal(t, execution.RunReasonCodingAgent, turn.RunReason)
	assert.Equal(t, execution.StatusRunning, turn.Status)

	entries, err := app.Executions.NormalizedLogs(turn.ID)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, execution.EntryUserMessage, entries[0].EntryType)
	assert.Equal(t, "also add tests", entries[0].Content)
}

func TestExecutionService_SetupScriptDoesNotFlush(t *testing.T) {
	app, bus := newTestApp(t, nil)
	ctx := context.Background()
	a := seedAttempt(t, app)

	agent, err := app.Executions.Start(ctx, a.ID, execution.RunReasonCodingAgent)
	require.NoError(t, err)
	setup, err := app.Executions.Start(ctx, a.ID, execution.RunReasonSetupScript)
	require.NoError(t, err)

	_, err = app.Drafts.Edit(ctx, a.ID, draft.Content{Prompt: "next"})
	require.NoError(t, err)
	_, err = app.Drafts.Queue(ctx, a.ID)
	require.NoError(t, err)

	_, err = app.Executions.Finish(ctx, setup.ID, FinishOptions{Status: execution.StatusCompleted})
	require.NoError(t, err)
	bus.AssertNotPublished(t, eventbus.EventDraftSent, 100*time.Millisecond)

	_, state := app.Drafts.Get(a.ID)
	assert.Equal(t, draft.StateQueued, state)

	_, err = app.Executions.Stop(ctx, agent.ID)
	require.NoError(t, err)
	bus.AssertPublished(t, eventbus.EventDraftSent)
}
