package board

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/colonyops/hivesync/internal/core/draft"
	"github.com/colonyops/hivesync/internal/core/eventbus"
	"github.com/colonyops/hivesync/internal/core/task"
	"github.com/colonyops/hivesync/internal/data/stores"
)

func TestTaskService_Create(t *testing.T) {
	tests := []struct {
		name    string
		opts    CreateTaskOptions
		wantErr error
		want    task.Status
	}{
		{name: "defaults to todo", opts: CreateTaskOptions{ProjectID: "P1", Title: "Fix bug"}, want: task.StatusTodo},
		{name: "explicit status", opts: CreateTaskOptions{ProjectID: "P1", Title: "Review", Status: task.StatusInReview}, want: task.StatusInReview},
		{name: "missing project", opts: CreateTaskOptions{Title: "x"}, wantErr: ErrInvalidInput},
		{name: "blank title", opts: CreateTaskOptions{ProjectID: "P1", Title: "  "}, wantErr: ErrInvalidInput},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app, _ := newTestApp(t, nil)

			got, err := app.Tasks.Create(context.Background(), tt.opts)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.NotEmpty(t, got.ID)
			assert.Equal(t, tt.want, got.Status)
			assert.Equal(t, []task.Task{got}, app.Tasks.List("P1"))
		})
	}
}

func TestTaskService_UpdateAndEvents(t *testing.T) {
	app, bus := newTestApp(t, nil)
	ctx := context.Background()

	created, err := app.Tasks.Create(ctx, CreateTaskOptions{ProjectID: "P1", Title: "Fix bug"})
	require.NoError(t, err)

	title := "Fix login bug"
	status := task.StatusInProgress
	updated, err := app.Tasks.Update(ctx, created.ID, UpdateTaskOptions{Title: &title, Status: &status})
	require.NoError(t, err)
	assert.Equal(t, "Fix login bug", updated.Title)
	assert.Equal(t, task.StatusInProgress, updated.Status)
	assert.Equal(t, created.CreatedAt, updated.CreatedAt)

	empty := ""
	_, err = app.Tasks.Update(ctx, created.ID, UpdateTaskOptions{Title: &empty})
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = app.Tasks.Update(ctx, "missing", UpdateTaskOptions{Title: &title})
	assert.ErrorIs(t, err, task.ErrNotFound)

	bus.AssertPublished(t, eventbus.EventTaskCreated)
	bus.AssertPublished(t, eventbus.EventTaskUpdated)
}

func TestTaskService_UpdateNeverResurrectsDeleted(t *testing.T) {
	tests := []struct {
		name       string
		concurrent bool
	}{
		{name: "update after delete", concurrent: false},
		{name: "update racing delete", concurrent: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app, _ := newTestApp(t, nil)
			ctx := context.Background()
			title := "Renamed"

			for i := 0; i < 20; i++ {
				tk, err := app.Tasks.Create(ctx, CreateTaskOptions{ProjectID: "P1", Title: "Fix bug"})
				require.NoError(t, err)

				if tt.concurrent {
					var wg sync.WaitGroup
					wg.Add(2)
					go func() {
						defer wg.Done()
						_, _ = app.Tasks.Update(ctx, tk.ID, UpdateTaskOptions{Title: &title})
					}()
					go func() {
						defer wg.Done()
						assert.NoError(t, app.Tasks.Delete(ctx, tk.ID))
					}()
					wg.Wait()
				} else {
					require.NoError(t, app.Tasks.Delete(ctx, tk.ID))
					_, err = app.Tasks.Update(ctx, tk.ID, UpdateTaskOptions{Title: &title})
					assert.ErrorIs(t, err, task.ErrNotFound)
				}

				_, err = app.Tasks.Get(tk.ID)
				assert.ErrorIs(t, err, task.ErrNotFound)
			}

			assert.Empty(t, app.Tasks.List("P1"))
			persisted, err := stores.NewTaskStore(app.DB).List(ctx)
			require.NoError(t, err)
			assert.Empty(t, persisted)
		})
	}
}

func TestTaskService_DeleteForgetsAttemptDrafts(t *testing.T) {
	app, bus := newTestApp(t, nil)
	ctx := context.Background()

	tk, err := app.Tasks.Create(ctx, CreateTaskOptions{ProjectID: "P1", Title: "Fix bug"})
	require.NoError(t, err)
	a, err := app.Tasks.CreateAttempt(ctx, tk.ID, CreateAttemptOptions{Executor: "claude"})
	require.NoError(t, err)

	_, err = app.Drafts.Edit(ctx, a.ID, draft.Content{Prompt: "also add tests"})
	require.NoError(t, err)
	_, ok := app.State.Draft(a.ID)
	require.True(t, ok)

	require.NoError(t, app.Tasks.Delete(ctx, tk.ID))

	_, ok = app.State.Draft(a.ID)
	assert.False(t, ok)
	_, err = app.Tasks.Attempts(tk.ID)
	assert.ErrorIs(t, err, task.ErrNotFound)
	assert.ErrorIs(t, app.Tasks.Delete(ctx, tk.ID), task.ErrNotFound)

	bus.AssertPublished(t, eventbus.EventTaskDeleted)
}

func TestTaskService_CreateAttemptUnknownTask(t *testing.T) {
	app, _ := newTestApp(t, nil)

	_, err := app.Tasks.CreateAttempt(context.Background(), "missing", CreateAttemptOptions{})
	assert.ErrorIs(t, err, task.ErrNotFound)
}
