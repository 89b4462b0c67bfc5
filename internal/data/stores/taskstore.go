package stores

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/colonyops/hivesync/internal/core/task"
	"github.com/colonyops/hivesync/internal/data/db"
)

// TaskStore implements task.Store using SQLite.
type TaskStore struct {
	db *db.DB
}

var _ task.Store = (*TaskStore)(nil)

// NewTaskStore creates a new SQLite-backed task store.
func NewTaskStore(db *db.DB) *TaskStore {
	return &TaskStore{db: db}
}

// List returns all tasks, hidden ones included.
func (s *TaskStore) List(ctx context.Context) ([]task.Task, error) {
	rows, err := s.db.Queries().ListTasks(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}

	tasks := make([]task.Task, 0, len(rows))
	for _, row := range rows {
		tasks = append(tasks, rowToTask(row))
	}
	return tasks, nil
}

// Save creates or updates a task.
func (s *TaskStore) Save(ctx context.Context, t task.Task) error {
	err := s.db.Queries().SaveTask(ctx, db.SaveTaskParams{
		ID:              t.ID,
		ProjectID:       t.ProjectID,
		Title:           t.Title,
		Description:     t.Description,
		Status:          string(t.Status),
		ParentAttemptID: sql.NullString{String: t.ParentAttemptID, Valid: t.ParentAttemptID != ""},
		CreatedAt:       t.CreatedAt.UnixNano(),
		UpdatedAt:       t.UpdatedAt.UnixNano(),
	})
	if err != nil {
		return fmt.Errorf("failed to save task: %w", err)
	}
	return nil
}

// Delete removes a task by ID. Returns task.ErrNotFound if not found.
func (s *TaskStore) Delete(ctx context.Context, id string) error {
	n, err := s.db.Queries().DeleteTask(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to delete task: %w", err)
	}
	if n == 0 {
		return task.ErrNotFound
	}
	return nil
}

func rowToTask(row db.Task) task.Task {
	return task.Task{
		ID:              row.ID,
		ProjectID:       row.ProjectID,
		Title:           row.Title,
		Description:     row.Description,
		Status:          task.Status(row.Status),
		ParentAttemptID: row.ParentAttemptID.String,
		CreatedAt:       time.Unix(0, row.CreatedAt),
		UpdatedAt:       time.Unix(0, row.UpdatedAt),
	}
}

// AttemptStore implements task.AttemptStore using SQLite.
type AttemptStore struct {
	db *db.DB
}

var _ task.AttemptStore = (*AttemptStore)(nil)

// NewAttemptStore creates a new SQLite-backed attempt store.
func NewAttemptStore(db *db.DB) *AttemptStore {
	return &AttemptStore{db: db}
}

func (s *AttemptStore) List(ctx context.Context) ([]task.Attempt, error) {
	rows, err := s.db.Queries().ListAttempts(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list attempts: %w", err)
	}

	attempts := make([]task.Attempt, 0, len(rows))
	for _, row := range rows {
		attempts = append(attempts, task.Attempt{
			ID:        row.ID,
			TaskID:    row.TaskID,
			ProjectID: row.ProjectID,
			Executor:  row.Executor,
			Branch:    row.Branch,
			CreatedAt: time.Unix(0, row.CreatedAt),
		})
	}
	return attempts, nil
}

func (s *AttemptStore) Save(ctx context.Context, a task.Attempt) error {
	err := s.db.Queries().SaveAttempt(ctx, db.SaveAttemptParams{
		ID:        a.ID,
		TaskID:    a.TaskID,
		ProjectID: a.ProjectID,
		Executor:  a.Executor,
		Branch:    a.Branch,
		CreatedAt: a.CreatedAt.UnixNano(),
	})
	if err != nil {
		return fmt.Errorf("failed to save attempt: %w", err)
	}
	return nil
}

// Delete removes an attempt. Returns task.ErrAttemptNotFound if not found.
func (s *AttemptStore) Delete(ctx context.Context, id string) error {
	n, err := s.db.Queries().DeleteAttempt(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to delete attempt: %w", err)
	}
	if n == 0 {
		return task.ErrAttemptNotFound
	}
	return nil
}
