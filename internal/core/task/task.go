// Package task defines kanban tasks and the attempts that run agents
// against them.
package task

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound        = errors.New("task not found")
	ErrAttemptNotFound = errors.New("attempt not found")
	ErrInvalidStatus   = errors.New("invalid task status")
)

// Status is the kanban column of a task.
type Status string

const (
	StatusTodo       Status = "todo"
	StatusInProgress Status = "inprogress"
	StatusInReview   Status = "inreview"
	StatusDone       Status = "done"
	StatusCancelled  Status = "cancelled"
	// StatusAgent marks internal orchestration tasks. They are persisted
	// like any other task but never reach task-stream subscribers.
	StatusAgent Status = "agent"
)

// IsValid reports whether s is a known status.
func (s Status) IsValid() bool {
	switch s {
	case StatusTodo, StatusInProgress, StatusInReview, StatusDone, StatusCancelled, StatusAgent:
		return true
	default:
		return false
	}
}

// Task is a unit of work on a project board.
type Task struct {
	ID              string    `json:"id"`
	ProjectID       string    `json:"project_id"`
	Title           string    `json:"title"`
	Description     string    `json:"description"`
	Status          Status    `json:"status"`
	ParentAttemptID string    `json:"parent_attempt_id,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// Hidden reports whether the task is internal bookkeeping.
func (t Task) Hidden() bool {
	return t.Status == StatusAgent
}

// Visible is the inverse of Hidden, usable as a collection filter.
func Visible(t Task) bool {
	return !t.Hidden()
}

// Attempt is one agent run against a task. Drafts and execution processes
// hang off attempts.
type Attempt struct {
	ID        string    `json:"id"`
	TaskID    string    `json:"task_id"`
	ProjectID string    `json:"project_id"`
	Executor  string    `json:"executor"`
	Branch    string    `json:"branch,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Store persists tasks.
type Store interface {
	// List returns every task.
	List(ctx context.Context) ([]Task, error)
	// Save inserts or updates a task.
	Save(ctx context.Context, t Task) error
	// Delete removes a task. Returns ErrNotFound if it does not exist.
	Delete(ctx context.Context, id string) error
}

// AttemptStore persists attempts.
type AttemptStore interface {
	List(ctx context.Context) ([]Attempt, error)
	Save(ctx context.Context, a Attempt) error
	// Delete removes an attempt. Returns ErrAttemptNotFound if it does not exist.
	Delete(ctx context.Context, id string) error
}
