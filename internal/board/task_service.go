package board

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/colonyops/hivesync/internal/core/eventbus"
	"github.com/colonyops/hivesync/internal/core/task"
	"github.com/colonyops/hivesync/internal/state"
)

// ErrInvalidInput marks a request rejected before touching state.
var ErrInvalidInput = errors.New("invalid input")

// CreateTaskOptions configures task creation.
type CreateTaskOptions struct {
	ProjectID       string      `json:"project_id"`
	Title           string      `json:"title"`
	Description     string      `json:"description"`
	Status          task.Status `json:"status"` // defaults to todo
	ParentAttemptID string      `json:"parent_attempt_id,omitempty"`
}

// UpdateTaskOptions lists the fields to change. Nil fields are left alone.
type UpdateTaskOptions struct {
	Title       *string      `json:"title,omitempty"`
	Description *string      `json:"description,omitempty"`
	Status      *task.Status `json:"status,omitempty"`
}

// CreateAttemptOptions configures attempt creation.
type CreateAttemptOptions struct {
	Executor string `json:"executor"`
	Branch   string `json:"branch,omitempty"`
}

// attemptForgetter drops per-attempt coordination state.
type attemptForgetter interface {
	Forget(attemptID string)
}

// TaskService is the task CRUD API. Every change flows through the state
// store, which streams it to task subscribers.
type TaskService struct {
	store  *state.Store
	bus    *eventbus.EventBus
	drafts attemptForgetter
	log    zerolog.Logger
	now    func() time.Time
}

// NewTaskService creates a new TaskService.
func NewTaskService(store *state.Store, bus *eventbus.EventBus, drafts attemptForgetter, log zerolog.Logger) *TaskService {
	return &TaskService{
		store:  store,
		bus:    bus,
		drafts: drafts,
		log:    log.With().Str("component", "task-service").Logger(),
		now:    time.Now,
	}
}

// List returns the visible tasks of a project.
func (s *TaskService) List(projectID string) []task.Task {
	return s.store.Tasks(projectID)
}

// Get returns a task by id.
func (s *TaskService) Get(id string) (task.Task, error) {
	t, ok := s.store.Task(id)
	if !ok {
		return task.Task{}, task.ErrNotFound
	}
	return t, nil
}

// Create adds a task to a project.
func (s *TaskService) Create(ctx context.Context, opts CreateTaskOptions) (task.Task, error) {
	if strings.TrimSpace(opts.ProjectID) == "" {
		return task.Task{}, fmt.Errorf("%w: project id is required", ErrInvalidInput)
	}
	if strings.TrimSpace(opts.Title) == "" {
		return task.Task{}, fmt.Errorf("%w: title is required", ErrInvalidInput)
	}
	status := opts.Status
	if status == "" {
		status = task.StatusTodo
	}

	now := s.now()
	t, err := s.store.PutTask(ctx, task.Task{
		ID:              uuid.NewString(),
		ProjectID:       opts.ProjectID,
		Title:           opts.Title,
		Description:     opts.Description,
		Status:          status,
		ParentAttemptID: opts.ParentAttemptID,
		CreatedAt:       now,
		UpdatedAt:       now,
	})
	if err != nil {
		return task.Task{}, fmt.Errorf("create task: %w", err)
	}

	s.bus.PublishTaskCreated(eventbus.TaskCreatedPayload{Task: t})
	s.log.Debug().Str("task_id", t.ID).Str("project_id", t.ProjectID).Msg("task created")
	return t, nil
}

// Update applies opts to a task.
func (s *TaskService) Update(ctx context.Context, id string, opts UpdateTaskOptions) (task.Task, error) {
	if opts.Title != nil && strings.TrimSpace(*opts.Title) == "" {
		return task.Task{}, fmt.Errorf("%w: title cannot be empty", ErrInvalidInput)
	}

	now := s.now()
	t, err := s.store.UpdateTask(ctx, id, func(t *task.Task) error {
		if opts.Title != nil {
			t.Title = *opts.Title
		}
		if opts.Description != nil {
			t.Description = *opts.Description
		}
		if opts.Status != nil {
			t.Status = *opts.Status
		}
		t.UpdatedAt = now
		return nil
	})
	if err != nil {
		return task.Task{}, fmt.Errorf("update task: %w", err)
	}

	s.bus.PublishTaskUpdated(eventbus.TaskUpdatedPayload{Task: t})
	return t, nil
}

// Delete removes a task and everything attached to its attempts.
func (s *TaskService) Delete(ctx context.Context, id string) error {
	t, attemptIDs, err := s.store.DeleteTask(ctx, id)
	if err != nil {
		return err
	}
	for _, attemptID := range attemptIDs {
		s.drafts.Forget(attemptID)
	}

	s.bus.PublishTaskDeleted(eventbus.TaskDeletedPayload{TaskID: id, ProjectID: t.ProjectID})
	s.log.Debug().Str("task_id", id).Int("attempts", len(attemptIDs)).Msg("task deleted")
	return nil
}

// CreateAttempt starts a new attempt for a task.
func (s *TaskService) CreateAttempt(ctx context.Context, taskID string, opts CreateAttemptOptions) (task.Attempt, error) {
	a, err := s.store.CreateAttempt(ctx, task.Attempt{
		ID:        uuid.NewString(),
		TaskID:    taskID,
		Executor:  opts.Executor,
		Branch:    opts.Branch,
		CreatedAt: s.now(),
	})
	if err != nil {
		return task.Attempt{}, fmt.Errorf("create attempt: %w", err)
	}

	s.bus.PublishAttemptCreated(eventbus.AttemptCreatedPayload{Attempt: a})
	return a, nil
}

// Attempts returns the attempts of a task.
func (s *TaskService) Attempts(taskID string) ([]task.Attempt, error) {
	if _, err := s.Get(taskID); err != nil {
		return nil, err
	}
	return s.store.Attempts(taskID), nil
}
