package state

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/colonyops/hivesync/internal/core/patch"
	"github.com/colonyops/hivesync/internal/core/stream"
	"github.com/colonyops/hivesync/internal/core/task"
)

// projectTasks returns the task collection of a project, creating it.
// Callers hold taskMu.
func (s *Store) projectTasks(projectID string) patch.Keyed[task.Task] {
	k, ok := s.tasks[projectID]
	if !ok {
		k = patch.NewKeyed[task.Task](taskSchema)
		s.tasks[projectID] = k
	}
	return k
}

// visibleTasks is the project's collection as subscribers see it. Hidden
// tasks are removed before diffing, never after.
func (s *Store) visibleTasks(projectID string) patch.Keyed[task.Task] {
	k, ok := s.tasks[projectID]
	if !ok {
		return patch.NewKeyed[task.Task](taskSchema)
	}
	return k.Filter(task.Visible)
}

// Tasks returns the visible tasks of a project ordered by creation.
func (s *Store) Tasks(projectID string) []task.Task {
	s.taskMu.Lock()
	defer s.taskMu.Unlock()

	out := make([]task.Task, 0, len(s.tasks[projectID].Items))
	for _, t := range s.tasks[projectID].Items {
		if task.Visible(t) {
			out = append(out, t)
		}
	}
	slices.SortFunc(out, func(a, b task.Task) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return out
}

// Task returns a task by id, hidden tasks included.
func (s *Store) Task(id string) (task.Task, bool) {
	s.taskMu.Lock()
	defer s.taskMu.Unlock()

	projectID, ok := s.taskIndex[id]
	if !ok {
		return task.Task{}, false
	}
	t, ok := s.tasks[projectID].Items[id]
	return t, ok
}

// PutTask creates or updates a task. A task never moves between projects;
// an update keeps the stored project.
func (s *Store) PutTask(ctx context.Context, t task.Task) (task.Task, error) {
	if !t.Status.IsValid() {
		return task.Task{}, fmt.Errorf("%w: %q", task.ErrInvalidStatus, t.Status)
	}

	s.taskMu.Lock()
	defer s.taskMu.Unlock()

	if projectID, ok := s.taskIndex[t.ID]; ok {
		t.ProjectID = projectID
	}
	prev, existed := s.projectTasks(t.ProjectID).Items[t.ID]
	return s.saveTask(ctx, prev, existed, t)
}

// UpdateTask applies fn to the stored task under the task lock. It returns
// task.ErrNotFound when the task does not exist, so a task removed by a
// concurrent delete is never brought back. An error from fn aborts the
// update.
func (s *Store) UpdateTask(ctx context.Context, id string, fn func(*task.Task) error) (task.Task, error) {
	s.taskMu.Lock()
	defer s.taskMu.Unlock()

	projectID, ok := s.taskIndex[id]
	if !ok {
		return task.Task{}, task.ErrNotFound
	}
	prev, ok := s.tasks[projectID].Items[id]
	if !ok {
		return task.Task{}, task.ErrNotFound
	}

	t := prev
	if err := fn(&t); err != nil {
		return task.Task{}, err
	}
	if !t.Status.IsValid() {
		return task.Task{}, fmt.Errorf("%w: %q", task.ErrInvalidStatus, t.Status)
	}
	t.ID = prev.ID
	t.ProjectID = prev.ProjectID
	return s.saveTask(ctx, prev, true, t)
}

// saveTask persists t over prev and publishes the visible change. Callers
// hold taskMu.
func (s *Store) saveTask(ctx context.Context, prev task.Task, existed bool, t task.Task) (task.Task, error) {
	if existed {
		t.CreatedAt = prev.CreatedAt
	}

	if err := s.stores.Tasks.Save(ctx, t); err != nil {
		return task.Task{}, fmt.Errorf("save task: %w", err)
	}
	s.projectTasks(t.ProjectID).Items[t.ID] = t
	s.taskIndex[t.ID] = t.ProjectID

	before := single(taskSchema, t.ID, prev, existed && task.Visible(prev))
	after := single(taskSchema, t.ID, t, task.Visible(t))
	p, err := patch.DiffKeyed(stream.KindTasks.Root(), before, after)
	if err != nil {
		return t, fmt.Errorf("diff task: %w", err)
	}
	s.publish(ctx, stream.NewTopic(stream.KindTasks, t.ProjectID), p)

	return t, nil
}

// DeleteTask removes a task together with its attempts and everything that
// hangs off them. It returns the ids of the removed attempts.
func (s *Store) DeleteTask(ctx context.Context, id string) (task.Task, []string, error) {
	s.taskMu.Lock()
	projectID, ok := s.taskIndex[id]
	if !ok {
		s.taskMu.Unlock()
		return task.Task{}, nil, task.ErrNotFound
	}
	coll := s.tasks[projectID]
	prev := coll.Items[id]

	if err := s.stores.Tasks.Delete(ctx, id); err != nil {
		s.taskMu.Unlock()
		return task.Task{}, nil, fmt.Errorf("delete task: %w", err)
	}
	delete(coll.Items, id)
	delete(s.taskIndex, id)

	if task.Visible(prev) {
		s.publish(ctx, stream.NewTopic(stream.KindTasks, projectID),
			patch.Patch{patch.Remove(patch.Pointer(stream.KindTasks.Root(), id))})
	}
	s.taskMu.Unlock()

	s.attemptMu.Lock()
	var attemptIDs []string
	for _, a := range s.attempts {
		if a.TaskID == id {
			attemptIDs = append(attemptIDs, a.ID)
		}
	}
	slices.Sort(attemptIDs)
	s.attemptMu.Unlock()

	for _, attemptID := range attemptIDs {
		if err := s.deleteAttempt(ctx, projectID, attemptID); err != nil {
			return prev, attemptIDs, err
		}
	}

	return prev, attemptIDs, nil
}
