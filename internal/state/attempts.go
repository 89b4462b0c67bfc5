package state

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/colonyops/hivesync/internal/core/diff"
	"github.com/colonyops/hivesync/internal/core/patch"
	"github.com/colonyops/hivesync/internal/core/stream"
	"github.com/colonyops/hivesync/internal/core/task"
)

// CreateAttempt records a new attempt. Its task must exist; the attempt
// inherits the task's project.
func (s *Store) CreateAttempt(ctx context.Context, a task.Attempt) (task.Attempt, error) {
	t, ok := s.Task(a.TaskID)
	if !ok {
		return task.Attempt{}, task.ErrNotFound
	}
	a.ProjectID = t.ProjectID

	s.attemptMu.Lock()
	defer s.attemptMu.Unlock()

	if err := s.stores.Attempts.Save(ctx, a); err != nil {
		return task.Attempt{}, fmt.Errorf("save attempt: %w", err)
	}
	s.attempts[a.ID] = a
	return a, nil
}

// Attempt returns an attempt by id.
func (s *Store) Attempt(id string) (task.Attempt, bool) {
	s.attemptMu.RLock()
	defer s.attemptMu.RUnlock()
	a, ok := s.attempts[id]
	return a, ok
}

// Attempts returns the attempts of a task ordered by creation.
func (s *Store) Attempts(taskID string) []task.Attempt {
	s.attemptMu.RLock()
	defer s.attemptMu.RUnlock()

	var out []task.Attempt
	for _, a := range s.attempts {
		if a.TaskID == taskID {
			out = append(out, a)
		}
	}
	slices.SortFunc(out, func(a, b task.Attempt) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return out
}

// AttemptRunning reports whether a coding agent turn is in progress for the
// attempt.
func (s *Store) AttemptRunning(attemptID string) (bool, error) {
	s.attemptMu.RLock()
	_, ok := s.attempts[attemptID]
	s.attemptMu.RUnlock()
	if !ok {
		return false, task.ErrAttemptNotFound
	}

	s.procMu.RLock()
	defer s.procMu.RUnlock()
	for _, p := range s.procs {
		if p.AttemptID == attemptID && p.Active() {
			return true, nil
		}
	}
	return false, nil
}

// deleteAttempt removes an attempt, its processes, logs, diff and draft.
// Each collection is cleared under its own lock.
func (s *Store) deleteAttempt(ctx context.Context, projectID, attemptID string) error {
	s.attemptMu.Lock()
	if err := s.stores.Attempts.Delete(ctx, attemptID); err != nil && !errors.Is(err, task.ErrAttemptNotFound) {
		s.attemptMu.Unlock()
		return fmt.Errorf("delete attempt %s: %w", attemptID, err)
	}
	delete(s.attempts, attemptID)
	s.attemptMu.Unlock()

	procIDs, err := s.deleteProcesses(ctx, attemptID)
	if err != nil {
		return err
	}

	s.logMu.Lock()
	for _, id := range procIDs {
		delete(s.rawLogs, id)
		delete(s.normalized, id)
	}
	s.logMu.Unlock()

	s.diffMu.Lock()
	if _, ok := s.diffs[attemptID]; ok {
		delete(s.diffs, attemptID)
		snap, err := patch.Snapshot(stream.KindDiff.Root(), patch.NewKeyed[diff.Entry](diffSchema).Value())
		if err == nil {
			s.publish(ctx, stream.NewTopic(stream.KindDiff, attemptID), snap)
		}
	}
	s.diffMu.Unlock()

	s.draftMu.Lock()
	defer s.draftMu.Unlock()
	if _, ok := s.drafts[attemptID]; ok {
		if err := s.stores.Drafts.Delete(ctx, attemptID); err != nil {
			return fmt.Errorf("delete draft %s: %w", attemptID, err)
		}
		delete(s.drafts, attemptID)
		s.publish(ctx, stream.NewTopic(stream.KindDrafts, projectID),
			patch.Patch{patch.Remove(patch.Pointer(stream.KindDrafts.Root(), attemptID))})
	}

	return nil
}
