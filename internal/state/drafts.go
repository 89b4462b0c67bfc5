package state

import (
	"context"
	"fmt"

	"github.com/colonyops/hivesync/internal/core/draft"
	"github.com/colonyops/hivesync/internal/core/patch"
	"github.com/colonyops/hivesync/internal/core/stream"
	"github.com/colonyops/hivesync/internal/core/task"
)

// projectDrafts returns the drafts of every attempt in a project. Callers
// hold attemptMu and draftMu.
func (s *Store) projectDrafts(projectID string) patch.Keyed[draft.Draft] {
	k := patch.NewKeyed[draft.Draft](draftSchema)
	for id, d := range s.drafts {
		if a, ok := s.attempts[id]; ok && a.ProjectID == projectID {
			k.Items[id] = d
		}
	}
	return k
}

// Draft returns the stored draft of an attempt.
func (s *Store) Draft(attemptID string) (draft.Draft, bool) {
	s.draftMu.RLock()
	defer s.draftMu.RUnlock()
	d, ok := s.drafts[attemptID]
	return d, ok
}

// SaveDraft persists d and publishes the change to the attempt's project.
func (s *Store) SaveDraft(ctx context.Context, d draft.Draft) error {
	a, ok := s.Attempt(d.AttemptID)
	if !ok {
		return task.ErrAttemptNotFound
	}
	if d.Queued && d.Sending {
		return fmt.Errorf("draft %s cannot be queued and sending", d.AttemptID)
	}
	if d.ImageIDs == nil {
		d.ImageIDs = []string{}
	}

	s.draftMu.Lock()
	defer s.draftMu.Unlock()

	prev, existed := s.drafts[d.AttemptID]
	if err := s.stores.Drafts.Save(ctx, d); err != nil {
		return fmt.Errorf("save draft: %w", err)
	}
	s.drafts[d.AttemptID] = d

	p, err := patch.DiffKeyed(stream.KindDrafts.Root(),
		single(draftSchema, d.AttemptID, prev, existed),
		single(draftSchema, d.AttemptID, d, true))
	if err != nil {
		return fmt.Errorf("diff draft: %w", err)
	}
	s.publish(ctx, stream.NewTopic(stream.KindDrafts, a.ProjectID), p)
	return nil
}

// DeleteDraft clears an attempt's draft. Clearing a missing draft is a
// no-op.
func (s *Store) DeleteDraft(ctx context.Context, attemptID string) error {
	a, ok := s.Attempt(attemptID)
	if !ok {
		return task.ErrAttemptNotFound
	}

	s.draftMu.Lock()
	defer s.draftMu.Unlock()

	if _, ok := s.drafts[attemptID]; !ok {
		return nil
	}
	if err := s.stores.Drafts.Delete(ctx, attemptID); err != nil {
		return fmt.Errorf("delete draft: %w", err)
	}
	delete(s.drafts, attemptID)

	s.publish(ctx, stream.NewTopic(stream.KindDrafts, a.ProjectID),
		patch.Patch{patch.Remove(patch.Pointer(stream.KindDrafts.Root(), attemptID))})
	return nil
}
