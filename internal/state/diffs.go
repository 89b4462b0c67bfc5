package state

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/colonyops/hivesync/internal/core/diff"
	"github.com/colonyops/hivesync/internal/core/patch"
	"github.com/colonyops/hivesync/internal/core/stream"
	"github.com/colonyops/hivesync/internal/core/task"
)

// SetDiff replaces the diff of an attempt. Entries are keyed by path;
// subscribers receive the per-file changes.
func (s *Store) SetDiff(ctx context.Context, attemptID string, entries []diff.Entry) error {
	if _, ok := s.Attempt(attemptID); !ok {
		return task.ErrAttemptNotFound
	}

	next := patch.NewKeyed[diff.Entry](diffSchema)
	for _, e := range entries {
		if e.Path == "" {
			return fmt.Errorf("diff entry without path")
		}
		next.Items[e.Path] = e
	}

	s.diffMu.Lock()
	defer s.diffMu.Unlock()

	prev, ok := s.diffs[attemptID]
	if !ok {
		prev = patch.NewKeyed[diff.Entry](diffSchema)
	}
	s.diffs[attemptID] = next

	topic := stream.NewTopic(stream.KindDiff, attemptID)
	if s.hub.Subscribers(topic) == 0 {
		return nil
	}

	p, err := patch.DiffKeyed(stream.KindDiff.Root(), prev, next)
	if err != nil {
		return fmt.Errorf("diff entries: %w", err)
	}
	s.publish(ctx, topic, p)
	return nil
}

// Diff returns an attempt's diff ordered by path.
func (s *Store) Diff(attemptID string) []diff.Entry {
	s.diffMu.Lock()
	defer s.diffMu.Unlock()

	out := make([]diff.Entry, 0, len(s.diffs[attemptID].Items))
	for _, e := range s.diffs[attemptID].Items {
		out = append(out, e)
	}
	slices.SortFunc(out, func(a, b diff.Entry) int { return strings.Compare(a.Path, b.Path) })
	return out
}
