package board

import (
	"context"
	"fmt"
	"io"

	"github.com/colonyops/hivesync/internal/core/diff"
	"github.com/colonyops/hivesync/internal/state"
)

// DiffService publishes the current diff of an attempt's worktree.
type DiffService struct {
	store *state.Store
}

// NewDiffService creates a new DiffService.
func NewDiffService(store *state.Store) *DiffService {
	return &DiffService{store: store}
}

// Get returns the current diff of an attempt.
func (s *DiffService) Get(attemptID string) []diff.Entry {
	return s.store.Diff(attemptID)
}

// Set replaces the diff of an attempt with entries.
func (s *DiffService) Set(ctx context.Context, attemptID string, entries []diff.Entry) error {
	for _, e := range entries {
		if e.Path == "" {
			return fmt.Errorf("%w: diff entry without path", ErrInvalidInput)
		}
	}
	return s.store.SetDiff(ctx, attemptID, entries)
}

// SetUnified replaces the diff of an attempt with the files in a unified
// diff.
func (s *DiffService) SetUnified(ctx context.Context, attemptID string, r io.Reader) ([]diff.Entry, error) {
	entries, err := diff.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}
	if err := s.store.SetDiff(ctx, attemptID, entries); err != nil {
		return nil, err
	}
	return entries, nil
}
