package stores

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/colonyops/hivesync/internal/core/draft"
	"github.com/colonyops/hivesync/internal/data/db"
)

// DraftStore implements draft.Store using SQLite.
type DraftStore struct {
	db *db.DB
}

var _ draft.Store = (*DraftStore)(nil)

// NewDraftStore creates a new SQLite-backed draft store.
func NewDraftStore(db *db.DB) *DraftStore {
	return &DraftStore{db: db}
}

func (s *DraftStore) List(ctx context.Context) ([]draft.Draft, error) {
	rows, err := s.db.Queries().ListDrafts(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list drafts: %w", err)
	}

	drafts := make([]draft.Draft, 0, len(rows))
	for _, row := range rows {
		d, err := rowToDraft(row)
		if err != nil {
			return nil, fmt.Errorf("failed to convert draft %s: %w", row.AttemptID, err)
		}
		drafts = append(drafts, d)
	}
	return drafts, nil
}

func (s *DraftStore) Save(ctx context.Context, d draft.Draft) error {
	ids := d.ImageIDs
	if ids == nil {
		ids = []string{}
	}
	imageIDs, err := json.Marshal(ids)
	if err != nil {
		return fmt.Errorf("failed to marshal image ids: %w", err)
	}

	err = s.db.Queries().SaveDraft(ctx, db.SaveDraftParams{
		AttemptID: d.AttemptID,
		Prompt:    d.Prompt,
		Variant:   d.Variant,
		ImageIds:  string(imageIDs),
		Queued:    boolToInt(d.Queued),
		Sending:   boolToInt(d.Sending),
		Error:     d.Error,
		UpdatedAt: d.UpdatedAt.UnixNano(),
	})
	if err != nil {
		return fmt.Errorf("failed to save draft: %w", err)
	}
	return nil
}

// Delete removes a draft. Deleting a missing draft is not an error.
func (s *DraftStore) Delete(ctx context.Context, attemptID string) error {
	if _, err := s.db.Queries().DeleteDraft(ctx, attemptID); err != nil {
		return fmt.Errorf("failed to delete draft: %w", err)
	}
	return nil
}

func rowToDraft(row db.Draft) (draft.Draft, error) {
	ids := []string{}
	if row.ImageIds != "" {
		if err := json.Unmarshal([]byte(row.ImageIds), &ids); err != nil {
			return draft.Draft{}, fmt.Errorf("failed to unmarshal image ids: %w", err)
		}
	}

	return draft.Draft{
		AttemptID: row.AttemptID,
		Prompt:    row.Prompt,
		Variant:   row.Variant,
		ImageIDs:  ids,
		Queued:    row.Queued != 0,
		Sending:   row.Sending != 0,
		Error:     row.Error,
		UpdatedAt: time.Unix(0, row.UpdatedAt),
	}, nil
}

func boolToInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}
