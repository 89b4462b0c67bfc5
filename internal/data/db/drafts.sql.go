// source: drafts.sql

package db

import (
	"context"
)

const deleteDraft = `-- name: DeleteDraft :execrows
DELETE FROM drafts WHERE attempt_id = ?
`

func (q *Queries) DeleteDraft(ctx context.Context, attemptID string) (int64, error) {
	result, err := q.db.ExecContext(ctx, deleteDraft, attemptID)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

const listDrafts = `-- name: ListDrafts :many
SELECT attempt_id, prompt, variant, image_ids, queued, sending, error, updated_at FROM drafts ORDER BY attempt_id
`

func (q *Queries) ListDrafts(ctx context.Context) ([]Draft, error) {
	rows, err := q.db.QueryContext(ctx, listDrafts)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Draft
	for rows.Next() {
		var i Draft
		if err := rows.Scan(
			&i.AttemptID,
			&i.Prompt,
			&i.Variant,
			&i.ImageIds,
			&i.Queued,
			&i.Sending,
			&i.Error,
			&i.UpdatedAt,
		); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const saveDraft = `-- name: SaveDraft :exec
INSERT INTO drafts (attempt_id, prompt, variant, image_ids, queued, sending, error, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (attempt_id) DO UPDATE SET
    prompt = excluded.prompt,
    variant = excluded.variant,
    image_ids = excluded.image_ids,
    queued = excluded.queued,
    sending = excluded.sending,
    error = excluded.error,
    updated_at = excluded.updated_at
`

type SaveDraftParams struct {
	AttemptID string
	Prompt    string
	Variant   string
	ImageIds  string
	Queued    int64
	Sending   int64
	Error     string
	UpdatedAt int64
}

func (q *Queries) SaveDraft(ctx context.Context, arg SaveDraftParams) error {
	_, err := q.db.ExecContext(ctx, saveDraft,
		arg.AttemptID,
		arg.Prompt,
		arg.Variant,
		arg.ImageIds,
		arg.Queued,
		arg.Sending,
		arg.Error,
		arg.UpdatedAt,
	)
	return err
}
