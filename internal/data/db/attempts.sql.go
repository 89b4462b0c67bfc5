// source: attempts.sql

package db

import (
	"context"
)

const deleteAttempt = `-- name: DeleteAttempt :execrows
DELETE FROM attempts WHERE id = ?
`

func (q *Queries) DeleteAttempt(ctx context.Context, id string) (int64, error) {
	result, err := q.db.ExecContext(ctx, deleteAttempt, id)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

const listAttempts = `-- name: ListAttempts :many
SELECT id, task_id, project_id, executor, branch, created_at FROM attempts ORDER BY created_at, id
`

func (q *Queries) ListAttempts(ctx context.Context) ([]Attempt, error) {
	rows, err := q.db.QueryContext(ctx, listAttempts)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Attempt
	for rows.Next() {
		var i Attempt
		if err := rows.Scan(
			&i.ID,
			&i.TaskID,
			&i.ProjectID,
			&i.Executor,
			&i.Branch,
			&i.CreatedAt,
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

const saveAttempt = `-- name: SaveAttempt :exec
INSERT INTO attempts (id, task_id, project_id, executor, branch, created_at)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT (id) DO UPDATE SET
    task_id = excluded.task_id,
    project_id = excluded.project_id,
    executor = excluded.executor,
    branch = excluded.branch
`

type SaveAttemptParams struct {
	ID        string
	TaskID    string
	ProjectID string
	Executor  string
	Branch    string
	CreatedAt int64
}

func (q *Queries) SaveAttempt(ctx context.Context, arg SaveAttemptParams) error {
	_, err := q.db.ExecContext(ctx, saveAttempt,
		arg.ID,
		arg.TaskID,
		arg.ProjectID,
		arg.Executor,
		arg.Branch,
		arg.CreatedAt,
	)
	return err
}
