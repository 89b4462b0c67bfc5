// source: tasks.sql

package db

import (
	"context"
	"database/sql"
)

const deleteTask = `-- name: DeleteTask :execrows
DELETE FROM tasks WHERE id = ?
`

func (q *Queries) DeleteTask(ctx context.Context, id string) (int64, error) {
	result, err := q.db.ExecContext(ctx, deleteTask, id)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

const getTask = `-- name: GetTask :one
SELECT id, project_id, title, description, status, parent_attempt_id, created_at, updated_at FROM tasks WHERE id = ?
`

func (q *Queries) GetTask(ctx context.Context, id string) (Task, error) {
	row := q.db.QueryRowContext(ctx, getTask, id)
	var i Task
	err := row.Scan(
		&i.ID,
		&i.ProjectID,
		&i.Title,
		&i.Description,
		&i.Status,
		&i.ParentAttemptID,
		&i.CreatedAt,
		&i.UpdatedAt,
	)
	return i, err
}

const listTasks = `-- name: ListTasks :many
SELECT id, project_id, title, description, status, parent_attempt_id, created_at, updated_at FROM tasks ORDER BY created_at, id
`

func (q *Queries) ListTasks(ctx context.Context) ([]Task, error) {
	rows, err := q.db.QueryContext(ctx, listTasks)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Task
	for rows.Next() {
		var i Task
		if err := rows.Scan(
			&i.ID,
			&i.ProjectID,
			&i.Title,
			&i.Description,
			&i.Status,
			&i.ParentAttemptID,
			&i.CreatedAt,
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

const saveTask = `-- name: SaveTask :exec
INSERT INTO tasks (id, project_id, title, description, status, parent_attempt_id, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (id) DO UPDATE SET
    project_id = excluded.project_id,
    title = excluded.title,
    description = excluded.description,
    status = excluded.status,
    parent_attempt_id = excluded.parent_attempt_id,
    updated_at = excluded.updated_at
`

type SaveTaskParams struct {
	ID              string
	ProjectID       string
	Title           string
	Description     string
	Status          string
	ParentAttemptID sql.NullString
	CreatedAt       int64
	UpdatedAt       int64
}

func (q *Queries) SaveTask(ctx context.Context, arg SaveTaskParams) error {
	_, err := q.db.ExecContext(ctx, saveTask,
		arg.ID,
		arg.ProjectID,
		arg.Title,
		arg.Description,
		arg.Status,
		arg.ParentAttemptID,
		arg.CreatedAt,
		arg.UpdatedAt,
	)
	return err
}
