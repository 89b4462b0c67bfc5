// source: processes.sql

package db

import (
	"context"
	"database/sql"
)

const deleteExecutionProcess = `-- name: DeleteExecutionProcess :execrows
DELETE FROM execution_processes WHERE id = ?
`

func (q *Queries) DeleteExecutionProcess(ctx context.Context, id string) (int64, error) {
	result, err := q.db.ExecContext(ctx, deleteExecutionProcess, id)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

const listExecutionProcesses = `-- name: ListExecutionProcesses :many
SELECT id, attempt_id, run_reason, status, exit_code, started_at, completed_at FROM execution_processes ORDER BY started_at, id
`

func (q *Queries) ListExecutionProcesses(ctx context.Context) ([]ExecutionProcess, error) {
	rows, err := q.db.QueryContext(ctx, listExecutionProcesses)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []ExecutionProcess
	for rows.Next() {
		var i ExecutionProcess
		if err := rows.Scan(
			&i.ID,
			&i.AttemptID,
			&i.RunReason,
			&i.Status,
			&i.ExitCode,
			&i.StartedAt,
			&i.CompletedAt,
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

const saveExecutionProcess = `-- name: SaveExecutionProcess :exec
INSERT INTO execution_processes (id, attempt_id, run_reason, status, exit_code, started_at, completed_at)
VALUES (?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (id) DO UPDATE SET
    attempt_id = excluded.attempt_id,
    run_reason = excluded.run_reason,
    status = excluded.status,
    exit_code = excluded.exit_code,
    started_at = excluded.started_at,
    completed_at = excluded.completed_at
`

type SaveExecutionProcessParams struct {
	ID          string
	AttemptID   string
	RunReason   string
	Status      string
	ExitCode    sql.NullInt64
	StartedAt   int64
	CompletedAt sql.NullInt64
}

func (q *Queries) SaveExecutionProcess(ctx context.Context, arg SaveExecutionProcessParams) error {
	_, err := q.db.ExecContext(ctx, saveExecutionProcess,
		arg.ID,
		arg.AttemptID,
		arg.RunReason,
		arg.Status,
		arg.ExitCode,
		arg.StartedAt,
		arg.CompletedAt,
	)
	return err
}
