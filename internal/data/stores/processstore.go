package stores

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/colonyops/hivesync/internal/core/execution"
	"github.com/colonyops/hivesync/internal/data/db"
)

// ProcessStore implements execution.Store using SQLite.
type ProcessStore struct {
	db *db.DB
}

var _ execution.Store = (*ProcessStore)(nil)

// NewProcessStore creates a new SQLite-backed execution process store.
func NewProcessStore(db *db.DB) *ProcessStore {
	return &ProcessStore{db: db}
}

func (s *ProcessStore) List(ctx context.Context) ([]execution.Process, error) {
	rows, err := s.db.Queries().ListExecutionProcesses(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list execution processes: %w", err)
	}

	procs := make([]execution.Process, 0, len(rows))
	for _, row := range rows {
		procs = append(procs, rowToProcess(row))
	}
	return procs, nil
}

func (s *ProcessStore) Save(ctx context.Context, p execution.Process) error {
	params := db.SaveExecutionProcessParams{
		ID:        p.ID,
		AttemptID: p.AttemptID,
		RunReason: string(p.RunReason),
		Status:    string(p.Status),
		StartedAt: p.StartedAt.UnixNano(),
	}
	if p.ExitCode != nil {
		params.ExitCode = sql.NullInt64{Int64: int64(*p.ExitCode), Valid: true}
	}
	if p.CompletedAt != nil {
		params.CompletedAt = sql.NullInt64{Int64: p.CompletedAt.UnixNano(), Valid: true}
	}

	if err := s.db.Queries().SaveExecutionProcess(ctx, params); err != nil {
		return fmt.Errorf("failed to save execution process: %w", err)
	}
	return nil
}

// Delete removes a process. Returns execution.ErrNotFound if not found.
func (s *ProcessStore) Delete(ctx context.Context, id string) error {
	n, err := s.db.Queries().DeleteExecutionProcess(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to delete execution process: %w", err)
	}
	if n == 0 {
		return execution.ErrNotFound
	}
	return nil
}

func rowToProcess(row db.ExecutionProcess) execution.Process {
	p := execution.Process{
		ID:        row.ID,
		AttemptID: row.AttemptID,
		RunReason: execution.RunReason(row.RunReason),
		Status:    execution.Status(row.Status),
		StartedAt: time.Unix(0, row.StartedAt),
	}
	if row.ExitCode.Valid {
		code := int(row.ExitCode.Int64)
		p.ExitCode = &code
	}
	if row.CompletedAt.Valid {
		at := time.Unix(0, row.CompletedAt.Int64)
		p.CompletedAt = &at
	}
	return p
}
