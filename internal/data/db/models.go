package db

import (
	"database/sql"
)

type Attempt struct {
	ID        string
	TaskID    string
	ProjectID string
	Executor  string
	Branch    string
	CreatedAt int64
}

type Draft struct {
	AttemptID string
	Prompt    string
	Variant   string
	ImageIds  string
	Queued    int64
	Sending   int64
	Error     string
	UpdatedAt int64
}

type ExecutionProcess struct {
	ID          string
	AttemptID   string
	RunReason   string
	Status      string
	ExitCode    sql.NullInt64
	StartedAt   int64
	CompletedAt sql.NullInt64
}

type Task struct {
	ID              string
	ProjectID       string
	Title           string
	Description     string
	Status          string
	ParentAttemptID sql.NullString
	CreatedAt       int64
	UpdatedAt       int64
}
