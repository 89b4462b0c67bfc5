// Package execution defines agent execution processes and their logs.
package execution

import (
	"context"
	"errors"
	"time"
)

var ErrNotFound = errors.New("execution process not found")

// RunReason says why a process was started.
type RunReason string

const (
	RunReasonSetupScript   RunReason = "setupscript"
	RunReasonCodingAgent   RunReason = "codingagent"
	RunReasonCleanupScript RunReason = "cleanupscript"
	RunReasonDevServer     RunReason = "devserver"
)

// IsValid reports whether r is a known run reason.
func (r RunReason) IsValid() bool {
	switch r {
	case RunReasonSetupScript, RunReasonCodingAgent, RunReasonCleanupScript, RunReasonDevServer:
		return true
	default:
		return false
	}
}

// Status is the lifecycle state of a process.
type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusStopped   Status = "stopped"
)

// IsTerminal reports whether s is a final status.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusStopped
}

// IsValid reports whether s is a known status.
func (s Status) IsValid() bool {
	switch s {
	case StatusQueued, StatusRunning, StatusCompleted, StatusFailed, StatusStopped:
		return true
	default:
		return false
	}
}

// Process is one run of a script or agent inside an attempt.
type Process struct {
	ID          string     `json:"id"`
	AttemptID   string     `json:"attempt_id"`
	RunReason   RunReason  `json:"run_reason"`
	Status      Status     `json:"status"`
	ExitCode    *int       `json:"exit_code,omitempty"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// Active reports whether the process is a coding agent turn still in
// progress.
func (p Process) Active() bool {
	return p.RunReason == RunReasonCodingAgent && !p.Status.IsTerminal()
}

// LogStream identifies which output a raw line came from.
type LogStream string

const (
	LogStdout LogStream = "stdout"
	LogStderr LogStream = "stderr"
)

// LogLine is one raw output chunk.
type LogLine struct {
	Stream  LogStream `json:"stream"`
	Content string    `json:"content"`
}

// EntryType classifies a normalized conversation entry.
type EntryType string

const (
	EntryUserMessage      EntryType = "user_message"
	EntryAssistantMessage EntryType = "assistant_message"
	EntryToolUse          EntryType = "tool_use"
	EntrySystemMessage    EntryType = "system_message"
	EntryErrorMessage     EntryType = "error_message"
	EntryThinking         EntryType = "thinking"
)

// NormalizedEntry is one structured conversation entry.
type NormalizedEntry struct {
	Timestamp *time.Time `json:"timestamp,omitempty"`
	EntryType EntryType  `json:"entry_type"`
	Content   string     `json:"content"`
}

// Store persists processes. Logs are held in memory only.
type Store interface {
	List(ctx context.Context) ([]Process, error)
	Save(ctx context.Context, p Process) error
	// Delete removes a process. Returns ErrNotFound if it does not exist.
	Delete(ctx context.Context, id string) error
}
