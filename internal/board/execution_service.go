package board

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/colonyops/hivesync/internal/core/eventbus"
	"github.com/colonyops/hivesync/internal/core/execution"
	"github.com/colonyops/hivesync/internal/state"
)

// FinishOptions describes how a process ended.
type FinishOptions struct {
	Status   execution.Status `json:"status"`
	ExitCode *int             `json:"exit_code,omitempty"`
}

// ExecutionService ingests orchestration events: processes starting and
// finishing, and the log lines they produce.
type ExecutionService struct {
	store *state.Store
	bus   *eventbus.EventBus
	log   zerolog.Logger
	now   func() time.Time

	mu     sync.RWMutex
	onTurn []func(attemptID string)
}

// NewExecutionService creates a new ExecutionService.
func NewExecutionService(store *state.Store, bus *eventbus.EventBus, log zerolog.Logger) *ExecutionService {
	return &ExecutionService{
		store: store,
		bus:   bus,
		log:   log.With().Str("component", "execution-service").Logger(),
		now:   time.Now,
	}
}

// OnTurnCompleted registers fn to run when an attempt's last active coding
// agent process ends.
func (s *ExecutionService) OnTurnCompleted(fn func(attemptID string)) {
	s.mu.Lock()
	s.onTurn = append(s.onTurn, fn)
	s.mu.Unlock()
}

// Get returns a process by id.
func (s *ExecutionService) Get(id string) (execution.Process, error) {
	p, ok := s.store.Process(id)
	if !ok {
		return execution.Process{}, execution.ErrNotFound
	}
	return p, nil
}

// List returns the processes of an attempt.
func (s *ExecutionService) List(attemptID string) []execution.Process {
	return s.store.Processes(attemptID)
}

// Start records a new running process for an attempt.
func (s *ExecutionService) Start(ctx context.Context, attemptID string, reason execution.RunReason) (execution.Process, error) {
	if reason == "" {
		reason = execution.RunReasonCodingAgent
	}
	if !reason.IsValid() {
		return execution.Process{}, fmt.Errorf("%w: unknown run reason %q", ErrInvalidInput, reason)
	}
	p := execution.Process{
		ID:        uuid.NewString(),
		AttemptID: attemptID,
		RunReason: reason,
		Status:    execution.StatusRunning,
		StartedAt: s.now(),
	}
	if _, _, err := s.store.PutProcess(ctx, p); err != nil {
		return execution.Process{}, fmt.Errorf("start process: %w", err)
	}

	s.bus.PublishExecutionStarted(eventbus.ExecutionStartedPayload{Process: p})
	s.log.Info().Str("process_id", p.ID).Str("attempt_id", attemptID).Str("run_reason", string(reason)).Msg("process started")
	return p, nil
}

// Finish moves a process to a terminal status. Finishing an already
// terminal process is a no-op.
func (s *ExecutionService) Finish(ctx context.Context, id string, opts FinishOptions) (execution.Process, error) {
	if !opts.Status.IsTerminal() {
		return execution.Process{}, fmt.Errorf("%w: status %q is not terminal", ErrInvalidInput, opts.Status)
	}

	p, err := s.Get(id)
	if err != nil {
		return execution.Process{}, err
	}
	if p.Status.IsTerminal() {
		return p, nil
	}

	now := s.now()
	p.Status = opts.Status
	p.ExitCode = opts.ExitCode
	p.CompletedAt = &now

	if _, _, err := s.store.PutProcess(ctx, p); err != nil {
		return execution.Process{}, fmt.Errorf("finish process: %w", err)
	}

	s.bus.PublishExecutionFinished(eventbus.ExecutionFinishedPayload{Process: p})
	s.log.Info().Str("process_id", id).Str("status", string(p.Status)).Msg("process finished")

	if p.RunReason == execution.RunReasonCodingAgent {
		s.turnEnded(p.AttemptID)
	}
	return p, nil
}

// Stop ends a process as stopped. The agent turn ends immediately, so a
// queued draft is flushed right away.
func (s *ExecutionService) Stop(ctx context.Context, id string) (execution.Process, error) {
	return s.Finish(ctx, id, FinishOptions{Status: execution.StatusStopped})
}

func (s *ExecutionService) turnEnded(attemptID string) {
	running, err := s.store.AttemptRunning(attemptID)
	if err != nil || running {
		return
	}

	s.mu.RLock()
	hooks := append([]func(string){}, s.onTurn...)
	s.mu.RUnlock()
	for _, fn := range hooks {
		fn(attemptID)
	}
}

// AppendRawLogs records raw output lines.
func (s *ExecutionService) AppendRawLogs(ctx context.Context, id string, lines []execution.LogLine) error {
	for i := range lines {
		if lines[i].Stream == "" {
			lines[i].Stream = execution.LogStdout
		}
	}
	return s.store.AppendRawLogs(ctx, id, lines...)
}

// AppendNormalizedLogs records conversation entries, stamping entries that
// carry no timestamp.
func (s *ExecutionService) AppendNormalizedLogs(ctx context.Context, id string, entries []execution.NormalizedEntry) error {
	now := s.now()
	for i := range entries {
		if entries[i].Timestamp == nil {
			entries[i].Timestamp = &now
		}
	}
	return s.store.AppendNormalizedLogs(ctx, id, entries...)
}

// ResetLogs truncates a process's logs, as on restart.
func (s *ExecutionService) ResetLogs(ctx context.Context, id string) error {
	return s.store.ResetLogs(ctx, id)
}

// RawLogs returns a process's raw log.
func (s *ExecutionService) RawLogs(id string) ([]execution.LogLine, error) {
	if _, err := s.Get(id); err != nil {
		return nil, err
	}
	return s.store.RawLogs(id), nil
}

// NormalizedLogs returns a process's normalized log.
func (s *ExecutionService) NormalizedLogs(id string) ([]execution.NormalizedEntry, error) {
	if _, err := s.Get(id); err != nil {
		return nil, err
	}
	return s.store.NormalizedLogs(id), nil
}
