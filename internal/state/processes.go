package state

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/colonyops/hivesync/internal/core/execution"
	"github.com/colonyops/hivesync/internal/core/patch"
	"github.com/colonyops/hivesync/internal/core/stream"
	"github.com/colonyops/hivesync/internal/core/task"
)

// processesFor returns the processes of an attempt, or every process for
// the empty key. Callers hold procMu.
func (s *Store) processesFor(attemptID string) patch.Keyed[execution.Process] {
	k := patch.NewKeyed[execution.Process](processSchema)
	for id, p := range s.procs {
		if attemptID == "" || p.AttemptID == attemptID {
			k.Items[id] = p
		}
	}
	return k
}

// Process returns a process by id.
func (s *Store) Process(id string) (execution.Process, bool) {
	s.procMu.RLock()
	defer s.procMu.RUnlock()
	p, ok := s.procs[id]
	return p, ok
}

// Processes returns the processes of an attempt ordered by start time.
func (s *Store) Processes(attemptID string) []execution.Process {
	s.procMu.RLock()
	defer s.procMu.RUnlock()

	out := make([]execution.Process, 0)
	for _, p := range s.procs {
		if p.AttemptID == attemptID {
			out = append(out, p)
		}
	}
	slices.SortFunc(out, func(a, b execution.Process) int {
		if c := a.StartedAt.Compare(b.StartedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return out
}

// PutProcess creates or updates a process and returns the previous value.
// When the process becomes terminal its log streams are marked finished.
func (s *Store) PutProcess(ctx context.Context, p execution.Process) (prev execution.Process, existed bool, err error) {
	if !p.Status.IsValid() {
		return prev, false, fmt.Errorf("invalid execution status %q", p.Status)
	}
	if !p.RunReason.IsValid() {
		return prev, false, fmt.Errorf("invalid run reason %q", p.RunReason)
	}
	if _, ok := s.Attempt(p.AttemptID); !ok {
		return prev, false, task.ErrAttemptNotFound
	}

	s.procMu.Lock()
	prev, existed = s.procs[p.ID]
	if existed && prev.AttemptID != p.AttemptID {
		s.procMu.Unlock()
		return prev, true, fmt.Errorf("process %s belongs to attempt %s", p.ID, prev.AttemptID)
	}

	if err := s.stores.Processes.Save(ctx, p); err != nil {
		s.procMu.Unlock()
		return prev, existed, fmt.Errorf("save execution process: %w", err)
	}
	s.procs[p.ID] = p

	before := single(processSchema, p.ID, prev, existed)
	after := single(processSchema, p.ID, p, true)
	ops, err := patch.DiffKeyed(stream.KindExecutionProcesses.Root(), before, after)
	if err != nil {
		s.procMu.Unlock()
		return prev, existed, fmt.Errorf("diff execution process: %w", err)
	}
	s.publishProcess(ctx, p.AttemptID, ops)
	s.procMu.Unlock()

	if p.Status.IsTerminal() && (!existed || !prev.Status.IsTerminal()) {
		s.finishLogs(ctx, p.ID)
	}

	return prev, existed, nil
}

// publishProcess sends ops to the attempt's topic and the global one.
func (s *Store) publishProcess(ctx context.Context, attemptID string, ops patch.Patch) {
	s.publish(ctx, stream.NewTopic(stream.KindExecutionProcesses, attemptID), ops)
	s.publish(ctx, stream.NewTopic(stream.KindExecutionProcesses, ""), ops)
}

// deleteProcesses removes every process of an attempt and returns their ids.
func (s *Store) deleteProcesses(ctx context.Context, attemptID string) ([]string, error) {
	s.procMu.Lock()
	defer s.procMu.Unlock()

	var ids []string
	for id, p := range s.procs {
		if p.AttemptID == attemptID {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)

	for _, id := range ids {
		if err := s.stores.Processes.Delete(ctx, id); err != nil && !errors.Is(err, execution.ErrNotFound) {
			return nil, fmt.Errorf("delete execution process %s: %w", id, err)
		}
		delete(s.procs, id)
		s.publishProcess(ctx, attemptID,
			patch.Patch{patch.Remove(patch.Pointer(stream.KindExecutionProcesses.Root(), id))})
	}
	return ids, nil
}
