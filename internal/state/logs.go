package state

import (
	"context"
	"time"

	"github.com/colonyops/hivesync/internal/core/execution"
	"github.com/colonyops/hivesync/internal/core/patch"
	"github.com/colonyops/hivesync/internal/core/stream"
)

// AppendRawLogs appends raw output lines to a process log.
func (s *Store) AppendRawLogs(ctx context.Context, processID string, lines ...execution.LogLine) error {
	if _, ok := s.Process(processID); !ok {
		return execution.ErrNotFound
	}

	s.logMu.Lock()
	defer s.logMu.Unlock()

	next, err := appendLog(ctx, s, stream.NewTopic(stream.KindRawLogs, processID), s.rawLogs[processID], lines)
	if err != nil {
		return err
	}
	s.rawLogs[processID] = next
	return nil
}

// AppendNormalizedLogs appends conversation entries to a process log.
func (s *Store) AppendNormalizedLogs(ctx context.Context, processID string, entries ...execution.NormalizedEntry) error {
	if _, ok := s.Process(processID); !ok {
		return execution.ErrNotFound
	}

	s.logMu.Lock()
	defer s.logMu.Unlock()

	next, err := appendLog(ctx, s, stream.NewTopic(stream.KindNormalizedLogs, processID), s.normalized[processID], entries)
	if err != nil {
		return err
	}
	s.normalized[processID] = next
	return nil
}

// RawLogs returns a copy of a process's raw log.
func (s *Store) RawLogs(processID string) []execution.LogLine {
	s.logMu.Lock()
	defer s.logMu.Unlock()
	return append([]execution.LogLine{}, s.rawLogs[processID]...)
}

// NormalizedLogs returns a copy of a process's normalized log.
func (s *Store) NormalizedLogs(processID string) []execution.NormalizedEntry {
	s.logMu.Lock()
	defer s.logMu.Unlock()
	return append([]execution.NormalizedEntry{}, s.normalized[processID]...)
}

// ResetLogs truncates both logs of a process. Subscribers receive a
// snapshot of the empty sequence.
func (s *Store) ResetLogs(ctx context.Context, processID string) error {
	if _, ok := s.Process(processID); !ok {
		return execution.ErrNotFound
	}

	s.logMu.Lock()
	defer s.logMu.Unlock()

	delete(s.rawLogs, processID)
	delete(s.normalized, processID)

	root := stream.KindRawLogs.Root()
	snap, err := patch.Snapshot(root, []any{})
	if err != nil {
		return err
	}
	s.publish(ctx, stream.NewTopic(stream.KindRawLogs, processID), snap)
	s.publish(ctx, stream.NewTopic(stream.KindNormalizedLogs, processID), snap)
	return nil
}

// EvictFinishedLogs drops the in-memory logs of processes that completed
// before cutoff and returns how many processes were evicted.
func (s *Store) EvictFinishedLogs(cutoff time.Time) int {
	s.procMu.RLock()
	var expired []string
	for id, p := range s.procs {
		if p.Status.IsTerminal() && p.CompletedAt != nil && p.CompletedAt.Before(cutoff) {
			expired = append(expired, id)
		}
	}
	s.procMu.RUnlock()

	s.logMu.Lock()
	defer s.logMu.Unlock()

	n := 0
	for _, id := range expired {
		_, raw := s.rawLogs[id]
		_, norm := s.normalized[id]
		if raw || norm {
			delete(s.rawLogs, id)
			delete(s.normalized, id)
			n++
		}
	}
	return n
}

// finishLogs tells log subscribers the process produced its last line.
func (s *Store) finishLogs(ctx context.Context, processID string) {
	s.logMu.Lock()
	defer s.logMu.Unlock()

	for _, kind := range []stream.Kind{stream.KindRawLogs, stream.KindNormalizedLogs} {
		topic := stream.NewTopic(kind, processID)
		s.logger.Debug().Ctx(ctx).Str("topic", topic.String()).Msg("log stream finished")
		s.hub.PublishFinished(topic, nil)
	}
}

// appendLog returns log extended by items, trimmed to the line cap. Growth
// is announced as appends; a trim is announced as a snapshot. Callers hold
// logMu.
func appendLog[T any](ctx context.Context, s *Store, topic stream.Topic, log, items []T) ([]T, error) {
	if len(items) == 0 {
		return log, nil
	}

	start := len(log)
	next := append(log, items...)
	trimmed := false
	if over := len(next) - s.opts.MaxLogLines; over > 0 {
		next = append([]T(nil), next[over:]...)
		trimmed = true
	}

	if s.hub.Subscribers(topic) == 0 {
		return next, nil
	}

	root := topic.Kind.Root()
	var (
		p   patch.Patch
		err error
	)
	if trimmed {
		p, err = patch.Snapshot(root, next)
	} else {
		p, err = patch.AppendItems(root, start, items...)
	}
	if err != nil {
		return log, err
	}
	s.publish(ctx, topic, p)
	return next, nil
}
