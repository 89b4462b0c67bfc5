// Package state is the authoritative in-memory home of every streamed
// collection. Each mutation is persisted, applied, diffed and published
// while the collection's lock is held, so subscribers of a topic observe
// mutations in the order they happened and a new subscriber's snapshot is
// never ahead of or behind the patches that follow it.
package state

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/colonyops/hivesync/internal/core/diff"
	"github.com/colonyops/hivesync/internal/core/draft"
	"github.com/colonyops/hivesync/internal/core/execution"
	"github.com/colonyops/hivesync/internal/core/logging"
	"github.com/colonyops/hivesync/internal/core/patch"
	"github.com/colonyops/hivesync/internal/core/stream"
	"github.com/colonyops/hivesync/internal/core/task"
)

// Collection schema versions. Bumping one makes the next diff of that
// collection degrade to a snapshot.
const (
	taskSchema    = 1
	processSchema = 1
	diffSchema    = 1
	draftSchema   = 1
)

// DefaultMaxLogLines caps each process log when Options.MaxLogLines is unset.
const DefaultMaxLogLines = 10000

// InterruptedError is attached to drafts found mid-send at startup.
const InterruptedError = "send interrupted by server restart"

// Stores are the persistence backends of a Store.
type Stores struct {
	Tasks     task.Store
	Attempts  task.AttemptStore
	Processes execution.Store
	Drafts    draft.Store
}

// Options tunes a Store.
type Options struct {
	MaxLogLines int
}

// Store holds tasks, attempts, execution processes, logs, diffs and drafts.
//
// Locks are taken in the order tasks, attempts, processes, logs, diffs,
// drafts whenever more than one is needed.
type Store struct {
	stores Stores
	hub    *stream.Hub
	opts   Options
	logger zerolog.Logger

	taskMu    sync.Mutex
	tasks     map[string]patch.Keyed[task.Task] // by project
	taskIndex map[string]string                 // task id -> project id

	attemptMu sync.RWMutex
	attempts  map[string]task.Attempt

	procMu sync.RWMutex
	procs  map[string]execution.Process

	logMu      sync.Mutex
	rawLogs    map[string][]execution.LogLine
	normalized map[string][]execution.NormalizedEntry

	diffMu sync.Mutex
	diffs  map[string]patch.Keyed[diff.Entry] // by attempt

	draftMu sync.RWMutex
	drafts  map[string]draft.Draft // by attempt
}

var (
	_ draft.Repository = (*Store)(nil)
	_ draft.Activity   = (*Store)(nil)
)

// New creates an empty store. Call Load to populate it from persistence.
func New(stores Stores, hub *stream.Hub, opts Options) *Store {
	if opts.MaxLogLines <= 0 {
		opts.MaxLogLines = DefaultMaxLogLines
	}
	return &Store{
		stores:     stores,
		hub:        hub,
		opts:       opts,
		logger:     logging.Component("state"),
		tasks:      make(map[string]patch.Keyed[task.Task]),
		taskIndex:  make(map[string]string),
		attempts:   make(map[string]task.Attempt),
		procs:      make(map[string]execution.Process),
		rawLogs:    make(map[string][]execution.LogLine),
		normalized: make(map[string][]execution.NormalizedEntry),
		diffs:      make(map[string]patch.Keyed[diff.Entry]),
		drafts:     make(map[string]draft.Draft),
	}
}

// Hub returns the hub the store publishes to.
func (s *Store) Hub() *stream.Hub {
	return s.hub
}

// Load reads every persisted collection. A draft left sending by a crash
// is reverted to editing with InterruptedError attached.
func (s *Store) Load(ctx context.Context) error {
	tasks, err := s.stores.Tasks.List(ctx)
	if err != nil {
		return fmt.Errorf("load tasks: %w", err)
	}
	attempts, err := s.stores.Attempts.List(ctx)
	if err != nil {
		return fmt.Errorf("load attempts: %w", err)
	}
	procs, err := s.stores.Processes.List(ctx)
	if err != nil {
		return fmt.Errorf("load execution processes: %w", err)
	}
	drafts, err := s.stores.Drafts.List(ctx)
	if err != nil {
		return fmt.Errorf("load drafts: %w", err)
	}

	s.taskMu.Lock()
	for _, t := range tasks {
		s.projectTasks(t.ProjectID).Items[t.ID] = t
		s.taskIndex[t.ID] = t.ProjectID
	}
	s.taskMu.Unlock()

	s.attemptMu.Lock()
	for _, a := range attempts {
		s.attempts[a.ID] = a
	}
	s.attemptMu.Unlock()

	s.procMu.Lock()
	for _, p := range procs {
		s.procs[p.ID] = p
	}
	s.procMu.Unlock()

	s.draftMu.Lock()
	defer s.draftMu.Unlock()
	for _, d := range drafts {
		if d.Sending {
			d.Sending = false
			d.Error = InterruptedError
			d.UpdatedAt = time.Now()
			if err := s.stores.Drafts.Save(ctx, d); err != nil {
				return fmt.Errorf("recover draft %s: %w", d.AttemptID, err)
			}
			s.logger.Warn().Str("attempt_id", d.AttemptID).Msg("recovered draft interrupted mid-send")
		}
		s.drafts[d.AttemptID] = d
	}

	s.logger.Info().
		Int("tasks", len(tasks)).
		Int("attempts", len(attempts)).
		Int("processes", len(procs)).
		Int("drafts", len(drafts)).
		Msg("state loaded")

	return nil
}

// Subscribe attaches connID to topic. The snapshot is built and queued
// under the collection's lock, so no mutation can land between reading the
// state and registering for patches.
func (s *Store) Subscribe(topic stream.Topic, connID string) (*stream.Subscriber, error) {
	if err := topic.Validate(); err != nil {
		return nil, err
	}

	var (
		snap patch.Patch
		err  error
		sub  *stream.Subscriber
	)
	attach := func() {
		if err == nil {
			sub = s.hub.Attach(topic, connID, snap)
		}
	}
	// Log streams of a process that already ended open finished. Callers
	// hold procMu.
	attachLog := func() {
		if err != nil {
			return
		}
		if p, ok := s.procs[topic.Key]; ok && p.Status.IsTerminal() {
			sub = s.hub.AttachFinished(topic, connID, snap)
			return
		}
		sub = s.hub.Attach(topic, connID, snap)
	}

	root := topic.Kind.Root()
	switch topic.Kind {
	case stream.KindTasks:
		s.taskMu.Lock()
		snap, err = patch.Snapshot(root, s.visibleTasks(topic.Key).Value())
		attach()
		s.taskMu.Unlock()

	case stream.KindExecutionProcesses:
		s.procMu.Lock()
		snap, err = patch.Snapshot(root, s.processesFor(topic.Key).Value())
		attach()
		s.procMu.Unlock()

	case stream.KindDiff:
		s.diffMu.Lock()
		snap, err = patch.Snapshot(root, s.diffs[topic.Key].Value())
		attach()
		s.diffMu.Unlock()

	case stream.KindRawLogs:
		s.procMu.RLock()
		s.logMu.Lock()
		snap, err = patch.Snapshot(root, nonNil(s.rawLogs[topic.Key]))
		attachLog()
		s.logMu.Unlock()
		s.procMu.RUnlock()

	case stream.KindNormalizedLogs:
		s.procMu.RLock()
		s.logMu.Lock()
		snap, err = patch.Snapshot(root, nonNil(s.normalized[topic.Key]))
		attachLog()
		s.logMu.Unlock()
		s.procMu.RUnlock()

	case stream.KindDrafts:
		s.attemptMu.RLock()
		s.draftMu.Lock()
		snap, err = patch.Snapshot(root, s.projectDrafts(topic.Key).Value())
		attach()
		s.draftMu.Unlock()
		s.attemptMu.RUnlock()

	default:
		return nil, fmt.Errorf("%w: %q", stream.ErrUnknownKind, topic.Kind)
	}

	if err != nil {
		return nil, fmt.Errorf("build %s snapshot: %w", topic, err)
	}
	return sub, nil
}

// publish logs and fans out p. Callers hold the collection lock.
func (s *Store) publish(ctx context.Context, topic stream.Topic, p patch.Patch) {
	if len(p) == 0 {
		return
	}
	s.logger.Debug().Ctx(ctx).Str("topic", topic.String()).Int("ops", len(p)).Msg("publish")
	s.hub.Publish(topic, p)
}

func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}

// single returns a one-item (or empty) collection for diffing one item.
func single[T any](schema int, id string, item T, present bool) patch.Keyed[T] {
	k := patch.NewKeyed[T](schema)
	if present {
		k.Items[id] = item
	}
	return k
}
