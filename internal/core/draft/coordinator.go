package draft

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/colonyops/hivesync/internal/core/eventbus"
	"github.com/colonyops/hivesync/internal/core/logging"
)

// DefaultSendTimeout bounds a dispatch when Options.SendTimeout is unset.
const DefaultSendTimeout = 30 * time.Second

// errNotQueued stops an automatic flush when there is nothing queued.
var errNotQueued = errors.New("no queued draft")

// Options tunes the coordinator.
type Options struct {
	// AutosaveDelay debounces edits before they are persisted. Zero saves
	// every edit immediately.
	AutosaveDelay time.Duration
	// SendTimeout bounds each dispatch.
	SendTimeout time.Duration
}

// slot is the per-attempt coordination state. mu is never held across a
// dispatch; sending is the per-attempt send lock.
type slot struct {
	mu      sync.Mutex
	sending bool
	pending *Draft
	timer   *time.Timer
	gen     uint64
}

// cancelAutosave discards any scheduled autosave. A timer that already
// fired sees a stale generation and does nothing.
func (s *slot) cancelAutosave() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.gen++
	s.pending = nil
}

// Coordinator serializes edits, queueing and sends per attempt. Operations
// on different attempts never contend.
type Coordinator struct {
	repo       Repository
	activity   Activity
	dispatcher Dispatcher
	bus        *eventbus.EventBus
	opts       Options
	logger     zerolog.Logger

	mu     sync.Mutex
	slots  map[string]*slot
	closed bool
	wg     sync.WaitGroup
}

// NewCoordinator creates a coordinator.
func NewCoordinator(repo Repository, activity Activity, dispatcher Dispatcher, bus *eventbus.EventBus, opts Options) *Coordinator {
	if opts.SendTimeout <= 0 {
		opts.SendTimeout = DefaultSendTimeout
	}
	return &Coordinator{
		repo:       repo,
		activity:   activity,
		dispatcher: dispatcher,
		bus:        bus,
		opts:       opts,
		logger:     logging.Component("drafts"),
		slots:      make(map[string]*slot),
	}
}

func (c *Coordinator) slot(attemptID string) (*slot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, ErrClosed
	}
	s, ok := c.slots[attemptID]
	if !ok {
		s = &slot{}
		c.slots[attemptID] = s
	}
	return s, nil
}

// current returns unsaved content if any, else the stored draft.
func (c *Coordinator) current(s *slot, attemptID string) (Draft, bool) {
	if s.pending != nil {
		return *s.pending, true
	}
	return c.repo.Draft(attemptID)
}

// Get returns the draft for an attempt including unsaved edits. An attempt
// without a draft reports StateIdle.
func (c *Coordinator) Get(attemptID string) (Draft, State) {
	s, err := c.slot(attemptID)
	if err != nil {
		if d, ok := c.repo.Draft(attemptID); ok {
			return d, d.State()
		}
		return Draft{AttemptID: attemptID}, StateIdle
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	d, ok := c.current(s, attemptID)
	if !ok {
		return Draft{AttemptID: attemptID}, StateIdle
	}
	if s.sending {
		return d, StateSending
	}
	return d, d.State()
}

// Edit replaces the draft content. It is allowed while Idle, Editing or
// Queued; a queued draft stays queued. Edits are persisted after the
// autosave delay.
func (c *Coordinator) Edit(ctx context.Context, attemptID string, content Content) (Draft, error) {
	if _, err := c.activity.AttemptRunning(attemptID); err != nil {
		return Draft{}, err
	}

	s, err := c.slot(attemptID)
	if err != nil {
		return Draft{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.sending {
		return Draft{}, ErrSendInProgress
	}

	d, ok := c.current(s, attemptID)
	if !ok {
		d = Draft{AttemptID: attemptID}
	}
	d.Prompt = content.Prompt
	d.Variant = content.Variant
	d.ImageIDs = cloneIDs(content.ImageIDs)
	d.Error = ""
	d.UpdatedAt = time.Now()

	if c.opts.AutosaveDelay <= 0 {
		s.cancelAutosave()
		if err := c.repo.SaveDraft(ctx, d); err != nil {
			return Draft{}, fmt.Errorf("save draft: %w", err)
		}
		return d, nil
	}

	s.cancelAutosave()
	s.pending = &d
	gen := s.gen
	s.timer = time.AfterFunc(c.opts.AutosaveDelay, func() { c.autosave(attemptID, s, gen) })

	return d, nil
}

func (c *Coordinator) autosave(attemptID string, s *slot, gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.sending || s.gen != gen || s.pending == nil {
		return
	}

	d := *s.pending
	s.pending = nil
	s.timer = nil

	ctx := logging.WithAttemptID(context.Background(), attemptID)
	if err := c.repo.SaveDraft(ctx, d); err != nil {
		s.pending = &d
		c.logger.Warn().Ctx(ctx).Err(err).Msg("autosave failed")
		return
	}
	c.logger.Debug().Ctx(ctx).Msg("draft autosaved")
}

// Queue marks the draft to be sent when the running agent turn ends.
func (c *Coordinator) Queue(ctx context.Context, attemptID string) (Draft, error) {
	running, err := c.activity.AttemptRunning(attemptID)
	if err != nil {
		return Draft{}, err
	}

	s, err := c.slot(attemptID)
	if err != nil {
		return Draft{}, err
	}

	s.mu.Lock()
	if s.sending {
		s.mu.Unlock()
		return Draft{}, ErrSendInProgress
	}
	if !running {
		s.mu.Unlock()
		return Draft{}, ErrNotRunning
	}

	d, ok := c.current(s, attemptID)
	if !ok || d.IsEmpty() {
		s.mu.Unlock()
		return Draft{}, ErrNothingToQueue
	}

	d.Queued = true
	d.Error = ""
	d.UpdatedAt = time.Now()
	if err := c.commit(ctx, s, d); err != nil {
		s.mu.Unlock()
		return Draft{}, err
	}
	s.mu.Unlock()

	c.bus.PublishDraftQueued(eventbus.DraftQueuedPayload{AttemptID: attemptID})
	c.logger.Info().Ctx(logging.WithAttemptID(ctx, attemptID)).Msg("draft queued")

	// The turn may have ended between the running check and the save, in
	// which case no completion will ever flush this draft.
	if running, err := c.activity.AttemptRunning(attemptID); err == nil && !running {
		c.flush(attemptID)
	}

	return d, nil
}

// Unqueue returns a queued draft to editing. It is a no-op for a draft
// that is not queued.
func (c *Coordinator) Unqueue(ctx context.Context, attemptID string) (Draft, error) {
	s, err := c.slot(attemptID)
	if err != nil {
		return Draft{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.sending {
		return Draft{}, ErrSendInProgress
	}

	d, ok := c.current(s, attemptID)
	if !ok {
		return Draft{AttemptID: attemptID}, nil
	}
	if !d.Queued {
		return d, nil
	}

	d.Queued = false
	d.UpdatedAt = time.Now()
	if err := c.commit(ctx, s, d); err != nil {
		return Draft{}, err
	}
	return d, nil
}

// commit persists d in place of any pending content. On failure the
// pending content is kept. Callers hold s.mu.
func (c *Coordinator) commit(ctx context.Context, s *slot, d Draft) error {
	prev := s.pending
	s.cancelAutosave()
	if err := c.repo.SaveDraft(ctx, d); err != nil {
		s.pending = prev
		return fmt.Errorf("save draft: %w", err)
	}
	return nil
}

// Send dispatches the draft now. It fails with ErrSendInProgress while
// another send for the attempt is in flight. On success the draft is
// cleared; on failure it returns to editing with the error attached and
// the returned error wraps ErrDispatchFailed.
func (c *Coordinator) Send(ctx context.Context, attemptID string) (Draft, error) {
	return c.send(ctx, attemptID, false)
}

// OnTurnCompleted flushes a queued draft once the agent turn for the
// attempt has ended. The flush runs in the background.
func (c *Coordinator) OnTurnCompleted(attemptID string) {
	c.flush(attemptID)
}

func (c *Coordinator) flush(attemptID string) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.wg.Add(1)
	c.mu.Unlock()

	go func() {
		defer c.wg.Done()
		ctx := logging.WithAttemptID(context.Background(), attemptID)
		if _, err := c.send(ctx, attemptID, true); err != nil && !errors.Is(err, errNotQueued) {
			c.logger.Warn().Ctx(ctx).Err(err).Msg("queued draft flush failed")
		}
	}()
}

func (c *Coordinator) send(ctx context.Context, attemptID string, auto bool) (Draft, error) {
	s, err := c.slot(attemptID)
	if err != nil {
		return Draft{}, err
	}

	s.mu.Lock()
	if s.sending {
		s.mu.Unlock()
		if auto {
			return Draft{}, errNotQueued
		}
		return Draft{}, ErrSendInProgress
	}

	d, ok := c.current(s, attemptID)
	if auto && (!ok || !d.Queued) {
		s.mu.Unlock()
		return Draft{}, errNotQueued
	}
	if !ok || d.IsEmpty() {
		s.mu.Unlock()
		return Draft{}, ErrNothingToSend
	}

	d.Queued = false
	d.Sending = true
	d.Error = ""
	d.UpdatedAt = time.Now()
	if err := c.commit(ctx, s, d); err != nil {
		s.mu.Unlock()
		return Draft{}, err
	}
	s.sending = true
	s.mu.Unlock()

	ctx = logging.WithAttemptID(ctx, attemptID)
	c.logger.Info().Ctx(ctx).Bool("auto", auto).Msg("dispatching follow-up")

	// The dispatch outlives the caller so that a dropped request cannot
	// leave the draft sending; the timeout is what bounds it.
	bg := context.WithoutCancel(ctx)
	dctx, cancel := context.WithTimeout(bg, c.opts.SendTimeout)
	dispatchErr := c.dispatcher.Dispatch(dctx, FollowUp{
		AttemptID: attemptID,
		Prompt:    d.Prompt,
		Variant:   d.Variant,
		ImageIDs:  cloneIDs(d.ImageIDs),
	})
	cancel()

	s.mu.Lock()
	defer s.mu.Unlock()
	defer func() { s.sending = false }()

	if dispatchErr == nil {
		if err := c.repo.DeleteDraft(bg, attemptID); err != nil {
			c.logger.Warn().Ctx(ctx).Err(err).Msg("clear sent draft")
		}
		c.bus.PublishDraftSent(eventbus.DraftSentPayload{AttemptID: attemptID, Auto: auto})
		return Draft{AttemptID: attemptID}, nil
	}

	d.Sending = false
	d.Error = dispatchErr.Error()
	d.UpdatedAt = time.Now()
	if err := c.repo.SaveDraft(bg, d); err != nil {
		c.logger.Error().Ctx(ctx).Err(err).Msg("revert failed draft")
	}

	c.logger.Warn().Ctx(ctx).Err(dispatchErr).Msg("follow-up dispatch failed")
	c.bus.PublishDraftFailed(eventbus.DraftFailedPayload{AttemptID: attemptID, Err: d.Error})

	return d, fmt.Errorf("%w: %w", ErrDispatchFailed, dispatchErr)
}

// Forget drops coordination state for an attempt that no longer exists.
func (c *Coordinator) Forget(attemptID string) {
	c.mu.Lock()
	s, ok := c.slots[attemptID]
	delete(c.slots, attemptID)
	c.mu.Unlock()

	if !ok {
		return
	}
	s.mu.Lock()
	s.cancelAutosave()
	s.mu.Unlock()
}

// Close persists unsaved edits, stops accepting work and waits for
// background flushes to finish or ctx to expire.
func (c *Coordinator) Close(ctx context.Context) error {
	c.mu.Lock()
	c.closed = true
	slots := make(map[string]*slot, len(c.slots))
	for id, s := range c.slots {
		slots[id] = s
	}
	c.mu.Unlock()

	var errs []error
	for id, s := range slots {
		s.mu.Lock()
		if s.pending != nil {
			d := *s.pending
			if err := c.repo.SaveDraft(ctx, d); err != nil {
				errs = append(errs, fmt.Errorf("save draft %s: %w", id, err))
			}
		}
		s.cancelAutosave()
		s.mu.Unlock()
	}

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		errs = append(errs, ctx.Err())
	}

	return errors.Join(errs...)
}

func cloneIDs(ids []string) []string {
	if ids == nil {
		return []string{}
	}
	return slices.Clone(ids)
}
