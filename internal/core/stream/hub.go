package stream

import (
	"errors"
	"sync"

	"github.com/rs/zerolog"

	"github.com/colonyops/hivesync/internal/core/logging"
	"github.com/colonyops/hivesync/internal/core/patch"
)

var (
	// ErrSlowConsumer closes a subscriber whose outbound queue is full.
	ErrSlowConsumer = errors.New("subscriber queue full")
	// ErrHubClosed closes every subscriber still attached at shutdown.
	ErrHubClosed = errors.New("stream hub closed")
)

// DefaultBuffer is the per-subscriber queue length used when none is set.
const DefaultBuffer = 256

// Subscriber is one attachment of a connection to a topic. Envelopes are
// read from C until Done is closed.
type Subscriber struct {
	id     uint64
	topic  Topic
	connID string
	ch     chan Envelope
	done   chan struct{}

	mu  sync.Mutex
	err error
}

// C delivers envelopes in publication order. The snapshot is always first.
func (s *Subscriber) C() <-chan Envelope { return s.ch }

// Done is closed once the subscriber is removed from the hub.
func (s *Subscriber) Done() <-chan struct{} { return s.done }

// Topic returns the topic the subscriber is attached to.
func (s *Subscriber) Topic() Topic { return s.topic }

// ConnID returns the owning connection id.
func (s *Subscriber) ConnID() string { return s.connID }

// Err returns why the subscriber was removed, or nil for a plain detach.
func (s *Subscriber) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *Subscriber) close(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
	close(s.done)
}

type topicState struct {
	seq  uint64
	subs map[uint64]*Subscriber
}

// Hub is the topic registry and multiplexer. Publication never blocks on a
// subscriber: each has its own bounded queue, and a subscriber whose queue
// is full is dropped.
type Hub struct {
	buffer int
	logger zerolog.Logger

	mu     sync.Mutex
	nextID uint64
	topics map[Topic]*topicState
	closed bool

	hookMu sync.RWMutex
	onDrop []func(*Subscriber, error)
}

// HubOption configures a Hub.
type HubOption func(*Hub)

// WithBuffer sets the per-subscriber queue length.
func WithBuffer(n int) HubOption {
	return func(h *Hub) {
		if n > 0 {
			h.buffer = n
		}
	}
}

// WithLogger sets the hub logger.
func WithLogger(l zerolog.Logger) HubOption {
	return func(h *Hub) { h.logger = l }
}

// NewHub creates an empty hub.
func NewHub(opts ...HubOption) *Hub {
	h := &Hub{
		buffer: DefaultBuffer,
		logger: logging.Component("stream"),
		topics: make(map[Topic]*topicState),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// OnDrop registers a hook fired after a subscriber is dropped for being
// too slow. Hooks run outside the hub lock.
func (h *Hub) OnDrop(fn func(*Subscriber, error)) {
	h.hookMu.Lock()
	h.onDrop = append(h.onDrop, fn)
	h.hookMu.Unlock()
}

// Attach registers a subscriber on topic with snapshot as its first
// envelope. The snapshot is queued before the subscriber becomes visible
// to Publish, so callers that serialize Attach with their own mutations
// guarantee no patch is missed or applied twice.
func (h *Hub) Attach(topic Topic, connID string, snapshot patch.Patch) *Subscriber {
	return h.attach(topic, connID, snapshot, false)
}

// AttachFinished is Attach for a topic whose producer already published its
// last patch. The snapshot envelope carries the finished flag.
func (h *Hub) AttachFinished(topic Topic, connID string, snapshot patch.Patch) *Subscriber {
	return h.attach(topic, connID, snapshot, true)
}

func (h *Hub) attach(topic Topic, connID string, snapshot patch.Patch, finished bool) *Subscriber {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.nextID++
	sub := &Subscriber{
		id:     h.nextID,
		topic:  topic,
		connID: connID,
		ch:     make(chan Envelope, h.buffer),
		done:   make(chan struct{}),
	}

	if h.closed {
		sub.close(ErrHubClosed)
		return sub
	}

	ts, ok := h.topics[topic]
	if !ok {
		ts = &topicState{subs: make(map[uint64]*Subscriber)}
		h.topics[topic] = ts
	}

	sub.ch <- Envelope{Topic: topic.String(), Seq: ts.seq, Patch: snapshot, Finished: finished}
	ts.subs[sub.id] = sub

	h.logger.Debug().
		Str("topic", topic.String()).
		Str("conn_id", connID).
		Int("subscribers", len(ts.subs)).
		Bool("finished", finished).
		Msg("subscriber attached")

	return sub
}

// Publish fans p out to every subscriber of topic. Publishing to a topic
// with no subscribers does nothing.
func (h *Hub) Publish(topic Topic, p patch.Patch) {
	if len(p) == 0 {
		return
	}
	h.publish(topic, p, false)
}

// PublishFinished publishes p (which may be empty) flagged as the last
// envelope the topic's producer will emit.
func (h *Hub) PublishFinished(topic Topic, p patch.Patch) {
	if p == nil {
		p = patch.Patch{}
	}
	h.publish(topic, p, true)
}

func (h *Hub) publish(topic Topic, p patch.Patch, finished bool) {
	var dropped []*Subscriber

	h.mu.Lock()
	ts, ok := h.topics[topic]
	if !ok {
		h.mu.Unlock()
		return
	}

	ts.seq++
	env := Envelope{Topic: topic.String(), Seq: ts.seq, Patch: p, Finished: finished}

	for id, sub := range ts.subs {
		select {
		case sub.ch <- env:
		default:
			delete(ts.subs, id)
			sub.close(ErrSlowConsumer)
			dropped = append(dropped, sub)
		}
	}
	if len(ts.subs) == 0 {
		delete(h.topics, topic)
	}
	h.mu.Unlock()

	for _, sub := range dropped {
		h.logger.Warn().
			Str("topic", topic.String()).
			Str("conn_id", sub.connID).
			Msg("dropping slow subscriber")
		h.runOnDrop(sub, ErrSlowConsumer)
	}
}

// DetachConn removes every subscriber owned by connID. Detaching twice is
// a no-op.
func (h *Hub) DetachConn(connID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, ts := range h.topics {
		for _, sub := range ts.subs {
			if sub.connID == connID {
				h.detachLocked(sub, nil)
			}
		}
	}
}

func (h *Hub) detachLocked(sub *Subscriber, err error) {
	ts, ok := h.topics[sub.topic]
	if !ok {
		return
	}
	if _, ok := ts.subs[sub.id]; !ok {
		return
	}

	delete(ts.subs, sub.id)
	sub.close(err)
	if len(ts.subs) == 0 {
		delete(h.topics, sub.topic)
	}
}

// Close detaches every subscriber with ErrHubClosed. Later attachments
// are closed immediately.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.closed = true
	for topic, ts := range h.topics {
		for id, sub := range ts.subs {
			delete(ts.subs, id)
			sub.close(ErrHubClosed)
		}
		delete(h.topics, topic)
	}
}

// Count returns the number of attached subscribers across all topics.
func (h *Hub) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()

	n := 0
	for _, ts := range h.topics {
		n += len(ts.subs)
	}
	return n
}

// Subscribers returns the number of subscribers attached to topic.
func (h *Hub) Subscribers(topic Topic) int {
	h.mu.Lock()
	defer h.mu.Unlock()

	if ts, ok := h.topics[topic]; ok {
		return len(ts.subs)
	}
	return 0
}

func (h *Hub) runOnDrop(sub *Subscriber, err error) {
	h.hookMu.RLock()
	hooks := make([]func(*Subscriber, error), len(h.onDrop))
	copy(hooks, h.onDrop)
	h.hookMu.RUnlock()
	for _, fn := range hooks {
		fn(sub, err)
	}
}
