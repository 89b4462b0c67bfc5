package board

import (
	"sync"

	"github.com/colonyops/hivesync/internal/core/eventbus"
	"github.com/colonyops/hivesync/internal/core/stream"
)

// StatsSnapshot is a point-in-time copy of the counters.
type StatsSnapshot struct {
	Subscribers int                      `json:"subscribers"`
	Events      map[eventbus.Event]int64 `json:"events"`
}

// Stats counts domain events seen on the bus.
type Stats struct {
	hub *stream.Hub

	mu     sync.Mutex
	counts map[eventbus.Event]int64
}

// NewStats subscribes a collector to every event on bus.
func NewStats(bus *eventbus.EventBus, hub *stream.Hub) *Stats {
	s := &Stats{hub: hub, counts: make(map[eventbus.Event]int64)}

	bus.SubscribeAttemptCreated(func(eventbus.AttemptCreatedPayload) { s.inc(eventbus.EventAttemptCreated) })
	bus.SubscribeDraftFailed(func(eventbus.DraftFailedPayload) { s.inc(eventbus.EventDraftFailed) })
	bus.SubscribeDraftQueued(func(eventbus.DraftQueuedPayload) { s.inc(eventbus.EventDraftQueued) })
	bus.SubscribeDraftSent(func(eventbus.DraftSentPayload) { s.inc(eventbus.EventDraftSent) })
	bus.SubscribeExecutionFinished(func(eventbus.ExecutionFinishedPayload) { s.inc(eventbus.EventExecutionFinished) })
	bus.SubscribeExecutionStarted(func(eventbus.ExecutionStartedPayload) { s.inc(eventbus.EventExecutionStarted) })
	bus.SubscribeSubscriberDropped(func(eventbus.SubscriberDroppedPayload) { s.inc(eventbus.EventSubscriberDropped) })
	bus.SubscribeTaskCreated(func(eventbus.TaskCreatedPayload) { s.inc(eventbus.EventTaskCreated) })
	bus.SubscribeTaskDeleted(func(eventbus.TaskDeletedPayload) { s.inc(eventbus.EventTaskDeleted) })
	bus.SubscribeTaskUpdated(func(eventbus.TaskUpdatedPayload) { s.inc(eventbus.EventTaskUpdated) })

	return s
}

func (s *Stats) inc(event eventbus.Event) {
	s.mu.Lock()
	s.counts[event]++
	s.mu.Unlock()
}

// Snapshot returns the current counters. Every event appears, zero or not.
func (s *Stats) Snapshot() StatsSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	events := make(map[eventbus.Event]int64, len(eventbus.Events()))
	for _, e := range eventbus.Events() {
		events[e] = s.counts[e]
	}
	return StatsSnapshot{Subscribers: s.hub.Count(), Events: events}
}
