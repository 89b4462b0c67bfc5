package eventbus

// Typed Publish/Subscribe pairs, one per event in events.go.

// PublishAttemptCreated enqueues a AttemptCreatedPayload.
func (bus *EventBus) PublishAttemptCreated(p AttemptCreatedPayload) {
	bus.send(EventAttemptCreated, p)
}

// SubscribeAttemptCreated registers fn for EventAttemptCreated.
func (bus *EventBus) SubscribeAttemptCreated(fn func(AttemptCreatedPayload)) {
	bus.subscribe(EventAttemptCreated, func(v any) { fn(v.(AttemptCreatedPayload)) })
}

// PublishDraftFailed enqueues a DraftFailedPayload.
func (bus *EventBus) PublishDraftFailed(p DraftFailedPayload) {
	bus.send(EventDraftFailed, p)
}

// SubscribeDraftFailed registers fn for EventDraftFailed.
func (bus *EventBus) SubscribeDraftFailed(fn func(DraftFailedPayload)) {
	bus.subscribe(EventDraftFailed, func(v any) { fn(v.(DraftFailedPayload)) })
}

// PublishDraftQueued enqueues a DraftQueuedPayload.
func (bus *EventBus) PublishDraftQueued(p DraftQueuedPayload) {
	bus.send(EventDraftQueued, p)
}

// SubscribeDraftQueued registers fn for EventDraftQueued.
func (bus *EventBus) SubscribeDraftQueued(fn func(DraftQueuedPayload)) {
	bus.subscribe(EventDraftQueued, func(v any) { fn(v.(DraftQueuedPayload)) })
}

// PublishDraftSent enqueues a DraftSentPayload.
func (bus *EventBus) PublishDraftSent(p DraftSentPayload) {
	bus.send(EventDraftSent, p)
}

// SubscribeDraftSent registers fn for EventDraftSent.
func (bus *EventBus) SubscribeDraftSent(fn func(DraftSentPayload)) {
	bus.subscribe(EventDraftSent, func(v any) { fn(v.(DraftSentPayload)) })
}

// PublishExecutionFinished enqueues a ExecutionFinishedPayload.
func (bus *EventBus) PublishExecutionFinished(p ExecutionFinishedPayload) {
	bus.send(EventExecutionFinished, p)
}

// SubscribeExecutionFinished registers fn for EventExecutionFinished.
func (bus *EventBus) SubscribeExecutionFinished(fn func(ExecutionFinishedPayload)) {
	bus.subscribe(EventExecutionFinished, func(v any) { fn(v.(ExecutionFinishedPayload)) })
}

// PublishExecutionStarted enqueues a ExecutionStartedPayload.
func (bus *EventBus) PublishExecutionStarted(p ExecutionStartedPayload) {
	bus.send(EventExecutionStarted, p)
}

// SubscribeExecutionStarted registers fn for EventExecutionStarted.
func (bus *EventBus) SubscribeExecutionStarted(fn func(ExecutionStartedPayload)) {
	bus.subscribe(EventExecutionStarted, func(v any) { fn(v.(ExecutionStartedPayload)) })
}

// PublishSubscriberDropped enqueues a SubscriberDroppedPayload.
func (bus *EventBus) PublishSubscriberDropped(p SubscriberDroppedPayload) {
	bus.send(EventSubscriberDropped, p)
}

// SubscribeSubscriberDropped registers fn for EventSubscriberDropped.
func (bus *EventBus) SubscribeSubscriberDropped(fn func(SubscriberDroppedPayload)) {
	bus.subscribe(EventSubscriberDropped, func(v any) { fn(v.(SubscriberDroppedPayload)) })
}

// PublishTaskCreated enqueues a TaskCreatedPayload.
func (bus *EventBus) PublishTaskCreated(p TaskCreatedPayload) {
	bus.send(EventTaskCreated, p)
}

// SubscribeTaskCreated registers fn for EventTaskCreated.
func (bus *EventBus) SubscribeTaskCreated(fn func(TaskCreatedPayload)) {
	bus.subscribe(EventTaskCreated, func(v any) { fn(v.(TaskCreatedPayload)) })
}

// PublishTaskDeleted enqueues a TaskDeletedPayload.
func (bus *EventBus) PublishTaskDeleted(p TaskDeletedPayload) {
	bus.send(EventTaskDeleted, p)
}

// SubscribeTaskDeleted registers fn for EventTaskDeleted.
func (bus *EventBus) SubscribeTaskDeleted(fn func(TaskDeletedPayload)) {
	bus.subscribe(EventTaskDeleted, func(v any) { fn(v.(TaskDeletedPayload)) })
}

// PublishTaskUpdated enqueues a TaskUpdatedPayload.
func (bus *EventBus) PublishTaskUpdated(p TaskUpdatedPayload) {
	bus.send(EventTaskUpdated, p)
}

// SubscribeTaskUpdated registers fn for EventTaskUpdated.
func (bus *EventBus) SubscribeTaskUpdated(fn func(TaskUpdatedPayload)) {
	bus.subscribe(EventTaskUpdated, func(v any) { fn(v.(TaskUpdatedPayload)) })
}
