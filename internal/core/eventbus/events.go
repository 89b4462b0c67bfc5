// Package eventbus provides a typed publish/subscribe event bus for
// cross-component communication within hivesync.
package eventbus

import (
	"github.com/colonyops/hivesync/internal/core/execution"
	"github.com/colonyops/hivesync/internal/core/task"
)

// Event names a bus event.
type Event string

// Keep list sorted A-Z.
const (
	EventAttemptCreated    Event = "attempt.created"
	EventDraftFailed       Event = "draft.failed"
	EventDraftQueued       Event = "draft.queued"
	EventDraftSent         Event = "draft.sent"
	EventExecutionFinished Event = "execution.finished"
	EventExecutionStarted  Event = "execution.started"
	EventSubscriberDropped Event = "subscriber.dropped"
	EventTaskCreated       Event = "task.created"
	EventTaskDeleted       Event = "task.deleted"
	EventTaskUpdated       Event = "task.updated"
)

// Events returns every event name.
func Events() []Event {
	return []Event{
		EventAttemptCreated,
		EventDraftFailed,
		EventDraftQueued,
		EventDraftSent,
		EventExecutionFinished,
		EventExecutionStarted,
		EventSubscriberDropped,
		EventTaskCreated,
		EventTaskDeleted,
		EventTaskUpdated,
	}
}

// TaskCreatedPayload is emitted when a task is created.
type TaskCreatedPayload struct {
	Task task.Task
}

// TaskUpdatedPayload is emitted when a task changes.
type TaskUpdatedPayload struct {
	Task task.Task
}

// TaskDeletedPayload is emitted when a task is deleted.
type TaskDeletedPayload struct {
	TaskID    string
	ProjectID string
}

// AttemptCreatedPayload is emitted when an attempt is started for a task.
type AttemptCreatedPayload struct {
	Attempt task.Attempt
}

// ExecutionStartedPayload is emitted when a process starts.
type ExecutionStartedPayload struct {
	Process execution.Process
}

// ExecutionFinishedPayload is emitted when a process reaches a terminal status.
type ExecutionFinishedPayload struct {
	Process execution.Process
}

// DraftQueuedPayload is emitted when a follow-up is queued behind a running turn.
type DraftQueuedPayload struct {
	AttemptID string
}

// DraftSentPayload is emitted after a follow-up was dispatched. Auto is set
// when the send was a queue flush rather than a user action.
type DraftSentPayload struct {
	AttemptID string
	Auto      bool
}

// DraftFailedPayload is emitted when dispatching a follow-up failed.
type DraftFailedPayload struct {
	AttemptID string
	Err       string
}

// SubscriberDroppedPayload is emitted when a slow stream subscriber is cut off.
type SubscriberDroppedPayload struct {
	Topic  string
	ConnID string
}
