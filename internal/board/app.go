// Package board holds the application services that feed the state store:
// task CRUD, orchestration ingestion, diffs and follow-up dispatch.
package board

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"github.com/colonyops/hivesync/internal/core/config"
	"github.com/colonyops/hivesync/internal/core/draft"
	"github.com/colonyops/hivesync/internal/core/eventbus"
	"github.com/colonyops/hivesync/internal/core/stream"
	"github.com/colonyops/hivesync/internal/data/db"
	"github.com/colonyops/hivesync/internal/state"
)

// App is the central entry point for all server operations.
// Commands and the HTTP layer consume App instead of cherry-picking raw
// dependencies.
type App struct {
	Tasks      *TaskService
	Executions *ExecutionService
	Diffs      *DiffService
	Drafts     *draft.Coordinator
	Stats      *Stats

	State  *state.Store
	Hub    *stream.Hub
	Bus    *eventbus.EventBus
	Config *config.Config
	DB     *db.DB
}

// NewApp wires the services around a loaded state store.
func NewApp(cfg *config.Config, database *db.DB, bus *eventbus.EventBus, store *state.Store, log zerolog.Logger) *App {
	hub := store.Hub()
	executions := NewExecutionService(store, bus, log)
	dispatcher := NewDispatcher(cfg.Dispatch, executions, log)

	coordinator := draft.NewCoordinator(store, store, dispatcher, bus, draft.Options{
		AutosaveDelay: cfg.Drafts.AutosaveDelay,
		SendTimeout:   cfg.Drafts.SendTimeout,
	})
	executions.OnTurnCompleted(coordinator.OnTurnCompleted)

	hub.OnDrop(func(sub *stream.Subscriber, _ error) {
		bus.PublishSubscriberDropped(eventbus.SubscriberDroppedPayload{
			Topic:  sub.Topic().String(),
			ConnID: sub.ConnID(),
		})
	})

	return &App{
		Tasks:      NewTaskService(store, bus, coordinator, log),
		Executions: executions,
		Diffs:      NewDiffService(store),
		Drafts:     coordinator,
		Stats:      NewStats(bus, hub),
		State:      store,
		Hub:        hub,
		Bus:        bus,
		Config:     cfg,
		DB:         database,
	}
}

// Close persists unsaved drafts, waits for in-flight flushes and detaches
// every stream subscriber.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	if a.Drafts != nil {
		errs = append(errs, a.Drafts.Close(ctx))
	}
	if a.Hub != nil {
		a.Hub.Close()
	}
	return errors.Join(errs...)
}
