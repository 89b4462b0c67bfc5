package board

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/colonyops/hivesync/internal/core/config"
	"github.com/colonyops/hivesync/internal/core/eventbus/testbus"
	"github.com/colonyops/hivesync/internal/core/stream"
	"github.com/colonyops/hivesync/internal/data/db"
	"github.com/colonyops/hivesync/internal/data/stores"
	"github.com/colonyops/hivesync/internal/state"
)

func newTestApp(t *testing.T, mutate func(*config.Config)) (*App, *testbus.Bus) {
	t.Helper()

	cfg := config.DefaultConfig()
	cfg.DataDir = t.TempDir()
	cfg.Drafts.AutosaveDelay = 0
	cfg.Drafts.SendTimeout = 2 * time.Second
	if mutate != nil {
		mutate(&cfg)
	}

	database, err := db.Open(cfg.DataDir, db.DefaultOpenOptions())
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close() })

	store := state.New(state.Stores{
		Tasks:     stores.NewTaskStore(database),
		Attempts:  stores.NewAttemptStore(database),
		Processes: stores.NewProcessStore(database),
		Drafts:    stores.NewDraftStore(database),
	}, stream.NewHub(), state.Options{MaxLogLines: cfg.Logs.MaxLines})
	require.NoError(t, store.Load(context.Background()))

	bus := testbus.New(t)
	app := NewApp(&cfg, database, bus.EventBus, store, zerolog.Nop())
	t.Cleanup(func() { _ = app.Close(context.Background()) })
	return app, bus
}
