package commands

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/rs/zerolog/log"

	"github.com/colonyops/hivesync/internal/board"
	"github.com/colonyops/hivesync/internal/core/config"
	"github.com/colonyops/hivesync/internal/core/eventbus"
	"github.com/colonyops/hivesync/internal/core/logging"
	"github.com/colonyops/hivesync/internal/core/stream"
	"github.com/colonyops/hivesync/internal/data/db"
	"github.com/colonyops/hivesync/internal/data/stores"
	"github.com/colonyops/hivesync/internal/state"
)

// eventBuffer bounds the bus queue between publishers and subscribers.
const eventBuffer = 1024

// openDatabase opens the SQLite file, moving a corrupt one aside and
// starting over once.
func openDatabase(cfg *config.Config) (*db.DB, error) {
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	opts := db.OpenOptions{
		MaxOpenConns: cfg.Database.MaxOpenConns,
		MaxIdleConns: cfg.Database.MaxIdleConns,
		BusyTimeout:  cfg.Database.BusyTimeout,
	}

	database, err := db.Open(cfg.DataDir, opts)
	if err == nil || !stores.IsCorruptionError(err) {
		return database, err
	}

	log.Warn().Err(err).Str("data_dir", cfg.DataDir).Msg("database corrupt, moving it aside")
	if rerr := stores.RecoverFromCorruption(cfg.DataDir); rerr != nil {
		return nil, errors.Join(err, rerr)
	}
	return db.Open(cfg.DataDir, opts)
}

// buildApp opens persistence, loads the state store and wires the board
// services. The returned closer releases the database.
func buildApp(ctx context.Context, cfg *config.Config) (*board.App, func() error, error) {
	database, err := openDatabase(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("open database: %w", err)
	}

	hub := stream.NewHub(
		stream.WithBuffer(cfg.Streams.Buffer),
		stream.WithLogger(logging.Component("hub")),
	)

	store := state.New(state.Stores{
		Tasks:     stores.NewTaskStore(database),
		Attempts:  stores.NewAttemptStore(database),
		Processes: stores.NewProcessStore(database),
		Drafts:    stores.NewDraftStore(database),
	}, hub, state.Options{MaxLogLines: cfg.Logs.MaxLines})

	if err := store.Load(ctx); err != nil {
		_ = database.Close()
		return nil, nil, fmt.Errorf("load state: %w", err)
	}

	bus := eventbus.New(eventBuffer)
	eventbus.RegisterDebugLogger(bus, logging.Component("eventbus"))

	app := board.NewApp(cfg, database, bus, store, logging.Component("board"))
	return app, database.Close, nil
}
