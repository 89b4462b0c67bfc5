package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v3"
	"golang.org/x/sync/errgroup"

	"github.com/colonyops/hivesync/internal/board"
	"github.com/colonyops/hivesync/internal/printer"
	"github.com/colonyops/hivesync/internal/server"
)

type ServeCmd struct {
	flags *Flags
	addr  string
	pprof bool
}

// NewServeCmd creates a new serve command
func NewServeCmd(flags *Flags) *ServeCmd {
	return &ServeCmd{flags: flags}
}

// Register adds the serve command to the application
func (cmd *ServeCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:      "serve",
		Usage:     "Run the sync server",
		UsageText: "hivesync serve [options]",
		Description: `Starts the HTTP API and the stream endpoint.

Every collection (tasks, execution processes, logs, diffs and drafts) is
streamed to clients as a snapshot followed by JSON Patch updates. Drafts
left mid-send by a previous run are reverted to editing on startup.`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "addr",
				Usage:       "listen address (overrides server.addr)",
				Sources:     cli.EnvVars("HIVESYNC_ADDR"),
				Destination: &cmd.addr,
			},
			&cli.BoolFlag{
				Name:        "pprof",
				Usage:       "expose /debug/pprof endpoints",
				Destination: &cmd.pprof,
			},
		},
		Action: cmd.run,
	})

	return app
}

func (cmd *ServeCmd) run(ctx context.Context, c *cli.Command) error {
	cfg := cmd.flags.Config
	if cmd.addr != "" {
		cfg.Server.Addr = cmd.addr
	}
	if cmd.pprof {
		cfg.Server.Pprof = true
	}

	app, closeDB, err := buildApp(ctx, cfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := server.New(app)
	if err := srv.Start(ctx); err != nil {
		return errors.Join(err, app.Close(context.Background()), closeDB())
	}
	printer.Ctx(ctx).Successf("Listening on http://%s", srv.Addr())

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		app.Bus.Start(gctx)
		return nil
	})
	g.Go(func() error {
		board.StartLogSweep(gctx, app.State, cfg.Logs.Retention, cfg.Logs.SweepInterval)
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("shutdown requested")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		return errors.Join(
			srv.Shutdown(shutdownCtx),
			app.Close(shutdownCtx),
		)
	})

	if err := g.Wait(); err != nil {
		_ = closeDB()
		return fmt.Errorf("serve: %w", err)
	}
	return closeDB()
}
