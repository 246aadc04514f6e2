package cmd

import (
	"context"
	"errors"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/quarrydocs/quarry/internal/config"
	"github.com/quarrydocs/quarry/internal/index"
	"github.com/quarrydocs/quarry/internal/server"
	"github.com/quarrydocs/quarry/internal/watcher"
)

func newServeCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Watch the roots and serve the HTTP API",
		Long: `Serve runs the full pipeline: an initial scan, filesystem watching
with debounced re-indexing, periodic rescans, and the JSON HTTP API.

Stops gracefully on SIGINT/SIGTERM, persisting the index first.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Server.Addr = addr
			}
			return runServe(cmd.Context(), cfg)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (default from config)")

	return cmd
}

func runServe(ctx context.Context, cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := newApp(ctx, cfg, true)
	if err != nil {
		return err
	}
	defer app.Close()

	watch, err := watcher.NewFSWatcher(watcher.Options{
		DebounceWindow: cfg.Indexer.DebounceWindowDuration(),
		ShouldIgnore:   app.shouldIgnore,
	})
	if err != nil {
		return err
	}

	runner := index.NewRunner(
		app.coordinator,
		watch,
		cfg.Roots,
		cfg.Indexer.RescanIntervalDuration(),
		app.persistVectors,
	)

	srv := server.New(server.Config{
		Engine:      app.engine,
		Coordinator: app.coordinator,
		Highlights:  app.highlights,
		Vectors:     app.vectors,
		Roots:       cfg.Roots,
	})

	slog.Info("quarry_serving",
		slog.String("addr", cfg.Server.Addr),
		slog.Any("roots", cfg.Roots))

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		err := runner.Run(gctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})

	g.Go(func() error {
		return srv.Start(cfg.Server.Addr)
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	err = g.Wait()

	// Persist whatever the pipeline accumulated before exit.
	if saveErr := app.persistVectors(); saveErr != nil && err == nil {
		err = saveErr
	}

	slog.Info("quarry_stopped")
	return err
}
