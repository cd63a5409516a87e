package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/tinytelemetry/canopy/internal/backup"
	"github.com/tinytelemetry/canopy/internal/charts"
	"github.com/tinytelemetry/canopy/internal/httpserver"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func newServeCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the refresh engine headless with the HTTP API",
		Long: `Starts chart polling at the configured refresh interval, optional periodic
backups of the template database, and the local HTTP API used by UI drivers.

Edits to the config file's refresh-interval are applied without a restart.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), c)
		},
	}
}

// runServe starts the engine, backups and the HTTP API and blocks until a
// signal arrives.
func runServe(parent context.Context, c *cli) error {
	cfg, logger := c.cfg, c.logger

	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	rt, err := openRuntime(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer rt.Close()

	if err := rt.engine.StartRefresh(ctx); err != nil {
		return fmt.Errorf("failed to start refresh: %w", err)
	}

	// Start periodic backups when enabled.
	backupManager, err := backup.NewManager(rt.store, cfg.Backup, rt.sched, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize backups: %w", err)
	}
	if backupManager != nil {
		if err := backupManager.Start(); err != nil {
			return fmt.Errorf("failed to start backups: %w", err)
		}
		defer backupManager.Stop()
	}

	// Start HTTP API server if enabled
	if cfg.APIEnabled {
		apiServer := httpserver.NewServer(cfg.APIAddr, rt.engine,
			httpserver.WithHealthChecker(rt.store),
			httpserver.WithLogger(logger))
		if err := apiServer.Start(); err != nil {
			return fmt.Errorf("failed to start API server: %w", err)
		}
		defer apiServer.Stop()
	}

	watchConfig(c.v, rt.engine, logger)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	go func() {
		select {
		case <-sigCh:
		case <-ctx.Done():
			return
		}
		fmt.Println("\nShutting down gracefully... (press Ctrl+C again to force)")
		cancel()

		// Shutdown deadline starts now, not at boot.
		deadline := time.NewTimer(10 * time.Second)
		defer deadline.Stop()

		select {
		case <-sigCh:
			fmt.Println("\nForce shutdown.")
		case <-deadline.C:
			fmt.Println("Shutdown timed out, forcing exit.")
		}
		os.Exit(1)
	}()

	printStartupBanner(cfg, backupManager != nil)

	g, gctx := errgroup.WithContext(ctx)

	// Relay applied snapshots to the log without blocking fetch rounds.
	snapshots := make(chan charts.Snapshot, 8)
	unsubscribe := rt.cache.Subscribe(func(s charts.Snapshot) {
		select {
		case snapshots <- s:
		default:
		}
	})
	defer unsubscribe()

	g.Go(func() error {
		for {
			select {
			case <-gctx.Done():
				return nil
			case s := <-snapshots:
				logger.Debug("chart snapshot applied",
					zap.Stringer("round", s.RoundID),
					zap.Int("charts", len(s.Payloads)),
					zap.Int("failed", len(s.Errors)))
			}
		}
	})

	g.Go(func() error {
		<-gctx.Done()
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("serve: errgroup exited with error", zap.Error(err))
	}
	rt.engine.PauseRefresh()
	return nil
}
