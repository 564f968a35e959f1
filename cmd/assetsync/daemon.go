package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/rumor-ml/commons.systems/assetsync/internal/api"
)

const shutdownTimeout = 10 * time.Second

var syncOnStart bool

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Serve the control API and run scheduled and watched syncs",
	Long: "Serve the HTTP control API on server.addr. Runs start on request, every\n" +
		"sync.interval when set, and after the media directory changes when sync.watch\n" +
		"is enabled. At most one run is active at a time.",
	Args: cobra.NoArgs,
	RunE: runDaemon,
}

func init() {
	daemonCmd.Flags().BoolVar(&syncOnStart, "sync-on-start", true, "start a run as soon as the daemon is up")
}

func runDaemon(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	eng, err := newEngine(ctx, cfg, logger, nil)
	if err != nil {
		return err
	}
	defer eng.Close()
	ctrl := eng.controller

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           api.NewRouter(ctrl, logger),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("control API listening", "addr", cfg.Server.Addr)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	if cfg.Sync.Interval > 0 {
		g.Go(func() error {
			return ctrl.RunScheduler(gctx, cfg.Sync.Interval)
		})
	}
	if cfg.Sync.Watch {
		g.Go(func() error {
			return ctrl.Watch(gctx, cfg.Source.Dir)
		})
	}

	if syncOnStart {
		if _, err := ctrl.StartSync(gctx); err != nil {
			logger.Warn("initial sync not started", "error", err)
		}
	}

	err = g.Wait()

	// A run in progress stops before its next asset; its record writes are
	// complete before the store closes.
	if ctrl.StopSync() {
		logger.Info("waiting for active run to stop")
	}
	ctrl.Wait()
	return err
}
