package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/rumor-ml/commons.systems/assetsync/internal/ui"
)

var resyncConfirm bool

var resyncCmd = &cobra.Command{
	Use:   "resync",
	Short: "Discard all sync records and sync from scratch",
	Long: "Delete every sync record and staged file, then run a full sync. Content the\n" +
		"remote already holds is deduplicated rather than uploaded again.",
	Args: cobra.NoArgs,
	RunE: runResync,
}

func init() {
	resyncCmd.Flags().BoolVar(&resyncConfirm, "yes", false, "confirm that all sync records may be discarded")
}

func runResync(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	eng, err := newEngine(ctx, cfg, logger, nil)
	if err != nil {
		return err
	}
	defer eng.Close()
	ctrl := eng.controller

	result, err := ctrl.Resync(ctx, resyncConfirm)
	if err != nil {
		return err
	}
	ui.Info("records cleared, run " + result.RunID + " started")

	done := make(chan struct{})
	go func() {
		ctrl.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		ctrl.StopSync()
		<-done
	}

	ui.Status(ctrl.CheckSyncStatus())
	return nil
}
