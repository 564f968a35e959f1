package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rumor-ml/commons.systems/assetsync/internal/config"
	"github.com/rumor-ml/commons.systems/assetsync/internal/gcp"
	"github.com/rumor-ml/commons.systems/assetsync/internal/history"
	"github.com/rumor-ml/commons.systems/assetsync/internal/ui"
)

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recent sync runs",
	Long:  "List recent sync runs. Run history is persisted only by the gcs backend.",
	Args:  cobra.NoArgs,
	RunE:  runHistory,
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "number of runs to show")
}

func runHistory(cmd *cobra.Command, args []string) error {
	if cfg.Remote.Backend != config.BackendGCS {
		return fmt.Errorf("run history is not persisted by the %s backend", cfg.Remote.Backend)
	}
	if err := cfg.RequireRemote(); err != nil {
		return err
	}

	clients, err := gcp.NewClients(cmd.Context(), cfg.Remote.ProjectID)
	if err != nil {
		return err
	}
	defer clients.Close()

	sessions, err := history.NewFirestoreStore(clients.Firestore).List(cmd.Context(), historyLimit)
	if err != nil {
		return fmt.Errorf("failed to list runs: %w", err)
	}
	if len(sessions) == 0 {
		ui.Info("no runs recorded")
		return nil
	}
	ui.Sessions(sessions)
	return nil
}
