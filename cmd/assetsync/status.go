package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/rumor-ml/commons.systems/assetsync/internal/controller"
	"github.com/rumor-ml/commons.systems/assetsync/internal/ui"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the daemon's sync status",
	Args:  cobra.NoArgs,
	RunE:  runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	status, err := fetchStatus(cmd, "http://"+cfg.Server.Addr)
	if err != nil {
		return err
	}
	ui.Status(status)
	return nil
}

func fetchStatus(cmd *cobra.Command, baseURL string) (controller.Status, error) {
	client := &http.Client{Timeout: 5 * time.Second}

	req, err := http.NewRequestWithContext(cmd.Context(), http.MethodGet, baseURL+"/api/sync/status", nil)
	if err != nil {
		return controller.Status{}, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return controller.Status{}, fmt.Errorf("daemon not reachable at %s: %w", baseURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return controller.Status{}, fmt.Errorf("daemon returned status %d", resp.StatusCode)
	}

	var status controller.Status
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return controller.Status{}, fmt.Errorf("failed to decode status: %w", err)
	}
	return status, nil
}
