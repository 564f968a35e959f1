package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rumor-ml/commons.systems/assetsync/internal/permission"
	"github.com/rumor-ml/commons.systems/assetsync/internal/ui"
)

var requestPermission bool

var permissionsCmd = &cobra.Command{
	Use:   "permissions",
	Short: "Check access to the media library",
	Args:  cobra.NoArgs,
	RunE:  runPermissions,
}

func init() {
	permissionsCmd.Flags().BoolVar(&requestPermission, "request", false, "request access and report the detailed status")
}

func runPermissions(cmd *cobra.Command, args []string) error {
	if err := cfg.RequireSource(); err != nil {
		return err
	}

	checker := permission.NewFilesystem(cfg.Source.Dir)
	status := checker.Check(cmd.Context())
	if requestPermission {
		status = checker.Request(cmd.Context())
	}

	if status == permission.Granted {
		ui.Success(fmt.Sprintf("access to %s %s", cfg.Source.Dir, status))
		return nil
	}
	ui.Warning(fmt.Sprintf("access to %s %s", cfg.Source.Dir, status))
	return permission.Require(status)
}
