package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/rumor-ml/commons.systems/assetsync/internal/config"
	"github.com/rumor-ml/commons.systems/assetsync/internal/logging"
	"github.com/rumor-ml/commons.systems/assetsync/internal/ui"
)

// version is set at build time with -ldflags "-X main.version=..."
var version = "dev"

var (
	cfgFile string

	cfg       *config.Config
	logger    *slog.Logger
	logCloser io.Closer
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "assetsync",
	Short: "Sync a local media library to remote storage",
	Long: "assetsync uploads every photo in a media library to remote storage exactly once.\n\n" +
		"Each asset is fetched, normalized, hashed and checked against the remote before\n" +
		"upload. Progress is kept in a local record store, so interrupted runs resume\n" +
		"where they stopped.",
	SilenceUsage:       true,
	PersistentPreRunE:  initializeApp,
	PersistentPostRunE: closeApp,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		ui.Error(err.Error())
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.config/assetsync/config.yaml)")

	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(daemonCmd)
	rootCmd.AddCommand(filesCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(permissionsCmd)
	rootCmd.AddCommand(resyncCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(versionCmd)
}

// initializeApp loads configuration and the logger before any command runs
func initializeApp(cmd *cobra.Command, args []string) error {
	if cmd == versionCmd {
		return nil
	}

	loaded, err := config.Load(cfgFile)
	if err != nil {
		return err
	}

	l, closer, err := logging.SetupLogger(loaded.Logging, os.Stderr)
	if err != nil {
		return fmt.Errorf("failed to set up logging: %w", err)
	}

	cfg, logger, logCloser = loaded, l, closer
	return nil
}

func closeApp(cmd *cobra.Command, args []string) error {
	if logCloser != nil {
		return logCloser.Close()
	}
	return nil
}
