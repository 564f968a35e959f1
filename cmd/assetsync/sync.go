package main

import (
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/rumor-ml/commons.systems/assetsync/internal/permission"
	"github.com/rumor-ml/commons.systems/assetsync/internal/syncer"
	"github.com/rumor-ml/commons.systems/assetsync/internal/ui"
)

var syncVerbose bool

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Run one discovery and upload pass",
	Long: "Discover every asset in the media library and upload those the remote does not\n" +
		"already hold. Ctrl+C stops the run before the next asset; the next run resumes.",
	Args: cobra.NoArgs,
	RunE: runSync,
}

func init() {
	syncCmd.Flags().BoolVarP(&syncVerbose, "verbose", "v", false, "print every asset as it finishes (default when stdout is a terminal)")
}

func runSync(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if !cmd.Flags().Changed("verbose") {
		syncVerbose = term.IsTerminal(int(os.Stdout.Fd()))
	}

	progress := make(chan syncer.Progress, 100)
	eng, err := newEngine(ctx, cfg, logger, progress)
	if err != nil {
		return err
	}
	defer eng.Close()

	if err := permission.Require(eng.permissions.Request(ctx)); err != nil {
		return err
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		printProgress(progress)
	}()

	result, err := eng.orchestrator.Run(ctx)
	close(progress)
	wg.Wait()
	if err != nil {
		return err
	}

	ui.RunResult(result)
	if result.Failed > 0 {
		return fmt.Errorf("%d of %d assets failed", result.Failed, result.Total)
	}
	return nil
}

func printProgress(progress <-chan syncer.Progress) {
	for p := range progress {
		switch p.Type {
		case syncer.ProgressTypeDiscovery:
			ui.Info(fmt.Sprintf("discovered %d assets", p.Total))
		case syncer.ProgressTypeError:
			ui.Warning(fmt.Sprintf("[%d/%d] %s: %s", p.Index, p.Total, p.AssetID, p.Message))
		case syncer.ProgressTypeAsset:
			if syncVerbose {
				ui.Info(fmt.Sprintf("[%d/%d] %s %s", p.Index, p.Total, p.AssetID, p.Outcome))
			}
		}
	}
}
