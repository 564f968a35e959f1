// Package ui prints command output for the assetsync CLI.
package ui

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"

	"github.com/rumor-ml/commons.systems/assetsync/internal/controller"
	"github.com/rumor-ml/commons.systems/assetsync/internal/history"
	"github.com/rumor-ml/commons.systems/assetsync/internal/record"
	"github.com/rumor-ml/commons.systems/assetsync/internal/syncer"
)

var (
	green  = color.New(color.FgGreen)
	yellow = color.New(color.FgYellow, color.Bold)
	blue   = color.New(color.FgBlue)
	red    = color.New(color.FgRed)
)

// Output is where every helper writes
var Output io.Writer = color.Output

// Header prints a formatted header
func Header(text string) {
	line := strings.Repeat("=", 60)
	green.Fprintf(Output, "\n%s\n", line)
	green.Fprintf(Output, "%-60s\n", center(text, 60))
	green.Fprintf(Output, "%s\n\n", line)
}

// Success prints a success message
func Success(text string) {
	green.Fprintf(Output, "  → %s\n", text)
}

// Info prints an info message
func Info(text string) {
	fmt.Fprintf(Output, "  → %s\n", text)
}

// Warning prints a warning message
func Warning(text string) {
	yellow.Fprintf(Output, "  ⚠ %s\n", text)
}

// Error prints an error message
func Error(text string) {
	red.Fprintf(Output, "Error: %s\n", text)
}

// RunResult prints the totals of a finished run and each failed asset
func RunResult(result *syncer.RunResult) {
	Header("Sync " + result.RunID)
	Info(fmt.Sprintf("discovered %d assets in %s", result.Discovered, result.Duration.Round(time.Millisecond)))
	Success(fmt.Sprintf("%d uploaded, %d already on remote, %d previously synced", result.Uploaded, result.Deduplicated, result.Skipped))
	if result.Cancelled {
		Warning(fmt.Sprintf("stopped after %d of %d assets", result.Total, result.Discovered))
	}
	for _, err := range result.DiscoveryErrors {
		Warning(err.Error())
	}
	for _, err := range result.SecondaryErrors {
		Warning(err.Error())
	}
	if result.Failed > 0 {
		red.Fprintf(Output, "  %d failed, retried on the next run\n", result.Failed)
		for _, err := range result.Errors {
			red.Fprintf(Output, "    %s [%s]: %v\n", err.AssetID, err.Step, err.Err)
		}
	}
}

// Status prints the controller status
func Status(status controller.Status) {
	if status.Syncing {
		Success(fmt.Sprintf("syncing (run %s since %s)", status.RunID, status.StartedAt.Format(time.RFC3339)))
	} else {
		Info("idle")
	}
	if status.LastRun != nil {
		r := status.LastRun
		Info(fmt.Sprintf("last run %s: %d uploaded, %d deduplicated, %d skipped, %d failed", r.RunID, r.Uploaded, r.Deduplicated, r.Skipped, r.Failed))
	}
	if status.LastError != "" {
		Error(status.LastError)
	}
}

// Files prints one row per sync record
func Files(records []*record.Record) {
	w := tabwriter.NewWriter(Output, 0, 0, 2, ' ', 0)
	blue.Fprintln(w, "ASSET\tSTATE\tTYPE\tSIZE\tHASH\tLOCATION")
	for _, r := range records {
		fmt.Fprintf(w, "%s\t%s\t%s\t%dx%d\t%s\t%s\n", r.AssetID, r.State(), r.ContentType, r.Width, r.Height, shortHash(r.ContentHash), r.Location)
	}
	w.Flush()
}

// Sessions prints recent runs, newest first
func Sessions(sessions []*history.Session) {
	w := tabwriter.NewWriter(Output, 0, 0, 2, ' ', 0)
	blue.Fprintln(w, "RUN\tSTATUS\tSTARTED\tUPLOADED\tDEDUPLICATED\tSKIPPED\tFAILED")
	for _, s := range sessions {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%d\t%d\n", s.ID, s.Status, s.StartedAt.Format(time.RFC3339), s.Stats.Uploaded, s.Stats.Deduplicated, s.Stats.Skipped, s.Stats.Failed)
	}
	w.Flush()
}

func shortHash(hash string) string {
	if len(hash) > 12 {
		return hash[:12]
	}
	if hash == "" {
		return "-"
	}
	return hash
}

// center centers text within a given width
func center(text string, width int) string {
	if len(text) >= width {
		return text
	}
	padding := (width - len(text)) / 2
	return strings.Repeat(" ", padding) + text
}
