package main

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/rumor-ml/commons.systems/assetsync/internal/record"
	"github.com/rumor-ml/commons.systems/assetsync/internal/store"
	"github.com/rumor-ml/commons.systems/assetsync/internal/ui"
)

var filesFormat string

var filesCmd = &cobra.Command{
	Use:   "files",
	Short: "List sync records",
	Args:  cobra.NoArgs,
	RunE:  runFiles,
}

func init() {
	filesCmd.Flags().StringVarP(&filesFormat, "format", "f", "table", "output format: table, json or yaml")
}

func runFiles(cmd *cobra.Command, args []string) error {
	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	records, err := st.List(cmd.Context())
	if err != nil {
		var corrupt *store.CorruptEntryError
		if !errors.As(err, &corrupt) {
			return err
		}
		ui.Warning(err.Error())
	}
	return writeRecords(cmd, records)
}

func writeRecords(cmd *cobra.Command, records []*record.Record) error {
	if records == nil {
		records = []*record.Record{}
	}

	out := cmd.OutOrStdout()
	switch filesFormat {
	case "table":
		ui.Files(records)
	case "json":
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(records)
	case "yaml":
		enc := yaml.NewEncoder(out)
		defer enc.Close()
		return enc.Encode(records)
	default:
		return fmt.Errorf("unknown format %q (want table, json or yaml)", filesFormat)
	}
	return nil
}
