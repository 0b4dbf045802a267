// Copyright Peton Labs, 2026. All rights reserved.

package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/petonlabs/systematic-review-data-extraction/internal/progress"
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export extracted data from completed articles",
	Long: `Export flattens the extracted fields of all completed articles into
one row per field and writes them as CSV, JSON, or XLSX.`,
	RunE: runExport,
}

func init() {
	exportCmd.Flags().String("format", "csv", "export format: csv, json, or xlsx")
	exportCmd.Flags().String("output", "", "output path (default: extracted.<format>)")

	rootCmd.AddCommand(exportCmd)
}

func runExport(cmd *cobra.Command, args []string) error {
	format, _ := cmd.Flags().GetString("format")
	output, _ := cmd.Flags().GetString("output")
	if output == "" {
		output = "extracted." + format
	}

	cfg := pipelineConfig()
	store, err := progress.NewStore(cfg.Progress)
	if err != nil {
		return err
	}
	defer store.Close()

	n, err := store.Export(context.Background(), format, output)
	if err != nil {
		return err
	}
	fmt.Printf("Exported %d rows to %s\n", n, output)
	return nil
}
