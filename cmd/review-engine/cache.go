// Copyright Peton Labs, 2026. All rights reserved.

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/petonlabs/systematic-review-data-extraction/internal/cache"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect and maintain the document cache",
}

var cacheListCmd = &cobra.Command{
	Use:   "list",
	Short: "List cached documents",
	RunE:  runCacheList,
}

var cacheCleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Delete cached documents older than a cutoff",
	RunE:  runCacheCleanup,
}

func init() {
	cacheListCmd.Flags().String("prefix", "", "only list keys with this prefix")
	cacheCleanupCmd.Flags().Int("days", 90, "delete documents older than this many days")

	cacheCmd.AddCommand(cacheListCmd)
	cacheCmd.AddCommand(cacheCleanupCmd)
	rootCmd.AddCommand(cacheCmd)
}

func runCacheList(cmd *cobra.Command, args []string) error {
	prefix, _ := cmd.Flags().GetString("prefix")

	store := cache.New(pipelineConfig().Cache)
	objects, err := store.List(prefix)
	if err != nil {
		return err
	}
	if len(objects) == 0 {
		fmt.Println("Cache is empty.")
		return nil
	}

	var total int64
	for _, obj := range objects {
		fmt.Fprintf(os.Stdout, "%-60s  %10d  %s\n", obj.Key, obj.Size,
			obj.LastModified.Format("2006-01-02 15:04"))
		total += obj.Size
	}
	fmt.Fprintf(os.Stdout, "\n%d documents, %.1f MB\n", len(objects), float64(total)/(1<<20))
	return nil
}

func runCacheCleanup(cmd *cobra.Command, args []string) error {
	days, _ := cmd.Flags().GetInt("days")

	store := cache.New(pipelineConfig().Cache)
	removed, err := store.CleanupOlderThan(days)
	if err != nil {
		return err
	}
	fmt.Printf("Removed %d documents older than %d days\n", removed, days)
	return nil
}
