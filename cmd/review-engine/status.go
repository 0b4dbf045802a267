// Copyright Peton Labs, 2026. All rights reserved.

package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"github.com/petonlabs/systematic-review-data-extraction/internal/mode"
	"github.com/petonlabs/systematic-review-data-extraction/internal/progress"
	"github.com/petonlabs/systematic-review-data-extraction/internal/ratelimit"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show batch progress and recent failures",
	RunE:  runStatus,
}

func init() {
	statusCmd.Flags().Bool("failed", false, "list every failed article instead of the summary")

	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg := pipelineConfig()

	store, err := progress.NewStore(cfg.Progress)
	if err != nil {
		return err
	}
	defer store.Close()

	ctx := context.Background()

	if onlyFailed, _ := cmd.Flags().GetBool("failed"); onlyFailed {
		failed, err := store.Failed(ctx)
		if err != nil {
			return err
		}
		if len(failed) == 0 {
			fmt.Println("No failed articles.")
			return nil
		}
		for _, r := range failed {
			fmt.Fprintf(os.Stdout, "%-6s  %-40s  %s\n", r.ID, truncate(r.Title, 40), r.ErrorMessage)
		}
		fmt.Fprintf(os.Stdout, "\n%d failed articles\n", len(failed))
		return nil
	}

	sum, err := store.Summary(ctx)
	if err != nil {
		return err
	}

	fmt.Fprintf(os.Stdout, "Progress: %d/%d completed (%.1f%%), %d failed, %d in progress\n",
		sum.Completed, sum.Total, sum.CompletionPct, sum.Failed, sum.InProgress)

	if len(sum.RecentFailures) > 0 {
		fmt.Fprintln(os.Stdout, "\nRecent failures:")
		for _, r := range sum.RecentFailures {
			fmt.Fprintf(os.Stdout, "  %-6s  %s\n", r.ID, r.ErrorMessage)
		}
	}

	limits := ratelimit.New(cfg.RateLimit, io.Discard).Status()
	services := make([]string, 0, len(limits))
	for service := range limits {
		services = append(services, service)
	}
	sort.Strings(services)
	fmt.Fprintln(os.Stdout, "\nRate limits (requests/minute):")
	for _, service := range services {
		fmt.Fprintf(os.Stdout, "  %-10s %d\n", service, limits[service].Limit)
	}

	if state, err := mode.NewManager(cfg.Mode).Load(); err == nil && state != nil {
		fmt.Fprintf(os.Stdout, "\nStrategy: %s (last used %s)\n",
			state.Strategy, state.LastUsedAt.Format("2006-01-02 15:04"))
		fmt.Fprintf(os.Stdout, "Lifetime: %d processed, %d succeeded, %d failed\n",
			state.Processed, state.Succeeded, state.Failed)
	}
	return nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
