// Copyright Peton Labs, 2026. All rights reserved.

package main

import (
	"bufio"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/petonlabs/systematic-review-data-extraction/internal/cache"
	"github.com/petonlabs/systematic-review-data-extraction/internal/fetch"
	"github.com/petonlabs/systematic-review-data-extraction/internal/mode"
	"github.com/petonlabs/systematic-review-data-extraction/internal/pdftext"
	"github.com/petonlabs/systematic-review-data-extraction/internal/pipeline"
	"github.com/petonlabs/systematic-review-data-extraction/internal/progress"
	"github.com/petonlabs/systematic-review-data-extraction/internal/ratelimit"
	"github.com/petonlabs/systematic-review-data-extraction/internal/sheet"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Process the workbook: fetch, extract, and write back results",
	Long: `Run walks every article row in the workbook, resolves full text
through the source chain, sends it to the extraction service, and writes the
extracted fields into the category sheets.

Completed articles are skipped on rerun. Ctrl-C stops the batch between
articles; progress up to that point is kept.`,
	RunE: runBatch,
}

func init() {
	runCmd.Flags().String("strategy", "", "acquisition strategy: 1/content or 2/document (default: saved or prompt)")
	runCmd.Flags().String("workbook", "", "workbook path (overrides config)")
	runCmd.Flags().Bool("no-cache", false, "disable the document cache for this run")

	rootCmd.AddCommand(runCmd)
}

func runBatch(cmd *cobra.Command, args []string) error {
	cfg := pipelineConfig()
	if wbPath, _ := cmd.Flags().GetString("workbook"); wbPath != "" {
		cfg.Workbook.Path = wbPath
	}
	noCache, _ := cmd.Flags().GetBool("no-cache")

	if cfg.Extractor.Endpoint == "" {
		return fmt.Errorf("no extraction endpoint configured (set extractor.endpoint)")
	}

	modeMgr := mode.NewManager(cfg.Mode)
	state, err := modeMgr.Load()
	if err != nil {
		return err
	}

	strategyInput, _ := cmd.Flags().GetString("strategy")
	if strategyInput == "" && state == nil {
		strategyInput = promptStrategy()
	}
	strategy, err := mode.ChooseStrategy(state, strategyInput)
	if err != nil {
		return err
	}
	if state == nil {
		state = &mode.State{CacheEnabled: !noCache}
	}
	state.Strategy = strategy
	if err := modeMgr.Save(state); err != nil {
		return err
	}

	limiter := ratelimit.New(cfg.RateLimit, os.Stdout)

	var store *cache.Store
	if !noCache && state.CacheEnabled {
		store = cache.New(cfg.Cache)
	}

	extractor := pdftext.New(cfg.PDF)
	resolver := fetch.New(cfg.Fetch, extractor, store, limiter, os.Stdout)

	progressStore, err := progress.NewStore(cfg.Progress)
	if err != nil {
		return err
	}
	defer progressStore.Close()

	wb, err := sheet.Open(cfg.Workbook, os.Stdout)
	if err != nil {
		return err
	}
	defer wb.Close()

	collaborator := pipeline.NewHTTPExtractor(cfg.Extractor)

	runner := pipeline.NewRunner(wb, resolver, collaborator, progressStore,
		limiter, strategy, cfg.ItemTimeout, os.Stdout)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	result, err := runner.Run(ctx)
	if err != nil {
		return err
	}

	if err := modeMgr.UpdateCounters(state, result.Total()-result.Skipped,
		result.Completed, result.Failed, ""); err != nil {
		fmt.Fprintf(os.Stderr, "warning: saving mode state: %v\n", err)
	}

	if result.Failed > 0 {
		return fmt.Errorf("%d article(s) failed processing", result.Failed)
	}
	return nil
}

// promptStrategy asks for the acquisition strategy on first use.
func promptStrategy() string {
	fmt.Print("Select acquisition strategy [1=content chain, 2=document first] (default 1): ")
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		return ""
	}
	return strings.TrimSpace(line)
}
