// Copyright Peton Labs, 2026. All rights reserved.

// Package pipeline drives batch processing: list the work items, fetch
// content for each, run extraction, and write results back, recording
// durable progress so an interrupted batch resumes where it stopped.
package pipeline

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"

	"github.com/petonlabs/systematic-review-data-extraction/internal/mode"
	"github.com/petonlabs/systematic-review-data-extraction/internal/progress"
	"github.com/petonlabs/systematic-review-data-extraction/internal/ratelimit"
	"github.com/petonlabs/systematic-review-data-extraction/pkg/types"
)

// ContentResolver resolves full text for one item.
type ContentResolver interface {
	Resolve(ctx context.Context, item types.WorkItem) (types.FetchOutcome, error)
	ResolveDocumentFirst(ctx context.Context, item types.WorkItem) (types.FetchOutcome, error)
}

// Workbook is the tabular backend the pipeline reads from and writes to.
type Workbook interface {
	ListItems() ([]types.WorkItem, error)
	ApplyUpdates(itemID string, result types.ExtractionResult) error
}

// RunResult summarizes one batch run.
type RunResult struct {
	RunID     string
	Completed int
	Failed    int
	Skipped   int
}

// Total returns the number of items considered.
func (r RunResult) Total() int {
	return r.Completed + r.Failed + r.Skipped
}

// SuccessRate returns the completed fraction of attempted items as a
// percentage. Skipped items do not count as attempts.
func (r RunResult) SuccessRate() float64 {
	attempted := r.Completed + r.Failed
	if attempted == 0 {
		return 0
	}
	return 100 * float64(r.Completed) / float64(attempted)
}

// Runner executes one batch pass over the work list.
type Runner struct {
	workbook  Workbook
	resolver  ContentResolver
	extractor Extractor
	store     *progress.Store
	limiter   *ratelimit.Limiter

	strategy    mode.Strategy
	itemTimeout time.Duration

	w io.Writer
}

// NewRunner wires the pipeline components. The limiter may be nil, in
// which case only source-level pacing applies.
func NewRunner(wb Workbook, resolver ContentResolver, extractor Extractor,
	store *progress.Store, limiter *ratelimit.Limiter,
	strategy mode.Strategy, itemTimeout time.Duration, w io.Writer) *Runner {
	if w == nil {
		w = io.Discard
	}
	if itemTimeout <= 0 {
		itemTimeout = 10 * time.Minute
	}
	return &Runner{
		workbook:    wb,
		resolver:    resolver,
		extractor:   extractor,
		store:       store,
		limiter:     limiter,
		strategy:    strategy,
		itemTimeout: itemTimeout,
		w:           w,
	}
}

// Run processes every eligible item once. A single item's failure is
// recorded and the batch continues; cancellation stops the run between
// items, never mid-item.
func (r *Runner) Run(ctx context.Context) (RunResult, error) {
	result := RunResult{RunID: uuid.NewString()[:8]}

	items, err := r.workbook.ListItems()
	if err != nil {
		return result, fmt.Errorf("listing items: %w", err)
	}
	fmt.Fprintf(r.w, "run %s: %d items, %s strategy\n", result.RunID, len(items), r.strategy)

	for _, item := range items {
		if ctx.Err() != nil {
			fmt.Fprintf(r.w, "interrupted, stopping after %d items\n", result.Total())
			break
		}

		done, err := r.store.IsDone(ctx, item.ID)
		if err != nil {
			return result, fmt.Errorf("checking item %s: %w", item.ID, err)
		}
		if done {
			result.Skipped++
			continue
		}

		if r.processItem(ctx, item) {
			result.Completed++
		} else {
			if ctx.Err() != nil {
				// The in-flight item was cut off by cancellation, not a
				// genuine failure.
				fmt.Fprintf(r.w, "interrupted, stopping after %d items\n", result.Total())
				break
			}
			result.Failed++
		}
	}

	fmt.Fprintf(r.w, "\nrun %s summary: %d completed, %d failed, %d skipped (%.1f%% success)\n",
		result.RunID, result.Completed, result.Failed, result.Skipped, result.SuccessRate())
	return result, nil
}

// processItem runs the fetch/extract/update sequence for one item and
// reports whether it completed.
func (r *Runner) processItem(ctx context.Context, item types.WorkItem) bool {
	fmt.Fprintf(r.w, "processing item %s: %s\n", item.ID, itemLabel(item))

	if err := r.store.Start(ctx, item); err != nil {
		fmt.Fprintf(r.w, "  failed: %v\n", err)
		return false
	}

	itemCtx, cancel := context.WithTimeout(ctx, r.itemTimeout)
	defer cancel()

	outcome, err := r.resolve(itemCtx, item)
	if err != nil {
		r.fail(ctx, item.ID, err.Error(), "fetch")
		return false
	}

	if r.limiter != nil {
		if err := r.limiter.Admit(itemCtx, ratelimit.ServiceExtractor); err != nil {
			r.fail(ctx, item.ID, err.Error(), "extract")
			return false
		}
	}
	extracted, err := r.extractor.Extract(itemCtx, outcome.Text, outcome.Metadata)
	if err != nil {
		r.fail(ctx, item.ID, err.Error(), "extract")
		return false
	}
	if extracted.FieldCount() == 0 {
		r.fail(ctx, item.ID, "no data extracted", "extract")
		return false
	}

	if err := r.store.RecordSuccess(ctx, item.ID, extracted, outcome.SourceUsed); err != nil {
		fmt.Fprintf(r.w, "  failed: recording success: %v\n", err)
		return false
	}

	if r.limiter != nil {
		if err := r.limiter.Admit(itemCtx, ratelimit.ServiceSheet); err != nil {
			r.fail(ctx, item.ID, err.Error(), "update")
			return true
		}
	}
	if err := r.workbook.ApplyUpdates(item.ID, extracted); err != nil {
		// The extraction itself is durable; record the workbook problem
		// without downgrading the item.
		fmt.Fprintf(r.w, "  warning: workbook update failed: %v\n", err)
		r.fail(ctx, item.ID, err.Error(), "update")
		return true
	}

	fmt.Fprintf(r.w, "  completed via %s (%d fields)\n", outcome.SourceUsed, extracted.FieldCount())
	return true
}

func (r *Runner) resolve(ctx context.Context, item types.WorkItem) (types.FetchOutcome, error) {
	if r.strategy == mode.StrategyDocument {
		return r.resolver.ResolveDocumentFirst(ctx, item)
	}
	return r.resolver.Resolve(ctx, item)
}

// fail records the failure; the batch continues either way.
func (r *Runner) fail(ctx context.Context, itemID, message, stage string) {
	fmt.Fprintf(r.w, "  failed at %s: %s\n", stage, message)
	if err := r.store.RecordFailure(ctx, itemID, message, stage, false); err != nil {
		fmt.Fprintf(r.w, "  warning: recording failure: %v\n", err)
	}
}

func itemLabel(item types.WorkItem) string {
	switch {
	case item.Title != "":
		return item.Title
	case item.DOI != "":
		return item.DOI
	case item.PMID != "":
		return "PMID " + item.PMID
	default:
		return item.URL
	}
}
