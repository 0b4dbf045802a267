package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/petonlabs/systematic-review-data-extraction/internal/fetch"
	"github.com/petonlabs/systematic-review-data-extraction/internal/mode"
	"github.com/petonlabs/systematic-review-data-extraction/internal/progress"
	"github.com/petonlabs/systematic-review-data-extraction/pkg/types"
)

type fakeWorkbook struct {
	items      []types.WorkItem
	updates    map[string]types.ExtractionResult
	updateErr  error
	listCalled int
}

func (f *fakeWorkbook) ListItems() ([]types.WorkItem, error) {
	f.listCalled++
	return f.items, nil
}

func (f *fakeWorkbook) ApplyUpdates(itemID string, result types.ExtractionResult) error {
	if f.updateErr != nil {
		return f.updateErr
	}
	if f.updates == nil {
		f.updates = map[string]types.ExtractionResult{}
	}
	f.updates[itemID] = result
	return nil
}

type fakeResolver struct {
	texts    map[string]string // item ID -> text; missing means no content
	docCalls int
}

func (f *fakeResolver) Resolve(ctx context.Context, item types.WorkItem) (types.FetchOutcome, error) {
	if text, ok := f.texts[item.ID]; ok {
		return types.FetchOutcome{Text: text, SourceUsed: "doi"}, nil
	}
	return types.FetchOutcome{}, fetch.ErrNoContent
}

func (f *fakeResolver) ResolveDocumentFirst(ctx context.Context, item types.WorkItem) (types.FetchOutcome, error) {
	f.docCalls++
	return f.Resolve(ctx, item)
}

type fakeExtractor struct {
	results map[string]types.ExtractionResult // keyed by input text
	err     error
}

func (f *fakeExtractor) Extract(ctx context.Context, text string, metadata map[string]string) (types.ExtractionResult, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.results[text], nil
}

func newTestRunnerStore(t *testing.T) *progress.Store {
	t.Helper()
	s, err := progress.NewStore(types.ProgressConfig{
		DatabasePath: filepath.Join(t.TempDir(), "progress.db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func twoItems() []types.WorkItem {
	return []types.WorkItem{
		{ID: "2", RowIndex: 2, DOI: "10.1/a", Title: "First"},
		{ID: "3", RowIndex: 3, PMID: "11111", Title: "Second"},
	}
}

func TestRunCompletesItems(t *testing.T) {
	store := newTestRunnerStore(t)
	wb := &fakeWorkbook{items: twoItems()}
	resolver := &fakeResolver{texts: map[string]string{"2": "text-a", "3": "text-b"}}
	extractor := &fakeExtractor{results: map[string]types.ExtractionResult{
		"text-a": {"outcomes": {"primary": "improved"}},
		"text-b": {"outcomes": {"primary": "unchanged"}},
	}}

	var buf bytes.Buffer
	runner := NewRunner(wb, resolver, extractor, store, nil, mode.StrategyContent, time.Minute, &buf)

	result, err := runner.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, result.Completed)
	assert.Zero(t, result.Failed)
	assert.Zero(t, result.Skipped)
	assert.InDelta(t, 100.0, result.SuccessRate(), 0.01)
	assert.NotEmpty(t, result.RunID)

	assert.Equal(t, "improved", wb.updates["2"]["outcomes"]["primary"])

	done, err := store.IsDone(context.Background(), "2")
	require.NoError(t, err)
	assert.True(t, done)

	assert.Contains(t, buf.String(), "2 completed, 0 failed")
	assert.Zero(t, resolver.docCalls, "content strategy never touches the document chain")
}

func TestRunDocumentStrategy(t *testing.T) {
	store := newTestRunnerStore(t)
	wb := &fakeWorkbook{items: twoItems()[:1]}
	resolver := &fakeResolver{texts: map[string]string{"2": "text-a"}}
	extractor := &fakeExtractor{results: map[string]types.ExtractionResult{
		"text-a": {"outcomes": {"primary": "improved"}},
	}}

	runner := NewRunner(wb, resolver, extractor, store, nil, mode.StrategyDocument, time.Minute, nil)

	_, err := runner.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, resolver.docCalls)
}

func TestRunSkipsCompletedItems(t *testing.T) {
	store := newTestRunnerStore(t)
	wb := &fakeWorkbook{items: twoItems()}
	resolver := &fakeResolver{texts: map[string]string{"2": "text-a", "3": "text-b"}}
	extractor := &fakeExtractor{results: map[string]types.ExtractionResult{
		"text-a": {"outcomes": {"primary": "x"}},
		"text-b": {"outcomes": {"primary": "y"}},
	}}

	runner := NewRunner(wb, resolver, extractor, store, nil, mode.StrategyContent, time.Minute, nil)

	first, err := runner.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, first.Completed)

	second, err := runner.Run(context.Background())
	require.NoError(t, err)
	assert.Zero(t, second.Completed)
	assert.Equal(t, 2, second.Skipped)
}

func TestRunRecordsFetchFailure(t *testing.T) {
	store := newTestRunnerStore(t)
	wb := &fakeWorkbook{items: twoItems()}
	resolver := &fakeResolver{texts: map[string]string{"3": "text-b"}} // item 2 has no content
	extractor := &fakeExtractor{results: map[string]types.ExtractionResult{
		"text-b": {"outcomes": {"primary": "y"}},
	}}

	runner := NewRunner(wb, resolver, extractor, store, nil, mode.StrategyContent, time.Minute, nil)

	result, err := runner.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Completed, "one failure does not abort the batch")
	assert.Equal(t, 1, result.Failed)

	failed, err := store.Failed(context.Background())
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Equal(t, "2", failed[0].ID)
	assert.Contains(t, failed[0].ErrorMessage, "no content found")
}

func TestRunEmptyExtractionFails(t *testing.T) {
	store := newTestRunnerStore(t)
	wb := &fakeWorkbook{items: twoItems()[:1]}
	resolver := &fakeResolver{texts: map[string]string{"2": "text-a"}}
	extractor := &fakeExtractor{results: map[string]types.ExtractionResult{}} // nothing extracted

	runner := NewRunner(wb, resolver, extractor, store, nil, mode.StrategyContent, time.Minute, nil)

	result, err := runner.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Failed)

	failed, err := store.Failed(context.Background())
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Equal(t, "no data extracted", failed[0].ErrorMessage)
}

func TestRunWorkbookFailureKeepsCompletion(t *testing.T) {
	store := newTestRunnerStore(t)
	wb := &fakeWorkbook{
		items:     twoItems()[:1],
		updateErr: fmt.Errorf("workbook is open elsewhere"),
	}
	resolver := &fakeResolver{texts: map[string]string{"2": "text-a"}}
	extractor := &fakeExtractor{results: map[string]types.ExtractionResult{
		"text-a": {"outcomes": {"primary": "x"}},
	}}

	var buf bytes.Buffer
	runner := NewRunner(wb, resolver, extractor, store, nil, mode.StrategyContent, time.Minute, &buf)

	result, err := runner.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Completed, "extraction is durable despite the write-back failure")
	assert.Contains(t, buf.String(), "workbook update failed")

	done, err := store.IsDone(context.Background(), "2")
	require.NoError(t, err)
	assert.True(t, done, "the item stays completed so a rerun skips it")
}

func TestRunStopsOnCancellation(t *testing.T) {
	store := newTestRunnerStore(t)
	wb := &fakeWorkbook{items: twoItems()}
	resolver := &fakeResolver{texts: map[string]string{"2": "text-a", "3": "text-b"}}
	extractor := &fakeExtractor{results: map[string]types.ExtractionResult{
		"text-a": {"outcomes": {"primary": "x"}},
		"text-b": {"outcomes": {"primary": "y"}},
	}}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	runner := NewRunner(wb, resolver, extractor, store, nil, mode.StrategyContent, time.Minute, nil)

	result, err := runner.Run(ctx)
	require.NoError(t, err)
	assert.Zero(t, result.Total(), "a cancelled run processes nothing")
}
