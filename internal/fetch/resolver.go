// Copyright Peton Labs, 2026. All rights reserved.

// Package fetch resolves full-text content for a work item by walking
// a prioritized chain of scholarly sources, falling back to registry
// metadata when no full text is reachable.
package fetch

import (
	"context"
	"fmt"
	"io"
	"strconv"

	"github.com/petonlabs/systematic-review-data-extraction/internal/cache"
	"github.com/petonlabs/systematic-review-data-extraction/internal/pdftext"
	"github.com/petonlabs/systematic-review-data-extraction/internal/ratelimit"
	"github.com/petonlabs/systematic-review-data-extraction/pkg/types"
)

const defaultMinContentLen = 500

// Resolver walks content sources in priority order until one yields
// enough cleaned text.
type Resolver struct {
	client  *client
	pdf     *pdftext.Extractor
	cache   *cache.Store
	limiter *ratelimit.Limiter

	minContentLen  int
	maxRetries     int
	unpaywallEmail string
	crossrefEmail  string
	ncbiKey        string

	w io.Writer
}

// New builds a Resolver. The cache store may be nil, which disables the
// cache-first path of ResolveDocumentFirst.
func New(cfg types.FetchConfig, pdf *pdftext.Extractor, store *cache.Store, window *ratelimit.Limiter, w io.Writer) *Resolver {
	minLen := cfg.MinContentLen
	if minLen <= 0 {
		minLen = defaultMinContentLen
	}
	maxRetries := cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}
	if w == nil {
		w = io.Discard
	}
	return &Resolver{
		client:         newClient(cfg, window),
		pdf:            pdf,
		cache:          store,
		limiter:        window,
		minContentLen:  minLen,
		maxRetries:     maxRetries,
		unpaywallEmail: cfg.UnpaywallEmail,
		crossrefEmail:  cfg.CrossRefEmail,
		ncbiKey:        cfg.NCBIAPIKey,
		w:              w,
	}
}

type source struct {
	name string
	fn   func(context.Context, types.WorkItem) (string, error)
}

func (r *Resolver) sources() []source {
	return []source{
		{"doi", r.fetchDOI},
		{"url", r.fetchURL},
		{"unpaywall", r.fetchUnpaywall},
		{"crossref", r.fetchCrossRef},
		{"pmc", r.fetchPMC},
		{"landing", r.fetchLanding},
		{"arxiv", r.fetchArxiv},
	}
}

// Resolve walks the source chain and returns the first result whose
// cleaned text clears the content threshold. When every source fails,
// it synthesizes a metadata-only block from the PubMed registry; when
// that is empty too, the error is ErrNoContent.
func (r *Resolver) Resolve(ctx context.Context, item types.WorkItem) (types.FetchOutcome, error) {
	for _, src := range r.sources() {
		text, err := r.attempt(ctx, src, item)
		if err != nil {
			if ctx.Err() != nil {
				return types.FetchOutcome{}, ctx.Err()
			}
			continue
		}
		if len(text) >= r.minContentLen {
			fmt.Fprintf(r.w, "  content from %s (%d chars)\n", src.name, len(text))
			return r.outcome(item, text, src.name), nil
		}
		fmt.Fprintf(r.w, "  %s returned %d chars, below threshold\n", src.name, len(text))
	}

	text, err := r.attempt(ctx, source{"metadata-only", r.fetchPubMedMetadata}, item)
	if err != nil || text == "" {
		if ctx.Err() != nil {
			return types.FetchOutcome{}, ctx.Err()
		}
		return types.FetchOutcome{}, ErrNoContent
	}
	fmt.Fprintf(r.w, "  falling back to registry metadata (%d chars)\n", len(text))
	return r.outcome(item, text, "metadata-only"), nil
}

// attempt runs one source with bounded retries on transient failures.
func (r *Resolver) attempt(ctx context.Context, src source, item types.WorkItem) (string, error) {
	var lastErr error
	for try := 0; try < r.maxRetries; try++ {
		text, err := src.fn(ctx, item)
		if err == nil {
			return text, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		if !isTransient(err) {
			break
		}
		fmt.Fprintf(r.w, "  %s attempt %d failed: %v\n", src.name, try+1, err)
		if try+1 < r.maxRetries && r.limiter != nil {
			if err := r.limiter.Backoff(ctx, try); err != nil {
				return "", err
			}
		}
	}
	return "", lastErr
}

func (r *Resolver) outcome(item types.WorkItem, text, sourceName string) types.FetchOutcome {
	meta := map[string]string{
		"chars": strconv.Itoa(len(text)),
	}
	if item.Title != "" {
		meta["title"] = item.Title
	}
	if item.DOI != "" {
		meta["doi"] = item.DOI
	}
	if item.PMID != "" {
		meta["pmid"] = item.PMID
	}
	return types.FetchOutcome{Text: text, Metadata: meta, SourceUsed: sourceName}
}
