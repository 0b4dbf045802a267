// Copyright Peton Labs, 2026. All rights reserved.

package fetch

import (
	"context"
	"fmt"

	"github.com/petonlabs/systematic-review-data-extraction/pkg/types"
)

// pmcPDFBase is a var so tests can substitute an httptest server.
var pmcPDFBase = "https://www.ncbi.nlm.nih.gov/pmc/articles/"

type docSource struct {
	name string
	fn   func(context.Context, types.WorkItem) ([]byte, error)
}

func (r *Resolver) docSources() []docSource {
	return []docSource{
		{"doi-pdf", r.docDOI},
		{"unpaywall-pdf", r.docUnpaywall},
		{"url-pdf", r.docURL},
		{"pmc-pdf", r.docPMC},
		{"arxiv-pdf", r.docArxiv},
	}
}

// ResolveDocumentFirst prefers whole documents over scraped text: the
// object cache is checked first, then the document chain runs, and only
// when neither yields usable text does it fall back to Resolve.
func (r *Resolver) ResolveDocumentFirst(ctx context.Context, item types.WorkItem) (types.FetchOutcome, error) {
	if out, ok := r.fromCache(item); ok {
		return out, nil
	}

	for _, src := range r.docSources() {
		data, err := r.attemptDoc(ctx, src, item)
		if err != nil {
			if ctx.Err() != nil {
				return types.FetchOutcome{}, ctx.Err()
			}
			continue
		}

		if r.cache != nil {
			if key, err := r.cache.Store(data, item, src.name, false); err != nil {
				fmt.Fprintf(r.w, "  warning: caching document failed: %v\n", err)
			} else {
				fmt.Fprintf(r.w, "  cached document as %s\n", key)
			}
		}

		text, err := r.pdf.Extract(data)
		if err != nil || text == "" {
			fmt.Fprintf(r.w, "  %s: document yielded no text\n", src.name)
			continue
		}
		fmt.Fprintf(r.w, "  document from %s (%d chars)\n", src.name, len(text))
		return r.outcome(item, text, src.name), nil
	}

	fmt.Fprintf(r.w, "  no usable document, trying text sources\n")
	return r.Resolve(ctx, item)
}

// fromCache returns a cached document's extracted text when the item
// has a deterministic key and the object exists.
func (r *Resolver) fromCache(item types.WorkItem) (types.FetchOutcome, bool) {
	if r.cache == nil {
		return types.FetchOutcome{}, false
	}
	key, ok := r.cache.KeyFor(item)
	if !ok || !r.cache.Exists(key) {
		return types.FetchOutcome{}, false
	}
	data, err := r.cache.Retrieve(key)
	if err != nil {
		return types.FetchOutcome{}, false
	}
	text, err := r.pdf.Extract(data)
	if err != nil || text == "" {
		return types.FetchOutcome{}, false
	}
	fmt.Fprintf(r.w, "  cache hit: %s\n", key)
	out := r.outcome(item, text, "cache")
	out.Metadata["cache_key"] = key
	return out, true
}

// attemptDoc runs one document source with bounded retries and
// validates the result is a real document of acceptable size.
func (r *Resolver) attemptDoc(ctx context.Context, src docSource, item types.WorkItem) ([]byte, error) {
	var lastErr error
	for try := 0; try < r.maxRetries; try++ {
		data, err := src.fn(ctx, item)
		if err == nil {
			if err := r.validateDoc(src.name, data); err != nil {
				return nil, err
			}
			return data, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if !isTransient(err) {
			break
		}
		fmt.Fprintf(r.w, "  %s attempt %d failed: %v\n", src.name, try+1, err)
		if try+1 < r.maxRetries && r.limiter != nil {
			if err := r.limiter.Backoff(ctx, try); err != nil {
				return nil, err
			}
		}
	}
	return nil, lastErr
}

func (r *Resolver) validateDoc(sourceName string, data []byte) error {
	if !looksLikePDF(data, "") {
		return permanentErr(sourceName, fmt.Errorf("response is not a document"))
	}
	if r.cache != nil && r.cache.MaxSize() > 0 && int64(len(data)) > r.cache.MaxSize() {
		return permanentErr(sourceName, fmt.Errorf("document too large: %d bytes", len(data)))
	}
	return nil
}

func (r *Resolver) docDOI(ctx context.Context, item types.WorkItem) ([]byte, error) {
	if item.DOI == "" {
		return nil, permanentErr("doi-pdf", fmt.Errorf("no DOI"))
	}
	data, _, err := r.client.get(ctx, "doi-pdf", doiBase+item.DOI, "application/pdf")
	return data, err
}

func (r *Resolver) docUnpaywall(ctx context.Context, item types.WorkItem) ([]byte, error) {
	target, err := r.unpaywallLocation(ctx, item, true)
	if err != nil {
		return nil, err
	}
	data, _, err := r.client.get(ctx, "unpaywall-pdf", target, "application/pdf")
	return data, err
}

func (r *Resolver) docURL(ctx context.Context, item types.WorkItem) ([]byte, error) {
	if item.URL == "" {
		return nil, permanentErr("url-pdf", fmt.Errorf("no URL"))
	}
	data, _, err := r.client.get(ctx, "url-pdf", item.URL, "application/pdf")
	return data, err
}

func (r *Resolver) docPMC(ctx context.Context, item types.WorkItem) ([]byte, error) {
	pmcid, err := r.pmcID(ctx, item)
	if err != nil {
		return nil, err
	}
	data, _, err := r.client.get(ctx, "pmc-pdf", pmcPDFBase+pmcid+"/pdf/", "application/pdf")
	return data, err
}

func (r *Resolver) docArxiv(ctx context.Context, item types.WorkItem) ([]byte, error) {
	entry, err := r.arxivSearch(ctx, item)
	if err != nil {
		return nil, err
	}
	for _, link := range entry.Links {
		if link.Type == "application/pdf" && link.Href != "" {
			data, _, err := r.client.get(ctx, "arxiv-pdf", link.Href, "application/pdf")
			return data, err
		}
	}
	return nil, permanentErr("arxiv-pdf", fmt.Errorf("no document link in feed"))
}
