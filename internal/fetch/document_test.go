// Copyright Peton Labs, 2026. All rights reserved.

package fetch

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/petonlabs/systematic-review-data-extraction/internal/cache"
	"github.com/petonlabs/systematic-review-data-extraction/internal/pdftext"
	"github.com/petonlabs/systematic-review-data-extraction/pkg/types"
)

// pdfDocument assembles a minimal uncompressed PDF with one page per
// text, computing the cross-reference offsets as it writes.
func pdfDocument(pageTexts ...string) []byte {
	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")

	var offsets []int
	writeObj := func(body string) {
		offsets = append(offsets, buf.Len())
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", len(offsets), body)
	}

	kids := make([]string, len(pageTexts))
	for i := range pageTexts {
		kids[i] = fmt.Sprintf("%d 0 R", 4+2*i)
	}

	writeObj("<< /Type /Catalog /Pages 2 0 R >>")
	writeObj(fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>",
		strings.Join(kids, " "), len(pageTexts)))
	writeObj("<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica /Encoding /WinAnsiEncoding >>")

	for i, text := range pageTexts {
		writeObj(fmt.Sprintf("<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] "+
			"/Resources << /Font << /F1 3 0 R >> >> /Contents %d 0 R >>", 5+2*i))
		stream := fmt.Sprintf("BT /F1 12 Tf 72 720 Td (%s) Tj ET", text)
		writeObj(fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", len(stream), stream))
	}

	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n", len(offsets)+1)
	buf.WriteString("0000000000 65535 f \n")
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n",
		len(offsets)+1, xref)
	return buf.Bytes()
}

func newDocResolver(t *testing.T, store *cache.Store) *Resolver {
	t.Helper()
	cfg := types.FetchConfig{MinContentLen: 100, MaxRetries: 3, RequestsPerSecond: 1000}
	cfg.UserAgent = "review-engine-test/0.1"
	return New(cfg, pdftext.New(types.PDFConfig{}), store, nil, io.Discard)
}

func TestResolveDocumentFirstExtractsAndCaches(t *testing.T) {
	fallback := notFoundServer(t)
	pointAllBases(t, fallback.URL)

	doc := pdfDocument(strings.TrimSpace(
		strings.Repeat("Full trial report text spanning multiple sentences of detail. ", 3)))
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/pdf")
		w.Write(doc)
	}))
	defer srv.Close()
	doiBase = srv.URL + "/"

	store := cache.New(types.CacheConfig{Dir: t.TempDir(), KeyPrefix: "pdfs/"})
	r := newDocResolver(t, store)

	item := types.WorkItem{ID: "9", DOI: "10.1000/whole-doc"}
	out, err := r.ResolveDocumentFirst(context.Background(), item)

	require.NoError(t, err)
	assert.Equal(t, "doi-pdf", out.SourceUsed)
	assert.Contains(t, out.Text, "Full trial report text")

	key, ok := store.KeyFor(item)
	require.True(t, ok)
	assert.True(t, store.Exists(key))
}

func TestResolveDocumentFirstCacheHit(t *testing.T) {
	hits := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		http.NotFound(w, r)
	}))
	defer srv.Close()
	pointAllBases(t, srv.URL)

	store := cache.New(types.CacheConfig{Dir: t.TempDir(), KeyPrefix: "pdfs/"})
	item := types.WorkItem{ID: "10", DOI: "10.1000/cached"}
	doc := pdfDocument(strings.TrimSpace(
		strings.Repeat("Previously retrieved full text held in the local store. ", 3)))
	_, err := store.Store(doc, item, "doi-pdf", false)
	require.NoError(t, err)

	r := newDocResolver(t, store)
	out, err := r.ResolveDocumentFirst(context.Background(), item)

	require.NoError(t, err)
	assert.Equal(t, "cache", out.SourceUsed)
	assert.NotEmpty(t, out.Metadata["cache_key"])
	assert.Zero(t, hits, "a cached document must not touch any network source")
}
