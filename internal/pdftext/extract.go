// Copyright Peton Labs, 2026. All rights reserved.

// Package pdftext extracts plain text from PDF documents with bounded
// memory use: pages are processed in fixed-size chunks, short pages are
// discarded as scan artifacts, and extraction stops once a global
// length cap is reached.
package pdftext

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/petonlabs/systematic-review-data-extraction/pkg/types"
)

// ErrNotPDF reports input that does not carry the PDF signature.
var ErrNotPDF = errors.New("pdftext: not a PDF document")

// TruncationMarker is appended when extraction stops at the length cap,
// so downstream consumers can tell a capped document from a short one.
const TruncationMarker = "[Text truncated due to length limit]"

var pdfSignature = []byte("%PDF")

// Metadata is a best-effort side query result; extraction never
// requires it to succeed.
type Metadata struct {
	Title              string
	Author             string
	PageCount          int
	HasExtractableText bool
}

// Extractor converts PDF bytes to cleaned plain text.
type Extractor struct {
	chunkSize  int
	minPageLen int
	maxTextLen int
}

// New builds an Extractor with the configured bounds. Zero values get
// the defaults: 10-page chunks, 50-character page minimum, 500k cap.
func New(cfg types.PDFConfig) *Extractor {
	e := &Extractor{
		chunkSize:  cfg.PageChunkSize,
		minPageLen: cfg.MinPageTextLen,
		maxTextLen: cfg.MaxTextLen,
	}
	if e.chunkSize <= 0 {
		e.chunkSize = 10
	}
	if e.minPageLen <= 0 {
		e.minPageLen = 50
	}
	if e.maxTextLen <= 0 {
		e.maxTextLen = 500_000
	}
	return e
}

// IsPDF reports whether data starts with the PDF signature.
func IsPDF(data []byte) bool {
	return bytes.HasPrefix(data, pdfSignature)
}

// Extract returns the cleaned plain text of a PDF, or ErrNotPDF for
// input without the document signature. Malformed documents yield an
// error, never a panic.
func (e *Extractor) Extract(data []byte) (text string, err error) {
	if !IsPDF(data) {
		return "", ErrNotPDF
	}

	// The underlying reader panics on some malformed cross-reference
	// tables; convert that to an error.
	defer func() {
		if r := recover(); r != nil {
			text = ""
			err = fmt.Errorf("pdftext: malformed document: %v", r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("pdftext: opening document: %w", err)
	}
	return e.extractPages(reader)
}

// ExtractFile reads path and extracts its text.
func (e *Extractor) ExtractFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("pdftext: reading %s: %w", path, err)
	}
	return e.Extract(data)
}

func (e *Extractor) extractPages(reader *pdf.Reader) (string, error) {
	totalPages := reader.NumPage()
	var pages []string
	total := 0
	truncated := false

chunks:
	for start := 1; start <= totalPages; start += e.chunkSize {
		end := min(start+e.chunkSize-1, totalPages)
		for n := start; n <= end; n++ {
			page := reader.Page(n)
			if page.V.IsNull() {
				continue
			}
			raw, err := page.GetPlainText(nil)
			if err != nil {
				continue
			}
			cleaned := cleanPageText(raw)
			if len(strings.TrimSpace(cleaned)) <= e.minPageLen {
				continue
			}
			pages = append(pages, cleaned)
			total += len(cleaned)
			if total > e.maxTextLen {
				truncated = true
				break chunks
			}
		}
	}

	if len(pages) == 0 {
		return "", nil
	}

	text := postProcess(strings.Join(pages, "\n\n"))
	if len(text) > e.maxTextLen {
		text = text[:e.maxTextLen]
		truncated = true
	}
	if truncated {
		text += "\n" + TruncationMarker
	}
	return text, nil
}

// Metadata extracts document info best-effort; it returns zero values
// rather than failing on documents without an Info dictionary.
func (e *Extractor) Metadata(data []byte) (meta Metadata) {
	if !IsPDF(data) {
		return Metadata{}
	}
	defer func() {
		if recover() != nil {
			meta = Metadata{}
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return Metadata{}
	}

	meta.PageCount = reader.NumPage()

	info := reader.Trailer().Key("Info")
	if !info.IsNull() {
		meta.Title = info.Key("Title").Text()
		meta.Author = info.Key("Author").Text()
	}

	// Probing the first few pages is enough to tell a born-digital
	// document from a pure scan.
	probe := min(3, meta.PageCount)
	for n := 1; n <= probe; n++ {
		page := reader.Page(n)
		if page.V.IsNull() {
			continue
		}
		if text, err := page.GetPlainText(nil); err == nil && strings.TrimSpace(text) != "" {
			meta.HasExtractableText = true
			break
		}
	}
	return meta
}

// cleanPageText normalizes one page: whitespace runs collapse to a
// single space and non-printable characters are dropped.
func cleanPageText(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	space := false
	for _, r := range text {
		switch {
		case r == '\n':
			b.WriteByte('\n')
			space = false
		case r == ' ' || r == '\t' || r == '\r':
			space = true
		case r >= 0x20 && r < 0x7f:
			if space && b.Len() > 0 {
				b.WriteByte(' ')
			}
			space = false
			b.WriteRune(r)
		}
	}
	return strings.TrimSpace(b.String())
}

// postProcess collapses blank-line runs and drops residual short lines
// (page numbers, running headers) that survive page cleanup.
func postProcess(text string) string {
	lines := strings.Split(text, "\n")
	out := make([]string, 0, len(lines))
	blank := false
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			if !blank && len(out) > 0 {
				out = append(out, "")
			}
			blank = true
			continue
		}
		blank = false
		if len(line) <= 3 {
			continue
		}
		out = append(out, line)
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}
