// Copyright Peton Labs, 2026. All rights reserved.

package types

// WorkItem is one article row read from the tabular backend. At least
// one of DOI, PMID, or URL must be non-empty for the item to be
// eligible; items are immutable once read for a given run.
type WorkItem struct {
	// ID is the stable item identifier (the workbook row number).
	ID string `json:"id" yaml:"id"`

	// RowIndex is the 1-based row in the item sheet.
	RowIndex int `json:"row_index" yaml:"row_index"`

	// DOI is the Digital Object Identifier, if present.
	DOI string `json:"doi,omitempty" yaml:"doi,omitempty"`

	// PMID is the PubMed identifier, if present.
	PMID string `json:"pmid,omitempty" yaml:"pmid,omitempty"`

	// URL is a full-text or download URL, if present.
	URL string `json:"url,omitempty" yaml:"url,omitempty"`

	// LandingURL is a publisher landing-page link (a database export
	// column, distinct from URL), if present.
	LandingURL string `json:"landing_url,omitempty" yaml:"landing_url,omitempty"`

	// Title is the article title, if present.
	Title string `json:"title,omitempty" yaml:"title,omitempty"`
}

// HasIdentifier reports whether the item carries at least one usable
// identifier.
func (w WorkItem) HasIdentifier() bool {
	return w.DOI != "" || w.PMID != "" || w.URL != ""
}

// ExtractionResult maps category name to field name to extracted value.
// An empty map is a valid collaborator outcome ("no data extracted").
type ExtractionResult map[string]map[string]string

// FieldCount returns the total number of non-empty field values.
func (r ExtractionResult) FieldCount() int {
	n := 0
	for _, fields := range r {
		for _, v := range fields {
			if v != "" {
				n++
			}
		}
	}
	return n
}

// FetchOutcome is the uniform result of content resolution, regardless
// of which source satisfied the request.
type FetchOutcome struct {
	// Text is the cleaned plain-text content.
	Text string `json:"text" yaml:"text"`

	// Metadata carries source-specific details (page counts, cache keys,
	// truncation flags) for auditing.
	Metadata map[string]string `json:"metadata,omitempty" yaml:"metadata,omitempty"`

	// SourceUsed names the source that produced the text (e.g.
	// "unpaywall", "pmc", "metadata-only", "cache").
	SourceUsed string `json:"source_used" yaml:"source_used"`
}
