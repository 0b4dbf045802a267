// Copyright Peton Labs, 2026. All rights reserved.

// Package sheet reads the work list from an XLSX workbook and writes
// extracted values back into per-category sheets.
package sheet

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/petonlabs/systematic-review-data-extraction/pkg/types"
)

const defaultItemSheet = "articles"

// Workbook wraps one XLSX file as the tabular backend.
type Workbook struct {
	cfg     types.WorkbookConfig
	file    *excelize.File
	headers map[string][]string
	w       io.Writer
}

// Open loads the workbook at cfg.Path. Progress and warnings go to w.
func Open(cfg types.WorkbookConfig, w io.Writer) (*Workbook, error) {
	if w == nil {
		w = io.Discard
	}
	f, err := excelize.OpenFile(cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("opening workbook %s: %w", cfg.Path, err)
	}
	if cfg.ItemSheet == "" {
		cfg.ItemSheet = defaultItemSheet
	}
	return &Workbook{
		cfg:     cfg,
		file:    f,
		headers: map[string][]string{},
		w:       w,
	}, nil
}

// Close releases the underlying file.
func (wb *Workbook) Close() error {
	return wb.file.Close()
}

// Headers returns the first row of sheet, cached for the life of the
// workbook handle.
func (wb *Workbook) Headers(sheet string) ([]string, error) {
	if h, ok := wb.headers[sheet]; ok {
		return h, nil
	}
	rows, err := wb.file.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("reading sheet %s: %w", sheet, err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("sheet %s has no header row", sheet)
	}
	wb.headers[sheet] = rows[0]
	return rows[0], nil
}

// ListItems reads the item sheet and returns one WorkItem per row that
// carries at least one identifier. The row number becomes the item ID.
func (wb *Workbook) ListItems() ([]types.WorkItem, error) {
	rows, err := wb.file.GetRows(wb.cfg.ItemSheet)
	if err != nil {
		return nil, fmt.Errorf("reading sheet %s: %w", wb.cfg.ItemSheet, err)
	}
	if len(rows) < 2 {
		return nil, nil
	}

	cols := identifierColumns(rows[0])

	var items []types.WorkItem
	skipped := 0
	for i, row := range rows[1:] {
		rowNum := i + 2
		item := types.WorkItem{
			ID:         strconv.Itoa(rowNum),
			RowIndex:   rowNum,
			DOI:        cellAt(row, cols.doi),
			PMID:       cellAt(row, cols.pmid),
			URL:        cellAt(row, cols.url),
			LandingURL: cellAt(row, cols.landing),
			Title:      cellAt(row, cols.title),
		}
		if !item.HasIdentifier() {
			skipped++
			continue
		}
		items = append(items, item)
	}
	if skipped > 0 {
		fmt.Fprintf(wb.w, "skipped %d rows without identifiers\n", skipped)
	}
	return items, nil
}

// ApplyUpdates writes one item's extracted values into the category
// sheets and saves the workbook once. Fields whose header cannot be
// matched produce a warning and are skipped.
func (wb *Workbook) ApplyUpdates(itemID string, result types.ExtractionResult) error {
	row, err := strconv.Atoi(itemID)
	if err != nil {
		return fmt.Errorf("item ID %q is not a row number: %w", itemID, err)
	}

	dirty := false
	for category, fields := range result {
		sheetName := wb.cfg.CategorySheets[category]
		if sheetName == "" {
			sheetName = category
		}

		headers, err := wb.Headers(sheetName)
		if err != nil {
			fmt.Fprintf(wb.w, "warning: no sheet for category %q: %v\n", category, err)
			continue
		}

		for name, value := range fields {
			if value == "" {
				continue
			}
			col := MatchColumn(headers, name)
			if col < 0 {
				fmt.Fprintf(wb.w, "warning: no column for %s/%s in sheet %s\n", category, name, sheetName)
				continue
			}
			cell, err := excelize.CoordinatesToCellName(col+1, row)
			if err != nil {
				return fmt.Errorf("addressing cell for %s/%s: %w", category, name, err)
			}
			if err := wb.file.SetCellValue(sheetName, cell, value); err != nil {
				return fmt.Errorf("writing %s!%s: %w", sheetName, cell, err)
			}
			dirty = true
		}
	}

	if !dirty {
		return nil
	}
	if err := wb.file.Save(); err != nil {
		return fmt.Errorf("saving workbook: %w", err)
	}
	return nil
}

// MatchColumn finds the header index for a field name: exact
// case-insensitive match first, then substring containment in either
// direction. Underscores and spaces are interchangeable. Returns -1
// when nothing matches.
func MatchColumn(headers []string, field string) int {
	field = normalizeHeader(field)
	if field == "" {
		return -1
	}
	for i, h := range headers {
		if normalizeHeader(h) == field {
			return i
		}
	}
	for i, h := range headers {
		h = normalizeHeader(h)
		if h == "" {
			continue
		}
		if strings.Contains(h, field) || strings.Contains(field, h) {
			return i
		}
	}
	return -1
}

func normalizeHeader(s string) string {
	return strings.ToLower(strings.TrimSpace(strings.ReplaceAll(s, "_", " ")))
}

type columnIndexes struct {
	doi, pmid, url, title, landing int
}

// identifierColumns maps the known item-sheet columns by header name.
func identifierColumns(headers []string) columnIndexes {
	cols := columnIndexes{doi: -1, pmid: -1, url: -1, title: -1, landing: -1}
	for i, h := range headers {
		switch strings.ToLower(strings.TrimSpace(h)) {
		case "doi":
			cols.doi = i
		case "pmid":
			cols.pmid = i
		case "url":
			cols.url = i
		case "title":
			cols.title = i
		}
		lower := strings.ToLower(h)
		if cols.landing < 0 && (strings.Contains(lower, "scopus") || strings.Contains(lower, "landing") || strings.Contains(lower, "link")) {
			cols.landing = i
		}
	}
	return cols
}

func cellAt(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}
