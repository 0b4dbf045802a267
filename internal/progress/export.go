// Copyright Peton Labs, 2026. All rights reserved.

package progress

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/xuri/excelize/v2"
)

// ExportRow is one flattened extracted field from a completed item.
type ExportRow struct {
	ItemID     string `json:"item_id"`
	Title      string `json:"title"`
	DOI        string `json:"doi"`
	PMID       string `json:"pmid"`
	SourceUsed string `json:"source_used"`
	Category   string `json:"category"`
	FieldName  string `json:"field_name"`
	FieldValue string `json:"field_value"`
}

var exportHeader = []string{
	"item_id", "title", "doi", "pmid", "source_used",
	"category", "field_name", "field_value",
}

// Export writes the extracted fields of all completed items to path,
// one row per field. Supported formats: csv, json, xlsx.
func (s *Store) Export(ctx context.Context, format, path string) (int, error) {
	rows, err := s.exportRows(ctx)
	if err != nil {
		return 0, err
	}

	switch format {
	case "csv":
		err = writeCSV(path, rows)
	case "json":
		err = writeJSON(path, rows)
	case "xlsx":
		err = writeXLSX(path, rows)
	default:
		return 0, fmt.Errorf("unsupported export format %q (want csv, json, or xlsx)", format)
	}
	if err != nil {
		return 0, err
	}
	return len(rows), nil
}

func (s *Store) exportRows(ctx context.Context) ([]ExportRow, error) {
	items, err := s.itemsByStatus(ctx, StatusCompleted)
	if err != nil {
		return nil, err
	}

	var rows []ExportRow
	for _, item := range items {
		fields, err := s.Fields(ctx, item.ID)
		if err != nil {
			return nil, err
		}

		categories := make([]string, 0, len(fields))
		for c := range fields {
			categories = append(categories, c)
		}
		sort.Strings(categories)

		for _, category := range categories {
			names := make([]string, 0, len(fields[category]))
			for n := range fields[category] {
				names = append(names, n)
			}
			sort.Strings(names)

			for _, name := range names {
				rows = append(rows, ExportRow{
					ItemID:     item.ID,
					Title:      item.Title,
					DOI:        item.DOI,
					PMID:       item.PMID,
					SourceUsed: item.SourceUsed,
					Category:   category,
					FieldName:  name,
					FieldValue: fields[category][name],
				})
			}
		}
	}
	return rows, nil
}

func writeCSV(path string, rows []ExportRow) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(exportHeader); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}
	for _, r := range rows {
		record := []string{r.ItemID, r.Title, r.DOI, r.PMID, r.SourceUsed,
			r.Category, r.FieldName, r.FieldValue}
		if err := w.Write(record); err != nil {
			return fmt.Errorf("writing row: %w", err)
		}
	}
	w.Flush()
	return w.Error()
}

func writeJSON(path string, rows []ExportRow) error {
	data, err := json.MarshalIndent(rows, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling JSON: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

func writeXLSX(path string, rows []ExportRow) error {
	f := excelize.NewFile()
	defer f.Close()

	const sheet = "Sheet1"
	for col, name := range exportHeader {
		cell, err := excelize.CoordinatesToCellName(col+1, 1)
		if err != nil {
			return fmt.Errorf("addressing header cell: %w", err)
		}
		if err := f.SetCellValue(sheet, cell, name); err != nil {
			return fmt.Errorf("writing header: %w", err)
		}
	}

	for i, r := range rows {
		values := []string{r.ItemID, r.Title, r.DOI, r.PMID, r.SourceUsed,
			r.Category, r.FieldName, r.FieldValue}
		for col, v := range values {
			cell, err := excelize.CoordinatesToCellName(col+1, i+2)
			if err != nil {
				return fmt.Errorf("addressing cell: %w", err)
			}
			if err := f.SetCellValue(sheet, cell, v); err != nil {
				return fmt.Errorf("writing row %d: %w", i+2, err)
			}
		}
	}

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("saving %s: %w", path, err)
	}
	return nil
}
