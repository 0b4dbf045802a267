package sheet

import (
	"bytes"
	"io"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/petonlabs/systematic-review-data-extraction/pkg/types"
)

// writeTestWorkbook builds a workbook with an item sheet and two
// category sheets, returning its path.
func writeTestWorkbook(t *testing.T) string {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()

	require.NoError(t, f.SetSheetName("Sheet1", "articles"))
	for i, row := range [][]any{
		{"Title", "DOI", "PMID", "URL", "Scopus Link"},
		{"First trial", "10.1000/first", "11111", "", "https://scopus.example/1"},
		{"Second trial", "", "22222", "https://host/second.pdf", ""},
		{"No identifiers", "", "", "", ""},
		{"Third trial", "10.1000/third", "", "", ""},
	} {
		require.NoError(t, f.SetSheetRow("articles", cell(t, 1, i+1), &row))
	}

	for _, sheet := range []string{"population", "outcomes"} {
		_, err := f.NewSheet(sheet)
		require.NoError(t, err)
	}
	popHeader := []any{"Sample Size", "Age Range", "Setting"}
	require.NoError(t, f.SetSheetRow("population", "A1", &popHeader))
	outHeader := []any{"Primary Outcome", "Follow-up"}
	require.NoError(t, f.SetSheetRow("outcomes", "A1", &outHeader))

	path := filepath.Join(t.TempDir(), "review.xlsx")
	require.NoError(t, f.SaveAs(path))
	return path
}

func cell(t *testing.T, col, row int) string {
	t.Helper()
	name, err := excelize.CoordinatesToCellName(col, row)
	require.NoError(t, err)
	return name
}

func openTestWorkbook(t *testing.T, w io.Writer) *Workbook {
	t.Helper()
	wb, err := Open(types.WorkbookConfig{Path: writeTestWorkbook(t)}, w)
	require.NoError(t, err)
	t.Cleanup(func() { wb.Close() })
	return wb
}

func TestListItems(t *testing.T) {
	wb := openTestWorkbook(t, io.Discard)

	items, err := wb.ListItems()
	require.NoError(t, err)
	require.Len(t, items, 3, "the row without identifiers is excluded")

	assert.Equal(t, "2", items[0].ID)
	assert.Equal(t, 2, items[0].RowIndex)
	assert.Equal(t, "10.1000/first", items[0].DOI)
	assert.Equal(t, "11111", items[0].PMID)
	assert.Equal(t, "https://scopus.example/1", items[0].LandingURL)

	assert.Equal(t, "3", items[1].ID)
	assert.Equal(t, "https://host/second.pdf", items[1].URL)

	assert.Equal(t, "5", items[2].ID, "IDs track the workbook row, not list position")
}

func TestListItemsWarnsOnSkippedRows(t *testing.T) {
	var buf bytes.Buffer
	wb := openTestWorkbook(t, &buf)

	_, err := wb.ListItems()
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "skipped 1 rows without identifiers")
}

func TestApplyUpdates(t *testing.T) {
	var buf bytes.Buffer
	wb := openTestWorkbook(t, &buf)

	err := wb.ApplyUpdates("2", types.ExtractionResult{
		"population": {
			"sample_size": "120",       // underscore form of "Sample Size"
			"age range":   "18-65",     // exact match ignoring case
			"blood_type":  "unmatched", // no column
			"setting":     "",          // empty values are not written
		},
		"outcomes": {
			"primary outcome": "pain reduction",
		},
	})
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "no column for population/blood_type")

	f, err := excelize.OpenFile(wb.cfg.Path)
	require.NoError(t, err)
	defer f.Close()

	got, err := f.GetCellValue("population", "A2")
	require.NoError(t, err)
	assert.Equal(t, "120", got)

	got, err = f.GetCellValue("population", "B2")
	require.NoError(t, err)
	assert.Equal(t, "18-65", got)

	got, err = f.GetCellValue("population", "C2")
	require.NoError(t, err)
	assert.Empty(t, got)

	got, err = f.GetCellValue("outcomes", "A2")
	require.NoError(t, err)
	assert.Equal(t, "pain reduction", got)
}

func TestApplyUpdatesUnknownCategory(t *testing.T) {
	var buf bytes.Buffer
	wb := openTestWorkbook(t, &buf)

	err := wb.ApplyUpdates("2", types.ExtractionResult{
		"adverse_events": {"severity": "mild"},
	})
	require.NoError(t, err, "a missing category sheet warns but does not fail the item")
	assert.Contains(t, buf.String(), "no sheet for category")
}

func TestApplyUpdatesCategoryMapping(t *testing.T) {
	path := writeTestWorkbook(t)
	wb, err := Open(types.WorkbookConfig{
		Path:           path,
		CategorySheets: map[string]string{"demographics": "population"},
	}, io.Discard)
	require.NoError(t, err)
	defer wb.Close()

	require.NoError(t, wb.ApplyUpdates("4", types.ExtractionResult{
		"demographics": {"sample size": "48"},
	}))

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()

	got, err := f.GetCellValue("population", "A4")
	require.NoError(t, err)
	assert.Equal(t, "48", got)
}

func TestMatchColumn(t *testing.T) {
	headers := []string{"Sample Size", "Age Range", "Setting", ""}

	tests := []struct {
		field string
		want  int
	}{
		{"sample size", 0},
		{"Sample Size", 0},
		{"sample_size", 0},       // underscores match spaces
		{"size", 0},              // substring of header
		{"age range (years)", 1}, // header is substring of field
		{"setting", 2},
		{"country", -1},
		{"", -1},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, MatchColumn(headers, tt.field), "field %q", tt.field)
	}
}
