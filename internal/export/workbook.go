package export

import (
	"bytes"
	"fmt"

	"github.com/xuri/excelize/v2"

	"github.com/JakeFAU/scholar-citation-crawler/internal/crawler"
)

// Sheet names and headers of the results workbook.
const (
	SheetCitations = "Citations"
	SheetCiters    = "Citing Articles"
	SheetBibTeX    = "BibTeX"
)

var (
	citationsHeader = []any{"Article Title", "Cited By"}
	citersHeader    = []any{"Cited Article", "Citing Article"}
	bibtexHeader    = []any{"Citing Article", "BibTeX Found"}
)

// CheckpointWorkbook renders the Citations and Citing Articles sheets.
func CheckpointWorkbook(records []crawler.CitationRecord) ([]byte, error) {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if err := writeRecordSheets(f, records); err != nil {
		return nil, err
	}
	return save(f)
}

// ResultsWorkbook renders the final workbook: the checkpoint sheets plus a
// BibTeX sheet with one row per citing article.
func ResultsWorkbook(records []crawler.EnrichedRecord) ([]byte, error) {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	plain := make([]crawler.CitationRecord, len(records))
	var bib [][]any
	for i, r := range records {
		plain[i] = r.Record
		for _, c := range r.Citations {
			found := "No"
			if c.HasBibTeX() {
				found = "Yes"
			}
			bib = append(bib, []any{c.CitingTitle, found})
		}
	}
	if err := writeRecordSheets(f, plain); err != nil {
		return nil, err
	}
	if _, err := f.NewSheet(SheetBibTeX); err != nil {
		return nil, fmt.Errorf("add %s sheet: %w", SheetBibTeX, err)
	}
	if err := writeRows(f, SheetBibTeX, bibtexHeader, bib); err != nil {
		return nil, err
	}
	return save(f)
}

func writeRecordSheets(f *excelize.File, records []crawler.CitationRecord) error {
	if err := f.SetSheetName(f.GetSheetName(0), SheetCitations); err != nil {
		return fmt.Errorf("rename first sheet: %w", err)
	}
	if _, err := f.NewSheet(SheetCiters); err != nil {
		return fmt.Errorf("add %s sheet: %w", SheetCiters, err)
	}

	counts := make([][]any, 0, len(records))
	var pairs [][]any
	for _, r := range records {
		counts = append(counts, []any{r.Title, r.CitedByCount})
		for _, citer := range r.Citers {
			pairs = append(pairs, []any{r.Title, citer})
		}
	}
	if err := writeRows(f, SheetCitations, citationsHeader, counts); err != nil {
		return err
	}
	return writeRows(f, SheetCiters, citersHeader, pairs)
}

func writeRows(f *excelize.File, sheet string, header []any, rows [][]any) error {
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return fmt.Errorf("write %s header: %w", sheet, err)
	}
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return fmt.Errorf("cell for %s row %d: %w", sheet, i, err)
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("write %s row %d: %w", sheet, i, err)
		}
	}
	return nil
}

func save(f *excelize.File) ([]byte, error) {
	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, fmt.Errorf("encode workbook: %w", err)
	}
	return buf.Bytes(), nil
}
