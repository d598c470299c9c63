// Package input loads crawl targets from a workbook or a plain text list and
// creates the starter workbook users fill in.
package input

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/JakeFAU/scholar-citation-crawler/internal/crawler"
)

// DefaultColumn is the header of the title column in input workbooks.
const DefaultColumn = "Article Title"

// Load reads targets from path. Workbooks (.xlsx) are read from the first
// sheet's column; any other file is read one title per line with blank lines
// and #-comments skipped. Blank titles are dropped.
func Load(path, column string) ([]crawler.CrawlTarget, error) {
	if column == "" {
		column = DefaultColumn
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx", ".xlsm":
		return loadWorkbook(path, column)
	default:
		return loadLines(path)
	}
}

func loadWorkbook(path, column string) ([]crawler.CrawlTarget, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open workbook %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("workbook %s has no sheets", path)
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("read sheet %s: %w", sheets[0], err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("workbook %s is empty", path)
	}

	col := -1
	for i, header := range rows[0] {
		if strings.EqualFold(strings.TrimSpace(header), column) {
			col = i
			break
		}
	}
	if col < 0 {
		return nil, fmt.Errorf("column %q not found in %s", column, path)
	}

	targets := make([]crawler.CrawlTarget, 0, len(rows)-1)
	for _, row := range rows[1:] {
		if col >= len(row) {
			continue
		}
		if title := strings.TrimSpace(row[col]); title != "" {
			targets = append(targets, crawler.CrawlTarget{Title: title})
		}
	}
	return targets, nil
}

func loadLines(path string) ([]crawler.CrawlTarget, error) {
	file, err := os.Open(path) // #nosec G304 -- path is supplied by the operator.
	if err != nil {
		return nil, fmt.Errorf("open target list: %w", err)
	}
	defer func() { _ = file.Close() }()

	var targets []crawler.CrawlTarget
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		targets = append(targets, crawler.CrawlTarget{Title: line})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read target list: %w", err)
	}
	return targets, nil
}

// CreateTemplate writes an empty workbook with the title column header. It
// returns false without touching anything when path already exists.
func CreateTemplate(path, column string) (bool, error) {
	if column == "" {
		column = DefaultColumn
	}
	if _, err := os.Stat(path); err == nil {
		return false, nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return false, fmt.Errorf("stat template: %w", err)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return false, fmt.Errorf("create template directory: %w", err)
		}
	}

	f := excelize.NewFile()
	defer func() { _ = f.Close() }()
	sheet := f.GetSheetName(0)
	if err := f.SetCellValue(sheet, "A1", column); err != nil {
		return false, fmt.Errorf("write template header: %w", err)
	}
	if err := f.SetColWidth(sheet, "A", "A", 80); err != nil {
		return false, fmt.Errorf("size template column: %w", err)
	}
	if err := f.SaveAs(path); err != nil {
		return false, fmt.Errorf("save template: %w", err)
	}
	return true, nil
}
