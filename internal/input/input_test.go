package input

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/JakeFAU/scholar-citation-crawler/internal/crawler"
)

func writeWorkbook(t *testing.T, path string, rows [][]string) {
	t.Helper()
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()
	sheet := f.GetSheetName(0)
	for r, row := range rows {
		for c, v := range row {
			cell, err := excelize.CoordinatesToCellName(c+1, r+1)
			require.NoError(t, err)
			require.NoError(t, f.SetCellValue(sheet, cell, v))
		}
	}
	require.NoError(t, f.SaveAs(path))
}

func TestLoadWorkbook(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "articles.xlsx")
	writeWorkbook(t, path, [][]string{
		{"Year", "article title"},
		{"2017", " Attention Is All You Need "},
		{"2016", ""},
		{"2015"},
		{"2012", "ImageNet Classification"},
	})

	targets, err := Load(path, "")
	require.NoError(t, err)
	assert.Equal(t, []crawler.CrawlTarget{
		{Title: "Attention Is All You Need"},
		{Title: "ImageNet Classification"},
	}, targets)
}

func TestLoadWorkbookMissingColumn(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "articles.xlsx")
	writeWorkbook(t, path, [][]string{{"Title"}, {"X"}})

	_, err := Load(path, DefaultColumn)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Article Title")
}

func TestLoadLines(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "targets.txt")
	require.NoError(t, os.WriteFile(path, []byte("# seed list\nDeep Learning\n\n  Análise de Dados  \n"), 0o600))

	targets, err := Load(path, "")
	require.NoError(t, err)
	assert.Equal(t, []crawler.CrawlTarget{{Title: "Deep Learning"}, {Title: "Análise de Dados"}}, targets)
}

func TestLoadMissingFile(t *testing.T) {
	t.Parallel()

	_, err := Load(filepath.Join(t.TempDir(), "nope.txt"), "")
	require.Error(t, err)
}

func TestCreateTemplate(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "nested", "article_template.xlsx")
	created, err := CreateTemplate(path, "")
	require.NoError(t, err)
	assert.True(t, created)

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	header, err := f.GetCellValue(f.GetSheetName(0), "A1")
	require.NoError(t, err)
	require.NoError(t, f.Close())
	assert.Equal(t, DefaultColumn, header)

	created, err = CreateTemplate(path, "")
	require.NoError(t, err)
	assert.False(t, created)

	targets, err := Load(path, "")
	require.NoError(t, err)
	assert.Empty(t, targets)
}
