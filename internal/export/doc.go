// Package export renders crawl results into the workbook, BibTeX and markdown
// artifacts and writes them, plus rolling checkpoints, to one or more blob
// stores.
package export
