package export

import (
	"bytes"
	"fmt"
	"strconv"
	"time"

	"github.com/nao1215/markdown"

	"github.com/JakeFAU/scholar-citation-crawler/internal/crawler"
)

// RunInfo describes the run a report belongs to.
type RunInfo struct {
	RunID      string
	StartedAt  time.Time
	FinishedAt time.Time
	Skipped    bool // enrichment skipped
}

// Summary aggregates the numbers shown at the top of the report.
type Summary struct {
	Targets       int
	WithCitations int
	Citers        int
	DOIs          int
	BibTeX        int
}

// Summarize counts targets, citers and enrichment hits.
func Summarize(records []crawler.EnrichedRecord) Summary {
	var s Summary
	s.Targets = len(records)
	for _, r := range records {
		if r.Record.CitedByCount > 0 {
			s.WithCitations++
		}
		s.Citers += len(r.Record.Citers)
		for _, c := range r.Citations {
			if c.DOI != "" {
				s.DOIs++
			}
			if c.HasBibTeX() {
				s.BibTeX++
			}
		}
	}
	return s
}

// HitRate is the share of citers with a BibTeX entry, in percent.
func (s Summary) HitRate() float64 {
	if s.Citers == 0 {
		return 0
	}
	return float64(s.BibTeX) * 100 / float64(s.Citers)
}

// Report renders the markdown run report.
func Report(info RunInfo, records []crawler.EnrichedRecord) ([]byte, error) {
	var buf bytes.Buffer
	md := markdown.NewMarkdown(&buf)
	summary := Summarize(records)

	md.H1("Citation Crawl Report")
	md.PlainText("")
	md.Table(markdown.TableSet{
		Header: []string{"Property", "Value"},
		Rows: [][]string{
			{"Run", "`" + info.RunID + "`"},
			{"Started", info.StartedAt.Format(time.RFC3339)},
			{"Finished", info.FinishedAt.Format(time.RFC3339)},
			{"Duration", info.FinishedAt.Sub(info.StartedAt).Round(time.Second).String()},
		},
	})
	md.PlainText("")

	md.H2("Summary")
	md.PlainText("")
	rows := [][]string{
		{"Targets", strconv.Itoa(summary.Targets)},
		{"Targets with citations", strconv.Itoa(summary.WithCitations)},
		{"Citing articles", strconv.Itoa(summary.Citers)},
	}
	if !info.Skipped {
		rows = append(rows,
			[]string{"DOIs resolved", strconv.Itoa(summary.DOIs)},
			[]string{"BibTeX entries", strconv.Itoa(summary.BibTeX)},
			[]string{"Enrichment hit rate", fmt.Sprintf("%.1f%%", summary.HitRate())},
		)
	}
	md.Table(markdown.TableSet{Header: []string{"Metric", "Value"}, Rows: rows})
	md.PlainText("")

	switch {
	case summary.Targets == 0:
		md.Note("No targets were processed.")
	case summary.WithCitations < summary.Targets:
		md.Warningf("%d target(s) finished with no citations; check the log for challenges or unmatched titles.",
			summary.Targets-summary.WithCitations)
	}
	if info.Skipped {
		md.Note("Enrichment was skipped for this run.")
	}

	md.H2("Targets")
	md.PlainText("")
	targets := make([][]string, 0, len(records))
	for i, r := range records {
		found := 0
		for _, c := range r.Citations {
			if c.HasBibTeX() {
				found++
			}
		}
		targets = append(targets, []string{
			strconv.Itoa(i + 1),
			r.Record.Title,
			strconv.Itoa(r.Record.CitedByCount),
			strconv.Itoa(found),
		})
	}
	md.Table(markdown.TableSet{
		Header: []string{"#", "Article Title", "Cited By", "BibTeX Found"},
		Rows:   targets,
	})
	md.PlainText("")

	if err := md.Build(); err != nil {
		return nil, fmt.Errorf("render report: %w", err)
	}
	return buf.Bytes(), nil
}
