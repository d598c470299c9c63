// Package extract parses rendered result pages into crawler.PageSnapshot values.
package extract

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/scholar-citation-crawler/internal/crawler"
)

// Config selects the result entries and their parts.
type Config struct {
	ResultSelector string
	TitleSelector  string
	// CitedByLabel is the localized prefix of the "cited by" link text.
	CitedByLabel string
}

// Scholar extracts entries from a scholar-style result list.
type Scholar struct {
	cfg Config
}

// NewScholar builds an extractor, filling unset selectors with defaults.
func NewScholar(cfg Config) *Scholar {
	if cfg.ResultSelector == "" {
		cfg.ResultSelector = ".gs_ri"
	}
	if cfg.TitleSelector == "" {
		cfg.TitleSelector = ".gs_rt"
	}
	if cfg.CitedByLabel == "" {
		cfg.CitedByLabel = "Cited by"
	}
	return &Scholar{cfg: cfg}
}

// Extract returns the entries of page in document order. Entries without a
// title are omitted.
func (s *Scholar) Extract(page crawler.Page) (crawler.PageSnapshot, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page.HTML))
	if err != nil {
		return crawler.PageSnapshot{}, fmt.Errorf("parse result page: %w", err)
	}

	var snap crawler.PageSnapshot
	doc.Find(s.cfg.ResultSelector).Each(func(_ int, entry *goquery.Selection) {
		title := strings.Join(strings.Fields(entry.Find(s.cfg.TitleSelector).First().Text()), " ")
		if title == "" {
			return
		}
		match := crawler.Match{Title: title, CitedByCount: -1}
		entry.Find("a").EachWithBreak(func(_ int, link *goquery.Selection) bool {
			text := strings.TrimSpace(link.Text())
			if !strings.HasPrefix(text, s.cfg.CitedByLabel) {
				return true
			}
			href, ok := link.Attr("href")
			if !ok || strings.TrimSpace(href) == "" {
				return true
			}
			match.CitedByURL = crawler.ResolveURL(page.URL, href)
			match.CitedByCount = parseCount(strings.TrimPrefix(text, s.cfg.CitedByLabel))
			return false
		})
		snap.Matches = append(snap.Matches, match)
	})
	return snap, nil
}

// parseCount keeps the digits of a label such as "Cited by 1,234".
func parseCount(label string) int {
	var b strings.Builder
	for _, r := range label {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return -1
	}
	n, err := strconv.Atoi(b.String())
	if err != nil {
		return -1
	}
	return n
}
