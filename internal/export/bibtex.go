package export

import (
	"strings"

	"github.com/JakeFAU/scholar-citation-crawler/internal/crawler"
)

// BibTeX concatenates every found entry, separated by a blank line, in
// record then citer order.
func BibTeX(records []crawler.EnrichedRecord) []byte {
	var entries []string
	for _, r := range records {
		for _, c := range r.Citations {
			if c.HasBibTeX() {
				entries = append(entries, c.BibTeX)
			}
		}
	}
	return []byte(strings.Join(entries, "\n\n"))
}
