package crawler

import (
	"net/http"
	"time"
)

// CrawlTarget is one article whose citing works should be collected.
type CrawlTarget struct {
	Title string `json:"title"`
}

// CitationRecord holds the crawl result for a single target.
type CitationRecord struct {
	Title        string   `json:"title"`
	CitedByCount int      `json:"cited_by_count"`
	Citers       []string `json:"citers"`
}

// EmptyRecord returns the degraded record written when a target fails.
func EmptyRecord(title string) CitationRecord {
	return CitationRecord{Title: title, Citers: []string{}}
}

// Match is one entry extracted from a rendered result page.
type Match struct {
	Title      string
	CitedByURL string
	// CitedByCount is the count shown on the "cited by" label, or -1 when the
	// label was missing or unparsable.
	CitedByCount int
}

// HasCitedBy reports whether the entry exposes a "cited by" link.
func (m Match) HasCitedBy() bool {
	return m.CitedByURL != ""
}

// PageSnapshot is the ordered list of entries visible on one result page.
type PageSnapshot struct {
	Matches []Match
}

// Page is the rendered state of the live session.
type Page struct {
	URL  string
	HTML string
}

// EnrichedCitation attaches bibliographic metadata to one citer.
type EnrichedCitation struct {
	CitingTitle string `json:"citing_title"`
	DOI         string `json:"doi,omitempty"`
	BibTeX      string `json:"bibtex,omitempty"`
}

// HasBibTeX reports whether a BibTeX record was retrieved.
func (e EnrichedCitation) HasBibTeX() bool {
	return e.DOI != "" && e.BibTeX != ""
}

// EnrichedRecord pairs a crawl record with the enrichment of its citers.
type EnrichedRecord struct {
	Record    CitationRecord     `json:"record"`
	Citations []EnrichedCitation `json:"citations"`
}

// Artifact describes one exported file.
type Artifact struct {
	Name        string `json:"name"`
	ContentType string `json:"content_type"`
	URI         string `json:"uri"`
	SHA256      string `json:"sha256"`
	Bytes       int    `json:"bytes"`
}

// FetchRequest captures everything needed to fetch a URL over HTTP.
type FetchRequest struct {
	URL     string
	Headers http.Header
}

// FetchResponse is a fetched HTTP response. Non-2xx statuses are responses,
// not errors.
type FetchResponse struct {
	URL        string
	StatusCode int
	Headers    http.Header
	Body       []byte
	Duration   time.Duration
}
