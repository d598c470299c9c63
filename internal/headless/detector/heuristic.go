// Package detector recognises human-verification interstitials in rendered pages.
package detector

import (
	"bytes"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/scholar-citation-crawler/internal/crawler"
)

// Config lists the signals that mark a page as a challenge.
type Config struct {
	URLPatterns []string
	Keywords    []string
	Selectors   []string
}

// Heuristic implements crawler.ChallengeDetector with URL, keyword and
// selector rules.
type Heuristic struct {
	urlPatterns []string
	keywords    [][]byte
	selectors   []string
}

// NewHeuristic creates a new detector. Empty config falls back to the
// "sorry/index" URL and the "captcha" keyword.
func NewHeuristic(cfg Config) *Heuristic {
	if len(cfg.URLPatterns) == 0 && len(cfg.Keywords) == 0 && len(cfg.Selectors) == 0 {
		cfg.URLPatterns = []string{"sorry/index"}
		cfg.Keywords = []string{"captcha"}
	}
	h := &Heuristic{}
	for _, p := range cfg.URLPatterns {
		if p = strings.ToLower(strings.TrimSpace(p)); p != "" {
			h.urlPatterns = append(h.urlPatterns, p)
		}
	}
	for _, kw := range cfg.Keywords {
		if kw = strings.TrimSpace(kw); kw != "" {
			h.keywords = append(h.keywords, bytes.ToLower([]byte(kw)))
		}
	}
	for _, sel := range cfg.Selectors {
		if sel = strings.TrimSpace(sel); sel != "" {
			h.selectors = append(h.selectors, sel)
		}
	}
	return h
}

// IsChallenge reports whether page looks like a verification interstitial.
func (h *Heuristic) IsChallenge(page crawler.Page) bool {
	if h == nil {
		return false
	}
	switch {
	case h.urlMatches(page.URL):
		return true
	case h.containsKeywords([]byte(page.HTML)):
		return true
	default:
		return h.hasSelectors(page.HTML)
	}
}

func (h *Heuristic) urlMatches(raw string) bool {
	lower := strings.ToLower(raw)
	for _, p := range h.urlPatterns {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}

func (h *Heuristic) containsKeywords(body []byte) bool {
	if len(body) == 0 || len(h.keywords) == 0 {
		return false
	}
	lowerBody := bytes.ToLower(body)
	for _, kw := range h.keywords {
		if bytes.Contains(lowerBody, kw) {
			return true
		}
	}
	return false
}

func (h *Heuristic) hasSelectors(body string) bool {
	if len(h.selectors) == 0 || body == "" {
		return false
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return false
	}
	for _, sel := range h.selectors {
		if doc.Find(sel).Length() > 0 {
			return true
		}
	}
	return false
}
