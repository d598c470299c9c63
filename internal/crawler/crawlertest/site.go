// Package crawlertest provides an in-memory results site and browser session
// for exercising crawl components without a real browser.
package crawlertest

import (
	"context"
	"fmt"
	"html"
	"strings"
	"sync"
	"time"

	"github.com/JakeFAU/scholar-citation-crawler/internal/crawler"
)

// Entry is one rendered search result.
type Entry struct {
	Title      string
	CitedByURL string
	Count      int
}

// ResultsHTML renders entries the way the results interface does.
func ResultsHTML(entries ...Entry) string {
	var b strings.Builder
	b.WriteString(`<html><body><div id="gs_res_ccl_mid">`)
	for _, e := range entries {
		b.WriteString(`<div class="gs_r"><div class="gs_ri"><h3 class="gs_rt">`)
		b.WriteString(html.EscapeString(e.Title))
		b.WriteString(`</h3><div class="gs_fl">`)
		if e.CitedByURL != "" {
			fmt.Fprintf(&b, `<a href="%s">Cited by %d</a>`, html.EscapeString(e.CitedByURL), e.Count)
		}
		b.WriteString(`</div></div></div>`)
	}
	b.WriteString(`</div></body></html>`)
	return b.String()
}

// Resource is what the site serves at one URL.
type Resource struct {
	// Pages holds the HTML of each "load more" page in order.
	Pages []string
	// NotReadyVisits makes the first N navigations render nothing, so waits
	// for the result list time out.
	NotReadyVisits int
	// ChallengeVisits makes the first N navigations land on a challenge.
	ChallengeVisits int
	// NavigateErr is returned from every navigation.
	NavigateErr error
	// PanicOnNavigate simulates a crash inside the automation layer.
	PanicOnNavigate bool
}

// ChallengeHTML is served while a challenge is active.
const ChallengeHTML = `<html><body><form id="captcha-form">Please complete the captcha</form></body></html>`

// Site is a scripted results site. It implements crawler.SessionFactory.
type Site struct {
	mu        sync.Mutex
	resources map[string]*Resource
	visits    map[string]int
	sessions  []*Session
	// FailSessionAt makes the Nth session creation (1-based) fail.
	FailSessionAt int
}

// NewSite creates an empty site.
func NewSite() *Site {
	return &Site{resources: make(map[string]*Resource), visits: make(map[string]int)}
}

// Handle registers the resource served at url.
func (s *Site) Handle(url string, r *Resource) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resources[url] = r
}

// Visits returns how often url was navigated to.
func (s *Site) Visits(url string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.visits[url]
}

// Sessions returns every session created so far.
func (s *Site) Sessions() []*Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*Session(nil), s.sessions...)
}

// NewSession implements crawler.SessionFactory.
func (s *Site) NewSession(context.Context) (crawler.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailSessionAt > 0 && len(s.sessions)+1 == s.FailSessionAt {
		return nil, fmt.Errorf("launch browser: executable not found")
	}
	sess := &Session{site: s}
	s.sessions = append(s.sessions, sess)
	return sess, nil
}

// Session is one fake browser tab.
type Session struct {
	site *Site

	mu        sync.Mutex
	url       string
	page      int
	html      []string
	challenge bool
	closed    bool
	clicks    int
}

// Closed reports whether Close was called.
func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Clicks reports how many "load more" clicks succeeded.
func (s *Session) Clicks() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.clicks
}

// Navigate loads url.
func (s *Session) Navigate(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.site.mu.Lock()
	res := s.site.resources[url]
	s.site.visits[url]++
	visit := s.site.visits[url]
	s.site.mu.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return crawler.ErrSessionClosed
	}
	s.url = url
	s.page = 0
	s.html = nil
	s.challenge = false
	if res == nil {
		return nil
	}
	if res.PanicOnNavigate {
		panic("devtools: target crashed")
	}
	if res.NavigateErr != nil {
		return res.NavigateErr
	}
	if visit <= res.NotReadyVisits {
		return nil
	}
	s.challenge = visit <= res.ChallengeVisits
	s.html = res.Pages
	return nil
}

// WaitFor reports whether the current page has rendered content.
func (s *Session) WaitFor(ctx context.Context, _ string, _ time.Duration) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false, crawler.ErrSessionClosed
	}
	return !s.challenge && s.page < len(s.html), nil
}

// Snapshot returns the current page.
func (s *Session) Snapshot(context.Context) (crawler.Page, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return crawler.Page{}, crawler.ErrSessionClosed
	}
	if s.challenge {
		return crawler.Page{URL: s.url, HTML: ChallengeHTML}, nil
	}
	if s.page >= len(s.html) {
		return crawler.Page{URL: s.url}, nil
	}
	return crawler.Page{URL: s.url, HTML: s.html[s.page]}, nil
}

// ClickLink advances to the next page when one exists.
func (s *Session) ClickLink(ctx context.Context, _ string, _ time.Duration) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false, crawler.ErrSessionClosed
	}
	if s.page+1 >= len(s.html) {
		return false, nil
	}
	s.page++
	s.clicks++
	return true, nil
}

// SolveChallenge simulates an operator clearing the challenge.
func (s *Session) SolveChallenge() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.challenge = false
}

// Close ends the session.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
