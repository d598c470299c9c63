// Package enrich resolves citing titles to DOIs through the Crossref works API
// and fetches BibTeX records from doi.org by content negotiation.
package enrich

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/scholar-citation-crawler/internal/crawler"
	"github.com/JakeFAU/scholar-citation-crawler/internal/metrics"
	"github.com/JakeFAU/scholar-citation-crawler/internal/policy/ratelimit"
)

// Config controls the lookup endpoints and retry budget.
type Config struct {
	CrossrefURL       string
	DOIURL            string
	Attempts          int
	RetryDelay        time.Duration
	RequestsPerSecond float64
	// Mailto is sent to Crossref so requests land in the polite pool.
	Mailto string
}

func (c Config) withDefaults() Config {
	if c.CrossrefURL == "" {
		c.CrossrefURL = "https://api.crossref.org/works"
	}
	if c.DOIURL == "" {
		c.DOIURL = "https://doi.org"
	}
	if c.Attempts <= 0 {
		c.Attempts = 3
	}
	if c.RetryDelay < 0 {
		c.RetryDelay = 0
	}
	return c
}

// Client implements crawler.Enrichment.
type Client struct {
	cfg     Config
	fetcher crawler.Fetcher
	clock   crawler.Clock
	limiter *ratelimit.Limiter
	logger  *zap.Logger
}

// NewClient builds a client. Crossref and doi.org are paced independently at
// RequestsPerSecond; a non-positive value disables pacing.
func NewClient(cfg Config, fetcher crawler.Fetcher, clock crawler.Clock, logger *zap.Logger) *Client {
	cfg = cfg.withDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		cfg:     cfg,
		fetcher: fetcher,
		clock:   clock,
		limiter: ratelimit.New(ratelimit.Config{RPS: cfg.RequestsPerSecond, Burst: 1}),
		logger:  logger.Named("enrich"),
	}
}

type worksResponse struct {
	Message struct {
		Items []struct {
			DOI string `json:"DOI"`
		} `json:"items"`
	} `json:"message"`
}

// ResolveIdentifier returns the DOI of the best Crossref match for title.
func (c *Client) ResolveIdentifier(ctx context.Context, title string) (string, bool) {
	title = strings.TrimSpace(title)
	if title == "" {
		return "", false
	}
	q := url.Values{}
	q.Set("query.title", title)
	q.Set("rows", "1")
	if c.cfg.Mailto != "" {
		q.Set("mailto", c.cfg.Mailto)
	}
	body, ok := c.get(ctx, "doi", c.cfg.CrossrefURL+"?"+q.Encode(), "application/json")
	if !ok {
		return "", false
	}

	var works worksResponse
	if err := json.Unmarshal(body, &works); err != nil {
		c.logger.Warn("Unparsable works response", zap.String("title", title), zap.Error(err))
		metrics.ObserveEnrichment("doi", "error")
		return "", false
	}
	if len(works.Message.Items) == 0 || strings.TrimSpace(works.Message.Items[0].DOI) == "" {
		metrics.ObserveEnrichment("doi", "absent")
		return "", false
	}
	metrics.ObserveEnrichment("doi", "found")
	return strings.TrimSpace(works.Message.Items[0].DOI), true
}

// FetchRecord returns the BibTeX record registered for doi.
func (c *Client) FetchRecord(ctx context.Context, doi string) (string, bool) {
	doi = strings.TrimSpace(doi)
	if doi == "" {
		return "", false
	}
	body, ok := c.get(ctx, "bibtex", strings.TrimRight(c.cfg.DOIURL, "/")+"/"+doi, "application/x-bibtex")
	if !ok {
		return "", false
	}
	record := strings.TrimSpace(string(body))
	if record == "" {
		metrics.ObserveEnrichment("bibtex", "absent")
		return "", false
	}
	metrics.ObserveEnrichment("bibtex", "found")
	return record, true
}

// get performs a paced GET with bounded retries. Transport failures, 429 and
// 5xx are retried; other statuses are final.
func (c *Client) get(ctx context.Context, kind, target, accept string) ([]byte, bool) {
	req := crawler.FetchRequest{URL: target, Headers: http.Header{"Accept": {accept}}}
	for attempt := 1; attempt <= c.cfg.Attempts; attempt++ {
		if attempt > 1 {
			if err := c.clock.Sleep(ctx, c.cfg.RetryDelay); err != nil {
				return nil, false
			}
		}
		if err := c.limiter.Wait(ctx, target); err != nil {
			return nil, false
		}

		resp, err := c.fetcher.Fetch(ctx, req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, false
			}
			c.logger.Warn("Lookup failed", zap.String("kind", kind), zap.Int("attempt", attempt), zap.Error(err))
			continue
		}
		switch {
		case resp.StatusCode >= 200 && resp.StatusCode < 300:
			return bytes.Clone(resp.Body), true
		case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
			c.logger.Warn("Lookup returned retryable status",
				zap.String("kind", kind), zap.Int("attempt", attempt), zap.Int("status", resp.StatusCode))
		default:
			metrics.ObserveEnrichment(kind, "absent")
			return nil, false
		}
	}
	metrics.ObserveEnrichment(kind, "exhausted")
	c.logger.Warn("Lookup gave up", zap.String("kind", kind), zap.String("url", target), zap.Int("attempts", c.cfg.Attempts))
	return nil, false
}
