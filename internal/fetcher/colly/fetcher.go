// Package collyfetcher implements crawler.Fetcher on a gocolly collector. It
// serves the JSON and BibTeX lookups of the enrichment stage, so every status
// code is handed back to the caller instead of being turned into an error.
package collyfetcher

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/JakeFAU/scholar-citation-crawler/internal/crawler"
	"github.com/JakeFAU/scholar-citation-crawler/internal/metrics"
)

const defaultTimeout = 30 * time.Second

// Config controls collector behavior.
type Config struct {
	UserAgent string
	Timeout   time.Duration
	// MaxBodySize caps response bodies in bytes. Zero keeps colly's default.
	MaxBodySize int
}

// Fetcher implements crawler.Fetcher. It is safe for concurrent use; each
// Fetch runs on a clone that shares the HTTP backend.
type Fetcher struct {
	cfg  Config
	base *colly.Collector
}

// New builds a Fetcher. Retried lookups hit the same URL, so revisits are
// allowed.
func New(cfg Config) *Fetcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	opts := []colly.CollectorOption{
		colly.AllowURLRevisit(),
		colly.IgnoreRobotsTxt(),
		colly.ParseHTTPErrorResponse(),
	}
	if cfg.UserAgent != "" {
		opts = append(opts, colly.UserAgent(cfg.UserAgent))
	}
	if cfg.MaxBodySize > 0 {
		opts = append(opts, colly.MaxBodySize(cfg.MaxBodySize))
	}

	c := colly.NewCollector(opts...)
	c.WithTransport(newTransport())
	c.SetRequestTimeout(cfg.Timeout)
	return &Fetcher{cfg: cfg, base: c}
}

// Fetch performs a GET with the request headers and returns the response
// whatever its status. Only transport failures and cancellation are errors.
func (f *Fetcher) Fetch(ctx context.Context, request crawler.FetchRequest) (crawler.FetchResponse, error) {
	if err := ctx.Err(); err != nil {
		return crawler.FetchResponse{}, fmt.Errorf("colly fetch canceled: %w", err)
	}

	c := f.base.Clone()
	c.Context = ctx

	var (
		result  crawler.FetchResponse
		respErr error
	)
	start := time.Now()
	c.OnResponse(func(r *colly.Response) {
		result = toResponse(r, time.Since(start))
	})
	c.OnError(func(_ *colly.Response, err error) {
		respErr = err
	})

	done := make(chan error, 1)
	go func() {
		done <- c.Request(http.MethodGet, request.URL, nil, nil, request.Headers.Clone())
	}()

	select {
	case <-ctx.Done():
		metrics.ObserveFetch(request.URL, 0)
		return crawler.FetchResponse{}, fmt.Errorf("colly fetch canceled: %w", ctx.Err())
	case err := <-done:
		if err == nil {
			err = respErr
		}
		if err != nil {
			metrics.ObserveFetch(request.URL, 0)
			return crawler.FetchResponse{}, fmt.Errorf("colly fetch %s: %w", request.URL, err)
		}
	}
	metrics.ObserveFetch(request.URL, result.StatusCode)
	return result, nil
}

func toResponse(r *colly.Response, elapsed time.Duration) crawler.FetchResponse {
	resp := crawler.FetchResponse{
		StatusCode: r.StatusCode,
		Body:       append([]byte(nil), r.Body...),
		Duration:   elapsed,
	}
	if r.Request != nil && r.Request.URL != nil {
		resp.URL = r.Request.URL.String()
	}
	if r.Headers != nil {
		resp.Headers = r.Headers.Clone()
	}
	return resp
}

func newTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ResponseHeaderTimeout: 30 * time.Second,
		MaxIdleConnsPerHost:   4,
		IdleConnTimeout:       90 * time.Second,
	}
}
