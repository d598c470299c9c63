package cmd

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/scholar-citation-crawler/internal/clock/fake"
	"github.com/JakeFAU/scholar-citation-crawler/internal/config"
	"github.com/JakeFAU/scholar-citation-crawler/internal/crawler"
	"github.com/JakeFAU/scholar-citation-crawler/internal/crawler/crawlertest"
	"github.com/JakeFAU/scholar-citation-crawler/internal/storage/sqlite"
)

const baseURL = "https://scholar.example"

type fixedID string

func (f fixedID) NewID() (string, error) { return string(f), nil }

// notFoundFetcher answers every lookup with 404, so enrichment finds nothing.
type notFoundFetcher struct {
	mu   sync.Mutex
	urls []string
}

func (f *notFoundFetcher) Fetch(_ context.Context, req crawler.FetchRequest) (crawler.FetchResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.urls = append(f.urls, req.URL)
	return crawler.FetchResponse{URL: req.URL, StatusCode: 404}, nil
}

func (f *notFoundFetcher) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.urls)
}

type fixture struct {
	dir     string
	site    *crawlertest.Site
	fetcher *notFoundFetcher
	env     *env
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		dir:     t.TempDir(),
		site:    crawlertest.NewSite(),
		fetcher: &notFoundFetcher{},
	}
	f.env = &env{
		clock: fake.New(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)),
		ids:   fixedID("run-1"),
		sessions: func(config.Config, *zap.Logger) crawler.SessionFactory {
			return f.site
		},
		fetcher: func(config.Config) crawler.Fetcher {
			return f.fetcher
		},
		registerer: prometheus.NewRegistry(),
	}
	return f
}

func (f *fixture) path(name string) string {
	return filepath.Join(f.dir, name)
}

// publish serves title with the given citers on a single listing page.
func (f *fixture) publish(title, cites string, citers ...string) {
	f.site.Handle(crawler.SearchURL(baseURL, "en", title), &crawlertest.Resource{Pages: []string{
		crawlertest.ResultsHTML(crawlertest.Entry{Title: title, CitedByURL: "/scholar?cites=" + cites, Count: len(citers)}),
	}})
	entries := make([]crawlertest.Entry, 0, len(citers))
	for _, citer := range citers {
		entries = append(entries, crawlertest.Entry{Title: citer})
	}
	f.site.Handle(baseURL+"/scholar?cites="+cites, &crawlertest.Resource{Pages: []string{
		crawlertest.ResultsHTML(entries...),
	}})
}

func (f *fixture) writeConfig(t *testing.T, extra string) string {
	t.Helper()
	body := "scholar:\n  base_url: " + baseURL + "\n" +
		"crawl:\n  batch_size: 1\n" +
		"input:\n  path: " + f.path("titles.txt") + "\n" +
		"output:\n  dir: " + f.path("out") + "\n  progress: false\n" +
		"server:\n  port: 0\n" +
		"enrich:\n  requests_per_second: 0\n" +
		extra
	path := f.path("config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func (f *fixture) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := newRootCmd(f.env)
	root.SetArgs(args)
	root.SetOut(&out)
	root.SetErr(&out)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestCrawlEndToEnd(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.publish("Deep Residual Learning", "1", "Citer One", "Citer Two")
	f.publish("Attention Is All You Need", "2", "Citer Three")
	require.NoError(t, os.WriteFile(f.path("titles.txt"),
		[]byte("Deep Residual Learning\n\n# skipped\nAttention Is All You Need\n"), 0o600))
	cfgPath := f.writeConfig(t, "db:\n  sqlite_path: "+f.path("mirror.db")+"\n")

	_, err := f.run(t, "crawl", "--config", cfgPath)
	require.NoError(t, err)

	for _, name := range []string{"citation_data.xlsx", "citations.bibtex", "report.md"} {
		info, err := os.Stat(filepath.Join(f.path("out"), name))
		require.NoError(t, err, name)
		if name != "citations.bibtex" {
			assert.Positive(t, info.Size(), name)
		}
	}
	report, err := os.ReadFile(filepath.Join(f.path("out"), "report.md"))
	require.NoError(t, err)
	assert.Contains(t, string(report), "Deep Residual Learning")
	assert.Contains(t, string(report), "run-1")

	// Three citers, each a Crossref lookup answered with 404.
	assert.Equal(t, 3, f.fetcher.calls())

	db, err := sqlite.Open(context.Background(), f.path("mirror.db"), "run-1", f.env.clock)
	require.NoError(t, err)
	defer db.Close()
	records, err := db.Records(context.Background(), "run-1")
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, []string{"Citer One", "Citer Two"}, records[0].Citers)
	assert.Equal(t, 1, records[1].CitedByCount)

	out, err := f.run(t, "inspect", "run-1", "--citers", "--config", cfgPath)
	require.NoError(t, err)
	assert.Contains(t, out, "run-1: 2 titles")
	assert.Contains(t, out, "1. Deep Residual Learning (2 citers)")
	assert.Contains(t, out, "- Citer Three")
}

func TestInspectUnknownRun(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	cfgPath := f.writeConfig(t, "db:\n  sqlite_path: "+f.path("mirror.db")+"\n")

	_, err := f.run(t, "inspect", "run-1", "--config", cfgPath)
	require.Error(t, err, "mirror file does not exist yet")

	db, err := sqlite.Open(context.Background(), f.path("mirror.db"), "run-0", f.env.clock)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	_, err = f.run(t, "inspect", "run-1", "--config", cfgPath)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no checkpoint for run run-1")
}

func TestCrawlSkipEnrich(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.publish("Only Title", "9", "Somebody")
	require.NoError(t, os.WriteFile(f.path("other.txt"), []byte("Only Title\n"), 0o600))
	cfgPath := f.writeConfig(t, "")

	_, err := f.run(t, "crawl", "--config", cfgPath, "--input", f.path("other.txt"), "--skip-enrich")
	require.NoError(t, err)
	assert.Zero(t, f.fetcher.calls())

	report, err := os.ReadFile(filepath.Join(f.path("out"), "report.md"))
	require.NoError(t, err)
	assert.Contains(t, string(report), "Only Title")
}

func TestCrawlMissingInput(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	cfgPath := f.writeConfig(t, "")

	_, err := f.run(t, "crawl", "--config", cfgPath)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "load targets")
	assert.Empty(t, f.site.Sessions())
}

func TestCrawlEmptyInput(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	require.NoError(t, os.WriteFile(f.path("titles.txt"), []byte("# nothing yet\n"), 0o600))
	cfgPath := f.writeConfig(t, "")

	_, err := f.run(t, "crawl", "--config", cfgPath)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no titles")
}

func TestTemplateCommand(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	cfgPath := f.writeConfig(t, "")
	target := f.path("inputs/articles.xlsx")

	out, err := f.run(t, "template", "--config", cfgPath, "--output", target)
	require.NoError(t, err)
	assert.Contains(t, out, "created")
	_, err = os.Stat(target)
	require.NoError(t, err)

	out, err = f.run(t, "template", "--config", cfgPath, "--output", target)
	require.NoError(t, err)
	assert.Contains(t, out, "already exists")
}

func TestBadConfigFails(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	_, err := f.run(t, "template", "--config", f.path("missing.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "load config")
}
