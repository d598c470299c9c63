package export

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/JakeFAU/scholar-citation-crawler/internal/clock/fake"
	"github.com/JakeFAU/scholar-citation-crawler/internal/crawler"
	"github.com/JakeFAU/scholar-citation-crawler/internal/hash/sha256"
	pubmemory "github.com/JakeFAU/scholar-citation-crawler/internal/publisher/memory"
	"github.com/JakeFAU/scholar-citation-crawler/internal/storage/memory"
)

var start = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func sampleRecords() []crawler.EnrichedRecord {
	return []crawler.EnrichedRecord{
		{
			Record: crawler.CitationRecord{Title: "A", CitedByCount: 2, Citers: []string{"X", "Y"}},
			Citations: []crawler.EnrichedCitation{
				{CitingTitle: "X", DOI: "10.1/x", BibTeX: "@article{x}"},
				{CitingTitle: "Y"},
			},
		},
		{Record: crawler.EmptyRecord("B"), Citations: []crawler.EnrichedCitation{}},
	}
}

func readSheet(t *testing.T, data []byte, sheet string) [][]string {
	t.Helper()
	f, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer func() { _ = f.Close() }()
	rows, err := f.GetRows(sheet)
	require.NoError(t, err)
	return rows
}

func TestResultsWorkbookSheets(t *testing.T) {
	t.Parallel()

	data, err := ResultsWorkbook(sampleRecords())
	require.NoError(t, err)

	assert.Equal(t, [][]string{
		{"Article Title", "Cited By"},
		{"A", "2"},
		{"B", "0"},
	}, readSheet(t, data, SheetCitations))
	assert.Equal(t, [][]string{
		{"Cited Article", "Citing Article"},
		{"A", "X"},
		{"A", "Y"},
	}, readSheet(t, data, SheetCiters))
	assert.Equal(t, [][]string{
		{"Citing Article", "BibTeX Found"},
		{"X", "Yes"},
		{"Y", "No"},
	}, readSheet(t, data, SheetBibTeX))
}

func TestCheckpointWorkbookHasNoBibTeXSheet(t *testing.T) {
	t.Parallel()

	data, err := CheckpointWorkbook([]crawler.CitationRecord{{Title: "A", CitedByCount: 1, Citers: []string{"X"}}})
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer func() { _ = f.Close() }()
	assert.Equal(t, []string{SheetCitations, SheetCiters}, f.GetSheetList())
}

func TestBibTeXJoinsFoundEntries(t *testing.T) {
	t.Parallel()

	records := sampleRecords()
	records[1].Citations = []crawler.EnrichedCitation{{CitingTitle: "Z", DOI: "10.1/z", BibTeX: "@book{z}"}}
	assert.Equal(t, "@article{x}\n\n@book{z}", string(BibTeX(records)))
	assert.Empty(t, BibTeX(nil))
}

func TestReport(t *testing.T) {
	t.Parallel()

	info := RunInfo{RunID: "run-1", StartedAt: start, FinishedAt: start.Add(90 * time.Second)}
	data, err := Report(info, sampleRecords())
	require.NoError(t, err)

	text := string(data)
	assert.Contains(t, text, "# Citation Crawl Report")
	assert.Contains(t, text, "run-1")
	assert.Contains(t, text, "1m30s")
	assert.Contains(t, text, "50.0%")
	assert.Contains(t, text, "1 target(s) finished with no citations")
}

func TestSummarize(t *testing.T) {
	t.Parallel()

	s := Summarize(sampleRecords())
	assert.Equal(t, Summary{Targets: 2, WithCitations: 1, Citers: 2, DOIs: 1, BibTeX: 1}, s)
	assert.InDelta(t, 50.0, s.HitRate(), 0.001)
	assert.Zero(t, Summary{}.HitRate())
}

type failingStore struct{}

func (failingStore) PutObject(context.Context, string, string, io.Reader) (string, error) {
	return "", errors.New("bucket unavailable")
}

func TestExporterWritesAllArtifacts(t *testing.T) {
	t.Parallel()

	primary := memory.NewBlobStore()
	mirror := memory.NewBlobStore()
	exp, err := NewExporter(Options{Names: DefaultNames(), Prefix: "run-1", Run: RunInfo{RunID: "run-1", StartedAt: start}},
		sha256.New(), fake.New(start), nil, primary, mirror)
	require.NoError(t, err)

	artifacts, err := exp.Export(context.Background(), sampleRecords())
	require.NoError(t, err)
	require.Len(t, artifacts, 3)

	assert.Equal(t, []string{"citation_data.xlsx", "citations.bibtex", "report.md"}, primary.Paths())
	assert.Equal(t, []string{"run-1/citation_data.xlsx", "run-1/citations.bibtex", "run-1/report.md"}, mirror.Paths())

	bib := artifacts[1]
	assert.Equal(t, "memory://citations.bibtex", bib.URI)
	assert.Equal(t, ContentTypeBibTeX, bib.ContentType)
	digest, err := sha256.New().Hash([]byte("@article{x}"))
	require.NoError(t, err)
	assert.Equal(t, digest, bib.SHA256)
	assert.Equal(t, len("@article{x}"), bib.Bytes)
}

func TestExporterOptionalArtifactsAndMirrorFailure(t *testing.T) {
	t.Parallel()

	primary := memory.NewBlobStore()
	exp, err := NewExporter(Options{}, sha256.New(), fake.New(start), nil, primary, failingStore{})
	require.NoError(t, err)

	artifacts, err := exp.Export(context.Background(), sampleRecords())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMirror)
	assert.Contains(t, err.Error(), "bucket unavailable")
	require.Len(t, artifacts, 1)
	assert.Equal(t, "citation_data.xlsx", artifacts[0].Name)
}

func TestExporterPrimaryFailureIsFatal(t *testing.T) {
	t.Parallel()

	exp, err := NewExporter(Options{Names: DefaultNames()}, sha256.New(), fake.New(start), nil, failingStore{})
	require.NoError(t, err)

	artifacts, err := exp.Export(context.Background(), sampleRecords())
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrMirror)
	assert.Empty(t, artifacts)

	_, err = NewExporter(Options{}, sha256.New(), fake.New(start), nil)
	require.Error(t, err)
}

func TestCheckpointSinkOverwrites(t *testing.T) {
	t.Parallel()

	store := memory.NewBlobStore()
	sink, err := NewCheckpointSink(store, "")
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, sink.WriteCheckpoint(ctx, []crawler.CitationRecord{crawler.EmptyRecord("A")}))
	require.NoError(t, sink.WriteCheckpoint(ctx, []crawler.CitationRecord{crawler.EmptyRecord("A"), crawler.EmptyRecord("B")}))

	data, contentType, ok := store.Get("citation_data.xlsx")
	require.True(t, ok)
	assert.Equal(t, ContentTypeXLSX, contentType)
	assert.Len(t, readSheet(t, data, SheetCitations), 3)
	assert.Equal(t, 2, store.Puts())
}

type recordingSink struct {
	calls int
	err   error
}

func (s *recordingSink) WriteCheckpoint(context.Context, []crawler.CitationRecord) error {
	s.calls++
	return s.err
}

func TestFanoutJoinsErrors(t *testing.T) {
	t.Parallel()

	ok := &recordingSink{}
	bad := &recordingSink{err: errors.New("postgres down")}
	err := Fanout{bad, ok}.WriteCheckpoint(context.Background(), nil)
	require.Error(t, err)
	assert.Equal(t, 1, ok.calls, "a failing sink must not block the others")
	assert.True(t, strings.Contains(err.Error(), "postgres down"))
}

func TestNotifyingSink(t *testing.T) {
	t.Parallel()

	pub := pubmemory.New()
	next := &recordingSink{}
	sink := NewNotifyingSink(next, pub, "checkpoints", "run-1", fake.New(start), nil)

	records := []crawler.CitationRecord{{Title: "A", CitedByCount: 2, Citers: []string{"X", "Y"}}, crawler.EmptyRecord("B")}
	require.NoError(t, sink.WriteCheckpoint(context.Background(), records))

	msgs := pub.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "checkpoints", msgs[0].Topic)
	assert.Equal(t, CheckpointEvent{RunID: "run-1", Completed: 2, Citers: 2, WrittenAt: start}, msgs[0].Payload)

	require.NoError(t, pub.Close())
	require.NoError(t, sink.WriteCheckpoint(context.Background(), records), "publish failures are not fatal")

	next.err = errors.New("disk full")
	require.Error(t, sink.WriteCheckpoint(context.Background(), records))
	assert.Len(t, pub.Messages(), 1)
}
