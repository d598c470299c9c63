package enrich

import (
	"context"

	"go.uber.org/zap"

	"github.com/JakeFAU/scholar-citation-crawler/internal/crawler"
	"github.com/JakeFAU/scholar-citation-crawler/internal/normalize"
)

// Enricher attaches DOIs and BibTeX records to every citer of a crawl.
type Enricher struct {
	client   crawler.Enrichment
	progress crawler.ProgressSink
	logger   *zap.Logger
	cache    map[string]crawler.EnrichedCitation
}

// NewEnricher wraps client. progress may be nil.
func NewEnricher(client crawler.Enrichment, progress crawler.ProgressSink, logger *zap.Logger) *Enricher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if progress == nil {
		progress = crawler.ProgressFunc(func(int, int) {})
	}
	return &Enricher{
		client:   client,
		progress: progress,
		logger:   logger.Named("enricher"),
		cache:    make(map[string]crawler.EnrichedCitation),
	}
}

// Enrich returns one EnrichedRecord per record with one citation per citer.
// Citers that normalize to the same title are looked up once. On
// cancellation the remaining citations are returned bare along with ctx.Err().
func (e *Enricher) Enrich(ctx context.Context, records []crawler.CitationRecord) ([]crawler.EnrichedRecord, error) {
	out := Bare(records)
	total := 0
	for _, rec := range records {
		total += len(rec.Citers)
	}

	done, found := 0, 0
	for i, rec := range records {
		for j, citer := range rec.Citers {
			if err := ctx.Err(); err != nil {
				e.logger.Warn("Enrichment interrupted", zap.Int("done", done), zap.Int("total", total))
				return out, err
			}
			citation := e.lookup(ctx, citer)
			out[i].Citations[j] = citation
			if citation.HasBibTeX() {
				found++
			}
			done++
			e.progress.OnProgress(done, total)
		}
	}
	e.logger.Info("Enrichment finished", zap.Int("citations", total), zap.Int("bibtex_found", found))
	return out, nil
}

// Bare wraps records without metadata, for runs that skip enrichment.
func Bare(records []crawler.CitationRecord) []crawler.EnrichedRecord {
	out := make([]crawler.EnrichedRecord, len(records))
	for i, rec := range records {
		out[i] = crawler.EnrichedRecord{Record: rec, Citations: make([]crawler.EnrichedCitation, len(rec.Citers))}
		for j, citer := range rec.Citers {
			out[i].Citations[j] = crawler.EnrichedCitation{CitingTitle: citer}
		}
	}
	return out
}

func (e *Enricher) lookup(ctx context.Context, citer string) crawler.EnrichedCitation {
	key := normalize.Title(citer)
	if cached, ok := e.cache[key]; ok && key != "" {
		cached.CitingTitle = citer
		return cached
	}

	citation := crawler.EnrichedCitation{CitingTitle: citer}
	if doi, ok := e.client.ResolveIdentifier(ctx, citer); ok {
		citation.DOI = doi
		if record, ok := e.client.FetchRecord(ctx, doi); ok {
			citation.BibTeX = record
		}
	}
	if ctx.Err() == nil {
		e.cache[key] = citation
	}
	return citation
}
