// Package orchestrator sequences the per-target crawl: search, match,
// paginate, retry, checkpoint, pace, and periodically recycle the session.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/scholar-citation-crawler/internal/crawler"
	"github.com/JakeFAU/scholar-citation-crawler/internal/metrics"
	"github.com/JakeFAU/scholar-citation-crawler/internal/normalize"
)

// Config holds the crawl cadence.
type Config struct {
	BaseURL        string
	Language       string
	ResultSelector string

	// BatchSize is both the recycle cadence and the checkpoint cadence.
	BatchSize        int
	Retries          int
	RetryCooldown    time.Duration
	PageReadyTimeout time.Duration

	BaseDelay      time.Duration
	JitterSpan     int
	BatchSurcharge time.Duration
}

func (c Config) withDefaults() Config {
	if c.BaseURL == "" {
		c.BaseURL = "https://scholar.google.com"
	}
	if c.Language == "" {
		c.Language = "en"
	}
	if c.ResultSelector == "" {
		c.ResultSelector = ".gs_ri"
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 5
	}
	if c.Retries < 0 {
		c.Retries = 0
	}
	if c.PageReadyTimeout <= 0 {
		c.PageReadyTimeout = 10 * time.Second
	}
	if c.JitterSpan <= 0 {
		c.JitterSpan = 5
	}
	c.RetryCooldown = durationOr(c.RetryCooldown, 5*time.Second)
	c.BaseDelay = durationOr(c.BaseDelay, 8*time.Second)
	c.BatchSurcharge = durationOr(c.BatchSurcharge, 5*time.Second)
	return c
}

// durationOr returns def for zero and clamps negative values to zero, so a
// negative setting turns the pause off.
func durationOr(d, def time.Duration) time.Duration {
	switch {
	case d == 0:
		return def
	case d < 0:
		return 0
	}
	return d
}

// SessionManager is the lifecycle contract the orchestrator relies on.
type SessionManager interface {
	Acquire(ctx context.Context) (crawler.Session, error)
	Recycle(ctx context.Context) (crawler.Session, error)
	Release()
}

// Deps are the collaborators of an Orchestrator.
type Deps struct {
	Sessions  SessionManager
	Extractor crawler.Extractor
	Challenge crawler.ChallengeHandler
	Walker    crawler.Walker
	Sink      crawler.ResultSink
	Progress  crawler.ProgressSink
	Clock     crawler.Clock
	Logger    *zap.Logger
}

// Orchestrator drives one sequential crawl over a target list.
type Orchestrator struct {
	cfg       Config
	sessions  SessionManager
	extractor crawler.Extractor
	challenge crawler.ChallengeHandler
	walker    crawler.Walker
	sink      crawler.ResultSink
	progress  crawler.ProgressSink
	clock     crawler.Clock
	logger    *zap.Logger
}

// New validates deps and returns an Orchestrator.
func New(cfg Config, deps Deps) (*Orchestrator, error) {
	switch {
	case deps.Sessions == nil:
		return nil, errors.New("orchestrator: session manager is required")
	case deps.Extractor == nil:
		return nil, errors.New("orchestrator: extractor is required")
	case deps.Challenge == nil:
		return nil, errors.New("orchestrator: challenge handler is required")
	case deps.Walker == nil:
		return nil, errors.New("orchestrator: walker is required")
	case deps.Clock == nil:
		return nil, errors.New("orchestrator: clock is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	progress := deps.Progress
	if progress == nil {
		progress = crawler.ProgressFunc(func(int, int) {})
	}
	return &Orchestrator{
		cfg:       cfg.withDefaults(),
		sessions:  deps.Sessions,
		extractor: deps.Extractor,
		challenge: deps.Challenge,
		walker:    deps.Walker,
		sink:      deps.Sink,
		progress:  progress,
		clock:     deps.Clock,
		logger:    logger.Named("orchestrator"),
	}, nil
}

// Run processes targets in order and returns one record per processed
// target. Only session-creation failure and cancellation stop the run early;
// both flush a checkpoint of the records collected so far.
func (o *Orchestrator) Run(ctx context.Context, targets []crawler.CrawlTarget) ([]crawler.CitationRecord, error) {
	defer o.sessions.Release()

	total := len(targets)
	records := make([]crawler.CitationRecord, 0, total)
	sinceRecycle := 0
	o.logger.Info("Starting crawl", zap.Int("targets", total), zap.Int("batch_size", o.cfg.BatchSize))

	for i, target := range targets {
		if err := ctx.Err(); err != nil {
			return o.abort(ctx, records, err)
		}

		var err error
		if sinceRecycle >= o.cfg.BatchSize {
			_, err = o.sessions.Recycle(ctx)
			sinceRecycle = 0
		} else {
			_, err = o.sessions.Acquire(ctx)
		}
		if err != nil {
			return o.abort(ctx, records, err)
		}

		record, err := o.processTarget(ctx, i, target)
		if err != nil {
			return o.abort(ctx, records, err)
		}
		records = append(records, record)
		sinceRecycle++
		o.progress.OnProgress(i+1, total)

		last := i+1 == total
		if (i+1)%o.cfg.BatchSize == 0 || last {
			o.checkpoint(ctx, records)
		}
		if last {
			break
		}
		if err := o.clock.Sleep(ctx, o.pacing(i)); err != nil {
			return o.abort(ctx, records, err)
		}
	}

	o.logger.Info("Crawl finished", zap.Int("records", len(records)))
	return records, nil
}

// pacing is the pause after the target at position i.
func (o *Orchestrator) pacing(i int) time.Duration {
	delay := o.cfg.BaseDelay + time.Duration(i%o.cfg.JitterSpan)*time.Second
	if i%o.cfg.BatchSize == 0 {
		delay += o.cfg.BatchSurcharge
	}
	return delay
}

func (o *Orchestrator) abort(ctx context.Context, records []crawler.CitationRecord, err error) ([]crawler.CitationRecord, error) {
	o.logger.Warn("Stopping crawl early", zap.Int("records", len(records)), zap.Error(err))
	o.checkpoint(context.WithoutCancel(ctx), records)
	return records, err
}

func (o *Orchestrator) checkpoint(ctx context.Context, records []crawler.CitationRecord) {
	if o.sink == nil {
		return
	}
	if err := o.sink.WriteCheckpoint(ctx, records); err != nil {
		metrics.ObserveCheckpoint("error")
		o.logger.Error("Checkpoint failed", zap.Int("records", len(records)), zap.Error(err))
		return
	}
	metrics.ObserveCheckpoint("ok")
	o.logger.Info("Checkpoint written", zap.Int("records", len(records)))
}

// processTarget applies the bounded retry policy. The returned error is
// non-nil only for conditions that must stop the run.
func (o *Orchestrator) processTarget(ctx context.Context, i int, target crawler.CrawlTarget) (crawler.CitationRecord, error) {
	start := o.clock.Now()
	logger := o.logger.With(zap.Int("position", i), zap.String("title", target.Title))
	attempts := 1 + o.cfg.Retries

	record := crawler.EmptyRecord(target.Title)
	if normalize.Title(target.Title) == "" {
		metrics.ObserveTarget("empty", o.clock.Now().Sub(start))
		logger.Warn("Title is empty after normalization; cannot be matched")
		return record, nil
	}
	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			metrics.ObserveRetry()
			if err := o.clock.Sleep(ctx, o.cfg.RetryCooldown); err != nil {
				return record, err
			}
		}

		session, err := o.sessions.Acquire(ctx)
		if err != nil {
			return record, err
		}
		got, err := o.attempt(ctx, session, target)
		switch {
		case err == nil && got.CitedByCount > 0:
			metrics.ObserveTarget("found", o.clock.Now().Sub(start))
			logger.Info("Collected citations", zap.Int("attempt", attempt), zap.Int("citers", got.CitedByCount))
			return got, nil
		case err == nil:
			record = got
			logger.Info("No citations found", zap.Int("attempt", attempt))
		case ctx.Err() != nil:
			return record, ctx.Err()
		case errors.Is(err, crawler.ErrSessionUnavailable):
			return record, err
		case crawler.IsTransient(err):
			logger.Warn("Attempt failed", zap.Int("attempt", attempt), zap.Error(err))
		default:
			metrics.ObserveTarget("degraded", o.clock.Now().Sub(start))
			logger.Error("Target failed; recording empty result", zap.Int("attempt", attempt), zap.Error(err))
			return crawler.EmptyRecord(target.Title), nil
		}
	}
	metrics.ObserveTarget("empty", o.clock.Now().Sub(start))
	return record, nil
}

var errPanic = errors.New("panic during target")

func (o *Orchestrator) attempt(ctx context.Context, session crawler.Session, target crawler.CrawlTarget) (record crawler.CitationRecord, err error) {
	defer func() {
		if r := recover(); r != nil {
			record = crawler.EmptyRecord(target.Title)
			err = fmt.Errorf("%w: %v", errPanic, r)
		}
	}()

	searchURL := crawler.SearchURL(o.cfg.BaseURL, o.cfg.Language, target.Title)
	if err := session.Navigate(ctx, searchURL); err != nil {
		return crawler.EmptyRecord(target.Title), fmt.Errorf("search: %w", err)
	}
	cleared, err := o.challenge.Clear(ctx, session)
	if err != nil {
		return crawler.EmptyRecord(target.Title), fmt.Errorf("search challenge: %w", err)
	}
	if !cleared {
		return crawler.EmptyRecord(target.Title), crawler.ErrChallengeTimeout
	}
	ready, err := session.WaitFor(ctx, o.cfg.ResultSelector, o.cfg.PageReadyTimeout)
	if err != nil {
		return crawler.EmptyRecord(target.Title), fmt.Errorf("wait for search results: %w", err)
	}
	if !ready {
		return crawler.EmptyRecord(target.Title), fmt.Errorf("search results: %w", crawler.ErrTimeout)
	}

	page, err := session.Snapshot(ctx)
	if err != nil {
		return crawler.EmptyRecord(target.Title), fmt.Errorf("snapshot search results: %w", err)
	}
	snapshot, err := o.extractor.Extract(page)
	if err != nil {
		return crawler.EmptyRecord(target.Title), fmt.Errorf("extract search results: %w", err)
	}

	match, ok := findMatch(snapshot, target.Title)
	if !ok {
		o.logger.Info("No matching result with citations", zap.String("title", target.Title))
		return crawler.EmptyRecord(target.Title), nil
	}

	citers, err := o.walker.Walk(ctx, session, match.CitedByURL, target.Title)
	if err != nil {
		return crawler.EmptyRecord(target.Title), fmt.Errorf("walk citations: %w", err)
	}
	if match.CitedByCount >= 0 && match.CitedByCount != len(citers) {
		o.logger.Debug("Label count differs from collected citers",
			zap.String("title", target.Title),
			zap.Int("label_count", match.CitedByCount),
			zap.Int("citers", len(citers)),
		)
	}
	return crawler.CitationRecord{Title: target.Title, CitedByCount: len(citers), Citers: citers}, nil
}

// findMatch returns the first entry whose normalized title equals title and
// that exposes a "cited by" link. A title with an empty normalized form
// matches nothing.
func findMatch(snapshot crawler.PageSnapshot, title string) (crawler.Match, bool) {
	want := normalize.Title(title)
	if want == "" {
		return crawler.Match{}, false
	}
	for _, m := range snapshot.Matches {
		if m.HasCitedBy() && normalize.Title(m.Title) == want {
			return m, true
		}
	}
	return crawler.Match{}, false
}
