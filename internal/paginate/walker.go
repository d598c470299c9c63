// Package paginate walks a "cited by" listing page by page, collecting the
// unique titles of citing works.
package paginate

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

// Config tunes the walk.
type Config struct {
	// ResultSelector must match once the result list has rendered.
	ResultSelector string
	// MoreLabel is the exact text of the "load more" link.
	MoreLabel    string
	ReadyTimeout time.Duration
	ClickTimeout time.Duration
	Settle       time.Duration
	// MaxPages caps the number of pages extracted per listing.
	MaxPages int
}

func (c Config) withDefaults() Config {
	if c.ResultSelector == "" {
		c.ResultSelector = ".gs_ri"
	}
	if c.MoreLabel == "" {
		c.MoreLabel = "More"
	}
	if c.ReadyTimeout <= 0 {
		c.ReadyTimeout = 10 * time.Second
	}
	if c.ClickTimeout <= 0 {
		c.ClickTimeout = 5 * time.Second
	}
	if c.Settle < 0 {
		c.Settle = 0
	}
	if c.MaxPages <= 0 {
		c.MaxPages = 500
	}
	return c
}

// Walker implements crawler.Walker.
type Walker struct {
	cfg       Config
	extractor crawler.Extractor
	challenge crawler.ChallengeHandler
	clock     crawler.Clock
	logger    *zap.Logger
}

// New creates a Walker.
func New(
	cfg Config,
	extractor crawler.Extractor,
	challenge crawler.ChallengeHandler,
	clock crawler.Clock,
	logger *zap.Logger,
) *Walker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Walker{
		cfg:       cfg.withDefaults(),
		extractor: extractor,
		challenge: challenge,
		clock:     clock,
		logger:    logger.Named("paginate"),
	}
}

// Walk navigates to listingURL and returns the citing titles in discovery
// order, unique by normalized form. Entries equal to targetTitle are skipped
// on the first page. A challenge that is not cleared yields an empty result.
// Timeouts, and failures to read any page after the first, end the walk
// early with whatever was collected.
func (w *Walker) Walk(ctx context.Context, session crawler.Session, listingURL, targetTitle string) ([]string, error) {
	citers := []string{}
	if err := session.Navigate(ctx, listingURL); err != nil {
		return citers, fmt.Errorf("open listing: %w", err)
	}
	cleared, err := w.challenge.Clear(ctx, session)
	if err != nil {
		return citers, fmt.Errorf("challenge on listing: %w", err)
	}
	if !cleared {
		w.logger.Warn("Abandoning listing after uncleared challenge", zap.String("url", listingURL))
		return citers, nil
	}

	target := normalize.Title(targetTitle)
	seen := make(map[string]struct{})
	for page := 1; page <= w.cfg.MaxPages; page++ {
		if err := ctx.Err(); err != nil {
			return citers, err
		}

		ready, err := session.WaitFor(ctx, w.cfg.ResultSelector, w.cfg.ReadyTimeout)
		if err != nil {
			return citers, fmt.Errorf("wait for results on page %d: %w", page, err)
		}
		if !ready {
			w.logger.Info("Result list did not render; ending walk", zap.Int("page", page))
			break
		}

		snapshot, err := session.Snapshot(ctx)
		if err != nil {
			if w.endEarly(ctx, page, err) {
				break
			}
			return citers, fmt.Errorf("snapshot page %d: %w", page, err)
		}
		extracted, err := w.extractor.Extract(snapshot)
		if err != nil {
			if w.endEarly(ctx, page, err) {
				break
			}
			return citers, fmt.Errorf("extract page %d: %w", page, err)
		}

		added := 0
		for _, m := range extracted.Matches {
			key := normalize.Title(m.Title)
			if key == "" {
				continue
			}
			if page == 1 && key == target {
				continue
			}
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			citers = append(citers, normalize.Display(m.Title))
			added++
		}
		metrics.ObservePage(added)
		w.logger.Debug("Extracted result page",
			zap.Int("page", page),
			zap.Int("entries", len(extracted.Matches)),
			zap.Int("added", added),
			zap.Int("citers", len(citers)),
		)

		if page == w.cfg.MaxPages {
			w.logger.Warn("Page cap reached; ending walk", zap.Int("max_pages", w.cfg.MaxPages))
			break
		}

		clicked, err := session.ClickLink(ctx, w.cfg.MoreLabel, w.cfg.ClickTimeout)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return citers, ctxErr
			}
			w.logger.Warn("Could not load more results", zap.Int("page", page), zap.Error(err))
			break
		}
		if !clicked {
			break
		}
		if err := w.clock.Sleep(ctx, w.cfg.Settle); err != nil {
			return citers, err
		}
	}
	return citers, nil
}

// endEarly reports whether err on page should end the walk with the citers
// collected so far instead of failing it.
func (w *Walker) endEarly(ctx context.Context, page int, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	if page == 1 && !errors.Is(err, crawler.ErrTimeout) {
		return false
	}
	w.logger.Warn("Could not read result page; ending walk", zap.Int("page", page), zap.Error(err))
	return true
}
