// Package challenge blocks the crawl while a human-verification interstitial
// is on screen, giving an operator time to solve it in the browser window.
package challenge

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/scholar-citation-crawler/internal/crawler"
	"github.com/JakeFAU/scholar-citation-crawler/internal/metrics"
	"github.com/JakeFAU/scholar-citation-crawler/internal/wait"
)

// Config bounds how long the handler waits for manual clearance.
type Config struct {
	Timeout      time.Duration
	PollInterval time.Duration
}

// Handler implements crawler.ChallengeHandler by polling the live session.
type Handler struct {
	detector crawler.ChallengeDetector
	clock    crawler.Clock
	cfg      Config
	logger   *zap.Logger
}

// NewHandler wires a detector to a clock. Zero durations fall back to a
// 120s timeout polled every 2s.
func NewHandler(cfg Config, detector crawler.ChallengeDetector, clock crawler.Clock, logger *zap.Logger) *Handler {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 120 * time.Second
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 2 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{detector: detector, clock: clock, cfg: cfg, logger: logger.Named("challenge")}
}

// Clear returns true immediately when no challenge is showing. Otherwise it
// waits up to the configured timeout for the page to stop looking like one.
func (h *Handler) Clear(ctx context.Context, session crawler.Session) (bool, error) {
	page, err := session.Snapshot(ctx)
	if err != nil {
		return false, fmt.Errorf("snapshot before challenge check: %w", err)
	}
	if !h.detector.IsChallenge(page) {
		return true, nil
	}

	h.logger.Warn("Verification challenge detected; solve it in the browser window",
		zap.String("url", page.URL),
		zap.Duration("timeout", h.cfg.Timeout),
	)
	start := h.clock.Now()
	cleared, err := wait.Until(ctx, h.clock, h.cfg.Timeout, h.cfg.PollInterval, func(ctx context.Context) (bool, error) {
		page, err := session.Snapshot(ctx)
		if err != nil {
			return false, fmt.Errorf("snapshot while waiting for challenge: %w", err)
		}
		return !h.detector.IsChallenge(page), nil
	})
	if err != nil {
		return false, err
	}
	if !cleared {
		metrics.ObserveChallenge("timeout")
		h.logger.Warn("Verification challenge not cleared in time", zap.Duration("waited", h.clock.Now().Sub(start)))
		return false, nil
	}
	metrics.ObserveChallenge("cleared")
	h.logger.Info("Verification challenge cleared", zap.Duration("waited", h.clock.Now().Sub(start)))
	return true, nil
}

// Instant is a ChallengeHandler that never waits. It reports every page as
// clear, which suits unattended runs against fixtures.
type Instant struct{}

// Clear always returns true.
func (Instant) Clear(context.Context, crawler.Session) (bool, error) {
	return true, nil
}
