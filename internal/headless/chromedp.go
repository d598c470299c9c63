// Package headless drives a real Chrome instance through chromedp and exposes
// it as crawler.Session values.
package headless

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/JakeFAU/scholar-citation-crawler/internal/crawler"
)

// Config controls how browsers are launched.
type Config struct {
	// Headless hides the window. Leave it off when an operator may need to
	// solve verification challenges.
	Headless          bool
	UserAgent         string
	ExecPath          string
	NavigationTimeout time.Duration
	WindowWidth       int
	WindowHeight      int
}

// Factory implements crawler.SessionFactory, launching one browser per session.
type Factory struct {
	cfg    Config
	logger *zap.Logger
}

// NewFactory creates a chromedp-backed session factory.
func NewFactory(cfg Config, logger *zap.Logger) *Factory {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Factory{cfg: cfg, logger: logger.Named("headless")}
}

// NewSession launches a browser and opens its first tab.
func (f *Factory) NewSession(ctx context.Context) (crawler.Session, error) {
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), allocatorOptions(f.cfg)...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx, chromedp.WithLogf(f.logger.Sugar().Debugf))

	stopForward := forwardCancel(ctx, browserCancel)
	err := chromedp.Run(browserCtx, networkSetupAction(f.cfg.UserAgent))
	stopForward()
	if err != nil {
		browserCancel()
		allocCancel()
		return nil, fmt.Errorf("chromedp warmup: %w", err)
	}

	f.logger.Info("Browser launched", zap.Bool("headless", f.cfg.Headless))
	return &Session{
		browserCtx:    browserCtx,
		browserCancel: browserCancel,
		allocCancel:   allocCancel,
		navTimeout:    navTimeout(f.cfg.NavigationTimeout),
	}, nil
}

func allocatorOptions(cfg Config) []chromedp.ExecAllocatorOption {
	opts := append([]chromedp.ExecAllocatorOption(nil), chromedp.DefaultExecAllocatorOptions[:]...)
	if cfg.Headless {
		opts = append(opts, chromedp.Flag("headless", "new"))
	} else {
		opts = append(opts, chromedp.Flag("headless", false), chromedp.Flag("hide-scrollbars", false))
	}
	opts = append(opts,
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("enable-automation", false),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
	)
	if cfg.WindowWidth > 0 && cfg.WindowHeight > 0 {
		opts = append(opts, chromedp.WindowSize(cfg.WindowWidth, cfg.WindowHeight))
	}
	if cfg.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(cfg.UserAgent))
	}
	if cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(cfg.ExecPath))
	}
	return opts
}

func networkSetupAction(userAgent string) chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if err := network.Enable().Do(ctx); err != nil {
			return fmt.Errorf("enable network domain: %w", err)
		}
		if userAgent != "" {
			if err := emulation.SetUserAgentOverride(userAgent).Do(ctx); err != nil {
				return fmt.Errorf("set user-agent: %w", err)
			}
		}
		return nil
	})
}

func navTimeout(d time.Duration) time.Duration {
	if d > 0 {
		return d
	}
	return 30 * time.Second
}

// Session is one browser with a single tab.
type Session struct {
	browserCtx    context.Context
	browserCancel context.CancelFunc
	allocCancel   context.CancelFunc
	navTimeout    time.Duration

	mu     sync.Mutex
	closed bool
}

// Navigate loads url in the tab.
func (s *Session) Navigate(ctx context.Context, url string) error {
	return s.run(ctx, s.navTimeout, chromedp.Navigate(url))
}

// WaitFor waits for a CSS selector to be ready.
func (s *Session) WaitFor(ctx context.Context, selector string, timeout time.Duration) (bool, error) {
	err := s.run(ctx, timeout, chromedp.WaitReady(selector, chromedp.ByQuery))
	if errors.Is(err, crawler.ErrTimeout) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Snapshot captures the current URL and DOM.
func (s *Session) Snapshot(ctx context.Context) (crawler.Page, error) {
	var page crawler.Page
	err := s.run(ctx, s.navTimeout,
		chromedp.Location(&page.URL),
		chromedp.OuterHTML("html", &page.HTML, chromedp.ByQuery),
	)
	if err != nil {
		return crawler.Page{}, err
	}
	return page, nil
}

// ClickLink scrolls to the bottom of the page, waits for a link whose
// visible text is exactly text, and clicks it.
func (s *Session) ClickLink(ctx context.Context, text string, timeout time.Duration) (bool, error) {
	xpath := linkXPath(text)
	err := s.run(ctx, timeout,
		chromedp.Evaluate(`window.scrollTo(0, document.body.scrollHeight)`, nil),
		chromedp.WaitVisible(xpath, chromedp.BySearch),
	)
	if errors.Is(err, crawler.ErrTimeout) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := s.run(ctx, timeout,
		chromedp.ScrollIntoView(xpath, chromedp.BySearch),
		chromedp.Click(xpath, chromedp.BySearch, chromedp.NodeVisible),
	); err != nil {
		return false, err
	}
	return true, nil
}

// Close shuts the browser down. Further calls return crawler.ErrSessionClosed.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.browserCancel()
	s.allocCancel()
	return nil
}

func (s *Session) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *Session) run(ctx context.Context, timeout time.Duration, actions ...chromedp.Action) error {
	if s.isClosed() {
		return crawler.ErrSessionClosed
	}
	taskCtx, cancel := context.WithTimeout(s.browserCtx, timeout)
	defer cancel()

	stopForward := forwardCancel(ctx, cancel)
	defer stopForward()

	err := chromedp.Run(taskCtx, actions...)
	return mapRunError(ctx, taskCtx, err)
}

// mapRunError translates chromedp failures: caller cancellation wins, then
// deadline expiry becomes crawler.ErrTimeout.
func mapRunError(parent, task context.Context, err error) error {
	if err == nil {
		return nil
	}
	if parentErr := parent.Err(); parentErr != nil {
		return parentErr
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(task.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", crawler.ErrTimeout, err)
	}
	return fmt.Errorf("chromedp run: %w", err)
}

// linkXPath matches anchors whose normalized text equals text.
func linkXPath(text string) string {
	return fmt.Sprintf(`//a[normalize-space(.)=%s]`, xpathLiteral(strings.TrimSpace(text)))
}

// xpathLiteral quotes s for XPath 1.0, which has no escape sequences.
func xpathLiteral(s string) string {
	if !strings.Contains(s, `'`) {
		return `'` + s + `'`
	}
	if !strings.Contains(s, `"`) {
		return `"` + s + `"`
	}
	parts := strings.Split(s, `'`)
	quoted := make([]string, 0, 2*len(parts))
	for i, p := range parts {
		if i > 0 {
			quoted = append(quoted, `"'"`)
		}
		quoted = append(quoted, `'`+p+`'`)
	}
	return "concat(" + strings.Join(quoted, ", ") + ")"
}

func forwardCancel(parent context.Context, cancel context.CancelFunc) func() {
	if parent == nil {
		return func() {}
	}
	done := make(chan struct{})
	go func() {
		select {
		case <-parent.Done():
			cancel()
		case <-done:
		}
	}()
	return func() { close(done) }
}
