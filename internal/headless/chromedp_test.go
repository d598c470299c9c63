package headless

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/JakeFAU/scholar-citation-crawler/internal/crawler"
)

func TestNavTimeoutDefault(t *testing.T) {
	t.Parallel()

	if got := navTimeout(0); got != 30*time.Second {
		t.Fatalf("expected default nav timeout, got %v", got)
	}
	if got := navTimeout(time.Second); got != time.Second {
		t.Fatalf("expected override to be used, got %v", got)
	}
}

func TestAllocatorOptionsGrowWithConfig(t *testing.T) {
	t.Parallel()

	base := len(allocatorOptions(Config{}))
	full := len(allocatorOptions(Config{
		Headless:     true,
		UserAgent:    "citecrawler-test",
		ExecPath:     "/usr/bin/chromium",
		WindowWidth:  1280,
		WindowHeight: 900,
	}))
	if full != base+2 {
		t.Fatalf("unexpected option count: headed %d, headless with extras %d", base, full)
	}
}

func TestXPathLiteral(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"More":          `'More'`,
		"Mais":          `'Mais'`,
		"it's":          `"it's"`,
		`it's "quoted"`: `concat('it', "'", 's "quoted"')`,
	}
	for in, want := range cases {
		if got := xpathLiteral(in); got != want {
			t.Fatalf("xpathLiteral(%q) = %s, want %s", in, got, want)
		}
	}
	if got := linkXPath(" Más "); got != `//a[normalize-space(.)='Más']` {
		t.Fatalf("unexpected link xpath %s", got)
	}
}

func TestMapRunError(t *testing.T) {
	t.Parallel()

	if err := mapRunError(context.Background(), context.Background(), nil); err != nil {
		t.Fatalf("expected nil, got %v", err)
	}

	task, cancel := context.WithTimeout(context.Background(), time.Nanosecond)
	defer cancel()
	<-task.Done()
	if err := mapRunError(context.Background(), task, errors.New("wait ready")); !errors.Is(err, crawler.ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}

	parent, cancelParent := context.WithCancel(context.Background())
	cancelParent()
	if err := mapRunError(parent, task, errors.New("wait ready")); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}

	boom := errors.New("node not found")
	if err := mapRunError(context.Background(), context.Background(), boom); !errors.Is(err, boom) || errors.Is(err, crawler.ErrTimeout) {
		t.Fatalf("expected wrapped non-timeout error, got %v", err)
	}
}

func TestClosedSessionRejectsWork(t *testing.T) {
	t.Parallel()

	cancels := 0
	sess := &Session{
		browserCtx:    context.Background(),
		browserCancel: func() { cancels++ },
		allocCancel:   func() { cancels++ },
		navTimeout:    time.Second,
	}
	if err := sess.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := sess.Close(); err != nil {
		t.Fatalf("second Close() error = %v", err)
	}
	if cancels != 2 {
		t.Fatalf("expected each cancel once, got %d calls", cancels)
	}
	if err := sess.Navigate(context.Background(), "https://scholar.google.com"); !errors.Is(err, crawler.ErrSessionClosed) {
		t.Fatalf("expected ErrSessionClosed, got %v", err)
	}
	if _, err := sess.WaitFor(context.Background(), ".gs_ri", time.Second); !errors.Is(err, crawler.ErrSessionClosed) {
		t.Fatalf("expected ErrSessionClosed, got %v", err)
	}
}

func TestForwardCancel(t *testing.T) {
	t.Parallel()

	parent, cancelParent := context.WithCancel(context.Background())
	called := make(chan struct{})
	stop := forwardCancel(parent, func() { close(called) })
	defer stop()

	cancelParent()
	select {
	case <-called:
	case <-time.After(time.Second):
		t.Fatal("expected cancel to be forwarded")
	}
}
