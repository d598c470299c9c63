package crawler

import (
	"context"
	"io"
	"time"
)

// Session is one live automation session. It is owned by the session manager
// and must not be used after Close.
type Session interface {
	Navigate(ctx context.Context, url string) error
	// WaitFor blocks until selector matches or timeout elapses. It returns
	// false without error on timeout.
	WaitFor(ctx context.Context, selector string, timeout time.Duration) (bool, error)
	Snapshot(ctx context.Context) (Page, error)
	// ClickLink waits up to timeout for a link whose text is exactly text and
	// clicks it. It returns false without error when no clickable link shows up.
	ClickLink(ctx context.Context, text string, timeout time.Duration) (bool, error)
	Close() error
}

// SessionFactory creates fresh sessions.
type SessionFactory interface {
	NewSession(ctx context.Context) (Session, error)
}

// Extractor turns a rendered result page into matches.
type Extractor interface {
	Extract(page Page) (PageSnapshot, error)
}

// ChallengeHandler detects a verification interstitial and blocks until it is
// cleared or a bounded timeout elapses.
type ChallengeHandler interface {
	Clear(ctx context.Context, session Session) (bool, error)
}

// ChallengeDetector inspects a rendered page for a verification interstitial.
type ChallengeDetector interface {
	IsChallenge(page Page) bool
}

// Walker collects the citing titles behind a listing URL.
type Walker interface {
	Walk(ctx context.Context, session Session, listingURL, targetTitle string) ([]string, error)
}

// ResultSink persists checkpoints. WriteCheckpoint overwrites earlier calls.
type ResultSink interface {
	WriteCheckpoint(ctx context.Context, records []CitationRecord) error
}

// Exporter writes the final enriched results.
type Exporter interface {
	Export(ctx context.Context, records []EnrichedRecord) ([]Artifact, error)
}

// ProgressSink receives (completed, total) after every processed target.
type ProgressSink interface {
	OnProgress(completed, total int)
}

// ProgressFunc adapts a function to ProgressSink.
type ProgressFunc func(completed, total int)

// OnProgress calls f.
func (f ProgressFunc) OnProgress(completed, total int) {
	f(completed, total)
}

// Enrichment resolves citing titles to identifiers and bibliographic records.
type Enrichment interface {
	ResolveIdentifier(ctx context.Context, title string) (string, bool)
	FetchRecord(ctx context.Context, doi string) (string, bool)
}

// Fetcher fetches a URL and returns the body plus metadata.
type Fetcher interface {
	Fetch(ctx context.Context, request FetchRequest) (FetchResponse, error)
}

// BlobStore writes raw artifacts and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data io.Reader) (string, error)
}

// Publisher pushes events to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Hasher computes digests for exported artifacts.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// Clock returns the current time and sleeps cooperatively.
type Clock interface {
	Now() time.Time
	// Sleep blocks for d or until ctx is done, returning ctx.Err() in the
	// latter case.
	Sleep(ctx context.Context, d time.Duration) error
}

// IDGenerator produces run IDs (UUIDs).
type IDGenerator interface {
	NewID() (string, error)
}
