package crawler

import "errors"

var (
	// ErrTimeout marks a bounded wait that expired. Callers treat it as a
	// transient navigation failure.
	ErrTimeout = errors.New("crawler: wait timed out")
	// ErrChallengeTimeout is returned when a verification interstitial was not
	// cleared in time.
	ErrChallengeTimeout = errors.New("crawler: verification challenge not cleared")
	// ErrSessionUnavailable is fatal for a run: no browser session could be created.
	ErrSessionUnavailable = errors.New("crawler: browser session unavailable")
	// ErrSessionClosed is returned by sessions used after teardown.
	ErrSessionClosed = errors.New("crawler: session closed")
)

// IsTransient reports whether err is a recoverable navigation failure that
// justifies another attempt at the same target.
func IsTransient(err error) bool {
	return errors.Is(err, ErrTimeout) || errors.Is(err, ErrChallengeTimeout)
}
