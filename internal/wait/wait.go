// Package wait implements bounded, cooperative polling on an injectable clock.
package wait

import (
	"context"
	"time"
)

// Clock is the subset of crawler.Clock used for polling.
type Clock interface {
	Now() time.Time
	Sleep(ctx context.Context, d time.Duration) error
}

// Condition is evaluated on every poll.
type Condition func(ctx context.Context) (bool, error)

// Until evaluates cond immediately and then every interval until it returns
// true, returns an error, ctx is done, or timeout elapses on clk. It returns
// false with a nil error on timeout.
func Until(ctx context.Context, clk Clock, timeout, interval time.Duration, cond Condition) (bool, error) {
	if interval <= 0 {
		interval = time.Second
	}
	deadline := clk.Now().Add(timeout)
	for {
		ok, err := cond(ctx)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
		remaining := deadline.Sub(clk.Now())
		if remaining <= 0 {
			return false, nil
		}
		if err := clk.Sleep(ctx, min(interval, remaining)); err != nil {
			return false, err
		}
	}
}
