package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLimiterPacesPerHost(t *testing.T) {
	t.Parallel()

	l := New(Config{RPS: 10, Burst: 1})
	ctx := context.Background()

	require.NoError(t, l.Wait(ctx, "https://api.crossref.org/works?query=x"))
	// A different host has its own bucket and is not delayed.
	start := time.Now()
	require.NoError(t, l.Wait(ctx, "https://doi.org/10.1/x"))
	assert.Less(t, time.Since(start), 50*time.Millisecond)

	start = time.Now()
	require.NoError(t, l.Wait(ctx, "https://api.crossref.org/works?query=y"))
	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
	assert.Equal(t, 2, l.Hosts())
}

func TestLimiterDisabled(t *testing.T) {
	t.Parallel()

	l := New(Config{})
	start := time.Now()
	for range 50 {
		require.NoError(t, l.Wait(context.Background(), "https://doi.org/x"))
	}
	assert.Less(t, time.Since(start), 100*time.Millisecond)
}

func TestLimiterCanceled(t *testing.T) {
	t.Parallel()

	l := New(Config{RPS: 0.01, Burst: 1})
	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, l.Wait(ctx, "https://doi.org/a"))
	cancel()
	require.Error(t, l.Wait(ctx, "https://doi.org/b"))
}

func TestHost(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "doi.org", Host("https://DOI.org/10.1/x"))
	assert.Equal(t, "unknown", Host("::not a url"))
	assert.Equal(t, "unknown", Host(""))
}
