package memory

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBlobStorePutAndGet(t *testing.T) {
	t.Parallel()

	store := NewBlobStore()
	uri, err := store.PutObject(context.Background(), "run/report.md", "text/markdown", strings.NewReader("# v1"))
	require.NoError(t, err)
	assert.Equal(t, "memory://run/report.md", uri)

	_, err = store.PutObject(context.Background(), "run/report.md", "text/markdown", strings.NewReader("# v2"))
	require.NoError(t, err)

	data, contentType, ok := store.Get("run/report.md")
	require.True(t, ok)
	assert.Equal(t, "# v2", string(data))
	assert.Equal(t, "text/markdown", contentType)
	assert.Equal(t, 2, store.Puts())
	assert.Equal(t, []string{"run/report.md"}, store.Paths())

	_, _, ok = store.Get("missing")
	assert.False(t, ok)
}

func TestBlobStoreGetReturnsCopy(t *testing.T) {
	t.Parallel()

	store := NewBlobStore()
	_, err := store.PutObject(context.Background(), "a", "", bytes.NewReader([]byte("content")))
	require.NoError(t, err)

	data, _, _ := store.Get("a")
	data[0] = 'C'
	again, _, _ := store.Get("a")
	assert.Equal(t, "content", string(again))
}
