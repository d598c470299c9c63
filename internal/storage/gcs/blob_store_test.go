package gcs

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"cloud.google.com/go/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
)

func testClient(t *testing.T, handler http.Handler) *storage.Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	client, err := storage.NewClient(context.Background(), option.WithEndpoint(server.URL), option.WithoutAuthentication())
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestNewValidatesInputs(t *testing.T) {
	t.Parallel()

	_, err := New(nil, Config{Bucket: "b"})
	require.Error(t, err)

	client := testClient(t, http.NotFoundHandler())
	_, err = New(client, Config{Bucket: " "})
	require.Error(t, err)
}

func TestPutObjectUploadsUnderPrefix(t *testing.T) {
	t.Parallel()

	var gotName, gotBody string
	client := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.Path, "/upload/storage/v1/b/exports/o")
		gotName = r.URL.Query().Get("name")
		body, err := io.ReadAll(r.Body)
		assert.NoError(t, err)
		gotBody = string(body)
		_, _ = fmt.Fprintf(w, `{"name": %q, "bucket": "exports"}`, gotName)
	}))

	store, err := New(client, Config{Bucket: "exports", Prefix: "/runs/"})
	require.NoError(t, err)

	uri, err := store.PutObject(context.Background(), "run-1/citations.bibtex", "application/x-bibtex", strings.NewReader("@article{x}"))
	require.NoError(t, err)
	assert.Equal(t, "gs://exports/runs/run-1/citations.bibtex", uri)
	assert.Equal(t, "runs/run-1/citations.bibtex", gotName)
	assert.Contains(t, gotBody, "@article{x}")
	assert.NoError(t, store.Close())
}

func TestPutObjectServerError(t *testing.T) {
	t.Parallel()

	client := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	store, err := New(client, Config{Bucket: "exports"})
	require.NoError(t, err)

	_, err = store.PutObject(context.Background(), "a.txt", "text/plain", strings.NewReader("x"))
	require.Error(t, err)

	_, err = store.PutObject(context.Background(), "", "text/plain", strings.NewReader("x"))
	require.Error(t, err)
}

func TestOpenChecksBucket(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/b/missing") {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = fmt.Fprint(w, `{"name": "exports"}`)
	}))
	t.Cleanup(server.Close)
	opts := []option.ClientOption{option.WithEndpoint(server.URL), option.WithoutAuthentication()}

	_, err := Open(context.Background(), Config{Bucket: "missing"}, nil, opts...)
	require.Error(t, err)

	store, err := Open(context.Background(), Config{Bucket: "exports"}, nil, opts...)
	require.NoError(t, err)
	assert.NoError(t, store.Close())
}
