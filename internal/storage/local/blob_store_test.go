package local_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/scholar-citation-crawler/internal/storage/local"
)

func TestNew(t *testing.T) {
	t.Parallel()

	t.Run("CreatesMissingDir", func(t *testing.T) {
		t.Parallel()
		dir := filepath.Join(t.TempDir(), "out", "nested")
		store, err := local.New(local.Config{BaseDir: dir})
		require.NoError(t, err)
		assert.DirExists(t, dir)
		assert.Equal(t, dir, store.Dir())
	})

	t.Run("MissingBaseDir", func(t *testing.T) {
		t.Parallel()
		_, err := local.New(local.Config{})
		assert.Error(t, err)
	})

	t.Run("BaseDirIsAFile", func(t *testing.T) {
		t.Parallel()
		file := filepath.Join(t.TempDir(), "plain")
		require.NoError(t, os.WriteFile(file, []byte("x"), 0o600))
		_, err := local.New(local.Config{BaseDir: file})
		assert.Error(t, err)
	})
}

func TestPutObject(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	store, err := local.New(local.Config{BaseDir: dir})
	require.NoError(t, err)
	ctx := context.Background()

	t.Run("WritesAndOverwrites", func(t *testing.T) {
		uri, err := store.PutObject(ctx, "checkpoint.xlsx", "", strings.NewReader("first"))
		require.NoError(t, err)
		assert.Equal(t, "file://"+filepath.Join(dir, "checkpoint.xlsx"), uri)

		_, err = store.PutObject(ctx, "checkpoint.xlsx", "", strings.NewReader("second"))
		require.NoError(t, err)
		// #nosec G304 -- test reads from its own temp directory.
		data, err := os.ReadFile(filepath.Join(dir, "checkpoint.xlsx"))
		require.NoError(t, err)
		assert.Equal(t, "second", string(data))

		entries, err := os.ReadDir(dir)
		require.NoError(t, err)
		assert.Len(t, entries, 1, "temp files must not be left behind")
	})

	t.Run("NestedPath", func(t *testing.T) {
		_, err := store.PutObject(ctx, "a/b/report.md", "text/markdown", strings.NewReader("# report"))
		require.NoError(t, err)
		assert.FileExists(t, filepath.Join(dir, "a", "b", "report.md"))
	})

	t.Run("RejectsEscapes", func(t *testing.T) {
		_, err := store.PutObject(ctx, "../outside.txt", "", strings.NewReader("x"))
		assert.Error(t, err)
		_, err = store.PutObject(ctx, " ", "", strings.NewReader("x"))
		assert.Error(t, err)
	})
}
