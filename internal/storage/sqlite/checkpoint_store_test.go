package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/scholar-citation-crawler/internal/clock/fake"
	"github.com/JakeFAU/scholar-citation-crawler/internal/crawler"
)

func openStore(t *testing.T, path, runID string) *CheckpointStore {
	t.Helper()
	store, err := Open(context.Background(), path, runID, fake.New(time.Unix(1700000000, 0)))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestWriteCheckpointOverwrites(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := openStore(t, filepath.Join(t.TempDir(), "db", "checkpoints.db"), "run-1")

	first := []crawler.CitationRecord{
		{Title: "A", CitedByCount: 2, Citers: []string{"X", "Y"}},
		crawler.EmptyRecord("B"),
		crawler.EmptyRecord("C"),
	}
	require.NoError(t, store.WriteCheckpoint(ctx, first))

	second := []crawler.CitationRecord{
		{Title: "A", CitedByCount: 3, Citers: []string{"X", "Y", "Z"}},
		{Title: "B", CitedByCount: 0, Citers: nil},
	}
	require.NoError(t, store.WriteCheckpoint(ctx, second))

	got, err := store.Records(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, []crawler.CitationRecord{
		{Title: "A", CitedByCount: 3, Citers: []string{"X", "Y", "Z"}},
		{Title: "B", CitedByCount: 0, Citers: []string{}},
	}, got)
}

func TestRunsAreIsolated(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "checkpoints.db")
	one := openStore(t, path, "run-1")
	require.NoError(t, one.WriteCheckpoint(ctx, []crawler.CitationRecord{crawler.EmptyRecord("A")}))
	require.NoError(t, one.Close())

	two := openStore(t, path, "run-2")
	require.NoError(t, two.WriteCheckpoint(ctx, []crawler.CitationRecord{crawler.EmptyRecord("B")}))

	got, err := two.Records(ctx, "run-1")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "A", got[0].Title)

	empty, err := two.Records(ctx, "nope")
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestOpenValidation(t *testing.T) {
	t.Parallel()

	_, err := Open(context.Background(), filepath.Join(t.TempDir(), "x.db"), "", fake.New(time.Unix(0, 0)))
	require.Error(t, err)
	_, err = Open(context.Background(), filepath.Join(t.TempDir(), "x.db"), "run", nil)
	require.Error(t, err)
}

func newMockStore(t *testing.T) (*CheckpointStore, sqlmock.Sqlmock) {
	t.Helper()
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = mockDB.Close() })

	store, err := NewWithDB(sqlx.NewDb(mockDB, "sqlmock"), "run-1", fake.New(time.Unix(1700000000, 0)))
	require.NoError(t, err)
	return store, mock
}

func TestWriteCheckpointRollsBackOnExecError(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	mock.ExpectBegin()
	mock.ExpectPrepare(regexp.QuoteMeta("INSERT INTO citation_checkpoints"))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO citation_checkpoints")).
		WithArgs("run-1", 0, "A", 1, `["X"]`, sqlmock.AnyArg()).
		WillReturnError(errors.New("disk I/O error"))
	mock.ExpectRollback()

	err := store.WriteCheckpoint(context.Background(), []crawler.CitationRecord{
		{Title: "A", CitedByCount: 1, Citers: []string{"X"}},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "upsert checkpoint row 0")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordsRejectsCorruptCiters(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT title, cited_by_count, citers FROM citation_checkpoints")).
		WithArgs("run-1").
		WillReturnRows(sqlmock.NewRows([]string{"title", "cited_by_count", "citers"}).AddRow("A", 1, "not json"))

	_, err := store.Records(context.Background(), "run-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode citers")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNewWithDBValidation(t *testing.T) {
	t.Parallel()

	_, err := NewWithDB(nil, "run", fake.New(time.Unix(0, 0)))
	require.Error(t, err)
}
