package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) (*SQLite, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sitehawk.db")
	s, err := OpenSQLite(path)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s, path
}

func TestSQLiteLifecycle(t *testing.T) {
	s, _ := openTestDB(t)
	runStoreLifecycle(t, s)
}

func TestSQLiteReopenKeepsData(t *testing.T) {
	s, path := openTestDB(t)
	ctx := context.Background()

	require.NoError(t, s.RegisterScan(ctx, "scan-1", "proj-1", "https://example.com"))
	require.NoError(t, s.InsertPage(ctx, &PageRecord{
		ID:     "page-1",
		ScanID: "scan-1",
		URL:    "https://example.com/",
		Status: 200,
	}))
	require.NoError(t, s.UpdateStatus(ctx, "scan-1", StatusCompleted, "Scan completed"))
	require.NoError(t, s.Close())

	reopened, err := OpenSQLite(path)
	require.NoError(t, err)
	defer reopened.Close()

	rec, err := reopened.GetScan(ctx, "scan-1")
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, rec.Status)

	pages, err := reopened.ListPages(ctx, "scan-1")
	require.NoError(t, err)
	require.Len(t, pages, 1)
	assert.Equal(t, "https://example.com/", pages[0].URL)
}

func TestSQLiteRegisterScanResetsRun(t *testing.T) {
	s, _ := openTestDB(t)
	ctx := context.Background()

	require.NoError(t, s.RegisterScan(ctx, "scan-1", "proj-1", "https://example.com"))
	require.NoError(t, s.UpdateProgress(ctx, "scan-1", 80, "Analyzing"))
	require.NoError(t, s.UpdateStatus(ctx, "scan-1", StatusFailed, "Browser crashed"))

	// Re-running the same scan id starts over from a clean slate.
	require.NoError(t, s.RegisterScan(ctx, "scan-1", "proj-2", "https://example.org"))

	rec, err := s.GetScan(ctx, "scan-1")
	require.NoError(t, err)
	assert.Equal(t, StatusQueued, rec.Status)
	assert.Equal(t, 0, rec.Progress)
	assert.Equal(t, "proj-2", rec.ProjectID)
	assert.Equal(t, "https://example.org", rec.StartURL)
}

func TestSQLiteOpenBadPath(t *testing.T) {
	_, err := OpenSQLite(filepath.Join(t.TempDir(), "missing", "nested", "sitehawk.db"))
	assert.Error(t, err)
}
