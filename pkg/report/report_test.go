package report

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sitehawk/sitehawk/pkg/finding"
	"github.com/sitehawk/sitehawk/pkg/store"
)

// testReport builds a small fixed report that every writer test
// renders: two pages, three findings across three severities.
func testReport() *Report {
	created := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

	scan := &store.ScanRecord{
		ID:        "scan-1",
		StartURL:  "https://example.com/",
		Status:    store.StatusCompleted,
		Progress:  100,
		Action:    "crawled 2 pages, 3 findings",
		CreatedAt: created,
		UpdatedAt: created.Add(42 * time.Second),
	}

	pages := []*store.PageRecord{
		{
			ID:            "page-1",
			ScanID:        "scan-1",
			URL:           "https://example.com/",
			Status:        200,
			Title:         "Example Home",
			Technologies:  []string{"nginx", "jQuery"},
			SecurityScore: 80,
			State:         store.PageEnriched,
			FetchedAt:     created.Add(time.Second),
		},
		{
			ID:            "page-2",
			ScanID:        "scan-1",
			URL:           "https://example.com/login",
			Status:        200,
			Title:         "Sign In",
			Technologies:  []string{"nginx"},
			SecurityScore: 60,
			State:         store.PageEnriched,
			FetchedAt:     created.Add(2 * time.Second),
		},
	}

	high := finding.New("scan-1", "Mixed Content on HTTPS Page", finding.High, "https://example.com/")
	high.Description = "The page loads scripts over plain HTTP."
	high.Evidence = `<script src="http://cdn.example.com/app.js">`
	high.Remediation = "Serve all subresources over HTTPS."
	high.CWE = "CWE-319"

	medium := finding.New("scan-1", "Missing Content-Security-Policy Header", finding.Medium, "https://example.com/login")
	medium.Description = "No Content-Security-Policy header was returned."
	medium.Remediation = "Add a restrictive Content-Security-Policy header."
	medium.CWE = "CWE-693"

	low := finding.New("scan-1", "Sensitive Information in HTML Comments", finding.Low, "https://example.com/login")
	low.Description = "An HTML comment references internal details."
	low.Evidence = "<!-- TODO remove staging credentials -->"
	low.CWE = "CWE-615"

	return &Report{
		Scan:        scan,
		Pages:       pages,
		Findings:    []*finding.Finding{high, medium, low},
		Tool:        "sitehawk",
		Version:     "1.2.0",
		GeneratedAt: created.Add(time.Minute),
	}
}

// closeRecorder notes whether a writer closed its destination.
type closeRecorder struct {
	bytes.Buffer
	closed bool
}

func (c *closeRecorder) Close() error {
	c.closed = true
	return nil
}

func TestLoad(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	require.NoError(t, mem.RegisterScan(ctx, "scan-1", "", "https://example.com/"))
	require.NoError(t, mem.UpdateStatus(ctx, "scan-1", store.StatusCompleted, "done"))

	// Insert out of order so Load has something to sort.
	require.NoError(t, mem.InsertPage(ctx, &store.PageRecord{
		ID: "page-2", ScanID: "scan-1", URL: "https://example.com/b", Status: 200,
	}))
	require.NoError(t, mem.InsertPage(ctx, &store.PageRecord{
		ID: "page-1", ScanID: "scan-1", URL: "https://example.com/a", Status: 200,
	}))
	require.NoError(t, mem.InsertFinding(ctx,
		finding.New("scan-1", "Weak Security Header Posture", finding.Low, "https://example.com/a")))
	require.NoError(t, mem.InsertFinding(ctx,
		finding.New("scan-1", "Mixed Content on HTTPS Page", finding.High, "https://example.com/b")))

	rep, err := Load(ctx, mem, "scan-1")
	require.NoError(t, err)

	assert.Equal(t, "scan-1", rep.Scan.ID)
	assert.Equal(t, store.StatusCompleted, rep.Scan.Status)

	require.Len(t, rep.Pages, 2)
	assert.Equal(t, "https://example.com/a", rep.Pages[0].URL)
	assert.Equal(t, "https://example.com/b", rep.Pages[1].URL)

	require.Len(t, rep.Findings, 2)
	assert.Equal(t, finding.High, rep.Findings[0].Severity)
	assert.Equal(t, finding.Low, rep.Findings[1].Severity)

	assert.NotEmpty(t, rep.Tool)
	assert.NotEmpty(t, rep.Version)
	assert.False(t, rep.GeneratedAt.IsZero())
}

func TestLoadUnknownScan(t *testing.T) {
	_, err := Load(context.Background(), store.NewMemory(), "missing")
	require.ErrorIs(t, err, store.ErrScanNotFound)
}

func TestSummarize(t *testing.T) {
	sum := testReport().Summarize()

	assert.Equal(t, "https://example.com/", sum.Target)
	assert.Equal(t, store.StatusCompleted, sum.Status)
	assert.Equal(t, 2, sum.Pages)
	assert.Equal(t, 3, sum.Findings)
	assert.Equal(t, 1, sum.BySeverity[finding.High])
	assert.Equal(t, 1, sum.BySeverity[finding.Medium])
	assert.Equal(t, 1, sum.BySeverity[finding.Low])
	assert.Equal(t, 0, sum.BySeverity[finding.Critical])
	assert.Equal(t, []string{"jQuery", "nginx"}, sum.Technologies)
	assert.Equal(t, 70, sum.AvgScore)
	assert.Equal(t, 42*time.Second, sum.Duration)
}

func TestSummarizeEmptyReport(t *testing.T) {
	sum := (&Report{}).Summarize()

	assert.Zero(t, sum.Pages)
	assert.Zero(t, sum.Findings)
	assert.Zero(t, sum.AvgScore)
	assert.Zero(t, sum.Duration)
	assert.Empty(t, sum.Technologies)
}

func TestNewWriterFormats(t *testing.T) {
	for _, format := range Formats() {
		w, err := New(format, &bytes.Buffer{})
		require.NoError(t, err, format)
		require.NotNil(t, w, format)
	}

	// Case-insensitive plus synonyms.
	for _, format := range []string{"JSONL", "json", "md", "Markdown"} {
		_, err := New(format, &bytes.Buffer{})
		assert.NoError(t, err, format)
	}

	_, err := New("docx", &bytes.Buffer{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown format")
	assert.Contains(t, err.Error(), "sarif")
}

func TestWritersCloseDestination(t *testing.T) {
	for _, format := range Formats() {
		t.Run(format, func(t *testing.T) {
			rec := &closeRecorder{}
			w, err := New(format, rec)
			require.NoError(t, err)
			require.NoError(t, w.Write(testReport()))
			require.NoError(t, w.Flush())
			require.NoError(t, w.Close())
			assert.True(t, rec.closed)
			assert.NotZero(t, rec.Len())
		})
	}
}

func TestCreateWritesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.md")

	w, err := Create(path, "markdown")
	require.NoError(t, err)
	require.NoError(t, w.Write(testReport()))
	require.NoError(t, w.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "# Sitehawk Scan Report")
}

func TestCreateUnknownFormat(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.out")
	_, err := Create(path, "docx")
	require.Error(t, err)
}
