package hooks

import (
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/sitehawk/sitehawk/pkg/events"
	"github.com/sitehawk/sitehawk/pkg/finding"
)

// =============================================================================
// Test Fixtures
// =============================================================================

func newTestStartedEvent() *events.ScanStartedEvent {
	return events.NewScanStartedEvent("test-scan-123", "https://example.com", 2, 50, 4, false)
}

func newTestPageEvent() *events.PageCrawledEvent {
	return events.NewPageCrawledEvent("test-scan-123", "https://example.com/about", 1, 200, "About", 3, 250*time.Millisecond)
}

func newTestFindingEvent(severity finding.Severity) *events.FindingReportedEvent {
	f := finding.New("test-scan-123", "Mixed content reference", severity, "https://example.com/about")
	f.CWE = "CWE-319"
	return events.NewFindingReportedEvent(f)
}

func newTestFinishedEvent(status string) *events.ScanFinishedEvent {
	reason := ""
	if status == "failed" {
		reason = "browser launch failed"
	}
	return events.NewScanFinishedEvent("test-scan-123", status, 5, 2, 3*time.Second, reason)
}

// =============================================================================
// Test Helper Functions
// =============================================================================

func fetchMetrics(t *testing.T, addr string) string {
	t.Helper()
	resp, err := http.Get(addr)
	if err != nil {
		t.Fatalf("failed to fetch metrics: %v", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed to read response body: %v", err)
	}
	return string(body)
}
