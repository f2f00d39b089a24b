// Package events defines the event stream a scan emits while it runs.
// Events are designed for JSON serialization so hooks can forward them
// to logs, metrics endpoints, and trace collectors without reshaping.
package events

import (
	"time"

	"github.com/sitehawk/sitehawk/pkg/finding"
)

// Type identifies the kind of scan event.
type Type string

const (
	// TypeScanStarted indicates a scan has started.
	TypeScanStarted Type = "scan_started"
	// TypePageCrawled indicates one page finished fetch and analysis.
	TypePageCrawled Type = "page_crawled"
	// TypeFindingReported indicates a security finding was recorded.
	TypeFindingReported Type = "finding_reported"
	// TypeScanFinished indicates the scan reached a terminal status.
	TypeScanFinished Type = "scan_finished"
)

// Event is the base interface for all scan events.
type Event interface {
	EventType() Type
	Timestamp() time.Time
	ScanID() string
}

// BaseEvent contains common fields for all events. It is designed to
// be embedded in specific event types.
type BaseEvent struct {
	Type Type      `json:"type"`
	Time time.Time `json:"timestamp"`
	Scan string    `json:"scan_id"`
}

// EventType returns the type of this event.
func (e BaseEvent) EventType() Type { return e.Type }

// Timestamp returns when this event occurred.
func (e BaseEvent) Timestamp() time.Time { return e.Time }

// ScanID returns the identifier of the scan that produced this event.
func (e BaseEvent) ScanID() string { return e.Scan }

// ScanStartedEvent is emitted once, before the first page is fetched.
type ScanStartedEvent struct {
	BaseEvent
	StartURL      string `json:"start_url"`
	MaxDepth      int    `json:"max_depth"`
	MaxPages      int    `json:"max_pages"`
	Concurrency   int    `json:"concurrency"`
	Authenticated bool   `json:"authenticated"`
}

// NewScanStartedEvent creates a ScanStartedEvent.
func NewScanStartedEvent(scanID, startURL string, maxDepth, maxPages, concurrency int, authenticated bool) *ScanStartedEvent {
	return &ScanStartedEvent{
		BaseEvent:     newBase(TypeScanStarted, scanID),
		StartURL:      startURL,
		MaxDepth:      maxDepth,
		MaxPages:      maxPages,
		Concurrency:   concurrency,
		Authenticated: authenticated,
	}
}

// PageCrawledEvent is emitted after a page has been fetched, analyzed,
// and persisted.
type PageCrawledEvent struct {
	BaseEvent
	URL           string   `json:"url"`
	Depth         int      `json:"depth"`
	StatusCode    int      `json:"status_code"`
	Title         string   `json:"title,omitempty"`
	LinksFound    int      `json:"links_found"`
	DurationMs    float64  `json:"duration_ms"`
	Technologies  []string `json:"technologies,omitempty"`
	SecurityScore int      `json:"security_score"`
}

// NewPageCrawledEvent creates a PageCrawledEvent.
func NewPageCrawledEvent(scanID, url string, depth, statusCode int, title string, linksFound int, dur time.Duration) *PageCrawledEvent {
	return &PageCrawledEvent{
		BaseEvent:  newBase(TypePageCrawled, scanID),
		URL:        url,
		Depth:      depth,
		StatusCode: statusCode,
		Title:      title,
		LinksFound: linksFound,
		DurationMs: float64(dur.Microseconds()) / 1000.0,
	}
}

// FindingReportedEvent is emitted for each finding as it is recorded.
type FindingReportedEvent struct {
	BaseEvent
	Finding *finding.Finding `json:"finding"`
}

// NewFindingReportedEvent creates a FindingReportedEvent.
func NewFindingReportedEvent(f *finding.Finding) *FindingReportedEvent {
	return &FindingReportedEvent{
		BaseEvent: newBase(TypeFindingReported, f.ScanID),
		Finding:   f,
	}
}

// ScanFinishedEvent is emitted once, after the final status write.
type ScanFinishedEvent struct {
	BaseEvent
	Status       string  `json:"status"`
	PagesCrawled int     `json:"pages_crawled"`
	Findings     int     `json:"findings"`
	DurationSec  float64 `json:"duration_sec"`
	Reason       string  `json:"reason,omitempty"`
}

// NewScanFinishedEvent creates a ScanFinishedEvent. Reason carries the
// failure diagnostic and is empty on success.
func NewScanFinishedEvent(scanID, status string, pages, findings int, dur time.Duration, reason string) *ScanFinishedEvent {
	return &ScanFinishedEvent{
		BaseEvent:    newBase(TypeScanFinished, scanID),
		Status:       status,
		PagesCrawled: pages,
		Findings:     findings,
		DurationSec:  dur.Seconds(),
		Reason:       reason,
	}
}

func newBase(t Type, scanID string) BaseEvent {
	return BaseEvent{Type: t, Time: time.Now().UTC(), Scan: scanID}
}
