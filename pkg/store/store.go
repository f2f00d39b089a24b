// Package store is the persistence sink for scan output. The engine
// writes through the Store interface and never reads back; the CLI,
// reports, and the MCP surface use the Reader side of the concrete
// implementations.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/sitehawk/sitehawk/pkg/finding"
)

// Status is the terminal-state machine of one scan as the sink sees it.
type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// IsValid reports whether s is a known status.
func (s Status) IsValid() bool {
	switch s {
	case StatusQueued, StatusRunning, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

// PageState tracks the two-phase page write: a record is inserted as
// created, then enriched exactly once with fingerprint data. A crash
// between the phases leaves a visible created record instead of a
// half-updated row.
type PageState string

const (
	PageCreated  PageState = "created"
	PageEnriched PageState = "enriched"
)

// PageRecord is one fetched page.
type PageRecord struct {
	ID            string            `json:"id"`
	ScanID        string            `json:"scan_id"`
	URL           string            `json:"url"`
	Status        int               `json:"status"`
	Title         string            `json:"title,omitempty"`
	Headers       map[string]string `json:"headers,omitempty"`
	Technologies  []string          `json:"technologies,omitempty"`
	SecurityScore int               `json:"security_score"`
	State         PageState         `json:"state"`
	FetchedAt     time.Time         `json:"fetched_at"`
}

// PagePatch carries the fingerprint data attached in the enrich phase.
type PagePatch struct {
	Technologies  []string `json:"technologies,omitempty"`
	SecurityScore int      `json:"security_score"`
}

// ScanRecord is the sink-side view of one scan run.
type ScanRecord struct {
	ID        string    `json:"id"`
	ProjectID string    `json:"project_id,omitempty"`
	StartURL  string    `json:"start_url"`
	Status    Status    `json:"status"`
	Progress  int       `json:"progress"`
	Action    string    `json:"action,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// LogEntry is one appended scan log line.
type LogEntry struct {
	ScanID   string    `json:"scan_id"`
	Level    string    `json:"level"`
	Message  string    `json:"message"`
	LoggedAt time.Time `json:"logged_at"`
}

var (
	// ErrPageNotFound is returned when an enrich targets an unknown id.
	ErrPageNotFound = errors.New("store: page not found")

	// ErrScanNotFound is returned by readers for unknown scan ids.
	ErrScanNotFound = errors.New("store: scan not found")
)

// Store is the write-side interface the engine drives. All writes are
// append-only except the documented page enrich and the scan
// progress/status updates.
type Store interface {
	InsertPage(ctx context.Context, rec *PageRecord) error
	EnrichPage(ctx context.Context, id string, patch PagePatch) error
	InsertFinding(ctx context.Context, f *finding.Finding) error
	AppendLog(ctx context.Context, scanID, level, message string) error
	UpdateProgress(ctx context.Context, scanID string, percent int, action string) error
	UpdateStatus(ctx context.Context, scanID string, status Status, action string) error
	Close() error
}

// Reader is the query side used by reports and the MCP tools.
type Reader interface {
	GetScan(ctx context.Context, scanID string) (*ScanRecord, error)
	ListPages(ctx context.Context, scanID string) ([]*PageRecord, error)
	ListFindings(ctx context.Context, scanID string) ([]*finding.Finding, error)
	ListLogs(ctx context.Context, scanID string) ([]*LogEntry, error)
}
