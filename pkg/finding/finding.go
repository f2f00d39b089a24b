package finding

import (
	"time"

	"github.com/google/uuid"
)

// Finding is one reported security observation. Findings are
// write-once: the crawler appends them to the persistence sink as
// they are produced and never mutates them afterwards.
type Finding struct {
	ID          string   `json:"id"`
	ScanID      string   `json:"scan_id"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Severity    Severity `json:"severity"`

	// Location is the page URL the finding applies to.
	Location string `json:"location"`

	// Evidence is a short excerpt supporting the finding, truncated
	// at collection time so storage rows stay bounded.
	Evidence string `json:"evidence,omitempty"`

	// Remediation is optional operator guidance.
	Remediation string `json:"remediation,omitempty"`

	// CWE is the weakness classifier id, e.g. "CWE-319".
	CWE string `json:"cwe,omitempty"`

	DetectedAt time.Time `json:"detected_at"`
}

// New creates a Finding with a fresh id and timestamp. Callers fill
// Description, Evidence, Remediation, and CWE afterwards.
func New(scanID, title string, severity Severity, location string) *Finding {
	return &Finding{
		ID:         uuid.NewString(),
		ScanID:     scanID,
		Title:      title,
		Severity:   severity,
		Location:   location,
		DetectedAt: time.Now().UTC(),
	}
}

// SortKey orders findings severity-first, then by location and title,
// giving reports a stable, highest-impact-first ordering.
func (f *Finding) SortKey() string {
	// Invert score so critical sorts before info in ascending sorts.
	return string(rune('0'+9-f.Severity.Score())) + f.Location + f.Title
}
