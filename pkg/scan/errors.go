package scan

import "errors"

var (
	// ErrNotRunning is returned by Pause, Resume, and Cancel when the
	// engine is not mid-crawl.
	ErrNotRunning = errors.New("scan: not running")

	// ErrAlreadyStarted is returned by Run on reuse. An Engine runs
	// exactly one job.
	ErrAlreadyStarted = errors.New("scan: already started")

	// ErrNoStore is returned by Run when no persistence sink is wired.
	ErrNoStore = errors.New("scan: store is required")
)
