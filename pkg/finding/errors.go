package finding

import "errors"

// Sentinel errors for common scan failure modes.
// Callers should use errors.Is() to check for these.
var (
	// ErrTimeout indicates the target did not respond within the
	// configured deadline.
	ErrTimeout = errors.New("finding: timeout")

	// ErrTargetUnreachable indicates the target host could not be
	// reached (DNS failure, connection refused, etc.).
	ErrTargetUnreachable = errors.New("finding: target unreachable")

	// ErrUnsafeTarget indicates the target URL was rejected by the
	// safety gate before any request was issued.
	ErrUnsafeTarget = errors.New("finding: unsafe target")

	// ErrBrowserUnavailable indicates the browser automation layer
	// could not be launched.
	ErrBrowserUnavailable = errors.New("finding: browser unavailable")
)
