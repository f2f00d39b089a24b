package config

import "errors"

// Sentinel errors for configuration failure modes. Callers branch with
// errors.Is.
var (
	// ErrInvalidConfig marks a configuration that parsed but cannot
	// run (out-of-range limits, bad proxy URL, incomplete auth). The
	// message lists every problem found.
	ErrInvalidConfig = errors.New("config: invalid configuration")

	// ErrMissingRequired marks an absent required input, like a scan
	// with no start URL.
	ErrMissingRequired = errors.New("config: missing required field")
)
