package defaults

// Exit codes for the CLI.
const (
	ExitSuccess       = 0 // Clean exit, no findings at or above the fail threshold
	ExitFindings      = 1 // Scan completed with qualifying findings
	ExitUserError     = 2 // Invalid arguments or configuration
	ExitNetworkError  = 3 // Target unreachable or browser launch failure
	ExitInternalError = 4 // Unexpected internal error
)
