package finding

// Severity represents the severity level of a security finding.
// All values are lowercase strings; this is the convention every
// check, writer, and storage row in the codebase relies on.
type Severity string

const (
	// Critical represents immediate system compromise (RCE, auth bypass).
	Critical Severity = "critical"

	// High represents significant impact requiring prompt fix (mixed
	// active content, credential exposure).
	High Severity = "high"

	// Medium represents moderate impact (missing CSP, clickjackable UI).
	Medium Severity = "medium"

	// Low represents limited impact (verbose comments, weak header posture).
	Low Severity = "low"

	// Info represents informational findings with no direct security impact.
	Info Severity = "info"
)

// IsValid reports whether s is a recognized severity level.
func (s Severity) IsValid() bool {
	switch s {
	case Critical, High, Medium, Low, Info:
		return true
	}
	return false
}

// Score returns a numeric score for sorting and comparison.
// Critical=5, High=4, Medium=3, Low=2, Info=1, Unknown=0.
func (s Severity) Score() int {
	switch s {
	case Critical:
		return 5
	case High:
		return 4
	case Medium:
		return 3
	case Low:
		return 2
	case Info:
		return 1
	default:
		return 0
	}
}

// String returns the severity as a string.
func (s Severity) String() string {
	return string(s)
}

// ToSARIF maps severity to SARIF result level.
// Critical/High → error, Medium → warning, Low/Info → note.
// See: https://docs.oasis-open.org/sarif/sarif/v2.1.0/
func (s Severity) ToSARIF() string {
	switch s {
	case Critical, High:
		return "error"
	case Medium:
		return "warning"
	default:
		return "note"
	}
}

// ToSARIFScore maps severity to GitHub security-severity score.
// These scores align with GitHub Advanced Security severity thresholds.
func (s Severity) ToSARIFScore() string {
	switch s {
	case Critical:
		return "9.5"
	case High:
		return "8.0"
	case Medium:
		return "5.5"
	case Low:
		return "2.0"
	default:
		return "0.0"
	}
}

// ParseSeverity normalizes a user-supplied severity string.
// Returns Info and false when the input is not a recognized level.
func ParseSeverity(s string) (Severity, bool) {
	switch Severity(s) {
	case Critical, High, Medium, Low, Info:
		return Severity(s), true
	}
	return Info, false
}

// Ordered returns all severities from most to least severe. Report
// writers iterate this for deterministic section ordering.
func Ordered() []Severity {
	return []Severity{Critical, High, Medium, Low, Info}
}
