// Package finding provides the shared security finding types used
// across the analysis pipeline.
//
// Every check in the scanner reports through the same Finding struct
// with the same five-level Severity taxonomy, so writers, hooks, and
// the persistence layer never need per-check knowledge.
//
// Usage:
//
//	f := finding.New(scanID, "Missing Content-Security-Policy",
//	    finding.Medium, pageURL)
//	f.Evidence = "header absent"
//	f.CWE = "CWE-693"
package finding
