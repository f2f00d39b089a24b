package report

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"

	"github.com/sitehawk/sitehawk/pkg/finding"
	"github.com/sitehawk/sitehawk/pkg/jsonutil"
)

const (
	sarifSchemaURI = "https://raw.githubusercontent.com/oasis-tcs/sarif-spec/master/Schemata/sarif-schema-2.1.0.json"
	sarifVersion   = "2.1.0"
)

// Compile-time interface check.
var _ Writer = (*SARIFWriter)(nil)

// SARIFOptions configures the SARIF report writer.
type SARIFOptions struct {
	// ToolName overrides the driver name (default: the report's Tool).
	ToolName string

	// ToolURI is the driver information URI.
	ToolURI string
}

// SARIFWriter renders findings as a SARIF 2.1.0 document for code
// scanning platforms. Results accumulate on Write and the document
// renders on Close. Safe for concurrent use.
type SARIFWriter struct {
	w    io.Writer
	mu   sync.Mutex
	opts SARIFOptions

	toolName    string
	toolVersion string
	rules       map[string]sarifRule
	results     []sarifResult
}

// NewSARIFWriter creates a SARIF report writer.
func NewSARIFWriter(w io.Writer, opts SARIFOptions) *SARIFWriter {
	if opts.ToolURI == "" {
		opts.ToolURI = "https://github.com/sitehawk/sitehawk"
	}
	return &SARIFWriter{
		w:     w,
		opts:  opts,
		rules: make(map[string]sarifRule),
	}
}

// Write folds rep's findings into the document.
func (sw *SARIFWriter) Write(rep *Report) error {
	sw.mu.Lock()
	defer sw.mu.Unlock()

	if sw.toolName == "" {
		sw.toolName = rep.Tool
		sw.toolVersion = rep.Version
	}
	for _, f := range rep.Findings {
		sw.addFinding(f)
	}
	return nil
}

func (sw *SARIFWriter) addFinding(f *finding.Finding) {
	ruleID := sarifRuleID(f.Title)
	if _, ok := sw.rules[ruleID]; !ok {
		sw.rules[ruleID] = newSARIFRule(ruleID, f)
	}

	msg := f.Description
	if msg == "" {
		msg = f.Title
	}
	sw.results = append(sw.results, sarifResult{
		RuleID:  ruleID,
		Level:   f.Severity.ToSARIF(),
		Message: sarifMessage{Text: msg},
		Locations: []sarifLocation{{
			PhysicalLocation: sarifPhysicalLocation{
				ArtifactLocation: sarifArtifactLocation{URI: f.Location},
				Region:           &sarifRegion{StartLine: 1},
			},
		}},
		Fingerprints: map[string]string{
			"matchBasedId/v1": sarifFingerprint(f),
		},
		Properties: map[string]any{
			"severity": string(f.Severity),
		},
	})
}

// Flush is a no-op; the document renders on Close.
func (sw *SARIFWriter) Flush() error { return nil }

// Close renders the accumulated document.
func (sw *SARIFWriter) Close() error {
	sw.mu.Lock()
	defer sw.mu.Unlock()

	rules := make([]sarifRule, 0, len(sw.rules))
	for _, rule := range sw.rules {
		rules = append(rules, rule)
	}
	sort.Slice(rules, func(i, j int) bool { return rules[i].ID < rules[j].ID })

	// Code scanning platforms reject a null results array.
	results := sw.results
	if results == nil {
		results = []sarifResult{}
	}

	toolName := sw.opts.ToolName
	if toolName == "" {
		toolName = sw.toolName
	}
	doc := sarifDocument{
		Schema:  sarifSchemaURI,
		Version: sarifVersion,
		Runs: []sarifRun{{
			Tool: sarifTool{Driver: sarifDriver{
				Name:            toolName,
				Version:         sw.toolVersion,
				SemanticVersion: sw.toolVersion,
				InformationURI:  sw.opts.ToolURI,
				Rules:           rules,
			}},
			Results:    results,
			ColumnKind: "utf16CodeUnits",
		}},
	}

	enc := jsonutil.NewStreamEncoder(sw.w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("report: render sarif: %w", err)
	}
	if closer, ok := sw.w.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}

func newSARIFRule(id string, f *finding.Finding) sarifRule {
	rule := sarifRule{
		ID:               id,
		Name:             f.Title,
		ShortDescription: &sarifMessage{Text: f.Title},
		Properties: map[string]any{
			"security-severity": f.Severity.ToSARIFScore(),
		},
	}
	if f.Description != "" {
		rule.FullDescription = &sarifMessage{Text: f.Description}
	}
	if f.Remediation != "" {
		rule.Help = &sarifMessage{Text: f.Remediation}
	}
	tags := []string{"security"}
	if f.CWE != "" {
		tags = append(tags, strings.ToLower(f.CWE))
	}
	rule.Properties["tags"] = tags
	return rule
}

// sarifRuleID slugs a finding title into a stable rule identifier.
func sarifRuleID(title string) string {
	var b strings.Builder
	lastDash := true
	for _, r := range strings.ToLower(title) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastDash = false
		case !lastDash:
			b.WriteByte('-')
			lastDash = true
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}

// sarifFingerprint derives a stable identity for a result so repeated
// scans of the same target dedupe on ingestion.
func sarifFingerprint(f *finding.Finding) string {
	h := sha256.Sum256([]byte(f.Title + ":" + f.Location + ":" + f.Evidence))
	return hex.EncodeToString(h[:])
}

type sarifDocument struct {
	Schema  string     `json:"$schema"`
	Version string     `json:"version"`
	Runs    []sarifRun `json:"runs"`
}

type sarifRun struct {
	Tool       sarifTool     `json:"tool"`
	Results    []sarifResult `json:"results"`
	ColumnKind string        `json:"columnKind"`
}

type sarifTool struct {
	Driver sarifDriver `json:"driver"`
}

type sarifDriver struct {
	Name            string      `json:"name"`
	Version         string      `json:"version,omitempty"`
	SemanticVersion string      `json:"semanticVersion,omitempty"`
	InformationURI  string      `json:"informationUri,omitempty"`
	Rules           []sarifRule `json:"rules"`
}

type sarifRule struct {
	ID               string         `json:"id"`
	Name             string         `json:"name,omitempty"`
	ShortDescription *sarifMessage  `json:"shortDescription,omitempty"`
	FullDescription  *sarifMessage  `json:"fullDescription,omitempty"`
	Help             *sarifMessage  `json:"help,omitempty"`
	HelpURI          string         `json:"helpUri,omitempty"`
	Properties       map[string]any `json:"properties,omitempty"`
}

type sarifMessage struct {
	Text string `json:"text"`
}

type sarifResult struct {
	RuleID       string            `json:"ruleId"`
	Level        string            `json:"level"`
	Message      sarifMessage      `json:"message"`
	Locations    []sarifLocation   `json:"locations,omitempty"`
	Fingerprints map[string]string `json:"fingerprints,omitempty"`
	Properties   map[string]any    `json:"properties,omitempty"`
}

type sarifLocation struct {
	PhysicalLocation sarifPhysicalLocation `json:"physicalLocation"`
}

type sarifPhysicalLocation struct {
	ArtifactLocation sarifArtifactLocation `json:"artifactLocation"`
	Region           *sarifRegion          `json:"region,omitempty"`
}

type sarifArtifactLocation struct {
	URI string `json:"uri"`
}

type sarifRegion struct {
	StartLine int `json:"startLine"`
}
