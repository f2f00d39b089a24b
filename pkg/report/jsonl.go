package report

import (
	"io"
	"sync"
	"time"

	"github.com/sitehawk/sitehawk/pkg/finding"
	"github.com/sitehawk/sitehawk/pkg/jsonutil"
	"github.com/sitehawk/sitehawk/pkg/store"
)

// Compile-time interface check.
var _ Writer = (*JSONLWriter)(nil)

// JSONLOptions configures the JSONL writer.
type JSONLOptions struct {
	// MinSeverity drops finding lines below this level. Empty keeps
	// everything.
	MinSeverity finding.Severity

	// OmitEvidence strips evidence from finding lines to keep the
	// stream small.
	OmitEvidence bool

	// Pretty indents each record. Not JSONL-compliant, but handy when
	// eyeballing output.
	Pretty bool
}

// JSONLWriter streams a report as newline-delimited JSON: one scan
// line, one line per page, one line per finding. Each line carries a
// type discriminator so jq and log shippers can filter without
// parsing the whole stream. Safe for concurrent use.
type JSONLWriter struct {
	w       io.Writer
	mu      sync.Mutex
	opts    JSONLOptions
	encoder *jsonutil.Encoder
}

// jsonlRecord is one output line. Exactly one of Scan, Page, or
// Finding is set, matching Type.
type jsonlRecord struct {
	Type        string            `json:"type"`
	Scan        *store.ScanRecord `json:"scan,omitempty"`
	Page        *store.PageRecord `json:"page,omitempty"`
	Finding     *finding.Finding  `json:"finding,omitempty"`
	Tool        string            `json:"tool,omitempty"`
	Version     string            `json:"version,omitempty"`
	GeneratedAt *time.Time        `json:"generated_at,omitempty"`
}

// NewJSONLWriter creates a JSONL writer targeting w.
func NewJSONLWriter(w io.Writer, opts JSONLOptions) *JSONLWriter {
	encoder := jsonutil.NewStreamEncoder(w)
	if opts.Pretty {
		encoder.SetIndent("", "  ")
	}
	return &JSONLWriter{w: w, opts: opts, encoder: encoder}
}

// Write streams rep immediately: scan header first, then pages, then
// findings.
func (jw *JSONLWriter) Write(rep *Report) error {
	jw.mu.Lock()
	defer jw.mu.Unlock()

	gen := rep.GeneratedAt
	head := jsonlRecord{
		Type:    "scan",
		Scan:    rep.Scan,
		Tool:    rep.Tool,
		Version: rep.Version,
	}
	if !gen.IsZero() {
		head.GeneratedAt = &gen
	}
	if err := jw.encoder.Encode(head); err != nil {
		return err
	}

	for _, p := range rep.Pages {
		if err := jw.encoder.Encode(jsonlRecord{Type: "page", Page: p}); err != nil {
			return err
		}
	}

	min := jw.opts.MinSeverity.Score()
	for _, f := range rep.Findings {
		if f.Severity.Score() < min {
			continue
		}
		if jw.opts.OmitEvidence && f.Evidence != "" {
			clean := *f
			clean.Evidence = ""
			f = &clean
		}
		if err := jw.encoder.Encode(jsonlRecord{Type: "finding", Finding: f}); err != nil {
			return err
		}
	}
	return nil
}

// Flush is a no-op; every line is written as it is encoded.
func (jw *JSONLWriter) Flush() error { return nil }

// Close closes the destination when it is closable.
func (jw *JSONLWriter) Close() error {
	if closer, ok := jw.w.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}
