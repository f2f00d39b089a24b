// Package report renders a finished scan into shareable documents.
// A Report is assembled from the read side of a store and pushed
// through a Writer; JSONL streams as it is written, the document
// formats (Markdown, HTML, PDF, SARIF) buffer and render on Close.
package report

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/sitehawk/sitehawk/pkg/defaults"
	"github.com/sitehawk/sitehawk/pkg/finding"
	"github.com/sitehawk/sitehawk/pkg/store"
)

// Report is the assembled view of one scan: the scan record plus
// every page and finding it produced, in stable order.
type Report struct {
	Scan     *store.ScanRecord   `json:"scan"`
	Pages    []*store.PageRecord `json:"pages"`
	Findings []*finding.Finding  `json:"findings"`

	Tool        string    `json:"tool"`
	Version     string    `json:"version"`
	GeneratedAt time.Time `json:"generated_at"`
}

// Load assembles the report for scanID. Pages sort by URL and
// findings sort severity-first so every writer renders the same
// order.
func Load(ctx context.Context, r store.Reader, scanID string) (*Report, error) {
	scan, err := r.GetScan(ctx, scanID)
	if err != nil {
		return nil, fmt.Errorf("report: load scan: %w", err)
	}
	pages, err := r.ListPages(ctx, scanID)
	if err != nil {
		return nil, fmt.Errorf("report: load pages: %w", err)
	}
	findings, err := r.ListFindings(ctx, scanID)
	if err != nil {
		return nil, fmt.Errorf("report: load findings: %w", err)
	}

	sort.Slice(pages, func(i, j int) bool { return pages[i].URL < pages[j].URL })
	sort.Slice(findings, func(i, j int) bool { return findings[i].SortKey() < findings[j].SortKey() })

	return &Report{
		Scan:        scan,
		Pages:       pages,
		Findings:    findings,
		Tool:        defaults.ToolName,
		Version:     defaults.Version,
		GeneratedAt: time.Now().UTC(),
	}, nil
}

// Summary is the headline numbers writers put at the top of a report.
type Summary struct {
	Target       string
	Status       store.Status
	Pages        int
	Findings     int
	BySeverity   map[finding.Severity]int
	Technologies []string
	AvgScore     int
	Duration     time.Duration
}

// Summarize computes the report's headline numbers. Technologies is
// the distinct set across all pages, sorted; AvgScore averages page
// security scores (0 when no pages).
func (r *Report) Summarize() Summary {
	s := Summary{
		Pages:      len(r.Pages),
		Findings:   len(r.Findings),
		BySeverity: make(map[finding.Severity]int),
	}
	if r.Scan != nil {
		s.Target = r.Scan.StartURL
		s.Status = r.Scan.Status
		if !r.Scan.UpdatedAt.IsZero() && !r.Scan.CreatedAt.IsZero() {
			s.Duration = r.Scan.UpdatedAt.Sub(r.Scan.CreatedAt)
		}
	}

	for _, f := range r.Findings {
		s.BySeverity[f.Severity]++
	}

	seen := make(map[string]struct{})
	total := 0
	for _, p := range r.Pages {
		total += p.SecurityScore
		for _, tech := range p.Technologies {
			if _, ok := seen[tech]; !ok {
				seen[tech] = struct{}{}
				s.Technologies = append(s.Technologies, tech)
			}
		}
	}
	sort.Strings(s.Technologies)
	if len(r.Pages) > 0 {
		s.AvgScore = total / len(r.Pages)
	}
	return s
}

// Writer renders reports to one destination. Write may be called more
// than once; document writers merge everything written into a single
// rendering on Close. If the destination implements io.Closer, Close
// closes it.
type Writer interface {
	Write(rep *Report) error
	Flush() error
	Close() error
}

// Formats lists the supported output format names.
func Formats() []string {
	return []string{"jsonl", "markdown", "html", "pdf", "sarif"}
}

// New returns a writer for format with default options. Format names
// are case-insensitive; "md" and "markdown" are synonyms.
func New(format string, w io.Writer) (Writer, error) {
	switch strings.ToLower(format) {
	case "jsonl", "json":
		return NewJSONLWriter(w, JSONLOptions{}), nil
	case "md", "markdown":
		return NewMarkdownWriter(w, MarkdownConfig{}), nil
	case "html":
		return NewHTMLWriter(w, HTMLConfig{}), nil
	case "pdf":
		return NewPDFWriter(w, PDFConfig{}), nil
	case "sarif":
		return NewSARIFWriter(w, SARIFOptions{}), nil
	default:
		return nil, fmt.Errorf("report: unknown format %q (supported: %s)",
			format, strings.Join(Formats(), ", "))
	}
}

// Create opens path and returns a writer for format. An empty path
// writes to stdout; the writer's Close closes the file.
func Create(path, format string) (Writer, error) {
	if path == "" {
		return New(format, os.Stdout)
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("report: create %s: %w", path, err)
	}
	w, err := New(format, f)
	if err != nil {
		f.Close()
		return nil, err
	}
	return w, nil
}
