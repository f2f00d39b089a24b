package report

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/sitehawk/sitehawk/pkg/finding"
)

// Compile-time interface check.
var _ Writer = (*MarkdownWriter)(nil)

// MarkdownConfig configures the Markdown report writer.
type MarkdownConfig struct {
	// Title is the report title (default: "Sitehawk Scan Report").
	Title string

	// OmitEvidence drops evidence blocks from finding sections.
	OmitEvidence bool

	// MaxEvidenceLen truncates displayed evidence (default: 200).
	MaxEvidenceLen int

	// NoEmoji disables severity emoji markers.
	NoEmoji bool
}

// MarkdownWriter renders reports as a GitHub-flavored Markdown
// document. Reports buffer on Write; Close renders everything written
// into one document. Safe for concurrent use.
type MarkdownWriter struct {
	w       io.Writer
	mu      sync.Mutex
	config  MarkdownConfig
	reports []*Report
}

// NewMarkdownWriter creates a Markdown report writer.
func NewMarkdownWriter(w io.Writer, config MarkdownConfig) *MarkdownWriter {
	if config.Title == "" {
		config.Title = "Sitehawk Scan Report"
	}
	if config.MaxEvidenceLen <= 0 {
		config.MaxEvidenceLen = 200
	}
	return &MarkdownWriter{w: w, config: config}
}

// Write buffers rep for rendering on Close.
func (mw *MarkdownWriter) Write(rep *Report) error {
	mw.mu.Lock()
	defer mw.mu.Unlock()
	mw.reports = append(mw.reports, rep)
	return nil
}

// Flush is a no-op; the document renders on Close.
func (mw *MarkdownWriter) Flush() error { return nil }

// Close renders the buffered reports and writes the document.
func (mw *MarkdownWriter) Close() error {
	mw.mu.Lock()
	defer mw.mu.Unlock()

	sb := &strings.Builder{}
	sb.WriteString(fmt.Sprintf("# %s\n\n", mw.config.Title))
	for _, rep := range mw.reports {
		mw.renderReport(sb, rep)
	}

	if _, err := io.WriteString(mw.w, sb.String()); err != nil {
		return fmt.Errorf("report: write markdown: %w", err)
	}
	if closer, ok := mw.w.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}

func (mw *MarkdownWriter) renderReport(sb *strings.Builder, rep *Report) {
	sum := rep.Summarize()

	sb.WriteString(fmt.Sprintf("*Generated %s by %s v%s*\n\n",
		rep.GeneratedAt.Format("2006-01-02 15:04:05 MST"), rep.Tool, rep.Version))

	sb.WriteString("## Summary\n\n")
	sb.WriteString("| | |\n|---|---|\n")
	sb.WriteString(fmt.Sprintf("| Target | %s |\n", sum.Target))
	sb.WriteString(fmt.Sprintf("| Status | %s |\n", sum.Status))
	sb.WriteString(fmt.Sprintf("| Pages crawled | %d |\n", sum.Pages))
	sb.WriteString(fmt.Sprintf("| Findings | %d |\n", sum.Findings))
	if sum.Pages > 0 {
		sb.WriteString(fmt.Sprintf("| Average security score | %d/100 |\n", sum.AvgScore))
	}
	if sum.Duration > 0 {
		sb.WriteString(fmt.Sprintf("| Duration | %s |\n", sum.Duration.Round(time.Second)))
	}
	if len(sum.Technologies) > 0 {
		sb.WriteString(fmt.Sprintf("| Technologies | %s |\n", strings.Join(sum.Technologies, ", ")))
	}
	sb.WriteString("\n")

	if sum.Findings > 0 {
		sb.WriteString("### Findings by Severity\n\n")
		sb.WriteString(mw.renderSeverityBar(sum.BySeverity, sum.Findings))
		sb.WriteString("\n")
	}

	mw.renderFindings(sb, rep)
	mw.renderPages(sb, rep)
}

// renderSeverityBar draws a text distribution bar per severity level.
func (mw *MarkdownWriter) renderSeverityBar(counts map[finding.Severity]int, total int) string {
	sb := &strings.Builder{}
	sb.WriteString("```\n")
	const barLen = 20
	for _, sev := range finding.Ordered() {
		count := counts[sev]
		if count == 0 {
			continue
		}
		pct := float64(count) / float64(total) * 100
		filled := count * barLen / total
		if filled == 0 {
			filled = 1
		}
		bar := strings.Repeat("█", filled) + strings.Repeat("░", barLen-filled)
		sb.WriteString(fmt.Sprintf("%-8s %s %d (%.0f%%)\n", titleCase(string(sev)), bar, count, pct))
	}
	sb.WriteString("```\n")
	return sb.String()
}

func (mw *MarkdownWriter) renderFindings(sb *strings.Builder, rep *Report) {
	if len(rep.Findings) == 0 {
		sb.WriteString("## Findings\n\nNo findings.\n\n")
		return
	}
	sb.WriteString("## Findings\n\n")
	for _, f := range rep.Findings {
		marker := ""
		if !mw.config.NoEmoji {
			marker = severityEmoji(f.Severity) + " "
		}
		sb.WriteString(fmt.Sprintf("### %s%s\n\n", marker, f.Title))
		sb.WriteString(fmt.Sprintf("**Severity:** %s  \n", titleCase(string(f.Severity))))
		sb.WriteString(fmt.Sprintf("**Location:** %s  \n", f.Location))
		if f.CWE != "" {
			sb.WriteString(fmt.Sprintf("**CWE:** %s  \n", f.CWE))
		}
		sb.WriteString("\n")
		if f.Description != "" {
			sb.WriteString(f.Description + "\n\n")
		}
		if f.Evidence != "" && !mw.config.OmitEvidence {
			ev := f.Evidence
			if len(ev) > mw.config.MaxEvidenceLen {
				ev = ev[:mw.config.MaxEvidenceLen] + "..."
			}
			sb.WriteString("```\n" + ev + "\n```\n\n")
		}
		if f.Remediation != "" {
			sb.WriteString(fmt.Sprintf("**Remediation:** %s\n\n", f.Remediation))
		}
	}
}

func (mw *MarkdownWriter) renderPages(sb *strings.Builder, rep *Report) {
	if len(rep.Pages) == 0 {
		return
	}
	sb.WriteString("## Crawled Pages\n\n")
	sb.WriteString("| URL | Status | Title | Score | Technologies |\n")
	sb.WriteString("|-----|--------|-------|-------|---------------|\n")
	for _, p := range rep.Pages {
		sb.WriteString(fmt.Sprintf("| %s | %d | %s | %d | %s |\n",
			p.URL, p.Status, escapeCell(p.Title), p.SecurityScore,
			strings.Join(p.Technologies, ", ")))
	}
	sb.WriteString("\n")
}

// escapeCell keeps table-breaking characters out of cell content.
func escapeCell(s string) string {
	s = strings.ReplaceAll(s, "|", "\\|")
	s = strings.ReplaceAll(s, "\n", " ")
	return s
}

func severityEmoji(s finding.Severity) string {
	switch s {
	case finding.Critical:
		return "🔴"
	case finding.High:
		return "🟠"
	case finding.Medium:
		return "🟡"
	case finding.Low:
		return "🟢"
	default:
		return "🔵"
	}
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
