package report

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sitehawk/sitehawk/pkg/finding"
	"github.com/sitehawk/sitehawk/pkg/store"
)

func renderMarkdown(t *testing.T, config MarkdownConfig, rep *Report) string {
	t.Helper()
	buf := &bytes.Buffer{}
	w := NewMarkdownWriter(buf, config)
	require.NoError(t, w.Write(rep))
	require.NoError(t, w.Close())
	return buf.String()
}

func TestMarkdownWriterRenders(t *testing.T) {
	out := renderMarkdown(t, MarkdownConfig{}, testReport())

	assert.Contains(t, out, "# Sitehawk Scan Report")
	assert.Contains(t, out, "*Generated 2025-06-01 10:01:00 UTC by sitehawk v1.2.0*")

	assert.Contains(t, out, "| Target | https://example.com/ |")
	assert.Contains(t, out, "| Status | completed |")
	assert.Contains(t, out, "| Pages crawled | 2 |")
	assert.Contains(t, out, "| Findings | 3 |")
	assert.Contains(t, out, "| Average security score | 70/100 |")
	assert.Contains(t, out, "| Duration | 42s |")
	assert.Contains(t, out, "| Technologies | jQuery, nginx |")

	assert.Contains(t, out, "### Findings by Severity")
	assert.Contains(t, out, "High")
	assert.Contains(t, out, "(33%)")

	assert.Contains(t, out, "### 🟠 Mixed Content on HTTPS Page")
	assert.Contains(t, out, "**Severity:** High  \n")
	assert.Contains(t, out, "**Location:** https://example.com/  \n")
	assert.Contains(t, out, "**CWE:** CWE-319")
	assert.Contains(t, out, `<script src="http://cdn.example.com/app.js">`)
	assert.Contains(t, out, "**Remediation:** Serve all subresources over HTTPS.")

	assert.Contains(t, out, "## Crawled Pages")
	assert.Contains(t, out, "| https://example.com/ | 200 | Example Home | 80 | nginx, jQuery |")
}

func TestMarkdownWriterNoFindings(t *testing.T) {
	rep := testReport()
	rep.Findings = nil
	out := renderMarkdown(t, MarkdownConfig{}, rep)

	assert.Contains(t, out, "No findings.")
	assert.NotContains(t, out, "### Findings by Severity")
}

func TestMarkdownWriterNoEmoji(t *testing.T) {
	out := renderMarkdown(t, MarkdownConfig{NoEmoji: true}, testReport())

	assert.Contains(t, out, "### Mixed Content on HTTPS Page")
	assert.NotContains(t, out, "🟠")
}

func TestMarkdownWriterOmitEvidence(t *testing.T) {
	out := renderMarkdown(t, MarkdownConfig{OmitEvidence: true}, testReport())

	assert.NotContains(t, out, "cdn.example.com")
	assert.Contains(t, out, "**Remediation:**")
}

func TestMarkdownWriterClipsEvidence(t *testing.T) {
	out := renderMarkdown(t, MarkdownConfig{MaxEvidenceLen: 10}, testReport())

	assert.Contains(t, out, "<script sr...")
	assert.NotContains(t, out, "app.js")
}

func TestMarkdownWriterEscapesCells(t *testing.T) {
	rep := testReport()
	rep.Findings = nil
	rep.Pages = []*store.PageRecord{{
		ID: "page-1", ScanID: "scan-1", URL: "https://example.com/about",
		Status: 200, Title: "About | Us", SecurityScore: 90,
	}}
	out := renderMarkdown(t, MarkdownConfig{}, rep)

	assert.Contains(t, out, `About \| Us`)
}

func TestMarkdownWriterCustomTitle(t *testing.T) {
	out := renderMarkdown(t, MarkdownConfig{Title: "Quarterly Review"}, testReport())

	assert.Contains(t, out, "# Quarterly Review")
	assert.NotContains(t, out, "# Sitehawk Scan Report")
}

func TestMarkdownSeverityBarCovering(t *testing.T) {
	rep := testReport()
	crit := finding.New("scan-1", "Exposed Admin Panel", finding.Critical, "https://example.com/admin")
	rep.Findings = append([]*finding.Finding{crit}, rep.Findings...)
	out := renderMarkdown(t, MarkdownConfig{}, rep)

	assert.Contains(t, out, "Critical")
	assert.Contains(t, out, "█")
}
