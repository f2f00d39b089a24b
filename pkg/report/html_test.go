package report

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func renderHTML(t *testing.T, config HTMLConfig, reps ...*Report) string {
	t.Helper()
	buf := &bytes.Buffer{}
	w := NewHTMLWriter(buf, config)
	for _, rep := range reps {
		require.NoError(t, w.Write(rep))
	}
	require.NoError(t, w.Close())
	return buf.String()
}

func TestHTMLWriterRenders(t *testing.T) {
	out := renderHTML(t, HTMLConfig{}, testReport())

	assert.Contains(t, out, "<!DOCTYPE html>")
	assert.Contains(t, out, "<title>Sitehawk Scan Report</title>")
	assert.Contains(t, out, "Generated 2025-06-01 10:01:00 UTC by sitehawk v1.2.0")

	assert.Contains(t, out, "https://example.com/")
	assert.Contains(t, out, "COMPLETED")
	assert.Contains(t, out, "jQuery, nginx")

	assert.Contains(t, out, "Mixed Content on HTTPS Page")
	assert.Contains(t, out, `class="finding sev-high"`)
	assert.Contains(t, out, `class="badge sev-medium"`)
	assert.Contains(t, out, "CWE-319")
	assert.Contains(t, out, "<details><summary>Evidence</summary>")
	assert.Contains(t, out, "Serve all subresources over HTTPS.")

	assert.Contains(t, out, "Crawled Pages")
	assert.Contains(t, out, "<td>https://example.com/login</td>")
}

func TestHTMLWriterEscapesMarkup(t *testing.T) {
	out := renderHTML(t, HTMLConfig{}, testReport())

	// Evidence carries raw HTML; it must land escaped.
	assert.Contains(t, out, "&lt;script")
	assert.NotContains(t, out, `<script src="http://cdn.example.com/app.js">`)
}

func TestHTMLWriterOmitEvidence(t *testing.T) {
	out := renderHTML(t, HTMLConfig{OmitEvidence: true}, testReport())

	assert.NotContains(t, out, "<details>")
	assert.NotContains(t, out, "cdn.example.com")
}

func TestHTMLWriterNoReports(t *testing.T) {
	out := renderHTML(t, HTMLConfig{Title: "Empty Run"})

	assert.Contains(t, out, "<!DOCTYPE html>")
	assert.Contains(t, out, "<title>Empty Run</title>")
	assert.NotContains(t, out, "<article")
}

func TestHTMLWriterNoFindings(t *testing.T) {
	rep := testReport()
	rep.Findings = nil
	out := renderHTML(t, HTMLConfig{}, rep)

	assert.Contains(t, out, "No findings.")
	assert.NotContains(t, out, `class="sevbar"`)
}
