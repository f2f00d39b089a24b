package report

import (
	"bytes"
	"testing"

	pdfapi "github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// renderPDF renders rep with compression off so the raw bytes stay
// text-searchable.
func renderPDF(t *testing.T, config PDFConfig, reps ...*Report) []byte {
	t.Helper()
	buf := &bytes.Buffer{}
	w := NewPDFWriter(buf, config)
	w.noCompress = true
	for _, rep := range reps {
		require.NoError(t, w.Write(rep))
	}
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func assertContainsText(t *testing.T, raw []byte, text string) {
	t.Helper()
	assert.True(t, bytes.Contains(raw, []byte(text)), "pdf should contain %q", text)
}

func TestDefaultPDFConfig(t *testing.T) {
	config := DefaultPDFConfig()

	assert.Equal(t, "Sitehawk Scan Report", config.Title)
	assert.Equal(t, "A4", config.PageSize)
	assert.Equal(t, "P", config.Orientation)
}

func TestNewPDFWriterFillsDefaults(t *testing.T) {
	w := NewPDFWriter(&bytes.Buffer{}, PDFConfig{})

	assert.Equal(t, "A4", w.config.PageSize)
	assert.Equal(t, "P", w.config.Orientation)
	assert.Equal(t, "Sitehawk Scan Report", w.config.Title)
}

func TestPDFWriterProducesValidPDF(t *testing.T) {
	raw := renderPDF(t, PDFConfig{}, testReport())

	require.Greater(t, len(raw), 1000)
	assert.True(t, bytes.HasPrefix(raw, []byte("%PDF-")))
	assert.True(t, bytes.Contains(raw, []byte("%%EOF")))

	require.NoError(t, pdfapi.Validate(bytes.NewReader(raw), nil))

	pages, err := pdfapi.PageCount(bytes.NewReader(raw), nil)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, pages, 1)
}

func TestPDFWriterContent(t *testing.T) {
	raw := renderPDF(t, PDFConfig{}, testReport())

	assertContainsText(t, raw, "Sitehawk Scan Report")
	assertContainsText(t, raw, "Scan Summary")
	assertContainsText(t, raw, "https://example.com/")
	assertContainsText(t, raw, "Findings by Severity")
	assertContainsText(t, raw, "Mixed Content on HTTPS Page")
	assertContainsText(t, raw, "Remediation:")
	assertContainsText(t, raw, "Crawled Pages")
	assertContainsText(t, raw, "cdn.example.com")
}

func TestPDFWriterOmitEvidence(t *testing.T) {
	raw := renderPDF(t, PDFConfig{OmitEvidence: true}, testReport())

	require.NoError(t, pdfapi.Validate(bytes.NewReader(raw), nil))
	assert.False(t, bytes.Contains(raw, []byte("cdn.example.com")))
}

func TestPDFWriterCustomTitle(t *testing.T) {
	raw := renderPDF(t, PDFConfig{Title: "Acme Quarterly Audit", Author: "Acme Security"}, testReport())

	assertContainsText(t, raw, "Acme Quarterly Audit")
	assertContainsText(t, raw, "Acme Security")
}

func TestPDFWriterNoReports(t *testing.T) {
	raw := renderPDF(t, PDFConfig{})

	require.NoError(t, pdfapi.Validate(bytes.NewReader(raw), nil))
	assertContainsText(t, raw, "No scan data.")
}
