package report

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	gofpdf "github.com/go-pdf/fpdf"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/sitehawk/sitehawk/pkg/finding"
	"github.com/sitehawk/sitehawk/pkg/store"
)

// Compile-time interface check.
var _ Writer = (*PDFWriter)(nil)

// PDFConfig configures the PDF report writer.
type PDFConfig struct {
	// Title is the document title (default: "Sitehawk Scan Report").
	Title string

	// Author is recorded in the document metadata.
	Author string

	// PageSize is the paper size (default: "A4").
	PageSize string

	// Orientation is "P" for portrait or "L" for landscape (default: "P").
	Orientation string

	// OmitEvidence drops the evidence blocks from the findings section.
	OmitEvidence bool
}

// DefaultPDFConfig returns the default PDF configuration.
func DefaultPDFConfig() PDFConfig {
	return PDFConfig{
		Title:       "Sitehawk Scan Report",
		PageSize:    "A4",
		Orientation: "P",
	}
}

// PDFWriter renders reports as a PDF document. Reports buffer on Write
// and the document renders on Close. Safe for concurrent use.
type PDFWriter struct {
	w       io.Writer
	mu      sync.Mutex
	config  PDFConfig
	reports []*Report

	// noCompress disables stream compression so tests can search the
	// raw bytes for text.
	noCompress bool
}

// NewPDFWriter creates a PDF report writer.
func NewPDFWriter(w io.Writer, config PDFConfig) *PDFWriter {
	def := DefaultPDFConfig()
	if config.Title == "" {
		config.Title = def.Title
	}
	if config.PageSize == "" {
		config.PageSize = def.PageSize
	}
	if config.Orientation == "" {
		config.Orientation = def.Orientation
	}
	return &PDFWriter{w: w, config: config}
}

// Write buffers rep for rendering on Close.
func (pw *PDFWriter) Write(rep *Report) error {
	pw.mu.Lock()
	defer pw.mu.Unlock()
	pw.reports = append(pw.reports, rep)
	return nil
}

// Flush is a no-op; the document renders on Close.
func (pw *PDFWriter) Flush() error { return nil }

// Close renders the buffered reports and writes the document.
func (pw *PDFWriter) Close() error {
	pw.mu.Lock()
	defer pw.mu.Unlock()

	pdf := gofpdf.New(pw.config.Orientation, "mm", pw.config.PageSize, "")
	pdf.SetTitle(pw.config.Title, false)
	if pw.config.Author != "" {
		pdf.SetAuthor(pw.config.Author, false)
	}
	pdf.SetCreator("sitehawk", false)
	pdf.SetCompression(!pw.noCompress)
	pdf.SetAutoPageBreak(true, 15)

	if len(pw.reports) == 0 {
		pdf.AddPage()
		pdf.SetFont("Helvetica", "B", 18)
		pdf.CellFormat(0, 12, pw.config.Title, "", 1, "L", false, 0, "")
		pdf.SetFont("Helvetica", "", 10)
		pdf.CellFormat(0, 6, "No scan data.", "", 1, "L", false, 0, "")
	}
	for _, rep := range pw.reports {
		pw.renderReport(pdf, rep)
	}

	if err := pdf.Output(pw.w); err != nil {
		return fmt.Errorf("report: render pdf: %w", err)
	}
	if closer, ok := pw.w.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}

func (pw *PDFWriter) renderReport(pdf *gofpdf.Fpdf, rep *Report) {
	sum := rep.Summarize()

	pdf.AddPage()
	pdf.SetFont("Helvetica", "B", 20)
	pdf.SetTextColor(26, 54, 93)
	pdf.CellFormat(0, 14, pw.config.Title, "", 1, "L", false, 0, "")
	pdf.SetFont("Helvetica", "", 9)
	pdf.SetTextColor(108, 117, 125)
	meta := fmt.Sprintf("Generated %s by %s v%s",
		rep.GeneratedAt.Format("2006-01-02 15:04:05 MST"), rep.Tool, rep.Version)
	pdf.CellFormat(0, 5, meta, "", 1, "L", false, 0, "")
	pdf.SetTextColor(0, 0, 0)

	pw.renderSummary(pdf, sum)
	pw.renderSeverityTable(pdf, sum)
	pw.renderFindings(pdf, rep.Findings)
	pw.renderPages(pdf, rep.Pages)
}

func (pw *PDFWriter) renderSummary(pdf *gofpdf.Fpdf, sum Summary) {
	pw.addSectionHeader(pdf, "Scan Summary")

	rows := [][2]string{
		{"Target", sum.Target},
		{"Status", pdfTitleCaser.String(string(sum.Status))},
		{"Pages crawled", fmt.Sprintf("%d", sum.Pages)},
		{"Findings", fmt.Sprintf("%d", sum.Findings)},
	}
	if sum.Pages > 0 {
		rows = append(rows, [2]string{"Average security score", fmt.Sprintf("%d/100", sum.AvgScore)})
	}
	if sum.Duration > 0 {
		rows = append(rows, [2]string{"Duration", sum.Duration.Round(time.Second).String()})
	}
	if len(sum.Technologies) > 0 {
		rows = append(rows, [2]string{"Technologies", strings.Join(sum.Technologies, ", ")})
	}

	pdf.SetFont("Helvetica", "", 10)
	for _, row := range rows {
		pdf.SetFont("Helvetica", "B", 10)
		pdf.CellFormat(55, 7, row[0], "1", 0, "L", false, 0, "")
		pdf.SetFont("Helvetica", "", 10)
		pdf.CellFormat(0, 7, clipText(row[1], 90), "1", 1, "L", false, 0, "")
	}
}

func (pw *PDFWriter) renderSeverityTable(pdf *gofpdf.Fpdf, sum Summary) {
	if sum.Findings == 0 {
		return
	}
	pw.addSectionHeader(pdf, "Findings by Severity")

	pdf.SetFont("Helvetica", "B", 10)
	for _, sev := range finding.Ordered() {
		n := sum.BySeverity[sev]
		if n == 0 {
			continue
		}
		r, g, b := pdfSeverityColor(sev)
		pdf.SetFillColor(r, g, b)
		pdf.SetTextColor(255, 255, 255)
		if sev == finding.Medium || sev == finding.Info {
			pdf.SetTextColor(33, 37, 41)
		}
		pdf.CellFormat(35, 8, pdfTitleCaser.String(string(sev)), "1", 0, "C", true, 0, "")
		pdf.SetTextColor(0, 0, 0)
		pdf.CellFormat(20, 8, fmt.Sprintf("%d", n), "1", 1, "C", false, 0, "")
	}
}

func (pw *PDFWriter) renderFindings(pdf *gofpdf.Fpdf, findings []*finding.Finding) {
	pw.addSectionHeader(pdf, "Findings")

	if len(findings) == 0 {
		pdf.SetFont("Helvetica", "I", 10)
		pdf.CellFormat(0, 6, "No findings.", "", 1, "L", false, 0, "")
		return
	}

	for _, f := range findings {
		r, g, b := pdfSeverityColor(f.Severity)
		pdf.SetFillColor(r, g, b)
		pdf.SetTextColor(255, 255, 255)
		if f.Severity == finding.Medium || f.Severity == finding.Info {
			pdf.SetTextColor(33, 37, 41)
		}
		pdf.SetFont("Helvetica", "B", 9)
		pdf.CellFormat(24, 6, strings.ToUpper(string(f.Severity)), "", 0, "C", true, 0, "")
		pdf.SetTextColor(0, 0, 0)
		pdf.SetFont("Helvetica", "B", 11)
		pdf.CellFormat(0, 6, " "+clipText(f.Title, 80), "", 1, "L", false, 0, "")

		pdf.SetFont("Helvetica", "I", 8)
		pdf.SetTextColor(108, 117, 125)
		loc := f.Location
		if f.CWE != "" {
			loc += "  (" + f.CWE + ")"
		}
		pdf.CellFormat(0, 4, clipText(loc, 110), "", 1, "L", false, 0, "")
		pdf.SetTextColor(0, 0, 0)

		if f.Description != "" {
			pdf.SetFont("Helvetica", "", 9)
			pdf.MultiCell(0, 5, f.Description, "", "L", false)
		}
		if f.Evidence != "" && !pw.config.OmitEvidence {
			pdf.SetFont("Courier", "", 8)
			pdf.SetFillColor(241, 243, 245)
			pdf.MultiCell(0, 4, f.Evidence, "", "L", true)
		}
		if f.Remediation != "" {
			pdf.SetFont("Helvetica", "B", 9)
			pdf.CellFormat(28, 5, "Remediation:", "", 0, "L", false, 0, "")
			pdf.SetFont("Helvetica", "", 9)
			pdf.MultiCell(0, 5, f.Remediation, "", "L", false)
		}
		pdf.Ln(3)
	}
}

func (pw *PDFWriter) renderPages(pdf *gofpdf.Fpdf, pages []*store.PageRecord) {
	if len(pages) == 0 {
		return
	}
	pw.addSectionHeader(pdf, "Crawled Pages")

	pageW, _ := pdf.GetPageSize()
	left, _, right, _ := pdf.GetMargins()
	urlW := pageW - left - right - 50

	pdf.SetFont("Helvetica", "B", 9)
	pdf.SetFillColor(241, 243, 245)
	pdf.CellFormat(urlW, 7, "URL", "1", 0, "L", true, 0, "")
	pdf.CellFormat(22, 7, "Status", "1", 0, "C", true, 0, "")
	pdf.CellFormat(28, 7, "Score", "1", 1, "C", true, 0, "")

	pdf.SetFont("Helvetica", "", 8)
	for _, p := range pages {
		pdf.CellFormat(urlW, 6, clipText(p.URL, 85), "1", 0, "L", false, 0, "")
		pdf.CellFormat(22, 6, fmt.Sprintf("%d", p.Status), "1", 0, "C", false, 0, "")
		pdf.CellFormat(28, 6, fmt.Sprintf("%d/100", p.SecurityScore), "1", 1, "C", false, 0, "")
	}
}

func (pw *PDFWriter) addSectionHeader(pdf *gofpdf.Fpdf, title string) {
	pdf.Ln(6)
	pdf.SetFont("Helvetica", "B", 13)
	pdf.SetTextColor(26, 54, 93)
	pdf.CellFormat(0, 8, title, "", 1, "L", false, 0, "")
	pageW, _ := pdf.GetPageSize()
	left, _, right, _ := pdf.GetMargins()
	pdf.SetDrawColor(26, 54, 93)
	pdf.Line(left, pdf.GetY(), pageW-right, pdf.GetY())
	pdf.Ln(3)
	pdf.SetTextColor(0, 0, 0)
}

var pdfTitleCaser = cases.Title(language.English)

var pdfSeverityColors = map[finding.Severity][]int{
	finding.Critical: {220, 53, 69},
	finding.High:     {253, 126, 20},
	finding.Medium:   {255, 193, 7},
	finding.Low:      {32, 201, 151},
	finding.Info:     {13, 202, 240},
}

func pdfSeverityColor(sev finding.Severity) (int, int, int) {
	c, ok := pdfSeverityColors[sev]
	if !ok {
		return 128, 128, 128
	}
	return c[0], c[1], c[2]
}

func clipText(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
