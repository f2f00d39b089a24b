package report

import (
	"fmt"
	"html/template"
	"io"
	"sync"

	"github.com/Masterminds/sprig/v3"

	"github.com/sitehawk/sitehawk/pkg/finding"
	"github.com/sitehawk/sitehawk/pkg/store"
)

// Compile-time interface check.
var _ Writer = (*HTMLWriter)(nil)

// HTMLConfig configures the HTML report writer.
type HTMLConfig struct {
	// Title is the report title (default: "Sitehawk Scan Report").
	Title string

	// OmitEvidence drops the collapsible evidence blocks.
	OmitEvidence bool
}

// HTMLWriter renders reports as one self-contained HTML document, no
// external assets, printable as-is. Reports buffer on Write and the
// document renders on Close. Safe for concurrent use.
type HTMLWriter struct {
	w       io.Writer
	mu      sync.Mutex
	config  HTMLConfig
	reports []*Report
}

// NewHTMLWriter creates an HTML report writer.
func NewHTMLWriter(w io.Writer, config HTMLConfig) *HTMLWriter {
	if config.Title == "" {
		config.Title = "Sitehawk Scan Report"
	}
	return &HTMLWriter{w: w, config: config}
}

// Write buffers rep for rendering on Close.
func (hw *HTMLWriter) Write(rep *Report) error {
	hw.mu.Lock()
	defer hw.mu.Unlock()
	hw.reports = append(hw.reports, rep)
	return nil
}

// Flush is a no-op; the document renders on Close.
func (hw *HTMLWriter) Flush() error { return nil }

// Close renders the buffered reports and writes the document.
func (hw *HTMLWriter) Close() error {
	hw.mu.Lock()
	defer hw.mu.Unlock()

	data := htmlData{
		Title:           hw.config.Title,
		IncludeEvidence: !hw.config.OmitEvidence,
	}
	for _, rep := range hw.reports {
		data.Reports = append(data.Reports, newHTMLReportData(rep))
	}

	if err := htmlTmpl.Execute(hw.w, data); err != nil {
		return fmt.Errorf("report: render html: %w", err)
	}
	if closer, ok := hw.w.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}

type htmlData struct {
	Title           string
	IncludeEvidence bool
	Reports         []htmlReportData
}

type htmlReportData struct {
	Summary      Summary
	SeverityRows []htmlSeverityRow
	Findings     []*finding.Finding
	Pages        []*store.PageRecord
	Tool         string
	Version      string
	GeneratedAt  string
}

type htmlSeverityRow struct {
	Severity finding.Severity
	Count    int
}

func newHTMLReportData(rep *Report) htmlReportData {
	sum := rep.Summarize()
	d := htmlReportData{
		Summary:     sum,
		Findings:    rep.Findings,
		Pages:       rep.Pages,
		Tool:        rep.Tool,
		Version:     rep.Version,
		GeneratedAt: rep.GeneratedAt.Format("2006-01-02 15:04:05 MST"),
	}
	for _, sev := range finding.Ordered() {
		if n := sum.BySeverity[sev]; n > 0 {
			d.SeverityRows = append(d.SeverityRows, htmlSeverityRow{Severity: sev, Count: n})
		}
	}
	return d
}

// severityClass maps a severity to its CSS class.
func severityClass(s finding.Severity) string {
	switch s {
	case finding.Critical:
		return "sev-critical"
	case finding.High:
		return "sev-high"
	case finding.Medium:
		return "sev-medium"
	case finding.Low:
		return "sev-low"
	default:
		return "sev-info"
	}
}

func htmlFuncMap() template.FuncMap {
	funcs := sprig.HtmlFuncMap()
	funcs["severityClass"] = severityClass
	return funcs
}

var htmlTmpl = template.Must(template.New("report").Funcs(htmlFuncMap()).Parse(htmlTemplate))

const htmlTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>{{ .Title }}</title>
<style>
:root {
  --bg: #f8f9fa; --card-bg: #ffffff; --text: #212529; --muted: #6c757d;
  --border: #dee2e6; --accent: #0d6efd;
  --sev-critical: #dc3545; --sev-high: #fd7e14; --sev-medium: #ffc107;
  --sev-low: #20c997; --sev-info: #0dcaf0;
}
* { box-sizing: border-box; }
body { font-family: -apple-system, "Segoe UI", Roboto, sans-serif; margin: 0; background: var(--bg); color: var(--text); }
main { max-width: 960px; margin: 0 auto; padding: 24px; }
header.page { background: #1a365d; color: #fff; padding: 24px; }
header.page h1 { margin: 0 0 4px; font-size: 1.6rem; }
header.page .meta { margin: 0; color: #cbd5e1; font-size: 0.85rem; }
h2 { border-bottom: 2px solid var(--border); padding-bottom: 6px; margin-top: 32px; }
.cards { display: flex; gap: 16px; flex-wrap: wrap; margin: 16px 0; }
.card { background: var(--card-bg); border: 1px solid var(--border); border-radius: 8px; padding: 16px 24px; text-align: center; min-width: 120px; }
.card .num { display: block; font-size: 2rem; font-weight: 700; }
.card .label { color: var(--muted); font-size: 0.8rem; text-transform: uppercase; }
table { border-collapse: collapse; width: 100%; background: var(--card-bg); }
th, td { border: 1px solid var(--border); padding: 8px 10px; text-align: left; font-size: 0.9rem; }
th { background: #f1f3f5; }
table.kv th { width: 180px; }
.badge { display: inline-block; padding: 2px 10px; border-radius: 12px; color: #fff; font-size: 0.75rem; font-weight: 600; text-transform: uppercase; }
.sev-critical { background: var(--sev-critical); }
.sev-high { background: var(--sev-high); }
.sev-medium { background: var(--sev-medium); color: #212529; }
.sev-low { background: var(--sev-low); }
.sev-info { background: var(--sev-info); color: #212529; }
.sevbar { margin: 12px 0; display: flex; gap: 8px; flex-wrap: wrap; }
article.finding { background: var(--card-bg); border: 1px solid var(--border); border-left: 4px solid var(--muted); border-radius: 6px; padding: 12px 16px; margin: 12px 0; }
article.finding.sev-critical { border-left-color: var(--sev-critical); background: var(--card-bg); }
article.finding.sev-high { border-left-color: var(--sev-high); background: var(--card-bg); }
article.finding.sev-medium { border-left-color: var(--sev-medium); background: var(--card-bg); }
article.finding.sev-low { border-left-color: var(--sev-low); background: var(--card-bg); }
article.finding.sev-info { border-left-color: var(--sev-info); background: var(--card-bg); }
article.finding h3 { margin: 0 0 6px; font-size: 1.05rem; }
.loc { color: var(--muted); font-size: 0.85rem; word-break: break-all; margin: 0 0 8px; }
details { margin: 8px 0; }
details pre { background: #f1f3f5; border: 1px solid var(--border); border-radius: 4px; padding: 10px; overflow-x: auto; font-size: 0.8rem; }
footer { color: var(--muted); font-size: 0.8rem; text-align: center; padding: 24px; }
@media print { header.page { background: #fff; color: #000; } }
</style>
</head>
<body>
<header class="page">
<h1>{{ .Title }}</h1>
{{ range .Reports }}<p class="meta">Generated {{ .GeneratedAt }} by {{ .Tool }} v{{ .Version }}</p>{{ end }}
</header>
<main>
{{ range .Reports }}
<section>
<h2>Summary</h2>
<div class="cards">
<div class="card"><span class="num">{{ .Summary.Pages }}</span><span class="label">Pages</span></div>
<div class="card"><span class="num">{{ .Summary.Findings }}</span><span class="label">Findings</span></div>
<div class="card"><span class="num">{{ .Summary.AvgScore }}</span><span class="label">Avg Score</span></div>
</div>
<table class="kv">
<tr><th>Target</th><td>{{ .Summary.Target }}</td></tr>
<tr><th>Status</th><td>{{ .Summary.Status | toString | upper }}</td></tr>
{{ with .Summary.Technologies }}<tr><th>Technologies</th><td>{{ join ", " . }}</td></tr>{{ end }}
</table>
{{ if .SeverityRows }}
<div class="sevbar">
{{ range .SeverityRows }}<span class="badge {{ severityClass .Severity }}">{{ .Severity | toString }} {{ .Count }}</span>
{{ end }}</div>
{{ end }}
</section>
<section>
<h2>Findings</h2>
{{ if .Findings }}
{{ range .Findings }}
<article class="finding {{ severityClass .Severity }}">
<h3><span class="badge {{ severityClass .Severity }}">{{ .Severity | toString }}</span> {{ .Title }}</h3>
<p class="loc">{{ .Location }}{{ with .CWE }} &middot; {{ . }}{{ end }}</p>
{{ with .Description }}<p>{{ . }}</p>{{ end }}
{{ if and $.IncludeEvidence .Evidence }}<details><summary>Evidence</summary><pre>{{ .Evidence }}</pre></details>{{ end }}
{{ with .Remediation }}<p><strong>Remediation:</strong> {{ . }}</p>{{ end }}
</article>
{{ end }}
{{ else }}<p>No findings.</p>{{ end }}
</section>
{{ if .Pages }}
<section>
<h2>Crawled Pages</h2>
<table>
<thead><tr><th>URL</th><th>Status</th><th>Title</th><th>Score</th><th>Technologies</th></tr></thead>
<tbody>
{{ range .Pages }}<tr><td>{{ .URL }}</td><td>{{ .Status }}</td><td>{{ .Title }}</td><td>{{ .SecurityScore }}</td><td>{{ join ", " .Technologies }}</td></tr>
{{ end }}</tbody>
</table>
</section>
{{ end }}
{{ end }}
</main>
<footer>{{ range .Reports }}{{ .Tool }} v{{ .Version }}{{ end }}</footer>
</body>
</html>
`
