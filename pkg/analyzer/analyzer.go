// Package analyzer runs passive security checks against one fetched
// page and extracts the links the crawl can follow next. Checks are
// independent and order-insensitive; a failure inside one check never
// stops the others.
package analyzer

import (
	"fmt"
	"net/http"
	"regexp"
	"strings"

	"github.com/sirupsen/logrus"
	"golang.org/x/net/html"

	"github.com/sitehawk/sitehawk/pkg/defaults"
	"github.com/sitehawk/sitehawk/pkg/finding"
	"github.com/sitehawk/sitehawk/pkg/fingerprint"
)

// Page is one fetched page as the checks see it.
type Page struct {
	URL     string // normalized final URL
	Status  int
	Headers http.Header
	Body    string
	Depth   int
}

// Config switches individual checks on or off.
type Config struct {
	Headers      bool `json:"headers" yaml:"headers"`
	MixedContent bool `json:"mixed_content" yaml:"mixed_content"`
	Comments     bool `json:"comments" yaml:"comments"`
	Fingerprint  bool `json:"fingerprint" yaml:"fingerprint"`
}

// DefaultConfig enables every check.
func DefaultConfig() Config {
	return Config{
		Headers:      true,
		MixedContent: true,
		Comments:     true,
		Fingerprint:  true,
	}
}

// Analyze runs the enabled checks against page and returns the
// findings. fp is the page's fingerprint result; only the score check
// reads it, and a nil fp skips that check.
func Analyze(scanID string, page Page, fp *fingerprint.Result, cfg Config) []*finding.Finding {
	var findings []*finding.Finding

	if cfg.Headers {
		findings = append(findings, runCheck("headers", func() []*finding.Finding {
			return checkHeaders(scanID, page)
		})...)
	}
	if cfg.MixedContent {
		findings = append(findings, runCheck("mixed-content", func() []*finding.Finding {
			return checkMixedContent(scanID, page)
		})...)
	}
	if cfg.Comments {
		findings = append(findings, runCheck("comments", func() []*finding.Finding {
			return checkComments(scanID, page)
		})...)
	}
	if cfg.Fingerprint && fp != nil {
		findings = append(findings, runCheck("fingerprint", func() []*finding.Finding {
			return checkScore(scanID, page, fp)
		})...)
	}

	return findings
}

// runCheck isolates one check so a panic inside it cannot take down
// the rest of the analysis.
func runCheck(name string, fn func() []*finding.Finding) (out []*finding.Finding) {
	defer func() {
		if r := recover(); r != nil {
			logrus.Errorf("analyzer: %s check panicked: %v", name, r)
			out = nil
		}
	}()
	return fn()
}

func checkHeaders(scanID string, page Page) []*finding.Finding {
	var out []*finding.Finding

	if page.Headers.Get("Content-Security-Policy") == "" {
		f := finding.New(scanID, "Missing Content-Security-Policy Header", finding.Medium, page.URL)
		f.Description = "The response does not set a Content-Security-Policy header, so the browser enforces no restriction on where scripts and other resources may load from."
		f.Remediation = "Set a Content-Security-Policy header with an explicit default-src directive."
		f.CWE = "CWE-693"
		out = append(out, f)
	}

	if page.Headers.Get("X-Frame-Options") == "" {
		f := finding.New(scanID, "Missing X-Frame-Options Header", finding.Low, page.URL)
		f.Description = "The response does not set an X-Frame-Options header, allowing the page to be embedded in a frame on another site."
		f.Remediation = "Set X-Frame-Options to DENY or SAMEORIGIN, or use the frame-ancestors CSP directive."
		f.CWE = "CWE-1021"
		out = append(out, f)
	}

	return out
}

// httpRefRE pulls the plain-http references out of a body once the
// literal substring check has already fired.
var httpRefRE = regexp.MustCompile(`http://[^\s"'<>\\]*`)

func checkMixedContent(scanID string, page Page) []*finding.Finding {
	if !strings.HasPrefix(page.URL, "https://") {
		return nil
	}
	body := clipBody(page.Body)
	if !strings.Contains(body, "http://") {
		return nil
	}

	refs := httpRefRE.FindAllString(body, defaults.EvidenceSampleMax)
	f := finding.New(scanID, "Mixed Content on HTTPS Page", finding.High, page.URL)
	f.Description = "The page is served over HTTPS but its body references resources over plain http://. Those requests can be read or tampered with in transit."
	f.Evidence = evidenceSample(refs, len(refs))
	f.Remediation = "Reference all subresources over https://."
	f.CWE = "CWE-319"
	return []*finding.Finding{f}
}

// sensitiveCommentRE flags developer leftovers and credential-shaped
// words inside HTML comments.
var sensitiveCommentRE = regexp.MustCompile(`(?i)TODO|FIXME|password|secret|key`)

func checkComments(scanID string, page Page) []*finding.Finding {
	var hits []string
	for _, c := range htmlComments(clipBody(page.Body)) {
		if sensitiveCommentRE.MatchString(c) {
			hits = append(hits, strings.TrimSpace(c))
		}
	}
	if len(hits) == 0 {
		return nil
	}

	f := finding.New(scanID, "Sensitive Information in HTML Comments", finding.Low, page.URL)
	f.Description = fmt.Sprintf("%d HTML comment(s) contain developer notes or credential-like keywords visible to anyone reading the page source.", len(hits))
	f.Evidence = evidenceSample(hits, len(hits))
	f.Remediation = "Strip internal comments from production markup."
	f.CWE = "CWE-615"
	return []*finding.Finding{f}
}

func checkScore(scanID string, page Page, fp *fingerprint.Result) []*finding.Finding {
	if fp.SecurityScore >= defaults.SecurityScoreThreshold {
		return nil
	}

	f := finding.New(scanID, "Weak Security Header Posture", finding.Low, page.URL)
	f.Description = fmt.Sprintf("The response scores %d/100 on security-relevant headers, below the %d threshold.", fp.SecurityScore, defaults.SecurityScoreThreshold)
	if missing := fp.MissingHeaders(); len(missing) > 0 {
		f.Evidence = "Missing: " + strings.Join(missing, ", ")
	} else {
		f.Evidence = "Headers present but with ineffective values."
	}
	f.Remediation = "Add the missing security headers; prioritize Content-Security-Policy, Strict-Transport-Security, and X-Frame-Options."
	f.CWE = "CWE-16"
	return []*finding.Finding{f}
}

// htmlComments extracts comment nodes from markup.
func htmlComments(body string) []string {
	var comments []string
	z := html.NewTokenizer(strings.NewReader(body))
	for {
		switch z.Next() {
		case html.ErrorToken:
			return comments
		case html.CommentToken:
			comments = append(comments, z.Token().Data)
		}
	}
}

// evidenceSample joins at most EvidenceSampleMax snippets, each clipped
// to EvidenceSnippetLen, and notes how many matches were left out.
func evidenceSample(items []string, total int) string {
	if len(items) > defaults.EvidenceSampleMax {
		items = items[:defaults.EvidenceSampleMax]
	}
	parts := make([]string, 0, len(items))
	for _, item := range items {
		if len(item) > defaults.EvidenceSnippetLen {
			item = item[:defaults.EvidenceSnippetLen] + "..."
		}
		parts = append(parts, item)
	}
	s := strings.Join(parts, "; ")
	if total > len(items) {
		s += fmt.Sprintf(" (+%d more)", total-len(items))
	}
	return s
}

func clipBody(body string) string {
	if len(body) > defaults.BodyAnalysisMax {
		return body[:defaults.BodyAnalysisMax]
	}
	return body
}
