// Package fingerprint identifies the technology stack behind a page
// and grades its security-header posture.
//
// Analyze is a pure function of one response's headers and body: it
// matches a fixed signature table for technologies, collects the
// security-relevant headers, and computes a 0-100 header score. It is
// safe to call concurrently and caches nothing across pages.
package fingerprint

import (
	"net/http"
	"strings"
)

// Technology is one identified stack component with the artifact that
// revealed it.
type Technology struct {
	Name     string `json:"name"`
	Evidence string `json:"evidence"`
}

// Result is the fingerprint of a single page.
type Result struct {
	Technologies []Technology `json:"technologies"`

	// SecurityHeaders holds the observed value for every header the
	// scorer knows about; absent headers map to "".
	SecurityHeaders map[string]string `json:"security_headers"`

	// SecurityScore grades header posture from 0 (nothing) to 100
	// (every scored header present and valid).
	SecurityScore int `json:"security_score"`
}

// ScoredHeader is one entry of the security-header scoring table.
// Weight is the score contribution when the header is present and the
// validator (if any) accepts its value.
type ScoredHeader struct {
	Name      string
	Weight    int
	Validator func(string) bool
}

// ScoredHeaders returns the header scoring table. Weights sum to 100.
func ScoredHeaders() []ScoredHeader {
	return []ScoredHeader{
		{
			Name:      "Content-Security-Policy",
			Weight:    25,
			Validator: nil, // any CSP is better than none
		},
		{
			Name:   "Strict-Transport-Security",
			Weight: 20,
			Validator: func(v string) bool {
				return strings.Contains(strings.ToLower(v), "max-age=")
			},
		},
		{
			Name:   "X-Frame-Options",
			Weight: 15,
			Validator: func(v string) bool {
				v = strings.ToUpper(strings.TrimSpace(v))
				return v == "DENY" || v == "SAMEORIGIN"
			},
		},
		{
			Name:   "X-Content-Type-Options",
			Weight: 15,
			Validator: func(v string) bool {
				return strings.EqualFold(strings.TrimSpace(v), "nosniff")
			},
		},
		{
			Name:      "Referrer-Policy",
			Weight:    10,
			Validator: nil,
		},
		{
			Name:      "Permissions-Policy",
			Weight:    10,
			Validator: nil,
		},
		{
			Name:   "X-XSS-Protection",
			Weight: 5,
			Validator: func(v string) bool {
				return strings.HasPrefix(strings.TrimSpace(v), "1")
			},
		},
	}
}

// Analyze fingerprints one page from its response headers and body.
func Analyze(headers http.Header, body string) Result {
	res := Result{
		SecurityHeaders: make(map[string]string),
	}

	res.Technologies = matchSignatures(headers, body)

	for _, sh := range ScoredHeaders() {
		value := headers.Get(sh.Name)
		res.SecurityHeaders[sh.Name] = value
		if value == "" {
			continue
		}
		if sh.Validator != nil && !sh.Validator(value) {
			continue
		}
		res.SecurityScore += sh.Weight
	}

	return res
}

// TechnologyNames flattens the result's technologies for storage rows.
func (r Result) TechnologyNames() []string {
	names := make([]string, 0, len(r.Technologies))
	for _, tech := range r.Technologies {
		names = append(names, tech.Name)
	}
	return names
}

// MissingHeaders lists scored headers absent from the page, weightiest
// first, for finding evidence.
func (r Result) MissingHeaders() []string {
	var missing []string
	for _, sh := range ScoredHeaders() {
		if r.SecurityHeaders[sh.Name] == "" {
			missing = append(missing, sh.Name)
		}
	}
	return missing
}
