package fingerprint

import (
	"net/http"
	"testing"
)

func TestAnalyzeFullScore(t *testing.T) {
	headers := http.Header{}
	headers.Set("Content-Security-Policy", "default-src 'self'")
	headers.Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
	headers.Set("X-Frame-Options", "DENY")
	headers.Set("X-Content-Type-Options", "nosniff")
	headers.Set("Referrer-Policy", "no-referrer")
	headers.Set("Permissions-Policy", "geolocation=()")
	headers.Set("X-XSS-Protection", "1; mode=block")

	res := Analyze(headers, "<html></html>")
	if res.SecurityScore != 100 {
		t.Errorf("SecurityScore = %d, want 100", res.SecurityScore)
	}
	if len(res.MissingHeaders()) != 0 {
		t.Errorf("MissingHeaders = %v, want none", res.MissingHeaders())
	}
}

func TestAnalyzeEmptyHeaders(t *testing.T) {
	res := Analyze(http.Header{}, "")
	if res.SecurityScore != 0 {
		t.Errorf("SecurityScore = %d, want 0", res.SecurityScore)
	}
	if len(res.MissingHeaders()) != len(ScoredHeaders()) {
		t.Errorf("all scored headers should be missing, got %v", res.MissingHeaders())
	}
}

// A page missing CSP, X-Frame-Options, and HSTS must land below the
// weak-posture threshold even with every other header in place.
func TestAnalyzeMissingBigThreeBelowThreshold(t *testing.T) {
	headers := http.Header{}
	headers.Set("X-Content-Type-Options", "nosniff")
	headers.Set("Referrer-Policy", "no-referrer")
	headers.Set("Permissions-Policy", "camera=()")
	headers.Set("X-XSS-Protection", "1")

	res := Analyze(headers, "")
	if res.SecurityScore >= 70 {
		t.Errorf("SecurityScore = %d, want < 70", res.SecurityScore)
	}
	if res.SecurityScore != 40 {
		t.Errorf("SecurityScore = %d, want 40", res.SecurityScore)
	}
}

func TestAnalyzeInvalidValuesEarnNothing(t *testing.T) {
	headers := http.Header{}
	headers.Set("X-Frame-Options", "ALLOWALL")
	headers.Set("X-Content-Type-Options", "sniff-away")
	headers.Set("Strict-Transport-Security", "broken")
	headers.Set("X-XSS-Protection", "0")

	res := Analyze(headers, "")
	if res.SecurityScore != 0 {
		t.Errorf("SecurityScore = %d, want 0 for invalid values", res.SecurityScore)
	}
	// Present-but-invalid headers are still recorded as observed.
	if res.SecurityHeaders["X-Frame-Options"] != "ALLOWALL" {
		t.Errorf("observed value lost: %q", res.SecurityHeaders["X-Frame-Options"])
	}
	if len(res.MissingHeaders()) != 3 {
		t.Errorf("MissingHeaders = %v, want the 3 absent ones", res.MissingHeaders())
	}
}

func TestScoredHeaderWeightsSumTo100(t *testing.T) {
	total := 0
	for _, sh := range ScoredHeaders() {
		total += sh.Weight
	}
	if total != 100 {
		t.Errorf("weights sum to %d, want 100", total)
	}
}

func TestMatchSignaturesHeaders(t *testing.T) {
	tests := []struct {
		name   string
		header string
		value  string
		want   string
	}{
		{"nginx server", "Server", "nginx/1.25.3", "nginx"},
		{"apache server", "Server", "Apache/2.4.57 (Debian)", "Apache"},
		{"iis server", "Server", "Microsoft-IIS/10.0", "IIS"},
		{"express powered-by", "X-Powered-By", "Express", "Express"},
		{"php powered-by", "X-Powered-By", "PHP/8.2.1", "PHP"},
		{"aspnet powered-by", "X-Powered-By", "ASP.NET", "ASP.NET"},
		{"laravel cookie", "Set-Cookie", "laravel_session=abc; path=/", "Laravel"},
		{"django cookie", "Set-Cookie", "csrftoken=xyz; Secure", "Django"},
		{"cloudflare ray", "CF-Ray", "8b2f0a-SJC", "Cloudflare"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			headers := http.Header{}
			headers.Set(tt.header, tt.value)
			res := Analyze(headers, "")
			if !hasTech(res, tt.want) {
				t.Errorf("expected %s in %v", tt.want, res.TechnologyNames())
			}
		})
	}
}

func TestMatchSignaturesBody(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"wordpress content dir", `<link href="/wp-content/themes/x/style.css">`, "WordPress"},
		{"nextjs data", `<script id="__NEXT_DATA__" type="application/json">{}</script>`, "Next.js"},
		{"jquery script", `<script src="/js/jquery-3.7.1.min.js"></script>`, "jQuery"},
		{"bootstrap css", `<link rel="stylesheet" href="/css/bootstrap.min.css">`, "Bootstrap"},
		{"viewstate field", `<input type="hidden" name="__VIEWSTATE" value="x">`, "ASP.NET"},
		{"rails token", `<input name="authenticity_token" value="t">`, "Ruby on Rails"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := Analyze(http.Header{}, tt.body)
			if !hasTech(res, tt.want) {
				t.Errorf("expected %s in %v", tt.want, res.TechnologyNames())
			}
		})
	}
}

func TestMatchSignaturesNoDuplicates(t *testing.T) {
	body := `<div class="wp-content/x">` +
		`<script src="/wp-includes/js/a.js"></script>` +
		`<meta name="generator" content="WordPress 6.4">`
	res := Analyze(http.Header{}, body)

	count := 0
	for _, tech := range res.Technologies {
		if tech.Name == "WordPress" {
			count++
		}
	}
	if count != 1 {
		t.Errorf("WordPress reported %d times, want 1", count)
	}
}

func TestAnalyzeCleanPage(t *testing.T) {
	res := Analyze(http.Header{}, "<html><body>plain static page</body></html>")
	if len(res.Technologies) != 0 {
		t.Errorf("expected no technologies, got %v", res.TechnologyNames())
	}
}

func TestHashFavicon(t *testing.T) {
	data := []byte("favicon-bytes")
	h1 := HashFavicon(data)
	h2 := HashFavicon(data)
	if h1 != h2 {
		t.Error("hash must be deterministic")
	}
	if h1 == HashFavicon([]byte("other-bytes")) {
		t.Error("different input should produce a different hash")
	}
}

func TestLookupFavicon(t *testing.T) {
	if tech, ok := LookupFavicon(81586312); !ok || tech.Name != "Jenkins" {
		t.Errorf("LookupFavicon(81586312) = %v, %v", tech, ok)
	}
	if _, ok := LookupFavicon(1); ok {
		t.Error("unknown hash must not match")
	}
}

func hasTech(r Result, name string) bool {
	for _, tech := range r.Technologies {
		if tech.Name == name {
			return true
		}
	}
	return false
}
