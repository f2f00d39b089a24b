package urlnorm

import (
	"strings"
	"testing"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"plain", "https://example.com/path", "https://example.com/path"},
		{"empty path gets slash", "https://example.com", "https://example.com/"},
		{"host lowercased", "https://EXAMPLE.COM/Path", "https://example.com/Path"},
		{"scheme lowercased", "HTTPS://example.com/", "https://example.com/"},
		{"default https port stripped", "https://example.com:443/x", "https://example.com/x"},
		{"default http port stripped", "http://example.com:80/x", "http://example.com/x"},
		{"custom port kept", "https://example.com:8443/x", "https://example.com:8443/x"},
		{"fragment removed", "https://example.com/page#section", "https://example.com/page"},
		{"fragment only", "https://example.com/#top", "https://example.com/"},
		{"dot segments resolved", "https://example.com/a/./b/../c", "https://example.com/a/c"},
		{"leading dotdot clamped", "https://example.com/../x", "https://example.com/x"},
		{"trailing slash kept", "https://example.com/dir/", "https://example.com/dir/"},
		{"query kept", "https://example.com/p?a=1&b=2", "https://example.com/p?a=1&b=2"},
		{"whitespace trimmed", "  https://example.com/  ", "https://example.com/"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Normalize(tt.input)
			if err != nil {
				t.Fatalf("Normalize(%q) error: %v", tt.input, err)
			}
			if got != tt.expected {
				t.Errorf("Normalize(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestNormalizeRejects(t *testing.T) {
	inputs := []string{
		"",
		"   ",
		"ftp://example.com/",
		"javascript:void(0)",
		"mailto:a@example.com",
		"tel:+15551234",
		"data:text/html,hi",
		"//example.com/protocol-relative",
		"/just/a/path",
		"example.com/no-scheme",
		"#fragment",
		"http://",
	}
	for _, in := range inputs {
		if _, err := Normalize(in); err == nil {
			t.Errorf("Normalize(%q) should fail", in)
		}
		if WellFormed(in) {
			t.Errorf("WellFormed(%q) should be false", in)
		}
	}
}

// Normalization must be idempotent: the visited set depends on the
// output being a stable key.
func TestNormalizeIdempotent(t *testing.T) {
	inputs := []string{
		"https://Example.com:443/a/../b/#frag",
		"http://example.com",
		"https://example.com/dir/?q=1",
		"http://example.com:8080/x/./y",
	}
	for _, in := range inputs {
		once, err := Normalize(in)
		if err != nil {
			t.Fatalf("Normalize(%q): %v", in, err)
		}
		twice, err := Normalize(once)
		if err != nil {
			t.Fatalf("Normalize(Normalize(%q)): %v", in, err)
		}
		if once != twice {
			t.Errorf("not idempotent: %q -> %q -> %q", in, once, twice)
		}
	}
}

func TestSameOrigin(t *testing.T) {
	tests := []struct {
		a, b string
		want bool
	}{
		{"https://example.com/a", "https://example.com/b?q=1", true},
		{"https://EXAMPLE.com/", "https://example.com/deep/path", true},
		{"https://example.com:443/", "https://example.com/", true},
		{"http://example.com/", "https://example.com/", false},
		{"https://example.com/", "https://sub.example.com/", false},
		{"https://example.com/", "https://example.com:8443/", false},
		{"https://example.com/", "not a url", false},
		{"", "https://example.com/", false},
	}
	for _, tt := range tests {
		if got := SameOrigin(tt.a, tt.b); got != tt.want {
			t.Errorf("SameOrigin(%q, %q) = %v, want %v", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestOrigin(t *testing.T) {
	got, err := Origin("https://Example.com:443/deep/page?x=1#f")
	if err != nil {
		t.Fatalf("Origin: %v", err)
	}
	if got != "https://example.com" {
		t.Errorf("Origin = %q, want %q", got, "https://example.com")
	}

	got, err = Origin("http://example.com:8080/x")
	if err != nil {
		t.Fatalf("Origin: %v", err)
	}
	if got != "http://example.com:8080" {
		t.Errorf("Origin = %q, want %q", got, "http://example.com:8080")
	}

	if _, err := Origin("ftp://example.com/"); err == nil {
		t.Error("Origin should reject non-http schemes")
	}
}

func TestResolve(t *testing.T) {
	tests := []struct {
		base, href, want string
	}{
		{"https://example.com/dir/page.html", "other.html", "https://example.com/dir/other.html"},
		{"https://example.com/dir/", "../up", "https://example.com/up"},
		{"https://example.com/a", "/rooted", "https://example.com/rooted"},
		{"https://example.com/a", "https://other.com/abs", "https://other.com/abs"},
	}
	for _, tt := range tests {
		got, err := Resolve(tt.base, tt.href)
		if err != nil {
			t.Fatalf("Resolve(%q, %q): %v", tt.base, tt.href, err)
		}
		if got != tt.want {
			t.Errorf("Resolve(%q, %q) = %q, want %q", tt.base, tt.href, got, tt.want)
		}
	}

	if _, err := Resolve("https://example.com/", "javascript:void(0)"); err == nil {
		t.Error("Resolve should reject javascript hrefs")
	}
}

func TestNormalizeIPv6(t *testing.T) {
	got, err := Normalize("https://[2001:db8::1]:443/x")
	if err != nil {
		t.Fatalf("Normalize ipv6: %v", err)
	}
	if !strings.Contains(got, "[2001:db8::1]") {
		t.Errorf("ipv6 brackets lost: %q", got)
	}
	if strings.Contains(got, ":443") {
		t.Errorf("default port not stripped: %q", got)
	}
}
