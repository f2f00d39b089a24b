// Package safety is the crawler's pre-flight SSRF guard. Every URL the
// engine is about to fetch, whether operator-supplied or discovered on
// a crawled page, passes Check first. A compromised target can link to
// internal infrastructure with ordinary anchors, so discovered URLs get
// no more trust than the seed.
package safety

import (
	"net"
	"net/url"
	"strings"
)

// Verdict is the result of a safety check. Reason is set only when
// Safe is false.
type Verdict struct {
	Safe   bool   `json:"safe"`
	Reason string `json:"reason,omitempty"`
}

// blockedHosts are exact hostname matches that always fail.
var blockedHosts = map[string]struct{}{
	"localhost": {},
	"127.0.0.1": {},
	"0.0.0.0":   {},
	"0":         {},
	"::1":       {},
	"::":        {},
	// Cloud metadata endpoints reachable by name or address.
	"169.254.169.254": {},
	"100.100.100.200": {},
	"192.0.0.192":     {},
	"fd00:ec2::254":   {},
	"metadata.google.internal": {},
}

// blockedSuffixes are reserved internal name suffixes.
var blockedSuffixes = []string{".local", ".internal", ".localhost"}

// blockedNets are the private, loopback, link-local, and unspecified
// ranges the crawler must never touch.
var blockedNets []*net.IPNet

func init() {
	for _, cidr := range []string{
		"10.0.0.0/8",
		"172.16.0.0/12",
		"192.168.0.0/16",
		"169.254.0.0/16",
		"127.0.0.0/8",
		"0.0.0.0/8",
		"100.64.0.0/10", // carrier-grade NAT
		"::1/128",
		"::/128",
		"fe80::/10",
		"fc00::/7",
	} {
		_, n, err := net.ParseCIDR(cidr)
		if err != nil {
			panic("safety: bad builtin cidr " + cidr)
		}
		blockedNets = append(blockedNets, n)
	}
}

// Check validates rawURL for outbound fetching. It rejects non-http(s)
// schemes, known-internal hostnames and suffixes, addresses inside
// private or link-local ranges, and numeric host encodings that a
// browser would silently expand to an IP (decimal, hex, octal,
// shortened dotted forms).
func Check(rawURL string) Verdict {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return Verdict{Safe: false, Reason: "unparseable url"}
	}

	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return Verdict{Safe: false, Reason: "scheme " + scheme + " not allowed"}
	}

	host := strings.ToLower(u.Hostname())
	if host == "" {
		return Verdict{Safe: false, Reason: "missing host"}
	}

	if _, ok := blockedHosts[host]; ok {
		return Verdict{Safe: false, Reason: "blocked host " + host}
	}

	for _, suffix := range blockedSuffixes {
		if strings.HasSuffix(host, suffix) {
			return Verdict{Safe: false, Reason: "reserved suffix " + suffix}
		}
	}

	if ip := net.ParseIP(host); ip != nil {
		for _, n := range blockedNets {
			if n.Contains(ip) {
				return Verdict{Safe: false, Reason: "address " + host + " in blocked range " + n.String()}
			}
		}
		return Verdict{Safe: true}
	}

	// Hosts like 2130706433, 0x7f000001, or 127.1 fail net.ParseIP but
	// browsers expand them to loopback. Reject the whole class instead
	// of reimplementing inet_aton.
	if numericHost(host) {
		return Verdict{Safe: false, Reason: "ambiguous numeric host " + host}
	}

	return Verdict{Safe: true}
}

// numericHost reports whether every dot-separated label of host is a
// decimal, hex, or octal number.
func numericHost(host string) bool {
	for _, label := range strings.Split(host, ".") {
		if label == "" || !numericLabel(label) {
			return false
		}
	}
	return true
}

func numericLabel(label string) bool {
	if strings.HasPrefix(label, "0x") || strings.HasPrefix(label, "0X") {
		label = label[2:]
		if label == "" {
			return false
		}
		for _, r := range label {
			if !isHexDigit(r) {
				return false
			}
		}
		return true
	}
	for _, r := range label {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func isHexDigit(r rune) bool {
	return (r >= '0' && r <= '9') || (r >= 'a' && r <= 'f') || (r >= 'A' && r <= 'F')
}
