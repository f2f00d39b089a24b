// Package urlnorm canonicalizes URLs into the stable form the crawler
// uses as its deduplication key. Normalization is deterministic and
// idempotent: feeding a normalized URL back in returns it unchanged.
package urlnorm

import (
	"errors"
	"fmt"
	"net/url"
	"path"
	"strings"
)

// ErrInvalidURL is returned for input that does not parse as an
// absolute http or https URL.
var ErrInvalidURL = errors.New("urlnorm: not an absolute http(s) url")

// Normalize canonicalizes rawURL: lower-cases the host, strips the
// default port for the scheme, removes the fragment, resolves . and ..
// path segments, and gives an empty path a trailing "/". Anything that
// is not an absolute http(s) URL is rejected.
func Normalize(rawURL string) (string, error) {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return "", fmt.Errorf("%w: empty input", ErrInvalidURL)
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("%w: scheme %q", ErrInvalidURL, u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("%w: missing host", ErrInvalidURL)
	}

	u.Host = strings.ToLower(u.Host)
	host, port := u.Hostname(), u.Port()
	if (u.Scheme == "http" && port == "80") || (u.Scheme == "https" && port == "443") {
		if strings.Contains(host, ":") {
			// IPv6 literals keep their brackets.
			u.Host = "[" + host + "]"
		} else {
			u.Host = host
		}
	}

	u.Fragment = ""
	u.RawFragment = ""

	if u.Path == "" {
		u.Path = "/"
	} else {
		cleaned := path.Clean(u.Path)
		// path.Clean drops a trailing slash; /a/b/ and /a/b are
		// different resources, so put it back.
		if strings.HasSuffix(u.Path, "/") && cleaned != "/" {
			cleaned += "/"
		}
		u.Path = cleaned
		u.RawPath = ""
	}

	return u.String(), nil
}

// WellFormed reports whether rawURL normalizes cleanly.
func WellFormed(rawURL string) bool {
	_, err := Normalize(rawURL)
	return err == nil
}

// SameOrigin reports whether a and b share scheme and host. Path and
// query are irrelevant. Either input failing to normalize means false.
func SameOrigin(a, b string) bool {
	oa, err := Origin(a)
	if err != nil {
		return false
	}
	ob, err := Origin(b)
	if err != nil {
		return false
	}
	return oa == ob
}

// Origin returns the scheme://host[:port] prefix of rawURL in
// normalized form. This is the scope key for robots policies and the
// crawl boundary.
func Origin(rawURL string) (string, error) {
	norm, err := Normalize(rawURL)
	if err != nil {
		return "", err
	}
	u, err := url.Parse(norm)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	return u.Scheme + "://" + u.Host, nil
}

// Resolve interprets href relative to base and normalizes the result.
// Absolute hrefs pass through Normalize untouched by base.
func Resolve(base, href string) (string, error) {
	b, err := url.Parse(strings.TrimSpace(base))
	if err != nil {
		return "", fmt.Errorf("%w: bad base: %v", ErrInvalidURL, err)
	}
	ref, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return "", fmt.Errorf("%w: bad href: %v", ErrInvalidURL, err)
	}
	return Normalize(b.ResolveReference(ref).String())
}
