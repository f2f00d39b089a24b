// Package httpclient builds the HTTP client behind the crawler's side
// fetches. Page loads belong to the browser; robots.txt, favicons, and
// scripted check requests come through here. The factory hands out
// pooled transports with a shared DNS cache, proxy support, and an
// optional browser-fingerprint TLS handshake for origins that serve
// bots a different site than they serve browsers.
package httpclient

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	utls "github.com/refraction-networking/utls"
	"github.com/sitehawk/sitehawk/pkg/defaults"
)

// Config holds side-fetch client settings.
type Config struct {
	// Timeout is the total request timeout.
	Timeout time.Duration

	// UserAgent is sent on every request. Defaults to the crawler
	// identity, which is also what the robots.txt rules are matched
	// against.
	UserAgent string

	// InsecureSkipVerify disables TLS certificate verification. Off by
	// default; an auditor should see the certificate problems a
	// visitor sees.
	InsecureSkipVerify bool

	// Proxy routes side fetches through an http, https, socks5, or
	// socks5h proxy. Empty means direct. The browser gets the same
	// proxy through a Chrome flag, so both halves of a scan exit the
	// same way.
	Proxy string

	// ClientHello selects a browser TLS fingerprint for the handshake:
	// "chrome", "firefox", "safari", or "edge". Empty uses the stock
	// Go handshake. CDNs that profile TLS clients can serve a bot a
	// different site; fetching with a browser hello keeps the robots
	// and favicon view consistent with what the headless Chrome sees.
	// Cannot be combined with an http proxy; use socks5.
	ClientHello string

	// DisableDNSCache bypasses the shared resolver cache.
	DisableDNSCache bool

	// MaxIdleConns caps idle connections across all hosts.
	MaxIdleConns int

	// MaxConnsPerHost caps connections per host.
	MaxConnsPerHost int

	// IdleConnTimeout is how long idle connections stay pooled.
	IdleConnTimeout time.Duration

	// DialTimeout bounds TCP connect.
	DialTimeout time.Duration

	// TLSHandshakeTimeout bounds the TLS handshake.
	TLSHandshakeTimeout time.Duration
}

// DefaultConfig returns the settings a polite crawler wants: short
// timeouts, a small pool, certificate verification on.
func DefaultConfig() Config {
	return Config{
		Timeout:             defaults.SideFetchTimeout,
		UserAgent:           defaults.UABot,
		MaxIdleConns:        defaults.MaxIdleConns,
		MaxConnsPerHost:     defaults.MaxConnsPerHost,
		IdleConnTimeout:     defaults.IdleConnTimeout,
		DialTimeout:         defaults.DialTimeout,
		TLSHandshakeTimeout: defaults.TLSHandshakeTimeout,
	}
}

var (
	defaultClient *http.Client
	defaultOnce   sync.Once
)

// Default returns the shared side-fetch client. Safe for concurrent
// use; prefer it over New when the defaults fit, so connections get
// reused across packages.
func Default() *http.Client {
	defaultOnce.Do(func() {
		// DefaultConfig carries no proxy and no hello profile, the
		// only two things New can reject.
		defaultClient, _ = New(DefaultConfig())
	})
	return defaultClient
}

// New builds a client from cfg. Zero-value fields get defaults. It
// fails on a malformed proxy URL, an unknown ClientHello name, or a
// hello profile combined with an http proxy.
func New(cfg Config) (*http.Client, error) {
	if cfg.Timeout == 0 {
		cfg.Timeout = defaults.SideFetchTimeout
	}
	if cfg.MaxIdleConns == 0 {
		cfg.MaxIdleConns = defaults.MaxIdleConns
	}
	if cfg.MaxConnsPerHost == 0 {
		cfg.MaxConnsPerHost = defaults.MaxConnsPerHost
	}
	if cfg.IdleConnTimeout == 0 {
		cfg.IdleConnTimeout = defaults.IdleConnTimeout
	}
	if cfg.DialTimeout == 0 {
		cfg.DialTimeout = defaults.DialTimeout
	}
	if cfg.TLSHandshakeTimeout == 0 {
		cfg.TLSHandshakeTimeout = defaults.TLSHandshakeTimeout
	}

	pxy, err := ParseProxyURL(cfg.Proxy)
	if err != nil {
		return nil, err
	}

	profile, err := helloProfile(cfg.ClientHello)
	if err != nil {
		return nil, err
	}
	if profile != nil && pxy != nil && !pxy.IsSOCKS {
		// With Transport.Proxy set, DialTLSContext never runs for
		// CONNECT tunnels, so the profile would be silently ignored.
		return nil, fmt.Errorf("httpclient: client hello %q cannot ride an http proxy, use socks5", cfg.ClientHello)
	}

	var dial dialContextFunc
	if cfg.DisableDNSCache {
		d := &net.Dialer{Timeout: cfg.DialTimeout, KeepAlive: 30 * time.Second}
		dial = d.DialContext
	} else {
		dial = NewCachingDialer(sharedDNSCache(), cfg.DialTimeout).DialContext
	}

	transport := &http.Transport{
		MaxIdleConns:          cfg.MaxIdleConns,
		MaxIdleConnsPerHost:   cfg.MaxConnsPerHost,
		MaxConnsPerHost:       cfg.MaxConnsPerHost,
		IdleConnTimeout:       cfg.IdleConnTimeout,
		ForceAttemptHTTP2:     true,
		ExpectContinueTimeout: 1 * time.Second,
		TLSHandshakeTimeout:   cfg.TLSHandshakeTimeout,
		DialContext:           dial,
		TLSClientConfig: &tls.Config{
			InsecureSkipVerify: cfg.InsecureSkipVerify,
		},
	}

	if pxy != nil {
		if pxy.IsSOCKS {
			var cache *DNSCache
			if !cfg.DisableDNSCache && !pxy.RemoteDNS {
				cache = sharedDNSCache()
			}
			sd, err := newSOCKSDialer(pxy, cfg.DialTimeout, cache)
			if err != nil {
				return nil, err
			}
			transport.DialContext = sd.DialContext
			dial = sd.DialContext
		} else {
			transport.Proxy = http.ProxyURL(pxy.URL)
		}
	}

	if profile != nil {
		transport.DialTLSContext = dialTLS(dial, profile, cfg.InsecureSkipVerify)
		// utls owns the handshake and the transport cannot see the
		// negotiated protocol, so stay on HTTP/1.1.
		transport.ForceAttemptHTTP2 = false
	}

	return &http.Client{
		Transport: transport,
		Timeout:   cfg.Timeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= defaults.SideFetchRedirectMax {
				return fmt.Errorf("stopped after %d redirects", defaults.SideFetchRedirectMax)
			}
			return nil
		},
	}, nil
}

// WithTimeout returns DefaultConfig with the timeout replaced. The
// common case for robots and favicon fetches.
func WithTimeout(timeout time.Duration) Config {
	cfg := DefaultConfig()
	cfg.Timeout = timeout
	return cfg
}

// WithProxy returns DefaultConfig with a proxy set.
func WithProxy(proxyURL string) Config {
	cfg := DefaultConfig()
	cfg.Proxy = proxyURL
	return cfg
}

type dialContextFunc func(ctx context.Context, network, addr string) (net.Conn, error)

// helloProfiles maps config names to utls fingerprints. Versions track
// what current browser releases actually send.
var helloProfiles = map[string]*utls.ClientHelloID{
	"chrome":  &utls.HelloChrome_120,
	"firefox": &utls.HelloFirefox_120,
	"safari":  &utls.HelloSafari_16_0,
	"edge":    &utls.HelloEdge_106,
}

func helloProfile(name string) (*utls.ClientHelloID, error) {
	if name == "" {
		return nil, nil
	}
	p, ok := helloProfiles[strings.ToLower(name)]
	if !ok {
		return nil, fmt.Errorf("httpclient: unknown client hello profile %q (have %s)", name, strings.Join(Profiles(), ", "))
	}
	return p, nil
}

// Profiles lists the selectable client hello names.
func Profiles() []string {
	names := make([]string, 0, len(helloProfiles))
	for name := range helloProfiles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// dialTLS returns a DialTLSContext that completes the handshake with a
// browser fingerprint instead of the stock Go client hello.
func dialTLS(dial dialContextFunc, profile *utls.ClientHelloID, skipVerify bool) dialContextFunc {
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		raw, err := dial(ctx, network, addr)
		if err != nil {
			return nil, err
		}

		host, _, err := net.SplitHostPort(addr)
		if err != nil {
			host = addr
		}

		tcfg := &utls.Config{InsecureSkipVerify: skipVerify}
		// SNI carries names only. An IP target with verification on
		// fails the handshake below, which is the honest outcome.
		if net.ParseIP(host) == nil {
			tcfg.ServerName = host
		}

		uconn := utls.UClient(raw, tcfg, *profile)
		if err := uconn.Handshake(); err != nil {
			raw.Close()
			return nil, fmt.Errorf("%w: %s: %v", ErrTLS, host, err)
		}
		return uconn, nil
	}
}

// Fetcher performs bounded single-resource fetches with the crawler's
// request headers. Bodies are read fully and capped, so callers never
// deal with streaming or cleanup.
type Fetcher struct {
	client  *http.Client
	ua      string
	maxBody int64
}

// Response is a fully-read fetch result. Non-2xx statuses come back as
// responses, not errors; the caller decides what a 404 on robots.txt
// means.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// NewFetcher builds a Fetcher from cfg. The zero Config gets defaults.
func NewFetcher(cfg Config) (*Fetcher, error) {
	client, err := New(cfg)
	if err != nil {
		return nil, err
	}
	ua := cfg.UserAgent
	if ua == "" {
		ua = defaults.UABot
	}
	return &Fetcher{client: client, ua: ua, maxBody: defaults.SideFetchBodyMax}, nil
}

// Get fetches rawURL and returns the response with its body read.
func (f *Fetcher) Get(ctx context.Context, rawURL string) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("httpclient: build request for %s: %w", rawURL, err)
	}
	req.Header.Set("User-Agent", f.ua)
	req.Header.Set("Accept", defaults.AcceptAll)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, classifyErr(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBody))
	if err != nil {
		return nil, fmt.Errorf("httpclient: read body of %s: %w", rawURL, err)
	}

	return &Response{StatusCode: resp.StatusCode, Header: resp.Header, Body: body}, nil
}
