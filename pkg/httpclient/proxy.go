package httpclient

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/proxy"
)

// Proxy parsing and SOCKS dialing for side fetches. HTTP CONNECT
// proxies ride http.Transport.Proxy; SOCKS needs its own dialer.
//
// Accepted schemes:
//   - http://, https://  CONNECT proxy
//   - socks5://          SOCKS5, names resolved locally
//   - socks5h://         SOCKS5, names resolved by the proxy

var proxySchemes = map[string]bool{
	"http":    true,
	"https":   true,
	"socks5":  true,
	"socks5h": true,
}

// ProxyConfig is a validated proxy target.
type ProxyConfig struct {
	URL      *url.URL
	Scheme   string
	Host     string
	Port     string
	Username string
	Password string
	IsSOCKS  bool

	// RemoteDNS marks socks5h, where the proxy resolves names. Keeps
	// target hostnames off the local resolver entirely.
	RemoteDNS bool
}

// ParseProxyURL validates raw and fills in scheme and port defaults.
// Empty input means no proxy and returns nil, nil. A bare host:port
// gets an http:// scheme.
func ParseProxyURL(raw string) (*ProxyConfig, error) {
	if raw == "" {
		return nil, nil
	}

	if !strings.Contains(raw, "://") {
		raw = "http://" + raw
	}

	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("httpclient: invalid proxy url: %w", err)
	}

	scheme := strings.ToLower(u.Scheme)
	if !proxySchemes[scheme] {
		return nil, fmt.Errorf("httpclient: unsupported proxy scheme %q (want http, https, socks5, or socks5h)", scheme)
	}

	host := u.Hostname()
	if host == "" {
		return nil, fmt.Errorf("httpclient: proxy url %q has no host", raw)
	}
	port := u.Port()
	if port == "" {
		switch scheme {
		case "http":
			port = "8080"
		case "https":
			port = "8443"
		default:
			port = "1080"
		}
	}

	pc := &ProxyConfig{
		URL:       u,
		Scheme:    scheme,
		Host:      host,
		Port:      port,
		IsSOCKS:   strings.HasPrefix(scheme, "socks"),
		RemoteDNS: scheme == "socks5h",
	}
	if u.User != nil {
		pc.Username = u.User.Username()
		pc.Password, _ = u.User.Password()
	}
	return pc, nil
}

// Address returns the proxy as host:port for dialing.
func (p *ProxyConfig) Address() string {
	if p == nil {
		return ""
	}
	return net.JoinHostPort(p.Host, p.Port)
}

// ValidateProxyURL reports whether raw would be accepted by New.
// Config validation calls this so a bad proxy fails before the scan
// starts rather than on the first fetch.
func ValidateProxyURL(raw string) error {
	_, err := ParseProxyURL(raw)
	return err
}

// socksDialer tunnels dials through a SOCKS5 proxy. With a cache set,
// target names are resolved locally first (socks5 semantics); without
// one the hostname goes to the proxy (socks5h).
type socksDialer struct {
	dialer    proxy.ContextDialer
	proxyAddr string
	timeout   time.Duration
	cache     *DNSCache
}

// newSOCKSDialer builds the transport dialer for pc. The x/net dialer
// has no timeout of its own, so dials run under a deadline context.
func newSOCKSDialer(pc *ProxyConfig, timeout time.Duration, cache *DNSCache) (*socksDialer, error) {
	u := &url.URL{Scheme: "socks5", Host: pc.Address()}
	if pc.Username != "" {
		u.User = url.UserPassword(pc.Username, pc.Password)
	}

	d, err := proxy.FromURL(u, proxy.Direct)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProxyConnect, err)
	}
	cd, ok := d.(proxy.ContextDialer)
	if !ok {
		return nil, fmt.Errorf("%w: dialer for %s does not support contexts", ErrProxyConnect, pc.Address())
	}

	return &socksDialer{dialer: cd, proxyAddr: pc.Address(), timeout: timeout, cache: cache}, nil
}

func (s *socksDialer) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	host, port, splitErr := net.SplitHostPort(address)
	if s.cache != nil && splitErr == nil && net.ParseIP(host) == nil {
		ips, err := s.cache.LookupHost(ctx, host)
		if err != nil {
			return nil, err
		}
		var lastErr error
		for _, ip := range ips {
			conn, err := s.dialer.DialContext(ctx, network, net.JoinHostPort(ip.String(), port))
			if err == nil {
				return conn, nil
			}
			lastErr = err
		}
		s.cache.Invalidate(host)
		return nil, fmt.Errorf("%w: %s via %s: %v", ErrProxyConnect, address, s.proxyAddr, lastErr)
	}

	conn, err := s.dialer.DialContext(ctx, network, address)
	if err != nil {
		return nil, fmt.Errorf("%w: %s via %s: %v", ErrProxyConnect, address, s.proxyAddr, err)
	}
	return conn, nil
}
