package httpclient

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/sitehawk/sitehawk/pkg/defaults"
)

// DNSCache memoizes host lookups for the side-fetch transport. A crawl
// lands robots, favicon, and scripted check requests on the same few
// hosts; one lookup covers all of them. Failed lookups are cached with
// a shorter TTL so a dead host costs one resolver round trip, not one
// per fetch.
type DNSCache struct {
	resolver    *net.Resolver
	ttl         time.Duration
	negativeTTL time.Duration

	mu      sync.RWMutex
	entries map[string]dnsEntry

	stop     chan struct{}
	stopOnce sync.Once
}

type dnsEntry struct {
	ips     []net.IP
	err     error
	expires time.Time
}

// NewDNSCache builds a cache and starts a background sweep that drops
// expired entries every 2*ttl. Call Close to stop it.
func NewDNSCache(ttl, negativeTTL time.Duration) *DNSCache {
	c := &DNSCache{
		resolver:    &net.Resolver{PreferGo: true},
		ttl:         ttl,
		negativeTTL: negativeTTL,
		entries:     make(map[string]dnsEntry),
		stop:        make(chan struct{}),
	}
	go c.sweep(2 * ttl)
	return c
}

// Close stops the background sweep. Safe to call more than once.
func (c *DNSCache) Close() {
	c.stopOnce.Do(func() { close(c.stop) })
}

func (c *DNSCache) sweep(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-c.stop:
			return
		case now := <-ticker.C:
			c.mu.Lock()
			for host, e := range c.entries {
				if now.After(e.expires) {
					delete(c.entries, host)
				}
			}
			c.mu.Unlock()
		}
	}
}

// LookupHost returns the cached addresses for host, resolving on a
// miss. Lookup failures come back wrapped in ErrDNS.
func (c *DNSCache) LookupHost(ctx context.Context, host string) ([]net.IP, error) {
	c.mu.RLock()
	e, ok := c.entries[host]
	c.mu.RUnlock()
	if ok && time.Now().Before(e.expires) {
		return e.ips, e.err
	}

	// Resolve without holding the lock. Two goroutines racing on a
	// cold host both hit the resolver and the last write wins, which
	// is fine at side-fetch volumes.
	addrs, err := c.resolver.LookupHost(ctx, host)
	if err != nil {
		// A canceled context is the caller's deadline expiring, not
		// the host failing. Do not poison the cache with it.
		if ctx.Err() != nil {
			return nil, err
		}
		err = fmt.Errorf("%w: %s: %v", ErrDNS, host, err)
		c.store(host, dnsEntry{err: err, expires: time.Now().Add(c.negativeTTL)})
		return nil, err
	}

	ips := make([]net.IP, 0, len(addrs))
	for _, a := range addrs {
		if ip := net.ParseIP(a); ip != nil {
			ips = append(ips, ip)
		}
	}
	if len(ips) == 0 {
		err := fmt.Errorf("%w: %s: resolver returned no usable addresses", ErrDNS, host)
		c.store(host, dnsEntry{err: err, expires: time.Now().Add(c.negativeTTL)})
		return nil, err
	}

	c.store(host, dnsEntry{ips: ips, expires: time.Now().Add(c.ttl)})
	return ips, nil
}

func (c *DNSCache) store(host string, e dnsEntry) {
	c.mu.Lock()
	c.entries[host] = e
	c.mu.Unlock()
}

// Invalidate drops a host so the next lookup resolves fresh.
func (c *DNSCache) Invalidate(host string) {
	c.mu.Lock()
	delete(c.entries, host)
	c.mu.Unlock()
}

// Len reports how many hosts are cached, expired entries included.
func (c *DNSCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

var (
	sharedDNS     *DNSCache
	sharedDNSOnce sync.Once
)

// sharedDNSCache backs every client built with caching enabled. It
// lives for the process; its sweep goroutine is the only cost.
func sharedDNSCache() *DNSCache {
	sharedDNSOnce.Do(func() {
		sharedDNS = NewDNSCache(defaults.DNSCacheTTL, defaults.DNSCacheNegativeTTL)
	})
	return sharedDNS
}

// CachingDialer is a net.Dialer front end that resolves through a
// DNSCache. Its DialContext drops into http.Transport.
type CachingDialer struct {
	cache  *DNSCache
	dialer *net.Dialer
}

// NewCachingDialer wraps cache with a dialer using dialTimeout.
func NewCachingDialer(cache *DNSCache, dialTimeout time.Duration) *CachingDialer {
	return &CachingDialer{
		cache:  cache,
		dialer: &net.Dialer{Timeout: dialTimeout, KeepAlive: 30 * time.Second},
	}
}

// DialContext connects to address, resolving its host through the
// cache. IP literals and unsplittable addresses fall through to a
// plain dial. When every resolved address fails to connect, the cache
// entry is dropped so the next attempt re-resolves instead of
// replaying a stale record.
func (d *CachingDialer) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	host, port, err := net.SplitHostPort(address)
	if err != nil {
		return d.dialer.DialContext(ctx, network, address)
	}
	if ip := net.ParseIP(host); ip != nil {
		return d.dialer.DialContext(ctx, network, address)
	}

	ips, err := d.cache.LookupHost(ctx, host)
	if err != nil {
		return nil, err
	}

	var lastErr error
	for _, ip := range ips {
		conn, err := d.dialer.DialContext(ctx, network, net.JoinHostPort(ip.String(), port))
		if err == nil {
			return conn, nil
		}
		lastErr = err
	}

	d.cache.Invalidate(host)
	if lastErr == nil {
		lastErr = fmt.Errorf("httpclient: no addresses to dial for %s", host)
	}
	return nil, lastErr
}
