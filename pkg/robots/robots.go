// Package robots fetches, parses, and caches per-origin robots.txt
// policies. The cache applies a fixed TTL and a bounded entry count
// with oldest-inserted eviction.
//
// Policy retrieval is deliberately forgiving: any fetch failure,
// non-200 status, or parse problem yields an allow-all policy. A scan
// must never die because a robots.txt was unreachable.
package robots

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/temoto/robotstxt"

	"github.com/sitehawk/sitehawk/pkg/defaults"
	"github.com/sitehawk/sitehawk/pkg/urlnorm"
)

// entry is one cached origin policy. A nil data means allow-all
// (fetch failed or the origin publishes no rules).
type entry struct {
	data      *robotstxt.RobotsData
	expiresAt time.Time
}

// Options configures a Cache. Zero values fall back to package
// defaults; Now is injectable so tests control expiry.
type Options struct {
	Client     *http.Client
	TTL        time.Duration
	MaxEntries int
	Now        func() time.Time
}

// Cache is a bounded per-origin robots policy cache. Safe for
// concurrent use.
type Cache struct {
	client     *http.Client
	ttl        time.Duration
	maxEntries int
	now        func() time.Time

	mu      sync.Mutex
	entries map[string]*entry
	order   []string // origins in insertion order, oldest first
}

// NewCache creates a Cache with the given options.
func NewCache(opts Options) *Cache {
	c := &Cache{
		client:     opts.Client,
		ttl:        opts.TTL,
		maxEntries: opts.MaxEntries,
		now:        opts.Now,
		entries:    make(map[string]*entry),
	}
	if c.client == nil {
		c.client = &http.Client{Timeout: defaults.RobotsTimeout}
	}
	if c.ttl <= 0 {
		c.ttl = defaults.RobotsTTL
	}
	if c.maxEntries <= 0 {
		c.maxEntries = defaults.RobotsCacheSize
	}
	if c.now == nil {
		c.now = time.Now
	}
	return c
}

// IsAllowed reports whether userAgent may fetch rawURL under the
// origin's robots policy. It never returns an error: malformed input,
// fetch failures, and parser trouble all default to allow.
func (c *Cache) IsAllowed(ctx context.Context, rawURL, userAgent string) bool {
	origin, err := urlnorm.Origin(rawURL)
	if err != nil {
		return true
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return true
	}
	path := u.EscapedPath()
	if path == "" {
		path = "/"
	}
	if u.RawQuery != "" {
		path += "?" + u.RawQuery
	}

	data := c.policy(ctx, origin, userAgent)
	if data == nil {
		return true
	}
	return data.FindGroup(userAgent).Test(path)
}

// policy returns the cached robots data for origin, fetching and
// inserting it on miss or expiry.
func (c *Cache) policy(ctx context.Context, origin, userAgent string) *robotstxt.RobotsData {
	c.mu.Lock()
	if e, ok := c.entries[origin]; ok && c.now().Before(e.expiresAt) {
		data := e.data
		c.mu.Unlock()
		return data
	}
	c.mu.Unlock()

	// Fetch outside the lock so a slow origin does not stall lookups
	// for every other origin.
	data := c.fetch(ctx, origin, userAgent)

	c.mu.Lock()
	c.store(origin, data)
	c.mu.Unlock()
	return data
}

// store inserts or refreshes an entry. A refresh counts as a new
// insertion: the origin moves to the back of the eviction order.
// Caller holds c.mu.
func (c *Cache) store(origin string, data *robotstxt.RobotsData) {
	if _, ok := c.entries[origin]; ok {
		c.removeFromOrder(origin)
	} else if len(c.entries) >= c.maxEntries {
		oldest := c.order[0]
		c.order = c.order[1:]
		delete(c.entries, oldest)
		logrus.Debugf("robots: evicted policy for %s (cache full)", oldest)
	}
	c.entries[origin] = &entry{data: data, expiresAt: c.now().Add(c.ttl)}
	c.order = append(c.order, origin)
}

func (c *Cache) removeFromOrder(origin string) {
	for i, o := range c.order {
		if o == origin {
			c.order = append(c.order[:i], c.order[i+1:]...)
			return
		}
	}
}

// fetch retrieves and parses {origin}/robots.txt. Returns nil (allow
// all) for any status other than 200 or any transport/parse error.
func (c *Cache) fetch(ctx context.Context, origin, userAgent string) *robotstxt.RobotsData {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, origin+"/robots.txt", nil)
	if err != nil {
		return nil
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", defaults.AcceptAll)

	resp, err := c.client.Do(req)
	if err != nil {
		logrus.Debugf("robots: fetch %s/robots.txt failed: %v", origin, err)
		return nil
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		logrus.Debugf("robots: %s/robots.txt returned %d, treating as allow-all", origin, resp.StatusCode)
		return nil
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, defaults.BodyAnalysisMax))
	if err != nil {
		return nil
	}
	data, err := robotstxt.FromBytes(body)
	if err != nil {
		logrus.Debugf("robots: parse %s/robots.txt failed: %v", origin, err)
		return nil
	}
	return data
}

// Len returns the number of cached origins.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
