// Package defaults provides canonical default values for the entire codebase.
// This is the SINGLE SOURCE OF TRUTH for all runtime configuration defaults.
//
// Usage:
//
//	config.Concurrency = defaults.ConcurrencyMinimal
//	config.MaxPages = defaults.PagesMedium
//	req.Header.Set("Accept", defaults.AcceptHTML)
//
// DO NOT use hardcoded values like `MaxDepth: 3` anywhere.
// Instead, reference the appropriate constant from this package.
package defaults

import (
	"fmt"
	"time"
)

// Version is the current sitehawk version
const Version = "1.2.0"

// ============================================================================
// CONCURRENCY SETTINGS
// ============================================================================
//
// Use these for the crawl worker pool. The crawler drives real browser
// tabs, so aggressive values burn memory fast.
// ============================================================================

const (
	// ConcurrencyMinimal is a single worker, the safest default (1)
	ConcurrencyMinimal = 1

	// ConcurrencyLow is for gentle scans of small sites (2)
	ConcurrencyLow = 2

	// ConcurrencyMedium is for standard scans (4)
	ConcurrencyMedium = 4

	// ConcurrencyHigh is for large sites on beefy hosts (8)
	ConcurrencyHigh = 8

	// ConcurrencyMax caps the worker pool regardless of config (16)
	ConcurrencyMax = 16
)

// ============================================================================
// CRAWL LIMITS
// ============================================================================

const (
	// DepthShallow visits the seed page and its direct links (1)
	DepthShallow = 1

	// DepthDefault is the standard crawl depth (2)
	DepthDefault = 2

	// DepthDeep is for thorough site coverage (4)
	DepthDeep = 4

	// DepthMax caps depth regardless of config (10)
	DepthMax = 10

	// PagesSmall bounds a quick scan (10)
	PagesSmall = 10

	// PagesMedium is the standard page ceiling (50)
	PagesMedium = 50

	// PagesLarge is for full-site assessments (250)
	PagesLarge = 250

	// PagesMax caps the ceiling regardless of config (1000)
	PagesMax = 1000
)

// ============================================================================
// TIMEOUTS AND DELAYS
// ============================================================================

const (
	// NavigationTimeout bounds one page load in the browser
	NavigationTimeout = 30 * time.Second

	// RobotsTimeout bounds one robots.txt fetch
	RobotsTimeout = 5 * time.Second

	// FaviconTimeout bounds one favicon fetch
	FaviconTimeout = 5 * time.Second

	// PolitenessDelay is the per-worker pause between page visits
	PolitenessDelay = 500 * time.Millisecond

	// AuthNavigationWait is how long the authenticator waits after
	// submitting a login form before giving up on navigation
	AuthNavigationWait = 3 * time.Second

	// BrowserShutdownTimeout bounds browser teardown so a hung Chrome
	// process cannot wedge the scan exit path
	BrowserShutdownTimeout = 5 * time.Second
)

// ============================================================================
// ROBOTS POLICY CACHE
// ============================================================================

const (
	// RobotsTTL is how long a parsed robots policy stays fresh
	RobotsTTL = 15 * time.Minute

	// RobotsCacheSize bounds the per-origin policy cache; the
	// oldest-inserted entry is evicted when full
	RobotsCacheSize = 256
)

// ============================================================================
// SIDE-FETCH TRANSPORT
// ============================================================================

// The browser carries the page loads. Everything else the crawler pulls
// over plain HTTP (robots.txt, favicons, scripted check requests) goes
// through pkg/httpclient with these settings.
const (
	// SideFetchTimeout bounds one side fetch end to end
	SideFetchTimeout = 10 * time.Second

	// SideFetchBodyMax caps a side-fetch response body (1MB)
	SideFetchBodyMax = 1024 * 1024

	// SideFetchRedirectMax is how many redirects a side fetch follows
	// before giving up
	SideFetchRedirectMax = 5

	// DialTimeout bounds TCP connect for side fetches
	DialTimeout = 5 * time.Second

	// TLSHandshakeTimeout bounds the TLS handshake for side fetches
	TLSHandshakeTimeout = 5 * time.Second

	// MaxIdleConns and MaxConnsPerHost size the side-fetch connection
	// pool. Side fetches touch one origin at a time, so it stays small.
	MaxIdleConns    = 16
	MaxConnsPerHost = 4

	// IdleConnTimeout is how long pooled connections stay warm
	IdleConnTimeout = 30 * time.Second

	// DNSCacheTTL is how long resolved addresses stay cached
	DNSCacheTTL = 5 * time.Minute

	// DNSCacheNegativeTTL is how long failed lookups stay cached so a
	// dead host does not get re-resolved on every fetch
	DNSCacheNegativeTTL = 30 * time.Second
)

// ============================================================================
// ANALYSIS SETTINGS
// ============================================================================

const (
	// SecurityScoreThreshold is the score below which a page gets a
	// weak-security-headers finding (0-100 scale)
	SecurityScoreThreshold = 70

	// EvidenceSampleMax caps how many matches a single check attaches
	// as evidence
	EvidenceSampleMax = 3

	// EvidenceSnippetLen truncates individual evidence strings
	EvidenceSnippetLen = 120

	// BodyAnalysisMax caps how many bytes of page body the analyzers
	// inspect (1MB)
	BodyAnalysisMax = 1024 * 1024
)

// ============================================================================
// CHANNEL SIZES
// ============================================================================

const (
	// ChannelTiny is for small buffers (10)
	ChannelTiny = 10

	// ChannelSmall is for typical buffers (100)
	ChannelSmall = 100

	// ChannelMedium is for larger buffers (1000)
	ChannelMedium = 1000
)

// ============================================================================
// STORAGE
// ============================================================================

const (
	// DBPath is where scan results land when no path is given
	DBPath = "sitehawk.db"
)

// ============================================================================
// TELEMETRY
// ============================================================================

const (
	// ToolName identifies sitehawk to telemetry backends
	ToolName = "sitehawk"

	// MetricsPort is the default Prometheus scrape port
	MetricsPort = 9090

	// MetricsPath is the default Prometheus scrape path
	MetricsPath = "/metrics"

	// TelemetryShutdownTimeout bounds hook teardown (metrics server
	// shutdown, trace flush)
	TelemetryShutdownTimeout = 5 * time.Second

	// TelemetryConnectTimeout bounds the initial OTLP exporter dial
	TelemetryConnectTimeout = 10 * time.Second
)

// ============================================================================
// HTTP ACCEPT HEADERS
// ============================================================================

const (
	// AcceptAll accepts any content type
	AcceptAll = "*/*"

	// AcceptHTML accepts HTML and related types (standard browser)
	AcceptHTML = "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8"
)

// ============================================================================
// USER AGENTS
// ============================================================================

const (
	// UAChrome is a Chrome user agent for browser emulation
	UAChrome = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

	// UABot is the well-behaved crawler identity used for robots.txt
	UABot = "Mozilla/5.0 (compatible; sitehawk/" + Version + ")"

	// UAMinimal is a minimal user agent
	UAMinimal = "sitehawk/" + Version
)

// UserAgent returns the sitehawk user agent with context
func UserAgent(context string) string {
	if context == "" {
		return UAMinimal
	}
	return fmt.Sprintf("sitehawk/%s (%s)", Version, context)
}
