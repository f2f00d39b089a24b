// Package config defines the per-run scan configuration. A Scan is
// built from defaults, optionally overlaid with a YAML preset, then
// with command line flags, and validated once before the engine takes
// it. The engine treats it as immutable for the run.
package config

import (
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/sitehawk/sitehawk/pkg/analyzer"
	"github.com/sitehawk/sitehawk/pkg/auth"
	"github.com/sitehawk/sitehawk/pkg/defaults"
	"github.com/sitehawk/sitehawk/pkg/httpclient"
	"github.com/sitehawk/sitehawk/pkg/urlnorm"
	"github.com/sitehawk/sitehawk/presets"
)

// Scan holds everything one traversal run needs beyond the start URL.
type Scan struct {
	// MaxDepth bounds how far from the seed the crawl walks. The seed
	// is depth 0.
	MaxDepth int `json:"max_depth" yaml:"max_depth"`

	// MaxPages is the page-count ceiling across the whole run.
	MaxPages int `json:"max_pages" yaml:"max_pages"`

	// Concurrency is the worker (browser tab) count.
	Concurrency int `json:"concurrency" yaml:"concurrency"`

	// Delay is the per-worker pause after each page. With more than
	// one worker the aggregate request rate exceeds 1/Delay; set
	// RequestsPerSecond for a real global cap.
	Delay time.Duration `json:"delay" yaml:"delay"`

	// RequestsPerSecond adds a shared token bucket across workers.
	// Zero leaves only the per-worker delay.
	RequestsPerSecond float64 `json:"requests_per_second" yaml:"requests_per_second"`

	// UserAgent identifies the crawler; robots rules match against it.
	UserAgent string `json:"user_agent" yaml:"user_agent"`

	// RespectRobots gates every fetch on the origin's robots.txt.
	RespectRobots bool `json:"respect_robots" yaml:"respect_robots"`

	// Checks toggles the builtin passive checks.
	Checks analyzer.Config `json:"checks" yaml:"checks"`

	// Auth is the optional login block, run once before traversal.
	Auth auth.Credentials `json:"auth" yaml:"auth"`

	// ScriptDir points at a directory of custom check scripts.
	ScriptDir string `json:"script_dir,omitempty" yaml:"script_dir,omitempty"`

	// Proxy routes browser and side-fetch traffic. http, https,
	// socks5, or socks5h.
	Proxy string `json:"proxy,omitempty" yaml:"proxy,omitempty"`

	// ClientHello picks a browser TLS fingerprint for side fetches.
	ClientHello string `json:"client_hello,omitempty" yaml:"client_hello,omitempty"`

	// NavigationTimeout bounds one page load.
	NavigationTimeout time.Duration `json:"navigation_timeout" yaml:"navigation_timeout"`

	// ShowBrowser turns headless off for debugging a scan.
	ShowBrowser bool `json:"show_browser,omitempty" yaml:"show_browser,omitempty"`
}

// Default returns the conservative baseline: single worker, shallow
// depth, robots respected, every builtin check on.
func Default() Scan {
	return Scan{
		MaxDepth:          defaults.DepthDefault,
		MaxPages:          defaults.PagesMedium,
		Concurrency:       defaults.ConcurrencyMinimal,
		Delay:             defaults.PolitenessDelay,
		UserAgent:         defaults.UABot,
		RespectRobots:     true,
		Checks:            analyzer.DefaultConfig(),
		NavigationTimeout: defaults.NavigationTimeout,
	}
}

// LoadPreset overlays the YAML preset at path onto Default. A bare
// name with no separator or extension resolves against the bundled
// presets, so "gentle" works without a file on disk. Absent keys keep
// their defaults, so a preset only states what it changes.
func LoadPreset(path string) (Scan, error) {
	cfg := Default()

	data, err := readPreset(path)
	if err != nil {
		return cfg, fmt.Errorf("config: read preset %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("%w: preset %s: %v", ErrInvalidConfig, path, err)
	}
	return cfg, nil
}

func readPreset(path string) ([]byte, error) {
	if !strings.ContainsAny(path, `/\.`) {
		return presets.FS.ReadFile(path + ".yaml")
	}
	return os.ReadFile(path)
}

// RegisterFlags binds the scan fields onto fs with short and long
// spellings. Call after seeding s from Default or a preset; flags only
// override what the user passes.
func RegisterFlags(fs *flag.FlagSet, s *Scan) {
	fs.IntVar(&s.MaxDepth, "depth", s.MaxDepth, "Maximum crawl depth")
	fs.IntVar(&s.MaxDepth, "d", s.MaxDepth, "Maximum crawl depth (alias)")
	fs.IntVar(&s.MaxPages, "pages", s.MaxPages, "Page-count ceiling")
	fs.IntVar(&s.MaxPages, "p", s.MaxPages, "Page-count ceiling (alias)")
	fs.IntVar(&s.Concurrency, "concurrency", s.Concurrency, "Concurrent browser tabs")
	fs.IntVar(&s.Concurrency, "c", s.Concurrency, "Concurrent browser tabs (alias)")
	fs.DurationVar(&s.Delay, "delay", s.Delay, "Per-worker pause between pages")
	fs.Float64Var(&s.RequestsPerSecond, "rate", s.RequestsPerSecond, "Global requests per second (0 = per-worker delay only)")
	fs.StringVar(&s.UserAgent, "ua", s.UserAgent, "User agent")
	fs.BoolFunc("ignore-robots", "Do not honor robots.txt", func(string) error {
		s.RespectRobots = false
		return nil
	})

	fs.BoolVar(&s.Checks.Headers, "check-headers", s.Checks.Headers, "Security header check")
	fs.BoolVar(&s.Checks.MixedContent, "check-mixed", s.Checks.MixedContent, "Mixed content check")
	fs.BoolVar(&s.Checks.Comments, "check-comments", s.Checks.Comments, "Sensitive comment check")
	fs.BoolVar(&s.Checks.Fingerprint, "check-fingerprint", s.Checks.Fingerprint, "Technology fingerprint + score check")

	fs.StringVar(&s.Auth.LoginURL, "login-url", s.Auth.LoginURL, "Login page URL")
	fs.StringVar(&s.Auth.Username, "username", s.Auth.Username, "Login username")
	fs.StringVar(&s.Auth.Password, "password", s.Auth.Password, "Login password")

	fs.StringVar(&s.ScriptDir, "scripts", s.ScriptDir, "Directory of custom check scripts")
	fs.StringVar(&s.Proxy, "proxy", s.Proxy, "Proxy URL (http, https, socks5, socks5h)")
	fs.StringVar(&s.Proxy, "x", s.Proxy, "Proxy URL (alias)")
	fs.StringVar(&s.ClientHello, "client-hello", s.ClientHello, "Browser TLS profile for side fetches: "+strings.Join(httpclient.Profiles(), ", "))
	fs.DurationVar(&s.NavigationTimeout, "nav-timeout", s.NavigationTimeout, "Per-page navigation timeout")
	fs.BoolVar(&s.ShowBrowser, "show-browser", s.ShowBrowser, "Run the browser with a visible window")
}

// Validate checks the whole configuration and reports every problem at
// once, not just the first.
func (s *Scan) Validate() error {
	var problems []string

	if s.MaxDepth < 1 {
		problems = append(problems, "max_depth must be >= 1")
	} else if s.MaxDepth > defaults.DepthMax {
		problems = append(problems, fmt.Sprintf("max_depth %d exceeds cap %d", s.MaxDepth, defaults.DepthMax))
	}
	if s.MaxPages < 1 {
		problems = append(problems, "max_pages must be >= 1")
	} else if s.MaxPages > defaults.PagesMax {
		problems = append(problems, fmt.Sprintf("max_pages %d exceeds cap %d", s.MaxPages, defaults.PagesMax))
	}
	if s.Concurrency < 1 {
		problems = append(problems, "concurrency must be >= 1")
	} else if s.Concurrency > defaults.ConcurrencyMax {
		problems = append(problems, fmt.Sprintf("concurrency %d exceeds cap %d", s.Concurrency, defaults.ConcurrencyMax))
	}
	if s.Delay < 0 {
		problems = append(problems, "delay must not be negative")
	}
	if s.RequestsPerSecond < 0 {
		problems = append(problems, "requests_per_second must not be negative")
	}
	if s.UserAgent == "" {
		problems = append(problems, "user_agent must not be empty")
	}
	if s.NavigationTimeout <= 0 {
		problems = append(problems, "navigation_timeout must be positive")
	}

	if s.Proxy != "" {
		if err := httpclient.ValidateProxyURL(s.Proxy); err != nil {
			problems = append(problems, err.Error())
		}
	}
	if s.ClientHello != "" && !knownHello(s.ClientHello) {
		problems = append(problems, fmt.Sprintf("client_hello %q unknown (have %s)", s.ClientHello, strings.Join(httpclient.Profiles(), ", ")))
	}

	if s.Auth.LoginURL != "" && !urlnorm.WellFormed(s.Auth.LoginURL) {
		problems = append(problems, fmt.Sprintf("auth login_url %q is not an absolute http(s) url", s.Auth.LoginURL))
	}
	if s.Auth.Enabled() && s.Auth.Password == "" {
		problems = append(problems, "auth password must be set when login is configured")
	}

	if len(problems) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(problems, "; "))
}

func knownHello(name string) bool {
	for _, p := range httpclient.Profiles() {
		if strings.EqualFold(name, p) {
			return true
		}
	}
	return false
}
