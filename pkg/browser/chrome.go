package browser

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"runtime"
	"strconv"
	"sync"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"

	"github.com/sitehawk/sitehawk/pkg/defaults"
	"github.com/sitehawk/sitehawk/pkg/finding"
)

// Config configures the Chrome driver.
type Config struct {
	ChromePath        string        `json:"chrome_path,omitempty"`
	UserAgent         string        `json:"user_agent,omitempty"`
	Proxy             string        `json:"proxy,omitempty"`
	ShowBrowser       bool          `json:"show_browser"`
	NavigationTimeout time.Duration `json:"navigation_timeout"`
}

// DefaultConfig returns sensible defaults for headless crawling.
func DefaultConfig() Config {
	return Config{
		UserAgent:         defaults.UAChrome,
		NavigationTimeout: defaults.NavigationTimeout,
	}
}

// Chrome implements Driver on top of chromedp. One Chrome owns a single
// browser process; each NewPage opens a tab in it.
type Chrome struct {
	cfg         Config
	allocCtx    context.Context
	allocCancel context.CancelFunc

	mu    sync.Mutex
	pages []*chromePage
}

var _ Driver = (*Chrome)(nil)

// NewChrome verifies a Chrome binary is reachable and prepares the
// process allocator. The browser itself starts lazily with the first
// page. A missing binary reports finding.ErrBrowserUnavailable so the
// engine can fail the scan before traversal.
func NewChrome(ctx context.Context, cfg Config) (*Chrome, error) {
	if cfg.NavigationTimeout <= 0 {
		cfg.NavigationTimeout = defaults.NavigationTimeout
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = defaults.UAChrome
	}

	path := cfg.ChromePath
	if path == "" {
		path = findChrome()
		if path == "" {
			return nil, fmt.Errorf("%w: no chrome or chromium executable found", finding.ErrBrowserUnavailable)
		}
	} else if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", finding.ErrBrowserUnavailable, path, err)
	}

	var opts []chromedp.ExecAllocatorOption
	if cfg.ShowBrowser {
		// Headless sits at index 2 of the default options; skip it when
		// a visible window is requested.
		d := chromedp.DefaultExecAllocatorOptions[:]
		opts = append(opts, d[0:2]...)
		opts = append(opts, d[3:]...)
		opts = append(opts, chromedp.Flag("start-maximized", true))
	} else {
		opts = append(chromedp.DefaultExecAllocatorOptions[:],
			chromedp.Flag("disable-gpu", true),
			chromedp.Flag("no-sandbox", true),
			chromedp.Flag("disable-dev-shm-usage", true),
		)
	}
	opts = append(opts,
		chromedp.ExecPath(path),
		chromedp.Flag("disable-extensions", true),
		chromedp.Flag("disable-default-apps", true),
		chromedp.Flag("window-size", "1920,1080"),
		chromedp.UserAgent(cfg.UserAgent),
	)
	if cfg.Proxy != "" {
		opts = append(opts, chromedp.ProxyServer(cfg.Proxy))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, opts...)
	return &Chrome{
		cfg:         cfg,
		allocCtx:    allocCtx,
		allocCancel: allocCancel,
	}, nil
}

// NewPage opens a tab. The first call launches the browser process;
// launch failure reports finding.ErrBrowserUnavailable.
func (c *Chrome) NewPage(ctx context.Context) (Page, error) {
	pageCtx, pageCancel := chromedp.NewContext(c.allocCtx)

	p := &chromePage{
		ctx:     pageCtx,
		cancel:  pageCancel,
		timeout: c.cfg.NavigationTimeout,
	}

	// Capture status and headers of document responses; Navigate reads
	// the last one, which after redirects is the final document.
	chromedp.ListenTarget(pageCtx, func(ev interface{}) {
		e, ok := ev.(*network.EventResponseReceived)
		if !ok || e.Type != network.ResourceTypeDocument {
			return
		}
		p.mu.Lock()
		p.status = int(e.Response.Status)
		p.headers = headersFromNetwork(e.Response.Headers)
		p.mu.Unlock()
	})

	if err := chromedp.Run(pageCtx, network.Enable()); err != nil {
		pageCancel()
		return nil, fmt.Errorf("%w: %v", finding.ErrBrowserUnavailable, err)
	}

	c.mu.Lock()
	c.pages = append(c.pages, p)
	c.mu.Unlock()
	return p, nil
}

// Close tears the browser down. Chrome child processes can block the
// graceful cancel indefinitely, so after BrowserShutdownTimeout the
// whole process tree is killed.
func (c *Chrome) Close() error {
	var proc *os.Process
	c.mu.Lock()
	for _, p := range c.pages {
		if cc := chromedp.FromContext(p.ctx); cc != nil && cc.Browser != nil {
			proc = cc.Browser.Process()
			break
		}
	}
	pages := c.pages
	c.pages = nil
	c.mu.Unlock()

	done := make(chan struct{})
	go func() {
		for _, p := range pages {
			p.cancel()
		}
		c.allocCancel()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(defaults.BrowserShutdownTimeout):
		killProcessTree(proc)
	}
	return nil
}

// chromePage is one chromedp tab.
type chromePage struct {
	ctx     context.Context
	cancel  context.CancelFunc
	timeout time.Duration

	mu      sync.Mutex
	status  int
	headers http.Header
}

var _ Page = (*chromePage)(nil)

func (p *chromePage) Navigate(ctx context.Context, url string) (*PageInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p.mu.Lock()
	p.status = 0
	p.headers = nil
	p.mu.Unlock()

	navCtx, cancel := context.WithTimeout(p.ctx, p.timeout)
	defer cancel()

	err := chromedp.Run(navCtx,
		chromedp.Navigate(url),
		chromedp.WaitReady("body"),
	)
	if err != nil {
		return nil, fmt.Errorf("navigate %s: %w", url, err)
	}

	var loc string
	_ = chromedp.Run(navCtx, chromedp.Location(&loc))
	if loc == "" {
		loc = url
	}

	p.mu.Lock()
	info := &PageInfo{URL: loc, Status: p.status, Headers: p.headers}
	p.mu.Unlock()
	if info.Status == 0 {
		// Served from cache or the event raced the load; the document
		// rendered, so treat it as OK.
		info.Status = http.StatusOK
	}
	if info.Headers == nil {
		info.Headers = http.Header{}
	}
	return info, nil
}

func (p *chromePage) Content(ctx context.Context) (string, error) {
	var content string
	err := p.run(ctx, chromedp.Evaluate(`document.documentElement.outerHTML`, &content))
	if err != nil {
		return "", fmt.Errorf("page content: %w", err)
	}
	return content, nil
}

func (p *chromePage) Title(ctx context.Context) (string, error) {
	var title string
	if err := p.run(ctx, chromedp.Title(&title)); err != nil {
		return "", fmt.Errorf("page title: %w", err)
	}
	return title, nil
}

func (p *chromePage) Links(ctx context.Context) ([]string, error) {
	var links []string
	err := p.run(ctx, chromedp.Evaluate(`Array.from(document.querySelectorAll('a[href]')).map(a => a.href)`, &links))
	if err != nil {
		return nil, fmt.Errorf("enumerate links: %w", err)
	}
	return links, nil
}

func (p *chromePage) Fill(ctx context.Context, selector, value string) (bool, error) {
	found, err := p.exists(ctx, selector)
	if err != nil || !found {
		return false, err
	}
	err = p.run(ctx,
		chromedp.Clear(selector, chromedp.ByQuery),
		chromedp.SendKeys(selector, value, chromedp.ByQuery),
	)
	if err != nil {
		return true, fmt.Errorf("fill %s: %w", selector, err)
	}
	return true, nil
}

func (p *chromePage) Click(ctx context.Context, selector string) (bool, error) {
	found, err := p.exists(ctx, selector)
	if err != nil || !found {
		return false, err
	}
	if err := p.run(ctx, chromedp.Click(selector, chromedp.ByQuery)); err != nil {
		return true, fmt.Errorf("click %s: %w", selector, err)
	}
	return true, nil
}

func (p *chromePage) PressEnter(ctx context.Context, selector string) error {
	err := p.run(ctx, chromedp.SendKeys(selector, kb.Enter, chromedp.ByQuery))
	if err != nil {
		return fmt.Errorf("press enter in %s: %w", selector, err)
	}
	return nil
}

func (p *chromePage) Location(ctx context.Context) (string, error) {
	var loc string
	if err := p.run(ctx, chromedp.Location(&loc)); err != nil {
		return "", fmt.Errorf("page location: %w", err)
	}
	return loc, nil
}

func (p *chromePage) Close() error {
	p.cancel()
	return nil
}

// exists probes for selector without waiting: absence is an answer,
// not an error.
func (p *chromePage) exists(ctx context.Context, selector string) (bool, error) {
	var found bool
	expr := fmt.Sprintf(`document.querySelector(%q) !== null`, selector)
	if err := p.run(ctx, chromedp.Evaluate(expr, &found)); err != nil {
		return false, fmt.Errorf("probe %s: %w", selector, err)
	}
	return found, nil
}

// run executes actions on the page's chromedp context, honoring the
// caller's cancellation and the navigation timeout.
func (p *chromePage) run(ctx context.Context, actions ...chromedp.Action) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	runCtx, cancel := context.WithTimeout(p.ctx, p.timeout)
	defer cancel()
	return chromedp.Run(runCtx, actions...)
}

// headersFromNetwork flattens CDP headers into http.Header.
func headersFromNetwork(h network.Headers) http.Header {
	out := make(http.Header, len(h))
	for k, v := range h {
		out.Set(k, fmt.Sprint(v))
	}
	return out
}

// findChrome locates a usable browser binary, preferring PATH lookups
// and falling back to well-known install locations.
func findChrome() string {
	names := []string{"google-chrome", "google-chrome-stable", "chromium", "chromium-browser", "chrome"}
	for _, name := range names {
		if path, err := exec.LookPath(name); err == nil && path != "" {
			return path
		}
	}

	known := []string{
		`/usr/bin/google-chrome`,
		`/usr/bin/chromium-browser`,
		`/usr/bin/chromium`,
		`/snap/bin/chromium`,
		`/Applications/Google Chrome.app/Contents/MacOS/Google Chrome`,
		`/Applications/Chromium.app/Contents/MacOS/Chromium`,
		`C:\Program Files\Google\Chrome\Application\chrome.exe`,
		`C:\Program Files (x86)\Google\Chrome\Application\chrome.exe`,
		os.Getenv("LOCALAPPDATA") + `\Google\Chrome\Application\chrome.exe`,
	}
	for _, path := range known {
		if path == "" {
			continue
		}
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// killProcessTree kills the browser process and its children. Plain
// Kill only reaches the parent; Chrome's GPU and renderer children get
// reparented and keep running, or on Windows block cleanup entirely.
func killProcessTree(proc *os.Process) {
	if proc == nil {
		return
	}
	if runtime.GOOS == "windows" {
		_ = exec.Command("taskkill", "/F", "/T", "/PID", strconv.Itoa(proc.Pid)).Run()
		return
	}
	// chromedp starts Chrome with Setpgid, so the group id equals the
	// parent pid; a negative pid targets the whole group.
	if err := exec.Command("kill", "-9", "--", "-"+strconv.Itoa(proc.Pid)).Run(); err != nil {
		_ = proc.Kill()
	}
}
