package scan

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sitehawk/sitehawk/pkg/analyzer"
	"github.com/sitehawk/sitehawk/pkg/auth"
	"github.com/sitehawk/sitehawk/pkg/browser"
	"github.com/sitehawk/sitehawk/pkg/checks"
	"github.com/sitehawk/sitehawk/pkg/config"
	"github.com/sitehawk/sitehawk/pkg/defaults"
	"github.com/sitehawk/sitehawk/pkg/dispatch"
	"github.com/sitehawk/sitehawk/pkg/events"
	"github.com/sitehawk/sitehawk/pkg/finding"
	"github.com/sitehawk/sitehawk/pkg/httpclient"
	"github.com/sitehawk/sitehawk/pkg/robots"
	"github.com/sitehawk/sitehawk/pkg/store"
)

// fakeDoc is one servable page of the in-memory site.
type fakeDoc struct {
	status    int
	title     string
	html      string
	headers   http.Header
	navErr    error
	finalURL  string          // non-empty simulates a redirect
	selectors map[string]bool // elements Fill and Click can find
}

// fakeDriver serves fakeDocs keyed by normalized URL. When navGate is
// set, every Navigate consumes one token from it first, which lets
// tests hold workers mid-flight.
type fakeDriver struct {
	mu          sync.Mutex
	site        map[string]fakeDoc
	navGate     chan struct{}
	pagesOpened int
	closed      bool
}

func (d *fakeDriver) NewPage(ctx context.Context) (browser.Page, error) {
	d.mu.Lock()
	d.pagesOpened++
	d.mu.Unlock()
	return &fakePage{driver: d}, nil
}

func (d *fakeDriver) Close() error {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()
	return nil
}

func (d *fakeDriver) opened() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pagesOpened
}

type fakePage struct {
	driver *fakeDriver
	doc    fakeDoc
	url    string
}

func (p *fakePage) Navigate(ctx context.Context, url string) (*browser.PageInfo, error) {
	if gate := p.driver.navGate; gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	doc, ok := p.driver.site[url]
	if !ok {
		return nil, fmt.Errorf("no route for %s", url)
	}
	if doc.navErr != nil {
		return nil, doc.navErr
	}
	p.doc = doc
	p.url = url
	if doc.finalURL != "" {
		p.url = doc.finalURL
	}
	info := &browser.PageInfo{URL: p.url, Status: doc.status, Headers: doc.headers}
	if info.Status == 0 {
		info.Status = http.StatusOK
	}
	return info, nil
}

func (p *fakePage) Content(ctx context.Context) (string, error) { return p.doc.html, nil }
func (p *fakePage) Title(ctx context.Context) (string, error)   { return p.doc.title, nil }

func (p *fakePage) Links(ctx context.Context) ([]string, error) {
	return analyzer.HTMLLinks(p.doc.html), nil
}

func (p *fakePage) Fill(ctx context.Context, selector, value string) (bool, error) {
	return p.doc.selectors[selector], nil
}

func (p *fakePage) Click(ctx context.Context, selector string) (bool, error) {
	return p.doc.selectors[selector], nil
}

func (p *fakePage) PressEnter(ctx context.Context, selector string) error { return nil }

func (p *fakePage) Location(ctx context.Context) (string, error) { return p.url, nil }

func (p *fakePage) Close() error { return nil }

// stubFetcher records side fetches and answers 404 unless told
// otherwise, so favicon probes stay off the network.
type stubFetcher struct {
	mu   sync.Mutex
	gets []string
	resp *httpclient.Response
}

func (f *stubFetcher) Get(ctx context.Context, rawURL string) (*httpclient.Response, error) {
	f.mu.Lock()
	f.gets = append(f.gets, rawURL)
	f.mu.Unlock()
	if f.resp != nil {
		return f.resp, nil
	}
	return &httpclient.Response{StatusCode: http.StatusNotFound}, nil
}

func (f *stubFetcher) fetched() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.gets...)
}

// robotsTransport serves one robots.txt body for every origin.
type robotsTransport struct {
	body string
}

func (t *robotsTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.URL.Path != "/robots.txt" {
		return &http.Response{StatusCode: http.StatusNotFound, Header: http.Header{}, Body: http.NoBody}, nil
	}
	return &http.Response{
		StatusCode: http.StatusOK,
		Header:     http.Header{},
		Body:       io.NopCloser(strings.NewReader(t.body)),
	}, nil
}

type recordHook struct {
	mu    sync.Mutex
	types []events.Type
}

func (h *recordHook) OnEvent(ctx context.Context, ev events.Event) error {
	h.mu.Lock()
	h.types = append(h.types, ev.EventType())
	h.mu.Unlock()
	return nil
}

func (h *recordHook) EventTypes() []events.Type { return nil }

func (h *recordHook) seen() []events.Type {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]events.Type(nil), h.types...)
}

func testSite() map[string]fakeDoc {
	return map[string]fakeDoc{
		"https://example.com/": {
			title: "Home",
			html: `<html><body>
				<a href="/about">About</a>
				<a href="/contact">Contact</a>
				<a href="https://other.example.org/">Elsewhere</a>
				<a href="/about">About again</a>
			</body></html>`,
		},
		"https://example.com/about": {
			title: "About",
			html:  `<html><body><a href="/team">Team</a></body></html>`,
		},
		"https://example.com/contact": {
			title: "Contact",
			html:  `<html><body>Mail us</body></html>`,
		},
		"https://example.com/team": {
			title: "Team",
			html:  `<html><body>People</body></html>`,
		},
	}
}

func newTestEngine(cfg config.Scan, site map[string]fakeDoc) (*Engine, *fakeDriver, *store.Memory, *stubFetcher) {
	drv := &fakeDriver{site: site}
	mem := store.NewMemory()
	fetch := &stubFetcher{}
	eng := New(Job{ScanID: "scan-1", StartURL: "https://example.com"}, cfg, Deps{
		Driver:  drv,
		Store:   mem,
		Fetcher: fetch,
	})
	return eng, drv, mem, fetch
}

func pageURLs(pages []*store.PageRecord) []string {
	urls := make([]string, 0, len(pages))
	for _, p := range pages {
		urls = append(urls, p.URL)
	}
	return urls
}

func TestNewAppliesDefaults(t *testing.T) {
	e := New(Job{StartURL: "https://example.com"}, config.Scan{}, Deps{})
	assert.NotEmpty(t, e.job.ScanID)
	assert.Equal(t, defaults.DepthDefault, e.cfg.MaxDepth)
	assert.Equal(t, defaults.PagesMedium, e.cfg.MaxPages)
	assert.Equal(t, defaults.ConcurrencyMinimal, e.cfg.Concurrency)
	assert.Equal(t, defaults.UABot, e.cfg.UserAgent)
	assert.Equal(t, defaults.NavigationTimeout, e.cfg.NavigationTimeout)
	assert.Equal(t, StateIdle, e.State())
}

func TestRunCrawlsSite(t *testing.T) {
	cfg := config.Scan{MaxDepth: 1, MaxPages: 10, Concurrency: 2}
	eng, drv, mem, _ := newTestEngine(cfg, testSite())

	require.NoError(t, eng.Run(context.Background()))
	assert.Equal(t, StateCompleted, eng.State())

	ctx := context.Background()
	rec, err := mem.GetScan(ctx, "scan-1")
	require.NoError(t, err)
	assert.Equal(t, store.StatusCompleted, rec.Status)
	assert.Equal(t, 100, rec.Progress)
	assert.Equal(t, "crawled 3 pages, 0 findings", rec.Action)

	pages, err := mem.ListPages(ctx, "scan-1")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{
		"https://example.com/",
		"https://example.com/about",
		"https://example.com/contact",
	}, pageURLs(pages))
	for _, p := range pages {
		assert.Equal(t, "scan-1", p.ScanID)
		assert.NotEmpty(t, p.ID)
		assert.Equal(t, http.StatusOK, p.Status)
		assert.Equal(t, store.PageEnriched, p.State)
		assert.False(t, p.FetchedAt.IsZero())
	}
	assert.False(t, drv.closed, "engine must not close an injected driver")
}

func TestRunReportsFindings(t *testing.T) {
	site := testSite()
	doc := site["https://example.com/"]
	doc.html = `<html><body><!-- TODO remove debug backdoor --></body></html>`
	site["https://example.com/"] = doc

	cfg := config.Scan{MaxDepth: 1, MaxPages: 1, Concurrency: 1, Checks: analyzer.DefaultConfig()}
	eng, _, mem, _ := newTestEngine(cfg, site)

	require.NoError(t, eng.Run(context.Background()))

	ctx := context.Background()
	findings, err := mem.ListFindings(ctx, "scan-1")
	require.NoError(t, err)
	require.NotEmpty(t, findings)
	for _, f := range findings {
		assert.Equal(t, "scan-1", f.ScanID)
		assert.Equal(t, "https://example.com/", f.Location)
	}

	rec, err := mem.GetScan(ctx, "scan-1")
	require.NoError(t, err)
	assert.Contains(t, rec.Action, fmt.Sprintf("%d findings", len(findings)))
}

func TestRunRespectsPageCeiling(t *testing.T) {
	site := map[string]fakeDoc{
		"https://example.com/": {html: `<html><body>
			<a href="/p1">1</a><a href="/p2">2</a><a href="/p3">3</a>
			<a href="/p4">4</a><a href="/p5">5</a>
		</body></html>`},
	}
	for i := 1; i <= 5; i++ {
		site[fmt.Sprintf("https://example.com/p%d", i)] = fakeDoc{html: "<html><body>leaf</body></html>"}
	}

	cfg := config.Scan{MaxDepth: 3, MaxPages: 2, Concurrency: 1}
	eng, _, mem, _ := newTestEngine(cfg, site)

	require.NoError(t, eng.Run(context.Background()))
	assert.Equal(t, StateCompleted, eng.State())

	ctx := context.Background()
	pages, err := mem.ListPages(ctx, "scan-1")
	require.NoError(t, err)
	assert.Len(t, pages, 2)

	rec, err := mem.GetScan(ctx, "scan-1")
	require.NoError(t, err)
	assert.Equal(t, store.StatusCompleted, rec.Status)
	assert.Contains(t, rec.Action, "(page limit reached)")
}

func TestRunRespectsDepth(t *testing.T) {
	site := map[string]fakeDoc{
		"https://example.com/":  {html: `<html><body><a href="/a">a</a></body></html>`},
		"https://example.com/a": {html: `<html><body><a href="/b">b</a></body></html>`},
		"https://example.com/b": {html: `<html><body>deep</body></html>`},
	}
	cfg := config.Scan{MaxDepth: 1, MaxPages: 10, Concurrency: 1}
	eng, _, mem, _ := newTestEngine(cfg, site)

	require.NoError(t, eng.Run(context.Background()))

	pages, err := mem.ListPages(context.Background(), "scan-1")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{
		"https://example.com/",
		"https://example.com/a",
	}, pageURLs(pages))
}

func TestRunRecordsRedirectTarget(t *testing.T) {
	site := map[string]fakeDoc{
		"https://example.com/": {
			finalURL: "https://example.com/home",
			title:    "Home",
			html:     "<html><body>landed</body></html>",
		},
	}
	cfg := config.Scan{MaxDepth: 1, MaxPages: 5, Concurrency: 1}
	eng, _, mem, _ := newTestEngine(cfg, site)

	require.NoError(t, eng.Run(context.Background()))

	pages, err := mem.ListPages(context.Background(), "scan-1")
	require.NoError(t, err)
	require.Len(t, pages, 1)
	assert.Equal(t, "https://example.com/home", pages[0].URL)
}

func TestRunRejectsUnsafeStart(t *testing.T) {
	drv := &fakeDriver{site: map[string]fakeDoc{}}
	mem := store.NewMemory()
	eng := New(Job{ScanID: "scan-1", StartURL: "http://127.0.0.1:8080/admin"},
		config.Scan{}, Deps{Driver: drv, Store: mem, Fetcher: &stubFetcher{}})

	err := eng.Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, finding.ErrUnsafeTarget)
	assert.Equal(t, StateFailed, eng.State())
	assert.Equal(t, 0, drv.opened())

	rec, gerr := mem.GetScan(context.Background(), "scan-1")
	require.NoError(t, gerr)
	assert.Equal(t, store.StatusFailed, rec.Status)
	assert.Contains(t, rec.Action, "start url rejected")
}

func TestRunWithoutStore(t *testing.T) {
	eng := New(Job{StartURL: "https://example.com"}, config.Scan{}, Deps{})
	err := eng.Run(context.Background())
	assert.ErrorIs(t, err, ErrNoStore)
	assert.Equal(t, StateFailed, eng.State())
}

func TestRunSkipsBrokenPages(t *testing.T) {
	site := map[string]fakeDoc{
		"https://example.com/": {html: `<html><body>
			<a href="/ok">ok</a><a href="/boom">boom</a>
		</body></html>`},
		"https://example.com/ok":   {html: "<html><body>fine</body></html>"},
		"https://example.com/boom": {navErr: errors.New("tab crashed")},
	}
	cfg := config.Scan{MaxDepth: 1, MaxPages: 10, Concurrency: 1}
	eng, _, mem, _ := newTestEngine(cfg, site)

	require.NoError(t, eng.Run(context.Background()))
	assert.Equal(t, StateCompleted, eng.State())

	ctx := context.Background()
	pages, err := mem.ListPages(ctx, "scan-1")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{
		"https://example.com/",
		"https://example.com/ok",
	}, pageURLs(pages))

	logs, err := mem.ListLogs(ctx, "scan-1")
	require.NoError(t, err)
	var sawPageError bool
	for _, e := range logs {
		if e.Level == "error" && strings.Contains(e.Message, "https://example.com/boom") {
			sawPageError = true
		}
	}
	assert.True(t, sawPageError, "failed page should be logged to the scan sink")
}

func TestControlsRequireRunningScan(t *testing.T) {
	eng, _, _, _ := newTestEngine(config.Scan{MaxDepth: 1, MaxPages: 2}, testSite())

	assert.ErrorIs(t, eng.Pause(), ErrNotRunning)
	assert.ErrorIs(t, eng.Resume(), ErrNotRunning)
	assert.ErrorIs(t, eng.Cancel(), ErrNotRunning)

	require.NoError(t, eng.Run(context.Background()))

	assert.ErrorIs(t, eng.Pause(), ErrNotRunning)
	assert.ErrorIs(t, eng.Run(context.Background()), ErrAlreadyStarted)
}

func TestCancelDrainsInFlight(t *testing.T) {
	gate := make(chan struct{})
	cfg := config.Scan{MaxDepth: 2, MaxPages: 10, Concurrency: 1}
	eng, drv, mem, _ := newTestEngine(cfg, testSite())
	drv.navGate = gate

	done := make(chan error, 1)
	go func() { done <- eng.Run(context.Background()) }()

	require.Eventually(t, func() bool { return drv.opened() == 1 }, 5*time.Second, 5*time.Millisecond)
	require.NoError(t, eng.Cancel())
	gate <- struct{}{} // let the seed finish

	require.NoError(t, <-done)
	assert.Equal(t, StateCompleted, eng.State())

	ctx := context.Background()
	pages, err := mem.ListPages(ctx, "scan-1")
	require.NoError(t, err)
	assert.Len(t, pages, 1, "only the in-flight page finishes after cancel")

	rec, err := mem.GetScan(ctx, "scan-1")
	require.NoError(t, err)
	assert.Equal(t, store.StatusCompleted, rec.Status)
	assert.Contains(t, rec.Action, "(canceled)")
}

func TestPauseStopsDispatch(t *testing.T) {
	old := pausePoll
	pausePoll = 5 * time.Millisecond
	defer func() { pausePoll = old }()

	gate := make(chan struct{})
	cfg := config.Scan{MaxDepth: 1, MaxPages: 10, Concurrency: 1}
	eng, drv, mem, _ := newTestEngine(cfg, testSite())
	drv.navGate = gate

	done := make(chan error, 1)
	go func() { done <- eng.Run(context.Background()) }()

	require.Eventually(t, func() bool { return drv.opened() == 1 }, 5*time.Second, 5*time.Millisecond)
	require.NoError(t, eng.Pause())
	gate <- struct{}{} // seed completes while paused

	assert.Never(t, func() bool { return drv.opened() > 1 }, 100*time.Millisecond, 10*time.Millisecond)

	require.NoError(t, eng.Resume())
	close(gate) // release everything dispatched from here on

	require.NoError(t, <-done)
	pages, err := mem.ListPages(context.Background(), "scan-1")
	require.NoError(t, err)
	assert.Len(t, pages, 3)
}

func TestRunRespectsRobots(t *testing.T) {
	site := map[string]fakeDoc{
		"https://example.com/": {html: `<html><body>
			<a href="/public">public</a><a href="/private">private</a>
		</body></html>`},
		"https://example.com/public":  {html: "<html><body>open</body></html>"},
		"https://example.com/private": {html: "<html><body>closed</body></html>"},
	}
	cache := robots.NewCache(robots.Options{
		Client: &http.Client{Transport: &robotsTransport{body: "User-agent: *\nDisallow: /private\n"}},
	})

	cfg := config.Scan{MaxDepth: 1, MaxPages: 10, Concurrency: 1, RespectRobots: true}
	eng, _, mem, _ := newTestEngine(cfg, site)
	eng.deps.Robots = cache

	require.NoError(t, eng.Run(context.Background()))

	pages, err := mem.ListPages(context.Background(), "scan-1")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{
		"https://example.com/",
		"https://example.com/public",
	}, pageURLs(pages))
}

func TestRunRobotsBlocksSeed(t *testing.T) {
	cache := robots.NewCache(robots.Options{
		Client: &http.Client{Transport: &robotsTransport{body: "User-agent: *\nDisallow: /\n"}},
	})

	cfg := config.Scan{MaxDepth: 1, MaxPages: 10, Concurrency: 1, RespectRobots: true}
	eng, drv, mem, _ := newTestEngine(cfg, testSite())
	eng.deps.Robots = cache

	require.NoError(t, eng.Run(context.Background()))
	assert.Equal(t, StateCompleted, eng.State())
	assert.Equal(t, 0, drv.opened())

	rec, err := mem.GetScan(context.Background(), "scan-1")
	require.NoError(t, err)
	assert.Equal(t, store.StatusCompleted, rec.Status)
	assert.Contains(t, rec.Action, "crawled 0 pages")
}

func TestRunProbesFaviconOnce(t *testing.T) {
	cfg := config.Scan{MaxDepth: 1, MaxPages: 10, Concurrency: 2}
	eng, _, _, fetch := newTestEngine(cfg, testSite())

	require.NoError(t, eng.Run(context.Background()))

	gets := fetch.fetched()
	require.Len(t, gets, 1, "favicon is probed once per scan")
	assert.Equal(t, "https://example.com/favicon.ico", gets[0])
}

func TestRunScriptedChecks(t *testing.T) {
	dir := t.TempDir()
	script := `
name := "debug-banner"
description := "Flags pages serving a debug-mode banner"
severity := "high"

check := func(url, html, headers) {
	text := import("text")
	if text.contains(html, "DEBUG-MODE") {
		return "found DEBUG-MODE banner"
	}
	return ""
}
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "debug_banner.tengo"), []byte(script), 0o644))
	runner, errs := checks.LoadDir(dir)
	require.Empty(t, errs)

	site := map[string]fakeDoc{
		"https://example.com/": {html: `<html><body>DEBUG-MODE enabled
			<a href="/clean">clean</a></body></html>`},
		"https://example.com/clean": {html: "<html><body>nothing here</body></html>"},
	}
	cfg := config.Scan{MaxDepth: 1, MaxPages: 10, Concurrency: 1}
	eng, _, mem, _ := newTestEngine(cfg, site)
	eng.deps.Checks = runner

	require.NoError(t, eng.Run(context.Background()))

	findings, err := mem.ListFindings(context.Background(), "scan-1")
	require.NoError(t, err)
	require.Len(t, findings, 1)
	assert.Equal(t, "debug-banner", findings[0].Title)
	assert.Equal(t, finding.High, findings[0].Severity)
	assert.Equal(t, "https://example.com/", findings[0].Location)
	assert.Equal(t, "found DEBUG-MODE banner", findings[0].Evidence)
}

func TestRunEmitsEvents(t *testing.T) {
	disp := dispatch.New(dispatch.Config{})
	hook := &recordHook{}
	disp.RegisterHook(hook)

	cfg := config.Scan{MaxDepth: 1, MaxPages: 10, Concurrency: 1, Checks: analyzer.DefaultConfig()}
	eng, _, mem, _ := newTestEngine(cfg, testSite())
	eng.deps.Dispatcher = disp

	require.NoError(t, eng.Run(context.Background()))

	seen := hook.seen()
	require.NotEmpty(t, seen)
	assert.Equal(t, events.TypeScanStarted, seen[0])
	assert.Equal(t, events.TypeScanFinished, seen[len(seen)-1])

	var crawled, reported int
	for _, ty := range seen {
		switch ty {
		case events.TypePageCrawled:
			crawled++
		case events.TypeFindingReported:
			reported++
		}
	}
	assert.Equal(t, 3, crawled)

	findings, err := mem.ListFindings(context.Background(), "scan-1")
	require.NoError(t, err)
	assert.Equal(t, len(findings), reported)
}

func TestRunAuthFailureIsWarning(t *testing.T) {
	site := testSite()
	site["https://example.com/login"] = fakeDoc{
		title: "Login",
		html:  "<html><body>who goes there</body></html>",
	}
	cfg := config.Scan{
		MaxDepth:    1,
		MaxPages:    10,
		Concurrency: 1,
		Auth: auth.Credentials{
			LoginURL: "https://example.com/login",
			Username: "admin",
			Password: "hunter2",
		},
	}
	eng, _, mem, _ := newTestEngine(cfg, site)

	require.NoError(t, eng.Run(context.Background()))
	assert.Equal(t, StateCompleted, eng.State())

	ctx := context.Background()
	pages, err := mem.ListPages(ctx, "scan-1")
	require.NoError(t, err)
	assert.Len(t, pages, 3, "crawl proceeds unauthenticated")

	logs, err := mem.ListLogs(ctx, "scan-1")
	require.NoError(t, err)
	var warned bool
	for _, e := range logs {
		if e.Level == "warn" && strings.Contains(e.Message, "authentication failed") {
			warned = true
		}
	}
	assert.True(t, warned)
}
