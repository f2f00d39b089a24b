// Package scan is the crawl engine. A single scheduling loop owns the
// frontier and the visited set; workers fetch and analyze one page
// each, report back over a completion channel, and the loop folds
// newly discovered links in. The safety gate and robots policy run at
// dispatch time, so a disallowed URL never reaches a browser tab.
package scan

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/sitehawk/sitehawk/pkg/auth"
	"github.com/sitehawk/sitehawk/pkg/browser"
	"github.com/sitehawk/sitehawk/pkg/checks"
	"github.com/sitehawk/sitehawk/pkg/config"
	"github.com/sitehawk/sitehawk/pkg/defaults"
	"github.com/sitehawk/sitehawk/pkg/dispatch"
	"github.com/sitehawk/sitehawk/pkg/events"
	"github.com/sitehawk/sitehawk/pkg/finding"
	"github.com/sitehawk/sitehawk/pkg/fingerprint"
	"github.com/sitehawk/sitehawk/pkg/httpclient"
	"github.com/sitehawk/sitehawk/pkg/ratelimit"
	"github.com/sitehawk/sitehawk/pkg/robots"
	"github.com/sitehawk/sitehawk/pkg/safety"
	"github.com/sitehawk/sitehawk/pkg/store"
	"github.com/sitehawk/sitehawk/pkg/urlnorm"
)

// State is the lifecycle of one scan job.
type State string

const (
	StateIdle      State = "idle"
	StateRunning   State = "running"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
)

// Job identifies one scan run. A missing ScanID gets a fresh uuid.
type Job struct {
	ScanID    string
	ProjectID string
	StartURL  string
}

// Fetcher is the side-fetch surface the engine needs for the favicon
// probe. *httpclient.Fetcher satisfies it.
type Fetcher interface {
	Get(ctx context.Context, rawURL string) (*httpclient.Response, error)
}

// Deps carries the engine's collaborators. Store is required; every
// other field is optional and gets a default built from the scan
// config.
type Deps struct {
	// Driver renders pages. Nil launches headless Chrome; a launch
	// failure fails the scan before traversal starts.
	Driver browser.Driver

	// Store is the persistence sink for pages, findings, logs, and
	// progress.
	Store store.Store

	// Robots caches per-origin robots.txt policy. Consulted only when
	// the config respects robots.
	Robots *robots.Cache

	// Limiter paces page visits. Nil builds one from the config's
	// delay and requests-per-second settings.
	Limiter *ratelimit.Limiter

	// Dispatcher receives scan events. Nil disables events.
	Dispatcher *dispatch.Dispatcher

	// Checks are scripted passive checks run against every page.
	Checks *checks.Runner

	// Fetcher performs side fetches. Nil builds one matching the
	// scan's proxy and TLS settings.
	Fetcher Fetcher
}

// Engine runs one scan job: Idle until Run, Running during traversal,
// then Completed or Failed. Engines are single use.
type Engine struct {
	job  Job
	cfg  config.Scan
	deps Deps

	rootOrigin  string
	startURL    string
	faviconTech *fingerprint.Technology

	paused   atomic.Bool
	canceled atomic.Bool

	mu    sync.Mutex
	state State

	pagesCrawled  atomic.Int64
	findingsTotal atomic.Int64

	// stopNote is set by the loop when traversal ends early; it is
	// read only after the loop returns.
	stopNote string

	ownedDriver bool
	started     time.Time
}

// New prepares an engine for one job. Zero or negative limits fall
// back to defaults so a hand-built config cannot wedge the loop.
func New(job Job, cfg config.Scan, deps Deps) *Engine {
	if job.ScanID == "" {
		job.ScanID = uuid.NewString()
	}
	if cfg.MaxDepth <= 0 {
		cfg.MaxDepth = defaults.DepthDefault
	}
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = defaults.PagesMedium
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = defaults.ConcurrencyMinimal
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = defaults.UABot
	}
	if cfg.NavigationTimeout <= 0 {
		cfg.NavigationTimeout = defaults.NavigationTimeout
	}
	return &Engine{job: job, cfg: cfg, deps: deps, state: StateIdle}
}

// Run creates an engine for job and drives it to a terminal state.
// It blocks until the crawl finishes; callers wanting fire-and-forget
// run it in a goroutine and watch the store.
func Run(ctx context.Context, job Job, cfg config.Scan, deps Deps) error {
	return New(job, cfg, deps).Run(ctx)
}

// Run executes the job. The scan reaches Completed even when pages
// error individually; only a rejected start URL, a browser that will
// not launch, or an error escaping the scheduling loop yield Failed.
func (e *Engine) Run(ctx context.Context) error {
	e.mu.Lock()
	if e.state != StateIdle {
		e.mu.Unlock()
		return ErrAlreadyStarted
	}
	e.state = StateRunning
	e.mu.Unlock()

	if e.deps.Store == nil {
		e.setState(StateFailed)
		return ErrNoStore
	}
	e.started = time.Now()

	norm, err := urlnorm.Normalize(e.job.StartURL)
	if err != nil {
		return e.fail(ctx, fmt.Errorf("%w: %v", finding.ErrUnsafeTarget, err),
			"start url rejected: not a crawlable url")
	}
	if v := safety.Check(norm); !v.Safe {
		return e.fail(ctx, fmt.Errorf("%w: %s", finding.ErrUnsafeTarget, v.Reason),
			"start url rejected: "+v.Reason)
	}
	origin, err := urlnorm.Origin(norm)
	if err != nil {
		return e.fail(ctx, fmt.Errorf("%w: %v", finding.ErrUnsafeTarget, err),
			"start url rejected: no origin")
	}
	e.startURL = norm
	e.rootOrigin = origin

	if err := e.prepare(ctx); err != nil {
		return e.fail(ctx, err, "browser launch failed")
	}
	defer e.teardown()

	e.status(ctx, store.StatusRunning, "crawl started")
	e.progress(ctx, 0, "starting "+e.startURL)
	e.emit(ctx, events.NewScanStartedEvent(e.job.ScanID, e.startURL,
		e.cfg.MaxDepth, e.cfg.MaxPages, e.cfg.Concurrency, e.cfg.Auth.Enabled()))
	logrus.Infof("Scan %s: crawling %s (depth %d, limit %d pages, %d workers)",
		e.job.ScanID, e.startURL, e.cfg.MaxDepth, e.cfg.MaxPages, e.cfg.Concurrency)

	e.authenticate(ctx)
	e.probeFavicon(ctx)

	if err := e.loop(ctx); err != nil {
		return e.fail(ctx, err, "engine error: "+err.Error())
	}

	pages := int(e.pagesCrawled.Load())
	found := int(e.findingsTotal.Load())
	action := fmt.Sprintf("crawled %d pages, %d findings", pages, found)
	if e.stopNote != "" {
		action += " (" + e.stopNote + ")"
	}
	wctx := context.WithoutCancel(ctx)
	e.progress(wctx, 100, action)
	e.status(wctx, store.StatusCompleted, action)
	e.setState(StateCompleted)
	e.emit(wctx, events.NewScanFinishedEvent(e.job.ScanID, string(store.StatusCompleted),
		pages, found, time.Since(e.started), ""))
	logrus.Infof("Scan %s: %s", e.job.ScanID, action)
	return nil
}

// Pause stops new dispatches. In-flight pages finish and are folded
// in; the frontier keeps its pending work.
func (e *Engine) Pause() error {
	if e.State() != StateRunning {
		return ErrNotRunning
	}
	e.paused.Store(true)
	return nil
}

// Resume lifts a pause.
func (e *Engine) Resume() error {
	if e.State() != StateRunning {
		return ErrNotRunning
	}
	e.paused.Store(false)
	return nil
}

// Cancel ends the crawl after in-flight pages drain. The scan
// completes with the pages it has; pending frontier work is dropped.
func (e *Engine) Cancel() error {
	if e.State() != StateRunning {
		return ErrNotRunning
	}
	e.canceled.Store(true)
	return nil
}

// State reports the engine's lifecycle state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

func (e *Engine) setState(s State) {
	e.mu.Lock()
	e.state = s
	e.mu.Unlock()
}

// prepare wires the collaborators that were not injected. Driver
// launch failure is the one fatal outcome; the rest degrade.
func (e *Engine) prepare(ctx context.Context) error {
	if e.deps.Driver == nil {
		drv, err := browser.NewChrome(ctx, browser.Config{
			UserAgent:         e.cfg.UserAgent,
			Proxy:             e.cfg.Proxy,
			ShowBrowser:       e.cfg.ShowBrowser,
			NavigationTimeout: e.cfg.NavigationTimeout,
		})
		if err != nil {
			return err
		}
		e.deps.Driver = drv
		e.ownedDriver = true
	}

	if e.deps.Limiter == nil {
		e.deps.Limiter = ratelimit.New(&ratelimit.Config{
			Delay:             e.cfg.Delay,
			RequestsPerSecond: e.cfg.RequestsPerSecond,
		})
	}

	hcfg := httpclient.DefaultConfig()
	hcfg.UserAgent = e.cfg.UserAgent
	hcfg.Proxy = e.cfg.Proxy
	hcfg.ClientHello = e.cfg.ClientHello

	if e.deps.Fetcher == nil {
		f, err := httpclient.NewFetcher(hcfg)
		if err != nil {
			// Config validation rejects these combinations up front; a
			// hand-built config falls back to plain side fetches.
			logrus.Warnf("Scan %s: side-fetch client: %v", e.job.ScanID, err)
			f, _ = httpclient.NewFetcher(httpclient.DefaultConfig())
		}
		e.deps.Fetcher = f
	}

	if e.cfg.RespectRobots && e.deps.Robots == nil {
		rcfg := hcfg
		rcfg.Timeout = defaults.RobotsTimeout
		client, err := httpclient.New(rcfg)
		if err != nil {
			client = nil // cache falls back to its own default client
		}
		e.deps.Robots = robots.NewCache(robots.Options{Client: client})
	}
	return nil
}

func (e *Engine) teardown() {
	if e.ownedDriver {
		if err := e.deps.Driver.Close(); err != nil {
			logrus.Debugf("Scan %s: close browser: %v", e.job.ScanID, err)
		}
	}
}

// authenticate performs the optional pre-crawl login. The session
// lives in the browser profile, so workers' tabs inherit it. Failure
// is a warning and the crawl proceeds without a session.
func (e *Engine) authenticate(ctx context.Context) {
	if !e.cfg.Auth.Enabled() {
		return
	}
	page, err := e.deps.Driver.NewPage(ctx)
	if err != nil {
		e.warn(ctx, fmt.Sprintf("authentication skipped: %v", err))
		return
	}
	defer page.Close()

	if err := auth.Authenticate(ctx, page, e.cfg.Auth); err != nil {
		e.warn(ctx, fmt.Sprintf("authentication failed, continuing unauthenticated: %v", err))
		return
	}
	e.log(ctx, "info", "authenticated at "+e.cfg.Auth.LoginURL)
}

// probeFavicon fetches the site favicon once and matches its hash
// against known technologies. Any failure leaves the scan untouched.
func (e *Engine) probeFavicon(ctx context.Context) {
	if e.deps.Fetcher == nil {
		return
	}
	fctx, cancel := context.WithTimeout(ctx, defaults.FaviconTimeout)
	defer cancel()

	resp, err := e.deps.Fetcher.Get(fctx, e.rootOrigin+"/favicon.ico")
	if err != nil || resp.StatusCode != http.StatusOK || len(resp.Body) == 0 {
		return
	}
	if tech, ok := fingerprint.LookupFavicon(fingerprint.HashFavicon(resp.Body)); ok {
		e.faviconTech = &tech
		e.log(ctx, "info", "favicon identifies "+tech.Name)
	}
}

// fail records the terminal failed status and returns err unchanged.
func (e *Engine) fail(ctx context.Context, err error, action string) error {
	logrus.Errorf("Scan %s failed: %v", e.job.ScanID, err)
	wctx := context.WithoutCancel(ctx)
	e.log(wctx, "error", err.Error())
	e.status(wctx, store.StatusFailed, action)
	e.setState(StateFailed)
	e.emit(wctx, events.NewScanFinishedEvent(e.job.ScanID, string(store.StatusFailed),
		int(e.pagesCrawled.Load()), int(e.findingsTotal.Load()),
		time.Since(e.started), err.Error()))
	return err
}

// Sink writes are best effort: a sink hiccup degrades observability,
// not the crawl. Failures land in the process log only.

func (e *Engine) log(ctx context.Context, level, msg string) {
	if err := e.deps.Store.AppendLog(ctx, e.job.ScanID, level, msg); err != nil {
		logrus.Debugf("Scan %s: append log: %v", e.job.ScanID, err)
	}
}

func (e *Engine) warn(ctx context.Context, msg string) {
	logrus.Warnf("Scan %s: %s", e.job.ScanID, msg)
	e.log(ctx, "warn", msg)
}

func (e *Engine) progress(ctx context.Context, percent int, action string) {
	if err := e.deps.Store.UpdateProgress(ctx, e.job.ScanID, percent, action); err != nil {
		logrus.Debugf("Scan %s: update progress: %v", e.job.ScanID, err)
	}
}

func (e *Engine) status(ctx context.Context, st store.Status, action string) {
	if err := e.deps.Store.UpdateStatus(ctx, e.job.ScanID, st, action); err != nil {
		logrus.Debugf("Scan %s: update status: %v", e.job.ScanID, err)
	}
}

func (e *Engine) emit(ctx context.Context, ev events.Event) {
	if e.deps.Dispatcher != nil {
		e.deps.Dispatcher.Dispatch(ctx, ev)
	}
}
