package hooks

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/sitehawk/sitehawk/pkg/defaults"
	"github.com/sitehawk/sitehawk/pkg/dispatch"
	"github.com/sitehawk/sitehawk/pkg/events"
)

// Compile-time interface check.
var _ dispatch.Hook = (*PrometheusHook)(nil)

// PrometheusHook exposes crawl metrics for Prometheus scraping. It
// starts an HTTP server that serves metrics at the configured path.
type PrometheusHook struct {
	server   *http.Server
	registry *prometheus.Registry
	opts     PrometheusOptions

	pagesTotal    *prometheus.CounterVec
	findingsTotal *prometheus.CounterVec

	scanDurationSeconds *prometheus.GaugeVec
	securityScore       *prometheus.GaugeVec

	pageFetchSeconds *prometheus.HistogramVec

	mu     sync.Mutex
	target string
	closed bool
}

// PrometheusOptions configures the Prometheus hook behavior.
type PrometheusOptions struct {
	// Port for the metrics server (default: 9090).
	Port int

	// Path for the metrics endpoint (default: "/metrics").
	Path string

	// ReadTimeout for the HTTP server (default: 5s).
	ReadTimeout time.Duration

	// WriteTimeout for the HTTP server (default: 10s).
	WriteTimeout time.Duration
}

// NewPrometheusHook creates a Prometheus hook. The metrics server
// starts immediately and runs until Close is called.
func NewPrometheusHook(opts PrometheusOptions) (*PrometheusHook, error) {
	if opts.Port == 0 {
		opts.Port = defaults.MetricsPort
	}
	if opts.Path == "" {
		opts.Path = defaults.MetricsPath
	}
	if opts.ReadTimeout == 0 {
		opts.ReadTimeout = defaults.TelemetryShutdownTimeout
	}
	if opts.WriteTimeout == 0 {
		opts.WriteTimeout = defaults.TelemetryConnectTimeout
	}

	// Own registry so the process default stays clean.
	hook := &PrometheusHook{
		registry: prometheus.NewRegistry(),
		opts:     opts,
	}
	if err := hook.initMetrics(); err != nil {
		return nil, fmt.Errorf("initialize metrics: %w", err)
	}
	hook.startServer()
	return hook, nil
}

func (h *PrometheusHook) initMetrics() error {
	h.pagesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sitehawk_pages_crawled_total",
			Help: "Total number of pages fetched and analyzed",
		},
		[]string{"host"},
	)

	h.findingsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sitehawk_findings_total",
			Help: "Total number of security findings reported",
		},
		[]string{"host", "severity"},
	)

	h.scanDurationSeconds = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "sitehawk_scan_duration_seconds",
			Help: "Total scan duration in seconds",
		},
		[]string{"host"},
	)

	h.securityScore = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "sitehawk_security_score",
			Help: "Most recent security header score per page host (0-100)",
		},
		[]string{"host"},
	)

	h.pageFetchSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sitehawk_page_fetch_seconds",
			Help:    "Page fetch and analysis time distribution in seconds",
			Buckets: []float64{0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0},
		},
		[]string{"host"},
	)

	collectors := []prometheus.Collector{
		h.pagesTotal,
		h.findingsTotal,
		h.scanDurationSeconds,
		h.securityScore,
		h.pageFetchSeconds,
	}
	for _, c := range collectors {
		if err := h.registry.Register(c); err != nil {
			return err
		}
	}
	return nil
}

func (h *PrometheusHook) startServer() {
	mux := http.NewServeMux()
	mux.Handle(h.opts.Path, promhttp.HandlerFor(h.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	}))

	h.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", h.opts.Port),
		Handler:      mux,
		ReadTimeout:  h.opts.ReadTimeout,
		WriteTimeout: h.opts.WriteTimeout,
	}

	go func() {
		if err := h.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logrus.Errorf("Metrics server error: %v", err)
		}
	}()
}

// OnEvent updates metrics from scan events.
func (h *PrometheusHook) OnEvent(ctx context.Context, event events.Event) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil
	}

	switch e := event.(type) {
	case *events.ScanStartedEvent:
		h.target = hostLabel(e.StartURL)
	case *events.PageCrawledEvent:
		host := hostLabel(e.URL)
		h.pagesTotal.WithLabelValues(host).Inc()
		h.securityScore.WithLabelValues(host).Set(float64(e.SecurityScore))
		if e.DurationMs > 0 {
			h.pageFetchSeconds.WithLabelValues(host).Observe(e.DurationMs / 1000.0)
		}
	case *events.FindingReportedEvent:
		h.findingsTotal.WithLabelValues(hostLabel(e.Finding.Location), string(e.Finding.Severity)).Inc()
	case *events.ScanFinishedEvent:
		h.scanDurationSeconds.WithLabelValues(h.target).Set(e.DurationSec)
	}
	return nil
}

// EventTypes returns the event types this hook handles.
func (h *PrometheusHook) EventTypes() []events.Type {
	return []events.Type{
		events.TypeScanStarted,
		events.TypePageCrawled,
		events.TypeFindingReported,
		events.TypeScanFinished,
	}
}

// Close shuts down the metrics server.
func (h *PrometheusHook) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil
	}
	h.closed = true

	if h.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), defaults.TelemetryShutdownTimeout)
		defer cancel()
		return h.server.Shutdown(ctx)
	}
	return nil
}

// MetricsAddr returns the address where metrics are served.
func (h *PrometheusHook) MetricsAddr() string {
	return fmt.Sprintf("http://localhost:%d%s", h.opts.Port, h.opts.Path)
}

// hostLabel extracts the host from a URL for use as a metric label.
// Returns "unknown" when the URL is empty or malformed.
func hostLabel(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return "unknown"
	}
	return u.Host
}
