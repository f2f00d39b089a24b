package hooks

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/sitehawk/sitehawk/pkg/defaults"
	"github.com/sitehawk/sitehawk/pkg/dispatch"
	"github.com/sitehawk/sitehawk/pkg/events"
	"github.com/sitehawk/sitehawk/pkg/finding"
	"github.com/sitehawk/sitehawk/pkg/store"
)

// Compile-time interface check.
var _ dispatch.Hook = (*OTelHook)(nil)

// OTelHook exports scan telemetry to an OpenTelemetry collector. Each
// scan becomes a root span; every crawled page becomes a child span
// covering its fetch-and-analyze window, and findings are recorded as
// span events on the root.
type OTelHook struct {
	opts           OTelOptions
	tracerProvider *sdktrace.TracerProvider
	tracer         trace.Tracer

	mu       sync.Mutex
	rootSpan trace.Span
	rootCtx  context.Context
	closed   bool
}

// OTelOptions configures the OpenTelemetry hook behavior.
type OTelOptions struct {
	// Endpoint is the OTLP endpoint (e.g., "localhost:4317").
	Endpoint string

	// ServiceName is the service name for traces (default: "sitehawk").
	ServiceName string

	// Insecure uses an insecure connection (no TLS).
	Insecure bool

	// Headers contains additional headers for the OTLP exporter.
	Headers map[string]string

	// ShutdownTimeout is the timeout for graceful shutdown (default: 5s).
	ShutdownTimeout time.Duration

	// ConnectionTimeout is the timeout for establishing the exporter
	// connection (default: 10s).
	ConnectionTimeout time.Duration
}

// NewOTelHook creates an OpenTelemetry hook exporting to the configured
// endpoint. Connection failures degrade silently rather than blocking
// the scan.
func NewOTelHook(opts OTelOptions) (*OTelHook, error) {
	if opts.ServiceName == "" {
		opts.ServiceName = defaults.ToolName
	}
	if opts.Endpoint == "" {
		opts.Endpoint = "localhost:4317"
	}
	if opts.ShutdownTimeout == 0 {
		opts.ShutdownTimeout = defaults.TelemetryShutdownTimeout
	}
	if opts.ConnectionTimeout == 0 {
		opts.ConnectionTimeout = defaults.TelemetryConnectTimeout
	}

	grpcOpts := []grpc.DialOption{}
	if opts.Insecure {
		grpcOpts = append(grpcOpts, grpc.WithTransportCredentials(insecure.NewCredentials()))
	}

	exporterOpts := []otlptracegrpc.Option{
		otlptracegrpc.WithEndpoint(opts.Endpoint),
		otlptracegrpc.WithDialOption(grpcOpts...),
	}
	if opts.Insecure {
		exporterOpts = append(exporterOpts, otlptracegrpc.WithInsecure())
	}
	if len(opts.Headers) > 0 {
		exporterOpts = append(exporterOpts, otlptracegrpc.WithHeaders(opts.Headers))
	}

	ctx, cancel := context.WithTimeout(context.Background(), opts.ConnectionTimeout)
	defer cancel()

	exporter, err := otlptracegrpc.New(ctx, exporterOpts...)
	if err != nil {
		return nil, err
	}

	res := resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(opts.ServiceName),
		semconv.ServiceVersion(defaults.Version),
		attribute.String("service.component", "crawler"),
	)

	tracerProvider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	)
	otel.SetTracerProvider(tracerProvider)

	return &OTelHook{
		opts:           opts,
		tracerProvider: tracerProvider,
		tracer:         tracerProvider.Tracer("sitehawk/scan"),
	}, nil
}

// OnEvent exports telemetry for scan events.
func (h *OTelHook) OnEvent(ctx context.Context, event events.Event) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil
	}

	switch e := event.(type) {
	case *events.ScanStartedEvent:
		h.handleStart(ctx, e)
	case *events.PageCrawledEvent:
		h.handlePage(e)
	case *events.FindingReportedEvent:
		h.handleFinding(e)
	case *events.ScanFinishedEvent:
		h.handleFinished(e)
	}
	return nil
}

// handleStart creates the root span for the scan.
func (h *OTelHook) handleStart(ctx context.Context, e *events.ScanStartedEvent) {
	spanCtx, span := h.tracer.Start(ctx, "sitehawk.scan",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithTimestamp(e.Timestamp()),
		trace.WithAttributes(
			attribute.String("scan_id", e.ScanID()),
			attribute.String("start_url", e.StartURL),
			attribute.Int("max_depth", e.MaxDepth),
			attribute.Int("max_pages", e.MaxPages),
			attribute.Int("concurrency", e.Concurrency),
			attribute.Bool("authenticated", e.Authenticated),
		),
	)
	h.rootSpan = span
	h.rootCtx = spanCtx
}

// handlePage records the page as a child span spanning its fetch window.
func (h *OTelHook) handlePage(e *events.PageCrawledEvent) {
	if h.rootSpan == nil {
		return
	}

	started := e.Timestamp().Add(-time.Duration(e.DurationMs * float64(time.Millisecond)))
	_, span := h.tracer.Start(h.rootCtx, "sitehawk.page",
		trace.WithTimestamp(started),
		trace.WithAttributes(
			attribute.String("url", e.URL),
			attribute.Int("depth", e.Depth),
			attribute.Int("status_code", e.StatusCode),
			attribute.Int("links_found", e.LinksFound),
			attribute.Int("security_score", e.SecurityScore),
		),
	)
	span.End(trace.WithTimestamp(e.Timestamp()))
}

// handleFinding records the finding as a span event on the root.
func (h *OTelHook) handleFinding(e *events.FindingReportedEvent) {
	if h.rootSpan == nil {
		return
	}

	f := e.Finding
	h.rootSpan.AddEvent("finding_reported", trace.WithAttributes(
		attribute.String("title", f.Title),
		attribute.String("severity", string(f.Severity)),
		attribute.String("location", f.Location),
		attribute.String("cwe", f.CWE),
	))
	if f.Severity == finding.Critical || f.Severity == finding.High {
		h.rootSpan.SetStatus(codes.Error, f.Title)
	}
}

// handleFinished finalizes the root span.
func (h *OTelHook) handleFinished(e *events.ScanFinishedEvent) {
	if h.rootSpan == nil {
		return
	}

	h.rootSpan.SetAttributes(
		attribute.String("status", e.Status),
		attribute.Int("pages_crawled", e.PagesCrawled),
		attribute.Int("findings", e.Findings),
		attribute.Float64("duration_sec", e.DurationSec),
	)
	if e.Status == string(store.StatusFailed) {
		h.rootSpan.SetStatus(codes.Error, e.Reason)
	} else if e.Findings == 0 {
		h.rootSpan.SetStatus(codes.Ok, "Scan completed clean")
	}
	h.rootSpan.End(trace.WithTimestamp(e.Timestamp()))
	h.rootSpan = nil
}

// EventTypes returns the event types this hook handles.
func (h *OTelHook) EventTypes() []events.Type {
	return []events.Type{
		events.TypeScanStarted,
		events.TypePageCrawled,
		events.TypeFindingReported,
		events.TypeScanFinished,
	}
}

// Close ends any open span and flushes pending telemetry.
func (h *OTelHook) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil
	}
	h.closed = true

	if h.rootSpan != nil {
		h.rootSpan.End()
		h.rootSpan = nil
	}

	if h.tracerProvider != nil {
		ctx, cancel := context.WithTimeout(context.Background(), h.opts.ShutdownTimeout)
		defer cancel()
		if err := h.tracerProvider.Shutdown(ctx); err != nil {
			return fmt.Errorf("otel: shutdown tracer provider: %w", err)
		}
	}
	return nil
}

// Endpoint returns the OTLP endpoint being used.
func (h *OTelHook) Endpoint() string { return h.opts.Endpoint }

// ServiceName returns the service name being used.
func (h *OTelHook) ServiceName() string { return h.opts.ServiceName }
