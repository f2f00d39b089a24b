package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/sitehawk/sitehawk/pkg/checks"
	"github.com/sitehawk/sitehawk/pkg/config"
	"github.com/sitehawk/sitehawk/pkg/defaults"
	"github.com/sitehawk/sitehawk/pkg/dispatch"
	"github.com/sitehawk/sitehawk/pkg/events"
	"github.com/sitehawk/sitehawk/pkg/finding"
	"github.com/sitehawk/sitehawk/pkg/hooks"
	"github.com/sitehawk/sitehawk/pkg/report"
	"github.com/sitehawk/sitehawk/pkg/scan"
	"github.com/sitehawk/sitehawk/pkg/store"
	"github.com/sitehawk/sitehawk/pkg/ui"
	"github.com/sitehawk/sitehawk/presets"
)

// scanStore is the full surface the CLI needs from a results backend:
// the engine-facing sink, the read side, and registration/browsing.
type scanStore interface {
	store.Store
	store.Reader
	RegisterScan(ctx context.Context, scanID, projectID, startURL string) error
	ListScans(ctx context.Context) ([]*store.ScanRecord, error)
}

// runScan crawls one site and records findings to the results store.
func runScan() {
	fs := flag.NewFlagSet("scan", flag.ExitOnError)

	var target string
	fs.StringVar(&target, "u", "", "Target URL to scan")
	fs.StringVar(&target, "target", "", "Target URL (alias)")
	// Read early by presetArg; registered here so Parse accepts it.
	fs.String("preset", "", "Bundled preset ("+strings.Join(presets.Names(), ", ")+") or YAML file path")
	projectID := fs.String("project", "", "Project id recorded with the scan")
	dbPath := fs.String("db", defaults.DBPath, `SQLite results database ("memory" keeps results in process)`)

	var outPath, outFormat string
	fs.StringVar(&outPath, "o", "", "Write a report to this file after the scan")
	fs.StringVar(&outPath, "output", "", "Report file (alias)")
	fs.StringVar(&outFormat, "format", "", "Report format: "+strings.Join(report.Formats(), ", "))

	metricsPort := fs.Int("metrics-port", 0, "Serve Prometheus metrics on this port while scanning")
	otelEndpoint := fs.String("otel", "", "OTLP gRPC endpoint for scan traces (host:port)")
	otelInsecure := fs.Bool("otel-insecure", false, "Connect to the OTLP endpoint without TLS")
	logEvents := fs.Bool("log-events", false, "Mirror scan events into the process log")

	silent := fs.Bool("silent", false, "Suppress terminal output")
	fs.BoolVar(silent, "s", false, "Silent (alias)")
	noColor := fs.Bool("no-color", false, "Disable colored output")
	fs.BoolVar(noColor, "nc", false, "No color (alias)")
	verbose := fs.Bool("verbose", false, "Print every crawled page")
	fs.BoolVar(verbose, "v", false, "Verbose (alias)")

	// The preset seeds the config before flag registration so unset
	// flags keep preset values instead of clobbering them.
	cfg := config.Default()
	if p := presetArg(os.Args[2:]); p != "" {
		var err error
		if cfg, err = config.LoadPreset(p); err != nil {
			exitWithError("%v", err)
		}
	}
	config.RegisterFlags(fs, &cfg)
	fs.Parse(os.Args[2:])

	ui.SetSilent(*silent)
	ui.SetNoColor(*noColor)

	if target == "" {
		exitWithUsage("Target URL is required", "sitehawk scan -u https://example.com")
	}
	if err := cfg.Validate(); err != nil {
		exitWithError("%v", err)
	}

	ui.PrintBanner(defaults.Version)
	banner := map[string]string{
		"Target":      target,
		"Depth":       fmt.Sprintf("%d", cfg.MaxDepth),
		"Pages":       fmt.Sprintf("%d", cfg.MaxPages),
		"Concurrency": fmt.Sprintf("%d", cfg.Concurrency),
		"Database":    *dbPath,
	}
	if !cfg.RespectRobots {
		banner["Robots"] = "ignored"
	}
	if cfg.Auth.Enabled() {
		banner["Auth"] = cfg.Auth.Username
	}
	if cfg.Proxy != "" {
		banner["Proxy"] = cfg.Proxy
	}
	ui.PrintConfigBanner(banner)

	st, err := openStore(*dbPath)
	if err != nil {
		exitWithError("Opening results store: %v", err)
	}
	defer st.Close()

	var runner *checks.Runner
	if cfg.ScriptDir != "" {
		r, errs := checks.LoadDir(cfg.ScriptDir)
		for _, e := range errs {
			ui.PrintWarning(fmt.Sprintf("Check script skipped: %v", e))
		}
		if r.Len() > 0 {
			ui.PrintInfo(fmt.Sprintf("Loaded %d custom checks from %s", r.Len(), cfg.ScriptDir))
		}
		runner = r
	}

	disp := dispatch.New(dispatch.Config{})
	defer disp.Close()

	progress := ui.NewProgress(ui.ProgressConfig{MaxPages: cfg.MaxPages})
	disp.RegisterHook(&uiHook{progress: progress, verbose: *verbose})

	if *logEvents {
		disp.RegisterHook(hooks.NewLoggerHook(logrus.StandardLogger()))
	}
	if *metricsPort > 0 {
		ph, err := hooks.NewPrometheusHook(hooks.PrometheusOptions{Port: *metricsPort})
		if err != nil {
			ui.PrintWarning(fmt.Sprintf("Metrics disabled: %v", err))
		} else {
			disp.RegisterHook(ph)
			ui.PrintInfo(fmt.Sprintf("Metrics on http://%s%s", ph.MetricsAddr(), defaults.MetricsPath))
		}
	}
	if *otelEndpoint != "" {
		oh, err := hooks.NewOTelHook(hooks.OTelOptions{
			Endpoint: *otelEndpoint,
			Insecure: *otelInsecure,
		})
		if err != nil {
			ui.PrintWarning(fmt.Sprintf("Tracing disabled: %v", err))
		} else {
			disp.RegisterHook(oh)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	scanID := uuid.NewString()
	if err := st.RegisterScan(ctx, scanID, *projectID, target); err != nil {
		exitWithError("Registering scan: %v", err)
	}

	progress.Start()
	runErr := scan.Run(ctx,
		scan.Job{ScanID: scanID, ProjectID: *projectID, StartURL: target},
		cfg,
		scan.Deps{Store: st, Dispatcher: disp, Checks: runner})
	progress.Stop()
	if runErr != nil {
		exitWithError("Scan failed: %v", runErr)
	}

	rep, err := report.Load(ctx, st, scanID)
	if err != nil {
		exitWithError("Loading results: %v", err)
	}
	sum := rep.Summarize()
	ui.PrintScanSummary(uiSummary(sum))
	ui.PrintConfigLine("Scan ID", scanID)

	if outPath != "" || outFormat != "" {
		format := formatForPath(outPath, outFormat)
		if err := writeReport(rep, outPath, format); err != nil {
			exitWithError("%v", err)
		}
		if outPath != "" {
			ui.PrintSuccess(fmt.Sprintf("Report written to %s (%s)", outPath, format))
		}
	}

	if sum.Status == store.StatusFailed {
		os.Exit(1)
	}
}

// uiHook drives the terminal display from the scan event stream.
type uiHook struct {
	progress *ui.Progress
	verbose  bool
}

func (h *uiHook) OnEvent(ctx context.Context, event events.Event) error {
	switch e := event.(type) {
	case *events.PageCrawledEvent:
		h.progress.PageCrawled()
		h.progress.SetAction(e.URL)
		if h.verbose {
			ui.PrintPage(e.URL, e.StatusCode, e.Title, e.Technologies, e.SecurityScore)
		}
	case *events.FindingReportedEvent:
		h.progress.FindingReported()
		f := e.Finding
		ui.PrintFinding(string(f.Severity), f.CWE, f.Title, f.Location)
	}
	return nil
}

func (h *uiHook) EventTypes() []events.Type {
	return []events.Type{events.TypePageCrawled, events.TypeFindingReported}
}

// presetArg pre-scans args for -preset so the config can be seeded
// before flag registration binds the remaining defaults.
func presetArg(args []string) string {
	for i, a := range args {
		for _, name := range []string{"-preset", "--preset"} {
			if a == name && i+1 < len(args) {
				return args[i+1]
			}
			if strings.HasPrefix(a, name+"=") {
				return strings.TrimPrefix(a, name+"=")
			}
		}
	}
	return ""
}

// openStore picks the results backend. "memory" is for dry runs; the
// results vanish with the process.
func openStore(path string) (scanStore, error) {
	if path == "memory" || path == ":memory:" {
		return store.NewMemory(), nil
	}
	return store.OpenSQLite(path)
}

// formatForPath resolves the report format, inferring from the file
// extension when -format is not given.
func formatForPath(path, explicit string) string {
	if explicit != "" {
		return explicit
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".html", ".htm":
		return "html"
	case ".md", ".markdown":
		return "markdown"
	case ".pdf":
		return "pdf"
	case ".sarif":
		return "sarif"
	default:
		return "jsonl"
	}
}

// writeReport renders rep to path in the given format. An empty path
// writes to stdout.
func writeReport(rep *report.Report, path, format string) error {
	w, err := report.Create(path, format)
	if err != nil {
		return err
	}
	if err := w.Write(rep); err != nil {
		w.Close()
		return fmt.Errorf("rendering report: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("finishing report: %w", err)
	}
	return nil
}

// uiSummary maps report numbers onto the terminal summary box.
func uiSummary(sum report.Summary) ui.ScanSummary {
	return ui.ScanSummary{
		Target:   sum.Target,
		Status:   string(sum.Status),
		Pages:    sum.Pages,
		Findings: sum.Findings,
		Critical: sum.BySeverity[finding.Critical],
		High:     sum.BySeverity[finding.High],
		Medium:   sum.BySeverity[finding.Medium],
		Low:      sum.BySeverity[finding.Low],
		Info:     sum.BySeverity[finding.Info],
		AvgScore: sum.AvgScore,
		Duration: sum.Duration,
	}
}
