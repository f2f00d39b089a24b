package mcpserver

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/sitehawk/sitehawk/pkg/config"
	"github.com/sitehawk/sitehawk/pkg/defaults"
	"github.com/sitehawk/sitehawk/pkg/dispatch"
	"github.com/sitehawk/sitehawk/pkg/events"
	"github.com/sitehawk/sitehawk/pkg/finding"
	"github.com/sitehawk/sitehawk/pkg/report"
	"github.com/sitehawk/sitehawk/pkg/safety"
	"github.com/sitehawk/sitehawk/pkg/scan"
	"github.com/sitehawk/sitehawk/pkg/store"
)

// registerTools adds the scan tools to the MCP server.
func (s *Server) registerTools() {
	s.addScanRunTool()
	s.addScanStatusTool()
	s.addScanFindingsTool()
}

// ═══════════════════════════════════════════════════════════════════════════
// scan_run — Crawl a site and report findings
// ═══════════════════════════════════════════════════════════════════════════

func (s *Server) addScanRunTool() {
	s.mcp.AddTool(
		&mcp.Tool{
			Name:  "scan_run",
			Title: "Run Site Scan",
			Description: `Crawl a start URL with a real browser, run passive security checks against every page, and record findings in the scan store. This is the core scanning tool.

USE THIS TOOL WHEN:
• The user says "scan this site", "check example.com", or "audit this URL"
• You need findings (missing headers, mixed content, leaked comments) for a site
• You want page inventory with titles, technologies, and security scores

DO NOT USE THIS TOOL WHEN:
• You only want the results of an earlier scan — use 'scan_status' or 'scan_findings'
• The user has not confirmed they are authorized to test the target

BEHAVIOR:
• The crawl stays on the start URL's origin and respects robots.txt by default
• Loopback, private-network, and cloud-metadata targets are refused
• The call BLOCKS until the crawl finishes — keep max_pages small (10-50) to bound the wait
• Findings and pages are persisted as they are produced; scan_status from another session sees live progress

EXAMPLE INPUTS:
• Quick look:    {"target": "https://example.com"}
• Bounded crawl: {"target": "https://example.com", "max_depth": 2, "max_pages": 25}
• Gentle pace:   {"target": "https://prod.example.com", "concurrency": 1, "delay_ms": 1000}
• Through proxy: {"target": "https://example.com", "proxy": "http://127.0.0.1:8080"}

Returns: scan_id, final status, page and finding counts by severity, detected technologies, average security score, and duration.`,
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"target": map[string]any{
						"type":        "string",
						"description": "Start URL to crawl (e.g. https://example.com).",
						"format":      "uri",
					},
					"project_id": map[string]any{
						"type":        "string",
						"description": "Optional project identifier recorded on the scan.",
					},
					"max_depth": map[string]any{
						"type":        "integer",
						"description": "Link distance from the start URL. The start page is depth 0.",
						"default":     defaults.DepthDefault,
						"minimum":     1,
						"maximum":     defaults.DepthMax,
					},
					"max_pages": map[string]any{
						"type":        "integer",
						"description": "Page budget for the whole crawl.",
						"default":     defaults.PagesMedium,
						"minimum":     1,
						"maximum":     defaults.PagesMax,
					},
					"concurrency": map[string]any{
						"type":        "integer",
						"description": "Number of browser tabs crawling in parallel.",
						"default":     defaults.ConcurrencyMinimal,
						"minimum":     1,
						"maximum":     defaults.ConcurrencyMax,
					},
					"delay_ms": map[string]any{
						"type":        "integer",
						"description": "Per-worker pause between page visits, in milliseconds.",
						"default":     500,
						"minimum":     0,
						"maximum":     60000,
					},
					"requests_per_second": map[string]any{
						"type":        "number",
						"description": "Optional shared rate cap across all workers. Zero leaves only the per-worker delay.",
						"minimum":     0,
					},
					"respect_robots": map[string]any{
						"type":        "boolean",
						"description": "Honor the origin's robots.txt rules.",
						"default":     true,
					},
					"user_agent": map[string]any{
						"type":        "string",
						"description": "User-Agent the crawler identifies as; robots rules match against it.",
					},
					"proxy": map[string]any{
						"type":        "string",
						"description": "Proxy URL for browser and side-fetch traffic (e.g. http://127.0.0.1:8080).",
						"format":      "uri",
					},
					"navigation_timeout": map[string]any{
						"type":        "integer",
						"description": "Seconds allowed for one page load.",
						"default":     30,
						"minimum":     1,
						"maximum":     120,
					},
				},
				"required": []string{"target"},
			},
			Annotations: &mcp.ToolAnnotations{
				ReadOnlyHint:    false,
				IdempotentHint:  false,
				OpenWorldHint:   boolPtr(true),
				DestructiveHint: boolPtr(false),
				Title:           "Run Site Scan",
			},
		},
		loggedTool("scan_run", s.handleScanRun),
	)
}

type scanRunArgs struct {
	Target            string  `json:"target"`
	ProjectID         string  `json:"project_id"`
	MaxDepth          int     `json:"max_depth"`
	MaxPages          int     `json:"max_pages"`
	Concurrency       int     `json:"concurrency"`
	DelayMS           int     `json:"delay_ms"`
	RequestsPerSecond float64 `json:"requests_per_second"`
	RespectRobots     *bool   `json:"respect_robots"`
	UserAgent         string  `json:"user_agent"`
	Proxy             string  `json:"proxy"`
	NavigationTimeout int     `json:"navigation_timeout"`
}

type scanRunResult struct {
	Summary        string         `json:"summary"`
	ScanID         string         `json:"scan_id"`
	Target         string         `json:"target"`
	Status         string         `json:"status"`
	Pages          int            `json:"pages"`
	Findings       int            `json:"findings"`
	BySeverity     map[string]int `json:"by_severity,omitempty"`
	Technologies   []string       `json:"technologies,omitempty"`
	AvgScore       int            `json:"avg_security_score"`
	Duration       string         `json:"duration"`
	Interpretation string         `json:"interpretation"`
	NextSteps      []string       `json:"next_steps"`
}

func (s *Server) handleScanRun(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args scanRunArgs
	if err := parseArgs(req, &args); err != nil {
		return errorResult(fmt.Sprintf("invalid arguments: %v", err)), nil
	}

	if args.Target == "" {
		return errorResult(`target URL is required. Example: {"target": "https://example.com"}`), nil
	}
	if err := validateTargetURL(args.Target); err != nil {
		return errorResult(err.Error()), nil
	}
	// Gate up front so an unsafe target never even registers a scan.
	// The engine re-checks; this is the fast, clear error path.
	if v := safety.Check(args.Target); !v.Safe {
		return enrichedError(
			fmt.Sprintf("start url rejected: %s", v.Reason),
			[]string{
				"Pick a publicly reachable http(s) host.",
				"Loopback, private-network, and cloud-metadata targets cannot be scanned.",
			}), nil
	}
	if s.config.Store == nil {
		return errorResult("no scan store is configured on this server"), nil
	}

	cfg := s.scanConfig(&args)
	scanID := uuid.NewString()

	if err := s.config.Store.RegisterScan(ctx, scanID, args.ProjectID, args.Target); err != nil {
		return enrichedError(
			fmt.Sprintf("failed to register scan: %v", err),
			[]string{
				"Check that the store database is writable.",
				"Retry with a fresh scan_run call.",
			}), nil
	}

	// Per-call dispatcher: the MCP bridge streams progress to this
	// session, and the server-wide dispatcher still sees every event.
	disp := dispatch.New(dispatch.Config{})
	disp.RegisterHook(relayHook(req, cfg.MaxPages))
	if outer := s.config.Dispatcher; outer != nil {
		disp.RegisterHook(NewHook(func(ctx context.Context, ev events.Event) {
			outer.Dispatch(ctx, ev)
		}))
	}

	job := scan.Job{ScanID: scanID, ProjectID: args.ProjectID, StartURL: args.Target}
	deps := scan.Deps{
		Driver:     s.config.Driver,
		Store:      s.config.Store,
		Robots:     s.config.Robots,
		Dispatcher: disp,
		Checks:     s.checks,
		Fetcher:    s.config.Fetcher,
	}

	if err := scan.Run(ctx, job, cfg, deps); err != nil {
		return enrichedError(
			fmt.Sprintf("scan %s failed: %v", scanID, err),
			[]string{
				"Check that the target is reachable from this host.",
				fmt.Sprintf(`Call scan_status with {"scan_id": %q} for the recorded failure detail.`, scanID),
			}), nil
	}

	rep, err := report.Load(ctx, s.config.Store, scanID)
	if err != nil {
		return enrichedError(
			fmt.Sprintf("scan %s finished but loading its results failed: %v", scanID, err),
			[]string{
				fmt.Sprintf(`Call scan_findings with {"scan_id": %q} to read the findings directly.`, scanID),
			}), nil
	}
	sum := rep.Summarize()

	return jsonResult(scanRunResult{
		Summary: fmt.Sprintf("Crawled %d pages under %s and recorded %d findings (%s).",
			sum.Pages, args.Target, sum.Findings, severityLine(sum.BySeverity)),
		ScanID:         scanID,
		Target:         args.Target,
		Status:         string(sum.Status),
		Pages:          sum.Pages,
		Findings:       sum.Findings,
		BySeverity:     severityCounts(sum.BySeverity),
		Technologies:   sum.Technologies,
		AvgScore:       sum.AvgScore,
		Duration:       sum.Duration.Round(time.Millisecond).String(),
		Interpretation: interpretScan(sum.BySeverity, sum.Pages),
		NextSteps: []string{
			fmt.Sprintf(`Call scan_findings with {"scan_id": %q} to read the findings.`, scanID),
			fmt.Sprintf(`Call scan_findings with {"scan_id": %q, "min_severity": "high"} to focus on high-impact items.`, scanID),
		},
	})
}

// scanConfig copies the baseline configuration, applies the call's
// overrides, and clamps everything to the documented bounds.
func (s *Server) scanConfig(args *scanRunArgs) config.Scan {
	cfg := *s.config.Scan

	if args.MaxDepth > 0 {
		cfg.MaxDepth = args.MaxDepth
	}
	if args.MaxPages > 0 {
		cfg.MaxPages = args.MaxPages
	}
	if args.Concurrency > 0 {
		cfg.Concurrency = args.Concurrency
	}
	if args.DelayMS > 0 {
		cfg.Delay = time.Duration(args.DelayMS) * time.Millisecond
	}
	if args.RequestsPerSecond > 0 {
		cfg.RequestsPerSecond = args.RequestsPerSecond
	}
	if args.RespectRobots != nil {
		cfg.RespectRobots = *args.RespectRobots
	}
	if args.UserAgent != "" {
		cfg.UserAgent = args.UserAgent
	}
	if args.Proxy != "" {
		cfg.Proxy = args.Proxy
	}
	if args.NavigationTimeout > 0 {
		cfg.NavigationTimeout = time.Duration(args.NavigationTimeout) * time.Second
	}

	if cfg.MaxDepth > defaults.DepthMax {
		cfg.MaxDepth = defaults.DepthMax
	}
	if cfg.MaxPages > defaults.PagesMax {
		cfg.MaxPages = defaults.PagesMax
	}
	if cfg.Concurrency > defaults.ConcurrencyMax {
		cfg.Concurrency = defaults.ConcurrencyMax
	}
	if cfg.Delay > time.Minute {
		cfg.Delay = time.Minute
	}
	if cfg.NavigationTimeout > 2*time.Minute {
		cfg.NavigationTimeout = 2 * time.Minute
	}
	return cfg
}

// ═══════════════════════════════════════════════════════════════════════════
// scan_status — Lifecycle state and counts for one scan
// ═══════════════════════════════════════════════════════════════════════════

func (s *Server) addScanStatusTool() {
	s.mcp.AddTool(
		&mcp.Tool{
			Name:  "scan_status",
			Title: "Get Scan Status",
			Description: `Report the lifecycle state, progress, and counts for a scan id. READ-ONLY — touches only the local scan store, never the target.

USE THIS TOOL WHEN:
• You have a scan_id from scan_run (or from a CLI run sharing the same store) and want its state
• You want page and finding counts without the full findings payload
• A scan started in another session and you want to watch its progress

DO NOT USE THIS TOOL WHEN:
• You want the actual findings — use 'scan_findings' instead
• You have no scan_id yet — run 'scan_run' first

STATUS MEANINGS:
• "queued"    = registered, crawl not started
• "running"   = crawl in progress; progress is 0-100 and action names the current step
• "completed" = crawl finished; counts are final
• "failed"    = crawl aborted; recent_logs carries the diagnostic

EXAMPLE: {"scan_id": "3b9e..."}`,
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"scan_id": map[string]any{
						"type":        "string",
						"description": "The scan id returned by scan_run.",
					},
				},
				"required": []string{"scan_id"},
			},
			Annotations: &mcp.ToolAnnotations{
				ReadOnlyHint:   true,
				IdempotentHint: true,
				Title:          "Get Scan Status",
			},
		},
		loggedTool("scan_status", s.handleScanStatus),
	)
}

type scanStatusResult struct {
	Summary    string   `json:"summary"`
	ScanID     string   `json:"scan_id"`
	Target     string   `json:"target,omitempty"`
	ProjectID  string   `json:"project_id,omitempty"`
	Status     string   `json:"status"`
	Progress   int      `json:"progress"`
	Action     string   `json:"action,omitempty"`
	Pages      int      `json:"pages"`
	Findings   int      `json:"findings"`
	CreatedAt  string   `json:"created_at,omitempty"`
	UpdatedAt  string   `json:"updated_at,omitempty"`
	RecentLogs []string `json:"recent_logs,omitempty"`
	NextSteps  []string `json:"next_steps,omitempty"`
}

func (s *Server) handleScanStatus(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args struct {
		ScanID string `json:"scan_id"`
	}
	if err := parseArgs(req, &args); err != nil {
		return errorResult(fmt.Sprintf("invalid arguments: %v", err)), nil
	}
	if args.ScanID == "" {
		return errorResult(`scan_id is required. Example: {"scan_id": "3b9e..."}`), nil
	}
	if s.config.Store == nil {
		return errorResult("no scan store is configured on this server"), nil
	}

	rec, err := s.config.Store.GetScan(ctx, args.ScanID)
	if err != nil {
		if errors.Is(err, store.ErrScanNotFound) {
			return enrichedError(
				fmt.Sprintf("scan %q not found", args.ScanID),
				[]string{
					"Use the scan_id exactly as returned by scan_run.",
					"Scans live in the store this server was started with; a different database will not have them.",
				}), nil
		}
		return errorResult(fmt.Sprintf("loading scan: %v", err)), nil
	}

	pages, err := s.config.Store.ListPages(ctx, args.ScanID)
	if err != nil {
		return errorResult(fmt.Sprintf("listing pages: %v", err)), nil
	}
	findings, err := s.config.Store.ListFindings(ctx, args.ScanID)
	if err != nil {
		return errorResult(fmt.Sprintf("listing findings: %v", err)), nil
	}

	out := scanStatusResult{
		Summary: fmt.Sprintf("Scan %s is %s: %d pages, %d findings.",
			rec.ID, rec.Status, len(pages), len(findings)),
		ScanID:    rec.ID,
		Target:    rec.StartURL,
		ProjectID: rec.ProjectID,
		Status:    string(rec.Status),
		Progress:  rec.Progress,
		Action:    rec.Action,
		Pages:     len(pages),
		Findings:  len(findings),
	}
	if !rec.CreatedAt.IsZero() {
		out.CreatedAt = rec.CreatedAt.UTC().Format(time.RFC3339)
	}
	if !rec.UpdatedAt.IsZero() {
		out.UpdatedAt = rec.UpdatedAt.UTC().Format(time.RFC3339)
	}
	if logs, err := s.config.Store.ListLogs(ctx, args.ScanID); err == nil {
		out.RecentLogs = tailLogs(logs, 5)
	}
	if len(findings) > 0 {
		out.NextSteps = []string{
			fmt.Sprintf(`Call scan_findings with {"scan_id": %q} to read the findings.`, rec.ID),
		}
	}
	return jsonResult(out)
}

// tailLogs formats the newest n log entries, oldest first.
func tailLogs(logs []*store.LogEntry, n int) []string {
	if len(logs) > n {
		logs = logs[len(logs)-n:]
	}
	out := make([]string, 0, len(logs))
	for _, e := range logs {
		out = append(out, fmt.Sprintf("%s %s: %s",
			e.LoggedAt.UTC().Format("15:04:05"), e.Level, e.Message))
	}
	return out
}

// ═══════════════════════════════════════════════════════════════════════════
// scan_findings — Severity-ranked findings for one scan
// ═══════════════════════════════════════════════════════════════════════════

func (s *Server) addScanFindingsTool() {
	s.mcp.AddTool(
		&mcp.Tool{
			Name:  "scan_findings",
			Title: "List Scan Findings",
			Description: `List the findings one scan recorded, ranked severity-first. READ-ONLY — touches only the local scan store, never the target.

USE THIS TOOL WHEN:
• You have a scan_id and the user asks "what did you find?"
• You want to focus a long report: set min_severity to "high" and read the worst items first
• You want finding detail (evidence, remediation, CWE) rather than counts

DO NOT USE THIS TOOL WHEN:
• You only want counts and lifecycle state — use 'scan_status' instead
• You have no scan_id yet — run 'scan_run' first

FILTERING:
• min_severity keeps findings at or above that rank (critical > high > medium > low > info)
• limit caps how many findings come back (default 50); "total" in the result is the pre-limit count

Each finding carries: title, severity, location URL, description, evidence where available, remediation hint, and CWE id.

EXAMPLE INPUTS:
• Everything:     {"scan_id": "3b9e..."}
• High and worse: {"scan_id": "3b9e...", "min_severity": "high"}
• First ten:      {"scan_id": "3b9e...", "limit": 10}`,
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"scan_id": map[string]any{
						"type":        "string",
						"description": "The scan id returned by scan_run.",
					},
					"min_severity": map[string]any{
						"type":        "string",
						"description": "Keep findings at or above this severity.",
						"enum":        []string{"critical", "high", "medium", "low", "info"},
					},
					"limit": map[string]any{
						"type":        "integer",
						"description": "Maximum findings to return.",
						"default":     50,
						"minimum":     1,
						"maximum":     500,
					},
				},
				"required": []string{"scan_id"},
			},
			Annotations: &mcp.ToolAnnotations{
				ReadOnlyHint:   true,
				IdempotentHint: true,
				Title:          "List Scan Findings",
			},
		},
		loggedTool("scan_findings", s.handleScanFindings),
	)
}

type scanFindingsResult struct {
	Summary     string             `json:"summary"`
	ScanID      string             `json:"scan_id"`
	Target      string             `json:"target,omitempty"`
	Total       int                `json:"total"`
	Returned    int                `json:"returned"`
	MinSeverity string             `json:"min_severity,omitempty"`
	BySeverity  map[string]int     `json:"by_severity,omitempty"`
	Findings    []*finding.Finding `json:"findings"`
}

func (s *Server) handleScanFindings(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args struct {
		ScanID      string `json:"scan_id"`
		MinSeverity string `json:"min_severity"`
		Limit       int    `json:"limit"`
	}
	if err := parseArgs(req, &args); err != nil {
		return errorResult(fmt.Sprintf("invalid arguments: %v", err)), nil
	}
	if args.ScanID == "" {
		return errorResult(`scan_id is required. Example: {"scan_id": "3b9e..."}`), nil
	}
	if s.config.Store == nil {
		return errorResult("no scan store is configured on this server"), nil
	}

	floor := 0
	if args.MinSeverity != "" {
		sev, ok := finding.ParseSeverity(args.MinSeverity)
		if !ok {
			return errorResult(fmt.Sprintf(
				"unknown severity %q (use critical, high, medium, low, or info)", args.MinSeverity)), nil
		}
		floor = sev.Score()
	}
	limit := args.Limit
	if limit <= 0 {
		limit = 50
	}
	if limit > 500 {
		limit = 500
	}

	rec, err := s.config.Store.GetScan(ctx, args.ScanID)
	if err != nil {
		if errors.Is(err, store.ErrScanNotFound) {
			return enrichedError(
				fmt.Sprintf("scan %q not found", args.ScanID),
				[]string{
					"Use the scan_id exactly as returned by scan_run.",
					"Scans live in the store this server was started with; a different database will not have them.",
				}), nil
		}
		return errorResult(fmt.Sprintf("loading scan: %v", err)), nil
	}

	all, err := s.config.Store.ListFindings(ctx, args.ScanID)
	if err != nil {
		return errorResult(fmt.Sprintf("listing findings: %v", err)), nil
	}

	kept := all[:0]
	for _, f := range all {
		if f.Severity.Score() >= floor {
			kept = append(kept, f)
		}
	}
	sort.Slice(kept, func(i, j int) bool { return kept[i].SortKey() < kept[j].SortKey() })

	by := make(map[finding.Severity]int)
	for _, f := range kept {
		by[f.Severity]++
	}

	total := len(kept)
	if len(kept) > limit {
		kept = kept[:limit]
	}

	out := scanFindingsResult{
		Summary: fmt.Sprintf("%d findings for scan %s (%s).",
			total, rec.ID, severityLine(by)),
		ScanID:      rec.ID,
		Target:      rec.StartURL,
		Total:       total,
		Returned:    len(kept),
		MinSeverity: args.MinSeverity,
		BySeverity:  severityCounts(by),
		Findings:    kept,
	}
	if out.Findings == nil {
		out.Findings = []*finding.Finding{}
	}
	return jsonResult(out)
}

// ---------------------------------------------------------------------------
// Shared severity helpers
// ---------------------------------------------------------------------------

// severityCounts converts typed severity counts to the string-keyed
// map the JSON envelope carries.
func severityCounts(by map[finding.Severity]int) map[string]int {
	if len(by) == 0 {
		return nil
	}
	out := make(map[string]int, len(by))
	for sev, n := range by {
		out[string(sev)] = n
	}
	return out
}

// severityLine renders counts as "1 high, 2 medium", worst first.
func severityLine(by map[finding.Severity]int) string {
	var parts []string
	for _, sev := range finding.Ordered() {
		if n := by[sev]; n > 0 {
			parts = append(parts, fmt.Sprintf("%d %s", n, sev))
		}
	}
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, ", ")
}

// interpretScan is the one-line analysis the scan_run envelope carries.
func interpretScan(by map[finding.Severity]int, pages int) string {
	high := by[finding.Critical] + by[finding.High]
	total := 0
	for _, n := range by {
		total += n
	}
	switch {
	case pages == 0:
		return "No pages were crawled; check that the target is reachable and allows crawling."
	case high > 0:
		return fmt.Sprintf("%d high-impact findings need review before anything else.", high)
	case total > 0:
		return fmt.Sprintf("%d findings reported, none high impact; mostly hardening work.", total)
	default:
		return "No security findings; the crawled pages passed every enabled check."
	}
}
