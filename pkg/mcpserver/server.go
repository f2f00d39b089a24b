package mcpserver

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"runtime/debug"
	"sync/atomic"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sirupsen/logrus"

	"github.com/sitehawk/sitehawk/pkg/browser"
	"github.com/sitehawk/sitehawk/pkg/checks"
	"github.com/sitehawk/sitehawk/pkg/config"
	"github.com/sitehawk/sitehawk/pkg/defaults"
	"github.com/sitehawk/sitehawk/pkg/dispatch"
	"github.com/sitehawk/sitehawk/pkg/jsonutil"
	"github.com/sitehawk/sitehawk/pkg/robots"
	"github.com/sitehawk/sitehawk/pkg/scan"
	"github.com/sitehawk/sitehawk/pkg/store"
)

// Typed logging level constants. The MCP SDK defines LoggingLevel as a
// raw string type without exported constants.
const (
	logInfo    mcp.LoggingLevel = "info"
	logWarning mcp.LoggingLevel = "warning"
)

// Store is the persistence surface the tools need: the engine's write
// side, the query side, and scan registration. *store.Memory and
// *store.SQLite both satisfy it.
type Store interface {
	store.Store
	store.Reader
	RegisterScan(ctx context.Context, scanID, projectID, startURL string) error
}

// Config holds MCP server configuration.
type Config struct {
	// Store persists scans, pages, findings, and logs. The scan tools
	// answer errors until one is set.
	Store Store

	// Scan is the baseline crawl configuration; tool arguments
	// override individual fields per call. Nil means config.Default().
	Scan *config.Scan

	// Driver renders pages for every scan_run call. Nil launches
	// headless Chrome per scan.
	Driver browser.Driver

	// Fetcher performs side fetches (favicon probe). Nil builds one
	// from the scan config per run.
	Fetcher scan.Fetcher

	// Robots caches robots.txt policy across scan_run calls. Nil
	// builds a fresh cache per run when the config respects robots.
	Robots *robots.Cache

	// Dispatcher receives engine events in addition to the per-call
	// MCP progress bridge. Optional.
	Dispatcher *dispatch.Dispatcher
}

// Server wraps the MCP server with sitehawk's scan tools.
type Server struct {
	mcp    *mcp.Server
	config *Config
	checks *checks.Runner
	ready  atomic.Bool
}

// New creates an MCP server with the scan tools, resources, and
// prompts registered. The server reports ready once a store is
// present. Custom check scripts load here so a broken script surfaces
// at startup rather than mid-scan.
func New(cfg *Config) *Server {
	if cfg == nil {
		cfg = &Config{}
	}
	if cfg.Scan == nil {
		def := config.Default()
		cfg.Scan = &def
	}

	s := &Server{config: cfg}

	if dir := cfg.Scan.ScriptDir; dir != "" {
		runner, errs := checks.LoadDir(dir)
		for _, err := range errs {
			logrus.Warnf("MCP server: %v", err)
		}
		s.checks = runner
	}

	s.mcp = mcp.NewServer(
		&mcp.Implementation{
			Name:    defaults.ToolName,
			Title:   "SiteHawk MCP Server",
			Version: defaults.Version,
		},
		&mcp.ServerOptions{
			Instructions: serverInstructions,
		},
	)

	s.registerTools()
	s.registerResources()
	s.registerPrompts()

	if cfg.Store != nil {
		s.ready.Store(true)
	}
	return s
}

// MCPServer returns the underlying MCP server for direct access
// (e.g. testing).
func (s *Server) MCPServer() *mcp.Server { return s.mcp }

// IsReady reports whether the server has a store and can run scans.
// Until then the /health endpoint returns 503 Service Unavailable.
func (s *Server) IsReady() bool { return s.ready.Load() }

// RunStdio runs the MCP server over stdio transport. This is the mode
// IDE integrations use; it blocks until the client disconnects or ctx
// is canceled.
func (s *Server) RunStdio(ctx context.Context) error {
	return s.mcp.Run(ctx, &mcp.StdioTransport{})
}

// HTTPHandler returns an http.Handler for the streamable HTTP
// transport with CORS support and a /health endpoint, for remote and
// container deployments.
func (s *Server) HTTPHandler() http.Handler {
	streamable := mcp.NewStreamableHTTPHandler(
		func(_ *http.Request) *mcp.Server { return s.mcp },
		&mcp.StreamableHTTPOptions{Stateless: false},
	)

	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.Handle("/", streamable)

	return corsMiddleware(recoveryMiddleware(securityHeaders(mux)))
}

// handleHealth serves a readiness/liveness probe. 200 once a store is
// configured, 503 before.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if !s.IsReady() {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"status":"starting","service":"sitehawk-mcp"}`))
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok","service":"sitehawk-mcp"}`))
}

// corsMiddleware answers preflight and echoes the Origin so browser
// MCP clients can connect. The specific origin is echoed because a
// wildcard is invalid alongside Allow-Credentials.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")

		// Vary on Origin so caches never serve a CORS-enabled response
		// to a non-browser client or vice versa.
		w.Header().Add("Vary", "Origin")

		if origin == "" {
			next.ServeHTTP(w, r)
			return
		}

		w.Header().Set("Access-Control-Allow-Origin", origin)
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers",
			"Content-Type, Authorization, Mcp-Session-Id, MCP-Protocol-Version, Last-Event-ID, Accept")
		w.Header().Set("Access-Control-Expose-Headers", "Mcp-Session-Id, MCP-Protocol-Version")
		w.Header().Set("Access-Control-Allow-Credentials", "true")
		w.Header().Set("Access-Control-Max-Age", "86400")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// recoveryMiddleware converts handler panics into 500 responses so one
// bad request cannot take the transport down.
func recoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				logrus.Errorf("MCP handler panic: %v\n%s", err, debug.Stack())
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusInternalServerError)
				_, _ = w.Write([]byte(`{"error":"internal server error"}`))
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// securityHeaders adds baseline hardening headers to every response.
func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		next.ServeHTTP(w, r)
	})
}

// ---------------------------------------------------------------------------
// Helpers — result builders
// ---------------------------------------------------------------------------

// toolFunc is the tool handler signature the SDK expects. An alias
// keeps wrapped handlers assignable to the SDK's named type.
type toolFunc = func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error)

// loggedTool wraps a tool handler with invocation logging. Argument
// payloads are not logged; they can carry credentials.
func loggedTool(name string, h toolFunc) toolFunc {
	return func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		start := time.Now()
		res, err := h(ctx, req)
		elapsed := time.Since(start).Round(time.Millisecond)
		switch {
		case err != nil:
			logrus.Warnf("MCP tool %s: %v (%s)", name, err, elapsed)
		case res != nil && res.IsError:
			logrus.Debugf("MCP tool %s: tool error (%s)", name, elapsed)
		default:
			logrus.Debugf("MCP tool %s: ok (%s)", name, elapsed)
		}
		return res, err
	}
}

// notifyProgress sends a progress notification to the client if a
// progress token was provided in the request. Safe to call when the
// session or token is nil.
func notifyProgress(ctx context.Context, req *mcp.CallToolRequest, progress, total float64, message string) {
	token := req.Params.GetProgressToken()
	if token == nil || req.Session == nil {
		return
	}
	// Progress notifications are advisory; a delivery failure has no
	// meaningful recovery action.
	_ = req.Session.NotifyProgress(ctx, &mcp.ProgressNotificationParams{
		ProgressToken: token,
		Progress:      progress,
		Total:         total,
		Message:       message,
	})
}

// logToSession sends a structured log message to the MCP client.
func logToSession(ctx context.Context, req *mcp.CallToolRequest, level mcp.LoggingLevel, data any) {
	if req.Session == nil {
		return
	}
	// Log delivery is advisory; a failure has no meaningful recovery
	// action.
	_ = req.Session.Log(ctx, &mcp.LoggingMessageParams{
		Level:  level,
		Logger: defaults.ToolName,
		Data:   data,
	})
}

// textResult creates a CallToolResult with a single text content block.
func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: text},
		},
	}
}

// jsonResult marshals v to indented JSON and wraps it in a
// CallToolResult.
func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := jsonutil.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshaling result: %w", err)
	}
	return textResult(string(data)), nil
}

// errorResult creates an IsError CallToolResult so the LLM can see the
// error and self-correct rather than raising a protocol-level
// exception.
func errorResult(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: msg},
		},
		IsError: true,
	}
}

// enrichedError creates a structured error response with recovery
// guidance for AI agents. The JSON envelope matches the enriched
// success responses so both paths parse the same way.
func enrichedError(msg string, recoverySteps []string) *mcp.CallToolResult {
	type errResponse struct {
		Error         string   `json:"error"`
		RecoverySteps []string `json:"recovery_steps,omitempty"`
	}
	data, _ := jsonutil.MarshalIndent(errResponse{
		Error:         msg,
		RecoverySteps: recoverySteps,
	}, "", "  ")
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: string(data)},
		},
		IsError: true,
	}
}

// boolPtr returns a pointer to b. Used for optional bool fields in the
// SDK.
func boolPtr(b bool) *bool { return &b }

// parseArgs unmarshals the raw JSON arguments from a tool call into
// dst.
func parseArgs(req *mcp.CallToolRequest, dst any) error {
	if len(req.Params.Arguments) == 0 {
		return nil
	}
	if err := jsonutil.Unmarshal(req.Params.Arguments, dst); err != nil {
		return fmt.Errorf("parsing tool arguments: %w", err)
	}
	return nil
}

// validateTargetURL checks that target parses as an absolute http(s)
// URL with a host. The safety gate does the real reachability
// policing inside the engine; this exists to give callers a precise
// message for malformed input.
func validateTargetURL(target string) error {
	if target == "" {
		return fmt.Errorf("target URL is required (e.g. https://example.com)")
	}
	u, err := url.Parse(target)
	if err != nil {
		return fmt.Errorf("invalid URL %q: %w", target, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("target URL must start with http:// or https:// (got %q)", target)
	}
	if u.Host == "" {
		return fmt.Errorf("target URL is missing a host (got %q)", target)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Server Instructions — the operating manual sent to connecting clients
// ---------------------------------------------------------------------------

const serverInstructions = `You are operating SiteHawk, a web-crawling vulnerability scanner. Given a start URL it renders pages in a real browser, follows same-origin links, runs passive security checks against every page, and records findings in a scan store.

## SAFETY RULES

1. NEVER scan a target without confirming the user is authorized to test it.
2. Start conservatively: depth 1-2, 10-50 pages, a single worker, and keep the politeness delay.
3. The crawler refuses loopback, private-network, and cloud-metadata targets. Do not try to work around that.
4. Respect robots.txt unless the user owns the site and explicitly asks otherwise.

## TOOL SELECTION GUIDE

| User intent | Tool | Why |
|---|---|---|
| "Scan this site" | scan_run | Crawls the target and blocks until the scan finishes |
| "How did that scan go?" | scan_status | Lifecycle state, progress, and counts for a scan id |
| "What did you find?" | scan_findings | Findings for a scan id, filterable by severity |

scan_run is SYNCHRONOUS: the result carries the final page and finding counts, so there is nothing to poll. Keep max_pages small (10-50) to bound the wait. scan_status exists for re-checking older scans and for scans started elsewhere — CLI runs share the same store when pointed at the same database.

## RECOMMENDED WORKFLOW

1. Confirm authorization and agree the crawl bounds with the user.
2. scan_run with the target and bounds.
3. scan_findings with the returned scan_id; present critical and high severity findings first.
4. Use min_severity to keep long reports focused, then drill down with a second call.

## READING RESOURCES

- sitehawk://version — server version and tool inventory
- sitehawk://config — default crawl configuration and the bounds each argument is clamped to
- sitehawk://checks — the passive checks that produce findings, with severities and CWE ids

## INTERPRETING FINDINGS

- critical/high: exploitable exposure such as mixed content on HTTPS pages; report first
- medium: missing platform defenses such as Content-Security-Policy
- low/info: hardening gaps and information leaks visible in page source
- Every finding carries a location URL, evidence where available, and a remediation hint.

## ERROR RECOVERY

- "target URL is required" → ask the user for the start URL
- "start url rejected" → the safety gate refused the target; pick a public host
- "scan not found" → re-check the scan_id returned by scan_run
- Error responses include structured JSON with "error" and "recovery_steps" fields; parse recovery_steps for actionable guidance.`
