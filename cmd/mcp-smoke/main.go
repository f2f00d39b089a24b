// Command mcp-smoke exercises the MCP server end to end over the
// streamable HTTP transport: it starts the server, waits for health,
// then walks the tool, resource, and prompt surface the way an MCP
// client would. Scenarios that need a browser and a reachable target
// sit behind -live.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// scenarioResult tracks the outcome of a single scenario.
type scenarioResult struct {
	name   string
	passed bool
	err    error
}

// scenario is a named test function that runs against a live MCP session.
type scenario struct {
	name string
	live bool // needs a browser and a reachable target (skipped without -live)
	fn   func(ctx context.Context, s *mcp.ClientSession, target string) error
}

func main() {
	var (
		port    = flag.Int("port", 18080, "MCP HTTP port")
		target  = flag.String("target", "https://example.com", "Target URL for live scenarios")
		timeout = flag.Duration("timeout", 2*time.Minute, "Overall timeout")
		live    = flag.Bool("live", false, "Enable live scenarios that crawl an external target")
		runOnly = flag.String("scenario", "", "Run only this named scenario")
	)
	flag.Parse()
	log.SetFlags(0)

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	serverCmd, err := startServer(ctx, *port)
	if err != nil {
		log.Fatalf("FATAL start_server: %v", err)
	}
	defer stopServer(serverCmd)

	if err := waitForHealth(ctx, *port); err != nil {
		log.Fatalf("FATAL health_check: %v", err)
	}
	fmt.Println("server: healthy")

	client := mcp.NewClient(&mcp.Implementation{Name: "mcp-smoke", Version: "1.0.0"}, nil)
	session, err := client.Connect(ctx, &mcp.StreamableClientTransport{
		Endpoint:   fmt.Sprintf("http://127.0.0.1:%d/", *port),
		MaxRetries: -1,
	}, nil)
	if err != nil {
		log.Fatalf("FATAL connect: %v", err)
	}
	defer session.Close()

	var results []scenarioResult
	for _, sc := range allScenarios() {
		if *runOnly != "" && sc.name != *runOnly {
			continue
		}
		if sc.live && !*live {
			results = append(results, scenarioResult{name: sc.name, passed: true, err: fmt.Errorf("SKIP (needs -live)")})
			fmt.Printf("SKIP  %s\n", sc.name)
			continue
		}

		err := sc.fn(ctx, session, *target)
		passed := err == nil
		results = append(results, scenarioResult{name: sc.name, passed: passed, err: err})

		if passed {
			fmt.Printf("PASS  %s\n", sc.name)
		} else {
			fmt.Printf("FAIL  %s: %v\n", sc.name, err)
		}
	}

	passed, failed, skipped := 0, 0, 0
	for _, r := range results {
		switch {
		case r.err != nil && strings.HasPrefix(r.err.Error(), "SKIP"):
			skipped++
		case r.passed:
			passed++
		default:
			failed++
		}
	}

	fmt.Printf("\n--- %d passed, %d failed, %d skipped ---\n", passed, failed, skipped)
	if failed > 0 {
		os.Exit(1)
	}
}

// allScenarios returns every smoke scenario in execution order.
func allScenarios() []scenario {
	return []scenario{
		{"tool_discovery", false, scenarioToolDiscovery},
		{"resource_catalog", false, scenarioResourceCatalog},
		{"prompt_audit", false, scenarioPromptAudit},
		{"scan_validation", false, scenarioScanValidation},
		{"scan_workflow", true, scenarioScanWorkflow},
	}
}

// ---------------------------------------------------------------------------
// tool_discovery — the tool surface is exactly the three scan tools,
// each with the metadata an agent selects and calls by.
// ---------------------------------------------------------------------------

func scenarioToolDiscovery(ctx context.Context, s *mcp.ClientSession, _ string) error {
	tools, err := s.ListTools(ctx, &mcp.ListToolsParams{})
	if err != nil {
		return fmt.Errorf("ListTools: %w", err)
	}

	expected := []string{"scan_run", "scan_status", "scan_findings"}

	have := make(map[string]bool, len(tools.Tools))
	for _, t := range tools.Tools {
		have[t.Name] = true
	}
	var missing []string
	for _, name := range expected {
		if !have[name] {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing tools: %v (have %d)", missing, len(tools.Tools))
	}
	if len(tools.Tools) != len(expected) {
		return fmt.Errorf("tool count mismatch: want %d, got %d", len(expected), len(tools.Tools))
	}

	for _, t := range tools.Tools {
		if t.Description == "" {
			return fmt.Errorf("tool %q has empty description", t.Name)
		}
		if t.InputSchema == nil {
			return fmt.Errorf("tool %q has nil input schema", t.Name)
		}
		if t.Annotations == nil {
			return fmt.Errorf("tool %q has nil annotations", t.Name)
		}
	}

	// NEGATIVE: a nonexistent tool must fail, either at the protocol
	// layer or with IsError. It must not silently succeed.
	fakeResult, err := callToolRaw(ctx, s, "nonexistent_tool_that_does_not_exist", map[string]any{})
	if err == nil && !fakeResult.IsError {
		return fmt.Errorf("NEG nonexistent tool: expected error, got success")
	}

	return nil
}

// ---------------------------------------------------------------------------
// resource_catalog — reads and validates every resource, plus negative:
// a URI the server never registered.
// ---------------------------------------------------------------------------

func scenarioResourceCatalog(ctx context.Context, s *mcp.ClientSession, _ string) error {
	listed, err := s.ListResources(ctx, &mcp.ListResourcesParams{})
	if err != nil {
		return fmt.Errorf("ListResources: %w", err)
	}
	haveURI := make(map[string]bool, len(listed.Resources))
	for _, r := range listed.Resources {
		haveURI[r.URI] = true
	}
	for _, uri := range []string{"sitehawk://version", "sitehawk://config", "sitehawk://checks"} {
		if !haveURI[uri] {
			return fmt.Errorf("resource %s not listed", uri)
		}
	}

	// Version: name, version, and a capabilities object counting the
	// tool surface.
	versionData, err := readResourceJSON(ctx, s, "sitehawk://version")
	if err != nil {
		return err
	}
	for _, field := range []string{"name", "version", "capabilities"} {
		if _, ok := versionData[field]; !ok {
			return fmt.Errorf("version resource missing %q field", field)
		}
	}
	if name, _ := versionData["name"].(string); name != "sitehawk" {
		return fmt.Errorf("version name = %q, want sitehawk", name)
	}
	caps, ok := versionData["capabilities"].(map[string]any)
	if !ok {
		return fmt.Errorf("version capabilities not an object")
	}
	if toolCount, _ := caps["tools"].(float64); toolCount != 3 {
		return fmt.Errorf("version reports %v tools, want 3", toolCount)
	}

	// Config: the crawl defaults and the clamp bounds agents size
	// their arguments against.
	configData, err := readResourceJSON(ctx, s, "sitehawk://config")
	if err != nil {
		return err
	}
	for _, field := range []string{"defaults", "bounds"} {
		if _, ok := configData[field].(map[string]any); !ok {
			return fmt.Errorf("config resource missing %q object", field)
		}
	}

	// Checks: the builtin inventory plus the scripted-check block.
	checksData, err := readResourceJSON(ctx, s, "sitehawk://checks")
	if err != nil {
		return err
	}
	builtin, ok := checksData["builtin"].([]any)
	if !ok || len(builtin) != 4 {
		return fmt.Errorf("checks resource: builtin has %d entries, want 4", len(builtin))
	}
	haveCheck := make(map[string]bool, len(builtin))
	for _, c := range builtin {
		cm, _ := c.(map[string]any)
		name, _ := cm["name"].(string)
		haveCheck[name] = true
	}
	for _, name := range []string{"headers", "mixed-content", "comments", "fingerprint"} {
		if !haveCheck[name] {
			return fmt.Errorf("checks resource missing builtin %q", name)
		}
	}
	if _, ok := checksData["scripted"].(map[string]any); !ok {
		return fmt.Errorf("checks resource missing scripted block")
	}

	// NEGATIVE: a nonexistent resource URI must fail.
	if _, err := s.ReadResource(ctx, &mcp.ReadResourceParams{URI: "sitehawk://does-not-exist"}); err == nil {
		return fmt.Errorf("NEG nonexistent resource: expected error, got nil")
	}

	return nil
}

// ---------------------------------------------------------------------------
// prompt_audit — the site_audit prompt renders with parameter
// substitution, plus negative: unknown prompt, missing required arg.
// ---------------------------------------------------------------------------

func scenarioPromptAudit(ctx context.Context, s *mcp.ClientSession, _ string) error {
	listed, err := s.ListPrompts(ctx, &mcp.ListPromptsParams{})
	if err != nil {
		return fmt.Errorf("ListPrompts: %w", err)
	}
	found := false
	for _, p := range listed.Prompts {
		if p.Name == "site_audit" {
			found = true
		}
	}
	if !found {
		return fmt.Errorf("site_audit prompt not listed")
	}

	target := "https://smoke-test.example.com"
	result, err := s.GetPrompt(ctx, &mcp.GetPromptParams{
		Name:      "site_audit",
		Arguments: map[string]string{"target": target, "environment": "production"},
	})
	if err != nil {
		return fmt.Errorf("GetPrompt(site_audit): %w", err)
	}
	if len(result.Messages) == 0 {
		return fmt.Errorf("GetPrompt(site_audit): no messages")
	}
	rendered := promptText(result)
	if !strings.Contains(rendered, target) {
		return fmt.Errorf("site_audit: target not substituted into prompt")
	}
	// Production posture slows the suggested crawl down.
	if !strings.Contains(rendered, "delay_ms") {
		return fmt.Errorf("site_audit(production): expected delay_ms guidance in rendered prompt")
	}

	// NEGATIVE: nonexistent prompt must fail.
	if _, err := s.GetPrompt(ctx, &mcp.GetPromptParams{
		Name:      "nonexistent_prompt_xyz",
		Arguments: map[string]string{},
	}); err == nil {
		return fmt.Errorf("NEG nonexistent prompt: expected error, got nil")
	}

	// NEGATIVE: missing required target must fail.
	if _, err := s.GetPrompt(ctx, &mcp.GetPromptParams{
		Name:      "site_audit",
		Arguments: map[string]string{},
	}); err == nil {
		return fmt.Errorf("NEG site_audit(no target): expected error, got nil")
	}

	return nil
}

// ---------------------------------------------------------------------------
// scan_validation — every rejection path the scan tools guard with,
// none of which needs a browser: missing and malformed targets, the
// loopback safety gate, unknown scan ids, bad severity filters.
// ---------------------------------------------------------------------------

func scenarioScanValidation(ctx context.Context, s *mcp.ClientSession, _ string) error {
	// scan_run argument gates.
	if err := requireToolError(ctx, s, "scan_run", map[string]any{}, "missing target"); err != nil {
		return err
	}
	if err := requireToolError(ctx, s, "scan_run", map[string]any{
		"target": "ftp://example.com",
	}, "non-http scheme"); err != nil {
		return err
	}
	if err := requireToolError(ctx, s, "scan_run", map[string]any{
		"target": "not a url at all",
	}, "garbage target"); err != nil {
		return err
	}

	// The safety gate refuses loopback before any scan record exists.
	loopback, err := callToolRaw(ctx, s, "scan_run", map[string]any{"target": "http://127.0.0.1/"})
	if err != nil {
		return fmt.Errorf("scan_run(loopback): protocol error: %w", err)
	}
	if !loopback.IsError {
		return fmt.Errorf("NEG scan_run(loopback): expected IsError=true")
	}
	if text := extractText(loopback); !strings.Contains(text, "rejected") {
		return fmt.Errorf("scan_run(loopback): error text %q missing rejection reason", truncate(text, 120))
	}

	// scan_status gates.
	if err := requireToolError(ctx, s, "scan_status", map[string]any{}, "missing scan_id"); err != nil {
		return err
	}
	notFound, err := callToolRaw(ctx, s, "scan_status", map[string]any{"scan_id": "no-such-scan"})
	if err != nil {
		return fmt.Errorf("scan_status(unknown): protocol error: %w", err)
	}
	if !notFound.IsError || !strings.Contains(extractText(notFound), "not found") {
		return fmt.Errorf("scan_status(unknown): expected not-found error, got %q", truncate(extractText(notFound), 120))
	}

	// scan_findings gates.
	if err := requireToolError(ctx, s, "scan_findings", map[string]any{}, "missing scan_id"); err != nil {
		return err
	}
	badSev, err := callToolRaw(ctx, s, "scan_findings", map[string]any{
		"scan_id": "no-such-scan", "min_severity": "catastrophic",
	})
	if err != nil {
		return fmt.Errorf("scan_findings(bad severity): protocol error: %w", err)
	}
	if !badSev.IsError || !strings.Contains(extractText(badSev), "unknown severity") {
		return fmt.Errorf("scan_findings(bad severity): expected unknown-severity error, got %q", truncate(extractText(badSev), 120))
	}
	if err := requireToolError(ctx, s, "scan_findings", map[string]any{
		"scan_id": "no-such-scan",
	}, "unknown scan_id"); err != nil {
		return err
	}

	return nil
}

// ---------------------------------------------------------------------------
// scan_workflow — a real bounded crawl through all three tools.
// Needs headless Chrome on the host and a reachable target.
// ---------------------------------------------------------------------------

func scenarioScanWorkflow(ctx context.Context, s *mcp.ClientSession, target string) error {
	runData, err := callToolJSON(ctx, s, "scan_run", map[string]any{
		"target":    target,
		"max_depth": 1,
		"max_pages": 5,
	})
	if err != nil {
		return fmt.Errorf("scan_run: %w", err)
	}
	scanID, _ := runData["scan_id"].(string)
	if scanID == "" {
		return fmt.Errorf("scan_run: empty scan_id")
	}
	if status, _ := runData["status"].(string); status != "completed" {
		return fmt.Errorf("scan_run: status = %q, want completed", status)
	}
	pages, _ := runData["pages"].(float64)
	if pages < 1 {
		return fmt.Errorf("scan_run: crawled %v pages, want >= 1", pages)
	}
	if interp, _ := runData["interpretation"].(string); interp == "" {
		return fmt.Errorf("scan_run: empty interpretation")
	}

	statusData, err := callToolJSON(ctx, s, "scan_status", map[string]any{"scan_id": scanID})
	if err != nil {
		return fmt.Errorf("scan_status: %w", err)
	}
	if progress, _ := statusData["progress"].(float64); progress != 100 {
		return fmt.Errorf("scan_status: progress = %v, want 100", progress)
	}
	if got, _ := statusData["pages"].(float64); got != pages {
		return fmt.Errorf("scan_status: pages = %v, scan_run reported %v", got, pages)
	}

	findingsData, err := callToolJSON(ctx, s, "scan_findings", map[string]any{
		"scan_id": scanID, "limit": 5,
	})
	if err != nil {
		return fmt.Errorf("scan_findings: %w", err)
	}
	returned, _ := findingsData["returned"].(float64)
	if returned > 5 {
		return fmt.Errorf("scan_findings: returned %v with limit 5", returned)
	}
	total, _ := findingsData["total"].(float64)
	if count, _ := runData["findings"].(float64); total != count {
		return fmt.Errorf("scan_findings: total %v, scan_run reported %v", total, count)
	}

	return nil
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

// requireToolError calls a tool and asserts it reports an error. A
// protocol-level error also counts; silent success fails the scenario.
func requireToolError(ctx context.Context, s *mcp.ClientSession, name string, args map[string]any, desc string) error {
	result, err := callToolRaw(ctx, s, name, args)
	if err != nil {
		return nil
	}
	if !result.IsError {
		return fmt.Errorf("NEG %s(%s): expected IsError=true, got false (response: %s)",
			name, desc, truncate(extractText(result), 120))
	}
	return nil
}

// callToolJSON calls a tool, asserts success, and parses the result as JSON.
func callToolJSON(ctx context.Context, s *mcp.ClientSession, name string, args map[string]any) (map[string]any, error) {
	result, err := callToolRaw(ctx, s, name, args)
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", name, err)
	}
	if result.IsError {
		return nil, fmt.Errorf("call %s: tool error: %s", name, truncate(extractText(result), 200))
	}
	text := extractText(result)
	var data map[string]any
	if err := json.Unmarshal([]byte(text), &data); err != nil {
		return nil, fmt.Errorf("call %s: parse JSON: %w (text: %s)", name, err, truncate(text, 100))
	}
	return data, nil
}

func callToolRaw(ctx context.Context, s *mcp.ClientSession, name string, args map[string]any) (*mcp.CallToolResult, error) {
	payload, err := json.Marshal(args)
	if err != nil {
		return nil, fmt.Errorf("marshal %s args: %w", name, err)
	}
	return s.CallTool(ctx, &mcp.CallToolParams{Name: name, Arguments: json.RawMessage(payload)})
}

func extractText(result *mcp.CallToolResult) string {
	if len(result.Content) == 0 {
		return ""
	}
	if tc, ok := result.Content[0].(*mcp.TextContent); ok {
		return tc.Text
	}
	return fmt.Sprintf("%T", result.Content[0])
}

func readResourceJSON(ctx context.Context, s *mcp.ClientSession, uri string) (map[string]any, error) {
	res, err := s.ReadResource(ctx, &mcp.ReadResourceParams{URI: uri})
	if err != nil {
		return nil, fmt.Errorf("ReadResource(%s): %w", uri, err)
	}
	if len(res.Contents) == 0 || res.Contents[0].Text == "" {
		return nil, fmt.Errorf("ReadResource(%s): empty", uri)
	}
	var data map[string]any
	if err := json.Unmarshal([]byte(res.Contents[0].Text), &data); err != nil {
		return nil, fmt.Errorf("ReadResource(%s): parse JSON: %w", uri, err)
	}
	return data, nil
}

func promptText(result *mcp.GetPromptResult) string {
	data, err := json.Marshal(result)
	if err != nil {
		return ""
	}
	return string(data)
}

func truncate(s string, maxLen int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if len(s) > maxLen {
		return s[:maxLen] + "..."
	}
	return s
}

// ---------------------------------------------------------------------------
// Server lifecycle
// ---------------------------------------------------------------------------

func startServer(ctx context.Context, port int) (*exec.Cmd, error) {
	root, err := findRepoRoot()
	if err != nil {
		return nil, fmt.Errorf("find repo root: %w", err)
	}

	// Memory store so a smoke run leaves no database behind.
	cmd := exec.CommandContext(ctx, "go", "run", "./cmd/cli", "serve-mcp",
		"-http", fmt.Sprintf(":%d", port), "-db", "memory")
	cmd.Dir = root
	cmd.Stderr = os.Stderr
	if err := cmd.Start(); err != nil {
		return nil, err
	}
	return cmd, nil
}

func stopServer(cmd *exec.Cmd) {
	if cmd == nil || cmd.Process == nil {
		return
	}
	_ = cmd.Process.Kill()
	_, _ = cmd.Process.Wait()
}

func findRepoRoot() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", err
	}

	for {
		modPath := dir + string(os.PathSeparator) + "go.mod"
		if data, err := os.ReadFile(modPath); err == nil {
			if strings.Contains(string(data), "module github.com/sitehawk/sitehawk\n") ||
				strings.Contains(string(data), "module github.com/sitehawk/sitehawk\r\n") {
				return dir, nil
			}
		}

		parent := dir[:max(strings.LastIndex(dir, string(os.PathSeparator)), 0)]
		if parent == dir || parent == "" {
			return "", fmt.Errorf("repo root not found walking up from %s", dir)
		}
		dir = parent
	}
}

func waitForHealth(ctx context.Context, port int) error {
	client := &http.Client{Timeout: 2 * time.Second}
	url := fmt.Sprintf("http://127.0.0.1:%d/health", port)

	ticker := time.NewTicker(300 * time.Millisecond)
	defer ticker.Stop()

	for {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return err
		}
		resp, err := client.Do(req)
		if err == nil {
			_ = resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return nil
			}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
