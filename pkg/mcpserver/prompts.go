package mcpserver

import (
	"context"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// registerPrompts adds the guided workflow prompts.
func (s *Server) registerPrompts() {
	s.addSiteAuditPrompt()
}

// ═══════════════════════════════════════════════════════════════════════════
// site_audit — Bounded crawl, severity-ranked review, remediation summary
// ═══════════════════════════════════════════════════════════════════════════

func (s *Server) addSiteAuditPrompt() {
	s.mcp.AddPrompt(
		&mcp.Prompt{
			Name:        "site_audit",
			Description: "Guided site security audit: bounded crawl, severity-ranked findings review, and a remediation summary.",
			Arguments: []*mcp.PromptArgument{
				{Name: "target", Description: "Start URL to audit (e.g. https://example.com)", Required: true},
				{Name: "max_pages", Description: "Page budget for the crawl (default 25)", Required: false},
				{Name: "environment", Description: "Target environment: 'production', 'staging', or 'development'. Controls pacing.", Required: false},
			},
		},
		func(_ context.Context, req *mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
			target := req.Params.Arguments["target"]
			if target == "" {
				return nil, fmt.Errorf("'target' argument is required")
			}
			maxPages := req.Params.Arguments["max_pages"]
			if maxPages == "" {
				maxPages = "25"
			}
			env := req.Params.Arguments["environment"]
			if env == "" {
				env = "staging"
			}

			pacing := `"concurrency": 2, "delay_ms": 500`
			if env == "production" {
				pacing = `"concurrency": 1, "delay_ms": 1000`
			}

			return &mcp.GetPromptResult{
				Description: fmt.Sprintf("Site Audit: %s", target),
				Messages: []*mcp.PromptMessage{
					{
						Role: "user",
						Content: &mcp.TextContent{
							Text: fmt.Sprintf(`Perform a security audit of %s.

## Phase 0: Authorization
Confirm with me that I am authorized to test %s before sending any traffic. Do not proceed without that confirmation.

## Phase 1: Crawl
Run scan_run with {"target": %q, "max_depth": 2, "max_pages": %s, %s}.
Keep robots.txt respected. The call blocks until the crawl finishes; note the scan_id it returns.

## Phase 2: Review findings
1. Call scan_findings with the scan_id and min_severity "high" and walk me through each high-impact finding: what it means, the evidence, and the fix.
2. Call scan_findings again without the filter for the full list, grouped by severity.

## Phase 3: Report
Summarize:
- Overall posture: page count, average security score, and detected technologies from the scan_run result
- Findings by severity with the affected URLs
- A prioritized remediation list, worst first, citing each finding's remediation hint and CWE id
- Anything the crawl could not reach (robots exclusions, page budget) worth a follow-up scan

Environment is %s; keep the pacing conservative and stop if I ask.`,
								target, target, target, maxPages, pacing, env),
						},
					},
				},
			}, nil
		},
	)
}
