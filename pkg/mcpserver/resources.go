package mcpserver

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/sitehawk/sitehawk/pkg/defaults"
	"github.com/sitehawk/sitehawk/pkg/jsonutil"
)

// registerResources adds the read-only knowledge resources.
func (s *Server) registerResources() {
	s.addVersionResource()
	s.addConfigResource()
	s.addChecksResource()
}

// jsonResource wraps v as the single JSON content block of uri.
func jsonResource(uri string, v any) (*mcp.ReadResourceResult, error) {
	data, err := jsonutil.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, err
	}
	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{
			{URI: uri, MIMEType: "application/json", Text: string(data)},
		},
	}, nil
}

// ═══════════════════════════════════════════════════════════════════════════
// sitehawk://version — Server capabilities and version
// ═══════════════════════════════════════════════════════════════════════════

func (s *Server) addVersionResource() {
	s.mcp.AddResource(
		&mcp.Resource{
			URI:         "sitehawk://version",
			Name:        "SiteHawk Version",
			Description: "Server version, capabilities, and tool inventory.",
			MIMEType:    "application/json",
		},
		func(_ context.Context, _ *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
			return jsonResource("sitehawk://version", map[string]any{
				"name":    defaults.ToolName,
				"version": defaults.Version,
				"capabilities": map[string]any{
					"tools":     3,
					"resources": 3,
					"prompts":   1,
				},
				"tools":      []string{"scan_run", "scan_status", "scan_findings"},
				"checks":     []string{"headers", "mixed-content", "comments", "fingerprint", "scripted"},
				"severities": []string{"critical", "high", "medium", "low", "info"},
			})
		},
	)
}

// ═══════════════════════════════════════════════════════════════════════════
// sitehawk://config — Default crawl configuration and argument bounds
// ═══════════════════════════════════════════════════════════════════════════

func (s *Server) addConfigResource() {
	s.mcp.AddResource(
		&mcp.Resource{
			URI:         "sitehawk://config",
			Name:        "Crawl Configuration",
			Description: "The baseline crawl configuration scan_run starts from and the bounds each argument is clamped to.",
			MIMEType:    "application/json",
		},
		func(_ context.Context, _ *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
			cfg := s.config.Scan
			return jsonResource("sitehawk://config", map[string]any{
				"defaults": map[string]any{
					"max_depth":           cfg.MaxDepth,
					"max_pages":           cfg.MaxPages,
					"concurrency":         cfg.Concurrency,
					"delay":               cfg.Delay.String(),
					"requests_per_second": cfg.RequestsPerSecond,
					"user_agent":          cfg.UserAgent,
					"respect_robots":      cfg.RespectRobots,
					"navigation_timeout":  cfg.NavigationTimeout.String(),
				},
				"bounds": map[string]any{
					"max_depth":   map[string]int{"min": 1, "max": defaults.DepthMax},
					"max_pages":   map[string]int{"min": 1, "max": defaults.PagesMax},
					"concurrency": map[string]int{"min": 1, "max": defaults.ConcurrencyMax},
				},
			})
		},
	)
}

// ═══════════════════════════════════════════════════════════════════════════
// sitehawk://checks — Passive check inventory
// ═══════════════════════════════════════════════════════════════════════════

func (s *Server) addChecksResource() {
	s.mcp.AddResource(
		&mcp.Resource{
			URI:         "sitehawk://checks",
			Name:        "Passive Checks",
			Description: "The checks run against every crawled page, with the severities and CWE ids of the findings they produce.",
			MIMEType:    "application/json",
		},
		func(_ context.Context, _ *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
			builtin := []map[string]any{
				{
					"name":        "headers",
					"description": "Flags responses missing Content-Security-Policy or X-Frame-Options.",
					"severities":  []string{"medium", "low"},
					"cwe":         []string{"CWE-693", "CWE-1021"},
				},
				{
					"name":        "mixed-content",
					"description": "Flags HTTPS pages whose body references resources over plain http://.",
					"severities":  []string{"high"},
					"cwe":         []string{"CWE-319"},
				},
				{
					"name":        "comments",
					"description": "Flags HTML comments carrying developer notes or credential-like keywords.",
					"severities":  []string{"low"},
					"cwe":         []string{"CWE-615"},
				},
				{
					"name":        "fingerprint",
					"description": "Flags pages scoring below the security-header threshold, listing the missing headers.",
					"severities":  []string{"low"},
					"cwe":         []string{"CWE-16"},
				},
			}
			out := map[string]any{
				"builtin": builtin,
				"scripted": map[string]any{
					"description": "Custom checks loaded from the configured script directory, run per page after the builtin checks.",
					"script_dir":  s.config.Scan.ScriptDir,
					"loaded":      s.checks.Len(),
				},
			}
			return jsonResource("sitehawk://checks", out)
		},
	)
}
