package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sitehawk/sitehawk/pkg/config"
	"github.com/sitehawk/sitehawk/pkg/defaults"
	"github.com/sitehawk/sitehawk/pkg/mcpserver"
	"github.com/sitehawk/sitehawk/pkg/ui"
)

// runServeMCP starts the MCP server. Two transports:
//   - -stdio (default): for IDE and assistant integrations
//   - -http <addr>:     for remote deployments, with /health
func runServeMCP() {
	fs := flag.NewFlagSet("serve-mcp", flag.ExitOnError)

	stdio := fs.Bool("stdio", true, "Stdio transport (default, for IDE integration)")
	httpAddr := fs.String("http", "", "HTTP address to listen on (e.g. :8080); disables stdio")
	dbPath := fs.String("db", envOrDefault("SITEHAWK_DB", defaults.DBPath), "SQLite results database shared with CLI scans")
	scriptDir := fs.String("scripts", "", "Directory of custom check scripts for MCP-started scans")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: sitehawk serve-mcp [flags]\n\n")
		fmt.Fprintf(os.Stderr, "Expose scan_run, scan_status, and scan_findings as MCP tools.\n\n")
		fmt.Fprintf(os.Stderr, "Transports:\n")
		fmt.Fprintf(os.Stderr, "  -stdio          Stdio transport for IDE integration (default)\n")
		fmt.Fprintf(os.Stderr, "  -http <addr>    Streamable HTTP transport for remote use\n\n")
		fmt.Fprintf(os.Stderr, "Environment variables:\n")
		fmt.Fprintf(os.Stderr, "  SITEHAWK_DB         Results database (default: %s)\n", defaults.DBPath)
		fmt.Fprintf(os.Stderr, "  SITEHAWK_HTTP_ADDR  HTTP listen address (same as -http)\n\n")
		fmt.Fprintf(os.Stderr, "Examples:\n")
		fmt.Fprintf(os.Stderr, "  sitehawk serve-mcp\n")
		fmt.Fprintf(os.Stderr, "  sitehawk serve-mcp -http :8080\n")
		fmt.Fprintf(os.Stderr, "  SITEHAWK_DB=/data/scans.db sitehawk serve-mcp -http :8080\n\n")
		fmt.Fprintf(os.Stderr, "Flags:\n")
		fs.PrintDefaults()
	}

	if err := fs.Parse(os.Args[2:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	// Env override keeps container deployments flag-free.
	if *httpAddr == "" {
		if envAddr := os.Getenv("SITEHAWK_HTTP_ADDR"); envAddr != "" {
			*httpAddr = envAddr
		}
	}

	st, err := openStore(*dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: results store %q: %v\n", *dbPath, err)
		os.Exit(1)
	}
	defer st.Close()

	cfg := config.Default()
	cfg.ScriptDir = *scriptDir

	srv := mcpserver.New(&mcpserver.Config{
		Store: st,
		Scan:  &cfg,
	})

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if *httpAddr != "" {
		*stdio = false

		httpSrv := &http.Server{
			Addr:              *httpAddr,
			Handler:           srv.HTTPHandler(),
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       30 * time.Second,
			// WriteTimeout stays 0: the streamable transport holds
			// long-lived response streams and an absolute deadline
			// would sever them mid-scan.
			IdleTimeout:    30 * time.Second,
			MaxHeaderBytes: 1 << 20,
		}

		go func() {
			<-ctx.Done()
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer shutdownCancel()
			fmt.Fprintf(os.Stderr, "%s shutting down\n", defaults.ToolName)
			if err := httpSrv.Shutdown(shutdownCtx); err != nil {
				fmt.Fprintf(os.Stderr, "error during shutdown: %v\n", err)
			}
		}()

		fmt.Fprintf(os.Stderr, "%s MCP server listening on %s (HTTP transport, db %s)\n",
			defaults.ToolName, *httpAddr, *dbPath)

		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if *stdio {
		// Stdout carries the protocol, so keep the terminal quiet.
		ui.SetSilent(true)
		if err := srv.RunStdio(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	fmt.Fprintf(os.Stderr, "error: no transport selected, use -stdio or -http <addr>\n")
	os.Exit(1)
}

// envOrDefault returns the environment value if set, else the default.
func envOrDefault(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}
