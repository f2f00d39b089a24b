// Package mcpserver exposes sitehawk as a Model Context Protocol (MCP)
// server so AI assistants (Claude, VS Code Copilot, Cursor, etc.) can
// drive crawls and read back findings through natural conversation.
//
// The server is built on the official MCP Go SDK and exposes three
// tools over a shared scan store:
//
//   - scan_run:      crawl a start URL and block until the scan finishes
//   - scan_status:   report a scan's lifecycle state, progress, and counts
//   - scan_findings: list a scan's findings, filterable by severity
//
// plus read-only resources describing the server version, the default
// crawl configuration with its argument bounds, and the passive check
// inventory, and a guided site_audit prompt.
//
// scan_run is synchronous: the call blocks for the duration of the
// crawl and the result carries the final counts, so the caller never
// polls. The scan record, pages, and findings land in the store as the
// crawl runs, which is what scan_status and scan_findings read; scans
// started elsewhere (the CLI against the same database) are equally
// visible.
//
// # Transports
//
// Two transport modes are supported:
//
//   - stdio: stdin/stdout framing for IDE integrations (default)
//   - HTTP:  streamable HTTP for remote deployments, with /health
//
// # Usage
//
//	st, _ := store.OpenSQLite("sitehawk.db")
//	srv := mcpserver.New(&mcpserver.Config{Store: st})
//	err := srv.RunStdio(ctx)
package mcpserver
