package mcpserver

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/sitehawk/sitehawk/pkg/events"
)

// Hook adapts a function to the dispatch.Hook interface so engine
// events can be forwarded to an MCP session or a nested dispatcher.
type Hook struct {
	fn func(context.Context, events.Event)
}

// NewHook creates a Hook that calls fn for every event.
func NewHook(fn func(context.Context, events.Event)) *Hook {
	return &Hook{fn: fn}
}

// OnEvent is called by the dispatcher for each matching event.
func (h *Hook) OnEvent(ctx context.Context, ev events.Event) error {
	if h.fn != nil {
		h.fn(ctx, ev)
	}
	return nil
}

// EventTypes returns nil to receive all event types.
func (h *Hook) EventTypes() []events.Type {
	return nil
}

// relayHook bridges one scan's events to the MCP session behind req.
// Page completions become progress notifications against the page
// budget; findings and lifecycle transitions become log messages.
// Everything is advisory, so a session that asked for neither loses
// nothing.
func relayHook(req *mcp.CallToolRequest, maxPages int) *Hook {
	var pages atomic.Int64
	total := float64(maxPages)
	return NewHook(func(ctx context.Context, ev events.Event) {
		switch e := ev.(type) {
		case *events.ScanStartedEvent:
			logToSession(ctx, req, logInfo, fmt.Sprintf(
				"scan %s started: %s (depth %d, %d pages max)",
				e.ScanID(), e.StartURL, e.MaxDepth, e.MaxPages))
		case *events.PageCrawledEvent:
			notifyProgress(ctx, req, float64(pages.Add(1)), total, e.URL)
		case *events.FindingReportedEvent:
			logToSession(ctx, req, logWarning, e.Finding)
		case *events.ScanFinishedEvent:
			logToSession(ctx, req, logInfo, fmt.Sprintf(
				"scan %s finished: %s (%d pages, %d findings)",
				e.ScanID(), e.Status, e.PagesCrawled, e.Findings))
		}
	})
}
