// Package hooks contains the bundled event consumers: structured log
// output, Prometheus metrics, and OpenTelemetry traces. Each hook is
// optional and registered with the dispatcher by the CLI.
package hooks

import (
	"context"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/sitehawk/sitehawk/pkg/dispatch"
	"github.com/sitehawk/sitehawk/pkg/events"
	"github.com/sitehawk/sitehawk/pkg/finding"
	"github.com/sitehawk/sitehawk/pkg/store"
)

// Compile-time interface check.
var _ dispatch.Hook = (*LoggerHook)(nil)

// LoggerHook writes a human-readable line per event.
type LoggerHook struct {
	log *logrus.Logger
}

// NewLoggerHook creates a logger hook. A nil logger uses the logrus
// standard logger.
func NewLoggerHook(log *logrus.Logger) *LoggerHook {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &LoggerHook{log: log}
}

// OnEvent logs the event at a level matching its weight.
func (h *LoggerHook) OnEvent(ctx context.Context, event events.Event) error {
	switch e := event.(type) {
	case *events.ScanStartedEvent:
		h.log.Infof("Scan %s started: %s (depth=%d, pages=%d, workers=%d)",
			e.ScanID(), e.StartURL, e.MaxDepth, e.MaxPages, e.Concurrency)
	case *events.PageCrawledEvent:
		h.log.Infof("Crawled %s (HTTP %d, depth %d, %d links, %.0f ms)",
			e.URL, e.StatusCode, e.Depth, e.LinksFound, e.DurationMs)
	case *events.FindingReportedEvent:
		f := e.Finding
		line := fmt.Sprintf("Finding [%s] %s at %s", strings.ToUpper(f.Severity.String()), f.Title, f.Location)
		if f.Severity == finding.Critical || f.Severity == finding.High {
			h.log.Warn(line)
		} else {
			h.log.Info(line)
		}
	case *events.ScanFinishedEvent:
		if e.Status == string(store.StatusFailed) {
			h.log.Errorf("Scan %s failed after %.1fs: %s", e.ScanID(), e.DurationSec, e.Reason)
		} else {
			h.log.Infof("Scan %s %s: %d pages, %d findings in %.1fs",
				e.ScanID(), e.Status, e.PagesCrawled, e.Findings, e.DurationSec)
		}
	}
	return nil
}

// EventTypes returns nil so the hook receives every event.
func (h *LoggerHook) EventTypes() []events.Type { return nil }
