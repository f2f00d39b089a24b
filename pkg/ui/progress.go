package ui

import (
	"fmt"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/term"
)

// ProgressConfig holds crawl progress display settings
type ProgressConfig struct {
	MaxPages int // page ceiling; 0 hides the bar
	Width    int // bar width in cells (default 30)
}

// Progress is a single-line live crawl display: spinner, progress bar
// against the page ceiling, page and finding counters, elapsed time,
// and the current action. It rewrites the line in place on a ticker
// and stays quiet when stderr is not a terminal.
type Progress struct {
	config    ProgressConfig
	startTime time.Time

	pages    atomic.Int64
	findings atomic.Int64

	mu      sync.Mutex
	action  string
	done    chan struct{}
	running bool
}

// NewProgress creates a progress display.
func NewProgress(config ProgressConfig) *Progress {
	if config.Width == 0 {
		config.Width = 30
	}
	return &Progress{
		config:    config,
		startTime: time.Now(),
		done:      make(chan struct{}),
	}
}

// Start begins rendering. No-op when stderr is piped or redirected.
func (p *Progress) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return
	}
	p.running = true
	p.startTime = time.Now()
	if term.IsTerminal(int(os.Stderr.Fd())) {
		go p.renderLoop()
	}
}

// Stop halts rendering, leaving the last line visible.
func (p *Progress) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.running {
		return
	}
	close(p.done)
	p.running = false
	if term.IsTerminal(int(os.Stderr.Fd())) {
		fmt.Fprintln(os.Stderr)
	}
}

// PageCrawled counts one crawled page.
func (p *Progress) PageCrawled() {
	p.pages.Add(1)
}

// FindingReported counts one reported finding.
func (p *Progress) FindingReported() {
	p.findings.Add(1)
}

// SetAction updates the trailing action text.
func (p *Progress) SetAction(action string) {
	p.mu.Lock()
	p.action = action
	p.mu.Unlock()
}

// Stats returns the current counters.
func (p *Progress) Stats() (pages, findings int64) {
	return p.pages.Load(), p.findings.Load()
}

func (p *Progress) renderLoop() {
	spinner := DefaultSpinner()
	ticker := time.NewTicker(spinner.Interval)
	defer ticker.Stop()

	frame := 0
	for {
		select {
		case <-p.done:
			return
		case <-ticker.C:
			p.render(spinner.Frames[frame%len(spinner.Frames)])
			frame++
		}
	}
}

func (p *Progress) render(frame string) {
	pages := int(p.pages.Load())
	findings := p.findings.Load()

	p.mu.Lock()
	action := p.action
	p.mu.Unlock()

	var b strings.Builder
	b.WriteString("\r\033[K ")
	b.WriteString(SpinnerStyle.Render(frame))
	b.WriteString(" ")

	if p.config.MaxPages > 0 {
		filled := pages * p.config.Width / p.config.MaxPages
		if filled > p.config.Width {
			filled = p.config.Width
		}
		pct := pages * 100 / p.config.MaxPages
		if pct > 100 {
			pct = 100
		}
		full, empty := Icon("█", "#"), Icon("░", ".")
		b.WriteString(ProgressFullStyle.Render(strings.Repeat(full, filled)))
		b.WriteString(ProgressEmptyStyle.Render(strings.Repeat(empty, p.config.Width-filled)))
		b.WriteString(fmt.Sprintf(" %3d%%  ", pct))
	}

	b.WriteString(StatValueStyle.Render(fmt.Sprintf("%d", pages)))
	b.WriteString(StatLabelStyle.Render(" pages  "))
	b.WriteString(StatValueStyle.Render(fmt.Sprintf("%d", findings)))
	b.WriteString(StatLabelStyle.Render(" findings  "))
	b.WriteString(SubtitleStyle.Render(formatDuration(time.Since(p.startTime))))

	if action != "" {
		b.WriteString("  ")
		b.WriteString(StatLabelStyle.Render(truncateString(action, 40)))
	}

	fmt.Fprint(os.Stderr, b.String())
}

// formatDuration renders a duration at terminal-friendly precision.
func formatDuration(d time.Duration) string {
	switch {
	case d < time.Second:
		return fmt.Sprintf("%dms", d.Milliseconds())
	case d < time.Minute:
		return fmt.Sprintf("%.1fs", d.Seconds())
	default:
		return d.Round(time.Second).String()
	}
}

// truncateString truncates a string with ellipsis
func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
