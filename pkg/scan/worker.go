package scan

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/sitehawk/sitehawk/pkg/analyzer"
	"github.com/sitehawk/sitehawk/pkg/events"
	"github.com/sitehawk/sitehawk/pkg/fingerprint"
	"github.com/sitehawk/sitehawk/pkg/store"
	"github.com/sitehawk/sitehawk/pkg/urlnorm"
)

// crawlPage visits one page and reports back to the loop. A failed
// page is logged to the scan's sink and skipped; it never ends the
// scan. The politeness pause runs after the work, so the worker holds
// its slot through the delay.
func (e *Engine) crawlPage(ctx context.Context, item frontierItem, results chan<- pageResult) {
	res := pageResult{item: item}
	res.links, res.err = e.visit(ctx, item)
	if res.err != nil {
		logrus.Debugf("Scan %s: page %s: %v", e.job.ScanID, item.url, res.err)
		e.log(ctx, "error", fmt.Sprintf("page %s: %v", item.url, res.err))
	}
	if e.deps.Limiter != nil {
		_ = e.deps.Limiter.Wait(ctx)
	}
	results <- res
}

// visit renders the page, persists it, analyzes it, and returns the
// in-scope links it found.
func (e *Engine) visit(ctx context.Context, item frontierItem) ([]analyzer.Link, error) {
	start := time.Now()

	page, err := e.deps.Driver.NewPage(ctx)
	if err != nil {
		return nil, fmt.Errorf("open tab: %w", err)
	}
	defer page.Close()

	info, err := page.Navigate(ctx, item.url)
	if err != nil {
		return nil, fmt.Errorf("navigate %s: %w", item.url, err)
	}

	// Redirects land elsewhere; record where the page actually is.
	pageURL := item.url
	if norm, err := urlnorm.Normalize(info.URL); err == nil {
		pageURL = norm
	}

	title, err := page.Title(ctx)
	if err != nil {
		title = ""
	}
	body, err := page.Content(ctx)
	if err != nil {
		return nil, fmt.Errorf("read content %s: %w", pageURL, err)
	}
	hrefs, err := page.Links(ctx)
	if err != nil {
		hrefs = analyzer.HTMLLinks(body)
	}

	fp := fingerprint.Analyze(info.Headers, body)
	if e.faviconTech != nil && !hasTechnology(fp.Technologies, e.faviconTech.Name) {
		fp.Technologies = append(fp.Technologies, *e.faviconTech)
	}

	rec := &store.PageRecord{
		ID:        uuid.NewString(),
		ScanID:    e.job.ScanID,
		URL:       pageURL,
		Status:    info.Status,
		Title:     title,
		Headers:   headerMap(info.Headers),
		State:     store.PageCreated,
		FetchedAt: time.Now().UTC(),
	}
	if err := e.deps.Store.InsertPage(ctx, rec); err != nil {
		return nil, fmt.Errorf("persist %s: %w", pageURL, err)
	}
	if err := e.deps.Store.EnrichPage(ctx, rec.ID, store.PagePatch{
		Technologies:  fp.TechnologyNames(),
		SecurityScore: fp.SecurityScore,
	}); err != nil {
		return nil, fmt.Errorf("enrich %s: %w", pageURL, err)
	}
	e.pagesCrawled.Add(1)

	findings := analyzer.Analyze(e.job.ScanID, analyzer.Page{
		URL:     pageURL,
		Status:  info.Status,
		Headers: info.Headers,
		Body:    body,
		Depth:   item.depth,
	}, &fp, e.cfg.Checks)
	findings = append(findings, e.deps.Checks.Run(e.job.ScanID, pageURL, body, info.Headers)...)

	for _, f := range findings {
		if err := e.deps.Store.InsertFinding(ctx, f); err != nil {
			e.log(ctx, "error", fmt.Sprintf("store finding %q for %s: %v", f.Title, pageURL, err))
			continue
		}
		e.findingsTotal.Add(1)
		e.emit(ctx, events.NewFindingReportedEvent(f))
	}

	links := analyzer.SelectLinks(hrefs, pageURL, e.rootOrigin, item.depth, e.cfg.MaxDepth, nil)

	ev := events.NewPageCrawledEvent(e.job.ScanID, pageURL, item.depth, info.Status,
		title, len(links), time.Since(start))
	ev.Technologies = fp.TechnologyNames()
	ev.SecurityScore = fp.SecurityScore
	e.emit(ctx, ev)
	return links, nil
}

func hasTechnology(techs []fingerprint.Technology, name string) bool {
	for _, t := range techs {
		if t.Name == name {
			return true
		}
	}
	return false
}

// headerMap flattens response headers for storage, joining repeated
// values the way the wire does.
func headerMap(h http.Header) map[string]string {
	if len(h) == 0 {
		return nil
	}
	m := make(map[string]string, len(h))
	for k, v := range h {
		m[k] = strings.Join(v, ", ")
	}
	return m
}
