package scan

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/sitehawk/sitehawk/pkg/analyzer"
	"github.com/sitehawk/sitehawk/pkg/safety"
)

// pausePoll is how often an idle loop rechecks pause and cancel.
var pausePoll = 100 * time.Millisecond

// pageResult is one worker's report: the item it crawled, the
// same-origin links it discovered, and the error if the visit failed.
type pageResult struct {
	item  frontierItem
	links []analyzer.Link
	err   error
}

// loop is the scheduler. It alone touches the frontier and visited
// set; workers only crawl and report. Gate checks happen here at
// dispatch, so skipped URLs never consume a page slot.
func (e *Engine) loop(ctx context.Context) error {
	frontier := &frontier{}
	visited := newVisitedSet()
	frontier.Push(frontierItem{url: e.startURL, depth: 0})

	results := make(chan pageResult)
	var inflight, dispatched, completed int

	for {
		if e.canceled.Load() || ctx.Err() != nil {
			e.stopNote = "canceled"
			break
		}

		for !e.paused.Load() && inflight < e.cfg.Concurrency && dispatched < e.cfg.MaxPages {
			item, ok := frontier.Pop()
			if !ok {
				break
			}
			if visited.Has(item.url) {
				continue
			}
			if v := safety.Check(item.url); !v.Safe {
				logrus.Debugf("Scan %s: skipping %s: %s", e.job.ScanID, item.url, v.Reason)
				continue
			}
			if e.cfg.RespectRobots && e.deps.Robots != nil &&
				!e.deps.Robots.IsAllowed(ctx, item.url, e.cfg.UserAgent) {
				logrus.Debugf("Scan %s: robots.txt disallows %s", e.job.ScanID, item.url)
				continue
			}
			visited.Add(item.url)
			dispatched++
			inflight++
			go e.crawlPage(ctx, item, results)
		}

		if inflight == 0 {
			if frontier.Len() == 0 || dispatched >= e.cfg.MaxPages {
				if dispatched >= e.cfg.MaxPages && frontier.Len() > 0 {
					e.stopNote = "page limit reached"
				}
				break
			}
			// Paused with nothing in flight. Sleep until resumed or
			// canceled.
			select {
			case <-ctx.Done():
			case <-time.After(pausePoll):
			}
			continue
		}

		res := <-results
		inflight--
		completed++
		if res.err == nil {
			for _, l := range res.links {
				if !visited.Has(l.URL) {
					frontier.Push(frontierItem{url: l.URL, depth: l.Depth})
				}
			}
		}
		e.reportProgress(ctx, res, completed, dispatched, frontier.Len())
	}

	// Drain workers still in flight. Their links fold in so a resumed
	// scan of the same record would see them, but nothing new starts.
	for inflight > 0 {
		res := <-results
		inflight--
		completed++
		if res.err == nil {
			for _, l := range res.links {
				if !visited.Has(l.URL) {
					frontier.Push(frontierItem{url: l.URL, depth: l.Depth})
				}
			}
		}
		e.reportProgress(ctx, res, completed, dispatched, frontier.Len())
	}
	return nil
}

// reportProgress recomputes percent done from what the loop can see:
// pages finished over pages known, where known counts dispatched work
// plus the pending frontier, clipped to the page ceiling. The final
// 100% is written by Run once the loop is fully drained.
func (e *Engine) reportProgress(ctx context.Context, res pageResult, completed, dispatched, pending int) {
	known := dispatched + pending
	if known > e.cfg.MaxPages {
		known = e.cfg.MaxPages
	}
	if known < 1 {
		known = 1
	}
	percent := completed * 100 / known
	if percent > 99 {
		percent = 99
	}
	action := "crawled " + res.item.url
	if res.err != nil {
		action = "skipped " + res.item.url
	}
	e.progress(ctx, percent, action)
}
