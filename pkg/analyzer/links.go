package analyzer

import (
	"strings"

	"golang.org/x/net/html"

	"github.com/sitehawk/sitehawk/pkg/urlnorm"
)

// Link is a candidate frontier entry discovered on a page.
type Link struct {
	URL   string
	Depth int
}

// HTMLLinks collects anchor hrefs from raw markup. The rendered DOM is
// the primary link source; this is the fallback when the driver cannot
// enumerate anchors.
func HTMLLinks(body string) []string {
	var hrefs []string
	z := html.NewTokenizer(strings.NewReader(body))
	for {
		tt := z.Next()
		if tt == html.ErrorToken {
			return hrefs
		}
		if tt != html.StartTagToken && tt != html.SelfClosingTagToken {
			continue
		}
		t := z.Token()
		if t.DataAtom.String() != "a" {
			continue
		}
		for _, a := range t.Attr {
			if a.Key == "href" && a.Val != "" {
				hrefs = append(hrefs, a.Val)
			}
		}
	}
}

// SelectLinks resolves candidate hrefs against the page URL and keeps
// the ones the crawl may follow: well formed, same origin as the crawl
// root (not merely the current page), and not already visited. Kept
// links sit one level below the page; a page at maxDepth contributes
// nothing.
//
// The visited predicate is supplied by the scheduling loop, which owns
// the visited set. Passing nil skips that filter.
func SelectLinks(candidates []string, pageURL, rootOrigin string, depth, maxDepth int, visited func(string) bool) []Link {
	if depth >= maxDepth {
		return nil
	}

	seen := make(map[string]bool, len(candidates))
	var links []Link
	for _, href := range candidates {
		norm, err := urlnorm.Resolve(pageURL, href)
		if err != nil {
			continue
		}
		origin, err := urlnorm.Origin(norm)
		if err != nil || origin != rootOrigin {
			continue
		}
		if seen[norm] {
			continue
		}
		seen[norm] = true
		if visited != nil && visited(norm) {
			continue
		}
		links = append(links, Link{URL: norm, Depth: depth + 1})
	}
	return links
}
