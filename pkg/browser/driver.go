// Package browser drives a real browser for page rendering. The engine
// and the authenticator consume the Driver and Page interfaces; Chrome
// is the production implementation, tests substitute in-memory fakes.
package browser

import (
	"context"
	"net/http"
)

// PageInfo describes the main document response of one navigation.
type PageInfo struct {
	URL     string // final URL after redirects
	Status  int
	Headers http.Header
}

// Page is one browser tab. A worker owns a Page for the lifetime of one
// fetch and must Close it when done, error paths included.
type Page interface {
	// Navigate loads url and blocks until the document is ready or the
	// navigation timeout expires.
	Navigate(ctx context.Context, url string) (*PageInfo, error)

	// Content returns the rendered document markup.
	Content(ctx context.Context) (string, error)

	// Title returns the document title.
	Title(ctx context.Context) (string, error)

	// Links enumerates the absolute hrefs of all anchors in the DOM.
	Links(ctx context.Context) ([]string, error)

	// Fill types value into the first element matching selector. The
	// bool reports whether the element exists; absence is not an error.
	Fill(ctx context.Context, selector, value string) (bool, error)

	// Click clicks the first element matching selector. The bool
	// reports whether the element exists; absence is not an error.
	Click(ctx context.Context, selector string) (bool, error)

	// PressEnter sends the Enter key to the element matching selector.
	PressEnter(ctx context.Context, selector string) error

	// Location returns the page's current URL.
	Location(ctx context.Context) (string, error)

	Close() error
}

// Driver owns the browser process and hands out pages.
type Driver interface {
	NewPage(ctx context.Context) (Page, error)
	Close() error
}
