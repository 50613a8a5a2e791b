// File: api/schemas/driver.go
package schemas

import (
	"context"
	"encoding/json"
)

// Browser is the driver boundary: it owns the browser process (or remote
// connection) and opens pages for sessions.
type Browser interface {
	// Open creates a new page (tab) ready for navigation.
	Open(ctx context.Context) (Page, error)
	// Shutdown closes every page and releases the browser.
	Shutdown(ctx context.Context) error
}

// Page is the capability set a session uses. Every method is an opaque,
// fallible unit of work; callers wrap them with the resilience layer.
type Page interface {
	Navigate(ctx context.Context, url string) (PageInfo, error)
	GoBack(ctx context.Context) (PageInfo, error)
	Reload(ctx context.Context) (PageInfo, error)
	Content(ctx context.Context, format ContentFormat) (string, error)
	FindSelectors(ctx context.Context, query SelectorQuery) ([]ElementMatch, error)
	Click(ctx context.Context, selector string) error
	Type(ctx context.Context, selector, text string) error
	WaitFor(ctx context.Context, selector string) error
	Scroll(ctx context.Context, direction string) error
	Evaluate(ctx context.Context, script string) (json.RawMessage, error)
	Screenshot(ctx context.Context, opts ScreenshotOptions) ([]byte, error)
	// URL returns the address of the currently loaded document.
	URL(ctx context.Context) (string, error)
	Close(ctx context.Context) error
}

// ContentFormat selects how page content is extracted.
type ContentFormat string

const (
	ContentHTML ContentFormat = "html"
	ContentText ContentFormat = "text"
)

// PageInfo describes the page after a navigation.
type PageInfo struct {
	URL   string `json:"url"`
	Title string `json:"title"`
}

// SelectorQuery asks the page for elements matching a free-text description.
// Query is matched against visible text, labels, placeholders, names and ids.
type SelectorQuery struct {
	Query string `json:"query"`
	Limit int    `json:"limit,omitempty"`
}

// ElementMatch is a candidate element with a selector that can be used by
// interaction tools.
type ElementMatch struct {
	Selector string `json:"selector"`
	Tag      string `json:"tag"`
	Text     string `json:"text,omitempty"`
	Role     string `json:"role,omitempty"`
	Visible  bool   `json:"visible"`
	Score    int    `json:"score"`
}

// ScreenshotOptions configures a capture. Empty Selector captures the viewport.
type ScreenshotOptions struct {
	Selector string `json:"selector,omitempty"`
	// Format is "png" or "jpeg".
	Format   string `json:"format,omitempty"`
	Quality  int    `json:"quality,omitempty"`
	FullPage bool   `json:"full_page,omitempty"`
}
