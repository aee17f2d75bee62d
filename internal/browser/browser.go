// Package browser owns the automated Chrome instance used for scraping and
// exposes the small set of page operations the scraper needs.
package browser

import (
	"context"
	"errors"
)

var (
	// ErrNotFound means the requested element is not in the current document.
	ErrNotFound = errors.New("element not found")
	// ErrStaleElement means the document or node went away while it was being read.
	ErrStaleElement = errors.New("stale element reference")
	// ErrScript wraps exceptions thrown by page scripts.
	ErrScript = errors.New("page script failed")
)

// DOM is the read-only view extractors work against.
type DOM interface {
	// Exists reports whether xpath matches a node.
	Exists(ctx context.Context, xpath string) (bool, error)
	// OuterHTML returns the markup of the first node matching xpath.
	OuterHTML(ctx context.Context, xpath string) (string, error)
	// Text returns the trimmed visible text of the first node matching xpath.
	Text(ctx context.Context, xpath string) (string, error)
}

// Handle references an element captured with Page.Mark.
type Handle string

// Page is a single browser tab.
type Page interface {
	DOM
	Navigate(ctx context.Context, url string) error
	Reload(ctx context.Context) error
	ReadyState(ctx context.Context) (string, error)
	// Options returns the option labels of the select element with id selectID.
	Options(ctx context.Context, selectID string) ([]string, error)
	// SelectIndex selects an option by position and fires the change event.
	SelectIndex(ctx context.Context, selectID string, index int) error
	SelectedLabel(ctx context.Context, selectID string) (string, error)
	// Mark keeps a reference to the element with id elementID so that a later
	// IsStale call can tell whether the page replaced it.
	Mark(ctx context.Context, elementID string) (Handle, error)
	IsStale(ctx context.Context, h Handle) (bool, error)
}
