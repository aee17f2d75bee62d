// Package htmldom serves saved dashboard pages through the browser.DOM interface
// so extraction can run without a live browser.
package htmldom

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/antchfx/htmlquery"
	"golang.org/x/net/html"

	"github.com/JakeFAU/gpsjus-scraper/internal/browser"
)

// Document is a parsed, immutable HTML page.
type Document struct {
	root *html.Node
}

var _ browser.DOM = (*Document)(nil)

// Parse reads an HTML document.
func Parse(r io.Reader) (*Document, error) {
	root, err := htmlquery.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	return &Document{root: root}, nil
}

// ParseString parses an HTML document held in memory.
func ParseString(s string) (*Document, error) {
	return Parse(strings.NewReader(s))
}

// Open parses the HTML file at path.
func Open(path string) (*Document, error) {
	f, err := os.Open(path) //nolint:gosec // operator supplied path
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close() //nolint:errcheck // read-only
	return Parse(f)
}

// Exists reports whether xpath matches a node.
func (d *Document) Exists(_ context.Context, xpath string) (bool, error) {
	n, err := d.query(xpath)
	if err != nil {
		return false, err
	}
	return n != nil, nil
}

// OuterHTML returns the markup of the first node matching xpath.
func (d *Document) OuterHTML(_ context.Context, xpath string) (string, error) {
	n, err := d.first(xpath)
	if err != nil {
		return "", err
	}
	return htmlquery.OutputHTML(n, true), nil
}

// Text returns the trimmed text of the first node matching xpath.
func (d *Document) Text(_ context.Context, xpath string) (string, error) {
	n, err := d.first(xpath)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(htmlquery.InnerText(n)), nil
}

func (d *Document) first(xpath string) (*html.Node, error) {
	n, err := d.query(xpath)
	if err != nil {
		return nil, err
	}
	if n == nil {
		return nil, fmt.Errorf("query %s: %w", xpath, browser.ErrNotFound)
	}
	return n, nil
}

func (d *Document) query(xpath string) (*html.Node, error) {
	n, err := htmlquery.Query(d.root, xpath)
	if err != nil {
		return nil, fmt.Errorf("invalid xpath %q: %w", xpath, err)
	}
	return n, nil
}
