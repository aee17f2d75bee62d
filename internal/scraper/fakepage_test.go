package scraper

import (
	"context"
	"fmt"
	"sync"

	"github.com/JakeFAU/gpsjus-scraper/internal/browser"
	"github.com/JakeFAU/gpsjus-scraper/internal/htmldom"
)

// fakePage simulates the dashboard tab. Selecting an option replaces the
// dropdown, so every handle marked before the selection turns stale.
type fakePage struct {
	mu sync.Mutex

	doc      *htmldom.Document
	options  []string
	selected int

	handles map[browser.Handle]bool
	next    int

	// selectErr fails SelectIndex for the given option index.
	selectErr map[int]error
	// keepDropdown leaves handles fresh after selecting the given index.
	keepDropdown map[int]bool
	// panicAt panics inside SelectIndex for the given index.
	panicAt map[int]bool
	markErr error

	// onNavigate decides the result of the n-th navigation, starting at 1.
	onNavigate func(n int) error
	reloadErr  error

	navigations []string
	reloads     int
	selections  []int
}

func newFakePage(doc *htmldom.Document, options ...string) *fakePage {
	return &fakePage{
		doc:          doc,
		options:      options,
		handles:      map[browser.Handle]bool{},
		selectErr:    map[int]error{},
		keepDropdown: map[int]bool{},
		panicAt:      map[int]bool{},
	}
}

func (p *fakePage) Exists(ctx context.Context, xpath string) (bool, error) {
	return p.doc.Exists(ctx, xpath)
}

func (p *fakePage) OuterHTML(ctx context.Context, xpath string) (string, error) {
	return p.doc.OuterHTML(ctx, xpath)
}

func (p *fakePage) Text(ctx context.Context, xpath string) (string, error) {
	return p.doc.Text(ctx, xpath)
}

func (p *fakePage) Navigate(_ context.Context, url string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.navigations = append(p.navigations, url)
	if p.onNavigate != nil {
		return p.onNavigate(len(p.navigations))
	}
	return nil
}

func (p *fakePage) Reload(context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.reloads++
	return p.reloadErr
}

func (p *fakePage) ReadyState(context.Context) (string, error) {
	return "complete", nil
}

func (p *fakePage) Options(context.Context, string) ([]string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.options...), nil
}

func (p *fakePage) SelectIndex(_ context.Context, _ string, index int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.selections = append(p.selections, index)
	if p.panicAt[index] {
		panic(fmt.Sprintf("select %d", index))
	}
	if err := p.selectErr[index]; err != nil {
		return err
	}
	if index < 0 || index >= len(p.options) {
		return fmt.Errorf("select option %d: %w", index, browser.ErrNotFound)
	}
	p.selected = index
	if !p.keepDropdown[index] {
		for h := range p.handles {
			p.handles[h] = true
		}
	}
	return nil
}

func (p *fakePage) SelectedLabel(context.Context, string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.options[p.selected], nil
}

func (p *fakePage) Mark(context.Context, string) (browser.Handle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.markErr != nil {
		return "", p.markErr
	}
	p.next++
	h := browser.Handle(fmt.Sprintf("ref-%d", p.next))
	p.handles[h] = false
	return h, nil
}

func (p *fakePage) IsStale(_ context.Context, h browser.Handle) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	stale, ok := p.handles[h]
	return !ok || stale, nil
}

var _ browser.Page = (*fakePage)(nil)
