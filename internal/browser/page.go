package browser

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
)

// chromePage implements Page on a chromedp tab context.
type chromePage struct {
	tab         context.Context
	loadTimeout time.Duration
	seq         atomic.Uint64
}

var _ Page = (*chromePage)(nil)

// evalResult is the shape every page script returns so null never reaches the decoder.
type evalResult struct {
	Found  bool     `json:"found"`
	OK     bool     `json:"ok"`
	Value  string   `json:"value"`
	Values []string `json:"values"`
}

const xpathFirst = `document.evaluate(%s, document, null, XPathResult.FIRST_ORDERED_NODE_TYPE, null).singleNodeValue`

const (
	scriptExists = `(() => { const n = ` + xpathFirst + `; return {found: n !== null}; })()`

	scriptOuterHTML = `(() => {
  const n = ` + xpathFirst + `;
  if (n === null) return {found: false};
  return {found: true, value: n.outerHTML || ""};
})()`

	scriptText = `(() => {
  const n = ` + xpathFirst + `;
  if (n === null) return {found: false};
  const t = n.innerText !== undefined ? n.innerText : n.textContent;
  return {found: true, value: (t || "").trim()};
})()`

	scriptOptions = `(() => {
  const s = document.getElementById(%s);
  if (!s || !s.options) return {found: false};
  return {found: true, values: Array.from(s.options).map(o => (o.text || "").trim())};
})()`

	scriptSelect = `(() => {
  const s = document.getElementById(%s);
  if (!s || !s.options) return {found: false};
  const i = %d;
  if (i < 0 || i >= s.options.length) return {found: true, ok: false};
  s.selectedIndex = i;
  s.dispatchEvent(new Event("change", {bubbles: true}));
  return {found: true, ok: true};
})()`

	scriptSelected = `(() => {
  const s = document.getElementById(%s);
  if (!s || !s.options || s.selectedIndex < 0) return {found: false};
  return {found: true, value: (s.options[s.selectedIndex].text || "").trim()};
})()`

	scriptMark = `(() => {
  const el = document.getElementById(%s);
  if (!el) return {found: false};
  window.__gpsjusRefs = window.__gpsjusRefs || {};
  window.__gpsjusRefs[%s] = el;
  return {found: true};
})()`

	// A stale handle is dropped so detached subtrees can be collected.
	scriptIsStale = `(() => {
  const refs = window.__gpsjusRefs;
  const key = %s;
  const el = refs ? refs[key] : undefined;
  const stale = !(el && el.isConnected);
  if (stale && refs) delete refs[key];
  return {ok: stale};
})()`
)

func (p *chromePage) Navigate(ctx context.Context, url string) error {
	ctx, cancel := context.WithTimeout(ctx, p.loadTimeout)
	defer cancel()
	if err := p.run(ctx, chromedp.Navigate(url)); err != nil {
		return fmt.Errorf("navigate %s: %w", url, err)
	}
	return nil
}

func (p *chromePage) Reload(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, p.loadTimeout)
	defer cancel()
	if err := p.run(ctx, chromedp.Reload()); err != nil {
		return fmt.Errorf("reload: %w", err)
	}
	return nil
}

func (p *chromePage) ReadyState(ctx context.Context) (string, error) {
	var state string
	if err := p.run(ctx, chromedp.Evaluate(`document.readyState`, &state)); err != nil {
		return "", fmt.Errorf("read ready state: %w", err)
	}
	return state, nil
}

func (p *chromePage) Exists(ctx context.Context, xpath string) (bool, error) {
	res, err := p.eval(ctx, fmt.Sprintf(scriptExists, jsString(xpath)))
	if err != nil {
		return false, fmt.Errorf("query %s: %w", xpath, err)
	}
	return res.Found, nil
}

func (p *chromePage) OuterHTML(ctx context.Context, xpath string) (string, error) {
	return p.found(ctx, fmt.Sprintf(scriptOuterHTML, jsString(xpath)), xpath)
}

func (p *chromePage) Text(ctx context.Context, xpath string) (string, error) {
	return p.found(ctx, fmt.Sprintf(scriptText, jsString(xpath)), xpath)
}

func (p *chromePage) Options(ctx context.Context, selectID string) ([]string, error) {
	res, err := p.eval(ctx, fmt.Sprintf(scriptOptions, jsString(selectID)))
	if err != nil {
		return nil, fmt.Errorf("list options of #%s: %w", selectID, err)
	}
	if !res.Found {
		return nil, fmt.Errorf("select #%s: %w", selectID, ErrNotFound)
	}
	return res.Values, nil
}

func (p *chromePage) SelectIndex(ctx context.Context, selectID string, index int) error {
	res, err := p.eval(ctx, fmt.Sprintf(scriptSelect, jsString(selectID), index))
	if err != nil {
		return fmt.Errorf("select option %d of #%s: %w", index, selectID, err)
	}
	if !res.Found {
		return fmt.Errorf("select #%s: %w", selectID, ErrNotFound)
	}
	if !res.OK {
		return fmt.Errorf("select #%s has no option %d: %w", selectID, index, ErrNotFound)
	}
	return nil
}

func (p *chromePage) SelectedLabel(ctx context.Context, selectID string) (string, error) {
	return p.found(ctx, fmt.Sprintf(scriptSelected, jsString(selectID)), "#"+selectID)
}

func (p *chromePage) Mark(ctx context.Context, elementID string) (Handle, error) {
	key := fmt.Sprintf("%s#%d", elementID, p.seq.Add(1))
	res, err := p.eval(ctx, fmt.Sprintf(scriptMark, jsString(elementID), jsString(key)))
	if err != nil {
		return "", fmt.Errorf("mark #%s: %w", elementID, err)
	}
	if !res.Found {
		return "", fmt.Errorf("mark #%s: %w", elementID, ErrNotFound)
	}
	return Handle(key), nil
}

func (p *chromePage) IsStale(ctx context.Context, h Handle) (bool, error) {
	res, err := p.eval(ctx, fmt.Sprintf(scriptIsStale, jsString(string(h))))
	if errors.Is(err, ErrStaleElement) {
		// The document itself is being torn down.
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("check handle %s: %w", h, err)
	}
	return res.OK, nil
}

func (p *chromePage) found(ctx context.Context, script, what string) (string, error) {
	res, err := p.eval(ctx, script)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", what, err)
	}
	if !res.Found {
		return "", fmt.Errorf("read %s: %w", what, ErrNotFound)
	}
	return res.Value, nil
}

func (p *chromePage) eval(ctx context.Context, script string) (evalResult, error) {
	var res evalResult
	if err := p.run(ctx, chromedp.Evaluate(script, &res)); err != nil {
		return evalResult{}, err
	}
	return res, nil
}

// run executes actions on the tab while honoring the caller's deadline and cancellation.
func (p *chromePage) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithCancel(p.tab)
	defer cancel()
	if deadline, ok := ctx.Deadline(); ok {
		var cancelDeadline context.CancelFunc
		runCtx, cancelDeadline = context.WithDeadline(runCtx, deadline)
		defer cancelDeadline()
	}
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	if err := chromedp.Run(runCtx, actions...); err != nil {
		return classify(err)
	}
	return nil
}

// staleMarkers are CDP error fragments raised when the document or node was replaced mid-call.
var staleMarkers = []string{
	"Execution context was destroyed",
	"Cannot find context with specified id",
	"Inspected target navigated or closed",
	"No node with given id found",
	"Could not find node with given id",
	"Node is detached from document",
}

func classify(err error) error {
	if err == nil {
		return nil
	}
	msg := err.Error()
	for _, marker := range staleMarkers {
		if strings.Contains(msg, marker) {
			return fmt.Errorf("%w: %s", ErrStaleElement, msg)
		}
	}
	var exc *runtime.ExceptionDetails
	if errors.As(err, &exc) {
		return fmt.Errorf("%w: %s", ErrScript, exc.Error())
	}
	return err
}

// jsString renders s as a JavaScript string literal.
func jsString(s string) string {
	b, err := json.Marshal(s)
	if err != nil {
		return `""`
	}
	return string(b)
}
