package browser

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const countRefs = `(() => ({found: true, value: String(Object.keys(window.__gpsjusRefs || {}).length)}))()`

// Selecting an option rebuilds the dropdown, as the dashboard does.
const rebuildingDropdown = `<!doctype html><html><body>
<select id="unidade" onchange="this.outerHTML = this.outerHTML"><option>Selecione</option><option>Vara 1</option></select>
<div id="backlog">123</div>
</body></html>`

func TestIsStaleForgetsReplacedElements(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, rebuildingDropdown)
	}))
	defer srv.Close()

	launcher := NewLauncher(Config{TempDir: t.TempDir(), PageLoadTimeout: 10 * time.Second}, zap.NewNop())
	defer func() { _ = launcher.Shutdown() }()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	s, err := launcher.Acquire(ctx, true)
	if err != nil {
		t.Skipf("chromedp unavailable: %v", err)
	}
	page, ok := s.Page().(*chromePage)
	require.True(t, ok)

	if err := page.Navigate(ctx, srv.URL); err != nil {
		t.Skipf("navigate failed: %v", err)
	}

	dropdown, err := page.Mark(ctx, "unidade")
	require.NoError(t, err)
	backlog, err := page.Mark(ctx, "backlog")
	require.NoError(t, err)
	assertRefs(ctx, t, page, "2")

	stale, err := page.IsStale(ctx, dropdown)
	require.NoError(t, err)
	assert.False(t, stale)

	require.NoError(t, page.SelectIndex(ctx, "unidade", 1))
	stale, err = page.IsStale(ctx, dropdown)
	require.NoError(t, err)
	assert.True(t, stale)
	assertRefs(ctx, t, page, "1")

	// A forgotten handle keeps reporting stale.
	stale, err = page.IsStale(ctx, dropdown)
	require.NoError(t, err)
	assert.True(t, stale)

	stale, err = page.IsStale(ctx, backlog)
	require.NoError(t, err)
	assert.False(t, stale)
	assertRefs(ctx, t, page, "1")
}

func assertRefs(ctx context.Context, t *testing.T, page *chromePage, want string) {
	t.Helper()
	got, err := page.found(ctx, countRefs, "refs")
	require.NoError(t, err)
	assert.Equal(t, want, got)
}
