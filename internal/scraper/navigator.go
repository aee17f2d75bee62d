package scraper

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/gpsjus-scraper/internal/await"
	"github.com/JakeFAU/gpsjus-scraper/internal/browser"
)

// NavState is a step of the per-unit selection flow.
type NavState int

// Navigator states, in order.
const (
	StateIdle NavState = iota
	StateSelecting
	StateAwaitingStaleness
	StateAwaitingReady
	StateDone
)

func (s NavState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSelecting:
		return "selecting"
	case StateAwaitingStaleness:
		return "awaiting_staleness"
	case StateAwaitingReady:
		return "awaiting_ready"
	case StateDone:
		return "done"
	default:
		return fmt.Sprintf("NavState(%d)", int(s))
	}
}

// NavigationError reports the state in which selecting a unit failed.
type NavigationError struct {
	Index int
	State NavState
	Err   error
}

func (e *NavigationError) Error() string {
	return fmt.Sprintf("unit %d: %s: %v", e.Index, e.State, e.Err)
}

func (e *NavigationError) Unwrap() error {
	return e.Err
}

// Navigator selects units in the dropdown and waits for the page to settle.
type Navigator struct {
	page   browser.Page
	layout Layout
	poller await.Poller
	logger *zap.Logger
}

// NewNavigator builds a Navigator over page.
func NewNavigator(page browser.Page, layout Layout, poller await.Poller, logger *zap.Logger) *Navigator {
	if logger == nil {
		logger = zap.NewNop()
	}
	poller.Logger = logger
	poller.Ignore = append(poller.Ignore, browser.ErrStaleElement, browser.ErrNotFound)
	return &Navigator{
		page:   page,
		layout: layout.Merge(DefaultLayout()),
		poller: poller,
		logger: logger,
	}
}

// Select picks the option at index and returns its label once the new content is ready.
func (n *Navigator) Select(ctx context.Context, index int) (string, error) {
	state := StateIdle
	fail := func(err error) (string, error) {
		return "", &NavigationError{Index: index, State: state, Err: err}
	}
	log := n.logger.With(zap.Int("unit_index", index))

	handle, markErr := n.page.Mark(ctx, n.layout.UnitSelectID)
	if markErr != nil {
		log.Debug("dropdown not captured, staleness check skipped", zap.Error(markErr))
	}

	state = StateSelecting
	if err := n.page.SelectIndex(ctx, n.layout.UnitSelectID, index); err != nil {
		// A stale error here means the change event already started the reload.
		if !errors.Is(err, browser.ErrStaleElement) {
			return fail(err)
		}
	}

	if markErr == nil {
		state = StateAwaitingStaleness
		err := n.poller.Until(ctx, func(ctx context.Context) (bool, error) {
			return n.page.IsStale(ctx, handle)
		}, "previous dropdown replaced")
		if err != nil {
			return fail(err)
		}
	}

	state = StateAwaitingReady
	if err := n.AwaitReady(ctx); err != nil {
		return fail(err)
	}

	label, err := readStale(ctx, func(ctx context.Context) (string, error) {
		return n.page.SelectedLabel(ctx, n.layout.UnitSelectID)
	})
	if err != nil {
		return fail(err)
	}
	state = StateDone
	log.Debug("unit selected", zap.String("unit", label), zap.Stringer("state", state))
	return label, nil
}

// AwaitReady waits until both the dropdown and the backlog marker are present.
func (n *Navigator) AwaitReady(ctx context.Context) error {
	return n.poller.Until(ctx, func(ctx context.Context) (bool, error) {
		ok, err := n.page.Exists(ctx, n.layout.unitSelectXPath())
		if err != nil || !ok {
			return false, err
		}
		return n.page.Exists(ctx, n.layout.ReadyMarker)
	}, "dropdown and backlog marker present")
}
