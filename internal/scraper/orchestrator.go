package scraper

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/JakeFAU/gpsjus-scraper/internal/await"
	"github.com/JakeFAU/gpsjus-scraper/internal/browser"
	"github.com/JakeFAU/gpsjus-scraper/internal/dataset"
	"github.com/JakeFAU/gpsjus-scraper/internal/metrics"
)

// ErrBaseUnavailable means the dashboard never became usable after the first load.
var ErrBaseUnavailable = errors.New("dashboard unavailable")

// RecoveryError aborts a run whose session could not be brought back.
type RecoveryError struct {
	Index int
	Err   error
}

func (e *RecoveryError) Error() string {
	return fmt.Sprintf("recover session after unit %d: %v", e.Index, e.Err)
}

func (e *RecoveryError) Unwrap() error {
	return e.Err
}

// Session is the browser tab a run owns.
type Session interface {
	Page() browser.Page
	Release() error
}

// Launcher starts sessions.
type Launcher interface {
	Launch(ctx context.Context) (Session, error)
}

// Prober checks that the dashboard host answers before a browser is started.
type Prober interface {
	Probe(ctx context.Context, url string) error
}

// BrowserLauncher adapts a browser.Launcher to Launcher.
type BrowserLauncher struct {
	Launcher *browser.Launcher
	Headless bool
}

// Launch acquires a fresh Chrome session.
func (b BrowserLauncher) Launch(ctx context.Context) (Session, error) {
	s, err := b.Launcher.Acquire(ctx, b.Headless)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// Options tunes a run.
type Options struct {
	BaseURL string
	// UnitInterval is the minimum gap between two units. Zero disables pacing.
	UnitInterval time.Duration
	PageTimeout  time.Duration
	NavTimeout   time.Duration
	TableTimeout time.Duration
	// PollInterval overrides the default polling cadence of every wait.
	PollInterval time.Duration
}

// Defaults for Options.
const (
	DefaultPageTimeout  = 30 * time.Second
	DefaultNavTimeout   = 20 * time.Second
	DefaultTableTimeout = 10 * time.Second
)

func (o Options) withDefaults() Options {
	if o.BaseURL == "" {
		o.BaseURL = DefaultBaseURL
	}
	if o.PageTimeout <= 0 {
		o.PageTimeout = DefaultPageTimeout
	}
	if o.NavTimeout <= 0 {
		o.NavTimeout = DefaultNavTimeout
	}
	if o.TableTimeout <= 0 {
		o.TableTimeout = DefaultTableTimeout
	}
	return o
}

// Progress is called after each unit with the number of units handled so far.
type Progress func(done, total int, rec *dataset.UnitRecord)

// Orchestrator drives one scraping run over every unit in the dropdown.
type Orchestrator struct {
	launcher Launcher
	prober   Prober
	layout   Layout
	opts     Options
	logger   *zap.Logger
	progress Progress
}

// OrchestratorOption configures an Orchestrator.
type OrchestratorOption func(*Orchestrator)

// WithProber enables the preflight reachability check.
func WithProber(p Prober) OrchestratorOption {
	return func(o *Orchestrator) { o.prober = p }
}

// WithProgress registers a per-unit callback.
func WithProgress(fn Progress) OrchestratorOption {
	return func(o *Orchestrator) { o.progress = fn }
}

// WithLayout overrides dashboard anchors.
func WithLayout(l Layout) OrchestratorOption {
	return func(o *Orchestrator) { o.layout = l }
}

// NewOrchestrator wires a run.
func NewOrchestrator(launcher Launcher, opts Options, logger *zap.Logger, options ...OrchestratorOption) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	o := &Orchestrator{
		launcher: launcher,
		layout:   DefaultLayout(),
		opts:     opts.withDefaults(),
		logger:   logger,
	}
	for _, opt := range options {
		opt(o)
	}
	o.layout = o.layout.Merge(DefaultLayout())
	return o
}

// Run scrapes up to maxUnits units (all of them when maxUnits <= 0). The
// returned dataset holds every unit that succeeded, in dropdown order.
func (o *Orchestrator) Run(ctx context.Context, maxUnits int) (dataset.Dataset, error) {
	start := time.Now()
	base := o.opts.BaseURL

	if o.prober != nil {
		if err := o.prober.Probe(ctx, base); err != nil {
			return nil, fmt.Errorf("preflight %s: %w", base, err)
		}
	}

	session, err := o.launcher.Launch(ctx)
	if err != nil {
		return nil, fmt.Errorf("launch session: %w", err)
	}
	defer func() {
		if err := session.Release(); err != nil {
			o.logger.Warn("release session", zap.Error(err))
		}
	}()
	page := session.Page()

	pagePoller := o.poller(o.opts.PageTimeout)
	nav := NewNavigator(page, o.layout, o.poller(o.opts.NavTimeout), o.logger)
	extractor := NewExtractor(page, o.layout, o.poller(o.opts.TableTimeout), o.logger)

	if err := o.openBase(ctx, page, pagePoller, nav); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBaseUnavailable, err)
	}

	options, err := page.Options(ctx, o.layout.UnitSelectID)
	if err != nil {
		return nil, fmt.Errorf("%w: list units: %w", ErrBaseUnavailable, err)
	}
	last := len(options) - 1
	if maxUnits > 0 && maxUnits < last {
		last = maxUnits
	}
	total := max(last, 0)
	o.logger.Info("scrape started",
		zap.String("base_url", base),
		zap.Int("units_available", max(len(options)-1, 0)),
		zap.Int("units_requested", total),
	)

	limiter := rate.NewLimiter(rate.Inf, 1)
	if o.opts.UnitInterval > 0 {
		limiter = rate.NewLimiter(rate.Every(o.opts.UnitInterval), 1)
	}

	out := make(dataset.Dataset, 0, total)
	for index := 1; index <= last; index++ {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("scrape interrupted at unit %d: %w", index, err)
		}
		if err := limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("pace unit %d: %w", index, err)
		}

		rec, err := o.unit(ctx, nav, extractor, index)
		if err != nil {
			metrics.ObserveUnit(metrics.OutcomeFailed)
			o.logger.Error("unit failed",
				zap.Int("unit_index", index),
				zap.Error(err),
			)
			if rerr := o.recoverPage(ctx, page, pagePoller, nav); rerr != nil {
				return nil, &RecoveryError{Index: index, Err: rerr}
			}
			o.report(index, total, nil)
			continue
		}
		metrics.ObserveUnit(metrics.OutcomeSuccess)
		out = append(out, rec)
		o.report(index, total, &rec)
	}

	metrics.ObserveRun(time.Since(start), len(out))
	o.logger.Info("scrape finished",
		zap.Int("units", len(out)),
		zap.Int("failed", total-len(out)),
		zap.Duration("elapsed", time.Since(start)),
	)
	return out, nil
}

// unit selects and extracts one unit. Panics are turned into errors so a
// single bad unit never takes down the run.
func (o *Orchestrator) unit(ctx context.Context, nav *Navigator, ex *Extractor, index int) (rec dataset.UnitRecord, err error) {
	defer func() {
		if r := recover(); r != nil {
			o.logger.Debug("unit panic stack", zap.ByteString("stack", debug.Stack()))
			err = fmt.Errorf("panic during unit: %v", r)
		}
	}()
	name, err := nav.Select(ctx, index)
	if err != nil {
		return dataset.UnitRecord{}, err
	}
	log := o.logger.With(zap.Int("unit_index", index), zap.String("unit", name))
	log.Info("extracting unit")
	rec = ex.Record(ctx, index, name)
	log.Debug("unit extracted", zap.String("total_backlog", rec.TotalBacklog))
	return rec, nil
}

func (o *Orchestrator) openBase(ctx context.Context, page browser.Page, p await.Poller, nav *Navigator) error {
	if err := page.Navigate(ctx, o.opts.BaseURL); err != nil {
		return err
	}
	return o.settle(ctx, page, p, nav)
}

func (o *Orchestrator) settle(ctx context.Context, page browser.Page, p await.Poller, nav *Navigator) error {
	if err := await.PageReady(ctx, p, page); err != nil {
		return err
	}
	return nav.AwaitReady(ctx)
}

// recoverPage reloads the current page, falling back to a fresh navigation.
func (o *Orchestrator) recoverPage(ctx context.Context, page browser.Page, p await.Poller, nav *Navigator) error {
	reloadErr := page.Reload(ctx)
	if reloadErr == nil {
		reloadErr = o.settle(ctx, page, p, nav)
	}
	if reloadErr == nil {
		metrics.ObserveRecovery(metrics.RecoveryReload)
		o.logger.Info("session recovered", zap.String("mode", metrics.RecoveryReload))
		return nil
	}
	o.logger.Warn("reload failed, navigating to base", zap.Error(reloadErr))

	if err := o.openBase(ctx, page, p, nav); err != nil {
		metrics.ObserveRecovery(metrics.RecoveryFailed)
		return errors.Join(reloadErr, err)
	}
	metrics.ObserveRecovery(metrics.RecoveryNavigate)
	o.logger.Info("session recovered", zap.String("mode", metrics.RecoveryNavigate))
	return nil
}

func (o *Orchestrator) report(done, total int, rec *dataset.UnitRecord) {
	if o.progress != nil {
		o.progress(done, total, rec)
	}
}

func (o *Orchestrator) poller(timeout time.Duration) await.Poller {
	return await.Poller{Timeout: timeout, Interval: o.opts.PollInterval, Logger: o.logger}
}
