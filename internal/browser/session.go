package browser

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	defaultProfilePrefix   = "gpsjus-chrome"
	defaultPageLoadTimeout = 30 * time.Second
	defaultUserAgent       = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 " +
		"(KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"
)

// Config controls how browsers are launched.
type Config struct {
	// RemoteURL connects to an already running browser instead of launching one.
	RemoteURL       string        `mapstructure:"remote_url"`
	ExecPath        string        `mapstructure:"exec_path"`
	UserAgent       string        `mapstructure:"user_agent"`
	ProfilePrefix   string        `mapstructure:"profile_prefix"`
	TempDir         string        `mapstructure:"temp_dir"`
	PageLoadTimeout time.Duration `mapstructure:"page_load_timeout"`
}

// Launcher creates browser sessions and tracks them until they are released.
type Launcher struct {
	cfg    Config
	logger *zap.Logger
	pid    int

	mu   sync.Mutex
	open map[*Session]struct{}
}

// NewLauncher builds a Launcher. Call Shutdown before the process exits.
func NewLauncher(cfg Config, logger *zap.Logger) *Launcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ProfilePrefix == "" {
		cfg.ProfilePrefix = defaultProfilePrefix
	}
	if cfg.TempDir == "" {
		cfg.TempDir = os.TempDir()
	}
	if cfg.PageLoadTimeout <= 0 {
		cfg.PageLoadTimeout = defaultPageLoadTimeout
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = defaultUserAgent
	}
	return &Launcher{
		cfg:    cfg,
		logger: logger,
		pid:    os.Getpid(),
		open:   make(map[*Session]struct{}),
	}
}

// ProfileDir is the per-process profile directory used for local launches.
func (l *Launcher) ProfileDir() string {
	return filepath.Join(l.cfg.TempDir, fmt.Sprintf("%s-%d", l.cfg.ProfilePrefix, l.pid))
}

// Acquire starts a browser and returns a ready session. On error nothing is left running.
func (l *Launcher) Acquire(ctx context.Context, headless bool) (*Session, error) {
	// The browser lives until Release, not until the caller's context ends.
	parent := context.WithoutCancel(ctx)

	var (
		allocCtx    context.Context
		allocCancel context.CancelFunc
		profileDir  string
	)
	if l.cfg.RemoteURL != "" {
		allocCtx, allocCancel = chromedp.NewRemoteAllocator(parent, l.cfg.RemoteURL)
	} else {
		profileDir = l.ProfileDir()
		if err := os.RemoveAll(profileDir); err != nil {
			return nil, fmt.Errorf("clear profile dir: %w", err)
		}
		if err := os.MkdirAll(profileDir, 0o700); err != nil {
			return nil, fmt.Errorf("create profile dir: %w", err)
		}
		allocCtx, allocCancel = chromedp.NewExecAllocator(parent, l.allocatorOptions(headless, profileDir)...)
	}

	tab, tabCancel := chromedp.NewContext(allocCtx,
		chromedp.WithLogf(l.logger.Sugar().Debugf),
		chromedp.WithErrorf(l.logger.Sugar().Errorf),
	)

	s := &Session{
		id:          uuid.NewString(),
		profileDir:  profileDir,
		tab:         tab,
		cancelTab:   tabCancel,
		cancelAlloc: allocCancel,
		page:        &chromePage{tab: tab, loadTimeout: l.cfg.PageLoadTimeout},
		logger:      l.logger,
		onRelease:   l.forget,
	}

	if err := chromedp.Run(tab); err != nil {
		if rerr := s.Release(); rerr != nil {
			l.logger.Warn("cleanup after failed launch", zap.Error(rerr))
		}
		return nil, fmt.Errorf("launch browser: %w", err)
	}

	l.mu.Lock()
	l.open[s] = struct{}{}
	l.mu.Unlock()

	l.logger.Info("browser session started",
		zap.String("session_id", s.id),
		zap.Bool("headless", headless),
		zap.Bool("remote", l.cfg.RemoteURL != ""),
		zap.String("profile_dir", profileDir),
	)
	return s, nil
}

// Shutdown releases every session that is still open.
func (l *Launcher) Shutdown() error {
	l.mu.Lock()
	sessions := make([]*Session, 0, len(l.open))
	for s := range l.open {
		sessions = append(sessions, s)
	}
	l.mu.Unlock()

	var errs []error
	for _, s := range sessions {
		if err := s.Release(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// OpenSessions reports how many sessions have not been released.
func (l *Launcher) OpenSessions() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.open)
}

func (l *Launcher) forget(s *Session) {
	l.mu.Lock()
	delete(l.open, s)
	l.mu.Unlock()
}

func (l *Launcher) allocatorOptions(headless bool, profileDir string) []chromedp.ExecAllocatorOption {
	opts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	flags := launchFlags(headless)
	names := make([]string, 0, len(flags))
	for name := range flags {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		opts = append(opts, chromedp.Flag(name, flags[name]))
	}
	opts = append(opts,
		chromedp.UserDataDir(profileDir),
		chromedp.UserAgent(l.cfg.UserAgent),
	)
	if l.cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(l.cfg.ExecPath))
	}
	return opts
}

// launchFlags lists the Chrome switches used for local launches.
func launchFlags(headless bool) map[string]any {
	flags := map[string]any{
		"no-sandbox":                true,
		"disable-dev-shm-usage":     true,
		"disable-gpu":               true,
		"disable-extensions":        true,
		"disable-infobars":          true,
		"disable-application-cache": true,
		"disable-blink-features":    "AutomationControlled",
		"enable-automation":         false,
		"headless":                  false,
	}
	if headless {
		flags["headless"] = "new"
	}
	return flags
}

// Session is one running browser with a single tab.
type Session struct {
	id          string
	profileDir  string
	tab         context.Context
	cancelTab   context.CancelFunc
	cancelAlloc context.CancelFunc
	page        *chromePage
	logger      *zap.Logger
	onRelease   func(*Session)

	once       sync.Once
	releaseErr error
}

// ID identifies the session in logs.
func (s *Session) ID() string {
	return s.id
}

// Page returns the session's tab.
func (s *Session) Page() Page {
	return s.page
}

// ProfileDir returns the temporary profile directory, empty for remote browsers.
func (s *Session) ProfileDir() string {
	return s.profileDir
}

// Release stops the browser and removes the profile directory. It is safe to call more than once.
func (s *Session) Release() error {
	s.once.Do(func() {
		if s.tab != nil {
			if err := chromedp.Cancel(s.tab); err != nil && !errors.Is(err, context.Canceled) {
				s.logger.Debug("close browser tab", zap.Error(err))
			}
		}
		if s.cancelTab != nil {
			s.cancelTab()
		}
		if s.cancelAlloc != nil {
			s.cancelAlloc()
		}
		if s.profileDir != "" {
			if err := os.RemoveAll(s.profileDir); err != nil {
				s.releaseErr = fmt.Errorf("remove profile dir: %w", err)
			}
		}
		if s.onRelease != nil {
			s.onRelease(s)
		}
		s.logger.Info("browser session released", zap.String("session_id", s.id))
	})
	return s.releaseErr
}
