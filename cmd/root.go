// Package cmd defines and implements the CLI commands for the gpsjus executable.
//
// run-scraper walks every unit of the TJRN first-instance dashboard in a single
// Chrome session and saves the dataset to the configured store. serve exposes
// the stored dataset through a bearer-token API. The remaining commands are
// operator helpers.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/gpsjus-scraper/internal/config"
	"github.com/JakeFAU/gpsjus-scraper/internal/logging"
)

// appKeyType is the key for storing the App in the context.
type appKeyType string

const appKey appKeyType = "app"

// App carries what every subcommand needs once configuration is loaded.
type App struct {
	Config config.Config
	Logger *zap.Logger
}

// loadApp is a variable so tests can inject configuration without files.
var loadApp = func(path string) (*App, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	logger, err := logging.New(cfg.Logging.Development, logging.WithLevel(cfg.Logging.Level))
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	return &App{Config: cfg, Logger: logger}, nil
}

func newRootCmd() *cobra.Command {
	var cfgFile string

	cmd := &cobra.Command{
		Use:   "gpsjus",
		Short: "Scraper and API for the TJRN GPS-Jus first-instance dashboard",
		Long: `gpsjus extracts the per-unit tables of the TJRN GPS-Jus public dashboard
(backlog, pending cases, suspensions, custody, monthly distributions and more)
into a JSON dataset, and serves that dataset through an authenticated API.`,
		SilenceUsage: true,

		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			app, err := loadApp(cfgFile)
			if err != nil {
				return err
			}
			zap.ReplaceGlobals(app.Logger)
			cmd.SetContext(context.WithValue(cmd.Context(), appKey, app))
			return nil
		},

		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			if app, ok := cmd.Context().Value(appKey).(*App); ok && app != nil {
				_ = app.Logger.Sync()
			}
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (YAML); env vars use the GPSJUS_ prefix")

	cmd.AddCommand(
		newRunScraperCmd(),
		newServeCmd(),
		newExtractCmd(),
		newShowCmd(),
		newHashPasswordCmd(),
	)
	return cmd
}

func resolveApp(ctx context.Context) (*App, error) {
	app, ok := ctx.Value(appKey).(*App)
	if !ok || app == nil {
		return nil, errors.New("application not initialized")
	}
	return app, nil
}

// Execute runs the CLI and exits with status 1 on failure. SIGINT and SIGTERM
// cancel the command context so browser sessions and servers shut down.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
