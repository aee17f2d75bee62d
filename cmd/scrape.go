package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/gpsjus-scraper/internal/browser"
	"github.com/JakeFAU/gpsjus-scraper/internal/clock/system"
	"github.com/JakeFAU/gpsjus-scraper/internal/config"
	"github.com/JakeFAU/gpsjus-scraper/internal/dataset"
	"github.com/JakeFAU/gpsjus-scraper/internal/hash/sha256"
	"github.com/JakeFAU/gpsjus-scraper/internal/id/uuid"
	"github.com/JakeFAU/gpsjus-scraper/internal/notify"
	"github.com/JakeFAU/gpsjus-scraper/internal/probe"
	"github.com/JakeFAU/gpsjus-scraper/internal/scraper"
	"github.com/JakeFAU/gpsjus-scraper/internal/storage"
)

func newRunScraperCmd() *cobra.Command {
	var (
		headless bool
		maxUnits int
		output   string
	)
	cmd := &cobra.Command{
		Use:   "run-scraper",
		Short: "Scrape every unit of the dashboard and save the dataset",
		Long: `Opens the dashboard in Chrome, selects each unit of the dropdown in order
and extracts its tables. Units that fail are logged and skipped; the run only
fails when the dashboard or the browser cannot be used at all, in which case
nothing is saved.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			cfg := app.Config
			if cmd.Flags().Changed("headless") {
				cfg.Scraper.Headless = headless
			}
			if cmd.Flags().Changed("max-units") {
				cfg.Scraper.MaxUnits = maxUnits
			}
			if output != "" {
				cfg.Storage.Backend = storage.BackendFile
				cfg.Storage.FilePath = output
			}
			return runScraper(cmd.Context(), app.Logger, cfg.Scraper, cfg.Browser, cfg.Layout, cfg.Storage, cfg.Notify)
		},
	}
	cmd.Flags().BoolVar(&headless, "headless", true, "run Chrome without a window")
	cmd.Flags().IntVar(&maxUnits, "max-units", 0, "stop after N units (0 = all)")
	cmd.Flags().StringVar(&output, "output", "", "write the dataset to this JSON file instead of the configured store")
	return cmd
}

func runScraper(
	ctx context.Context,
	logger *zap.Logger,
	sc config.ScraperConfig,
	bc browser.Config,
	layout scraper.Layout,
	stc storage.Config,
	nc notify.Config,
) error {
	store, err := storage.New(ctx, stc, logger.Named("storage"))
	if err != nil {
		return fmt.Errorf("open dataset store: %w", err)
	}
	defer func() {
		if cerr := store.Close(); cerr != nil {
			logger.Warn("close dataset store", zap.Error(cerr))
		}
	}()

	launcher := browser.NewLauncher(bc, logger.Named("browser"))
	defer func() {
		if serr := launcher.Shutdown(); serr != nil {
			logger.Warn("browser shutdown", zap.Error(serr))
		}
	}()

	opts := []scraper.OrchestratorOption{
		scraper.WithLayout(layout),
		scraper.WithProgress(newProgress(logger)),
	}
	if sc.Preflight {
		opts = append(opts, scraper.WithProber(probe.New(probe.Config{
			UserAgent: bc.UserAgent,
			Timeout:   sc.PreflightTimeout,
			Marker:    "select#" + layout.Merge(scraper.DefaultLayout()).UnitSelectID,
		}, logger.Named("probe"))))
	}
	orch := scraper.NewOrchestrator(
		scraper.BrowserLauncher{Launcher: launcher, Headless: sc.Headless},
		sc.Options(),
		logger.Named("scraper"),
		opts...,
	)

	var pub notify.Publisher
	if nc.Enabled() {
		ps, err := notify.NewPubSub(ctx, nc.ProjectID)
		if err != nil {
			return fmt.Errorf("init publisher: %w", err)
		}
		defer func() {
			if cerr := ps.Close(); cerr != nil {
				logger.Warn("close publisher", zap.Error(cerr))
			}
		}()
		pub = ps
	}

	job := scrapeJob{
		runner:    orch,
		store:     store,
		publisher: pub,
		topic:     nc.Topic,
		backend:   stc.Backend,
		maxUnits:  sc.MaxUnits,
		ids:       uuid.New(),
		hasher:    sha256.New(),
		clock:     system.New(),
		logger:    logger,
	}
	_, err = job.run(ctx)
	return err
}

type runner interface {
	Run(ctx context.Context, maxUnits int) (dataset.Dataset, error)
}

type idGenerator interface {
	NewID() (string, error)
}

type datasetHasher interface {
	Dataset(d dataset.Dataset) (string, error)
}

type clock interface {
	Now() time.Time
}

// scrapeJob runs a scrape, saves the result and announces it.
type scrapeJob struct {
	runner    runner
	store     storage.Store
	publisher notify.Publisher
	topic     string
	backend   string
	maxUnits  int
	ids       idGenerator
	hasher    datasetHasher
	clock     clock
	logger    *zap.Logger
}

func (j scrapeJob) run(ctx context.Context) (dataset.Dataset, error) {
	runID, err := j.ids.NewID()
	if err != nil {
		return nil, err
	}
	log := j.logger.With(zap.String("run_id", runID))

	d, err := j.runner.Run(ctx, j.maxUnits)
	if err != nil {
		return nil, fmt.Errorf("run scraper: %w", err)
	}
	if err := d.Validate(); err != nil {
		return nil, fmt.Errorf("validate dataset: %w", err)
	}
	digest, err := j.hasher.Dataset(d)
	if err != nil {
		return nil, err
	}
	if err := j.store.Save(ctx, d); err != nil {
		return nil, fmt.Errorf("save dataset: %w", err)
	}
	log.Info("dataset saved",
		zap.Int("units", len(d)),
		zap.String("backend", j.backend),
		zap.String("sha256", digest),
	)

	if j.publisher != nil {
		msgID, err := j.publisher.Publish(ctx, j.topic, notify.DatasetSaved{
			RunID:   runID,
			Units:   len(d),
			Backend: j.backend,
			SHA256:  digest,
			SavedAt: j.clock.Now(),
		})
		if err != nil {
			// The dataset is already stored, so a lost notification is not fatal.
			log.Warn("publish dataset saved", zap.String("topic", j.topic), zap.Error(err))
		} else {
			log.Info("dataset saved published", zap.String("topic", j.topic), zap.String("message_id", msgID))
		}
	}
	return d, nil
}

// newProgress draws a bar on interactive terminals and logs otherwise.
func newProgress(logger *zap.Logger) scraper.Progress {
	var bar *progressbar.ProgressBar
	interactive := isatty.IsTerminal(os.Stderr.Fd())
	return func(done, total int, rec *dataset.UnitRecord) {
		if !interactive {
			fields := []zap.Field{zap.Int("done", done), zap.Int("total", total)}
			if rec == nil {
				fields = append(fields, zap.Bool("skipped", true))
			}
			logger.Debug("scrape progress", fields...)
			return
		}
		if bar == nil {
			bar = progressbar.NewOptions(total,
				progressbar.OptionSetDescription("Scraping units"),
				progressbar.OptionSetWriter(os.Stderr),
				progressbar.OptionShowCount(),
				progressbar.OptionClearOnFinish(),
			)
		}
		if err := bar.Set(done); err != nil {
			logger.Debug("update progress bar", zap.Error(err))
		}
	}
}
