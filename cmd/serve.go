package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/gpsjus-scraper/internal/api"
	"github.com/JakeFAU/gpsjus-scraper/internal/auth"
	"github.com/JakeFAU/gpsjus-scraper/internal/clock/system"
	"github.com/JakeFAU/gpsjus-scraper/internal/config"
	"github.com/JakeFAU/gpsjus-scraper/internal/policy/ratelimit"
	"github.com/JakeFAU/gpsjus-scraper/internal/storage"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the stored dataset over HTTP",
		Long: `Starts the read-only API. Clients obtain a bearer token from
POST /api/v1/auth/token using one of the users declared under auth.users.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			return serve(cmd.Context(), app.Config, app.Logger)
		},
	}
}

func serve(ctx context.Context, cfg config.Config, logger *zap.Logger) error {
	handler, closeAll, err := buildAPI(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeAll()

	srv := &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server started", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}
	logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	logger.Info("shutdown complete")
	return nil
}

// buildAPI opens the user and dataset stores and returns the API handler plus
// a function releasing both stores.
func buildAPI(ctx context.Context, cfg config.Config, logger *zap.Logger) (http.Handler, func(), error) {
	if err := cfg.Auth.Validate(); err != nil {
		return nil, nil, err
	}
	if dir := filepath.Dir(cfg.Auth.DBPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, nil, fmt.Errorf("create user db dir: %w", err)
		}
	}

	users, err := auth.OpenSQLiteUserStore(ctx, cfg.Auth.DBPath, logger.Named("auth"))
	if err != nil {
		return nil, nil, err
	}
	if err := users.Seed(ctx, cfg.Auth.Users); err != nil {
		_ = users.Close()
		return nil, nil, err
	}

	issuer, err := auth.NewIssuer(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL, system.New())
	if err != nil {
		_ = users.Close()
		return nil, nil, err
	}

	store, err := storage.New(ctx, cfg.Storage, logger.Named("storage"))
	if err != nil {
		_ = users.Close()
		return nil, nil, fmt.Errorf("open dataset store: %w", err)
	}

	closeAll := func() {
		if err := store.Close(); err != nil {
			logger.Warn("close dataset store", zap.Error(err))
		}
		if err := users.Close(); err != nil {
			logger.Warn("close user store", zap.Error(err))
		}
	}

	srv := api.NewServer(store, issuer, users, cfg.Server.RequestTimeout, logger.Named("api"),
		api.WithTokenLimiter(ratelimit.New(cfg.Server.TokenRateLimit)))
	return srv.Handler(), closeAll, nil
}
