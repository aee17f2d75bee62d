// Package storage persists the scraped dataset. Every backend stores the
// exact bytes produced by dataset.Marshal, so saving a loaded dataset again
// yields identical content.
package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/JakeFAU/gpsjus-scraper/internal/dataset"
)

// ErrNoDataset means nothing has been saved yet.
var ErrNoDataset = errors.New("no dataset stored")

// Store saves and loads the whole dataset.
type Store interface {
	// Save replaces the stored dataset.
	Save(ctx context.Context, d dataset.Dataset) error
	// Load returns the stored dataset, or ErrNoDataset.
	Load(ctx context.Context) (dataset.Dataset, error)
	Close() error
}

// Backend names.
const (
	BackendFile     = "file"
	BackendPostgres = "postgres"
	BackendGCS      = "gcs"
)

// DefaultFilePath is where the file backend writes by default.
const DefaultFilePath = "data/dados_tjrn.json"

// Config selects and configures a backend.
type Config struct {
	Backend  string         `mapstructure:"backend"`
	FilePath string         `mapstructure:"file_path"`
	Postgres PostgresConfig `mapstructure:"postgres"`
	GCS      GCSConfig      `mapstructure:"gcs"`
}

// PostgresConfig controls the Postgres connection pool.
type PostgresConfig struct {
	DSN             string        `mapstructure:"dsn"`
	Table           string        `mapstructure:"table"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
}

// GCSConfig names the object holding the dataset.
type GCSConfig struct {
	Bucket string `mapstructure:"bucket"`
	Object string `mapstructure:"object"`
}

// Validate checks the fields the selected backend needs.
func (c Config) Validate() error {
	switch c.Backend {
	case "", BackendFile:
		return nil
	case BackendPostgres:
		if c.Postgres.DSN == "" {
			return fmt.Errorf("storage.postgres.dsn must be set for the postgres backend")
		}
		if c.Postgres.Table != "" && !validTableName.MatchString(c.Postgres.Table) {
			return fmt.Errorf("storage.postgres.table must be a plain identifier, got %q", c.Postgres.Table)
		}
		return nil
	case BackendGCS:
		if c.GCS.Bucket == "" {
			return fmt.Errorf("storage.gcs.bucket must be set for the gcs backend")
		}
		return nil
	default:
		return fmt.Errorf("storage.backend must be one of file, postgres, gcs, got %q", c.Backend)
	}
}

// New opens the configured backend.
func New(ctx context.Context, cfg Config, logger *zap.Logger) (Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	switch cfg.Backend {
	case BackendPostgres:
		s, err := NewPostgresStore(ctx, cfg.Postgres)
		if err != nil {
			return nil, err
		}
		logger.Info("dataset store ready", zap.String("backend", BackendPostgres), zap.String("table", s.table))
		return s, nil
	case BackendGCS:
		client, err := storage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("create gcs client: %w", err)
		}
		s, err := NewGCSStore(client, cfg.GCS)
		if err != nil {
			_ = client.Close()
			return nil, err
		}
		logger.Info("dataset store ready", zap.String("backend", BackendGCS), zap.String("uri", s.URI()))
		return s, nil
	default:
		s, err := NewFileStore(cfg.FilePath)
		if err != nil {
			return nil, err
		}
		logger.Info("dataset store ready", zap.String("backend", BackendFile), zap.String("path", s.Path()))
		return s, nil
	}
}
