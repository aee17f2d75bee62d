package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"regexp"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/gpsjus-scraper/internal/dataset"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

const defaultTable = "gpsjus_dataset"

type pgPool interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	QueryRow(context.Context, string, ...any) pgx.Row
	Close()
}

// PostgresStore keeps the dataset as the single row of a table. The payload
// column is json rather than jsonb so the stored bytes match what was saved.
type PostgresStore struct {
	pool  pgPool
	table string
}

// NewPostgresStore connects a pool and makes sure the table exists.
func NewPostgresStore(ctx context.Context, cfg PostgresConfig) (*PostgresStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("storage.postgres.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	s, err := NewPostgresStoreWithPool(pool, cfg.Table)
	if err != nil {
		pool.Close()
		return nil, err
	}
	if err := s.Migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// NewPostgresStoreWithPool builds a store over an existing pool.
func NewPostgresStoreWithPool(pool pgPool, table string) (*PostgresStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if table == "" {
		table = defaultTable
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &PostgresStore{pool: pool, table: table}, nil
}

// Migrate creates the dataset table when missing.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	query := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	id smallint PRIMARY KEY CHECK (id = 1),
	payload json NOT NULL,
	units integer NOT NULL,
	updated_at timestamptz NOT NULL DEFAULT now()
)`, s.table)
	if _, err := s.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("create dataset table: %w", err)
	}
	return nil
}

// Save upserts the single dataset row.
func (s *PostgresStore) Save(ctx context.Context, d dataset.Dataset) error {
	data, err := dataset.Marshal(d)
	if err != nil {
		return err
	}
	query := fmt.Sprintf(`
INSERT INTO %s (id, payload, units, updated_at)
VALUES (1, $1, $2, now())
ON CONFLICT (id) DO UPDATE
SET payload = EXCLUDED.payload, units = EXCLUDED.units, updated_at = EXCLUDED.updated_at`, s.table)
	if _, err := s.pool.Exec(ctx, query, string(data), len(d)); err != nil {
		return fmt.Errorf("upsert dataset: %w", err)
	}
	return nil
}

// Load reads the dataset row.
func (s *PostgresStore) Load(ctx context.Context) (dataset.Dataset, error) {
	var payload string
	query := fmt.Sprintf(`SELECT payload::text FROM %s WHERE id = 1`, s.table)
	if err := s.pool.QueryRow(ctx, query).Scan(&payload); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNoDataset
		}
		return nil, fmt.Errorf("select dataset: %w", err)
	}
	if len(bytes.TrimSpace([]byte(payload))) == 0 {
		return nil, ErrNoDataset
	}
	return dataset.Decode(bytes.NewReader([]byte(payload)))
}

// Close releases the pool.
func (s *PostgresStore) Close() error {
	if s == nil || s.pool == nil {
		return nil
	}
	s.pool.Close()
	return nil
}
