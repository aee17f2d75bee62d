package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"go.uber.org/zap"
	// Registers the "sqlite" driver.
	_ "modernc.org/sqlite"
)

const usersSchema = `
CREATE TABLE IF NOT EXISTS users (
	username TEXT PRIMARY KEY,
	password_hash TEXT NOT NULL,
	disabled INTEGER NOT NULL DEFAULT 0
)`

// SQLiteUserStore keeps users in a SQLite file.
type SQLiteUserStore struct {
	db     *sql.DB
	logger *zap.Logger
}

// OpenSQLiteUserStore opens (or creates) the user database at path.
func OpenSQLiteUserStore(ctx context.Context, path string, logger *zap.Logger) (*SQLiteUserStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open user db: %w", err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.ExecContext(ctx, usersSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create users table: %w", err)
	}
	return &SQLiteUserStore{db: db, logger: logger}, nil
}

// Seed inserts or updates the given users.
func (s *SQLiteUserStore) Seed(ctx context.Context, users []UserSeed) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin seed: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	const upsert = `
INSERT INTO users (username, password_hash, disabled) VALUES (?, ?, ?)
ON CONFLICT(username) DO UPDATE SET password_hash = excluded.password_hash, disabled = excluded.disabled`
	for _, u := range users {
		if _, err := tx.ExecContext(ctx, upsert, u.Username, u.PasswordHash, u.Disabled); err != nil {
			return fmt.Errorf("seed user %s: %w", u.Username, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit seed: %w", err)
	}
	s.logger.Info("users seeded", zap.Int("count", len(users)))
	return nil
}

// Lookup fetches one user.
func (s *SQLiteUserStore) Lookup(ctx context.Context, username string) (User, error) {
	var u User
	err := s.db.QueryRowContext(ctx,
		`SELECT username, password_hash, disabled FROM users WHERE username = ?`, username,
	).Scan(&u.Username, &u.PasswordHash, &u.Disabled)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, ErrUserNotFound
	}
	if err != nil {
		return User{}, fmt.Errorf("select user: %w", err)
	}
	return u, nil
}

// Close closes the database.
func (s *SQLiteUserStore) Close() error {
	return s.db.Close()
}
