// Package auth issues and checks the bearer tokens that guard the read API.
package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/crypto/bcrypt"
)

var (
	// ErrInvalidCredentials covers unknown users and wrong passwords alike.
	ErrInvalidCredentials = errors.New("incorrect username or password")
	// ErrInvalidToken means the bearer token is missing, malformed, forged or expired.
	ErrInvalidToken = errors.New("could not validate credentials")
	// ErrInactiveUser means the account exists but is disabled.
	ErrInactiveUser = errors.New("inactive user")
	// ErrUserNotFound is returned by user lookups.
	ErrUserNotFound = errors.New("user not found")
)

// DefaultTokenTTL is the access token lifetime.
const DefaultTokenTTL = 30 * time.Minute

// Config holds the token and user settings.
type Config struct {
	JWTSecret string        `mapstructure:"jwt_secret"`
	TokenTTL  time.Duration `mapstructure:"token_ttl"`
	DBPath    string        `mapstructure:"db_path"`
	Users     []UserSeed    `mapstructure:"users"`
}

// Validate checks the settings the API server needs.
func (c Config) Validate() error {
	if len(c.JWTSecret) < 16 {
		return fmt.Errorf("auth.jwt_secret must be at least 16 characters")
	}
	if c.TokenTTL < 0 {
		return fmt.Errorf("auth.token_ttl must be positive")
	}
	if c.DBPath == "" {
		return fmt.Errorf("auth.db_path must be set")
	}
	for i, u := range c.Users {
		if u.Username == "" {
			return fmt.Errorf("auth.users[%d].username must be set", i)
		}
		if _, err := bcrypt.Cost([]byte(u.PasswordHash)); err != nil {
			return fmt.Errorf("auth.users[%d].password_hash must be a bcrypt hash", i)
		}
	}
	return nil
}

// User is an API account.
type User struct {
	Username     string
	PasswordHash string
	Disabled     bool
}

// UserSeed is a user declared in configuration.
type UserSeed struct {
	Username     string `mapstructure:"username"`
	PasswordHash string `mapstructure:"password_hash"`
	Disabled     bool   `mapstructure:"disabled"`
}

// UserLookup finds users by name.
type UserLookup interface {
	Lookup(ctx context.Context, username string) (User, error)
}

// HashPassword returns a bcrypt hash suitable for UserSeed.PasswordHash.
func HashPassword(password string) (string, error) {
	if password == "" {
		return "", fmt.Errorf("password must not be empty")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

// Authenticate checks a username and password pair.
func Authenticate(ctx context.Context, users UserLookup, username, password string) (User, error) {
	user, err := users.Lookup(ctx, username)
	if errors.Is(err, ErrUserNotFound) {
		return User{}, ErrInvalidCredentials
	}
	if err != nil {
		return User{}, fmt.Errorf("lookup user: %w", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return User{}, ErrInvalidCredentials
	}
	if user.Disabled {
		return User{}, ErrInactiveUser
	}
	return user, nil
}
