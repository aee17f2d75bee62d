package auth

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func mustHash(t *testing.T, password string) string {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	return string(hash)
}

func newSeededStore(t *testing.T) *SQLiteUserStore {
	t.Helper()
	store, err := OpenSQLiteUserStore(context.Background(), filepath.Join(t.TempDir(), "users.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	require.NoError(t, store.Seed(context.Background(), []UserSeed{
		{Username: "analista", PasswordHash: mustHash(t, "s3cret")},
		{Username: "antigo", PasswordHash: mustHash(t, "s3cret"), Disabled: true},
	}))
	return store
}

func TestAuthenticate(t *testing.T) {
	t.Parallel()

	store := newSeededStore(t)
	tests := []struct {
		name     string
		username string
		password string
		wantErr  error
	}{
		{name: "valid", username: "analista", password: "s3cret"},
		{name: "wrong password", username: "analista", password: "nope", wantErr: ErrInvalidCredentials},
		{name: "unknown user", username: "ghost", password: "s3cret", wantErr: ErrInvalidCredentials},
		{name: "disabled", username: "antigo", password: "s3cret", wantErr: ErrInactiveUser},
		{name: "disabled wrong password", username: "antigo", password: "nope", wantErr: ErrInvalidCredentials},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			user, err := Authenticate(context.Background(), store, tc.username, tc.password)
			if tc.wantErr != nil {
				require.ErrorIs(t, err, tc.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.username, user.Username)
		})
	}
}

type brokenLookup struct{}

func (brokenLookup) Lookup(context.Context, string) (User, error) {
	return User{}, errors.New("disk I/O error")
}

func TestAuthenticateLookupFailure(t *testing.T) {
	t.Parallel()

	_, err := Authenticate(context.Background(), brokenLookup{}, "a", "b")
	require.ErrorContains(t, err, "disk I/O error")
	assert.NotErrorIs(t, err, ErrInvalidCredentials)
}

func TestHashPassword(t *testing.T) {
	t.Parallel()

	hash, err := HashPassword("s3cret")
	require.NoError(t, err)
	require.NoError(t, bcrypt.CompareHashAndPassword([]byte(hash), []byte("s3cret")))

	_, err = HashPassword("")
	require.Error(t, err)
}

func TestConfigValidate(t *testing.T) {
	t.Parallel()

	good := Config{JWTSecret: "0123456789abcdef", DBPath: "users.db", Users: []UserSeed{
		{Username: "analista", PasswordHash: mustHash(t, "x")},
	}}
	require.NoError(t, good.Validate())

	short := good
	short.JWTSecret = "tiny"
	require.ErrorContains(t, short.Validate(), "auth.jwt_secret")

	plain := good
	plain.Users = []UserSeed{{Username: "analista", PasswordHash: "x"}}
	require.ErrorContains(t, plain.Validate(), "bcrypt")

	noDB := good
	noDB.DBPath = ""
	require.ErrorContains(t, noDB.Validate(), "auth.db_path")
}
