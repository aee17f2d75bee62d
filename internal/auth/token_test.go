package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func TestIssuerRoundTrip(t *testing.T) {
	t.Parallel()

	clock := &fakeClock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
	issuer, err := NewIssuer(testSecret, 0, clock)
	require.NoError(t, err)

	tok, err := issuer.Issue("analista")
	require.NoError(t, err)
	assert.Equal(t, "bearer", tok.TokenType)
	assert.Equal(t, clock.now.Add(DefaultTokenTTL), tok.ExpiresAt)

	sub, err := issuer.Verify(tok.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "analista", sub)

	clock.now = clock.now.Add(DefaultTokenTTL + time.Second)
	_, err = issuer.Verify(tok.AccessToken)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestIssuerRejectsForeignTokens(t *testing.T) {
	t.Parallel()

	clock := &fakeClock{now: time.Now()}
	issuer, err := NewIssuer(testSecret, time.Minute, clock)
	require.NoError(t, err)
	other, err := NewIssuer("another-secret-another-secret", time.Minute, clock)
	require.NoError(t, err)

	forged, err := other.Issue("analista")
	require.NoError(t, err)

	noExp, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{Subject: "analista"}).
		SignedString([]byte(testSecret))
	require.NoError(t, err)

	wrongAlg, err := jwt.NewWithClaims(jwt.SigningMethodHS512, jwt.RegisteredClaims{
		Subject:   "analista",
		ExpiresAt: jwt.NewNumericDate(clock.now.Add(time.Minute)),
	}).SignedString([]byte(testSecret))
	require.NoError(t, err)

	for name, raw := range map[string]string{
		"other secret": forged.AccessToken,
		"no expiry":    noExp,
		"wrong method": wrongAlg,
		"garbage":      "not-a-jwt",
		"empty":        "",
	} {
		_, err := issuer.Verify(raw)
		assert.ErrorIs(t, err, ErrInvalidToken, name)
	}
}

func TestNewIssuerValidation(t *testing.T) {
	t.Parallel()

	_, err := NewIssuer("", time.Minute, &fakeClock{})
	require.Error(t, err)
	_, err = NewIssuer(testSecret, time.Minute, nil)
	require.Error(t, err)
}
