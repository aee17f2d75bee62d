package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBearer(t *testing.T) {
	t.Parallel()

	store := newSeededStore(t)
	clock := &fakeClock{now: time.Now()}
	issuer, err := NewIssuer(testSecret, time.Minute, clock)
	require.NoError(t, err)

	valid, err := issuer.Issue("analista")
	require.NoError(t, err)
	disabled, err := issuer.Issue("antigo")
	require.NoError(t, err)
	ghost, err := issuer.Issue("ghost")
	require.NoError(t, err)

	handler := Bearer(issuer, store, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, ok := UserFrom(r.Context())
		require.True(t, ok)
		_, _ = w.Write([]byte(u.Username))
	}))

	tests := []struct {
		name       string
		header     string
		wantStatus int
		wantBody   string
	}{
		{name: "valid", header: "Bearer " + valid.AccessToken, wantStatus: http.StatusOK, wantBody: "analista"},
		{name: "lowercase scheme", header: "bearer " + valid.AccessToken, wantStatus: http.StatusOK, wantBody: "analista"},
		{name: "missing", wantStatus: http.StatusUnauthorized},
		{name: "basic", header: "Basic YTpi", wantStatus: http.StatusUnauthorized},
		{name: "garbage", header: "Bearer nope", wantStatus: http.StatusUnauthorized},
		{name: "unknown user", header: "Bearer " + ghost.AccessToken, wantStatus: http.StatusUnauthorized},
		{name: "disabled", header: "Bearer " + disabled.AccessToken, wantStatus: http.StatusBadRequest},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			req := httptest.NewRequest(http.MethodGet, "/api/v1/units", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			assert.Equal(t, tc.wantStatus, rec.Code)
			if tc.wantBody != "" {
				assert.Equal(t, tc.wantBody, rec.Body.String())
			}
			if tc.wantStatus == http.StatusUnauthorized {
				assert.Equal(t, "Bearer", rec.Header().Get("WWW-Authenticate"))
			}
		})
	}
}
