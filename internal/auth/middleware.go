package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"
)

type userKey struct{}

// UserFrom returns the user attached by Bearer.
func UserFrom(ctx context.Context) (User, bool) {
	u, ok := ctx.Value(userKey{}).(User)
	return u, ok
}

// Bearer rejects requests without a valid token for an active user.
func Bearer(issuer *Issuer, users UserLookup, logger *zap.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw, ok := bearerToken(r)
			if !ok {
				unauthorized(w)
				return
			}
			username, err := issuer.Verify(raw)
			if err != nil {
				logger.Debug("token rejected", zap.Error(err))
				unauthorized(w)
				return
			}
			user, err := users.Lookup(r.Context(), username)
			switch {
			case errors.Is(err, ErrUserNotFound):
				unauthorized(w)
				return
			case err != nil:
				logger.Error("lookup token user", zap.String("user", username), zap.Error(err))
				writeError(w, http.StatusInternalServerError, "internal server error")
				return
			case user.Disabled:
				writeError(w, http.StatusBadRequest, ErrInactiveUser.Error())
				return
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), userKey{}, user)))
		})
	}
}

func bearerToken(r *http.Request) (string, bool) {
	scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

func unauthorized(w http.ResponseWriter) {
	w.Header().Set("WWW-Authenticate", "Bearer")
	writeError(w, http.StatusUnauthorized, ErrInvalidToken.Error())
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
