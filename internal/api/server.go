package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/JakeFAU/gpsjus-scraper/internal/auth"
	"github.com/JakeFAU/gpsjus-scraper/internal/dataset"
	"github.com/JakeFAU/gpsjus-scraper/internal/metrics"
	"github.com/JakeFAU/gpsjus-scraper/internal/middleware"
	"github.com/JakeFAU/gpsjus-scraper/internal/policy/ratelimit"
)

const defaultRequestTimeout = 30 * time.Second

// DatasetLoader reads the current dataset.
type DatasetLoader interface {
	Load(ctx context.Context) (dataset.Dataset, error)
}

// Server wires HTTP handlers to the dataset store and the token issuer.
type Server struct {
	router  chi.Router
	store   DatasetLoader
	issuer  *auth.Issuer
	users   auth.UserLookup
	logger  *zap.Logger
	timeout time.Duration

	tokenLimiter *ratelimit.Limiter
}

// Option configures a Server.
type Option func(*Server)

// WithTokenLimiter throttles the token endpoint per client.
func WithTokenLimiter(l *ratelimit.Limiter) Option {
	return func(s *Server) { s.tokenLimiter = l }
}

// NewServer constructs a Server with middleware and routes. A zero
// requestTimeout selects the default.
func NewServer(
	store DatasetLoader,
	issuer *auth.Issuer,
	users auth.UserLookup,
	requestTimeout time.Duration,
	logger *zap.Logger,
	opts ...Option,
) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if requestTimeout <= 0 {
		requestTimeout = defaultRequestTimeout
	}
	s := &Server{
		store:   store,
		issuer:  issuer,
		users:   users,
		logger:  logger,
		timeout: requestTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(logger))
	r.Use(middleware.Recover(logger))
	r.Use(metrics.Middleware)
	r.Use(middleware.Timeout(requestTimeout))

	r.Get("/healthz", s.healthz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			if s.tokenLimiter != nil {
				r.Use(s.tokenLimiter.Middleware(logger))
			}
			r.Post("/auth/token", s.token)
		})
		r.Group(func(r chi.Router) {
			r.Use(auth.Bearer(issuer, users, logger))
			r.Get("/units", s.listUnits)
			r.Route("/units/{id}", func(r chi.Router) {
				r.Get("/", s.getUnit)
				r.Get("/{section}", s.getUnitSection)
			})
			r.Get("/sections/{section}", s.listSection)
		})
	})
	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "not found")
	})

	s.router = r
	return s
}

// Handler returns the router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// token handles POST /api/v1/auth/token with form fields username and password.
func (s *Server) token(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeError(w, http.StatusBadRequest, "invalid form")
		return
	}
	username := r.PostForm.Get("username")
	password := r.PostForm.Get("password")
	if username == "" || password == "" {
		writeError(w, http.StatusBadRequest, "username and password are required")
		return
	}

	user, err := auth.Authenticate(r.Context(), s.users, username, password)
	switch {
	case errors.Is(err, auth.ErrInvalidCredentials):
		w.Header().Set("WWW-Authenticate", "Bearer")
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	case errors.Is(err, auth.ErrInactiveUser):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case err != nil:
		s.logger.Error("authenticate failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	tok, err := s.issuer.Issue(user.Username)
	if err != nil {
		s.logger.Error("issue token failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	s.logger.Info("token issued", zap.String("user", user.Username))
	writeJSON(w, http.StatusOK, tok)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
