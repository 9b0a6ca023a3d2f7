// Package server builds the storefront's HTTP surface: the per-request
// auth mount, the guarded checkout area and the session endpoints.
package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/alexjbarnes/storefront/internal/auth"
	"github.com/alexjbarnes/storefront/internal/logging"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
)

// Config holds dependencies for building the router.
type Config struct {
	Factory *auth.Factory
	// BaseURL is the storefront's public origin, used to build absolute
	// return URLs for the identity provider.
	BaseURL   string
	LoginPath string
	// GuardWait bounds how long a request waits for the auth state.
	GuardWait time.Duration
	Logger    *slog.Logger
	Recorder  auth.Recorder
	// Metrics serves /metrics when non-nil.
	Metrics http.Handler
}

// NewRouter returns the storefront router. Health and metrics endpoints
// run outside the auth mount; everything else gets a fresh auth Context
// per request. The login route is never guarded.
func NewRouter(cfg Config) http.Handler {
	if cfg.Logger == nil {
		cfg.Logger = logging.Discard()
	}

	if cfg.LoginPath == "" {
		cfg.LoginPath = "/signin"
	}

	if cfg.GuardWait == 0 {
		cfg.GuardWait = auth.DefaultGuardWait
	}

	h := &handlers{
		baseURL:   cfg.BaseURL,
		loginPath: cfg.LoginPath,
		wait:      cfg.GuardWait,
		logger:    cfg.Logger,
	}

	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Use(RequestIDMiddleware)

	r.Get("/healthz", h.health)

	if cfg.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", cfg.Metrics)
	}

	r.Group(func(r chi.Router) {
		r.Use(auth.Provide(cfg.Factory))
		r.Use(LoggingMiddleware(cfg.Logger))

		r.Get("/", h.home)
		r.Get(cfg.LoginPath, h.signIn)
		r.Post("/signout", h.signOut)
		r.Post(auth.RetryPath, h.retry)
		r.Get("/api/session", h.session)
		r.Post("/api/session/resync", h.resync)

		r.Route("/checkout", func(r chi.Router) {
			r.Use(auth.Guard(auth.GuardConfig{
				LoginPath: cfg.LoginPath,
				Wait:      cfg.GuardWait,
				Logger:    cfg.Logger,
				Recorder:  cfg.Recorder,
			}))

			r.Get("/", h.checkout)
			r.Get("/*", h.checkout)
		})
	})

	return r
}

// writeJSON writes v as a JSON response with the given status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeJSONError(w http.ResponseWriter, status int, code, description string) {
	writeJSON(w, status, map[string]string{
		"error":             code,
		"error_description": description,
	})
}
