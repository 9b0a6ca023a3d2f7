package auth

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/alexjbarnes/storefront/internal/logging"
	"github.com/alexjbarnes/storefront/internal/provider"
	"github.com/alexjbarnes/storefront/internal/tokenstore"
)

//go:generate mockgen -destination=mock_provider_test.go -package=auth github.com/alexjbarnes/storefront/internal/provider Fetcher,Authority

type contextKey int

const ctxAuth contextKey = iota

// WithContext returns a copy of ctx carrying ac.
func WithContext(ctx context.Context, ac *Context) context.Context {
	return context.WithValue(ctx, ctxAuth, ac)
}

// FromContext returns the auth Context stored by Provide, or nil.
func FromContext(ctx context.Context) *Context {
	ac, _ := ctx.Value(ctxAuth).(*Context)
	return ac
}

// Factory builds and mounts auth Contexts. The zero values of the
// optional fields are usable.
type Factory struct {
	Fetcher   provider.Fetcher
	Authority provider.Authority
	// Secret keys the derived token values.
	Secret []byte
	// CookieName is the provider's session cookie read from requests.
	// Defaults to provider.DefaultCookieName.
	CookieName string
	// Secure marks token cookies Secure.
	Secure   bool
	Logger   *slog.Logger
	Recorder Recorder
	// Clock replaces time.Now for token expiry.
	Clock func() time.Time
}

func (f *Factory) logger() *slog.Logger {
	if f.Logger == nil {
		return logging.Discard()
	}

	return f.Logger
}

func (f *Factory) cookieName() string {
	if f.CookieName == "" {
		return provider.DefaultCookieName
	}

	return f.CookieName
}

// Mount builds a Context over jar for the provider session named by
// credential, mounts it with ctx and returns it.
func (f *Factory) Mount(ctx context.Context, jar tokenstore.Jar, credential string) *Context {
	logger := f.logger()

	store := tokenstore.New(jar, logger,
		tokenstore.WithSecure(f.Secure),
		tokenstore.WithClock(f.Clock),
	)
	bridge := NewBridge(store, f.Secret, logger)
	source := provider.NewSource(f.Fetcher, credential, logger)

	ac := New(store, bridge, source, f.Authority,
		WithLogger(logger),
		WithRecorder(f.Recorder),
	)
	ac.Mount(ctx)

	return ac
}

// Provide returns middleware that mounts a Context for every request,
// the way a page load mounts the auth provider, and unmounts it when the
// handler returns. Token cookie writes reach the browser as Set-Cookie
// headers on the handler's first write.
func Provide(f *Factory) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			jar := tokenstore.NewRequestJar(r)

			var credential string
			if c, err := r.Cookie(f.cookieName()); err == nil {
				credential = c.Value
			}

			ctx, cancel := context.WithCancel(r.Context())
			defer cancel()

			ac := f.Mount(ctx, jar, credential)
			defer ac.Unmount()

			next.ServeHTTP(jar.Wrap(w), r.WithContext(WithContext(ctx, ac)))
		})
	}
}
