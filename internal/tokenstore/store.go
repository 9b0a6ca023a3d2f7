// Package tokenstore persists the storefront's authentication token in a
// cookie-like client store with an explicit 24 hour expiry. The store is a
// cache of the identity provider's session: every failure degrades to
// "no token" and is never fatal to the caller.
package tokenstore

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	serrors "github.com/alexjbarnes/storefront/internal/errors"
	"github.com/alexjbarnes/storefront/internal/logging"
	"github.com/alexjbarnes/storefront/internal/models"
)

const (
	// CookieName is the single storage key this package owns.
	CookieName = "authToken"

	// TokenTTL is the fixed lifetime of a written token.
	TokenTTL = 24 * time.Hour

	cookiePath = "/"
)

// Store reads and writes the token cookie.
type Store struct {
	jar    Jar
	logger *slog.Logger
	now    func() time.Time
	secure bool
}

// Option configures a Store.
type Option func(*Store)

// WithClock replaces time.Now. Used by tests to move past the expiry.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// WithSecure marks written cookies Secure (HTTPS-only).
func WithSecure(secure bool) Option {
	return func(s *Store) {
		s.secure = secure
	}
}

// New creates a Store over jar. A nil logger discards output.
func New(jar Jar, logger *slog.Logger, opts ...Option) *Store {
	if logger == nil {
		logger = logging.Discard()
	}

	s := &Store{
		jar:    jar,
		logger: logger,
		now:    time.Now,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Set writes token with an absolute expiry of now + TokenTTL, replacing
// any previous value. Writing the same token again refreshes its expiry.
// The write is best effort: a storage fault is logged and returned, and
// callers must not assume the token persisted.
func (s *Store) Set(token string) error {
	if token == "" {
		return serrors.ErrEmptyToken
	}

	expires := s.now().Add(TokenTTL).UTC()

	err := s.jar.SetCookie(&http.Cookie{
		Name:    CookieName,
		Value:   url.QueryEscape(token),
		Path:    cookiePath,
		Expires: expires,
		Secure:  s.secure,
	})
	if err != nil {
		s.logger.Warn("token write failed", slog.String("error", err.Error()))
		return fmt.Errorf("storing token: %w", err)
	}

	s.logger.Debug("token stored", slog.Time("expires_at", expires))

	return nil
}

// Get returns the stored token, or false when it is missing, expired,
// undecodable or the storage cannot be read.
func (s *Store) Get() (string, bool) {
	tok, ok := s.Lookup()
	return tok.Value, ok
}

// Lookup is Get with the token's issue and expiry times. An expired
// entry is purged before returning.
func (s *Store) Lookup() (models.AuthToken, bool) {
	c, err := s.jar.Cookie(CookieName)
	if err != nil {
		if !errors.Is(err, http.ErrNoCookie) {
			s.logger.Warn("token read failed", slog.String("error", err.Error()))
		}

		return models.AuthToken{}, false
	}

	if !c.Expires.IsZero() && !s.now().Before(c.Expires) {
		s.logger.Debug("purging expired token", slog.Time("expired_at", c.Expires))
		_ = s.Remove()

		return models.AuthToken{}, false
	}

	value, err := url.QueryUnescape(c.Value)
	if err != nil || value == "" {
		return models.AuthToken{}, false
	}

	tok := models.AuthToken{Value: value}
	if !c.Expires.IsZero() {
		tok.ExpiresAt = c.Expires
		tok.IssuedAt = c.Expires.Add(-TokenTTL)
	}

	return tok, true
}

// Remove overwrites the token with an already-expired entry so the
// storage runtime drops it. Idempotent.
func (s *Store) Remove() error {
	err := s.jar.SetCookie(&http.Cookie{
		Name:    CookieName,
		Value:   "",
		Path:    cookiePath,
		Expires: time.Unix(0, 0).UTC(),
		MaxAge:  -1,
		Secure:  s.secure,
	})
	if err != nil {
		s.logger.Warn("token removal failed", slog.String("error", err.Error()))
		return fmt.Errorf("removing token: %w", err)
	}

	return nil
}
