// Package provider consumes the external identity provider: it fetches the
// provider's view of the current browser session, exposes it as a
// subscribable value, and knows the provider's sign-in and sign-out entry
// points. It never authenticates anyone itself.
package provider

import (
	"context"
	"time"

	"github.com/alexjbarnes/storefront/internal/models"
)

// SessionState tags the variant held by a Session.
type SessionState int

const (
	// SessionAbsent means the provider reports no active session.
	SessionAbsent SessionState = iota
	// SessionPending means a fetch is in flight.
	SessionPending
	// SessionPresent means the provider reports an active session.
	SessionPresent
	// SessionFailed means the fetch itself failed (transport or
	// protocol fault). Distinct from SessionAbsent.
	SessionFailed
)

func (s SessionState) String() string {
	switch s {
	case SessionAbsent:
		return "absent"
	case SessionPending:
		return "pending"
	case SessionPresent:
		return "present"
	case SessionFailed:
		return "failed"
	}

	return "unknown"
}

// Session is the provider's current session for one client. Profile and
// Expires are set only for SessionPresent, Err only for SessionFailed.
// Build values with Absent, Pending, Present and Failed.
type Session struct {
	State   SessionState
	Profile models.Profile
	Expires time.Time
	Err     error
}

// Absent returns the no-session variant.
func Absent() Session { return Session{State: SessionAbsent} }

// Pending returns the in-flight variant.
func Pending() Session { return Session{State: SessionPending} }

// Present returns an active session for p. expires may be zero when the
// provider does not report one.
func Present(p models.Profile, expires time.Time) Session {
	return Session{State: SessionPresent, Profile: p, Expires: expires}
}

// Failed returns the fetch-failure variant carrying err.
func Failed(err error) Session { return Session{State: SessionFailed, Err: err} }

// Settled reports whether the session is a final fetch outcome.
func (s Session) Settled() bool {
	return s.State != SessionPending
}

// Fetcher fetches the provider session identified by credential (the
// provider's own session cookie value). An error means the provider could
// not be asked; "no session" is reported as Absent with a nil error.
type Fetcher interface {
	FetchSession(ctx context.Context, credential string) (Session, error)
}

// Authority exposes the provider's sign-in and sign-out entry points.
type Authority interface {
	SignInURL(returnTo string) string
	SignOut(ctx context.Context, credential string) error
}

// FetcherFunc adapts a function to the Fetcher interface.
type FetcherFunc func(ctx context.Context, credential string) (Session, error)

// FetchSession calls f.
func (f FetcherFunc) FetchSession(ctx context.Context, credential string) (Session, error) {
	return f(ctx, credential)
}
