// Package auth owns the storefront's authentication state. A Context is
// mounted per page load (one HTTP request, or one CLI run), reconciles the
// identity provider's session with the locally cached token through a
// Bridge, and publishes every status change to its subscribers. Guard
// gates protected handlers on that status.
package auth

import (
	"encoding/json"

	"github.com/alexjbarnes/storefront/internal/models"
)

// Status is the authentication status of one mounted Context.
type Status int

const (
	// StatusAuthenticating is the initial status: the provider session or
	// the initial token read has not resolved yet.
	StatusAuthenticating Status = iota
	// StatusUnauthenticated means the provider reports no session.
	StatusUnauthenticated
	// StatusAuthenticated means the provider reports a session for User.
	StatusAuthenticated
	// StatusError means the provider could not be asked. It is not the
	// same as having no session and needs a retry rather than a login.
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusAuthenticating:
		return "authenticating"
	case StatusUnauthenticated:
		return "unauthenticated"
	case StatusAuthenticated:
		return "authenticated"
	case StatusError:
		return "error"
	}

	return "unknown"
}

// State is a snapshot of the authentication state. User is set only when
// Status is StatusAuthenticated and Err only when it is StatusError. Use
// the constructors below; they are the only way those fields get set.
type State struct {
	Status Status
	User   *models.Profile
	Err    error
}

// Authenticating returns the initial state.
func Authenticating() State { return State{Status: StatusAuthenticating} }

// Unauthenticated returns the no-session state.
func Unauthenticated() State { return State{Status: StatusUnauthenticated} }

// Authenticated returns the signed-in state for user.
func Authenticated(user models.Profile) State {
	return State{Status: StatusAuthenticated, User: &user}
}

// Failed returns the error state carrying err.
func Failed(err error) State { return State{Status: StatusError, Err: err} }

// Equal reports whether s and o would look the same to a subscriber.
// Errors compare by message.
func (s State) Equal(o State) bool {
	if s.Status != o.Status {
		return false
	}

	if (s.User == nil) != (o.User == nil) {
		return false
	}

	if s.User != nil && *s.User != *o.User {
		return false
	}

	if (s.Err == nil) != (o.Err == nil) {
		return false
	}

	return s.Err == nil || s.Err.Error() == o.Err.Error()
}

type stateJSON struct {
	Status string          `json:"status"`
	User   *models.Profile `json:"user,omitempty"`
	Error  string          `json:"error,omitempty"`
}

// MarshalJSON renders the state for the session API.
func (s State) MarshalJSON() ([]byte, error) {
	out := stateJSON{Status: s.Status.String(), User: s.User}
	if s.Err != nil {
		out.Error = s.Err.Error()
	}

	return json.Marshal(out)
}
