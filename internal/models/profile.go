// Package models defines types shared across internal packages.
package models

import "time"

// Profile is the user identity reported by the identity provider.
type Profile struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name,omitempty"`
	Email       string `json:"email,omitempty"`
}

// AuthToken is the locally cached session token. ExpiresAt is always
// IssuedAt plus the store's fixed token lifetime. Both are zero when the
// storage runtime enforces expiry itself and does not report it (browser
// request cookies).
type AuthToken struct {
	Value     string    `json:"value"`
	IssuedAt  time.Time `json:"issued_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Valid reports whether the token is non-empty and has not reached its
// expiry at the given instant.
func (t AuthToken) Valid(now time.Time) bool {
	if t.Value == "" {
		return false
	}

	return t.ExpiresAt.IsZero() || now.Before(t.ExpiresAt)
}
