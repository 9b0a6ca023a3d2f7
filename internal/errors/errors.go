package errors

import "errors"

// Storage errors.
var (
	ErrStorageUnavailable = errors.New("token storage unavailable")
	ErrEmptyToken         = errors.New("token value is empty")
)

// Identity provider errors.
var (
	ErrProviderUnavailable = errors.New("identity provider unavailable")
	ErrProviderResponse    = errors.New("unexpected identity provider response")
)

// Lifecycle errors.
var (
	ErrNotMounted = errors.New("auth context is not mounted")
)
