package auth

import (
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"log/slog"

	serrors "github.com/alexjbarnes/storefront/internal/errors"
	"github.com/alexjbarnes/storefront/internal/logging"
	"github.com/alexjbarnes/storefront/internal/provider"
	"github.com/alexjbarnes/storefront/internal/tokenstore"
	"golang.org/x/crypto/hkdf"
)

// tokenInfo binds derived tokens to their purpose so the same secret can
// safely key other derivations.
const tokenInfo = "storefront auth token v1"

const tokenBytes = 32

// Transition is the outcome of reconciling one provider session.
type Transition struct {
	To State
	// Stored is true when the reconciliation wrote a new token.
	Stored bool
	// Cleared is true when the reconciliation removed the token.
	Cleared bool
}

// Bridge mirrors the provider's session into the token store. The
// provider is authoritative: a local token without a provider session is
// removed.
type Bridge struct {
	store  *tokenstore.Store
	secret []byte
	logger *slog.Logger
}

// NewBridge creates a Bridge writing tokens derived from secret into
// store. A nil logger discards output.
func NewBridge(store *tokenstore.Store, secret []byte, logger *slog.Logger) *Bridge {
	if logger == nil {
		logger = logging.Discard()
	}

	return &Bridge{
		store:  store,
		secret: secret,
		logger: logger,
	}
}

// Reconcile converts sess into a state transition, writing or clearing
// the token as a side effect. A token is only written when none is stored
// or the stored one belongs to a different identity; every write expires
// TokenTTL after the write, so a rewrite refreshes the expiry. Storage
// faults are logged and never change the returned state.
func (b *Bridge) Reconcile(sess provider.Session) Transition {
	switch sess.State {
	case provider.SessionPresent:
		return b.present(sess)

	case provider.SessionAbsent:
		err := b.store.Remove()
		if err != nil {
			b.logger.Debug("bridge: token clear not persisted", slog.String("error", err.Error()))
		}

		return Transition{To: Unauthenticated(), Cleared: err == nil}

	case provider.SessionFailed:
		err := sess.Err
		if err == nil {
			err = serrors.ErrProviderUnavailable
		}

		return Transition{To: Failed(err)}
	}

	return Transition{To: Authenticating()}
}

func (b *Bridge) present(sess provider.Session) Transition {
	user := sess.Profile
	t := Transition{To: Authenticated(user)}

	want, err := DeriveToken(b.secret, user.ID)
	if err != nil {
		b.logger.Warn("bridge: deriving token", slog.String("error", err.Error()))
		return t
	}

	if have, ok := b.store.Get(); ok && have == want {
		return t
	}

	if err := b.store.Set(want); err != nil {
		b.logger.Debug("bridge: token write not persisted", slog.String("error", err.Error()))
		return t
	}

	b.logger.Debug("bridge: token stored", slog.String("user_id", user.ID))
	t.Stored = true

	return t
}

// DeriveToken returns the opaque token value for subject: HKDF-SHA256
// over secret, salted with the subject, base64url encoded. The same
// inputs always give the same token.
func DeriveToken(secret []byte, subject string) (string, error) {
	if len(secret) == 0 {
		return "", errors.New("deriving token: empty secret")
	}

	r := hkdf.New(sha256.New, secret, []byte(subject), []byte(tokenInfo))

	buf := make([]byte, tokenBytes)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", fmt.Errorf("deriving token: %w", err)
	}

	return base64.RawURLEncoding.EncodeToString(buf), nil
}
