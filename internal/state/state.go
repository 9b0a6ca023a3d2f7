// Package state persists client-side storage for the headless storefront
// client in a bbolt database, so the cached auth token survives between
// runs the way a browser keeps its cookies.
package state

import (
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"
)

const (
	// stateDirPerm is the permission mode for the state directory (~/.storefront/).
	stateDirPerm = fs.FileMode(0o700)

	// stateFilePerm is the permission mode for the state database file.
	stateFilePerm = fs.FileMode(0o600)

	// stateOpenTimeout is the maximum time to wait for the bolt database lock.
	stateOpenTimeout = 5 * time.Second
)

var cookiesBucket = []byte("cookies")

// State wraps a bbolt database holding the client's cookie jar. Entries
// are stored in Set-Cookie serialization so expiry travels with the value.
type State struct {
	db  *bolt.DB
	now func() time.Time
}

// Load opens the state database at ~/.storefront/state.db, creating it if
// it does not exist.
func Load() (*State, error) {
	path, err := DefaultPath()
	if err != nil {
		return nil, err
	}

	return LoadAt(path)
}

// LoadAt opens a state database at the given path, creating it if it
// does not exist. Useful for tests that need an isolated database.
func LoadAt(path string) (*State, error) {
	if err := os.MkdirAll(filepath.Dir(path), stateDirPerm); err != nil {
		return nil, fmt.Errorf("creating state directory: %w", err)
	}

	db, err := bolt.Open(path, stateFilePerm, &bolt.Options{Timeout: stateOpenTimeout})
	if err != nil {
		return nil, fmt.Errorf("opening state db: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(cookiesBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing state db: %w", err)
	}

	return &State{db: db, now: time.Now}, nil
}

// Close closes the database.
func (s *State) Close() error {
	return s.db.Close()
}

// Cookie returns the stored cookie for name, or http.ErrNoCookie. Expired
// entries are returned as stored; the caller decides what to do with them.
func (s *State) Cookie(name string) (*http.Cookie, error) {
	var raw string

	err := s.db.View(func(tx *bolt.Tx) error {
		if v := tx.Bucket(cookiesBucket).Get([]byte(name)); v != nil {
			raw = string(v)
		}

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("reading cookie %s: %w", name, err)
	}

	if raw == "" {
		return nil, http.ErrNoCookie
	}

	c, err := http.ParseSetCookie(raw)
	if err != nil {
		return nil, fmt.Errorf("parsing stored cookie %s: %w", name, err)
	}

	return c, nil
}

// SetCookie persists c. A cookie with Max-Age < 0 or an elapsed expiry
// deletes the entry.
func (s *State) SetCookie(c *http.Cookie) error {
	expired := c.MaxAge < 0 || (!c.Expires.IsZero() && !s.now().Before(c.Expires))

	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(cookiesBucket)
		if expired {
			return b.Delete([]byte(c.Name))
		}

		raw := c.String()
		if raw == "" {
			return fmt.Errorf("cookie %q cannot be serialized", c.Name)
		}

		return b.Put([]byte(c.Name), []byte(raw))
	})
}

// CookieCount returns the number of stored cookies.
func (s *State) CookieCount() int {
	count := 0
	_ = s.db.View(func(tx *bolt.Tx) error {
		count = tx.Bucket(cookiesBucket).Stats().KeyN
		return nil
	})

	return count
}

// DefaultPath returns ~/.storefront/state.db.
func DefaultPath() (string, error) {
	dir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("determining home directory: %w", err)
	}

	return filepath.Join(dir, ".storefront", "state.db"), nil
}
