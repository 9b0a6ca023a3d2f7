package auth

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	serrors "github.com/alexjbarnes/storefront/internal/errors"
	"github.com/alexjbarnes/storefront/internal/logging"
	"github.com/alexjbarnes/storefront/internal/models"
	"github.com/alexjbarnes/storefront/internal/provider"
	"github.com/alexjbarnes/storefront/internal/tokenstore"
	"github.com/google/uuid"
)

// Recorder receives auth lifecycle events for metrics.
type Recorder interface {
	RecordTransition(from, to string)
	RecordGuardDecision(decision string)
}

type nopRecorder struct{}

func (nopRecorder) RecordTransition(string, string) {}
func (nopRecorder) RecordGuardDecision(string)      {}

// Context is the single owner of the authentication state for one mount.
// All transitions run under one lock that plays the part of a UI event
// loop, and subscribers are called synchronously, in subscription order,
// before the call that caused the transition returns. Subscribers must
// not call back into the Context's mutating methods.
type Context struct {
	store     *tokenstore.Store
	bridge    *Bridge
	source    *provider.Source
	authority provider.Authority
	logger    *slog.Logger
	recorder  Recorder

	// loop serialises transitions and guards the fields below it.
	loop        sync.Mutex
	gen         uint64
	mounted     bool
	tokenRead   bool
	settled     bool
	latest      *provider.Session
	loginSent   bool
	loggedOut   bool
	redirected  bool
	fetchCtx    context.Context
	cancel      context.CancelFunc
	unsubscribe func()
	stopAfter   func() bool

	// mu guards the published snapshot and the subscriber list.
	mu      sync.RWMutex
	state   State
	changed chan struct{}
	subs    []stateSubscriber
	nextSub uint64
}

type stateSubscriber struct {
	id uint64
	fn func(State)
}

// Option configures a Context.
type Option func(*Context)

// WithLogger sets the logger. Each Context tags its output with a mount ID.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Context) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithRecorder reports transitions and guard decisions to r.
func WithRecorder(r Recorder) Option {
	return func(c *Context) {
		if r != nil {
			c.recorder = r
		}
	}
}

// New creates an unmounted Context. Its state is Authenticating until
// Mount has resolved both the token read and the provider session.
func New(store *tokenstore.Store, bridge *Bridge, source *provider.Source, authority provider.Authority, opts ...Option) *Context {
	c := &Context{
		store:     store,
		bridge:    bridge,
		source:    source,
		authority: authority,
		logger:    logging.Discard(),
		recorder:  nopRecorder{},
		state:     Authenticating(),
		changed:   make(chan struct{}),
	}

	for _, opt := range opts {
		opt(c)
	}

	c.logger = c.logger.With(slog.String("mount_id", uuid.NewString()))

	return c
}

// Mount starts the context: it subscribes to the session source, starts
// a provider fetch unless the source has already settled, and reads the
// token. It returns once the token read is done; the fetch may still be
// in flight. The context unmounts itself when ctx ends. Mounting an
// already mounted context does nothing.
func (c *Context) Mount(ctx context.Context) {
	c.loop.Lock()

	if c.mounted {
		c.loop.Unlock()
		return
	}

	c.gen++
	gen := c.gen
	c.mounted = true
	c.tokenRead = false
	c.settled = false
	c.latest = nil
	c.loginSent = false
	c.loggedOut = false
	c.redirected = false
	c.fetchCtx, c.cancel = context.WithCancel(ctx)
	fetchCtx := c.fetchCtx
	c.unsubscribe = c.source.Subscribe(func(s provider.Session) {
		c.onSession(gen, s)
	})
	c.stopAfter = context.AfterFunc(ctx, c.Unmount)
	c.transition(Authenticating())

	c.loop.Unlock()

	c.logger.Debug("auth context mounted")

	if cur := c.source.Current(); cur.Settled() {
		c.onSession(gen, cur)
	} else {
		go c.source.Refresh(fetchCtx)
	}

	c.readToken(gen)
}

// Unmount detaches the context. Fetches still in flight are cancelled
// and anything they deliver later is dropped. The last state stays
// readable. Safe to call more than once.
func (c *Context) Unmount() {
	c.loop.Lock()
	defer c.loop.Unlock()

	if !c.mounted {
		return
	}

	c.mounted = false
	c.gen++
	c.unsubscribe()
	c.cancel()

	if c.stopAfter != nil {
		c.stopAfter()
	}

	c.logger.Debug("auth context unmounted", slog.String("status", c.state.Status.String()))
}

// Login returns the provider's sign-in URL. returnTo is the absolute URL
// the provider should send the browser back to. It does not change the
// state; the provider session that follows does. When already
// Authenticated it returns "" and does nothing.
func (c *Context) Login(returnTo string) (string, error) {
	c.loop.Lock()
	defer c.loop.Unlock()

	if !c.mounted {
		return "", serrors.ErrNotMounted
	}

	if c.state.Status == StatusAuthenticated {
		return "", nil
	}

	c.loginSent = true
	c.loggedOut = false

	return c.authority.SignInURL(returnTo), nil
}

// Logout removes the token and moves to Unauthenticated before asking
// the provider to end its session. Once the provider confirms, Absent is
// published to the session source. A provider session reported after
// Logout in the same mount is ignored. The returned error is the
// provider's; the local sign-out has already happened.
func (c *Context) Logout(ctx context.Context) error {
	c.loop.Lock()

	if !c.mounted {
		c.loop.Unlock()
		return serrors.ErrNotMounted
	}

	c.loggedOut = true
	c.loginSent = false
	c.latest = nil
	c.settled = true

	if err := c.store.Remove(); err != nil {
		c.logger.Debug("logout: token clear not persisted", slog.String("error", err.Error()))
	}

	c.transition(Unauthenticated())
	c.loop.Unlock()

	if err := c.authority.SignOut(ctx, c.source.Credential()); err != nil {
		c.logger.Warn("logout: provider sign-out failed",
			slog.String("error", err.Error()),
			slog.Bool("transient", provider.IsTransient(err)),
		)

		return fmt.Errorf("logging out: %w", err)
	}

	c.source.Publish(provider.Absent())

	return nil
}

// Retry re-enters Authenticating and fetches the provider session again.
// It only acts from the Error state and returns once the fetch settled.
func (c *Context) Retry(ctx context.Context) error {
	c.loop.Lock()

	if !c.mounted {
		c.loop.Unlock()
		return serrors.ErrNotMounted
	}

	if c.state.Status != StatusError {
		c.loop.Unlock()
		return nil
	}

	c.settled = false
	c.latest = nil
	c.transition(Authenticating())
	c.loop.Unlock()

	c.logger.Info("retrying session fetch")
	c.source.Refresh(ctx)

	return nil
}

// Resync reads the token and fetches the provider session again through
// the same reconciliation path Mount uses. It is the entry point for
// reacting to token changes made outside this context.
func (c *Context) Resync(ctx context.Context) error {
	c.loop.Lock()

	if !c.mounted {
		c.loop.Unlock()
		return serrors.ErrNotMounted
	}

	gen := c.gen
	c.loop.Unlock()

	c.readToken(gen)
	c.source.Refresh(ctx)

	return nil
}

// State returns the current state.
func (c *Context) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()

	s := c.state
	if s.User != nil {
		u := *s.User
		s.User = &u
	}

	return s
}

// CurrentUser returns the signed-in user, or false unless Authenticated.
func (c *Context) CurrentUser() (models.Profile, bool) {
	s := c.State()
	if s.Status != StatusAuthenticated || s.User == nil {
		return models.Profile{}, false
	}

	return *s.User, true
}

// HasCachedToken reports whether a valid token is stored. Pages may use
// it to render a tentative signed-in shell before the provider answers.
func (c *Context) HasCachedToken() bool {
	_, ok := c.store.Get()
	return ok
}

// Subscribe registers fn for every future transition. The returned
// function removes it and may be called more than once.
func (c *Context) Subscribe(fn func(State)) func() {
	c.mu.Lock()
	id := c.nextSub
	c.nextSub++
	c.subs = append(c.subs, stateSubscriber{id: id, fn: fn})
	c.mu.Unlock()

	var once sync.Once

	return func() {
		once.Do(func() {
			c.mu.Lock()
			defer c.mu.Unlock()

			for i, sub := range c.subs {
				if sub.id == id {
					c.subs = append(c.subs[:i:i], c.subs[i+1:]...)
					return
				}
			}
		})
	}
}

// Await blocks until the state leaves Authenticating, d elapses or ctx
// ends, and returns the state at that point.
func (c *Context) Await(ctx context.Context, d time.Duration) State {
	if d <= 0 {
		return c.State()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	for {
		c.mu.RLock()
		status, changed := c.state.Status, c.changed
		c.mu.RUnlock()

		if status != StatusAuthenticating {
			return c.State()
		}

		select {
		case <-changed:
		case <-timer.C:
			return c.State()
		case <-ctx.Done():
			return c.State()
		}
	}
}

// claimRedirect reports whether the caller may redirect to the login
// page. It succeeds once per entry into Unauthenticated.
func (c *Context) claimRedirect() bool {
	c.loop.Lock()
	defer c.loop.Unlock()

	if c.state.Status != StatusUnauthenticated || c.redirected {
		return false
	}

	c.redirected = true

	return true
}

func (c *Context) readToken(gen uint64) {
	_, ok := c.store.Get()

	c.loop.Lock()
	defer c.loop.Unlock()

	if gen != c.gen || !c.mounted {
		return
	}

	c.tokenRead = true
	c.logger.Debug("token read", slog.Bool("present", ok))
	c.advance()
}

func (c *Context) onSession(gen uint64, s provider.Session) {
	c.loop.Lock()
	defer c.loop.Unlock()

	if gen != c.gen || !c.mounted {
		c.logger.Debug("dropping session update after unmount", slog.String("session", s.State.String()))
		return
	}

	switch s.State {
	case provider.SessionPending:
		// Once settled, only a login attempt may show Authenticating again.
		if c.settled && c.loginSent {
			c.transition(Authenticating())
		}

		return

	case provider.SessionPresent:
		if c.loggedOut {
			c.logger.Debug("ignoring provider session after logout")
			return
		}

	case provider.SessionFailed:
		if c.loggedOut {
			return
		}

		if c.settled && c.state.Status == StatusAuthenticated {
			c.logger.Warn("session refresh failed, keeping current user", slog.Any("error", s.Err))
			return
		}
	}

	c.latest = &s
	c.advance()
}

// advance applies the latest settled session once the token has been
// read. Either input may arrive first.
func (c *Context) advance() {
	if c.latest == nil || !c.tokenRead {
		return
	}

	s := *c.latest
	c.latest = nil

	t := c.bridge.Reconcile(s)

	c.settled = true
	c.loginSent = false
	c.transition(t.To)
}

// transition publishes to when it differs from the current state. Must
// be called with loop held.
func (c *Context) transition(to State) {
	c.mu.Lock()

	from := c.state
	if from.Equal(to) {
		c.mu.Unlock()
		return
	}

	c.state = to
	close(c.changed)
	c.changed = make(chan struct{})
	subs := make([]stateSubscriber, len(c.subs))
	copy(subs, c.subs)

	c.mu.Unlock()

	if to.Status == StatusUnauthenticated {
		c.redirected = false
	}

	c.recorder.RecordTransition(from.Status.String(), to.Status.String())

	attrs := []any{
		slog.String("from", from.Status.String()),
		slog.String("to", to.Status.String()),
	}
	if to.User != nil {
		attrs = append(attrs, slog.String("user_id", to.User.ID))
	}
	if to.Err != nil {
		attrs = append(attrs, slog.String("error", to.Err.Error()))
	}
	c.logger.Debug("auth state changed", attrs...)

	for _, sub := range subs {
		sub.fn(to)
	}
}
