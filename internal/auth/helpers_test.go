package auth

import (
	"context"
	"net/http"
	"sync"
	"testing"
	"time"

	serrors "github.com/alexjbarnes/storefront/internal/errors"
	"github.com/alexjbarnes/storefront/internal/models"
	"github.com/alexjbarnes/storefront/internal/provider"
	"github.com/alexjbarnes/storefront/internal/tokenstore"
	"go.uber.org/mock/gomock"
)

const testCredential = "idp-cred"

var (
	testSecret = []byte("0123456789abcdef0123456789abcdef")
	t0         = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	userU1     = models.Profile{ID: "u1", Email: "a@b.com"}
	userU2     = models.Profile{ID: "u2", Email: "c@d.com", DisplayName: "Second"}
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// countingJar is a MemoryJar that counts token writes and removals.
type countingJar struct {
	*tokenstore.MemoryJar

	mu      sync.Mutex
	writes  int
	removes int
}

func (j *countingJar) SetCookie(c *http.Cookie) error {
	j.mu.Lock()
	if c.MaxAge < 0 {
		j.removes++
	} else {
		j.writes++
	}
	j.mu.Unlock()

	return j.MemoryJar.SetCookie(c)
}

func (j *countingJar) Writes() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.writes
}

// brokenJar fails every operation, like storage in a locked-down browser.
type brokenJar struct{}

func (brokenJar) Cookie(string) (*http.Cookie, error) { return nil, serrors.ErrStorageUnavailable }
func (brokenJar) SetCookie(*http.Cookie) error        { return serrors.ErrStorageUnavailable }

type fakeRecorder struct {
	mu          sync.Mutex
	transitions []string
	decisions   []string
}

func (r *fakeRecorder) RecordTransition(from, to string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.transitions = append(r.transitions, from+"->"+to)
}

func (r *fakeRecorder) RecordGuardDecision(decision string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.decisions = append(r.decisions, decision)
}

func (r *fakeRecorder) Decisions() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.decisions...)
}

type harness struct {
	clock     *fakeClock
	jar       *countingJar
	store     *tokenstore.Store
	fetcher   *MockFetcher
	authority *MockAuthority
	source    *provider.Source
	rec       *fakeRecorder
	ac        *Context
}

// newHarness builds an unmounted Context over a counting memory jar and
// mocked provider collaborators.
func newHarness(t *testing.T) *harness {
	t.Helper()

	ctrl := gomock.NewController(t)
	clock := &fakeClock{now: t0}
	jar := &countingJar{MemoryJar: tokenstore.NewMemoryJar(clock.Now)}
	store := tokenstore.New(jar, nil, tokenstore.WithClock(clock.Now))

	h := &harness{
		clock:     clock,
		jar:       jar,
		store:     store,
		fetcher:   NewMockFetcher(ctrl),
		authority: NewMockAuthority(ctrl),
		rec:       &fakeRecorder{},
	}
	h.source = provider.NewSource(h.fetcher, testCredential, nil)
	h.ac = New(store, NewBridge(store, testSecret, nil), h.source, h.authority, WithRecorder(h.rec))
	t.Cleanup(h.ac.Unmount)

	return h
}

// mount expects one provider fetch answering sess/err, mounts, and waits
// for the state to settle.
func (h *harness) mount(sess provider.Session, err error) State {
	h.fetcher.EXPECT().FetchSession(gomock.Any(), testCredential).Return(sess, err)
	h.ac.Mount(context.Background())
	st := h.ac.Await(context.Background(), time.Second)
	h.barrier()

	return st
}

// barrier waits for any transition in progress, including delivery to
// subscribers, to finish.
func (h *harness) barrier() {
	h.ac.loop.Lock()
	defer h.ac.loop.Unlock()
}

// record subscribes to ac and returns a function reporting the states
// delivered so far.
func record(ac *Context) func() []State {
	var mu sync.Mutex
	var got []State
	ac.Subscribe(func(s State) {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, s)
	})
	return func() []State {
		mu.Lock()
		defer mu.Unlock()
		return append([]State(nil), got...)
	}
}

func statuses(states []State) []Status {
	out := make([]Status, len(states))
	for i, s := range states {
		out[i] = s.Status
	}
	return out
}

func derived(t *testing.T, subject string) string {
	t.Helper()
	tok, err := DeriveToken(testSecret, subject)
	if err != nil {
		t.Fatal(err)
	}
	return tok
}
