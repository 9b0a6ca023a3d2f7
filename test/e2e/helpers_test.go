package e2e_test

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alexjbarnes/storefront/internal/auth"
	"github.com/alexjbarnes/storefront/internal/metrics"
	"github.com/alexjbarnes/storefront/internal/provider"
	"github.com/alexjbarnes/storefront/internal/server"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

const (
	testSecret  = "e2e-test-secret-value-0123456789ab"
	testUserID  = "user-42"
	testName    = "Grace Hopper"
	testEmail   = "grace@example.com"
	guardWait   = 3 * time.Second
	idpCookie   = provider.DefaultCookieName
	tokenCookie = "authToken"
)

// idp is a minimal identity provider. Visiting the sign-in endpoint
// signs the test user in immediately and bounces back to callbackUrl.
type idp struct {
	srv *httptest.Server

	mu       sync.Mutex
	sessions map[string]bool

	down     atomic.Bool
	signOuts atomic.Int32
}

func newIDP(t *testing.T) *idp {
	t.Helper()

	p := &idp{sessions: make(map[string]bool)}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/auth/signin", p.signIn)
	mux.HandleFunc("GET /api/auth/session", p.session)
	mux.HandleFunc("POST /api/auth/signout", p.signOut)

	p.srv = httptest.NewServer(mux)
	t.Cleanup(p.srv.Close)

	return p
}

func (p *idp) signIn(w http.ResponseWriter, r *http.Request) {
	id := uuid.NewString()

	p.mu.Lock()
	p.sessions[id] = true
	p.mu.Unlock()

	http.SetCookie(w, &http.Cookie{Name: idpCookie, Value: id, Path: "/", HttpOnly: true})
	http.Redirect(w, r, r.URL.Query().Get("callbackUrl"), http.StatusFound)
}

func (p *idp) session(w http.ResponseWriter, r *http.Request) {
	if p.down.Load() {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}

	w.Header().Set("Content-Type", "application/json")

	if !p.valid(r) {
		_, _ = io.WriteString(w, `{}`)
		return
	}

	_, _ = io.WriteString(w, `{"user":{"id":"`+testUserID+`","name":"`+testName+`","email":"`+testEmail+`"},"expires":"2099-01-01T00:00:00Z"}`)
}

func (p *idp) signOut(w http.ResponseWriter, r *http.Request) {
	p.signOuts.Add(1)

	if c, err := r.Cookie(idpCookie); err == nil {
		p.mu.Lock()
		delete(p.sessions, c.Value)
		p.mu.Unlock()
	}

	w.WriteHeader(http.StatusOK)
}

func (p *idp) valid(r *http.Request) bool {
	c, err := r.Cookie(idpCookie)
	if err != nil {
		return false
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	return p.sessions[c.Value]
}

// harness runs the storefront against the fake provider. Both servers
// listen on 127.0.0.1, so the browser jar shares the provider's session
// cookie with the storefront the way a shared parent domain would.
type harness struct {
	URL      string
	IDP      *idp
	Registry *prometheus.Registry
	Client   *http.Client
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	p := newIDP(t)
	reg := prometheus.NewRegistry()
	collector := metrics.NewCollector(reg)

	client := provider.NewClient(p.srv.URL,
		provider.WithHTTPClient(p.srv.Client()),
		provider.WithObserver(collector),
	)

	logger := slog.New(slog.DiscardHandler)

	// The return URL handed to the provider must match the listener.
	ts := httptest.NewUnstartedServer(nil)
	serverURL := "http://" + ts.Listener.Addr().String()

	ts.Config.Handler = server.NewRouter(server.Config{
		Factory: &auth.Factory{
			Fetcher:   client,
			Authority: client,
			Secret:    []byte(testSecret),
			Logger:    logger,
			Recorder:  collector,
		},
		BaseURL:   serverURL,
		LoginPath: "/signin",
		GuardWait: guardWait,
		Logger:    logger,
		Recorder:  collector,
		Metrics:   metrics.Handler(reg),
	})
	ts.Start()
	t.Cleanup(ts.Close)

	jar, err := cookiejar.New(nil)
	require.NoError(t, err)

	return &harness{
		URL:      serverURL,
		IDP:      p,
		Registry: reg,
		Client:   &http.Client{Jar: jar, Timeout: 10 * time.Second},
	}
}

// get follows redirects and returns the final response with its body.
func (h *harness) get(t *testing.T, path string) (*http.Response, string) {
	t.Helper()

	resp, err := h.Client.Get(h.URL + path)
	require.NoError(t, err)

	return resp, readBody(t, resp)
}

// getNoFollow returns the first response without following redirects.
func (h *harness) getNoFollow(t *testing.T, path string) (*http.Response, string) {
	t.Helper()

	c := *h.Client
	c.CheckRedirect = func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}

	resp, err := c.Get(h.URL + path)
	require.NoError(t, err)

	return resp, readBody(t, resp)
}

func (h *harness) postForm(t *testing.T, path string, form url.Values) (*http.Response, string) {
	t.Helper()

	resp, err := h.Client.PostForm(h.URL+path, form)
	require.NoError(t, err)

	return resp, readBody(t, resp)
}

// cookie returns the browser's value for name on the storefront origin.
func (h *harness) cookie(t *testing.T, name string) (string, bool) {
	t.Helper()

	u, err := url.Parse(h.URL)
	require.NoError(t, err)

	for _, c := range h.Client.Jar.Cookies(u) {
		if c.Name == name {
			return c.Value, true
		}
	}

	return "", false
}

// signIn runs the full redirect round trip through the provider.
func (h *harness) signIn(t *testing.T) {
	t.Helper()

	resp, body := h.get(t, "/checkout")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.True(t, strings.Contains(body, testName), "expected checkout page, got %q", body)
}

func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer resp.Body.Close()

	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	return string(b)
}
