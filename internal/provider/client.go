package provider

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	serrors "github.com/alexjbarnes/storefront/internal/errors"
	"github.com/alexjbarnes/storefront/internal/models"
	"github.com/tidwall/gjson"
	"golang.org/x/text/unicode/norm"
	"golang.org/x/time/rate"
)

// TransientError wraps an error that is likely temporary and safe to retry.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string { return e.Err.Error() }
func (e *TransientError) Unwrap() error { return e.Err }

// IsTransient reports whether err (or any error in its chain) is a
// TransientError, meaning the caller should retry after a backoff.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

const (
	sessionPath = "/api/auth/session"
	signInPath  = "/api/auth/signin"
	signOutPath = "/api/auth/signout"

	// DefaultCookieName is the provider's session cookie forwarded on
	// session and sign-out requests.
	DefaultCookieName = "idp_session"

	// maxRedirects is the maximum number of HTTP redirects to follow
	// before giving up, matching the default net/http limit.
	maxRedirects = 10

	// httpClientTimeout is the timeout for the default HTTP client.
	httpClientTimeout = 10 * time.Second

	// maxResponseBytes caps response body reads. Session payloads are
	// small JSON documents.
	maxResponseBytes = 64 * 1024
)

// Observer receives the outcome and latency of each session fetch.
type Observer interface {
	ObserveSessionFetch(outcome string, d time.Duration)
}

type nopObserver struct{}

func (nopObserver) ObserveSessionFetch(string, time.Duration) {}

// Client talks to the identity provider's HTTP session API.
type Client struct {
	httpClient *http.Client
	baseURL    string
	cookieName string
	limiter    *rate.Limiter
	observer   Observer
	now        func() time.Time
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithCookieName sets the name of the provider session cookie.
func WithCookieName(name string) ClientOption {
	return func(c *Client) {
		if name != "" {
			c.cookieName = name
		}
	}
}

// WithRateLimit caps outgoing provider requests to r per second with the
// given burst.
func WithRateLimit(r float64, burst int) ClientOption {
	return func(c *Client) {
		if r > 0 && burst > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(r), burst)
		}
	}
}

// WithObserver reports session fetch outcomes to o.
func WithObserver(o Observer) ClientOption {
	return func(c *Client) {
		if o != nil {
			c.observer = o
		}
	}
}

// WithClientClock replaces time.Now when judging session expiry.
func WithClientClock(now func() time.Time) ClientOption {
	return func(c *Client) {
		if now != nil {
			c.now = now
		}
	}
}

// sameHostRedirectPolicy follows redirects only when the target host
// matches the original request host, so the forwarded session cookie
// never reaches a third-party domain.
func sameHostRedirectPolicy(req *http.Request, via []*http.Request) error {
	if len(via) >= maxRedirects {
		return errors.New("stopped after 10 redirects")
	}

	if len(via) > 0 {
		origHost := via[0].URL.Host
		if req.URL.Host != origHost {
			return fmt.Errorf("redirect to different host blocked: %s -> %s", origHost, req.URL.Host)
		}
	}

	return nil
}

// NewClient creates a provider client rooted at baseURL.
func NewClient(baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		httpClient: &http.Client{
			Timeout:       httpClientTimeout,
			CheckRedirect: sameHostRedirectPolicy,
		},
		baseURL:    strings.TrimRight(baseURL, "/"),
		cookieName: DefaultCookieName,
		limiter:    rate.NewLimiter(rate.Inf, 1),
		observer:   nopObserver{},
		now:        time.Now,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// FetchSession asks the provider for the session identified by
// credential. An empty credential cannot name a session and returns
// Absent without a request.
func (c *Client) FetchSession(ctx context.Context, credential string) (Session, error) {
	if credential == "" {
		return Absent(), nil
	}

	start := time.Now()
	sess, err := c.fetchSession(ctx, credential)

	outcome := sess.State.String()
	if err != nil {
		outcome = "error"
	}

	c.observer.ObserveSessionFetch(outcome, time.Since(start))

	return sess, err
}

func (c *Client) fetchSession(ctx context.Context, credential string) (Session, error) {
	status, body, err := c.do(ctx, http.MethodGet, sessionPath, credential)
	if err != nil {
		return Session{}, fmt.Errorf("fetching session: %w", err)
	}

	switch {
	case status == http.StatusOK:
		return parseSession(body, c.now())
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return Absent(), nil
	case isTransientStatus(status):
		return Session{}, &TransientError{Err: fmt.Errorf("%w: session endpoint returned status %d", serrors.ErrProviderUnavailable, status)}
	}

	return Session{}, fmt.Errorf("%w: session endpoint returned status %d: %s", serrors.ErrProviderResponse, status, sanitizeResponseBody(body))
}

// SignInURL returns the provider's sign-in entry point. returnTo is the
// absolute URL the provider sends the browser back to afterwards.
func (c *Client) SignInURL(returnTo string) string {
	u := c.baseURL + signInPath
	if returnTo == "" {
		return u
	}

	return u + "?" + url.Values{"callbackUrl": {returnTo}}.Encode()
}

// SignOut invalidates the provider session named by credential.
func (c *Client) SignOut(ctx context.Context, credential string) error {
	if credential == "" {
		return nil
	}

	status, body, err := c.do(ctx, http.MethodPost, signOutPath, credential)
	if err != nil {
		return fmt.Errorf("signing out: %w", err)
	}

	if status >= 200 && status < 300 {
		return nil
	}

	if isTransientStatus(status) {
		return &TransientError{Err: fmt.Errorf("signing out: %w: status %d", serrors.ErrProviderUnavailable, status)}
	}

	return fmt.Errorf("signing out: %w: status %d: %s", serrors.ErrProviderResponse, status, sanitizeResponseBody(body))
}

// do sends a request carrying the provider session cookie and returns the
// status and capped body. Network failures are transient.
func (c *Client) do(ctx context.Context, method, endpoint, credential string) (int, []byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return 0, nil, &TransientError{Err: fmt.Errorf("%w: waiting for rate limiter: %w", serrors.ErrProviderUnavailable, err)}
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+endpoint, nil)
	if err != nil {
		return 0, nil, fmt.Errorf("creating request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	req.AddCookie(&http.Cookie{Name: c.cookieName, Value: credential})

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// Timeouts, refused connections and DNS failures.
		return 0, nil, &TransientError{Err: fmt.Errorf("%w: sending request to %s: %w", serrors.ErrProviderUnavailable, endpoint, err)}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return 0, nil, &TransientError{Err: fmt.Errorf("%w: reading response from %s: %w", serrors.ErrProviderUnavailable, endpoint, err)}
	}

	return resp.StatusCode, body, nil
}

// parseSession decodes the session document. An empty object, null, or a
// document without a user means no session. A reported expiry at or
// before now also means no session.
func parseSession(body []byte, now time.Time) (Session, error) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return Absent(), nil
	}

	if !gjson.ValidBytes(body) {
		return Session{}, fmt.Errorf("%w: session body is not valid JSON", serrors.ErrProviderResponse)
	}

	root := gjson.ParseBytes(body)

	user := root.Get("user")
	if !user.IsObject() {
		return Absent(), nil
	}

	id := firstNonEmpty(user.Get("id").String(), user.Get("sub").String(), user.Get("email").String())
	if id == "" {
		return Session{}, fmt.Errorf("%w: session user has no identifier", serrors.ErrProviderResponse)
	}

	var expires time.Time

	if raw := root.Get("expires").String(); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return Session{}, fmt.Errorf("%w: invalid session expiry %q", serrors.ErrProviderResponse, raw)
		}

		if !now.Before(t) {
			return Absent(), nil
		}

		expires = t
	}

	return Present(models.Profile{
		ID:          id,
		DisplayName: norm.NFC.String(strings.TrimSpace(user.Get("name").String())),
		Email:       strings.ToLower(strings.TrimSpace(user.Get("email").String())),
	}, expires), nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}

	return ""
}

// isTransientStatus returns true for HTTP status codes that indicate a
// temporary server-side problem worth retrying.
func isTransientStatus(code int) bool {
	switch code {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}

	return false
}

// sanitizeResponseBody truncates and sanitizes a response body for
// inclusion in error messages. Limits to 256 bytes and replaces
// non-printable characters to prevent log injection.
func sanitizeResponseBody(body []byte) string {
	const maxLen = 256
	if len(body) > maxLen {
		body = body[:maxLen]
	}

	var clean []byte

	for len(body) > 0 {
		r, size := utf8.DecodeRune(body)
		if r == utf8.RuneError && size <= 1 {
			clean = append(clean, '?')
			body = body[1:]

			continue
		}

		if r < 0x20 && r != '\t' {
			clean = append(clean, '?')
		} else {
			clean = append(clean, body[:size]...)
		}

		body = body[size:]
	}

	return string(clean)
}

// compile-time interface checks
var (
	_ Fetcher   = (*Client)(nil)
	_ Authority = (*Client)(nil)
)
