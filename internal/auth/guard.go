package auth

import (
	"html/template"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/alexjbarnes/storefront/internal/logging"
)

const (
	// DefaultReturnParam carries the originally requested path to the
	// login page.
	DefaultReturnParam = "returnTo"

	// DefaultGuardWait is how long Guard waits for the state to settle
	// before showing the loading page.
	DefaultGuardWait = 2 * time.Second

	// RetryPath receives the fallback page's retry form.
	RetryPath = "/session/retry"
)

// Guard decisions reported to the Recorder.
const (
	DecisionAllow       = "allow"
	DecisionLoading     = "loading"
	DecisionRedirect    = "redirect"
	DecisionFallback    = "fallback"
	DecisionPassthrough = "login_passthrough"
)

// GuardConfig configures Guard.
type GuardConfig struct {
	// LoginPath is where unauthenticated visitors are sent. Required.
	LoginPath string
	// Loading renders while the state is Authenticating. Defaults to
	// LoadingPage.
	Loading http.Handler
	// Fallback renders in the Error state. Defaults to FallbackPage.
	Fallback http.Handler
	// Wait bounds how long a request waits for the state to settle.
	// Zero means DefaultGuardWait; negative means no wait.
	Wait        time.Duration
	ReturnParam string
	Logger      *slog.Logger
	Recorder    Recorder
}

// Guard gates next on the request's auth Context (see Provide):
// Authenticated requests pass through, Unauthenticated ones are
// redirected to LoginPath once per entry into that state, Error renders
// Fallback and anything else renders Loading. Wrapping the login page
// itself is tolerated: requests for LoginPath are never redirected.
func Guard(cfg GuardConfig) func(http.Handler) http.Handler {
	if cfg.Loading == nil {
		cfg.Loading = LoadingPage(time.Second)
	}

	if cfg.Fallback == nil {
		cfg.Fallback = FallbackPage(cfg.ReturnParam)
	}

	if cfg.Wait == 0 {
		cfg.Wait = DefaultGuardWait
	}

	if cfg.ReturnParam == "" {
		cfg.ReturnParam = DefaultReturnParam
	}

	if cfg.Logger == nil {
		cfg.Logger = logging.Discard()
	}

	if cfg.Recorder == nil {
		cfg.Recorder = nopRecorder{}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			decide := func(decision string, h http.Handler) {
				cfg.Recorder.RecordGuardDecision(decision)
				h.ServeHTTP(w, r)
			}

			ac := FromContext(r.Context())
			if ac == nil {
				cfg.Logger.Warn("guard: no auth context on request", slog.String("path", r.URL.Path))
				decide(DecisionLoading, cfg.Loading)

				return
			}

			st := ac.Await(r.Context(), cfg.Wait)

			switch st.Status {
			case StatusAuthenticated:
				decide(DecisionAllow, next)

			case StatusUnauthenticated:
				if r.URL.Path == cfg.LoginPath {
					decide(DecisionPassthrough, next)
					return
				}

				if !ac.claimRedirect() {
					decide(DecisionLoading, cfg.Loading)
					return
				}

				target := loginURL(cfg.LoginPath, cfg.ReturnParam, r.URL.RequestURI())
				cfg.Logger.Debug("guard: redirecting to login",
					slog.String("path", r.URL.Path),
					slog.String("location", target),
				)
				cfg.Recorder.RecordGuardDecision(DecisionRedirect)

				// No body, so nothing protected can flash before the redirect.
				w.Header().Set("Location", target)
				w.Header().Set("Cache-Control", "no-store")
				w.WriteHeader(http.StatusFound)

			case StatusError:
				cfg.Logger.Info("guard: provider unavailable, offering retry",
					slog.String("path", r.URL.Path),
					slog.Any("error", st.Err),
				)
				decide(DecisionFallback, cfg.Fallback)

			default:
				decide(DecisionLoading, cfg.Loading)
			}
		})
	}
}

func loginURL(loginPath, param, returnTo string) string {
	sep := "?"
	if strings.Contains(loginPath, "?") {
		sep = "&"
	}

	return loginPath + sep + url.Values{param: {returnTo}}.Encode()
}

// SafeReturnPath returns p when it is a same-origin relative path and "/"
// otherwise, so return paths cannot send the browser to another site.
func SafeReturnPath(p string) string {
	if p == "" || p[0] != '/' || strings.HasPrefix(p, "//") || strings.HasPrefix(p, "/\\") {
		return "/"
	}

	if u, err := url.Parse(p); err != nil || u.Scheme != "" || u.Host != "" {
		return "/"
	}

	return p
}

var loadingPage = template.Must(template.New("loading").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<meta http-equiv="refresh" content="{{.Refresh}}">
<title>storefront</title>
<style>
  body {
    font-family: -apple-system, BlinkMacSystemFont, "Segoe UI", Roboto, Helvetica, Arial, sans-serif;
    background: #f5f5f5;
    color: #666;
    display: flex;
    align-items: center;
    justify-content: center;
    min-height: 100vh;
    margin: 0;
  }
</style>
</head>
<body>
<p role="status">Checking your session&hellip;</p>
</body>
</html>
`))

var fallbackPage = template.Must(template.New("fallback").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>storefront</title>
<style>
  *, *::before, *::after { box-sizing: border-box; margin: 0; padding: 0; }
  body {
    font-family: -apple-system, BlinkMacSystemFont, "Segoe UI", Roboto, Helvetica, Arial, sans-serif;
    background: #f5f5f5;
    color: #1a1a1a;
    display: flex;
    align-items: center;
    justify-content: center;
    min-height: 100vh;
  }
  .card {
    background: #fff;
    border: 1px solid #e0e0e0;
    border-radius: 8px;
    padding: 2.5rem 2rem;
    width: 100%;
    max-width: 380px;
    box-shadow: 0 1px 3px rgba(0,0,0,0.06);
  }
  .card h1 { font-size: 1.25rem; font-weight: 600; margin-bottom: 0.25rem; }
  .card p { font-size: 0.85rem; color: #666; margin-bottom: 1.5rem; }
  button {
    width: 100%;
    padding: 0.6rem;
    font-size: 0.9rem;
    background: #1a1a1a;
    color: #fff;
    border: none;
    border-radius: 6px;
    cursor: pointer;
  }
</style>
</head>
<body>
<div class="card">
  <h1>We couldn't check your session</h1>
  <p>The sign-in service is not responding. Your cart is safe.</p>
  <form method="POST" action="{{.Action}}">
    <input type="hidden" name="{{.Param}}" value="{{.ReturnTo}}">
    <button type="submit">Try again</button>
  </form>
</div>
</body>
</html>
`))

// LoadingPage renders a placeholder that reloads itself every refresh.
func LoadingPage(refresh time.Duration) http.Handler {
	secs := int(refresh.Round(time.Second) / time.Second)
	if secs < 1 {
		secs = 1
	}

	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Header().Set("Cache-Control", "no-store")
		w.WriteHeader(http.StatusOK)
		_ = loadingPage.Execute(w, struct{ Refresh int }{secs})
	})
}

// FallbackPage renders the retry prompt shown when the identity provider
// cannot be reached. The form posts back to RetryPath with the current
// path under param.
func FallbackPage(param string) http.Handler {
	if param == "" {
		param = DefaultReturnParam
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Header().Set("Cache-Control", "no-store")
		w.Header().Set("X-Frame-Options", "DENY")
		w.WriteHeader(http.StatusServiceUnavailable)
		_ = fallbackPage.Execute(w, struct {
			Action   string
			Param    string
			ReturnTo string
		}{RetryPath, param, SafeReturnPath(r.URL.RequestURI())})
	})
}
