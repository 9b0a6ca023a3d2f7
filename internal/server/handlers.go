package server

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/alexjbarnes/storefront/internal/auth"
	serrors "github.com/alexjbarnes/storefront/internal/errors"
)

type handlers struct {
	baseURL   string
	loginPath string
	wait      time.Duration
	logger    *slog.Logger
}

func (h *handlers) health(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("ok"))
}

// authContext fetches the request's auth Context or answers 500.
func (h *handlers) authContext(w http.ResponseWriter, r *http.Request) (*auth.Context, bool) {
	ac := auth.FromContext(r.Context())
	if ac == nil {
		h.logger.Error("no auth context on request", slog.String("path", r.URL.Path))
		http.Error(w, "internal server error", http.StatusInternalServerError)

		return nil, false
	}

	return ac, true
}

// home renders the storefront shell once the request's auth state has
// settled, so the token cookie is stored or cleared before the headers go
// out. While the provider is still unresolved after the wait, or failing,
// a cached token is enough to show the signed-in variant.
func (h *handlers) home(w http.ResponseWriter, r *http.Request) {
	ac, ok := h.authContext(w, r)
	if !ok {
		return
	}

	data := homeData{LoginPath: h.loginPath}

	switch st := ac.Await(r.Context(), h.wait); st.Status {
	case auth.StatusAuthenticated:
		data.SignedIn = true
		data.Name = displayName(st.User.DisplayName, st.User.Email)
	case auth.StatusUnauthenticated:
	default:
		data.SignedIn = ac.HasCachedToken()
	}

	renderPage(w, http.StatusOK, homePage, data)
}

// signIn sends the browser to the identity provider, or straight back
// to the return path when already signed in.
func (h *handlers) signIn(w http.ResponseWriter, r *http.Request) {
	ac, ok := h.authContext(w, r)
	if !ok {
		return
	}

	returnTo := auth.SafeReturnPath(r.URL.Query().Get(auth.DefaultReturnParam))

	if st := ac.Await(r.Context(), h.wait); st.Status == auth.StatusAuthenticated {
		http.Redirect(w, r, returnTo, http.StatusSeeOther)
		return
	}

	target, err := ac.Login(h.baseURL + returnTo)
	if err != nil {
		h.logger.Error("starting login", slog.String("error", err.Error()))
		http.Error(w, "internal server error", http.StatusInternalServerError)

		return
	}

	if target == "" {
		http.Redirect(w, r, returnTo, http.StatusSeeOther)
		return
	}

	w.Header().Set("Cache-Control", "no-store")
	http.Redirect(w, r, target, http.StatusFound)
}

// signOut clears the local session first and then asks the provider to
// end its own. A provider failure is logged; the browser is signed out
// locally either way.
func (h *handlers) signOut(w http.ResponseWriter, r *http.Request) {
	ac, ok := h.authContext(w, r)
	if !ok {
		return
	}

	if err := ac.Logout(r.Context()); err != nil {
		h.logger.Warn("provider sign-out failed", slog.String("error", err.Error()))
	}

	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// retry handles the fallback page's form. The request's own mount has
// already fetched again; if that failed too, Retry asks once more.
func (h *handlers) retry(w http.ResponseWriter, r *http.Request) {
	ac, ok := h.authContext(w, r)
	if !ok {
		return
	}

	returnTo := "/"
	if err := r.ParseForm(); err == nil {
		returnTo = auth.SafeReturnPath(r.PostForm.Get(auth.DefaultReturnParam))
	}

	if st := ac.Await(r.Context(), h.wait); st.Status == auth.StatusError {
		if err := ac.Retry(r.Context()); err != nil {
			h.logger.Warn("retrying session", slog.String("error", err.Error()))
		}
	}

	http.Redirect(w, r, returnTo, http.StatusSeeOther)
}

// session reports the request's settled auth state as JSON.
func (h *handlers) session(w http.ResponseWriter, r *http.Request) {
	ac, ok := h.authContext(w, r)
	if !ok {
		return
	}

	writeJSON(w, http.StatusOK, ac.Await(r.Context(), h.wait))
}

// resync re-reads the token and re-fetches the provider session, then
// reports the resulting state.
func (h *handlers) resync(w http.ResponseWriter, r *http.Request) {
	ac, ok := h.authContext(w, r)
	if !ok {
		return
	}

	if err := ac.Resync(r.Context()); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, serrors.ErrNotMounted) {
			status = http.StatusServiceUnavailable
		}

		writeJSONError(w, status, "resync_failed", err.Error())

		return
	}

	writeJSON(w, http.StatusOK, ac.State())
}

// checkout is the protected area. Guard guarantees a signed-in user.
func (h *handlers) checkout(w http.ResponseWriter, r *http.Request) {
	ac, ok := h.authContext(w, r)
	if !ok {
		return
	}

	u, ok := ac.CurrentUser()
	if !ok {
		http.Error(w, "not signed in", http.StatusUnauthorized)
		return
	}

	renderPage(w, http.StatusOK, checkoutPage, checkoutData{
		Name:  displayName(u.DisplayName, u.Email),
		Email: u.Email,
	})
}

func displayName(name, email string) string {
	if name != "" {
		return name
	}

	return email
}
