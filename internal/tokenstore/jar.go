package tokenstore

import (
	"net/http"
	"sync"
	"time"

	serrors "github.com/alexjbarnes/storefront/internal/errors"
)

//go:generate mockgen -source=jar.go -destination=mock_jar_test.go -package=tokenstore

// Jar is the client-side key/value storage the token lives in. Cookie
// returns http.ErrNoCookie when the key is missing. Implementations are
// not required to purge expired entries on read; Store checks the
// recorded expiry itself.
type Jar interface {
	Cookie(name string) (*http.Cookie, error)
	SetCookie(c *http.Cookie) error
}

// RequestJar is the browser cookie jar as seen from one HTTP request.
// Reads fall through to the request's Cookie header. Writes go into an
// overlay that later reads in the same request observe, and reach the
// browser as Set-Cookie headers when the wrapped ResponseWriter first
// writes. Writes are safe from any goroutine; the header map is only
// touched on the goroutine serving the request.
type RequestJar struct {
	req *http.Request

	mu      sync.Mutex
	pending map[string]*http.Cookie
	order   []string
	flushed bool
}

// NewRequestJar creates a jar over the cookies sent with r.
func NewRequestJar(r *http.Request) *RequestJar {
	return &RequestJar{
		req:     r,
		pending: make(map[string]*http.Cookie),
	}
}

// Cookie returns the most recent value for name, preferring writes made
// during this request over the incoming Cookie header.
func (j *RequestJar) Cookie(name string) (*http.Cookie, error) {
	j.mu.Lock()
	c, ok := j.pending[name]
	j.mu.Unlock()

	if ok {
		if c.MaxAge < 0 {
			return nil, http.ErrNoCookie
		}

		cp := *c

		return &cp, nil
	}

	return j.req.Cookie(name)
}

// SetCookie records c for this request. Once the response headers have
// been sent the write can no longer reach the browser; the overlay is
// still updated so the rest of the request sees a consistent value, and
// ErrStorageUnavailable is returned.
func (j *RequestJar) SetCookie(c *http.Cookie) error {
	cp := *c

	j.mu.Lock()
	defer j.mu.Unlock()

	if _, seen := j.pending[c.Name]; !seen {
		j.order = append(j.order, c.Name)
	}

	j.pending[c.Name] = &cp

	if j.flushed {
		return serrors.ErrStorageUnavailable
	}

	return nil
}

// Wrap returns a ResponseWriter that emits the jar's pending cookies
// before the first header or body write.
func (j *RequestJar) Wrap(w http.ResponseWriter) http.ResponseWriter {
	return &jarWriter{ResponseWriter: w, jar: j}
}

func (j *RequestJar) flush(h http.Header) {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.flushed {
		return
	}

	j.flushed = true

	for _, name := range j.order {
		if v := j.pending[name].String(); v != "" {
			h.Add("Set-Cookie", v)
		}
	}
}

type jarWriter struct {
	http.ResponseWriter
	jar *RequestJar
}

func (w *jarWriter) WriteHeader(code int) {
	w.jar.flush(w.ResponseWriter.Header())
	w.ResponseWriter.WriteHeader(code)
}

func (w *jarWriter) Write(b []byte) (int, error) {
	w.jar.flush(w.ResponseWriter.Header())
	return w.ResponseWriter.Write(b)
}

func (w *jarWriter) Flush() {
	w.jar.flush(w.ResponseWriter.Header())

	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (w *jarWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

// MemoryJar is an in-process Jar. Entries written with Max-Age < 0 or an
// expiry at or before the jar's clock are deleted on write, the way a
// browser drops them. Entries that expire later stay until overwritten.
type MemoryJar struct {
	mu      sync.Mutex
	cookies map[string]http.Cookie
	now     func() time.Time
}

// NewMemoryJar creates an empty jar. now may be nil, meaning time.Now.
func NewMemoryJar(now func() time.Time) *MemoryJar {
	if now == nil {
		now = time.Now
	}

	return &MemoryJar{
		cookies: make(map[string]http.Cookie),
		now:     now,
	}
}

// Cookie returns a copy of the stored cookie or http.ErrNoCookie.
func (j *MemoryJar) Cookie(name string) (*http.Cookie, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	c, ok := j.cookies[name]
	if !ok {
		return nil, http.ErrNoCookie
	}

	return &c, nil
}

// SetCookie stores or deletes c.
func (j *MemoryJar) SetCookie(c *http.Cookie) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if c.MaxAge < 0 || (!c.Expires.IsZero() && !j.now().Before(c.Expires)) {
		delete(j.cookies, c.Name)
		return nil
	}

	j.cookies[c.Name] = *c

	return nil
}

// Len returns the number of live entries.
func (j *MemoryJar) Len() int {
	j.mu.Lock()
	defer j.mu.Unlock()

	return len(j.cookies)
}
