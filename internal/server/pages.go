package server

import (
	"bytes"
	"html/template"
	"net/http"
)

const pageStyle = `
  *, *::before, *::after { box-sizing: border-box; margin: 0; padding: 0; }
  body {
    font-family: -apple-system, BlinkMacSystemFont, "Segoe UI", Roboto, Helvetica, Arial, sans-serif;
    background: #f5f5f5;
    color: #1a1a1a;
  }
  header {
    display: flex;
    justify-content: space-between;
    align-items: center;
    padding: 1rem 2rem;
    background: #fff;
    border-bottom: 1px solid #e0e0e0;
  }
  main { max-width: 720px; margin: 2rem auto; padding: 0 1rem; }
  h1 { font-size: 1.25rem; font-weight: 600; margin-bottom: 0.5rem; }
  p { font-size: 0.9rem; color: #666; }
  button, a.button {
    padding: 0.4rem 0.9rem;
    font-size: 0.85rem;
    background: #1a1a1a;
    color: #fff;
    border: none;
    border-radius: 6px;
    cursor: pointer;
    text-decoration: none;
  }
`

type homeData struct {
	SignedIn  bool
	Name      string
	LoginPath string
}

var homePage = template.Must(template.New("home").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>storefront</title>
<style>` + pageStyle + `</style>
</head>
<body>
<header>
  <strong>storefront</strong>
  {{if .SignedIn}}
  <form method="POST" action="/signout">
    <span>{{if .Name}}Hi, {{.Name}}{{else}}Welcome back{{end}}</span>
    <button type="submit">Sign out</button>
  </form>
  {{else}}
  <a class="button" href="{{.LoginPath}}">Sign in</a>
  {{end}}
</header>
<main>
  <h1>Welcome</h1>
  <p><a href="/checkout">Go to checkout</a></p>
</main>
</body>
</html>
`))

type checkoutData struct {
	Name  string
	Email string
}

var checkoutPage = template.Must(template.New("checkout").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>Checkout - storefront</title>
<style>` + pageStyle + `</style>
</head>
<body>
<header>
  <strong>storefront</strong>
  <form method="POST" action="/signout">
    <span>{{.Name}}</span>
    <button type="submit">Sign out</button>
  </form>
</header>
<main>
  <h1>Checkout</h1>
  <p>Order confirmation will be sent to {{.Email}}.</p>
</main>
</body>
</html>
`))

// renderPage executes tmpl into a buffer first so a template error never
// leaves a half-written page.
func renderPage(w http.ResponseWriter, status int, tmpl *template.Template, data any) {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("X-Frame-Options", "DENY")
	w.Header().Set("Content-Security-Policy", "frame-ancestors 'none'")
	w.WriteHeader(status)
	_, _ = w.Write(buf.Bytes())
}
