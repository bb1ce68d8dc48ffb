// Package web implements the HTTP layer of the secrets server: server-rendered
// pages for registration, login and the public secrets wall, federated login
// redirects and callbacks, and the operational endpoints. It uses Chi as the
// router. Pages behind RequireAccount need a logged-in session whose account
// still exists.
package web

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"

	"go.uber.org/zap"
)

//go:embed templates/*.html
var templateFS embed.FS

//go:embed static
var staticFS embed.FS

// maxFormBytes caps request bodies accepted by form handlers.
const maxFormBytes = 1 << 20 // 1 MB

// Page template names.
const (
	pageHome     = "home.html"
	pageLogin    = "login.html"
	pageRegister = "register.html"
	pageSecrets  = "secrets.html"
	pageSubmit   = "submit.html"
	pageError    = "error.html"
)

// pageData is passed to every page template.
type pageData struct {
	Title     string
	LoggedIn  bool
	Error     string
	Providers []string
	Secrets   []string

	Status  int
	Message string
}

// renderer holds one template set per page, each page layered over the
// shared base layout.
type renderer struct {
	pages  map[string]*template.Template
	logger *zap.Logger
}

func newRenderer(logger *zap.Logger) (*renderer, error) {
	r := &renderer{
		pages:  make(map[string]*template.Template),
		logger: logger,
	}
	for _, page := range []string{pageHome, pageLogin, pageRegister, pageSecrets, pageSubmit, pageError} {
		t, err := template.ParseFS(templateFS, "templates/base.html", "templates/"+page)
		if err != nil {
			return nil, fmt.Errorf("web: parsing template %s: %w", page, err)
		}
		r.pages[page] = t
	}
	return r, nil
}

// render writes page with the given status. The page is executed into a
// buffer first so a template failure still produces a clean 500.
func (rd *renderer) render(w http.ResponseWriter, status int, page string, data pageData) {
	t, ok := rd.pages[page]
	if !ok {
		rd.logger.Error("unknown template", zap.String("page", page))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, "base", data); err != nil {
		rd.logger.Error("template execution failed", zap.String("page", page), zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}

// errorPage writes an HTML error page. Internal error details are never
// exposed to the client.
func (rd *renderer) errorPage(w http.ResponseWriter, status int) {
	rd.render(w, status, pageError, pageData{
		Title:   http.StatusText(status),
		Status:  status,
		Message: http.StatusText(status),
	})
}

// notFound writes a 404 page.
func (rd *renderer) notFound(w http.ResponseWriter) {
	rd.errorPage(w, http.StatusNotFound)
}

// badRequest writes a 400 page.
func (rd *renderer) badRequest(w http.ResponseWriter) {
	rd.errorPage(w, http.StatusBadRequest)
}

// internalError writes a 500 page.
func (rd *renderer) internalError(w http.ResponseWriter) {
	rd.errorPage(w, http.StatusInternalServerError)
}

// redirect sends a 302 to path.
func redirect(w http.ResponseWriter, r *http.Request, path string) {
	http.Redirect(w, r, path, http.StatusFound)
}

// parseForm parses a urlencoded body limited to maxFormBytes. Returns false
// and writes a 400 page if parsing fails, so callers can early-return.
func (rd *renderer) parseForm(w http.ResponseWriter, r *http.Request) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxFormBytes)
	if err := r.ParseForm(); err != nil {
		rd.badRequest(w)
		return false
	}
	return true
}

// staticHandler serves the embedded stylesheet and other assets under /static/.
func staticHandler() http.Handler {
	sub, err := fs.Sub(staticFS, "static")
	if err != nil {
		// static is embedded at build time; Sub only fails on a bad pattern.
		panic(err)
	}
	return http.StripPrefix("/static/", http.FileServerFS(sub))
}
