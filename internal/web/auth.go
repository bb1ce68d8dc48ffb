package web

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/tellnoone/secrets/internal/auth"
	"github.com/tellnoone/secrets/internal/session"
)

// AuthHandler groups the registration, login and logout handlers for both
// local and federated accounts. It depends on AuthService as the single
// entry point for all auth operations.
type AuthHandler struct {
	svc      *auth.AuthService
	sessions *session.Manager
	metrics  *Metrics
	rd       *renderer
	logger   *zap.Logger
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(svc *auth.AuthService, sessions *session.Manager, metrics *Metrics, rd *renderer, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{
		svc:      svc,
		sessions: sessions,
		metrics:  metrics,
		rd:       rd,
		logger:   logger.Named("auth_handler"),
	}
}

// -----------------------------------------------------------------------------
// Local auth
// -----------------------------------------------------------------------------

// LoginForm handles GET /login.
func (h *AuthHandler) LoginForm(w http.ResponseWriter, r *http.Request) {
	data := pageData{
		Title:     "Login",
		Providers: h.svc.Providers(),
	}
	if r.URL.Query().Get("error") != "" {
		data.Error = "Incorrect username or password."
	}
	h.rd.render(w, http.StatusOK, pageLogin, data)
}

// Login handles POST /login.
// Verifies the form credentials and binds the account to the session.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	if !h.rd.parseForm(w, r) {
		return
	}

	username := r.PostFormValue("username")
	password := r.PostFormValue("password")
	if username == "" || password == "" {
		redirect(w, r, "/login?error=1")
		return
	}

	account, err := h.svc.LoginLocal(r.Context(), username, password)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			h.metrics.login("local", "rejected")
			redirect(w, r, "/login?error=1")
			return
		}
		h.logger.Error("login failed", zap.Error(err))
		h.rd.internalError(w)
		return
	}

	if err := h.sessions.Login(r.Context(), account.ID); err != nil {
		h.logger.Error("failed to start session", zap.Error(err))
		h.rd.internalError(w)
		return
	}

	h.metrics.login("local", "success")
	redirect(w, r, "/secrets")
}

// RegisterForm handles GET /register.
func (h *AuthHandler) RegisterForm(w http.ResponseWriter, r *http.Request) {
	data := pageData{
		Title:     "Register",
		Providers: h.svc.Providers(),
	}
	switch r.URL.Query().Get("error") {
	case "taken":
		data.Error = "That username is already registered."
	case "invalid":
		data.Error = "Username and password are required."
	}
	h.rd.render(w, http.StatusOK, pageRegister, data)
}

// Register handles POST /register.
// Creates a local account and logs it in.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	if !h.rd.parseForm(w, r) {
		return
	}

	account, err := h.svc.Register(r.Context(), r.PostFormValue("username"), r.PostFormValue("password"))
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrInvalidInput):
			redirect(w, r, "/register?error=invalid")
		case errors.Is(err, auth.ErrDuplicateIdentifier):
			redirect(w, r, "/register?error=taken")
		default:
			h.logger.Error("registration failed", zap.Error(err))
			h.rd.internalError(w)
		}
		return
	}

	if err := h.sessions.Login(r.Context(), account.ID); err != nil {
		h.logger.Error("failed to start session", zap.Error(err))
		h.rd.internalError(w)
		return
	}

	redirect(w, r, "/secrets")
}

// Logout handles GET /logout.
// Destroys the session, if any, and returns to the landing page.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if err := h.sessions.Logout(r.Context()); err != nil {
		// Log but do not expose the error.
		h.logger.Warn("logout error", zap.Error(err))
	}
	redirect(w, r, "/")
}

// -----------------------------------------------------------------------------
// Federated flow
// -----------------------------------------------------------------------------

// FederatedLogin handles GET /auth/{provider}.
// Generates the authorization URL and redirects the user to the identity
// provider. State and PKCE verifier are kept in the server-side session.
func (h *AuthHandler) FederatedLogin(w http.ResponseWriter, r *http.Request) {
	provider := chi.URLParam(r, "provider")

	redirectURL, state, verifier, err := h.svc.AuthorizationURL(provider)
	if err != nil {
		if errors.Is(err, auth.ErrProviderNotFound) {
			h.rd.notFound(w)
			return
		}
		h.logger.Error("failed to generate authorization URL", zap.String("provider", provider), zap.Error(err))
		h.rd.internalError(w)
		return
	}

	h.sessions.PutOAuthState(r.Context(), provider, state, verifier)
	http.Redirect(w, r, redirectURL, http.StatusFound)
}

// FederatedCallback handles GET /auth/{provider}/secrets.
// Completes the authorization code flow, links the identity to an account
// and logs it in. Any failure attributable to the provider or the browser
// sends the user back to /login.
func (h *AuthHandler) FederatedCallback(w http.ResponseWriter, r *http.Request) {
	provider := chi.URLParam(r, "provider")

	// The pending state is single-use.
	state, verifier := h.sessions.PopOAuthState(r.Context(), provider)

	q := r.URL.Query()
	account, err := h.svc.ExchangeCode(r.Context(), auth.FederatedCallback{
		Provider:     provider,
		Code:         q.Get("code"),
		State:        q.Get("state"),
		SessionState: state,
		Verifier:     verifier,
		Error:        q.Get("error"),
	})
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrProviderNotFound):
			h.rd.notFound(w)
		case errors.Is(err, auth.ErrStateMismatch), errors.Is(err, auth.ErrUpstreamAuth):
			h.logger.Warn("federated login rejected", zap.String("provider", provider), zap.Error(err))
			h.metrics.login(provider, "rejected")
			redirect(w, r, "/login")
		default:
			h.logger.Error("federated login failed", zap.String("provider", provider), zap.Error(err))
			h.rd.internalError(w)
		}
		return
	}

	if err := h.sessions.Login(r.Context(), account.ID); err != nil {
		h.logger.Error("failed to start session", zap.Error(err))
		h.rd.internalError(w)
		return
	}

	h.metrics.login(provider, "success")
	redirect(w, r, "/secrets")
}
