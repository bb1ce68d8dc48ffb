// Package session keeps login state for the secrets server. Sessions live
// server-side in an scs store; the browser holds only an opaque random
// token in the session cookie.
package session

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/alexedwards/scs/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	// DefaultCookieName is the session cookie set on every browser.
	DefaultCookieName = "secrets_session"

	// DefaultLifetime is the absolute session lifetime. There is no idle
	// timeout.
	DefaultLifetime = 24 * time.Hour

	// KeyPurpose labels the sealing key derived from the session secret.
	KeyPurpose = "secrets/session/payload"
)

// Session keys.
const (
	keyAccountID     = "account_id"
	keyOAuthProvider = "oauth_provider"
	keyOAuthState    = "oauth_state"
	keyOAuthVerifier = "oauth_verifier"
)

// ErrSessionInvalid is returned when a token does not resolve to a live,
// logged-in session.
var ErrSessionInvalid = errors.New("session: invalid or expired session")

// Config controls the session cookie.
type Config struct {
	Lifetime   time.Duration // zero means DefaultLifetime
	Secure     bool          // set the cookie's Secure flag (HTTPS deployments)
	CookieName string        // empty means DefaultCookieName
}

// Manager maps session tokens to account ids.
type Manager struct {
	scs    *scs.SessionManager
	logger *zap.Logger
}

// New creates a Manager persisting sessions in store.
func New(store scs.Store, cfg Config, logger *zap.Logger) *Manager {
	if cfg.Lifetime <= 0 {
		cfg.Lifetime = DefaultLifetime
	}
	if cfg.CookieName == "" {
		cfg.CookieName = DefaultCookieName
	}

	m := &Manager{logger: logger.Named("session")}

	sm := scs.New()
	sm.Store = store
	sm.Lifetime = cfg.Lifetime
	sm.Cookie.Name = cfg.CookieName
	sm.Cookie.Path = "/"
	sm.Cookie.HttpOnly = true
	sm.Cookie.SameSite = http.SameSiteLaxMode
	sm.Cookie.Secure = cfg.Secure
	sm.Cookie.Persist = true
	sm.ErrorFunc = m.serverError
	m.scs = sm

	return m
}

// CookieName returns the name of the session cookie.
func (m *Manager) CookieName() string {
	return m.scs.Cookie.Name
}

// -----------------------------------------------------------------------------
// Token API
//
// These operate on a token directly, outside of an HTTP request. ctx must not
// already carry a session loaded by Middleware.
// -----------------------------------------------------------------------------

// CreateSession starts a new session for accountID and returns its token.
func (m *Manager) CreateSession(ctx context.Context, accountID uuid.UUID) (string, error) {
	ctx, err := m.scs.Load(ctx, "")
	if err != nil {
		return "", fmt.Errorf("session: creating session: %w", err)
	}
	m.scs.Put(ctx, keyAccountID, accountID.String())

	token, _, err := m.scs.Commit(ctx)
	if err != nil {
		return "", fmt.Errorf("session: creating session: %w", err)
	}
	return token, nil
}

// ResolveSession returns the account id bound to token. Unknown, expired,
// destroyed and empty tokens all yield ErrSessionInvalid.
func (m *Manager) ResolveSession(ctx context.Context, token string) (uuid.UUID, error) {
	if token == "" {
		return uuid.Nil, ErrSessionInvalid
	}

	ctx, err := m.scs.Load(ctx, token)
	if err != nil {
		return uuid.Nil, fmt.Errorf("session: resolving session: %w", err)
	}

	id, ok := m.AccountID(ctx)
	if !ok {
		return uuid.Nil, ErrSessionInvalid
	}
	return id, nil
}

// DestroySession removes the session for token. Destroying an unknown token
// is not an error.
func (m *Manager) DestroySession(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}

	ctx, err := m.scs.Load(ctx, token)
	if err != nil {
		return fmt.Errorf("session: destroying session: %w", err)
	}
	if err := m.scs.Destroy(ctx); err != nil {
		return fmt.Errorf("session: destroying session: %w", err)
	}
	return nil
}

// -----------------------------------------------------------------------------
// Request API
//
// These operate on the session loaded into the request context by Middleware.
// -----------------------------------------------------------------------------

// Middleware loads the session named by the request cookie and writes it
// back, with the cookie, when the handler modified it.
func (m *Manager) Middleware(next http.Handler) http.Handler {
	return m.scs.LoadAndSave(next)
}

// Login binds accountID to the current session. The token is renewed so a
// token issued before login cannot be used to ride the new session.
func (m *Manager) Login(ctx context.Context, accountID uuid.UUID) error {
	if err := m.scs.RenewToken(ctx); err != nil {
		return fmt.Errorf("session: renewing token: %w", err)
	}
	m.scs.Put(ctx, keyAccountID, accountID.String())
	return nil
}

// AccountID returns the logged-in account of the current session.
func (m *Manager) AccountID(ctx context.Context) (uuid.UUID, bool) {
	raw := m.scs.GetString(ctx, keyAccountID)
	if raw == "" {
		return uuid.Nil, false
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}

// Logout destroys the current session. It is a no-op for anonymous requests.
func (m *Manager) Logout(ctx context.Context) error {
	if err := m.scs.Destroy(ctx); err != nil {
		return fmt.Errorf("session: destroying session: %w", err)
	}
	return nil
}

// PutOAuthState stores the state and PKCE verifier of a federated login
// started at provider.
func (m *Manager) PutOAuthState(ctx context.Context, provider, state, verifier string) {
	m.scs.Put(ctx, keyOAuthProvider, provider)
	m.scs.Put(ctx, keyOAuthState, state)
	m.scs.Put(ctx, keyOAuthVerifier, verifier)
}

// PopOAuthState removes and returns the pending federated login state. Both
// values are empty if no login was started at provider.
func (m *Manager) PopOAuthState(ctx context.Context, provider string) (state, verifier string) {
	started := m.scs.PopString(ctx, keyOAuthProvider)
	state = m.scs.PopString(ctx, keyOAuthState)
	verifier = m.scs.PopString(ctx, keyOAuthVerifier)
	if started != provider {
		return "", ""
	}
	return state, verifier
}

func (m *Manager) serverError(w http.ResponseWriter, r *http.Request, err error) {
	m.logger.Error("session store failure",
		zap.String("path", r.URL.Path),
		zap.Error(err),
	)
	http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
}
