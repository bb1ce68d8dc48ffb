package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"

	"golang.org/x/oauth2"

	"github.com/tellnoone/secrets/internal/db"
)

// oauthStateBytes is the length of the random state parameter for CSRF protection.
const oauthStateBytes = 16

// AuthService is the entry point for all authentication operations.
// It holds the local provider, the federated providers and the linker, and
// delegates to the appropriate one based on the operation requested.
//
// The HTTP layer depends on AuthService, never on individual providers directly.
type AuthService struct {
	local     *LocalAuthProvider
	linker    *Linker
	providers *Registry
}

// NewAuthService creates an AuthService. providers may be empty when no
// federated login is configured.
func NewAuthService(local *LocalAuthProvider, linker *Linker, providers *Registry) *AuthService {
	if providers == nil {
		providers = NewRegistry()
	}
	return &AuthService{
		local:     local,
		linker:    linker,
		providers: providers,
	}
}

// Register creates a local account.
func (s *AuthService) Register(ctx context.Context, username, password string) (*db.Account, error) {
	return s.local.Register(ctx, username, password)
}

// LoginLocal verifies a username and password.
func (s *AuthService) LoginLocal(ctx context.Context, username, password string) (*db.Account, error) {
	return s.local.Verify(ctx, username, password)
}

// Providers lists the configured federated providers.
func (s *AuthService) Providers() []string {
	return s.providers.Names()
}

// AuthorizationURL starts a federated login at the named provider. It
// returns the URL to redirect the user to, plus state and verifier that the
// caller must keep in the session until the callback.
func (s *AuthService) AuthorizationURL(provider string) (url, state, verifier string, err error) {
	p, err := s.providers.Get(provider)
	if err != nil {
		return "", "", "", err
	}

	state, err = generateRandomBase64(oauthStateBytes)
	if err != nil {
		return "", "", "", fmt.Errorf("auth: generating oauth state: %w", err)
	}
	verifier = oauth2.GenerateVerifier()

	return p.AuthCodeURL(state, verifier), state, verifier, nil
}

// ExchangeCode completes a federated login: it checks the state, lets the
// provider exchange the code for a verified identity, and finds or creates
// the linked account.
func (s *AuthService) ExchangeCode(ctx context.Context, cb FederatedCallback) (*db.Account, error) {
	p, err := s.providers.Get(cb.Provider)
	if err != nil {
		return nil, err
	}

	if cb.Error != "" {
		return nil, fmt.Errorf("%w: %s returned %q", ErrUpstreamAuth, cb.Provider, cb.Error)
	}
	if cb.SessionState == "" || cb.State != cb.SessionState {
		return nil, ErrStateMismatch
	}
	if cb.Code == "" {
		return nil, fmt.Errorf("%w: %s callback without code", ErrUpstreamAuth, cb.Provider)
	}

	identity, err := p.Identify(ctx, cb.Code, cb.Verifier)
	if err != nil {
		return nil, err
	}
	if identity.Provider != p.Name() {
		return nil, fmt.Errorf("%w: %s asserted a %q identity", ErrUpstreamAuth, p.Name(), identity.Provider)
	}

	return s.linker.FindOrCreate(ctx, *identity)
}

// generateRandomBase64 returns a URL-safe base64-encoded random string of n bytes.
func generateRandomBase64(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
