package auth

import (
	"context"
	"fmt"
	"sync"

	gooidc "github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/tellnoone/secrets/internal/db"
)

// googleIssuer is the OIDC issuer whose discovery document and signing keys
// are used to verify Google id_tokens.
const googleIssuer = "https://accounts.google.com"

// GoogleProvider implements IdentityProvider with Google's OpenID Connect
// endpoint: authorization code + PKCE, then id_token verification with
// coreos/go-oidc. The id_token's sub claim becomes accounts.google_id.
type GoogleProvider struct {
	oauth2Cfg oauth2.Config
	issuer    string

	mu       sync.Mutex
	verifier *gooidc.IDTokenVerifier
}

// NewGoogleProvider creates a GoogleProvider for the given client
// registration. Discovery against the issuer happens on first use, so
// constructing the provider never touches the network.
func NewGoogleProvider(cfg OAuthConfig) *GoogleProvider {
	return &GoogleProvider{
		oauth2Cfg: oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.CallbackURL,
			Endpoint:     google.Endpoint,
			Scopes:       []string{gooidc.ScopeOpenID, "email", "profile"},
		},
		issuer: googleIssuer,
	}
}

// Name implements IdentityProvider.
func (p *GoogleProvider) Name() string {
	return db.ProviderGoogle
}

// AuthCodeURL implements IdentityProvider.
func (p *GoogleProvider) AuthCodeURL(state, verifier string) string {
	return p.oauth2Cfg.AuthCodeURL(
		state,
		oauth2.AccessTypeOnline,
		oauth2.S256ChallengeOption(verifier),
	)
}

// Identify implements IdentityProvider. It exchanges the code, verifies the
// returned id_token against Google's published keys and audience, and reads
// the standard claims.
func (p *GoogleProvider) Identify(ctx context.Context, code, verifier string) (*ExternalIdentity, error) {
	token, err := p.oauth2Cfg.Exchange(ctx, code, oauth2.VerifierOption(verifier))
	if err != nil {
		return nil, fmt.Errorf("%w: google: exchanging code: %v", ErrUpstreamAuth, err)
	}

	rawIDToken, ok := token.Extra("id_token").(string)
	if !ok {
		return nil, fmt.Errorf("%w: google: token response missing id_token", ErrUpstreamAuth)
	}

	idVerifier, err := p.idTokenVerifier(ctx)
	if err != nil {
		return nil, err
	}

	idToken, err := idVerifier.Verify(ctx, rawIDToken)
	if err != nil {
		return nil, fmt.Errorf("%w: google: verifying id_token: %v", ErrUpstreamAuth, err)
	}

	var claims struct {
		Email string `json:"email"`
		Name  string `json:"name"`
	}
	if err := idToken.Claims(&claims); err != nil {
		return nil, fmt.Errorf("%w: google: extracting claims: %v", ErrUpstreamAuth, err)
	}

	return &ExternalIdentity{
		Provider: db.ProviderGoogle,
		Subject:  idToken.Subject,
		Email:    claims.Email,
		Name:     claims.Name,
	}, nil
}

// idTokenVerifier performs OIDC discovery once and caches the verifier.
// A failed discovery is retried on the next login.
func (p *GoogleProvider) idTokenVerifier(ctx context.Context) (*gooidc.IDTokenVerifier, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.verifier != nil {
		return p.verifier, nil
	}

	provider, err := gooidc.NewProvider(ctx, p.issuer)
	if err != nil {
		return nil, fmt.Errorf("%w: google: discovering issuer %q: %v", ErrUpstreamAuth, p.issuer, err)
	}

	p.verifier = provider.Verifier(&gooidc.Config{ClientID: p.oauth2Cfg.ClientID})
	return p.verifier, nil
}
