package auth

import (
	"context"
	"fmt"
	"sort"
)

// IdentityProvider is implemented by every federated login backend. The
// flow is the OAuth2 authorization code grant: the browser is sent to
// AuthCodeURL, and the provider redirects back with a code that Identify
// exchanges for a verified identity.
//
// New providers can be added by implementing this interface and adding a
// unique id column for them on accounts.
type IdentityProvider interface {
	// Name is the provider's route segment and account column prefix,
	// e.g. "google" for /auth/google and accounts.google_id.
	Name() string

	// AuthCodeURL returns the provider URL the browser is redirected to.
	// state and verifier must be kept server-side until the callback.
	// Providers without PKCE support ignore verifier.
	AuthCodeURL(state, verifier string) string

	// Identify exchanges an authorization code for the caller's identity.
	// All failures wrap ErrUpstreamAuth.
	Identify(ctx context.Context, code, verifier string) (*ExternalIdentity, error)
}

// ExternalIdentity is what a provider asserts about the logged-in user.
type ExternalIdentity struct {
	Provider string
	Subject  string // provider-scoped stable user id
	Email    string
	Name     string
}

// OAuthConfig is the client registration shared by all providers.
type OAuthConfig struct {
	ClientID     string
	ClientSecret string
	CallbackURL  string
}

// Enabled reports whether the provider has been configured at all.
func (c OAuthConfig) Enabled() bool {
	return c.ClientID != ""
}

// FederatedCallback carries the parameters received in the OAuth2 callback.
type FederatedCallback struct {
	Provider string

	// Code is the authorization code returned by the identity provider.
	Code string

	// State must match SessionState (CSRF protection).
	State string

	// SessionState and Verifier are the values stored in the session when
	// the flow started.
	SessionState string
	Verifier     string

	// Error is the provider's error parameter, set when the user denied
	// consent or the provider failed.
	Error string
}

// Registry resolves providers by name.
type Registry struct {
	providers map[string]IdentityProvider
}

// NewRegistry returns a Registry holding providers. Later duplicates replace
// earlier ones.
func NewRegistry(providers ...IdentityProvider) *Registry {
	r := &Registry{providers: make(map[string]IdentityProvider, len(providers))}
	for _, p := range providers {
		r.providers[p.Name()] = p
	}
	return r
}

// Get returns the provider registered under name.
func (r *Registry) Get(name string) (IdentityProvider, error) {
	p, ok := r.providers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrProviderNotFound, name)
	}
	return p, nil
}

// Names returns the registered provider names in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
