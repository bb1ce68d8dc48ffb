package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/facebook"

	"github.com/tellnoone/secrets/internal/db"
)

// facebookGraphURL serves the /me profile lookup.
const facebookGraphURL = "https://graph.facebook.com"

// maxProfileBytes caps the Graph API response body.
const maxProfileBytes = 1 << 20

// FacebookProvider implements IdentityProvider with Facebook Login. Facebook
// issues no id_token for this flow, so the identity is read from the Graph
// API with the freshly issued access token.
type FacebookProvider struct {
	oauth2Cfg oauth2.Config
	graphURL  string
}

// NewFacebookProvider creates a FacebookProvider for the given app
// registration.
func NewFacebookProvider(cfg OAuthConfig) *FacebookProvider {
	return &FacebookProvider{
		oauth2Cfg: oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.CallbackURL,
			Endpoint:     facebook.Endpoint,
			Scopes:       []string{"public_profile", "email"},
		},
		graphURL: facebookGraphURL,
	}
}

// Name implements IdentityProvider.
func (p *FacebookProvider) Name() string {
	return db.ProviderFacebook
}

// AuthCodeURL implements IdentityProvider. verifier is not used.
func (p *FacebookProvider) AuthCodeURL(state, _ string) string {
	return p.oauth2Cfg.AuthCodeURL(state)
}

// Identify implements IdentityProvider.
func (p *FacebookProvider) Identify(ctx context.Context, code, _ string) (*ExternalIdentity, error) {
	token, err := p.oauth2Cfg.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("%w: facebook: exchanging code: %v", ErrUpstreamAuth, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.graphURL+"/me?fields=id,name,email", nil)
	if err != nil {
		return nil, fmt.Errorf("facebook: building profile request: %w", err)
	}

	resp, err := p.oauth2Cfg.Client(ctx, token).Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: facebook: fetching profile: %v", ErrUpstreamAuth, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: facebook: profile request returned %s", ErrUpstreamAuth, resp.Status)
	}

	var profile struct {
		ID    string `json:"id"`
		Name  string `json:"name"`
		Email string `json:"email"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxProfileBytes)).Decode(&profile); err != nil {
		return nil, fmt.Errorf("%w: facebook: decoding profile: %v", ErrUpstreamAuth, err)
	}
	if profile.ID == "" {
		return nil, fmt.Errorf("%w: facebook: profile has no id", ErrUpstreamAuth)
	}

	return &ExternalIdentity{
		Provider: db.ProviderFacebook,
		Subject:  profile.ID,
		Email:    profile.Email,
		Name:     profile.Name,
	}, nil
}
