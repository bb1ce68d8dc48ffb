package auth

import "errors"

// Sentinel errors returned by auth providers and the auth service.
// Callers should use errors.Is for comparison.
var (
	// ErrInvalidCredentials is returned when username/password do not match,
	// including when the username is unknown.
	ErrInvalidCredentials = errors.New("auth: invalid credentials")

	// ErrDuplicateIdentifier is returned when registering a username that is
	// already taken.
	ErrDuplicateIdentifier = errors.New("auth: identifier already registered")

	// ErrInvalidInput is returned when a username or password is empty or
	// exceeds the accepted length.
	ErrInvalidInput = errors.New("auth: invalid input")

	// ErrProviderNotFound is returned when no identity provider is
	// registered under the requested name.
	ErrProviderNotFound = errors.New("auth: identity provider not found")

	// ErrStateMismatch is returned when the OAuth2 state parameter does not
	// match the value stored in the session (CSRF protection).
	ErrStateMismatch = errors.New("auth: oauth state mismatch")

	// ErrUpstreamAuth wraps every failure reported by, or while talking to,
	// an external identity provider: denied consent, failed code exchange,
	// invalid id_token, unusable profile.
	ErrUpstreamAuth = errors.New("auth: upstream identity provider failure")
)
