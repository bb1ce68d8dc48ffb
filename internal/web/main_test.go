package web

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/tellnoone/secrets/internal/auth"
	"github.com/tellnoone/secrets/internal/db"
	"github.com/tellnoone/secrets/internal/repository"
	"github.com/tellnoone/secrets/internal/secretbox"
	"github.com/tellnoone/secrets/internal/session"
)

var cheapParams = auth.HashParams{Time: 1, Memory: 1024, Threads: 1, KeyLen: 16, SaltLen: 8}

// stubProvider asserts the identity encoded in the code: "ok-<subject>"
// identifies <subject>, anything else is rejected.
type stubProvider struct {
	name string
}

func (p stubProvider) Name() string { return p.name }

func (p stubProvider) AuthCodeURL(state, _ string) string {
	return "https://idp.example/" + p.name + "/authorize?state=" + state
}

func (p stubProvider) Identify(_ context.Context, code, verifier string) (*auth.ExternalIdentity, error) {
	subject, ok := strings.CutPrefix(code, "ok-")
	if !ok {
		return nil, auth.ErrUpstreamAuth
	}
	if p.name == "google" && verifier == "" {
		return nil, errors.New("missing verifier")
	}
	return &auth.ExternalIdentity{Provider: p.name, Subject: subject, Name: "User " + subject}, nil
}

// failingAccounts overrides GetByID to simulate a broken store.
type failingAccounts struct {
	repository.AccountRepository
	err error
}

func (f failingAccounts) GetByID(context.Context, uuid.UUID) (*db.Account, error) {
	return nil, f.err
}

type testEnv struct {
	database *gorm.DB
	handler  http.Handler
	sessions *session.Manager
	accounts repository.AccountRepository
	svc      *auth.AuthService
}

type envOption func(*RouterConfig)

func withPing(ping func(context.Context) error) envOption {
	return func(c *RouterConfig) { c.Ping = ping }
}

func withAccounts(wrap func(repository.AccountRepository) repository.AccountRepository) envOption {
	return func(c *RouterConfig) { c.Accounts = wrap(c.Accounts) }
}

func newTestEnv(t *testing.T, opts ...envOption) *testEnv {
	t.Helper()
	logger := zaptest.NewLogger(t)

	require.NoError(t, db.InitEncryption("web-test-secret"))
	database, err := db.New(db.Config{
		Driver:   "sqlite",
		DSN:      filepath.Join(t.TempDir(), "secrets.db"),
		Logger:   logger,
		LogLevel: gormlogger.Silent,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close(database) })

	accounts := repository.NewAccountRepository(database)

	key, err := secretbox.DeriveKey("web-session-secret", session.KeyPurpose)
	require.NoError(t, err)
	store, err := session.NewSealedStore(repository.NewSessionRepository(database), key)
	require.NoError(t, err)
	sessions := session.New(store, session.Config{}, logger)

	svc := auth.NewAuthService(
		auth.NewLocalAuthProvider(accounts, cheapParams, logger),
		auth.NewLinker(accounts, logger),
		auth.NewRegistry(stubProvider{name: "google"}, stubProvider{name: "facebook"}),
	)

	cfg := RouterConfig{
		AuthService: svc,
		Sessions:    sessions,
		Accounts:    accounts,
		Logger:      logger,
		Ping:        func(ctx context.Context) error { return db.Ping(ctx, database) },
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	handler, err := NewRouter(cfg)
	require.NoError(t, err)

	return &testEnv{
		database: database,
		handler:  handler,
		sessions: sessions,
		accounts: accounts,
		svc:      svc,
	}
}

// browser is a cookie-keeping client that does not follow redirects.
type browser struct {
	t      *testing.T
	base   string
	client *http.Client
}

func (e *testEnv) newBrowser(t *testing.T) *browser {
	t.Helper()
	srv := httptest.NewServer(e.handler)
	t.Cleanup(srv.Close)
	return newBrowser(t, srv.URL)
}

func newBrowser(t *testing.T, base string) *browser {
	t.Helper()
	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	return &browser{
		t:    t,
		base: base,
		client: &http.Client{
			Jar: jar,
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	}
}

// response is the part of an HTTP response the tests look at.
type response struct {
	status   int
	location string
	body     string
}

func (b *browser) do(req *http.Request) response {
	b.t.Helper()
	resp, err := b.client.Do(req)
	require.NoError(b.t, err)
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	require.NoError(b.t, err)

	return response{
		status:   resp.StatusCode,
		location: resp.Header.Get("Location"),
		body:     string(data),
	}
}

func (b *browser) get(path string) response {
	b.t.Helper()
	req, err := http.NewRequest(http.MethodGet, b.base+path, nil)
	require.NoError(b.t, err)
	return b.do(req)
}

func (b *browser) post(path string, form url.Values) response {
	b.t.Helper()
	req, err := http.NewRequest(http.MethodPost, b.base+path, strings.NewReader(form.Encode()))
	require.NoError(b.t, err)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return b.do(req)
}
