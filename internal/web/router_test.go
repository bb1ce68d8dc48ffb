package web

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/steinfletcher/apitest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tellnoone/secrets/internal/repository"
	"github.com/tellnoone/secrets/internal/session"
)

// bodyContains asserts that the response body contains every fragment.
func bodyContains(fragments ...string) apitest.Assert {
	return func(res *http.Response, _ *http.Request) error {
		b, err := io.ReadAll(res.Body)
		if err != nil {
			return err
		}
		for _, f := range fragments {
			if !strings.Contains(string(b), f) {
				return fmt.Errorf("body does not contain %q", f)
			}
		}
		return nil
	}
}

func TestPublicPages(t *testing.T) {
	env := newTestEnv(t)

	apitest.Handler(env.handler).Get("/").Expect(t).Status(http.StatusOK).
		Assert(bodyContains("/register", "/login")).End()
	apitest.Handler(env.handler).Get("/login").Expect(t).Status(http.StatusOK).
		Assert(bodyContains(`action="/login"`, "/auth/google", "/auth/facebook")).End()
	apitest.Handler(env.handler).Get("/login").Query("error", "1").Expect(t).Status(http.StatusOK).
		Assert(bodyContains("Incorrect username or password.")).End()
	apitest.Handler(env.handler).Get("/register").Query("error", "taken").Expect(t).Status(http.StatusOK).
		Assert(bodyContains("already registered")).End()
	apitest.Handler(env.handler).Get("/secrets").Expect(t).Status(http.StatusOK).
		Assert(bodyContains("No secrets yet.")).End()
	apitest.Handler(env.handler).Get("/static/styles.css").Expect(t).Status(http.StatusOK).End()
	apitest.Handler(env.handler).Get("/nope").Expect(t).Status(http.StatusNotFound).End()
}

func TestSubmitGate(t *testing.T) {
	env := newTestEnv(t)

	// no session
	apitest.Handler(env.handler).Get("/submit").Expect(t).
		Status(http.StatusFound).Header("Location", "/login").End()
	apitest.Handler(env.handler).Post("/submit").FormData("secret", "x").Expect(t).
		Status(http.StatusFound).Header("Location", "/login").End()

	// unknown token
	apitest.Handler(env.handler).Get("/submit").Cookie(session.DefaultCookieName, "forged").Expect(t).
		Status(http.StatusFound).Header("Location", "/login").End()

	// valid session
	account, err := env.svc.Register(context.Background(), "alice", "pw1")
	require.NoError(t, err)
	token, err := env.sessions.CreateSession(context.Background(), account.ID)
	require.NoError(t, err)

	apitest.Handler(env.handler).Get("/submit").Cookie(session.DefaultCookieName, token).Expect(t).
		Status(http.StatusOK).Assert(bodyContains(`name="secret"`)).End()
}

func TestSubmitGate_MissingAccount(t *testing.T) {
	env := newTestEnv(t)

	token, err := env.sessions.CreateSession(context.Background(), uuid.New())
	require.NoError(t, err)

	apitest.Handler(env.handler).Get("/submit").Cookie(session.DefaultCookieName, token).Expect(t).
		Status(http.StatusFound).Header("Location", "/login").End()

	_, err = env.sessions.ResolveSession(context.Background(), token)
	assert.ErrorIs(t, err, session.ErrSessionInvalid)
}

func TestSubmitGate_StoreError(t *testing.T) {
	env := newTestEnv(t, withAccounts(func(a repository.AccountRepository) repository.AccountRepository {
		return failingAccounts{AccountRepository: a, err: errors.New("db down")}
	}))

	token, err := env.sessions.CreateSession(context.Background(), uuid.New())
	require.NoError(t, err)

	apitest.Handler(env.handler).Get("/submit").Cookie(session.DefaultCookieName, token).Expect(t).
		Status(http.StatusInternalServerError).Assert(bodyContains("500")).End()

	// the session survives a store error
	_, err = env.sessions.ResolveSession(context.Background(), token)
	assert.NoError(t, err)
}

func TestRegister(t *testing.T) {
	env := newTestEnv(t)

	apitest.Handler(env.handler).Post("/register").
		FormData("username", "alice").FormData("password", "pw1").
		Expect(t).Status(http.StatusFound).Header("Location", "/secrets").
		CookiePresent(session.DefaultCookieName).End()

	apitest.Handler(env.handler).Post("/register").
		FormData("username", "alice").FormData("password", "other").
		Expect(t).Status(http.StatusFound).Header("Location", "/register?error=taken").End()

	apitest.Handler(env.handler).Post("/register").
		FormData("username", "bob").
		Expect(t).Status(http.StatusFound).Header("Location", "/register?error=invalid").End()

	// the original password still works
	_, err := env.svc.LoginLocal(context.Background(), "alice", "pw1")
	assert.NoError(t, err)
}

func TestLogin(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.svc.Register(context.Background(), "alice", "pw1")
	require.NoError(t, err)

	apitest.Handler(env.handler).Post("/login").
		FormData("username", "alice").FormData("password", "pw1").
		Expect(t).Status(http.StatusFound).Header("Location", "/secrets").
		CookiePresent(session.DefaultCookieName).End()

	for name, form := range map[string]url.Values{
		"wrong password": {"username": {"alice"}, "password": {"nope"}},
		"unknown user":   {"username": {"bob"}, "password": {"pw1"}},
		"empty fields":   {},
	} {
		t.Run(name, func(t *testing.T) {
			req := apitest.Handler(env.handler).Post("/login")
			for k, v := range form {
				req = req.FormData(k, v...)
			}
			req.Expect(t).Status(http.StatusFound).Header("Location", "/login?error=1").End()
		})
	}
}

func TestLocalScenario(t *testing.T) {
	env := newTestEnv(t)
	b := env.newBrowser(t)

	res := b.post("/register", url.Values{"username": {"alice"}, "password": {"pw1"}})
	require.Equal(t, http.StatusFound, res.status)
	assert.Equal(t, "/secrets", res.location)

	res = b.get("/logout")
	assert.Equal(t, http.StatusFound, res.status)
	assert.Equal(t, "/", res.location)

	res = b.post("/login", url.Values{"username": {"alice"}, "password": {"wrong"}})
	assert.Equal(t, "/login?error=1", res.location)

	res = b.post("/login", url.Values{"username": {"alice"}, "password": {"pw1"}})
	assert.Equal(t, "/secrets", res.location)

	res = b.get("/submit")
	require.Equal(t, http.StatusOK, res.status)
	assert.Contains(t, res.body, `name="secret"`)

	res = b.post("/submit", url.Values{"secret": {"   "}})
	assert.Equal(t, "/submit", res.location)

	res = b.post("/submit", url.Values{"secret": {"I like cats"}})
	assert.Equal(t, "/secrets", res.location)

	res = b.get("/secrets")
	require.Equal(t, http.StatusOK, res.status)
	assert.Contains(t, res.body, "I like cats")
	assert.NotContains(t, res.body, "alice")

	res = b.get("/logout")
	assert.Equal(t, "/", res.location)

	res = b.get("/submit")
	assert.Equal(t, http.StatusFound, res.status)
	assert.Equal(t, "/login", res.location)

	// the wall stays public
	res = b.get("/secrets")
	assert.Equal(t, http.StatusOK, res.status)
	assert.Contains(t, res.body, "I like cats")
}

func TestSubmitOverwritesSecret(t *testing.T) {
	env := newTestEnv(t)
	b := env.newBrowser(t)

	b.post("/register", url.Values{"username": {"alice"}, "password": {"pw1"}})
	b.post("/submit", url.Values{"secret": {"first"}})
	b.post("/submit", url.Values{"secret": {"second"}})

	entries, err := env.accounts.ListSecrets(context.Background())
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "second", entries[0].Text)
}

func TestLogoutWithoutSession(t *testing.T) {
	env := newTestEnv(t)

	apitest.Handler(env.handler).Get("/logout").Expect(t).
		Status(http.StatusFound).Header("Location", "/").End()
}

func TestHealthz(t *testing.T) {
	env := newTestEnv(t)
	apitest.Handler(env.handler).Get("/healthz").Expect(t).Status(http.StatusOK).Body("ok\n").End()

	down := newTestEnv(t, withPing(func(context.Context) error { return errors.New("db down") }))
	apitest.Handler(down.handler).Get("/healthz").Expect(t).Status(http.StatusServiceUnavailable).End()
}

func TestMetrics(t *testing.T) {
	env := newTestEnv(t)

	apitest.Handler(env.handler).Get("/login").Expect(t).Status(http.StatusOK).End()
	apitest.Handler(env.handler).Get("/metrics").Expect(t).Status(http.StatusOK).
		Assert(bodyContains(`secrets_http_requests_total{method="GET",route="/login",status="200"} 1`)).End()
}
