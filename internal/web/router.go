package web

import (
	"context"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/tellnoone/secrets/internal/auth"
	"github.com/tellnoone/secrets/internal/repository"
	"github.com/tellnoone/secrets/internal/session"
)

// RouterConfig holds all dependencies needed to build the HTTP router.
// It is populated in main.go after all components are initialized and
// passed to NewRouter as a single struct.
type RouterConfig struct {
	AuthService *auth.AuthService
	Sessions    *session.Manager
	Accounts    repository.AccountRepository
	Logger      *zap.Logger

	// Ping checks the database for /healthz. Nil always reports healthy.
	Ping func(context.Context) error

	// Metrics is created by NewRouter when nil.
	Metrics *Metrics
}

// NewRouter builds and returns the fully configured Chi router.
func NewRouter(cfg RouterConfig) (http.Handler, error) {
	if cfg.Metrics == nil {
		cfg.Metrics = NewMetrics()
	}

	rd, err := newRenderer(cfg.Logger.Named("web"))
	if err != nil {
		return nil, fmt.Errorf("web: building renderer: %w", err)
	}

	r := chi.NewRouter()

	// --- Global middleware ---
	// RequestID generates a unique ID for each request, used in logs and
	// response headers for tracing.
	r.Use(middleware.RequestID)

	// RealIP extracts the real client IP from X-Forwarded-For or X-Real-IP
	// headers when the server runs behind a reverse proxy.
	r.Use(middleware.RealIP)

	// RequestLogger logs every request with method, path, status and latency.
	r.Use(RequestLogger(cfg.Logger))

	// Recoverer catches panics in handlers, logs them, and returns a 500
	// instead of crashing the server.
	r.Use(middleware.Recoverer)

	r.Use(cfg.Metrics.Middleware)

	// Sessions are loaded before and saved after every handler.
	r.Use(cfg.Sessions.Middleware)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) { rd.notFound(w) })

	// --- Initialize handlers ---
	authHandler := NewAuthHandler(cfg.AuthService, cfg.Sessions, cfg.Metrics, rd, cfg.Logger)
	secretsHandler := NewSecretsHandler(cfg.Accounts, cfg.Sessions, rd, cfg.Logger)

	// --- Operational routes ---
	r.Get("/healthz", Healthz(cfg.Ping, cfg.Logger.Named("health")))
	r.Method(http.MethodGet, "/metrics", cfg.Metrics.Handler())
	r.Method(http.MethodGet, "/static/*", staticHandler())

	// --- Public routes ---
	r.Group(func(r chi.Router) {
		r.Get("/", secretsHandler.Home)
		r.Get("/secrets", secretsHandler.List)

		r.Get("/login", authHandler.LoginForm)
		r.Post("/login", authHandler.Login)
		r.Get("/register", authHandler.RegisterForm)
		r.Post("/register", authHandler.Register)
		r.Get("/logout", authHandler.Logout)

		// Federated flow is public because the user is not yet authenticated.
		r.Get("/auth/{provider}", authHandler.FederatedLogin)
		r.Get("/auth/{provider}/secrets", authHandler.FederatedCallback)
	})

	// --- Gated routes (logged-in account required) ---
	r.Group(func(r chi.Router) {
		r.Use(RequireAccount(cfg.Sessions, cfg.Accounts, rd, cfg.Logger.Named("gate")))

		r.Get("/submit", secretsHandler.SubmitForm)
		r.Post("/submit", secretsHandler.Submit)
	})

	return r, nil
}
