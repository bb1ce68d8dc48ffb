package web

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/tellnoone/secrets/internal/db"
	"github.com/tellnoone/secrets/internal/repository"
	"github.com/tellnoone/secrets/internal/session"
)

// contextKey is an unexported type for context keys defined in this package.
// Using a custom type prevents collisions with keys defined in other packages.
type contextKey int

const (
	// contextKeyAccount is the context key under which the logged-in
	// *db.Account is stored by RequireAccount.
	contextKeyAccount contextKey = iota
)

// RequireAccount is a middleware that lets the request through only if the
// session names an account that still exists. The account is stored in the
// request context for downstream handlers via accountFromCtx.
//
// A missing or malformed session, or one naming a deleted account, is
// destroyed and the browser is sent to /login. A store failure renders a 500.
func RequireAccount(sessions *session.Manager, accounts repository.AccountRepository, rd *renderer, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			id, ok := sessions.AccountID(ctx)
			if !ok {
				rejectSession(w, r, sessions, logger)
				return
			}

			account, err := accounts.GetByID(ctx, id)
			if err != nil {
				if errors.Is(err, repository.ErrNotFound) {
					logger.Info("session names a missing account", zap.String("account_id", id.String()))
					rejectSession(w, r, sessions, logger)
					return
				}
				logger.Error("failed to load session account",
					zap.String("account_id", id.String()),
					zap.Error(err),
				)
				rd.internalError(w)
				return
			}

			ctx = context.WithValue(ctx, contextKeyAccount, account)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func rejectSession(w http.ResponseWriter, r *http.Request, sessions *session.Manager, logger *zap.Logger) {
	if err := sessions.Logout(r.Context()); err != nil {
		logger.Warn("failed to destroy rejected session", zap.Error(err))
	}
	redirect(w, r, "/login")
}

// RequestLogger returns a Chi-compatible middleware that logs each request
// using the provided zap logger. It logs method, path, status, and latency.
// Chi's middleware.RequestID is expected to run before this middleware so
// that the request ID is available in the context.
func RequestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			logger.Info("http request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Int("bytes", ww.BytesWritten()),
				zap.String("request_id", middleware.GetReqID(r.Context())),
				zap.String("remote_addr", r.RemoteAddr),
			)
		})
	}
}

// accountFromCtx retrieves the account stored by RequireAccount.
// Returns nil outside of gated routes.
func accountFromCtx(ctx context.Context) *db.Account {
	account, _ := ctx.Value(contextKeyAccount).(*db.Account)
	return account
}
