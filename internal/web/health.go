package web

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// healthTimeout bounds the readiness probe's database ping.
const healthTimeout = 2 * time.Second

// Healthz handles GET /healthz. It reports 503 when ping fails.
func Healthz(ping func(context.Context) error, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")

		if ping != nil {
			ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
			defer cancel()
			if err := ping(ctx); err != nil {
				logger.Warn("health check failed", zap.Error(err))
				w.WriteHeader(http.StatusServiceUnavailable)
				_, _ = w.Write([]byte("unavailable\n"))
				return
			}
		}

		_, _ = w.Write([]byte("ok\n"))
	}
}
