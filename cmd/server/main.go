package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	gormlogger "gorm.io/gorm/logger"

	"github.com/tellnoone/secrets/internal/auth"
	"github.com/tellnoone/secrets/internal/db"
	"github.com/tellnoone/secrets/internal/repository"
	"github.com/tellnoone/secrets/internal/secretbox"
	"github.com/tellnoone/secrets/internal/session"
	"github.com/tellnoone/secrets/internal/web"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// shutdownTimeout bounds how long in-flight requests may take to finish
// after a termination signal.
const shutdownTimeout = 10 * time.Second

type config struct {
	port            string
	dbDriver        string
	dbDSN           string
	secret          string
	sessionSecret   string
	sessionLifetime time.Duration
	secureCookies   bool
	logLevel        string

	google   auth.OAuthConfig
	facebook auth.OAuthConfig
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cfg := &config{}

	root := &cobra.Command{
		Use:   "secrets-server",
		Short: "Secrets server: an anonymous secrets wall",
		Long: `Secrets server lets visitors register or log in with a username and
password, Google or Facebook, and post one anonymous secret to a public wall.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), cfg)
		},
	}

	root.AddCommand(newVersionCmd())
	root.AddCommand(newMigrateCmd(cfg))

	f := root.PersistentFlags()
	f.StringVar(&cfg.port, "port", envOrDefault("PORT", "3000"), "HTTP listen port")
	f.StringVar(&cfg.dbDriver, "db-driver", envOrDefault("DB_DRIVER", "sqlite"), "Database driver (sqlite or postgres)")
	f.StringVar(&cfg.dbDSN, "db-dsn", envOrDefault("DATABASE_URL", "./secrets.db"), "Database DSN or file path for SQLite")
	f.StringVar(&cfg.secret, "secret", envOrDefault("SECRET", ""), "Secret for encrypting password hashes at rest (required)")
	f.StringVar(&cfg.sessionSecret, "session-secret", envOrDefault("SESSION_SECRET", ""), "Secret for sealing session data (required)")
	f.DurationVar(&cfg.sessionLifetime, "session-lifetime", envDuration("SESSION_LIFETIME", session.DefaultLifetime), "Absolute session lifetime")
	f.BoolVar(&cfg.secureCookies, "secure-cookies", envBool("SECURE_COOKIES", false), "Set the Secure flag on the session cookie (HTTPS deployments)")
	f.StringVar(&cfg.logLevel, "log-level", envOrDefault("LOG_LEVEL", "info"), "Log level (debug, info, warn, error)")

	f.StringVar(&cfg.google.ClientID, "google-client-id", envOrDefault("GOOGLE_CLIENT_ID", ""), "Google OAuth client id (empty disables Google login)")
	f.StringVar(&cfg.google.ClientSecret, "google-client-secret", envOrDefault("GOOGLE_CLIENT_SECRET", ""), "Google OAuth client secret")
	f.StringVar(&cfg.google.CallbackURL, "google-callback-url", envOrDefault("GOOGLE_CALLBACK_URL", "http://localhost:3000/auth/google/secrets"), "Google OAuth redirect URL")
	f.StringVar(&cfg.facebook.ClientID, "facebook-app-id", envOrDefault("FACEBOOK_APP_ID", ""), "Facebook app id (empty disables Facebook login)")
	f.StringVar(&cfg.facebook.ClientSecret, "facebook-app-secret", envOrDefault("FACEBOOK_APP_SECRET", ""), "Facebook app secret")
	f.StringVar(&cfg.facebook.CallbackURL, "facebook-callback-url", envOrDefault("FACEBOOK_CALLBACK_URL", "http://localhost:3000/auth/facebook/secrets"), "Facebook OAuth redirect URL")

	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("secrets-server %s (commit: %s, built: %s)\n", version, commit, date)
		},
	}
}

func newMigrateCmd(cfg *config) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := buildLogger(cfg.logLevel)
			if err != nil {
				return fmt.Errorf("failed to build logger: %w", err)
			}
			defer logger.Sync() //nolint:errcheck

			database, err := db.New(db.Config{
				Driver:   cfg.dbDriver,
				DSN:      cfg.dbDSN,
				Logger:   logger,
				LogLevel: gormLogLevel(cfg.logLevel),
			})
			if err != nil {
				return err
			}
			logger.Info("database is up to date", zap.String("db_driver", cfg.dbDriver))
			return db.Close(database)
		},
	}
}

// validate checks the settings run cannot start without.
func (c *config) validate() error {
	if c.secret == "" {
		return fmt.Errorf("secret is required: set --secret or SECRET")
	}
	if c.sessionSecret == "" {
		return fmt.Errorf("session secret is required: set --session-secret or SESSION_SECRET")
	}
	if c.sessionLifetime <= 0 {
		return fmt.Errorf("session lifetime must be positive, got %s", c.sessionLifetime)
	}
	if _, err := strconv.Atoi(c.port); err != nil {
		return fmt.Errorf("invalid port %q: %w", c.port, err)
	}
	return nil
}

func run(ctx context.Context, cfg *config) error {
	logger, err := buildLogger(cfg.logLevel)
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}
	defer logger.Sync() //nolint:errcheck

	if err := cfg.validate(); err != nil {
		return err
	}

	providers := buildProviders(cfg)

	logger.Info("starting secrets server",
		zap.String("version", version),
		zap.String("port", cfg.port),
		zap.String("db_driver", cfg.dbDriver),
		zap.String("log_level", cfg.logLevel),
		zap.Strings("providers", providers.Names()),
	)

	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// 1. Database. Encryption must be initialized before any EncryptedString
	//    column is read or written.
	if err := db.InitEncryption(cfg.secret); err != nil {
		return fmt.Errorf("init encryption: %w", err)
	}

	database, err := db.New(db.Config{
		Driver:   cfg.dbDriver,
		DSN:      cfg.dbDSN,
		Logger:   logger,
		LogLevel: gormLogLevel(cfg.logLevel),
	})
	if err != nil {
		return err
	}
	defer func() {
		if err := db.Close(database); err != nil {
			logger.Warn("failed to close database", zap.Error(err))
		}
	}()

	accounts := repository.NewAccountRepository(database)
	sessionRows := repository.NewSessionRepository(database)

	// 2. Sessions, with payloads sealed under a key derived from the session secret.
	sessionKey, err := secretbox.DeriveKey(cfg.sessionSecret, session.KeyPurpose)
	if err != nil {
		return fmt.Errorf("derive session key: %w", err)
	}
	store, err := session.NewSealedStore(sessionRows, sessionKey)
	if err != nil {
		return err
	}
	sessions := session.New(store, session.Config{
		Lifetime: cfg.sessionLifetime,
		Secure:   cfg.secureCookies,
	}, logger)

	sweeper, err := session.NewSweeper(sessionRows, session.DefaultSweepInterval, logger)
	if err != nil {
		return err
	}
	if err := sweeper.Start(); err != nil {
		return err
	}
	defer func() {
		if err := sweeper.Stop(); err != nil {
			logger.Warn("failed to stop session sweeper", zap.Error(err))
		}
	}()

	// 3. Auth.
	authService := auth.NewAuthService(
		auth.NewLocalAuthProvider(accounts, auth.DefaultHashParams, logger),
		auth.NewLinker(accounts, logger),
		providers,
	)

	// 4. HTTP.
	router, err := web.NewRouter(web.RouterConfig{
		AuthService: authService,
		Sessions:    sessions,
		Accounts:    accounts,
		Logger:      logger,
		Ping:        func(ctx context.Context) error { return db.Ping(ctx, database) },
	})
	if err != nil {
		return err
	}

	srv := newHTTPServer(ctx, cfg.port, router)

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("http server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	}

	logger.Info("shutting down secrets server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http server shutdown: %w", err)
	}
	return nil
}

// newHTTPServer builds the server for router. Request contexts carry the
// values of ctx but not its cancellation; Shutdown drains them.
func newHTTPServer(ctx context.Context, port string, router http.Handler) *http.Server {
	base := context.WithoutCancel(ctx)
	return &http.Server{
		Addr:              net.JoinHostPort("", port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       2 * time.Minute,
		BaseContext:       func(net.Listener) context.Context { return base },
	}
}

// buildProviders registers every federated provider that has a client id.
func buildProviders(cfg *config) *auth.Registry {
	var providers []auth.IdentityProvider
	if cfg.google.Enabled() {
		providers = append(providers, auth.NewGoogleProvider(cfg.google))
	}
	if cfg.facebook.Enabled() {
		providers = append(providers, auth.NewFacebookProvider(cfg.facebook))
	}
	return auth.NewRegistry(providers...)
}

func buildLogger(level string) (*zap.Logger, error) {
	var cfg zap.Config

	switch level {
	case "debug":
		cfg = zap.NewDevelopmentConfig()
	default:
		cfg = zap.NewProductionConfig()
	}

	switch level {
	case "debug":
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	case "info":
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	case "warn":
		cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	case "error":
		cfg.Level = zap.NewAtomicLevelAt(zap.ErrorLevel)
	default:
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}

	return cfg.Build()
}

// gormLogLevel maps the server log level onto GORM's. SQL statements are
// only traced at debug.
func gormLogLevel(level string) gormlogger.LogLevel {
	switch level {
	case "debug":
		return gormlogger.Info
	case "error":
		return gormlogger.Error
	default:
		return gormlogger.Warn
	}
}

func envOrDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envBool(key string, defaultVal bool) bool {
	v, err := strconv.ParseBool(os.Getenv(key))
	if err != nil {
		return defaultVal
	}
	return v
}

func envDuration(key string, defaultVal time.Duration) time.Duration {
	v, err := time.ParseDuration(os.Getenv(key))
	if err != nil {
		return defaultVal
	}
	return v
}
