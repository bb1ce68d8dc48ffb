// Package main implements a one-shot seed command that creates a local
// account directly in the secrets database. It lives inside the module so it
// can access internal/* packages.
//
// Usage:
//
//	go run ./cmd/seed \
//	  --username alice \
//	  --password secret
//
// Environment variables:
//
//	DB_DRIVER     sqlite or postgres (default: sqlite)
//	DATABASE_URL  SQLite file path or Postgres DSN (default: ./secrets.db)
//	SECRET        Field encryption secret; must match the value used by the server
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"

	"go.uber.org/zap"
	gormlogger "gorm.io/gorm/logger"

	"github.com/tellnoone/secrets/internal/auth"
	"github.com/tellnoone/secrets/internal/db"
	"github.com/tellnoone/secrets/internal/repository"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// ─── Flags ────────────────────────────────────────────────────────────────

	username := flag.String("username", "", "Account username (required)")
	password := flag.String("password", "", "Plain-text password (required)")
	flag.Parse()

	if *username == "" {
		return fmt.Errorf("--username is required")
	}
	if *password == "" {
		return fmt.Errorf("--password is required")
	}

	// ─── Config ───────────────────────────────────────────────────────────────

	driver := envOrDefault("DB_DRIVER", "sqlite")
	dsn := envOrDefault("DATABASE_URL", "./secrets.db")

	secret := os.Getenv("SECRET")
	if secret == "" {
		return fmt.Errorf(
			"SECRET is not set\n" +
				"  Set it to the same value used by the server, otherwise the\n" +
				"  stored password hash will be unreadable at login time.",
		)
	}

	// ─── Encryption ───────────────────────────────────────────────────────────

	// InitEncryption must be called before any DB operation so that
	// EncryptedString fields are encoded correctly on write.
	if err := db.InitEncryption(secret); err != nil {
		return fmt.Errorf("init encryption: %w", err)
	}

	// ─── Database ─────────────────────────────────────────────────────────────

	logger, _ := zap.NewDevelopment()

	database, err := db.New(db.Config{
		Driver:   driver,
		DSN:      dsn,
		Logger:   logger,
		LogLevel: gormlogger.Silent, // suppress GORM query logs in seed output
	})
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close(database) //nolint:errcheck

	// ─── Create account ───────────────────────────────────────────────────────

	local := auth.NewLocalAuthProvider(repository.NewAccountRepository(database), auth.DefaultHashParams, logger)

	account, err := local.Register(context.Background(), *username, *password)
	if err != nil {
		if errors.Is(err, auth.ErrDuplicateIdentifier) {
			return fmt.Errorf("an account named %q already exists", *username)
		}
		return fmt.Errorf("create account: %w", err)
	}

	fmt.Printf("✓ Account created\n")
	fmt.Printf("  ID:       %s\n", account.ID)
	fmt.Printf("  Username: %s\n", *account.Username)

	return nil
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
