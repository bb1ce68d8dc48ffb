// Package db owns the accounts and sessions schema: connection setup for
// SQLite (modernc, no CGO) or PostgreSQL, embedded golang-migrate
// migrations applied on open, and the encrypted column type.
package db

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	migratedb "github.com/golang-migrate/migrate/v4/database"
	migratepg "github.com/golang-migrate/migrate/v4/database/postgres"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"go.uber.org/zap"
	gormpostgres "gorm.io/driver/postgres"
	gormsqlite "gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	// Registers the pure-Go "sqlite" database/sql driver.
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Config holds the configuration required to open a database connection.
// Driver defaults to "sqlite" if left empty.
type Config struct {
	Driver    string // "sqlite" or "postgres"
	DSN       string
	Logger    *zap.Logger
	LogLevel  gormlogger.LogLevel
	SlowQuery time.Duration // zero means 200ms, negative disables
}

// backend describes how one supported driver is opened and migrated.
type backend struct {
	open    func(dsn string, gormCfg *gorm.Config) (*gorm.DB, error)
	tune    func(*sql.DB)
	migrate func(*sql.DB) (migratedb.Driver, error)
}

var backends = map[string]backend{
	"sqlite": {
		// The *sql.DB is opened with modernc and handed to GORM, so GORM's
		// sqlite dialector never opens a go-sqlite3 connection of its own.
		open: func(dsn string, gormCfg *gorm.Config) (*gorm.DB, error) {
			conn, err := sql.Open("sqlite", dsn)
			if err != nil {
				return nil, err
			}
			return gorm.Open(gormsqlite.Dialector{Conn: conn}, gormCfg)
		},
		// Single writer. Account upserts and session writes serialize here.
		tune: func(conn *sql.DB) { conn.SetMaxOpenConns(1) },
		migrate: func(conn *sql.DB) (migratedb.Driver, error) {
			return migratesqlite.WithInstance(conn, &migratesqlite.Config{})
		},
	},
	"postgres": {
		open: func(dsn string, gormCfg *gorm.Config) (*gorm.DB, error) {
			return gorm.Open(gormpostgres.Open(dsn), gormCfg)
		},
		tune: func(conn *sql.DB) {
			conn.SetMaxOpenConns(25)
			conn.SetMaxIdleConns(5)
			conn.SetConnMaxLifetime(30 * time.Minute)
		},
		migrate: func(conn *sql.DB) (migratedb.Driver, error) {
			return migratepg.WithInstance(conn, &migratepg.Config{})
		},
	},
}

// New opens the database named by cfg, brings the schema up to date and
// returns the handle used by the repositories.
func New(cfg Config) (*gorm.DB, error) {
	if cfg.Logger == nil {
		return nil, errors.New("db: logger is required")
	}
	name := cfg.Driver
	if name == "" {
		name = "sqlite"
	}
	be, ok := backends[name]
	if !ok {
		return nil, fmt.Errorf("db: unsupported driver %q, use \"sqlite\" or \"postgres\"", cfg.Driver)
	}

	database, err := be.open(cfg.DSN, &gorm.Config{
		Logger:         newZapGORMLogger(cfg.Logger, cfg.LogLevel, cfg.SlowQuery),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("db: open %s: %w", name, err)
	}
	conn, err := database.DB()
	if err != nil {
		return nil, fmt.Errorf("db: failed to get sql.DB: %w", err)
	}
	be.tune(conn)

	if err := migrateUp(conn, name, be, cfg.Logger); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("db: migrations failed: %w", err)
	}
	return database, nil
}

// Ping verifies that the database connection is still alive.
func Ping(ctx context.Context, database *gorm.DB) error {
	conn, err := database.DB()
	if err != nil {
		return fmt.Errorf("db: failed to get sql.DB: %w", err)
	}
	return conn.PingContext(ctx)
}

// Close releases the underlying connection pool.
func Close(database *gorm.DB) error {
	conn, err := database.DB()
	if err != nil {
		return fmt.Errorf("db: failed to get sql.DB: %w", err)
	}
	return conn.Close()
}

// migrateUp applies pending up-migrations from the embedded SQL files and
// logs the resulting schema version. ErrNoChange is success.
func migrateUp(conn *sql.DB, name string, be backend, log *zap.Logger) error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("migration source: %w", err)
	}
	drv, err := be.migrate(conn)
	if err != nil {
		return fmt.Errorf("%s migrate driver: %w", name, err)
	}
	m, err := migrate.NewWithInstance("iofs", src, name, drv)
	if err != nil {
		return fmt.Errorf("migrator: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("apply: %w", err)
	}

	version, dirty, err := m.Version()
	if err != nil {
		return fmt.Errorf("schema version: %w", err)
	}
	if dirty {
		return fmt.Errorf("schema version %d is dirty", version)
	}
	log.Info("database schema ready",
		zap.String("driver", name),
		zap.Uint("version", version),
	)
	return nil
}
