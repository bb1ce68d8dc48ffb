package repository

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/tellnoone/secrets/internal/db"
)

// newTestDB opens a migrated sqlite database in a per-test directory.
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	require.NoError(t, db.InitEncryption("repository-test-secret"))

	database, err := db.New(db.Config{
		Driver:   "sqlite",
		DSN:      filepath.Join(t.TempDir(), "secrets.db"),
		Logger:   zaptest.NewLogger(t),
		LogLevel: gormlogger.Silent,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close(database) })
	return database
}

func ptr(s string) *string { return &s }
