package auth

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	gormlogger "gorm.io/gorm/logger"

	"github.com/tellnoone/secrets/internal/db"
	"github.com/tellnoone/secrets/internal/repository"
)

// cheapParams keeps Argon2 fast in tests.
var cheapParams = HashParams{Time: 1, Memory: 1024, Threads: 1, KeyLen: 16, SaltLen: 8}

func newTestAccounts(t *testing.T) repository.AccountRepository {
	t.Helper()
	require.NoError(t, db.InitEncryption("auth-test-secret"))

	database, err := db.New(db.Config{
		Driver:   "sqlite",
		DSN:      filepath.Join(t.TempDir(), "secrets.db"),
		Logger:   zaptest.NewLogger(t),
		LogLevel: gormlogger.Silent,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close(database) })

	return repository.NewAccountRepository(database)
}
