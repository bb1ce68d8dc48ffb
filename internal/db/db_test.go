package db

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func testConfig(t *testing.T, path string) *Config {
	t.Helper()
	return &Config{
		Driver:   "sqlite",
		DSN:      path,
		Logger:   zaptest.NewLogger(t),
		LogLevel: gormlogger.Silent,
	}
}

func TestNewAppliesMigrations(t *testing.T) {
	path := filepath.Join(t.TempDir(), "secrets.db")

	database, err := New(*testConfig(t, path))
	require.NoError(t, err)
	require.NoError(t, Ping(context.Background(), database))

	assert.True(t, database.Migrator().HasTable("accounts"))
	assert.True(t, database.Migrator().HasTable("sessions"))
	assert.True(t, database.Migrator().HasIndex("accounts", "idx_accounts_google_id"))
	require.NoError(t, Close(database))

	// Reopening an already migrated database is a no-op.
	database, err = New(*testConfig(t, path))
	require.NoError(t, err)
	require.NoError(t, Close(database))
}

func TestNewRejectsBadConfig(t *testing.T) {
	_, err := New(Config{Driver: "sqlite", DSN: ":memory:"})
	assert.ErrorContains(t, err, "logger is required")

	cfg := testConfig(t, ":memory:")
	cfg.Driver = "mysql"
	_, err = New(*cfg)
	assert.ErrorContains(t, err, "unsupported driver")
}

func TestEncryptedStringAtRest(t *testing.T) {
	require.NoError(t, InitEncryption("field secret"))

	database, err := New(*testConfig(t, filepath.Join(t.TempDir(), "secrets.db")))
	require.NoError(t, err)
	t.Cleanup(func() { _ = Close(database) })

	username := "alice"
	account := &Account{Username: &username, Password: "salt:hash"}
	require.NoError(t, database.Create(account).Error)

	var raw string
	require.NoError(t, database.Raw("SELECT password FROM accounts WHERE id = ?", account.ID).Scan(&raw).Error)
	assert.NotEmpty(t, raw)
	assert.NotEqual(t, "salt:hash", raw)

	var loaded Account
	require.NoError(t, database.First(&loaded, "id = ?", account.ID).Error)
	assert.Equal(t, EncryptedString("salt:hash"), loaded.Password)
	assert.True(t, loaded.HasLocalPassword())
}

func TestEncryptedStringEmpty(t *testing.T) {
	v, err := EncryptedString("").Value()
	require.NoError(t, err)
	assert.Equal(t, "", v)

	var e EncryptedString
	require.NoError(t, e.Scan(nil))
	assert.Equal(t, EncryptedString(""), e)

	assert.Error(t, e.Scan(42))
}

func TestInitEncryptionRejectsEmptySecret(t *testing.T) {
	assert.Error(t, InitEncryption(""))
}

func TestAccountProviderID(t *testing.T) {
	g := "g-123"
	a := &Account{GoogleID: &g}

	id, ok := a.ProviderID(ProviderGoogle)
	assert.True(t, ok)
	assert.Equal(t, "g-123", id)

	_, ok = a.ProviderID(ProviderFacebook)
	assert.False(t, ok)
	_, ok = a.ProviderID("github")
	assert.False(t, ok)
	assert.False(t, a.HasLocalPassword())
}

func TestAccountSchemaIncludesBaseColumns(t *testing.T) {
	database, err := New(*testConfig(t, filepath.Join(t.TempDir(), "secrets.db")))
	require.NoError(t, err)
	t.Cleanup(func() { _ = Close(database) })

	stmt := &gorm.Statement{DB: database}
	require.NoError(t, stmt.Parse(&Account{}))
	for _, column := range []string{"id", "created_at", "updated_at"} {
		assert.Contains(t, stmt.Schema.DBNames, column)
	}

	account := &Account{DisplayName: "federated only"}
	require.NoError(t, database.Create(account).Error)
	assert.NotEqual(t, uuid.UUID{}, account.ID)
	assert.Equal(t, byte(7), account.ID[6]>>4, "ids are UUID v7")
	assert.False(t, account.CreatedAt.IsZero())

	var count int64
	require.NoError(t, database.Model(&Account{}).Where("id = ?", account.ID).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}
