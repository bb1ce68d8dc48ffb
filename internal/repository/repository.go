// Package repository persists accounts and sessions through GORM. Methods
// return ErrNotFound or ErrConflict for the conditions callers are expected
// to branch on; any other error is an infrastructure failure.
package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/tellnoone/secrets/internal/db"
)

// Profile holds the provider-supplied attributes copied onto an account
// when it is first created from a federated login.
type Profile struct {
	Email string
	Name  string
}

// SecretEntry is one row of the shared secrets wall.
type SecretEntry struct {
	AccountID uuid.UUID
	Text      string
}

// AccountRepository is the account store.
type AccountRepository interface {
	// CreateLocal inserts an account that has a username. A taken username
	// yields ErrConflict and leaves the existing account untouched.
	CreateLocal(ctx context.Context, account *db.Account) error

	GetByID(ctx context.Context, id uuid.UUID) (*db.Account, error)
	GetByUsername(ctx context.Context, username string) (*db.Account, error)

	// FindOrCreateByProvider returns the account linked to subject at
	// provider, creating it atomically if none exists. created reports
	// whether this call inserted the row.
	FindOrCreateByProvider(ctx context.Context, provider, subject string, profile Profile) (account *db.Account, created bool, err error)

	// SetSecret overwrites the secret of the account with the given id.
	SetSecret(ctx context.Context, id uuid.UUID, secret string) error

	// ListSecrets returns every non-null secret in account creation order.
	ListSecrets(ctx context.Context) ([]SecretEntry, error)
}

// SessionRepository stores scs session payloads. It satisfies scs.CtxStore.
type SessionRepository interface {
	Find(token string) ([]byte, bool, error)
	Commit(token string, b []byte, expiry time.Time) error
	Delete(token string) error
	FindCtx(ctx context.Context, token string) ([]byte, bool, error)
	CommitCtx(ctx context.Context, token string, b []byte, expiry time.Time) error
	DeleteCtx(ctx context.Context, token string) error

	// DeleteExpired removes every session past its expiry and returns how
	// many rows were deleted.
	DeleteExpired(ctx context.Context) (int64, error)
}
