package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tellnoone/secrets/internal/db"
)

// gormAccountRepository is the GORM implementation of AccountRepository.
type gormAccountRepository struct {
	db *gorm.DB
}

// NewAccountRepository returns an AccountRepository backed by the provided *gorm.DB.
func NewAccountRepository(db *gorm.DB) AccountRepository {
	return &gormAccountRepository{db: db}
}

// CreateLocal inserts account unless its username is already taken. The
// conflict is resolved by the unique index rather than a prior lookup, so two
// concurrent registrations of one username cannot both succeed.
func (r *gormAccountRepository) CreateLocal(ctx context.Context, account *db.Account) error {
	if account.Username == nil || *account.Username == "" {
		return fmt.Errorf("accounts: create local: username is required")
	}

	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "username"}},
			DoNothing: true,
		}).
		Create(account)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrDuplicatedKey) {
			return ErrConflict
		}
		return fmt.Errorf("accounts: create local: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrConflict
	}
	return nil
}

// GetByID retrieves an account by its UUID. Returns ErrNotFound if no record exists.
func (r *gormAccountRepository) GetByID(ctx context.Context, id uuid.UUID) (*db.Account, error) {
	var account db.Account
	err := r.db.WithContext(ctx).First(&account, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("accounts: get by id: %w", err)
	}
	return &account, nil
}

// GetByUsername retrieves an account by its local username. Returns
// ErrNotFound if no record exists.
func (r *gormAccountRepository) GetByUsername(ctx context.Context, username string) (*db.Account, error) {
	var account db.Account
	err := r.db.WithContext(ctx).First(&account, "username = ?", username).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("accounts: get by username: %w", err)
	}
	return &account, nil
}

// FindOrCreateByProvider is an upsert on the provider's unique id column:
// INSERT ... ON CONFLICT DO NOTHING followed by a read of whichever row now
// owns subject. Concurrent first logins for one subject all observe the same
// account.
func (r *gormAccountRepository) FindOrCreateByProvider(ctx context.Context, provider, subject string, profile Profile) (*db.Account, bool, error) {
	column, err := providerColumn(provider)
	if err != nil {
		return nil, false, err
	}
	if subject == "" {
		return nil, false, fmt.Errorf("accounts: find or create %s: subject is required", provider)
	}

	candidate := &db.Account{
		DisplayName: profile.Name,
		Email:       profile.Email,
	}
	switch provider {
	case db.ProviderGoogle:
		candidate.GoogleID = &subject
	case db.ProviderFacebook:
		candidate.FacebookID = &subject
	}

	tx := r.db.WithContext(ctx)

	result := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: column}},
		DoNothing: true,
	}).Create(candidate)
	if result.Error != nil && !errors.Is(result.Error, gorm.ErrDuplicatedKey) {
		return nil, false, fmt.Errorf("accounts: find or create %s: %w", provider, result.Error)
	}
	created := result.Error == nil && result.RowsAffected == 1

	var account db.Account
	if err := tx.First(&account, column+" = ?", subject).Error; err != nil {
		return nil, false, fmt.Errorf("accounts: find or create %s: reading linked account: %w", provider, err)
	}
	return &account, created, nil
}

// SetSecret overwrites the account's secret. Returns ErrNotFound if the
// account does not exist.
func (r *gormAccountRepository) SetSecret(ctx context.Context, id uuid.UUID, secret string) error {
	result := r.db.WithContext(ctx).
		Model(&db.Account{}).
		Where("id = ?", id).
		Update("secret", secret)
	if result.Error != nil {
		return fmt.Errorf("accounts: set secret: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// ListSecrets returns the wall: every account whose secret is set, oldest
// account first.
func (r *gormAccountRepository) ListSecrets(ctx context.Context) ([]SecretEntry, error) {
	var entries []SecretEntry
	err := r.db.WithContext(ctx).
		Model(&db.Account{}).
		Select("id AS account_id, secret AS text").
		Where("secret IS NOT NULL").
		Order("created_at ASC, id ASC").
		Scan(&entries).Error
	if err != nil {
		return nil, fmt.Errorf("accounts: list secrets: %w", err)
	}
	return entries, nil
}

// providerColumn maps a provider name to its unique id column. The column
// name is interpolated into SQL, so only known providers are accepted.
func providerColumn(provider string) (string, error) {
	switch provider {
	case db.ProviderGoogle:
		return "google_id", nil
	case db.ProviderFacebook:
		return "facebook_id", nil
	default:
		return "", fmt.Errorf("accounts: %w: %q", ErrUnknownProvider, provider)
	}
}
