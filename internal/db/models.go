package db

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Base contains the common fields shared by all models.
// ID uses UUID v7 (time-ordered) so accounts list in creation order without
// a separate sort column. CreatedAt and UpdatedAt are managed by GORM.
type Base struct {
	ID        uuid.UUID `gorm:"type:text;primaryKey"`
	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

// BeforeCreate generates a new UUID v7 if the ID is not already set.
func (b *Base) BeforeCreate(tx *gorm.DB) error {
	if b.ID == (uuid.UUID{}) {
		id, err := uuid.NewV7()
		if err != nil {
			return err
		}
		b.ID = id
	}
	return nil
}

// Provider names accepted by the federated login flow. Each maps to a
// unique column on accounts.
const (
	ProviderGoogle   = "google"
	ProviderFacebook = "facebook"
)

// Account is one identity: a local username/password pair, one or more
// linked external providers, or both. Nullable columns are pointers so that
// the unique indexes ignore unset values.
type Account struct {
	Base
	Username    *string         `gorm:"uniqueIndex"`
	Password    EncryptedString `gorm:"type:text;not null;default:''"` // Argon2id hash, empty for federated-only accounts
	GoogleID    *string         `gorm:"column:google_id;uniqueIndex"`
	FacebookID  *string         `gorm:"column:facebook_id;uniqueIndex"`
	DisplayName string          `gorm:"not null;default:''"`
	Email       string          `gorm:"not null;default:''"`
	Secret      *string         `gorm:"type:text"` // nil = not on the wall
}

// HasLocalPassword reports whether the account can log in with a password.
func (a *Account) HasLocalPassword() bool {
	return a.Username != nil && a.Password != ""
}

// ProviderID returns the external id stored for provider, if any.
func (a *Account) ProviderID(provider string) (string, bool) {
	var p *string
	switch provider {
	case ProviderGoogle:
		p = a.GoogleID
	case ProviderFacebook:
		p = a.FacebookID
	}
	if p == nil {
		return "", false
	}
	return *p, true
}

// Session is a server-side session row managed through scs. Data is sealed
// by the session layer before it reaches this table.
type Session struct {
	Token  string    `gorm:"primaryKey"`
	Data   []byte    `gorm:"not null"`
	Expiry time.Time `gorm:"not null;index"`
}
