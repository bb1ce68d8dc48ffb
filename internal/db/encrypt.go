package db

import (
	"database/sql/driver"
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/tellnoone/secrets/internal/secretbox"
)

// fieldKeyPurpose binds the derived column key to this use of the secret.
const fieldKeyPurpose = "secrets/db/encrypted-string"

// encryptionKey is the package-level AES-256 key used by EncryptedString.
// It must be initialized once at startup via InitEncryption before any
// database operation involving encrypted fields.
var encryptionKey []byte

// InitEncryption derives the AES-256 key used to encrypt and decrypt
// sensitive fields at rest from an operator secret of any length.
//
// Call this once during application startup, before calling db.New:
//
//	if err := db.InitEncryption(os.Getenv("SECRET")); err != nil {
//	    log.Fatal(err)
//	}
func InitEncryption(secret string) error {
	key, err := secretbox.DeriveKey(secret, fieldKeyPurpose)
	if err != nil {
		return fmt.Errorf("db: initializing field encryption: %w", err)
	}
	encryptionKey = key
	return nil
}

// EncryptedString is a string type that is transparently encrypted with
// AES-256-GCM before being written to the database, and decrypted after
// being read. Account password hashes are stored this way.
//
// The value stored in the database is base64(nonce + ciphertext). An empty
// EncryptedString is stored as an empty string without encryption.
type EncryptedString string

// Value implements driver.Valuer. Called by GORM before writing to the database.
func (e EncryptedString) Value() (driver.Value, error) {
	if e == "" {
		return "", nil
	}
	if encryptionKey == nil {
		return nil, errors.New("db: encryption key not initialized, call db.InitEncryption first")
	}

	sealed, err := secretbox.Seal(encryptionKey, []byte(e))
	if err != nil {
		return nil, fmt.Errorf("db: encrypting value: %w", err)
	}
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Scan implements sql.Scanner. Called by GORM after reading from the database.
func (e *EncryptedString) Scan(value any) error {
	var str string
	switch v := value.(type) {
	case nil:
		*e = ""
		return nil
	case string:
		str = v
	case []byte:
		str = string(v)
	default:
		return fmt.Errorf("db: EncryptedString.Scan: expected string, got %T", value)
	}
	if str == "" {
		*e = ""
		return nil
	}
	if encryptionKey == nil {
		return errors.New("db: encryption key not initialized, call db.InitEncryption first")
	}

	data, err := base64.StdEncoding.DecodeString(str)
	if err != nil {
		return fmt.Errorf("db: failed to decode base64: %w", err)
	}

	plaintext, err := secretbox.Open(encryptionKey, data)
	if err != nil {
		return fmt.Errorf("db: failed to decrypt value: %w", err)
	}

	*e = EncryptedString(plaintext)
	return nil
}
