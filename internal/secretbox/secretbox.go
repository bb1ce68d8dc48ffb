// Package secretbox seals small values with AES-256-GCM under keys derived
// from operator-supplied secrets. It backs both the encrypted account columns
// and the session payloads stored in the database.
package secretbox

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

// KeySize is the length of every derived key (AES-256).
const KeySize = 32

var (
	// ErrEmptySecret is returned when a key is requested for an empty secret.
	ErrEmptySecret = errors.New("secretbox: secret must not be empty")

	// ErrCiphertextTooShort is returned when sealed data cannot contain a nonce.
	ErrCiphertextTooShort = errors.New("secretbox: sealed data too short to contain nonce")
)

// DeriveKey expands secret into a KeySize key bound to purpose. Different
// purposes yield independent keys from the same secret.
func DeriveKey(secret, purpose string) ([]byte, error) {
	if secret == "" {
		return nil, ErrEmptySecret
	}
	key := make([]byte, KeySize)
	r := hkdf.New(sha256.New, []byte(secret), nil, []byte(purpose))
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, fmt.Errorf("secretbox: deriving key: %w", err)
	}
	return key, nil
}

// Seal encrypts plaintext and returns nonce || ciphertext || tag.
func Seal(key, plaintext []byte) ([]byte, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	// A fresh nonce per seal; GCM must never reuse one under the same key.
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("secretbox: generating nonce: %w", err)
	}

	return gcm.Seal(nonce, nonce, plaintext, nil), nil
}

// Open reverses Seal. Tampered or foreign data fails authentication.
func Open(key, sealed []byte) ([]byte, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	nonceSize := gcm.NonceSize()
	if len(sealed) < nonceSize {
		return nil, ErrCiphertextTooShort
	}

	nonce, ciphertext := sealed[:nonceSize], sealed[nonceSize:]
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("secretbox: decrypting: %w", err)
	}
	return plaintext, nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("secretbox: key must be exactly %d bytes, got %d", KeySize, len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("secretbox: creating AES cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("secretbox: creating GCM: %w", err)
	}
	return gcm, nil
}
