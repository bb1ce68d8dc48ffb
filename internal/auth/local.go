package auth

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/crypto/argon2"

	"github.com/tellnoone/secrets/internal/db"
	"github.com/tellnoone/secrets/internal/repository"
)

const (
	// maxUsernameLen and maxPasswordLen bound the form inputs accepted by
	// Register and Verify. Argon2 work is proportional to the password size.
	maxUsernameLen = 254
	maxPasswordLen = 1024
)

// HashParams are the Argon2id cost parameters. They are encoded into every
// hash, so changing them does not invalidate existing credentials.
type HashParams struct {
	Time    uint32 // iterations
	Memory  uint32 // KiB
	Threads uint8
	KeyLen  uint32
	SaltLen int
}

// DefaultHashParams follows the OWASP Argon2id guidance: 64 MiB, two
// iterations, two lanes.
var DefaultHashParams = HashParams{
	Time:    2,
	Memory:  64 * 1024,
	Threads: 2,
	KeyLen:  32,
	SaltLen: 16,
}

// LocalAuthProvider registers and verifies username/password accounts.
// Passwords are hashed with Argon2id and the hash is additionally stored as
// an EncryptedString (AES-256-GCM at rest).
type LocalAuthProvider struct {
	accounts repository.AccountRepository
	params   HashParams
	logger   *zap.Logger

	dummyOnce sync.Once
	dummyHash string
}

// NewLocalAuthProvider creates a LocalAuthProvider. A zero params value
// selects DefaultHashParams.
func NewLocalAuthProvider(accounts repository.AccountRepository, params HashParams, logger *zap.Logger) *LocalAuthProvider {
	if params == (HashParams{}) {
		params = DefaultHashParams
	}
	return &LocalAuthProvider{
		accounts: accounts,
		params:   params,
		logger:   logger.Named("local_auth"),
	}
}

// ProviderType returns the identifier used in logs and metrics.
func (p *LocalAuthProvider) ProviderType() string {
	return "local"
}

// Register creates an account for username with a freshly salted hash of
// password. A taken username returns ErrDuplicateIdentifier.
func (p *LocalAuthProvider) Register(ctx context.Context, username, password string) (*db.Account, error) {
	if err := validateCredentials(username, password); err != nil {
		return nil, err
	}

	hashed, err := hashPassword(password, p.params)
	if err != nil {
		return nil, err
	}

	account := &db.Account{
		Username: &username,
		Password: db.EncryptedString(hashed),
	}
	if err := p.accounts.CreateLocal(ctx, account); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, ErrDuplicateIdentifier
		}
		return nil, fmt.Errorf("auth: registering %q: %w", username, err)
	}

	p.logger.Info("account registered", zap.String("account_id", account.ID.String()))
	return account, nil
}

// Verify returns the account for username if password matches its stored
// hash. Unknown usernames, federated-only accounts and wrong passwords all
// yield ErrInvalidCredentials so the response does not reveal which
// usernames exist.
func (p *LocalAuthProvider) Verify(ctx context.Context, username, password string) (*db.Account, error) {
	if err := validateCredentials(username, password); err != nil {
		return nil, ErrInvalidCredentials
	}

	account, err := p.accounts.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			// Spend the same hashing work as a real check.
			verifyPassword(password, p.dummy())
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("auth: fetching account by username: %w", err)
	}

	if !account.HasLocalPassword() || !verifyPassword(password, string(account.Password)) {
		return nil, ErrInvalidCredentials
	}

	return account, nil
}

func (p *LocalAuthProvider) dummy() string {
	p.dummyOnce.Do(func() {
		h, err := hashPassword("not a real password", p.params)
		if err != nil {
			p.logger.Warn("failed to prepare dummy hash", zap.Error(err))
		}
		p.dummyHash = h
	})
	return p.dummyHash
}

func validateCredentials(username, password string) error {
	if strings.TrimSpace(username) == "" || password == "" {
		return ErrInvalidInput
	}
	if len(username) > maxUsernameLen || len(password) > maxPasswordLen {
		return ErrInvalidInput
	}
	return nil
}

// HashPassword returns an Argon2id hash of password using
// DefaultHashParams.
//
// Format: $argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<hash>
// with salt and hash in unpadded standard base64.
func HashPassword(password string) (string, error) {
	return hashPassword(password, DefaultHashParams)
}

func hashPassword(password string, params HashParams) (string, error) {
	salt := make([]byte, params.SaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("auth: generating password salt: %w", err)
	}

	hash := argon2.IDKey([]byte(password), salt, params.Time, params.Memory, params.Threads, params.KeyLen)

	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, params.Memory, params.Time, params.Threads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(hash),
	), nil
}

// verifyPassword checks password against a stored hash in constant time.
// A malformed hash never verifies.
func verifyPassword(password, stored string) bool {
	params, salt, expected, ok := decodeHash(stored)
	if !ok {
		return false
	}

	actual := argon2.IDKey([]byte(password), salt, params.Time, params.Memory, params.Threads, uint32(len(expected)))

	return subtle.ConstantTimeCompare(actual, expected) == 1
}

func decodeHash(stored string) (params HashParams, salt, hash []byte, ok bool) {
	parts := strings.Split(stored, "$")
	// "", "argon2id", "v=19", "m=..,t=..,p=..", salt, hash
	if len(parts) != 6 || parts[1] != "argon2id" {
		return params, nil, nil, false
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil || version != argon2.Version {
		return params, nil, nil, false
	}
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &params.Memory, &params.Time, &params.Threads); err != nil {
		return params, nil, nil, false
	}
	if params.Time == 0 || params.Threads == 0 {
		return params, nil, nil, false
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return params, nil, nil, false
	}
	hash, err = base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil || len(hash) == 0 {
		return params, nil, nil, false
	}

	return params, salt, hash, true
}
