package auth

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/tellnoone/secrets/internal/db"
	"github.com/tellnoone/secrets/internal/repository"
)

// Linker maps provider-asserted identities onto accounts.
type Linker struct {
	accounts repository.AccountRepository
	logger   *zap.Logger
}

// NewLinker creates a Linker over the account store.
func NewLinker(accounts repository.AccountRepository, logger *zap.Logger) *Linker {
	return &Linker{
		accounts: accounts,
		logger:   logger.Named("linker"),
	}
}

// FindOrCreate returns the account linked to identity, creating one with the
// provider's profile attributes if this is the identity's first login. The
// store performs the lookup and insert as one atomic upsert, so concurrent
// first logins for the same subject resolve to a single account.
func (l *Linker) FindOrCreate(ctx context.Context, identity ExternalIdentity) (*db.Account, error) {
	if identity.Subject == "" {
		return nil, fmt.Errorf("%w: %s asserted an empty subject", ErrUpstreamAuth, identity.Provider)
	}

	account, created, err := l.accounts.FindOrCreateByProvider(ctx, identity.Provider, identity.Subject, repository.Profile{
		Email: identity.Email,
		Name:  identity.Name,
	})
	if err != nil {
		if errors.Is(err, repository.ErrUnknownProvider) {
			return nil, fmt.Errorf("%w: %q", ErrProviderNotFound, identity.Provider)
		}
		return nil, fmt.Errorf("auth: linking %s identity: %w", identity.Provider, err)
	}

	if created {
		l.logger.Info("linked new federated account",
			zap.String("provider", identity.Provider),
			zap.String("account_id", account.ID.String()),
		)
	}
	return account, nil
}
