package session

import (
	"context"
	"fmt"
	"time"

	"github.com/alexedwards/scs/v2"

	"github.com/tellnoone/secrets/internal/secretbox"
)

// SealedStore encrypts session payloads before handing them to an inner
// store, so a leaked sessions table exposes no session contents.
type SealedStore struct {
	inner scs.Store
	key   []byte
}

// NewSealedStore wraps inner. key must be secretbox.KeySize bytes.
func NewSealedStore(inner scs.Store, key []byte) (*SealedStore, error) {
	if len(key) != secretbox.KeySize {
		return nil, fmt.Errorf("session: sealing key must be %d bytes, got %d", secretbox.KeySize, len(key))
	}
	return &SealedStore{inner: inner, key: key}, nil
}

// FindCtx implements scs.CtxStore. A payload that fails to open is treated
// as absent.
func (s *SealedStore) FindCtx(ctx context.Context, token string) ([]byte, bool, error) {
	var (
		sealed []byte
		found  bool
		err    error
	)
	if cs, ok := s.inner.(scs.CtxStore); ok {
		sealed, found, err = cs.FindCtx(ctx, token)
	} else {
		sealed, found, err = s.inner.Find(token)
	}
	if err != nil || !found {
		return nil, false, err
	}

	b, err := secretbox.Open(s.key, sealed)
	if err != nil {
		return nil, false, nil
	}
	return b, true, nil
}

// CommitCtx implements scs.CtxStore.
func (s *SealedStore) CommitCtx(ctx context.Context, token string, b []byte, expiry time.Time) error {
	sealed, err := secretbox.Seal(s.key, b)
	if err != nil {
		return fmt.Errorf("session: sealing payload: %w", err)
	}
	if cs, ok := s.inner.(scs.CtxStore); ok {
		return cs.CommitCtx(ctx, token, sealed, expiry)
	}
	return s.inner.Commit(token, sealed, expiry)
}

// DeleteCtx implements scs.CtxStore.
func (s *SealedStore) DeleteCtx(ctx context.Context, token string) error {
	if cs, ok := s.inner.(scs.CtxStore); ok {
		return cs.DeleteCtx(ctx, token)
	}
	return s.inner.Delete(token)
}

// Find implements scs.Store.
func (s *SealedStore) Find(token string) ([]byte, bool, error) {
	return s.FindCtx(context.Background(), token)
}

// Commit implements scs.Store.
func (s *SealedStore) Commit(token string, b []byte, expiry time.Time) error {
	return s.CommitCtx(context.Background(), token, b, expiry)
}

// Delete implements scs.Store.
func (s *SealedStore) Delete(token string) error {
	return s.DeleteCtx(context.Background(), token)
}
