package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionCommitFindDelete(t *testing.T) {
	ctx := context.Background()
	repo := NewSessionRepository(newTestDB(t))

	_, found, err := repo.FindCtx(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, repo.CommitCtx(ctx, "tok", []byte("v1"), time.Now().Add(time.Hour)))
	b, found, err := repo.FindCtx(ctx, "tok")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, []byte("v1"), b)

	// Committing again replaces the payload.
	require.NoError(t, repo.Commit("tok", []byte("v2"), time.Now().Add(time.Hour)))
	b, found, err = repo.Find("tok")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, []byte("v2"), b)

	require.NoError(t, repo.Delete("tok"))
	_, found, err = repo.Find("tok")
	require.NoError(t, err)
	assert.False(t, found)

	assert.NoError(t, repo.DeleteCtx(ctx, "tok"), "deleting twice is a no-op")
}

func TestSessionExpiry(t *testing.T) {
	ctx := context.Background()
	repo := NewSessionRepository(newTestDB(t))

	require.NoError(t, repo.CommitCtx(ctx, "old", []byte("x"), time.Now().Add(-time.Minute)))
	require.NoError(t, repo.CommitCtx(ctx, "fresh", []byte("y"), time.Now().Add(time.Hour)))

	_, found, err := repo.FindCtx(ctx, "old")
	require.NoError(t, err)
	assert.False(t, found, "expired sessions are invisible")

	n, err := repo.DeleteExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	_, found, err = repo.FindCtx(ctx, "fresh")
	require.NoError(t, err)
	assert.True(t, found)
}
