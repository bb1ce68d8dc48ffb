package session

import (
	"context"
	"testing"
	"time"

	"github.com/alexedwards/scs/v2/memstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSealedStore_RoundTrip(t *testing.T) {
	inner := memstore.NewWithCleanupInterval(0)
	store, err := NewSealedStore(inner, testKey(t))
	require.NoError(t, err)

	expiry := time.Now().Add(time.Hour)
	require.NoError(t, store.Commit("tok", []byte("payload"), expiry))

	raw, found, err := inner.Find("tok")
	require.NoError(t, err)
	require.True(t, found)
	assert.NotContains(t, string(raw), "payload")

	b, found, err := store.Find("tok")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, []byte("payload"), b)

	require.NoError(t, store.Delete("tok"))
	_, found, err = store.Find("tok")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestSealedStore_UnreadablePayload(t *testing.T) {
	ctx := context.Background()
	inner := memstore.NewWithCleanupInterval(0)
	require.NoError(t, inner.Commit("tok", []byte("not sealed"), time.Now().Add(time.Hour)))

	store, err := NewSealedStore(inner, testKey(t))
	require.NoError(t, err)

	_, found, err := store.FindCtx(ctx, "tok")
	require.NoError(t, err)
	assert.False(t, found)

	// a payload sealed under another key is equally unreadable
	other, err := NewSealedStore(inner, make([]byte, 32))
	require.NoError(t, err)
	require.NoError(t, other.CommitCtx(ctx, "tok2", []byte("x"), time.Now().Add(time.Hour)))
	_, found, err = store.FindCtx(ctx, "tok2")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestNewSealedStore_KeySize(t *testing.T) {
	_, err := NewSealedStore(memstore.NewWithCleanupInterval(0), []byte("short"))
	assert.Error(t, err)
}
