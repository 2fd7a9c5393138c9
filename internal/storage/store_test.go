package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/raine/resale-pricer/internal/ebay"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testKey = []byte("test-key-32-bytes-long-ok-test!!")

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(":memory:", testKey)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestSQLiteStore_TokenRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	tok, err := store.LoadToken(ctx, "https://api.ebay.com|client")
	require.NoError(t, err)
	assert.Nil(t, tok)

	expiresAt := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, store.SaveToken(ctx, "https://api.ebay.com|client", ebay.Token{AccessToken: "v^1.1#secret", ExpiresAt: expiresAt}))

	tok, err = store.LoadToken(ctx, "https://api.ebay.com|client")
	require.NoError(t, err)
	require.NotNil(t, tok)
	assert.Equal(t, "v^1.1#secret", tok.AccessToken)
	assert.True(t, expiresAt.Equal(tok.ExpiresAt))

	// upsert replaces
	require.NoError(t, store.SaveToken(ctx, "https://api.ebay.com|client", ebay.Token{AccessToken: "second", ExpiresAt: expiresAt.Add(time.Hour)}))
	tok, err = store.LoadToken(ctx, "https://api.ebay.com|client")
	require.NoError(t, err)
	assert.Equal(t, "second", tok.AccessToken)

	// other keys are independent
	tok, err = store.LoadToken(ctx, "https://api.sandbox.ebay.com|client")
	require.NoError(t, err)
	assert.Nil(t, tok)
}

func TestSQLiteStore_TokenEncryptedAtRest(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.SaveToken(ctx, "k", ebay.Token{AccessToken: "plain-token", ExpiresAt: time.Now()}))

	var raw string
	require.NoError(t, store.db.QueryRow("SELECT encrypted_token FROM oauth_tokens WHERE token_key = 'k'").Scan(&raw))
	assert.NotContains(t, raw, "plain-token")
}

func TestSQLiteStore_WrongKeyFailsToDecrypt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pricer.db")
	ctx := context.Background()

	store, err := NewSQLiteStore(path, testKey)
	require.NoError(t, err)
	require.NoError(t, store.SaveToken(ctx, "k", ebay.Token{AccessToken: "t", ExpiresAt: time.Now()}))
	require.NoError(t, store.Close())

	otherKey, err := DeriveKey("another passphrase")
	require.NoError(t, err)
	store, err = NewSQLiteStore(path, otherKey)
	require.NoError(t, err)
	defer store.Close()

	_, err = store.LoadToken(ctx, "k")
	assert.Error(t, err)
}

func TestSQLiteStore_DeleteExpiredTokens(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, store.SaveToken(ctx, "old", ebay.Token{AccessToken: "a", ExpiresAt: now.Add(-time.Hour)}))
	require.NoError(t, store.SaveToken(ctx, "fresh", ebay.Token{AccessToken: "b", ExpiresAt: now.Add(time.Hour)}))

	n, err := store.DeleteExpiredTokens(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	tok, err := store.LoadToken(ctx, "old")
	require.NoError(t, err)
	assert.Nil(t, tok)
	tok, err = store.LoadToken(ctx, "fresh")
	require.NoError(t, err)
	assert.NotNil(t, tok)
}

func TestSQLiteStore_AllowedUsers(t *testing.T) {
	store := newTestStore(t)

	allowed, err := store.IsUserAllowed(42)
	require.NoError(t, err)
	assert.False(t, allowed)

	require.NoError(t, store.AddAllowedUser(42, 1))
	require.NoError(t, store.AddAllowedUser(43, 1))
	// re-adding is an update, not an error
	require.NoError(t, store.AddAllowedUser(42, 2))

	allowed, err = store.IsUserAllowed(42)
	require.NoError(t, err)
	assert.True(t, allowed)

	users, err := store.GetAllowedUsers()
	require.NoError(t, err)
	require.Len(t, users, 2)

	byID := map[int64]AllowedUser{}
	for _, u := range users {
		byID[u.TelegramID] = u
	}
	assert.Equal(t, int64(2), byID[42].AddedBy)
	assert.False(t, byID[43].AddedAt.IsZero())

	require.NoError(t, store.RemoveAllowedUser(42))
	allowed, err = store.IsUserAllowed(42)
	require.NoError(t, err)
	assert.False(t, allowed)
}

func TestSQLiteStore_AsTokenStore(t *testing.T) {
	var _ ebay.TokenStore = newTestStore(t)
}
