package redisstore

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/academia/core/auth"
)

// newTestStore needs a live server; set REDIS_TEST_ADDRESS to run these tests.
func newTestStore(t *testing.T) *TokenStore {
	addr := os.Getenv("REDIS_TEST_ADDRESS")
	if addr == "" {
		t.Skip("REDIS_TEST_ADDRESS not set")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { _ = client.Close() })
	require.NoError(t, client.Ping(context.Background()).Err())
	return NewTokenStore(client, "academia-test:"+uuid.NewString()+":")
}

func newSession(familyID string) auth.Session {
	now := time.Now().UTC().Truncate(time.Second)
	return auth.Session{
		ID:           uuid.NewString(),
		UserID:       uuid.NewString(),
		FamilyID:     familyID,
		TokenHash:    "hash",
		IssuedAt:     now,
		ExpiresAt:    now.Add(time.Hour),
		OrigIssuedAt: now,
	}
}

func TestTokenStore_Sessions(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	fid := uuid.NewString()

	s1 := newSession(fid)
	s2 := newSession(fid)
	require.NoError(t, store.SaveSession(ctx, s1))
	require.NoError(t, store.SaveSession(ctx, s2))

	got, err := store.GetSession(ctx, s1.ID)
	require.NoError(t, err)
	assert.Equal(t, s1.ID, got.ID)
	assert.Equal(t, s1.FamilyID, got.FamilyID)
	assert.True(t, s1.ExpiresAt.Equal(got.ExpiresAt))

	require.NoError(t, store.DeleteSession(ctx, s1.ID))
	_, err = store.GetSession(ctx, s1.ID)
	assert.Equal(t, auth.ErrSessionNotFound, err)

	require.NoError(t, store.DeleteFamily(ctx, fid))
	_, err = store.GetSession(ctx, s2.ID)
	assert.Equal(t, auth.ErrSessionNotFound, err)

	// missing sessions are not an error
	assert.NoError(t, store.DeleteSession(ctx, uuid.NewString()))
}

func TestTokenStore_RevokeAccess(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	jti := uuid.NewString()

	revoked, err := store.IsAccessRevoked(ctx, jti)
	require.NoError(t, err)
	assert.False(t, revoked)

	require.NoError(t, store.RevokeAccess(ctx, jti, time.Now().Add(time.Minute)))
	revoked, err = store.IsAccessRevoked(ctx, jti)
	require.NoError(t, err)
	assert.True(t, revoked)

	// already expired tokens are not stored
	other := uuid.NewString()
	require.NoError(t, store.RevokeAccess(ctx, other, time.Now().Add(-time.Minute)))
	revoked, err = store.IsAccessRevoked(ctx, other)
	require.NoError(t, err)
	assert.False(t, revoked)
}

func TestTokenStore_RotateSession(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	sess := newSession(uuid.NewString())
	require.NoError(t, store.SaveSession(ctx, sess))

	now := time.Now().UTC().Truncate(time.Second)
	assert.Equal(t, auth.ErrRefreshTokenReused, store.RotateSession(ctx, sess.ID, "other hash", now))
	require.NoError(t, store.RotateSession(ctx, sess.ID, sess.TokenHash, now))

	got, err := store.GetSession(ctx, sess.ID)
	require.NoError(t, err)
	assert.True(t, got.Rotated())
	assert.True(t, now.Equal(got.RotatedAt))

	assert.Equal(t, auth.ErrRefreshTokenReused, store.RotateSession(ctx, sess.ID, sess.TokenHash, now))
	assert.Equal(t, auth.ErrSessionNotFound, store.RotateSession(ctx, uuid.NewString(), "hash", now))
}
