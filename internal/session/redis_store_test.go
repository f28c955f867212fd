package session

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisStore(client, 5*24*time.Hour), mr
}

func TestRedisStoreSaveLoad(t *testing.T) {
	store, mr := newStore(t)
	ctx := context.Background()

	sess, err := New(time.Now())
	require.NoError(t, err)
	assert.False(t, sess.Authenticated())
	sess.Login(7, "margaux", true)

	require.NoError(t, store.Save(ctx, sess))
	assert.Equal(t, 5*24*time.Hour, mr.TTL(keyPrefix+sess.ID))

	loaded, err := store.Load(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, sess.ID, loaded.ID)
	assert.Equal(t, int64(7), loaded.UserID)
	assert.Equal(t, "margaux", loaded.Username)
	assert.True(t, loaded.IsAdmin)
	assert.Equal(t, sess.CSRF, loaded.CSRF)
}

func TestRedisStoreLoadMissing(t *testing.T) {
	store, _ := newStore(t)

	_, err := store.Load(context.Background(), "nope")
	require.ErrorIs(t, err, ErrNotFound)

	_, err = store.Load(context.Background(), "")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestRedisStoreExpires(t *testing.T) {
	store, mr := newStore(t)
	ctx := context.Background()

	sess, err := New(time.Now())
	require.NoError(t, err)
	require.NoError(t, store.Save(ctx, sess))

	mr.FastForward(5*24*time.Hour + time.Second)

	_, err = store.Load(ctx, sess.ID)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestRedisStoreRegenerate(t *testing.T) {
	store, mr := newStore(t)
	ctx := context.Background()

	sess, err := New(time.Now())
	require.NoError(t, err)
	require.NoError(t, store.Save(ctx, sess))
	oldID, oldCSRF := sess.ID, sess.CSRF

	sess.Login(3, "sam", false)
	require.NoError(t, store.Regenerate(ctx, sess))

	assert.NotEqual(t, oldID, sess.ID)
	assert.NotEqual(t, oldCSRF, sess.CSRF)
	assert.NotEmpty(t, sess.CSRF)
	assert.False(t, mr.Exists(keyPrefix+oldID))

	loaded, err := store.Load(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(3), loaded.UserID)
	assert.Equal(t, sess.CSRF, loaded.CSRF)
}

func TestRedisStoreDestroy(t *testing.T) {
	store, mr := newStore(t)
	ctx := context.Background()

	sess, err := New(time.Now())
	require.NoError(t, err)
	require.NoError(t, store.Save(ctx, sess))
	require.NoError(t, store.Destroy(ctx, sess.ID))
	assert.False(t, mr.Exists(keyPrefix+sess.ID))
}

func TestFingerprintHidesID(t *testing.T) {
	sess := &Session{ID: "secret-session-id"}
	assert.Len(t, sess.Fingerprint(), 12)
	assert.NotContains(t, sess.ID, sess.Fingerprint())

	var missing *Session
	assert.Equal(t, "none", missing.Fingerprint())
}
