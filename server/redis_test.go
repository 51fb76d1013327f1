package server

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedisTestStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisStoreFromClient(client), mr
}

func TestRedisStoreRoundTrip(t *testing.T) {
	store, _ := newRedisTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, "state:pending:relay-1", []byte(`{"relay_id":"relay-1"}`), PendingTTL))

	payload, ok, err := store.Get(ctx, "state:pending:relay-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.JSONEq(t, `{"relay_id":"relay-1"}`, string(payload))

	require.NoError(t, store.Delete(ctx, "state:pending:relay-1"))
	_, ok, err = store.Get(ctx, "state:pending:relay-1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedisStoreMissIsNotAnError(t *testing.T) {
	store, _ := newRedisTestStore(t)

	payload, ok, err := store.Get(context.Background(), "state:pending:absent")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, payload)

	assert.NoError(t, store.Delete(context.Background(), "state:pending:absent"))
}

func TestRedisStoreTTL(t *testing.T) {
	store, mr := newRedisTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, "state:pending:relay-1", []byte("x"), PendingTTL))

	mr.FastForward(PendingTTL - time.Second)
	_, ok, err := store.Get(ctx, "state:pending:relay-1")
	require.NoError(t, err)
	assert.True(t, ok, "entry expired before its TTL")

	mr.FastForward(2 * time.Second)
	_, ok, err = store.Get(ctx, "state:pending:relay-1")
	require.NoError(t, err)
	assert.False(t, ok, "entry survived past its TTL")
}

func TestRedisStoreBackedPendingFlow(t *testing.T) {
	store, _ := newRedisTestStore(t)
	ctx := context.Background()

	pending := PendingAuthorization{
		RelayID:   "relay-1",
		Request:   AuthorizationRequest{ClientID: "mcp-client", Scope: []string{"openid"}},
		CreatedAt: time.Unix(1700000000, 0).UTC(),
	}
	require.NoError(t, SavePending(ctx, store, pending))

	got, ok, err := ConsumePending(ctx, store, "relay-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, pending, got)

	_, ok, err = ConsumePending(ctx, store, "relay-1")
	require.NoError(t, err)
	assert.False(t, ok, "pending record consumed twice")
}
