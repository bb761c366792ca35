package cache

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	st, err := NewRedis(context.Background(), RedisOptions{Addr: mr.Addr()})
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	return st, mr
}

func TestRedis_PutGet(t *testing.T) {
	st, mr := newTestRedisStore(t)
	ctx := context.Background()

	payload := json.RawMessage(`{"data":{"r1":{"records":[{"loc_id":1}]}},"errors":{}}`)
	require.NoError(t, st.Put(ctx, "centres_data", payload))

	got, err := st.Get(ctx, "centres_data")
	require.NoError(t, err)
	assert.Equal(t, string(payload), string(got))

	raw, err := mr.Get("centres_data")
	require.NoError(t, err)
	assert.Equal(t, string(payload), raw)
	assert.Zero(t, mr.TTL("centres_data"))
}

func TestRedis_Replace(t *testing.T) {
	st, _ := newTestRedisStore(t)
	ctx := context.Background()

	require.NoError(t, st.Put(ctx, "centres_data", json.RawMessage(`{"v":1}`)))
	require.NoError(t, st.Put(ctx, "centres_data", json.RawMessage(`{"v":2}`)))

	got, err := st.Get(ctx, "centres_data")
	require.NoError(t, err)
	assert.Equal(t, `{"v":2}`, string(got))
}

func TestRedis_GetMissing(t *testing.T) {
	st, _ := newTestRedisStore(t)

	_, err := st.Get(context.Background(), "centres_data")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRedis_ConnectionError(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	_, err := NewRedis(context.Background(), RedisOptions{Addr: addr})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cache: redis: ping")
}

func TestRedis_WithClient(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close() //nolint:errcheck

	st := NewRedisWithClient(client)
	require.NoError(t, st.Put(context.Background(), "k", json.RawMessage(`[]`)))
	assert.NoError(t, st.Close())

	got, err := st.Get(context.Background(), "k")
	require.NoError(t, err)
	assert.Equal(t, `[]`, string(got))
}
