package cache

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"
	"github.com/rotisserie/eris"
)

// RedisOptions configures the Redis connection.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
}

// RedisStore implements Store with plain Redis string values.
type RedisStore struct {
	client redis.Cmdable
	closer func() error
}

// NewRedis opens a Redis client and verifies it with PING.
func NewRedis(ctx context.Context, opts RedisOptions) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, eris.Wrapf(err, "cache: redis: ping %s", opts.Addr)
	}
	return &RedisStore{client: client, closer: client.Close}, nil
}

// NewRedisWithClient wraps an existing client. The caller owns its lifecycle.
func NewRedisWithClient(client redis.Cmdable) *RedisStore {
	return &RedisStore{client: client}
}

// Put implements Store.
func (s *RedisStore) Put(ctx context.Context, key string, payload json.RawMessage) error {
	err := s.client.Set(ctx, key, []byte(payload), 0).Err()
	return eris.Wrapf(err, "cache: redis: put %s", key)
}

// Get implements Store.
func (s *RedisStore) Get(ctx context.Context, key string) (json.RawMessage, error) {
	data, err := s.client.Get(ctx, key).Bytes()
	if eris.Is(err, redis.Nil) {
		return nil, eris.Wrapf(ErrNotFound, "key %s", key)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "cache: redis: get %s", key)
	}
	return json.RawMessage(data), nil
}

// Close releases the client if the store opened it.
func (s *RedisStore) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer()
}
