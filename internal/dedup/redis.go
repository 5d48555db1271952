package dedup

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultKeyPrefix namespaces seen-set keys.
const DefaultKeyPrefix = "sentinel:seen:"

// RedisStore is a seen-set shared between processes.
type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisStore connects to url and verifies the connection.
// A zero ttl keeps keys forever.
func NewRedisStore(ctx context.Context, url string, ttl time.Duration) (*RedisStore, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return &RedisStore{client: client, prefix: DefaultKeyPrefix, ttl: ttl}, nil
}

// MarkIfNew implements Store with SET NX.
func (s *RedisStore) MarkIfNew(ctx context.Context, token string) (bool, error) {
	ok, err := s.client.SetNX(ctx, s.prefix+token, time.Now().UnixMilli(), s.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis setnx %s: %w", token, err)
	}
	return ok, nil
}

// Close implements Store.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

var _ Store = (*RedisStore)(nil)
