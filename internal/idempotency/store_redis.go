package idempotency

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	platformredis "remit/internal/platform/redis"
)

// RedisStore shares idempotency state across instances. Keys live under the
// client namespace as <prefix>:idem:resp:<key> and <prefix>:idem:lock:<key>.
type RedisStore struct {
	client *platformredis.Client
}

func NewRedisStore(client *platformredis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) responseKey(key string) string {
	return s.client.Key("idem", "resp", key)
}

func (s *RedisStore) lockKey(key string) string {
	return s.client.Key("idem", "lock", key)
}

func (s *RedisStore) Get(ctx context.Context, key string) (*Response, bool, error) {
	raw, err := s.client.Get(ctx, s.responseKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get idempotent response: %w", err)
	}
	var resp Response
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, false, fmt.Errorf("decode idempotent response: %w", err)
	}
	return &resp, true, nil
}

func (s *RedisStore) Save(ctx context.Context, key string, resp *Response, ttl time.Duration) error {
	raw, err := json.Marshal(resp)
	if err != nil {
		return fmt.Errorf("encode idempotent response: %w", err)
	}
	return s.client.Set(ctx, s.responseKey(key), raw, ttl).Err()
}

// Lock uses SET NX with expiry so a crashed holder cannot wedge the key.
func (s *RedisStore) Lock(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return s.client.SetNX(ctx, s.lockKey(key), "processing", ttl).Result()
}

func (s *RedisStore) Unlock(ctx context.Context, key string) error {
	return s.client.Del(ctx, s.lockKey(key)).Err()
}
