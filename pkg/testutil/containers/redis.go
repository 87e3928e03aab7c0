//go:build integration

package containers

import (
	"context"
	"fmt"
	"testing"

	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"

	"remit/internal/platform/config"
	platformredis "remit/internal/platform/redis"
)

// TestKeyPrefix keeps integration keys apart from anything else on the server.
const TestKeyPrefix = "remit-test"

// RedisContainer is a shared Redis with a client bound to TestKeyPrefix.
type RedisContainer struct {
	Container *tcredis.RedisContainer
	URL       string
	Client    *platformredis.Client
}

// NewRedisContainer starts Redis and connects through the platform client, so
// tests exercise the same options and namespace as the server.
func NewRedisContainer(t *testing.T) *RedisContainer {
	t.Helper()
	ctx := context.Background()

	container, err := tcredis.Run(ctx, "redis:7-alpine")
	if err != nil {
		t.Fatalf("start redis container: %v", err)
	}
	url, err := container.ConnectionString(ctx)
	if err != nil {
		_ = container.Terminate(ctx)
		t.Fatalf("redis connection string: %v", err)
	}
	client, err := platformredis.New(ctx, config.RedisConfig{
		URL:       url,
		KeyPrefix: TestKeyPrefix,
		PoolSize:  4,
	})
	if err != nil {
		_ = container.Terminate(ctx)
		t.Fatalf("connect redis: %v", err)
	}

	// Shared by the Manager across suites; Ryuk removes it after the run.
	return &RedisContainer{Container: container, URL: url, Client: client}
}

// Keys lists every key under the test namespace.
func (r *RedisContainer) Keys(ctx context.Context) ([]string, error) {
	var keys []string
	iter := r.Client.Scan(ctx, 0, r.Client.Prefix()+":*", 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("scan test keys: %w", err)
	}
	return keys, nil
}

// FlushNamespace deletes every key under the test namespace.
func (r *RedisContainer) FlushNamespace(ctx context.Context) error {
	keys, err := r.Keys(ctx)
	if err != nil || len(keys) == 0 {
		return err
	}
	return r.Client.Del(ctx, keys...).Err()
}
