// Package redis owns the shared Redis connection and the key namespace the
// ledger writes under.
package redis

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"remit/internal/platform/config"
)

// DefaultKeyPrefix namespaces keys when none is configured.
const DefaultKeyPrefix = "remit"

// Client is a go-redis client bound to one key namespace. Replicas sharing a
// prefix share idempotency state.
type Client struct {
	*redis.Client
	prefix string
}

// New connects and pings within the dial timeout. It returns nil, nil when no
// URL is configured.
func New(ctx context.Context, cfg config.RedisConfig) (*Client, error) {
	if cfg.URL == "" {
		return nil, nil
	}

	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse redis URL: %w", err)
	}
	if cfg.PoolSize > 0 {
		opts.PoolSize = cfg.PoolSize
	}
	opts.MinIdleConns = cfg.MinIdleConns
	if cfg.DialTimeout > 0 {
		opts.DialTimeout = cfg.DialTimeout
	}
	if cfg.ReadTimeout > 0 {
		opts.ReadTimeout = cfg.ReadTimeout
	}
	if cfg.WriteTimeout > 0 {
		opts.WriteTimeout = cfg.WriteTimeout
	}

	timeout := opts.DialTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	c := Wrap(redis.NewClient(opts), cfg.KeyPrefix)
	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := c.Health(pingCtx); err != nil {
		_ = c.Client.Close()
		return nil, err
	}
	return c, nil
}

// Wrap binds an existing client to prefix.
func Wrap(client *redis.Client, prefix string) *Client {
	prefix = strings.Trim(prefix, ":")
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	return &Client{Client: client, prefix: prefix}
}

// Prefix is the namespace every Key starts with.
func (c *Client) Prefix() string {
	return c.prefix
}

// Key joins parts under the client's namespace, e.g. "remit:idem:resp:<k>".
func (c *Client) Key(parts ...string) string {
	return c.prefix + ":" + strings.Join(parts, ":")
}

func (c *Client) Health(ctx context.Context) error {
	if err := c.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	return nil
}
