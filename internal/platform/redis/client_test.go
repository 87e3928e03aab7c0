package redis

import (
	"context"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"remit/internal/platform/config"
)

func TestNewWithoutURLDisablesRedis(t *testing.T) {
	c, err := New(context.Background(), config.RedisConfig{})
	require.NoError(t, err)
	assert.Nil(t, c)
}

func TestNewRejectsMalformedURL(t *testing.T) {
	_, err := New(context.Background(), config.RedisConfig{URL: "http://not-redis"})
	assert.ErrorContains(t, err, "parse redis URL")
}

func TestKeyNamespacing(t *testing.T) {
	rdb := redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"})
	defer rdb.Close()

	tests := []struct {
		prefix string
		want   string
	}{
		{prefix: "", want: "remit:idem:resp:abc"},
		{prefix: "eu-1", want: "eu-1:idem:resp:abc"},
		{prefix: ":eu-1:", want: "eu-1:idem:resp:abc"},
	}
	for _, tt := range tests {
		c := Wrap(rdb, tt.prefix)
		assert.Equal(t, tt.want, c.Key("idem", "resp", "abc"), "prefix %q", tt.prefix)
	}
}
