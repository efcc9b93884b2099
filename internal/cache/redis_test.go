package cache

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestKey(t *testing.T) {
	c := newDetailsCache(redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"}), Config{KeyPrefix: "shieldbot"}, zap.NewNop())
	defer c.Close()

	k := c.key("HTTP://Example.com/app.exe ")
	assert.True(t, strings.HasPrefix(k, "shieldbot:details:"))
	assert.Len(t, strings.TrimPrefix(k, "shieldbot:details:"), 64)
	assert.Equal(t, k, c.key("http://example.com/app.exe"))
	assert.NotEqual(t, k, c.key("http://example.com/app.msi"))
	assert.Equal(t, defaultTTL, c.ttl)
}

func TestNewDetailsCache_Errors(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, err := NewDetailsCache(ctx, Config{URL: "not a url"}, zap.NewNop())
	assert.Error(t, err)

	_, err = NewDetailsCache(ctx, Config{URL: "redis://127.0.0.1:1/0"}, zap.NewNop())
	assert.Error(t, err)
}
