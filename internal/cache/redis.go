package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/xaenox/shieldbot/internal/models"
)

const defaultTTL = 24 * time.Hour

type Config struct {
	URL       string
	KeyPrefix string
	TTL       time.Duration
}

// DetailsCache stores AI explanations of medium-risk URLs in Redis.
type DetailsCache struct {
	client    *redis.Client
	keyPrefix string
	ttl       time.Duration
	logger    *zap.Logger
}

// NewDetailsCache connects to Redis and verifies the connection.
func NewDetailsCache(ctx context.Context, cfg Config, logger *zap.Logger) (*DetailsCache, error) {
	logger = logger.Named("cache")

	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	client := redis.NewClient(opts)

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to ping Redis: %w", err)
	}
	logger.Info("Connected to Redis", zap.String("addr", opts.Addr))

	return newDetailsCache(client, cfg, logger), nil
}

func newDetailsCache(client *redis.Client, cfg Config, logger *zap.Logger) *DetailsCache {
	if cfg.TTL <= 0 {
		cfg.TTL = defaultTTL
	}
	if cfg.KeyPrefix != "" && !strings.HasSuffix(cfg.KeyPrefix, ":") {
		cfg.KeyPrefix += ":"
	}
	return &DetailsCache{client: client, keyPrefix: cfg.KeyPrefix, ttl: cfg.TTL, logger: logger}
}

// key hashes the normalized URL so arbitrary input stays a bounded key.
func (c *DetailsCache) key(url string) string {
	sum := sha256.Sum256([]byte(strings.ToLower(strings.TrimSpace(url))))
	return c.keyPrefix + "details:" + hex.EncodeToString(sum[:])
}

// GetDetails returns the cached explanation. A miss is not an error.
func (c *DetailsCache) GetDetails(ctx context.Context, url string) (*models.RiskDetails, bool, error) {
	data, err := c.client.Get(ctx, c.key(url)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var details models.RiskDetails
	if err := json.Unmarshal(data, &details); err != nil {
		c.logger.Warn("Dropping undecodable cache entry", zap.Error(err))
		c.client.Del(ctx, c.key(url))
		return nil, false, nil
	}
	return &details, true, nil
}

func (c *DetailsCache) SetDetails(ctx context.Context, url string, details *models.RiskDetails) error {
	data, err := json.Marshal(details)
	if err != nil {
		return fmt.Errorf("failed to marshal details: %w", err)
	}
	return c.client.Set(ctx, c.key(url), data, c.ttl).Err()
}

func (c *DetailsCache) Close() error {
	return c.client.Close()
}
