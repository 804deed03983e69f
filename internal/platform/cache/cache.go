// Package cache provides an optional Redis-backed cache of finished
// PhotoEgg payloads keyed by source digest. A hit skips the whole decode
// pipeline for re-uploaded bytes; it is transient capacity management, not
// result persistence.
package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	platformerrors "imalink-core-go/internal/platform/errors"
	"imalink-core-go/internal/platform/logging"
)

// Config mirrors config.CacheConfig without importing the config package.
type Config struct {
	Addr     string
	Username string
	Password string
	DB       int
	Prefix   string
	TTL      time.Duration
}

// RecordCache stores marshaled records under digest-derived keys.
type RecordCache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	logger *logging.Logger
}

// New connects to Redis and verifies the connection. A nil return with a
// nil error never happens: either the cache is usable or an error explains
// why not.
func New(cfg Config, logger *logging.Logger) (*RecordCache, error) {
	if cfg.Addr == "" {
		return nil, platformerrors.New(platformerrors.KindConfig, "cache.new", "redis addr is required")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Username: cfg.Username,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, platformerrors.Wrap(platformerrors.KindCache, "cache.new", "redis ping failed", err)
	}

	prefix := cfg.Prefix
	if prefix == "" {
		prefix = "imalink:egg:"
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}

	return &RecordCache{
		client: client,
		prefix: prefix,
		ttl:    ttl,
		logger: logger,
	}, nil
}

// Key derives the cache key for one (source digest, coldpreview size) pair.
// The coldpreview size participates because it changes the payload shape.
func (c *RecordCache) Key(sourceDigest string, coldpreviewSize int) string {
	return fmt.Sprintf("%s%s:%d", c.prefix, sourceDigest, coldpreviewSize)
}

// Get returns the cached payload and whether it was present. Errors other
// than a miss are logged and reported as a miss: the cache never blocks
// processing.
func (c *RecordCache) Get(ctx context.Context, key string) ([]byte, bool) {
	payload, err := c.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, false
	}
	if err != nil {
		c.logger.WarnTag("CACHE", "get %s failed: %v", key, err)
		return nil, false
	}
	return payload, true
}

// Set stores a payload under key with the configured TTL. Failures are
// logged and swallowed for the same reason as in Get.
func (c *RecordCache) Set(ctx context.Context, key string, payload []byte) {
	if err := c.client.Set(ctx, key, payload, c.ttl).Err(); err != nil {
		c.logger.WarnTag("CACHE", "set %s failed: %v", key, err)
	}
}

// Close releases the Redis connection.
func (c *RecordCache) Close() error {
	return c.client.Close()
}
