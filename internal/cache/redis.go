package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/raaihank/care-redactor/internal/config"
	"github.com/raaihank/care-redactor/internal/redaction"
)

// ResultCache stores redaction outcomes in Redis keyed by a digest of the
// input text and the options it was processed with. Entries contain the
// name mapping, so the Redis instance must sit inside the same trust
// boundary as the source documents.
type ResultCache struct {
	client *redis.Client
	config config.CacheConfig
	logger *zap.Logger
	hits   atomic.Int64
	misses atomic.Int64
}

// NewResultCache creates a new Redis-backed result cache
func NewResultCache(cfg config.CacheConfig, logger *zap.Logger) (*ResultCache, error) {
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	if cfg.MaxConnections > 0 {
		opts.PoolSize = cfg.MaxConnections
	}
	opts.MinIdleConns = cfg.MinIdleConns

	cache := &ResultCache{
		client: redis.NewClient(opts),
		config: cfg,
		logger: logger,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := cache.Ping(ctx); err != nil {
		cache.client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logger.Info("Result cache initialized",
		zap.String("redis_url", maskRedisURL(cfg.RedisURL)),
		zap.Int("max_connections", cfg.MaxConnections),
		zap.Duration("default_ttl", cfg.DefaultTTL))

	return cache, nil
}

// Ping tests the Redis connection
func (c *ResultCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Get returns the cached outcome for text processed with opts.
// Lookup failures are treated as misses.
func (c *ResultCache) Get(ctx context.Context, text string, opts redaction.Options) (*redaction.Outcome, bool) {
	key := generateKey(c.config.KeyPrefix, text, opts)

	data, err := c.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		c.misses.Add(1)
		return nil, false
	} else if err != nil {
		c.misses.Add(1)
		c.logger.Error("Cache lookup failed", zap.Error(err))
		return nil, false
	}

	var cached CachedOutcome
	if err := json.Unmarshal(data, &cached); err != nil {
		c.misses.Add(1)
		c.logger.Error("Failed to unmarshal cached outcome", zap.Error(err))
		c.client.Del(ctx, key)
		return nil, false
	}

	c.hits.Add(1)
	c.logger.Debug("Cache hit", zap.String("key", key))
	return &cached.Outcome, true
}

// Store caches outcome for text processed with opts
func (c *ResultCache) Store(ctx context.Context, text string, opts redaction.Options, outcome redaction.Outcome) error {
	key := generateKey(c.config.KeyPrefix, text, opts)

	data, err := json.Marshal(CachedOutcome{
		Outcome:  outcome,
		CachedAt: time.Now(),
		TTL:      int64(c.config.DefaultTTL.Seconds()),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal outcome for caching: %w", err)
	}

	if err := c.client.Set(ctx, key, data, c.config.DefaultTTL).Err(); err != nil {
		c.logger.Error("Failed to cache outcome", zap.Error(err))
		return fmt.Errorf("failed to cache outcome: %w", err)
	}

	c.logger.Debug("Outcome cached", zap.String("key", key))
	return nil
}

// GetStats returns cache performance statistics. Memory usage is left at
// zero when the server does not report it.
func (c *ResultCache) GetStats(ctx context.Context) (*CacheStats, error) {
	stats := &CacheStats{
		Hits:   c.hits.Load(),
		Misses: c.misses.Load(),
	}

	total := stats.Hits + stats.Misses
	if total > 0 {
		stats.HitRate = float64(stats.Hits) / float64(total) * 100
	}

	keys, err := c.client.DBSize(ctx).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get Redis key count: %w", err)
	}
	stats.TotalKeys = keys

	info, err := c.client.Info(ctx, "memory").Result()
	if err != nil {
		c.logger.Debug("Redis memory info unavailable", zap.Error(err))
		return stats, nil
	}
	for _, line := range strings.Split(info, "\r\n") {
		if memStr, ok := strings.CutPrefix(line, "used_memory:"); ok {
			if mem, err := strconv.ParseInt(memStr, 10, 64); err == nil {
				stats.MemoryUsage = mem
			}
		}
	}

	return stats, nil
}

// Clear removes all cached outcomes under the key prefix and returns how
// many were deleted
func (c *ResultCache) Clear(ctx context.Context) (int, error) {
	iter := c.client.Scan(ctx, 0, c.config.KeyPrefix+":doc:*", 0).Iterator()
	var keys []string

	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return 0, fmt.Errorf("failed to scan cache keys: %w", err)
	}

	const batchSize = 100
	for i := 0; i < len(keys); i += batchSize {
		end := min(i+batchSize, len(keys))
		if err := c.client.Del(ctx, keys[i:end]...).Err(); err != nil {
			return i, fmt.Errorf("failed to delete cache keys: %w", err)
		}
	}

	c.logger.Info("Cache cleared", zap.Int("deleted_keys", len(keys)))
	return len(keys), nil
}

// Close closes the Redis connection
func (c *ResultCache) Close() error {
	if c.client != nil {
		return c.client.Close()
	}
	return nil
}

// generateKey derives a cache key from the text and every option that
// changes the output. Custom names are order-insensitive.
func generateKey(prefix, text string, opts redaction.Options) string {
	names := append([]string(nil), opts.CustomNames...)
	sort.Strings(names)

	hasher := sha256.New()
	hasher.Write([]byte(text))
	hasher.Write([]byte{0})
	for _, name := range names {
		hasher.Write([]byte(name))
		hasher.Write([]byte{0})
	}
	hasher.Write([]byte(strconv.FormatBool(opts.RedactDates)))

	return fmt.Sprintf("%s:doc:%s", prefix, hex.EncodeToString(hasher.Sum(nil)))
}

// maskRedisURL masks the password in a Redis URL for logging
func maskRedisURL(url string) string {
	at := strings.LastIndex(url, "@")
	if at < 0 {
		return url
	}
	start := 0
	if scheme := strings.Index(url, "://"); scheme >= 0 && scheme < at {
		start = scheme + 3
	}
	colon := strings.Index(url[start:at], ":")
	if colon < 0 {
		return url
	}
	return url[:start+colon+1] + "***" + url[at:]
}
