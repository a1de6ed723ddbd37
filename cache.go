package ytaccess

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const cacheKeyPrefix = "ytaccess:"

// resultCache is a two level cache-aside store: an in-process expiring LRU
// in front of an optional Redis. Values are kept as JSON so callers always
// get their own copy.
type resultCache struct {
	l1      *expirable.LRU[string, []byte]
	rdb     *redis.Client
	ttl     time.Duration
	metrics *metrics
	logger  *zap.Logger
}

func newResultCache(size int, ttl time.Duration, rdb *redis.Client, m *metrics, logger *zap.Logger) *resultCache {
	return &resultCache{
		l1:      expirable.NewLRU[string, []byte](size, nil, ttl),
		rdb:     rdb,
		ttl:     ttl,
		metrics: m,
		logger:  logger,
	}
}

// get decodes the cached value for key into v. L2 hits are copied into L1.
func (c *resultCache) get(ctx context.Context, key string, v any) bool {
	if c == nil {
		return false
	}
	key = cacheKeyPrefix + key

	if data, ok := c.l1.Get(key); ok && json.Unmarshal(data, v) == nil {
		c.metrics.cacheHits.Inc()
		return true
	}

	if c.rdb != nil {
		data, err := c.rdb.Get(ctx, key).Bytes()
		switch {
		case err == nil:
			if json.Unmarshal(data, v) == nil {
				c.l1.Add(key, data)
				c.metrics.cacheHits.Inc()
				return true
			}
		case !errors.Is(err, redis.Nil):
			c.logger.Debug("redis get failed", zap.String("key", key), zap.Error(err))
		}
	}

	c.metrics.cacheMisses.Inc()
	return false
}

func (c *resultCache) set(ctx context.Context, key string, v any) {
	if c == nil {
		return
	}
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	key = cacheKeyPrefix + key
	c.l1.Add(key, data)
	if c.rdb != nil {
		if err := c.rdb.Set(ctx, key, data, c.ttl).Err(); err != nil {
			c.logger.Debug("redis set failed", zap.String("key", key), zap.Error(err))
		}
	}
}

// purge drops the in-process entries. Redis entries expire on their own.
func (c *resultCache) purge() {
	if c != nil {
		c.l1.Purge()
	}
}

// connectRedis returns a client for url, or nil when url is empty or the
// server does not answer, in which case caching stays in-process.
func connectRedis(url string, logger *zap.Logger) *redis.Client {
	if url == "" {
		return nil
	}
	opts, err := redis.ParseURL(url)
	if err != nil {
		logger.Warn("invalid redis url, L2 cache disabled", zap.Error(err))
		return nil
	}
	rdb := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		logger.Warn("redis unreachable, L2 cache disabled", zap.Error(err))
		_ = rdb.Close()
		return nil
	}
	logger.Info("redis cache connected", zap.String("addr", opts.Addr))
	return rdb
}
