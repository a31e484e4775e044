// internal/pipeline/schema/cached.go
package schema

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"nlquery-agent/internal/common/logger"
	"nlquery-agent/internal/models"
)

// CacheKey composes <prefix>:<backend>:<source>.
func CacheKey(prefix string, backend models.Backend, source string) string {
	return strings.Join([]string{prefix, string(backend), source}, ":")
}

// CachedBuilder serves snapshots from Redis and falls through to the wrapped
// builder on a miss. Redis failures are logged and never fail a build.
type CachedBuilder struct {
	inner  Builder
	redis  *redis.Client
	key    string
	ttl    time.Duration
	logger logger.Logger
}

func NewCachedBuilder(inner Builder, client *redis.Client, key string, ttl time.Duration, log logger.Logger) *CachedBuilder {
	return &CachedBuilder{
		inner:  inner,
		redis:  client,
		key:    key,
		ttl:    ttl,
		logger: log.WithFields(map[string]interface{}{"cacheKey": key}),
	}
}

func (c *CachedBuilder) Build(ctx context.Context) (models.SchemaSnapshot, error) {
	if snapshot, ok := c.get(ctx); ok {
		return snapshot, nil
	}

	snapshot, err := c.inner.Build(ctx)
	if err != nil {
		return snapshot, err
	}
	c.set(ctx, snapshot)
	return snapshot, nil
}

// Invalidate drops the cached snapshot.
func (c *CachedBuilder) Invalidate(ctx context.Context) error {
	return c.redis.Del(ctx, c.key).Err()
}

func (c *CachedBuilder) get(ctx context.Context) (models.SchemaSnapshot, bool) {
	raw, err := c.redis.Get(ctx, c.key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Warn("schema cache read failed", map[string]interface{}{"error": err})
		}
		return models.SchemaSnapshot{}, false
	}

	var snapshot models.SchemaSnapshot
	if err := json.Unmarshal(raw, &snapshot); err != nil {
		c.logger.Warn("schema cache entry is corrupt", map[string]interface{}{"error": err})
		return models.SchemaSnapshot{}, false
	}
	c.logger.Debug("schema cache hit", nil)
	return snapshot, true
}

func (c *CachedBuilder) set(ctx context.Context, snapshot models.SchemaSnapshot) {
	raw, err := json.Marshal(snapshot)
	if err != nil {
		return
	}
	if err := c.redis.Set(ctx, c.key, raw, c.ttl).Err(); err != nil {
		c.logger.Warn("schema cache write failed", map[string]interface{}{"error": err})
	}
}
