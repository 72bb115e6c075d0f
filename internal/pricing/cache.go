package pricing

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"lv-goldex/internal/model"
	"lv-goldex/internal/types"

	"github.com/redis/go-redis/v9"
)

// RedisCache keeps quotes for a short TTL in front of a slower source.
// Cache failures degrade to the underlying source.
type RedisCache struct {
	client *redis.Client
	next   Source
	ttl    time.Duration
	prefix string
	logger *slog.Logger
}

func NewRedisCache(client *redis.Client, next Source, ttl time.Duration, prefix string, logger *slog.Logger) *RedisCache {
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisCache{client: client, next: next, ttl: ttl, prefix: prefix, logger: logger}
}

func (c *RedisCache) key(product types.ProductType) string {
	return c.prefix + "quote:" + string(product)
}

func (c *RedisCache) GetActivePrice(ctx context.Context, product types.ProductType) (model.Quote, error) {
	raw, err := c.client.Get(ctx, c.key(product)).Bytes()
	if err == nil {
		var q model.Quote
		if jsonErr := json.Unmarshal(raw, &q); jsonErr == nil && validQuote(q) {
			return q, nil
		}
	} else if !errors.Is(err, redis.Nil) {
		c.logger.Warn("quote cache read failed", "product", product, "error", err)
	}

	q, err := c.next.GetActivePrice(ctx, product)
	if err != nil {
		return q, err
	}
	payload, err := json.Marshal(q)
	if err == nil {
		if setErr := c.client.Set(ctx, c.key(product), payload, c.ttl).Err(); setErr != nil {
			c.logger.Warn("quote cache write failed", "product", product, "error", setErr)
		}
	}
	return q, nil
}

// Invalidate drops a cached quote after an admin price change.
func (c *RedisCache) Invalidate(ctx context.Context, product types.ProductType) error {
	return c.client.Del(ctx, c.key(product)).Err()
}
