package locator

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/herodrop/rewards-service/internal/catalog"
	"github.com/herodrop/rewards-service/internal/domain"
	"github.com/redis/go-redis/v9"
)

// Cache stores match lists per catalog version and normalized query.
type Cache interface {
	Get(ctx context.Context, key string) ([]domain.FacilityMatch, bool, error)
	Set(ctx context.Context, key string, matches []domain.FacilityMatch) error
}

// CacheKey derives the cache key for a query against a catalog version.
func CacheKey(catalogVersion, query string) string {
	sum := sha256.Sum256([]byte(catalog.Normalize(query)))
	return catalogVersion + ":" + hex.EncodeToString(sum[:12])
}

// RedisCache keeps match lists in Redis with a fixed TTL.
type RedisCache struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

func NewRedisCache(client redis.UniversalClient, prefix string, ttl time.Duration) *RedisCache {
	prefix = strings.TrimSuffix(strings.TrimSpace(prefix), ":")
	if prefix == "" {
		prefix = "herodrop"
	}
	return &RedisCache{client: client, prefix: prefix + ":facilities", ttl: ttl}
}

func (c *RedisCache) key(k string) string {
	return fmt.Sprintf("%s:%s", c.prefix, k)
}

func (c *RedisCache) Get(ctx context.Context, key string) ([]domain.FacilityMatch, bool, error) {
	raw, err := c.client.Get(ctx, c.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var matches []domain.FacilityMatch
	if err := json.Unmarshal(raw, &matches); err != nil {
		return nil, false, fmt.Errorf("decode cached matches: %w", err)
	}
	return matches, true, nil
}

func (c *RedisCache) Set(ctx context.Context, key string, matches []domain.FacilityMatch) error {
	raw, err := json.Marshal(matches)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, c.key(key), raw, c.ttl).Err()
}
