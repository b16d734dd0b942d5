package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/go-redis/redis/v8"

	"marketdash/models"
)

// CandleCacheTTL bounds how stale a cached latest candle may be
const CandleCacheTTL = 2 * time.Second

// CandleCache keeps the latest candle per feed in Redis so that many
// concurrent dashboard clients do not translate into one upstream
// fetch each. Optional: a nil *CandleCache is a no-op on every method.
type CandleCache struct {
	client *redis.Client
}

// Global candle cache; nil when Redis is not configured
var GlobalCandleCache *CandleCache

// InitCandleCache connects to Redis when host is non-empty. A missing
// or unreachable Redis degrades to no caching, not an error.
func InitCandleCache(host, port string) {
	if host == "" {
		log.Println("REDIS_HOST not set, candle cache disabled")
		return
	}

	client := redis.NewClient(&redis.Options{
		Addr: host + ":" + port,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		log.Printf("Warning: Redis unreachable, candle cache disabled: %v", err)
		return
	}

	GlobalCandleCache = &CandleCache{client: client}
	log.Printf("Candle cache connected to Redis at %s:%s", host, port)
}

func candleCacheKey(provider, symbol, interval string) string {
	return fmt.Sprintf("candle:latest:%s:%s:%s", provider, symbol, interval)
}

// GetLatest returns the cached latest candle for a feed, or nil on
// miss (or when caching is disabled)
func (c *CandleCache) GetLatest(ctx context.Context, provider, symbol, interval string) *models.Candle {
	if c == nil {
		return nil
	}

	data, err := c.client.Get(ctx, candleCacheKey(provider, symbol, interval)).Bytes()
	if err != nil {
		return nil
	}
	var candle models.Candle
	if err := json.Unmarshal(data, &candle); err != nil {
		return nil
	}
	return &candle
}

// SetLatest caches the latest candle for a feed with a short TTL
func (c *CandleCache) SetLatest(ctx context.Context, candle *models.Candle) {
	if c == nil || candle == nil {
		return
	}

	data, err := json.Marshal(candle)
	if err != nil {
		return
	}
	key := candleCacheKey(candle.Provider, candle.Symbol, candle.Interval)
	if err := c.client.Set(ctx, key, data, CandleCacheTTL).Err(); err != nil {
		log.Printf("Warning: failed to cache candle %s: %v", key, err)
	}
}

// Close closes the Redis connection
func (c *CandleCache) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}
