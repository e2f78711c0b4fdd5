package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// RankInfo is the cached per-ASIN enrichment payload.
type RankInfo struct {
	RankInCategory int    `json:"rank_in_category"`
	Category       string `json:"category"`
}

// enrichmentEntry wraps a cached rank lookup with metadata.
type enrichmentEntry struct {
	Info      RankInfo  `json:"info"`
	CachedAt  time.Time `json:"cached_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// EnrichmentCacheStats tracks cache performance metrics.
type EnrichmentCacheStats struct {
	Hits   int64 `json:"hits"`
	Misses int64 `json:"misses"`
	Sets   int64 `json:"sets"`
}

// EnrichmentCache caches per-ASIN rank/category lookups in Redis with a
// bounded TTL, and collapses concurrent in-process requests for the same
// ASIN into a single upstream fetch.
type EnrichmentCache struct {
	redis  *redis.Client
	ttl    time.Duration
	prefix string

	statsMu sync.RWMutex
	stats   EnrichmentCacheStats

	mu       sync.Mutex
	inflight map[string]*inflightCall
}

type inflightCall struct {
	done chan struct{}
	info *RankInfo
	err  error
}

// NewEnrichmentCache creates a Redis-backed enrichment cache. The TTL is
// typically 7 days: rank data drifts slowly enough that a week-old lookup
// still beats a skipped one.
func NewEnrichmentCache(redisClient *redis.Client, ttl time.Duration) *EnrichmentCache {
	return &EnrichmentCache{
		redis:    redisClient,
		ttl:      ttl,
		prefix:   "enrichment:",
		inflight: make(map[string]*inflightCall),
	}
}

// Get retrieves a cached rank lookup for an ASIN.
func (c *EnrichmentCache) Get(ctx context.Context, asin string) (*RankInfo, bool) {
	cacheKey := c.prefix + asin

	data, err := c.redis.Get(ctx, cacheKey).Result()
	if err == redis.Nil {
		c.recordMiss()
		return nil, false
	}
	if err != nil {
		log.Printf("Redis error getting enrichment for %s: %v", asin, err)
		c.recordMiss()
		return nil, false
	}

	var entry enrichmentEntry
	if err := json.Unmarshal([]byte(data), &entry); err != nil {
		log.Printf("Error deserializing cached enrichment for %s: %v", asin, err)
		c.recordMiss()
		return nil, false
	}

	c.statsMu.Lock()
	c.stats.Hits++
	c.statsMu.Unlock()

	return &entry.Info, true
}

// Put stores a rank lookup for an ASIN with the configured TTL.
func (c *EnrichmentCache) Put(ctx context.Context, asin string, info RankInfo) {
	cacheKey := c.prefix + asin

	now := time.Now()
	entry := enrichmentEntry{
		Info:      info,
		CachedAt:  now,
		ExpiresAt: now.Add(c.ttl),
	}

	data, err := json.Marshal(entry)
	if err != nil {
		log.Printf("Error serializing enrichment for %s: %v", asin, err)
		return
	}

	if err := c.redis.Set(ctx, cacheKey, data, c.ttl).Err(); err != nil {
		log.Printf("Redis error setting enrichment for %s: %v", asin, err)
		return
	}

	c.statsMu.Lock()
	c.stats.Sets++
	c.statsMu.Unlock()
}

// Dedupe returns the cached value for an ASIN, or invokes factory exactly
// once per ASIN even under concurrent callers, caching its result. A nil
// result from factory means the upstream had no data; that outcome is not
// cached so a later analysis can retry.
func (c *EnrichmentCache) Dedupe(ctx context.Context, asin string, factory func() (*RankInfo, error)) (*RankInfo, error) {
	if info, ok := c.Get(ctx, asin); ok {
		return info, nil
	}

	c.mu.Lock()
	if call, ok := c.inflight[asin]; ok {
		c.mu.Unlock()
		select {
		case <-call.done:
			return call.info, call.err
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	call := &inflightCall{done: make(chan struct{})}
	c.inflight[asin] = call
	c.mu.Unlock()

	call.info, call.err = factory()
	close(call.done)

	c.mu.Lock()
	delete(c.inflight, asin)
	c.mu.Unlock()

	if call.err == nil && call.info != nil {
		c.Put(ctx, asin, *call.info)
	}

	return call.info, call.err
}

// GetStats returns current cache statistics.
func (c *EnrichmentCache) GetStats() EnrichmentCacheStats {
	c.statsMu.RLock()
	defer c.statsMu.RUnlock()
	return c.stats
}

// Clear removes all cached enrichment entries.
func (c *EnrichmentCache) Clear(ctx context.Context) error {
	pattern := c.prefix + "*"

	var keys []string
	iter := c.redis.Scan(ctx, 0, pattern, 0).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("error scanning cache keys: %w", err)
	}

	if len(keys) == 0 {
		return nil
	}

	if err := c.redis.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("error clearing cache: %w", err)
	}

	log.Printf("Cleared %d enrichment cache entries", len(keys))
	return nil
}

func (c *EnrichmentCache) recordMiss() {
	c.statsMu.Lock()
	c.stats.Misses++
	c.statsMu.Unlock()
}
