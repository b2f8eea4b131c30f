// Shelfmark - Book Recommendation Engine
// Copyright 2026 Shelfmark Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/shelfmark/shelfmark

// Package candidatecache provides the two-tier candidate cache.
//
// The fast tier is an in-process LRU; the durable tier is any
// recommend.CacheStore. Reads check fast first, fall through to durable and
// backfill. Writes populate the fast tier synchronously and the durable tier
// fire-and-forget: a write failure can only ever cause a future cache miss,
// never a wrong answer. The durable tier sits behind a circuit breaker so a
// struggling store degrades the cache to in-process-only instead of adding
// latency to every request.
package candidatecache

import (
	"context"
	"fmt"
	"strconv"
	"time"

	json "github.com/goccy/go-json"
	"github.com/rs/zerolog"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/shelfmark/shelfmark/internal/cache"
	"github.com/shelfmark/shelfmark/internal/metrics"
	"github.com/shelfmark/shelfmark/internal/recommend"
)

// keyVersion is bumped whenever the entry encoding changes, orphaning stale
// durable entries instead of decoding them wrongly.
const keyVersion = "v1"

// durableWriteTimeout bounds the background durable write.
const durableWriteTimeout = 5 * time.Second

// entry is the serialized cache payload.
type entry struct {
	Candidates []recommend.Candidate `json:"candidates"`
	CreatedAt  time.Time             `json:"created_at"`
}

// Cache is the two-tier candidate cache. A nil *Cache is valid and behaves
// as a permanent miss, so callers need no enabled checks.
type Cache struct {
	fast    *cache.LRUCache
	durable recommend.CacheStore
	breaker *gobreaker.CircuitBreaker[[]byte]

	durableTTL time.Duration
	logger     zerolog.Logger

	// now is injectable for deterministic tests.
	now func() time.Time
}

// New creates a two-tier cache. durable may be nil, leaving only the fast
// tier. Returns nil when the cache is disabled.
//
//nolint:gocritic // logger passed by value is acceptable for zerolog
func New(cfg recommend.CacheConfig, durable recommend.CacheStore, logger zerolog.Logger) *Cache {
	if !cfg.Enabled {
		return nil
	}

	c := &Cache{
		fast:       cache.NewLRUCache(cfg.FastCapacity, cfg.FastTTL),
		durable:    durable,
		durableTTL: cfg.DurableTTL,
		logger:     logger.With().Str("component", "candidatecache").Logger(),
		now:        time.Now,
	}

	if durable != nil {
		c.breaker = gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
			Name:        "candidate-cache-durable",
			MaxRequests: 3,
			Interval:    time.Minute,
			Timeout:     30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
		})
	}

	return c
}

// Key builds the cache key for one (user, mode, subkey) triple. subKey is
// the seed work ID or category slug; empty for general mode.
func Key(userID int64, mode, subKey string) string {
	key := userPrefix(userID) + mode
	if subKey != "" {
		key += ":" + subKey
	}
	return key
}

// userPrefix is the key prefix covering all of one user's entries.
func userPrefix(userID int64) string {
	return "cand:" + keyVersion + ":" + strconv.FormatInt(userID, 10) + ":"
}

// Get returns the cached candidates for key, or ok=false on any miss.
// Durable-tier errors are misses, never failures.
func (c *Cache) Get(ctx context.Context, key string) ([]recommend.Candidate, bool) {
	if c == nil {
		return nil, false
	}

	if raw, ok := c.fast.Get(key); ok {
		if cands, err := decode(raw); err == nil {
			metrics.CacheHits.WithLabelValues("fast").Inc()
			return cands, true
		}
		c.fast.Remove(key)
	}
	metrics.CacheMisses.WithLabelValues("fast").Inc()

	if c.durable == nil {
		return nil, false
	}

	raw, err := c.breaker.Execute(func() ([]byte, error) {
		return c.durable.Get(ctx, key)
	})
	if err != nil {
		metrics.CacheMisses.WithLabelValues("durable").Inc()
		return nil, false
	}

	cands, err := decode(raw)
	if err != nil {
		c.logger.Warn().Err(err).Str("key", key).Msg("corrupt durable cache entry")
		metrics.CacheMisses.WithLabelValues("durable").Inc()
		return nil, false
	}

	// Backfill the fast tier so the next read stays in process.
	c.fast.Add(key, raw)
	metrics.CacheHits.WithLabelValues("durable").Inc()
	return cands, true
}

// Put stores the candidates under key. The fast tier is written
// synchronously; the durable write happens in the background and its
// failure is logged, not returned.
func (c *Cache) Put(ctx context.Context, key string, candidates []recommend.Candidate) {
	if c == nil {
		return
	}

	raw, err := json.Marshal(entry{
		Candidates: candidates,
		CreatedAt:  c.now(),
	})
	if err != nil {
		c.logger.Error().Err(err).Str("key", key).Msg("encode cache entry")
		return
	}

	c.fast.Add(key, raw)

	if c.durable == nil {
		return
	}

	go func() {
		writeCtx, cancel := context.WithTimeout(context.Background(), durableWriteTimeout)
		defer cancel()

		_, err := c.breaker.Execute(func() ([]byte, error) {
			return nil, c.durable.Set(writeCtx, key, raw, c.durableTTL)
		})
		if err != nil {
			metrics.CacheWriteErrors.Inc()
			c.logger.Warn().Err(err).Str("key", key).Msg("durable cache write failed")
		}
	}()
}

// Invalidate drops every cached entry for the user across both tiers.
// Called after a profile rebuild so stale candidates are not served against
// the new taste vector.
func (c *Cache) Invalidate(ctx context.Context, userID int64) error {
	if c == nil {
		return nil
	}

	prefix := userPrefix(userID)
	c.fast.RemovePrefix(prefix)
	metrics.CacheInvalidations.Inc()

	if c.durable == nil {
		return nil
	}

	_, err := c.breaker.Execute(func() ([]byte, error) {
		return nil, c.durable.DeletePrefix(ctx, prefix)
	})
	if err != nil {
		return fmt.Errorf("invalidate durable cache: %w", err)
	}
	return nil
}

// decode unmarshals a serialized entry back into candidates.
func decode(raw []byte) ([]recommend.Candidate, error) {
	var e entry
	if err := json.Unmarshal(raw, &e); err != nil {
		return nil, fmt.Errorf("decode cache entry: %w", err)
	}
	return e.Candidates, nil
}
