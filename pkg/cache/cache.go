// Package cache implements the two-tier LLM response cache (C1): an
// in-process tier backed by a mutex-guarded map, as in the teacher's
// infrastructure/cache package, decorating a network tier backed by Redis.
// Keys are namespaced "llm:<namespace>:<hash>" and values are raw JSON bytes
// so callers control their own marshaling.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/LucasBiason/threat-modeling-ai/pkg/logger"
)

// Cache is the interface both tiers, and the combined Cache, satisfy.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration)
}

type entry struct {
	value      []byte
	expiration time.Time
}

// memTier is the in-process tier, mirroring the teacher's Cache struct.
type memTier struct {
	mu      sync.RWMutex
	entries map[string]entry
}

func newMemTier() *memTier {
	return &memTier{entries: make(map[string]entry)}
}

func (m *memTier) Get(_ context.Context, key string) ([]byte, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.entries[key]
	if !ok || time.Now().After(e.expiration) {
		return nil, false
	}
	return e.value, true
}

func (m *memTier) Set(_ context.Context, key string, value []byte, ttl time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = entry{value: value, expiration: time.Now().Add(ttl)}
}

func (m *memTier) invalidate(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, key)
}

// redisTier is the network tier; a nil *redis.Client degrades every call to
// a no-op miss so the combined cache still works with Redis unconfigured.
type redisTier struct {
	client *redis.Client
	log    *logger.Logger
}

func (r *redisTier) Get(ctx context.Context, key string) ([]byte, bool) {
	if r.client == nil {
		return nil, false
	}
	val, err := r.client.Get(ctx, key).Bytes()
	if err != nil {
		if err != redis.Nil {
			r.log.WithField("key", key).WithError(err).Warn("cache redis get failed")
		}
		return nil, false
	}
	return val, true
}

func (r *redisTier) Set(ctx context.Context, key string, value []byte, ttl time.Duration) {
	if r.client == nil {
		return
	}
	if err := r.client.Set(ctx, key, value, ttl).Err(); err != nil {
		r.log.WithField("key", key).WithError(err).Warn("cache redis set failed")
	}
}

// TieredCache decorates a network tier with a faster in-process tier, as
// described in the design note on C1: a hit populates the memory tier so
// repeat lookups within the process skip the round trip.
type TieredCache struct {
	mem        *memTier
	net        *redisTier
	defaultTTL time.Duration
}

// New builds a TieredCache. redisURL may be empty, in which case the network
// tier is disabled and the cache behaves as in-process only.
func New(redisURL string, defaultTTL time.Duration, log *logger.Logger) *TieredCache {
	var client *redis.Client
	if redisURL != "" {
		if opt, err := redis.ParseURL(redisURL); err == nil {
			client = redis.NewClient(opt)
		} else {
			log.WithError(err).Warn("invalid REDIS_URL, cache network tier disabled")
		}
	}
	return &TieredCache{
		mem:        newMemTier(),
		net:        &redisTier{client: client, log: log},
		defaultTTL: defaultTTL,
	}
}

// Get checks the in-process tier first, then the network tier, promoting a
// network hit into the in-process tier before returning it.
func (c *TieredCache) Get(ctx context.Context, key string) ([]byte, bool) {
	if v, ok := c.mem.Get(ctx, key); ok {
		return v, true
	}
	if v, ok := c.net.Get(ctx, key); ok {
		c.mem.Set(ctx, key, v, c.defaultTTL)
		return v, true
	}
	return nil, false
}

// Set writes to both tiers so cache.Get calls made by a different process
// still find the value.
func (c *TieredCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) {
	if ttl <= 0 {
		ttl = c.defaultTTL
	}
	c.mem.Set(ctx, key, value, ttl)
	c.net.Set(ctx, key, value, ttl)
}

// Invalidate removes a key from the in-process tier immediately; the network
// tier's copy expires on its own TTL.
func (c *TieredCache) Invalidate(key string) {
	c.mem.invalidate(key)
}

// Key builds the "llm:<namespace>:<hash>" cache key from a canonical JSON
// encoding of parts, matching the original service's sha256(json.dumps(...,
// sort_keys=True)) scheme. parts must already be in a stable field order;
// callers pass a struct or ordered slice, never a map, to keep hashing
// deterministic.
func Key(namespace string, parts interface{}) (string, error) {
	data, err := json.Marshal(parts)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return "llm:" + namespace + ":" + hex.EncodeToString(sum[:]), nil
}

// GetJSON is a convenience wrapper that unmarshals a cache hit into dst.
func GetJSON(ctx context.Context, c Cache, key string, dst interface{}) (bool, error) {
	raw, ok := c.Get(ctx, key)
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return false, err
	}
	return true, nil
}

// SetJSON is a convenience wrapper that marshals value before storing it.
func SetJSON(ctx context.Context, c Cache, key string, value interface{}, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	c.Set(ctx, key, data, ttl)
	return nil
}
