package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/ppiankov/sourcecheck/internal/model"
)

// NoExpiration keeps an entry for the life of the cache
const NoExpiration time.Duration = -1

// Cache defines the interface for caching. Implementations are safe for
// concurrent use; Set on an existing key replaces the value.
type Cache interface {
	Get(key string) ([]byte, bool)
	Set(key string, value []byte, ttl time.Duration) error
	Delete(key string) error
	Clear() error
}

// CacheKey generates a cache key from a URL
func CacheKey(url string) string {
	hash := sha256.Sum256([]byte(url))
	return "sourcecheck:v1:" + hex.EncodeToString(hash[:])
}

// New builds the cache described by cfg: memory only, memory over disk, or a
// no-op cache when caching is disabled
func New(cfg model.CacheConfig) Cache {
	if !cfg.Enabled {
		return NopCache{}
	}
	if cfg.DiskDir == "" {
		return NewMemoryCache(NoExpiration, 0)
	}
	return NewLayeredCache(NoExpiration, cfg.DiskDir, cfg.DiskTTL)
}

// NopCache stores nothing
type NopCache struct{}

// Get always misses
func (NopCache) Get(string) ([]byte, bool) { return nil, false }

// Set discards the value
func (NopCache) Set(string, []byte, time.Duration) error { return nil }

// Delete does nothing
func (NopCache) Delete(string) error { return nil }

// Clear does nothing
func (NopCache) Clear() error { return nil }
