package cache

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/allegro/bigcache/v3"
	"go.uber.org/zap"

	"github.com/dumaterial/materials-api/internal/config"
	"github.com/dumaterial/materials-api/internal/domain"
	"github.com/dumaterial/materials-api/internal/repository"
)

// listingShards is small: the key space is bounded by distinct sem/subject queries.
const listingShards = 64

// MaterialCache memoizes material listings. Any write resets the whole cache
// and bumps the generation, so entries never outlive the data they were
// built from.
type MaterialCache struct {
	cache  *bigcache.BigCache
	logger *zap.Logger

	mu         sync.RWMutex
	generation uint64
}

// NewMaterialCache returns nil when caching is disabled. A nil cache is a valid no-op.
func NewMaterialCache(cfg config.CacheConfig, logger *zap.Logger) (*MaterialCache, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	life := time.Duration(cfg.LifeWindowSecs) * time.Second
	if life <= 0 {
		life = time.Minute
	}
	bcCfg := bigcache.DefaultConfig(life)
	bcCfg.Shards = listingShards
	bcCfg.CleanWindow = life
	bcCfg.HardMaxCacheSize = cfg.HardMaxCacheMB
	bcCfg.Verbose = false

	bc, err := bigcache.NewBigCache(bcCfg)
	if err != nil {
		return nil, fmt.Errorf("init material cache: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MaterialCache{cache: bc, logger: logger}, nil
}

// ListKey identifies one listing query.
func ListKey(filter repository.MaterialFilter) string {
	f := filter.Normalize()
	return fmt.Sprintf("list|%s|%s|%s|%d|%d", f.Sem, f.Subject, f.CreatorID, f.Limit, f.Offset)
}

// GetList returns a cached listing.
func (c *MaterialCache) GetList(key string) ([]domain.Material, bool) {
	if c == nil {
		return nil, false
	}
	raw, err := c.cache.Get(key)
	if err != nil {
		if !errors.Is(err, bigcache.ErrEntryNotFound) {
			c.logger.Warn("material cache read failed", zap.String("key", key), zap.Error(err))
		}
		return nil, false
	}
	var materials []domain.Material
	if err := json.Unmarshal(raw, &materials); err != nil {
		c.logger.Warn("material cache entry corrupt", zap.String("key", key), zap.Error(err))
		_ = c.cache.Delete(key)
		return nil, false
	}
	return materials, true
}

// Generation identifies the current cache contents. Read it before loading
// the data passed to SetList.
func (c *MaterialCache) Generation() uint64 {
	if c == nil {
		return 0
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.generation
}

// SetList stores a listing loaded while generation was current. A Reset since
// then means the listing may predate a write, so it is dropped. Failures only
// cost a cache miss.
func (c *MaterialCache) SetList(key string, generation uint64, materials []domain.Material) {
	if c == nil {
		return
	}
	raw, err := json.Marshal(materials)
	if err != nil {
		return
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	if generation != c.generation {
		return
	}
	if err := c.cache.Set(key, raw); err != nil {
		c.logger.Warn("material cache write failed", zap.String("key", key), zap.Error(err))
	}
}

// Reset drops every entry.
func (c *MaterialCache) Reset() {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.generation++
	if err := c.cache.Reset(); err != nil {
		c.logger.Warn("material cache reset failed", zap.Error(err))
	}
}

// Len reports the number of cached listings.
func (c *MaterialCache) Len() int {
	if c == nil {
		return 0
	}
	return c.cache.Len()
}

// Close stops the cleanup goroutine.
func (c *MaterialCache) Close() error {
	if c == nil {
		return nil
	}
	return c.cache.Close()
}
