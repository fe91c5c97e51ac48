package prices

import (
	"context"
	"sync"
	"time"

	"github.com/trypto13/jeet-tracker/internal/indexer"
	"github.com/trypto13/jeet-tracker/internal/models"
	"github.com/trypto13/jeet-tracker/shared/logger"
)

type cacheEntry struct {
	info      *indexer.PriceInfo
	fetchedAt time.Time
}

// Cache is a best-effort, null-tolerant price cache over the indexer's
// /prices endpoint. A fetch failure serves the stale entry, or nil when
// there is none; callers skip the price line for nil.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]cacheEntry

	indexer   models.IndexerAPI
	ttl       time.Duration
	appLogger *logger.Logger
}

func NewCache(indexerAPI models.IndexerAPI, ttl time.Duration, appLogger *logger.Logger) *Cache {
	if ttl <= 0 {
		ttl = 2 * time.Minute
	}
	return &Cache{
		entries:   make(map[string]cacheEntry),
		indexer:   indexerAPI,
		ttl:       ttl,
		appLogger: appLogger,
	}
}

// Get returns price info for a contract, refreshing opportunistically when
// the cached entry is stale. Never returns an error; price data is best
// effort.
func (c *Cache) Get(ctx context.Context, contract string) *indexer.PriceInfo {
	c.mu.RLock()
	entry, ok := c.entries[contract]
	c.mu.RUnlock()
	if ok && time.Since(entry.fetchedAt) < c.ttl {
		return entry.info
	}

	info, err := c.indexer.Prices(ctx, contract)
	if err != nil {
		c.appLogger.Debug("Price fetch failed, serving stale entry", "contract", contract, "error", err)
		if ok {
			return entry.info
		}
		return nil
	}

	c.mu.Lock()
	c.entries[contract] = cacheEntry{info: info, fetchedAt: time.Now()}
	c.mu.Unlock()
	return info
}
