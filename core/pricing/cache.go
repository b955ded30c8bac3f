// Package pricing - In-memory price cache with TTL
package pricing

import (
	"sort"
	"sync"
	"time"

	"storage-cost/core/types"
	"storage-cost/internal/errors"
)

// PriceCacheEntry is a cached price for one (region, meter key)
type PriceCacheEntry struct {
	// Region is the normalized region (partition)
	Region string `json:"region"`

	// Key is the meter key (row)
	Key MeterKey `json:"-"`

	// Price is the normalized unit price
	Price types.UnitPrice `json:"price"`

	// FetchedAt is when the price was obtained
	FetchedAt time.Time `json:"fetchedAt"`

	// ExpiresAt is when the entry becomes stale
	ExpiresAt time.Time `json:"expiresAt"`
}

// IsExpired reports whether the entry is stale at now
func (e PriceCacheEntry) IsExpired(now time.Time) bool {
	return now.After(e.ExpiresAt)
}

// Validate checks the entry may be written
func (e PriceCacheEntry) Validate() error {
	if e.Region == "" {
		return errors.InvalidMeterKey("cache entry for %q has no region", e.Key.String())
	}
	if err := e.Key.Validate(); err != nil {
		return err
	}
	if e.ExpiresAt.Before(e.FetchedAt) {
		return errors.Newf(errors.TypeInternal, "cache entry %s/%s expires before it was fetched", e.Region, e.Key)
	}
	return nil
}

// Cache holds price entries in memory. Expired entries are kept so they
// can be served when a refresh fails.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]PriceCacheEntry
}

// NewCache creates an empty cache
func NewCache() *Cache {
	return &Cache{entries: make(map[string]PriceCacheEntry)}
}

func cacheKey(region string, key MeterKey) string {
	return region + "/" + key.String()
}

// Get returns the entry for (region, key), expired or not
func (c *Cache) Get(region string, key MeterKey) (PriceCacheEntry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[cacheKey(NormalizeRegion(region), key)]
	return e, ok
}

// Put stores an entry. Entries with an invalid key are rejected.
func (c *Cache) Put(e PriceCacheEntry) error {
	e.Region = NormalizeRegion(e.Region)
	if err := e.Validate(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[cacheKey(e.Region, e.Key)] = e
	return nil
}

// Delete removes an entry
func (c *Cache) Delete(region string, key MeterKey) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, cacheKey(NormalizeRegion(region), key))
}

// Len returns the number of entries
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Entries returns all entries ordered by region then key
func (c *Cache) Entries() []PriceCacheEntry {
	c.mu.RLock()
	out := make([]PriceCacheEntry, 0, len(c.entries))
	for _, e := range c.entries {
		out = append(out, e)
	}
	c.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Region != out[j].Region {
			return out[i].Region < out[j].Region
		}
		return out[i].Key.String() < out[j].Key.String()
	})
	return out
}
