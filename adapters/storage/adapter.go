// Package storage provides the persistence adapters for the price cache and
// daily cost history.
// Supports multiple backends: memory, SQLite, PostgreSQL.
package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"storage-cost/core/forecast"
	"storage-cost/core/pricing"
	"storage-cost/internal/config"
	"storage-cost/internal/errors"
)

// Backend is a storage backend type
type Backend string

const (
	BackendMemory   Backend = "memory"
	BackendSQLite   Backend = "sqlite"
	BackendPostgres Backend = "postgres"
)

// Store is the storage interface
type Store interface {
	pricing.Store
	forecast.HistoryStore

	// Close closes the store
	Close() error
}

// Open creates the store selected by cfg
func Open(ctx context.Context, cfg config.StoreConfig, logger *zap.Logger) (Store, error) {
	switch Backend(cfg.Backend) {
	case BackendMemory, "":
		return NewMemoryStore(), nil
	case BackendSQLite:
		s, err := NewSQLiteStore(ctx, cfg.SQLitePath, logger)
		if err != nil {
			return nil, err
		}
		return s, nil
	case BackendPostgres:
		s, err := NewPostgresStore(ctx, cfg.PostgresDSN, logger)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, errors.Config("unknown store backend " + cfg.Backend)
	}
}

// MemoryStore keeps everything in process memory
type MemoryStore struct {
	mu      sync.RWMutex
	prices  map[string]pricing.PriceCacheEntry
	history map[string]map[string]forecast.Sample
}

// NewMemoryStore creates an empty memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		prices:  make(map[string]pricing.PriceCacheEntry),
		history: make(map[string]map[string]forecast.Sample),
	}
}

func priceRowID(region string, key pricing.MeterKey) string {
	return region + "|" + key.String()
}

// LoadPrices returns every persisted entry ordered by region and key
func (s *MemoryStore) LoadPrices(ctx context.Context) ([]pricing.PriceCacheEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]pricing.PriceCacheEntry, 0, len(s.prices))
	for _, e := range s.prices {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Region != out[j].Region {
			return out[i].Region < out[j].Region
		}
		return out[i].Key.String() < out[j].Key.String()
	})
	return out, nil
}

// SavePrice upserts an entry
func (s *MemoryStore) SavePrice(ctx context.Context, e pricing.PriceCacheEntry) error {
	if err := e.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prices[priceRowID(e.Region, e.Key)] = e
	return nil
}

// DeletePrice removes an entry; missing entries are not an error
func (s *MemoryStore) DeletePrice(ctx context.Context, region string, key pricing.MeterKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.prices, priceRowID(region, key))
	return nil
}

// AppendDaily records the total for day, replacing an existing value
func (s *MemoryStore) AppendDaily(ctx context.Context, resourceID string, day time.Time, cost decimal.Decimal) error {
	if resourceID == "" {
		return errors.New(errors.TypeInternal, "resource id is required")
	}
	d := forecast.Day(day)
	s.mu.Lock()
	defer s.mu.Unlock()
	days, ok := s.history[resourceID]
	if !ok {
		days = make(map[string]forecast.Sample)
		s.history[resourceID] = days
	}
	days[d.Format(time.DateOnly)] = forecast.Sample{ResourceID: resourceID, Day: d, Cost: cost}
	return nil
}

// Series returns the samples in [from, to), oldest first
func (s *MemoryStore) Series(ctx context.Context, resourceID string, from, to time.Time) ([]forecast.Sample, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []forecast.Sample
	for _, sample := range s.history[resourceID] {
		if sample.Day.Before(forecast.Day(from)) || !sample.Day.Before(forecast.Day(to)) {
			continue
		}
		out = append(out, sample)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Day.Before(out[j].Day) })
	return out, nil
}

// Close is a no-op
func (s *MemoryStore) Close() error {
	return nil
}
