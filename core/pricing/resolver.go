// Package pricing - Caching price resolver
package pricing

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"storage-cost/core/types"
	"storage-cost/internal/errors"
	"storage-cost/internal/logging"
	"storage-cost/internal/metrics"
)

// Query is an outbound retail price query
type Query struct {
	// Region is the normalized region
	Region string

	// Product narrows the query to a service, product and optional SKU
	Product types.ProductRef

	// Currency is the requested currency
	Currency types.Currency
}

// PriceRow is one row returned by a retail price source
type PriceRow struct {
	MeterName        string
	ProductName      string
	SkuName          string
	UnitPrice        decimal.Decimal
	Currency         types.Currency
	UnitOfMeasure    string
	EffectiveDate    time.Time
	Type             string
	TierMinimumUnits decimal.Decimal
}

// Fetcher queries an external retail price source. Returning
// backoff.Permanent(err) stops retries.
type Fetcher interface {
	Fetch(ctx context.Context, q Query) ([]PriceRow, error)
}

// FetcherFunc adapts a function to Fetcher
type FetcherFunc func(ctx context.Context, q Query) ([]PriceRow, error)

// Fetch calls f
func (f FetcherFunc) Fetch(ctx context.Context, q Query) ([]PriceRow, error) {
	return f(ctx, q)
}

// Store persists cache entries across runs. Partition is region, row is
// meter key. Reconstructing from empty is always safe.
type Store interface {
	LoadPrices(ctx context.Context) ([]PriceCacheEntry, error)
	SavePrice(ctx context.Context, entry PriceCacheEntry) error
	DeletePrice(ctx context.Context, region string, key MeterKey) error
}

// TierContext carries what a lookup needs besides region and role
type TierContext struct {
	// Family is the storage family
	Family types.Family

	// Tier is the price tier component of the meter key
	Tier string

	// Redundancy is empty for families without a redundancy axis
	Redundancy types.Redundancy

	// Product locates the meter in the retail catalogue
	Product types.ProductRef
}

// ResolverConfig tunes TTLs, timeouts and retries
type ResolverConfig struct {
	// Currency is the requested price currency
	Currency types.Currency

	// TTL is how long a fetched price stays fresh
	TTL time.Duration

	// FallbackTTL applies to snapshot prices when the snapshot sets none
	FallbackTTL time.Duration

	// FetchTimeout bounds one fetch attempt
	FetchTimeout time.Duration

	// MaxRetries is the number of retries after the first attempt
	MaxRetries int

	// InitialBackoff is the first retry delay
	InitialBackoff time.Duration

	// MaxBackoff caps a single retry delay
	MaxBackoff time.Duration
}

// DefaultResolverConfig returns production defaults
func DefaultResolverConfig() ResolverConfig {
	return ResolverConfig{
		Currency:       types.CurrencyUSD,
		TTL:            7 * 24 * time.Hour,
		FallbackTTL:    6 * time.Hour,
		FetchTimeout:   10 * time.Second,
		MaxRetries:     3,
		InitialBackoff: 200 * time.Millisecond,
		MaxBackoff:     2 * time.Second,
	}
}

// Resolver returns unit prices per (region, meter key).
//
// Each key moves Missing -> Fetching -> Cached -> Stale -> Fetching. Only
// one fetch per key is outstanding at a time; concurrent callers share it.
// Unrelated keys fetch in parallel.
type Resolver struct {
	fetcher  Fetcher
	cache    *Cache
	store    Store
	snapshot *Snapshot
	clock    types.Clock
	config   ResolverConfig
	logger   *zap.Logger
	metrics  *metrics.Resolver
	tracer   trace.Tracer
	flights  singleflight.Group
}

// Option configures a Resolver
type Option func(*Resolver)

// WithStore persists entries and enables Warm
func WithStore(s Store) Option { return func(r *Resolver) { r.store = s } }

// WithSnapshot sets the fallback price snapshot
func WithSnapshot(s *Snapshot) Option { return func(r *Resolver) { r.snapshot = s } }

// WithClock injects the time source
func WithClock(c types.Clock) Option { return func(r *Resolver) { r.clock = c } }

// WithLogger sets the logger
func WithLogger(l *zap.Logger) Option { return func(r *Resolver) { r.logger = l } }

// WithMetrics sets the metric collectors
func WithMetrics(m *metrics.Resolver) Option { return func(r *Resolver) { r.metrics = m } }

// WithConfig replaces the configuration
func WithConfig(c ResolverConfig) Option { return func(r *Resolver) { r.config = c } }

// WithTracer sets the tracer used for fetch spans
func WithTracer(t trace.Tracer) Option { return func(r *Resolver) { r.tracer = t } }

// WithCache shares an existing cache
func WithCache(c *Cache) Option { return func(r *Resolver) { r.cache = c } }

// NewResolver creates a resolver. A nil fetcher resolves only from cache,
// store and snapshot.
func NewResolver(fetcher Fetcher, opts ...Option) *Resolver {
	r := &Resolver{
		fetcher: fetcher,
		config:  DefaultResolverConfig(),
		clock:   types.SystemClock{},
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.cache == nil {
		r.cache = NewCache()
	}
	if r.metrics == nil {
		r.metrics = metrics.NewResolver(nil)
	}
	if r.tracer == nil {
		r.tracer = otel.Tracer("storage-cost/pricing")
	}
	r.logger = logging.OrNamed(r.logger, "pricing")
	return r
}

// Cache returns the resolver's cache
func (r *Resolver) Cache() *Cache {
	return r.cache
}

// GetPrice returns the unit price for role in region.
//
// A fresh cache entry is returned directly. Otherwise one fetch runs per
// key; on failure the last known entry is served flagged stale, then the
// fallback snapshot, else PRICE_UNAVAILABLE. The caller may stop waiting by
// cancelling ctx; the shared fetch continues within its own timeout.
func (r *Resolver) GetPrice(ctx context.Context, region string, role types.MeterRole, tc TierContext) (types.UnitPrice, error) {
	key, err := NewMeterKey(tc.Family, tc.Tier, tc.Redundancy, role)
	if err != nil {
		return types.UnitPrice{}, err
	}
	region = NormalizeRegion(region)
	if region == "" {
		return types.UnitPrice{}, errors.InvalidMeterKey("region is required for %s", key)
	}

	if e, ok := r.cache.Get(region, key); ok && !e.IsExpired(r.clock.Now()) {
		r.metrics.CacheHits.Inc()
		return cachedPrice(e), nil
	}
	r.metrics.CacheMisses.Inc()

	ch := r.flights.DoChan(cacheKey(region, key), func() (interface{}, error) {
		return r.refresh(ctx, region, key, tc)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return types.UnitPrice{}, res.Err
		}
		return res.Val.(types.UnitPrice), nil
	case <-ctx.Done():
		return types.UnitPrice{}, errors.PriceUnavailable(fmt.Sprintf("abandoned waiting for %s/%s", region, key), ctx.Err())
	}
}

func cachedPrice(e PriceCacheEntry) types.UnitPrice {
	p := e.Price
	if p.Source == types.SourceRetail {
		p.Source = types.SourceCache
	}
	return p
}

// refresh runs once per key at a time inside the flight group
func (r *Resolver) refresh(ctx context.Context, region string, key MeterKey, tc TierContext) (types.UnitPrice, error) {
	now := r.clock.Now()
	if e, ok := r.cache.Get(region, key); ok && !e.IsExpired(now) {
		return cachedPrice(e), nil
	}

	// the flight outlives any single caller
	fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.fetchBudget())
	defer cancel()

	price, fetchErr := r.fetch(fctx, region, key, tc)
	if fetchErr == nil {
		price.FetchedAt = now
		price.ExpiresAt = now.Add(r.config.TTL)
		r.write(fctx, PriceCacheEntry{
			Region:    region,
			Key:       key,
			Price:     price,
			FetchedAt: now,
			ExpiresAt: price.ExpiresAt,
		}, true)
		return price, nil
	}

	if e, ok := r.cache.Get(region, key); ok {
		stale := e.Price
		stale.Stale = true
		if stale.Source != types.SourceFallback {
			stale.Source = types.SourceStale
		}
		r.metrics.StaleServed.Inc()
		r.logger.Warn("serving stale price after failed refresh",
			zap.String("region", region),
			zap.String("meter_key", key.String()),
			zap.Time("expired_at", e.ExpiresAt),
			zap.Error(fetchErr))
		return stale, nil
	}

	if r.snapshot != nil {
		if p, ok := r.snapshot.Lookup(region, key); ok {
			ttl := r.snapshot.TTL
			if ttl <= 0 {
				ttl = r.config.FallbackTTL
			}
			p.FetchedAt = now
			p.ExpiresAt = now.Add(ttl)
			r.write(fctx, PriceCacheEntry{
				Region:    region,
				Key:       key,
				Price:     p,
				FetchedAt: now,
				ExpiresAt: p.ExpiresAt,
			}, false)
			r.metrics.FallbackServed.Inc()
			r.logger.Warn("serving fallback snapshot price",
				zap.String("region", region),
				zap.String("meter_key", key.String()),
				zap.String("snapshot", r.snapshot.Name),
				zap.Error(fetchErr))
			return p, nil
		}
	}

	return types.UnitPrice{}, errors.PriceUnavailable(fmt.Sprintf("no price for %s/%s", region, key), fetchErr).
		WithContext("region", region).
		WithContext("meter_key", key.String())
}

func (r *Resolver) fetchBudget() time.Duration {
	attempts := time.Duration(r.config.MaxRetries + 1)
	return attempts*r.config.FetchTimeout + attempts*r.config.MaxBackoff
}

// fetch queries the source with retries and selects the row for key.Role
func (r *Resolver) fetch(ctx context.Context, region string, key MeterKey, tc TierContext) (types.UnitPrice, error) {
	if r.fetcher == nil {
		return types.UnitPrice{}, errors.New(errors.TypeNetwork, "no price source configured")
	}

	ctx, span := r.tracer.Start(ctx, "pricing.fetch", trace.WithAttributes(
		attribute.String("pricing.region", region),
		attribute.String("pricing.meter_key", key.String()),
		attribute.String("pricing.product", tc.Product.ProductName),
		attribute.String("pricing.sku", tc.Product.SkuName),
	))
	defer span.End()

	start := time.Now()
	defer func() { r.metrics.FetchDuration.Observe(time.Since(start).Seconds()) }()

	q := Query{Region: region, Product: tc.Product, Currency: r.config.Currency}
	var rows []PriceRow
	attempt := 0
	op := func() error {
		attempt++
		actx, cancel := context.WithTimeout(ctx, r.config.FetchTimeout)
		defer cancel()
		rs, err := r.fetcher.Fetch(actx, q)
		if err != nil {
			r.logger.Debug("price fetch attempt failed",
				zap.String("meter_key", key.String()),
				zap.Int("attempt", attempt),
				zap.Error(err))
			return err
		}
		rows = rs
		return nil
	}

	if err := backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(r.newBackOff(), uint64(r.config.MaxRetries)), ctx)); err != nil {
		r.metrics.Fetches.WithLabelValues("error").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, "fetch failed")
		return types.UnitPrice{}, errors.Network(fmt.Sprintf("fetching %s/%s", region, key), err)
	}
	span.SetAttributes(attribute.Int("pricing.rows", len(rows)), attribute.Int("pricing.attempts", attempt))

	if len(rows) == 0 {
		r.metrics.Fetches.WithLabelValues("empty").Inc()
		span.SetStatus(codes.Error, "no rows")
		return types.UnitPrice{}, errors.Newf(errors.TypePriceUnavailable, "price source returned no rows for %s/%s", region, key)
	}

	row, ok := r.selectRow(rows, key)
	if !ok {
		r.metrics.Fetches.WithLabelValues("unmatched").Inc()
		span.SetStatus(codes.Error, "no row for role")
		return types.UnitPrice{}, errors.Newf(errors.TypePriceUnavailable, "no %s meter among %d rows for %s/%s", key.Role, len(rows), region, key)
	}

	amount, basis, err := NormalizePrice(row.UnitPrice, row.UnitOfMeasure, key.Role)
	if err != nil {
		r.metrics.Fetches.WithLabelValues("error").Inc()
		span.RecordError(err)
		return types.UnitPrice{}, errors.Wrapf(errors.TypeParsing, err, "meter %q", row.MeterName)
	}

	currency := row.Currency
	if currency == "" {
		currency = r.config.Currency
	}
	r.metrics.Fetches.WithLabelValues("ok").Inc()
	return types.UnitPrice{
		Amount:        amount,
		Basis:         basis,
		Currency:      currency,
		UnitOfMeasure: row.UnitOfMeasure,
		MeterName:     row.MeterName,
		Source:        types.SourceRetail,
	}, nil
}

func (r *Resolver) newBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = r.config.InitialBackoff
	if r.config.MaxBackoff > 0 {
		b.MaxInterval = r.config.MaxBackoff
	}
	b.MaxElapsedTime = 0
	return b
}

// selectRow picks the row whose classified meter role matches key.Role.
// Consumption rows win, then the latest effective date, then the lowest
// tier minimum, then meter name for determinism.
func (r *Resolver) selectRow(rows []PriceRow, key MeterKey) (PriceRow, bool) {
	var candidates []PriceRow
	for _, row := range rows {
		role, ok := ClassifyMeter(row.MeterName)
		if !ok {
			r.logger.Debug("skipping unclassified meter row",
				zap.String("meter_key", key.String()),
				zap.String("meter_name", row.MeterName))
			continue
		}
		if role == key.Role {
			candidates = append(candidates, row)
		}
	}
	if len(candidates) == 0 {
		return PriceRow{}, false
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if ac, bc := isConsumption(a), isConsumption(b); ac != bc {
			return ac
		}
		if !a.EffectiveDate.Equal(b.EffectiveDate) {
			return a.EffectiveDate.After(b.EffectiveDate)
		}
		if !a.TierMinimumUnits.Equal(b.TierMinimumUnits) {
			return a.TierMinimumUnits.LessThan(b.TierMinimumUnits)
		}
		return a.MeterName < b.MeterName
	})
	return candidates[0], true
}

func isConsumption(row PriceRow) bool {
	return row.Type == "" || row.Type == "Consumption"
}

// write puts an entry in the cache and, when persist is set, the store.
// Invalid keys are rejected and logged.
func (r *Resolver) write(ctx context.Context, e PriceCacheEntry, persist bool) {
	if err := r.cache.Put(e); err != nil {
		r.metrics.RejectedWrites.Inc()
		r.logger.Warn("rejected cache write",
			zap.String("region", e.Region),
			zap.String("meter_key", e.Key.String()),
			zap.Error(err))
		return
	}
	r.metrics.CacheEntries.Set(float64(r.cache.Len()))

	if persist && r.store != nil {
		if err := r.store.SavePrice(ctx, e); err != nil {
			r.logger.Error("failed to persist price",
				zap.String("region", e.Region),
				zap.String("meter_key", e.Key.String()),
				zap.Error(err))
		}
	}
}

// Put seeds the cache, validating the key first. Used by tests and tools
// that import prices.
func (r *Resolver) Put(ctx context.Context, e PriceCacheEntry) error {
	if err := e.Validate(); err != nil {
		r.metrics.RejectedWrites.Inc()
		r.logger.Warn("rejected cache write",
			zap.String("region", e.Region),
			zap.String("meter_key", e.Key.String()),
			zap.Error(err))
		return err
	}
	r.write(ctx, e, true)
	return nil
}

// Warm loads persisted entries into the cache and returns how many were
// accepted. Expired entries are kept for stale-on-error.
func (r *Resolver) Warm(ctx context.Context) (int, error) {
	if r.store == nil {
		return 0, nil
	}
	entries, err := r.store.LoadPrices(ctx)
	if err != nil {
		return 0, errors.Wrap(errors.TypeInternal, "loading persisted prices", err)
	}

	loaded := 0
	for _, e := range entries {
		if err := r.cache.Put(e); err != nil {
			r.metrics.RejectedWrites.Inc()
			r.logger.Warn("rejected persisted price",
				zap.String("region", e.Region),
				zap.String("meter_key", e.Key.String()),
				zap.Error(err))
			continue
		}
		loaded++
	}
	r.metrics.CacheEntries.Set(float64(r.cache.Len()))
	r.logger.Info("warmed price cache", zap.Int("loaded", loaded), zap.Int("persisted", len(entries)))
	return loaded, nil
}

// Invalidate drops an entry from the cache and the store
func (r *Resolver) Invalidate(ctx context.Context, region string, key MeterKey) error {
	r.cache.Delete(region, key)
	r.metrics.CacheEntries.Set(float64(r.cache.Len()))
	if r.store != nil {
		return r.store.DeletePrice(ctx, NormalizeRegion(region), key)
	}
	return nil
}
