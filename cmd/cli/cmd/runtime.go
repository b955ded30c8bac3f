package cmd

import (
	"context"
	"fmt"
	"io"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
	"go.uber.org/zap"

	pricingadapter "storage-cost/adapters/pricing"
	"storage-cost/adapters/storage"
	"storage-cost/core/engine"
	"storage-cost/core/forecast"
	"storage-cost/core/pricing"
	"storage-cost/core/types"
	"storage-cost/internal/config"
	"storage-cost/internal/errors"
	"storage-cost/internal/logging"
	"storage-cost/internal/metrics"
)

// runtime holds the services one command invocation uses
type runtime struct {
	cfg      *config.Config
	logger   *zap.Logger
	registry *prometheus.Registry
	store    storage.Store
	resolver *pricing.Resolver
}

// runtimeOptions are the command-line switches that shape the runtime
type runtimeOptions struct {
	// offline skips the retail API; prices come from store and snapshot
	offline bool
}

func newRuntime(ctx context.Context, cfg *config.Config, opts runtimeOptions) (*runtime, error) {
	logger := logging.Named("cli")

	store, err := storage.Open(ctx, cfg.Store, logger)
	if err != nil {
		return nil, err
	}

	snapshot, err := loadSnapshot(cfg.Pricing.SnapshotPath)
	if err != nil {
		store.Close()
		return nil, err
	}
	for _, reason := range snapshot.Rejected() {
		logger.Warn("snapshot entry rejected", zap.String("reason", reason))
	}

	var fetcher pricing.Fetcher
	if !opts.offline {
		fetcher = pricingadapter.NewRetailClient(pricingadapter.Config{
			Endpoint: cfg.Pricing.Endpoint,
			Timeout:  cfg.Pricing.FetchTimeout,
		}, nil, logger)
	}

	registry := prometheus.NewRegistry()
	resolver := pricing.NewResolver(fetcher,
		pricing.WithStore(store),
		pricing.WithSnapshot(snapshot),
		pricing.WithLogger(logger.Named("pricing")),
		pricing.WithMetrics(metrics.NewResolver(registry)),
		pricing.WithConfig(resolverConfig(cfg.Pricing)),
	)

	n, err := resolver.Warm(ctx)
	if err != nil {
		logger.Warn("price cache warm-up failed", zap.Error(err))
	} else {
		logger.Debug("price cache warmed", zap.Int("entries", n))
	}

	return &runtime{
		cfg:      cfg,
		logger:   logger,
		registry: registry,
		store:    store,
		resolver: resolver,
	}, nil
}

func loadSnapshot(path string) (*pricing.Snapshot, error) {
	if path == "" {
		return pricing.DefaultSnapshot()
	}
	return pricing.LoadSnapshotFile(path)
}

func resolverConfig(p config.PricingConfig) pricing.ResolverConfig {
	rc := pricing.DefaultResolverConfig()
	if p.Currency != "" {
		rc.Currency = types.Currency(p.Currency)
	}
	rc.TTL = p.CacheTTL
	rc.FallbackTTL = p.FallbackTTL
	rc.FetchTimeout = p.FetchTimeout
	rc.MaxRetries = p.MaxRetries
	rc.InitialBackoff = p.InitialBackoff
	return rc
}

// engine builds an estimation engine over the runtime's resolver. With
// record set every estimate's daily cost is appended to the store.
func (rt *runtime) engine(record bool, opts ...engine.Option) *engine.Engine {
	base := []engine.Option{
		engine.WithConfig(engine.Config{
			PeriodHours:   rt.cfg.Engine.PeriodHours,
			Concurrency:   rt.cfg.Engine.Concurrency,
			Currency:      types.Currency(rt.cfg.Pricing.Currency),
			RecordHistory: record,
		}),
		engine.WithLogger(rt.logger.Named("engine")),
		engine.WithMetrics(metrics.NewEngine(rt.registry)),
		engine.WithHistory(rt.store),
	}
	return engine.New(rt.resolver, append(base, opts...)...)
}

// newForecaster builds a forecast engine from configuration
func newForecaster(c config.ForecastConfig) *forecast.Engine {
	return forecast.New(forecast.Config{
		MinSamples:    c.MinSamples,
		MaxConfidence: c.MaxConfidence,
		HorizonDays:   c.HorizonDays,
	}, nil)
}

// writeMetrics dumps the registry in the text exposition format
func (rt *runtime) writeMetrics(w io.Writer) error {
	families, err := rt.registry.Gather()
	if err != nil {
		return errors.Wrap(errors.TypeInternal, "gathering metrics", err)
	}
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return errors.Wrap(errors.TypeInternal, "writing metrics", err)
		}
	}
	return nil
}

func (rt *runtime) Close() {
	if err := rt.store.Close(); err != nil {
		rt.logger.Warn("closing store", zap.Error(err))
	}
}

func requireFlag(name, value string) error {
	if value == "" {
		return errors.Config(fmt.Sprintf("--%s is required", name))
	}
	return nil
}
