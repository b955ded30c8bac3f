// Package engine provides the API-primary estimation engine.
// CLI is a thin wrapper around this engine.
package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"storage-cost/core/cost"
	"storage-cost/core/forecast"
	"storage-cost/core/normalize"
	"storage-cost/core/permutation"
	"storage-cost/core/types"
	"storage-cost/internal/errors"
	"storage-cost/internal/logging"
	"storage-cost/internal/metrics"
)

// Engine is the primary API for cost estimation.
// All other interfaces (CLI, batch jobs) are thin wrappers.
type Engine struct {
	// Required dependencies
	resolver   cost.PriceResolver
	normalizer *normalize.Normalizer

	// Optional collaborators
	actuals cost.ActualCostSource
	history forecast.HistoryStore

	clock   types.Clock
	logger  *zap.Logger
	metrics *metrics.Engine

	// Configuration
	config Config
}

// Config configures the estimation engine
type Config struct {
	// PeriodHours is the billing window used when a resource sets none
	PeriodHours int

	// Concurrency bounds parallel estimates in a batch
	Concurrency int

	// Currency labels estimate totals
	Currency types.Currency

	// RecordHistory appends each estimate's daily cost to the history store
	RecordHistory bool
}

// DefaultConfig returns the default engine configuration
func DefaultConfig() Config {
	return Config{
		PeriodHours: types.CanonicalPeriodHours,
		Concurrency: 8,
		Currency:    types.CurrencyUSD,
	}
}

// Option configures an Engine
type Option func(*Engine)

// WithConfig sets the engine configuration
func WithConfig(c Config) Option { return func(e *Engine) { e.config = c } }

// WithActuals reconciles estimates against billed amounts
func WithActuals(src cost.ActualCostSource) Option { return func(e *Engine) { e.actuals = src } }

// WithHistory sets the store daily totals are recorded to
func WithHistory(h forecast.HistoryStore) Option { return func(e *Engine) { e.history = h } }

// WithClock sets the clock
func WithClock(c types.Clock) Option { return func(e *Engine) { e.clock = c } }

// WithLogger sets the logger
func WithLogger(l *zap.Logger) Option { return func(e *Engine) { e.logger = l } }

// WithMetrics sets the engine collectors
func WithMetrics(m *metrics.Engine) Option { return func(e *Engine) { e.metrics = m } }

// New creates an estimation engine around a price resolver
func New(resolver cost.PriceResolver, opts ...Option) *Engine {
	e := &Engine{
		resolver: resolver,
		config:   DefaultConfig(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.clock == nil {
		e.clock = types.SystemClock{}
	}
	e.logger = logging.OrNamed(e.logger, "engine")
	if e.metrics == nil {
		e.metrics = metrics.NewEngine(nil)
	}
	if e.config.PeriodHours <= 0 {
		e.config.PeriodHours = types.CanonicalPeriodHours
	}
	if e.config.Concurrency <= 0 {
		e.config.Concurrency = 1
	}
	if e.config.Currency == "" {
		e.config.Currency = types.CurrencyUSD
	}
	e.normalizer = normalize.New(e.logger.Named("normalize"))
	return e
}

// Estimate is the priced result for one resource
type Estimate struct {
	// ID identifies this estimate run
	ID string `json:"id" yaml:"id"`

	// Resource identity
	ResourceID   string `json:"resourceId" yaml:"resourceId"`
	ResourceType string `json:"resourceType,omitempty" yaml:"resourceType,omitempty"`
	Region       string `json:"region" yaml:"region"`

	// Classified permutation
	Family        types.Family `json:"family" yaml:"family"`
	PermutationID int          `json:"permutationId" yaml:"permutationId"`
	Permutation   string       `json:"permutation" yaml:"permutation"`

	// Components are the priced lines, in role order
	Components []types.CostComponent `json:"components" yaml:"components"`

	// Totals are the aggregated components
	Totals cost.Totals `json:"totals" yaml:"totals"`

	// Currency of every amount
	Currency types.Currency `json:"currency" yaml:"currency"`

	// Confidence and the reasons it was degraded
	Confidence *cost.Confidence `json:"confidence" yaml:"confidence"`

	// Status is fresh, stale, fallback or unavailable
	Status cost.PricingStatus `json:"status" yaml:"status"`

	// Assumptions made while normalizing
	Assumptions []string `json:"assumptions,omitempty" yaml:"assumptions,omitempty"`

	// Timing
	EstimatedAt time.Time     `json:"estimatedAt" yaml:"estimatedAt"`
	Duration    time.Duration `json:"duration" yaml:"duration"`
}

// EstimateResource classifies, normalizes, prices and aggregates one
// resource. When pricing is unavailable the returned Estimate carries
// StatusUnavailable alongside the error; other failures return no Estimate.
func (e *Engine) EstimateResource(ctx context.Context, res normalize.ResourceConfig) (*Estimate, error) {
	start := e.clock.Now()
	est, err := e.estimate(ctx, res, start)

	result := "ok"
	switch {
	case err != nil && est != nil:
		result = "unavailable"
	case err != nil:
		result = "error"
	case est.Status != cost.StatusFresh:
		result = "degraded"
	}
	e.metrics.Estimates.WithLabelValues(result).Inc()
	e.metrics.EstimateDuration.Observe(e.clock.Now().Sub(start).Seconds())
	if est != nil {
		est.Duration = e.clock.Now().Sub(start)
	}
	return est, err
}

func (e *Engine) estimate(ctx context.Context, res normalize.ResourceConfig, start time.Time) (*Estimate, error) {
	if e.resolver == nil {
		return nil, errors.Config("no price resolver configured")
	}

	if f, ok := types.ParseFamily(string(res.Family)); ok {
		res.Family = f
	}
	perm, err := permutation.Classify(res.Family, res.Tier, res.CoolAccess, res.DoubleEncryption, res.Redundancy)
	if err != nil {
		return nil, err
	}

	in, err := e.normalizer.Normalize(res, nil, perm)
	if err != nil {
		return nil, err
	}
	if perm.Family == types.FamilyNASVolume && res.Redundancy != types.RedundancyNone {
		in.Assumptions = append(in.Assumptions,
			fmt.Sprintf("NAS volumes have no redundancy option, ignoring %s", res.Redundancy))
	}
	if res.PeriodHours == nil {
		in.PeriodHours = decimal.NewFromInt(int64(e.config.PeriodHours))
	}

	est := &Estimate{
		ID:            uuid.NewString(),
		ResourceID:    res.ResourceID,
		ResourceType:  res.ResourceType,
		Region:        res.Region,
		Family:        perm.Family,
		PermutationID: perm.ID,
		Permutation:   perm.Code(),
		Currency:      e.config.Currency,
		Assumptions:   in.Assumptions,
		EstimatedAt:   start,
	}

	components, err := cost.Evaluate(ctx, perm, in, e.resolver)
	if err != nil {
		if !errors.IsType(err, errors.TypePriceUnavailable) {
			return nil, err
		}
		est.Confidence = cost.Unavailable(err.Error())
		est.Status = est.Confidence.Status
		est.Totals = cost.NewAggregator(in.PeriodHours).Totals()
		return est, err
	}

	conf := cost.Assess(components, in.Assumptions)
	if e.actuals != nil {
		hours := time.Duration(in.PeriodHours.IntPart()) * time.Hour
		components = cost.Reconcile(ctx, e.actuals, res.ResourceID, start.Add(-hours), start, components, conf, e.logger)
	}

	agg := cost.NewAggregator(in.PeriodHours)
	agg.Add(components...)
	est.Components = components
	est.Totals = agg.Totals()
	est.Confidence = conf
	est.Status = conf.Status

	if e.config.RecordHistory && e.history != nil {
		if err := e.history.AppendDaily(ctx, res.ResourceID, forecast.Day(start), est.Totals.PerDay); err != nil {
			e.logger.Error("failed to record daily cost",
				zap.String("resource_id", res.ResourceID),
				zap.Error(err))
		}
	}
	return est, nil
}

// Result is the outcome of one batch item
type Result struct {
	// Index is the item's position in the batch
	Index int `json:"index" yaml:"index"`

	// ResourceID identifies the item
	ResourceID string `json:"resourceId" yaml:"resourceId"`

	// Estimate is set on success, and on unavailable pricing
	Estimate *Estimate `json:"estimate,omitempty" yaml:"estimate,omitempty"`

	// Err is the item's failure
	Err error `json:"-" yaml:"-"`

	// Error renders Err for output
	Error string `json:"error,omitempty" yaml:"error,omitempty"`
}

// EstimateBatch estimates resources with bounded concurrency. Item
// failures are reported per result and never stop the batch; context
// cancellation stops scheduling and marks unscheduled items with the
// context error. Results keep input order.
func (e *Engine) EstimateBatch(ctx context.Context, resources []normalize.ResourceConfig) []Result {
	results := make([]Result, len(resources))
	for i, res := range resources {
		results[i] = Result{Index: i, ResourceID: res.ResourceID}
	}

	g := new(errgroup.Group)
	g.SetLimit(e.config.Concurrency)

	var mu sync.Mutex
	failed := 0
	for i := range resources {
		if err := ctx.Err(); err != nil {
			for j := i; j < len(resources); j++ {
				results[j].Err = err
				results[j].Error = err.Error()
			}
			break
		}
		g.Go(func() error {
			est, err := e.EstimateResource(ctx, resources[i])
			results[i].Estimate = est
			if err != nil {
				results[i].Err = err
				results[i].Error = err.Error()
				e.logger.Warn("resource estimate failed",
					zap.Int("index", i),
					zap.String("resource_id", resources[i].ResourceID),
					zap.Error(err))
				mu.Lock()
				failed++
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	if failed > 0 {
		e.logger.Info("batch finished with failures",
			zap.Int("resources", len(resources)),
			zap.Int("failed", failed))
	}
	return results
}

// BatchTotal sums the totals of successful estimates
func BatchTotal(results []Result) decimal.Decimal {
	total := decimal.Zero
	for _, r := range results {
		if r.Err == nil && r.Estimate != nil {
			total = total.Add(r.Estimate.Totals.TotalForPeriod)
		}
	}
	return total
}
