package engine

import (
	"context"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"storage-cost/core/cost"
	"storage-cost/core/forecast"
	"storage-cost/core/normalize"
	"storage-cost/core/pricing"
	"storage-cost/core/types"
	"storage-cost/internal/errors"
	"storage-cost/internal/metrics"
)

var now = time.Date(2025, 6, 1, 8, 30, 0, 0, time.UTC)

type stubResolver struct {
	mu     sync.Mutex
	prices map[types.MeterRole]types.UnitPrice
	calls  int
}

func (s *stubResolver) GetPrice(ctx context.Context, region string, role types.MeterRole, tc pricing.TierContext) (types.UnitPrice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	p, ok := s.prices[role]
	if !ok {
		return types.UnitPrice{}, errors.PriceUnavailable("no "+string(role)+" price in "+region, nil)
	}
	return p, nil
}

func capacityPrice(source types.PriceSource) *stubResolver {
	return &stubResolver{prices: map[types.MeterRole]types.UnitPrice{
		types.RoleCapacity: {
			Amount:   decimal.RequireFromString("0.000141"),
			Basis:    types.BasisHourly,
			Currency: types.CurrencyUSD,
			Source:   source,
			Stale:    source == types.SourceStale,
		},
	}}
}

type memHistory struct {
	mu      sync.Mutex
	entries map[string]decimal.Decimal
}

func (m *memHistory) AppendDaily(ctx context.Context, resourceID string, day time.Time, c decimal.Decimal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.entries == nil {
		m.entries = make(map[string]decimal.Decimal)
	}
	m.entries[resourceID+"@"+day.Format(time.DateOnly)] = c
	return nil
}

func (m *memHistory) Series(ctx context.Context, resourceID string, from, to time.Time) ([]forecast.Sample, error) {
	return nil, nil
}

func gibBytes(n int64) *int64 {
	v := n << 30
	return &v
}

func nasStandard(id string, gib int64) normalize.ResourceConfig {
	return normalize.ResourceConfig{
		ResourceID:       id,
		ResourceType:     "Microsoft.NetApp/netAppAccounts/capacityPools/volumes",
		Region:           "eastus",
		Family:           types.FamilyNASVolume,
		Tier:             "Standard",
		ProvisionedBytes: gibBytes(gib),
	}
}

func newTestEngine(r cost.PriceResolver, opts ...Option) (*Engine, *metrics.Engine) {
	m := metrics.NewEngine(prometheus.NewRegistry())
	base := []Option{
		WithClock(types.ClockFunc(func() time.Time { return now })),
		WithLogger(zap.NewNop()),
		WithMetrics(m),
	}
	return New(r, append(base, opts...)...), m
}

func TestEstimateResource(t *testing.T) {
	e, m := newTestEngine(capacityPrice(types.SourceRetail))

	est, err := e.EstimateResource(context.Background(), nasStandard("vol-1", 500))
	require.NoError(t, err)

	assert.NotEmpty(t, est.ID)
	assert.Equal(t, types.FamilyNASVolume, est.Family)
	assert.Equal(t, 1, est.PermutationID)
	assert.Equal(t, "50.76", est.Totals.TotalForPeriod.StringFixed(2))
	assert.Equal(t, "1.6920", est.Totals.PerDay.StringFixed(4))
	assert.Equal(t, cost.StatusFresh, est.Status)
	assert.Equal(t, 100.0, est.Confidence.Percent())
	assert.Equal(t, types.CurrencyUSD, est.Currency)
	assert.Equal(t, now, est.EstimatedAt)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Estimates.WithLabelValues("ok")))
}

func TestEstimateResourceAcceptsFamilyAliases(t *testing.T) {
	e, _ := newTestEngine(capacityPrice(types.SourceRetail))
	res := nasStandard("vol-1", 500)
	res.Family = "nas"

	est, err := e.EstimateResource(context.Background(), res)
	require.NoError(t, err)
	assert.Equal(t, types.FamilyNASVolume, est.Family)
}

func TestEstimateResourceIgnoresNASRedundancy(t *testing.T) {
	e, _ := newTestEngine(capacityPrice(types.SourceRetail))
	res := nasStandard("vol-1", 500)
	res.Redundancy = types.RedundancyZRS

	est, err := e.EstimateResource(context.Background(), res)
	require.NoError(t, err)
	assert.Equal(t, 1, est.PermutationID)
	assert.Equal(t, "50.76", est.Totals.TotalForPeriod.StringFixed(2))
	require.Len(t, est.Assumptions, 1)
	assert.Contains(t, est.Assumptions[0], "ZRS")
	assert.True(t, est.Confidence.IsDegraded)
}

func TestEstimateResourceUsesConfiguredPeriod(t *testing.T) {
	cfg := DefaultConfig()
	cfg.PeriodHours = 168
	e, _ := newTestEngine(capacityPrice(types.SourceRetail), WithConfig(cfg))

	est, err := e.EstimateResource(context.Background(), nasStandard("vol-1", 500))
	require.NoError(t, err)
	// 500 × 0.000141 × 168
	assert.Equal(t, "11.84", est.Totals.TotalForPeriod.StringFixed(2))
	assert.True(t, est.Totals.PeriodHours.Equal(decimal.NewFromInt(168)))
}

func TestEstimateResourceStalePrice(t *testing.T) {
	e, m := newTestEngine(capacityPrice(types.SourceStale))

	est, err := e.EstimateResource(context.Background(), nasStandard("vol-1", 500))
	require.NoError(t, err)
	assert.Equal(t, cost.StatusStale, est.Status)
	assert.True(t, est.Confidence.IsDegraded)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Estimates.WithLabelValues("degraded")))
}

func TestEstimateResourceUnavailable(t *testing.T) {
	e, m := newTestEngine(&stubResolver{})

	est, err := e.EstimateResource(context.Background(), nasStandard("vol-1", 500))
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.TypePriceUnavailable))
	require.NotNil(t, est)
	assert.Equal(t, cost.StatusUnavailable, est.Status)
	assert.Empty(t, est.Components)
	assert.True(t, est.Totals.TotalForPeriod.IsZero())
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Estimates.WithLabelValues("unavailable")))
}

func TestEstimateResourceClassificationError(t *testing.T) {
	r := capacityPrice(types.SourceRetail)
	e, m := newTestEngine(r)
	res := nasStandard("vol-1", 500)
	res.CoolAccess = true
	res.DoubleEncryption = true

	est, err := e.EstimateResource(context.Background(), res)
	assert.Nil(t, est)
	assert.True(t, errors.IsType(err, errors.TypeIncompatibleFlags))
	assert.Zero(t, r.calls)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Estimates.WithLabelValues("error")))
}

func TestEstimateResourceValidationError(t *testing.T) {
	r := capacityPrice(types.SourceRetail)
	e, _ := newTestEngine(r)

	est, err := e.EstimateResource(context.Background(), nasStandard("vol-1", 30))
	assert.Nil(t, est)
	assert.True(t, errors.IsType(err, errors.TypeValidationFailed))
	assert.Zero(t, r.calls)
}

func TestEstimateResourceRecordsHistory(t *testing.T) {
	h := &memHistory{}
	cfg := DefaultConfig()
	cfg.RecordHistory = true
	e, _ := newTestEngine(capacityPrice(types.SourceRetail), WithConfig(cfg), WithHistory(h))

	_, err := e.EstimateResource(context.Background(), nasStandard("vol-1", 500))
	require.NoError(t, err)
	require.Contains(t, h.entries, "vol-1@2025-06-01")
	assert.Equal(t, "1.6920", h.entries["vol-1@2025-06-01"].StringFixed(4))
}

func TestEstimateResourceReconcilesActuals(t *testing.T) {
	actuals := cost.StaticActuals{{
		ResourceID: "vol-1",
		Type:       types.RoleCapacity,
		Amount:     decimal.RequireFromString("48.00"),
		From:       now.AddDate(0, 0, -30),
		To:         now,
	}}
	e, _ := newTestEngine(capacityPrice(types.SourceRetail), WithActuals(actuals))

	est, err := e.EstimateResource(context.Background(), nasStandard("vol-1", 500))
	require.NoError(t, err)
	assert.Equal(t, "48.00", est.Totals.TotalForPeriod.StringFixed(2))
	assert.False(t, est.Components[0].IsEstimated)
}

func TestEstimateBatchContinuesPastFailures(t *testing.T) {
	e, _ := newTestEngine(capacityPrice(types.SourceRetail))
	batch := []normalize.ResourceConfig{
		nasStandard("vol-1", 500),
		nasStandard("vol-2", 30),
		nasStandard("vol-3", 1000),
	}

	results := e.EstimateBatch(context.Background(), batch)
	require.Len(t, results, 3)

	for i, r := range results {
		assert.Equal(t, i, r.Index)
		assert.Equal(t, batch[i].ResourceID, r.ResourceID)
	}
	assert.NoError(t, results[0].Err)
	assert.True(t, errors.IsType(results[1].Err, errors.TypeValidationFailed))
	assert.NotEmpty(t, results[1].Error)
	assert.NoError(t, results[2].Err)
	assert.Equal(t, "101.52", results[2].Estimate.Totals.TotalForPeriod.StringFixed(2))

	assert.Equal(t, "152.28", BatchTotal(results).StringFixed(2))
}

func TestEstimateBatchRejectsNonFiniteInput(t *testing.T) {
	e, _ := newTestEngine(capacityPrice(types.SourceRetail))
	bad := nasStandard("vol-2", 500)
	nan := math.NaN()
	bad.PeriodHours = &nan

	var results []Result
	require.NotPanics(t, func() {
		results = e.EstimateBatch(context.Background(), []normalize.ResourceConfig{nasStandard("vol-1", 500), bad})
	})
	require.Len(t, results, 2)
	assert.NoError(t, results[0].Err)
	assert.True(t, errors.IsType(results[1].Err, errors.TypeValidationFailed))
	assert.Equal(t, "non_finite", errors.ViolationsOf(results[1].Err)[0].Rule)
}

func TestEstimateBatchStopsSchedulingOnCancel(t *testing.T) {
	r := capacityPrice(types.SourceRetail)
	e, _ := newTestEngine(r)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	results := e.EstimateBatch(ctx, []normalize.ResourceConfig{nasStandard("vol-1", 500), nasStandard("vol-2", 500)})
	for _, res := range results {
		assert.ErrorIs(t, res.Err, context.Canceled)
		assert.Nil(t, res.Estimate)
	}
	assert.Zero(t, r.calls)
}

func TestEstimateBatchBoundedConcurrency(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Concurrency = 2
	e, _ := newTestEngine(capacityPrice(types.SourceRetail), WithConfig(cfg))

	batch := make([]normalize.ResourceConfig, 20)
	for i := range batch {
		batch[i] = nasStandard("vol", 500)
	}
	results := e.EstimateBatch(context.Background(), batch)
	for _, r := range results {
		require.NoError(t, r.Err)
	}
	assert.Equal(t, "1015.20", BatchTotal(results).StringFixed(2))
}
