package forecast

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storage-cost/core/types"
)

var fixedNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func testEngine() *Engine {
	return New(DefaultConfig(), types.ClockFunc(func() time.Time { return fixedNow }))
}

func series(values ...float64) []decimal.Decimal {
	out := make([]decimal.Decimal, len(values))
	for i, v := range values {
		out[i] = decimal.NewFromFloat(v)
	}
	return out
}

func repeat(v float64, n int) []decimal.Decimal {
	out := make([]decimal.Decimal, n)
	for i := range out {
		out[i] = decimal.NewFromFloat(v)
	}
	return out
}

func TestFlatSeriesIsStableWithMaxConfidence(t *testing.T) {
	f := testEngine().Forecast(repeat(10, 30))

	assert.Equal(t, TrendStable, f.Trend)
	assert.Zero(t, f.CoefficientOfVariation)
	assert.Zero(t, f.StandardDeviation)
	assert.Zero(t, f.DailyGrowthRatePercent)
	assert.Equal(t, 95.0, f.ConfidencePercent)
	assert.Equal(t, "300.00", f.MidEstimate.StringFixed(2))
	assert.True(t, f.LowEstimate.Equal(f.MidEstimate))
	assert.True(t, f.HighEstimate.Equal(f.MidEstimate))
	assert.Equal(t, 30, f.Samples)
	assert.False(t, f.LowConfidence)
	assert.Equal(t, fixedNow, f.GeneratedAt)
}

func TestEmptySeriesIsFullyPopulated(t *testing.T) {
	f := testEngine().Forecast(nil)
	assert.Equal(t, TrendStable, f.Trend)
	assert.True(t, f.MidEstimate.IsZero())
	assert.True(t, f.LowEstimate.IsZero())
	assert.True(t, f.HighEstimate.IsZero())
	assert.Zero(t, f.ConfidencePercent)
	assert.Equal(t, 30, f.HorizonDays)
	assert.True(t, f.LowConfidence)
}

func TestShortSeriesIsCappedAndStable(t *testing.T) {
	// strongly increasing but only 5 samples
	f := testEngine().Forecast(series(1, 2, 3, 4, 5))

	assert.Equal(t, TrendStable, f.Trend)
	assert.True(t, f.LowConfidence)
	assert.LessOrEqual(t, f.ConfidencePercent, 40.0)
	// mean 3 × 30 days
	assert.Equal(t, "90.00", f.MidEstimate.StringFixed(2))
	assert.True(t, f.LowEstimate.LessThan(f.MidEstimate))
	assert.True(t, f.HighEstimate.GreaterThan(f.MidEstimate))
}

func TestShortFlatSeriesStillGetsABand(t *testing.T) {
	f := testEngine().Forecast(repeat(2, 3))
	// minimum CV 0.25 widens by 1.28 × 0.25 = 32%
	assert.Equal(t, "60.00", f.MidEstimate.StringFixed(2))
	assert.Equal(t, "40.80", f.LowEstimate.StringFixed(2))
	assert.Equal(t, "79.20", f.HighEstimate.StringFixed(2))
	// 95 × 3/30
	assert.Equal(t, 9.5, f.ConfidencePercent)
}

func TestIncreasingTrend(t *testing.T) {
	values := make([]float64, 30)
	for i := range values {
		values[i] = 10 + float64(i)*0.5
	}
	f := testEngine().Forecast(series(values...))

	assert.Equal(t, TrendIncreasing, f.Trend)
	assert.Greater(t, f.DailyGrowthRatePercent, 0.5)
	assert.Greater(t, f.CoefficientOfVariation, 0.0)
	assert.Less(t, f.ConfidencePercent, 95.0)
	// the projection continues the line past the last sample (24.5)
	assert.True(t, f.MidEstimate.GreaterThan(decimal.NewFromFloat(24.5*30)))
}

func TestDecreasingTrendFloorsAtZero(t *testing.T) {
	values := make([]float64, 10)
	for i := range values {
		values[i] = 10 - float64(i)
	}
	f := testEngine().Forecast(series(values...))

	assert.Equal(t, TrendDecreasing, f.Trend)
	assert.True(t, f.MidEstimate.IsZero())
	assert.False(t, f.LowEstimate.IsNegative())
}

func TestDispersionWidensBandAndLowersConfidence(t *testing.T) {
	calm := make([]float64, 30)
	noisy := make([]float64, 30)
	for i := range calm {
		calm[i] = 10
		noisy[i] = 10
		if i%2 == 0 {
			calm[i] += 0.5
			noisy[i] += 5
		} else {
			calm[i] -= 0.5
			noisy[i] -= 5
		}
	}
	c := testEngine().Forecast(series(calm...))
	n := testEngine().Forecast(series(noisy...))

	assert.Greater(t, n.CoefficientOfVariation, c.CoefficientOfVariation)
	assert.Less(t, n.ConfidencePercent, c.ConfidencePercent)
	assert.True(t, n.HighEstimate.Sub(n.LowEstimate).GreaterThan(c.HighEstimate.Sub(c.LowEstimate)))
}

func TestConfidenceRisesWithSamples(t *testing.T) {
	e := testEngine()
	assert.Less(t, e.Forecast(repeat(5, 10)).ConfidencePercent, e.Forecast(repeat(5, 20)).ConfidencePercent)
	// saturated
	assert.Equal(t, e.Forecast(repeat(5, 30)).ConfidencePercent, e.Forecast(repeat(5, 90)).ConfidencePercent)
}

func TestForecastDoesNotModifyInput(t *testing.T) {
	in := series(3, 1, 2, 5, 4, 6, 2, 8)
	snapshot := make([]decimal.Decimal, len(in))
	copy(snapshot, in)

	testEngine().Forecast(in)
	for i := range in {
		assert.True(t, in[i].Equal(snapshot[i]))
	}
}

type memHistory struct {
	samples []Sample
	err     error
	from    time.Time
	to      time.Time
}

func (m *memHistory) AppendDaily(ctx context.Context, resourceID string, day time.Time, cost decimal.Decimal) error {
	m.samples = append(m.samples, Sample{ResourceID: resourceID, Day: day, Cost: cost})
	return nil
}

func (m *memHistory) Series(ctx context.Context, resourceID string, from, to time.Time) ([]Sample, error) {
	m.from, m.to = from, to
	return m.samples, m.err
}

func TestForecastResourceReadsWindow(t *testing.T) {
	store := &memHistory{}
	for i := 0; i < 30; i++ {
		require.NoError(t, store.AppendDaily(context.Background(), "vol-1", fixedNow.AddDate(0, 0, -i), decimal.NewFromInt(4)))
	}

	f, err := testEngine().ForecastResource(context.Background(), store, "vol-1", 30)
	require.NoError(t, err)
	assert.Equal(t, "120.00", f.MidEstimate.StringFixed(2))
	assert.Equal(t, time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC), store.to)
	assert.Equal(t, time.Date(2025, 5, 3, 0, 0, 0, 0, time.UTC), store.from)
}

func TestForecastResourceErrors(t *testing.T) {
	_, err := testEngine().ForecastResource(context.Background(), nil, "vol-1", 30)
	require.Error(t, err)

	_, err = testEngine().ForecastResource(context.Background(), &memHistory{err: errors.New("disk full")}, "vol-1", 30)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "vol-1")
}
