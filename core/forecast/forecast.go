// Package forecast projects 30-day cost ranges from a historical daily
// cost series.
package forecast

import (
	"context"
	"math"
	"time"

	"github.com/shopspring/decimal"

	"storage-cost/core/types"
	"storage-cost/internal/errors"
)

// Trend classifies the direction of a cost series
type Trend string

const (
	TrendIncreasing Trend = "Increasing"
	TrendDecreasing Trend = "Decreasing"
	TrendStable     Trend = "Stable"
)

// bandZ is the normal quantile of the 10th/90th percentile band
const bandZ = 1.28

// CostForecast is a projection over HorizonDays. It is replaced wholesale
// when new history arrives.
type CostForecast struct {
	LowEstimate            decimal.Decimal `json:"lowEstimate" yaml:"lowEstimate"`
	MidEstimate            decimal.Decimal `json:"midEstimate" yaml:"midEstimate"`
	HighEstimate           decimal.Decimal `json:"highEstimate" yaml:"highEstimate"`
	ConfidencePercent      float64         `json:"confidencePercent" yaml:"confidencePercent"`
	Trend                  Trend           `json:"trend" yaml:"trend"`
	DailyGrowthRatePercent float64         `json:"dailyGrowthRatePercent" yaml:"dailyGrowthRatePercent"`
	StandardDeviation      float64         `json:"standardDeviation" yaml:"standardDeviation"`
	CoefficientOfVariation float64         `json:"coefficientOfVariation" yaml:"coefficientOfVariation"`

	// Mean is the average daily cost of the series
	Mean decimal.Decimal `json:"mean" yaml:"mean"`

	// Samples is the series length
	Samples int `json:"samples" yaml:"samples"`

	// HorizonDays is the projection length
	HorizonDays int `json:"horizonDays" yaml:"horizonDays"`

	// LowConfidence is set for series shorter than the minimum
	LowConfidence bool `json:"lowConfidence" yaml:"lowConfidence"`

	// GeneratedAt is when the forecast was computed
	GeneratedAt time.Time `json:"generatedAt" yaml:"generatedAt"`
}

// Config tunes the forecast engine
type Config struct {
	// MinSamples is the shortest series trusted for trend detection
	MinSamples int `mapstructure:"min_samples"`

	// MaxConfidence is the saturation point of ConfidencePercent
	MaxConfidence float64 `mapstructure:"max_confidence"`

	// HorizonDays is the projection length
	HorizonDays int `mapstructure:"horizon_days"`

	// TrendThresholdPercent is the daily growth rate separating Stable from a trend
	TrendThresholdPercent float64 `mapstructure:"trend_threshold_percent"`

	// ShortSeriesMaxConfidence caps confidence below MinSamples
	ShortSeriesMaxConfidence float64 `mapstructure:"short_series_max_confidence"`

	// ShortSeriesMinCV widens the band of short series
	ShortSeriesMinCV float64 `mapstructure:"short_series_min_cv"`

	// SaturationSamples is the series length at which sample count stops adding confidence
	SaturationSamples int `mapstructure:"saturation_samples"`
}

// DefaultConfig returns the default forecast policy
func DefaultConfig() Config {
	return Config{
		MinSamples:               7,
		MaxConfidence:            95,
		HorizonDays:              30,
		TrendThresholdPercent:    0.5,
		ShortSeriesMaxConfidence: 40,
		ShortSeriesMinCV:         0.25,
		SaturationSamples:        30,
	}
}

// Engine computes forecasts. It is stateless apart from its clock.
type Engine struct {
	config Config
	clock  types.Clock
}

// New creates an engine. Zero config fields take defaults; a nil clock uses
// the system clock.
func New(cfg Config, clock types.Clock) *Engine {
	d := DefaultConfig()
	if cfg.MinSamples <= 0 {
		cfg.MinSamples = d.MinSamples
	}
	if cfg.MaxConfidence <= 0 {
		cfg.MaxConfidence = d.MaxConfidence
	}
	if cfg.HorizonDays <= 0 {
		cfg.HorizonDays = d.HorizonDays
	}
	if cfg.TrendThresholdPercent <= 0 {
		cfg.TrendThresholdPercent = d.TrendThresholdPercent
	}
	if cfg.ShortSeriesMaxConfidence <= 0 {
		cfg.ShortSeriesMaxConfidence = d.ShortSeriesMaxConfidence
	}
	if cfg.ShortSeriesMinCV <= 0 {
		cfg.ShortSeriesMinCV = d.ShortSeriesMinCV
	}
	if cfg.SaturationSamples <= 0 {
		cfg.SaturationSamples = d.SaturationSamples
	}
	if clock == nil {
		clock = types.SystemClock{}
	}
	return &Engine{config: cfg, clock: clock}
}

// Forecast projects with the default engine
func Forecast(history []decimal.Decimal) CostForecast {
	return New(DefaultConfig(), nil).Forecast(history)
}

// Forecast projects HorizonDays of cost from a daily cost series, oldest
// first. It never modifies history and always returns a populated forecast.
func (e *Engine) Forecast(history []decimal.Decimal) CostForecast {
	cfg := e.config
	n := len(history)
	f := CostForecast{
		LowEstimate:   decimal.Zero,
		MidEstimate:   decimal.Zero,
		HighEstimate:  decimal.Zero,
		Trend:         TrendStable,
		Mean:          decimal.Zero,
		Samples:       n,
		HorizonDays:   cfg.HorizonDays,
		LowConfidence: n < cfg.MinSamples,
		GeneratedAt:   e.clock.Now(),
	}
	if n == 0 {
		return f
	}

	y := make([]float64, n)
	x := make([]float64, n)
	for i, v := range history {
		y[i], _ = v.Float64()
		x[i] = float64(i)
	}

	mean := average(y)
	stdDev := populationStdDev(y, mean)
	cv := 0.0
	if mean != 0 {
		cv = stdDev / math.Abs(mean)
	}
	slope, intercept := linearRegression(x, y)
	growth := 0.0
	if mean != 0 {
		growth = slope / mean * 100
	}

	f.Mean = decimal.NewFromFloat(mean).Round(4)
	f.StandardDeviation = round(stdDev, 4)
	f.CoefficientOfVariation = round(cv, 4)
	f.DailyGrowthRatePercent = round(growth, 4)

	short := n < cfg.MinSamples
	if !short {
		switch {
		case growth > cfg.TrendThresholdPercent:
			f.Trend = TrendIncreasing
		case growth < -cfg.TrendThresholdPercent:
			f.Trend = TrendDecreasing
		}
	}

	mid := 0.0
	if short {
		mid = mean * float64(cfg.HorizonDays)
	} else {
		// project the fitted line past the last sample
		for d := 1; d <= cfg.HorizonDays; d++ {
			mid += math.Max(0, intercept+slope*float64(n-1+d))
		}
	}
	mid = math.Max(0, mid)

	bandCV := cv
	if short {
		bandCV = math.Max(bandCV, cfg.ShortSeriesMinCV)
	}
	low := mid * math.Max(0, 1-bandZ*bandCV)
	high := mid * (1 + bandZ*bandCV)

	f.LowEstimate = decimal.NewFromFloat(low).Round(types.CentPlaces)
	f.MidEstimate = decimal.NewFromFloat(mid).Round(types.CentPlaces)
	f.HighEstimate = decimal.NewFromFloat(high).Round(types.CentPlaces)

	coverage := math.Min(1, float64(n)/float64(cfg.SaturationSamples))
	confidence := cfg.MaxConfidence * coverage / (1 + cv)
	if short {
		confidence = math.Min(confidence, cfg.ShortSeriesMaxConfidence)
	}
	f.ConfidencePercent = round(confidence, 1)
	return f
}

// Sample is one recorded daily total
type Sample struct {
	ResourceID string          `json:"resourceId" yaml:"resourceId"`
	Day        time.Time       `json:"day" yaml:"day"`
	Cost       decimal.Decimal `json:"cost" yaml:"cost"`
}

// HistoryStore records and reads daily cost totals per resource
type HistoryStore interface {
	// AppendDaily records the total for day, replacing an existing value
	AppendDaily(ctx context.Context, resourceID string, day time.Time, cost decimal.Decimal) error

	// Series returns the samples in [from, to), oldest first
	Series(ctx context.Context, resourceID string, from, to time.Time) ([]Sample, error)
}

// Values extracts the costs of samples
func Values(samples []Sample) []decimal.Decimal {
	out := make([]decimal.Decimal, len(samples))
	for i, s := range samples {
		out[i] = s.Cost
	}
	return out
}

// ForecastResource forecasts from the last windowDays of recorded history
func (e *Engine) ForecastResource(ctx context.Context, store HistoryStore, resourceID string, windowDays int) (CostForecast, error) {
	if store == nil {
		return CostForecast{}, errors.New(errors.TypeConfig, "no history store configured")
	}
	if windowDays <= 0 {
		windowDays = e.config.SaturationSamples
	}
	to := Day(e.clock.Now()).AddDate(0, 0, 1)
	from := to.AddDate(0, 0, -windowDays)
	samples, err := store.Series(ctx, resourceID, from, to)
	if err != nil {
		return CostForecast{}, errors.Wrapf(errors.TypeInternal, err, "reading history for %s", resourceID)
	}
	return e.Forecast(Values(samples)), nil
}

// Day truncates t to its UTC calendar day
func Day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func average(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func populationStdDev(values []float64, mean float64) float64 {
	if len(values) < 2 {
		return 0
	}
	sumSquaredDiff := 0.0
	for _, v := range values {
		diff := v - mean
		sumSquaredDiff += diff * diff
	}
	return math.Sqrt(sumSquaredDiff / float64(len(values)))
}

// linearRegression fits y = slope·x + intercept
func linearRegression(x, y []float64) (slope, intercept float64) {
	meanX := average(x)
	meanY := average(y)

	numerator, denominator := 0.0, 0.0
	for i := range x {
		numerator += (x[i] - meanX) * (y[i] - meanY)
		denominator += (x[i] - meanX) * (x[i] - meanX)
	}
	if denominator == 0 {
		return 0, meanY
	}
	slope = numerator / denominator
	return slope, meanY - slope*meanX
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
