// Package cost - Confidence-degrading cost estimates
// Every estimate carries confidence and the reasons it was degraded.
package cost

import (
	"math"

	"storage-cost/core/types"
)

// PricingStatus tells consumers how an estimate was priced
type PricingStatus string

const (
	// StatusFresh - every price came from the retail source or a fresh cache entry
	StatusFresh PricingStatus = "fresh"
	// StatusStale - at least one expired price was served after a failed refresh
	StatusStale PricingStatus = "stale"
	// StatusFallback - at least one price came from the fallback snapshot
	StatusFallback PricingStatus = "fallback"
	// StatusUnavailable - the estimate could not be priced
	StatusUnavailable PricingStatus = "unavailable"
)

func (s PricingStatus) rank() int {
	switch s {
	case StatusStale:
		return 1
	case StatusFallback:
		return 2
	case StatusUnavailable:
		return 3
	default:
		return 0
	}
}

// Impacts applied by Assess
const (
	StaleImpact       = 0.2
	FallbackImpact    = 0.4
	AssumptionImpact  = 0.15
	UnavailableImpact = 1.0
)

// Confidence is the trust score of an estimate (0.0 - 1.0)
type Confidence struct {
	// Value is the score
	Value float64 `json:"value" yaml:"value"`

	// Status is the worst pricing status seen
	Status PricingStatus `json:"status" yaml:"status"`

	// Factors explain every adjustment
	Factors []ConfidenceFactor `json:"factors,omitempty" yaml:"factors,omitempty"`

	// IsDegraded is set once any factor lowered the score
	IsDegraded bool `json:"isDegraded" yaml:"isDegraded"`
}

// ConfidenceFactor explains one contribution to confidence
type ConfidenceFactor struct {
	// Source is what affected confidence
	Source string `json:"source" yaml:"source"`

	// Reason is why
	Reason string `json:"reason" yaml:"reason"`

	// Impact is how much; negative values raised confidence
	Impact float64 `json:"impact" yaml:"impact"`

	// Component is the affected component, if any
	Component types.MeterRole `json:"component,omitempty" yaml:"component,omitempty"`
}

// NewConfidence starts at full confidence with fresh pricing
func NewConfidence() *Confidence {
	return &Confidence{Value: 1.0, Status: StatusFresh}
}

// Degrade reduces confidence by impact (0.0-1.0, where 1.0 removes all confidence)
func (c *Confidence) Degrade(source, reason string, impact float64, component types.MeterRole) {
	c.Value *= 1.0 - impact
	c.IsDegraded = true
	c.Factors = append(c.Factors, ConfidenceFactor{
		Source:    source,
		Reason:    reason,
		Impact:    impact,
		Component: component,
	})
}

// Raise moves confidence toward 1.0 by the given fraction of the remaining gap
func (c *Confidence) Raise(source, reason string, fraction float64) {
	if fraction <= 0 {
		return
	}
	if fraction > 1 {
		fraction = 1
	}
	gain := (1.0 - c.Value) * fraction
	c.Value += gain
	c.Factors = append(c.Factors, ConfidenceFactor{
		Source: source,
		Reason: reason,
		Impact: -gain,
	})
}

// MarkStatus records s when it is worse than the current status
func (c *Confidence) MarkStatus(s PricingStatus) {
	if s.rank() > c.Status.rank() {
		c.Status = s
	}
}

// Percent returns the score as a percentage with one decimal
func (c *Confidence) Percent() float64 {
	return math.Round(c.Value*1000) / 10
}

// Level returns a human-readable confidence level
func (c *Confidence) Level() string {
	switch {
	case c.Value >= 0.9:
		return "high"
	case c.Value >= 0.7:
		return "medium"
	case c.Value >= 0.5:
		return "low"
	default:
		return "very_low"
	}
}

// Assess scores a priced component set. Stale and fallback prices and
// every normalization assumption lower the score.
func Assess(components []types.CostComponent, assumptions []string) *Confidence {
	c := NewConfidence()
	for _, comp := range components {
		switch comp.PriceSource {
		case types.SourceFallback:
			c.MarkStatus(StatusFallback)
			c.Degrade("pricing", "coarse fallback snapshot price", FallbackImpact, comp.Type)
		case types.SourceStale:
			c.MarkStatus(StatusStale)
			c.Degrade("pricing", "expired price served after failed refresh", StaleImpact, comp.Type)
		}
	}
	for _, a := range assumptions {
		c.Degrade("normalize", a, AssumptionImpact, "")
	}
	return c
}

// Unavailable is the confidence of an estimate that could not be priced
func Unavailable(reason string) *Confidence {
	c := NewConfidence()
	c.MarkStatus(StatusUnavailable)
	c.Degrade("pricing", reason, UnavailableImpact, "")
	return c
}
