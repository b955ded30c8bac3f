// Package types - Pricing types
package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// PriceBasis is the unit a normalized price amount is expressed in
type PriceBasis string

const (
	// BasisHourly is per unit (GiB, MiB/s, IOPS) per hour
	BasisHourly PriceBasis = "hourly"

	// BasisMonthly is a flat amount per month (fixed-tier brackets)
	BasisMonthly PriceBasis = "monthly"

	// BasisOneTime is per unit, charged once regardless of period
	BasisOneTime PriceBasis = "one_time"

	// BasisPer10K is per ten thousand operations
	BasisPer10K PriceBasis = "per_10k"
)

// PriceSource indicates where a price came from
type PriceSource string

const (
	SourceRetail   PriceSource = "retail"
	SourceCache    PriceSource = "cache"
	SourceStale    PriceSource = "stale"
	SourceFallback PriceSource = "fallback"
	SourceActual   PriceSource = "actual"
)

// UnitPrice is a resolved price for one meter
type UnitPrice struct {
	// Amount is the price normalized to Basis
	Amount decimal.Decimal `json:"amount" yaml:"amount"`

	// Basis is the unit Amount is expressed in
	Basis PriceBasis `json:"basis" yaml:"basis"`

	// Currency is the price currency
	Currency Currency `json:"currency" yaml:"currency"`

	// UnitOfMeasure is the unit string reported by the price source
	UnitOfMeasure string `json:"unitOfMeasure" yaml:"unitOfMeasure"`

	// MeterName is the source meter the price was selected from
	MeterName string `json:"meterName,omitempty" yaml:"meterName,omitempty"`

	// Source indicates where the price came from
	Source PriceSource `json:"source" yaml:"source"`

	// Stale is set when an expired entry was served after a failed refresh
	Stale bool `json:"stale,omitempty" yaml:"stale,omitempty"`

	// FetchedAt is when the price was obtained
	FetchedAt time.Time `json:"fetchedAt" yaml:"fetchedAt"`

	// ExpiresAt is when the price stops being fresh
	ExpiresAt time.Time `json:"expiresAt" yaml:"expiresAt"`
}
