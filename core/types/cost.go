// Package types - Cost component types
package types

import "github.com/shopspring/decimal"

// Currency represents a currency code
type Currency string

const (
	CurrencyUSD Currency = "USD"
	CurrencyEUR Currency = "EUR"
	CurrencyGBP Currency = "GBP"
)

// String returns the string representation
func (c Currency) String() string {
	return string(c)
}

// CanonicalPeriodHours is the billing window formulas are written against (30 days)
const CanonicalPeriodHours = 720

// CentPlaces is the rounding precision of a component's period cost
const CentPlaces = 2

// CostComponent is a single priced line of an estimate. Treat as immutable
// once created.
type CostComponent struct {
	// Type is the billing role this component prices
	Type MeterRole `json:"componentType" yaml:"componentType"`

	// Quantity is the billed quantity in UnitOfMeasure
	Quantity decimal.Decimal `json:"quantity" yaml:"quantity"`

	// UnitPrice is the normalized price per unit
	UnitPrice decimal.Decimal `json:"unitPrice" yaml:"unitPrice"`

	// UnitOfMeasure describes the unit of Quantity and UnitPrice
	UnitOfMeasure string `json:"unitOfMeasure" yaml:"unitOfMeasure"`

	// CostForPeriod is the cost over the billing window, rounded to cents
	CostForPeriod decimal.Decimal `json:"costForPeriod" yaml:"costForPeriod"`

	// IsEstimated is false only when sourced from actual billing data
	IsEstimated bool `json:"isEstimated" yaml:"isEstimated"`

	// OneTime marks charges that do not scale with the period length
	OneTime bool `json:"oneTime,omitempty" yaml:"oneTime,omitempty"`

	// PriceSource is where the unit price came from
	PriceSource PriceSource `json:"priceSource,omitempty" yaml:"priceSource,omitempty"`

	// Formula is a human-readable rendering of the calculation
	Formula string `json:"formula,omitempty" yaml:"formula,omitempty"`
}

// NewCostComponent builds an estimated component, rounding the period cost to cents
func NewCostComponent(role MeterRole, quantity, unitPrice decimal.Decimal, uom string, raw decimal.Decimal) CostComponent {
	return CostComponent{
		Type:          role,
		Quantity:      quantity,
		UnitPrice:     unitPrice,
		UnitOfMeasure: uom,
		CostForPeriod: raw.Round(CentPlaces),
		IsEstimated:   true,
	}
}

// WithActual returns a copy carrying an actual billed amount
func (c CostComponent) WithActual(amount decimal.Decimal) CostComponent {
	c.CostForPeriod = amount.Round(CentPlaces)
	c.IsEstimated = false
	c.PriceSource = SourceActual
	return c
}
