// Package cost - Component aggregation
package cost

import (
	"sync"

	"github.com/shopspring/decimal"

	"storage-cost/core/types"
)

var hundred = decimal.NewFromInt(100)

// Totals is a snapshot of an aggregator
type Totals struct {
	// TotalForPeriod is the sum of every component's period cost
	TotalForPeriod decimal.Decimal `json:"totalForPeriod" yaml:"totalForPeriod"`

	// PerDay is TotalForPeriod spread over the window's days
	PerDay decimal.Decimal `json:"perDay" yaml:"perDay"`

	// PeriodHours is the window length
	PeriodHours decimal.Decimal `json:"periodHours" yaml:"periodHours"`

	// Breakdown is one entry per component type, in role order
	Breakdown []Breakdown `json:"breakdown" yaml:"breakdown"`
}

// Breakdown is the share of one component type
type Breakdown struct {
	Type    types.MeterRole `json:"componentType" yaml:"componentType"`
	Cost    decimal.Decimal `json:"cost" yaml:"cost"`
	Percent decimal.Decimal `json:"percent" yaml:"percent"`
}

// Aggregator sums cost components over one analysis window. It is safe for
// concurrent use.
type Aggregator struct {
	mu          sync.Mutex
	periodHours decimal.Decimal
	total       decimal.Decimal
	byType      map[types.MeterRole]decimal.Decimal
	components  []types.CostComponent
}

// NewAggregator creates an aggregator for a window of periodHours. A
// non-positive window uses the canonical 720 hours.
func NewAggregator(periodHours decimal.Decimal) *Aggregator {
	if !periodHours.IsPositive() {
		periodHours = decimal.NewFromInt(types.CanonicalPeriodHours)
	}
	return &Aggregator{
		periodHours: periodHours,
		byType:      make(map[types.MeterRole]decimal.Decimal),
	}
}

// Add appends components and updates the running total
func (a *Aggregator) Add(components ...types.CostComponent) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, c := range components {
		a.components = append(a.components, c)
		a.total = a.total.Add(c.CostForPeriod)
		a.byType[c.Type] = a.byType[c.Type].Add(c.CostForPeriod)
	}
}

// Components returns a copy of the added components
func (a *Aggregator) Components() []types.CostComponent {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]types.CostComponent(nil), a.components...)
}

// Totals computes the total, the per-day figure and the breakdown.
// Percentages are 0 when the total is 0.
func (a *Aggregator) Totals() Totals {
	a.mu.Lock()
	defer a.mu.Unlock()

	days := a.periodHours.Div(decimal.NewFromInt(24))
	t := Totals{
		TotalForPeriod: a.total,
		PerDay:         a.total.Div(days).Round(4),
		PeriodHours:    a.periodHours,
	}
	for _, role := range types.MeterRoles {
		cost, ok := a.byType[role]
		if !ok {
			continue
		}
		pct := decimal.Zero
		if !a.total.IsZero() {
			pct = cost.Div(a.total).Mul(hundred).Round(2)
		}
		t.Breakdown = append(t.Breakdown, Breakdown{Type: role, Cost: cost, Percent: pct})
	}
	return t
}
