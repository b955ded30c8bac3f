// Package cost - Actual billing reconciliation
package cost

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"storage-cost/core/types"
	"storage-cost/internal/logging"
)

// ActualCost is one billed amount for a resource meter
type ActualCost struct {
	ResourceID string          `json:"resourceId" yaml:"resourceId"`
	Type       types.MeterRole `json:"componentType" yaml:"componentType"`
	Amount     decimal.Decimal `json:"amount" yaml:"amount"`
	Currency   types.Currency  `json:"currency,omitempty" yaml:"currency,omitempty"`
	From       time.Time       `json:"from" yaml:"from"`
	To         time.Time       `json:"to" yaml:"to"`
}

// ActualCostSource queries billed amounts for one resource over a date range
type ActualCostSource interface {
	ActualCosts(ctx context.Context, resourceID string, from, to time.Time) ([]ActualCost, error)
}

// StaticActuals serves actual costs from memory
type StaticActuals []ActualCost

// ActualCosts returns the entries for resourceID that overlap [from, to)
func (s StaticActuals) ActualCosts(ctx context.Context, resourceID string, from, to time.Time) ([]ActualCost, error) {
	var out []ActualCost
	for _, a := range s {
		if a.ResourceID != resourceID {
			continue
		}
		if !a.To.IsZero() && !a.To.After(from) {
			continue
		}
		if !a.From.IsZero() && !a.From.Before(to) {
			continue
		}
		out = append(out, a)
	}
	return out, nil
}

// Reconcile substitutes billed amounts for estimated components of the
// same type and raises confidence by the share of components replaced.
// Source errors are logged and leave the components unchanged.
func Reconcile(ctx context.Context, src ActualCostSource, resourceID string, from, to time.Time,
	components []types.CostComponent, conf *Confidence, logger *zap.Logger) []types.CostComponent {
	if src == nil || len(components) == 0 {
		return components
	}
	logger = logging.OrNamed(logger, "actuals")

	actuals, err := src.ActualCosts(ctx, resourceID, from, to)
	if err != nil {
		logger.Warn("actual billing query failed, keeping estimates",
			zap.String("resource_id", resourceID),
			zap.Error(err))
		return components
	}

	billed := make(map[types.MeterRole]decimal.Decimal)
	for _, a := range actuals {
		if !a.Type.IsValid() {
			logger.Debug("ignoring actual cost with unknown type",
				zap.String("resource_id", resourceID),
				zap.String("type", string(a.Type)))
			continue
		}
		billed[a.Type] = billed[a.Type].Add(a.Amount)
	}
	if len(billed) == 0 {
		return components
	}

	out := make([]types.CostComponent, len(components))
	replaced := 0
	for i, c := range components {
		amount, ok := billed[c.Type]
		if !ok {
			out[i] = c
			continue
		}
		out[i] = c.WithActual(amount)
		// one billed amount per type
		delete(billed, c.Type)
		replaced++
	}

	if replaced > 0 && conf != nil {
		conf.Raise("actuals", fmt.Sprintf("%d of %d components taken from billing data", replaced, len(components)),
			float64(replaced)/float64(len(components)))
	}
	return out
}
