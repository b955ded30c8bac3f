// Package cost provides the cost formula engine.
// This package transforms a permutation + normalized inputs into priced cost components.
package cost

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"storage-cost/core/normalize"
	"storage-cost/core/permutation"
	"storage-cost/core/pricing"
	"storage-cost/core/types"
	"storage-cost/internal/errors"
)

// PriceResolver resolves unit prices. *pricing.Resolver implements it.
type PriceResolver interface {
	GetPrice(ctx context.Context, region string, role types.MeterRole, tc pricing.TierContext) (types.UnitPrice, error)
}

// Lookup is one price a formula needs
type Lookup struct {
	Role types.MeterRole
	Tier pricing.TierContext

	// Fallback is looked up instead when Role has no price
	Fallback types.MeterRole
}

// FormulaContext provides context for cost formula evaluation
type FormulaContext struct {
	// Permutation is the classified catalogue entry
	Permutation permutation.Permutation

	// Inputs are the normalized resource inputs
	Inputs normalize.Inputs

	// Prices holds every resolved price, keyed by role
	Prices map[types.MeterRole]types.UnitPrice

	// Bracket is the size bracket of a fixed-tier disk
	Bracket permutation.Bracket
}

// formula computes the components of one formula shape
type formula func(fc *FormulaContext) ([]types.CostComponent, error)

var formulas = map[permutation.Formula]formula{
	permutation.FormulaSimpleCapacity:   simpleCapacity,
	permutation.FormulaCoolSplit:        coolSplit,
	permutation.FormulaFlatBaseline:     flatBaseline,
	permutation.FormulaFixedTier:        fixedTier,
	permutation.FormulaUsagePerformance: usagePerformance,
}

// Evaluate prices inputs under perm. Every needed price is resolved before
// any component is computed; if any lookup or computation fails no
// components are returned.
func Evaluate(ctx context.Context, perm permutation.Permutation, in normalize.Inputs, resolver PriceResolver) ([]types.CostComponent, error) {
	if resolver == nil {
		return nil, errors.Formula("no price resolver", nil)
	}
	if in.Family != perm.Family || in.PermutationID != perm.ID {
		return nil, errors.Formula(fmt.Sprintf("inputs were normalized for %s#%02d, not %s", in.Family, in.PermutationID, perm.Code()), nil)
	}
	if violations := in.Validate(); len(violations) > 0 {
		return nil, errors.Formula("inputs are not valid for "+perm.Code(), errors.ValidationFailed(violations))
	}
	shape, ok := formulas[perm.Formula]
	if !ok {
		return nil, errors.Formula(fmt.Sprintf("%s has unknown formula %q", perm.Code(), perm.Formula), nil)
	}

	fc := &FormulaContext{Permutation: perm, Inputs: in}
	lookups, err := Lookups(fc)
	if err != nil {
		return nil, err
	}

	prices, err := resolveAll(ctx, in.Region, lookups, resolver)
	if err != nil {
		return nil, err
	}
	fc.Prices = prices

	components, err := shape(fc)
	if err != nil {
		return nil, err
	}
	emitted := make(map[types.MeterRole]bool, len(components))
	for _, c := range components {
		emitted[c.Type] = true
	}
	extras, err := optionalComponents(fc, emitted)
	if err != nil {
		return nil, err
	}
	components = append(components, extras...)

	sort.SliceStable(components, func(i, j int) bool {
		return components[i].Type.Order() < components[j].Type.Order()
	})
	return components, nil
}

// Lookups returns the prices a formula needs: every required role plus the
// optional roles whose inputs are present. Transactions are looked up per
// reported operation kind, falling back to the generic transactions meter.
// It sets fc.Bracket for fixed-tier permutations.
func Lookups(fc *FormulaContext) ([]Lookup, error) {
	perm, in := fc.Permutation, fc.Inputs
	base := pricing.TierContext{
		Family:     perm.Family,
		Tier:       perm.PriceTier,
		Redundancy: perm.Redundancy,
		Product:    perm.Product,
	}

	var roles []types.MeterRole
	roles = append(roles, perm.RequiredMeters...)
	for _, role := range perm.OptionalMeters {
		if !in.Has(role) || perm.Requires(role) {
			continue
		}
		// zero overage needs no price
		if role == types.RoleIOPS && in.IOPSAboveBase.IsZero() {
			continue
		}
		if role == types.RoleThroughput && in.ThroughputAboveBase.IsZero() {
			continue
		}
		roles = append(roles, role)
	}

	out := make([]Lookup, 0, len(roles)+len(types.OperationRoles))
	for _, role := range roles {
		if role == types.RoleTransactions {
			for _, op := range types.OperationRoles {
				if in.Operations(op).Valid {
					out = append(out, Lookup{Role: op, Tier: base, Fallback: types.RoleTransactions})
				}
			}
			continue
		}
		tc := base
		if perm.Formula == permutation.FormulaFixedTier && role == types.RoleCapacity {
			b, ok := perm.BracketFor(in.CapacityGiB().Decimal)
			if !ok {
				return nil, errors.Formula(fmt.Sprintf("%s GiB exceeds every %s bracket", in.CapacityGiB().Decimal.String(), perm.Tier), nil)
			}
			fc.Bracket = b
			tc.Tier = perm.PriceTier + "_" + strings.ToLower(b.Name)
			tc.Product.SkuName = strings.TrimSpace(b.Name + " " + string(perm.Redundancy))
		}
		out = append(out, Lookup{Role: role, Tier: tc})
	}
	return out, nil
}

func resolveAll(ctx context.Context, region string, lookups []Lookup, resolver PriceResolver) (map[types.MeterRole]types.UnitPrice, error) {
	resolved := make([]types.UnitPrice, len(lookups))
	g, gctx := errgroup.WithContext(ctx)
	for i, l := range lookups {
		g.Go(func() error {
			p, err := resolver.GetPrice(gctx, region, l.Role, l.Tier)
			if err != nil && l.Fallback != "" && errors.IsType(err, errors.TypePriceUnavailable) {
				p, err = resolver.GetPrice(gctx, region, l.Fallback, l.Tier)
			}
			if err != nil {
				return errors.Formula(fmt.Sprintf("no %s price for %s in %s", l.Role, l.Tier.Tier, region), err).
					WithContext("role", string(l.Role))
			}
			resolved[i] = p
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	prices := make(map[types.MeterRole]types.UnitPrice, len(lookups))
	for i, l := range lookups {
		prices[l.Role] = resolved[i]
	}
	return prices, nil
}

// ---------------------------------------------------------------------------
// Formula shapes
// ---------------------------------------------------------------------------

// simpleCapacity: capacity × hourly price × period
func simpleCapacity(fc *FormulaContext) ([]types.CostComponent, error) {
	c, err := fc.hourly(types.RoleCapacity, fc.Inputs.CapacityGiB().Decimal)
	if err != nil {
		return nil, err
	}
	return []types.CostComponent{c}, nil
}

// coolSplit: hot and cool capacity per hour, tiering and retrieval once
func coolSplit(fc *FormulaContext) ([]types.CostComponent, error) {
	in := fc.Inputs
	hot, err := fc.hourly(types.RoleCapacity, in.HotGiB.Decimal)
	if err != nil {
		return nil, err
	}
	cool, err := fc.hourly(types.RoleCoolCapacity, in.CoolGiB.Decimal)
	if err != nil {
		return nil, err
	}
	tiering, err := fc.oneTime(types.RoleTiering, in.TieredInGiB.Decimal)
	if err != nil {
		return nil, err
	}
	retrieval, err := fc.oneTime(types.RoleRetrieval, in.RetrievedGiB.Decimal)
	if err != nil {
		return nil, err
	}
	return []types.CostComponent{hot, cool, tiering, retrieval}, nil
}

// flatBaseline: capacity (or the cool split) plus throughput above the
// included baseline
func flatBaseline(fc *FormulaContext) ([]types.CostComponent, error) {
	capacity := simpleCapacity
	if fc.Permutation.CoolAccess {
		capacity = coolSplit
	}
	out, err := capacity(fc)
	if err != nil {
		return nil, err
	}
	tp, err := fc.hourly(types.RoleThroughput, fc.Inputs.ThroughputAboveBase)
	if err != nil {
		return nil, err
	}
	return append(out, tp), nil
}

// fixedTier: the bracket's monthly price scaled to the period
func fixedTier(fc *FormulaContext) ([]types.CostComponent, error) {
	price, err := fc.price(types.RoleCapacity, types.BasisMonthly)
	if err != nil {
		return nil, err
	}
	hours := fc.Inputs.PeriodHours
	raw := price.Amount.Mul(hours).Div(decimal.NewFromInt(types.CanonicalPeriodHours))
	c := types.NewCostComponent(types.RoleCapacity, decimal.NewFromInt(1), price.Amount, "1/month ("+fc.Bracket.Name+")", raw)
	c.PriceSource = price.Source
	c.Formula = fmt.Sprintf("%s bracket %s × %s h / %d h", fc.Bracket.Name, price.Amount, hours, types.CanonicalPeriodHours)
	return []types.CostComponent{c}, nil
}

// usagePerformance: capacity plus IOPS and throughput above baseline
func usagePerformance(fc *FormulaContext) ([]types.CostComponent, error) {
	out, err := simpleCapacity(fc)
	if err != nil {
		return nil, err
	}
	if _, ok := fc.Prices[types.RoleIOPS]; ok {
		c, err := fc.hourly(types.RoleIOPS, fc.Inputs.IOPSAboveBase)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	if _, ok := fc.Prices[types.RoleThroughput]; ok {
		c, err := fc.hourly(types.RoleThroughput, fc.Inputs.ThroughputAboveBase)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

// optionalComponents prices transactions, retrieval, egress, snapshots and
// backups when they were looked up and the formula has not already emitted
// them
func optionalComponents(fc *FormulaContext, emitted map[types.MeterRole]bool) ([]types.CostComponent, error) {
	var out []types.CostComponent
	in := fc.Inputs
	add := func(c types.CostComponent, err error) error {
		if err != nil {
			return err
		}
		out = append(out, c)
		return nil
	}

	if c, ok, err := fc.transactions(); err != nil {
		return nil, err
	} else if ok {
		out = append(out, c)
	}

	for _, role := range []types.MeterRole{types.RoleRetrieval, types.RoleEgress, types.RoleSnapshot, types.RoleBackup} {
		if _, ok := fc.Prices[role]; !ok || emitted[role] {
			continue
		}
		var err error
		switch role {
		case types.RoleRetrieval:
			err = add(fc.oneTime(role, in.RetrievedGiB.Decimal))
		case types.RoleEgress:
			err = add(fc.oneTime(role, in.EgressGiB.Decimal))
		case types.RoleSnapshot:
			err = add(fc.hourly(role, in.SnapshotGiB.Decimal))
		case types.RoleBackup:
			err = add(fc.hourly(role, in.BackupGiB.Decimal))
		}
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

// transactions sums every reported operation kind at its own per-10K
// price into one component. ok is false when no operation was priced.
func (fc *FormulaContext) transactions() (types.CostComponent, bool, error) {
	var (
		ops, raw decimal.Decimal
		terms    []string
		source   types.PriceSource
		priced   bool
	)
	for _, role := range types.OperationRoles {
		if _, ok := fc.Prices[role]; !ok {
			continue
		}
		p, err := fc.price(role, types.BasisPer10K)
		if err != nil {
			return types.CostComponent{}, false, err
		}
		n := fc.Inputs.Operations(role).Decimal
		ops = ops.Add(n)
		raw = raw.Add(n.Div(decimal.NewFromInt(10000)).Mul(p.Amount))
		terms = append(terms, fmt.Sprintf("%s %s / 10000 × %s", n, operationLabel(role), p.Amount))
		source = weakerSource(source, p.Source)
		priced = true
	}
	if !priced {
		return types.CostComponent{}, false, nil
	}

	// blended price per 10K so quantity × unit price reproduces the cost
	unit := decimal.Zero
	if !ops.IsZero() {
		unit = raw.Div(ops).Mul(decimal.NewFromInt(10000)).Round(6)
	}
	c := types.NewCostComponent(types.RoleTransactions, ops, unit, "10K operations", raw)
	c.PriceSource = source
	c.Formula = strings.Join(terms, " + ")
	return c, true, nil
}

func operationLabel(role types.MeterRole) string {
	switch role {
	case types.RoleReadOperations:
		return "read ops"
	case types.RoleWriteOperations:
		return "write ops"
	default:
		return "list ops"
	}
}

// sourceRank orders price sources from most to least trustworthy
var sourceRank = map[types.PriceSource]int{
	types.SourceActual:   0,
	types.SourceRetail:   1,
	types.SourceCache:    2,
	types.SourceStale:    3,
	types.SourceFallback: 4,
}

// weakerSource returns the less trustworthy of two sources; empty loses to anything
func weakerSource(a, b types.PriceSource) types.PriceSource {
	if a == "" {
		return b
	}
	if sourceRank[b] > sourceRank[a] {
		return b
	}
	return a
}

// ---------------------------------------------------------------------------
// Component builders
// ---------------------------------------------------------------------------

func (fc *FormulaContext) price(role types.MeterRole, basis types.PriceBasis) (types.UnitPrice, error) {
	p, ok := fc.Prices[role]
	if !ok {
		return types.UnitPrice{}, errors.Formula(fmt.Sprintf("%s price was not resolved for %s", role, fc.Permutation.Code()), nil)
	}
	if p.Basis != basis {
		return types.UnitPrice{}, errors.Formula(fmt.Sprintf("%s price for %s is %s, formula needs %s", role, fc.Permutation.Code(), p.Basis, basis), nil)
	}
	return p, nil
}

// hourly: quantity × price per unit-hour × period hours
func (fc *FormulaContext) hourly(role types.MeterRole, qty decimal.Decimal) (types.CostComponent, error) {
	p, err := fc.price(role, types.BasisHourly)
	if err != nil {
		return types.CostComponent{}, err
	}
	hours := fc.Inputs.PeriodHours
	c := types.NewCostComponent(role, qty, p.Amount, unitLabel(role)+"/hour", qty.Mul(p.Amount).Mul(hours))
	c.PriceSource = p.Source
	c.Formula = fmt.Sprintf("%s %s × %s × %s h", qty.Round(4), unitLabel(role), p.Amount, hours)
	return c, nil
}

// oneTime: quantity × price per unit, not scaled by period
func (fc *FormulaContext) oneTime(role types.MeterRole, qty decimal.Decimal) (types.CostComponent, error) {
	p, err := fc.price(role, types.BasisOneTime)
	if err != nil {
		return types.CostComponent{}, err
	}
	c := types.NewCostComponent(role, qty, p.Amount, unitLabel(role), qty.Mul(p.Amount))
	c.OneTime = true
	c.PriceSource = p.Source
	c.Formula = fmt.Sprintf("%s %s × %s", qty.Round(4), unitLabel(role), p.Amount)
	return c, nil
}

func unitLabel(role types.MeterRole) string {
	switch role {
	case types.RoleThroughput:
		return "MiB/s"
	case types.RoleIOPS:
		return "IOPS"
	default:
		return "GiB"
	}
}
