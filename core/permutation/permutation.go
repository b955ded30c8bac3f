// Package permutation - Authoritative billing permutation catalogue
// Every storage configuration maps to exactly one entry or fails explicitly.
package permutation

import (
	"fmt"

	"github.com/shopspring/decimal"

	"storage-cost/core/types"
)

// Formula identifies the cost formula shape of a permutation
type Formula string

const (
	// FormulaSimpleCapacity - capacity × hourly price × period
	FormulaSimpleCapacity Formula = "simple_capacity"
	// FormulaCoolSplit - hot and cool capacity plus one-time tiering and retrieval
	FormulaCoolSplit Formula = "cool_split"
	// FormulaFlatBaseline - capacity plus throughput above a flat included baseline
	FormulaFlatBaseline Formula = "flat_baseline"
	// FormulaFixedTier - monthly price of the size bracket
	FormulaFixedTier Formula = "fixed_tier"
	// FormulaUsagePerformance - capacity plus IOPS and throughput above baseline
	FormulaUsagePerformance Formula = "usage_performance"
)

// BaselineKind classifies how included performance is derived
type BaselineKind string

const (
	BaselineNone        BaselineKind = "none"
	BaselineFlat        BaselineKind = "flat"
	BaselinePerCapacity BaselineKind = "per_capacity"
)

// BaselineRule derives included throughput or IOPS from capacity
type BaselineRule struct {
	// Kind selects flat, per-capacity or none
	Kind BaselineKind `json:"kind" yaml:"kind"`

	// Base is the flat part of the allowance
	Base decimal.Decimal `json:"base" yaml:"base"`

	// PerGiB is the allowance added per GiB of capacity
	PerGiB decimal.Decimal `json:"perGiB" yaml:"perGiB"`
}

// None is the zero allowance
func None() BaselineRule {
	return BaselineRule{Kind: BaselineNone}
}

// Flat is a fixed allowance
func Flat(base int64) BaselineRule {
	return BaselineRule{Kind: BaselineFlat, Base: decimal.NewFromInt(base)}
}

// PerCapacity is base plus perGiB × capacity
func PerCapacity(base int64, perGiB string) BaselineRule {
	return BaselineRule{Kind: BaselinePerCapacity, Base: decimal.NewFromInt(base), PerGiB: decimal.RequireFromString(perGiB)}
}

// For returns the allowance at the given capacity
func (r BaselineRule) For(capacityGiB decimal.Decimal) decimal.Decimal {
	switch r.Kind {
	case BaselineFlat:
		return r.Base
	case BaselinePerCapacity:
		return r.Base.Add(r.PerGiB.Mul(capacityGiB))
	default:
		return decimal.Zero
	}
}

// Bracket is one size step of a fixed-tier disk
type Bracket struct {
	// Name is the provider bracket name (e.g., "P10")
	Name string `json:"name" yaml:"name"`

	// MaxGiB is the largest capacity billed at this bracket
	MaxGiB int64 `json:"maxGiB" yaml:"maxGiB"`
}

// Permutation is an immutable catalogue entry. Slices are owned by the
// catalogue; values handed out by this package are copies.
type Permutation struct {
	// ID is stable within the family (1..N)
	ID int `json:"id" yaml:"id"`

	// Family is the storage family
	Family types.Family `json:"family" yaml:"family"`

	// Tier is the canonical tier or SKU name
	Tier string `json:"tier" yaml:"tier"`

	// Redundancy is empty for families without a redundancy axis
	Redundancy types.Redundancy `json:"redundancy,omitempty" yaml:"redundancy,omitempty"`

	// CoolAccess enables the hot/cool split
	CoolAccess bool `json:"coolAccess" yaml:"coolAccess"`

	// DoubleEncryption enables infrastructure double encryption
	DoubleEncryption bool `json:"doubleEncryption" yaml:"doubleEncryption"`

	// Provisioned bills on provisioned rather than consumed capacity
	Provisioned bool `json:"provisioned" yaml:"provisioned"`

	// Formula is the cost formula shape
	Formula Formula `json:"formula" yaml:"formula"`

	// IncludedThroughput is the MiB/s allowance included with capacity
	IncludedThroughput BaselineRule `json:"includedThroughput" yaml:"includedThroughput"`

	// IncludedIOPS is the IOPS allowance included with capacity
	IncludedIOPS BaselineRule `json:"includedIOPS" yaml:"includedIOPS"`

	// RequiredMeters are the meter roles the formula always needs
	RequiredMeters []types.MeterRole `json:"requiredMeters" yaml:"requiredMeters"`

	// OptionalMeters are priced only when their inputs are present
	OptionalMeters []types.MeterRole `json:"optionalMeters,omitempty" yaml:"optionalMeters,omitempty"`

	// MinCapacityGiB is the smallest allowed capacity (0 = none)
	MinCapacityGiB int64 `json:"minCapacityGiB" yaml:"minCapacityGiB"`

	// MaxCapacityGiB is the largest allowed capacity (0 = none)
	MaxCapacityGiB int64 `json:"maxCapacityGiB,omitempty" yaml:"maxCapacityGiB,omitempty"`

	// Brackets are the size steps of fixed-tier disks, ascending
	Brackets []Bracket `json:"brackets,omitempty" yaml:"brackets,omitempty"`

	// Product locates the permutation's prices in the retail catalogue
	Product types.ProductRef `json:"product" yaml:"product"`

	// PriceTier is the tier component of meter keys. Permutations that
	// share meters share a price tier.
	PriceTier string `json:"priceTier" yaml:"priceTier"`
}

// Code renders a family-scoped identifier such as "BlockDisk#07"
func (p Permutation) Code() string {
	return fmt.Sprintf("%s#%02d", p.Family, p.ID)
}

// String describes the classification tuple
func (p Permutation) String() string {
	s := fmt.Sprintf("%s %s", p.Code(), p.Tier)
	if p.Redundancy != types.RedundancyNone {
		s += " " + string(p.Redundancy)
	}
	if p.CoolAccess {
		s += " +cool"
	}
	if p.DoubleEncryption {
		s += " +double-encryption"
	}
	return s
}

// Requires reports whether role is always needed by the formula
func (p Permutation) Requires(role types.MeterRole) bool {
	return containsRole(p.RequiredMeters, role)
}

// Allows reports whether role may be priced for this permutation. The
// per-operation meters follow the transactions role.
func (p Permutation) Allows(role types.MeterRole) bool {
	if role.PerOperation() {
		role = types.RoleTransactions
	}
	return p.Requires(role) || containsRole(p.OptionalMeters, role)
}

// BracketFor returns the smallest bracket that holds capacityGiB
func (p Permutation) BracketFor(capacityGiB decimal.Decimal) (Bracket, bool) {
	for _, b := range p.Brackets {
		if capacityGiB.LessThanOrEqual(decimal.NewFromInt(b.MaxGiB)) {
			return b, true
		}
	}
	return Bracket{}, false
}

func (p Permutation) clone() Permutation {
	p.RequiredMeters = append([]types.MeterRole(nil), p.RequiredMeters...)
	if p.OptionalMeters != nil {
		p.OptionalMeters = append([]types.MeterRole(nil), p.OptionalMeters...)
	}
	if p.Brackets != nil {
		p.Brackets = append([]Bracket(nil), p.Brackets...)
	}
	return p
}

func containsRole(roles []types.MeterRole, role types.MeterRole) bool {
	for _, r := range roles {
		if r == role {
			return true
		}
	}
	return false
}

func roles(rs ...types.MeterRole) []types.MeterRole {
	return rs
}
