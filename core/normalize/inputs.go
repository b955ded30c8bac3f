// Package normalize - Universal cost inputs
package normalize

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"storage-cost/core/types"
	"storage-cost/internal/errors"
)

// Inputs is the canonical per-resource record shared by every family.
// Optional quantities are NullDecimal; an absent value is never read as zero.
type Inputs struct {
	// Identity
	ResourceID   string       `json:"resourceId" yaml:"resourceId"`
	ResourceType string       `json:"resourceType" yaml:"resourceType"`
	Region       string       `json:"region" yaml:"region"`
	Family       types.Family `json:"family" yaml:"family"`

	// PermutationID is the classified catalogue entry within Family
	PermutationID int `json:"permutationId" yaml:"permutationId"`

	// Flags copied from the permutation
	Provisioned      bool `json:"provisioned" yaml:"provisioned"`
	CoolAccess       bool `json:"coolAccess" yaml:"coolAccess"`
	DoubleEncryption bool `json:"doubleEncryption" yaml:"doubleEncryption"`

	// Capacity. ProvisionedGiB is authoritative when Provisioned, else ConsumedGiB.
	ProvisionedGiB decimal.NullDecimal `json:"provisionedGiB" yaml:"provisionedGiB"`
	ConsumedGiB    decimal.NullDecimal `json:"consumedGiB" yaml:"consumedGiB"`

	// Cool tier
	HotGiB       decimal.NullDecimal `json:"hotGiB" yaml:"hotGiB"`
	CoolGiB      decimal.NullDecimal `json:"coolGiB" yaml:"coolGiB"`
	TieredInGiB  decimal.NullDecimal `json:"tieredInGiB" yaml:"tieredInGiB"`
	RetrievedGiB decimal.NullDecimal `json:"retrievedGiB" yaml:"retrievedGiB"`

	// Performance
	IOPS                decimal.NullDecimal `json:"iops" yaml:"iops"`
	ThroughputMiBps     decimal.NullDecimal `json:"throughputMiBps" yaml:"throughputMiBps"`
	IncludedIOPS        decimal.Decimal     `json:"includedIOPS" yaml:"includedIOPS"`
	IncludedThroughput  decimal.Decimal     `json:"includedThroughput" yaml:"includedThroughput"`
	IOPSAboveBase       decimal.Decimal     `json:"iopsAboveBase" yaml:"iopsAboveBase"`
	ThroughputAboveBase decimal.Decimal     `json:"throughputAboveBase" yaml:"throughputAboveBase"`

	// Transactions
	ReadOps  decimal.NullDecimal `json:"readOps" yaml:"readOps"`
	WriteOps decimal.NullDecimal `json:"writeOps" yaml:"writeOps"`
	ListOps  decimal.NullDecimal `json:"listOps" yaml:"listOps"`

	// Data movement and protection
	EgressGiB   decimal.NullDecimal `json:"egressGiB" yaml:"egressGiB"`
	SnapshotGiB decimal.NullDecimal `json:"snapshotGiB" yaml:"snapshotGiB"`
	BackupGiB   decimal.NullDecimal `json:"backupGiB" yaml:"backupGiB"`

	// PeriodHours is the billing window length
	PeriodHours decimal.Decimal `json:"periodHours" yaml:"periodHours"`

	// Constraints copied from the permutation
	RequiredMeters []types.MeterRole `json:"requiredMeters" yaml:"requiredMeters"`
	MinCapacityGiB int64             `json:"minCapacityGiB" yaml:"minCapacityGiB"`
	MaxCapacityGiB int64             `json:"maxCapacityGiB,omitempty" yaml:"maxCapacityGiB,omitempty"`

	// Assumptions lists every fallback applied while normalizing
	Assumptions []string `json:"assumptions,omitempty" yaml:"assumptions,omitempty"`
}

// CapacityGiB returns the authoritative capacity
func (in Inputs) CapacityGiB() decimal.NullDecimal {
	if in.Provisioned {
		return in.ProvisionedGiB
	}
	return in.ConsumedGiB
}

func (in Inputs) capacityField() string {
	if in.Provisioned {
		return "provisionedGiB"
	}
	return "consumedGiB"
}

// TransactionCount sums read, write and list operations. It is invalid when
// none were reported.
func (in Inputs) TransactionCount() decimal.NullDecimal {
	total := decimal.NullDecimal{}
	for _, ops := range []decimal.NullDecimal{in.ReadOps, in.WriteOps, in.ListOps} {
		if ops.Valid {
			total.Decimal = total.Decimal.Add(ops.Decimal)
			total.Valid = true
		}
	}
	return total
}

// Operations returns the count reported for one per-operation meter role
func (in Inputs) Operations(role types.MeterRole) decimal.NullDecimal {
	switch role {
	case types.RoleReadOperations:
		return in.ReadOps
	case types.RoleWriteOperations:
		return in.WriteOps
	case types.RoleListOperations:
		return in.ListOps
	default:
		return decimal.NullDecimal{}
	}
}

// Has reports whether the input backing role is present
func (in Inputs) Has(role types.MeterRole) bool {
	switch role {
	case types.RoleCapacity:
		return in.CapacityGiB().Valid
	case types.RoleCoolCapacity:
		return in.HotGiB.Valid && in.CoolGiB.Valid
	case types.RoleTiering:
		return in.TieredInGiB.Valid
	case types.RoleRetrieval:
		return in.RetrievedGiB.Valid
	case types.RoleThroughput:
		return in.ThroughputMiBps.Valid
	case types.RoleIOPS:
		return in.IOPS.Valid
	case types.RoleTransactions:
		return in.TransactionCount().Valid
	case types.RoleReadOperations, types.RoleWriteOperations, types.RoleListOperations:
		return in.Operations(role).Valid
	case types.RoleEgress:
		return in.EgressGiB.Valid
	case types.RoleSnapshot:
		return in.SnapshotGiB.Valid
	case types.RoleBackup:
		return in.BackupGiB.Valid
	default:
		return false
	}
}

var roleFields = map[types.MeterRole]string{
	types.RoleCoolCapacity: "hotGiB,coolGiB",
	types.RoleTiering:      "tieredInGiB",
	types.RoleRetrieval:    "retrievedGiB",
	types.RoleThroughput:   "throughputMiBps",
	types.RoleIOPS:         "iops",
	types.RoleTransactions: "readOps,writeOps,listOps",
	types.RoleEgress:       "egressGiB",
	types.RoleSnapshot:     "snapshotGiB",
	types.RoleBackup:       "backupGiB",
}

// Validate returns every violated constraint. An empty result means the
// inputs can be evaluated.
func (in Inputs) Validate() []errors.Violation {
	var out []errors.Violation
	add := func(field, rule, format string, args ...interface{}) {
		out = append(out, errors.Violation{Field: field, Rule: rule, Message: fmt.Sprintf(format, args...)})
	}

	if in.CoolAccess && in.DoubleEncryption {
		add("coolAccess", "mutually_exclusive", "cool access and double encryption cannot both be enabled")
	}

	capacity := in.CapacityGiB()
	if !capacity.Valid {
		add(in.capacityField(), "required", "%s is required", in.capacityField())
	} else {
		if in.MinCapacityGiB > 0 && capacity.Decimal.LessThan(decimal.NewFromInt(in.MinCapacityGiB)) {
			qualifier := ""
			if in.CoolAccess {
				qualifier = " cool-access"
			}
			add(in.capacityField(), "min_capacity", "capacity %s GiB is below the%s minimum of %d GiB",
				capacity.Decimal.Round(2).String(), qualifier, in.MinCapacityGiB)
		}
		if in.MaxCapacityGiB > 0 && capacity.Decimal.GreaterThan(decimal.NewFromInt(in.MaxCapacityGiB)) {
			add(in.capacityField(), "max_capacity", "capacity %s GiB exceeds the maximum of %d GiB",
				capacity.Decimal.Round(2).String(), in.MaxCapacityGiB)
		}
	}

	for _, role := range in.RequiredMeters {
		if role == types.RoleCapacity {
			continue
		}
		if !in.Has(role) {
			add(roleFields[role], "required", "%s input is required for this configuration", role)
		}
	}

	for field, v := range map[string]decimal.NullDecimal{
		"provisionedGiB":  in.ProvisionedGiB,
		"consumedGiB":     in.ConsumedGiB,
		"hotGiB":          in.HotGiB,
		"coolGiB":         in.CoolGiB,
		"tieredInGiB":     in.TieredInGiB,
		"retrievedGiB":    in.RetrievedGiB,
		"iops":            in.IOPS,
		"throughputMiBps": in.ThroughputMiBps,
		"readOps":         in.ReadOps,
		"writeOps":        in.WriteOps,
		"listOps":         in.ListOps,
		"egressGiB":       in.EgressGiB,
		"snapshotGiB":     in.SnapshotGiB,
		"backupGiB":       in.BackupGiB,
	} {
		if v.Valid && v.Decimal.IsNegative() {
			add(field, "non_negative", "%s must not be negative", field)
		}
	}

	if !in.PeriodHours.IsPositive() {
		add("periodHours", "positive", "periodHours must be positive")
	}

	sortViolations(out)
	return out
}

func sortViolations(vs []errors.Violation) {
	sort.Slice(vs, func(i, j int) bool {
		if vs[i].Field != vs[j].Field {
			return vs[i].Field < vs[j].Field
		}
		return vs[i].Rule < vs[j].Rule
	})
}
