// Package normalize converts discovered storage resources into the
// universal cost inputs consumed by the formula engine.
package normalize

import (
	"fmt"
	"math"

	"github.com/goccy/go-json"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"storage-cost/core/permutation"
	"storage-cost/core/types"
	"storage-cost/internal/errors"
	"storage-cost/internal/logging"
)

// bytesPerGiB is the single divisor used for every byte quantity
var bytesPerGiB = decimal.NewFromInt(1 << 30)

// ResourceConfig is the inbound record for one discovered storage resource
type ResourceConfig struct {
	ResourceID   string `json:"resourceId" yaml:"resourceId"`
	ResourceType string `json:"resourceType" yaml:"resourceType"`
	Region       string `json:"region" yaml:"region"`

	// Classification inputs
	Family           types.Family     `json:"family" yaml:"family"`
	Tier             string           `json:"tier" yaml:"tier"`
	Redundancy       types.Redundancy `json:"redundancy,omitempty" yaml:"redundancy,omitempty"`
	CoolAccess       bool             `json:"coolAccess,omitempty" yaml:"coolAccess,omitempty"`
	DoubleEncryption bool             `json:"doubleEncryption,omitempty" yaml:"doubleEncryption,omitempty"`

	// Sizes in bytes
	ProvisionedBytes *int64 `json:"provisionedBytes,omitempty" yaml:"provisionedBytes,omitempty"`
	ConsumedBytes    *int64 `json:"consumedBytes,omitempty" yaml:"consumedBytes,omitempty"`
	EgressBytes      *int64 `json:"egressBytes,omitempty" yaml:"egressBytes,omitempty"`
	SnapshotBytes    *int64 `json:"snapshotBytes,omitempty" yaml:"snapshotBytes,omitempty"`
	BackupBytes      *int64 `json:"backupBytes,omitempty" yaml:"backupBytes,omitempty"`
	RetrievedBytes   *int64 `json:"retrievedBytes,omitempty" yaml:"retrievedBytes,omitempty"`

	// Provisioned or required performance
	IOPS            *float64 `json:"iops,omitempty" yaml:"iops,omitempty"`
	ThroughputMiBps *float64 `json:"throughputMiBps,omitempty" yaml:"throughputMiBps,omitempty"`

	// Operation counts over the period
	ReadOps  *int64 `json:"readOps,omitempty" yaml:"readOps,omitempty"`
	WriteOps *int64 `json:"writeOps,omitempty" yaml:"writeOps,omitempty"`
	ListOps  *int64 `json:"listOps,omitempty" yaml:"listOps,omitempty"`

	// PeriodHours overrides the canonical 720 hour window
	PeriodHours *float64 `json:"periodHours,omitempty" yaml:"periodHours,omitempty"`

	// Metrics is the raw historical metrics payload
	Metrics json.RawMessage `json:"metrics,omitempty" yaml:"-"`
}

// Normalizer builds Inputs. It holds no mutable state.
type Normalizer struct {
	logger *zap.Logger
}

// New creates a normalizer. A nil logger uses the global one.
func New(logger *zap.Logger) *Normalizer {
	return &Normalizer{logger: logging.OrNamed(logger, "normalize")}
}

// Normalize converts res using the package default normalizer
func Normalize(res ResourceConfig, metrics []byte, perm permutation.Permutation) (Inputs, error) {
	return New(nil).Normalize(res, metrics, perm)
}

// Normalize converts res into Inputs for perm. metrics overrides
// res.Metrics when non-empty. The returned error is VALIDATION_FAILED with
// every violation when the inputs cannot be evaluated; the Inputs are
// returned either way. NaN and infinite values are violations, never read.
func (n *Normalizer) Normalize(res ResourceConfig, metrics []byte, perm permutation.Permutation) (Inputs, error) {
	if len(metrics) == 0 {
		metrics = res.Metrics
	}
	violations := nonFinite(map[string]*float64{
		"iops":            res.IOPS,
		"throughputMiBps": res.ThroughputMiBps,
		"periodHours":     res.PeriodHours,
	})

	in := Inputs{
		ResourceID:       res.ResourceID,
		ResourceType:     res.ResourceType,
		Region:           res.Region,
		Family:           perm.Family,
		PermutationID:    perm.ID,
		Provisioned:      perm.Provisioned,
		CoolAccess:       perm.CoolAccess,
		DoubleEncryption: perm.DoubleEncryption,
		ProvisionedGiB:   gib(res.ProvisionedBytes),
		ConsumedGiB:      gib(res.ConsumedBytes),
		IOPS:             fromFloat(res.IOPS),
		ThroughputMiBps:  fromFloat(res.ThroughputMiBps),
		ReadOps:          fromCount(res.ReadOps),
		WriteOps:         fromCount(res.WriteOps),
		ListOps:          fromCount(res.ListOps),
		EgressGiB:        gib(res.EgressBytes),
		SnapshotGiB:      gib(res.SnapshotBytes),
		BackupGiB:        gib(res.BackupBytes),
		RetrievedGiB:     gib(res.RetrievedBytes),
		PeriodHours:      decimal.NewFromInt(types.CanonicalPeriodHours),
		RequiredMeters:   append([]types.MeterRole(nil), perm.RequiredMeters...),
		MinCapacityGiB:   perm.MinCapacityGiB,
		MaxCapacityGiB:   perm.MaxCapacityGiB,
	}
	if hours := fromFloat(res.PeriodHours); hours.Valid {
		in.PeriodHours = hours.Decimal
	}

	log := n.logger.With(zap.String("resource_id", res.ResourceID), zap.String("permutation", perm.Code()))

	m, err := ParseHistoricalMetrics(metrics)
	if err != nil {
		log.Warn("ignoring unparseable historical metrics", zap.Error(err))
		in.Assumptions = append(in.Assumptions, "historical metrics could not be parsed")
		m = nil
	}

	// usage metrics fill gaps the discovery record left
	if m != nil {
		if !in.ConsumedGiB.Valid && m.UsedBytes != nil {
			in.ConsumedGiB = gib(m.UsedBytes)
			in.Assumptions = append(in.Assumptions, "consumed capacity taken from historical metrics")
		}
		if !in.ThroughputMiBps.Valid && m.PeakThroughputMiBps != nil && perm.Allows(types.RoleThroughput) {
			in.ThroughputMiBps = fromFloat(m.PeakThroughputMiBps)
			in.Assumptions = append(in.Assumptions, "throughput taken from peak observed throughput")
		}
		if !in.IOPS.Valid && m.PeakIOPS != nil && perm.Allows(types.RoleIOPS) {
			in.IOPS = fromFloat(m.PeakIOPS)
			in.Assumptions = append(in.Assumptions, "IOPS taken from peak observed IOPS")
		}
	}

	if perm.CoolAccess {
		n.splitCool(&in, m, err != nil, log)
	}

	capacity := in.CapacityGiB()
	if capacity.Valid {
		in.IncludedThroughput = perm.IncludedThroughput.For(capacity.Decimal)
		in.IncludedIOPS = perm.IncludedIOPS.For(capacity.Decimal)
	}
	if in.ThroughputMiBps.Valid {
		in.ThroughputAboveBase = aboveBase(in.ThroughputMiBps.Decimal, in.IncludedThroughput)
	}
	if in.IOPS.Valid {
		in.IOPSAboveBase = aboveBase(in.IOPS.Decimal, in.IncludedIOPS)
	}

	violations = append(violations, in.Validate()...)
	if len(violations) > 0 {
		sortViolations(violations)
		return in, errors.ValidationFailed(violations).
			WithContext("resource_id", res.ResourceID).
			WithContext("permutation", perm.Code())
	}
	return in, nil
}

// splitCool populates the hot/cool split. Without a usable split the whole
// capacity is treated as hot.
func (n *Normalizer) splitCool(in *Inputs, m *HistoricalMetrics, parseFailed bool, log *zap.Logger) {
	if m.HasSplit() {
		in.HotGiB = gib(m.HotBytes)
		in.CoolGiB = gib(m.CoolBytes)
		in.TieredInGiB = zeroIfAbsent(gib(m.TieredInBytes))
		retrievalMissing := !in.RetrievedGiB.Valid && m.RetrievedBytes == nil
		if !in.RetrievedGiB.Valid {
			in.RetrievedGiB = zeroIfAbsent(gib(m.RetrievedBytes))
		}
		if m.TieredInBytes == nil || retrievalMissing {
			in.Assumptions = append(in.Assumptions, "missing tiering or retrieval volume treated as zero")
		}
		return
	}

	capacity := in.CapacityGiB()
	if !capacity.Valid {
		return
	}
	if !parseFailed {
		log.Warn("no hot/cool split in historical metrics, treating all capacity as hot")
	}
	in.HotGiB = capacity
	in.CoolGiB = decimal.NewNullDecimal(decimal.Zero)
	in.TieredInGiB = decimal.NewNullDecimal(decimal.Zero)
	in.RetrievedGiB = zeroIfAbsent(in.RetrievedGiB)
	in.Assumptions = append(in.Assumptions, "100% hot / 0% cool split assumed")
}

func aboveBase(v, base decimal.Decimal) decimal.Decimal {
	if d := v.Sub(base); d.IsPositive() {
		return d
	}
	return decimal.Zero
}

// gib converts an optional byte count to GiB
func gib(b *int64) decimal.NullDecimal {
	if b == nil {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(decimal.NewFromInt(*b).Div(bytesPerGiB))
}

// fromFloat converts an optional float. NaN and infinities are absent;
// Normalize reports them through nonFinite.
func fromFloat(v *float64) decimal.NullDecimal {
	if v == nil || math.IsNaN(*v) || math.IsInf(*v, 0) {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(decimal.NewFromFloat(*v))
}

func nonFinite(fields map[string]*float64) []errors.Violation {
	var out []errors.Violation
	for field, v := range fields {
		if v != nil && (math.IsNaN(*v) || math.IsInf(*v, 0)) {
			out = append(out, errors.Violation{
				Field:   field,
				Rule:    "non_finite",
				Message: fmt.Sprintf("%s must be a finite number, got %v", field, *v),
			})
		}
	}
	return out
}

func fromCount(v *int64) decimal.NullDecimal {
	if v == nil {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(decimal.NewFromInt(*v))
}

func zeroIfAbsent(v decimal.NullDecimal) decimal.NullDecimal {
	if v.Valid {
		return v
	}
	return decimal.NewNullDecimal(decimal.Zero)
}
