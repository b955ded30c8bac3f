package pricing

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storage-cost/core/permutation"
	"storage-cost/core/types"
	"storage-cost/internal/errors"
)

// TestMeterKeyRoundTrip checks every catalogue tier and role decomposes back
func TestMeterKeyRoundTrip(t *testing.T) {
	for _, p := range permutation.All() {
		for _, role := range types.MeterRoles {
			k, err := NewMeterKey(p.Family, p.PriceTier, p.Redundancy, role)
			require.NoError(t, err, p.String())

			parsed, err := ParseMeterKey(k.String())
			require.NoError(t, err, k.String())
			assert.Equal(t, k, parsed)
			assert.Equal(t, role, parsed.Role)
			assert.Equal(t, k.Tier, parsed.Tier)
		}
	}
}

func TestMeterKeyString(t *testing.T) {
	k, err := NewMeterKey(types.FamilyFileShare, "Transaction Optimized", types.RedundancyGZRS, types.RoleCapacity)
	require.NoError(t, err)
	assert.Equal(t, "fs-transaction_optimized-gzrs-capacity", k.String())

	k, err = NewMeterKey(types.FamilyNASVolume, "Standard", types.RedundancyNone, types.RoleCoolCapacity)
	require.NoError(t, err)
	assert.Equal(t, "nas-standard-coolcapacity", k.String())

	k, err = NewMeterKey(types.FamilyBlockDisk, "premium-ssd v2", "lrs", types.RoleIOPS)
	require.NoError(t, err)
	assert.Equal(t, "disk-premium_ssd_v2-lrs-iops", k.String())
}

func TestNewMeterKeyRejectsUnclassifiedRole(t *testing.T) {
	for _, role := range []types.MeterRole{"", "   ", "storage", "capacity-hot"} {
		_, err := NewMeterKey(types.FamilyFileShare, "hot", types.RedundancyLRS, role)
		require.Error(t, err, "role %q", role)
		assert.True(t, errors.IsType(err, errors.TypeInvalidMeterKey))
	}

	_, err := NewMeterKey(types.FamilyFileShare, "  ", types.RedundancyLRS, types.RoleCapacity)
	assert.True(t, errors.IsType(err, errors.TypeInvalidMeterKey))

	_, err = NewMeterKey(types.Family("Blob"), "hot", types.RedundancyLRS, types.RoleCapacity)
	assert.True(t, errors.IsType(err, errors.TypeInvalidMeterKey))
}

func TestParseMeterKeyRejectsMalformed(t *testing.T) {
	for _, s := range []string{
		"",
		"fs-hot-",
		"fs-hot-lrs-",
		"fs-hot-lrs",
		"fs--capacity",
		"blob-hot-capacity",
		"fs-hot-ragrs-capacity",
		"fs-hot-lrs-capacity-extra",
		"FS-hot-capacity",
	} {
		_, err := ParseMeterKey(s)
		require.Error(t, err, "key %q", s)
		assert.True(t, errors.IsType(err, errors.TypeInvalidMeterKey))
	}
}

func TestLiteralKeyWithoutRoleIsInvalid(t *testing.T) {
	k := MeterKey{Family: types.FamilyFileShare, Tier: "hot"}
	assert.Equal(t, "fs-hot-", k.String())
	assert.Error(t, k.Validate())
}

func TestClassifyMeter(t *testing.T) {
	tests := []struct {
		meter string
		want  types.MeterRole
		ok    bool
	}{
		{"Hot LRS Data Stored", types.RoleCapacity, true},
		{"Cool ZRS Data Stored", types.RoleCapacity, true},
		{"Standard Capacity", types.RoleCapacity, true},
		{"P10 LRS Disk", types.RoleCapacity, true},
		{"Premium LRS Provisioned", types.RoleCapacity, true},
		{"Cool Tier Capacity", types.RoleCoolCapacity, true},
		{"Cool Tier Data Transfer In", types.RoleTiering, true},
		{"Cool Tier Data Transfer Out", types.RoleRetrieval, true},
		{"Data Retrieval", types.RoleRetrieval, true},
		{"Flexible Throughput", types.RoleThroughput, true},
		{"Provisioned Throughput (MiBps)", types.RoleThroughput, true},
		{"Provisioned IOPS", types.RoleIOPS, true},
		{"Write Operations", types.RoleWriteOperations, true},
		{"Hot Write Operations", types.RoleWriteOperations, true},
		{"Hot Read Operations", types.RoleReadOperations, true},
		{"Hot List Operations", types.RoleListOperations, true},
		{"List and Create Container Operations", types.RoleListOperations, true},
		{"Protocol Operations", types.RoleTransactions, true},
		{"Disk Operations", types.RoleTransactions, true},
		{"LRS Snapshot", types.RoleSnapshot, true},
		{"Backup Data Stored", types.RoleBackup, true},
		{"Geo-Replication Data Transfer", types.RoleEgress, true},
		{"Early Delete", "", false},
		{"Metadata", "", false},
		{"", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.meter, func(t *testing.T) {
			got, ok := ClassifyMeter(tt.meter)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNormalizePrice(t *testing.T) {
	tests := []struct {
		name   string
		amount string
		uom    string
		role   types.MeterRole
		want   string
		basis  types.PriceBasis
	}{
		{"hourly capacity", "0.000141", "1 GiB/Hour", types.RoleCapacity, "0.000141", types.BasisHourly},
		{"monthly capacity per GB", "0.073", "1 GB/Month", types.RoleCapacity, "0.0001", types.BasisHourly},
		{"fixed bracket", "19.71", "1/Month", types.RoleCapacity, "19.71", types.BasisMonthly},
		{"transactions per 10K", "0.065", "10K", types.RoleTransactions, "0.065", types.BasisPer10K},
		{"transactions per 1M", "1", "1M", types.RoleTransactions, "0.01", types.BasisPer10K},
		{"write operations per 10K", "0.065", "10K", types.RoleWriteOperations, "0.065", types.BasisPer10K},
		{"one-time retrieval", "0.01", "1 GB", types.RoleRetrieval, "0.01", types.BasisOneTime},
		{"bulk one-time", "1", "100 GB", types.RoleTiering, "0.01", types.BasisOneTime},
		{"throughput per hour", "0.00085", "1 MiB/s/Hour", types.RoleThroughput, "0.00085", types.BasisHourly},
		{"unitless per hour", "0.0000069", "1/Hour", types.RoleIOPS, "0.0000069", types.BasisHourly},
		{"count per hour", "0.5", "1 Hour", types.RoleIOPS, "0.5", types.BasisHourly},
		{"terabyte month", "7.3", "1 TB/Month", types.RoleCapacity, "0.0000097656", types.BasisHourly},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, basis, err := NormalizePrice(decimal.RequireFromString(tt.amount), tt.uom, tt.role)
			require.NoError(t, err)
			assert.Equal(t, tt.basis, basis)
			assert.True(t, got.Round(10).Equal(decimal.RequireFromString(tt.want)), "got %s want %s", got, tt.want)
		})
	}
}

func TestNormalizePriceRejectsUnknownUnits(t *testing.T) {
	for _, uom := range []string{"", "1 Widget/Month", "abc", "0 GB/Month", "1/Month/Week"} {
		_, _, err := NormalizePrice(decimal.NewFromInt(1), uom, types.RoleCapacity)
		assert.Error(t, err, uom)
	}
	_, _, err := NormalizePrice(decimal.NewFromInt(1), "1", types.RoleRetrieval)
	assert.Error(t, err)
}
