package pricing

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storage-cost/core/types"
)

func TestDefaultSnapshotLoadsCleanly(t *testing.T) {
	s, err := DefaultSnapshot()
	require.NoError(t, err)
	assert.Empty(t, s.Rejected())
	assert.Equal(t, 6*time.Hour, s.TTL)
	assert.Equal(t, types.CurrencyUSD, s.Currency)
	assert.Greater(t, s.Len(), 50)
	assert.NotEmpty(t, s.ID)
}

func TestSnapshotRegionPrecedence(t *testing.T) {
	s, err := DefaultSnapshot()
	require.NoError(t, err)
	key, err := NewMeterKey(types.FamilyNASVolume, "standard", "", types.RoleCapacity)
	require.NoError(t, err)

	p, ok := s.Lookup("West Europe", key)
	require.True(t, ok)
	assert.True(t, p.Amount.Equal(decimal.RequireFromString("0.000222")))

	p, ok = s.Lookup("eastus", key)
	require.True(t, ok)
	assert.True(t, p.Amount.Equal(decimal.RequireFromString("0.000202")))
	assert.Equal(t, types.SourceFallback, p.Source)
}

func TestDefaultSnapshotPricesOperationsSeparately(t *testing.T) {
	s, err := DefaultSnapshot()
	require.NoError(t, err)

	for role, want := range map[types.MeterRole]string{
		types.RoleWriteOperations: "0.065",
		types.RoleReadOperations:  "0.0052",
		types.RoleListOperations:  "0.065",
	} {
		key, err := NewMeterKey(types.FamilyFileShare, "hot", types.RedundancyLRS, role)
		require.NoError(t, err)
		p, ok := s.Lookup("eastus", key)
		require.True(t, ok, key.String())
		assert.Equal(t, types.BasisPer10K, p.Basis)
		assert.True(t, p.Amount.Equal(decimal.RequireFromString(want)), "%s: got %s", role, p.Amount)
	}
}

func TestSnapshotBracketPrices(t *testing.T) {
	s, err := DefaultSnapshot()
	require.NoError(t, err)
	key, err := NewMeterKey(types.FamilyBlockDisk, "premiumssd_p10", types.RedundancyLRS, types.RoleCapacity)
	require.NoError(t, err)

	p, ok := s.Lookup("eastus", key)
	require.True(t, ok)
	assert.Equal(t, types.BasisMonthly, p.Basis)
	assert.True(t, p.Amount.Equal(decimal.RequireFromString("19.71")))
}

func TestParseSnapshotRejectsBadBlocks(t *testing.T) {
	src := []byte(`
snapshot "test" {
  ttl = "2h"

  region "*" {
    price "fs-hot-lrs-capacity" {
      amount = 0.0255
      unit   = "1 GB/Month"
    }
    price "fs-hot-" {
      amount = 1
      unit   = "1 GB/Month"
    }
    price "fs-hot-lrs-widgets" {
      amount = 1
      unit   = "1 GB/Month"
    }
    price "fs-hot-lrs-transactions" {
      amount = "cheap"
      unit   = "10K"
    }
    price "fs-hot-lrs-snapshot" {
      amount = 1
      unit   = "1 Furlong"
    }
  }
}
`)
	s, err := ParseSnapshot("test.hcl", src)
	require.NoError(t, err)
	assert.Equal(t, 1, s.Len())
	assert.Len(t, s.Rejected(), 4)
	assert.Equal(t, 2*time.Hour, s.TTL)
	assert.Equal(t, []string{"fs-hot-lrs-capacity"}, s.Keys("*"))
}

func TestParseSnapshotSyntaxError(t *testing.T) {
	_, err := ParseSnapshot("broken.hcl", []byte(`snapshot "x" {`))
	assert.Error(t, err)
}

func TestLoadSnapshotFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "eu.hcl")
	require.NoError(t, os.WriteFile(path, []byte(`
snapshot "eu" {
  currency = "EUR"
  region "northeurope" {
    price "nas-premium-capacity" {
      amount = 0.0004
      unit   = "1 GiB/Hour"
    }
  }
}
`), 0o644))

	s, err := LoadSnapshotFile(path)
	require.NoError(t, err)
	assert.Equal(t, types.Currency("EUR"), s.Currency)
	assert.Zero(t, s.TTL)

	key, err := NewMeterKey(types.FamilyNASVolume, "premium", "", types.RoleCapacity)
	require.NoError(t, err)
	_, ok := s.Lookup("North Europe", key)
	assert.True(t, ok)
	_, ok = s.Lookup("eastus", key)
	assert.False(t, ok)
}
