package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"storage-cost/core/pricing"
	"storage-cost/core/types"
	"storage-cost/internal/config"
	"storage-cost/internal/errors"
	"storage-cost/internal/metrics"
)

var fetched = time.Date(2025, 5, 1, 10, 0, 0, 0, time.UTC)

func entry(t *testing.T, region, tier string, red types.Redundancy, role types.MeterRole, amount string) pricing.PriceCacheEntry {
	t.Helper()
	key, err := pricing.NewMeterKey(types.FamilyFileShare, tier, red, role)
	require.NoError(t, err)
	return pricing.PriceCacheEntry{
		Region: region,
		Key:    key,
		Price: types.UnitPrice{
			Amount:        decimal.RequireFromString(amount),
			Basis:         types.BasisHourly,
			Currency:      types.CurrencyUSD,
			UnitOfMeasure: "1 GB/Month",
			MeterName:     "Hot LRS Data Stored",
			Source:        types.SourceRetail,
			FetchedAt:     fetched,
			ExpiresAt:     fetched.Add(7 * 24 * time.Hour),
		},
		FetchedAt: fetched,
		ExpiresAt: fetched.Add(7 * 24 * time.Hour),
	}
}

// testStore runs the behaviour every backend must share
func testStore(t *testing.T, s Store) {
	ctx := context.Background()

	t.Run("prices round trip", func(t *testing.T) {
		hot := entry(t, "eastus", "hot", types.RedundancyLRS, types.RoleCapacity, "0.0000284931506849")
		cool := entry(t, "westeurope", "cool", types.RedundancyZRS, types.RoleCapacity, "0.000021")
		require.NoError(t, s.SavePrice(ctx, cool))
		require.NoError(t, s.SavePrice(ctx, hot))

		got, err := s.LoadPrices(ctx)
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, "eastus", got[0].Region)
		assert.Equal(t, hot.Key, got[0].Key)
		assert.True(t, hot.Price.Amount.Equal(got[0].Price.Amount))
		assert.Equal(t, types.BasisHourly, got[0].Price.Basis)
		assert.Equal(t, "Hot LRS Data Stored", got[0].Price.MeterName)
		assert.True(t, hot.ExpiresAt.Equal(got[0].ExpiresAt))
		assert.True(t, hot.FetchedAt.Equal(got[0].Price.FetchedAt))
	})

	t.Run("save replaces", func(t *testing.T) {
		e := entry(t, "eastus", "hot", types.RedundancyLRS, types.RoleCapacity, "0.00003")
		require.NoError(t, s.SavePrice(ctx, e))
		got, err := s.LoadPrices(ctx)
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, "0.00003", got[0].Price.Amount.String())
	})

	t.Run("invalid key is rejected", func(t *testing.T) {
		e := entry(t, "eastus", "hot", types.RedundancyLRS, types.RoleCapacity, "1")
		e.Key.Role = ""
		err := s.SavePrice(ctx, e)
		assert.True(t, errors.IsType(err, errors.TypeInvalidMeterKey))
	})

	t.Run("delete", func(t *testing.T) {
		e := entry(t, "westeurope", "cool", types.RedundancyZRS, types.RoleCapacity, "0.000021")
		require.NoError(t, s.DeletePrice(ctx, e.Region, e.Key))
		require.NoError(t, s.DeletePrice(ctx, e.Region, e.Key))
		got, err := s.LoadPrices(ctx)
		require.NoError(t, err)
		assert.Len(t, got, 1)
	})

	t.Run("history window", func(t *testing.T) {
		start := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)
		for i := 0; i < 10; i++ {
			require.NoError(t, s.AppendDaily(ctx, "vol-1", start.AddDate(0, 0, i).Add(13*time.Hour), decimal.NewFromInt(int64(i))))
		}
		require.NoError(t, s.AppendDaily(ctx, "vol-2", start, decimal.NewFromInt(99)))
		// same day replaces
		require.NoError(t, s.AppendDaily(ctx, "vol-1", start.AddDate(0, 0, 3), decimal.RequireFromString("3.50")))

		series, err := s.Series(ctx, "vol-1", start.AddDate(0, 0, 2), start.AddDate(0, 0, 5))
		require.NoError(t, err)
		require.Len(t, series, 3)
		assert.Equal(t, start.AddDate(0, 0, 2), series[0].Day.UTC())
		assert.Equal(t, "3.5", series[1].Cost.String())
		assert.Equal(t, "4", series[2].Cost.String())
		assert.Equal(t, "vol-1", series[0].ResourceID)

		none, err := s.Series(ctx, "vol-3", start, start.AddDate(0, 0, 30))
		require.NoError(t, err)
		assert.Empty(t, none)
	})

	t.Run("warms a resolver", func(t *testing.T) {
		r := pricing.NewResolver(nil,
			pricing.WithStore(s),
			pricing.WithLogger(zap.NewNop()),
			pricing.WithMetrics(metrics.NewResolver(prometheus.NewRegistry())),
			pricing.WithClock(types.ClockFunc(func() time.Time { return fetched.Add(time.Hour) })))
		n, err := r.Warm(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, n)

		price, err := r.GetPrice(ctx, "East US", types.RoleCapacity, pricing.TierContext{
			Family:     types.FamilyFileShare,
			Tier:       "hot",
			Redundancy: types.RedundancyLRS,
		})
		require.NoError(t, err)
		assert.Equal(t, "0.00003", price.Amount.String())
		assert.Equal(t, types.SourceCache, price.Source)
	})
}

func TestMemoryStore(t *testing.T) {
	testStore(t, NewMemoryStore())
}

func TestSQLiteStore(t *testing.T) {
	s, err := NewSQLiteStore(context.Background(), filepath.Join(t.TempDir(), "prices.db"), zap.NewNop())
	require.NoError(t, err)
	defer s.Close()
	testStore(t, s)
}

func TestPostgresStore(t *testing.T) {
	dsn := os.Getenv("STORAGECOST_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("STORAGECOST_TEST_POSTGRES_DSN not set")
	}
	ctx := context.Background()
	s, err := NewPostgresStore(ctx, dsn, zap.NewNop())
	require.NoError(t, err)
	defer s.Close()
	_, err = s.db.ExecContext(ctx, `TRUNCATE price_cache, cost_history`)
	require.NoError(t, err)
	testStore(t, s)
}

func TestSQLiteSkipsUnreadableRows(t *testing.T) {
	ctx := context.Background()
	s, err := NewSQLiteStore(ctx, filepath.Join(t.TempDir(), "prices.db"), zap.NewNop())
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.SavePrice(ctx, entry(t, "eastus", "hot", types.RedundancyLRS, types.RoleCapacity, "1")))
	_, err = s.db.ExecContext(ctx, `INSERT INTO price_cache VALUES ('eastus', 'fs-hot-lrs-', '1', 'hourly', 'USD', '', '', 'retail', ?, ?)`,
		formatTime(fetched), formatTime(fetched))
	require.NoError(t, err)

	got, err := s.LoadPrices(ctx)
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestSQLiteStorePersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "prices.db")

	s, err := NewSQLiteStore(ctx, path, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, s.AppendDaily(ctx, "vol-1", fetched, decimal.RequireFromString("1.69")))
	require.NoError(t, s.Close())

	s, err = NewSQLiteStore(ctx, path, zap.NewNop())
	require.NoError(t, err)
	defer s.Close()
	series, err := s.Series(ctx, "vol-1", fetched.AddDate(0, 0, -1), fetched.AddDate(0, 0, 1))
	require.NoError(t, err)
	require.Len(t, series, 1)
	assert.Equal(t, "1.69", series[0].Cost.String())
}

func TestOpenSelectsBackend(t *testing.T) {
	ctx := context.Background()

	s, err := Open(ctx, config.StoreConfig{Backend: "memory"}, zap.NewNop())
	require.NoError(t, err)
	assert.IsType(t, &MemoryStore{}, s)

	s, err = Open(ctx, config.StoreConfig{Backend: "sqlite", SQLitePath: filepath.Join(t.TempDir(), "x.db")}, zap.NewNop())
	require.NoError(t, err)
	assert.IsType(t, &SQLStore{}, s)
	require.NoError(t, s.Close())

	_, err = Open(ctx, config.StoreConfig{Backend: "sqlite"}, zap.NewNop())
	assert.True(t, errors.IsType(err, errors.TypeConfig))

	_, err = Open(ctx, config.StoreConfig{Backend: "redis"}, zap.NewNop())
	assert.True(t, errors.IsType(err, errors.TypeConfig))
}

func TestRebind(t *testing.T) {
	assert.Equal(t, "a = $1 AND b = $2", postgresDialect.rebind("a = ? AND b = ?"))
	assert.Equal(t, "a = ?", sqliteDialect.rebind("a = ?"))
}
