package cost

import (
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storage-cost/core/types"
)

func component(role types.MeterRole, cost string) types.CostComponent {
	return types.NewCostComponent(role, decimal.NewFromInt(1), dec(cost), "GiB", dec(cost))
}

func TestAggregatorTotals(t *testing.T) {
	a := NewAggregator(decimal.NewFromInt(720))
	a.Add(
		component(types.RoleCapacity, "40.61"),
		component(types.RoleCoolCapacity, "5.04"),
		component(types.RoleTiering, "0.10"),
		component(types.RoleRetrieval, "0.10"),
	)

	totals := a.Totals()
	assert.Equal(t, "45.85", totals.TotalForPeriod.StringFixed(2))
	// 45.85 / 30 days
	assert.Equal(t, "1.5283", totals.PerDay.StringFixed(4))

	require.Len(t, totals.Breakdown, 4)
	assert.Equal(t, types.RoleCapacity, totals.Breakdown[0].Type)
	assert.Equal(t, "88.57", totals.Breakdown[0].Percent.StringFixed(2))
	assert.Equal(t, "10.99", totals.Breakdown[1].Percent.StringFixed(2))
}

func TestAggregatorPerDayFollowsWindow(t *testing.T) {
	a := NewAggregator(decimal.NewFromInt(168))
	a.Add(component(types.RoleCapacity, "14.00"))
	assert.Equal(t, "2.0000", a.Totals().PerDay.StringFixed(4))
}

func TestAggregatorZeroTotal(t *testing.T) {
	a := NewAggregator(decimal.Zero)
	totals := a.Totals()
	assert.True(t, totals.TotalForPeriod.IsZero())
	assert.True(t, totals.PerDay.IsZero())
	assert.Empty(t, totals.Breakdown)
	assert.True(t, totals.PeriodHours.Equal(decimal.NewFromInt(720)))

	a.Add(component(types.RoleCapacity, "0"), component(types.RoleEgress, "0"))
	totals = a.Totals()
	require.Len(t, totals.Breakdown, 2)
	for _, b := range totals.Breakdown {
		assert.True(t, b.Percent.IsZero())
	}
}

func TestAggregatorGroupsByType(t *testing.T) {
	a := NewAggregator(decimal.NewFromInt(720))
	a.Add(component(types.RoleSnapshot, "1.00"))
	a.Add(component(types.RoleCapacity, "3.00"))
	a.Add(component(types.RoleSnapshot, "1.00"))

	totals := a.Totals()
	require.Len(t, totals.Breakdown, 2)
	assert.Equal(t, types.RoleCapacity, totals.Breakdown[0].Type)
	assert.Equal(t, "60.00", totals.Breakdown[0].Percent.StringFixed(2))
	assert.Equal(t, "2.00", totals.Breakdown[1].Cost.StringFixed(2))
	assert.Len(t, a.Components(), 3)
}

func TestAggregatorConcurrentAdd(t *testing.T) {
	a := NewAggregator(decimal.NewFromInt(720))
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			a.Add(component(types.RoleCapacity, "0.01"))
		}()
	}
	wg.Wait()
	assert.Equal(t, "1.00", a.Totals().TotalForPeriod.StringFixed(2))
}
