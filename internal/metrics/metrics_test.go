package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewResolverRegisters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewResolver(reg)

	m.CacheHits.Inc()
	m.Fetches.WithLabelValues("ok").Add(2)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.CacheHits))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.Fetches.WithLabelValues("ok")))

	n, err := testutil.GatherAndCount(reg, "storage_cost_pricing_cache_hits_total")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestNilRegistererIsAllowed(t *testing.T) {
	m := NewResolver(nil)
	m.RejectedWrites.Inc()
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RejectedWrites))

	e := NewEngine(nil)
	e.Estimates.WithLabelValues("ok").Inc()
	assert.Equal(t, 1.0, testutil.ToFloat64(e.Estimates.WithLabelValues("ok")))
}
