package pricing

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"storage-cost/core/pricing"
	"storage-cost/core/types"
	"storage-cost/internal/metrics"
)

const anfPage1 = `{
  "BillingCurrency": "USD",
  "Items": [
    {
      "currencyCode": "USD",
      "tierMinimumUnits": 0.0,
      "retailPrice": 0.000202,
      "unitPrice": 0.000202,
      "armRegionName": "eastus",
      "location": "US East",
      "effectiveStartDate": "2023-03-01T00:00:00Z",
      "meterName": "Standard Capacity",
      "productName": "Azure NetApp Files",
      "skuName": "Standard",
      "serviceName": "Azure NetApp Files",
      "unitOfMeasure": "1 GiB/Hour",
      "type": "Consumption"
    }
  ],
  "NextPageLink": "%s",
  "Count": 1
}`

const anfPage2 = `{
  "BillingCurrency": "USD",
  "Items": [
    {
      "currencyCode": "USD",
      "tierMinimumUnits": 0.0,
      "retailPrice": 0.000081,
      "unitPrice": 0.000081,
      "armRegionName": "eastus",
      "effectiveStartDate": "2023-03-01T00:00:00Z",
      "meterName": "Standard Cool Access Capacity",
      "productName": "Azure NetApp Files",
      "skuName": "Standard",
      "serviceName": "Azure NetApp Files",
      "unitOfMeasure": "1 GiB/Hour",
      "type": "Consumption"
    }
  ],
  "NextPageLink": null,
  "Count": 1
}`

func anfServer(t *testing.T, requests *int32) *httptest.Server {
	t.Helper()
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(requests, 1)
		w.Header().Set("Content-Type", "application/json")
		if r.URL.Query().Get("page") == "2" {
			_, _ = w.Write([]byte(anfPage2))
			return
		}
		assert.Equal(t, APIVersion, r.URL.Query().Get("api-version"))
		assert.Equal(t, "'USD'", r.URL.Query().Get("currencyCode"))
		assert.Equal(t,
			"serviceName eq 'Azure NetApp Files' and armRegionName eq 'eastus' and productName eq 'Azure NetApp Files' and skuName eq 'Standard'",
			r.URL.Query().Get("$filter"))
		_, _ = w.Write([]byte(fmt.Sprintf(anfPage1, srv.URL+"/?page=2")))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func anfQuery() pricing.Query {
	return pricing.Query{
		Region:   "eastus",
		Currency: types.CurrencyUSD,
		Product: types.ProductRef{
			ServiceName: "Azure NetApp Files",
			ProductName: "Azure NetApp Files",
			SkuName:     "Standard",
		},
	}
}

func TestFetchFollowsPages(t *testing.T) {
	var requests int32
	srv := anfServer(t, &requests)
	c := NewRetailClient(Config{Endpoint: srv.URL}, srv.Client(), zap.NewNop())

	rows, err := c.Fetch(context.Background(), anfQuery())
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, int32(2), atomic.LoadInt32(&requests))

	assert.Equal(t, "Standard Capacity", rows[0].MeterName)
	assert.Equal(t, "0.000202", rows[0].UnitPrice.String())
	assert.Equal(t, types.CurrencyUSD, rows[0].Currency)
	assert.Equal(t, "1 GiB/Hour", rows[0].UnitOfMeasure)
	assert.Equal(t, "Consumption", rows[0].Type)
	assert.Equal(t, time.Date(2023, 3, 1, 0, 0, 0, 0, time.UTC), rows[0].EffectiveDate.UTC())
	assert.Equal(t, "Standard Cool Access Capacity", rows[1].MeterName)
}

func TestFetchStopsAtMaxPages(t *testing.T) {
	var requests int32
	srv := anfServer(t, &requests)
	c := NewRetailClient(Config{Endpoint: srv.URL, MaxPages: 1}, srv.Client(), zap.NewNop())

	rows, err := c.Fetch(context.Background(), anfQuery())
	require.NoError(t, err)
	assert.Len(t, rows, 1)
	assert.Equal(t, int32(1), atomic.LoadInt32(&requests))
}

func TestFetchClassifiesStatusCodes(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		permanent bool
	}{
		{"bad request", http.StatusBadRequest, true},
		{"not found", http.StatusNotFound, true},
		{"throttled", http.StatusTooManyRequests, false},
		{"unavailable", http.StatusServiceUnavailable, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "nope", tt.status)
			}))
			defer srv.Close()

			c := NewRetailClient(Config{Endpoint: srv.URL}, srv.Client(), zap.NewNop())
			_, err := c.Fetch(context.Background(), anfQuery())
			require.Error(t, err)

			var perm *backoff.PermanentError
			assert.Equal(t, tt.permanent, stderrors.As(err, &perm))
			assert.Contains(t, err.Error(), "nope")
		})
	}
}

func TestFetchRejectsMalformedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"Items": [`))
	}))
	defer srv.Close()

	c := NewRetailClient(Config{Endpoint: srv.URL}, srv.Client(), zap.NewNop())
	_, err := c.Fetch(context.Background(), anfQuery())
	var perm *backoff.PermanentError
	assert.True(t, stderrors.As(err, &perm))
}

func TestEqEscapesQuotes(t *testing.T) {
	assert.Equal(t, "productName eq 'O''Brien'", eq("productName", "O'Brien"))
}

func TestResolverOverRetailClient(t *testing.T) {
	var requests int32
	srv := anfServer(t, &requests)
	c := NewRetailClient(Config{Endpoint: srv.URL}, srv.Client(), zap.NewNop())

	r := pricing.NewResolver(c,
		pricing.WithLogger(zap.NewNop()),
		pricing.WithMetrics(metrics.NewResolver(prometheus.NewRegistry())))

	tc := pricing.TierContext{
		Family:  types.FamilyNASVolume,
		Tier:    "standard",
		Product: anfQuery().Product,
	}
	price, err := r.GetPrice(context.Background(), "eastus", types.RoleCoolCapacity, tc)
	require.NoError(t, err)
	assert.Equal(t, "Standard Cool Access Capacity", price.MeterName)
	assert.Equal(t, "0.000081", price.Amount.String())
	assert.Equal(t, types.BasisHourly, price.Basis)
	assert.Equal(t, types.SourceRetail, price.Source)
}
