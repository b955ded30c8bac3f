// Package pricing provides the retail price source adapter.
// This adapter hides the Azure Retail Prices API behind pricing.Fetcher.
package pricing

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/goccy/go-json"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"storage-cost/core/pricing"
	"storage-cost/core/types"
	"storage-cost/internal/errors"
	"storage-cost/internal/logging"
)

// DefaultEndpoint is the public retail prices API
const DefaultEndpoint = "https://prices.azure.com/api/retail/prices"

// APIVersion is the retail prices API version requested
const APIVersion = "2023-01-01-preview"

// Config configures the retail client
type Config struct {
	// Endpoint is the API base URL
	Endpoint string

	// Timeout bounds a single page request
	Timeout time.Duration

	// MaxPages bounds how many pages one query follows
	MaxPages int

	// UserAgent is sent with every request
	UserAgent string
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		Endpoint:  DefaultEndpoint,
		Timeout:   10 * time.Second,
		MaxPages:  20,
		UserAgent: "storage-cost",
	}
}

// RetailClient queries the retail prices API. It is safe for concurrent use.
type RetailClient struct {
	config     Config
	httpClient *http.Client
	logger     *zap.Logger
}

// NewRetailClient creates a client. A nil httpClient gets one with
// cfg.Timeout; a nil logger uses the global one.
func NewRetailClient(cfg Config, httpClient *http.Client, logger *zap.Logger) *RetailClient {
	d := DefaultConfig()
	if cfg.Endpoint == "" {
		cfg.Endpoint = d.Endpoint
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = d.Timeout
	}
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = d.MaxPages
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = d.UserAgent
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	return &RetailClient{
		config:     cfg,
		httpClient: httpClient,
		logger:     logging.OrNamed(logger, "retail-prices"),
	}
}

type retailPage struct {
	BillingCurrency string       `json:"BillingCurrency"`
	Items           []retailItem `json:"Items"`
	NextPageLink    string       `json:"NextPageLink"`
	Count           int          `json:"Count"`
}

type retailItem struct {
	CurrencyCode       string          `json:"currencyCode"`
	TierMinimumUnits   decimal.Decimal `json:"tierMinimumUnits"`
	RetailPrice        decimal.Decimal `json:"retailPrice"`
	UnitPrice          decimal.Decimal `json:"unitPrice"`
	ArmRegionName      string          `json:"armRegionName"`
	Location           string          `json:"location"`
	EffectiveStartDate time.Time       `json:"effectiveStartDate"`
	MeterID            string          `json:"meterId"`
	MeterName          string          `json:"meterName"`
	ProductName        string          `json:"productName"`
	SkuName            string          `json:"skuName"`
	ServiceName        string          `json:"serviceName"`
	ServiceFamily      string          `json:"serviceFamily"`
	UnitOfMeasure      string          `json:"unitOfMeasure"`
	Type               string          `json:"type"`
}

// Fetch returns every row matching q, following NextPageLink. Client
// errors other than throttling are wrapped in backoff.Permanent.
func (c *RetailClient) Fetch(ctx context.Context, q pricing.Query) ([]pricing.PriceRow, error) {
	next := c.queryURL(q)
	var rows []pricing.PriceRow
	for page := 0; next != ""; page++ {
		if page >= c.config.MaxPages {
			c.logger.Warn("retail price query truncated",
				zap.String("region", q.Region),
				zap.String("product", q.Product.ProductName),
				zap.Int("pages", page),
				zap.Int("rows", len(rows)))
			break
		}
		p, err := c.getPage(ctx, next)
		if err != nil {
			return nil, err
		}
		for _, it := range p.Items {
			rows = append(rows, it.row())
		}
		next = p.NextPageLink
	}

	c.logger.Debug("retail price query",
		zap.String("region", q.Region),
		zap.String("product", q.Product.ProductName),
		zap.String("sku", q.Product.SkuName),
		zap.Int("rows", len(rows)))
	return rows, nil
}

func (it retailItem) row() pricing.PriceRow {
	return pricing.PriceRow{
		MeterName:        it.MeterName,
		ProductName:      it.ProductName,
		SkuName:          it.SkuName,
		UnitPrice:        it.RetailPrice,
		Currency:         types.Currency(it.CurrencyCode),
		UnitOfMeasure:    it.UnitOfMeasure,
		EffectiveDate:    it.EffectiveStartDate,
		Type:             it.Type,
		TierMinimumUnits: it.TierMinimumUnits,
	}
}

// queryURL builds the OData filter for q
func (c *RetailClient) queryURL(q pricing.Query) string {
	clauses := []string{}
	if q.Product.ServiceName != "" {
		clauses = append(clauses, eq("serviceName", q.Product.ServiceName))
	}
	if q.Region != "" {
		clauses = append(clauses, eq("armRegionName", q.Region))
	}
	if q.Product.ProductName != "" {
		clauses = append(clauses, eq("productName", q.Product.ProductName))
	}
	if q.Product.SkuName != "" {
		clauses = append(clauses, eq("skuName", q.Product.SkuName))
	}

	v := url.Values{}
	v.Set("api-version", APIVersion)
	if q.Currency != "" {
		v.Set("currencyCode", "'"+string(q.Currency)+"'")
	}
	if len(clauses) > 0 {
		v.Set("$filter", strings.Join(clauses, " and "))
	}
	return c.config.Endpoint + "?" + v.Encode()
}

// eq renders an OData equality clause, doubling embedded quotes
func eq(field, value string) string {
	return fmt.Sprintf("%s eq '%s'", field, strings.ReplaceAll(value, "'", "''"))
}

func (c *RetailClient) getPage(ctx context.Context, pageURL string) (*retailPage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, backoff.Permanent(errors.Wrap(errors.TypeNetwork, "building retail price request", err))
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.config.UserAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errors.Network("retail price request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		err := errors.Newf(errors.TypeNetwork, "retail prices API returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body))).
			WithContext("status", resp.StatusCode)
		if retryable(resp.StatusCode) {
			return nil, err
		}
		return nil, backoff.Permanent(err)
	}

	var page retailPage
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		return nil, backoff.Permanent(errors.Parsing("decoding retail price page", err))
	}
	return &page, nil
}

func retryable(status int) bool {
	return status == http.StatusTooManyRequests || status == http.StatusRequestTimeout || status >= 500
}
