// Package storage - SQL backends
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"storage-cost/core/forecast"
	"storage-cost/core/pricing"
	"storage-cost/core/types"
	"storage-cost/internal/errors"
	"storage-cost/internal/logging"
)

// schema is shared by both dialects. Times are RFC 3339 text and amounts
// are decimal text so values round-trip exactly.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS price_cache (
		region          TEXT NOT NULL,
		meter_key       TEXT NOT NULL,
		amount          TEXT NOT NULL,
		basis           TEXT NOT NULL,
		currency        TEXT NOT NULL,
		unit_of_measure TEXT NOT NULL,
		meter_name      TEXT NOT NULL,
		source          TEXT NOT NULL,
		fetched_at      TEXT NOT NULL,
		expires_at      TEXT NOT NULL,
		PRIMARY KEY (region, meter_key)
	)`,
	`CREATE TABLE IF NOT EXISTS cost_history (
		resource_id TEXT NOT NULL,
		day         TEXT NOT NULL,
		cost        TEXT NOT NULL,
		recorded_at TEXT NOT NULL,
		PRIMARY KEY (resource_id, day)
	)`,
}

// dialect captures the differences between the SQL backends
type dialect struct {
	name       string
	driver     string
	positional bool
}

var (
	sqliteDialect   = dialect{name: "sqlite", driver: "sqlite"}
	postgresDialect = dialect{name: "postgres", driver: "postgres", positional: true}
)

// rebind rewrites ? placeholders to $n for positional dialects
func (d dialect) rebind(query string) string {
	if !d.positional {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			fmt.Fprintf(&b, "$%d", n)
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// SQLStore persists prices and history through database/sql
type SQLStore struct {
	db      *sql.DB
	dialect dialect
	logger  *zap.Logger
	now     func() time.Time
}

func openSQL(ctx context.Context, d dialect, dsn string, logger *zap.Logger) (*SQLStore, error) {
	db, err := sql.Open(d.driver, dsn)
	if err != nil {
		return nil, errors.Wrapf(errors.TypeConfig, err, "open %s store", d.name)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, errors.Wrapf(errors.TypeNetwork, err, "ping %s store", d.name)
	}

	s := &SQLStore{
		db:      db,
		dialect: d,
		logger:  logging.OrNamed(logger, "store"),
		now:     time.Now,
	}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLStore) migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return errors.Wrapf(errors.TypeInternal, err, "migrate %s store", s.dialect.name)
		}
	}
	return nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// LoadPrices returns every persisted entry ordered by region and key.
// Rows that no longer parse are skipped with a warning.
func (s *SQLStore) LoadPrices(ctx context.Context) ([]pricing.PriceCacheEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT region, meter_key, amount, basis, currency, unit_of_measure,
			meter_name, source, fetched_at, expires_at
		FROM price_cache
		ORDER BY region, meter_key`)
	if err != nil {
		return nil, errors.Wrap(errors.TypeInternal, "query price cache", err)
	}
	defer rows.Close()

	var out []pricing.PriceCacheEntry
	for rows.Next() {
		var region, key, amount, basis, currency, uom, meter, source, fetched, expires string
		if err := rows.Scan(&region, &key, &amount, &basis, &currency, &uom, &meter, &source, &fetched, &expires); err != nil {
			return nil, errors.Wrap(errors.TypeInternal, "scan price cache row", err)
		}
		e, err := decodePriceRow(region, key, amount, basis, currency, uom, meter, source, fetched, expires)
		if err != nil {
			s.logger.Warn("skipping unreadable persisted price",
				zap.String("region", region),
				zap.String("meter_key", key),
				zap.Error(err))
			continue
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(errors.TypeInternal, "read price cache", err)
	}
	return out, nil
}

func decodePriceRow(region, key, amount, basis, currency, uom, meter, source, fetched, expires string) (pricing.PriceCacheEntry, error) {
	k, err := pricing.ParseMeterKey(key)
	if err != nil {
		return pricing.PriceCacheEntry{}, err
	}
	a, err := decimal.NewFromString(amount)
	if err != nil {
		return pricing.PriceCacheEntry{}, errors.Parsing("amount "+amount, err)
	}
	fetchedAt, err := time.Parse(time.RFC3339Nano, fetched)
	if err != nil {
		return pricing.PriceCacheEntry{}, errors.Parsing("fetched_at "+fetched, err)
	}
	expiresAt, err := time.Parse(time.RFC3339Nano, expires)
	if err != nil {
		return pricing.PriceCacheEntry{}, errors.Parsing("expires_at "+expires, err)
	}
	return pricing.PriceCacheEntry{
		Region: region,
		Key:    k,
		Price: types.UnitPrice{
			Amount:        a,
			Basis:         types.PriceBasis(basis),
			Currency:      types.Currency(currency),
			UnitOfMeasure: uom,
			MeterName:     meter,
			Source:        types.PriceSource(source),
			FetchedAt:     fetchedAt,
			ExpiresAt:     expiresAt,
		},
		FetchedAt: fetchedAt,
		ExpiresAt: expiresAt,
	}, nil
}

// SavePrice upserts an entry. Invalid keys are rejected before any write.
func (s *SQLStore) SavePrice(ctx context.Context, e pricing.PriceCacheEntry) error {
	if err := e.Validate(); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, s.dialect.rebind(`
		INSERT INTO price_cache (region, meter_key, amount, basis, currency, unit_of_measure,
			meter_name, source, fetched_at, expires_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (region, meter_key) DO UPDATE SET
			amount = excluded.amount,
			basis = excluded.basis,
			currency = excluded.currency,
			unit_of_measure = excluded.unit_of_measure,
			meter_name = excluded.meter_name,
			source = excluded.source,
			fetched_at = excluded.fetched_at,
			expires_at = excluded.expires_at`),
		e.Region, e.Key.String(), e.Price.Amount.String(), string(e.Price.Basis), string(e.Price.Currency),
		e.Price.UnitOfMeasure, e.Price.MeterName, string(e.Price.Source),
		formatTime(e.FetchedAt), formatTime(e.ExpiresAt),
	)
	if err != nil {
		return errors.Wrapf(errors.TypeInternal, err, "save price %s/%s", e.Region, e.Key)
	}
	return nil
}

// DeletePrice removes an entry; missing entries are not an error
func (s *SQLStore) DeletePrice(ctx context.Context, region string, key pricing.MeterKey) error {
	_, err := s.db.ExecContext(ctx, s.dialect.rebind(`DELETE FROM price_cache WHERE region = ? AND meter_key = ?`),
		region, key.String())
	if err != nil {
		return errors.Wrapf(errors.TypeInternal, err, "delete price %s/%s", region, key)
	}
	return nil
}

// AppendDaily records the total for day, replacing an existing value
func (s *SQLStore) AppendDaily(ctx context.Context, resourceID string, day time.Time, cost decimal.Decimal) error {
	if resourceID == "" {
		return errors.New(errors.TypeInternal, "resource id is required")
	}
	_, err := s.db.ExecContext(ctx, s.dialect.rebind(`
		INSERT INTO cost_history (resource_id, day, cost, recorded_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (resource_id, day) DO UPDATE SET
			cost = excluded.cost,
			recorded_at = excluded.recorded_at`),
		resourceID, forecast.Day(day).Format(time.DateOnly), cost.String(), formatTime(s.now()),
	)
	if err != nil {
		return errors.Wrapf(errors.TypeInternal, err, "record cost for %s", resourceID)
	}
	return nil
}

// Series returns the samples in [from, to), oldest first
func (s *SQLStore) Series(ctx context.Context, resourceID string, from, to time.Time) ([]forecast.Sample, error) {
	rows, err := s.db.QueryContext(ctx, s.dialect.rebind(`
		SELECT day, cost FROM cost_history
		WHERE resource_id = ? AND day >= ? AND day < ?
		ORDER BY day`),
		resourceID, forecast.Day(from).Format(time.DateOnly), forecast.Day(to).Format(time.DateOnly),
	)
	if err != nil {
		return nil, errors.Wrapf(errors.TypeInternal, err, "query history for %s", resourceID)
	}
	defer rows.Close()

	var out []forecast.Sample
	for rows.Next() {
		var day, c string
		if err := rows.Scan(&day, &c); err != nil {
			return nil, errors.Wrap(errors.TypeInternal, "scan history row", err)
		}
		d, err := time.Parse(time.DateOnly, day)
		if err != nil {
			return nil, errors.Parsing("history day "+day, err)
		}
		amount, err := decimal.NewFromString(c)
		if err != nil {
			return nil, errors.Parsing("history cost "+c, err)
		}
		out = append(out, forecast.Sample{ResourceID: resourceID, Day: d, Cost: amount})
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(errors.TypeInternal, "read history", err)
	}
	return out, nil
}

// Close closes the database
func (s *SQLStore) Close() error {
	return s.db.Close()
}
