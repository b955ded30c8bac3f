// Package pricing - Fallback regional price snapshots
package pricing

import (
	_ "embed"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/shopspring/decimal"
	"github.com/zclconf/go-cty/cty"

	"storage-cost/core/types"
	"storage-cost/internal/errors"
)

// AnyRegion is the region label whose prices apply where no regional block matches
const AnyRegion = "*"

//go:embed snapshots/default.hcl
var defaultSnapshotHCL []byte

// Snapshot is an immutable table of coarse default prices served when the
// retail source fails and no cached entry exists.
type Snapshot struct {
	// ID uniquely identifies this load of the snapshot
	ID string

	// Name is the snapshot label
	Name string

	// Currency is the price currency
	Currency types.Currency

	// TTL is how long a served snapshot price stays fresh
	TTL time.Duration

	// Effective is the date the prices were captured
	Effective time.Time

	prices   map[string]map[string]types.UnitPrice
	rejected []string
}

type snapshotFile struct {
	Snapshot snapshotBlock `hcl:"snapshot,block"`
}

type snapshotBlock struct {
	Name      string        `hcl:"name,label"`
	Currency  string        `hcl:"currency,optional"`
	TTL       string        `hcl:"ttl,optional"`
	Effective string        `hcl:"effective,optional"`
	Regions   []regionBlock `hcl:"region,block"`
}

type regionBlock struct {
	Name   string       `hcl:"name,label"`
	Prices []priceBlock `hcl:"price,block"`
}

type priceBlock struct {
	Key    string    `hcl:"key,label"`
	Amount cty.Value `hcl:"amount"`
	Unit   string    `hcl:"unit"`
}

// DefaultSnapshot parses the embedded snapshot
func DefaultSnapshot() (*Snapshot, error) {
	return ParseSnapshot("default.hcl", defaultSnapshotHCL)
}

// LoadSnapshotFile parses a snapshot file from disk
func LoadSnapshotFile(path string) (*Snapshot, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(errors.TypeConfig, err, "reading snapshot %s", path)
	}
	return ParseSnapshot(path, src)
}

// ParseSnapshot decodes an HCL snapshot. Price blocks with an invalid
// meter key, a non-numeric amount or an unknown unit are not loaded and are
// listed by Rejected.
func ParseSnapshot(filename string, src []byte) (*Snapshot, error) {
	parser := hclparse.NewParser()
	file, diags := parser.ParseHCL(src, filename)
	if diags.HasErrors() {
		return nil, errors.Parsing("parsing snapshot "+filename, diags)
	}

	var sf snapshotFile
	if diags := gohcl.DecodeBody(file.Body, nil, &sf); diags.HasErrors() {
		return nil, errors.Parsing("decoding snapshot "+filename, diags)
	}

	s := &Snapshot{
		ID:       uuid.NewString(),
		Name:     sf.Snapshot.Name,
		Currency: types.CurrencyUSD,
		prices:   make(map[string]map[string]types.UnitPrice),
	}
	if sf.Snapshot.Currency != "" {
		s.Currency = types.Currency(sf.Snapshot.Currency)
	}
	if sf.Snapshot.TTL != "" {
		ttl, err := time.ParseDuration(sf.Snapshot.TTL)
		if err != nil {
			return nil, errors.Parsing("snapshot ttl "+sf.Snapshot.TTL, err)
		}
		s.TTL = ttl
	}
	if sf.Snapshot.Effective != "" {
		eff, err := time.Parse("2006-01-02", sf.Snapshot.Effective)
		if err != nil {
			return nil, errors.Parsing("snapshot effective date "+sf.Snapshot.Effective, err)
		}
		s.Effective = eff
	}

	for _, rb := range sf.Snapshot.Regions {
		region := NormalizeRegion(rb.Name)
		if rb.Name == AnyRegion {
			region = AnyRegion
		}
		for _, pb := range rb.Prices {
			price, err := s.decodePrice(pb)
			if err != nil {
				s.rejected = append(s.rejected, fmt.Sprintf("%s/%s: %v", rb.Name, pb.Key, err))
				continue
			}
			if s.prices[region] == nil {
				s.prices[region] = make(map[string]types.UnitPrice)
			}
			s.prices[region][pb.Key] = price
		}
	}
	return s, nil
}

func (s *Snapshot) decodePrice(pb priceBlock) (types.UnitPrice, error) {
	key, err := ParseMeterKey(pb.Key)
	if err != nil {
		return types.UnitPrice{}, err
	}
	// keys are stored in canonical form only
	if key.String() != pb.Key {
		return types.UnitPrice{}, errors.InvalidMeterKey("meter key %q is not canonical (want %q)", pb.Key, key.String())
	}
	if pb.Amount.IsNull() || !pb.Amount.IsKnown() || pb.Amount.Type() != cty.Number {
		return types.UnitPrice{}, errors.Parsing("amount must be a number", nil)
	}
	amount, err := decimal.NewFromString(pb.Amount.AsBigFloat().Text('f', -1))
	if err != nil {
		return types.UnitPrice{}, errors.Parsing("amount", err)
	}
	if amount.IsNegative() {
		return types.UnitPrice{}, errors.Parsing("amount must not be negative", nil)
	}
	normalized, basis, err := NormalizePrice(amount, pb.Unit, key.Role)
	if err != nil {
		return types.UnitPrice{}, err
	}
	return types.UnitPrice{
		Amount:        normalized,
		Basis:         basis,
		Currency:      s.Currency,
		UnitOfMeasure: pb.Unit,
		MeterName:     "snapshot:" + s.Name,
		Source:        types.SourceFallback,
	}, nil
}

// Lookup returns the snapshot price for key in region, falling back to the
// "*" region block
func (s *Snapshot) Lookup(region string, key MeterKey) (types.UnitPrice, bool) {
	k := key.String()
	if p, ok := s.prices[NormalizeRegion(region)][k]; ok {
		return p, true
	}
	p, ok := s.prices[AnyRegion][k]
	return p, ok
}

// Len returns the number of loaded prices across regions
func (s *Snapshot) Len() int {
	n := 0
	for _, m := range s.prices {
		n += len(m)
	}
	return n
}

// Keys returns the loaded meter keys of a region block, sorted
func (s *Snapshot) Keys(region string) []string {
	if region != AnyRegion {
		region = NormalizeRegion(region)
	}
	keys := make([]string, 0, len(s.prices[region]))
	for k := range s.prices[region] {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Rejected lists the price blocks that were not loaded, with reasons
func (s *Snapshot) Rejected() []string {
	return append([]string(nil), s.rejected...)
}
