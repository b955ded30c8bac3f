// Package pricing - Unit of measure normalization
package pricing

import (
	"strings"

	"github.com/shopspring/decimal"

	"storage-cost/core/types"
	"storage-cost/internal/errors"
)

// HoursPerMonth converts monthly retail rates to hourly rates
const HoursPerMonth = 730

var (
	hoursPerMonth = decimal.NewFromInt(HoursPerMonth)
	hoursPerDay   = decimal.NewFromInt(24)
	tenThousand   = decimal.NewFromInt(10000)
)

// UnitOfMeasure is a parsed retail unit string such as "1 GB/Month"
type UnitOfMeasure struct {
	// Quantity is the number of base units the price covers
	Quantity decimal.Decimal

	// Unit is the base unit ("GiB", "MiB/s", "IOPS" or empty for a count)
	Unit string

	// Period is "Hour", "Day", "Month" or empty for one-time charges
	Period string
}

// ParseUnitOfMeasure parses retail unit strings: "1 GB/Month", "1 GiB/Hour",
// "10K", "1/Month", "1 Hour", "100 GB", "1 MiB/s/Hour", "1 TB/Month".
func ParseUnitOfMeasure(s string) (UnitOfMeasure, error) {
	raw := strings.TrimSpace(s)
	if raw == "" {
		return UnitOfMeasure{}, errors.Parsing("empty unit of measure", nil)
	}

	var u UnitOfMeasure
	parts := strings.Split(raw, "/")
	if len(parts) > 1 {
		if p, ok := parsePeriod(parts[len(parts)-1]); ok {
			u.Period = p
			parts = parts[:len(parts)-1]
		}
	}
	left := strings.Join(parts, "/")

	fields := strings.Fields(left)
	if len(fields) == 0 {
		return UnitOfMeasure{}, errors.Parsing("unit of measure "+s+" has no quantity", nil)
	}

	qty, err := parseQuantity(fields[0])
	if err != nil {
		return UnitOfMeasure{}, errors.Parsing("unit of measure "+s+" has an invalid quantity", err)
	}
	u.Quantity = qty

	unit := strings.Join(fields[1:], " ")
	if p, ok := parsePeriod(unit); ok && u.Period == "" {
		// "1 Hour": a count per period
		u.Period = p
		unit = ""
	}

	switch strings.ToLower(unit) {
	case "":
	case "gb", "gib":
		u.Unit = "GiB"
	case "tb", "tib":
		u.Unit = "GiB"
		u.Quantity = u.Quantity.Mul(decimal.NewFromInt(1024))
	case "mib/s", "mb/s", "mbps", "mibps":
		u.Unit = "MiB/s"
	case "iops":
		u.Unit = "IOPS"
	default:
		return UnitOfMeasure{}, errors.Parsing("unit of measure "+s+" has unknown unit "+unit, nil)
	}

	if u.Quantity.IsZero() {
		return UnitOfMeasure{}, errors.Parsing("unit of measure "+s+" has zero quantity", nil)
	}
	return u, nil
}

func parsePeriod(s string) (string, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "hour", "hours", "hr":
		return "Hour", true
	case "day", "days":
		return "Day", true
	case "month", "months", "mo":
		return "Month", true
	default:
		return "", false
	}
}

func parseQuantity(s string) (decimal.Decimal, error) {
	s = strings.ReplaceAll(s, ",", "")
	mult := decimal.NewFromInt(1)
	switch {
	case strings.HasSuffix(s, "K"), strings.HasSuffix(s, "k"):
		mult = decimal.NewFromInt(1000)
		s = s[:len(s)-1]
	case strings.HasSuffix(s, "M"):
		mult = decimal.NewFromInt(1000000)
		s = s[:len(s)-1]
	}
	q, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, err
	}
	return q.Mul(mult), nil
}

// NormalizePrice converts a retail price to the basis the formula engine
// uses for role:
//   - transactions and per-operation meters: per 10K operations
//   - hourly and daily rates: per unit-hour
//   - monthly rates: per unit-hour at HoursPerMonth, except a unitless
//     monthly capacity price, which is a fixed bracket price per month
//   - rates without a period: one-time per unit
func NormalizePrice(amount decimal.Decimal, unitOfMeasure string, role types.MeterRole) (decimal.Decimal, types.PriceBasis, error) {
	u, err := ParseUnitOfMeasure(unitOfMeasure)
	if err != nil {
		return decimal.Zero, "", err
	}
	perUnit := amount.Div(u.Quantity)

	if role.PerOperation() {
		if u.Unit != "" {
			return decimal.Zero, "", errors.Parsing("transaction price has unit "+u.Unit, nil)
		}
		return perUnit.Mul(tenThousand), types.BasisPer10K, nil
	}

	switch u.Period {
	case "Hour":
		return perUnit, types.BasisHourly, nil
	case "Day":
		return perUnit.Div(hoursPerDay), types.BasisHourly, nil
	case "Month":
		if u.Unit == "" && role == types.RoleCapacity {
			return perUnit, types.BasisMonthly, nil
		}
		return perUnit.Div(hoursPerMonth), types.BasisHourly, nil
	default:
		if u.Unit == "" {
			return decimal.Zero, "", errors.Parsing("one-time price "+unitOfMeasure+" has no unit", nil)
		}
		return perUnit, types.BasisOneTime, nil
	}
}
