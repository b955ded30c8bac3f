// Package pricing resolves unit prices for storage meters.
// Prices are cached per (region, meter key) and refreshed from a retail
// price source with bounded staleness.
package pricing

import (
	"strings"

	"storage-cost/core/types"
	"storage-cost/internal/errors"
)

// MeterKey identifies a meter within a region. Its string form is
// family-prefix, tier, optional redundancy and role joined by "-", all
// lowercased. Components never contain "-".
type MeterKey struct {
	// Family is the storage family
	Family types.Family

	// Tier is the normalized price tier
	Tier string

	// Redundancy is empty for families without a redundancy axis
	Redundancy types.Redundancy

	// Role is the billing role of the meter
	Role types.MeterRole
}

// NewMeterKey builds a validated key. The role is checked before anything
// else so an unclassified meter never yields a key.
func NewMeterKey(family types.Family, tier string, redundancy types.Redundancy, role types.MeterRole) (MeterKey, error) {
	if role == "" {
		return MeterKey{}, errors.InvalidMeterKey("meter role is empty for %s/%s", family, tier)
	}
	if !role.IsValid() {
		return MeterKey{}, errors.InvalidMeterKey("unknown meter role %q", role)
	}

	red, ok := types.ParseRedundancy(string(redundancy))
	if !ok {
		return MeterKey{}, errors.InvalidMeterKey("unknown redundancy %q", redundancy)
	}

	k := MeterKey{
		Family:     family,
		Tier:       normalizeComponent(tier),
		Redundancy: red,
		Role:       role,
	}
	if err := k.Validate(); err != nil {
		return MeterKey{}, err
	}
	return k, nil
}

// Validate checks every component of the key
func (k MeterKey) Validate() error {
	switch {
	case k.Role == "":
		return errors.InvalidMeterKey("meter key %q has an empty role", k.String())
	case !k.Role.IsValid():
		return errors.InvalidMeterKey("meter key %q has unknown role %q", k.String(), k.Role)
	case !k.Family.IsValid():
		return errors.InvalidMeterKey("meter key %q has unknown family %q", k.String(), k.Family)
	case k.Tier == "" || k.Tier != normalizeComponent(k.Tier):
		return errors.InvalidMeterKey("meter key %q has invalid tier %q", k.String(), k.Tier)
	}
	if _, ok := types.ParseRedundancy(string(k.Redundancy)); !ok {
		return errors.InvalidMeterKey("meter key %q has unknown redundancy %q", k.String(), k.Redundancy)
	}
	return nil
}

// String renders the key. Invalid keys still render so they can be logged.
func (k MeterKey) String() string {
	parts := []string{k.Family.Prefix(), k.Tier}
	if k.Redundancy != types.RedundancyNone {
		parts = append(parts, strings.ToLower(string(k.Redundancy)))
	}
	parts = append(parts, strings.ToLower(string(k.Role)))
	return strings.Join(parts, "-")
}

// ParseMeterKey decomposes a key string. ParseMeterKey(k.String()) == k for
// every valid k.
func ParseMeterKey(s string) (MeterKey, error) {
	parts := strings.Split(s, "-")
	if len(parts) != 3 && len(parts) != 4 {
		return MeterKey{}, errors.InvalidMeterKey("meter key %q must have 3 or 4 components", s)
	}

	family, ok := types.FamilyFromPrefix(parts[0])
	if !ok {
		return MeterKey{}, errors.InvalidMeterKey("meter key %q has unknown family prefix", s)
	}

	role, ok := types.ParseMeterRole(parts[len(parts)-1])
	if !ok {
		return MeterKey{}, errors.InvalidMeterKey("meter key %q has unclassified role %q", s, parts[len(parts)-1])
	}

	var red types.Redundancy
	if len(parts) == 4 {
		red, ok = types.ParseRedundancy(parts[2])
		if !ok || red == types.RedundancyNone {
			return MeterKey{}, errors.InvalidMeterKey("meter key %q has unknown redundancy", s)
		}
	}

	k := MeterKey{Family: family, Tier: parts[1], Redundancy: red, Role: role}
	if err := k.Validate(); err != nil {
		return MeterKey{}, err
	}
	return k, nil
}

// normalizeComponent lowercases s and replaces runs of other characters
// with a single underscore
func normalizeComponent(s string) string {
	var b strings.Builder
	pending := false
	for _, r := range strings.ToLower(strings.TrimSpace(s)) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			if pending && b.Len() > 0 {
				b.WriteByte('_')
			}
			pending = false
			b.WriteRune(r)
			continue
		}
		pending = true
	}
	return b.String()
}

// NormalizeRegion lowercases a region and drops spaces ("East US" -> "eastus")
func NormalizeRegion(region string) string {
	return strings.ToLower(strings.ReplaceAll(strings.TrimSpace(region), " ", ""))
}

// ClassifyMeter derives the billing role from a retail meter name. Meters
// that match no rule are unclassified and must be skipped, never keyed.
func ClassifyMeter(meterName string) (types.MeterRole, bool) {
	n := strings.ToLower(meterName)
	has := func(subs ...string) bool {
		for _, s := range subs {
			if strings.Contains(n, s) {
				return true
			}
		}
		return false
	}

	switch {
	case n == "":
		return "", false
	case has("snapshot"):
		return types.RoleSnapshot, true
	case has("backup"):
		return types.RoleBackup, true
	case has("early delete"):
		return "", false
	case has("retrieval", "cool tier data transfer out", "cool tier read"):
		return types.RoleRetrieval, true
	case has("tiering", "cool tier data transfer in", "cool tier write"):
		return types.RoleTiering, true
	case has("egress", "data transfer out", "geo-replication data transfer"):
		return types.RoleEgress, true
	case has("write operations", "write transactions"):
		return types.RoleWriteOperations, true
	case has("read operations", "read transactions"):
		return types.RoleReadOperations, true
	case has("list operations", "list and create container operations"):
		return types.RoleListOperations, true
	case has("operations", "transactions"):
		return types.RoleTransactions, true
	case has("throughput", "mibps", "mib/s", "mbps"):
		return types.RoleThroughput, true
	case has("iops"):
		return types.RoleIOPS, true
	case has("cool tier capacity", "cool tier data stored", "cool access capacity"):
		return types.RoleCoolCapacity, true
	case has("data stored", "capacity", "provisioned", " disk", "disks"):
		return types.RoleCapacity, true
	default:
		return "", false
	}
}
