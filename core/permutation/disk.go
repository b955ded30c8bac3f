// Package permutation - Block disk permutations
package permutation

import "storage-cost/core/types"

func brackets(prefix string, steps ...int64) []Bracket {
	names := map[int64]string{
		4: "1", 8: "2", 16: "3", 32: "4", 64: "6", 128: "10", 256: "15", 512: "20",
		1024: "30", 2048: "40", 4096: "50", 8192: "60", 16384: "70", 32767: "80",
	}
	out := make([]Bracket, len(steps))
	for i, s := range steps {
		out[i] = Bracket{Name: prefix + names[s], MaxGiB: s}
	}
	return out
}

var (
	hddBrackets     = brackets("S", 32, 64, 128, 256, 512, 1024, 2048, 4096, 8192, 16384, 32767)
	ssdBrackets     = brackets("E", 4, 8, 16, 32, 64, 128, 256, 512, 1024, 2048, 4096, 8192, 16384, 32767)
	premiumBrackets = brackets("P", 4, 8, 16, 32, 64, 128, 256, 512, 1024, 2048, 4096, 8192, 16384, 32767)
)

// registerBlockDisk populates the block disk permutations. Double encryption
// does not change disk meters, so each variant shares its plain sibling's
// price tier.
func registerBlockDisk(c *Catalogue) {
	skus := []struct {
		tier       string
		redundancy types.Redundancy
		product    string
		formula    Formula
		brackets   []Bracket
		throughput BaselineRule
		iops       BaselineRule
		required   []types.MeterRole
		optional   []types.MeterRole
		min, max   int64
	}{
		{"StandardHDD", types.RedundancyLRS, "Standard HDD Managed Disks", FormulaFixedTier, hddBrackets, None(), None(),
			roles(types.RoleCapacity), roles(types.RoleTransactions, types.RoleSnapshot), 1, 32767},
		{"StandardSSD", types.RedundancyLRS, "Standard SSD Managed Disks", FormulaFixedTier, ssdBrackets, None(), None(),
			roles(types.RoleCapacity), roles(types.RoleTransactions, types.RoleSnapshot), 1, 32767},
		{"StandardSSD", types.RedundancyZRS, "Standard SSD Managed Disks", FormulaFixedTier, ssdBrackets, None(), None(),
			roles(types.RoleCapacity), roles(types.RoleTransactions, types.RoleSnapshot), 1, 32767},
		{"PremiumSSD", types.RedundancyLRS, "Premium SSD Managed Disks", FormulaFixedTier, premiumBrackets, None(), None(),
			roles(types.RoleCapacity), roles(types.RoleSnapshot), 1, 32767},
		{"PremiumSSD", types.RedundancyZRS, "Premium SSD Managed Disks", FormulaFixedTier, premiumBrackets, None(), None(),
			roles(types.RoleCapacity), roles(types.RoleSnapshot), 1, 32767},
		{"PremiumSSDv2", types.RedundancyLRS, "Azure Premium SSD v2", FormulaUsagePerformance, nil, Flat(125), Flat(3000),
			roles(types.RoleCapacity), roles(types.RoleIOPS, types.RoleThroughput, types.RoleSnapshot), 1, 65536},
		{"PremiumSSDv2", types.RedundancyZRS, "Azure Premium SSD v2", FormulaUsagePerformance, nil, Flat(125), Flat(3000),
			roles(types.RoleCapacity), roles(types.RoleIOPS, types.RoleThroughput, types.RoleSnapshot), 1, 65536},
		{"UltraSSD", types.RedundancyLRS, "Ultra Disks", FormulaUsagePerformance, nil, None(), None(),
			roles(types.RoleCapacity, types.RoleIOPS, types.RoleThroughput), roles(types.RoleSnapshot), 4, 65536},
	}

	id := 0
	for _, s := range skus {
		p := Permutation{
			Family:             types.FamilyBlockDisk,
			Tier:               s.tier,
			Redundancy:         s.redundancy,
			Provisioned:        true,
			Formula:            s.formula,
			IncludedThroughput: s.throughput,
			IncludedIOPS:       s.iops,
			RequiredMeters:     s.required,
			OptionalMeters:     s.optional,
			MinCapacityGiB:     s.min,
			MaxCapacityGiB:     s.max,
			Brackets:           s.brackets,
			Product:            types.ProductRef{ServiceName: "Storage", ProductName: s.product},
			PriceTier:          normalizeTier(s.tier),
		}
		if s.formula == FormulaUsagePerformance {
			p.Product.SkuName = skuPrefix(s.tier) + " " + string(s.redundancy)
		}

		id++
		plain := p
		plain.ID = id
		c.register(plain)

		id++
		dbl := p
		dbl.ID = id
		dbl.DoubleEncryption = true
		c.register(dbl)
	}

	// provider SKU names carry the redundancy
	c.alias(types.FamilyBlockDisk, "Standard_LRS", "StandardHDD", types.RedundancyLRS)
	c.alias(types.FamilyBlockDisk, "StandardSSD_LRS", "StandardSSD", types.RedundancyLRS)
	c.alias(types.FamilyBlockDisk, "StandardSSD_ZRS", "StandardSSD", types.RedundancyZRS)
	c.alias(types.FamilyBlockDisk, "Premium_LRS", "PremiumSSD", types.RedundancyLRS)
	c.alias(types.FamilyBlockDisk, "Premium_ZRS", "PremiumSSD", types.RedundancyZRS)
	c.alias(types.FamilyBlockDisk, "PremiumV2_LRS", "PremiumSSDv2", types.RedundancyLRS)
	c.alias(types.FamilyBlockDisk, "PremiumV2_ZRS", "PremiumSSDv2", types.RedundancyZRS)
	c.alias(types.FamilyBlockDisk, "UltraSSD_LRS", "UltraSSD", types.RedundancyLRS)
	c.alias(types.FamilyBlockDisk, "Ultra", "UltraSSD", types.RedundancyNone)
}

func skuPrefix(tier string) string {
	switch tier {
	case "UltraSSD":
		return "Ultra"
	default:
		return "Premium"
	}
}
